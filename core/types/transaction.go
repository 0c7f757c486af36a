package types

import (
	"math/big"
	"sync/atomic"
)

// Transaction type identifiers. Legacy transactions have no envelope
// prefix; typed transactions are discriminated by their leading byte.
const (
	LegacyTxType     = 0x00
	AccessListTxType = 0x01
	DynamicFeeTxType = 0x02
	BlobTxType       = 0x03
	SetCodeTxType    = 0x04
)

// Transaction is a signed transaction of any supported type.
type Transaction struct {
	inner TxData
	hash  atomic.Pointer[Hash]
	from  atomic.Pointer[Address] // cached sender address
}

// NewTransaction creates a transaction with the given inner data.
func NewTransaction(inner TxData) *Transaction {
	return &Transaction{inner: inner.copy()}
}

// SetSender caches the sender address on the transaction.
func (tx *Transaction) SetSender(addr Address) {
	a := addr
	tx.from.Store(&a)
}

// Sender returns the cached sender address, or nil if not yet recovered.
func (tx *Transaction) Sender() *Address {
	return tx.from.Load()
}

// TxData is the underlying payload of a transaction.
type TxData interface {
	txType() byte
	chainID() *big.Int
	accessList() AccessList
	data() []byte
	gas() uint64
	gasPrice() *big.Int
	gasTipCap() *big.Int
	gasFeeCap() *big.Int
	value() *big.Int
	nonce() uint64
	to() *Address

	rawSignatureValues() (v, r, s *big.Int)
	setSignatureValues(v, r, s *big.Int)

	copy() TxData
}

// AccessList is a list of address-slot pairs a transaction declares it
// will access (EIP-2930).
type AccessList []AccessTuple

// AccessTuple is a single address and its accessed storage slots.
type AccessTuple struct {
	Address     Address
	StorageKeys []Hash
}

// StorageKeys returns the total number of storage keys across the list.
func (al AccessList) StorageKeys() int {
	var n int
	for _, tuple := range al {
		n += len(tuple.StorageKeys)
	}
	return n
}

// Authorization is an EIP-7702 authorization entry for SetCodeTx.
type Authorization struct {
	ChainID *big.Int
	Address Address
	Nonce   uint64
	V       *big.Int
	R       *big.Int
	S       *big.Int
}

// LegacyTx is a pre-EIP-2718 transaction, encoded as a flat RLP list.
type LegacyTx struct {
	Nonce    uint64
	GasPrice *big.Int
	Gas      uint64
	To       *Address
	Value    *big.Int
	Data     []byte
	V, R, S  *big.Int
}

func (tx *LegacyTx) txType() byte            { return LegacyTxType }
func (tx *LegacyTx) chainID() *big.Int       { return DeriveChainID(tx.V) }
func (tx *LegacyTx) accessList() AccessList  { return nil }
func (tx *LegacyTx) data() []byte            { return tx.Data }
func (tx *LegacyTx) gas() uint64             { return tx.Gas }
func (tx *LegacyTx) gasPrice() *big.Int      { return tx.GasPrice }
func (tx *LegacyTx) gasTipCap() *big.Int     { return tx.GasPrice }
func (tx *LegacyTx) gasFeeCap() *big.Int     { return tx.GasPrice }
func (tx *LegacyTx) value() *big.Int         { return tx.Value }
func (tx *LegacyTx) nonce() uint64           { return tx.Nonce }
func (tx *LegacyTx) to() *Address            { return tx.To }

func (tx *LegacyTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *LegacyTx) setSignatureValues(v, r, s *big.Int)    { tx.V, tx.R, tx.S = v, r, s }

func (tx *LegacyTx) copy() TxData {
	cpy := &LegacyTx{
		Nonce: tx.Nonce,
		Gas:   tx.Gas,
		To:    copyAddressPtr(tx.To),
		Data:  copyBytes(tx.Data),
	}
	cpy.GasPrice = copyBigInt(tx.GasPrice)
	cpy.Value = copyBigInt(tx.Value)
	cpy.V, cpy.R, cpy.S = copyBigInt(tx.V), copyBigInt(tx.R), copyBigInt(tx.S)
	return cpy
}

// AccessListTx is an EIP-2930 (type 0x01) transaction.
type AccessListTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasPrice   *big.Int
	Gas        uint64
	To         *Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *AccessListTx) txType() byte           { return AccessListTxType }
func (tx *AccessListTx) chainID() *big.Int      { return tx.ChainID }
func (tx *AccessListTx) accessList() AccessList { return tx.AccessList }
func (tx *AccessListTx) data() []byte           { return tx.Data }
func (tx *AccessListTx) gas() uint64            { return tx.Gas }
func (tx *AccessListTx) gasPrice() *big.Int     { return tx.GasPrice }
func (tx *AccessListTx) gasTipCap() *big.Int    { return tx.GasPrice }
func (tx *AccessListTx) gasFeeCap() *big.Int    { return tx.GasPrice }
func (tx *AccessListTx) value() *big.Int        { return tx.Value }
func (tx *AccessListTx) nonce() uint64          { return tx.Nonce }
func (tx *AccessListTx) to() *Address           { return tx.To }

func (tx *AccessListTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *AccessListTx) setSignatureValues(v, r, s *big.Int)    { tx.V, tx.R, tx.S = v, r, s }

func (tx *AccessListTx) copy() TxData {
	cpy := &AccessListTx{
		Nonce:      tx.Nonce,
		Gas:        tx.Gas,
		To:         copyAddressPtr(tx.To),
		Data:       copyBytes(tx.Data),
		AccessList: copyAccessList(tx.AccessList),
	}
	cpy.ChainID = copyBigInt(tx.ChainID)
	cpy.GasPrice = copyBigInt(tx.GasPrice)
	cpy.Value = copyBigInt(tx.Value)
	cpy.V, cpy.R, cpy.S = copyBigInt(tx.V), copyBigInt(tx.R), copyBigInt(tx.S)
	return cpy
}

// DynamicFeeTx is an EIP-1559 (type 0x02) transaction.
type DynamicFeeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int // maxPriorityFeePerGas
	GasFeeCap  *big.Int // maxFeePerGas
	Gas        uint64
	To         *Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	V, R, S    *big.Int
}

func (tx *DynamicFeeTx) txType() byte           { return DynamicFeeTxType }
func (tx *DynamicFeeTx) chainID() *big.Int      { return tx.ChainID }
func (tx *DynamicFeeTx) accessList() AccessList { return tx.AccessList }
func (tx *DynamicFeeTx) data() []byte           { return tx.Data }
func (tx *DynamicFeeTx) gas() uint64            { return tx.Gas }
func (tx *DynamicFeeTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *DynamicFeeTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *DynamicFeeTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *DynamicFeeTx) value() *big.Int        { return tx.Value }
func (tx *DynamicFeeTx) nonce() uint64          { return tx.Nonce }
func (tx *DynamicFeeTx) to() *Address           { return tx.To }

func (tx *DynamicFeeTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *DynamicFeeTx) setSignatureValues(v, r, s *big.Int)    { tx.V, tx.R, tx.S = v, r, s }

func (tx *DynamicFeeTx) copy() TxData {
	cpy := &DynamicFeeTx{
		Nonce:      tx.Nonce,
		Gas:        tx.Gas,
		To:         copyAddressPtr(tx.To),
		Data:       copyBytes(tx.Data),
		AccessList: copyAccessList(tx.AccessList),
	}
	cpy.ChainID = copyBigInt(tx.ChainID)
	cpy.GasTipCap = copyBigInt(tx.GasTipCap)
	cpy.GasFeeCap = copyBigInt(tx.GasFeeCap)
	cpy.Value = copyBigInt(tx.Value)
	cpy.V, cpy.R, cpy.S = copyBigInt(tx.V), copyBigInt(tx.R), copyBigInt(tx.S)
	return cpy
}

// BlobTx is an EIP-4844 (type 0x03) blob-carrying transaction. Blob txs
// always have a recipient.
type BlobTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	BlobFeeCap *big.Int
	BlobHashes []Hash
	V, R, S    *big.Int
}

func (tx *BlobTx) txType() byte           { return BlobTxType }
func (tx *BlobTx) chainID() *big.Int      { return tx.ChainID }
func (tx *BlobTx) accessList() AccessList { return tx.AccessList }
func (tx *BlobTx) data() []byte           { return tx.Data }
func (tx *BlobTx) gas() uint64            { return tx.Gas }
func (tx *BlobTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *BlobTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *BlobTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *BlobTx) value() *big.Int        { return tx.Value }
func (tx *BlobTx) nonce() uint64          { return tx.Nonce }
func (tx *BlobTx) to() *Address           { addr := tx.To; return &addr }

func (tx *BlobTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *BlobTx) setSignatureValues(v, r, s *big.Int)    { tx.V, tx.R, tx.S = v, r, s }

func (tx *BlobTx) copy() TxData {
	cpy := &BlobTx{
		Nonce:      tx.Nonce,
		Gas:        tx.Gas,
		To:         tx.To,
		Data:       copyBytes(tx.Data),
		AccessList: copyAccessList(tx.AccessList),
	}
	cpy.ChainID = copyBigInt(tx.ChainID)
	cpy.GasTipCap = copyBigInt(tx.GasTipCap)
	cpy.GasFeeCap = copyBigInt(tx.GasFeeCap)
	cpy.Value = copyBigInt(tx.Value)
	cpy.BlobFeeCap = copyBigInt(tx.BlobFeeCap)
	if tx.BlobHashes != nil {
		cpy.BlobHashes = make([]Hash, len(tx.BlobHashes))
		copy(cpy.BlobHashes, tx.BlobHashes)
	}
	cpy.V, cpy.R, cpy.S = copyBigInt(tx.V), copyBigInt(tx.R), copyBigInt(tx.S)
	return cpy
}

// SetCodeTx is an EIP-7702 (type 0x04) set-code transaction carrying an
// authorization list. SetCode txs always have a recipient.
type SetCodeTx struct {
	ChainID    *big.Int
	Nonce      uint64
	GasTipCap  *big.Int
	GasFeeCap  *big.Int
	Gas        uint64
	To         Address
	Value      *big.Int
	Data       []byte
	AccessList AccessList
	AuthList   []Authorization
	V, R, S    *big.Int
}

func (tx *SetCodeTx) txType() byte           { return SetCodeTxType }
func (tx *SetCodeTx) chainID() *big.Int      { return tx.ChainID }
func (tx *SetCodeTx) accessList() AccessList { return tx.AccessList }
func (tx *SetCodeTx) data() []byte           { return tx.Data }
func (tx *SetCodeTx) gas() uint64            { return tx.Gas }
func (tx *SetCodeTx) gasPrice() *big.Int     { return tx.GasFeeCap }
func (tx *SetCodeTx) gasTipCap() *big.Int    { return tx.GasTipCap }
func (tx *SetCodeTx) gasFeeCap() *big.Int    { return tx.GasFeeCap }
func (tx *SetCodeTx) value() *big.Int        { return tx.Value }
func (tx *SetCodeTx) nonce() uint64          { return tx.Nonce }
func (tx *SetCodeTx) to() *Address           { addr := tx.To; return &addr }

func (tx *SetCodeTx) rawSignatureValues() (v, r, s *big.Int) { return tx.V, tx.R, tx.S }
func (tx *SetCodeTx) setSignatureValues(v, r, s *big.Int)    { tx.V, tx.R, tx.S = v, r, s }

func (tx *SetCodeTx) copy() TxData {
	cpy := &SetCodeTx{
		Nonce:      tx.Nonce,
		Gas:        tx.Gas,
		To:         tx.To,
		Data:       copyBytes(tx.Data),
		AccessList: copyAccessList(tx.AccessList),
	}
	cpy.ChainID = copyBigInt(tx.ChainID)
	cpy.GasTipCap = copyBigInt(tx.GasTipCap)
	cpy.GasFeeCap = copyBigInt(tx.GasFeeCap)
	cpy.Value = copyBigInt(tx.Value)
	if tx.AuthList != nil {
		cpy.AuthList = make([]Authorization, len(tx.AuthList))
		for i, auth := range tx.AuthList {
			cpy.AuthList[i] = Authorization{
				ChainID: copyBigInt(auth.ChainID),
				Address: auth.Address,
				Nonce:   auth.Nonce,
				V:       copyBigInt(auth.V),
				R:       copyBigInt(auth.R),
				S:       copyBigInt(auth.S),
			}
		}
	}
	cpy.V, cpy.R, cpy.S = copyBigInt(tx.V), copyBigInt(tx.R), copyBigInt(tx.S)
	return cpy
}

// Accessors on the Transaction wrapper.

// Type returns the transaction type identifier.
func (tx *Transaction) Type() uint8 { return tx.inner.txType() }

// ChainId returns the chain ID the transaction is bound to.
func (tx *Transaction) ChainId() *big.Int { return tx.inner.chainID() }

// AccessList returns the declared access list (nil for legacy txs).
func (tx *Transaction) AccessList() AccessList { return tx.inner.accessList() }

// Data returns the input data of the transaction.
func (tx *Transaction) Data() []byte { return tx.inner.data() }

// Gas returns the gas limit of the transaction.
func (tx *Transaction) Gas() uint64 { return tx.inner.gas() }

// GasPrice returns the gas price (fee cap for dynamic fee txs).
func (tx *Transaction) GasPrice() *big.Int { return tx.inner.gasPrice() }

// GasTipCap returns maxPriorityFeePerGas.
func (tx *Transaction) GasTipCap() *big.Int { return tx.inner.gasTipCap() }

// GasFeeCap returns maxFeePerGas.
func (tx *Transaction) GasFeeCap() *big.Int { return tx.inner.gasFeeCap() }

// Value returns the transferred amount.
func (tx *Transaction) Value() *big.Int { return tx.inner.value() }

// Nonce returns the sender nonce.
func (tx *Transaction) Nonce() uint64 { return tx.inner.nonce() }

// To returns the recipient address, or nil for contract creation.
func (tx *Transaction) To() *Address { return tx.inner.to() }

// RawSignatureValues returns the V, R, S signature components.
func (tx *Transaction) RawSignatureValues() (v, r, s *big.Int) {
	return tx.inner.rawSignatureValues()
}

// AuthList returns the EIP-7702 authorization list, or nil for other types.
func (tx *Transaction) AuthList() []Authorization {
	if setCode, ok := tx.inner.(*SetCodeTx); ok {
		return setCode.AuthList
	}
	return nil
}

// BlobGasFeeCap returns the blob fee cap of an EIP-4844 transaction.
func (tx *Transaction) BlobGasFeeCap() *big.Int {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobFeeCap
	}
	return nil
}

// BlobHashes returns the versioned hashes of an EIP-4844 transaction.
func (tx *Transaction) BlobHashes() []Hash {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return blob.BlobHashes
	}
	return nil
}

// BlobGas returns the blob gas consumed by the transaction: one gas unit
// per blob byte, 2^17 per blob.
func (tx *Transaction) BlobGas() uint64 {
	if blob, ok := tx.inner.(*BlobTx); ok {
		return uint64(len(blob.BlobHashes)) * BlobTxBlobGasPerBlob
	}
	return 0
}

// BlobTxBlobGasPerBlob is the gas consumed per blob (EIP-4844, 2^17).
const BlobTxBlobGasPerBlob = 1 << 17

// Hash returns the transaction hash: keccak256 of the flat RLP encoding
// for legacy txs, keccak256 of the typed envelope otherwise. Cached.
func (tx *Transaction) Hash() Hash {
	if h := tx.hash.Load(); h != nil {
		return *h
	}
	enc, err := tx.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	h := keccak256Hash(enc)
	tx.hash.Store(&h)
	return h
}

// WithSignature returns a copy of the transaction carrying the given
// signature components.
func (tx *Transaction) WithSignature(v, r, s *big.Int) *Transaction {
	inner := tx.inner.copy()
	inner.setSignatureValues(v, r, s)
	return &Transaction{inner: inner}
}

// Helpers.

func copyAddressPtr(a *Address) *Address {
	if a == nil {
		return nil
	}
	cpy := *a
	return &cpy
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	cpy := make([]byte, len(b))
	copy(cpy, b)
	return cpy
}

func copyBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

func copyAccessList(al AccessList) AccessList {
	if al == nil {
		return nil
	}
	cpy := make(AccessList, len(al))
	for i, tuple := range al {
		cpy[i] = AccessTuple{
			Address:     tuple.Address,
			StorageKeys: make([]Hash, len(tuple.StorageKeys)),
		}
		copy(cpy[i].StorageKeys, tuple.StorageKeys)
	}
	return cpy
}

// DeriveChainID derives the chain ID from a legacy EIP-155 V value.
// Pre-EIP-155 signatures (v = 27/28) have no chain ID.
func DeriveChainID(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	if v.BitLen() <= 8 {
		val := v.Uint64()
		if val == 27 || val == 28 {
			return new(big.Int)
		}
	}
	// v = chainID*2 + 35 + parity
	chainID := new(big.Int).Sub(v, big.NewInt(35))
	return chainID.Rsh(chainID, 1)
}
