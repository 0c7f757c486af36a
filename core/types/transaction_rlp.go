package types

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/rlp"
)

var (
	ErrTxTypeNotSupported = errors.New("types: transaction type not supported")
	ErrShortTypedTx       = errors.New("types: typed transaction too short")
	errBadRecipient       = errors.New("types: invalid recipient field")
)

// EncodeRLP returns the canonical encoding of the transaction: a flat RLP
// list for legacy transactions, and the opaque envelope
// type_byte ‖ rlp(fields) for typed transactions. The envelope is NOT
// itself RLP; embedding it inside another RLP structure requires wrapping
// it as a bytestring (see Body encoding).
func (tx *Transaction) EncodeRLP() ([]byte, error) {
	if tx.Type() == LegacyTxType {
		return encodeRLPList(tx.fieldsWithSignature())
	}
	payload, err := encodeRLPList(tx.fieldsWithSignature())
	if err != nil {
		return nil, err
	}
	return append([]byte{tx.Type()}, payload...), nil
}

// fieldsWithSignature returns the full consensus field list of the
// transaction, signature included, in wire order.
func (tx *Transaction) fieldsWithSignature() []interface{} {
	v, r, s := tx.RawSignatureValues()
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		return []interface{}{
			inner.Nonce, bigIntOrZero(inner.GasPrice), inner.Gas,
			addressOrNil(inner.To), bigIntOrZero(inner.Value), inner.Data,
			bigIntOrZero(v), bigIntOrZero(r), bigIntOrZero(s),
		}
	case *AccessListTx:
		return []interface{}{
			bigIntOrZero(inner.ChainID), inner.Nonce, bigIntOrZero(inner.GasPrice),
			inner.Gas, addressOrNil(inner.To), bigIntOrZero(inner.Value), inner.Data,
			inner.AccessList,
			bigIntOrZero(v), bigIntOrZero(r), bigIntOrZero(s),
		}
	case *DynamicFeeTx:
		return []interface{}{
			bigIntOrZero(inner.ChainID), inner.Nonce,
			bigIntOrZero(inner.GasTipCap), bigIntOrZero(inner.GasFeeCap),
			inner.Gas, addressOrNil(inner.To), bigIntOrZero(inner.Value), inner.Data,
			inner.AccessList,
			bigIntOrZero(v), bigIntOrZero(r), bigIntOrZero(s),
		}
	case *BlobTx:
		return []interface{}{
			bigIntOrZero(inner.ChainID), inner.Nonce,
			bigIntOrZero(inner.GasTipCap), bigIntOrZero(inner.GasFeeCap),
			inner.Gas, inner.To, bigIntOrZero(inner.Value), inner.Data,
			inner.AccessList,
			bigIntOrZero(inner.BlobFeeCap), inner.BlobHashes,
			bigIntOrZero(v), bigIntOrZero(r), bigIntOrZero(s),
		}
	case *SetCodeTx:
		return []interface{}{
			bigIntOrZero(inner.ChainID), inner.Nonce,
			bigIntOrZero(inner.GasTipCap), bigIntOrZero(inner.GasFeeCap),
			inner.Gas, inner.To, bigIntOrZero(inner.Value), inner.Data,
			inner.AccessList,
			encodeAuthList(inner.AuthList),
			bigIntOrZero(v), bigIntOrZero(r), bigIntOrZero(s),
		}
	default:
		return nil
	}
}

// SigningHash returns the hash the sender signed. For legacy transactions
// a non-nil chainID selects the EIP-155 replay-protected shape; nil
// selects the original 6-field Frontier/Homestead shape. Typed
// transactions hash their envelope without the signature fields.
func (tx *Transaction) SigningHash(chainID *big.Int) Hash {
	switch inner := tx.inner.(type) {
	case *LegacyTx:
		items := []interface{}{
			inner.Nonce, bigIntOrZero(inner.GasPrice), inner.Gas,
			addressOrNil(inner.To), bigIntOrZero(inner.Value), inner.Data,
		}
		if chainID != nil && chainID.Sign() != 0 {
			items = append(items, chainID, uint64(0), uint64(0))
		}
		enc, _ := encodeRLPList(items)
		return keccak256Hash(enc)
	default:
		fields := tx.fieldsWithSignature()
		// Strip the trailing yParity, r, s.
		enc, _ := encodeRLPList(fields[:len(fields)-3])
		return keccak256Hash(append([]byte{tx.Type()}, enc...))
	}
}

// AuthorizationSigningHash computes the EIP-7702 authorization hash:
// keccak256(0x05 ‖ rlp([chain_id, address, nonce])).
func AuthorizationSigningHash(auth *Authorization) Hash {
	enc, _ := encodeRLPList([]interface{}{
		bigIntOrZero(auth.ChainID), auth.Address, auth.Nonce,
	})
	return keccak256Hash(append([]byte{0x05}, enc...))
}

// authorizationRLP is the wire shape of one authorization tuple.
type authorizationRLP struct {
	ChainID *big.Int
	Address Address
	Nonce   uint64
	V       *big.Int
	R       *big.Int
	S       *big.Int
}

func encodeAuthList(auths []Authorization) []authorizationRLP {
	out := make([]authorizationRLP, len(auths))
	for i, a := range auths {
		out[i] = authorizationRLP{
			ChainID: bigIntOrZero(a.ChainID),
			Address: a.Address,
			Nonce:   a.Nonce,
			V:       bigIntOrZero(a.V),
			R:       bigIntOrZero(a.R),
			S:       bigIntOrZero(a.S),
		}
	}
	return out
}

// DecodeTransaction decodes a standalone transaction: a legacy RLP list
// (leading byte in [0xc0, 0xff]) or a typed envelope (leading byte in
// [0x00, 0x7f]).
func DecodeTransaction(data []byte) (*Transaction, error) {
	if len(data) == 0 {
		return nil, ErrShortTypedTx
	}
	if data[0] >= 0xc0 {
		return decodeLegacyTx(data)
	}
	return decodeTypedTx(data)
}

func decodeLegacyTx(data []byte) (*Transaction, error) {
	s := rlp.NewStreamBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}
	inner := &LegacyTx{}
	var err error
	if inner.Nonce, err = s.Uint64(); err != nil {
		return nil, err
	}
	if inner.GasPrice, err = s.BigInt(); err != nil {
		return nil, err
	}
	if inner.Gas, err = s.Uint64(); err != nil {
		return nil, err
	}
	if inner.To, err = decodeRecipient(s); err != nil {
		return nil, err
	}
	if inner.Value, err = s.BigInt(); err != nil {
		return nil, err
	}
	if inner.Data, err = decodeDataField(s); err != nil {
		return nil, err
	}
	if inner.V, err = s.BigInt(); err != nil {
		return nil, err
	}
	if inner.R, err = s.BigInt(); err != nil {
		return nil, err
	}
	if inner.S, err = s.BigInt(); err != nil {
		return nil, err
	}
	if err = s.ListEnd(); err != nil {
		return nil, err
	}
	return &Transaction{inner: inner}, nil
}

func decodeTypedTx(data []byte) (*Transaction, error) {
	if len(data) < 2 {
		return nil, ErrShortTypedTx
	}
	s := rlp.NewStreamBytes(data[1:])
	if _, err := s.List(); err != nil {
		return nil, err
	}

	switch data[0] {
	case AccessListTxType:
		inner := &AccessListTx{}
		var err error
		if inner.ChainID, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Nonce, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.GasPrice, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Gas, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.To, err = decodeRecipient(s); err != nil {
			return nil, err
		}
		if inner.Value, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Data, err = decodeDataField(s); err != nil {
			return nil, err
		}
		if inner.AccessList, err = decodeAccessList(s); err != nil {
			return nil, err
		}
		if inner.V, inner.R, inner.S, err = decodeSignature(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		return &Transaction{inner: inner}, nil

	case DynamicFeeTxType:
		inner := &DynamicFeeTx{}
		var err error
		if inner.ChainID, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Nonce, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.GasTipCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.GasFeeCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Gas, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.To, err = decodeRecipient(s); err != nil {
			return nil, err
		}
		if inner.Value, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Data, err = decodeDataField(s); err != nil {
			return nil, err
		}
		if inner.AccessList, err = decodeAccessList(s); err != nil {
			return nil, err
		}
		if inner.V, inner.R, inner.S, err = decodeSignature(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		return &Transaction{inner: inner}, nil

	case BlobTxType:
		inner := &BlobTx{}
		var err error
		if inner.ChainID, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Nonce, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.GasTipCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.GasFeeCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Gas, err = s.Uint64(); err != nil {
			return nil, err
		}
		to, err := decodeRecipient(s)
		if err != nil {
			return nil, err
		}
		if to == nil {
			return nil, errBadRecipient
		}
		inner.To = *to
		if inner.Value, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Data, err = decodeDataField(s); err != nil {
			return nil, err
		}
		if inner.AccessList, err = decodeAccessList(s); err != nil {
			return nil, err
		}
		if inner.BlobFeeCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.BlobHashes, err = decodeHashList(s); err != nil {
			return nil, err
		}
		if inner.V, inner.R, inner.S, err = decodeSignature(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		return &Transaction{inner: inner}, nil

	case SetCodeTxType:
		inner := &SetCodeTx{}
		var err error
		if inner.ChainID, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Nonce, err = s.Uint64(); err != nil {
			return nil, err
		}
		if inner.GasTipCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.GasFeeCap, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Gas, err = s.Uint64(); err != nil {
			return nil, err
		}
		to, err := decodeRecipient(s)
		if err != nil {
			return nil, err
		}
		if to == nil {
			return nil, errBadRecipient
		}
		inner.To = *to
		if inner.Value, err = s.BigInt(); err != nil {
			return nil, err
		}
		if inner.Data, err = decodeDataField(s); err != nil {
			return nil, err
		}
		if inner.AccessList, err = decodeAccessList(s); err != nil {
			return nil, err
		}
		if inner.AuthList, err = decodeAuthList(s); err != nil {
			return nil, err
		}
		if inner.V, inner.R, inner.S, err = decodeSignature(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		return &Transaction{inner: inner}, nil

	default:
		return nil, fmt.Errorf("%w: type 0x%02x", ErrTxTypeNotSupported, data[0])
	}
}

func addressOrNil(a *Address) interface{} {
	if a == nil {
		return []byte(nil)
	}
	return *a
}

func decodeRecipient(s *rlp.Stream) (*Address, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	switch len(b) {
	case 0:
		return nil, nil
	case AddressLength:
		addr := BytesToAddress(b)
		return &addr, nil
	default:
		return nil, errBadRecipient
	}
}

func decodeDataField(s *rlp.Stream) ([]byte, error) {
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), b...), nil
}

func decodeSignature(s *rlp.Stream) (v, r, sig *big.Int, err error) {
	if v, err = s.BigInt(); err != nil {
		return nil, nil, nil, err
	}
	if r, err = s.BigInt(); err != nil {
		return nil, nil, nil, err
	}
	if sig, err = s.BigInt(); err != nil {
		return nil, nil, nil, err
	}
	return v, r, sig, nil
}

func decodeAccessList(s *rlp.Stream) (AccessList, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	var al AccessList
	for s.MoreDataInList() {
		if _, err := s.List(); err != nil {
			return nil, err
		}
		b, err := s.Bytes()
		if err != nil {
			return nil, err
		}
		if len(b) != AddressLength {
			return nil, errBadRecipient
		}
		tuple := AccessTuple{Address: BytesToAddress(b)}
		if tuple.StorageKeys, err = decodeHashList(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		al = append(al, tuple)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	if al == nil {
		al = AccessList{}
	}
	return al, nil
}

func decodeHashList(s *rlp.Stream) ([]Hash, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	var hashes []Hash
	for s.MoreDataInList() {
		b, err := s.Bytes()
		if err != nil {
			return nil, err
		}
		if len(b) != HashLength {
			return nil, errBadHeaderField
		}
		hashes = append(hashes, BytesToHash(b))
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return hashes, nil
}

func decodeAuthList(s *rlp.Stream) ([]Authorization, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	var auths []Authorization
	for s.MoreDataInList() {
		if _, err := s.List(); err != nil {
			return nil, err
		}
		var a Authorization
		var err error
		if a.ChainID, err = s.BigInt(); err != nil {
			return nil, err
		}
		b, err := s.Bytes()
		if err != nil {
			return nil, err
		}
		if len(b) != AddressLength {
			return nil, errBadRecipient
		}
		a.Address = BytesToAddress(b)
		if a.Nonce, err = s.Uint64(); err != nil {
			return nil, err
		}
		if a.V, a.R, a.S, err = decodeSignature(s); err != nil {
			return nil, err
		}
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		auths = append(auths, a)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return auths, nil
}
