package types

import (
	"math/big"
	"sync/atomic"
)

// Header represents a block header.
type Header struct {
	ParentHash  Hash
	UncleHash   Hash
	Coinbase    Address
	Root        Hash
	TxHash      Hash
	ReceiptHash Hash
	Bloom       Bloom
	Difficulty  *big.Int
	Number      *big.Int
	GasLimit    uint64
	GasUsed     uint64
	Time        uint64
	Extra       []byte
	MixDigest   Hash
	Nonce       BlockNonce

	// EIP-1559 (London).
	BaseFee *big.Int

	// EIP-4895 (Shanghai): beacon chain push withdrawals.
	WithdrawalsHash *Hash

	// EIP-4844 (Cancun): shard blob transactions.
	BlobGasUsed   *uint64
	ExcessBlobGas *uint64

	// EIP-4788 (Cancun): beacon block root in the EVM.
	ParentBeaconRoot *Hash

	// EIP-7685 (Prague): general purpose execution layer requests.
	RequestsHash *Hash

	// Cache fields, not serialized.
	hash atomic.Pointer[Hash]
}

// Hash returns the keccak256 hash of the RLP-encoded header, cached on
// first call. Mutating a header after hashing it is a programmer error.
func (h *Header) Hash() Hash {
	if cached := h.hash.Load(); cached != nil {
		return *cached
	}
	enc, err := h.EncodeRLP()
	if err != nil {
		return Hash{}
	}
	hash := keccak256Hash(enc)
	h.hash.Store(&hash)
	return hash
}

// NumberU64 returns the block number as a uint64 (0 if unset).
func (h *Header) NumberU64() uint64 {
	if h.Number == nil {
		return 0
	}
	return h.Number.Uint64()
}

// CopyHeader creates a deep copy of a header.
func CopyHeader(h *Header) *Header {
	if h == nil {
		return nil
	}
	cpy := Header{
		ParentHash:       h.ParentHash,
		UncleHash:        h.UncleHash,
		Coinbase:         h.Coinbase,
		Root:             h.Root,
		TxHash:           h.TxHash,
		ReceiptHash:      h.ReceiptHash,
		Bloom:            h.Bloom,
		Difficulty:       h.Difficulty,
		Number:           h.Number,
		GasLimit:         h.GasLimit,
		GasUsed:          h.GasUsed,
		Time:             h.Time,
		Extra:            h.Extra,
		MixDigest:        h.MixDigest,
		Nonce:            h.Nonce,
		BaseFee:          h.BaseFee,
		WithdrawalsHash:  h.WithdrawalsHash,
		BlobGasUsed:      h.BlobGasUsed,
		ExcessBlobGas:    h.ExcessBlobGas,
		ParentBeaconRoot: h.ParentBeaconRoot,
		RequestsHash:     h.RequestsHash,
	}
	if h.Difficulty != nil {
		cpy.Difficulty = new(big.Int).Set(h.Difficulty)
	}
	if h.Number != nil {
		cpy.Number = new(big.Int).Set(h.Number)
	}
	if h.BaseFee != nil {
		cpy.BaseFee = new(big.Int).Set(h.BaseFee)
	}
	if len(h.Extra) > 0 {
		cpy.Extra = make([]byte, len(h.Extra))
		copy(cpy.Extra, h.Extra)
	}
	if h.WithdrawalsHash != nil {
		v := *h.WithdrawalsHash
		cpy.WithdrawalsHash = &v
	}
	if h.BlobGasUsed != nil {
		v := *h.BlobGasUsed
		cpy.BlobGasUsed = &v
	}
	if h.ExcessBlobGas != nil {
		v := *h.ExcessBlobGas
		cpy.ExcessBlobGas = &v
	}
	if h.ParentBeaconRoot != nil {
		v := *h.ParentBeaconRoot
		cpy.ParentBeaconRoot = &v
	}
	if h.RequestsHash != nil {
		v := *h.RequestsHash
		cpy.RequestsHash = &v
	}
	return &cpy
}
