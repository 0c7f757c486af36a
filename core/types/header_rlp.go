package types

import (
	"errors"
	"math/big"

	"github.com/evmcore/evmcore/rlp"
)

var errBadHeaderField = errors.New("types: bad header field")

// EncodeRLP returns the RLP encoding of the header in Yellow Paper field
// order, with fork-dependent fields appended only when present:
//
//	[ParentHash, UncleHash, Coinbase, Root, TxHash, ReceiptHash, Bloom,
//	 Difficulty, Number, GasLimit, GasUsed, Time, Extra, MixDigest, Nonce,
//	 BaseFee?, WithdrawalsHash?, BlobGasUsed?, ExcessBlobGas?,
//	 ParentBeaconRoot?, RequestsHash?]
//
// A later optional field must not appear without all earlier ones; callers
// construct headers fork-consistently so this is not re-checked here.
func (h *Header) EncodeRLP() ([]byte, error) {
	items := []interface{}{
		h.ParentHash,
		h.UncleHash,
		h.Coinbase,
		h.Root,
		h.TxHash,
		h.ReceiptHash,
		h.Bloom,
		bigIntOrZero(h.Difficulty),
		bigIntOrZero(h.Number),
		h.GasLimit,
		h.GasUsed,
		h.Time,
		h.Extra,
		h.MixDigest,
		h.Nonce,
	}
	if h.BaseFee != nil {
		items = append(items, h.BaseFee)
	}
	if h.WithdrawalsHash != nil {
		items = append(items, *h.WithdrawalsHash)
	}
	if h.BlobGasUsed != nil {
		items = append(items, *h.BlobGasUsed)
	}
	if h.ExcessBlobGas != nil {
		items = append(items, *h.ExcessBlobGas)
	}
	if h.ParentBeaconRoot != nil {
		items = append(items, *h.ParentBeaconRoot)
	}
	if h.RequestsHash != nil {
		items = append(items, *h.RequestsHash)
	}
	return encodeRLPList(items)
}

// DecodeHeaderRLP decodes an RLP-encoded header, accepting any of the
// fork-dependent tail shapes.
func DecodeHeaderRLP(data []byte) (*Header, error) {
	s := rlp.NewStreamBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}

	h := &Header{}
	var err error

	if err = decodeHash(s, &h.ParentHash); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.UncleHash); err != nil {
		return nil, err
	}
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	h.Coinbase = BytesToAddress(b)
	if err = decodeHash(s, &h.Root); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.TxHash); err != nil {
		return nil, err
	}
	if err = decodeHash(s, &h.ReceiptHash); err != nil {
		return nil, err
	}
	if b, err = s.Bytes(); err != nil {
		return nil, err
	}
	if len(b) != BloomLength {
		return nil, errBadHeaderField
	}
	copy(h.Bloom[:], b)
	if h.Difficulty, err = s.BigInt(); err != nil {
		return nil, err
	}
	if h.Number, err = s.BigInt(); err != nil {
		return nil, err
	}
	if h.GasLimit, err = s.Uint64(); err != nil {
		return nil, err
	}
	if h.GasUsed, err = s.Uint64(); err != nil {
		return nil, err
	}
	if h.Time, err = s.Uint64(); err != nil {
		return nil, err
	}
	if b, err = s.Bytes(); err != nil {
		return nil, err
	}
	h.Extra = append([]byte(nil), b...)
	if err = decodeHash(s, &h.MixDigest); err != nil {
		return nil, err
	}
	if b, err = s.Bytes(); err != nil {
		return nil, err
	}
	copy(h.Nonce[NonceLength-len(b):], b)

	// Fork-dependent tail: read optionals in order while list data remains.
	if s.MoreDataInList() {
		if h.BaseFee, err = s.BigInt(); err != nil {
			return nil, err
		}
	}
	if s.MoreDataInList() {
		var wh Hash
		if err = decodeHash(s, &wh); err != nil {
			return nil, err
		}
		h.WithdrawalsHash = &wh
	}
	if s.MoreDataInList() {
		v, err := s.Uint64()
		if err != nil {
			return nil, err
		}
		h.BlobGasUsed = &v
	}
	if s.MoreDataInList() {
		v, err := s.Uint64()
		if err != nil {
			return nil, err
		}
		h.ExcessBlobGas = &v
	}
	if s.MoreDataInList() {
		var pr Hash
		if err = decodeHash(s, &pr); err != nil {
			return nil, err
		}
		h.ParentBeaconRoot = &pr
	}
	if s.MoreDataInList() {
		var rh Hash
		if err = decodeHash(s, &rh); err != nil {
			return nil, err
		}
		h.RequestsHash = &rh
	}
	if err = s.ListEnd(); err != nil {
		return nil, err
	}
	return h, nil
}

func decodeHash(s *rlp.Stream, out *Hash) error {
	b, err := s.Bytes()
	if err != nil {
		return err
	}
	if len(b) != HashLength {
		return errBadHeaderField
	}
	copy(out[:], b)
	return nil
}

// encodeRLPList encodes each item and wraps the concatenation in a list
// header.
func encodeRLPList(items []interface{}) ([]byte, error) {
	var payload []byte
	for _, item := range items {
		enc, err := rlp.EncodeToBytes(item)
		if err != nil {
			return nil, err
		}
		payload = append(payload, enc...)
	}
	return rlp.WrapList(payload), nil
}

func bigIntOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
