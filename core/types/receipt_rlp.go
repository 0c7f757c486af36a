package types

import (
	"errors"

	"github.com/evmcore/evmcore/rlp"
)

var errBadReceipt = errors.New("types: malformed receipt encoding")

// statusOrRoot returns the first consensus field of the receipt: the
// pre-Byzantium intermediate state root when present, otherwise the
// post-Byzantium status byte (empty string for failure, 0x01 for success).
func (r *Receipt) statusOrRoot() []byte {
	if len(r.PostState) > 0 {
		return r.PostState
	}
	if r.Status == ReceiptStatusSuccessful {
		return []byte{0x01}
	}
	return []byte{}
}

// EncodeRLP returns the consensus encoding of the receipt:
// rlp([statusOrRoot, cumulativeGasUsed, bloom, logs]) for legacy receipts,
// prefixed with the transaction type byte for typed receipts.
func (r *Receipt) EncodeRLP() ([]byte, error) {
	logs := make([]logRLP, len(r.Logs))
	for i, l := range r.Logs {
		logs[i] = l.rlpPayload()
	}
	payload, err := encodeRLPList([]interface{}{
		r.statusOrRoot(),
		r.CumulativeGasUsed,
		r.Bloom,
		logs,
	})
	if err != nil {
		return nil, err
	}
	if r.Type == LegacyTxType {
		return payload, nil
	}
	return append([]byte{r.Type}, payload...), nil
}

// DecodeReceipt decodes a standalone receipt (legacy list or typed
// envelope).
func DecodeReceipt(data []byte) (*Receipt, error) {
	if len(data) == 0 {
		return nil, errBadReceipt
	}
	r := &Receipt{}
	if data[0] < 0xc0 {
		switch data[0] {
		case AccessListTxType, DynamicFeeTxType, BlobTxType, SetCodeTxType:
			r.Type = data[0]
			data = data[1:]
		default:
			return nil, errBadReceipt
		}
	}

	s := rlp.NewStreamBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}
	first, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	switch len(first) {
	case 0:
		r.Status = ReceiptStatusFailed
	case 1:
		if first[0] != 0x01 {
			return nil, errBadReceipt
		}
		r.Status = ReceiptStatusSuccessful
	case HashLength:
		r.PostState = append([]byte(nil), first...)
	default:
		return nil, errBadReceipt
	}
	if r.CumulativeGasUsed, err = s.Uint64(); err != nil {
		return nil, err
	}
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) != BloomLength {
		return nil, errBadReceipt
	}
	copy(r.Bloom[:], b)

	// Logs.
	if _, err = s.List(); err != nil {
		return nil, err
	}
	for s.MoreDataInList() {
		if _, err = s.List(); err != nil {
			return nil, err
		}
		l := &Log{}
		if b, err = s.Bytes(); err != nil {
			return nil, err
		}
		if len(b) != AddressLength {
			return nil, errBadReceipt
		}
		l.Address = BytesToAddress(b)
		if l.Topics, err = decodeHashList(s); err != nil {
			return nil, err
		}
		if b, err = s.Bytes(); err != nil {
			return nil, err
		}
		l.Data = append([]byte(nil), b...)
		if err = s.ListEnd(); err != nil {
			return nil, err
		}
		r.Logs = append(r.Logs, l)
	}
	if err = s.ListEnd(); err != nil {
		return nil, err
	}
	if err = s.ListEnd(); err != nil {
		return nil, err
	}
	return r, nil
}
