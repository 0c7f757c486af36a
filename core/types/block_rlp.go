package types

import (
	"github.com/evmcore/evmcore/rlp"
)

// encodeTxForBody encodes a transaction for embedding inside an RLP
// structure. Legacy transactions are RLP lists and embed directly; typed
// envelopes are opaque byte strings and must be wrapped.
func encodeTxForBody(tx *Transaction) (rlp.RawValue, error) {
	enc, err := tx.EncodeRLP()
	if err != nil {
		return nil, err
	}
	if tx.Type() == LegacyTxType {
		return rlp.RawValue(enc), nil
	}
	return rlp.RawValue(rlp.EncodeBytes(enc)), nil
}

// EncodeBodyRLP encodes a block body as [transactions, uncles] with a
// trailing withdrawals list post-Shanghai (present iff non-nil).
func EncodeBodyRLP(body *Body) ([]byte, error) {
	var txPayload []byte
	for _, tx := range body.Transactions {
		enc, err := encodeTxForBody(tx)
		if err != nil {
			return nil, err
		}
		txPayload = append(txPayload, enc...)
	}

	var unclePayload []byte
	for _, uncle := range body.Uncles {
		enc, err := uncle.EncodeRLP()
		if err != nil {
			return nil, err
		}
		unclePayload = append(unclePayload, enc...)
	}

	payload := append(rlp.WrapList(txPayload), rlp.WrapList(unclePayload)...)

	if body.Withdrawals != nil {
		var wPayload []byte
		for _, w := range body.Withdrawals {
			enc, err := w.EncodeRLP()
			if err != nil {
				return nil, err
			}
			wPayload = append(wPayload, enc...)
		}
		payload = append(payload, rlp.WrapList(wPayload)...)
	}
	return rlp.WrapList(payload), nil
}

// DecodeBodyRLP decodes a block body.
func DecodeBodyRLP(data []byte) (*Body, error) {
	s := rlp.NewStreamBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}
	body := &Body{}

	// Transactions.
	if _, err := s.List(); err != nil {
		return nil, err
	}
	for s.MoreDataInList() {
		kind, _, err := s.Kind()
		if err != nil {
			return nil, err
		}
		var raw []byte
		if kind == rlp.List {
			// Legacy transaction, embedded directly.
			rv, err := s.Raw()
			if err != nil {
				return nil, err
			}
			raw = rv
		} else {
			// Typed envelope wrapped as a byte string.
			if raw, err = s.Bytes(); err != nil {
				return nil, err
			}
		}
		tx, err := DecodeTransaction(raw)
		if err != nil {
			return nil, err
		}
		body.Transactions = append(body.Transactions, tx)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	// Uncles.
	if _, err := s.List(); err != nil {
		return nil, err
	}
	for s.MoreDataInList() {
		raw, err := s.Raw()
		if err != nil {
			return nil, err
		}
		uncle, err := DecodeHeaderRLP(raw)
		if err != nil {
			return nil, err
		}
		body.Uncles = append(body.Uncles, uncle)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}

	// Withdrawals (post-Shanghai bodies only).
	if s.MoreDataInList() {
		if _, err := s.List(); err != nil {
			return nil, err
		}
		body.Withdrawals = []*Withdrawal{}
		for s.MoreDataInList() {
			w, err := decodeWithdrawalStream(s)
			if err != nil {
				return nil, err
			}
			body.Withdrawals = append(body.Withdrawals, w)
		}
		if err := s.ListEnd(); err != nil {
			return nil, err
		}
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	return body, nil
}

// EncodeBlockRLP encodes a complete block as
// [header, transactions, uncles, withdrawals?].
func EncodeBlockRLP(b *Block) ([]byte, error) {
	headerEnc, err := b.header.EncodeRLP()
	if err != nil {
		return nil, err
	}
	bodyEnc, err := EncodeBodyRLP(&b.body)
	if err != nil {
		return nil, err
	}
	// Splice the body's items (drop its outer list header) after the header.
	s := rlp.NewStreamBytes(bodyEnc)
	if _, err := s.List(); err != nil {
		return nil, err
	}
	var payload []byte
	payload = append(payload, headerEnc...)
	for s.MoreDataInList() {
		item, err := s.Raw()
		if err != nil {
			return nil, err
		}
		payload = append(payload, item...)
	}
	return rlp.WrapList(payload), nil
}

// DecodeBlockRLP decodes a complete block.
func DecodeBlockRLP(data []byte) (*Block, error) {
	s := rlp.NewStreamBytes(data)
	if _, err := s.List(); err != nil {
		return nil, err
	}
	headerRaw, err := s.Raw()
	if err != nil {
		return nil, err
	}
	header, err := DecodeHeaderRLP(headerRaw)
	if err != nil {
		return nil, err
	}
	// The remaining items form the body; re-wrap them as a body list.
	var bodyPayload []byte
	for s.MoreDataInList() {
		item, err := s.Raw()
		if err != nil {
			return nil, err
		}
		bodyPayload = append(bodyPayload, item...)
	}
	if err := s.ListEnd(); err != nil {
		return nil, err
	}
	body, err := DecodeBodyRLP(rlp.WrapList(bodyPayload))
	if err != nil {
		return nil, err
	}
	return NewBlock(header, body), nil
}
