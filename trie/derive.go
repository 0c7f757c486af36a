package trie

import (
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/rlp"
)

// DerivableList abstracts an ordered list whose items can produce their
// consensus encoding: transactions, receipts, and withdrawals.
type DerivableList interface {
	Len() int
	EncodeIndex(i int) ([]byte, error)
}

// DeriveRoot computes the trie root of an ordered list. Items are keyed
// by rlp(index), matching the transaction, receipt, and withdrawal root
// commitments in block headers.
func DeriveRoot(list DerivableList) (types.Hash, error) {
	t := New()
	for i := 0; i < list.Len(); i++ {
		enc, err := list.EncodeIndex(i)
		if err != nil {
			return types.Hash{}, err
		}
		if err := t.Put(rlp.EncodeUint64(uint64(i)), enc); err != nil {
			return types.Hash{}, err
		}
	}
	return t.Root(), nil
}

// Transactions wraps a transaction slice for DeriveRoot. Typed envelopes
// are inserted raw (not wrapped as byte strings) per the root derivation
// rule for standalone encodings.
type Transactions []*types.Transaction

func (txs Transactions) Len() int { return len(txs) }

func (txs Transactions) EncodeIndex(i int) ([]byte, error) {
	return txs[i].EncodeRLP()
}

// Receipts wraps a receipt slice for DeriveRoot.
type Receipts []*types.Receipt

func (rs Receipts) Len() int { return len(rs) }

func (rs Receipts) EncodeIndex(i int) ([]byte, error) {
	return rs[i].EncodeRLP()
}

// Withdrawals wraps a withdrawal slice for DeriveRoot.
type Withdrawals []*types.Withdrawal

func (ws Withdrawals) Len() int { return len(ws) }

func (ws Withdrawals) EncodeIndex(i int) ([]byte, error) {
	return ws[i].EncodeRLP()
}
