package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// Message is a transaction reduced to the fields execution needs, with
// the sender already recovered.
type Message struct {
	From       types.Address
	To         *types.Address // nil for contract creation
	Nonce      uint64
	Value      *big.Int
	GasLimit   uint64
	GasPrice   *big.Int
	GasFeeCap  *big.Int
	GasTipCap  *big.Int
	Data       []byte
	AccessList types.AccessList
	BlobFeeCap *big.Int
	BlobHashes []types.Hash
	AuthList   []types.Authorization
	TxType     uint8
}

// TransactionToMessage converts a transaction into a Message, recovering
// the sender through the signer unless a sender is already cached.
func TransactionToMessage(tx *types.Transaction, signer types.Signer) (*Message, error) {
	msg := &Message{
		Nonce:      tx.Nonce(),
		GasLimit:   tx.Gas(),
		GasPrice:   tx.GasPrice(),
		GasFeeCap:  tx.GasFeeCap(),
		GasTipCap:  tx.GasTipCap(),
		Data:       tx.Data(),
		AccessList: tx.AccessList(),
		BlobFeeCap: tx.BlobGasFeeCap(),
		BlobHashes: tx.BlobHashes(),
		AuthList:   tx.AuthList(),
		TxType:     tx.Type(),
	}
	if to := tx.To(); to != nil {
		cpy := *to
		msg.To = &cpy
	}
	if tx.Value() != nil {
		msg.Value = new(big.Int).Set(tx.Value())
	} else {
		msg.Value = new(big.Int)
	}

	if cached := tx.Sender(); cached != nil {
		msg.From = *cached
		return msg, nil
	}
	from, err := signer.Sender(tx)
	if err != nil {
		return nil, err
	}
	tx.SetSender(from)
	msg.From = from
	return msg, nil
}

// IsCreate reports whether the message creates a contract.
func (m *Message) IsCreate() bool { return m.To == nil }
