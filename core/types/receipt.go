package types

import "math/big"

// Receipt status values (post-Byzantium).
const (
	ReceiptStatusFailed     = uint64(0)
	ReceiptStatusSuccessful = uint64(1)
)

// Receipt represents the result of a transaction. Pre-Byzantium receipts
// commit to the intermediate state root; post-Byzantium receipts carry a
// boolean status instead.
type Receipt struct {
	// Consensus fields.
	Type              uint8
	PostState         []byte // intermediate state root, pre-Byzantium only
	Status            uint64
	CumulativeGasUsed uint64
	Bloom             Bloom
	Logs              []*Log

	// Derived fields, filled in during block processing.
	TxHash            Hash
	ContractAddress   Address
	GasUsed           uint64
	EffectiveGasPrice *big.Int

	// EIP-4844 blob fields.
	BlobGasUsed  uint64
	BlobGasPrice *big.Int

	// Inclusion information.
	BlockHash        Hash
	BlockNumber      *big.Int
	TransactionIndex uint
}

// NewReceipt creates a receipt with the given status and cumulative gas.
func NewReceipt(status uint64, cumulativeGasUsed uint64) *Receipt {
	return &Receipt{
		Status:            status,
		CumulativeGasUsed: cumulativeGasUsed,
	}
}

// Succeeded reports whether the receipt indicates success.
func (r *Receipt) Succeeded() bool {
	return r.Status == ReceiptStatusSuccessful
}

// DeriveReceiptFields populates derived fields on a block's receipts:
// block context, per-transaction hashes, and global log indices.
func DeriveReceiptFields(receipts []*Receipt, blockHash Hash, blockNumber uint64, txs []*Transaction) {
	var logIndex uint
	for i, receipt := range receipts {
		receipt.BlockHash = blockHash
		receipt.BlockNumber = new(big.Int).SetUint64(blockNumber)
		receipt.TransactionIndex = uint(i)
		if i < len(txs) {
			receipt.TxHash = txs[i].Hash()
		}
		for _, l := range receipt.Logs {
			l.BlockHash = blockHash
			l.BlockNumber = blockNumber
			l.TxIndex = uint(i)
			l.Index = logIndex
			if i < len(txs) {
				l.TxHash = txs[i].Hash()
			}
			logIndex++
		}
	}
}
