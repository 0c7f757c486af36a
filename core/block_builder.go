package core

import (
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/trie"
)

// BuildBlock assembles a sealable block on top of parent: it creates the
// child header with protocol defaults, executes the body against the
// supplied parent state, and fills in every commitment (state root, gas
// used, bloom, transaction/receipt/withdrawal roots, blob gas). The
// caller supplies a state copy it is willing to discard; mining nonce
// search is out of scope, so post-merge headers come back ready to
// import.
func (bc *Blockchain) BuildBlock(parent *types.Header, coinbase types.Address, time uint64, body *types.Body) (*types.Block, error) {
	config := bc.Config()
	header := config.CreateHeaderFromParent(parent, coinbase, time)

	if body == nil {
		body = &types.Body{}
	}
	if body.Withdrawals == nil && config.IsShanghai(header.Time) {
		body.Withdrawals = []*types.Withdrawal{}
	}

	parentState, err := bc.StateAt(parent.Hash())
	if err != nil {
		return nil, err
	}

	draft := types.NewBlock(header, body)
	result, err := bc.processor.Process(draft, parentState.Copy())
	if err != nil {
		return nil, err
	}

	header.Root = result.StateRoot
	header.GasUsed = result.GasUsed
	header.Bloom = result.LogsBloom

	txRoot, err := trie.DeriveRoot(trie.Transactions(body.Transactions))
	if err != nil {
		return nil, err
	}
	header.TxHash = txRoot

	receiptRoot, err := trie.DeriveRoot(trie.Receipts(result.Receipts))
	if err != nil {
		return nil, err
	}
	header.ReceiptHash = receiptRoot

	if config.IsShanghai(header.Time) {
		wdRoot, err := trie.DeriveRoot(trie.Withdrawals(body.Withdrawals))
		if err != nil {
			return nil, err
		}
		header.WithdrawalsHash = &wdRoot
	}
	if config.IsCancun(header.Time) {
		blobGasUsed := result.BlobGasUsed
		header.BlobGasUsed = &blobGasUsed
	}
	return types.NewBlock(header, body), nil
}
