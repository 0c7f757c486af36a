package core

import (
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/core/vm"
	"github.com/evmcore/evmcore/log"
	"github.com/evmcore/evmcore/trie"
)

// StateProcessor executes full blocks against a StateDB: transactions in
// encoding order, then withdrawals, then the post-state commitments.
type StateProcessor struct {
	config  *ChainConfig
	getHash vm.GetHashFunc
	logger  *log.Logger
}

// NewStateProcessor creates a processor for the given chain config.
func NewStateProcessor(config *ChainConfig) *StateProcessor {
	return &StateProcessor{
		config: config,
		logger: log.Default().Module("core"),
	}
}

// SetGetHash installs the ancestor-hash lookup used by BLOCKHASH.
func (p *StateProcessor) SetGetHash(fn vm.GetHashFunc) {
	p.getHash = fn
}

// ProcessResult holds the outputs of block execution.
type ProcessResult struct {
	Receipts    []*types.Receipt
	GasUsed     uint64
	BlobGasUsed uint64
	LogsBloom   types.Bloom
	StateRoot   types.Hash
}

// Process executes all transactions of a block sequentially, applies
// withdrawals, and computes the final state root. The header's own
// commitment fields are validated separately by ValidatePostState.
func (p *StateProcessor) Process(block *types.Block, statedb *state.StateDB) (*ProcessResult, error) {
	var (
		header  = block.Header()
		gasPool = new(GasPool).AddGas(header.GasLimit)

		receipts          []*types.Receipt
		cumulativeGasUsed uint64
		cumulativeBlobGas uint64
	)

	if p.config.IsLondon(header.Number) && header.BaseFee == nil {
		return nil, ErrInvalidBaseFee
	}

	// EIP-4788: expose the parent beacon root before user transactions.
	if p.config.IsCancun(header.Time) && header.ParentBeaconRoot != nil {
		ProcessBeaconBlockRoot(statedb, *header.ParentBeaconRoot, header.Time)
	}

	for i, tx := range block.Transactions() {
		receipt, err := ApplyTransaction(p.config, p.getHash, statedb, header, tx, i, gasPool)
		if err != nil {
			return nil, fmt.Errorf("tx %d [%s]: %w", i, tx.Hash().Hex(), err)
		}

		cumulativeGasUsed += receipt.GasUsed
		receipt.CumulativeGasUsed = cumulativeGasUsed

		if blobGas := tx.BlobGas(); blobGas > 0 {
			cumulativeBlobGas += blobGas
			if cumulativeBlobGas > MaxBlobGasPerBlock {
				return nil, fmt.Errorf("%w: %d > %d", ErrBlobGasExceeded, cumulativeBlobGas, MaxBlobGasPerBlock)
			}
		}
		receipts = append(receipts, receipt)
	}
	types.DeriveReceiptFields(receipts, block.Hash(), header.NumberU64(), block.Transactions())

	// EIP-4895: credit withdrawals after all transactions.
	if p.config.IsShanghai(header.Time) {
		if err := ProcessWithdrawals(statedb, block.Withdrawals()); err != nil {
			return nil, err
		}
	}

	// Pre-merge blocks pay the static coinbase reward; post-Paris it is
	// zero and the validator is compensated on the consensus layer.
	if reward := p.config.BlockReward(header.Number); reward.Sign() > 0 {
		statedb.AddBalance(header.Coinbase, reward)
	}

	if header.BlobGasUsed != nil && *header.BlobGasUsed != cumulativeBlobGas {
		return nil, fmt.Errorf("%w: header %d, computed %d", ErrInvalidBlobGas, *header.BlobGasUsed, cumulativeBlobGas)
	}

	rules := p.config.Rules(header.Number, header.Time)
	stateRoot, err := statedb.IntermediateRoot(rules.IsSpurious)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("processed block",
		"number", header.NumberU64(), "txs", len(block.Transactions()),
		"gasUsed", cumulativeGasUsed, "root", stateRoot.Hex())

	return &ProcessResult{
		Receipts:    receipts,
		GasUsed:     cumulativeGasUsed,
		BlobGasUsed: cumulativeBlobGas,
		LogsBloom:   types.CreateBloom(receipts),
		StateRoot:   stateRoot,
	}, nil
}

// ValidatePostState checks the executed outputs against the header's
// commitments: gas used, state root, receipt root, bloom, and the
// transaction and withdrawal roots.
func ValidatePostState(block *types.Block, result *ProcessResult) error {
	header := block.Header()

	if header.GasUsed != result.GasUsed {
		return fmt.Errorf("%w: header %d, computed %d", ErrGasUsedMismatch, header.GasUsed, result.GasUsed)
	}
	if header.Root != result.StateRoot {
		return fmt.Errorf("%w: header %s, computed %s", ErrStateRootMismatch, header.Root.Hex(), result.StateRoot.Hex())
	}
	if header.Bloom != result.LogsBloom {
		return ErrBloomMismatch
	}

	txRoot, err := trie.DeriveRoot(trie.Transactions(block.Transactions()))
	if err != nil {
		return err
	}
	if header.TxHash != txRoot {
		return fmt.Errorf("%w: header %s, computed %s", ErrTxRootMismatch, header.TxHash.Hex(), txRoot.Hex())
	}

	receiptRoot, err := trie.DeriveRoot(trie.Receipts(result.Receipts))
	if err != nil {
		return err
	}
	if header.ReceiptHash != receiptRoot {
		return fmt.Errorf("%w: header %s, computed %s", ErrReceiptRootMismatch, header.ReceiptHash.Hex(), receiptRoot.Hex())
	}

	if header.WithdrawalsHash != nil {
		wdRoot, err := trie.DeriveRoot(trie.Withdrawals(block.Withdrawals()))
		if err != nil {
			return err
		}
		if *header.WithdrawalsHash != wdRoot {
			return fmt.Errorf("%w: header %s, computed %s", ErrWithdrawalsMismatch, header.WithdrawalsHash.Hex(), wdRoot.Hex())
		}
	}
	return nil
}

// BlockReward returns the static coinbase reward for a block. Post-merge
// blocks pay nothing; the validator is compensated on the consensus
// layer.
func (c *ChainConfig) BlockReward(num *big.Int) *big.Int {
	switch {
	case c.IsParis(num):
		return new(big.Int)
	case c.IsConstantinople(num):
		return new(big.Int).Mul(big.NewInt(2), big.NewInt(1e18))
	case c.IsByzantium(num):
		return new(big.Int).Mul(big.NewInt(3), big.NewInt(1e18))
	default:
		return new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))
	}
}
