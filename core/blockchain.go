package core

import (
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/log"
)

// stateCacheSize bounds the per-block state snapshots retained for
// side-branch execution and reorgs.
const stateCacheSize = 128

// ErrStateUnavailable is returned when a block's parent state has been
// evicted and the branch can no longer be executed.
var ErrStateUnavailable = errors.New("core: parent state unavailable")

// ImportResult describes the outcome of one block import.
type ImportResult struct {
	Block *types.Block

	// NewCanonical and OldCanonical list the blocks that entered and
	// left the canonical chain, oldest first. An import that merely
	// extends the head yields one new block and no old ones.
	NewCanonical []types.Hash
	OldCanonical []types.Hash

	// Witness is the meta witness emitted by state persistence.
	Witness *state.Witness
}

// Blockchain ties the VM to header-indexed persistence: it executes
// imported blocks, validates their commitments, persists chain data, and
// maintains the canonical chain pointer across reorgs.
type Blockchain struct {
	db        rawdb.Database
	config    *ChainConfig
	hc        *HeaderChain
	processor *StateProcessor
	validator *BlockValidator
	logger    *log.Logger

	// states holds post-execution state snapshots by block hash.
	states *lru.Cache[types.Hash, *state.StateDB]

	genesisHash types.Hash

	// ValidateBlocks can be disabled for trusted replays.
	ValidateBlocks bool
}

// NewBlockchain initializes a chain from a genesis spec over the given
// database.
func NewBlockchain(db rawdb.Database, genesis *Genesis) (*Blockchain, error) {
	genesisBlock, statedb, err := genesis.Commit(db)
	if err != nil {
		return nil, err
	}
	hc, err := NewHeaderChain(db, genesis.Config)
	if err != nil {
		return nil, err
	}
	states, err := lru.New[types.Hash, *state.StateDB](stateCacheSize)
	if err != nil {
		return nil, err
	}

	bc := &Blockchain{
		db:             db,
		config:         genesis.Config,
		hc:             hc,
		processor:      NewStateProcessor(genesis.Config),
		validator:      NewBlockValidator(genesis.Config),
		logger:         log.Default().Module("chain"),
		states:         states,
		genesisHash:    genesisBlock.Hash(),
		ValidateBlocks: true,
	}
	bc.processor.SetGetHash(bc.hc.GetAncestorHash)
	bc.states.Add(genesisBlock.Hash(), statedb)
	return bc, nil
}

// Config returns the chain configuration.
func (bc *Blockchain) Config() *ChainConfig { return bc.config }

// CurrentHeader returns the canonical head header.
func (bc *Blockchain) CurrentHeader() *types.Header { return bc.hc.CurrentHeader() }

// HeaderChain exposes the underlying header chain.
func (bc *Blockchain) HeaderChain() *HeaderChain { return bc.hc }

// GetBlock reassembles a block from persisted header and body.
func (bc *Blockchain) GetBlock(hash types.Hash) (*types.Block, error) {
	header, err := bc.hc.GetHeader(hash)
	if err != nil {
		return nil, err
	}
	body, err := rawdb.ReadBody(bc.db, hash)
	if err != nil {
		return nil, err
	}
	return types.NewBlock(header, body), nil
}

// GetReceipts returns the persisted receipts of a block.
func (bc *Blockchain) GetReceipts(hash types.Hash) ([]*types.Receipt, error) {
	return rawdb.ReadReceipts(bc.db, hash)
}

// StateAt returns the retained post-state of a block, if still cached.
func (bc *Blockchain) StateAt(hash types.Hash) (*state.StateDB, error) {
	if st, ok := bc.states.Get(hash); ok {
		return st, nil
	}
	return nil, ErrStateUnavailable
}

// ImportBlock executes and persists a block: header validation, full
// transaction execution, post-state validation, persistence of header,
// body, receipts and lookup indices, and the canonical-chain update with
// reorg handling.
func (bc *Blockchain) ImportBlock(block *types.Block) (*ImportResult, error) {
	hash := block.Hash()
	if bc.hc.HasHeader(hash) {
		return nil, fmt.Errorf("%w: %s", ErrKnownBlock, hash.Hex())
	}

	header := block.Header()
	parent, err := bc.hc.GetHeader(header.ParentHash)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownParent, header.ParentHash.Hex())
	}
	if bc.ValidateBlocks {
		if err := bc.validator.ValidateHeader(header, parent); err != nil {
			return nil, err
		}
	}

	parentState, ok := bc.states.Get(header.ParentHash)
	if !ok {
		return nil, fmt.Errorf("%w: parent %s", ErrStateUnavailable, header.ParentHash.Hex())
	}
	statedb := parentState.Copy()

	result, err := bc.processor.Process(block, statedb)
	if err != nil {
		return nil, err
	}
	if bc.ValidateBlocks {
		if err := ValidatePostState(block, result); err != nil {
			return nil, err
		}
	}

	witness, err := statedb.Persist()
	if err != nil {
		return nil, err
	}
	statedb.Finalise(false)

	// Persist chain data.
	if err := bc.hc.WriteHeader(header); err != nil {
		return nil, err
	}
	if err := rawdb.WriteBody(bc.db, hash, block.Body()); err != nil {
		return nil, err
	}
	if err := rawdb.WriteReceipts(bc.db, hash, result.Receipts); err != nil {
		return nil, err
	}
	bc.states.Add(hash, statedb)

	importResult := &ImportResult{Block: block, Witness: witness}

	// Canonical update. Extending the head is the fast path; otherwise
	// adopt the branch with the higher cumulative difficulty (ties keep
	// the current chain, which also covers post-merge zero-difficulty
	// imports where fork choice is external).
	current := bc.hc.CurrentHeader()
	switch {
	case header.ParentHash == current.Hash():
		if err := bc.canonicalizeBlock(block); err != nil {
			return nil, err
		}
		importResult.NewCanonical = []types.Hash{hash}

	default:
		newScore, err := bc.hc.GetScore(hash)
		if err != nil {
			return nil, err
		}
		currentScore, err := bc.hc.GetScore(current.Hash())
		if err != nil {
			return nil, err
		}
		if newScore.Cmp(currentScore) <= 0 {
			bc.logger.Debug("imported side-chain block",
				"number", header.NumberU64(), "hash", hash.Hex())
			return importResult, nil
		}
		newChain, oldChain, err := bc.reorg(current, header)
		if err != nil {
			return nil, err
		}
		importResult.NewCanonical = newChain
		importResult.OldCanonical = oldChain
	}

	bc.logger.Info("imported block",
		"number", header.NumberU64(), "hash", hash.Hex(),
		"txs", len(block.Transactions()), "gasUsed", result.GasUsed)
	return importResult, nil
}

// canonicalizeBlock indexes a block into the canonical chain and moves
// the head pointer to it.
func (bc *Blockchain) canonicalizeBlock(block *types.Block) error {
	hash := block.Hash()
	number := block.NumberU64()

	if err := rawdb.WriteCanonicalHash(bc.db, number, hash); err != nil {
		return err
	}
	for i, tx := range block.Transactions() {
		err := rawdb.WriteTxLookup(bc.db, tx.Hash(), rawdb.BlockPosition{BlockNumber: number, Index: uint64(i)})
		if err != nil {
			return err
		}
	}
	for i, wd := range block.Withdrawals() {
		err := rawdb.WriteWithdrawalLookup(bc.db, wd.Hash(), rawdb.BlockPosition{BlockNumber: number, Index: uint64(i)})
		if err != nil {
			return err
		}
	}
	return bc.hc.SetCanonicalHead(block.Header())
}

// decanonicalizeBlock removes a block's canonical indices.
func (bc *Blockchain) decanonicalizeBlock(block *types.Block) error {
	if err := rawdb.DeleteCanonicalHash(bc.db, block.NumberU64()); err != nil {
		return err
	}
	for _, tx := range block.Transactions() {
		if err := rawdb.DeleteTxLookup(bc.db, tx.Hash()); err != nil {
			return err
		}
	}
	for _, wd := range block.Withdrawals() {
		if err := rawdb.DeleteWithdrawalLookup(bc.db, wd.Hash()); err != nil {
			return err
		}
	}
	return nil
}

// reorg moves the canonical chain from oldHead's branch to newHead's:
// both branches are walked back to their common ancestor, the old side
// is de-indexed, and the new side is canonicalized oldest-first.
func (bc *Blockchain) reorg(oldHead, newHead *types.Header) (newChain, oldChain []types.Hash, err error) {
	oldCursor, newCursor := oldHead, newHead

	var oldBlocks, newBlocks []*types.Block

	appendOld := func(h *types.Header) error {
		b, err := bc.GetBlock(h.Hash())
		if err != nil {
			return err
		}
		oldBlocks = append(oldBlocks, b)
		return nil
	}
	appendNew := func(h *types.Header) error {
		b, err := bc.GetBlock(h.Hash())
		if err != nil {
			return err
		}
		newBlocks = append(newBlocks, b)
		return nil
	}

	// Level the cursors to equal height.
	for oldCursor.NumberU64() > newCursor.NumberU64() {
		if err := appendOld(oldCursor); err != nil {
			return nil, nil, err
		}
		if oldCursor, err = bc.hc.GetHeader(oldCursor.ParentHash); err != nil {
			return nil, nil, err
		}
	}
	for newCursor.NumberU64() > oldCursor.NumberU64() {
		if err := appendNew(newCursor); err != nil {
			return nil, nil, err
		}
		if newCursor, err = bc.hc.GetHeader(newCursor.ParentHash); err != nil {
			return nil, nil, err
		}
	}
	// Walk both sides down to the common ancestor.
	for oldCursor.Hash() != newCursor.Hash() {
		if err := appendOld(oldCursor); err != nil {
			return nil, nil, err
		}
		if err := appendNew(newCursor); err != nil {
			return nil, nil, err
		}
		if oldCursor, err = bc.hc.GetHeader(oldCursor.ParentHash); err != nil {
			return nil, nil, err
		}
		if newCursor, err = bc.hc.GetHeader(newCursor.ParentHash); err != nil {
			return nil, nil, err
		}
	}

	for _, b := range oldBlocks {
		if err := bc.decanonicalizeBlock(b); err != nil {
			return nil, nil, err
		}
	}
	for i := len(oldBlocks) - 1; i >= 0; i-- {
		oldChain = append(oldChain, oldBlocks[i].Hash())
	}
	// Canonicalize oldest-first.
	for i := len(newBlocks) - 1; i >= 0; i-- {
		if err := bc.canonicalizeBlock(newBlocks[i]); err != nil {
			return nil, nil, err
		}
	}
	for i := len(newBlocks) - 1; i >= 0; i-- {
		newChain = append(newChain, newBlocks[i].Hash())
	}

	bc.logger.Warn("chain reorg",
		"ancestor", oldCursor.NumberU64(),
		"dropped", len(oldChain), "adopted", len(newChain))
	return newChain, oldChain, nil
}
