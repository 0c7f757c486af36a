package core

import (
	"fmt"
	"math/big"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/log"
)

// headerCacheSize bounds the decoded-header LRU. The cache is owned by
// the HeaderChain instance so test isolation and teardown are trivial.
const headerCacheSize = 512

// HeaderChain manages header persistence: content-addressed header
// storage, the canonical number index, cumulative difficulty scores, and
// chain-gap tracking.
type HeaderChain struct {
	db     rawdb.Database
	config *ChainConfig
	logger *log.Logger

	headerCache *lru.Cache[types.Hash, *types.Header]

	currentHeader *types.Header
}

// NewHeaderChain opens a header chain over db. The genesis header must
// already be persisted (see Genesis.Commit).
func NewHeaderChain(db rawdb.Database, config *ChainConfig) (*HeaderChain, error) {
	cache, err := lru.New[types.Hash, *types.Header](headerCacheSize)
	if err != nil {
		return nil, err
	}
	hc := &HeaderChain{
		db:          db,
		config:      config,
		logger:      log.Default().Module("chain"),
		headerCache: cache,
	}
	headHash, err := rawdb.ReadCanonicalHead(db)
	if err != nil {
		return nil, fmt.Errorf("header chain without canonical head: %w", err)
	}
	head, err := hc.GetHeader(headHash)
	if err != nil {
		return nil, err
	}
	hc.currentHeader = head
	return hc, nil
}

// CurrentHeader returns the canonical head header.
func (hc *HeaderChain) CurrentHeader() *types.Header {
	return hc.currentHeader
}

// GetHeader retrieves a header by hash, through the decode cache.
func (hc *HeaderChain) GetHeader(hash types.Hash) (*types.Header, error) {
	if header, ok := hc.headerCache.Get(hash); ok {
		return header, nil
	}
	header, err := rawdb.ReadHeader(hc.db, hash)
	if err != nil {
		return nil, err
	}
	hc.headerCache.Add(hash, header)
	return header, nil
}

// HasHeader reports whether a header is known.
func (hc *HeaderChain) HasHeader(hash types.Hash) bool {
	if hc.headerCache.Contains(hash) {
		return true
	}
	return rawdb.HasHeader(hc.db, hash)
}

// GetHeaderByNumber returns the canonical header at the given height.
func (hc *HeaderChain) GetHeaderByNumber(number uint64) (*types.Header, error) {
	hash, err := rawdb.ReadCanonicalHash(hc.db, number)
	if err != nil {
		return nil, err
	}
	return hc.GetHeader(hash)
}

// GetCanonicalHash returns the canonical hash at the given height.
func (hc *HeaderChain) GetCanonicalHash(number uint64) (types.Hash, error) {
	return rawdb.ReadCanonicalHash(hc.db, number)
}

// GetScore returns the cumulative difficulty of a block.
func (hc *HeaderChain) GetScore(hash types.Hash) (*big.Int, error) {
	return rawdb.ReadScore(hc.db, hash)
}

// WriteHeader persists a header, its cumulative difficulty score, and
// the chain-gap update for its number. It does not touch the canonical
// index.
func (hc *HeaderChain) WriteHeader(header *types.Header) error {
	parentScore, err := rawdb.ReadScore(hc.db, header.ParentHash)
	if err != nil {
		return fmt.Errorf("parent score missing for %s: %w", header.ParentHash.Hex(), err)
	}
	score := new(big.Int).Add(parentScore, header.Difficulty)

	hash, err := rawdb.WriteHeader(hc.db, header)
	if err != nil {
		return err
	}
	if err := rawdb.WriteScore(hc.db, hash, score); err != nil {
		return err
	}
	hc.headerCache.Add(hash, header)

	// Idempotent gap bookkeeping.
	gaps, err := rawdb.ReadChainGaps(hc.db)
	if err != nil {
		return err
	}
	change, updated, err := rawdb.CalculateGaps(header.NumberU64(), gaps)
	if err != nil {
		return err
	}
	if change != rawdb.GapNoChange {
		if err := rawdb.WriteChainGaps(hc.db, updated); err != nil {
			return err
		}
	}
	return nil
}

// SetCanonicalHead updates the canonical head pointer.
func (hc *HeaderChain) SetCanonicalHead(header *types.Header) error {
	if err := rawdb.WriteCanonicalHead(hc.db, header.Hash()); err != nil {
		return err
	}
	hc.currentHeader = header
	return nil
}

// GetAncestorHash returns the canonical hash indexed at the given number,
// for the BLOCKHASH opcode, or the zero hash when none is indexed.
func (hc *HeaderChain) GetAncestorHash(number uint64) types.Hash {
	hash, err := rawdb.ReadCanonicalHash(hc.db, number)
	if err != nil {
		return types.Hash{}
	}
	return hash
}

// ChainGaps returns the current header gap state.
func (hc *HeaderChain) ChainGaps() (rawdb.ChainGaps, error) {
	return rawdb.ReadChainGaps(hc.db)
}
