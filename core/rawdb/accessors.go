package rawdb

import (
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/rlp"
)

// Header accessors. Headers are content-addressed: the key is the header
// hash (keccak of the RLP encoding).

// WriteHeader stores a header and returns its hash.
func WriteHeader(db Database, header *types.Header) (types.Hash, error) {
	enc, err := header.EncodeRLP()
	if err != nil {
		return types.Hash{}, err
	}
	hash := header.Hash()
	if err := db.Put(hash[:], enc); err != nil {
		return types.Hash{}, err
	}
	return hash, nil
}

// ReadHeader retrieves a header by hash. Returns ErrHeaderNotFound when
// absent.
func ReadHeader(db Database, hash types.Hash) (*types.Header, error) {
	enc, err := db.Get(hash[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrHeaderNotFound, hash.Hex())
	}
	return types.DecodeHeaderRLP(enc)
}

// HasHeader reports whether a header is stored.
func HasHeader(db Database, hash types.Hash) bool {
	ok, _ := db.Has(hash[:])
	return ok
}

// Canonical chain index.

// WriteCanonicalHash maps a block number to its canonical block hash.
func WriteCanonicalHash(db Database, number uint64, hash types.Hash) error {
	enc, err := rlp.EncodeToBytes(hash)
	if err != nil {
		return err
	}
	return db.Put(blockNumberToHashKey(number), enc)
}

// ReadCanonicalHash returns the canonical hash for a block number.
func ReadCanonicalHash(db Database, number uint64) (types.Hash, error) {
	enc, err := db.Get(blockNumberToHashKey(number))
	if err != nil {
		return types.Hash{}, err
	}
	var hash types.Hash
	if err := rlp.DecodeBytes(enc, &hash); err != nil {
		return types.Hash{}, err
	}
	return hash, nil
}

// DeleteCanonicalHash removes the number-to-hash mapping (decanonicalize).
func DeleteCanonicalHash(db Database, number uint64) error {
	return db.Delete(blockNumberToHashKey(number))
}

// WriteCanonicalHead stores the current canonical head hash.
func WriteCanonicalHead(db Database, hash types.Hash) error {
	return db.Put(canonicalHeadKey, hash[:])
}

// ReadCanonicalHead returns the current canonical head hash.
func ReadCanonicalHead(db Database) (types.Hash, error) {
	enc, err := db.Get(canonicalHeadKey)
	if err != nil {
		return types.Hash{}, err
	}
	return types.BytesToHash(enc), nil
}

// Chain score (cumulative difficulty). Unused for fork choice post-Paris
// but preserved in the schema.

// WriteScore stores the cumulative difficulty of a block.
func WriteScore(db Database, hash types.Hash, score *big.Int) error {
	enc, err := rlp.EncodeToBytes(score)
	if err != nil {
		return err
	}
	return db.Put(blockHashToScoreKey(hash), enc)
}

// ReadScore returns the cumulative difficulty of a block.
func ReadScore(db Database, hash types.Hash) (*big.Int, error) {
	enc, err := db.Get(blockHashToScoreKey(hash))
	if err != nil {
		return nil, err
	}
	score := new(big.Int)
	if err := rlp.DecodeBytes(enc, score); err != nil {
		return nil, err
	}
	return score, nil
}

// Transaction and withdrawal lookups: hash -> (block number, index).

// BlockPosition locates a transaction or withdrawal within a block.
type BlockPosition struct {
	BlockNumber uint64
	Index       uint64
}

// WriteTxLookup indexes a transaction hash to its block position.
func WriteTxLookup(db Database, txHash types.Hash, pos BlockPosition) error {
	enc, err := rlp.EncodeToBytes(pos)
	if err != nil {
		return err
	}
	return db.Put(txHashToBlockKey(txHash), enc)
}

// ReadTxLookup returns the block position of a transaction.
func ReadTxLookup(db Database, txHash types.Hash) (BlockPosition, error) {
	enc, err := db.Get(txHashToBlockKey(txHash))
	if err != nil {
		return BlockPosition{}, err
	}
	var pos BlockPosition
	if err := rlp.DecodeBytes(enc, &pos); err != nil {
		return BlockPosition{}, err
	}
	return pos, nil
}

// DeleteTxLookup removes a transaction index entry.
func DeleteTxLookup(db Database, txHash types.Hash) error {
	return db.Delete(txHashToBlockKey(txHash))
}

// WriteWithdrawalLookup indexes a withdrawal hash to its block position.
func WriteWithdrawalLookup(db Database, wdHash types.Hash, pos BlockPosition) error {
	enc, err := rlp.EncodeToBytes(pos)
	if err != nil {
		return err
	}
	return db.Put(wdHashToBlockKey(wdHash), enc)
}

// ReadWithdrawalLookup returns the block position of a withdrawal.
func ReadWithdrawalLookup(db Database, wdHash types.Hash) (BlockPosition, error) {
	enc, err := db.Get(wdHashToBlockKey(wdHash))
	if err != nil {
		return BlockPosition{}, err
	}
	var pos BlockPosition
	if err := rlp.DecodeBytes(enc, &pos); err != nil {
		return BlockPosition{}, err
	}
	return pos, nil
}

// DeleteWithdrawalLookup removes a withdrawal index entry.
func DeleteWithdrawalLookup(db Database, wdHash types.Hash) error {
	return db.Delete(wdHashToBlockKey(wdHash))
}

// Chain gaps.

// WriteChainGaps persists the header chain-gap state.
func WriteChainGaps(db Database, gaps ChainGaps) error {
	enc, err := rlp.EncodeToBytes(gaps)
	if err != nil {
		return err
	}
	return db.Put(chainGapsKey, enc)
}

// ReadChainGaps returns the persisted chain-gap state, or the genesis
// state when none has been written.
func ReadChainGaps(db Database) (ChainGaps, error) {
	enc, err := db.Get(chainGapsKey)
	if err != nil {
		return GenesisChainGaps(), nil
	}
	var gaps ChainGaps
	if err := rlp.DecodeBytes(enc, &gaps); err != nil {
		return ChainGaps{}, fmt.Errorf("%w: %v", ErrGapTrackingCorrupted, err)
	}
	return gaps, nil
}

// Block bodies and receipts, keyed by block hash.

// WriteBody stores a block body.
func WriteBody(db Database, hash types.Hash, body *types.Body) error {
	enc, err := types.EncodeBodyRLP(body)
	if err != nil {
		return err
	}
	return db.Put(blockBodyKey(hash), enc)
}

// ReadBody retrieves a block body.
func ReadBody(db Database, hash types.Hash) (*types.Body, error) {
	enc, err := db.Get(blockBodyKey(hash))
	if err != nil {
		return nil, err
	}
	return types.DecodeBodyRLP(enc)
}

// WriteReceipts stores a block's receipts as a list of their consensus
// encodings (typed envelopes wrapped as byte strings).
func WriteReceipts(db Database, hash types.Hash, receipts []*types.Receipt) error {
	var payload []byte
	for _, r := range receipts {
		enc, err := r.EncodeRLP()
		if err != nil {
			return err
		}
		payload = append(payload, rlp.EncodeBytes(enc)...)
	}
	return db.Put(blockReceiptsKey(hash), rlp.WrapList(payload))
}

// ReadReceipts retrieves a block's receipts.
func ReadReceipts(db Database, hash types.Hash) ([]*types.Receipt, error) {
	enc, err := db.Get(blockReceiptsKey(hash))
	if err != nil {
		return nil, err
	}
	var raws [][]byte
	if err := rlp.DecodeBytes(enc, &raws); err != nil {
		return nil, err
	}
	receipts := make([]*types.Receipt, len(raws))
	for i, raw := range raws {
		if receipts[i], err = types.DecodeReceipt(raw); err != nil {
			return nil, err
		}
	}
	return receipts, nil
}

// Contract code and trie nodes, content-addressed by keccak hash.

// WriteCode stores contract code under its keccak hash.
func WriteCode(db Database, codeHash types.Hash, code []byte) error {
	return db.Put(codeHash[:], code)
}

// ReadCode retrieves contract code by hash.
func ReadCode(db Database, codeHash types.Hash) ([]byte, error) {
	return db.Get(codeHash[:])
}

// NodeStore adapts a Database to the trie node reader/writer interfaces.
type NodeStore struct {
	DB Database
}

// Node resolves a trie node body by hash.
func (s NodeStore) Node(hash types.Hash) ([]byte, error) {
	return s.DB.Get(hash[:])
}

// PutNode stores a trie node body under its hash.
func (s NodeStore) PutNode(hash types.Hash, enc []byte) error {
	return s.DB.Put(hash[:], enc)
}
