package rawdb

import (
	"encoding/binary"

	"github.com/evmcore/evmcore/core/types"
)

// Database schema. Headers, trie nodes, and code are stored
// content-addressed under their keccak hash. Uncle lists have no key of
// their own; they are stored only inside the block body. Everything else
// lives under an explicit prefix:
//
//	keccak(rlp(header))                  -> rlp(header)
//	block-number-to-hash:<u64 BE>        -> rlp(hash)
//	block-hash-to-score:<hash>           -> rlp(u256 cumulative difficulty)
//	transaction-hash-to-block:<hash>     -> rlp((block number, tx index))
//	withdrawal-hash-to-block:<hash>      -> rlp((block number, wd index))
//	v1:canonical_head_hash               -> hash
//	v1:header_chain_gaps                 -> rlp(ChainGaps)
//	block-body:<hash>                    -> rlp(body)
//	block-receipts:<hash>                -> rlp([receipt...])
//	keccak(code)                         -> code
//	keccak(node_rlp)                     -> node_rlp
var (
	blockNumberToHashPrefix = []byte("block-number-to-hash:")
	blockHashToScorePrefix  = []byte("block-hash-to-score:")
	txHashToBlockPrefix     = []byte("transaction-hash-to-block:")
	wdHashToBlockPrefix     = []byte("withdrawal-hash-to-block:")
	blockBodyPrefix         = []byte("block-body:")
	blockReceiptsPrefix     = []byte("block-receipts:")

	canonicalHeadKey = []byte("v1:canonical_head_hash")
	chainGapsKey     = []byte("v1:header_chain_gaps")
)

// encodeBlockNumber encodes a block number as 8 big-endian bytes.
func encodeBlockNumber(number uint64) []byte {
	enc := make([]byte, 8)
	binary.BigEndian.PutUint64(enc, number)
	return enc
}

func blockNumberToHashKey(number uint64) []byte {
	return append(append([]byte{}, blockNumberToHashPrefix...), encodeBlockNumber(number)...)
}

func blockHashToScoreKey(hash types.Hash) []byte {
	return append(append([]byte{}, blockHashToScorePrefix...), hash[:]...)
}

func txHashToBlockKey(hash types.Hash) []byte {
	return append(append([]byte{}, txHashToBlockPrefix...), hash[:]...)
}

func wdHashToBlockKey(hash types.Hash) []byte {
	return append(append([]byte{}, wdHashToBlockPrefix...), hash[:]...)
}

func blockBodyKey(hash types.Hash) []byte {
	return append(append([]byte{}, blockBodyPrefix...), hash[:]...)
}

func blockReceiptsKey(hash types.Hash) []byte {
	return append(append([]byte{}, blockReceiptsPrefix...), hash[:]...)
}
