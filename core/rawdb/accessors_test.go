package rawdb

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/types"
)

func testHeader(number int64) *types.Header {
	return &types.Header{
		ParentHash: types.BytesToHash([]byte{byte(number)}),
		UncleHash:  types.EmptyUncleHash,
		Root:       types.EmptyRootHash,
		TxHash:     types.EmptyRootHash,
		ReceiptHash: types.EmptyRootHash,
		Difficulty: big.NewInt(100),
		Number:     big.NewInt(number),
		GasLimit:   5000,
		Time:       uint64(number * 10),
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	db := NewMemoryDB()
	header := testHeader(7)

	hash, err := WriteHeader(db, header)
	require.NoError(t, err)
	require.Equal(t, header.Hash(), hash)
	require.True(t, HasHeader(db, hash))

	loaded, err := ReadHeader(db, hash)
	require.NoError(t, err)
	require.Equal(t, header.Hash(), loaded.Hash())

	_, err = ReadHeader(db, types.BytesToHash([]byte{0xff}))
	require.ErrorIs(t, err, ErrHeaderNotFound)
}

func TestCanonicalIndex(t *testing.T) {
	db := NewMemoryDB()
	hash := types.BytesToHash([]byte{0x01})

	require.NoError(t, WriteCanonicalHash(db, 5, hash))
	got, err := ReadCanonicalHash(db, 5)
	require.NoError(t, err)
	require.Equal(t, hash, got)

	require.NoError(t, DeleteCanonicalHash(db, 5))
	_, err = ReadCanonicalHash(db, 5)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, WriteCanonicalHead(db, hash))
	head, err := ReadCanonicalHead(db)
	require.NoError(t, err)
	require.Equal(t, hash, head)
}

func TestScoreRoundTrip(t *testing.T) {
	db := NewMemoryDB()
	hash := types.BytesToHash([]byte{0x02})
	score := new(big.Int).Lsh(big.NewInt(1), 100) // beyond uint64

	require.NoError(t, WriteScore(db, hash, score))
	got, err := ReadScore(db, hash)
	require.NoError(t, err)
	require.Zero(t, score.Cmp(got))
}

func TestLookupIndices(t *testing.T) {
	db := NewMemoryDB()
	txHash := types.BytesToHash([]byte{0x03})
	pos := BlockPosition{BlockNumber: 42, Index: 7}

	require.NoError(t, WriteTxLookup(db, txHash, pos))
	got, err := ReadTxLookup(db, txHash)
	require.NoError(t, err)
	require.Equal(t, pos, got)

	require.NoError(t, DeleteTxLookup(db, txHash))
	_, err = ReadTxLookup(db, txHash)
	require.ErrorIs(t, err, ErrNotFound)

	wdHash := types.BytesToHash([]byte{0x04})
	require.NoError(t, WriteWithdrawalLookup(db, wdHash, pos))
	got, err = ReadWithdrawalLookup(db, wdHash)
	require.NoError(t, err)
	require.Equal(t, pos, got)
}

func TestBatchAtomicity(t *testing.T) {
	db := NewMemoryDB()
	batch := db.NewBatch()
	require.NoError(t, batch.Put([]byte("a"), []byte("1")))
	require.NoError(t, batch.Put([]byte("b"), []byte("2")))

	// Nothing lands before Write.
	_, err := db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, batch.Write())
	val, err := db.Get([]byte("a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), val)

	// A batch writes at most once.
	require.ErrorIs(t, batch.Write(), ErrBatchWritten)

	batch.Reset()
	require.NoError(t, batch.Delete([]byte("a")))
	require.NoError(t, batch.Write())
	_, err = db.Get([]byte("a"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCodeRoundTrip(t *testing.T) {
	db := NewMemoryDB()
	code := []byte{0x60, 0x00}
	hash := types.BytesToHash([]byte{0x05})

	require.NoError(t, WriteCode(db, hash, code))
	got, err := ReadCode(db, hash)
	require.NoError(t, err)
	require.Equal(t, code, got)
}
