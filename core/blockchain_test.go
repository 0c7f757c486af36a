package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/types"
)

func newTestChain(t *testing.T, alloc GenesisAlloc) *Blockchain {
	t.Helper()
	genesis := &Genesis{
		Config:     AllForksConfig,
		GasLimit:   30_000_000,
		Difficulty: new(big.Int),
		Alloc:      alloc,
	}
	bc, err := NewBlockchain(rawdb.NewMemoryDB(), genesis)
	require.NoError(t, err)
	return bc
}

// buildBlock assembles an importable block through the chain's builder.
func buildBlock(t *testing.T, bc *Blockchain, parent *types.Header, coinbase types.Address, body *types.Body) *types.Block {
	t.Helper()
	block, err := bc.BuildBlock(parent, coinbase, parent.Time+1, body)
	require.NoError(t, err)
	return block
}

func TestImportEmptyBlock(t *testing.T) {
	bc := newTestChain(t, nil)
	genesisHeader := bc.CurrentHeader()

	block := buildBlock(t, bc, genesisHeader, types.BytesToAddress([]byte{0xcc}), nil)
	result, err := bc.ImportBlock(block)
	require.NoError(t, err)

	require.Equal(t, block.Hash(), bc.CurrentHeader().Hash())
	require.Equal(t, []types.Hash{block.Hash()}, result.NewCanonical)
	require.Empty(t, result.OldCanonical)
	require.NotNil(t, result.Witness)

	canonical, err := bc.HeaderChain().GetCanonicalHash(1)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), canonical)
}

func TestImportBlockWithTransfer(t *testing.T) {
	sender := newTestAccount(t)
	recipient := types.BytesToAddress([]byte{0xbb})
	initial := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	bc := newTestChain(t, GenesisAlloc{
		sender.addr: {Balance: initial},
	})
	signer := bc.Config().MakeSigner(big.NewInt(1), 1)

	tx := sender.signTx(t, signer, types.NewTransaction(&types.DynamicFeeTx{
		ChainID:   bc.Config().ChainID,
		Nonce:     0,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2 * InitialBaseFee),
		Gas:       21000,
		To:        &recipient,
		Value:     big.NewInt(100),
	}))

	block := buildBlock(t, bc, bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), &types.Body{
		Transactions: []*types.Transaction{tx},
	})
	_, err := bc.ImportBlock(block)
	require.NoError(t, err)

	// Receipts and lookups are persisted.
	receipts, err := bc.GetReceipts(block.Hash())
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	require.Equal(t, uint64(21000), receipts[0].CumulativeGasUsed)

	pos, err := rawdb.ReadTxLookup(bc.db, tx.Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(1), pos.BlockNumber)
	require.Equal(t, uint64(0), pos.Index)

	// The post-state is live at the new head.
	headState, err := bc.StateAt(block.Hash())
	require.NoError(t, err)
	require.Equal(t, int64(100), headState.GetBalance(recipient).Int64())
	require.Equal(t, uint64(1), headState.GetNonce(sender.addr))

	// Round trip the stored block.
	stored, err := bc.GetBlock(block.Hash())
	require.NoError(t, err)
	require.Equal(t, block.Hash(), stored.Hash())
	require.Len(t, stored.Transactions(), 1)
}

func TestImportWithdrawalCredit(t *testing.T) {
	validator := types.BytesToAddress([]byte{0xfa})
	bc := newTestChain(t, nil)

	block := buildBlock(t, bc, bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), &types.Body{
		Withdrawals: []*types.Withdrawal{{
			Index:          0,
			ValidatorIndex: 3,
			Address:        validator,
			Amount:         1_000_000_000, // 1 gwei * 1e9 = 1 ether
		}},
	})
	_, err := bc.ImportBlock(block)
	require.NoError(t, err)

	headState, err := bc.StateAt(block.Hash())
	require.NoError(t, err)
	want := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	require.Zero(t, want.Cmp(headState.GetBalance(validator)))

	pos, err := rawdb.ReadWithdrawalLookup(bc.db, block.Withdrawals()[0].Hash())
	require.NoError(t, err)
	require.Equal(t, uint64(1), pos.BlockNumber)
}

func TestImportRejectsBadStateRoot(t *testing.T) {
	bc := newTestChain(t, nil)
	head := bc.CurrentHeader()

	block := buildBlock(t, bc, head, types.BytesToAddress([]byte{0xcc}), nil)
	tampered := block.Header()
	tampered.Root = types.BytesToHash([]byte{0xde, 0xad})
	bad := block.WithHeader(tampered)

	_, err := bc.ImportBlock(bad)
	require.ErrorIs(t, err, ErrStateRootMismatch)
	require.Equal(t, head.Hash(), bc.CurrentHeader().Hash(), "head unchanged after rejection")
}

func TestImportKnownBlockRejected(t *testing.T) {
	bc := newTestChain(t, nil)
	block := buildBlock(t, bc, bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), nil)

	_, err := bc.ImportBlock(block)
	require.NoError(t, err)
	_, err = bc.ImportBlock(block)
	require.ErrorIs(t, err, ErrKnownBlock)
}

func TestImportSideChainBlock(t *testing.T) {
	bc := newTestChain(t, nil)
	genesisHeader := bc.CurrentHeader()

	blockA := buildBlock(t, bc, genesisHeader, types.BytesToAddress([]byte{0xaa}), nil)
	_, err := bc.ImportBlock(blockA)
	require.NoError(t, err)

	// A competing child of genesis with equal score stays on the side.
	blockB := buildBlock(t, bc, genesisHeader, types.BytesToAddress([]byte{0xbb}), nil)
	result, err := bc.ImportBlock(blockB)
	require.NoError(t, err)
	require.Empty(t, result.NewCanonical)
	require.Equal(t, blockA.Hash(), bc.CurrentHeader().Hash())

	// Both headers are persisted regardless.
	require.True(t, bc.HeaderChain().HasHeader(blockA.Hash()))
	require.True(t, bc.HeaderChain().HasHeader(blockB.Hash()))
}

func TestChainGapsTrackImports(t *testing.T) {
	bc := newTestChain(t, nil)
	block := buildBlock(t, bc, bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), nil)
	_, err := bc.ImportBlock(block)
	require.NoError(t, err)

	gaps, err := bc.HeaderChain().ChainGaps()
	require.NoError(t, err)
	require.Empty(t, gaps.Gaps)
	require.Equal(t, uint64(2), gaps.TipChild)
}

func TestHeaderValidationRejectsBadTimestamp(t *testing.T) {
	bc := newTestChain(t, nil)
	head := bc.CurrentHeader()

	block := buildBlock(t, bc, head, types.BytesToAddress([]byte{0xcc}), nil)
	tampered := block.Header()
	tampered.Time = head.Time // not strictly increasing
	_, err := bc.ImportBlock(block.WithHeader(tampered))
	require.ErrorIs(t, err, ErrInvalidTimestamp)
}

func TestGasLimitBounds(t *testing.T) {
	v := NewBlockValidator(AllForksConfig)
	parent := &types.Header{
		Number:   big.NewInt(1),
		GasLimit: 1024_000,
		Time:     1,
	}
	// Movement below the bound is accepted, at or above rejected.
	require.NoError(t, v.validateGasLimit(&types.Header{Number: big.NewInt(2), GasLimit: 1024_999}, parent))
	require.Error(t, v.validateGasLimit(&types.Header{Number: big.NewInt(2), GasLimit: 1025_000}, parent))
	require.Error(t, v.validateGasLimit(&types.Header{Number: big.NewInt(2), GasLimit: 1023_000}, parent))
}
