package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

func TestGenesisHeaderDefaults(t *testing.T) {
	g := &Genesis{
		Config:     FrontierConfig,
		GasLimit:   5000,
		Difficulty: big.NewInt(131072),
		Nonce:      66,
		Timestamp:  0,
	}
	header, err := g.ToHeader(nil)
	require.NoError(t, err)

	require.Equal(t, GenesisParentHash, header.ParentHash)
	require.Equal(t, types.EmptyUncleHash, header.UncleHash)
	require.Equal(t, types.EmptyRootHash, header.TxHash)
	require.Equal(t, types.EmptyRootHash, header.ReceiptHash)
	require.Equal(t, types.Bloom{}, header.Bloom)
	require.Zero(t, header.Number.Sign())
	require.Zero(t, header.GasUsed)
	require.Equal(t, types.EncodeNonce(66), header.Nonce)
	require.Nil(t, header.BaseFee, "no base fee before London")
	require.Nil(t, header.WithdrawalsHash)
}

func TestGenesisAllocRoot(t *testing.T) {
	addr := types.BytesToAddress([]byte{0x01})
	g := &Genesis{
		Config:     FrontierConfig,
		GasLimit:   5000,
		Difficulty: big.NewInt(131072),
		Alloc: GenesisAlloc{
			addr: {Balance: big.NewInt(1e18), Nonce: 1},
		},
	}
	statedb := state.New(rawdb.NewMemoryDB())
	g.applyAlloc(statedb)
	header, err := g.ToHeader(statedb)
	require.NoError(t, err)
	require.NotEqual(t, types.EmptyRootHash, header.Root)

	// An empty allocation commits the empty root.
	empty := &Genesis{Config: FrontierConfig, GasLimit: 5000, Difficulty: big.NewInt(1)}
	emptyHeader, err := empty.ToHeader(state.New(rawdb.NewMemoryDB()))
	require.NoError(t, err)
	require.Equal(t, types.EmptyRootHash, emptyHeader.Root)
}

func TestGenesisStateRootOverride(t *testing.T) {
	want := types.BytesToHash([]byte{0x42})
	g := &Genesis{
		Config:     FrontierConfig,
		GasLimit:   5000,
		Difficulty: big.NewInt(1),
		StateRoot:  &want,
	}
	header, err := g.ToHeader(state.New(rawdb.NewMemoryDB()))
	require.NoError(t, err)
	require.Equal(t, want, header.Root)
}

func TestGenesisCommitPersistsChainData(t *testing.T) {
	db := rawdb.NewMemoryDB()
	g := &Genesis{
		Config:     AllForksConfig,
		GasLimit:   30_000_000,
		Difficulty: new(big.Int),
		Alloc: GenesisAlloc{
			types.BytesToAddress([]byte{0x01}): {Balance: big.NewInt(5)},
		},
	}
	block, statedb, err := g.Commit(db)
	require.NoError(t, err)
	require.NotNil(t, statedb)

	head, err := rawdb.ReadCanonicalHead(db)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), head)

	canonical, err := rawdb.ReadCanonicalHash(db, 0)
	require.NoError(t, err)
	require.Equal(t, block.Hash(), canonical)

	score, err := rawdb.ReadScore(db, block.Hash())
	require.NoError(t, err)
	require.Zero(t, score.Sign())

	gaps, err := rawdb.ReadChainGaps(db)
	require.NoError(t, err)
	require.Equal(t, rawdb.GenesisChainGaps(), gaps)

	header, err := rawdb.ReadHeader(db, block.Hash())
	require.NoError(t, err)
	require.Equal(t, block.Hash(), header.Hash())

	// London genesis gets the initial base fee; Cancun genesis carries
	// zeroed blob fields.
	require.Zero(t, header.BaseFee.Cmp(big.NewInt(InitialBaseFee)))
	require.NotNil(t, header.ExcessBlobGas)
	require.Zero(t, *header.ExcessBlobGas)
}

func TestEstimateGasTransfer(t *testing.T) {
	config := AllForksConfig
	sender := newTestAccount(t)
	recipient := types.BytesToAddress([]byte{0xbb})

	statedb := state.New(rawdb.NewMemoryDB())
	statedb.AddBalance(sender.addr, big.NewInt(1e18))
	statedb.Finalise(false)

	header := testHeader(config, types.BytesToAddress([]byte{0xcc}))
	msg := &Message{
		From:      sender.addr,
		To:        &recipient,
		Value:     big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		GasTipCap: new(big.Int),
		TxType:    types.DynamicFeeTxType,
	}
	gas, err := EstimateGas(config, statedb, header, msg)
	require.NoError(t, err)
	require.Equal(t, uint64(21000), gas)
}
