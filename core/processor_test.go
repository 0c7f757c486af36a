package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

// A block with several transactions: cumulative gas strictly increases
// by each receipt's own usage, log indices are block-global, and the
// persisted receipts agree with the header commitments.
func TestMultiTransactionBlockAccounting(t *testing.T) {
	sender := newTestAccount(t)
	logContract := types.BytesToAddress([]byte{0xdd})
	recipient := types.BytesToAddress([]byte{0xbb})

	bc := newTestChain(t, GenesisAlloc{
		sender.addr: {Balance: new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)},
		logContract: {Code: []byte{
			// LOG1 with topic 7 over empty data, twice.
			0x60, 0x07, // PUSH1 7 (topic)
			0x60, 0x00, // PUSH1 0 (size)
			0x60, 0x00, // PUSH1 0 (offset)
			0xa1,       // LOG1
			0x60, 0x07,
			0x60, 0x00,
			0x60, 0x00,
			0xa1,
			0x00, // STOP
		}},
	})
	signer := bc.Config().MakeSigner(big.NewInt(1), 1)

	makeTx := func(nonce uint64, to types.Address, gas uint64) *types.Transaction {
		return sender.signTx(t, signer, types.NewTransaction(&types.DynamicFeeTx{
			ChainID:   bc.Config().ChainID,
			Nonce:     nonce,
			GasTipCap: big.NewInt(1),
			GasFeeCap: big.NewInt(2 * InitialBaseFee),
			Gas:       gas,
			To:        &to,
			Value:     big.NewInt(1),
		}))
	}

	body := &types.Body{Transactions: []*types.Transaction{
		makeTx(0, recipient, 21000),
		makeTx(1, logContract, 100000),
		makeTx(2, recipient, 21000),
	}}
	block, err := bc.BuildBlock(bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), 1, body)
	require.NoError(t, err)
	_, err = bc.ImportBlock(block)
	require.NoError(t, err)

	receipts, err := bc.GetReceipts(block.Hash())
	require.NoError(t, err)
	require.Len(t, receipts, 3)

	// Cumulative gas telescopes: the per-receipt deltas sum to the
	// header's gas used.
	var prev uint64
	for i, r := range receipts {
		require.Greater(t, r.CumulativeGasUsed, prev, "receipt %d", i)
		prev = r.CumulativeGasUsed
	}
	require.Equal(t, block.GasUsed(), prev)
	require.Equal(t, uint64(21000), receipts[0].CumulativeGasUsed)

	// Two logs from the middle transaction, with block-global indices.
	require.Len(t, receipts[1].Logs, 2)
	require.Equal(t, uint(0), receipts[1].Logs[0].Index)
	require.Equal(t, uint(1), receipts[1].Logs[1].Index)
	require.Equal(t, types.BigToHash(big.NewInt(7)), receipts[1].Logs[0].Topics[0])

	// The header bloom covers the logging contract.
	header := block.Header()
	require.True(t, header.Bloom.Test(logContract.Bytes()))

	// Balances: two value transfers landed on the plain recipient.
	headState, err := bc.StateAt(block.Hash())
	require.NoError(t, err)
	require.Equal(t, int64(2), headState.GetBalance(recipient).Int64())
	require.Equal(t, uint64(3), headState.GetNonce(sender.addr))
}

// Transactions execute strictly in encoding order; a nonce gap aborts
// the whole block with no partial import.
func TestBlockAbortsOnNonceGap(t *testing.T) {
	sender := newTestAccount(t)
	recipient := types.BytesToAddress([]byte{0xbb})

	bc := newTestChain(t, GenesisAlloc{
		sender.addr: {Balance: big.NewInt(1e18)},
	})
	signer := bc.Config().MakeSigner(big.NewInt(1), 1)

	tx := sender.signTx(t, signer, types.NewTransaction(&types.DynamicFeeTx{
		ChainID:   bc.Config().ChainID,
		Nonce:     5, // gap
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2 * InitialBaseFee),
		Gas:       21000,
		To:        &recipient,
		Value:     big.NewInt(1),
	}))

	_, err := bc.BuildBlock(bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), 1, &types.Body{
		Transactions: []*types.Transaction{tx},
	})
	require.ErrorIs(t, err, ErrNonceTooHigh)
	require.Equal(t, uint64(0), bc.CurrentHeader().NumberU64())
}

// Pre-merge blocks credit the static coinbase reward during
// finalization; post-Paris blocks pay nothing.
func TestBlockRewardCredited(t *testing.T) {
	coinbase := types.BytesToAddress([]byte{0xcc})
	header := &types.Header{
		Number:     big.NewInt(1),
		GasLimit:   5000,
		Time:       10,
		Coinbase:   coinbase,
		Difficulty: big.NewInt(131072),
	}
	block := types.NewBlock(header, nil)

	statedb := state.New(rawdb.NewMemoryDB())
	result, err := NewStateProcessor(FrontierConfig).Process(block, statedb)
	require.NoError(t, err)
	require.NotEqual(t, types.EmptyRootHash, result.StateRoot)

	want := new(big.Int).Mul(big.NewInt(5), big.NewInt(1e18))
	require.Zero(t, want.Cmp(statedb.GetBalance(coinbase)))

	// Post-merge the reward is zero.
	require.Zero(t, AllForksConfig.BlockReward(big.NewInt(1)).Sign())
	require.Zero(t, AllForksConfig.BlockReward(header.Number).Sign())
}

func TestWithdrawalsEmptyAccountSweep(t *testing.T) {
	// A zero-amount withdrawal touches its target; the target must not
	// survive as an empty account in the post state.
	bc := newTestChain(t, nil)
	target := types.BytesToAddress([]byte{0xf0})

	block, err := bc.BuildBlock(bc.CurrentHeader(), types.BytesToAddress([]byte{0xcc}), 1, &types.Body{
		Withdrawals: []*types.Withdrawal{{Index: 0, Address: target, Amount: 0}},
	})
	require.NoError(t, err)
	_, err = bc.ImportBlock(block)
	require.NoError(t, err)

	headState, err := bc.StateAt(block.Hash())
	require.NoError(t, err)
	require.False(t, headState.Exist(target))
}
