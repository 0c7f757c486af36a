package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/types"
)

func feeParent(gasLimit, gasUsed uint64, baseFee int64) *types.Header {
	return &types.Header{
		Number:   big.NewInt(10),
		GasLimit: gasLimit,
		GasUsed:  gasUsed,
		BaseFee:  big.NewInt(baseFee),
	}
}

func TestBaseFeeUnchangedAtTarget(t *testing.T) {
	parent := feeParent(16_000_000, 8_000_000, 1_000_000_000)
	require.Zero(t, CalcBaseFee(parent).Cmp(parent.BaseFee))
}

func TestBaseFeeIncreasesAboveTarget(t *testing.T) {
	parent := feeParent(16_000_000, 16_000_000, 1_000_000_000)
	child := CalcBaseFee(parent)
	require.Positive(t, child.Cmp(parent.BaseFee))
	// Full blocks move the fee up by exactly 12.5%.
	require.Zero(t, child.Cmp(big.NewInt(1_125_000_000)))
}

func TestBaseFeeMinimumIncrease(t *testing.T) {
	// Tiny base fee still moves by at least 1 wei.
	parent := feeParent(16_000_000, 8_000_001, 1)
	require.Zero(t, CalcBaseFee(parent).Cmp(big.NewInt(2)))
}

func TestBaseFeeDecreasesBelowTarget(t *testing.T) {
	parent := feeParent(16_000_000, 4_000_000, 1_000_000_000)
	child := CalcBaseFee(parent)
	require.Negative(t, child.Cmp(parent.BaseFee))
}

func TestBaseFeeEmptyBlockExactStep(t *testing.T) {
	// An empty block shrinks the base fee by exactly 12.5%.
	parent := feeParent(16_000_000, 0, 800)
	require.Zero(t, CalcBaseFee(parent).Cmp(big.NewInt(700)))
}

func TestBaseFeeLondonTransition(t *testing.T) {
	parent := &types.Header{
		Number:   big.NewInt(1),
		GasLimit: 16_000_000,
		GasUsed:  16_000_000,
	}
	require.Zero(t, CalcBaseFee(parent).Cmp(big.NewInt(InitialBaseFee)))
}

func TestBaseFeeFloorsAtZero(t *testing.T) {
	parent := feeParent(16_000_000, 0, 0)
	require.Zero(t, CalcBaseFee(parent).Sign())
}

func TestBlobBaseFeeEvolution(t *testing.T) {
	// Zero excess yields the minimum fee.
	require.Zero(t, CalcBlobBaseFee(0).Cmp(big.NewInt(int64(MinBlobBaseFee))))

	// The fee grows monotonically with excess blob gas.
	low := CalcBlobBaseFee(TargetBlobGasPerBlock)
	high := CalcBlobBaseFee(10 * TargetBlobGasPerBlock)
	require.Positive(t, high.Cmp(low))
}

func TestExcessBlobGasEvolution(t *testing.T) {
	// Below target drains to zero.
	require.Zero(t, CalcExcessBlobGas(0, BlobGasPerBlob))
	// Above target accumulates the surplus.
	require.Equal(t, BlobGasPerBlob,
		CalcExcessBlobGas(TargetBlobGasPerBlock, BlobGasPerBlob))
	require.Equal(t, MaxBlobGasPerBlock-TargetBlobGasPerBlock,
		CalcExcessBlobGas(0, MaxBlobGasPerBlock))
}

func TestEffectiveGasPrice(t *testing.T) {
	msg := &Message{
		GasFeeCap: big.NewInt(150),
		GasTipCap: big.NewInt(80),
	}
	// min(150, 100+80) = 150.
	require.Zero(t, EffectiveGasPrice(msg, big.NewInt(100)).Cmp(big.NewInt(150)))
	require.Zero(t, EffectiveTip(msg, big.NewInt(100)).Cmp(big.NewInt(50)))

	// Tip-bounded case: min(150, 100+20) = 120.
	msg.GasTipCap = big.NewInt(20)
	require.Zero(t, EffectiveGasPrice(msg, big.NewInt(100)).Cmp(big.NewInt(120)))
	require.Zero(t, EffectiveTip(msg, big.NewInt(100)).Cmp(big.NewInt(20)))

	// Legacy: the raw gas price.
	legacy := &Message{GasPrice: big.NewInt(7)}
	require.Zero(t, EffectiveGasPrice(legacy, nil).Cmp(big.NewInt(7)))
	require.Zero(t, EffectiveTip(legacy, nil).Cmp(big.NewInt(7)))
}

func TestDifficultyPostMergeIsZero(t *testing.T) {
	parent := &types.Header{
		Number:     big.NewInt(5),
		Difficulty: big.NewInt(1000),
		Time:       100,
		UncleHash:  types.EmptyUncleHash,
	}
	require.Zero(t, AllForksConfig.CalcDifficulty(big.NewInt(6), 112, parent).Sign())
}

func TestDifficultyFrontier(t *testing.T) {
	config := FrontierConfig
	parent := &types.Header{
		Number:     big.NewInt(100),
		Difficulty: big.NewInt(131072 * 16),
		Time:       100,
		UncleHash:  types.EmptyUncleHash,
	}
	// Fast child: difficulty rises.
	fast := config.CalcDifficulty(big.NewInt(101), 105, parent)
	require.Positive(t, fast.Cmp(parent.Difficulty))
	// Slow child: difficulty falls.
	slow := config.CalcDifficulty(big.NewInt(101), 120, parent)
	require.Negative(t, slow.Cmp(parent.Difficulty))
	// Never below the minimum.
	small := &types.Header{
		Number:     big.NewInt(100),
		Difficulty: big.NewInt(131072),
		Time:       100,
		UncleHash:  types.EmptyUncleHash,
	}
	require.Zero(t, config.CalcDifficulty(big.NewInt(101), 120, small).Cmp(big.NewInt(131072)))
}
