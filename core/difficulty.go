package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// Proof-of-work difficulty evolution. Post-Paris the difficulty is a PoS
// sentinel zero and none of this applies.

var (
	minimumDifficulty  = big.NewInt(131072)
	difficultyBound    = big.NewInt(2048)
	bombDivisor        = big.NewInt(100000)
	big1               = big.NewInt(1)
	big2               = big.NewInt(2)
	big9               = big.NewInt(9)
	big10              = big.NewInt(10)
	bigMinus99         = big.NewInt(-99)
)

// CalcDifficulty computes the difficulty a child block must carry given
// its timestamp and parent, per the fork rules active at num.
func (c *ChainConfig) CalcDifficulty(num *big.Int, time uint64, parent *types.Header) *big.Int {
	switch {
	case c.IsParis(num):
		return new(big.Int)
	case c.IsGrayGlacier(num):
		return calcDifficultyEIP100(time, parent, 11_400_000)
	case c.IsArrowGlacier(num):
		return calcDifficultyEIP100(time, parent, 10_700_000)
	case c.IsLondon(num):
		return calcDifficultyEIP100(time, parent, 9_700_000)
	case c.IsMuirGlacier(num):
		return calcDifficultyEIP100(time, parent, 9_000_000)
	case c.IsConstantinople(num):
		return calcDifficultyEIP100(time, parent, 5_000_000)
	case c.IsByzantium(num):
		return calcDifficultyEIP100(time, parent, 3_000_000)
	case c.IsHomestead(num):
		return calcDifficultyHomestead(time, parent)
	default:
		return calcDifficultyFrontier(time, parent)
	}
}

// calcDifficultyEIP100 is the Byzantium-era formula with uncle awareness
// and a fork-specific bomb delay.
func calcDifficultyEIP100(time uint64, parent *types.Header, bombDelay uint64) *big.Int {
	// adjust = (2 if parent has uncles else 1) - (time - parent.time)/9,
	// clamped at -99.
	x := new(big.Int).SetUint64(time - parent.Time)
	x.Div(x, big9)
	if parent.UncleHash == types.EmptyUncleHash {
		x.Sub(big1, x)
	} else {
		x.Sub(big2, x)
	}
	if x.Cmp(bigMinus99) < 0 {
		x.Set(bigMinus99)
	}

	step := new(big.Int).Div(parent.Difficulty, difficultyBound)
	diff := new(big.Int).Add(parent.Difficulty, step.Mul(step, x))
	if diff.Cmp(minimumDifficulty) < 0 {
		diff.Set(minimumDifficulty)
	}

	// Fake the block number back to delay the bomb.
	fakeNumber := new(big.Int).Add(parent.Number, big1)
	delay := new(big.Int).SetUint64(bombDelay)
	if fakeNumber.Cmp(delay) >= 0 {
		fakeNumber.Sub(fakeNumber, delay)
	} else {
		fakeNumber.SetUint64(0)
	}
	addBomb(diff, fakeNumber)
	return diff
}

// calcDifficultyHomestead applies the EIP-2 formula.
func calcDifficultyHomestead(time uint64, parent *types.Header) *big.Int {
	x := new(big.Int).SetUint64(time - parent.Time)
	x.Div(x, big10)
	x.Sub(big1, x)
	if x.Cmp(bigMinus99) < 0 {
		x.Set(bigMinus99)
	}

	step := new(big.Int).Div(parent.Difficulty, difficultyBound)
	diff := new(big.Int).Add(parent.Difficulty, step.Mul(step, x))
	if diff.Cmp(minimumDifficulty) < 0 {
		diff.Set(minimumDifficulty)
	}
	addBomb(diff, new(big.Int).Add(parent.Number, big1))
	return diff
}

// calcDifficultyFrontier uses the fixed 13-second heuristic.
func calcDifficultyFrontier(time uint64, parent *types.Header) *big.Int {
	step := new(big.Int).Div(parent.Difficulty, difficultyBound)
	diff := new(big.Int)
	if time-parent.Time < 13 {
		diff.Add(parent.Difficulty, step)
	} else {
		diff.Sub(parent.Difficulty, step)
	}
	if diff.Cmp(minimumDifficulty) < 0 {
		diff.Set(minimumDifficulty)
	}
	addBomb(diff, new(big.Int).Add(parent.Number, big1))
	return diff
}

// addBomb adds the exponential difficulty bomb term 2^(n/100000 - 2).
func addBomb(diff, number *big.Int) {
	period := new(big.Int).Div(number, bombDivisor)
	if period.Cmp(big1) > 0 {
		bomb := new(big.Int).Sub(period, big2)
		bomb.Exp(big2, bomb, nil)
		diff.Add(diff, bomb)
	}
}
