package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// EIP-1559 fee market constants.
const (
	// InitialBaseFee is the base fee of the first London block (1 gwei).
	InitialBaseFee = 1_000_000_000

	// ElasticityMultiplier bounds gas usage against the target.
	ElasticityMultiplier uint64 = 2

	// BaseFeeChangeDenominator limits per-block base fee movement to 12.5%.
	BaseFeeChangeDenominator uint64 = 8
)

// CalcBaseFee computes the base fee of the child of parent per EIP-1559.
// A parent without a base fee is the London transition: the child starts
// at InitialBaseFee.
func CalcBaseFee(parent *types.Header) *big.Int {
	if parent.BaseFee == nil {
		return big.NewInt(InitialBaseFee)
	}

	parentGasTarget := parent.GasLimit / ElasticityMultiplier

	if parent.GasUsed == parentGasTarget {
		return new(big.Int).Set(parent.BaseFee)
	}

	if parent.GasUsed > parentGasTarget {
		delta := parent.GasUsed - parentGasTarget
		change := new(big.Int).Mul(parent.BaseFee, new(big.Int).SetUint64(delta))
		change.Div(change, new(big.Int).SetUint64(parentGasTarget))
		change.Div(change, new(big.Int).SetUint64(BaseFeeChangeDenominator))
		if change.Sign() == 0 {
			change.SetInt64(1)
		}
		return new(big.Int).Add(parent.BaseFee, change)
	}

	delta := parentGasTarget - parent.GasUsed
	change := new(big.Int).Mul(parent.BaseFee, new(big.Int).SetUint64(delta))
	change.Div(change, new(big.Int).SetUint64(parentGasTarget))
	change.Div(change, new(big.Int).SetUint64(BaseFeeChangeDenominator))

	baseFee := new(big.Int).Sub(parent.BaseFee, change)
	if baseFee.Sign() < 0 {
		baseFee.SetUint64(0)
	}
	return baseFee
}

// EffectiveGasPrice computes the per-gas price a message actually pays:
// min(feeCap, baseFee + tip) under EIP-1559, the raw gas price before.
func EffectiveGasPrice(msg *Message, baseFee *big.Int) *big.Int {
	if msg.GasFeeCap != nil && baseFee != nil {
		tip := msg.GasTipCap
		if tip == nil {
			tip = new(big.Int)
		}
		effective := new(big.Int).Add(baseFee, tip)
		if effective.Cmp(msg.GasFeeCap) > 0 {
			effective.Set(msg.GasFeeCap)
		}
		return effective
	}
	if msg.GasPrice != nil {
		return new(big.Int).Set(msg.GasPrice)
	}
	return new(big.Int)
}

// EffectiveTip returns the priority fee per gas the coinbase receives:
// min(tipCap, feeCap - baseFee) post-London, the full gas price before.
func EffectiveTip(msg *Message, baseFee *big.Int) *big.Int {
	price := EffectiveGasPrice(msg, baseFee)
	if baseFee == nil {
		return price
	}
	tip := new(big.Int).Sub(price, baseFee)
	if tip.Sign() < 0 {
		tip.SetUint64(0)
	}
	return tip
}
