package core

import (
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

const (
	// MaxExtraDataSize bounds the header extra-data field.
	MaxExtraDataSize = 32

	// GasLimitBoundDivisor bounds per-block gas limit movement to 1/1024
	// of the parent's limit, exclusive.
	GasLimitBoundDivisor uint64 = 1024

	// MinGasLimit is the protocol minimum gas limit.
	MinGasLimit uint64 = 5000
)

// BlockValidator checks headers against consensus rules.
type BlockValidator struct {
	config *ChainConfig
}

// NewBlockValidator creates a validator for the given chain config.
func NewBlockValidator(config *ChainConfig) *BlockValidator {
	return &BlockValidator{config: config}
}

// ValidateHeader verifies a header against its parent: numbering,
// timestamp monotonicity, gas limits, extra data, the difficulty formula
// (or PoS sentinels), base-fee evolution, and blob-gas evolution.
func (v *BlockValidator) ValidateHeader(header, parent *types.Header) error {
	if header.ParentHash != parent.Hash() {
		return fmt.Errorf("%w: want %s, have %s", ErrUnknownParent, parent.Hash().Hex(), header.ParentHash.Hex())
	}

	expectedNumber := new(big.Int).Add(parent.Number, big1)
	if header.Number == nil || header.Number.Cmp(expectedNumber) != 0 {
		return fmt.Errorf("%w: want %v, have %v", ErrInvalidNumber, expectedNumber, header.Number)
	}

	if header.Time <= parent.Time {
		return fmt.Errorf("%w: child %d <= parent %d", ErrInvalidTimestamp, header.Time, parent.Time)
	}

	if len(header.Extra) > MaxExtraDataSize {
		return fmt.Errorf("%w: %d > %d", ErrExtraDataTooLong, len(header.Extra), MaxExtraDataSize)
	}

	if err := v.validateGasLimit(header, parent); err != nil {
		return err
	}

	if header.GasUsed > header.GasLimit {
		return fmt.Errorf("%w: %d > %d", ErrGasUsedOverLimit, header.GasUsed, header.GasLimit)
	}

	if v.config.IsParis(header.Number) {
		// PoS sentinels: zero difficulty, zero nonce, empty uncle list.
		if header.Difficulty == nil || header.Difficulty.Sign() != 0 {
			return fmt.Errorf("%w: difficulty %v", ErrInvalidPoSFields, header.Difficulty)
		}
		if header.Nonce != (types.BlockNonce{}) {
			return fmt.Errorf("%w: nonce %x", ErrInvalidPoSFields, header.Nonce)
		}
		if header.UncleHash != types.EmptyUncleHash {
			return fmt.Errorf("%w: uncle hash %s", ErrInvalidPoSFields, header.UncleHash.Hex())
		}
	} else {
		expected := v.config.CalcDifficulty(header.Number, header.Time, parent)
		if header.Difficulty == nil || header.Difficulty.Cmp(expected) != 0 {
			return fmt.Errorf("%w: want %v, have %v", ErrInvalidDifficulty, expected, header.Difficulty)
		}
	}

	// EIP-1559 base fee evolution.
	if v.config.IsLondon(header.Number) {
		if header.BaseFee == nil {
			return fmt.Errorf("%w: missing", ErrInvalidBaseFee)
		}
		expected := CalcBaseFee(v.parentForBaseFee(parent, header.Number))
		if header.BaseFee.Cmp(expected) != 0 {
			return fmt.Errorf("%w: want %v, have %v", ErrInvalidBaseFee, expected, header.BaseFee)
		}
	} else if header.BaseFee != nil {
		return fmt.Errorf("%w: unexpected before London", ErrInvalidBaseFee)
	}

	// EIP-4844 blob gas evolution.
	if v.config.IsCancun(header.Time) {
		if err := ValidateBlobGas(header, parent); err != nil {
			return err
		}
	} else if header.BlobGasUsed != nil || header.ExcessBlobGas != nil {
		return fmt.Errorf("%w: unexpected before Cancun", ErrInvalidBlobGas)
	}

	return nil
}

// parentForBaseFee returns the parent used for base-fee derivation. No
// adjustment is needed beyond the nil-BaseFee transition handling inside
// CalcBaseFee.
func (v *BlockValidator) parentForBaseFee(parent *types.Header, _ *big.Int) *types.Header {
	return parent
}

// validateGasLimit enforces |limit - parent.limit| < parent.limit/1024
// and the protocol minimum. At the London transition the comparison
// target is the doubled parent limit (EIP-1559 elasticity).
func (v *BlockValidator) validateGasLimit(header, parent *types.Header) error {
	parentLimit := parent.GasLimit
	if v.config.IsLondonTransition(header.Number) {
		parentLimit *= ElasticityMultiplier
	}

	if header.GasLimit < MinGasLimit {
		return fmt.Errorf("%w: %d < minimum %d", ErrInvalidGasLimit, header.GasLimit, MinGasLimit)
	}
	bound := parentLimit / GasLimitBoundDivisor
	var diff uint64
	if header.GasLimit > parentLimit {
		diff = header.GasLimit - parentLimit
	} else {
		diff = parentLimit - header.GasLimit
	}
	if diff >= bound {
		return fmt.Errorf("%w: have %d, parent %d, bound %d", ErrInvalidGasLimit, header.GasLimit, parentLimit, bound)
	}
	return nil
}

// CreateHeaderFromParent fills a child header with protocol defaults:
// next number, timestamp at least parent+1, inherited gas limit, the
// fork's difficulty, evolved base fee and blob gas fields.
func (c *ChainConfig) CreateHeaderFromParent(parent *types.Header, coinbase types.Address, time uint64) *types.Header {
	if time <= parent.Time {
		time = parent.Time + 1
	}
	number := new(big.Int).Add(parent.Number, big1)

	header := &types.Header{
		ParentHash: parent.Hash(),
		UncleHash:  types.EmptyUncleHash,
		Coinbase:   coinbase,
		Number:     number,
		GasLimit:   parent.GasLimit,
		Time:       time,
		Difficulty: c.CalcDifficulty(number, time, parent),
	}
	if c.IsLondon(number) {
		header.BaseFee = CalcBaseFee(parent)
		if c.IsLondonTransition(number) {
			header.GasLimit = parent.GasLimit * ElasticityMultiplier
		}
	}
	if c.IsShanghai(time) {
		wh := types.EmptyRootHash
		header.WithdrawalsHash = &wh
	}
	if c.IsCancun(time) {
		var parentExcess, parentUsed uint64
		if parent.ExcessBlobGas != nil {
			parentExcess = *parent.ExcessBlobGas
		}
		if parent.BlobGasUsed != nil {
			parentUsed = *parent.BlobGasUsed
		}
		excess := CalcExcessBlobGas(parentExcess, parentUsed)
		used := uint64(0)
		header.ExcessBlobGas = &excess
		header.BlobGasUsed = &used
		beaconRoot := types.Hash{}
		header.ParentBeaconRoot = &beaconRoot
	}
	return header
}
