package core

import (
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// EIP-4844 blob gas market constants.
const (
	BlobGasPerBlob           uint64 = 1 << 17
	TargetBlobGasPerBlock    uint64 = 3 * BlobGasPerBlob
	MaxBlobGasPerBlock       uint64 = 6 * BlobGasPerBlob
	MinBlobBaseFee           uint64 = 1
	BlobBaseFeeUpdateFraction uint64 = 3338477
)

// CalcExcessBlobGas computes the child's excess blob gas from the
// parent's fields: max(0, parent.excess + parent.used - target).
func CalcExcessBlobGas(parentExcessBlobGas, parentBlobGasUsed uint64) uint64 {
	total := parentExcessBlobGas + parentBlobGasUsed
	if total < TargetBlobGasPerBlock {
		return 0
	}
	return total - TargetBlobGasPerBlock
}

// CalcBlobBaseFee computes the blob base fee from the excess blob gas
// via the EIP-4844 fake exponential.
func CalcBlobBaseFee(excessBlobGas uint64) *big.Int {
	return fakeExponential(
		new(big.Int).SetUint64(MinBlobBaseFee),
		new(big.Int).SetUint64(excessBlobGas),
		new(big.Int).SetUint64(BlobBaseFeeUpdateFraction),
	)
}

// fakeExponential approximates factor * e^(numerator/denominator) with
// the Taylor expansion specified by the EIP; it is consensus-exact.
func fakeExponential(factor, numerator, denominator *big.Int) *big.Int {
	var (
		i      = big.NewInt(1)
		output = new(big.Int)
		accum  = new(big.Int).Mul(factor, denominator)
	)
	for accum.Sign() > 0 {
		output.Add(output, accum)
		accum.Mul(accum, numerator)
		accum.Div(accum, new(big.Int).Mul(denominator, i))
		i.Add(i, big1)
	}
	return output.Div(output, denominator)
}

// ValidateBlobGas checks the Cancun header fields against the parent.
func ValidateBlobGas(header, parent *types.Header) error {
	if header.BlobGasUsed == nil || header.ExcessBlobGas == nil {
		return fmt.Errorf("%w: missing fields", ErrInvalidBlobGas)
	}
	if *header.BlobGasUsed > MaxBlobGasPerBlock {
		return fmt.Errorf("%w: used %d > max %d", ErrInvalidBlobGas, *header.BlobGasUsed, MaxBlobGasPerBlock)
	}
	if *header.BlobGasUsed%BlobGasPerBlob != 0 {
		return fmt.Errorf("%w: used %d not a multiple of %d", ErrInvalidBlobGas, *header.BlobGasUsed, BlobGasPerBlob)
	}
	var parentExcess, parentUsed uint64
	if parent.ExcessBlobGas != nil {
		parentExcess = *parent.ExcessBlobGas
	}
	if parent.BlobGasUsed != nil {
		parentUsed = *parent.BlobGasUsed
	}
	if want := CalcExcessBlobGas(parentExcess, parentUsed); *header.ExcessBlobGas != want {
		return fmt.Errorf("%w: excess %d, want %d", ErrInvalidBlobGas, *header.ExcessBlobGas, want)
	}
	return nil
}
