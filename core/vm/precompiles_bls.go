package vm

import (
	"errors"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"

	"github.com/evmcore/evmcore/crypto"
)

// BLS12-381 precompiles (0x0b-0x11, EIP-2537, Prague). Gas schedules per
// the EIP; MSM gas uses the published discount table.

var errBLSInput = errors.New("vm: invalid bls12-381 input")

// blsMSMDiscounts holds the EIP-2537 MSM discount in parts-per-thousand;
// entry k-1 applies to k point-scalar pairs.
var blsMSMDiscounts = []uint64{
	1000, 949, 848, 797, 764, 750, 738, 728, 719, 712, 705, 698, 692, 687,
	682, 677, 673, 669, 665, 661, 658, 654, 651, 648, 645, 642, 640, 637,
	635, 632, 630, 627, 625, 623, 621, 619, 617, 615, 613, 611, 609, 608,
	606, 604, 603, 601, 599, 598, 596, 595, 593, 592, 591, 589, 588, 586,
	585, 584, 582, 581, 580, 579, 577, 576, 575, 574, 573, 572, 570, 569,
	568, 567, 566, 565, 564, 563, 562, 561, 560, 559, 558, 557, 556, 555,
	554, 553, 552, 551, 550, 549, 548, 547, 547, 546, 545, 544, 543, 542,
	541, 540, 540, 539, 538, 537, 536, 536, 535, 534, 533, 532, 532, 531,
	530, 529, 528, 528, 527, 526, 525, 525, 524, 523, 522, 522, 521, 520,
	520, 519,
}

func blsMSMGas(pairs int, baseGas uint64) uint64 {
	if pairs == 0 {
		return 0
	}
	discount := blsMSMDiscounts[len(blsMSMDiscounts)-1]
	if pairs <= len(blsMSMDiscounts) {
		discount = blsMSMDiscounts[pairs-1]
	}
	return uint64(pairs) * baseGas * discount / 1000
}

// blsG1Add (0x0b).

type blsG1AddPrecompile struct{}

func (c *blsG1AddPrecompile) RequiredGas(input []byte) uint64 { return 375 }

func (c *blsG1AddPrecompile) Run(input []byte) ([]byte, error) {
	if len(input) != 2*crypto.BLSPointG1Size {
		return nil, errBLSInput
	}
	a, err := crypto.DecodePointG1(input[:128])
	if err != nil {
		return nil, err
	}
	b, err := crypto.DecodePointG1(input[128:])
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG1(crypto.BLSG1Add(a, b)), nil
}

// blsG1MSM (0x0c).

type blsG1MSMPrecompile struct{}

func (c *blsG1MSMPrecompile) RequiredGas(input []byte) uint64 {
	const pairSize = crypto.BLSPointG1Size + crypto.BLSScalarSize
	return blsMSMGas(len(input)/pairSize, 12000)
}

func (c *blsG1MSMPrecompile) Run(input []byte) ([]byte, error) {
	const pairSize = crypto.BLSPointG1Size + crypto.BLSScalarSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLSInput
	}
	pairs := len(input) / pairSize
	points := make([]bls12381.G1Affine, 0, pairs)
	scalars := make([][]byte, 0, pairs)
	for i := 0; i < pairs; i++ {
		chunk := input[i*pairSize : (i+1)*pairSize]
		p, err := crypto.DecodePointG1Subgroup(chunk[:128])
		if err != nil {
			return nil, err
		}
		points = append(points, *p)
		scalars = append(scalars, chunk[128:])
	}
	result, err := crypto.BLSG1MultiExp(points, scalars)
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG1(result), nil
}

// blsG2Add (0x0d).

type blsG2AddPrecompile struct{}

func (c *blsG2AddPrecompile) RequiredGas(input []byte) uint64 { return 600 }

func (c *blsG2AddPrecompile) Run(input []byte) ([]byte, error) {
	if len(input) != 2*crypto.BLSPointG2Size {
		return nil, errBLSInput
	}
	a, err := crypto.DecodePointG2(input[:256])
	if err != nil {
		return nil, err
	}
	b, err := crypto.DecodePointG2(input[256:])
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG2(crypto.BLSG2Add(a, b)), nil
}

// blsG2MSM (0x0e).

type blsG2MSMPrecompile struct{}

func (c *blsG2MSMPrecompile) RequiredGas(input []byte) uint64 {
	const pairSize = crypto.BLSPointG2Size + crypto.BLSScalarSize
	return blsMSMGas(len(input)/pairSize, 22500)
}

func (c *blsG2MSMPrecompile) Run(input []byte) ([]byte, error) {
	const pairSize = crypto.BLSPointG2Size + crypto.BLSScalarSize
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLSInput
	}
	pairs := len(input) / pairSize
	points := make([]bls12381.G2Affine, 0, pairs)
	scalars := make([][]byte, 0, pairs)
	for i := 0; i < pairs; i++ {
		chunk := input[i*pairSize : (i+1)*pairSize]
		p, err := crypto.DecodePointG2Subgroup(chunk[:256])
		if err != nil {
			return nil, err
		}
		points = append(points, *p)
		scalars = append(scalars, chunk[256:])
	}
	result, err := crypto.BLSG2MultiExp(points, scalars)
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG2(result), nil
}

// blsPairing (0x0f).

type blsPairingPrecompile struct{}

func (c *blsPairingPrecompile) RequiredGas(input []byte) uint64 {
	const pairSize = crypto.BLSPointG1Size + crypto.BLSPointG2Size
	return 37700 + uint64(len(input)/pairSize)*32600
}

func (c *blsPairingPrecompile) Run(input []byte) ([]byte, error) {
	const pairSize = crypto.BLSPointG1Size + crypto.BLSPointG2Size
	if len(input) == 0 || len(input)%pairSize != 0 {
		return nil, errBLSInput
	}
	pairs := len(input) / pairSize
	g1s := make([]bls12381.G1Affine, 0, pairs)
	g2s := make([]bls12381.G2Affine, 0, pairs)
	for i := 0; i < pairs; i++ {
		chunk := input[i*pairSize : (i+1)*pairSize]
		g1, err := crypto.DecodePointG1Subgroup(chunk[:128])
		if err != nil {
			return nil, err
		}
		g2, err := crypto.DecodePointG2Subgroup(chunk[128:])
		if err != nil {
			return nil, err
		}
		if g1.IsInfinity() || g2.IsInfinity() {
			continue
		}
		g1s = append(g1s, *g1)
		g2s = append(g2s, *g2)
	}
	out := make([]byte, 32)
	if len(g1s) == 0 {
		out[31] = 1
		return out, nil
	}
	ok, err := crypto.BLSPairingCheck(g1s, g2s)
	if err != nil {
		return nil, err
	}
	if ok {
		out[31] = 1
	}
	return out, nil
}

// blsMapFpToG1 (0x10).

type blsMapFpToG1Precompile struct{}

func (c *blsMapFpToG1Precompile) RequiredGas(input []byte) uint64 { return 5500 }

func (c *blsMapFpToG1Precompile) Run(input []byte) ([]byte, error) {
	if len(input) != crypto.BLSFieldElementSize {
		return nil, errBLSInput
	}
	p, err := crypto.BLSMapFpToG1(input)
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG1(p), nil
}

// blsMapFp2ToG2 (0x11).

type blsMapFp2ToG2Precompile struct{}

func (c *blsMapFp2ToG2Precompile) RequiredGas(input []byte) uint64 { return 23800 }

func (c *blsMapFp2ToG2Precompile) Run(input []byte) ([]byte, error) {
	if len(input) != 2*crypto.BLSFieldElementSize {
		return nil, errBLSInput
	}
	p, err := crypto.BLSMapFp2ToG2(input)
	if err != nil {
		return nil, err
	}
	return crypto.EncodePointG2(p), nil
}
