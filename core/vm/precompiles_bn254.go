package vm

import (
	"errors"
	"math/big"

	bn254 "github.com/consensys/gnark-crypto/ecc/bn254"
	"github.com/consensys/gnark-crypto/ecc/bn254/fp"
)

// The alt_bn128 precompiles (0x06-0x08). Points are encoded as 32-byte
// big-endian coordinate pairs; the all-zero pair is the point at
// infinity.

var (
	errBN254InvalidPoint = errors.New("vm: invalid bn254 point")
	errBN254InvalidInput = errors.New("vm: invalid bn254 input length")
)

func decodeBN254Fp(in []byte) (fp.Element, error) {
	var e fp.Element
	if new(big.Int).SetBytes(in).Cmp(fp.Modulus()) >= 0 {
		return e, errBN254InvalidPoint
	}
	e.SetBytes(in)
	return e, nil
}

// decodeBN254G1 parses a 64-byte G1 point and verifies curve membership.
func decodeBN254G1(in []byte) (*bn254.G1Affine, error) {
	if len(in) != 64 {
		return nil, errBN254InvalidInput
	}
	x, err := decodeBN254Fp(in[:32])
	if err != nil {
		return nil, err
	}
	y, err := decodeBN254Fp(in[32:])
	if err != nil {
		return nil, err
	}
	p := &bn254.G1Affine{X: x, Y: y}
	if !p.IsInfinity() && !p.IsOnCurve() {
		return nil, errBN254InvalidPoint
	}
	return p, nil
}

// decodeBN254G2 parses a 128-byte G2 point. The wire order per field
// element pair is (imaginary, real).
func decodeBN254G2(in []byte) (*bn254.G2Affine, error) {
	if len(in) != 128 {
		return nil, errBN254InvalidInput
	}
	xi, err := decodeBN254Fp(in[0:32])
	if err != nil {
		return nil, err
	}
	xr, err := decodeBN254Fp(in[32:64])
	if err != nil {
		return nil, err
	}
	yi, err := decodeBN254Fp(in[64:96])
	if err != nil {
		return nil, err
	}
	yr, err := decodeBN254Fp(in[96:128])
	if err != nil {
		return nil, err
	}
	p := new(bn254.G2Affine)
	p.X.A0, p.X.A1 = xr, xi
	p.Y.A0, p.Y.A1 = yr, yi
	if !p.IsInfinity() {
		if !p.IsOnCurve() {
			return nil, errBN254InvalidPoint
		}
		if !p.IsInSubGroup() {
			return nil, errBN254InvalidPoint
		}
	}
	return p, nil
}

func encodeBN254G1(p *bn254.G1Affine) []byte {
	out := make([]byte, 64)
	if p.IsInfinity() {
		return out
	}
	x := p.X.Bytes()
	y := p.Y.Bytes()
	copy(out[:32], x[:])
	copy(out[32:], y[:])
	return out
}

// bn254Add (0x06).

type bn254AddPrecompile struct {
	gas uint64
}

func (c *bn254AddPrecompile) RequiredGas(input []byte) uint64 { return c.gas }

func (c *bn254AddPrecompile) Run(input []byte) ([]byte, error) {
	input = rightPad(input, 128)
	a, err := decodeBN254G1(input[:64])
	if err != nil {
		return nil, err
	}
	b, err := decodeBN254G1(input[64:128])
	if err != nil {
		return nil, err
	}
	sum := new(bn254.G1Affine).Add(a, b)
	return encodeBN254G1(sum), nil
}

// bn254ScalarMul (0x07).

type bn254MulPrecompile struct {
	gas uint64
}

func (c *bn254MulPrecompile) RequiredGas(input []byte) uint64 { return c.gas }

func (c *bn254MulPrecompile) Run(input []byte) ([]byte, error) {
	input = rightPad(input, 96)
	p, err := decodeBN254G1(input[:64])
	if err != nil {
		return nil, err
	}
	scalar := new(big.Int).SetBytes(input[64:96])
	result := new(bn254.G1Affine).ScalarMultiplication(p, scalar)
	return encodeBN254G1(result), nil
}

// bn254Pairing (0x08).

type bn254PairingPrecompile struct {
	baseGas    uint64
	perPairGas uint64
}

func (c *bn254PairingPrecompile) RequiredGas(input []byte) uint64 {
	return c.baseGas + uint64(len(input)/192)*c.perPairGas
}

func (c *bn254PairingPrecompile) Run(input []byte) ([]byte, error) {
	if len(input)%192 != 0 {
		return nil, errBN254InvalidInput
	}
	pairs := len(input) / 192
	g1s := make([]bn254.G1Affine, 0, pairs)
	g2s := make([]bn254.G2Affine, 0, pairs)
	for i := 0; i < pairs; i++ {
		g1, err := decodeBN254G1(input[i*192 : i*192+64])
		if err != nil {
			return nil, err
		}
		g2, err := decodeBN254G2(input[i*192+64 : (i+1)*192])
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
	ok, err := bn254.PairingCheck(g1s, g2s)
	if err != nil {
		return nil, err
	}
	if ok {
		out[31] = 1
	}
	return out, nil
}
