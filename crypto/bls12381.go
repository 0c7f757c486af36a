package crypto

import (
	"errors"
	"math/big"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fp"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// EIP-2537 wire sizes. Field elements are left-padded to 64 bytes; G1
// points are (x, y) pairs (128 bytes), G2 points are ((x0, x1), (y0, y1))
// quadruples (256 bytes). Scalars are 32 bytes.
const (
	BLSFieldElementSize = 64
	BLSPointG1Size      = 128
	BLSPointG2Size      = 256
	BLSScalarSize       = 32
)

var (
	ErrBLSInvalidFieldElement = errors.New("crypto: invalid bls12-381 field element")
	ErrBLSInvalidPoint        = errors.New("crypto: point not on bls12-381 curve")
	ErrBLSPointNotInSubgroup  = errors.New("crypto: bls12-381 point not in correct subgroup")
	ErrBLSInvalidInputLength  = errors.New("crypto: invalid bls12-381 input length")
)

// decodeBLSFieldElement decodes a 64-byte padded field element. The top 16
// bytes must be zero and the value must be canonical (< p).
func decodeBLSFieldElement(in []byte) (fp.Element, error) {
	var e fp.Element
	if len(in) != BLSFieldElementSize {
		return e, ErrBLSInvalidInputLength
	}
	for _, b := range in[:16] {
		if b != 0 {
			return e, ErrBLSInvalidFieldElement
		}
	}
	if new(big.Int).SetBytes(in[16:]).Cmp(fp.Modulus()) >= 0 {
		return e, ErrBLSInvalidFieldElement
	}
	e.SetBytes(in[16:])
	return e, nil
}

func encodeBLSFieldElement(e fp.Element) []byte {
	out := make([]byte, BLSFieldElementSize)
	b := e.Bytes()
	copy(out[16:], b[:])
	return out
}

// DecodePointG1 decodes a 128-byte EIP-2537 G1 point. The all-zero
// encoding is the point at infinity. Points are checked to be on the
// curve; subgroup membership is checked separately where required.
func DecodePointG1(in []byte) (*bls12381.G1Affine, error) {
	if len(in) != BLSPointG1Size {
		return nil, ErrBLSInvalidInputLength
	}
	x, err := decodeBLSFieldElement(in[:64])
	if err != nil {
		return nil, err
	}
	y, err := decodeBLSFieldElement(in[64:])
	if err != nil {
		return nil, err
	}
	p := &bls12381.G1Affine{X: x, Y: y}
	if !p.IsInfinity() && !p.IsOnCurve() {
		return nil, ErrBLSInvalidPoint
	}
	return p, nil
}

// DecodePointG1Subgroup decodes a G1 point and additionally verifies
// subgroup membership (required for MSM and pairing inputs).
func DecodePointG1Subgroup(in []byte) (*bls12381.G1Affine, error) {
	p, err := DecodePointG1(in)
	if err != nil {
		return nil, err
	}
	if !p.IsInSubGroup() {
		return nil, ErrBLSPointNotInSubgroup
	}
	return p, nil
}

// EncodePointG1 encodes a G1 point into 128 bytes.
func EncodePointG1(p *bls12381.G1Affine) []byte {
	out := make([]byte, BLSPointG1Size)
	if p.IsInfinity() {
		return out
	}
	copy(out[:64], encodeBLSFieldElement(p.X))
	copy(out[64:], encodeBLSFieldElement(p.Y))
	return out
}

// DecodePointG2 decodes a 256-byte EIP-2537 G2 point.
func DecodePointG2(in []byte) (*bls12381.G2Affine, error) {
	if len(in) != BLSPointG2Size {
		return nil, ErrBLSInvalidInputLength
	}
	x0, err := decodeBLSFieldElement(in[:64])
	if err != nil {
		return nil, err
	}
	x1, err := decodeBLSFieldElement(in[64:128])
	if err != nil {
		return nil, err
	}
	y0, err := decodeBLSFieldElement(in[128:192])
	if err != nil {
		return nil, err
	}
	y1, err := decodeBLSFieldElement(in[192:])
	if err != nil {
		return nil, err
	}
	p := new(bls12381.G2Affine)
	p.X.A0, p.X.A1 = x0, x1
	p.Y.A0, p.Y.A1 = y0, y1
	if !p.IsInfinity() && !p.IsOnCurve() {
		return nil, ErrBLSInvalidPoint
	}
	return p, nil
}

// DecodePointG2Subgroup decodes a G2 point and verifies subgroup membership.
func DecodePointG2Subgroup(in []byte) (*bls12381.G2Affine, error) {
	p, err := DecodePointG2(in)
	if err != nil {
		return nil, err
	}
	if !p.IsInSubGroup() {
		return nil, ErrBLSPointNotInSubgroup
	}
	return p, nil
}

// EncodePointG2 encodes a G2 point into 256 bytes.
func EncodePointG2(p *bls12381.G2Affine) []byte {
	out := make([]byte, BLSPointG2Size)
	if p.IsInfinity() {
		return out
	}
	copy(out[:64], encodeBLSFieldElement(p.X.A0))
	copy(out[64:128], encodeBLSFieldElement(p.X.A1))
	copy(out[128:192], encodeBLSFieldElement(p.Y.A0))
	copy(out[192:], encodeBLSFieldElement(p.Y.A1))
	return out
}

// BLSG1Add adds two G1 points.
func BLSG1Add(a, b *bls12381.G1Affine) *bls12381.G1Affine {
	return new(bls12381.G1Affine).Add(a, b)
}

// BLSG2Add adds two G2 points.
func BLSG2Add(a, b *bls12381.G2Affine) *bls12381.G2Affine {
	return new(bls12381.G2Affine).Add(a, b)
}

// BLSG1MultiExp computes the multi-scalar multiplication over G1. Scalars
// are 32-byte big-endian values reduced modulo the group order.
func BLSG1MultiExp(points []bls12381.G1Affine, scalars [][]byte) (*bls12381.G1Affine, error) {
	frs := make([]fr.Element, len(scalars))
	for i, s := range scalars {
		frs[i].SetBytes(s)
	}
	return new(bls12381.G1Affine).MultiExp(points, frs, ecc.MultiExpConfig{})
}

// BLSG2MultiExp computes the multi-scalar multiplication over G2.
func BLSG2MultiExp(points []bls12381.G2Affine, scalars [][]byte) (*bls12381.G2Affine, error) {
	frs := make([]fr.Element, len(scalars))
	for i, s := range scalars {
		frs[i].SetBytes(s)
	}
	return new(bls12381.G2Affine).MultiExp(points, frs, ecc.MultiExpConfig{})
}

// BLSPairingCheck reports whether the product of pairings over the given
// point pairs equals the identity.
func BLSPairingCheck(g1s []bls12381.G1Affine, g2s []bls12381.G2Affine) (bool, error) {
	return bls12381.PairingCheck(g1s, g2s)
}

// BLSMapFpToG1 maps a field element to a G1 point (SSWU with cofactor
// clearing, per EIP-2537 MAP_FP_TO_G1).
func BLSMapFpToG1(in []byte) (*bls12381.G1Affine, error) {
	e, err := decodeBLSFieldElement(in)
	if err != nil {
		return nil, err
	}
	p := bls12381.MapToG1(e)
	return &p, nil
}

// BLSMapFp2ToG2 maps an Fp2 element (two 64-byte padded coordinates) to a
// G2 point, per EIP-2537 MAP_FP2_TO_G2.
func BLSMapFp2ToG2(in []byte) (*bls12381.G2Affine, error) {
	if len(in) != 2*BLSFieldElementSize {
		return nil, ErrBLSInvalidInputLength
	}
	c0, err := decodeBLSFieldElement(in[:64])
	if err != nil {
		return nil, err
	}
	c1, err := decodeBLSFieldElement(in[64:])
	if err != nil {
		return nil, err
	}
	var e bls12381.E2
	e.A0, e.A1 = c0, c1
	p := bls12381.MapToG2(e)
	return &p, nil
}
