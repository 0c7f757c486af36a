package vm

import (
	"errors"
	"math/big"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/crypto"
)

// PrecompiledContract is a native contract reachable at a fixed address.
// RequiredGas prices the input; Run executes it. The call frame does not
// enter the interpreter loop for precompiles.
type PrecompiledContract interface {
	RequiredGas(input []byte) uint64
	Run(input []byte) ([]byte, error)
}

// Per-fork precompile address tables. Each fork extends the previous set.
var (
	precompilesFrontier = map[types.Address]PrecompiledContract{
		addrOf(1): &ecrecoverPrecompile{},
		addrOf(2): &sha256Precompile{},
		addrOf(3): &ripemd160Precompile{},
		addrOf(4): &identityPrecompile{},
	}

	precompilesByzantium = mergePrecompiles(precompilesFrontier, map[types.Address]PrecompiledContract{
		addrOf(5): &modexpPrecompile{eip2565: false},
		addrOf(6): &bn254AddPrecompile{gas: 500},
		addrOf(7): &bn254MulPrecompile{gas: 40000},
		addrOf(8): &bn254PairingPrecompile{baseGas: 100000, perPairGas: 80000},
	})

	precompilesIstanbul = mergePrecompiles(precompilesByzantium, map[types.Address]PrecompiledContract{
		// EIP-1108 repricings.
		addrOf(6): &bn254AddPrecompile{gas: 150},
		addrOf(7): &bn254MulPrecompile{gas: 6000},
		addrOf(8): &bn254PairingPrecompile{baseGas: 45000, perPairGas: 34000},
		addrOf(9): &blake2FPrecompile{},
	})

	precompilesBerlin = mergePrecompiles(precompilesIstanbul, map[types.Address]PrecompiledContract{
		// EIP-2565 modexp repricing.
		addrOf(5): &modexpPrecompile{eip2565: true},
	})

	precompilesCancun = mergePrecompiles(precompilesBerlin, map[types.Address]PrecompiledContract{
		addrOf(0x0a): &kzgPointEvaluationPrecompile{},
	})

	precompilesPrague = mergePrecompiles(precompilesCancun, map[types.Address]PrecompiledContract{
		addrOf(0x0b): &blsG1AddPrecompile{},
		addrOf(0x0c): &blsG1MSMPrecompile{},
		addrOf(0x0d): &blsG2AddPrecompile{},
		addrOf(0x0e): &blsG2MSMPrecompile{},
		addrOf(0x0f): &blsPairingPrecompile{},
		addrOf(0x10): &blsMapFpToG1Precompile{},
		addrOf(0x11): &blsMapFp2ToG2Precompile{},
	})
)

func addrOf(b byte) types.Address {
	return types.BytesToAddress([]byte{b})
}

func mergePrecompiles(base, extra map[types.Address]PrecompiledContract) map[types.Address]PrecompiledContract {
	out := make(map[types.Address]PrecompiledContract, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// SelectPrecompiles returns the active precompile table for a fork.
func SelectPrecompiles(rules ForkRules) map[types.Address]PrecompiledContract {
	switch {
	case rules.IsPrague:
		return precompilesPrague
	case rules.IsCancun:
		return precompilesCancun
	case rules.IsBerlin:
		return precompilesBerlin
	case rules.IsIstanbul:
		return precompilesIstanbul
	case rules.IsByzantium:
		return precompilesByzantium
	default:
		return precompilesFrontier
	}
}

// ecrecover (0x01).

type ecrecoverPrecompile struct{}

func (c *ecrecoverPrecompile) RequiredGas(input []byte) uint64 { return 3000 }

func (c *ecrecoverPrecompile) Run(input []byte) ([]byte, error) {
	input = rightPad(input, 128)

	hash := input[0:32]
	v := new(big.Int).SetBytes(input[32:64])
	r := new(big.Int).SetBytes(input[64:96])
	s := new(big.Int).SetBytes(input[96:128])

	// v must be 27 or 28; failures return empty output, not an error.
	if v.BitLen() > 8 {
		return nil, nil
	}
	vByte := byte(v.Uint64())
	if vByte != 27 && vByte != 28 {
		return nil, nil
	}
	if !crypto.ValidateSignatureValues(vByte-27, r, s, false) {
		return nil, nil
	}

	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = vByte - 27

	pub, err := crypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, nil
	}
	addr := crypto.Keccak256(pub[1:])
	out := make([]byte, 32)
	copy(out[12:], addr[12:])
	return out, nil
}

// sha256 (0x02).

type sha256Precompile struct{}

func (c *sha256Precompile) RequiredGas(input []byte) uint64 {
	return 60 + 12*wordCount(uint64(len(input)))
}

func (c *sha256Precompile) Run(input []byte) ([]byte, error) {
	h := crypto.Sha256(input)
	return h[:], nil
}

// ripemd160 (0x03).

type ripemd160Precompile struct{}

func (c *ripemd160Precompile) RequiredGas(input []byte) uint64 {
	return 600 + 120*wordCount(uint64(len(input)))
}

func (c *ripemd160Precompile) Run(input []byte) ([]byte, error) {
	digest := ripemd160Sum(input)
	out := make([]byte, 32)
	copy(out[12:], digest)
	return out, nil
}

// identity (0x04).

type identityPrecompile struct{}

func (c *identityPrecompile) RequiredGas(input []byte) uint64 {
	return 15 + 3*wordCount(uint64(len(input)))
}

func (c *identityPrecompile) Run(input []byte) ([]byte, error) {
	return append([]byte(nil), input...), nil
}

// modexp (0x05), EIP-198 with the EIP-2565 repricing under Berlin.

type modexpPrecompile struct {
	eip2565 bool
}

func (c *modexpPrecompile) lengths(input []byte) (baseLen, expLen, modLen uint64) {
	padded := rightPad(input, 96)
	baseLen = bigFromSlice(padded[0:32]).Uint64()
	expLen = bigFromSlice(padded[32:64]).Uint64()
	modLen = bigFromSlice(padded[64:96]).Uint64()
	return
}

func (c *modexpPrecompile) RequiredGas(input []byte) uint64 {
	baseLen, expLen, modLen := c.lengths(input)

	// Head of the exponent for the adjusted length.
	var expHead *big.Int
	if uint64(len(input)) <= 96+baseLen {
		expHead = new(big.Int)
	} else {
		length := expLen
		if length > 32 {
			length = 32
		}
		expHead = new(big.Int).SetBytes(getData(input[96:], baseLen, length))
	}
	var adjExpLen uint64
	if expLen > 32 {
		adjExpLen = (expLen - 32) * 8
	}
	if bitlen := expHead.BitLen(); bitlen > 0 {
		adjExpLen += uint64(bitlen - 1)
	}
	if adjExpLen < 1 {
		adjExpLen = 1
	}

	maxLen := baseLen
	if modLen > maxLen {
		maxLen = modLen
	}

	if c.eip2565 {
		// words = ceil(maxLen/8); multiplication_complexity = words^2
		words := (maxLen + 7) / 8
		mult := words * words
		gas := mult * adjExpLen / 3
		if gas < 200 {
			return 200
		}
		return gas
	}

	// EIP-198 multiplication complexity.
	var mult uint64
	switch {
	case maxLen <= 64:
		mult = maxLen * maxLen
	case maxLen <= 1024:
		mult = maxLen*maxLen/4 + 96*maxLen - 3072
	default:
		mult = maxLen*maxLen/16 + 480*maxLen - 199680
	}
	return mult * adjExpLen / 20
}

func (c *modexpPrecompile) Run(input []byte) ([]byte, error) {
	baseLen, expLen, modLen := c.lengths(input)
	if len(input) > 96 {
		input = input[96:]
	} else {
		input = nil
	}

	if baseLen == 0 && modLen == 0 {
		return nil, nil
	}

	base := new(big.Int).SetBytes(getData(input, 0, baseLen))
	exp := new(big.Int).SetBytes(getData(input, baseLen, expLen))
	mod := new(big.Int).SetBytes(getData(input, baseLen+expLen, modLen))

	out := make([]byte, modLen)
	if mod.Sign() == 0 {
		return out, nil
	}
	result := new(big.Int).Exp(base, exp, mod)
	resultBytes := result.Bytes()
	copy(out[uint64(len(out))-uint64(len(resultBytes)):], resultBytes)
	return out, nil
}

// kzg point evaluation (0x0a, EIP-4844).

type kzgPointEvaluationPrecompile struct{}

var (
	errPointEvalInput    = errors.New("vm: invalid point evaluation input")
	errPointEvalMismatch = errors.New("vm: versioned hash mismatch")

	// blsModulus is the BLS12-381 scalar field modulus, returned as part
	// of the success output.
	blsModulus, _ = new(big.Int).SetString("52435875175126190479447740508185965837690552500527637822603658699938581184513", 10)
)

const pointEvalInputLength = 192

func (c *kzgPointEvaluationPrecompile) RequiredGas(input []byte) uint64 { return 50000 }

func (c *kzgPointEvaluationPrecompile) Run(input []byte) ([]byte, error) {
	// Input layout: versioned_hash (32) ‖ z (32) ‖ y (32) ‖ commitment
	// (48) ‖ proof (48). Trailing bytes are rejected.
	if len(input) != pointEvalInputLength {
		return nil, errPointEvalInput
	}
	var (
		versionedHash [32]byte
		z, y          [32]byte
		commitment    [48]byte
		proof         [48]byte
	)
	copy(versionedHash[:], input[0:32])
	copy(z[:], input[32:64])
	copy(y[:], input[64:96])
	copy(commitment[:], input[96:144])
	copy(proof[:], input[144:192])

	if crypto.KZGToVersionedHash(commitment) != versionedHash {
		return nil, errPointEvalMismatch
	}
	if err := crypto.VerifyKZGProof(commitment, z, y, proof); err != nil {
		return nil, errPointEvalInput
	}

	// Success output: FIELD_ELEMENTS_PER_BLOB ‖ BLS_MODULUS, 32 bytes each.
	out := make([]byte, 64)
	new(big.Int).SetUint64(4096).FillBytes(out[:32])
	blsModulus.FillBytes(out[32:])
	return out, nil
}

// Helpers.

func rightPad(b []byte, size int) []byte {
	if len(b) >= size {
		return b
	}
	out := make([]byte, size)
	copy(out, b)
	return out
}

func bigFromSlice(b []byte) *big.Int {
	return new(big.Int).SetBytes(b)
}
