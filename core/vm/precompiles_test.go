package vm

import (
	"encoding/hex"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/crypto"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func TestIdentityPrecompile(t *testing.T) {
	p := &identityPrecompile{}
	in := []byte("echo")
	out, err := p.Run(in)
	require.NoError(t, err)
	require.Equal(t, in, out)
	require.Equal(t, uint64(15+3), p.RequiredGas(in))
}

func TestSha256Precompile(t *testing.T) {
	p := &sha256Precompile{}
	out, err := p.Run(nil)
	require.NoError(t, err)
	require.Equal(t,
		mustHex(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"),
		out)
}

func TestRipemd160Precompile(t *testing.T) {
	p := &ripemd160Precompile{}
	out, err := p.Run(nil)
	require.NoError(t, err)
	require.Len(t, out, 32)
	require.Equal(t,
		mustHex(t, "9c1185a5c5e9fc54612808977ee8f548b2258d31"),
		out[12:])
}

func TestEcrecoverPrecompile(t *testing.T) {
	key, err := gethcrypto.GenerateKey()
	require.NoError(t, err)
	hash := crypto.Keccak256([]byte("message"))
	sig, err := gethcrypto.Sign(hash, key)
	require.NoError(t, err)

	input := make([]byte, 128)
	copy(input[0:32], hash)
	input[63] = sig[64] + 27 // v
	copy(input[64:96], sig[:32])
	copy(input[96:128], sig[32:64])

	p := &ecrecoverPrecompile{}
	out, err := p.Run(input)
	require.NoError(t, err)
	require.Len(t, out, 32)

	want := gethcrypto.PubkeyToAddress(key.PublicKey)
	require.Equal(t, want.Bytes(), out[12:])
}

func TestEcrecoverBadVReturnsEmpty(t *testing.T) {
	input := make([]byte, 128)
	input[63] = 29 // invalid v
	p := &ecrecoverPrecompile{}
	out, err := p.Run(input)
	require.NoError(t, err)
	require.Empty(t, out)
}

func TestModexpPrecompile(t *testing.T) {
	p := &modexpPrecompile{eip2565: true}

	// 3^2 mod 5 = 4, one-byte operands.
	input := make([]byte, 96, 99)
	input[31] = 1 // baseLen
	input[63] = 1 // expLen
	input[95] = 1 // modLen
	input = append(input, 3, 2, 5)

	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t, []byte{4}, out)

	// EIP-2565 floor.
	require.Equal(t, uint64(200), p.RequiredGas(input))
}

func TestModexpZeroModulus(t *testing.T) {
	p := &modexpPrecompile{eip2565: true}
	input := make([]byte, 96, 98)
	input[31] = 1
	input[63] = 0
	input[95] = 1
	input = append(input, 3, 0) // base 3, modulus 0
	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t, []byte{0}, out)
}

func TestBlake2FPrecompile(t *testing.T) {
	// EIP-152 test vector 5.
	input := mustHex(t, "0000000c48c9bdf267e6096a3ba7ca8485ae67bb2bf894fe72f36e3cf1361d5f3af54fa5d182e6ad7f520e511f6c3e2b8c68059b6bbd41fbabd9831f79217e1319cde05b61626300000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000300000000000000000000000000000001")
	require.Len(t, input, blake2FInputLength)

	p := &blake2FPrecompile{}
	require.Equal(t, uint64(12), p.RequiredGas(input))

	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t,
		mustHex(t, "ba80a53f981c4d0d6a2797b69f12f6e94c212f14685ac4b74b12bb6fdbffa2d17d87c5392aab792dc252d5de4533cc9518d38aa8dbf1925ab92386edd4009923"),
		out)
}

func TestBlake2FRejectsBadLength(t *testing.T) {
	p := &blake2FPrecompile{}
	_, err := p.Run(make([]byte, 212))
	require.ErrorIs(t, err, errBlake2FInput)
}

func TestBN254AddIdentity(t *testing.T) {
	p := &bn254AddPrecompile{gas: 150}

	// G = (1, 2); G + infinity = G.
	input := make([]byte, 128)
	input[31] = 1 // x = 1
	input[63] = 2 // y = 2

	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t, input[:64], out)
}

func TestBN254MulByOne(t *testing.T) {
	p := &bn254MulPrecompile{gas: 6000}
	input := make([]byte, 96)
	input[31] = 1
	input[63] = 2
	input[95] = 1 // scalar 1
	out, err := p.Run(input)
	require.NoError(t, err)
	require.Equal(t, input[:64], out)
}

func TestBN254RejectsOffCurvePoint(t *testing.T) {
	p := &bn254AddPrecompile{gas: 150}
	input := make([]byte, 128)
	input[31] = 1
	input[63] = 3 // (1, 3) is not on the curve
	_, err := p.Run(input)
	require.ErrorIs(t, err, errBN254InvalidPoint)
}

func TestBN254PairingEmptyInput(t *testing.T) {
	p := &bn254PairingPrecompile{baseGas: 45000, perPairGas: 34000}
	out, err := p.Run(nil)
	require.NoError(t, err)
	require.Equal(t, byte(1), out[31], "empty pairing input is vacuously true")

	_, err = p.Run(make([]byte, 191))
	require.ErrorIs(t, err, errBN254InvalidInput)
}

func TestBLSG1AddInfinity(t *testing.T) {
	p := &blsG1AddPrecompile{}
	out, err := p.Run(make([]byte, 256)) // infinity + infinity
	require.NoError(t, err)
	require.Equal(t, make([]byte, 128), out)

	_, err = p.Run(make([]byte, 100))
	require.ErrorIs(t, err, errBLSInput)
}

func TestBLSFieldElementValidation(t *testing.T) {
	p := &blsMapFpToG1Precompile{}
	// Top 16 bytes must be zero.
	bad := make([]byte, 64)
	bad[0] = 1
	_, err := p.Run(bad)
	require.ErrorIs(t, err, crypto.ErrBLSInvalidFieldElement)
}

func TestKZGPointEvaluationStrictLength(t *testing.T) {
	p := &kzgPointEvaluationPrecompile{}
	_, err := p.Run(make([]byte, pointEvalInputLength+1))
	require.ErrorIs(t, err, errPointEvalInput)
	_, err = p.Run(make([]byte, pointEvalInputLength-1))
	require.ErrorIs(t, err, errPointEvalInput)
	require.Equal(t, uint64(50000), p.RequiredGas(nil))
}

func TestPrecompileForkSets(t *testing.T) {
	frontier := SelectPrecompiles(ForkRules{})
	require.Len(t, frontier, 4)

	byzantium := SelectPrecompiles(ForkRules{IsByzantium: true})
	require.Len(t, byzantium, 8)

	istanbul := SelectPrecompiles(ForkRules{IsByzantium: true, IsIstanbul: true})
	require.Len(t, istanbul, 9)

	cancun := SelectPrecompiles(ForkRules{IsByzantium: true, IsIstanbul: true, IsBerlin: true, IsCancun: true})
	require.Len(t, cancun, 10)

	prague := SelectPrecompiles(ForkRules{IsByzantium: true, IsIstanbul: true, IsBerlin: true, IsCancun: true, IsPrague: true})
	require.Len(t, prague, 17)

	// Istanbul repriced the bn254 ops (EIP-1108).
	require.Equal(t, uint64(500), byzantium[addrOf(6)].RequiredGas(nil))
	require.Equal(t, uint64(150), istanbul[addrOf(6)].RequiredGas(nil))
}
