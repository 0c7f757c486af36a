package crypto

import (
	"crypto/ecdsa"
	"errors"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/evmcore/evmcore/core/types"
)

// secp256k1N is the order of the secp256k1 curve.
var secp256k1N, _ = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)

// secp256k1HalfN is half the curve order, used for the EIP-2 low-S check.
var secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)

var (
	ErrInvalidSignatureLen = errors.New("crypto: signature must be 65 bytes [R || S || V]")
	ErrInvalidHashLen      = errors.New("crypto: message hash must be 32 bytes")
	ErrRecoveryFailed      = errors.New("crypto: public key recovery failed")
)

// Ecrecover recovers the uncompressed public key (65 bytes, 0x04-prefixed)
// from a 32-byte hash and a 65-byte [R || S || V] signature with V in {0,1}.
func Ecrecover(hash, sig []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	if len(sig) != 65 {
		return nil, ErrInvalidSignatureLen
	}
	pub, err := gethcrypto.Ecrecover(hash, sig)
	if err != nil {
		return nil, ErrRecoveryFailed
	}
	return pub, nil
}

// SigToPub recovers the public key from hash and signature.
func SigToPub(hash, sig []byte) (*ecdsa.PublicKey, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	if len(sig) != 65 {
		return nil, ErrInvalidSignatureLen
	}
	return gethcrypto.SigToPub(hash, sig)
}

// Sign calculates a recoverable ECDSA signature (65 bytes [R || S || V],
// V in {0,1}) over the given 32-byte hash.
func Sign(hash []byte, prv *ecdsa.PrivateKey) ([]byte, error) {
	if len(hash) != 32 {
		return nil, ErrInvalidHashLen
	}
	return gethcrypto.Sign(hash, prv)
}

// GenerateKey generates a new secp256k1 private key.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	return gethcrypto.GenerateKey()
}

// ValidateSignatureValues checks whether r, s and v form a valid signature.
// With homestead true, s values in the upper half of the curve order are
// rejected per EIP-2.
func ValidateSignatureValues(v byte, r, s *big.Int, homestead bool) bool {
	if r == nil || s == nil {
		return false
	}
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return false
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return false
	}
	if homestead && s.Cmp(secp256k1HalfN) > 0 {
		return false
	}
	return v == 0 || v == 1
}

// PubkeyToAddress derives the Ethereum address from an ECDSA public key:
// the last 20 bytes of Keccak256(pubkey[1:]).
func PubkeyToAddress(pub ecdsa.PublicKey) types.Address {
	raw := gethcrypto.FromECDSAPub(&pub)
	return types.BytesToAddress(Keccak256(raw[1:])[12:])
}

// RecoverPlain recovers the sender address from a signing hash and the raw
// signature components. v must be the normalized recovery id (0 or 1).
func RecoverPlain(sighash types.Hash, r, s *big.Int, v byte, homestead bool) (types.Address, error) {
	if !ValidateSignatureValues(v, r, s, homestead) {
		return types.Address{}, ErrRecoveryFailed
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = v

	pub, err := Ecrecover(sighash[:], sig)
	if err != nil {
		return types.Address{}, err
	}
	if len(pub) == 0 || pub[0] != 4 {
		return types.Address{}, ErrRecoveryFailed
	}
	return types.BytesToAddress(Keccak256(pub[1:])[12:]), nil
}
