// Package crypto provides the hashing and signature primitives the
// execution core depends on: keccak256, secp256k1 recovery, KZG proof
// verification, and the BLS12-381 operations behind the Prague precompiles.
package crypto

import (
	"github.com/evmcore/evmcore/core/types"
	"golang.org/x/crypto/sha3"
)

// Keccak256 calculates the Keccak-256 hash of the given data.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash calculates Keccak-256 and returns it as a types.Hash.
func Keccak256Hash(data ...[]byte) types.Hash {
	return types.BytesToHash(Keccak256(data...))
}
