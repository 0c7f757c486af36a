package crypto

import "crypto/sha256"

// Sha256 computes the SHA-256 hash of the given data.
func Sha256(data ...[]byte) [32]byte {
	h := sha256.New()
	for _, b := range data {
		h.Write(b)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
