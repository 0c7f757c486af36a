package crypto

import (
	"errors"
	"sync"

	goethkzg "github.com/crate-crypto/go-eth-kzg"
)

// KZG sizes per EIP-4844.
const (
	KZGCommitmentSize = 48
	KZGProofSize      = 48
	KZGScalarSize     = 32
)

// VersionedHashVersionKZG is the version byte prefix for blob versioned
// hashes (EIP-4844).
const VersionedHashVersionKZG = byte(0x01)

var (
	kzgCtxOnce sync.Once
	kzgCtx     *goethkzg.Context
	kzgCtxErr  error

	ErrKZGContext = errors.New("crypto: kzg trusted setup unavailable")
)

// kzgContext lazily initializes the go-eth-kzg context with the embedded
// Ethereum ceremony trusted setup. Initialization is expensive so it is
// done once per process.
func kzgContext() (*goethkzg.Context, error) {
	kzgCtxOnce.Do(func() {
		kzgCtx, kzgCtxErr = goethkzg.NewContext4096Secure()
	})
	if kzgCtxErr != nil {
		return nil, ErrKZGContext
	}
	return kzgCtx, nil
}

// VerifyKZGProof verifies that a polynomial committed to by commitment
// evaluates to y at point z, as attested by proof. Inputs use the EIP-4844
// wire encodings: 48-byte G1 commitments and proofs, 32-byte big-endian
// field elements.
func VerifyKZGProof(commitment [KZGCommitmentSize]byte, z, y [KZGScalarSize]byte, proof [KZGProofSize]byte) error {
	ctx, err := kzgContext()
	if err != nil {
		return err
	}
	return ctx.VerifyKZGProof(goethkzg.KZGCommitment(commitment), goethkzg.Scalar(z), goethkzg.Scalar(y), goethkzg.KZGProof(proof))
}

// KZGToVersionedHash computes the EIP-4844 versioned hash of a commitment:
// sha256(commitment) with the first byte replaced by the KZG version.
func KZGToVersionedHash(commitment [KZGCommitmentSize]byte) [32]byte {
	h := Sha256(commitment[:])
	h[0] = VersionedHashVersionKZG
	return h
}
