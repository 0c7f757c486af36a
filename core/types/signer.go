package types

import (
	"errors"
	"math/big"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSig     = errors.New("types: invalid transaction signature")
	ErrInvalidChainID = errors.New("types: invalid chain ID for signer")
)

// secp256k1N is the secp256k1 curve order; secp256k1HalfN is used for the
// EIP-2 low-S malleability check.
var (
	secp256k1N, _  = new(big.Int).SetString("fffffffffffffffffffffffffffffffebaaedce6af48a03bbfd25e8cd0364141", 16)
	secp256k1HalfN = new(big.Int).Rsh(secp256k1N, 1)
)

// Signer derives the sender of a transaction and produces its signing hash.
// Each fork generation with new signature rules gets its own signer.
type Signer interface {
	// ChainID returns the chain the signer binds signatures to. Nil for
	// pre-EIP-155 signers.
	ChainID() *big.Int

	// Hash returns the hash the sender signed for the given transaction.
	Hash(tx *Transaction) Hash

	// Sender recovers the sender address from the transaction signature.
	Sender(tx *Transaction) (Address, error)
}

// FrontierSigner handles original legacy transactions: v in {27, 28},
// no replay protection, no low-S requirement.
type FrontierSigner struct{}

func (fs FrontierSigner) ChainID() *big.Int { return nil }

func (fs FrontierSigner) Hash(tx *Transaction) Hash {
	return tx.SigningHash(nil)
}

func (fs FrontierSigner) Sender(tx *Transaction) (Address, error) {
	if tx.Type() != LegacyTxType {
		return Address{}, ErrTxTypeNotSupported
	}
	v, r, s := tx.RawSignatureValues()
	if v == nil || r == nil || s == nil {
		return Address{}, ErrInvalidSig
	}
	return recoverPlain(fs.Hash(tx), r, s, v.Uint64(), 27, false)
}

// HomesteadSigner is FrontierSigner plus the EIP-2 low-S rule.
type HomesteadSigner struct{ FrontierSigner }

func (hs HomesteadSigner) Sender(tx *Transaction) (Address, error) {
	if tx.Type() != LegacyTxType {
		return Address{}, ErrTxTypeNotSupported
	}
	v, r, s := tx.RawSignatureValues()
	if v == nil || r == nil || s == nil {
		return Address{}, ErrInvalidSig
	}
	return recoverPlain(hs.Hash(tx), r, s, v.Uint64(), 27, true)
}

// EIP155Signer handles replay-protected legacy transactions where
// v = chainID*2 + 35 + parity. Unprotected (v = 27/28) signatures are
// still accepted for compatibility.
type EIP155Signer struct {
	chainID *big.Int
}

// NewEIP155Signer creates a signer for EIP-155 legacy transactions.
func NewEIP155Signer(chainID *big.Int) EIP155Signer {
	if chainID == nil {
		chainID = new(big.Int)
	}
	return EIP155Signer{chainID: chainID}
}

func (s EIP155Signer) ChainID() *big.Int { return s.chainID }

func (s EIP155Signer) Hash(tx *Transaction) Hash {
	v, _, _ := tx.RawSignatureValues()
	if isProtectedV(v) {
		return tx.SigningHash(s.chainID)
	}
	return tx.SigningHash(nil)
}

func (s EIP155Signer) Sender(tx *Transaction) (Address, error) {
	if tx.Type() != LegacyTxType {
		return Address{}, ErrTxTypeNotSupported
	}
	v, r, sv := tx.RawSignatureValues()
	if v == nil || r == nil || sv == nil {
		return Address{}, ErrInvalidSig
	}
	if !isProtectedV(v) {
		return recoverPlain(tx.SigningHash(nil), r, sv, v.Uint64(), 27, true)
	}
	if tx.ChainId().Cmp(s.chainID) != 0 {
		return Address{}, ErrInvalidChainID
	}
	// v = chainID*2 + 35 + parity
	offset := new(big.Int).Mul(s.chainID, big.NewInt(2))
	offset.Add(offset, big.NewInt(35))
	parity := new(big.Int).Sub(v, offset)
	if !parity.IsUint64() || parity.Uint64() > 1 {
		return Address{}, ErrInvalidSig
	}
	sig := byte(parity.Uint64())
	return recoverPlain(tx.SigningHash(s.chainID), r, sv, uint64(sig), 0, true)
}

// LondonSigner accepts every supported transaction type: legacy
// (protected or not) plus the 0x01-0x04 typed envelopes whose v is the
// raw y-parity bit.
type LondonSigner struct {
	eip155 EIP155Signer
}

// NewLondonSigner creates a signer supporting all transaction types.
func NewLondonSigner(chainID *big.Int) LondonSigner {
	return LondonSigner{eip155: NewEIP155Signer(chainID)}
}

func (s LondonSigner) ChainID() *big.Int { return s.eip155.chainID }

func (s LondonSigner) Hash(tx *Transaction) Hash {
	if tx.Type() == LegacyTxType {
		return s.eip155.Hash(tx)
	}
	return tx.SigningHash(s.eip155.chainID)
}

func (s LondonSigner) Sender(tx *Transaction) (Address, error) {
	if tx.Type() == LegacyTxType {
		return s.eip155.Sender(tx)
	}
	v, r, sv := tx.RawSignatureValues()
	if v == nil || r == nil || sv == nil {
		return Address{}, ErrInvalidSig
	}
	if tx.ChainId() != nil && tx.ChainId().Sign() != 0 &&
		tx.ChainId().Cmp(s.eip155.chainID) != 0 {
		return Address{}, ErrInvalidChainID
	}
	if !v.IsUint64() || v.Uint64() > 1 {
		return Address{}, ErrInvalidSig
	}
	return recoverPlain(tx.SigningHash(s.eip155.chainID), r, sv, v.Uint64(), 0, true)
}

// Authority recovers the signer of an EIP-7702 authorization tuple.
func (auth *Authorization) Authority() (Address, error) {
	if auth.V == nil || auth.R == nil || auth.S == nil {
		return Address{}, ErrInvalidSig
	}
	if !auth.V.IsUint64() || auth.V.Uint64() > 1 {
		return Address{}, ErrInvalidSig
	}
	return recoverPlain(AuthorizationSigningHash(auth), auth.R, auth.S, auth.V.Uint64(), 0, true)
}

// SignTx signs the transaction with the given signer and private key and
// returns a copy carrying the signature.
func SignTx(tx *Transaction, signer Signer, sign func(hash Hash) ([]byte, error)) (*Transaction, error) {
	h := signer.Hash(tx)
	sig, err := sign(h)
	if err != nil {
		return nil, err
	}
	if len(sig) != 65 {
		return nil, ErrInvalidSig
	}
	r := new(big.Int).SetBytes(sig[:32])
	s := new(big.Int).SetBytes(sig[32:64])
	var v *big.Int
	if tx.Type() == LegacyTxType {
		if chainID := signer.ChainID(); chainID != nil && chainID.Sign() != 0 {
			// v = chainID*2 + 35 + parity
			v = new(big.Int).Mul(chainID, big.NewInt(2))
			v.Add(v, big.NewInt(35))
			v.Add(v, new(big.Int).SetUint64(uint64(sig[64])))
		} else {
			v = new(big.Int).SetUint64(uint64(sig[64]) + 27)
		}
	} else {
		v = new(big.Int).SetUint64(uint64(sig[64]))
	}
	return tx.WithSignature(v, r, s), nil
}

// isProtectedV reports whether a legacy V value carries EIP-155 replay
// protection.
func isProtectedV(v *big.Int) bool {
	if v == nil {
		return false
	}
	if v.BitLen() <= 8 {
		val := v.Uint64()
		return val != 27 && val != 28
	}
	return true
}

// recoverPlain validates signature components and recovers the sender.
// vOffset is 27 for legacy v values, 0 for raw parity bits.
func recoverPlain(sighash Hash, r, s *big.Int, v, vOffset uint64, homestead bool) (Address, error) {
	if v < vOffset || v > vOffset+1 {
		return Address{}, ErrInvalidSig
	}
	parity := byte(v - vOffset)
	if r.Sign() <= 0 || s.Sign() <= 0 {
		return Address{}, ErrInvalidSig
	}
	if r.Cmp(secp256k1N) >= 0 || s.Cmp(secp256k1N) >= 0 {
		return Address{}, ErrInvalidSig
	}
	if homestead && s.Cmp(secp256k1HalfN) > 0 {
		return Address{}, ErrInvalidSig
	}
	sig := make([]byte, 65)
	rb, sb := r.Bytes(), s.Bytes()
	copy(sig[32-len(rb):32], rb)
	copy(sig[64-len(sb):64], sb)
	sig[64] = parity

	pub, err := gethcrypto.Ecrecover(sighash[:], sig)
	if err != nil {
		return Address{}, ErrInvalidSig
	}
	if len(pub) == 0 || pub[0] != 4 {
		return Address{}, ErrInvalidSig
	}
	return BytesToAddress(keccak256(pub[1:])[12:]), nil
}
