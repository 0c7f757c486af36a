package types

import (
	"errors"
	"fmt"

	"github.com/evmcore/evmcore/rlp"
)

// Withdrawal represents a validator payout pushed from the beacon chain
// (EIP-4895). Amounts are denominated in Gwei.
type Withdrawal struct {
	Index          uint64
	ValidatorIndex uint64
	Address        Address
	Amount         uint64
}

var (
	errNilWithdrawal       = errors.New("types: withdrawal is nil")
	errDuplicateWithdrawal = errors.New("types: duplicate withdrawal index")
)

// GweiToWei converts withdrawal amounts to wei: 1 Gwei = 1e9 wei.
const GweiToWei = 1_000_000_000

// EncodeRLP encodes the withdrawal as [index, validatorIndex, address, amount].
func (w *Withdrawal) EncodeRLP() ([]byte, error) {
	return encodeRLPList([]interface{}{w.Index, w.ValidatorIndex, w.Address, w.Amount})
}

// Hash returns keccak256 of the withdrawal's RLP encoding, used by the
// withdrawal-hash-to-block index.
func (w *Withdrawal) Hash() Hash {
	enc, _ := w.EncodeRLP()
	return keccak256Hash(enc)
}

// DecodeWithdrawal decodes a withdrawal from its RLP encoding.
func DecodeWithdrawal(data []byte) (*Withdrawal, error) {
	s := rlp.NewStreamBytes(data)
	w, err := decodeWithdrawalStream(s)
	if err != nil {
		return nil, fmt.Errorf("types: decode withdrawal: %w", err)
	}
	return w, nil
}

func decodeWithdrawalStream(s *rlp.Stream) (*Withdrawal, error) {
	if _, err := s.List(); err != nil {
		return nil, err
	}
	w := &Withdrawal{}
	var err error
	if w.Index, err = s.Uint64(); err != nil {
		return nil, err
	}
	if w.ValidatorIndex, err = s.Uint64(); err != nil {
		return nil, err
	}
	b, err := s.Bytes()
	if err != nil {
		return nil, err
	}
	if len(b) != AddressLength {
		return nil, errBadRecipient
	}
	w.Address = BytesToAddress(b)
	if w.Amount, err = s.Uint64(); err != nil {
		return nil, err
	}
	if err = s.ListEnd(); err != nil {
		return nil, err
	}
	return w, nil
}

// ValidateWithdrawals checks a block's withdrawal list for nil entries and
// duplicate indices.
func ValidateWithdrawals(withdrawals []*Withdrawal) error {
	seen := make(map[uint64]bool, len(withdrawals))
	for _, w := range withdrawals {
		if w == nil {
			return errNilWithdrawal
		}
		if seen[w.Index] {
			return fmt.Errorf("%w: %d", errDuplicateWithdrawal, w.Index)
		}
		seen[w.Index] = true
	}
	return nil
}
