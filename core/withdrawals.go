package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

// ProcessWithdrawals credits validator payouts after all transactions
// (EIP-4895). Amounts are in Gwei and converted to wei. Withdrawals
// consume no gas. Targets that remain empty after the credit (a
// zero-amount withdrawal to a fresh address) are touched and collected
// by the block-end empty-account sweep.
func ProcessWithdrawals(statedb *state.StateDB, withdrawals []*types.Withdrawal) error {
	if err := types.ValidateWithdrawals(withdrawals); err != nil {
		return err
	}
	for _, w := range withdrawals {
		amount := new(big.Int).SetUint64(w.Amount)
		amount.Mul(amount, big.NewInt(types.GweiToWei))
		statedb.AddBalance(w.Address, amount)
	}
	return nil
}
