package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/log"
)

// EIP-7702 gas constants.
const (
	// PerAuthBaseCost is the net per-tuple cost for an authority that
	// already exists, after the refund described below.
	PerAuthBaseCost uint64 = 12500

	// PerEmptyAccountCost is the intrinsic charge per tuple; the
	// difference to PerAuthBaseCost is refunded when the authority
	// already exists.
	PerEmptyAccountCost uint64 = 25000
)

// ProcessAuthorizations applies the authorization list of a set-code
// transaction before the main call runs. Invalid tuples are skipped, not
// fatal. Each applied authorization installs the delegation designator
// on the authority account and bumps its nonce; authorities that already
// existed credit the refund accumulator.
func ProcessAuthorizations(statedb *state.StateDB, auths []types.Authorization, chainID *big.Int) {
	logger := log.Default().Module("core")
	for i := range auths {
		if err := applyAuthorization(statedb, &auths[i], chainID); err != nil {
			logger.Debug("skipping invalid authorization", "index", i, "err", err)
		}
	}
}

func applyAuthorization(statedb *state.StateDB, auth *types.Authorization, chainID *big.Int) error {
	// Chain ID must match the current chain or be the zero wildcard.
	if auth.ChainID != nil && auth.ChainID.Sign() != 0 {
		if chainID == nil || auth.ChainID.Cmp(chainID) != 0 {
			return ErrInvalidSignature
		}
	}

	authority, err := auth.Authority()
	if err != nil {
		return err
	}

	// The authority must be an EOA (possibly already delegated).
	if code := statedb.GetCode(authority); len(code) > 0 && !types.HasDelegationPrefix(code) {
		return ErrSenderNoEOA
	}

	// Nonce must match; the EIP caps usable nonces below 2^64-1.
	currentNonce := statedb.GetNonce(authority)
	if auth.Nonce != currentNonce {
		return ErrNonceTooLow
	}

	// An existing authority refunds the empty-account premium.
	if statedb.Exist(authority) {
		statedb.AddRefund(PerEmptyAccountCost - PerAuthBaseCost)
	}

	// Warm the authority per the EIP.
	statedb.AddAddressToAccessList(authority)

	// Delegating to the zero address clears the delegation.
	if auth.Address.IsZero() {
		statedb.SetCode(authority, nil)
	} else {
		statedb.SetCode(authority, types.MakeDelegationCode(auth.Address))
	}
	statedb.SetNonce(authority, currentNonce+1)
	return nil
}
