package state

import (
	"github.com/holiman/uint256"

	"github.com/evmcore/evmcore/core/types"
)

// stateObject is the in-memory representation of one account and its
// storage. Balances are held as uint256 words; the *big.Int interface
// conversion happens at the StateDB boundary.
type stateObject struct {
	nonce    uint64
	balance  *uint256.Int
	codeHash types.Hash
	code     []byte

	// committedStorage holds slot values as of the last Finalise (the
	// transaction boundary); it is the "original" value source for
	// EIP-2200 net gas metering. dirtyStorage holds writes made by the
	// current transaction.
	committedStorage map[types.Hash]types.Hash
	dirtyStorage     map[types.Hash]types.Hash

	selfDestructed bool
	newContract    bool // created in the current transaction (EIP-6780)
}

func newStateObject() *stateObject {
	return &stateObject{
		balance:          new(uint256.Int),
		codeHash:         types.EmptyCodeHash,
		committedStorage: make(map[types.Hash]types.Hash),
		dirtyStorage:     make(map[types.Hash]types.Hash),
	}
}

// empty implements the EIP-161 definition: zero nonce, zero balance, no
// code.
func (obj *stateObject) empty() bool {
	return obj.nonce == 0 && obj.balance.IsZero() && obj.codeHash == types.EmptyCodeHash
}

// getState returns the current value of a slot (dirty write if present,
// committed value otherwise).
func (obj *stateObject) getState(key types.Hash) types.Hash {
	if val, ok := obj.dirtyStorage[key]; ok {
		return val
	}
	return obj.committedStorage[key]
}

// getCommittedState returns the slot value as of the transaction start.
func (obj *stateObject) getCommittedState(key types.Hash) types.Hash {
	return obj.committedStorage[key]
}

// finalise merges the current transaction's writes into committed storage
// and clears per-transaction flags.
func (obj *stateObject) finalise() {
	for key, val := range obj.dirtyStorage {
		if val == (types.Hash{}) {
			delete(obj.committedStorage, key)
		} else {
			obj.committedStorage[key] = val
		}
	}
	obj.dirtyStorage = make(map[types.Hash]types.Hash)
	obj.newContract = false
}

// storageEntries returns the effective storage mapping (committed plus
// dirty, zero values removed).
func (obj *stateObject) storageEntries() map[types.Hash]types.Hash {
	out := make(map[types.Hash]types.Hash, len(obj.committedStorage)+len(obj.dirtyStorage))
	for k, v := range obj.committedStorage {
		if v != (types.Hash{}) {
			out[k] = v
		}
	}
	for k, v := range obj.dirtyStorage {
		if v == (types.Hash{}) {
			delete(out, k)
		} else {
			out[k] = v
		}
	}
	return out
}
