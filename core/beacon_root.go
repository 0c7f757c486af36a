package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

// EIP-4788: the parent beacon block root is written into a ring buffer
// in the beacon roots contract before any transaction executes.

// BeaconRootsAddress is the predeployed beacon roots contract.
var BeaconRootsAddress = types.HexToAddress("0x000F3df6D732807Ef1319fB7B8bB8522d0Beac02")

const beaconRootsBufferLength = 8191

// ProcessBeaconBlockRoot stores the parent beacon root keyed by
// timestamp in the contract's ring buffer. This is a system operation:
// no gas, no transaction, no receipt.
func ProcessBeaconBlockRoot(statedb *state.StateDB, beaconRoot types.Hash, time uint64) {
	timeSlot := new(big.Int).SetUint64(time % beaconRootsBufferLength)
	rootSlot := new(big.Int).Add(timeSlot, big.NewInt(beaconRootsBufferLength))

	statedb.SetState(BeaconRootsAddress, types.BigToHash(timeSlot), types.BigToHash(new(big.Int).SetUint64(time)))
	statedb.SetState(BeaconRootsAddress, types.BigToHash(rootSlot), beaconRoot)
}
