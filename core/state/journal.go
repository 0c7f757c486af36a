// Package state implements the journaled account state database: balances,
// nonces, code, per-account storage, transient storage, warm/cold access
// tracking, and Merkle-Patricia state-root computation.
package state

import (
	"github.com/holiman/uint256"

	"github.com/evmcore/evmcore/core/types"
)

// journalEntry is a single revertible state change.
type journalEntry interface {
	revert(s *StateDB)
}

// journal tracks state mutations so nested call frames can revert to a
// snapshot. Snapshot identifiers map to journal lengths; reverting
// replays entries backwards.
type journal struct {
	entries   []journalEntry
	snapshots map[int]int // snapshot id -> entry index
	nextID    int
}

func newJournal() *journal {
	return &journal{snapshots: make(map[int]int)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

func (j *journal) snapshot() int {
	id := j.nextID
	j.nextID++
	j.snapshots[id] = len(j.entries)
	return id
}

func (j *journal) revertToSnapshot(id int, s *StateDB) {
	idx, ok := j.snapshots[id]
	if !ok {
		return
	}
	for i := len(j.entries) - 1; i >= idx; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:idx]

	for sid := range j.snapshots {
		if sid >= id {
			delete(j.snapshots, sid)
		}
	}
}

// reset drops all entries and snapshots (called by Finalise at every
// transaction boundary).
func (j *journal) reset() {
	j.entries = j.entries[:0]
	j.snapshots = make(map[int]int)
	j.nextID = 0
}

// Concrete journal entries.

type createAccountChange struct {
	addr types.Address
	prev *stateObject // nil if the account did not exist
}

func (ch createAccountChange) revert(s *StateDB) {
	if ch.prev == nil {
		delete(s.stateObjects, ch.addr)
	} else {
		s.stateObjects[ch.addr] = ch.prev
	}
}

type createContractChange struct {
	addr types.Address
}

func (ch createContractChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.newContract = false
	}
}

type balanceChange struct {
	addr types.Address
	prev *uint256.Int
}

func (ch balanceChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.balance = new(uint256.Int).Set(ch.prev)
	}
}

type nonceChange struct {
	addr types.Address
	prev uint64
}

func (ch nonceChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.nonce = ch.prev
	}
}

type codeChange struct {
	addr     types.Address
	prevCode []byte
	prevHash types.Hash
}

func (ch codeChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.code = ch.prevCode
		obj.codeHash = ch.prevHash
	}
}

type storageChange struct {
	addr       types.Address
	key        types.Hash
	prev       types.Hash
	prevExists bool // whether the slot was already in dirtyStorage
}

func (ch storageChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		if ch.prevExists {
			obj.dirtyStorage[ch.key] = ch.prev
		} else {
			delete(obj.dirtyStorage, ch.key)
		}
	}
}

type selfDestructChange struct {
	addr        types.Address
	prevFlag    bool
	prevBalance *uint256.Int
}

func (ch selfDestructChange) revert(s *StateDB) {
	if obj := s.getStateObject(ch.addr); obj != nil {
		obj.selfDestructed = ch.prevFlag
		obj.balance = new(uint256.Int).Set(ch.prevBalance)
	}
}

type touchChange struct {
	addr       types.Address
	prevAbsent bool
}

func (ch touchChange) revert(s *StateDB) {
	if ch.prevAbsent {
		s.touched.Remove(ch.addr)
	}
}

type accessListAddAccountChange struct {
	addr types.Address
}

func (ch accessListAddAccountChange) revert(s *StateDB) {
	s.accessList.DeleteAddress(ch.addr)
}

type accessListAddSlotChange struct {
	addr types.Address
	slot types.Hash
}

func (ch accessListAddSlotChange) revert(s *StateDB) {
	s.accessList.DeleteSlot(ch.addr, ch.slot)
}

type transientStorageChange struct {
	addr types.Address
	key  types.Hash
	prev types.Hash
}

func (ch transientStorageChange) revert(s *StateDB) {
	if ch.prev == (types.Hash{}) {
		delete(s.transientStorage[ch.addr], ch.key)
		if len(s.transientStorage[ch.addr]) == 0 {
			delete(s.transientStorage, ch.addr)
		}
	} else {
		// The forward write may have emptied and dropped the inner map;
		// recreate it just as SetTransientState does.
		m := s.transientStorage[ch.addr]
		if m == nil {
			m = make(map[types.Hash]types.Hash)
			s.transientStorage[ch.addr] = m
		}
		m[ch.key] = ch.prev
	}
}

type logChange struct {
	txHash types.Hash
}

func (ch logChange) revert(s *StateDB) {
	logs := s.logs[ch.txHash]
	if len(logs) > 0 {
		s.logs[ch.txHash] = logs[:len(logs)-1]
	}
	if len(s.logs[ch.txHash]) == 0 {
		delete(s.logs, ch.txHash)
	}
	s.logSize--
}

type refundChange struct {
	prev uint64
}

func (ch refundChange) revert(s *StateDB) {
	s.refund = ch.prev
}
