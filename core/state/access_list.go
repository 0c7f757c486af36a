package state

import "github.com/evmcore/evmcore/core/types"

// accessList tracks warm addresses and storage slots for the current
// transaction (EIP-2929). Additions are journaled by the StateDB so they
// roll back with the enclosing call frame.
type accessList struct {
	addresses map[types.Address]int
	slots     []map[types.Hash]struct{}
}

func newAccessList() *accessList {
	return &accessList{addresses: make(map[types.Address]int)}
}

// ContainsAddress reports whether the address is warm.
func (al *accessList) ContainsAddress(addr types.Address) bool {
	_, ok := al.addresses[addr]
	return ok
}

// Contains reports whether the address and the (address, slot) pair are
// warm.
func (al *accessList) Contains(addr types.Address, slot types.Hash) (addressOk, slotOk bool) {
	idx, ok := al.addresses[addr]
	if !ok {
		return false, false
	}
	if idx < 0 {
		return true, false
	}
	_, slotOk = al.slots[idx][slot]
	return true, slotOk
}

// AddAddress warms an address. Returns false if it was already warm.
func (al *accessList) AddAddress(addr types.Address) bool {
	if _, ok := al.addresses[addr]; ok {
		return false
	}
	al.addresses[addr] = -1
	return true
}

// AddSlot warms an (address, slot) pair, warming the address as needed.
// Returns whether the address and the slot were newly added.
func (al *accessList) AddSlot(addr types.Address, slot types.Hash) (addrAdded, slotAdded bool) {
	idx, addrOk := al.addresses[addr]
	if !addrOk || idx == -1 {
		al.addresses[addr] = len(al.slots)
		al.slots = append(al.slots, map[types.Hash]struct{}{slot: {}})
		return !addrOk, true
	}
	if _, ok := al.slots[idx][slot]; ok {
		return false, false
	}
	al.slots[idx][slot] = struct{}{}
	return false, true
}

// DeleteAddress unwinds an AddAddress (journal revert only; the address
// must have no slot map).
func (al *accessList) DeleteAddress(addr types.Address) {
	delete(al.addresses, addr)
}

// DeleteSlot unwinds an AddSlot (journal revert only, reverse order).
func (al *accessList) DeleteSlot(addr types.Address, slot types.Hash) {
	idx, ok := al.addresses[addr]
	if !ok || idx < 0 {
		return
	}
	delete(al.slots[idx], slot)
	if len(al.slots[idx]) == 0 && idx == len(al.slots)-1 {
		al.slots = al.slots[:idx]
		al.addresses[addr] = -1
	}
}

// Reset clears all warmth (transaction boundary).
func (al *accessList) Reset() {
	al.addresses = make(map[types.Address]int)
	al.slots = nil
}
