package state

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/evmcore/evmcore/core/types"
)

// Witness is the meta witness emitted by Persist: the trie nodes, account
// addresses, code hashes, and storage slots touched while executing a
// block.
type Witness struct {
	trieNodes mapset.Set[types.Hash]
	accounts  mapset.Set[types.Address]
	codes     mapset.Set[types.Hash]
	slots     map[types.Address]mapset.Set[types.Hash]
}

// NewWitness creates an empty witness accumulator.
func NewWitness() *Witness {
	return &Witness{
		trieNodes: mapset.NewThreadUnsafeSet[types.Hash](),
		accounts:  mapset.NewThreadUnsafeSet[types.Address](),
		codes:     mapset.NewThreadUnsafeSet[types.Hash](),
		slots:     make(map[types.Address]mapset.Set[types.Hash]),
	}
}

// AddTrieNode records a touched trie node hash.
func (w *Witness) AddTrieNode(hash types.Hash) { w.trieNodes.Add(hash) }

// AddAccount records a touched account.
func (w *Witness) AddAccount(addr types.Address) { w.accounts.Add(addr) }

// AddCode records a touched code hash.
func (w *Witness) AddCode(hash types.Hash) { w.codes.Add(hash) }

// AddSlot records an accessed storage slot.
func (w *Witness) AddSlot(addr types.Address, slot types.Hash) {
	set, ok := w.slots[addr]
	if !ok {
		set = mapset.NewThreadUnsafeSet[types.Hash]()
		w.slots[addr] = set
	}
	set.Add(slot)
}

// TrieNodes returns the touched trie node hashes.
func (w *Witness) TrieNodes() []types.Hash { return w.trieNodes.ToSlice() }

// Accounts returns the touched account addresses.
func (w *Witness) Accounts() []types.Address { return w.accounts.ToSlice() }

// Codes returns the touched code hashes.
func (w *Witness) Codes() []types.Hash { return w.codes.ToSlice() }

// Slots returns the accessed storage slots for an account.
func (w *Witness) Slots(addr types.Address) []types.Hash {
	if set, ok := w.slots[addr]; ok {
		return set.ToSlice()
	}
	return nil
}
