package state

import (
	"errors"
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/holiman/uint256"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/crypto"
	"github.com/evmcore/evmcore/rlp"
	"github.com/evmcore/evmcore/trie"
)

// ErrStaleRoot is returned by Persist when state was mutated after the
// last MakeStateRoot call.
var ErrStaleRoot = errors.New("state: root is stale, call MakeStateRoot first")

// StateDB holds the full journaled world state for block execution. It is
// single-threaded by design: every call frame borrows it exclusively in
// stack discipline through the snapshot API.
type StateDB struct {
	db rawdb.Database // backing store for code blobs and trie nodes

	stateObjects map[types.Address]*stateObject
	journal      *journal
	refund       uint64

	logs    map[types.Hash][]*types.Log
	logSize uint
	txHash  types.Hash
	txIndex int

	accessList       *accessList
	transientStorage map[types.Address]map[types.Hash]types.Hash

	// touched tracks accounts touched during the current transaction for
	// EIP-161 empty-account deletion.
	touched mapset.Set[types.Address]

	// witness accumulates everything block execution has read or written,
	// emitted by Persist.
	witness *Witness

	// Root staleness tracking for the MakeStateRoot/Persist contract.
	root      types.Hash
	rootValid bool
}

// New creates an empty state over the given backing database.
func New(db rawdb.Database) *StateDB {
	return &StateDB{
		db:               db,
		stateObjects:     make(map[types.Address]*stateObject),
		journal:          newJournal(),
		logs:             make(map[types.Hash][]*types.Log),
		accessList:       newAccessList(),
		transientStorage: make(map[types.Address]map[types.Hash]types.Hash),
		touched:          mapset.NewThreadUnsafeSet[types.Address](),
		witness:          NewWitness(),
	}
}

func (s *StateDB) getStateObject(addr types.Address) *stateObject {
	return s.stateObjects[addr]
}

func (s *StateDB) getOrNewStateObject(addr types.Address) *stateObject {
	if obj := s.stateObjects[addr]; obj != nil {
		return obj
	}
	s.journal.append(createAccountChange{addr: addr})
	obj := newStateObject()
	s.stateObjects[addr] = obj
	return obj
}

func (s *StateDB) markDirty() { s.rootValid = false }

// touch records an account as touched for EIP-161 cleanup.
func (s *StateDB) touch(addr types.Address) {
	if s.touched.Contains(addr) {
		return
	}
	s.journal.append(touchChange{addr: addr, prevAbsent: true})
	s.touched.Add(addr)
}

// Account operations.

// CreateAccount creates a fresh account at addr, replacing any existing
// object (the caller is responsible for balance carry-over rules).
func (s *StateDB) CreateAccount(addr types.Address) {
	prev := s.stateObjects[addr]
	s.journal.append(createAccountChange{addr: addr, prev: prev})
	obj := newStateObject()
	if prev != nil {
		obj.balance = new(uint256.Int).Set(prev.balance)
	}
	s.stateObjects[addr] = obj
	s.markDirty()
}

// CreateContract marks addr as a contract created in the current
// transaction (EIP-6780 SELFDESTRUCT scoping).
func (s *StateDB) CreateContract(addr types.Address) {
	obj := s.getOrNewStateObject(addr)
	if !obj.newContract {
		s.journal.append(createContractChange{addr: addr})
		obj.newContract = true
	}
}

// GetBalance returns the balance of addr (zero for absent accounts).
func (s *StateDB) GetBalance(addr types.Address) *big.Int {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.balance.ToBig()
	}
	return new(big.Int)
}

// AddBalance credits addr. A zero-amount credit still touches the account.
func (s *StateDB) AddBalance(addr types.Address, amount *big.Int) {
	obj := s.getOrNewStateObject(addr)
	s.touch(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.balance)})
	add, _ := uint256.FromBig(amount)
	obj.balance = new(uint256.Int).Add(obj.balance, add)
	s.markDirty()
}

// SubBalance debits addr. The caller guarantees no underflow.
func (s *StateDB) SubBalance(addr types.Address, amount *big.Int) {
	obj := s.getOrNewStateObject(addr)
	s.touch(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.balance)})
	sub, _ := uint256.FromBig(amount)
	obj.balance = new(uint256.Int).Sub(obj.balance, sub)
	s.markDirty()
}

// SetBalance sets the balance of addr outright (genesis and tests).
func (s *StateDB) SetBalance(addr types.Address, amount *big.Int) {
	obj := s.getOrNewStateObject(addr)
	s.journal.append(balanceChange{addr: addr, prev: new(uint256.Int).Set(obj.balance)})
	obj.balance, _ = uint256.FromBig(amount)
	s.markDirty()
}

// GetNonce returns the nonce of addr.
func (s *StateDB) GetNonce(addr types.Address) uint64 {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.nonce
	}
	return 0
}

// SetNonce sets the nonce of addr.
func (s *StateDB) SetNonce(addr types.Address, nonce uint64) {
	obj := s.getOrNewStateObject(addr)
	s.touch(addr)
	s.journal.append(nonceChange{addr: addr, prev: obj.nonce})
	obj.nonce = nonce
	s.markDirty()
}

// GetCode returns the code of addr.
func (s *StateDB) GetCode(addr types.Address) []byte {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.code
	}
	return nil
}

// GetCodeSize returns the code size of addr.
func (s *StateDB) GetCodeSize(addr types.Address) int {
	return len(s.GetCode(addr))
}

// GetCodeHash returns the code hash of addr, or the zero hash for absent
// accounts.
func (s *StateDB) GetCodeHash(addr types.Address) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.codeHash
	}
	return types.Hash{}
}

// SetCode installs code at addr, updating the code hash.
func (s *StateDB) SetCode(addr types.Address, code []byte) {
	obj := s.getOrNewStateObject(addr)
	s.touch(addr)
	s.journal.append(codeChange{addr: addr, prevCode: obj.code, prevHash: obj.codeHash})
	obj.code = append([]byte(nil), code...)
	if len(code) == 0 {
		obj.codeHash = types.EmptyCodeHash
	} else {
		obj.codeHash = crypto.Keccak256Hash(code)
	}
	s.witness.AddCode(obj.codeHash)
	s.markDirty()
}

// DeleteCode removes the code at addr.
func (s *StateDB) DeleteCode(addr types.Address) {
	s.SetCode(addr, nil)
}

// Storage operations.

// GetState returns the current value of a storage slot.
func (s *StateDB) GetState(addr types.Address, key types.Hash) types.Hash {
	s.witness.AddSlot(addr, key)
	if obj := s.getStateObject(addr); obj != nil {
		return obj.getState(key)
	}
	return types.Hash{}
}

// GetCommittedState returns the value of a storage slot as of the start
// of the current transaction (the EIP-2200 "original" value).
func (s *StateDB) GetCommittedState(addr types.Address, key types.Hash) types.Hash {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.getCommittedState(key)
	}
	return types.Hash{}
}

// SetState writes a storage slot. Slot zero is an in-band value: writing
// a zero value is a logical deletion, applied physically at Finalise.
func (s *StateDB) SetState(addr types.Address, key, value types.Hash) {
	obj := s.getOrNewStateObject(addr)
	s.touch(addr)
	prev, existed := obj.dirtyStorage[key]
	s.journal.append(storageChange{addr: addr, key: key, prev: prev, prevExists: existed})
	obj.dirtyStorage[key] = value
	s.witness.AddSlot(addr, key)
	s.markDirty()
}

// DeleteStorage clears the entire storage of addr.
func (s *StateDB) DeleteStorage(addr types.Address) {
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	// Clearing is modeled as zero-writes so journal revert restores the
	// previous values slot by slot.
	for key := range obj.storageEntries() {
		s.SetState(addr, key, types.Hash{})
	}
}

// SetStorage installs a full storage mapping without journaling. Used by
// genesis initialization only.
func (s *StateDB) SetStorage(addr types.Address, storage map[types.Hash]types.Hash) {
	obj := s.getOrNewStateObject(addr)
	obj.committedStorage = make(map[types.Hash]types.Hash, len(storage))
	for k, v := range storage {
		if v != (types.Hash{}) {
			obj.committedStorage[k] = v
		}
	}
	s.markDirty()
}

// Self-destruct.

// SelfDestruct marks addr for deletion at transaction end and zeroes its
// balance. The balance transfer to the beneficiary happens in the opcode.
func (s *StateDB) SelfDestruct(addr types.Address) {
	obj := s.getStateObject(addr)
	if obj == nil {
		return
	}
	s.journal.append(selfDestructChange{
		addr:        addr,
		prevFlag:    obj.selfDestructed,
		prevBalance: new(uint256.Int).Set(obj.balance),
	})
	obj.selfDestructed = true
	obj.balance = new(uint256.Int)
	s.markDirty()
}

// SelfDestruct6780 applies the Cancun rule: full deletion only when the
// contract was created in the same transaction. Returns whether deletion
// was scheduled.
func (s *StateDB) SelfDestruct6780(addr types.Address) bool {
	obj := s.getStateObject(addr)
	if obj == nil {
		return false
	}
	if obj.newContract {
		s.SelfDestruct(addr)
		return true
	}
	return false
}

// HasSelfDestructed reports whether addr is scheduled for deletion.
func (s *StateDB) HasSelfDestructed(addr types.Address) bool {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.selfDestructed
	}
	return false
}

// CreatedInTransaction reports whether addr was created in the current
// transaction.
func (s *StateDB) CreatedInTransaction(addr types.Address) bool {
	if obj := s.getStateObject(addr); obj != nil {
		return obj.newContract
	}
	return false
}

// Existence.

// Exist reports whether addr has a state object.
func (s *StateDB) Exist(addr types.Address) bool {
	return s.getStateObject(addr) != nil
}

// Empty reports whether addr is empty per EIP-161.
func (s *StateDB) Empty(addr types.Address) bool {
	obj := s.getStateObject(addr)
	return obj == nil || obj.empty()
}

// HasCodeOrNonce reports whether addr has non-empty code or a non-zero
// nonce (the contract-creation collision test).
func (s *StateDB) HasCodeOrNonce(addr types.Address) bool {
	obj := s.getStateObject(addr)
	if obj == nil {
		return false
	}
	return obj.nonce != 0 || obj.codeHash != types.EmptyCodeHash
}

// TouchAccount marks addr as touched without mutating it.
func (s *StateDB) TouchAccount(addr types.Address) {
	s.touch(addr)
}

// Snapshots.

// Snapshot returns an identifier for the current state of the journal.
func (s *StateDB) Snapshot() int {
	return s.journal.snapshot()
}

// RevertToSnapshot undoes all changes made since the given snapshot.
func (s *StateDB) RevertToSnapshot(id int) {
	s.journal.revertToSnapshot(id, s)
	s.markDirty()
}

// Logs.

// SetTxContext sets the hash and index of the transaction being executed,
// used for log attribution.
func (s *StateDB) SetTxContext(txHash types.Hash, txIndex int) {
	s.txHash = txHash
	s.txIndex = txIndex
}

// AddLog appends a log for the current transaction, assigning its
// sequence numbers.
func (s *StateDB) AddLog(l *types.Log) {
	s.journal.append(logChange{txHash: s.txHash})
	l.TxHash = s.txHash
	l.TxIndex = uint(s.txIndex)
	l.Index = s.logSize
	s.logs[s.txHash] = append(s.logs[s.txHash], l)
	s.logSize++
}

// GetLogs returns the logs recorded for a transaction.
func (s *StateDB) GetLogs(txHash types.Hash) []*types.Log {
	return s.logs[txHash]
}

// Refund counter.

// AddRefund credits the refund accumulator.
func (s *StateDB) AddRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	s.refund += gas
}

// SubRefund debits the refund accumulator (EIP-2200 resets).
func (s *StateDB) SubRefund(gas uint64) {
	s.journal.append(refundChange{prev: s.refund})
	if gas > s.refund {
		gas = s.refund
	}
	s.refund -= gas
}

// GetRefund returns the accumulated refund.
func (s *StateDB) GetRefund() uint64 {
	return s.refund
}

// Access list (EIP-2929).

// AddAddressToAccessList warms an address.
func (s *StateDB) AddAddressToAccessList(addr types.Address) {
	if s.accessList.AddAddress(addr) {
		s.journal.append(accessListAddAccountChange{addr: addr})
	}
}

// AddSlotToAccessList warms an (address, slot) pair.
func (s *StateDB) AddSlotToAccessList(addr types.Address, slot types.Hash) {
	addrAdded, slotAdded := s.accessList.AddSlot(addr, slot)
	if addrAdded {
		s.journal.append(accessListAddAccountChange{addr: addr})
	}
	if slotAdded {
		s.journal.append(accessListAddSlotChange{addr: addr, slot: slot})
	}
}

// AddressInAccessList reports whether addr is warm.
func (s *StateDB) AddressInAccessList(addr types.Address) bool {
	return s.accessList.ContainsAddress(addr)
}

// SlotInAccessList reports warmth of the address and slot.
func (s *StateDB) SlotInAccessList(addr types.Address, slot types.Hash) (addressOk, slotOk bool) {
	return s.accessList.Contains(addr, slot)
}

// Transient storage (EIP-1153).

// GetTransientState returns the transient value of a slot.
func (s *StateDB) GetTransientState(addr types.Address, key types.Hash) types.Hash {
	if m := s.transientStorage[addr]; m != nil {
		return m[key]
	}
	return types.Hash{}
}

// SetTransientState writes a transient slot, journaled in lockstep with
// persistent state.
func (s *StateDB) SetTransientState(addr types.Address, key, value types.Hash) {
	prev := s.GetTransientState(addr, key)
	if prev == value {
		return
	}
	s.journal.append(transientStorageChange{addr: addr, key: key, prev: prev})
	m := s.transientStorage[addr]
	if m == nil {
		m = make(map[types.Hash]types.Hash)
		s.transientStorage[addr] = m
	}
	if value == (types.Hash{}) {
		delete(m, key)
		if len(m) == 0 {
			delete(s.transientStorage, addr)
		}
	} else {
		m[key] = value
	}
}

// ClearTransientStorage drops all transient storage (transaction
// boundary, unconditional).
func (s *StateDB) ClearTransientStorage() {
	s.transientStorage = make(map[types.Address]map[types.Hash]types.Hash)
}

// Finalise applies end-of-transaction rules: selfdestructed accounts are
// removed, touched empty accounts are deleted when deleteEmpty is set
// (EIP-161, Spurious Dragon onward), per-transaction storage is merged,
// and the warmth, refund, and transient state are reset.
func (s *StateDB) Finalise(deleteEmpty bool) {
	for addr, obj := range s.stateObjects {
		switch {
		case obj.selfDestructed:
			delete(s.stateObjects, addr)
		case deleteEmpty && obj.empty() && s.touched.Contains(addr):
			delete(s.stateObjects, addr)
		default:
			obj.finalise()
		}
	}
	s.touched = mapset.NewThreadUnsafeSet[types.Address]()
	s.accessList.Reset()
	s.ClearTransientStorage()
	s.refund = 0
	s.journal.reset()
	s.markDirty()
}

// MakeStateRoot builds every dirty account's storage trie, folds the
// results into the main account trie, and returns the state root. The
// tries are rebuilt from the in-memory object set; nothing is persisted.
func (s *StateDB) MakeStateRoot() (types.Hash, error) {
	root, err := s.buildTries(nil)
	if err != nil {
		return types.Hash{}, err
	}
	s.root = root
	s.rootValid = true
	return root, nil
}

// IntermediateRoot finalises the current transaction and computes the
// state root (the pre-Byzantium per-receipt root).
func (s *StateDB) IntermediateRoot(deleteEmpty bool) (types.Hash, error) {
	s.Finalise(deleteEmpty)
	return s.MakeStateRoot()
}

// Persist flushes trie nodes and code blobs to the backing store and
// returns the accumulated witness. MakeStateRoot must have been called
// with no intervening writes.
func (s *StateDB) Persist() (*Witness, error) {
	if !s.rootValid {
		return nil, ErrStaleRoot
	}
	batch := s.db.NewBatch()
	writer := batchNodeWriter{batch: batch, witness: s.witness}
	if _, err := s.buildTries(writer); err != nil {
		return nil, err
	}
	for addr, obj := range s.stateObjects {
		s.witness.AddAccount(addr)
		if len(obj.code) > 0 {
			if err := batch.Put(obj.codeHash.Bytes(), obj.code); err != nil {
				return nil, err
			}
			s.witness.AddCode(obj.codeHash)
		}
	}
	if err := batch.Write(); err != nil {
		return nil, err
	}
	witness := s.witness
	s.witness = NewWitness()
	return witness, nil
}

// Commit finalises, computes the state root, and persists in one step.
func (s *StateDB) Commit() (types.Hash, error) {
	root, err := s.IntermediateRoot(true)
	if err != nil {
		return types.Hash{}, err
	}
	if _, err := s.Persist(); err != nil {
		return types.Hash{}, err
	}
	return root, nil
}

// batchNodeWriter adapts a rawdb batch to trie.NodeWriter, recording each
// node into the witness.
type batchNodeWriter struct {
	batch   rawdb.Batch
	witness *Witness
}

func (w batchNodeWriter) PutNode(hash types.Hash, enc []byte) error {
	w.witness.AddTrieNode(hash)
	return w.batch.Put(hash.Bytes(), enc)
}

// buildTries constructs the storage tries and the account trie from the
// live object set. When w is non-nil every node is also handed to it.
func (s *StateDB) buildTries(w trie.NodeWriter) (types.Hash, error) {
	mainTrie := trie.NewSecure()
	for addr, obj := range s.stateObjects {
		storageTrie := trie.NewSecure()
		for key, val := range obj.storageEntries() {
			enc, err := rlp.EncodeToBytes(new(big.Int).SetBytes(val[:]))
			if err != nil {
				return types.Hash{}, err
			}
			if err := storageTrie.Put(key[:], enc); err != nil {
				return types.Hash{}, err
			}
		}
		var (
			storageRoot types.Hash
			err         error
		)
		if w != nil {
			storageRoot, err = storageTrie.Commit(w)
		} else {
			storageRoot = storageTrie.Root()
		}
		if err != nil {
			return types.Hash{}, err
		}

		account := types.Account{
			Nonce:    obj.nonce,
			Balance:  obj.balance.ToBig(),
			Root:     storageRoot,
			CodeHash: obj.codeHash.Bytes(),
		}
		enc, err := rlp.EncodeToBytes(account)
		if err != nil {
			return types.Hash{}, err
		}
		if err := mainTrie.Put(addr[:], enc); err != nil {
			return types.Hash{}, err
		}
	}
	if w != nil {
		return mainTrie.Commit(w)
	}
	return mainTrie.Root(), nil
}

// Copy returns a deep copy of the state, used to execute speculative
// branches over the same backing store.
func (s *StateDB) Copy() *StateDB {
	cpy := New(s.db)
	for addr, obj := range s.stateObjects {
		newObj := newStateObject()
		newObj.nonce = obj.nonce
		newObj.balance = new(uint256.Int).Set(obj.balance)
		newObj.codeHash = obj.codeHash
		newObj.code = append([]byte(nil), obj.code...)
		for k, v := range obj.committedStorage {
			newObj.committedStorage[k] = v
		}
		for k, v := range obj.dirtyStorage {
			newObj.dirtyStorage[k] = v
		}
		newObj.selfDestructed = obj.selfDestructed
		newObj.newContract = obj.newContract
		cpy.stateObjects[addr] = newObj
	}
	return cpy
}
