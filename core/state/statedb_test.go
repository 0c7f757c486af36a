package state

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/types"
)

func addr(b byte) types.Address { return types.BytesToAddress([]byte{b}) }
func slot(b byte) types.Hash    { return types.BytesToHash([]byte{b}) }

func newTestState() *StateDB {
	return New(rawdb.NewMemoryDB())
}

func TestBalanceNonceCode(t *testing.T) {
	s := newTestState()
	a := addr(1)

	require.Zero(t, s.GetBalance(a).Sign())
	s.AddBalance(a, big.NewInt(1000))
	require.Equal(t, int64(1000), s.GetBalance(a).Int64())
	s.SubBalance(a, big.NewInt(400))
	require.Equal(t, int64(600), s.GetBalance(a).Int64())

	require.Zero(t, s.GetNonce(a))
	s.SetNonce(a, 5)
	require.Equal(t, uint64(5), s.GetNonce(a))

	code := []byte{0x60, 0x00}
	s.SetCode(a, code)
	require.Equal(t, code, s.GetCode(a))
	require.Equal(t, 2, s.GetCodeSize(a))
	require.NotEqual(t, types.EmptyCodeHash, s.GetCodeHash(a))
	require.True(t, s.HasCodeOrNonce(a))
}

func TestSnapshotRevert(t *testing.T) {
	s := newTestState()
	a := addr(1)
	s.AddBalance(a, big.NewInt(100))
	s.SetState(a, slot(1), slot(9))

	snap := s.Snapshot()
	s.AddBalance(a, big.NewInt(50))
	s.SetState(a, slot(1), slot(8))
	s.SetState(a, slot(2), slot(7))
	s.SetNonce(a, 3)
	s.AddRefund(1000)

	s.RevertToSnapshot(snap)

	require.Equal(t, int64(100), s.GetBalance(a).Int64())
	require.Equal(t, slot(9), s.GetState(a, slot(1)))
	require.Equal(t, types.Hash{}, s.GetState(a, slot(2)))
	require.Zero(t, s.GetNonce(a))
	require.Zero(t, s.GetRefund())
}

func TestSnapshotRevertRestoresRoot(t *testing.T) {
	s := newTestState()
	s.AddBalance(addr(1), big.NewInt(1))
	s.SetState(addr(1), slot(1), slot(2))
	before, err := s.MakeStateRoot()
	require.NoError(t, err)

	snap := s.Snapshot()
	s.AddBalance(addr(2), big.NewInt(5))
	s.SetState(addr(1), slot(1), slot(3))
	s.SetCode(addr(3), []byte{0x01})
	s.RevertToSnapshot(snap)

	after, err := s.MakeStateRoot()
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestNestedSnapshots(t *testing.T) {
	s := newTestState()
	a := addr(1)
	s.AddBalance(a, big.NewInt(1))

	outer := s.Snapshot()
	s.AddBalance(a, big.NewInt(10))
	inner := s.Snapshot()
	s.AddBalance(a, big.NewInt(100))

	s.RevertToSnapshot(inner)
	require.Equal(t, int64(11), s.GetBalance(a).Int64())

	s.RevertToSnapshot(outer)
	require.Equal(t, int64(1), s.GetBalance(a).Int64())
}

func TestCommittedStateFrozenPerTx(t *testing.T) {
	s := newTestState()
	a := addr(1)
	s.SetState(a, slot(1), slot(5))
	s.Finalise(false) // transaction boundary locks the original values

	require.Equal(t, slot(5), s.GetCommittedState(a, slot(1)))
	s.SetState(a, slot(1), slot(6))
	require.Equal(t, slot(6), s.GetState(a, slot(1)))
	require.Equal(t, slot(5), s.GetCommittedState(a, slot(1)))

	s.Finalise(false)
	require.Equal(t, slot(6), s.GetCommittedState(a, slot(1)))
}

func TestEmptyAccountDeletion(t *testing.T) {
	s := newTestState()
	empty := addr(1)
	funded := addr(2)

	// Touch an empty account (a zero-value credit) and fund another.
	s.AddBalance(empty, new(big.Int))
	s.AddBalance(funded, big.NewInt(1))
	require.True(t, s.Exist(empty))

	s.Finalise(true)
	require.False(t, s.Exist(empty), "touched empty account must be deleted")
	require.True(t, s.Exist(funded))
}

func TestEmptyAccountKeptPreSpurious(t *testing.T) {
	s := newTestState()
	empty := addr(1)
	s.AddBalance(empty, new(big.Int))
	s.Finalise(false)
	require.True(t, s.Exist(empty))
}

func TestSelfDestruct(t *testing.T) {
	s := newTestState()
	a := addr(1)
	s.AddBalance(a, big.NewInt(100))
	s.SetCode(a, []byte{0x01})

	snap := s.Snapshot()
	s.SelfDestruct(a)
	require.True(t, s.HasSelfDestructed(a))
	require.Zero(t, s.GetBalance(a).Sign())

	s.RevertToSnapshot(snap)
	require.False(t, s.HasSelfDestructed(a))
	require.Equal(t, int64(100), s.GetBalance(a).Int64())

	s.SelfDestruct(a)
	s.Finalise(false)
	require.False(t, s.Exist(a))
}

func TestSelfDestruct6780OnlySameTx(t *testing.T) {
	s := newTestState()
	old := addr(1)
	s.AddBalance(old, big.NewInt(1))
	s.Finalise(false)

	require.False(t, s.SelfDestruct6780(old))
	require.False(t, s.HasSelfDestructed(old))

	fresh := addr(2)
	s.CreateAccount(fresh)
	s.CreateContract(fresh)
	require.True(t, s.SelfDestruct6780(fresh))
	require.True(t, s.HasSelfDestructed(fresh))
}

func TestAccessListJournaled(t *testing.T) {
	s := newTestState()
	a := addr(1)

	snap := s.Snapshot()
	s.AddAddressToAccessList(a)
	s.AddSlotToAccessList(a, slot(1))
	require.True(t, s.AddressInAccessList(a))
	addrOk, slotOk := s.SlotInAccessList(a, slot(1))
	require.True(t, addrOk)
	require.True(t, slotOk)

	s.RevertToSnapshot(snap)
	require.False(t, s.AddressInAccessList(a))
	_, slotOk = s.SlotInAccessList(a, slot(1))
	require.False(t, slotOk)
}

func TestAccessListClearedAtTxBoundary(t *testing.T) {
	s := newTestState()
	s.AddAddressToAccessList(addr(1))
	s.Finalise(false)
	require.False(t, s.AddressInAccessList(addr(1)))
}

func TestTransientStorage(t *testing.T) {
	s := newTestState()
	a := addr(1)

	s.SetTransientState(a, slot(1), slot(9))
	require.Equal(t, slot(9), s.GetTransientState(a, slot(1)))

	snap := s.Snapshot()
	s.SetTransientState(a, slot(1), slot(8))
	s.RevertToSnapshot(snap)
	require.Equal(t, slot(9), s.GetTransientState(a, slot(1)))

	s.ClearTransientStorage()
	require.Equal(t, types.Hash{}, s.GetTransientState(a, slot(1)))
}

func TestTransientStorageRevertAfterZeroWrite(t *testing.T) {
	// Zeroing the last slot drops the inner map; a later revert must
	// recreate it instead of indexing nil.
	s := newTestState()
	a := addr(1)

	s.SetTransientState(a, slot(1), slot(9))
	snap := s.Snapshot()
	s.SetTransientState(a, slot(1), types.Hash{})
	require.Equal(t, types.Hash{}, s.GetTransientState(a, slot(1)))

	s.RevertToSnapshot(snap)
	require.Equal(t, slot(9), s.GetTransientState(a, slot(1)))
}

func TestLogsJournaled(t *testing.T) {
	s := newTestState()
	txHash := types.BytesToHash([]byte{0xaa})
	s.SetTxContext(txHash, 0)

	s.AddLog(&types.Log{Address: addr(1)})
	snap := s.Snapshot()
	s.AddLog(&types.Log{Address: addr(2)})
	require.Len(t, s.GetLogs(txHash), 2)

	s.RevertToSnapshot(snap)
	require.Len(t, s.GetLogs(txHash), 1)
	require.Equal(t, uint(0), s.GetLogs(txHash)[0].Index)
}

func TestRefundCounter(t *testing.T) {
	s := newTestState()
	s.AddRefund(5000)
	s.SubRefund(1000)
	require.Equal(t, uint64(4000), s.GetRefund())
	s.Finalise(false)
	require.Zero(t, s.GetRefund())
}

func TestPersistRequiresFreshRoot(t *testing.T) {
	s := newTestState()
	s.AddBalance(addr(1), big.NewInt(1))

	_, err := s.Persist()
	require.ErrorIs(t, err, ErrStaleRoot)

	_, err = s.MakeStateRoot()
	require.NoError(t, err)
	_, err = s.Persist()
	require.NoError(t, err)

	// A write after MakeStateRoot invalidates the root again.
	s.AddBalance(addr(1), big.NewInt(1))
	_, err = s.Persist()
	require.ErrorIs(t, err, ErrStaleRoot)
}

func TestPersistEmitsWitness(t *testing.T) {
	db := rawdb.NewMemoryDB()
	s := New(db)
	s.AddBalance(addr(1), big.NewInt(7))
	s.SetCode(addr(1), []byte{0x60, 0x00})
	s.SetState(addr(1), slot(1), slot(2))

	root, err := s.MakeStateRoot()
	require.NoError(t, err)
	witness, err := s.Persist()
	require.NoError(t, err)

	require.NotEmpty(t, witness.TrieNodes())
	require.Contains(t, witness.Accounts(), addr(1))
	require.NotEmpty(t, witness.Codes())
	require.Contains(t, witness.Slots(addr(1)), slot(1))

	// The root node must be persisted under its hash.
	enc, err := db.Get(root.Bytes())
	require.NoError(t, err)
	require.NotEmpty(t, enc)
}

func TestCopyIsIndependent(t *testing.T) {
	s := newTestState()
	s.AddBalance(addr(1), big.NewInt(10))
	cpy := s.Copy()

	cpy.AddBalance(addr(1), big.NewInt(5))
	require.Equal(t, int64(10), s.GetBalance(addr(1)).Int64())
	require.Equal(t, int64(15), cpy.GetBalance(addr(1)).Int64())

	rootA, err := s.MakeStateRoot()
	require.NoError(t, err)
	rootB, err := cpy.MakeStateRoot()
	require.NoError(t, err)
	require.NotEqual(t, rootA, rootB)
}

func TestStateRootIndependentOfOperationOrder(t *testing.T) {
	// Two states with identical content must agree on the root
	// regardless of operation order.
	a := newTestState()
	a.AddBalance(addr(1), big.NewInt(1))
	a.AddBalance(addr(2), big.NewInt(2))

	b := newTestState()
	b.AddBalance(addr(2), big.NewInt(2))
	b.AddBalance(addr(1), big.NewInt(1))

	rootA, err := a.MakeStateRoot()
	require.NoError(t, err)
	rootB, err := b.MakeStateRoot()
	require.NoError(t, err)
	require.Equal(t, rootA, rootB)
}
