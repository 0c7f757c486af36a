package vm

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/types"
)

func istanbulRules() ForkRules {
	return ForkRules{
		IsHomestead: true, IsTangerine: true, IsSpurious: true,
		IsByzantium: true, IsConstantinople: true, IsPetersburg: true,
		IsIstanbul: true,
	}
}

// sstoreGas drives the active SSTORE gas function with (slot, value) on
// top of the stack.
func sstoreGas(t *testing.T, evm *EVM, contract *Contract, fn dynamicGasFunc, slotB, val byte) uint64 {
	t.Helper()
	stack := NewStack()
	stack.Push(new(big.Int).SetUint64(uint64(val)))   // value (bottom)
	stack.Push(new(big.Int).SetUint64(uint64(slotB))) // slot (top)
	gas, err := fn(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	return gas
}

func TestSstoreEIP2200Schedule(t *testing.T) {
	evm, statedb := newTestEVM(istanbulRules())
	contract := NewContract(testCaller, testContract, nil, 1_000_000)

	// Fresh slot, set from zero: 20000.
	require.Equal(t, SstoreSetGas, sstoreGas(t, evm, contract, gasSstoreEIP2200, 1, 9))

	// Simulate the write landing, then a same-value store: noop 800.
	statedb.SetState(testContract, types.BytesToHash([]byte{0x01}), types.BytesToHash([]byte{0x09}))
	require.Equal(t, SloadGasEIP2200, sstoreGas(t, evm, contract, gasSstoreEIP2200, 1, 9))

	// Dirty slot to another value: 800, no fresh refund.
	require.Equal(t, SloadGasEIP2200, sstoreGas(t, evm, contract, gasSstoreEIP2200, 1, 5))

	// Restoring the original zero refunds set-minus-sload.
	before := statedb.GetRefund()
	require.Equal(t, SloadGasEIP2200, sstoreGas(t, evm, contract, gasSstoreEIP2200, 1, 0))
	require.Equal(t, before+(SstoreSetGas-SloadGasEIP2200), statedb.GetRefund())
}

func TestSstoreEIP2200Sentry(t *testing.T) {
	evm, _ := newTestEVM(istanbulRules())
	contract := NewContract(testCaller, testContract, nil, SstoreSentryGas)

	stack := NewStack()
	stack.Push(big.NewInt(1))
	stack.Push(big.NewInt(1))
	_, err := gasSstoreEIP2200(evm, contract, stack, NewMemory(), 0)
	require.ErrorIs(t, err, ErrOutOfGas)
}

func TestSstoreEIP2929WarmCold(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	contract := NewContract(testCaller, testContract, nil, 1_000_000)

	// Cold set: 2100 + 20000.
	require.Equal(t, ColdSloadCost+SstoreSetGasEIP2200,
		sstoreGas(t, evm, contract, gasSstoreEIP2929, 1, 9))

	// The slot is now warm: a same-value store costs 100.
	require.Equal(t, WarmStorageReadCost,
		sstoreGas(t, evm, contract, gasSstoreEIP2929, 1, 0)) // current still 0: noop

	// Committed non-zero value, warm clear: reset cost + EIP-3529 refund.
	statedb.SetState(testContract, types.BytesToHash([]byte{0x02}), types.BytesToHash([]byte{0x09}))
	statedb.Finalise(false) // freeze as original; also resets warmth
	statedb.AddSlotToAccessList(testContract, types.BytesToHash([]byte{0x02}))
	before := statedb.GetRefund()
	require.Equal(t, SstoreResetGasEIP2929,
		sstoreGas(t, evm, contract, gasSstoreEIP2929, 2, 0))
	require.Equal(t, before+SstoreClearsRefundEIP3529, statedb.GetRefund())
}

func TestSloadEIP2929(t *testing.T) {
	evm, _ := newTestEVM(cancunRules())
	contract := NewContract(testCaller, testContract, nil, 1_000_000)

	stack := NewStack()
	stack.Push(big.NewInt(7))
	gas, err := gasSloadEIP2929(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	require.Equal(t, ColdSloadCost, gas)

	// Second access is warm.
	gas, err = gasSloadEIP2929(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	require.Equal(t, WarmStorageReadCost, gas)
}

func TestExpGas(t *testing.T) {
	evm, _ := newTestEVM(cancunRules())
	contract := NewContract(testCaller, testContract, nil, 0)

	stack := NewStack()
	stack.Push(new(big.Int).SetUint64(0x1_0000)) // 3-byte exponent (top-1)
	stack.Push(big.NewInt(2))                    // base (top)

	gas, err := gasExpEIP160(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	require.Equal(t, 3*ExpByteGasEIP160, gas)

	gas, err = gasExpFrontier(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	require.Equal(t, 3*ExpByteGasFrontier, gas)
}

func TestMemoryExpansionIncremental(t *testing.T) {
	evm, _ := newTestEVM(cancunRules())
	contract := NewContract(testCaller, testContract, nil, 0)
	mem := NewMemory()

	gas, err := gasMemExpansion(evm, contract, NewStack(), mem, 64)
	require.NoError(t, err)
	require.Equal(t, uint64(6), gas)
	mem.Resize(64)

	// Growing within the already-paid region is free.
	gas, err = gasMemExpansion(evm, contract, NewStack(), mem, 32)
	require.NoError(t, err)
	require.Zero(t, gas)
}

func TestSelfdestructGasRefundRules(t *testing.T) {
	// Pre-London the first selfdestruct credits 24000.
	rules := istanbulRules()
	evm, statedb := newTestEVM(rules)
	contract := NewContract(testCaller, testContract, nil, 0)
	statedb.CreateAccount(testContract)

	stack := NewStack()
	stack.Push(new(big.Int).SetBytes(testCaller[:]))
	_, err := gasSelfdestruct(evm, contract, stack, NewMemory(), 0)
	require.NoError(t, err)
	require.Equal(t, SelfdestructRefundGas, statedb.GetRefund())

	// Post-London (EIP-3529) the refund is gone.
	evm2, statedb2 := newTestEVM(cancunRules())
	statedb2.CreateAccount(testContract)
	stack2 := NewStack()
	stack2.Push(new(big.Int).SetBytes(testCaller[:]))
	_, err = gasSelfdestruct(evm2, contract, stack2, NewMemory(), 0)
	require.NoError(t, err)
	require.Zero(t, statedb2.GetRefund())
}
