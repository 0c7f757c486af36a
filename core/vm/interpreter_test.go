package vm

import (
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/evmcore/evmcore/core/rawdb"
	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
)

var (
	testCaller   = types.BytesToAddress([]byte{0x01, 0x01})
	testContract = types.BytesToAddress([]byte{0x02, 0x02})
)

func cancunRules() ForkRules {
	return ForkRules{
		IsHomestead: true, IsTangerine: true, IsSpurious: true,
		IsByzantium: true, IsConstantinople: true, IsPetersburg: true,
		IsIstanbul: true, IsBerlin: true, IsLondon: true,
		IsMerge: true, IsShanghai: true, IsCancun: true,
	}
}

func newTestEVM(rules ForkRules) (*EVM, *state.StateDB) {
	statedb := state.New(rawdb.NewMemoryDB())
	blockCtx := BlockContext{
		BlockNumber: big.NewInt(1),
		Time:        1,
		GasLimit:    30_000_000,
		BaseFee:     big.NewInt(1_000_000_000),
	}
	evm := NewEVM(blockCtx, TxContext{Origin: testCaller}, statedb, big.NewInt(1337), rules, Config{})
	return evm, statedb
}

// runCode installs code at the test contract and calls it.
func runCode(t *testing.T, code []byte, gas uint64) ([]byte, uint64, error) {
	t.Helper()
	evm, statedb := newTestEVM(cancunRules())
	statedb.CreateAccount(testContract)
	statedb.SetCode(testContract, code)
	statedb.Finalise(false)
	return evm.Call(testCaller, testContract, nil, gas, new(big.Int))
}

func TestArithmeticExecution(t *testing.T) {
	// 1 + 2, stored to memory and returned.
	code := []byte{
		0x60, 0x01, // PUSH1 1
		0x60, 0x02, // PUSH1 2
		0x01,       // ADD
		0x60, 0x00, // PUSH1 0
		0x52,       // MSTORE
		0x60, 0x20, // PUSH1 32
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}
	ret, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
	require.Len(t, ret, 32)
	require.Equal(t, int64(3), new(big.Int).SetBytes(ret).Int64())
}

func TestStopReturnsNothing(t *testing.T) {
	ret, gasLeft, err := runCode(t, []byte{0x00}, 100000)
	require.NoError(t, err)
	require.Nil(t, ret)
	require.Equal(t, uint64(100000), gasLeft)
}

func TestStackUnderflow(t *testing.T) {
	_, gasLeft, err := runCode(t, []byte{0x01}, 100000) // bare ADD
	require.ErrorIs(t, err, ErrStackUnderflow)
	require.Zero(t, gasLeft, "failures burn the frame's gas")
}

func TestInvalidOpcode(t *testing.T) {
	_, _, err := runCode(t, []byte{0xf6}, 100000)
	require.ErrorIs(t, err, ErrInvalidOpCode)
}

func TestOutOfGas(t *testing.T) {
	_, gasLeft, err := runCode(t, []byte{0x60, 0x01}, 2) // PUSH1 costs 3
	require.ErrorIs(t, err, ErrOutOfGas)
	require.Zero(t, gasLeft)
}

func TestJumpToJumpdest(t *testing.T) {
	code := []byte{
		0x60, 0x03, // PUSH1 3
		0x56, // JUMP
		0x5b, // JUMPDEST (position 3)
		0x00, // STOP
	}
	_, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
}

func TestJumpInvalidDestination(t *testing.T) {
	code := []byte{
		0x60, 0x04, // PUSH1 4 (not a JUMPDEST)
		0x56, // JUMP
		0x5b,
		0x00,
	}
	_, _, err := runCode(t, code, 100000)
	require.ErrorIs(t, err, ErrInvalidJump)
}

func TestJumpdestInsidePushDataInvalid(t *testing.T) {
	// PUSH2 0x5b00: the 0x5b at position 4 is immediate data.
	code := []byte{
		0x60, 0x04, // PUSH1 4
		0x56,       // JUMP -> position 4
		0x61, 0x5b, 0x00, // PUSH2 0x5b00 -- 0x5b at position 4 is data
		0x00,
	}
	_, _, err := runCode(t, code, 100000)
	require.ErrorIs(t, err, ErrInvalidJump)
}

func TestJumpdestAnalysisMatchesReference(t *testing.T) {
	// Inject random PUSH sequences and verify every data byte reports
	// invalid and every JUMPDEST on an instruction boundary is valid.
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 50; trial++ {
		code := make([]byte, 256)
		for i := range code {
			switch rng.Intn(4) {
			case 0:
				code[i] = byte(PUSH1) + byte(rng.Intn(32))
			case 1:
				code[i] = byte(JUMPDEST)
			default:
				code[i] = byte(rng.Intn(256))
			}
		}
		contract := NewContract(testCaller, testContract, nil, 0)
		contract.Code = code

		// Reference scan.
		isData := make([]bool, len(code))
		for i := 0; i < len(code); i++ {
			op := OpCode(code[i])
			if op.IsPush() {
				for j := i + 1; j <= i+op.PushSize() && j < len(code); j++ {
					isData[j] = true
				}
				i += op.PushSize()
			}
		}
		for pos := 0; pos < len(code); pos++ {
			want := !isData[pos] && OpCode(code[pos]) == JUMPDEST
			got := contract.ValidJumpdest(big.NewInt(int64(pos)))
			require.Equal(t, want, got, "trial %d position %d", trial, pos)
		}
		// The answers are memoized; asking twice is consistent.
		for pos := 0; pos < len(code); pos++ {
			want := !isData[pos] && OpCode(code[pos]) == JUMPDEST
			require.Equal(t, want, contract.ValidJumpdest(big.NewInt(int64(pos))))
		}
	}
}

func TestRevertKeepsGasAndPayload(t *testing.T) {
	code := []byte{
		0x60, 0xaa, // PUSH1 0xaa
		0x60, 0x00, // PUSH1 0
		0x53,       // MSTORE8
		0x60, 0x01, // PUSH1 1
		0x60, 0x00, // PUSH1 0
		0xfd, // REVERT
	}
	ret, gasLeft, err := runCode(t, code, 100000)
	require.ErrorIs(t, err, ErrExecutionReverted)
	require.Equal(t, []byte{0xaa}, ret)
	require.NotZero(t, gasLeft, "revert must not burn remaining gas")
}

func TestStaticCallWriteProtection(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	code := []byte{
		0x60, 0x01, // PUSH1 1
		0x60, 0x00, // PUSH1 0
		0x55, // SSTORE
	}
	statedb.CreateAccount(testContract)
	statedb.SetCode(testContract, code)
	statedb.Finalise(false)

	_, gasLeft, err := evm.StaticCall(testCaller, testContract, nil, 100000)
	require.ErrorIs(t, err, ErrWriteProtection)
	require.Zero(t, gasLeft)
}

func TestSloadSstore(t *testing.T) {
	// SSTORE 0x2a at slot 1, SLOAD it back and return.
	code := []byte{
		0x60, 0x2a, // PUSH1 0x2a
		0x60, 0x01, // PUSH1 1
		0x55,       // SSTORE
		0x60, 0x01, // PUSH1 1
		0x54,       // SLOAD
		0x60, 0x00, // PUSH1 0
		0x52,       // MSTORE
		0x60, 0x20, 0x60, 0x00, 0xf3, // RETURN 32 bytes
	}
	ret, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
	require.Equal(t, int64(0x2a), new(big.Int).SetBytes(ret).Int64())
}

func TestTransientStorageOps(t *testing.T) {
	// TSTORE 7 at slot 0, TLOAD it back.
	code := []byte{
		0x60, 0x07, // PUSH1 7
		0x60, 0x00, // PUSH1 0
		0x5d,       // TSTORE
		0x60, 0x00, // PUSH1 0
		0x5c,       // TLOAD
		0x60, 0x00, 0x52, // MSTORE
		0x60, 0x20, 0x60, 0x00, 0xf3,
	}
	ret, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
	require.Equal(t, int64(7), new(big.Int).SetBytes(ret).Int64())
}

func TestPush0(t *testing.T) {
	code := []byte{
		0x5f,             // PUSH0
		0x60, 0x00, 0x52, // MSTORE
		0x60, 0x20, 0x60, 0x00, 0xf3,
	}
	ret, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
	require.Zero(t, new(big.Int).SetBytes(ret).Sign())
}

func TestMcopy(t *testing.T) {
	// Write byte 0xbe at 0, MCOPY the first word to 32, return the copy.
	code := []byte{
		0x60, 0xbe, // PUSH1 0xbe
		0x60, 0x00, // PUSH1 0
		0x53,       // MSTORE8
		0x60, 0x20, // PUSH1 32 (length)
		0x60, 0x00, // PUSH1 0 (src)
		0x60, 0x20, // PUSH1 32 (dst)
		0x5e,       // MCOPY
		0x60, 0x20, // PUSH1 32
		0x60, 0x20, // PUSH1 32
		0xf3, // RETURN mem[32:64]
	}
	ret, _, err := runCode(t, code, 100000)
	require.NoError(t, err)
	require.Equal(t, byte(0xbe), ret[0])
}

func TestCreateDeploysCode(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.AddBalance(testCaller, big.NewInt(1))
	statedb.Finalise(false)

	// Init code returning a single zero byte of runtime code.
	initCode := []byte{
		0x60, 0x01, // PUSH1 1
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}
	_, createdAddr, gasLeft, err := evm.Create(testCaller, initCode, 100000, new(big.Int))
	require.NoError(t, err)
	require.Equal(t, CreateAddress(testCaller, 0), createdAddr)
	require.Equal(t, []byte{0x00}, statedb.GetCode(createdAddr))
	require.Equal(t, uint64(1), statedb.GetNonce(createdAddr), "EIP-161 created nonce")
	require.Equal(t, uint64(1), statedb.GetNonce(testCaller))
	require.NotZero(t, gasLeft)
}

func TestCreateCollision(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	target := CreateAddress(testCaller, 0)
	statedb.SetNonce(target, 1)
	statedb.Finalise(false)

	_, _, gasLeft, err := evm.Create(testCaller, []byte{0x00}, 100000, new(big.Int))
	require.ErrorIs(t, err, ErrContractAddressCollision)
	require.Zero(t, gasLeft, "collision consumes all gas")
	// The target account is untouched.
	require.Equal(t, uint64(1), statedb.GetNonce(target))
	require.Empty(t, statedb.GetCode(target))
}

func TestCreateRejectsEFPrefix(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	_ = statedb

	// Init code returning a single 0xEF byte.
	initCode := []byte{
		0x60, 0xef, // PUSH1 0xef
		0x60, 0x00, // PUSH1 0
		0x53,       // MSTORE8
		0x60, 0x01, // PUSH1 1
		0x60, 0x00, // PUSH1 0
		0xf3, // RETURN
	}
	_, _, _, err := evm.Create(testCaller, initCode, 100000, new(big.Int))
	require.ErrorIs(t, err, ErrReservedBytesInCode)
}

func TestCreateInitCodeSizeLimit(t *testing.T) {
	evm, _ := newTestEVM(cancunRules())
	huge := make([]byte, MaxInitCodeSize+1)
	_, _, _, err := evm.Create(testCaller, huge, 10_000_000, new(big.Int))
	require.ErrorIs(t, err, ErrMaxInitCodeSizeExceeded)
}

func TestCallChildGasRule(t *testing.T) {
	// Post-EIP-150: at most 63/64 of the remaining gas is forwarded.
	huge := new(big.Int).Lsh(big.NewInt(1), 128)
	gas, err := callChildGas(true, 6400, 0, huge)
	require.NoError(t, err)
	require.Equal(t, uint64(6400-100), gas)

	// A smaller request passes through.
	gas, err = callChildGas(true, 6400, 0, big.NewInt(1000))
	require.NoError(t, err)
	require.Equal(t, uint64(1000), gas)

	// Pre-EIP-150 the request is forwarded verbatim.
	gas, err = callChildGas(false, 6400, 0, big.NewInt(10000))
	require.NoError(t, err)
	require.Equal(t, uint64(10000), gas)

	_, err = callChildGas(false, 6400, 0, huge)
	require.ErrorIs(t, err, ErrGasUintOverflow)
}

func TestMemoryGasCost(t *testing.T) {
	require.Equal(t, uint64(3), memoryGasCost(32))
	require.Equal(t, uint64(6), memoryGasCost(64))
	// 1024 words: 3*1024 + 1024^2/512 = 5120.
	require.Equal(t, uint64(5120), memoryGasCost(1024*32))
}

func TestValueTransferInCall(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	statedb.AddBalance(testCaller, big.NewInt(1000))
	statedb.Finalise(false)

	_, _, err := evm.Call(testCaller, testContract, nil, 100000, big.NewInt(400))
	require.NoError(t, err)
	require.Equal(t, int64(600), statedb.GetBalance(testCaller).Int64())
	require.Equal(t, int64(400), statedb.GetBalance(testContract).Int64())

	// Insufficient balance fails without state changes.
	_, _, err = evm.Call(testCaller, testContract, nil, 100000, big.NewInt(10_000))
	require.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestSelfdestructCancunSemantics(t *testing.T) {
	evm, statedb := newTestEVM(cancunRules())
	beneficiary := types.BytesToAddress([]byte{0x0b, 0x0b})

	// Pre-existing contract: balance moves, account survives.
	selfdestructTo := func(target types.Address) []byte {
		out := []byte{0x73} // PUSH20
		out = append(out, target[:]...)
		out = append(out, 0xff) // SELFDESTRUCT
		return out
	}
	statedb.CreateAccount(testContract)
	statedb.SetCode(testContract, selfdestructTo(beneficiary))
	statedb.AddBalance(testContract, big.NewInt(55))
	statedb.Finalise(false)

	_, _, err := evm.Call(testCaller, testContract, nil, 100000, new(big.Int))
	require.NoError(t, err)
	require.Equal(t, int64(55), statedb.GetBalance(beneficiary).Int64())
	require.Zero(t, statedb.GetBalance(testContract).Sign())
	require.False(t, statedb.HasSelfDestructed(testContract), "EIP-6780: survives outside creation tx")
	statedb.Finalise(true)
	require.True(t, statedb.Exist(testContract))
}

func TestDelegationResolution(t *testing.T) {
	rules := cancunRules()
	rules.IsPrague = true
	statedb := state.New(rawdb.NewMemoryDB())
	evm := NewEVM(BlockContext{BlockNumber: big.NewInt(1), GasLimit: 30_000_000}, TxContext{}, statedb, big.NewInt(1), rules, Config{})

	delegate := types.BytesToAddress([]byte{0x0d})
	// Delegate's code returns 0x2a.
	statedb.SetCode(delegate, []byte{
		0x60, 0x2a, 0x60, 0x00, 0x52,
		0x60, 0x20, 0x60, 0x00, 0xf3,
	})
	authority := types.BytesToAddress([]byte{0x0e})
	statedb.SetCode(authority, types.MakeDelegationCode(delegate))
	statedb.Finalise(false)

	ret, _, err := evm.Call(testCaller, authority, nil, 100000, new(big.Int))
	require.NoError(t, err)
	require.Equal(t, int64(0x2a), new(big.Int).SetBytes(ret).Int64())
}

func TestDelegationToEFCodeFails(t *testing.T) {
	rules := cancunRules()
	rules.IsPrague = true
	statedb := state.New(rawdb.NewMemoryDB())
	evm := NewEVM(BlockContext{BlockNumber: big.NewInt(1), GasLimit: 30_000_000}, TxContext{}, statedb, big.NewInt(1), rules, Config{})

	delegate := types.BytesToAddress([]byte{0x0d})
	statedb.SetCode(delegate, []byte{0xef, 0x61, 0x62, 0x63})
	authority := types.BytesToAddress([]byte{0x0e})
	statedb.SetCode(authority, types.MakeDelegationCode(delegate))
	statedb.Finalise(false)

	_, _, err := evm.Call(testCaller, authority, nil, 100000, new(big.Int))
	require.ErrorIs(t, err, ErrReservedBytesInCode)
}
