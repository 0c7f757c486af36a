package vm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForkOpcodeDeltas(t *testing.T) {
	frontier := NewFrontierJumpTable()
	require.Nil(t, frontier[DELEGATECALL])
	require.Nil(t, frontier[REVERT])
	require.Nil(t, frontier[STATICCALL])
	require.Nil(t, frontier[SHL])
	require.Nil(t, frontier[CREATE2])
	require.Nil(t, frontier[PUSH0])
	require.Nil(t, frontier[TLOAD])
	require.NotNil(t, frontier[SELFDESTRUCT])

	homestead := NewHomesteadJumpTable()
	require.NotNil(t, homestead[DELEGATECALL])
	require.Nil(t, homestead[REVERT])

	byzantium := NewByzantiumJumpTable()
	require.NotNil(t, byzantium[REVERT])
	require.NotNil(t, byzantium[STATICCALL])
	require.NotNil(t, byzantium[RETURNDATASIZE])
	require.NotNil(t, byzantium[RETURNDATACOPY])

	constantinople := NewConstantinopleJumpTable()
	require.NotNil(t, constantinople[SHL])
	require.NotNil(t, constantinople[SHR])
	require.NotNil(t, constantinople[SAR])
	require.NotNil(t, constantinople[CREATE2])
	require.NotNil(t, constantinople[EXTCODEHASH])

	istanbul := NewIstanbulJumpTable()
	require.NotNil(t, istanbul[CHAINID])
	require.NotNil(t, istanbul[SELFBALANCE])

	london := NewLondonJumpTable()
	require.NotNil(t, london[BASEFEE])

	shanghai := NewShanghaiJumpTable()
	require.NotNil(t, shanghai[PUSH0])

	cancun := NewCancunJumpTable()
	require.NotNil(t, cancun[TLOAD])
	require.NotNil(t, cancun[TSTORE])
	require.NotNil(t, cancun[MCOPY])
	require.NotNil(t, cancun[BLOBHASH])
	require.NotNil(t, cancun[BLOBBASEFEE])
}

func TestForkRepricings(t *testing.T) {
	// SLOAD across the cost-hike forks.
	require.Equal(t, SloadGasFrontier, NewFrontierJumpTable()[SLOAD].constantGas)
	require.Equal(t, SloadGasEIP150, NewTangerineWhistleJumpTable()[SLOAD].constantGas)
	require.Equal(t, SloadGasEIP1884, NewIstanbulJumpTable()[SLOAD].constantGas)
	// Berlin folds SLOAD into warm/cold dynamic gas.
	berlin := NewBerlinJumpTable()
	require.Zero(t, berlin[SLOAD].constantGas)
	require.NotNil(t, berlin[SLOAD].dynamicGas)

	// BALANCE: 20 -> 400 -> 700 -> warm/cold.
	require.Equal(t, BalanceGasFrontier, NewFrontierJumpTable()[BALANCE].constantGas)
	require.Equal(t, BalanceGasEIP150, NewTangerineWhistleJumpTable()[BALANCE].constantGas)
	require.Equal(t, BalanceGasEIP1884, NewIstanbulJumpTable()[BALANCE].constantGas)
	require.Equal(t, WarmStorageReadCost, berlin[BALANCE].constantGas)

	// CALL: 40 -> 700 -> warm/cold.
	require.Equal(t, CallGasFrontier, NewFrontierJumpTable()[CALL].constantGas)
	require.Equal(t, CallGasEIP150, NewTangerineWhistleJumpTable()[CALL].constantGas)
	require.Equal(t, WarmStorageReadCost, berlin[CALL].constantGas)

	// SELFDESTRUCT: free until EIP-150.
	require.Zero(t, NewFrontierJumpTable()[SELFDESTRUCT].constantGas)
	require.Equal(t, SelfdestructGasEIP150, NewTangerineWhistleJumpTable()[SELFDESTRUCT].constantGas)
}

func TestSelectJumpTable(t *testing.T) {
	require.NotNil(t, SelectJumpTable(ForkRules{})[ADD])
	require.Nil(t, SelectJumpTable(ForkRules{})[DELEGATECALL])
	require.NotNil(t, SelectJumpTable(ForkRules{IsHomestead: true})[DELEGATECALL])
	require.NotNil(t, SelectJumpTable(cancunRules())[MCOPY])

	prague := cancunRules()
	prague.IsPrague = true
	require.NotNil(t, SelectJumpTable(prague)[TSTORE])
}

func TestOpcodeStrings(t *testing.T) {
	require.Equal(t, "ADD", ADD.String())
	require.Equal(t, "PUSH7", OpCode(0x66).String())
	require.Equal(t, "DUP3", OpCode(0x82).String())
	require.Equal(t, "SWAP16", OpCode(0x9f).String())
	require.Equal(t, "SELFDESTRUCT", SELFDESTRUCT.String())
	require.True(t, PUSH1.IsPush())
	require.True(t, PUSH32.IsPush())
	require.False(t, PUSH0.IsPush(), "PUSH0 carries no immediate")
	require.Equal(t, 32, PUSH32.PushSize())
}
