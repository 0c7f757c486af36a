package vm

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// gasMemExpansion charges only the incremental quadratic memory cost.
func gasMemExpansion(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return memoryExpansionCost(mem, memorySize)
}

func memoryExpansionCost(mem *Memory, memorySize uint64) (uint64, error) {
	if memorySize == 0 {
		return 0, nil
	}
	if memorySize > 0x1FFFFFFFE0 {
		return 0, ErrGasUintOverflow
	}
	newCost := memoryGasCost(memorySize)
	oldCost := memoryGasCost(uint64(mem.Len()))
	if newCost > oldCost {
		return newCost - oldCost, nil
	}
	return 0, nil
}

// gasCopy charges memory expansion plus the per-word copy cost; lenPos
// is the stack position of the length operand.
func gasCopy(lenPos int) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		gas, err := memoryExpansionCost(mem, memorySize)
		if err != nil {
			return 0, err
		}
		length := stack.Back(lenPos)
		if length.BitLen() > 64 {
			return 0, ErrGasUintOverflow
		}
		words := wordCount(length.Uint64())
		copyGas := words * CopyGas
		if gas+copyGas < gas {
			return 0, ErrGasUintOverflow
		}
		return gas + copyGas, nil
	}
}

// gasKeccak256 charges memory expansion plus six gas per hashed word.
func gasKeccak256(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	length := stack.Back(1)
	if length.BitLen() > 64 {
		return 0, ErrGasUintOverflow
	}
	return gas + wordCount(length.Uint64())*Keccak256WordGas, nil
}

// EXP charges per byte of the exponent; EIP-160 repriced 10 -> 50.
func gasExp(perByte uint64) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		expByteLen := uint64((stack.Back(1).BitLen() + 7) / 8)
		return expByteLen * perByte, nil
	}
}

var (
	gasExpFrontier = gasExp(ExpByteGasFrontier)
	gasExpEIP160   = gasExp(ExpByteGasEIP160)
)

// makeGasLog charges the LOG base, per-topic, and per-byte costs.
func makeGasLog(topics uint64) dynamicGasFunc {
	return func(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
		size := stack.Back(1)
		if size.BitLen() > 64 {
			return 0, ErrGasUintOverflow
		}
		gas, err := memoryExpansionCost(mem, memorySize)
		if err != nil {
			return 0, err
		}
		gas += LogGas + LogTopicGas*topics
		dataGas := size.Uint64() * LogDataGas
		if dataGas/LogDataGas != size.Uint64() {
			return 0, ErrGasUintOverflow
		}
		return gas + dataGas, nil
	}
}

// SSTORE gas schedules.

// gasSstoreLegacy implements the Frontier-through-Byzantium (and
// Petersburg) schedule: 20000 to fill an empty slot, 5000 otherwise,
// with a 15000 refund for clearing.
func gasSstoreLegacy(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	slot := types.BigToHash(stack.Back(0))
	newVal := types.BigToHash(stack.Back(1))
	current := evm.StateDB.GetState(contract.Address, slot)

	switch {
	case current == (types.Hash{}) && newVal != (types.Hash{}):
		return SstoreSetGas, nil
	case current != (types.Hash{}) && newVal == (types.Hash{}):
		evm.StateDB.AddRefund(SstoreRefundGas)
		return SstoreResetGas, nil
	default:
		return SstoreResetGas, nil
	}
}

// netSstoreGas is the shared EIP-1283/EIP-2200 net metering shape,
// parameterized over the no-op/dirty cost and the reset refund values.
func netSstoreGas(evm *EVM, contract *Contract, stack *Stack, noopGas, setGas, resetGas, clearRefund uint64) (uint64, error) {
	slot := types.BigToHash(stack.Back(0))
	newVal := types.BigToHash(stack.Back(1))
	current := evm.StateDB.GetState(contract.Address, slot)

	if current == newVal {
		return noopGas, nil
	}
	original := evm.StateDB.GetCommittedState(contract.Address, slot)
	if original == current {
		if original == (types.Hash{}) {
			return setGas, nil
		}
		if newVal == (types.Hash{}) {
			evm.StateDB.AddRefund(clearRefund)
		}
		return resetGas, nil
	}
	// Dirty slot: charge the cheap rate and adjust refunds.
	if original != (types.Hash{}) {
		if current == (types.Hash{}) {
			evm.StateDB.SubRefund(clearRefund)
		} else if newVal == (types.Hash{}) {
			evm.StateDB.AddRefund(clearRefund)
		}
	}
	if original == newVal {
		if original == (types.Hash{}) {
			evm.StateDB.AddRefund(setGas - noopGas)
		} else {
			evm.StateDB.AddRefund(resetGas - noopGas)
		}
	}
	return noopGas, nil
}

// gasSstoreEIP1283 is Constantinople net gas metering (no sentry).
func gasSstoreEIP1283(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return netSstoreGas(evm, contract, stack, NetSstoreNoopGas, SstoreSetGas, SstoreResetGas, SstoreRefundGas)
}

// gasSstoreEIP2200 is Istanbul net gas metering with the 2300-gas
// re-entrancy sentry.
func gasSstoreEIP2200(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	if contract.Gas <= SstoreSentryGas {
		return 0, ErrOutOfGas
	}
	return netSstoreGas(evm, contract, stack, SloadGasEIP2200, SstoreSetGas, SstoreResetGas, SstoreRefundGas)
}

// gasSstoreEIP2929 is the Berlin/London schedule: EIP-2200 shape with
// warm/cold slot accounting and, post-London, the EIP-3529 clear refund.
func gasSstoreEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	if contract.Gas <= SstoreSentryGas {
		return 0, ErrOutOfGas
	}
	slot := types.BigToHash(stack.Back(0))

	var coldCost uint64
	if _, slotWarm := evm.StateDB.SlotInAccessList(contract.Address, slot); !slotWarm {
		evm.StateDB.AddSlotToAccessList(contract.Address, slot)
		coldCost = ColdSloadCost
	}

	clearRefund := SstoreClearsRefundEIP2929
	if evm.rules.IsLondon {
		clearRefund = SstoreClearsRefundEIP3529
	}
	gas, err := netSstoreGas(evm, contract, stack, WarmStorageReadCost, SstoreSetGasEIP2200, SstoreResetGasEIP2929, clearRefund)
	if err != nil {
		return 0, err
	}
	return gas + coldCost, nil
}

// gasSloadEIP2929 charges the full warm or cold SLOAD cost (the opcode
// carries no constant gas under Berlin).
func gasSloadEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	slot := types.BigToHash(stack.Back(0))
	if _, slotWarm := evm.StateDB.SlotInAccessList(contract.Address, slot); !slotWarm {
		evm.StateDB.AddSlotToAccessList(contract.Address, slot)
		return ColdSloadCost, nil
	}
	return WarmStorageReadCost, nil
}

// coldAccountSurcharge warms addr and returns the extra cold cost; the
// warm cost is the opcode's constant gas.
func coldAccountSurcharge(evm *EVM, addr types.Address) uint64 {
	if evm.StateDB.AddressInAccessList(addr) {
		return 0
	}
	evm.StateDB.AddAddressToAccessList(addr)
	return ColdAccountAccessCost - WarmStorageReadCost
}

// gasAccountAccessEIP2929 covers BALANCE, EXTCODESIZE, and EXTCODEHASH.
func gasAccountAccessEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	addr := types.BytesToAddress(stack.Back(0).Bytes())
	return coldAccountSurcharge(evm, addr), nil
}

// gasExtCodeCopyEIP2929 adds the cold surcharge to the copy cost.
func gasExtCodeCopyEIP2929(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := gasCopy(3)(evm, contract, stack, mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(0).Bytes())
	return gas + coldAccountSurcharge(evm, addr), nil
}

// callChildGas implements the gas-forwarding rule: post-EIP-150 the
// child receives at most 63/64 of the remaining gas after the call's own
// costs; before that, the requested amount is forwarded verbatim.
func callChildGas(eip150 bool, availableGas, base uint64, requested *big.Int) (uint64, error) {
	if eip150 {
		availableGas -= base
		gas := availableGas - availableGas/CallGasDivisor
		if requested.BitLen() <= 64 && gas > requested.Uint64() {
			return requested.Uint64(), nil
		}
		return gas, nil
	}
	if requested.BitLen() > 64 {
		return 0, ErrGasUintOverflow
	}
	return requested.Uint64(), nil
}

// gasCall computes the CALL dynamic cost: memory expansion, EIP-2929
// cold surcharge, value-transfer and new-account charges, plus the child
// gas which is parked in evm.callGasTemp.
func gasCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(1).Bytes())
	value := stack.Back(2)
	transfersValue := value.Sign() != 0

	if evm.rules.IsBerlin {
		gas += coldAccountSurcharge(evm, addr)
	}
	if transfersValue {
		gas += CallValueTransferGas
	}
	// New-account charge: before Spurious Dragon any call to a
	// nonexistent account paid it; afterwards only value-bearing calls
	// to empty accounts do (EIP-161).
	if evm.rules.IsSpurious {
		if transfersValue && evm.StateDB.Empty(addr) {
			gas += CallNewAccountGas
		}
	} else if !evm.StateDB.Exist(addr) {
		gas += CallNewAccountGas
	}

	evm.callGasTemp, err = callChildGas(evm.rules.IsTangerine, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas+evm.callGasTemp < gas {
		return 0, ErrGasUintOverflow
	}
	return gas + evm.callGasTemp, nil
}

// gasCallCode: like CALL but never charges for account creation.
func gasCallCode(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(1).Bytes())
	if evm.rules.IsBerlin {
		gas += coldAccountSurcharge(evm, addr)
	}
	if stack.Back(2).Sign() != 0 {
		gas += CallValueTransferGas
	}
	evm.callGasTemp, err = callChildGas(evm.rules.IsTangerine, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas+evm.callGasTemp < gas {
		return 0, ErrGasUintOverflow
	}
	return gas + evm.callGasTemp, nil
}

// gasDelegateCall / gasStaticCall: no value semantics.
func gasDelegateCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	addr := types.BytesToAddress(stack.Back(1).Bytes())
	if evm.rules.IsBerlin {
		gas += coldAccountSurcharge(evm, addr)
	}
	evm.callGasTemp, err = callChildGas(evm.rules.IsTangerine, contract.Gas, gas, stack.Back(0))
	if err != nil {
		return 0, err
	}
	if gas+evm.callGasTemp < gas {
		return 0, ErrGasUintOverflow
	}
	return gas + evm.callGasTemp, nil
}

func gasStaticCall(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	return gasDelegateCall(evm, contract, stack, mem, memorySize)
}

// gasCreate charges memory expansion plus, post-Shanghai, the EIP-3860
// per-word initcode cost.
func gasCreate(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	if evm.rules.IsShanghai {
		size := stack.Back(2)
		if size.BitLen() > 64 {
			return 0, ErrGasUintOverflow
		}
		gas += wordCount(size.Uint64()) * InitCodeWordGas
	}
	return gas, nil
}

// gasCreate2 additionally charges the keccak word cost for hashing the
// init code (EIP-1014).
func gasCreate2(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	gas, err := memoryExpansionCost(mem, memorySize)
	if err != nil {
		return 0, err
	}
	size := stack.Back(2)
	if size.BitLen() > 64 {
		return 0, ErrGasUintOverflow
	}
	words := wordCount(size.Uint64())
	gas += words * Keccak256WordGas
	if evm.rules.IsShanghai {
		gas += words * InitCodeWordGas
	}
	return gas, nil
}

// gasSelfdestruct: the base cost sits in the table (0 pre-Tangerine,
// 5000 after); the dynamic part covers the new-account charge, the
// EIP-2929 cold surcharge, and the pre-London refund.
func gasSelfdestruct(evm *EVM, contract *Contract, stack *Stack, mem *Memory, memorySize uint64) (uint64, error) {
	var gas uint64
	beneficiary := types.BytesToAddress(stack.Back(0).Bytes())

	if evm.rules.IsTangerine {
		if evm.rules.IsSpurious {
			// EIP-161: charge only when moving balance into a dead account.
			if evm.StateDB.Empty(beneficiary) && evm.StateDB.GetBalance(contract.Address).Sign() != 0 {
				gas += CallNewAccountGas
			}
		} else if !evm.StateDB.Exist(beneficiary) {
			gas += CallNewAccountGas
		}
	}
	if evm.rules.IsBerlin && !evm.StateDB.AddressInAccessList(beneficiary) {
		evm.StateDB.AddAddressToAccessList(beneficiary)
		gas += ColdAccountAccessCost
	}
	// EIP-3529 removed the selfdestruct refund.
	if !evm.rules.IsLondon && !evm.StateDB.HasSelfDestructed(contract.Address) {
		evm.StateDB.AddRefund(SelfdestructRefundGas)
	}
	return gas, nil
}
