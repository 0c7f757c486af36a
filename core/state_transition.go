// state_transition.go implements the per-transaction state transition:
// validation, intrinsic gas, sender debit, access-list pre-warming,
// EIP-7702 authorization processing, EVM dispatch, and the refund and
// fee settlement.
package core

import (
	"fmt"
	"math/big"

	"github.com/evmcore/evmcore/core/state"
	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/core/vm"
)

// Intrinsic gas constants.
const (
	TxGas                 uint64 = 21000
	TxGasContractCreation uint64 = 53000 // Homestead onward
	TxDataZeroGas         uint64 = 4
	TxDataNonZeroGasFrontier uint64 = 68
	TxDataNonZeroGasEIP2028  uint64 = 16

	// EIP-7623 calldata floor: tokens = zeros + 4*nonzeros, floor cost
	// 10 gas per token on top of the base cost.
	TotalCostFloorPerToken uint64 = 10
)

// ExecutionResult is the outcome of executing one message.
type ExecutionResult struct {
	UsedGas         uint64
	Err             error  // VM-level error (reverts and failures); nil on success
	ReturnData      []byte // revert payload or call output
	ContractAddress types.Address
}

// Failed reports whether execution ended in a VM error.
func (r *ExecutionResult) Failed() bool { return r.Err != nil }

// IntrinsicGas computes the gas a transaction consumes before any EVM
// execution.
func IntrinsicGas(data []byte, accessList types.AccessList, authCount uint64, isCreate bool, rules vm.ForkRules) (uint64, error) {
	gas := TxGas
	if isCreate && rules.IsHomestead {
		gas = TxGasContractCreation
	}

	if len(data) > 0 {
		nonZeroGas := TxDataNonZeroGasFrontier
		if rules.IsIstanbul {
			nonZeroGas = TxDataNonZeroGasEIP2028
		}
		var nz uint64
		for _, b := range data {
			if b != 0 {
				nz++
			}
		}
		if (maxUint64-gas)/nonZeroGas < nz {
			return 0, ErrIntrinsicGasTooLow
		}
		gas += nz * nonZeroGas
		z := uint64(len(data)) - nz
		gas += z * TxDataZeroGas

		// EIP-3860: charge per word of initcode.
		if isCreate && rules.IsShanghai {
			gas += ((uint64(len(data)) + 31) / 32) * vm.InitCodeWordGas
		}
	}

	for _, tuple := range accessList {
		gas += vm.AccessListAddressGas
		gas += uint64(len(tuple.StorageKeys)) * vm.AccessListStorageKeyGas
	}

	gas += authCount * PerEmptyAccountCost
	return gas, nil
}

const maxUint64 = ^uint64(0)

// floorDataGas computes the EIP-7623 calldata gas floor.
func floorDataGas(data []byte) uint64 {
	var tokens uint64
	for _, b := range data {
		if b == 0 {
			tokens++
		} else {
			tokens += 4
		}
	}
	return TxGas + tokens*TotalCostFloorPerToken
}

// validateMessage applies the pre-execution consensus checks that do not
// touch state.
func validateMessage(config *ChainConfig, msg *Message, header *types.Header) error {
	if msg.GasLimit > header.GasLimit {
		return fmt.Errorf("%w: tx %d, block %d", ErrGasLimitExceeded, msg.GasLimit, header.GasLimit)
	}
	// EIP-1559 fee cap ordering.
	if msg.TxType >= types.DynamicFeeTxType && msg.GasFeeCap != nil && msg.GasTipCap != nil {
		if msg.GasFeeCap.Cmp(msg.GasTipCap) < 0 {
			return fmt.Errorf("%w: tip %s, cap %s", ErrTipAboveFeeCap, msg.GasTipCap, msg.GasFeeCap)
		}
		if header.BaseFee != nil && msg.GasFeeCap.Cmp(header.BaseFee) < 0 {
			return fmt.Errorf("%w: cap %s, base fee %s", ErrFeeCapTooLow, msg.GasFeeCap, header.BaseFee)
		}
	}
	// EIP-4844 blob constraints.
	if msg.TxType == types.BlobTxType {
		if len(msg.BlobHashes) == 0 {
			return ErrMissingBlobHashes
		}
		if msg.To == nil {
			return ErrBlobTxCreate
		}
		for _, h := range msg.BlobHashes {
			if h[0] != 0x01 {
				return fmt.Errorf("%w: %s", ErrBadBlobVersion, h.Hex())
			}
		}
		if header.ExcessBlobGas != nil && msg.BlobFeeCap != nil {
			if blobBase := CalcBlobBaseFee(*header.ExcessBlobGas); msg.BlobFeeCap.Cmp(blobBase) < 0 {
				return fmt.Errorf("%w: cap %s, fee %s", ErrBlobFeeCapTooLow, msg.BlobFeeCap, blobBase)
			}
		}
	}
	// EIP-7702.
	if msg.TxType == types.SetCodeTxType && len(msg.AuthList) == 0 {
		return ErrEmptyAuthList
	}
	return nil
}

// ApplyMessage runs one message against the state, returning the
// execution result. Consensus-rule violations return a (nil, error)
// pair; VM failures are reported inside the result.
func ApplyMessage(config *ChainConfig, getHash vm.GetHashFunc, statedb *state.StateDB, header *types.Header, msg *Message, gp *GasPool) (*ExecutionResult, error) {
	rules := config.Rules(header.Number, header.Time)

	if err := gp.SubGas(msg.GasLimit); err != nil {
		return nil, err
	}

	if err := validateMessage(config, msg, header); err != nil {
		gp.AddGas(msg.GasLimit)
		return nil, err
	}

	// Nonce.
	stateNonce := statedb.GetNonce(msg.From)
	if msg.Nonce < stateNonce {
		gp.AddGas(msg.GasLimit)
		return nil, fmt.Errorf("%w: address %v, tx %d, state %d", ErrNonceTooLow, msg.From, msg.Nonce, stateNonce)
	}
	if msg.Nonce > stateNonce {
		gp.AddGas(msg.GasLimit)
		return nil, fmt.Errorf("%w: address %v, tx %d, state %d", ErrNonceTooHigh, msg.From, msg.Nonce, stateNonce)
	}

	// EIP-3607: only EOAs (or 7702-delegated EOAs) may originate.
	if ch := statedb.GetCodeHash(msg.From); ch != (types.Hash{}) && ch != types.EmptyCodeHash {
		if !types.HasDelegationPrefix(statedb.GetCode(msg.From)) {
			gp.AddGas(msg.GasLimit)
			return nil, fmt.Errorf("%w: address %v", ErrSenderNoEOA, msg.From)
		}
	}

	// Intrinsic gas including access list and authorization costs.
	var authCount uint64
	if msg.TxType == types.SetCodeTxType {
		authCount = uint64(len(msg.AuthList))
	}
	igas, err := IntrinsicGas(msg.Data, msg.AccessList, authCount, msg.IsCreate(), rules)
	if err != nil {
		gp.AddGas(msg.GasLimit)
		return nil, err
	}
	if igas > msg.GasLimit {
		gp.AddGas(msg.GasLimit)
		return nil, fmt.Errorf("%w: have %d, want %d", ErrIntrinsicGasTooLow, msg.GasLimit, igas)
	}
	// EIP-7623: the gas limit must also cover the calldata floor.
	if rules.IsPrague {
		if floor := floorDataGas(msg.Data); msg.GasLimit < floor {
			gp.AddGas(msg.GasLimit)
			return nil, fmt.Errorf("%w: have %d, floor %d", ErrIntrinsicGasTooLow, msg.GasLimit, floor)
		}
	}

	// Balance check at the fee cap, debit at the effective price.
	gasPrice := EffectiveGasPrice(msg, header.BaseFee)
	if header.BaseFee != nil && gasPrice.Cmp(header.BaseFee) < 0 {
		// Legacy transactions must also clear the base fee post-London.
		gp.AddGas(msg.GasLimit)
		return nil, fmt.Errorf("%w: price %s, base fee %s", ErrFeeCapTooLow, gasPrice, header.BaseFee)
	}
	maxGasPrice := gasPrice
	if msg.GasFeeCap != nil {
		maxGasPrice = msg.GasFeeCap
	}
	totalCost := new(big.Int).Mul(maxGasPrice, new(big.Int).SetUint64(msg.GasLimit))
	totalCost.Add(totalCost, msg.Value)

	var blobFee *big.Int
	blobGas := uint64(len(msg.BlobHashes)) * BlobGasPerBlob
	if blobGas > 0 {
		if msg.BlobFeeCap != nil {
			maxBlobFee := new(big.Int).Mul(msg.BlobFeeCap, new(big.Int).SetUint64(blobGas))
			totalCost.Add(totalCost, maxBlobFee)
		}
		var excess uint64
		if header.ExcessBlobGas != nil {
			excess = *header.ExcessBlobGas
		}
		blobFee = new(big.Int).Mul(CalcBlobBaseFee(excess), new(big.Int).SetUint64(blobGas))
	}

	if statedb.GetBalance(msg.From).Cmp(totalCost) < 0 {
		gp.AddGas(msg.GasLimit)
		return nil, fmt.Errorf("%w: address %v, have %v, want %v", ErrInsufficientFunds, msg.From, statedb.GetBalance(msg.From), totalCost)
	}

	// Debit the gas purchase (and blob fee) and bump the nonce.
	debit := new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(msg.GasLimit))
	if blobFee != nil {
		debit.Add(debit, blobFee)
	}
	statedb.SubBalance(msg.From, debit)
	statedb.SetNonce(msg.From, msg.Nonce+1)

	// Build the EVM for this message.
	blockCtx := vm.BlockContext{
		GetHash:     getHash,
		BlockNumber: header.Number,
		Time:        header.Time,
		Coinbase:    header.Coinbase,
		GasLimit:    header.GasLimit,
		Difficulty:  header.Difficulty,
		BaseFee:     header.BaseFee,
		PrevRandao:  header.MixDigest,
	}
	if header.ExcessBlobGas != nil {
		blockCtx.BlobBaseFee = CalcBlobBaseFee(*header.ExcessBlobGas)
	}
	txCtx := vm.TxContext{
		Origin:     msg.From,
		GasPrice:   gasPrice,
		BlobHashes: msg.BlobHashes,
	}
	evm := vm.NewEVM(blockCtx, txCtx, statedb, config.ChainID, rules, vm.Config{})

	// Derive the creation address before execution so it can be warmed.
	var createAddr types.Address
	if msg.IsCreate() {
		createAddr = vm.CreateAddress(msg.From, msg.Nonce)
	}

	// EIP-2929/2930 pre-warming: sender, recipient (or created address),
	// precompiles, the declared access list, and the coinbase from
	// Shanghai (EIP-3651).
	if rules.IsBerlin {
		statedb.AddAddressToAccessList(msg.From)
		if msg.To != nil {
			statedb.AddAddressToAccessList(*msg.To)
		} else {
			statedb.AddAddressToAccessList(createAddr)
		}
		for _, addr := range evm.ActivePrecompiles() {
			statedb.AddAddressToAccessList(addr)
		}
		for _, tuple := range msg.AccessList {
			statedb.AddAddressToAccessList(tuple.Address)
			for _, key := range tuple.StorageKeys {
				statedb.AddSlotToAccessList(tuple.Address, key)
			}
		}
		if rules.IsShanghai {
			statedb.AddAddressToAccessList(header.Coinbase)
		}
	}

	// EIP-7702: apply the authorization list before the call runs.
	if msg.TxType == types.SetCodeTxType {
		ProcessAuthorizations(statedb, msg.AuthList, config.ChainID)
	}

	gasLeft := msg.GasLimit - igas

	var (
		ret          []byte
		gasRemaining uint64
		vmErr        error
		contractAddr types.Address
	)
	if msg.IsCreate() {
		ret, contractAddr, gasRemaining, vmErr = evm.CreateAtAddress(msg.From, msg.Data, gasLeft, msg.Value, createAddr)
	} else {
		ret, gasRemaining, vmErr = evm.Call(msg.From, *msg.To, msg.Data, gasLeft, msg.Value)
	}

	gasUsed := msg.GasLimit - gasRemaining

	// Settle refunds: quotient 2 before London, 5 after (EIP-3529).
	quotient := vm.RefundQuotient
	if rules.IsLondon {
		quotient = vm.RefundQuotientEIP3529
	}
	refund := statedb.GetRefund()
	if max := gasUsed / quotient; refund > max {
		refund = max
	}
	gasUsed -= refund
	gasRemaining = msg.GasLimit - gasUsed

	// EIP-7623: enforce the calldata floor after refunds.
	if rules.IsPrague {
		if floor := floorDataGas(msg.Data); gasUsed < floor {
			gasUsed = floor
			gasRemaining = msg.GasLimit - gasUsed
		}
	}

	// Return the unused purchase to the sender and the gas to the pool.
	if gasRemaining > 0 {
		statedb.AddBalance(msg.From, new(big.Int).Mul(gasPrice, new(big.Int).SetUint64(gasRemaining)))
	}
	gp.AddGas(gasRemaining)

	// Pay the coinbase its tip (the full price pre-London).
	tip := EffectiveTip(msg, header.BaseFee)
	if tip.Sign() > 0 {
		statedb.AddBalance(header.Coinbase, new(big.Int).Mul(tip, new(big.Int).SetUint64(gasUsed)))
	}

	result := &ExecutionResult{
		UsedGas:    gasUsed,
		Err:        vmErr,
		ReturnData: ret,
	}
	if msg.IsCreate() && vmErr == nil {
		result.ContractAddress = contractAddr
	}
	return result, nil
}

// ApplyTransaction executes a transaction and produces its receipt. The
// state is snapshotted first: consensus-rule failures revert every
// mutation the attempt made.
func ApplyTransaction(config *ChainConfig, getHash vm.GetHashFunc, statedb *state.StateDB, header *types.Header, tx *types.Transaction, txIndex int, gp *GasPool) (*types.Receipt, error) {
	signer := config.MakeSigner(header.Number, header.Time)
	msg, err := TransactionToMessage(tx, signer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	statedb.SetTxContext(tx.Hash(), txIndex)

	snapshot := statedb.Snapshot()
	result, err := ApplyMessage(config, getHash, statedb, header, msg, gp)
	if err != nil {
		statedb.RevertToSnapshot(snapshot)
		return nil, err
	}

	rules := config.Rules(header.Number, header.Time)

	receipt := &types.Receipt{
		Type:              tx.Type(),
		CumulativeGasUsed: result.UsedGas, // accumulated by the caller
		GasUsed:           result.UsedGas,
		TxHash:            tx.Hash(),
		EffectiveGasPrice: EffectiveGasPrice(msg, header.BaseFee),
	}
	if result.Failed() {
		receipt.Status = types.ReceiptStatusFailed
	} else {
		receipt.Status = types.ReceiptStatusSuccessful
	}
	if msg.IsCreate() {
		receipt.ContractAddress = result.ContractAddress
	}
	if blobGas := tx.BlobGas(); blobGas > 0 {
		receipt.BlobGasUsed = blobGas
		if header.ExcessBlobGas != nil {
			receipt.BlobGasPrice = CalcBlobBaseFee(*header.ExcessBlobGas)
		}
	}

	receipt.Logs = statedb.GetLogs(tx.Hash())
	receipt.Bloom = types.LogsBloom(receipt.Logs)

	// End of transaction: delete selfdestructed and touched-empty
	// accounts, clear transient storage and warmth. Pre-Byzantium
	// receipts additionally commit to the intermediate state root.
	if rules.IsByzantium {
		statedb.Finalise(rules.IsSpurious)
	} else {
		root, err := statedb.IntermediateRoot(rules.IsSpurious)
		if err != nil {
			return nil, err
		}
		receipt.PostState = root.Bytes()
	}
	return receipt, nil
}
