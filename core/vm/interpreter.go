package vm

import (
	"errors"
	"math/big"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/crypto"
)

// GetHashFunc returns the hash of the block with the given number, for
// the BLOCKHASH opcode.
type GetHashFunc func(uint64) types.Hash

// BlockContext provides the EVM with block-level information.
type BlockContext struct {
	GetHash     GetHashFunc
	BlockNumber *big.Int
	Time        uint64
	Coinbase    types.Address
	GasLimit    uint64
	Difficulty  *big.Int
	BaseFee     *big.Int
	PrevRandao  types.Hash
	BlobBaseFee *big.Int
}

// TxContext provides the EVM with transaction-level information.
type TxContext struct {
	Origin     types.Address
	GasPrice   *big.Int
	BlobHashes []types.Hash
}

// StateDB is the world-state surface the interpreter mutates. It is
// declared here to avoid a cycle with core/state; *state.StateDB
// satisfies it.
type StateDB interface {
	CreateAccount(addr types.Address)
	CreateContract(addr types.Address)
	GetBalance(addr types.Address) *big.Int
	AddBalance(addr types.Address, amount *big.Int)
	SubBalance(addr types.Address, amount *big.Int)
	GetNonce(addr types.Address) uint64
	SetNonce(addr types.Address, nonce uint64)
	GetCode(addr types.Address) []byte
	SetCode(addr types.Address, code []byte)
	GetCodeHash(addr types.Address) types.Hash
	GetCodeSize(addr types.Address) int

	GetState(addr types.Address, key types.Hash) types.Hash
	SetState(addr types.Address, key, value types.Hash)
	GetCommittedState(addr types.Address, key types.Hash) types.Hash

	GetTransientState(addr types.Address, key types.Hash) types.Hash
	SetTransientState(addr types.Address, key, value types.Hash)

	SelfDestruct(addr types.Address)
	SelfDestruct6780(addr types.Address) bool
	HasSelfDestructed(addr types.Address) bool
	CreatedInTransaction(addr types.Address) bool

	Exist(addr types.Address) bool
	Empty(addr types.Address) bool
	HasCodeOrNonce(addr types.Address) bool
	TouchAccount(addr types.Address)

	Snapshot() int
	RevertToSnapshot(id int)

	AddLog(log *types.Log)

	AddRefund(gas uint64)
	SubRefund(gas uint64)
	GetRefund() uint64

	AddAddressToAccessList(addr types.Address)
	AddSlotToAccessList(addr types.Address, slot types.Hash)
	AddressInAccessList(addr types.Address) bool
	SlotInAccessList(addr types.Address, slot types.Hash) (addressOk, slotOk bool)
}

// ForkRules carries the active fork switches. The core package derives
// it from the chain configuration for each block.
type ForkRules struct {
	IsHomestead      bool
	IsTangerine      bool // EIP-150
	IsSpurious       bool // EIP-155/158/160/161/170
	IsByzantium      bool
	IsConstantinople bool
	IsPetersburg     bool
	IsIstanbul       bool
	IsBerlin         bool
	IsLondon         bool
	IsMerge          bool
	IsShanghai       bool
	IsCancun         bool
	IsPrague         bool
}

// Config holds interpreter options.
type Config struct {
	// MaxCallDepth caps the call tree depth (default 1024).
	MaxCallDepth int
}

// EVM is one execution environment: a block context, a transaction
// context, and the state it mutates. A fresh EVM is created per
// transaction; call frames nest inside it.
type EVM struct {
	Context   BlockContext
	TxContext TxContext
	Config    Config
	StateDB   StateDB

	chainID     *big.Int
	depth       int
	readOnly    bool
	rules       ForkRules
	jumpTable   JumpTable
	precompiles map[types.Address]PrecompiledContract
	returnData  []byte // last frame's return data for RETURNDATA*

	// callGasTemp carries the child gas amount between a CALL-family
	// opcode's dynamic gas calculation and its execution.
	callGasTemp uint64
}

// NewEVM creates a new EVM for the given contexts, fork rules, and state.
func NewEVM(blockCtx BlockContext, txCtx TxContext, statedb StateDB, chainID *big.Int, rules ForkRules, config Config) *EVM {
	if config.MaxCallDepth == 0 {
		config.MaxCallDepth = 1024
	}
	if chainID == nil {
		chainID = new(big.Int)
	}
	return &EVM{
		Context:     blockCtx,
		TxContext:   txCtx,
		Config:      config,
		StateDB:     statedb,
		chainID:     chainID,
		rules:       rules,
		jumpTable:   SelectJumpTable(rules),
		precompiles: SelectPrecompiles(rules),
	}
}

// Rules returns the active fork rules.
func (evm *EVM) Rules() ForkRules { return evm.rules }

// ChainID returns the chain identifier (CHAINID opcode).
func (evm *EVM) ChainID() *big.Int { return evm.chainID }

// Depth returns the current call depth.
func (evm *EVM) Depth() int { return evm.depth }

// ActivePrecompiles returns the precompile addresses active under the
// current fork, for access-list pre-warming.
func (evm *EVM) ActivePrecompiles() []types.Address {
	addrs := make([]types.Address, 0, len(evm.precompiles))
	for addr := range evm.precompiles {
		addrs = append(addrs, addr)
	}
	return addrs
}

func (evm *EVM) precompile(addr types.Address) (PrecompiledContract, bool) {
	p, ok := evm.precompiles[addr]
	return p, ok
}

// runPrecompile charges the precompile's gas and executes it. The frame
// never enters the opcode loop.
func runPrecompile(p PrecompiledContract, input []byte, gas uint64) ([]byte, uint64, error) {
	gasCost := p.RequiredGas(input)
	if gas < gasCost {
		return nil, 0, ErrOutOfGas
	}
	output, err := p.Run(input)
	return output, gas - gasCost, err
}

// Run executes contract bytecode in the interpreter loop. Gas charging
// order per step: stack validation, constant gas, dynamic gas (including
// memory expansion), memory resize, execute.
func (evm *EVM) Run(contract *Contract, input []byte, readOnly bool) ([]byte, error) {
	if readOnly && !evm.readOnly {
		evm.readOnly = true
		defer func() { evm.readOnly = false }()
	}
	// Reset returndata at frame entry: a frame starts with an empty
	// buffer regardless of what the parent saw.
	evm.returnData = nil

	contract.Input = input

	var (
		pc    uint64
		stack = NewStack()
		mem   = NewMemory()
	)

	for {
		op := contract.GetOp(pc)
		operation := evm.jumpTable[op]
		if operation == nil || operation.execute == nil {
			return nil, ErrInvalidOpCode
		}

		sLen := stack.Len()
		if sLen < operation.minStack {
			return nil, ErrStackUnderflow
		}
		if sLen > operation.maxStack {
			return nil, ErrStackOverflow
		}

		if evm.readOnly && operation.writes {
			return nil, ErrWriteProtection
		}

		if operation.constantGas > 0 {
			if !contract.UseGas(operation.constantGas) {
				return nil, ErrOutOfGas
			}
		}

		// Required memory size, word-aligned; sized but not grown until
		// the expansion cost has been charged.
		var memorySize uint64
		if operation.memorySize != nil {
			size, overflow := operation.memorySize(stack)
			if overflow {
				return nil, ErrGasUintOverflow
			}
			if size > 0 {
				memorySize = wordCount(size) * 32
			}
		}

		if operation.dynamicGas != nil {
			cost, err := operation.dynamicGas(evm, contract, stack, mem, memorySize)
			if err != nil {
				return nil, err
			}
			if !contract.UseGas(cost) {
				return nil, ErrOutOfGas
			}
		}

		if memorySize > 0 && uint64(mem.Len()) < memorySize {
			mem.Resize(memorySize)
		}

		ret, err := operation.execute(&pc, evm, contract, mem, stack)
		if err != nil {
			if errors.Is(err, ErrExecutionReverted) {
				return ret, err
			}
			return nil, err
		}

		if operation.halts {
			return ret, nil
		}
		if !operation.jumps {
			pc++
		}
	}
}

// resolveCode returns the code to execute for addr, following an
// EIP-7702 delegation designator when Prague is active. The returned
// codeAddr is the account whose code was loaded (the delegate when
// resolution happened).
func (evm *EVM) resolveCode(addr types.Address) (code []byte, codeAddr types.Address, delegated bool, err error) {
	code = evm.StateDB.GetCode(addr)
	if !evm.rules.IsPrague {
		return code, addr, false, nil
	}
	delegate, ok := types.ParseDelegation(code)
	if !ok {
		return code, addr, false, nil
	}
	code = evm.StateDB.GetCode(delegate)
	// A delegate whose own code carries the reserved 0xEF prefix is not
	// executable.
	if len(code) > 0 && code[0] == 0xEF {
		return nil, delegate, true, ErrReservedBytesInCode
	}
	return code, delegate, true, nil
}

// chargeDelegationAccess charges the warm/cold account access cost for a
// resolved delegation target.
func (evm *EVM) chargeDelegationAccess(contract *Contract, delegate types.Address) error {
	cost := WarmStorageReadCost
	if !evm.StateDB.AddressInAccessList(delegate) {
		evm.StateDB.AddAddressToAccessList(delegate)
		cost = ColdAccountAccessCost
	}
	if !contract.UseGas(cost) {
		return ErrOutOfGas
	}
	return nil
}

// Call executes a message call against addr.
func (evm *EVM) Call(caller, addr types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}
	if evm.StateDB == nil {
		return nil, gas, ErrNoStateDatabase
	}

	transfersValue := value != nil && value.Sign() > 0
	if transfersValue {
		if evm.readOnly {
			return nil, gas, ErrWriteProtection
		}
		if evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
			return nil, gas, ErrInsufficientBalance
		}
	}

	snapshot := evm.StateDB.Snapshot()
	p, isPrecompile := evm.precompile(addr)

	if !evm.StateDB.Exist(addr) {
		if !isPrecompile && evm.rules.IsSpurious && !transfersValue {
			// EIP-161: no account is created for a zero-value call to a
			// nonexistent address.
			return nil, gas, nil
		}
		if !isPrecompile {
			evm.StateDB.CreateAccount(addr)
		}
	}

	if transfersValue {
		evm.StateDB.SubBalance(caller, value)
		evm.StateDB.AddBalance(addr, value)
	} else {
		// A zero-value call still touches the callee (EIP-161 cleanup).
		evm.StateDB.TouchAccount(addr)
	}

	if isPrecompile {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
			gasLeft = 0
		}
		return ret, gasLeft, err
	}

	code, _, delegated, err := evm.resolveCode(addr)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}
	if len(code) == 0 {
		return nil, gas, nil
	}

	contract := NewContract(caller, addr, value, gas)
	contract.Code = code
	contract.CodeHash = crypto.Keccak256Hash(code)
	if delegated {
		if raw := evm.StateDB.GetCode(addr); len(raw) >= 23 {
			if err := evm.chargeDelegationAccess(contract, types.BytesToAddress(raw[3:23])); err != nil {
				evm.StateDB.RevertToSnapshot(snapshot)
				return nil, 0, err
			}
		}
	}

	evm.depth++
	ret, err := evm.Run(contract, input, false)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// CallCode runs addr's code in the caller's storage context.
func (evm *EVM) CallCode(caller, addr types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}
	if value != nil && value.Sign() > 0 && evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
		return nil, gas, ErrInsufficientBalance
	}

	snapshot := evm.StateDB.Snapshot()

	if p, ok := evm.precompile(addr); ok {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
			gasLeft = 0
		}
		return ret, gasLeft, err
	}

	code, _, delegated, err := evm.resolveCode(addr)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}
	if len(code) == 0 {
		return nil, gas, nil
	}

	contract := NewContract(caller, caller, value, gas)
	contract.Code = code
	contract.CodeHash = crypto.Keccak256Hash(code)
	if delegated {
		if raw := evm.StateDB.GetCode(addr); len(raw) >= 23 {
			if err := evm.chargeDelegationAccess(contract, types.BytesToAddress(raw[3:23])); err != nil {
				evm.StateDB.RevertToSnapshot(snapshot)
				return nil, 0, err
			}
		}
	}

	evm.depth++
	ret, err := evm.Run(contract, input, false)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// DelegateCall runs addr's code with the caller's full context
// preserved: storage, msg.sender, and msg.value.
func (evm *EVM) DelegateCall(origCaller, caller, addr types.Address, input []byte, gas uint64, value *big.Int) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	snapshot := evm.StateDB.Snapshot()

	if p, ok := evm.precompile(addr); ok {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
			gasLeft = 0
		}
		return ret, gasLeft, err
	}

	code, _, delegated, err := evm.resolveCode(addr)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}
	if len(code) == 0 {
		return nil, gas, nil
	}

	contract := NewContract(origCaller, caller, value, gas)
	contract.Code = code
	contract.CodeHash = crypto.Keccak256Hash(code)
	if delegated {
		if raw := evm.StateDB.GetCode(addr); len(raw) >= 23 {
			if err := evm.chargeDelegationAccess(contract, types.BytesToAddress(raw[3:23])); err != nil {
				evm.StateDB.RevertToSnapshot(snapshot)
				return nil, 0, err
			}
		}
	}

	evm.depth++
	ret, err := evm.Run(contract, input, false)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// StaticCall executes a read-only call; state-modifying opcodes in the
// child tree fail with ErrWriteProtection.
func (evm *EVM) StaticCall(caller, addr types.Address, input []byte, gas uint64) ([]byte, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, gas, ErrMaxCallDepthExceeded
	}

	// Even a static call counts as a touch of the callee.
	snapshot := evm.StateDB.Snapshot()
	evm.StateDB.TouchAccount(addr)

	if p, ok := evm.precompile(addr); ok {
		ret, gasLeft, err := runPrecompile(p, input, gas)
		if err != nil {
			evm.StateDB.RevertToSnapshot(snapshot)
			gasLeft = 0
		}
		return ret, gasLeft, err
	}

	code, _, delegated, err := evm.resolveCode(addr)
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, 0, err
	}
	if len(code) == 0 {
		return nil, gas, nil
	}

	contract := NewContract(caller, addr, new(big.Int), gas)
	contract.Code = code
	contract.CodeHash = crypto.Keccak256Hash(code)
	if delegated {
		if raw := evm.StateDB.GetCode(addr); len(raw) >= 23 {
			if err := evm.chargeDelegationAccess(contract, types.BytesToAddress(raw[3:23])); err != nil {
				evm.StateDB.RevertToSnapshot(snapshot)
				return nil, 0, err
			}
		}
	}

	evm.depth++
	ret, err := evm.Run(contract, input, true)
	evm.depth--

	gasLeft := contract.Gas
	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			gasLeft = 0
		}
	}
	return ret, gasLeft, err
}

// CreateAddress computes the CREATE address:
// keccak256(rlp([sender, nonce]))[12:].
func CreateAddress(caller types.Address, nonce uint64) types.Address {
	enc := encodeCreatePayload(caller, nonce)
	return types.BytesToAddress(crypto.Keccak256(enc)[12:])
}

// Create2Address computes the CREATE2 address:
// keccak256(0xff ‖ sender ‖ salt ‖ keccak256(initCode))[12:].
func Create2Address(caller types.Address, salt types.Hash, initCodeHash []byte) types.Address {
	data := make([]byte, 0, 85)
	data = append(data, 0xff)
	data = append(data, caller[:]...)
	data = append(data, salt[:]...)
	data = append(data, initCodeHash...)
	return types.BytesToAddress(crypto.Keccak256(data)[12:])
}

// Create runs init code and installs the returned bytecode at the
// CREATE-derived address.
func (evm *EVM) Create(caller types.Address, code []byte, gas uint64, value *big.Int) ([]byte, types.Address, uint64, error) {
	nonce := evm.StateDB.GetNonce(caller)
	contractAddr := CreateAddress(caller, nonce)
	return evm.create(caller, code, gas, value, contractAddr, true)
}

// Create2 runs init code and installs the result at the salt-derived
// address (EIP-1014).
func (evm *EVM) Create2(caller types.Address, code []byte, gas uint64, value *big.Int, salt types.Hash) ([]byte, types.Address, uint64, error) {
	contractAddr := Create2Address(caller, salt, crypto.Keccak256(code))
	return evm.create(caller, code, gas, value, contractAddr, true)
}

// CreateAtAddress is the transaction-level entry point: the address has
// been derived by the executor and the sender nonce already incremented.
func (evm *EVM) CreateAtAddress(caller types.Address, code []byte, gas uint64, value *big.Int, contractAddr types.Address) ([]byte, types.Address, uint64, error) {
	return evm.create(caller, code, gas, value, contractAddr, false)
}

func (evm *EVM) create(caller types.Address, code []byte, gas uint64, value *big.Int, contractAddr types.Address, bumpNonce bool) ([]byte, types.Address, uint64, error) {
	if evm.depth > evm.Config.MaxCallDepth {
		return nil, types.Address{}, gas, ErrMaxCallDepthExceeded
	}
	if evm.readOnly {
		return nil, types.Address{}, gas, ErrWriteProtection
	}
	if evm.StateDB == nil {
		return nil, types.Address{}, gas, ErrNoStateDatabase
	}
	if evm.rules.IsShanghai && len(code) > MaxInitCodeSize {
		return nil, types.Address{}, gas, ErrMaxInitCodeSizeExceeded
	}
	if value != nil && value.Sign() > 0 && evm.StateDB.GetBalance(caller).Cmp(value) < 0 {
		return nil, types.Address{}, gas, ErrInsufficientBalance
	}

	if bumpNonce {
		evm.StateDB.SetNonce(caller, evm.StateDB.GetNonce(caller)+1)
	}

	// EIP-2929: the created address becomes warm even if creation fails.
	if evm.rules.IsBerlin {
		evm.StateDB.AddAddressToAccessList(contractAddr)
	}

	// Collision: an account with code or nonce at the target address
	// aborts the creation and consumes all gas. Pre-Spurious-Dragon the
	// overwrite was permitted.
	if evm.rules.IsSpurious && evm.StateDB.HasCodeOrNonce(contractAddr) {
		return nil, types.Address{}, 0, ErrContractAddressCollision
	}

	snapshot := evm.StateDB.Snapshot()

	if !evm.StateDB.Exist(contractAddr) {
		evm.StateDB.CreateAccount(contractAddr)
	}
	evm.StateDB.CreateContract(contractAddr)

	// EIP-161: the created account's nonce starts at 1.
	if evm.rules.IsSpurious {
		evm.StateDB.SetNonce(contractAddr, 1)
	}

	if value != nil && value.Sign() > 0 {
		evm.StateDB.SubBalance(caller, value)
		evm.StateDB.AddBalance(contractAddr, value)
	}

	// EIP-150: the child keeps 63/64 of the remaining gas; before
	// Tangerine Whistle all remaining gas went to the child.
	childGas := gas
	if evm.rules.IsTangerine {
		childGas = gas - gas/CallGasDivisor
	}
	gas -= childGas

	contract := NewContract(caller, contractAddr, value, childGas)
	contract.Code = code

	evm.depth++
	ret, err := evm.Run(contract, nil, false)
	evm.depth--

	if err != nil {
		evm.StateDB.RevertToSnapshot(snapshot)
		if !errors.Is(err, ErrExecutionReverted) {
			// Only the 1/64 held back by EIP-150 survives.
			return ret, types.Address{}, gas, err
		}
		// Revert during init returns the child's remaining gas.
		return ret, types.Address{}, gas + contract.Gas, err
	}
	gas += contract.Gas

	// Deployed-code checks and the deposit charge.
	if evm.rules.IsLondon && len(ret) > 0 && ret[0] == 0xEF {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, types.Address{}, 0, ErrReservedBytesInCode
	}
	if evm.rules.IsSpurious && len(ret) > MaxCodeSize {
		evm.StateDB.RevertToSnapshot(snapshot)
		return nil, types.Address{}, 0, ErrMaxCodeSizeExceeded
	}
	depositCost := uint64(len(ret)) * CreateDataGas
	if gas < depositCost {
		if evm.rules.IsHomestead {
			// OOG during the deposit burns everything.
			evm.StateDB.RevertToSnapshot(snapshot)
			return nil, types.Address{}, 0, ErrOutOfGas
		}
		// Frontier quirk: the code simply is not stored.
		return ret, contractAddr, gas, nil
	}
	gas -= depositCost
	evm.StateDB.SetCode(contractAddr, ret)

	return ret, contractAddr, gas, nil
}

// encodeCreatePayload RLP-encodes [sender, nonce] without pulling the
// rlp package into the hot path.
func encodeCreatePayload(caller types.Address, nonce uint64) []byte {
	addrEnc := append([]byte{0x80 + 20}, caller[:]...)

	var nonceEnc []byte
	switch {
	case nonce == 0:
		nonceEnc = []byte{0x80}
	case nonce < 128:
		nonceEnc = []byte{byte(nonce)}
	default:
		var buf [8]byte
		n := 0
		for i := 7; i >= 0; i-- {
			buf[i] = byte(nonce)
			nonce >>= 8
			if buf[i] != 0 {
				n = 8 - i
			}
		}
		nonceEnc = append([]byte{0x80 + byte(n)}, buf[8-n:]...)
	}

	payload := append(addrEnc, nonceEnc...)
	return append([]byte{0xc0 + byte(len(payload))}, payload...)
}
