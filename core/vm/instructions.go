package vm

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/crypto"
)

var (
	big0    = new(big.Int)
	big1    = big.NewInt(1)
	big32   = big.NewInt(32)
	big256  = big.NewInt(256)
	tt256   = new(big.Int).Lsh(big.NewInt(1), 256)
	tt256m1 = new(big.Int).Sub(tt256, big.NewInt(1))
	tt255   = new(big.Int).Lsh(big.NewInt(1), 255)
)

// toU256 masks val to 256 bits.
func toU256(val *big.Int) *big.Int {
	return val.And(val, tt256m1)
}

// toS256 interprets a 256-bit word as a signed integer.
func toS256(val *big.Int) *big.Int {
	if val.Cmp(tt255) < 0 {
		return val
	}
	return new(big.Int).Sub(val, tt256)
}

// fromS256 converts a signed integer back to the unsigned 256-bit form.
func fromS256(val *big.Int) *big.Int {
	if val.Sign() >= 0 {
		return val
	}
	return new(big.Int).Add(val, tt256)
}

// getData returns a zero-padded slice of data at [start, start+size).
func getData(data []byte, start, size uint64) []byte {
	length := uint64(len(data))
	if start > length {
		start = length
	}
	end := start + size
	if end > length {
		end = length
	}
	out := make([]byte, size)
	copy(out, data[start:end])
	return out
}

// Arithmetic.

func opStop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

func opAdd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Add(x, y)
	toU256(y)
	return nil, nil
}

func opMul(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Mul(x, y)
	toU256(y)
	return nil, nil
}

func opSub(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Sub(x, y)
	toU256(y)
	return nil, nil
}

func opDiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if y.Sign() != 0 {
		y.Div(x, y)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opSdiv(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx := toS256(new(big.Int).Set(x))
	sy := toS256(new(big.Int).Set(y))
	if sy.Sign() == 0 {
		y.SetUint64(0)
		return nil, nil
	}
	result := new(big.Int).Div(new(big.Int).Abs(sx), new(big.Int).Abs(sy))
	if sx.Sign() != sy.Sign() {
		result.Neg(result)
	}
	y.Set(fromS256(result))
	toU256(y)
	return nil, nil
}

func opMod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if y.Sign() != 0 {
		y.Mod(x, y)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opSmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx := toS256(new(big.Int).Set(x))
	sy := toS256(new(big.Int).Set(y))
	if sy.Sign() == 0 {
		y.SetUint64(0)
		return nil, nil
	}
	result := new(big.Int).Mod(new(big.Int).Abs(sx), new(big.Int).Abs(sy))
	if sx.Sign() < 0 {
		result.Neg(result)
	}
	y.Set(fromS256(result))
	toU256(y)
	return nil, nil
}

func opAddmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y, z := stack.Pop(), stack.Pop(), stack.Peek()
	if z.Sign() != 0 {
		sum := new(big.Int).Add(x, y)
		z.Mod(sum, z)
	} else {
		z.SetUint64(0)
	}
	return nil, nil
}

func opMulmod(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y, z := stack.Pop(), stack.Pop(), stack.Peek()
	if z.Sign() != 0 {
		prod := new(big.Int).Mul(x, y)
		z.Mod(prod, z)
	} else {
		z.SetUint64(0)
	}
	return nil, nil
}

func opExp(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	base, exp := stack.Pop(), stack.Peek()
	exp.Set(new(big.Int).Exp(base, exp, tt256))
	return nil, nil
}

func opSignExtend(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	back, num := stack.Pop(), stack.Peek()
	if back.Cmp(big32) < 0 {
		bit := uint(back.Uint64()*8 + 7)
		mask := new(big.Int).Lsh(big1, bit)
		mask.Sub(mask, big1)
		if num.Bit(int(bit)) > 0 {
			num.Or(num, new(big.Int).Not(mask))
		} else {
			num.And(num, mask)
		}
		toU256(num)
	}
	return nil, nil
}

// Comparison and bitwise.

func opLt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if x.Cmp(y) < 0 {
		y.SetUint64(1)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opGt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if x.Cmp(y) > 0 {
		y.SetUint64(1)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opSlt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx := toS256(new(big.Int).Set(x))
	sy := toS256(new(big.Int).Set(y))
	if sx.Cmp(sy) < 0 {
		y.SetUint64(1)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opSgt(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	sx := toS256(new(big.Int).Set(x))
	sy := toS256(new(big.Int).Set(y))
	if sx.Cmp(sy) > 0 {
		y.SetUint64(1)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opEq(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	if x.Cmp(y) == 0 {
		y.SetUint64(1)
	} else {
		y.SetUint64(0)
	}
	return nil, nil
}

func opIsZero(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	if x.Sign() == 0 {
		x.SetUint64(1)
	} else {
		x.SetUint64(0)
	}
	return nil, nil
}

func opAnd(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.And(x, y)
	return nil, nil
}

func opOr(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Or(x, y)
	return nil, nil
}

func opXor(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x, y := stack.Pop(), stack.Peek()
	y.Xor(x, y)
	return nil, nil
}

func opNot(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	x := stack.Peek()
	x.Not(x)
	toU256(x)
	return nil, nil
}

func opByte(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	th, val := stack.Pop(), stack.Peek()
	if th.Cmp(big32) < 0 {
		b := byte(0)
		full := val.FillBytes(make([]byte, 32))
		b = full[th.Uint64()]
		val.SetUint64(uint64(b))
	} else {
		val.SetUint64(0)
	}
	return nil, nil
}

func opSHL(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	if shift.Cmp(big256) >= 0 {
		value.SetUint64(0)
		return nil, nil
	}
	value.Lsh(value, uint(shift.Uint64()))
	toU256(value)
	return nil, nil
}

func opSHR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	if shift.Cmp(big256) >= 0 {
		value.SetUint64(0)
		return nil, nil
	}
	value.Rsh(value, uint(shift.Uint64()))
	return nil, nil
}

func opSAR(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	shift, value := stack.Pop(), stack.Peek()
	signed := toS256(new(big.Int).Set(value))
	if shift.Cmp(big256) >= 0 {
		if signed.Sign() < 0 {
			value.Set(tt256m1) // all ones
		} else {
			value.SetUint64(0)
		}
		return nil, nil
	}
	signed.Rsh(signed, uint(shift.Uint64()))
	value.Set(fromS256(signed))
	toU256(value)
	return nil, nil
}

// Hashing.

func opKeccak256(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, size := stack.Pop(), stack.Peek()
	data := memory.Get(offset.Uint64(), size.Uint64())
	hash := crypto.Keccak256(data)
	size.SetBytes(hash)
	return nil, nil
}

// Environment.

func opAddress(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(contract.Address.Bytes()))
	return nil, nil
}

func opBalance(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	addr := types.BytesToAddress(slot.Bytes())
	slot.Set(evm.StateDB.GetBalance(addr))
	return nil, nil
}

func opOrigin(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(evm.TxContext.Origin.Bytes()))
	return nil, nil
}

func opCaller(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(contract.CallerAddress.Bytes()))
	return nil, nil
}

func opCallValue(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if contract.Value != nil {
		stack.Push(new(big.Int).Set(contract.Value))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

func opCalldataLoad(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Peek()
	if offset.BitLen() > 64 {
		offset.SetUint64(0)
		return nil, nil
	}
	data := getData(contract.Input, offset.Uint64(), 32)
	offset.SetBytes(data)
	return nil, nil
}

func opCalldataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(contract.Input))))
	return nil, nil
}

func opCalldataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	dataOffset := stack.Pop()
	length := stack.Pop()
	var srcOff uint64
	if dataOffset.BitLen() <= 64 {
		srcOff = dataOffset.Uint64()
	} else {
		srcOff = uint64(len(contract.Input))
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(contract.Input, srcOff, length.Uint64()))
	return nil, nil
}

func opCodeSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(contract.Code))))
	return nil, nil
}

func opCodeCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	codeOffset := stack.Pop()
	length := stack.Pop()
	var srcOff uint64
	if codeOffset.BitLen() <= 64 {
		srcOff = codeOffset.Uint64()
	} else {
		srcOff = uint64(len(contract.Code))
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(contract.Code, srcOff, length.Uint64()))
	return nil, nil
}

func opGasPrice(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.TxContext.GasPrice != nil {
		stack.Push(new(big.Int).Set(evm.TxContext.GasPrice))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

func opExtCodeSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	addr := types.BytesToAddress(slot.Bytes())
	slot.SetUint64(uint64(evm.StateDB.GetCodeSize(addr)))
	return nil, nil
}

func opExtCodeCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	addrWord := stack.Pop()
	memOffset := stack.Pop()
	codeOffset := stack.Pop()
	length := stack.Pop()
	addr := types.BytesToAddress(addrWord.Bytes())
	code := evm.StateDB.GetCode(addr)
	var srcOff uint64
	if codeOffset.BitLen() <= 64 {
		srcOff = codeOffset.Uint64()
	} else {
		srcOff = uint64(len(code))
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), getData(code, srcOff, length.Uint64()))
	return nil, nil
}

func opExtCodeHash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	addr := types.BytesToAddress(slot.Bytes())
	if evm.StateDB.Empty(addr) {
		slot.SetUint64(0)
	} else {
		slot.SetBytes(evm.StateDB.GetCodeHash(addr).Bytes())
	}
	return nil, nil
}

func opReturnDataSize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(len(evm.returnData))))
	return nil, nil
}

func opReturnDataCopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	memOffset := stack.Pop()
	dataOffset := stack.Pop()
	length := stack.Pop()
	if dataOffset.BitLen() > 64 || length.BitLen() > 64 {
		return nil, ErrReturnDataOutOfBounds
	}
	end := dataOffset.Uint64() + length.Uint64()
	if end < dataOffset.Uint64() || end > uint64(len(evm.returnData)) {
		return nil, ErrReturnDataOutOfBounds
	}
	memory.Set(memOffset.Uint64(), length.Uint64(), evm.returnData[dataOffset.Uint64():end])
	return nil, nil
}

// Block information.

func opBlockhash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	num := stack.Peek()
	if evm.Context.GetHash == nil || evm.Context.BlockNumber == nil || num.BitLen() > 64 {
		num.SetUint64(0)
		return nil, nil
	}
	requested := num.Uint64()
	current := evm.Context.BlockNumber.Uint64()
	if requested >= current || current-requested > 256 {
		num.SetUint64(0)
		return nil, nil
	}
	num.SetBytes(evm.Context.GetHash(requested).Bytes())
	return nil, nil
}

func opCoinbase(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetBytes(evm.Context.Coinbase.Bytes()))
	return nil, nil
}

func opTimestamp(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(evm.Context.Time))
	return nil, nil
}

func opNumber(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.Context.BlockNumber != nil {
		stack.Push(new(big.Int).Set(evm.Context.BlockNumber))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

// opDifficulty serves both DIFFICULTY and PREVRANDAO: post-merge the
// slot exposes the beacon randomness instead (EIP-4399).
func opDifficulty(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.rules.IsMerge {
		stack.Push(new(big.Int).SetBytes(evm.Context.PrevRandao.Bytes()))
		return nil, nil
	}
	if evm.Context.Difficulty != nil {
		stack.Push(new(big.Int).Set(evm.Context.Difficulty))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

func opGasLimit(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(evm.Context.GasLimit))
	return nil, nil
}

func opChainID(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).Set(evm.chainID))
	return nil, nil
}

func opSelfBalance(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(evm.StateDB.GetBalance(contract.Address))
	return nil, nil
}

func opBaseFee(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.Context.BaseFee != nil {
		stack.Push(new(big.Int).Set(evm.Context.BaseFee))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

func opBlobHash(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	index := stack.Peek()
	if index.BitLen() > 64 || index.Uint64() >= uint64(len(evm.TxContext.BlobHashes)) {
		index.SetUint64(0)
		return nil, nil
	}
	index.SetBytes(evm.TxContext.BlobHashes[index.Uint64()].Bytes())
	return nil, nil
}

func opBlobBaseFee(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	if evm.Context.BlobBaseFee != nil {
		stack.Push(new(big.Int).Set(evm.Context.BlobBaseFee))
	} else {
		stack.Push(new(big.Int))
	}
	return nil, nil
}

// Stack, memory, flow.

func opPop(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	return nil, nil
}

func opMload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset := stack.Peek()
	data := memory.Get(offset.Uint64(), 32)
	offset.SetBytes(data)
	return nil, nil
}

func opMstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, val := stack.Pop(), stack.Pop()
	memory.Set32(offset.Uint64(), val)
	return nil, nil
}

func opMstore8(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, val := stack.Pop(), stack.Pop()
	memory.Set(offset.Uint64(), 1, []byte{byte(val.Uint64())})
	return nil, nil
}

func opSload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	val := evm.StateDB.GetState(contract.Address, types.BigToHash(slot))
	slot.SetBytes(val.Bytes())
	return nil, nil
}

func opSstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot, val := stack.Pop(), stack.Pop()
	evm.StateDB.SetState(contract.Address, types.BigToHash(slot), types.BigToHash(val))
	return nil, nil
}

func opJump(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dest := stack.Pop()
	if !contract.ValidJumpdest(dest) {
		return nil, ErrInvalidJump
	}
	*pc = dest.Uint64()
	return nil, nil
}

func opJumpi(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dest, cond := stack.Pop(), stack.Pop()
	if cond.Sign() != 0 {
		if !contract.ValidJumpdest(dest) {
			return nil, ErrInvalidJump
		}
		*pc = dest.Uint64()
	} else {
		*pc++
	}
	return nil, nil
}

func opPc(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(*pc))
	return nil, nil
}

func opMsize(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(uint64(memory.Len())))
	return nil, nil
}

func opGas(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int).SetUint64(contract.Gas))
	return nil, nil
}

func opJumpdest(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, nil
}

// Transient storage (EIP-1153).

func opTload(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot := stack.Peek()
	val := evm.StateDB.GetTransientState(contract.Address, types.BigToHash(slot))
	slot.SetBytes(val.Bytes())
	return nil, nil
}

func opTstore(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	slot, val := stack.Pop(), stack.Pop()
	evm.StateDB.SetTransientState(contract.Address, types.BigToHash(slot), types.BigToHash(val))
	return nil, nil
}

// opMcopy implements memory-to-memory copy (EIP-5656).
func opMcopy(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	dst, src, length := stack.Pop(), stack.Pop(), stack.Pop()
	if length.Sign() == 0 {
		return nil, nil
	}
	data := memory.Get(src.Uint64(), length.Uint64())
	memory.Set(dst.Uint64(), length.Uint64(), data)
	return nil, nil
}

// Push, dup, swap, log.

func opPush0(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Push(new(big.Int))
	return nil, nil
}

func makePush(size uint64) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		start := *pc + 1
		data := getData(contract.Code, start, size)
		stack.Push(new(big.Int).SetBytes(data))
		*pc += size
		return nil, nil
	}
}

func makeDup(n int) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Dup(n)
		return nil, nil
	}
}

func makeSwap(n int) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		stack.Swap(n)
		return nil, nil
	}
}

func makeLog(topics int) executionFunc {
	return func(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
		offset, size := stack.Pop(), stack.Pop()
		topicList := make([]types.Hash, topics)
		for i := 0; i < topics; i++ {
			topicList[i] = types.BigToHash(stack.Pop())
		}
		data := memory.Get(offset.Uint64(), size.Uint64())
		evm.StateDB.AddLog(&types.Log{
			Address: contract.Address,
			Topics:  topicList,
			Data:    data,
		})
		return nil, nil
	}
}

// Calls and creation.

func opCreate(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	value := stack.Pop()
	offset, size := stack.Pop(), stack.Pop()
	input := memory.Get(offset.Uint64(), size.Uint64())

	gas := contract.Gas
	contract.Gas = 0

	ret, addr, gasLeft, err := evm.Create(contract.Address, input, gas, value)
	contract.Gas = gasLeft

	if err != nil && !isRevert(err) {
		stack.Push(new(big.Int))
		evm.returnData = nil
		// Creation failures are absorbed: the frame continues with the
		// failure pushed.
		return nil, nil
	}
	if isRevert(err) {
		stack.Push(new(big.Int))
		evm.returnData = ret
		return nil, nil
	}
	stack.Push(new(big.Int).SetBytes(addr.Bytes()))
	evm.returnData = nil
	return nil, nil
}

func opCreate2(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	value := stack.Pop()
	offset, size := stack.Pop(), stack.Pop()
	salt := stack.Pop()
	input := memory.Get(offset.Uint64(), size.Uint64())

	gas := contract.Gas
	contract.Gas = 0

	ret, addr, gasLeft, err := evm.Create2(contract.Address, input, gas, value, types.BigToHash(salt))
	contract.Gas = gasLeft

	if err != nil && !isRevert(err) {
		stack.Push(new(big.Int))
		evm.returnData = nil
		return nil, nil
	}
	if isRevert(err) {
		stack.Push(new(big.Int))
		evm.returnData = ret
		return nil, nil
	}
	stack.Push(new(big.Int).SetBytes(addr.Bytes()))
	evm.returnData = nil
	return nil, nil
}

func opCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	// Child gas was computed by the dynamic gas function.
	stack.Pop() // requested gas
	addrWord := stack.Pop()
	value := stack.Pop()
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	addr := types.BytesToAddress(addrWord.Bytes())
	input := memory.Get(inOffset.Uint64(), inSize.Uint64())

	if evm.readOnly && value.Sign() != 0 {
		return nil, ErrWriteProtection
	}

	gas := evm.callGasTemp
	if value.Sign() != 0 {
		gas += CallStipend
	}

	ret, gasLeft, err := evm.Call(contract.Address, addr, input, gas, value)
	contract.RefundGas(gasLeft)

	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(new(big.Int).SetUint64(1))
	}
	writeCallResult(memory, retOffset.Uint64(), retSize.Uint64(), ret)
	if err == nil || isRevert(err) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return nil, nil
}

func opCallCode(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	addrWord := stack.Pop()
	value := stack.Pop()
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	addr := types.BytesToAddress(addrWord.Bytes())
	input := memory.Get(inOffset.Uint64(), inSize.Uint64())

	gas := evm.callGasTemp
	if value.Sign() != 0 {
		gas += CallStipend
	}

	ret, gasLeft, err := evm.CallCode(contract.Address, addr, input, gas, value)
	contract.RefundGas(gasLeft)

	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(new(big.Int).SetUint64(1))
	}
	writeCallResult(memory, retOffset.Uint64(), retSize.Uint64(), ret)
	if err == nil || isRevert(err) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return nil, nil
}

func opDelegateCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	addrWord := stack.Pop()
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	addr := types.BytesToAddress(addrWord.Bytes())
	input := memory.Get(inOffset.Uint64(), inSize.Uint64())

	ret, gasLeft, err := evm.DelegateCall(contract.CallerAddress, contract.Address, addr, input, evm.callGasTemp, contract.Value)
	contract.RefundGas(gasLeft)

	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(new(big.Int).SetUint64(1))
	}
	writeCallResult(memory, retOffset.Uint64(), retSize.Uint64(), ret)
	if err == nil || isRevert(err) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return nil, nil
}

func opStaticCall(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	stack.Pop()
	addrWord := stack.Pop()
	inOffset, inSize := stack.Pop(), stack.Pop()
	retOffset, retSize := stack.Pop(), stack.Pop()

	addr := types.BytesToAddress(addrWord.Bytes())
	input := memory.Get(inOffset.Uint64(), inSize.Uint64())

	ret, gasLeft, err := evm.StaticCall(contract.Address, addr, input, evm.callGasTemp)
	contract.RefundGas(gasLeft)

	if err != nil {
		stack.Push(new(big.Int))
	} else {
		stack.Push(new(big.Int).SetUint64(1))
	}
	writeCallResult(memory, retOffset.Uint64(), retSize.Uint64(), ret)
	if err == nil || isRevert(err) {
		evm.returnData = ret
	} else {
		evm.returnData = nil
	}
	return nil, nil
}

func writeCallResult(memory *Memory, offset, size uint64, ret []byte) {
	if size == 0 || len(ret) == 0 {
		return
	}
	n := size
	if uint64(len(ret)) < n {
		n = uint64(len(ret))
	}
	memory.Set(offset, n, ret[:n])
}

// Halting.

func opReturn(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, size := stack.Pop(), stack.Pop()
	return memory.Get(offset.Uint64(), size.Uint64()), nil
}

// opRevert halts with ErrExecutionReverted, keeping gas and carrying the
// payload out.
func opRevert(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	offset, size := stack.Pop(), stack.Pop()
	return memory.Get(offset.Uint64(), size.Uint64()), ErrExecutionReverted
}

func opInvalid(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	return nil, ErrInvalidOpCode
}

// opSelfdestruct transfers the balance to the beneficiary and schedules
// deletion. Post-Cancun (EIP-6780) only contracts created in the same
// transaction are deleted; others just move their balance.
func opSelfdestruct(pc *uint64, evm *EVM, contract *Contract, memory *Memory, stack *Stack) ([]byte, error) {
	beneficiary := types.BytesToAddress(stack.Pop().Bytes())
	balance := evm.StateDB.GetBalance(contract.Address)

	if evm.rules.IsCancun {
		// EIP-6780: always move the balance; schedule deletion only for
		// contracts created in this transaction. A surviving contract
		// with itself as beneficiary keeps its balance untouched.
		evm.StateDB.SubBalance(contract.Address, balance)
		evm.StateDB.AddBalance(beneficiary, balance)
		evm.StateDB.SelfDestruct6780(contract.Address)
		return nil, nil
	}

	evm.StateDB.AddBalance(beneficiary, balance)
	evm.StateDB.SelfDestruct(contract.Address)
	return nil, nil
}

func isRevert(err error) bool {
	return err != nil && err == ErrExecutionReverted
}
