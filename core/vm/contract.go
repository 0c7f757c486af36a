package vm

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
)

// Contract binds a code stream, gas meter, and call context for one
// frame of execution.
type Contract struct {
	CallerAddress types.Address
	Address       types.Address
	Code          []byte
	CodeHash      types.Hash
	Input         []byte
	Gas           uint64
	Value         *big.Int

	// jumpdests holds every valid JUMPDEST position, computed once by
	// analyzeJumpdests; a position absent from the map is not valid.
	jumpdests map[uint64]bool
	analyzed  bool
}

// NewContract creates a new contract frame.
func NewContract(caller, addr types.Address, value *big.Int, gas uint64) *Contract {
	return &Contract{
		CallerAddress: caller,
		Address:       addr,
		Value:         value,
		Gas:           gas,
	}
}

// GetOp returns the opcode at position n; positions past the end of code
// read as STOP.
func (c *Contract) GetOp(n uint64) OpCode {
	if n < uint64(len(c.Code)) {
		return OpCode(c.Code[n])
	}
	return STOP
}

// UseGas consumes gas; returns false if the meter is short.
func (c *Contract) UseGas(gas uint64) bool {
	if c.Gas < gas {
		return false
	}
	c.Gas -= gas
	return true
}

// RefundGas returns gas to the meter (child frame leftovers).
func (c *Contract) RefundGas(gas uint64) {
	c.Gas += gas
}

// ValidJumpdest reports whether dest is a valid JUMPDEST: in bounds, a
// 0x5b byte, and not inside any PUSH immediate-data window.
func (c *Contract) ValidJumpdest(dest *big.Int) bool {
	if dest.BitLen() > 63 {
		return false
	}
	udest := dest.Uint64()
	if udest >= uint64(len(c.Code)) {
		return false
	}
	if OpCode(c.Code[udest]) != JUMPDEST {
		return false
	}
	return c.isCode(udest)
}

// isCode reports whether pos holds a JUMPDEST on an instruction boundary
// rather than inside PUSH data.
func (c *Contract) isCode(pos uint64) bool {
	if !c.analyzed {
		c.analyzeJumpdests()
	}
	return c.jumpdests[pos]
}

// analyzeJumpdests scans the code once, skipping PUSH immediates, and
// records every valid JUMPDEST position.
func (c *Contract) analyzeJumpdests() {
	c.jumpdests = make(map[uint64]bool)
	for i := uint64(0); i < uint64(len(c.Code)); i++ {
		op := OpCode(c.Code[i])
		if op == JUMPDEST {
			c.jumpdests[i] = true
		}
		if op.IsPush() {
			i += uint64(op.PushSize())
		}
	}
	c.analyzed = true
}
