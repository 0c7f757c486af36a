// Package core implements the state-transition machinery: chain
// configuration and fork dispatch, transaction execution, block
// processing and validation, fee and difficulty evolution, the header
// chain, and the chain facade tying everything to persistence.
package core

import (
	"math/big"

	"github.com/evmcore/evmcore/core/types"
	"github.com/evmcore/evmcore/core/vm"
)

// ChainConfig is the fork schedule of a chain. Pre-merge forks activate
// by block number; post-merge forks activate by timestamp. A nil
// activation means the fork is not scheduled.
type ChainConfig struct {
	ChainID *big.Int

	HomesteadBlock      *big.Int
	DAOForkBlock        *big.Int // consensus-irrelevant here, kept for schedule completeness
	EIP150Block         *big.Int // Tangerine Whistle
	EIP155Block         *big.Int // Spurious Dragon (with EIP-158/160/161/170)
	ByzantiumBlock      *big.Int
	ConstantinopleBlock *big.Int
	PetersburgBlock     *big.Int
	IstanbulBlock       *big.Int
	MuirGlacierBlock    *big.Int
	BerlinBlock         *big.Int
	LondonBlock         *big.Int
	ArrowGlacierBlock   *big.Int
	GrayGlacierBlock    *big.Int
	ParisBlock          *big.Int // the Merge

	ShanghaiTime *uint64
	CancunTime   *uint64
	PragueTime   *uint64
}

func isBlockForked(fork, num *big.Int) bool {
	if fork == nil || num == nil {
		return false
	}
	return fork.Cmp(num) <= 0
}

func isTimestampForked(fork *uint64, time uint64) bool {
	if fork == nil {
		return false
	}
	return *fork <= time
}

// IsHomestead reports whether num is at or past the Homestead fork.
func (c *ChainConfig) IsHomestead(num *big.Int) bool { return isBlockForked(c.HomesteadBlock, num) }

// IsEIP150 reports whether num is at or past Tangerine Whistle.
func (c *ChainConfig) IsEIP150(num *big.Int) bool { return isBlockForked(c.EIP150Block, num) }

// IsEIP155 reports whether num is at or past Spurious Dragon.
func (c *ChainConfig) IsEIP155(num *big.Int) bool { return isBlockForked(c.EIP155Block, num) }

// IsByzantium reports whether num is at or past Byzantium.
func (c *ChainConfig) IsByzantium(num *big.Int) bool { return isBlockForked(c.ByzantiumBlock, num) }

// IsConstantinople reports whether num is at or past Constantinople.
func (c *ChainConfig) IsConstantinople(num *big.Int) bool {
	return isBlockForked(c.ConstantinopleBlock, num)
}

// IsPetersburg reports whether num is at or past Petersburg (which
// removed EIP-1283 again).
func (c *ChainConfig) IsPetersburg(num *big.Int) bool { return isBlockForked(c.PetersburgBlock, num) }

// IsIstanbul reports whether num is at or past Istanbul.
func (c *ChainConfig) IsIstanbul(num *big.Int) bool { return isBlockForked(c.IstanbulBlock, num) }

// IsMuirGlacier reports whether num is at or past Muir Glacier.
func (c *ChainConfig) IsMuirGlacier(num *big.Int) bool { return isBlockForked(c.MuirGlacierBlock, num) }

// IsBerlin reports whether num is at or past Berlin.
func (c *ChainConfig) IsBerlin(num *big.Int) bool { return isBlockForked(c.BerlinBlock, num) }

// IsLondon reports whether num is at or past London.
func (c *ChainConfig) IsLondon(num *big.Int) bool { return isBlockForked(c.LondonBlock, num) }

// IsArrowGlacier reports whether num is at or past Arrow Glacier.
func (c *ChainConfig) IsArrowGlacier(num *big.Int) bool {
	return isBlockForked(c.ArrowGlacierBlock, num)
}

// IsGrayGlacier reports whether num is at or past Gray Glacier.
func (c *ChainConfig) IsGrayGlacier(num *big.Int) bool { return isBlockForked(c.GrayGlacierBlock, num) }

// IsParis reports whether num is at or past the Merge.
func (c *ChainConfig) IsParis(num *big.Int) bool { return isBlockForked(c.ParisBlock, num) }

// IsShanghai reports whether a block at the given time is post-Shanghai.
func (c *ChainConfig) IsShanghai(time uint64) bool { return isTimestampForked(c.ShanghaiTime, time) }

// IsCancun reports whether a block at the given time is post-Cancun.
func (c *ChainConfig) IsCancun(time uint64) bool { return isTimestampForked(c.CancunTime, time) }

// IsPrague reports whether a block at the given time is post-Prague.
func (c *ChainConfig) IsPrague(time uint64) bool { return isTimestampForked(c.PragueTime, time) }

// IsLondonTransition reports whether num is the first London block, where
// the gas-limit validation target doubles (EIP-1559 elasticity).
func (c *ChainConfig) IsLondonTransition(num *big.Int) bool {
	if c.LondonBlock == nil || num == nil {
		return false
	}
	return c.LondonBlock.Cmp(num) == 0
}

// Rules derives the interpreter fork switches for a block.
func (c *ChainConfig) Rules(num *big.Int, time uint64) vm.ForkRules {
	return vm.ForkRules{
		IsHomestead:      c.IsHomestead(num),
		IsTangerine:      c.IsEIP150(num),
		IsSpurious:       c.IsEIP155(num),
		IsByzantium:      c.IsByzantium(num),
		IsConstantinople: c.IsConstantinople(num),
		IsPetersburg:     c.IsPetersburg(num),
		IsIstanbul:       c.IsIstanbul(num),
		IsBerlin:         c.IsBerlin(num),
		IsLondon:         c.IsLondon(num),
		IsMerge:          c.IsParis(num),
		IsShanghai:       c.IsShanghai(time),
		IsCancun:         c.IsCancun(time),
		IsPrague:         c.IsPrague(time),
	}
}

// MakeSigner returns the richest signer valid at the given block.
func (c *ChainConfig) MakeSigner(num *big.Int, time uint64) types.Signer {
	switch {
	case c.IsBerlin(num):
		// The London signer handles every typed envelope including the
		// Berlin access-list type.
		return types.NewLondonSigner(c.ChainID)
	case c.IsEIP155(num):
		return types.NewEIP155Signer(c.ChainID)
	case c.IsHomestead(num):
		return types.HomesteadSigner{}
	default:
		return types.FrontierSigner{}
	}
}

func newUint64(v uint64) *uint64 { return &v }

// MainnetConfig is the Ethereum mainnet fork schedule.
var MainnetConfig = &ChainConfig{
	ChainID:             big.NewInt(1),
	HomesteadBlock:      big.NewInt(1_150_000),
	DAOForkBlock:        big.NewInt(1_920_000),
	EIP150Block:         big.NewInt(2_463_000),
	EIP155Block:         big.NewInt(2_675_000),
	ByzantiumBlock:      big.NewInt(4_370_000),
	ConstantinopleBlock: big.NewInt(7_280_000),
	PetersburgBlock:     big.NewInt(7_280_000),
	IstanbulBlock:       big.NewInt(9_069_000),
	MuirGlacierBlock:    big.NewInt(9_200_000),
	BerlinBlock:         big.NewInt(12_244_000),
	LondonBlock:         big.NewInt(12_965_000),
	ArrowGlacierBlock:   big.NewInt(13_773_000),
	GrayGlacierBlock:    big.NewInt(15_050_000),
	ParisBlock:          big.NewInt(15_537_394),
	ShanghaiTime:        newUint64(1_681_338_455),
	CancunTime:          newUint64(1_710_338_135),
	PragueTime:          newUint64(1_746_612_311),
}

// AllForksConfig activates every fork at genesis; it backs most tests.
var AllForksConfig = &ChainConfig{
	ChainID:             big.NewInt(1337),
	HomesteadBlock:      big.NewInt(0),
	EIP150Block:         big.NewInt(0),
	EIP155Block:         big.NewInt(0),
	ByzantiumBlock:      big.NewInt(0),
	ConstantinopleBlock: big.NewInt(0),
	PetersburgBlock:     big.NewInt(0),
	IstanbulBlock:       big.NewInt(0),
	MuirGlacierBlock:    big.NewInt(0),
	BerlinBlock:         big.NewInt(0),
	LondonBlock:         big.NewInt(0),
	ArrowGlacierBlock:   big.NewInt(0),
	GrayGlacierBlock:    big.NewInt(0),
	ParisBlock:          big.NewInt(0),
	ShanghaiTime:        newUint64(0),
	CancunTime:          newUint64(0),
	PragueTime:          newUint64(0),
}

// FrontierConfig schedules no forks at all.
var FrontierConfig = &ChainConfig{ChainID: big.NewInt(1337)}
