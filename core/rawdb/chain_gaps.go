package rawdb

import (
	"errors"
	"fmt"
)

// Header persistence tracks which block numbers are missing from an
// otherwise contiguous chain. Gaps are closed inclusive ranges of missing
// numbers, ordered and non-overlapping; TipChild is the first number past
// the persisted tail.

// GapChange classifies the effect of persisting one header number.
type GapChange int

const (
	GapNoChange GapChange = iota // duplicate write of a known number
	GapTailWrite                 // consecutive write at the tail
	GapNew                       // write past the tail, opening a gap
	GapFill                      // write closing a single-number gap
	GapShrink                    // write trimming a gap at either edge
	GapSplit                     // write dividing a gap in two
)

// ErrGapTrackingCorrupted indicates a number that matches more than one
// gap, which can only happen through database corruption.
var ErrGapTrackingCorrupted = errors.New("rawdb: corrupted chain gap tracking")

// BlockRange is a closed range [First, Last] of block numbers.
type BlockRange struct {
	First uint64
	Last  uint64
}

// ChainGaps is the persisted gap state: open ranges of missing numbers
// plus the first unwritten number after the chain tail.
type ChainGaps struct {
	Gaps     []BlockRange
	TipChild uint64
}

// GenesisChainGaps is the gap state after writing only the genesis header.
func GenesisChainGaps() ChainGaps {
	return ChainGaps{TipChild: 1}
}

// CalculateGaps classifies persisting header number n against the current
// gap state and returns the change kind plus the updated state. The input
// is not mutated.
func CalculateGaps(n uint64, base ChainGaps) (GapChange, ChainGaps, error) {
	switch {
	case n == base.TipChild:
		// Consecutive header at the very tail.
		return GapTailWrite, ChainGaps{Gaps: base.Gaps, TipChild: n + 1}, nil

	case n > base.TipChild:
		// Writing past the tail opens a new gap.
		gaps := append(append([]BlockRange{}, base.Gaps...), BlockRange{First: base.TipChild, Last: n - 1})
		return GapNew, ChainGaps{Gaps: gaps, TipChild: n + 1}, nil

	default:
		// Patching below the tail: n either falls inside exactly one gap
		// or is a duplicate of an already-persisted number.
		var matches []int
		for i, gap := range base.Gaps {
			if n >= gap.First && n <= gap.Last {
				matches = append(matches, i)
			}
		}
		switch len(matches) {
		case 0:
			return GapNoChange, base, nil
		case 1:
			// handled below
		default:
			return 0, base, fmt.Errorf("%w: number %d appears in %d gaps",
				ErrGapTrackingCorrupted, n, len(matches))
		}

		idx := matches[0]
		gap := base.Gaps[idx]

		var center []BlockRange
		var change GapChange
		switch {
		case n == gap.First && n == gap.Last:
			center = nil
			change = GapFill
		case n == gap.First:
			center = []BlockRange{{First: gap.First + 1, Last: gap.Last}}
			change = GapShrink
		case n == gap.Last:
			center = []BlockRange{{First: gap.First, Last: gap.Last - 1}}
			change = GapShrink
		default:
			center = []BlockRange{
				{First: gap.First, Last: n - 1},
				{First: n + 1, Last: gap.Last},
			}
			change = GapSplit
		}

		gaps := make([]BlockRange, 0, len(base.Gaps)+1)
		gaps = append(gaps, base.Gaps[:idx]...)
		gaps = append(gaps, center...)
		gaps = append(gaps, base.Gaps[idx+1:]...)
		if len(gaps) == 0 {
			gaps = nil
		}
		return change, ChainGaps{Gaps: gaps, TipChild: base.TipChild}, nil
	}
}
