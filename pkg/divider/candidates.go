package divider

import (
	"math"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

// Candidates enumerates every assignment of the digits 1-9 to the blank
// cells of a puzzle, one full grid at a time. It is single use: once Next
// reports false it never yields again.
type Candidates struct {
	base   grid.Grid
	blanks []grid.Pos
	digits []int
	done   bool
}

func NewCandidates(puzzle grid.Grid) *Candidates {
	blanks := puzzle.Blanks()
	digits := make([]int, len(blanks))
	for i := range digits {
		digits[i] = 1
	}
	return &Candidates{base: puzzle, blanks: blanks, digits: digits}
}

// Next returns the next candidate. The last blank cell varies fastest.
func (c *Candidates) Next() (grid.Grid, bool) {
	if c.done {
		return grid.Grid{}, false
	}
	g := c.base
	for i, p := range c.blanks {
		g[p.Row][p.Col] = c.digits[i]
	}

	i := len(c.digits) - 1
	for ; i >= 0; i-- {
		if c.digits[i] < grid.Size {
			c.digits[i]++
			break
		}
		c.digits[i] = 1
	}
	if i < 0 {
		c.done = true
	}
	return g, true
}

func (c *Candidates) Exhausted() bool { return c.done }

func (c *Candidates) Blanks() int { return len(c.blanks) }

// Size is 9^blanks. ok is false when that overflows uint64.
func (c *Candidates) Size() (n uint64, ok bool) {
	n = 1
	for range c.blanks {
		if n > math.MaxUint64/grid.Size {
			return math.MaxUint64, false
		}
		n *= grid.Size
	}
	return n, true
}
