package grid

import "time"

// Verifier decides whether a fully specified grid is a valid solution and
// reports how many unit checks it performed along the way.
type Verifier interface {
	Verify(g Grid) (ok bool, verifications int)
}

// VerifierFunc adapts a plain function to Verifier.
type VerifierFunc func(g Grid) (bool, int)

func (f VerifierFunc) Verify(g Grid) (bool, int) { return f(g) }

// Checker validates rows, then columns, then boxes, stopping at the first
// failing unit. Handicap is slept once per unit check to emulate slow workers.
type Checker struct {
	Handicap time.Duration
}

func (c Checker) Verify(g Grid) (bool, int) {
	n := 0
	check := func(cells func(i int) int) bool {
		n++
		if c.Handicap > 0 {
			time.Sleep(c.Handicap)
		}
		var seen uint16
		for i := 0; i < Size; i++ {
			v := cells(i)
			if v < 1 || v > Size || seen&(1<<v) != 0 {
				return false
			}
			seen |= 1 << v
		}
		return true
	}

	for r := 0; r < Size; r++ {
		if !check(func(i int) int { return g[r][i] }) {
			return false, n
		}
	}
	for col := 0; col < Size; col++ {
		if !check(func(i int) int { return g[i][col] }) {
			return false, n
		}
	}
	for b := 0; b < Size; b++ {
		r0, c0 := (b/Box)*Box, (b%Box)*Box
		if !check(func(i int) int { return g[r0+i/Box][c0+i%Box] }) {
			return false, n
		}
	}
	return true, n
}
