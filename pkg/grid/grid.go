// Package grid holds the 9x9 puzzle type shared by every mesh component and
// the verification routine workers run against candidate grids.
package grid

import (
	"errors"
	"fmt"
	"strings"
)

const (
	Size  = 9
	Box   = 3
	Blank = 0
)

var ErrInvalidGrid = errors.New("grid: invalid grid")

// Grid is a 9x9 puzzle, row major. Blank cells hold 0.
type Grid [Size][Size]int

// Pos addresses one cell.
type Pos struct {
	Row, Col int
}

// Blanks returns the positions of every blank cell in row-major order.
func (g Grid) Blanks() []Pos {
	var out []Pos
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if g[r][c] == Blank {
				out = append(out, Pos{r, c})
			}
		}
	}
	return out
}

// Validate checks that every cell is blank or a digit 1-9.
func (g Grid) Validate() error {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if v := g[r][c]; v < 0 || v > Size {
				return fmt.Errorf("%w: cell (%d,%d) = %d", ErrInvalidGrid, r, c, v)
			}
		}
	}
	return nil
}

// FromRows converts a decoded JSON matrix into a Grid.
func FromRows(rows [][]int) (Grid, error) {
	var g Grid
	if len(rows) != Size {
		return g, fmt.Errorf("%w: %d rows", ErrInvalidGrid, len(rows))
	}
	for r, row := range rows {
		if len(row) != Size {
			return g, fmt.Errorf("%w: row %d has %d cells", ErrInvalidGrid, r, len(row))
		}
		copy(g[r][:], row)
	}
	return g, g.Validate()
}

// Fills reports whether g keeps every given of puzzle.
func (g Grid) Fills(puzzle Grid) bool {
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if puzzle[r][c] != Blank && puzzle[r][c] != g[r][c] {
				return false
			}
		}
	}
	return true
}

// Key is a compact string form, handy as a map or cache key.
func (g Grid) Key() string {
	var b strings.Builder
	b.Grow(Size * Size)
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			b.WriteByte(byte('0' + g[r][c]))
		}
	}
	return b.String()
}

func (g Grid) String() string {
	var b strings.Builder
	for r := 0; r < Size; r++ {
		if r > 0 && r%Box == 0 {
			b.WriteString("------+-------+------\n")
		}
		for c := 0; c < Size; c++ {
			if c > 0 && c%Box == 0 {
				b.WriteString("| ")
			}
			if g[r][c] == Blank {
				b.WriteString(". ")
			} else {
				fmt.Fprintf(&b, "%d ", g[r][c])
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}
