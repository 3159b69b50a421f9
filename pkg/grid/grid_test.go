package grid

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var solved = Grid{
	{5, 3, 4, 6, 7, 8, 9, 1, 2},
	{6, 7, 2, 1, 9, 5, 3, 4, 8},
	{1, 9, 8, 3, 4, 2, 5, 6, 7},
	{8, 5, 9, 7, 6, 1, 4, 2, 3},
	{4, 2, 6, 8, 5, 3, 7, 9, 1},
	{7, 1, 3, 9, 2, 4, 8, 5, 6},
	{9, 6, 1, 5, 3, 7, 2, 8, 4},
	{2, 8, 7, 4, 1, 9, 6, 3, 5},
	{3, 4, 5, 2, 8, 6, 1, 7, 9},
}

func TestCheckerAcceptsSolvedGrid(t *testing.T) {
	ok, n := Checker{}.Verify(solved)
	if !ok {
		t.Fatalf("Verify(solved) = false, want true")
	}
	if n != 27 {
		t.Fatalf("verifications = %d, want 27", n)
	}
}

func TestCheckerStopsAtFirstBadUnit(t *testing.T) {
	g := solved
	g[0][0], g[0][1] = g[0][1], g[0][0] // row 0 still fine, column 0 breaks

	ok, n := Checker{}.Verify(g)
	assert.False(t, ok)
	assert.Equal(t, 10, n, "9 rows pass then column 0 fails")
}

func TestCheckerRejectsBlanks(t *testing.T) {
	g := solved
	g[4][4] = Blank
	ok, n := Checker{}.Verify(g)
	assert.False(t, ok)
	assert.Equal(t, 5, n)
}

func TestCheckerHandicap(t *testing.T) {
	start := time.Now()
	Checker{Handicap: 2 * time.Millisecond}.Verify(solved)
	assert.GreaterOrEqual(t, time.Since(start), 27*2*time.Millisecond)
}

func TestBlanks(t *testing.T) {
	g := solved
	g[0][2] = Blank
	g[8][8] = Blank
	assert.Equal(t, []Pos{{0, 2}, {8, 8}}, g.Blanks())
	assert.Empty(t, solved.Blanks())
}

func TestFromRows(t *testing.T) {
	rows := make([][]int, Size)
	for r := range rows {
		rows[r] = append([]int(nil), solved[r][:]...)
	}
	g, err := FromRows(rows)
	require.NoError(t, err)
	assert.Equal(t, solved, g)

	_, err = FromRows(rows[:8])
	assert.True(t, errors.Is(err, ErrInvalidGrid))

	rows[3][3] = 11
	_, err = FromRows(rows)
	assert.True(t, errors.Is(err, ErrInvalidGrid))
}

func TestKeyAndString(t *testing.T) {
	assert.Equal(t, "534678912", solved.Key()[:9])
	assert.Len(t, solved.Key(), 81)

	g := solved
	g[0][0] = Blank
	assert.Contains(t, g.String(), ". 3 4 | 6 7 8 | 9 1 2")
}

func TestFills(t *testing.T) {
	puzzle := solved
	puzzle[0][0] = Blank
	assert.True(t, solved.Fills(puzzle))

	other := solved
	other[0][1] = 9
	assert.False(t, other.Fills(puzzle))
}
