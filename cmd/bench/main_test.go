package main

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckFlags(t *testing.T) {
	cases := []struct {
		name            string
		n, conc, blanks int
		wantErr         bool
	}{
		{"defaults", 50, 1, 2, false},
		{"zero concurrency", 50, 0, 2, true},
		{"negative concurrency", 50, -3, 2, true},
		{"negative requests", -1, 1, 2, true},
		{"too many blanks", 50, 1, 82, true},
		{"negative blanks", 50, 1, -1, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := checkFlags(tc.n, tc.conc, tc.blanks)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPuzzleBlanksCells(t *testing.T) {
	rows := puzzle(rand.New(rand.NewSource(1)), 5)
	require.Len(t, rows, 9)
	zeros := 0
	for r := range rows {
		for c := range rows[r] {
			if rows[r][c] == 0 {
				zeros++
			} else {
				assert.Equal(t, solution[r][c], rows[r][c])
			}
		}
	}
	assert.Equal(t, 5, zeros)
}
