package cache

import (
	"testing"
	"time"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

func puzzle(n int) grid.Grid {
	var g grid.Grid
	g[0][0] = n
	return g
}

func TestPutGet(t *testing.T) {
	s := NewStore(8, 0)
	var sol grid.Grid
	sol[8][8] = 9

	s.Put(puzzle(1), sol)
	got, ok := s.Get(puzzle(1))
	if !ok {
		t.Fatalf("Get(puzzle 1) !ok")
	}
	if got != sol {
		t.Fatalf("Get(puzzle 1) = %v, want %v", got, sol)
	}
	if _, ok := s.Get(puzzle(2)); ok {
		t.Fatalf("Get(puzzle 2) ok, want miss")
	}
}

func TestOverwriteKeepsLen(t *testing.T) {
	s := NewStore(8, 0)
	s.Put(puzzle(1), puzzle(5))
	s.Put(puzzle(1), puzzle(6))
	if got := s.Len(); got != 1 {
		t.Fatalf("Len after overwrite = %d, want 1", got)
	}
	if got, _ := s.Get(puzzle(1)); got != puzzle(6) {
		t.Fatalf("Get after overwrite = %v, want puzzle 6", got)
	}
}

func TestTTLExpiry(t *testing.T) {
	s := NewStore(8, time.Minute)
	now := time.Now()
	s.now = func() time.Time { return now }

	s.Put(puzzle(1), puzzle(2))
	now = now.Add(2 * time.Minute)

	if _, ok := s.Get(puzzle(1)); ok {
		t.Fatalf("expected entry to expire")
	}
	if got := s.Len(); got != 0 {
		t.Fatalf("Len after expiry = %d, want 0", got)
	}
}

func TestEvictionLRU(t *testing.T) {
	s := NewStore(2, 0)
	s.Put(puzzle(1), puzzle(1))
	s.Put(puzzle(2), puzzle(2))
	s.Get(puzzle(1)) // touch 1 so 2 is oldest
	s.Put(puzzle(3), puzzle(3))

	if _, ok := s.Get(puzzle(2)); ok {
		t.Fatalf("puzzle 2 should have been evicted")
	}
	for _, n := range []int{1, 3} {
		if _, ok := s.Get(puzzle(n)); !ok {
			t.Fatalf("puzzle %d evicted, want kept", n)
		}
	}
}

func TestDisabledAndNil(t *testing.T) {
	s := NewStore(0, 0)
	s.Put(puzzle(1), puzzle(1))
	if s.Len() != 0 {
		t.Fatalf("zero-capacity store kept an entry")
	}

	var nilStore *Store
	nilStore.Put(puzzle(1), puzzle(1))
	if _, ok := nilStore.Get(puzzle(1)); ok {
		t.Fatalf("nil store returned a hit")
	}
}
