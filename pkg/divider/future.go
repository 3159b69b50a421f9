package divider

import (
	"context"
	"errors"
	"sync"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

var ErrNoSolution = errors.New("divider: candidates exhausted without a solution")

// Future is the single-slot rendezvous a solve caller waits on. Only the
// first Resolve counts; later ones are dropped.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result *grid.Grid
}

func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a Future already holding g.
func Resolved(g grid.Grid) *Future {
	f := NewFuture()
	f.Resolve(&g)
	return f
}

// Resolve delivers g, or "no solution" when g is nil. It reports whether
// this call was the one that resolved the future.
func (f *Future) Resolve(g *grid.Grid) bool {
	won := false
	f.once.Do(func() {
		if g != nil {
			c := *g
			f.result = &c
		}
		close(f.done)
		won = true
	})
	return won
}

func (f *Future) Done() <-chan struct{} { return f.done }

func (f *Future) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until the future resolves or ctx ends. Exhaustion surfaces
// as ErrNoSolution.
func (f *Future) Wait(ctx context.Context) (grid.Grid, error) {
	select {
	case <-f.done:
		if f.result == nil {
			return grid.Grid{}, ErrNoSolution
		}
		return *f.result, nil
	case <-ctx.Done():
		return grid.Grid{}, ctx.Err()
	}
}
