// Package divider turns one puzzle into a stream of candidate grids and
// farms them out to idle workers until one comes back solved or the stream
// runs dry.
//
// Work already handed to a worker is never cancelled. A second valid answer
// that arrives after the first is accounted for and then dropped by the
// Future.
package divider

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

// Worker verifies one candidate at a time. Dispatch hands over a unit and
// returns once it is on its way; the answer comes back through
// Divider.Finished. Implementations must be comparable.
type Worker interface {
	Dispatch(unit grid.Grid) error
}

type step int

const (
	stepWait step = iota
	stepDispatch
	stepStarved
	stepDone
)

type Divider struct {
	mu         sync.Mutex
	puzzle     grid.Grid
	units      *Candidates
	requeued   []grid.Grid
	idle       []Worker
	busy       map[Worker]grid.Grid
	attached   map[Worker]struct{}
	dispatched int
	starved    bool
	onStarved  func()

	wake   chan struct{}
	result *Future
	log    *zap.Logger
}

// New seeds the idle set with workers. Run must be called to start
// dispatching.
func New(puzzle grid.Grid, workers []Worker, log *zap.Logger) *Divider {
	if log == nil {
		log = zap.NewNop()
	}
	d := &Divider{
		puzzle:   puzzle,
		units:    NewCandidates(puzzle),
		busy:     make(map[Worker]grid.Grid),
		attached: make(map[Worker]struct{}),
		wake:     make(chan struct{}, 1),
		result:   NewFuture(),
		log:      log,
	}
	for _, w := range workers {
		d.attachLocked(w)
	}
	size, _ := d.units.Size()
	d.log.Info("divider created",
		zap.Int("blanks", d.units.Blanks()),
		zap.Uint64("candidates", size),
		zap.Int("workers", len(workers)))
	return d
}

func (d *Divider) Future() *Future { return d.result }

func (d *Divider) Puzzle() grid.Grid { return d.puzzle }

// OnStarved registers fn to be called from Run whenever the last attached
// worker goes away while the puzzle is still open. It fires once per
// starvation and is re-armed by AddWorker. Set it before calling Run.
func (d *Divider) OnStarved(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onStarved = fn
}

// Attached is the number of workers currently attached, busy or idle.
func (d *Divider) Attached() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attached)
}

// Dispatched is the number of units handed to workers so far, including
// units handed out again after a worker was lost.
func (d *Divider) Dispatched() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dispatched
}

// Run dispatches until the future resolves or ctx ends.
func (d *Divider) Run(ctx context.Context) {
	for {
		w, unit, s := d.next()
		switch s {
		case stepDone:
			return
		case stepDispatch:
			if err := w.Dispatch(unit); err != nil {
				d.dispatchFailed(w, unit, err)
			}
		case stepStarved:
			if fn := d.starvedHook(); fn != nil {
				fn()
			}
		case stepWait:
			select {
			case <-d.wake:
			case <-d.result.Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// AddWorker makes w available. Adding a worker twice is a no-op.
func (d *Divider) AddWorker(w Worker) {
	d.mu.Lock()
	added := d.attachLocked(w)
	d.mu.Unlock()
	if added {
		d.signal()
	}
}

// RemoveWorker detaches w. A unit it was holding goes back on the queue.
func (d *Divider) RemoveWorker(w Worker) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.attached[w]; !ok {
		return
	}
	delete(d.attached, w)
	d.idle = removeWorker(d.idle, w)
	if unit, ok := d.busy[w]; ok {
		delete(d.busy, w)
		d.requeued = append(d.requeued, unit)
		d.log.Info("worker lost with unit outstanding, requeued")
	}
	d.signal()
}

// Finished records w's answer. result is the solved grid or nil. It returns
// false when w had no unit outstanding, e.g. a stale answer from an earlier
// solve. A grid that overwrites one of the puzzle's givens counts as nil.
func (d *Divider) Finished(w Worker, result *grid.Grid) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.busy[w]; !ok {
		return false
	}
	delete(d.busy, w)
	if _, ok := d.attached[w]; ok {
		d.idle = append(d.idle, w)
	}
	if result != nil && !result.Fills(d.puzzle) {
		d.log.Warn("answer does not match the puzzle, treating as unsolved")
		result = nil
	}
	if result != nil {
		if d.result.Resolve(result) {
			d.log.Info("solution found", zap.Int("dispatched", d.dispatched))
		} else {
			d.log.Debug("late solution discarded")
		}
	}
	d.checkExhaustedLocked()
	d.signal()
	return true
}

func (d *Divider) next() (Worker, grid.Grid, step) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checkExhaustedLocked()
	if d.result.IsDone() {
		return nil, grid.Grid{}, stepDone
	}
	if len(d.attached) == 0 && !d.starved {
		d.starved = true
		d.log.Warn("no workers attached")
		return nil, grid.Grid{}, stepStarved
	}
	if len(d.idle) == 0 || !d.hasUnitLocked() {
		return nil, grid.Grid{}, stepWait
	}

	w := d.idle[len(d.idle)-1]
	d.idle = d.idle[:len(d.idle)-1]
	unit := d.popUnitLocked()
	d.busy[w] = unit
	d.dispatched++
	return w, unit, stepDispatch
}

func (d *Divider) starvedHook() func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.onStarved
}

func (d *Divider) dispatchFailed(w Worker, unit grid.Grid, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log.Warn("dispatch failed, dropping worker", zap.Error(err))
	delete(d.attached, w)
	d.idle = removeWorker(d.idle, w)
	if _, ok := d.busy[w]; ok {
		delete(d.busy, w)
		d.requeued = append(d.requeued, unit)
	}
}

func (d *Divider) attachLocked(w Worker) bool {
	if _, ok := d.attached[w]; ok {
		return false
	}
	d.attached[w] = struct{}{}
	d.idle = append(d.idle, w)
	d.starved = false
	return true
}

func (d *Divider) hasUnitLocked() bool {
	return len(d.requeued) > 0 || !d.units.Exhausted()
}

func (d *Divider) popUnitLocked() grid.Grid {
	if n := len(d.requeued); n > 0 {
		unit := d.requeued[n-1]
		d.requeued = d.requeued[:n-1]
		return unit
	}
	unit, _ := d.units.Next()
	return unit
}

func (d *Divider) checkExhaustedLocked() {
	if d.hasUnitLocked() || len(d.busy) > 0 {
		return
	}
	if d.result.Resolve(nil) {
		d.log.Info("candidates exhausted without a solution", zap.Int("dispatched", d.dispatched))
	}
}

func (d *Divider) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func removeWorker(ws []Worker, w Worker) []Worker {
	for i, x := range ws {
		if x == w {
			return append(ws[:i], ws[i+1:]...)
		}
	}
	return ws
}
