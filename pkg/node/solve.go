package node

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/divider"
	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

// ReceiveSudoku starts a distributed solve of puzzle and returns the future
// its answer will be delivered to. Only one solve runs at a time; a second
// one while the first is pending fails with ErrSolveInProgress. Puzzles
// solved before are answered from the cache.
func (n *Node) ReceiveSudoku(puzzle grid.Grid) (*divider.Future, error) {
	if err := puzzle.Validate(); err != nil {
		return nil, err
	}
	if sol, ok := n.solved.Get(puzzle); ok {
		telemetry.SolvesTotal.WithLabelValues("cached").Inc()
		n.log.Debug("solve answered from cache")
		return divider.Resolved(sol), nil
	}

	reply := make(chan solveReply, 1)
	if !n.post(solveEvent{puzzle: puzzle, reply: reply}) {
		return nil, ErrNodeClosed
	}
	select {
	case r := <-reply:
		return r.future, r.err
	case <-n.ctx.Done():
		return nil, ErrNodeClosed
	}
}

// Solve is ReceiveSudoku followed by a wait bounded by ctx. A solve whose
// caller gave up keeps running until it succeeds or runs out of candidates.
func (n *Node) Solve(ctx context.Context, puzzle grid.Grid) (grid.Grid, error) {
	f, err := n.ReceiveSudoku(puzzle)
	if err != nil {
		return grid.Grid{}, err
	}
	return f.Wait(ctx)
}

func (n *Node) startSolve(ev solveEvent) {
	if n.solve != nil {
		if !n.solve.Future().IsDone() {
			telemetry.SolvesTotal.WithLabelValues("rejected").Inc()
			ev.reply <- solveReply{err: ErrSolveInProgress}
			return
		}
		n.finishSolve(n.solve)
	}

	d := divider.New(ev.puzzle, nil, n.log.Named("divider"))
	for _, pc := range n.registry.Peers() {
		d.AddWorker(remoteWorker{pc: pc, d: d})
	}
	if n.registry.Len() == 0 || n.cfg.AlwaysWorkLocally {
		d.AddWorker(&localWorker{n: n, d: d})
	}
	d.OnStarved(func() { n.post(starvedEvent{d: d}) })
	n.solve = d
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		d.Run(n.ctx)
	}()
	go n.awaitSolve(d)
	ev.reply <- solveReply{future: d.Future()}
}

// handleStarved falls back to verifying locally once the last peer working
// on d is gone, so the solve still completes.
func (n *Node) handleStarved(d *divider.Divider) {
	if n.solve != d || d.Future().IsDone() || d.Attached() > 0 {
		return
	}
	n.log.Warn("no workers left, verifying locally")
	d.AddWorker(&localWorker{n: n, d: d})
}

func (n *Node) awaitSolve(d *divider.Divider) {
	select {
	case <-d.Future().Done():
		n.post(solveDoneEvent{d: d})
	case <-n.ctx.Done():
	}
}

func (n *Node) finishSolve(d *divider.Divider) {
	if n.solve != d {
		return
	}
	n.solve = nil
	sol, err := d.Future().Wait(context.Background())
	switch {
	case errors.Is(err, divider.ErrNoSolution):
		telemetry.SolvesTotal.WithLabelValues("no_solution").Inc()
		n.log.Info("solve finished without a solution", zap.Int("dispatched", d.Dispatched()))
	case err != nil:
		n.log.Error("solve finished", zap.Error(err))
	default:
		telemetry.SolvesTotal.WithLabelValues("solved").Inc()
		n.solved.Put(d.Puzzle(), sol)
		n.log.Info("solve finished", zap.Int("dispatched", d.Dispatched()))
	}
}
