package node

import (
	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

// dispatch applies one decoded message. Runs on the dispatch goroutine.
func (n *Node) dispatch(pc *peerConn, msg protocol.Message) {
	switch m := msg.(type) {
	case protocol.JoinRequest:
		if m.Address.IsZero() || m.Address == n.self {
			n.log.Warn("join request with unusable address", zap.Stringer("addr", m.Address), zap.String("remote", pc.remote))
			return
		}
		n.register(m.Address, pc)
		n.reply(pc, n.networkInfo())

	case protocol.NetworkInfoRequest:
		n.reply(pc, n.networkInfo())

	case protocol.NetworkInfoResponse:
		for _, addr := range n.registry.RecordTopology(m.Address, m.Neighbors) {
			n.discover(addr)
		}

	case protocol.StatsRequest:
		local := n.registry.Local()
		n.reply(pc, protocol.StatsResponse{
			Address:       n.self,
			Solves:        local.Solves,
			Verifications: local.Verifications,
		})

	case protocol.StatsResponse:
		n.registry.RecordStats(m.Address, m.Solves, m.Verifications)

	case protocol.SolveRequest:
		n.verifyFor(pc, m.Grid)

	case protocol.SolveResponse:
		n.handleSolveResponse(pc, m.Grid)

	default:
		n.log.Warn("unhandled message", zap.Stringer("kind", msg.Kind()), zap.String("remote", pc.remote))
	}
}

func (n *Node) networkInfo() protocol.NetworkInfoResponse {
	return protocol.NetworkInfoResponse{Address: n.self, Neighbors: n.registry.Addresses()}
}

func (n *Node) reply(pc *peerConn, m protocol.Message) {
	if err := pc.send(m); err != nil {
		n.log.Warn("reply failed", zap.Stringer("kind", m.Kind()), zap.Error(err))
	}
}

// verifyFor checks unit off the dispatch goroutine. Answers are queued in
// the order the requests arrived on pc.
func (n *Node) verifyFor(pc *peerConn, unit grid.Grid) {
	prev := pc.lastVerify
	done := make(chan struct{})
	pc.lastVerify = done
	go func() {
		defer close(done)
		ok, checks := n.verify(unit)
		if prev != nil {
			select {
			case <-prev:
			case <-n.ctx.Done():
				return
			}
		}
		n.post(verifiedEvent{pc: pc, unit: unit, ok: ok, checks: checks})
	}()
}

func (n *Node) handleVerified(ev verifiedEvent) {
	n.registry.AddVerifications(ev.checks)
	resp := protocol.SolveResponse{}
	if ev.ok {
		n.registry.AddSolve()
		unit := ev.unit
		resp.Grid = &unit
	}
	if _, ok := n.conns[ev.pc]; !ok {
		n.log.Debug("requester gone, answer dropped", zap.String("remote", ev.pc.remote))
		return
	}
	n.reply(ev.pc, resp)
}

func (n *Node) handleSolveResponse(pc *peerConn, result *grid.Grid) {
	d, ok := pc.answered()
	if !ok || !d.Finished(remoteWorker{pc: pc, d: d}, result) {
		n.log.Debug("stale solve response", zap.String("remote", pc.remote), zap.Bool("solved", result != nil))
	}
}

func (n *Node) handleLocalResult(ev localResultEvent) {
	n.registry.AddVerifications(ev.checks)
	var result *grid.Grid
	if ev.ok {
		n.registry.AddSolve()
		unit := ev.unit
		result = &unit
	}
	ev.worker.d.Finished(ev.worker, result)
}
