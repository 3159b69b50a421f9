package node

import (
	"errors"
	"fmt"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/divider"
	"github.com/ryandielhenn/sudokumesh/pkg/grid"
	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

const acceptBackoff = 50 * time.Millisecond

type event interface{}

type acceptedEvent struct {
	conn net.Conn
}

type frameEvent struct {
	pc  *peerConn
	msg protocol.Message
	err error
}

type joinEvent struct {
	addr  protocol.Address
	force bool
	done  chan error
}

type dialedEvent struct {
	addr protocol.Address
	conn net.Conn
	err  error
}

// verifiedEvent carries the answer to a peer's SolveRequest.
type verifiedEvent struct {
	pc     *peerConn
	unit   grid.Grid
	ok     bool
	checks int
}

type localResultEvent struct {
	worker *localWorker
	unit   grid.Grid
	ok     bool
	checks int
}

type solveReply struct {
	future *divider.Future
	err    error
}

type solveEvent struct {
	puzzle grid.Grid
	reply  chan solveReply
}

type solveDoneEvent struct {
	d *divider.Divider
}

// starvedEvent reports that every worker of d has gone away.
type starvedEvent struct {
	d *divider.Divider
}

func (n *Node) acceptLoop() {
	defer n.wg.Done()
	for {
		conn, err := n.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || n.ctx.Err() != nil {
				return
			}
			n.log.Warn("accept failed", zap.Error(err))
			select {
			case <-time.After(acceptBackoff):
			case <-n.ctx.Done():
				return
			}
			continue
		}
		if !n.post(acceptedEvent{conn: conn}) {
			_ = conn.Close()
			return
		}
	}
}

// readLoop decodes frames from one connection and forwards them in order.
// It stops at the first error that leaves the stream unusable.
func (n *Node) readLoop(pc *peerConn) {
	defer n.wg.Done()
	for {
		msg, err := protocol.ReadMessage(pc.conn)
		if !n.post(frameEvent{pc: pc, msg: msg, err: err}) {
			return
		}
		if err != nil && !errors.Is(err, protocol.ErrUnknownKind) {
			return
		}
	}
}

// run is the dispatch goroutine.
func (n *Node) run() {
	defer n.wg.Done()
	for {
		select {
		case <-n.ctx.Done():
			n.shutdown()
			return
		case ev := <-n.events:
			n.handle(ev)
		}
	}
}

func (n *Node) handle(ev event) {
	switch ev := ev.(type) {
	case acceptedEvent:
		pc := n.attach(ev.conn)
		n.log.Debug("accepted connection", zap.String("remote", pc.remote))
	case frameEvent:
		n.handleFrame(ev)
	case joinEvent:
		n.handleJoin(ev)
	case dialedEvent:
		n.handleDialed(ev)
	case verifiedEvent:
		n.handleVerified(ev)
	case localResultEvent:
		n.handleLocalResult(ev)
	case solveEvent:
		n.startSolve(ev)
	case solveDoneEvent:
		n.finishSolve(ev.d)
	case starvedEvent:
		n.handleStarved(ev.d)
	default:
		n.log.Error("unknown event", zap.String("type", fmt.Sprintf("%T", ev)))
	}
}

func (n *Node) attach(conn net.Conn) *peerConn {
	pc := newPeerConn(conn, n.cfg.WriteTimeout)
	n.conns[pc] = struct{}{}
	n.wg.Add(1)
	go n.readLoop(pc)
	return pc
}

func (n *Node) handleFrame(ev frameEvent) {
	if _, ok := n.conns[ev.pc]; !ok {
		return
	}
	switch {
	case ev.err == nil:
		telemetry.MessagesTotal.WithLabelValues("in", ev.msg.Kind().String()).Inc()
		n.dispatch(ev.pc, ev.msg)
	case errors.Is(ev.err, protocol.ErrUnknownKind):
		telemetry.MessagesTotal.WithLabelValues("in", "unknown").Inc()
		n.log.Warn("ignoring message", zap.String("remote", ev.pc.remote), zap.Error(ev.err))
	case errors.Is(ev.err, protocol.ErrDisconnect):
		n.drop(ev.pc, "goodbye", nil)
	case errors.Is(ev.err, protocol.ErrMalformed):
		n.drop(ev.pc, "malformed", ev.err)
	default:
		n.drop(ev.pc, "read_error", ev.err)
	}
}

// drop tears down a connection and forgets the peer registered on it, if
// that connection is still the registered one.
func (n *Node) drop(pc *peerConn, reason string, err error) {
	if _, ok := n.conns[pc]; !ok {
		return
	}
	delete(n.conns, pc)
	pc.close()
	telemetry.DisconnectsTotal.WithLabelValues(reason).Inc()

	if n.solve != nil {
		n.solve.RemoveWorker(remoteWorker{pc: pc, d: n.solve})
	}
	addr, ok := n.registry.RemoveConn(pc)
	if !ok {
		n.log.Debug("connection closed", zap.String("remote", pc.remote), zap.String("reason", reason), zap.Error(err))
		return
	}
	telemetry.Peers.Set(float64(n.registry.Len()))
	n.log.Info("peer disconnected",
		zap.Stringer("peer", addr),
		zap.String("reason", reason),
		zap.Error(err))
}

// register binds addr to pc and, if a solve is running, offers pc to it.
func (n *Node) register(addr protocol.Address, pc *peerConn) {
	prev, replaced := n.registry.AddPeer(addr, pc)
	if replaced {
		n.log.Info("replaced connection for peer", zap.Stringer("peer", addr))
		if n.solve != nil {
			n.solve.RemoveWorker(remoteWorker{pc: prev, d: n.solve})
		}
	}
	if n.solve != nil {
		n.solve.AddWorker(remoteWorker{pc: pc, d: n.solve})
	}
	telemetry.Peers.Set(float64(n.registry.Len()))
	n.log.Info("peer registered", zap.Stringer("peer", addr), zap.String("remote", pc.remote))
}

func (n *Node) handleJoin(ev joinEvent) {
	addr := ev.addr
	if addr == n.self || addr.IsZero() {
		notify(fmt.Errorf("%w: %s", ErrJoinSelf, addr), ev.done)
		return
	}
	if _, ok := n.registry.Peer(addr); ok {
		notify(nil, ev.done)
		return
	}
	if waiters, ok := n.dialing[addr]; ok {
		if ev.done != nil {
			n.dialing[addr] = append(waiters, ev.done)
		}
		return
	}
	if !ev.force && !n.self.Less(addr) {
		n.log.Debug("leaving dial to peer", zap.Stringer("peer", addr))
		return
	}
	n.dial(addr, ev.done)
}

// discover is the densification path for addresses learned from gossip.
func (n *Node) discover(addr protocol.Address) {
	n.handleJoin(joinEvent{addr: addr})
}

func (n *Node) dial(addr protocol.Address, done chan error) {
	var waiters []chan error
	if done != nil {
		waiters = append(waiters, done)
	}
	n.dialing[addr] = waiters
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		d := net.Dialer{Timeout: n.cfg.DialTimeout}
		conn, err := d.DialContext(n.ctx, "tcp", addr.String())
		if !n.post(dialedEvent{addr: addr, conn: conn, err: err}) && conn != nil {
			_ = conn.Close()
		}
	}()
}

func (n *Node) handleDialed(ev dialedEvent) {
	waiters := n.dialing[ev.addr]
	delete(n.dialing, ev.addr)
	if ev.err != nil {
		telemetry.DialsTotal.WithLabelValues("failure").Inc()
		n.log.Warn("dial failed", zap.Stringer("peer", ev.addr), zap.Error(ev.err))
		notify(fmt.Errorf("dial %s: %w", ev.addr, ev.err), waiters...)
		return
	}
	telemetry.DialsTotal.WithLabelValues("success").Inc()

	pc := n.attach(ev.conn)
	n.register(ev.addr, pc)
	if err := pc.send(protocol.JoinRequest{Address: n.self}); err != nil {
		n.log.Warn("join request not sent", zap.Stringer("peer", ev.addr), zap.Error(err))
		notify(err, waiters...)
		return
	}
	notify(nil, waiters...)
}

func (n *Node) shutdown() {
	for pc := range n.conns {
		pc.goodbye()
		delete(n.conns, pc)
	}
	for addr, waiters := range n.dialing {
		notify(ErrNodeClosed, waiters...)
		delete(n.dialing, addr)
	}
	// Sockets still queued behind the shutdown would otherwise leak.
	for {
		select {
		case ev := <-n.events:
			switch ev := ev.(type) {
			case acceptedEvent:
				_ = ev.conn.Close()
			case dialedEvent:
				if ev.conn != nil {
					_ = ev.conn.Close()
				}
			}
		default:
			telemetry.Peers.Set(0)
			return
		}
	}
}

// notify answers Join callers. Each waiter channel has room for one value.
func notify(err error, waiters ...chan error) {
	for _, w := range waiters {
		if w != nil {
			w <- err
		}
	}
}
