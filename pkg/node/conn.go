package node

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/divider"
	"github.com/ryandielhenn/sudokumesh/pkg/grid"
	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

const goodbyeTimeout = 500 * time.Millisecond

// peerConn is one TCP stream to another node. Writes come from the dispatch
// goroutine, divider goroutines and the maintenance loop, so they are
// serialised by mu.
type peerConn struct {
	conn         net.Conn
	remote       string
	writeTimeout time.Duration

	mu     sync.Mutex
	closed bool
	// owners holds, in send order, the solve each outstanding SolveRequest
	// belongs to. Peers answer SolveRequests in order.
	owners []*divider.Divider

	// Dispatch goroutine only. Closed once the previous SolveResponse for
	// this connection has been queued, so answers keep request order.
	lastVerify chan struct{}
}

func newPeerConn(conn net.Conn, writeTimeout time.Duration) *peerConn {
	return &peerConn{
		conn:         conn,
		remote:       conn.RemoteAddr().String(),
		writeTimeout: writeTimeout,
	}
}

func (pc *peerConn) send(m protocol.Message) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return pc.sendLocked(m)
}

func (pc *peerConn) sendLocked(m protocol.Message) error {
	if pc.closed {
		return fmt.Errorf("send %s to %s: %w", m.Kind(), pc.remote, net.ErrClosed)
	}
	if pc.writeTimeout > 0 {
		_ = pc.conn.SetWriteDeadline(time.Now().Add(pc.writeTimeout))
	}
	if err := protocol.WriteMessage(pc.conn, m); err != nil {
		// The reader sees the closed socket and reports the disconnect.
		pc.closeLocked()
		return fmt.Errorf("send %s to %s: %w", m.Kind(), pc.remote, err)
	}
	telemetry.MessagesTotal.WithLabelValues("out", m.Kind().String()).Inc()
	return nil
}

// dispatch sends unit as a SolveRequest on behalf of d.
func (pc *peerConn) dispatch(d *divider.Divider, unit grid.Grid) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if err := pc.sendLocked(protocol.SolveRequest{Grid: unit}); err != nil {
		return err
	}
	pc.owners = append(pc.owners, d)
	telemetry.UnitsDispatched.Inc()
	return nil
}

// answered pops the solve the next SolveResponse belongs to.
func (pc *peerConn) answered() (*divider.Divider, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if len(pc.owners) == 0 {
		return nil, false
	}
	d := pc.owners[0]
	pc.owners[0] = nil
	pc.owners = pc.owners[1:]
	return d, true
}

// goodbye sends the zero-length frame and closes the socket.
func (pc *peerConn) goodbye() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	if pc.closed {
		return
	}
	_ = pc.conn.SetWriteDeadline(time.Now().Add(goodbyeTimeout))
	_ = protocol.WriteDisconnect(pc.conn)
	pc.closeLocked()
}

func (pc *peerConn) close() {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.closeLocked()
}

func (pc *peerConn) closeLocked() {
	if pc.closed {
		return
	}
	pc.closed = true
	_ = pc.conn.Close()
}

// remoteWorker is a peer connection as seen by one solve. Being a value type
// keyed by both, a late answer for an earlier solve can never be credited to
// the current one.
type remoteWorker struct {
	pc *peerConn
	d  *divider.Divider
}

func (w remoteWorker) Dispatch(unit grid.Grid) error {
	return w.pc.dispatch(w.d, unit)
}

// localWorker verifies on this node. One is created per solve.
type localWorker struct {
	n *Node
	d *divider.Divider
}

func (w *localWorker) Dispatch(unit grid.Grid) error {
	telemetry.UnitsDispatched.Inc()
	go func() {
		ok, checks := w.n.verify(unit)
		w.n.post(localResultEvent{worker: w, unit: unit, ok: ok, checks: checks})
	}()
	return nil
}
