// Package node runs one mesh member. It owns the P2P listener and every peer
// connection, answers protocol messages, keeps the topology and stats views
// fresh, and splits solve requests across the peers it knows.
//
// All registry mutation and all solve bookkeeping happen on a single dispatch
// goroutine. Socket reads, dials, verification and the maintenance ticker run
// elsewhere and hand their results to that goroutine as events.
package node

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/cache"
	"github.com/ryandielhenn/sudokumesh/pkg/divider"
	"github.com/ryandielhenn/sudokumesh/pkg/grid"
	"github.com/ryandielhenn/sudokumesh/pkg/peers"
	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

var (
	ErrNodeClosed      = errors.New("node: closed")
	ErrSolveInProgress = errors.New("node: a solve is already in progress")
	ErrJoinSelf        = errors.New("node: cannot join own address")
)

const eventBacklog = 256

type Node struct {
	cfg      Config
	self     protocol.Address
	log      *zap.Logger
	verifier grid.Verifier
	solved   *cache.Store
	registry *peers.Registry[*peerConn]

	ln     net.Listener
	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	startOnce sync.Once
	closeOnce sync.Once

	// Owned by the dispatch goroutine.
	conns   map[*peerConn]struct{}
	dialing map[protocol.Address][]chan error
	solve   *divider.Divider
}

// New binds the P2P listener and builds the node. Nothing runs until Start.
func New(cfg Config) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(cfg.ListenHost, strconv.Itoa(cfg.P2PPort)))
	if err != nil {
		return nil, fmt.Errorf("listen on p2p port %d: %w", cfg.P2PPort, err)
	}
	host := cfg.Host
	if host == "" {
		host = HostIP()
	}
	self := protocol.Address{Host: host, Port: ln.Addr().(*net.TCPAddr).Port}

	verifier := cfg.Verifier
	if verifier == nil {
		verifier = grid.Checker{Handicap: cfg.Handicap}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Node{
		cfg:      cfg,
		self:     self,
		log:      log.With(zap.Stringer("self", self)),
		verifier: verifier,
		solved:   cache.NewStore(cfg.CacheSize, cfg.CacheTTL),
		registry: peers.New[*peerConn](self),
		ln:       ln,
		events:   make(chan event, eventBacklog),
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(map[*peerConn]struct{}),
		dialing:  make(map[protocol.Address][]chan error),
	}, nil
}

// Start launches the accept, dispatch and maintenance goroutines.
func (n *Node) Start() {
	n.startOnce.Do(func() {
		n.wg.Add(3)
		go n.acceptLoop()
		go n.run()
		go n.maintain()
		n.log.Info("node started",
			zap.String("listen", n.ln.Addr().String()),
			zap.Duration("interval", n.cfg.MaintenanceInterval))
	})
}

// Addr is the address this node advertises to its peers.
func (n *Node) Addr() protocol.Address { return n.self }

// Close tells every peer goodbye with a zero-length frame, closes all
// sockets and waits for the node's goroutines to exit.
func (n *Node) Close() error {
	var err error
	n.closeOnce.Do(func() {
		n.cancel()
		if cerr := n.ln.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
			err = cerr
		}
		n.wg.Wait()
		n.log.Info("node stopped")
	})
	return err
}

// Join dials addr, registers it as a peer and sends it a JoinRequest. It
// returns once the peer is registered or the dial failed. Joins skip the
// dial tie-break used for gossip.
func (n *Node) Join(ctx context.Context, addr protocol.Address) error {
	done := make(chan error, 1)
	if !n.post(joinEvent{addr: addr, force: true, done: done}) {
		return ErrNodeClosed
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-n.ctx.Done():
		return ErrNodeClosed
	}
}

// Discover hands an address learned out of band to densification. It is
// dialed only if this node wins the tie-break.
func (n *Node) Discover(addr protocol.Address) {
	n.post(joinEvent{addr: addr})
}

// Stats returns mesh-wide totals and one row per known address, self first.
func (n *Node) Stats() peers.Stats {
	return n.registry.SnapshotStats()
}

// Network returns the topology view keyed by address, with this node's own
// live peers under its own address.
func (n *Node) Network() map[string][]string {
	snap := n.registry.SnapshotNetwork()
	out := make(map[string][]string, len(snap))
	for addr, neighbors := range snap {
		list := make([]string, 0, len(neighbors))
		for _, nb := range neighbors {
			list = append(list, nb.String())
		}
		sort.Strings(list)
		out[addr.String()] = list
	}
	return out
}

// Peers lists the addresses of the live peer connections.
func (n *Node) Peers() []protocol.Address {
	return n.registry.Addresses()
}

func (n *Node) post(ev event) bool {
	if n.ctx.Err() != nil {
		return false
	}
	select {
	case n.events <- ev:
		return true
	case <-n.ctx.Done():
		return false
	}
}

// verify runs the verifier with metrics. It is called off the dispatch
// goroutine.
func (n *Node) verify(unit grid.Grid) (bool, int) {
	start := time.Now()
	ok, checks := n.verifier.Verify(unit)
	telemetry.VerifyDuration.Observe(time.Since(start).Seconds())
	telemetry.Verifications.Add(float64(checks))
	return ok, checks
}
