// Package peers is the node's local view of the mesh: which addresses it has
// a live connection to, the neighbor lists those addresses last reported,
// and the solve/verification counters gossiped alongside them.
//
// The registry is safe for concurrent readers, but the node only mutates it
// from its dispatch goroutine so that updates are applied in the order
// messages were handled.
package peers

import (
	"slices"
	"sync"

	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

// StatsEntry is the last (solves, verifications) pair an address reported.
type StatsEntry struct {
	Solves        int
	Verifications int
}

// Registry maps peer addresses to connection handles of type C.
type Registry[C comparable] struct {
	mu       sync.RWMutex
	self     protocol.Address
	peers    map[protocol.Address]C
	topology map[protocol.Address][]protocol.Address
	stats    map[protocol.Address]StatsEntry

	solves        int
	verifications int
}

func New[C comparable](self protocol.Address) *Registry[C] {
	return &Registry[C]{
		self:     self,
		peers:    make(map[protocol.Address]C),
		topology: make(map[protocol.Address][]protocol.Address),
		stats:    make(map[protocol.Address]StatsEntry),
	}
}

func (r *Registry[C]) Self() protocol.Address { return r.self }

// AddPeer inserts or replaces the handle for addr. When a different handle
// was registered it is returned with replaced=true; the caller decides what
// to do with it.
func (r *Registry[C]) AddPeer(addr protocol.Address, conn C) (prev C, replaced bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.peers[addr]
	r.peers[addr] = conn
	return prev, ok && prev != conn
}

// RemovePeer drops the peer and its topology entry.
func (r *Registry[C]) RemovePeer(addr protocol.Address) (C, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.peers[addr]
	delete(r.peers, addr)
	delete(r.topology, addr)
	return conn, ok
}

// RemoveConn drops whichever address conn is registered under. A handle that
// was displaced by AddPeer is not registered anymore, so closing it leaves
// the newer entry alone.
func (r *Registry[C]) RemoveConn(conn C) (protocol.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for addr, c := range r.peers {
		if c == conn {
			delete(r.peers, addr)
			delete(r.topology, addr)
			return addr, true
		}
	}
	return protocol.Address{}, false
}

func (r *Registry[C]) Peer(addr protocol.Address) (C, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.peers[addr]
	return c, ok
}

// AddressOf returns the address conn is registered under.
func (r *Registry[C]) AddressOf(conn C) (protocol.Address, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for addr, c := range r.peers {
		if c == conn {
			return addr, true
		}
	}
	return protocol.Address{}, false
}

func (r *Registry[C]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Addresses returns the live peer addresses, sorted.
func (r *Registry[C]) Addresses() []protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.addressesLocked()
}

// Peers returns the live handles ordered by address.
func (r *Registry[C]) Peers() []C {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]C, 0, len(r.peers))
	for _, addr := range r.addressesLocked() {
		out = append(out, r.peers[addr])
	}
	return out
}

// RecordTopology overwrites the neighbor list reported by addr and returns
// the neighbors that are neither self nor a live peer, i.e. the addresses
// densification should dial.
func (r *Registry[C]) RecordTopology(addr protocol.Address, neighbors []protocol.Address) []protocol.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topology[addr] = slices.Clone(neighbors)

	var unknown []protocol.Address
	for _, n := range neighbors {
		if n == r.self || n.IsZero() || slices.Contains(unknown, n) {
			continue
		}
		if _, ok := r.peers[n]; ok {
			continue
		}
		unknown = append(unknown, n)
	}
	return unknown
}

func (r *Registry[C]) RecordStats(addr protocol.Address, solves, verifications int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[addr] = StatsEntry{Solves: solves, Verifications: verifications}
}

// AddVerifications adds n to the local verification counter.
func (r *Registry[C]) AddVerifications(n int) {
	r.mu.Lock()
	r.verifications += n
	r.mu.Unlock()
}

// AddSolve counts one candidate this node verified as a valid solution.
func (r *Registry[C]) AddSolve() {
	r.mu.Lock()
	r.solves++
	r.mu.Unlock()
}

// Local returns this node's own counters.
func (r *Registry[C]) Local() StatsEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return StatsEntry{Solves: r.solves, Verifications: r.verifications}
}

// SnapshotNetwork returns every recorded neighbor list plus the local peer
// set under the self address.
func (r *Registry[C]) SnapshotNetwork() map[protocol.Address][]protocol.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[protocol.Address][]protocol.Address, len(r.topology)+1)
	for addr, ns := range r.topology {
		out[addr] = slices.Clone(ns)
	}
	out[r.self] = r.addressesLocked()
	return out
}

func (r *Registry[C]) addressesLocked() []protocol.Address {
	out := make([]protocol.Address, 0, len(r.peers))
	for addr := range r.peers {
		out = append(out, addr)
	}
	slices.SortFunc(out, compareAddress)
	return out
}

func compareAddress(a, b protocol.Address) int {
	switch {
	case a.Less(b):
		return -1
	case b.Less(a):
		return 1
	default:
		return 0
	}
}
