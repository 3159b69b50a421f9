package peers

import (
	"slices"

	"github.com/ryandielhenn/sudokumesh/pkg/protocol"
)

// Stats is the aggregated view served on /stats.
type Stats struct {
	Total   Totals      `json:"all"`
	PerPeer []PeerStats `json:"nodes"`
}

type Totals struct {
	Solved        int `json:"solved"`
	Verifications int `json:"validations"`
}

type PeerStats struct {
	Address       string `json:"address"`
	Solved        int    `json:"solved"`
	Verifications int    `json:"validations"`
}

// SnapshotStats lists the local node first, then every address that is a
// live peer or has reported stats, sorted. Totals are the sum of the rows.
func (r *Registry[C]) SnapshotStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[protocol.Address]struct{}, len(r.peers)+len(r.stats))
	var others []protocol.Address
	for addr := range r.peers {
		seen[addr] = struct{}{}
		others = append(others, addr)
	}
	for addr := range r.stats {
		if _, ok := seen[addr]; ok || addr == r.self {
			continue
		}
		seen[addr] = struct{}{}
		others = append(others, addr)
	}
	slices.SortFunc(others, compareAddress)

	out := Stats{PerPeer: make([]PeerStats, 0, len(others)+1)}
	add := func(addr protocol.Address, e StatsEntry) {
		out.PerPeer = append(out.PerPeer, PeerStats{
			Address:       addr.String(),
			Solved:        e.Solves,
			Verifications: e.Verifications,
		})
		out.Total.Solved += e.Solves
		out.Total.Verifications += e.Verifications
	}

	add(r.self, StatsEntry{Solves: r.solves, Verifications: r.verifications})
	for _, addr := range others {
		if addr == r.self {
			continue
		}
		add(addr, r.stats[addr])
	}
	return out
}
