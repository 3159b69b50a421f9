package protocol

import "github.com/ryandielhenn/sudokumesh/pkg/grid"

type Kind uint64

const (
	KindJoinRequest Kind = iota + 1
	KindNetworkInfoRequest
	KindNetworkInfoResponse
	KindStatsRequest
	KindStatsResponse
	KindSolveRequest
	KindSolveResponse
)

func (k Kind) String() string {
	switch k {
	case KindJoinRequest:
		return "join_req"
	case KindNetworkInfoRequest:
		return "network_info_req"
	case KindNetworkInfoResponse:
		return "network_info_res"
	case KindStatsRequest:
		return "stats_req"
	case KindStatsResponse:
		return "stats_res"
	case KindSolveRequest:
		return "solve_req"
	case KindSolveResponse:
		return "solve_res"
	default:
		return "unknown"
	}
}

// Message is one of the variants below.
type Message interface {
	Kind() Kind
}

// JoinRequest announces the sender's listen address on a fresh connection.
type JoinRequest struct {
	Address Address
}

type NetworkInfoRequest struct{}

// NetworkInfoResponse carries the sender's current peer list.
type NetworkInfoResponse struct {
	Address   Address
	Neighbors []Address
}

type StatsRequest struct{}

type StatsResponse struct {
	Address       Address
	Solves        int
	Verifications int
}

// SolveRequest asks the receiver to verify one fully specified candidate.
type SolveRequest struct {
	Grid grid.Grid
}

// SolveResponse answers a SolveRequest. Grid is nil when the candidate was
// not a valid solution.
type SolveResponse struct {
	Grid *grid.Grid
}

func (JoinRequest) Kind() Kind         { return KindJoinRequest }
func (NetworkInfoRequest) Kind() Kind  { return KindNetworkInfoRequest }
func (NetworkInfoResponse) Kind() Kind { return KindNetworkInfoResponse }
func (StatsRequest) Kind() Kind        { return KindStatsRequest }
func (StatsResponse) Kind() Kind       { return KindStatsResponse }
func (SolveRequest) Kind() Kind        { return KindSolveRequest }
func (SolveResponse) Kind() Kind       { return KindSolveResponse }
