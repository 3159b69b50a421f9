package node

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ryandielhenn/sudokumesh/internal/telemetry"
	"github.com/ryandielhenn/sudokumesh/pkg/divider"
	"github.com/ryandielhenn/sudokumesh/pkg/grid"
)

const maxSolveBody = 64 << 10

// Handler routes the node's HTTP front end.
func (n *Node) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", n.Healthz)
	mux.Handle("/metrics", telemetry.MetricsHandler())
	mux.Handle("/stats", telemetry.Instrument("stats", http.HandlerFunc(n.ServeStats)))
	mux.Handle("/network", telemetry.Instrument("network", http.HandlerFunc(n.ServeNetwork)))
	mux.Handle("/solve", telemetry.Instrument("solve", http.HandlerFunc(n.ServeSolve)))
	return mux
}

// Healthz returns 200 OK to indicate the node is alive.
func (n *Node) Healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// ServeStats writes mesh-wide solve and verification counters.
func (n *Node) ServeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, n.Stats())
}

// ServeNetwork writes the topology view.
func (n *Node) ServeNetwork(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, n.Network())
}

type solveRequest struct {
	Sudoku [][]int `json:"sudoku"`
}

// ServeSolve takes {"sudoku": [[...], ...]} and answers with the solved grid.
func (n *Node) ServeSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSolveBody))
	if err != nil {
		status := http.StatusBadRequest
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			status = http.StatusRequestEntityTooLarge
		}
		http.Error(w, err.Error(), status)
		return
	}
	var req solveRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	puzzle, err := grid.FromRows(req.Sudoku)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), n.cfg.SolveTimeout)
	defer cancel()
	solved, err := n.Solve(ctx, puzzle)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, solved)
	case errors.Is(err, ErrSolveInProgress):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, divider.ErrNoSolution):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	case errors.Is(err, context.DeadlineExceeded):
		http.Error(w, "solve timed out", http.StatusGatewayTimeout)
	case errors.Is(err, ErrNodeClosed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		n.log.Warn("solve failed", zap.Error(err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
