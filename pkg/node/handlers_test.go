package node

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryandielhenn/sudokumesh/pkg/grid"
	"github.com/ryandielhenn/sudokumesh/pkg/peers"
)

func solveBody(t *testing.T, g grid.Grid) string {
	t.Helper()
	rows := make([][]int, grid.Size)
	for r := range rows {
		rows[r] = g[r][:]
	}
	b, err := json.Marshal(map[string]any{"sudoku": rows})
	require.NoError(t, err)
	return string(b)
}

func TestHealthz(t *testing.T) {
	n := startNode(t)
	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestServeStats(t *testing.T) {
	n := startNode(t)
	rec := httptest.NewRecorder()
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	assert.Contains(t, raw, "all")
	assert.Contains(t, raw, "nodes")

	var stats peers.Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Len(t, stats.PerPeer, 1)
	assert.Equal(t, n.Addr().String(), stats.PerPeer[0].Address)
}

func TestServeNetwork(t *testing.T) {
	a := startNode(t)
	b := startNode(t)
	require.NoError(t, b.Join(testCtx(t), a.Addr()))
	require.Eventually(t, func() bool { return hasPeer(a, b.Addr()) }, waitFor, tick)

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/network", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var view map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	assert.Contains(t, view[a.Addr().String()], b.Addr().String())
}

func TestServeSolve(t *testing.T) {
	n := startNode(t)
	puzzle := withBlanks(grid.Pos{Row: 7, Col: 7}, grid.Pos{Row: 0, Col: 8})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/solve", strings.NewReader(solveBody(t, puzzle)))
	n.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got grid.Grid
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, solved, got)
}

func TestServeSolveErrors(t *testing.T) {
	n := startNode(t)

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"short grid", http.MethodPost, `{"sudoku": [[1,2,3]]}`, http.StatusBadRequest},
		{"no solution", http.MethodPost, func() string {
			g := withBlanks(grid.Pos{Row: 0, Col: 0})
			g[0][1] = 5
			return solveBody(t, g)
		}(), http.StatusUnprocessableEntity},
		{"oversized body", http.MethodPost,
			strings.Repeat(" ", maxSolveBody) + solveBody(t, withBlanks(grid.Pos{Row: 1, Col: 1})),
			http.StatusRequestEntityTooLarge},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			n.Handler().ServeHTTP(rec, httptest.NewRequest(tc.method, "/solve", strings.NewReader(tc.body)))
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestServeSolveConflictAndTimeout(t *testing.T) {
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	n := startNode(t, func(c *Config) {
		c.SolveTimeout = 100 * time.Millisecond
		c.Verifier = grid.VerifierFunc(func(g grid.Grid) (bool, int) {
			<-release
			return grid.Checker{}.Verify(g)
		})
	})

	rec := httptest.NewRecorder()
	body := solveBody(t, withBlanks(grid.Pos{Row: 4, Col: 4}))
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/solve", strings.NewReader(body)))
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)

	rec = httptest.NewRecorder()
	body = solveBody(t, withBlanks(grid.Pos{Row: 5, Col: 5}))
	n.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/solve", strings.NewReader(body)))
	assert.Equal(t, http.StatusConflict, rec.Code)
}
