package telemetry

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInstrumentCountsByStatusClass(t *testing.T) {
	h := Instrument("sample", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fail") != "" {
			http.Error(w, "nope", http.StatusConflict)
			return
		}
		w.Write([]byte("ok"))
	}))

	before2xx := testutil.ToFloat64(RequestsTotal.WithLabelValues("sample", "2xx"))
	before4xx := testutil.ToFloat64(RequestsTotal.WithLabelValues("sample", "4xx"))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/?fail=1", nil))

	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("sample", "2xx")) - before2xx; got != 1 {
		t.Fatalf("2xx delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("sample", "4xx")) - before4xx; got != 1 {
		t.Fatalf("4xx delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(InFlight.WithLabelValues("sample")); got != 0 {
		t.Fatalf("in flight = %v, want 0", got)
	}
}

func TestMetricsHandlerExposesMeshMetrics(t *testing.T) {
	SetBuildInfo("test", "abc123")
	UnitsDispatched.Inc()

	rec := httptest.NewRecorder()
	MetricsHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"sudokumesh_work_units_dispatched_total",
		`sudokumesh_build_info{git_sha="abc123",version="test"} 1`,
		"sudokumesh_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
