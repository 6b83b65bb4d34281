package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/observability"
)

func TestLogging_SetsRequestID(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := Logging(l)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/parcel", nil))
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected generated X-Request-ID")
	}
	if !strings.Contains(buf.String(), "status=418") {
		t.Fatalf("log line missing status: %s", buf.String())
	}

	rr = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/parcel", nil)
	req.Header.Set("X-Request-ID", "abc")
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("X-Request-ID"); got != "abc" {
		t.Fatalf("request id=%q want abc", got)
	}
}

func TestRecover_Returns500(t *testing.T) {
	l := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	h := Recover(l)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status=%d want 500", rr.Code)
	}
}

func TestCORS_Preflight(t *testing.T) {
	h := CORS()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("preflight must not reach handler")
	}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodOptions, "/parcel", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status=%d want 204", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatal("missing allow-origin")
	}
}

func TestMetrics_UsesRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	observability.Init(reg, true)
	t.Cleanup(func() { observability.Init(nil, false) })

	r := chi.NewRouter()
	r.Use(Metrics())
	r.Get("/snapshots/{name}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/snapshots/abc", nil))

	out, err := testutil.GatherAndCount(reg, "http_requests_total")
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if out != 1 {
		t.Fatalf("series=%d want 1", out)
	}
	mfs, _ := reg.Gather()
	var found bool
	for _, mf := range mfs {
		if mf.GetName() != "http_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "route" && lp.GetValue() == "/snapshots/{name}" {
					found = true
				}
			}
		}
	}
	if !found {
		t.Fatal("expected route label /snapshots/{name}")
	}
}
