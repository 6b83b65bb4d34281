package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/config"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/health"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/router"
	h3mapper "github.com/mohammed-shakir/flurstueck-map/internal/mapper/h3"
	"github.com/mohammed-shakir/flurstueck-map/internal/render"
)

type nopResolver struct{}

func (nopResolver) Resolve(context.Context, model.QueryKey) (*model.Feature, error) {
	return nil, nil
}

func testRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	cfg := config.Config{Addr: ":0"}
	return NewRouter(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), opts)
}

func TestNewRouter_HealthAndMetrics(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := testRouter(t, Options{
		Metrics: metrics,
		Ready: map[string]health.Check{
			"redis": func(context.Context) error { return errors.New("down") },
		},
	})

	for path, want := range map[string]int{
		"/healthz": http.StatusOK,
		"/readyz":  http.StatusServiceUnavailable,
		"/metrics": http.StatusOK,
		"/parcel":  http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Errorf("%s: status=%d want %d", path, rr.Code, want)
		}
	}
}

func TestNewRouter_MountsParcelRoutes(t *testing.T) {
	rnd, err := render.New(render.Options{})
	if err != nil {
		t.Fatalf("render.New: %v", err)
	}
	handler := router.New(router.Deps{
		Resolver: nopResolver{},
		Renderer: rnd,
		Mapper:   h3mapper.New(),
		H3Res:    12,
	})
	h := testRouter(t, Options{Handler: handler})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/parcel?gemarkung=1&flur=1&flurstueck=1", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "no parcel found") {
		t.Fatalf("body=%s", rr.Body.String())
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected X-Request-ID from logging middleware")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := config.Config{Addr: "127.0.0.1:0"}
	if err := Run(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}
}
