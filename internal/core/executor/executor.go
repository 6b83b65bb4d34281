// Package executor issues feature service queries upstream.
package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/arcgis"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/observability"
)

type Interface interface {
	FetchFeatures(ctx context.Context, k model.QueryKey) ([]byte, error)
}

type Executor struct {
	logger   *slog.Logger
	client   *http.Client
	queryURL *url.URL
	startNow func() time.Time // for tests
}

func New(logger *slog.Logger, client *http.Client, queryEndpoint string) (*Executor, error) {
	u, err := url.Parse(queryEndpoint)
	if err != nil {
		return nil, fmt.Errorf("parse query url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("query url %q must be absolute", queryEndpoint)
	}
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &Executor{
		logger:   logger,
		client:   client,
		queryURL: u,
		startNow: time.Now,
	}, nil
}

// FetchFeatures runs one query for k and returns the raw response body.
// Non-2xx statuses are returned as errors.
func (e *Executor) FetchFeatures(ctx context.Context, k model.QueryKey) ([]byte, error) {
	u := *e.queryURL
	u.RawQuery = arcgis.BuildQueryParams(k).Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	e.logger.Debug("arcgis query", "key", k.String(), "url", e.queryURL.String())

	start := e.startNow()
	resp, err := e.client.Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency("arcgis", err, time.Since(start).Seconds())
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		err := fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b))
		observability.ObserveUpstreamLatency("arcgis", err, time.Since(start).Seconds())
		return nil, err
	}

	b, err := io.ReadAll(resp.Body)
	observability.ObserveUpstreamLatency("arcgis", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	e.logger.Debug("arcgis query done",
		"key", k.String(),
		"status", resp.StatusCode,
		"bytes", len(b),
		"duration", time.Since(start).String())
	return b, nil
}
