package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/arcgis"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/executor"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/httpclient"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/lookupevents"
	"github.com/mohammed-shakir/flurstueck-map/internal/mapper"
	h3mapper "github.com/mohammed-shakir/flurstueck-map/internal/mapper/h3"
	"github.com/mohammed-shakir/flurstueck-map/internal/render"
	"github.com/mohammed-shakir/flurstueck-map/internal/resolver"
	"github.com/mohammed-shakir/flurstueck-map/internal/snapshot"
	"github.com/mohammed-shakir/flurstueck-map/internal/storage/redisstore"
)

func (a *app) newResolver() (*resolver.Resolver, error) {
	exec, err := executor.New(a.log, httpclient.NewOutbound(a.cfg.UpstreamTimeout), arcgis.QueryEndpoint(a.cfg.ArcGISURL))
	if err != nil {
		return nil, fmt.Errorf("init executor: %w", err)
	}
	return resolver.New(a.log, exec), nil
}

func (a *app) newRenderer() (*render.Renderer, error) {
	return render.New(render.Options{Zoom: a.cfg.MapZoom})
}

// openRedisStore connects to REDIS_ADDR. The returned client must be closed.
func (a *app) openRedisStore(ctx context.Context) (*snapshot.RedisStore, *redisstore.Client, error) {
	if a.cfg.RedisAddr == "" {
		return nil, nil, errors.New("REDIS_ADDR is not set")
	}
	c, err := redisstore.New(ctx, a.cfg.RedisAddr)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis %s: %w", a.cfg.RedisAddr, err)
	}
	return snapshot.NewRedisStore(c, a.cfg.SnapshotTTL, a.log), c, nil
}

// newPublisher returns nil when lookup events are disabled.
func (a *app) newPublisher() (*lookupevents.Publisher, error) {
	le := a.cfg.LookupEvents
	if !le.Enabled {
		return nil, nil
	}
	p, err := lookupevents.NewKafkaPublisher(le.Brokers, lookupevents.Options{
		Topic:        le.Topic,
		QueueSize:    le.QueueSize,
		DedupeWindow: le.DedupeWindow,
		DedupeSize:   le.DedupeSize,
		Logger:       a.log,
	})
	if err != nil {
		return nil, err
	}
	a.log.Info("lookup events enabled", "brokers", le.Brokers, "topic", le.Topic)
	return p, nil
}

// lookupEvent locates f and describes it for the event stream. A failed
// cell lookup leaves H3Cell empty.
func (a *app) lookupEvent(m mapper.Interface, k model.QueryKey, f model.Feature, source string) lookupevents.Event {
	c, err := render.Center([]model.Feature{f})
	if err != nil {
		return lookupevents.ForFeature(k, f, 0, 0, "", source)
	}
	cell, err := m.CellForPoint(c[0], c[1], a.cfg.H3Res)
	if err != nil {
		a.log.Debug("h3 cell failed", "key", k.String(), "err", err)
	}
	return lookupevents.ForFeature(k, f, c[0], c[1], cell, source)
}

func newMapper() mapper.Interface { return h3mapper.New() }
