package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/health"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/router"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/server"
	"github.com/mohammed-shakir/flurstueck-map/internal/keysfile"
	"github.com/mohammed-shakir/flurstueck-map/internal/metrics"
	"github.com/mohammed-shakir/flurstueck-map/internal/snapshot"
)

type renderFlags struct {
	in, out       string
	redisSnapshot string
}

func (a *app) newRenderCmd() *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a stored snapshot to an HTML map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.render(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVar(&f.in, "in", "", "snapshot file (default $INPUT_PATH or data.json)")
	cmd.Flags().StringVar(&f.out, "out", "", "output HTML file (default $OUTPUT_PATH or map_with_geometry.html)")
	cmd.Flags().StringVar(&f.redisSnapshot, "redis-snapshot", "", "load the named snapshot from Redis instead of --in")
	return cmd
}

func (a *app) render(ctx context.Context, f renderFlags) error {
	in := firstNonEmpty(f.in, a.cfg.InputPath)
	out := firstNonEmpty(f.out, a.cfg.OutputPath)

	var (
		store snapshot.Store = snapshot.FileStore{}
		name                 = in
	)
	if f.redisSnapshot != "" {
		rs, c, err := a.openRedisStore(ctx)
		if err != nil {
			return a.fail("open snapshot store", err)
		}
		defer func() { _ = c.Close() }()
		store, name = rs, f.redisSnapshot
	}

	recs, err := store.Load(ctx, name)
	if err != nil {
		return a.fail("load snapshot", err)
	}
	rnd, err := a.newRenderer()
	if err != nil {
		return a.fail("init renderer", err)
	}
	m, err := rnd.RenderFile(out, recs)
	if err != nil {
		return a.fail("render map", err)
	}
	a.log.Info("map written",
		"path", out,
		"records", len(recs),
		"polygons", len(m.Polygons),
		"center", m.Center)
	return nil
}

func (a *app) newResolveCmd() *cobra.Command {
	var (
		k      model.QueryKey
		nenner int
	)
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Look up one parcel and print it as JSON",
		Long:  "Exits with status 2 when the key matches more than one parcel.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("nenner") {
				k.Nenner = &nenner
			}
			return a.resolve(cmd.Context(), k)
		},
	}
	cmd.Flags().IntVar(&k.Gemarkung, "gemarkung", 0, "district key")
	cmd.Flags().IntVar(&k.Flur, "flur", 0, "field number")
	cmd.Flags().IntVar(&k.Flurstueck, "flurstueck", 0, "parcel number")
	cmd.Flags().IntVar(&nenner, "nenner", 0, "parcel denominator")
	_ = cmd.MarkFlagRequired("gemarkung")
	_ = cmd.MarkFlagRequired("flur")
	_ = cmd.MarkFlagRequired("flurstueck")
	return cmd
}

func (a *app) resolve(ctx context.Context, k model.QueryKey) error {
	if err := k.Validate(); err != nil {
		return a.fail("invalid key", err)
	}
	res, err := a.newResolver()
	if err != nil {
		return a.fail("init resolver", err)
	}
	pub, err := a.newPublisher()
	if err != nil {
		return a.fail("init lookup events", err)
	}
	if pub != nil {
		defer func() { _ = pub.Close() }()
	}

	f, err := res.Resolve(ctx, k)
	if err != nil {
		return a.fail("resolve "+k.String(), err)
	}
	if f == nil {
		return a.fail("resolve "+k.String(), errors.New("no parcel found"))
	}
	if pub != nil {
		pub.Publish(a.lookupEvent(newMapper(), k, *f, "cli"))
	}

	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(f)
}

func (a *app) newFetchCmd() *cobra.Command {
	var keysPath, out, redisSnapshot string
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Resolve every key in a keys file and store the result as a snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.fetch(cmd.Context(), keysPath, firstNonEmpty(out, a.cfg.InputPath), redisSnapshot)
		},
	}
	cmd.Flags().StringVar(&keysPath, "keys", "keys.yaml", "YAML file listing parcel keys")
	cmd.Flags().StringVar(&out, "out", "", "snapshot file to write (default $INPUT_PATH or data.json)")
	cmd.Flags().StringVar(&redisSnapshot, "redis-snapshot", "", "also store the snapshot in Redis under this name")
	return cmd
}

func (a *app) fetch(ctx context.Context, keysPath, out, redisSnapshot string) error {
	keys, err := keysfile.Load(keysPath)
	if err != nil {
		return a.fail("load keys", err)
	}
	res, err := a.newResolver()
	if err != nil {
		return a.fail("init resolver", err)
	}

	result, err := res.ResolveAll(ctx, keys)
	if err != nil {
		return a.fail("fetch parcels", err)
	}
	a.log.Info("parcels fetched",
		"requested", len(keys),
		"found", len(result.Features),
		"missing", len(result.Missing))

	if err := (snapshot.FileStore{}).Save(ctx, out, result.Features); err != nil {
		return a.fail("write snapshot", err)
	}
	a.log.Info("snapshot written", "path", out)

	if redisSnapshot != "" {
		rs, c, err := a.openRedisStore(ctx)
		if err != nil {
			return a.fail("open snapshot store", err)
		}
		defer func() { _ = c.Close() }()
		if err := rs.Save(ctx, redisSnapshot, result.Features); err != nil {
			return a.fail("store snapshot", err)
		}
	}
	return nil
}

func (a *app) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				a.cfg.Addr = addr
			}
			return a.serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides ADDR)")
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	a.log.Info("starting parcelmap",
		"addr", a.cfg.Addr,
		"version", Version,
		"arcgis", a.cfg.ArcGISURL)

	prov := metrics.Init(metrics.Config{Enabled: a.cfg.Metrics.Enabled, Version: Version})
	var metricsHandler http.Handler
	if a.cfg.Metrics.Enabled {
		metricsHandler = prov.Handler()
	}

	res, err := a.newResolver()
	if err != nil {
		return a.fail("init resolver", err)
	}
	rnd, err := a.newRenderer()
	if err != nil {
		return a.fail("init renderer", err)
	}
	deps := router.Deps{
		Logger:   a.log,
		Resolver: res,
		Renderer: rnd,
		Mapper:   newMapper(),
		H3Res:    a.cfg.H3Res,
	}

	ready := map[string]health.Check{}
	if a.cfg.RedisAddr != "" {
		rs, c, err := a.openRedisStore(ctx)
		if err != nil {
			return a.fail("open snapshot store", err)
		}
		defer func() { _ = c.Close() }()
		deps.Snapshots = rs
		ready["redis"] = c.Ping
	}

	pub, err := a.newPublisher()
	if err != nil {
		return a.fail("init lookup events", err)
	}
	if pub != nil {
		defer func() {
			if err := pub.Close(); err != nil {
				a.log.Warn("close lookup events", "err", err)
			}
		}()
		deps.Events = pub
	}

	err = server.Run(ctx, a.cfg, a.log, server.Options{
		Handler: router.New(deps),
		Ready:   ready,
		Metrics: metricsHandler,
	})
	if err != nil {
		return a.fail("server", err)
	}
	a.log.Info("shutdown complete")
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
