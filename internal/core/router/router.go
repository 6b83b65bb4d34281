// Package router holds the HTTP handlers for parcel lookups and snapshots.
package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	mylog "github.com/mohammed-shakir/flurstueck-map/internal/logger"
	"github.com/mohammed-shakir/flurstueck-map/internal/lookupevents"
	"github.com/mohammed-shakir/flurstueck-map/internal/mapper"
	"github.com/mohammed-shakir/flurstueck-map/internal/render"
	"github.com/mohammed-shakir/flurstueck-map/internal/resolver"
	"github.com/mohammed-shakir/flurstueck-map/internal/snapshot"
)

type Resolver interface {
	Resolve(ctx context.Context, k model.QueryKey) (*model.Feature, error)
}

type SnapshotLoader interface {
	Load(ctx context.Context, name string) ([]model.Feature, error)
}

type Publisher interface {
	Publish(ev lookupevents.Event) bool
}

type Deps struct {
	Logger    *slog.Logger
	Resolver  Resolver
	Renderer  *render.Renderer
	Mapper    mapper.Interface
	H3Res     int
	Snapshots SnapshotLoader // optional
	Events    Publisher      // optional
}

type Handler struct {
	Deps
}

func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handler{Deps: d}
}

// Mount registers the parcel and snapshot routes on r.
func (h *Handler) Mount(r chi.Router) {
	r.Get("/parcel", h.HandleParcel)
	r.Get("/parcel/map", h.HandleParcelMap)
	r.Get("/parcel/cells", h.HandleParcelCells)
	r.Get("/snapshots/{name}", h.HandleSnapshot)
	r.Get("/snapshots/{name}/map", h.HandleSnapshotMap)
}

type parcelResponse struct {
	Key     string        `json:"key"`
	Feature model.Feature `json:"feature"`
	Center  render.LatLng `json:"center"`
	H3Cell  string        `json:"h3_cell,omitempty"`
}

type candidate struct {
	ObjectID   model.FlexInt `json:"object_id"`
	Flurstueck string        `json:"flurstueck"`
}

type errorResponse struct {
	Error      string      `json:"error"`
	Candidates []candidate `json:"candidates,omitempty"`
}

func (h *Handler) HandleParcel(w http.ResponseWriter, r *http.Request) {
	k, f, ok := h.resolve(w, r)
	if !ok {
		return
	}
	resp := parcelResponse{Key: k.String(), Feature: *f}
	resp.Center, resp.H3Cell = h.locate(f)
	h.publish(r.Context(), k, f, resp.Center, resp.H3Cell)
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleParcelMap(w http.ResponseWriter, r *http.Request) {
	k, f, ok := h.resolve(w, r)
	if !ok {
		return
	}
	if h.writeMap(w, r, []model.Feature{*f}) {
		c, cell := h.locate(f)
		h.publish(r.Context(), k, f, c, cell)
	}
}

func (h *Handler) HandleParcelCells(w http.ResponseWriter, r *http.Request) {
	res, err := parseRes(r.URL.Query().Get("res"), h.H3Res)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	k, f, ok := h.resolve(w, r)
	if !ok {
		return
	}
	cells, err := h.Mapper.CellsForFeature(*f, res)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"key":   k.String(),
		"res":   res,
		"cells": cells,
	})
}

func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	recs, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

func (h *Handler) HandleSnapshotMap(w http.ResponseWriter, r *http.Request) {
	recs, ok := h.loadSnapshot(w, r)
	if !ok {
		return
	}
	h.writeMap(w, r, recs)
}

// resolve parses the key, resolves it and writes the error response when
// there is no single feature to return.
func (h *Handler) resolve(w http.ResponseWriter, r *http.Request) (model.QueryKey, *model.Feature, bool) {
	k, err := ParseQueryKey(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return k, nil, false
	}
	ctx := mylog.WithParcel(r.Context(), k.String())

	f, err := h.Resolver.Resolve(ctx, k)
	var amb *resolver.AmbiguousError
	switch {
	case errors.As(err, &amb):
		resp := errorResponse{Error: amb.Error()}
		for _, c := range amb.Candidates {
			resp.Candidates = append(resp.Candidates, candidate{
				ObjectID:   c.Attributes.ObjectID,
				Flurstueck: render.ParcelLabel(c.Attributes),
			})
		}
		writeJSON(w, http.StatusConflict, resp)
		return k, nil, false
	case err != nil:
		h.Logger.ErrorContext(ctx, "resolve failed", "err", err)
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: "upstream query failed"})
		return k, nil, false
	case f == nil:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no parcel found for " + k.String()})
		return k, nil, false
	}
	return k, f, true
}

// locate returns the map center of f and its H3 cell, if computable
func (h *Handler) locate(f *model.Feature) (render.LatLng, string) {
	c, err := render.Center([]model.Feature{*f})
	if err != nil {
		return render.LatLng{}, ""
	}
	cell, err := h.Mapper.CellForPoint(c[0], c[1], h.H3Res)
	if err != nil {
		h.Logger.Debug("h3 cell failed", "err", err)
		return c, ""
	}
	return c, cell
}

func (h *Handler) loadSnapshot(w http.ResponseWriter, r *http.Request) ([]model.Feature, bool) {
	if h.Snapshots == nil {
		writeJSON(w, http.StatusNotImplemented, errorResponse{Error: "snapshot store not configured"})
		return nil, false
	}
	name := chi.URLParam(r, "name")
	recs, err := h.Snapshots.Load(r.Context(), name)
	switch {
	case errors.Is(err, snapshot.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "snapshot not found: " + name})
		return nil, false
	case err != nil:
		h.Logger.ErrorContext(r.Context(), "snapshot load failed", "name", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "snapshot load failed"})
		return nil, false
	}
	return recs, true
}

func (h *Handler) writeMap(w http.ResponseWriter, r *http.Request, recs []model.Feature) bool {
	var buf bytes.Buffer
	if _, err := h.Renderer.Render(&buf, recs); err != nil {
		if errors.Is(err, render.ErrNoGeometry) {
			writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: err.Error()})
			return false
		}
		h.Logger.ErrorContext(r.Context(), "render failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "render failed"})
		return false
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return true
}

func (h *Handler) publish(ctx context.Context, k model.QueryKey, f *model.Feature, c render.LatLng, cell string) {
	if h.Events == nil {
		return
	}
	queued := h.Events.Publish(lookupevents.ForFeature(k, *f, c[0], c[1], cell, "http"))
	if !queued {
		h.Logger.DebugContext(ctx, "lookup event not queued", "key", k.String())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
