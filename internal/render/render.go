// Package render draws parcel geometries onto a standalone Leaflet map page.
package render

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/core/observability"
)

//go:embed assets/map.html.tmpl assets/locate.js
var assets embed.FS

// LocateVersion tags the embedded locate control script.
const LocateVersion = "1"

const (
	DefaultZoom   = 17
	DefaultOutput = "map_with_geometry.html"
	mapID         = "parcel_map"
)

// ErrNoGeometry is returned when the first record has no ring to center on.
var ErrNoGeometry = errors.New("no geometry to center the map on")

// LatLng is a point in the axis order Leaflet expects.
type LatLng [2]float64

type TileLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Default     bool   `json:"default"`
}

var DefaultTileLayers = []TileLayer{
	{
		Name:        "OpenTopoMap",
		URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: "Map data © OpenStreetMap contributors",
		Default:     true,
	},
	{
		Name:        "Esri Satellite",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Esri",
	},
}

type Style struct {
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	FillOpacity float64 `json:"fillOpacity"`
}

var DefaultStyle = Style{Color: "blue", Weight: 2, FillOpacity: 0.3}

type Polygon struct {
	LatLngs []LatLng `json:"latlngs"`
	Popup   string   `json:"popup"`
	Style
}

type Map struct {
	Title    string
	Center   LatLng
	Zoom     int
	Tiles    []TileLayer
	Polygons []Polygon
}

type Options struct {
	Zoom  int
	Title string
	Tiles []TileLayer
	Style Style
}

type Renderer struct {
	opts     Options
	tmpl     *template.Template
	locateJS template.JS
}

func New(opts Options) (*Renderer, error) {
	if opts.Zoom <= 0 {
		opts.Zoom = DefaultZoom
	}
	if opts.Title == "" {
		opts.Title = "Flurstücke"
	}
	if len(opts.Tiles) == 0 {
		opts.Tiles = DefaultTileLayers
	}
	if opts.Style == (Style{}) {
		opts.Style = DefaultStyle
	}

	js, err := assets.ReadFile("assets/locate.js")
	if err != nil {
		return nil, fmt.Errorf("read locate control: %w", err)
	}
	tmpl, err := template.ParseFS(assets, "assets/map.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parse map template: %w", err)
	}
	return &Renderer{
		opts:     opts,
		tmpl:     tmpl,
		locateJS: template.JS(js), // #nosec G203 -- bundled asset
	}, nil
}

// Center averages lat and lon over the first ring of the first record.
func Center(records []model.Feature) (LatLng, error) {
	if len(records) == 0 || len(records[0].Geometry.Rings) == 0 {
		return LatLng{}, ErrNoGeometry
	}
	ring := records[0].Geometry.Rings[0]
	if len(ring) == 0 {
		return LatLng{}, ErrNoGeometry
	}
	var sumLat, sumLon float64
	for i, pt := range ring {
		if len(pt) < 2 {
			return LatLng{}, fmt.Errorf("ring point %d: want [lon, lat], got %v", i, pt)
		}
		sumLon += pt[0]
		sumLat += pt[1]
	}
	n := float64(len(ring))
	return LatLng{sumLat / n, sumLon / n}, nil
}

// SwapAxes turns a [lon, lat] ring into Leaflet [lat, lon] order.
func SwapAxes(ring [][]float64) ([]LatLng, error) {
	out := make([]LatLng, 0, len(ring))
	for i, pt := range ring {
		if len(pt) < 2 {
			return nil, fmt.Errorf("ring point %d: want [lon, lat], got %v", i, pt)
		}
		out = append(out, LatLng{pt[1], pt[0]})
	}
	return out, nil
}

// Build lays out the map for records. Every ring becomes its own polygon;
// holes are not cut out.
func (r *Renderer) Build(records []model.Feature) (*Map, error) {
	center, err := Center(records)
	if err != nil {
		return nil, err
	}
	m := &Map{
		Title:  r.opts.Title,
		Center: center,
		Zoom:   r.opts.Zoom,
		Tiles:  r.opts.Tiles,
	}
	for fi, f := range records {
		popup := Popup(f.Attributes)
		for ri, ring := range f.Geometry.Rings {
			latlngs, err := SwapAxes(ring)
			if err != nil {
				return nil, fmt.Errorf("record %d ring %d: %w", fi, ri, err)
			}
			m.Polygons = append(m.Polygons, Polygon{
				LatLngs: latlngs,
				Popup:   popup,
				Style:   r.opts.Style,
			})
		}
	}
	return m, nil
}

type page struct {
	ID            string
	Title         string
	Center        LatLng
	Zoom          int
	Tiles         []TileLayer
	Polygons      []Polygon
	LocateJS      template.JS
	LocateVersion string
}

func (r *Renderer) Write(w io.Writer, m *Map) error {
	p := page{
		ID:            mapID,
		Title:         m.Title,
		Center:        m.Center,
		Zoom:          m.Zoom,
		Tiles:         m.Tiles,
		Polygons:      m.Polygons,
		LocateJS:      r.locateJS,
		LocateVersion: LocateVersion,
	}
	if p.Polygons == nil {
		p.Polygons = []Polygon{}
	}
	if err := r.tmpl.ExecuteTemplate(w, "map.html.tmpl", p); err != nil {
		return fmt.Errorf("execute map template: %w", err)
	}
	return nil
}

// Render builds and writes the page for records in one go.
func (r *Renderer) Render(w io.Writer, records []model.Feature) (*Map, error) {
	m, err := r.Build(records)
	if err == nil {
		err = r.Write(w, m)
	}
	polys := 0
	if m != nil {
		polys = len(m.Polygons)
	}
	observability.ObserveRender(polys, err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RenderFile renders into memory first so a failed render leaves no file.
func (r *Renderer) RenderFile(path string, records []model.Feature) (*Map, error) {
	if path == "" {
		path = DefaultOutput
	}
	var buf bytes.Buffer
	m, err := r.Render(&buf, records)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil { // #nosec G306 -- public map page
		return nil, fmt.Errorf("write %s: %w", path, err)
	}
	return m, nil
}
