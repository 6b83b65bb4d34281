package h3mapper

import (
	"errors"
	"fmt"
	"sort"

	h3 "github.com/uber/h3-go/v4"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

type Mapper struct{}

func New() *Mapper { return &Mapper{} }

func (m *Mapper) CellForPoint(lat, lon float64, res int) (string, error) {
	if err := validateRes(res); err != nil {
		return "", err
	}
	c, err := h3.LatLngToCell(h3.LatLng{Lat: lat, Lng: lon}, res)
	if err != nil {
		return "", fmt.Errorf("h3 cell: %w", err)
	}
	return c.String(), nil
}

// CellsForFeature covers every polygon of f: the first ring is the outer
// boundary, later rings are holes. Parcels smaller than one cell fall back
// to the cell containing the outer ring's vertex mean.
func (m *Mapper) CellsForFeature(f model.Feature, res int) (model.Cells, error) {
	if err := validateRes(res); err != nil {
		return nil, err
	}
	rings := f.Geometry.Rings
	if len(rings) == 0 {
		return nil, errors.New("feature has no rings")
	}
	outer := toLoop(rings[0])
	if len(outer) < 3 {
		return nil, errors.New("outer ring has < 3 distinct vertices")
	}
	var holes []h3.GeoLoop
	for i := 1; i < len(rings); i++ {
		h := toLoop(rings[i])
		if len(h) < 3 {
			return nil, fmt.Errorf("hole %d has < 3 distinct vertices", i-1)
		}
		holes = append(holes, h)
	}

	cells, err := polyfillOne(outer, holes, res)
	if err != nil {
		return nil, err
	}
	if len(cells) > 0 {
		return cells, nil
	}

	lat, lon := meanOf(outer)
	c, err := m.CellForPoint(lat, lon, res)
	if err != nil {
		return nil, err
	}
	return model.Cells{c}, nil
}

// --- helpers ---

func validateRes(res int) error {
	if res < 0 || res > 15 {
		return fmt.Errorf("invalid H3 resolution %d (must be 0..15)", res)
	}
	return nil
}

// Convert an esri ring [[lon,lat], ...] to an h3.GeoLoop (in degrees).
// If the ring is explicitly closed (last == first), drop the trailing duplicate.
func toLoop(coords [][]float64) h3.GeoLoop {
	loop := make(h3.GeoLoop, 0, len(coords))
	for _, xy := range coords {
		if len(xy) < 2 {
			continue
		}
		loop = append(loop, h3.LatLng{Lat: xy[1], Lng: xy[0]})
	}
	// drop duplicated closing vertex if present
	if len(loop) >= 2 {
		last := loop[len(loop)-1]
		first := loop[0]
		if last.Lat == first.Lat && last.Lng == first.Lng {
			loop = loop[:len(loop)-1]
		}
	}
	return loop
}

func meanOf(loop h3.GeoLoop) (float64, float64) {
	var lat, lon float64
	for _, p := range loop {
		lat += p.Lat
		lon += p.Lng
	}
	n := float64(len(loop))
	return lat / n, lon / n
}

// polyfillOne computes unique cells and returns them sorted for determinism.
func polyfillOne(outer h3.GeoLoop, holes []h3.GeoLoop, res int) (model.Cells, error) {
	poly := h3.GeoPolygon{
		GeoLoop: outer,
		Holes:   holes,
	}

	indexes, err := h3.PolygonToCells(poly, res)
	if err != nil {
		return nil, fmt.Errorf("h3 polyfill: %w", err)
	}

	out := make([]string, 0, len(indexes))
	seen := make(map[string]struct{}, len(indexes))
	for _, idx := range indexes {
		s := idx.String()
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}
