// Package mapper converts parcel geometries to H3 cells.
package mapper

import (
	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

type Interface interface {
	CellForPoint(lat, lon float64, res int) (string, error)
	CellsForFeature(f model.Feature, res int) (model.Cells, error)
}
