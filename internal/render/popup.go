package render

import (
	"strconv"
	"strings"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

const sqmPerHectare = 10000

// ParcelLabel is "<n>" or "<n>/<d>" when a denominator is set.
func ParcelLabel(a model.Attributes) string {
	if a.HasNenner() {
		return a.Flurstueck.String() + "/" + a.Nenner.String()
	}
	return a.Flurstueck.String()
}

// Hectares formats square meters as hectares with the shortest exact
// decimal, e.g. 12345 -> "1.2345" and 10000 -> "1".
func Hectares(sqm float64) string {
	return strconv.FormatFloat(sqm/sqmPerHectare, 'f', -1, 64)
}

// Popup is the HTML shown when a parcel polygon is clicked. All values are
// numeric so nothing needs escaping.
func Popup(a model.Attributes) string {
	area := "n/a"
	if a.AmtlicheFlaeche.Valid {
		area = Hectares(a.AmtlicheFlaeche.Value)
	}
	var b strings.Builder
	b.WriteString("<p>Flur: ")
	b.WriteString(a.Flur.String())
	b.WriteString("<br>Flurstueck: ")
	b.WriteString(ParcelLabel(a))
	b.WriteString("<br>Flaeche: ")
	b.WriteString(area)
	b.WriteString(" ha</p>")
	return b.String()
}
