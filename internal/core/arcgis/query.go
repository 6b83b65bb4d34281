// Package arcgis builds FeatureServer query requests for the parcel layer.
package arcgis

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

// DefaultLayerURL is the public ALKIS parcel layer of Hesse.
const DefaultLayerURL = "https://services2.arcgis.com/jUpNdisbWqRpMo35/arcgis/rest/services/flstk_hessen/FeatureServer/0"

// spatial reference of returned geometries (WGS84 lon/lat)
const OutSR = "4326"

func QueryEndpoint(layerURL string) string {
	return strings.TrimRight(layerURL, "/") + "/query"
}

type predicate struct {
	field string
	value int
}

// Where renders the filter for a key. The denominator clause is only
// present when the key carries one. Flur is not part of the filter; callers
// post-filter on the flurnummer attribute.
func Where(k model.QueryKey) string {
	preds := []predicate{
		{field: model.AttrGemarkung, value: k.Gemarkung},
		{field: model.AttrFlurstueck, value: k.Flurstueck},
	}
	if k.Nenner != nil {
		preds = append(preds, predicate{field: model.AttrNenner, value: *k.Nenner})
	}
	parts := make([]string, 0, len(preds))
	for _, p := range preds {
		parts = append(parts, p.field+" = "+quote(strconv.Itoa(p.value)))
	}
	return strings.Join(parts, " AND ")
}

func BuildQueryParams(k model.QueryKey) url.Values {
	params := url.Values{}
	params.Set("where", Where(k))
	params.Set("outFields", "*")
	params.Set("outSR", OutSR)
	params.Set("f", "json")
	return params
}

// quote wraps a literal in single quotes, doubling embedded quotes
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
