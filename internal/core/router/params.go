package router

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

// ParseQueryKey reads gemarkung, flur, flurstueck and the optional nenner
// from the query string.
func ParseQueryKey(r *http.Request) (model.QueryKey, error) {
	q := r.URL.Query()

	g, err := requiredInt(q.Get("gemarkung"), "gemarkung")
	if err != nil {
		return model.QueryKey{}, err
	}
	flur, err := requiredInt(q.Get("flur"), "flur")
	if err != nil {
		return model.QueryKey{}, err
	}
	n, err := requiredInt(q.Get("flurstueck"), "flurstueck")
	if err != nil {
		return model.QueryKey{}, err
	}
	k := model.QueryKey{Gemarkung: g, Flur: flur, Flurstueck: n}

	if raw := strings.TrimSpace(q.Get("nenner")); raw != "" {
		d, err := parseInt(raw)
		if err != nil {
			return model.QueryKey{}, fmt.Errorf("invalid nenner: %w", err)
		}
		k.Nenner = &d
	}
	if err := k.Validate(); err != nil {
		return model.QueryKey{}, err
	}
	return k, nil
}

func requiredInt(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("missing required parameter: %s", name)
	}
	v, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func parseInt(raw string) (int, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%q is not an integer", raw)
	}
	return v, nil
}

// parseRes reads an optional H3 resolution, falling back to def.
func parseRes(raw string, def int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	v, err := parseInt(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid res: %w", err)
	}
	if v < 0 || v > 15 {
		return 0, fmt.Errorf("res must be in [0,15] (got %d)", v)
	}
	return v, nil
}
