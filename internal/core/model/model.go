// Package model defines core domain types shared across the service.
package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Attribute names fixed by the ALKIS parcel layer schema.
const (
	AttrGemarkung       = "gemarkung_AX_Gemarkung_Schluess"
	AttrFlur            = "flurnummer"
	AttrFlurstueck      = "flurstuecksnummer_AX_Flurstueck"
	AttrNenner          = "flurstuecksnummer_AX_Flurstue_1"
	AttrAmtlicheFlaeche = "amtlicheFlaeche"
	AttrObjectID        = "OBJECTID"
)

// QueryKey identifies a parcel within a district. Nenner is nil when the
// parcel number carries no denominator.
type QueryKey struct {
	Gemarkung  int
	Flur       int
	Flurstueck int
	Nenner     *int
}

// String representation used for logs and event keys
func (k QueryKey) String() string {
	s := fmt.Sprintf("%d-%d-%d", k.Gemarkung, k.Flur, k.Flurstueck)
	if k.Nenner != nil {
		s += "/" + strconv.Itoa(*k.Nenner)
	}
	return s
}

func (k QueryKey) Validate() error {
	if k.Gemarkung <= 0 {
		return fmt.Errorf("gemarkung must be positive (got %d)", k.Gemarkung)
	}
	if k.Flur < 0 {
		return fmt.Errorf("flur must not be negative (got %d)", k.Flur)
	}
	if k.Flurstueck <= 0 {
		return fmt.Errorf("flurstueck must be positive (got %d)", k.Flurstueck)
	}
	if k.Nenner != nil && *k.Nenner < 0 {
		return fmt.Errorf("nenner must not be negative (got %d)", *k.Nenner)
	}
	return nil
}

type FeatureCollection struct {
	Features []Feature `json:"features"`
}

type Feature struct {
	Attributes Attributes `json:"attributes"`
	Geometry   Geometry   `json:"geometry"`
}

// Geometry holds esri polygon rings, each point as [lon, lat].
type Geometry struct {
	Rings [][][]float64 `json:"rings"`
}

// Attributes is the typed view on a feature's attribute map. Keys outside
// the known schema are kept in Extra and written back on marshal.
type Attributes struct {
	Gemarkung       FlexInt
	Flur            FlexInt
	Flurstueck      FlexInt
	Nenner          FlexInt
	AmtlicheFlaeche FlexFloat
	ObjectID        FlexInt
	Extra           map[string]json.RawMessage
}

// HasNenner reports whether the denominator is present and non-zero.
func (a Attributes) HasNenner() bool {
	return a.Nenner.Valid && a.Nenner.Value != 0
}

func (a *Attributes) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return fmt.Errorf("parse attributes: %w", err)
	}
	*a = Attributes{}
	ints := map[string]*FlexInt{
		AttrGemarkung:  &a.Gemarkung,
		AttrFlur:       &a.Flur,
		AttrFlurstueck: &a.Flurstueck,
		AttrNenner:     &a.Nenner,
		AttrObjectID:   &a.ObjectID,
	}
	for k, v := range raw {
		if dst, ok := ints[k]; ok {
			if err := dst.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("attribute %s: %w", k, err)
			}
			continue
		}
		if k == AttrAmtlicheFlaeche {
			if err := a.AmtlicheFlaeche.UnmarshalJSON(v); err != nil {
				return fmt.Errorf("attribute %s: %w", k, err)
			}
			continue
		}
		if a.Extra == nil {
			a.Extra = map[string]json.RawMessage{}
		}
		a.Extra[k] = v
	}
	return nil
}

func (a Attributes) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(a.Extra)+6)
	for k, v := range a.Extra {
		out[k] = v
	}
	out[AttrGemarkung] = a.Gemarkung
	out[AttrFlur] = a.Flur
	out[AttrFlurstueck] = a.Flurstueck
	out[AttrNenner] = a.Nenner
	out[AttrAmtlicheFlaeche] = a.AmtlicheFlaeche
	out[AttrObjectID] = a.ObjectID
	return json.Marshal(out)
}

// FlexInt accepts JSON numbers and numeric strings; null and "" decode as
// not valid.
type FlexInt struct {
	Value int64
	Valid bool
}

func Int(v int64) FlexInt { return FlexInt{Value: v, Valid: true} }

func (f FlexInt) String() string {
	if !f.Valid {
		return ""
	}
	return strconv.FormatInt(f.Value, 10)
}

func (f *FlexInt) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil {
		return err
	}
	if isNull {
		*f = FlexInt{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse int %q: %w", s, err)
	}
	if v != math.Trunc(v) || math.IsInf(v, 0) {
		return fmt.Errorf("parse int %q: not an integer", s)
	}
	*f = FlexInt{Value: int64(v), Valid: true}
	return nil
}

func (f FlexInt) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendInt(nil, f.Value, 10), nil
}

type FlexFloat struct {
	Value float64
	Valid bool
}

func Float(v float64) FlexFloat { return FlexFloat{Value: v, Valid: true} }

func (f *FlexFloat) UnmarshalJSON(b []byte) error {
	s, isNull, err := scalarText(b)
	if err != nil {
		return err
	}
	if isNull {
		*f = FlexFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("parse float %q: %w", s, err)
	}
	*f = FlexFloat{Value: v, Valid: true}
	return nil
}

func (f FlexFloat) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return strconv.AppendFloat(nil, f.Value, 'f', -1, 64), nil
}

// scalarText unwraps a JSON number or string into its text form
func scalarText(b []byte) (string, bool, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return "", true, nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return "", false, fmt.Errorf("parse string: %w", err)
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return "", true, nil
		}
		return s, false, nil
	}
	if b[0] == '{' || b[0] == '[' || b[0] == 't' || b[0] == 'f' {
		return "", false, fmt.Errorf("expected number or string, got %s", string(b))
	}
	return string(b), false, nil
}

// Cells is a sorted, de-duplicated list of H3 cell indexes.
type Cells []string
