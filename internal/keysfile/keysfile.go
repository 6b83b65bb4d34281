// Package keysfile reads the list of parcel keys for batch fetching.
//
// Example:
//
//	gemarkung: 6123        # default for entries without one
//	keys:
//	  - {flur: 4, flurstueck: 12}
//	  - {flur: 4, flurstueck: 13, nenner: 2}
//	  - {gemarkung: 6124, flur: 1, flurstueck: 7}
package keysfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

var ErrEmpty = errors.New("keys file lists no parcels")

type entry struct {
	Gemarkung  int  `yaml:"gemarkung"`
	Flur       int  `yaml:"flur"`
	Flurstueck int  `yaml:"flurstueck"`
	Nenner     *int `yaml:"nenner"`
}

type document struct {
	Gemarkung int     `yaml:"gemarkung"`
	Keys      []entry `yaml:"keys"`
}

// Load reads and validates the keys file at path.
func Load(path string) ([]model.QueryKey, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- operator supplied
	if err != nil {
		return nil, fmt.Errorf("read keys file: %w", err)
	}
	keys, err := Parse(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return keys, nil
}

// Parse decodes a keys document. Unknown fields are rejected so typos
// like "flurstück" fail loudly instead of producing a zero key.
func Parse(r io.Reader) ([]model.QueryKey, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("decode keys: %w", err)
	}
	if len(doc.Keys) == 0 {
		return nil, ErrEmpty
	}

	out := make([]model.QueryKey, 0, len(doc.Keys))
	for i, e := range doc.Keys {
		k := model.QueryKey{
			Gemarkung:  e.Gemarkung,
			Flur:       e.Flur,
			Flurstueck: e.Flurstueck,
			Nenner:     e.Nenner,
		}
		if k.Gemarkung == 0 {
			k.Gemarkung = doc.Gemarkung
		}
		if err := k.Validate(); err != nil {
			return nil, fmt.Errorf("keys[%d]: %w", i, err)
		}
		out = append(out, k)
	}
	return out, nil
}
