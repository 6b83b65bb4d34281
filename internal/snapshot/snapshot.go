// Package snapshot persists resolved parcel records so maps can be rendered
// without reaching the feature service.
package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
)

// ErrNotFound is returned when a named snapshot does not exist.
var ErrNotFound = errors.New("snapshot not found")

type Store interface {
	Load(ctx context.Context, name string) ([]model.Feature, error)
	Save(ctx context.Context, name string, records []model.Feature) error
}

// Decode reads a JSON array of features.
func Decode(r io.Reader) ([]model.Feature, error) {
	var recs []model.Feature
	if err := json.NewDecoder(r).Decode(&recs); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	return recs, nil
}

func Encode(w io.Writer, records []model.Feature) error {
	if records == nil {
		records = []model.Feature{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return nil
}

// FileStore keeps snapshots as JSON files; the name is a path relative to Dir.
type FileStore struct {
	Dir string
}

func (s FileStore) path(name string) string {
	if filepath.IsAbs(name) || s.Dir == "" {
		return name
	}
	return filepath.Join(s.Dir, name)
}

func (s FileStore) Load(_ context.Context, name string) ([]model.Feature, error) {
	f, err := os.Open(s.path(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

func (s FileStore) Save(_ context.Context, name string, records []model.Feature) error {
	p := s.path(name)
	if dir := filepath.Dir(p); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Encode(tmp, records); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}
