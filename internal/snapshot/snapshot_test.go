package snapshot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/storage/redisstore"
)

func sample() []model.Feature {
	return []model.Feature{{
		Attributes: model.Attributes{
			Flur:            model.Int(5),
			Flurstueck:      model.Int(7),
			AmtlicheFlaeche: model.Float(5000),
			ObjectID:        model.Int(11),
		},
		Geometry: model.Geometry{Rings: [][][]float64{{{8.0, 50.0}, {8.001, 50.0}, {8.0005, 50.001}}}},
	}}
}

func TestFileStore_RoundTrip(t *testing.T) {
	s := FileStore{Dir: t.TempDir()}
	ctx := context.Background()

	if err := s.Save(ctx, "sub/data.json", sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := s.Load(ctx, "sub/data.json")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
}

func TestFileStore_Missing(t *testing.T) {
	s := FileStore{Dir: t.TempDir()}
	if _, err := s.Load(context.Background(), "nope.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFileStore_AbsolutePathIgnoresDir(t *testing.T) {
	abs := filepath.Join(t.TempDir(), "abs.json")
	s := FileStore{Dir: "/does/not/matter"}
	if got := s.path(abs); got != abs {
		t.Fatalf("path=%q want %q", got, abs)
	}
}

func TestDecode_RejectsNonArray(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"features":[]}`)); err == nil {
		t.Fatal("expected error for object snapshot")
	}
}

func newRedis(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rc, err := redisstore.New(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("redisstore.New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisStore(rc, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil))), mr
}

func TestRedisStore_SaveLoadDelete(t *testing.T) {
	s, mr := newRedis(t)
	ctx := context.Background()

	if err := s.Save(ctx, "hof uebergabe", sample()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if ttl := mr.TTL(Key("hof uebergabe")); ttl != time.Hour {
		t.Fatalf("ttl=%v want 1h", ttl)
	}
	got, err := s.Load(ctx, "hof uebergabe")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(sample(), got); diff != "" {
		t.Fatalf("round trip (-want +got):\n%s", diff)
	}
	if err := s.Delete(ctx, "hof uebergabe"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Load(ctx, "hof uebergabe"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestKey_SanitizedAndDistinct(t *testing.T) {
	a := Key("Hofübergabe 2024")
	b := Key("Hof-bergabe 2024")
	if !strings.HasPrefix(a, "snap:Hof-bergabe_2024:") {
		t.Fatalf("key=%q", a)
	}
	if a == b {
		t.Fatalf("distinct names must not collide: %q", a)
	}
	if Key("x") != Key("x") {
		t.Fatal("key must be deterministic")
	}
	if long := Key(strings.Repeat("a", 500)); len(long) > len("snap:")+80+1+16 {
		t.Fatalf("key too long: %d", len(long))
	}
}

func TestDigest_ChangesWithContent(t *testing.T) {
	d1, err := Digest(sample())
	if err != nil {
		t.Fatalf("Digest: %v", err)
	}
	other := sample()
	other[0].Attributes.Flur = model.Int(6)
	d2, _ := Digest(other)
	if d1 == d2 || len(d1) != 16 {
		t.Fatalf("d1=%s d2=%s", d1, d2)
	}
}
