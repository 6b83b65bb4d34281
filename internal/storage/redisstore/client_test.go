package redisstore

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

// creates new client connected to miniredis for testing
func newMini(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	t.Cleanup(cancel)

	rc, err := New(ctx, mr.Addr())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rc.Close() })
	return rc, mr
}

func TestSetGetDel_HappyPath(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "k1", []byte("v1"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err := rc.Get(ctx, "k1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != "v1" {
		t.Fatalf("got %q", got)
	}
	if err := rc.Del(ctx, "k1"); err != nil {
		t.Fatalf("Del: %v", err)
	}
	if _, err := rc.Get(ctx, "k1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSet_TTLApplied(t *testing.T) {
	rc, mr := newMini(t)
	ctx := context.Background()

	if err := rc.Set(ctx, "ttl", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if ttl := mr.TTL("ttl"); ttl != time.Minute {
		t.Fatalf("ttl=%v want 1m", ttl)
	}
	mr.FastForward(2 * time.Minute)
	if _, err := rc.Get(ctx, "ttl"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestScan_MatchesPattern(t *testing.T) {
	rc, _ := newMini(t)
	ctx := context.Background()
	for _, k := range []string{"snap:a", "snap:b", "other"} {
		if err := rc.Set(ctx, k, []byte("x"), 0); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	got, err := rc.Scan(ctx, "snap:*")
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	sort.Strings(got)
	if len(got) != 2 || got[0] != "snap:a" || got[1] != "snap:b" {
		t.Fatalf("got %v", got)
	}
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty addr")
	}
}

func TestContextCanceled_IsRespected(t *testing.T) {
	rc, _ := newMini(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rc.Set(ctx, "k", []byte("v"), time.Second); err == nil {
		t.Fatal("expected error on Set with canceled context")
	}
}
