package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/model"
	"github.com/mohammed-shakir/flurstueck-map/internal/storage/redisstore"
)

type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// RedisStore keeps each snapshot as one JSON value under Key(name).
type RedisStore struct {
	kv     KV
	ttl    time.Duration
	logger *slog.Logger
}

// NewRedisStore creates the store; ttl <= 0 keeps snapshots forever.
func NewRedisStore(kv KV, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStore{kv: kv, ttl: ttl, logger: logger}
}

func (s *RedisStore) Load(ctx context.Context, name string) ([]model.Feature, error) {
	b, err := s.kv.Get(ctx, Key(name))
	if errors.Is(err, redisstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	return Decode(bytes.NewReader(b))
}

func (s *RedisStore) Save(ctx context.Context, name string, records []model.Feature) error {
	var buf bytes.Buffer
	if err := Encode(&buf, records); err != nil {
		return err
	}
	if err := s.kv.Set(ctx, Key(name), buf.Bytes(), s.ttl); err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	if digest, err := Digest(records); err == nil {
		s.logger.Info("snapshot saved",
			"name", name,
			"records", len(records),
			"bytes", buf.Len(),
			"digest", digest)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, name string) error {
	if err := s.kv.Del(ctx, Key(name)); err != nil {
		return fmt.Errorf("delete snapshot %q: %w", name, err)
	}
	return nil
}
