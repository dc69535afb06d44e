package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"github.com/xenking/trade-schemes/internal/domain/override"
)

const (
	defaultOverrideKeyPrefix = "schemes:overrides:"
	defaultOverrideTTL       = 12 * time.Hour
)

var _ override.Store = (*RedisOverrideStore)(nil)

// RedisOverrideStore keeps each session's overrides in one Redis hash keyed
// by scheme id, so several API instances share a ledger. Every write
// refreshes the session TTL.
type RedisOverrideStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOverrideOptions configures RedisOverrideStore. Zero values use defaults.
type RedisOverrideOptions struct {
	KeyPrefix string
	TTL       time.Duration
}

// NewRedisOverrideStore returns a store backed by client.
func NewRedisOverrideStore(client *redis.Client, opts RedisOverrideOptions) *RedisOverrideStore {
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = defaultOverrideKeyPrefix
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultOverrideTTL
	}
	return &RedisOverrideStore{client: client, prefix: opts.KeyPrefix, ttl: opts.TTL}
}

// NewRedisClient parses a redis:// URL and verifies the server responds.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return client, nil
}

func (s *RedisOverrideStore) key(sessionID string) string {
	return s.prefix + sessionID
}

func (s *RedisOverrideStore) Get(ctx context.Context, sessionID, schemeID string) (override.Override, bool, error) {
	raw, err := s.client.HGet(ctx, s.key(sessionID), schemeID).Bytes()
	if errors.Is(err, redis.Nil) {
		return override.Override{}, false, nil
	}
	if err != nil {
		return override.Override{}, false, fmt.Errorf("reading override %q: %w", schemeID, err)
	}
	var o override.Override
	if err := json.Unmarshal(raw, &o); err != nil {
		return override.Override{}, false, fmt.Errorf("decoding override %q: %w", schemeID, err)
	}
	return o, true, nil
}

func (s *RedisOverrideStore) Put(ctx context.Context, sessionID string, o override.Override) error {
	raw, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encoding override %q: %w", o.SchemeID, err)
	}
	key := s.key(sessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, o.SchemeID, raw)
		pipe.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing override %q: %w", o.SchemeID, err)
	}
	return nil
}

func (s *RedisOverrideStore) Delete(ctx context.Context, sessionID, schemeID string) error {
	if err := s.client.HDel(ctx, s.key(sessionID), schemeID).Err(); err != nil {
		return fmt.Errorf("deleting override %q: %w", schemeID, err)
	}
	return nil
}

func (s *RedisOverrideStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("clearing overrides: %w", err)
	}
	return nil
}

// Snapshot reads the whole hash in a single HGETALL, so the returned set is
// consistent for one evaluation.
func (s *RedisOverrideStore) Snapshot(ctx context.Context, sessionID string) (override.Set, error) {
	fields, err := s.client.HGetAll(ctx, s.key(sessionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("reading overrides: %w", err)
	}
	set := make(override.Set, len(fields))
	for schemeID, raw := range fields {
		var o override.Override
		if err := json.Unmarshal([]byte(raw), &o); err != nil {
			return nil, fmt.Errorf("decoding override %q: %w", schemeID, err)
		}
		set[schemeID] = o
	}
	return set, nil
}
