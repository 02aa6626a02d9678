// Package idempotency provides the key->result cache used to collapse
// retried requests into a single side effect. Results live in a local
// ristretto tier and, when configured, a shared Redis tier with TTL.
// Idempotency is best-effort: an unreachable backing store degrades to
// always-compute and must never fail the request path.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

const keyPrefix = "idempotency:"

var keyPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateKey reports whether a client-supplied idempotency key is acceptable.
func ValidateKey(key string) bool {
	if len(key) < 1 || len(key) > 255 {
		return false
	}
	return keyPattern.MatchString(key)
}

// DeriveKey builds a deterministic idempotency key from request fields so
// that retried identical requests collapse to one send.
func DeriveKey(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// Config captures store construction parameters.
type Config struct {
	TTL         time.Duration
	NumCounters int64
	MaxCost     int64
	BufferItems int64
	Redis       redis.UniversalClient
}

// Store is the idempotency cache. All methods are safe for concurrent use.
type Store struct {
	ttl    time.Duration
	local  *ristretto.Cache
	redis  redis.UniversalClient
	group  singleflight.Group
	logger *slog.Logger
}

// New constructs a Store. The Redis client is optional; without it only the
// local tier applies.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 1e4
	}
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 1 << 26
	}
	if cfg.BufferItems <= 0 {
		cfg.BufferItems = 64
	}
	local, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{ttl: cfg.TTL, local: local, redis: cfg.Redis, logger: logger}, nil
}

// Get returns the stored result for key, if present and unexpired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool) {
	if v, ok := s.local.Get(key); ok {
		if b, ok := v.([]byte); ok {
			return b, true
		}
	}
	if s.redis != nil {
		b, err := s.redis.Get(ctx, keyPrefix+key).Bytes()
		if err == nil {
			s.local.SetWithTTL(key, b, int64(len(b)), s.ttl)
			return b, true
		}
		if err != redis.Nil {
			s.logger.Warn("idempotency redis get failed, treating as miss", "key", key, "error", err)
		}
	}
	return nil, false
}

// Set stores a computed result under key with a fresh expiry. Store
// failures are logged and swallowed.
func (s *Store) Set(ctx context.Context, key string, val []byte) {
	s.local.SetWithTTL(key, val, int64(len(val)), s.ttl)
	// Ristretto writes are buffered; wait so a subsequent Get sees the entry.
	s.local.Wait()
	if s.redis != nil {
		if err := s.redis.Set(ctx, keyPrefix+key, val, s.ttl).Err(); err != nil {
			s.logger.Warn("idempotency redis set failed", "key", key, "error", err)
		}
	}
}

// GetOrCompute returns the cached result for key, or invokes compute exactly
// once and stores its result. Concurrent callers with the same key are
// collapsed onto a single in-flight computation. The boolean reports whether
// the result came from cache.
func (s *Store) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, error)) ([]byte, bool, error) {
	if b, ok := s.Get(ctx, key); ok {
		return b, true, nil
	}

	type result struct {
		data   []byte
		cached bool
	}
	v, err, _ := s.group.Do(key, func() (any, error) {
		// Recheck under the single-flight lock so a caller that queued
		// behind a completed computation sees its stored result.
		if b, ok := s.Get(ctx, key); ok {
			return result{data: b, cached: true}, nil
		}
		b, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		s.Set(ctx, key, b)
		return result{data: b}, nil
	})
	if err != nil {
		return nil, false, err
	}
	r := v.(result)
	return r.data, r.cached, nil
}
