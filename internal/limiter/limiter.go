// Package limiter enforces per-caller rate limits on the workflow surface
// using local token buckets.
package limiter

import (
	"errors"
	"sync"

	"golang.org/x/time/rate"
)

// ErrRateLimited indicates the caller exceeded its request budget.
var ErrRateLimited = errors.New("rate limit exceeded")

// Config contains parameters for limiter construction.
type Config struct {
	Enabled           bool
	RequestsPerSecond float64
	Burst             int
}

// Limiter hands out one token bucket per caller key.
type Limiter struct {
	enabled bool
	rps     float64
	burst   int

	mu      sync.Mutex
	buckets map[string]*rate.Limiter
}

// New creates a Limiter from the supplied configuration.
func New(cfg Config) *Limiter {
	if !cfg.Enabled {
		return &Limiter{enabled: false}
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond * 2)
		if cfg.Burst < 1 {
			cfg.Burst = 1
		}
	}
	return &Limiter{
		enabled: true,
		rps:     cfg.RequestsPerSecond,
		burst:   cfg.Burst,
		buckets: make(map[string]*rate.Limiter),
	}
}

// Allow verifies whether the caller may perform the next request.
func (l *Limiter) Allow(key string) error {
	if !l.enabled || key == "" {
		return nil
	}
	l.mu.Lock()
	bucket := l.buckets[key]
	if bucket == nil {
		limit := rate.Inf
		if l.rps > 0 {
			limit = rate.Limit(l.rps)
		}
		bucket = rate.NewLimiter(limit, l.burst)
		l.buckets[key] = bucket
	}
	l.mu.Unlock()

	if !bucket.Allow() {
		return ErrRateLimited
	}
	return nil
}
