package ratelimit

import (
	"context"
	"time"
)

// Store counts requests per key within a fixed window. Implementations must
// be safe for concurrent use.
type Store interface {
	// Incr increments the counter for key, starting a new window with TTL
	// window if none is active, and returns the count after the increment.
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Config describes one limiter: at most Limit requests per key per Window.
type Config struct {
	Limit  int64         `env:"RATE_LIMIT_REQUESTS" envDefault:"120"`
	Window time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
}

// Limiter applies a fixed-window request limit per key.
type Limiter struct {
	store  Store
	limit  int64
	window time.Duration
}

// New creates a Limiter. Panics on nil store or non-positive settings to
// fail fast on misconfiguration.
func New(store Store, cfg Config) *Limiter {
	if store == nil {
		panic("ratelimit: store is required")
	}
	if cfg.Limit <= 0 || cfg.Window <= 0 {
		panic("ratelimit: limit and window must be positive")
	}
	return &Limiter{store: store, limit: cfg.Limit, window: cfg.Window}
}

// Allow reports whether another request for key fits in the current window.
// Store failures allow the request: rate limiting is protective, not an
// entitlement check, so it fails open.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	count, err := l.store.Incr(ctx, key, l.window)
	if err != nil {
		return true, err
	}
	return count <= l.limit, nil
}
