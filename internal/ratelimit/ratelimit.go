package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/observability"
)

const keyPrefix = "ratelimit:"

// Counter is an atomically incremented counter with TTL, backed by the shared
// cache service. The first increment of a key initializes it at 1 with the
// given TTL; creation is idempotent under concurrent callers.
type Counter interface {
	Incr(ctx context.Context, key string, ttl time.Duration) (uint64, error)
}

// Config holds the fixed-window parameters.
type Config struct {
	Window             time.Duration
	AnonymousLimit     uint64
	AuthenticatedLimit uint64
}

// FixedWindowLimiter admits requests per identity using discrete,
// non-overlapping windows. All state lives in the Counter backend, so the
// limiter is correct across multiple service instances without local locks.
// A burst exactly at a window boundary can pass up to 2x the threshold
// across the boundary; that is an accepted property of fixed windows here,
// not something this implementation tries to smooth over.
type FixedWindowLimiter struct {
	counter Counter
	cfg     Config
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a FixedWindowLimiter. logger may be nil.
func New(counter Counter, cfg Config, logger *zap.Logger) *FixedWindowLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Hour
	}
	if cfg.AnonymousLimit == 0 {
		cfg.AnonymousLimit = 100
	}
	if cfg.AuthenticatedLimit == 0 {
		cfg.AuthenticatedLimit = 1000
	}
	return &FixedWindowLimiter{
		counter: counter,
		cfg:     cfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Allow reports whether a request from identity is admitted in the current
// window. Denial is a plain false, never an error; a counter backend failure
// fails open so the primary lookup path stays available.
func (l *FixedWindowLimiter) Allow(ctx context.Context, identity string, authenticated bool) bool {
	limit := l.cfg.AnonymousLimit
	clientLabel := "anonymous"
	if authenticated {
		limit = l.cfg.AuthenticatedLimit
		clientLabel = "authenticated"
	}

	windowIdx := l.now().Unix() / int64(l.cfg.Window.Seconds())
	key := fmt.Sprintf("%s%s:%d", keyPrefix, identity, windowIdx)

	count, err := l.counter.Incr(ctx, key, l.cfg.Window)
	if err != nil {
		observability.RateLimitBackendErrorsTotal.Inc()
		if l.logger != nil {
			l.logger.Warn("rate counter backend failed, admitting request",
				zap.String("identity", identity), zap.Error(err))
		}
		return true
	}

	if count > limit {
		observability.RateLimitDeniedTotal.WithLabelValues(clientLabel).Inc()
		return false
	}
	return true
}

// InMemoryCounter implements Counter with a map guarded by a mutex. Used for
// the in_memory backend and in tests. Expired windows are removed on access.
type InMemoryCounter struct {
	mu     sync.Mutex
	counts map[string]*windowCount
}

type windowCount struct {
	n         uint64
	expiresAt time.Time
}

// NewInMemoryCounter creates an empty in-memory counter.
func NewInMemoryCounter() *InMemoryCounter {
	return &InMemoryCounter{counts: make(map[string]*windowCount)}
}

// Incr implements Counter.
func (c *InMemoryCounter) Incr(ctx context.Context, key string, ttl time.Duration) (uint64, error) {
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	wc, ok := c.counts[key]
	if !ok || now.After(wc.expiresAt) {
		wc = &windowCount{expiresAt: now.Add(ttl)}
		c.counts[key] = wc
	}
	wc.n++
	return wc.n, nil
}
