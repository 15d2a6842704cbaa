package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/cache"
	"github.com/ikayroni/weather-api/internal/client"
	"github.com/ikayroni/weather-api/internal/history"
	"github.com/ikayroni/weather-api/internal/models"
	"github.com/ikayroni/weather-api/internal/observability"
	"github.com/ikayroni/weather-api/internal/validation"
)

// ErrRateLimited is returned when the per-identity fixed-window limit is hit.
var ErrRateLimited = errors.New("rate limited")

// RateLimiter admits or denies a request for an identity.
type RateLimiter interface {
	Allow(ctx context.Context, identity string, authenticated bool) bool
}

// HistorySink receives lookup records fire-and-forget. Enqueue must not block.
type HistorySink interface {
	Enqueue(rec history.Record) bool
}

const (
	cityMinLength = 2
	cityMaxLength = 100
)

// ClientInfo identifies the caller of a lookup. Identity partitions rate
// windows (IP for anonymous clients, token for authenticated ones);
// IPAddress and UserAgent are captured into history.
type ClientInfo struct {
	Identity      string
	Authenticated bool
	IPAddress     string
	UserAgent     string
}

// Weather orchestrates lookups: admission, cache-aside read-through against
// the provider, best-effort cache write, async history. It holds no locks;
// correctness under concurrency comes from the cache and counter backends.
type Weather struct {
	client  client.WeatherClient
	cache   cache.Cache
	limiter RateLimiter
	history HistorySink
	ttl     time.Duration
}

// NewWeather creates the orchestrator. limiter and historySink may be nil to
// disable admission control or history recording.
func NewWeather(weatherClient client.WeatherClient, cacheSvc cache.Cache, limiter RateLimiter, historySink HistorySink, ttl time.Duration) *Weather {
	return &Weather{
		client:  weatherClient,
		cache:   cacheSvc,
		limiter: limiter,
		history: historySink,
		ttl:     ttl,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// Lookup runs the full query flow. On a cache hit the snapshot comes back
// with Cached=true and identical weather fields to the original fetch.
// Provider errors propagate unchanged; cache and history failures never fail
// the request.
func (s *Weather) Lookup(ctx context.Context, city, country string, info ClientInfo) (models.WeatherQuery, error) {
	city, err := validation.ValidateCity(city, cityMinLength, cityMaxLength)
	if err != nil {
		return models.WeatherQuery{}, err
	}
	country, err = validation.ValidateCountry(country)
	if err != nil {
		return models.WeatherQuery{}, err
	}

	if s.limiter != nil && !s.limiter.Allow(ctx, info.Identity, info.Authenticated) {
		return models.WeatherQuery{}, ErrRateLimited
	}

	key := cache.Key(city, country)
	start := time.Now()
	logger := loggerFromContext(ctx)

	cached, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		// A backend failure degrades to a miss: the lookup falls through to
		// the provider instead of failing the request.
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		if logger != nil {
			logger.Warn("cache get failed, treating as miss", zap.String("key", key), zap.Error(err))
		}
	} else if ok {
		observability.CacheHitsTotal.WithLabelValues("weather").Inc()
		observability.WeatherQueriesTotal.Inc()
		cached.Cached = true
		if logger != nil {
			logger.Debug("cache hit", zap.String("key", key))
			logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", true), zap.Duration("duration", time.Since(start)))
		}
		return cached, nil
	}

	if logger != nil {
		logger.Debug("cache miss, fetching provider", zap.String("key", key))
	}

	data, err := s.client.FetchWeather(ctx, city, country)
	if err != nil {
		return models.WeatherQuery{}, err
	}
	data.Cached = false

	if setErr := s.cache.Set(ctx, key, data, s.ttl); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		if logger != nil {
			logger.Warn("cache set failed", zap.String("key", key), zap.Error(setErr))
		}
	}

	if s.history != nil && info.IPAddress != "" {
		s.history.Enqueue(history.FromQuery(data, info.IPAddress, info.UserAgent))
	}

	observability.WeatherQueriesTotal.Inc()
	if logger != nil {
		logger.Debug("weather served", zap.String("key", key), zap.Bool("cached", false), zap.Duration("duration", time.Since(start)))
	}
	return data, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}
