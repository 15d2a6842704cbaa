package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry

	// HTTP request rate. Watch for: sudden drops (service down) or spikes (traffic surge).
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTP request latency per request. Watch for: p95/p99 latency increases, SLO breaches.
	HTTPRequestDuration *prometheus.HistogramVec

	// Concurrent requests in flight. Watch for: saturation, capacity limits.
	HTTPRequestsInFlight prometheus.Gauge

	// OpenWeatherMap API call rate. Watch for: error vs success ratio.
	ProviderCallsTotal *prometheus.CounterVec

	// External API latency per request. Watch for: p95 > 2s (upstream degradation), p99 > 5s (timeout risk).
	ProviderCallDuration *prometheus.HistogramVec

	// Cache hits per cache type. Hit rate = hits/(hits+providerCallsTotal).
	CacheHitsTotal *prometheus.CounterVec

	// Cache backend errors by operation and category. Get errors degrade to provider calls.
	CacheErrorsTotal *prometheus.CounterVec

	// Total weather lookups served. Watch for: traffic volume, rate() for QPS.
	WeatherQueriesTotal prometheus.Counter

	// Per-identity fixed-window denials by client class (anonymous/authenticated).
	RateLimitDeniedTotal *prometheus.CounterVec

	// Fixed-window counter backend failures; the limiter fails open on these.
	RateLimitBackendErrorsTotal prometheus.Counter

	// Local token-bucket denials (server overload protection, 429).
	LocalRateLimitDeniedTotal prometheus.Counter

	// History records enqueued to the async recorder.
	HistoryEnqueuedTotal prometheus.Counter

	// History records dropped because the recorder queue was full.
	HistoryDroppedTotal prometheus.Counter

	// History insert failures in the async worker.
	HistoryWriteErrorsTotal prometheus.Counter

	// Rows removed by the periodic history prune job.
	HistoryPrunedTotal prometheus.Counter
)

func init() {
	registry = prometheus.NewRegistry()

	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "httpRequestsTotal",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "statusCode"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "httpRequestDurationSeconds",
			Help:    "HTTP request latency in seconds (per request)",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
	HTTPRequestsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "httpRequestsInFlight",
			Help: "Number of HTTP requests currently being served",
		},
	)
	ProviderCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "providerCallsTotal",
			Help: "Total number of OpenWeatherMap API calls",
		},
		[]string{"status"},
	)
	ProviderCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "providerCallDurationSeconds",
			Help:    "OpenWeatherMap API latency in seconds (per request)",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"status"},
	)
	CacheHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheHitsTotal",
			Help: "Total number of cache hits",
		},
		[]string{"cacheType"},
	)
	CacheErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cacheErrorsTotal",
			Help: "Cache backend errors by operation and category",
		},
		[]string{"operation", "category"},
	)
	WeatherQueriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "weatherQueriesTotal",
			Help: "Total number of weather lookups served",
		},
	)
	RateLimitDeniedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rateLimitDeniedTotal",
			Help: "Requests denied by the per-identity fixed-window limiter (429)",
		},
		[]string{"client"},
	)
	RateLimitBackendErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "rateLimitBackendErrorsTotal",
			Help: "Counter backend failures; limiter fails open on these",
		},
	)
	LocalRateLimitDeniedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "localRateLimitDeniedTotal",
			Help: "Requests denied by the process-local token bucket (429)",
		},
	)
	HistoryEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyEnqueuedTotal",
			Help: "History records handed to the async recorder",
		},
	)
	HistoryDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyDroppedTotal",
			Help: "History records dropped because the recorder queue was full",
		},
	)
	HistoryWriteErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyWriteErrorsTotal",
			Help: "History insert failures in the async worker",
		},
	)
	HistoryPrunedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "historyPrunedTotal",
			Help: "Rows removed by the periodic history prune job",
		},
	)

	registry.MustRegister(
		HTTPRequestsTotal, HTTPRequestDuration, HTTPRequestsInFlight,
		ProviderCallsTotal, ProviderCallDuration,
		CacheHitsTotal, CacheErrorsTotal,
		WeatherQueriesTotal,
		RateLimitDeniedTotal, RateLimitBackendErrorsTotal, LocalRateLimitDeniedTotal,
		HistoryEnqueuedTotal, HistoryDroppedTotal, HistoryWriteErrorsTotal, HistoryPrunedTotal,
	)
}

// MetricsHandler returns an http.Handler that serves application and runtime metrics.
func MetricsHandler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
