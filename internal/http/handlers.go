package http

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/client"
	"github.com/ikayroni/weather-api/internal/history"
	"github.com/ikayroni/weather-api/internal/service"
	"github.com/ikayroni/weather-api/internal/validation"
)

const (
	historyDefaultLimit = 10
	historyMaxLimit     = 100
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	weatherService *service.Weather
	historyStore   history.Store
	client         client.WeatherClient
	logger         *zap.Logger
	// cachePing, when set, is called by the health handler to check cache
	// reachability. Set when the backend is memcached.
	cachePing func() error
}

// NewHandler returns a new Handler. historyStore and cachePing may be nil.
func NewHandler(
	weatherService *service.Weather,
	historyStore history.Store,
	weatherClient client.WeatherClient,
	logger *zap.Logger,
	cachePing func() error,
) *Handler {
	return &Handler{
		weatherService: weatherService,
		historyStore:   historyStore,
		client:         weatherClient,
		logger:         logger,
		cachePing:      cachePing,
	}
}

// GetWeather handles GET /api/v1/weather/?city=<string>&country=<code>.
func (h *Handler) GetWeather(w http.ResponseWriter, r *http.Request) {
	city := r.URL.Query().Get("city")
	country := r.URL.Query().Get("country")

	identity, authenticated := clientIdentity(r)
	info := service.ClientInfo{
		Identity:      identity,
		Authenticated: authenticated,
		IPAddress:     clientIP(r),
		UserAgent:     r.UserAgent(),
	}

	result, err := h.weatherService.Lookup(r.Context(), city, country, info)
	if err != nil {
		writeLookupError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// GetHistory handles GET /api/v1/weather/history/?limit=<int>.
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.historyStore == nil {
		writeError(w, r, http.StatusNotFound, "HISTORY_DISABLED", "history recording is not enabled")
		return
	}

	limit := historyDefaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "limit must be a positive integer")
			return
		}
		limit = n
	}
	if limit > historyMaxLimit {
		limit = historyMaxLimit
	}

	records, err := h.historyStore.List(r.Context(), limit)
	if err != nil {
		if logger := loggerFrom(r); logger != nil {
			logger.Error("history list failed", zap.Error(err))
		}
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "unable to read query history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(records),
		"results": records,
	})
}

// GetHealth handles GET /api/v1/health/. Liveness plus reachability of the
// cache backend and the provider credential.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	statusCode := http.StatusOK
	checks := make(map[string]string)

	if err := h.client.ValidateAPIKey(r.Context()); err != nil {
		checks["provider"] = "unhealthy"
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["provider"] = "healthy"
	}

	if h.cachePing != nil {
		if h.cachePing() == nil {
			checks["cache"] = "healthy"
		} else {
			// Cache outage degrades to provider-only mode; still serving.
			checks["cache"] = "unhealthy"
		}
	}

	writeJSON(w, statusCode, map[string]interface{}{
		"status":    status,
		"service":   "weather-api",
		"checks":    checks,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// clientIdentity derives the rate-limit identity for the request. A non-empty
// X-API-Token maps to an authenticated identity keyed by the token; otherwise
// the client IP is the anonymous identity.
func clientIdentity(r *http.Request) (string, bool) {
	if token := strings.TrimSpace(r.Header.Get("X-API-Token")); token != "" {
		return "token:" + token, true
	}
	return "ip:" + clientIP(r), false
}

// clientIP returns the first X-Forwarded-For hop when present (proxy setups),
// else the transport peer address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// writeJSON writes a JSON response with the specified HTTP status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes an error response in the standard error format with code,
// message, and requestId (correlation ID) if available in request context.
func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	corrID := ""
	if v := r.Context().Value("correlation_id"); v != nil {
		corrID, _ = v.(string)
	}
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]string{
			"code":      code,
			"message":   message,
			"requestId": corrID,
		},
	})
}

// writeLookupError maps orchestrator errors to HTTP statuses. Validation and
// admission failures are client errors; provider failures surface with the
// status that matches their kind.
func writeLookupError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case isValidationError(err):
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", err.Error())
	case errors.Is(err, service.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests")
	case errors.Is(err, client.ErrLocationNotFound):
		writeError(w, r, http.StatusNotFound, "NOT_FOUND", "city not found")
	case errors.Is(err, client.ErrProviderRateLimited):
		writeError(w, r, http.StatusTooManyRequests, "PROVIDER_RATE_LIMITED", "weather provider is rate limiting requests")
	case errors.Is(err, client.ErrInvalidAPIKey):
		writeError(w, r, http.StatusBadGateway, "PROVIDER_AUTH", "weather provider rejected our credentials")
	case errors.Is(err, client.ErrProviderUnavailable):
		writeError(w, r, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE", "unable to fetch weather data")
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL", "internal error")
	}
	if logger := loggerFrom(r); logger != nil {
		logger.Debug("lookup error", zap.Error(err))
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, validation.ErrCityEmpty) ||
		errors.Is(err, validation.ErrCityTooShort) ||
		errors.Is(err, validation.ErrCityTooLong) ||
		errors.Is(err, validation.ErrCityInvalidChars) ||
		errors.Is(err, validation.ErrInvalidCountry)
}

func loggerFrom(r *http.Request) *zap.Logger {
	if logger, ok := r.Context().Value("logger").(*zap.Logger); ok {
		return logger
	}
	return nil
}
