package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/ikayroni/weather-api/internal/client"
	"github.com/ikayroni/weather-api/internal/history"
	"github.com/ikayroni/weather-api/internal/models"
	"github.com/ikayroni/weather-api/internal/service"
)

type mockWeatherClient struct {
	weather     models.WeatherQuery
	err         error
	validateErr error
}

func (m *mockWeatherClient) FetchWeather(ctx context.Context, city, country string) (models.WeatherQuery, error) {
	return m.weather, m.err
}

func (m *mockWeatherClient) ValidateAPIKey(ctx context.Context) error {
	return m.validateErr
}

type mockCache struct {
	data map[string]models.WeatherQuery
	err  error
}

func (m *mockCache) Get(ctx context.Context, key string) (models.WeatherQuery, bool, error) {
	if m.err != nil {
		return models.WeatherQuery{}, false, m.err
	}
	val, ok := m.data[key]
	return val, ok, nil
}

func (m *mockCache) Set(ctx context.Context, key string, value models.WeatherQuery, ttl time.Duration) error {
	if m.err != nil {
		return m.err
	}
	if m.data == nil {
		m.data = make(map[string]models.WeatherQuery)
	}
	m.data[key] = value
	return nil
}

type mockLimiter struct {
	allow bool
}

func (m *mockLimiter) Allow(ctx context.Context, identity string, authenticated bool) bool {
	return m.allow
}

type mockHistoryStore struct {
	records []history.Record
	listErr error
}

func (m *mockHistoryStore) Insert(ctx context.Context, rec history.Record) error { return nil }
func (m *mockHistoryStore) List(ctx context.Context, limit int) ([]history.Record, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if limit > len(m.records) {
		limit = len(m.records)
	}
	return m.records[:limit], nil
}
func (m *mockHistoryStore) Prune(ctx context.Context, keep int) (int64, error) { return 0, nil }
func (m *mockHistoryStore) Close() error                                       { return nil }

func newTestHandler(mc *mockWeatherClient, cacheSvc *mockCache, limiter service.RateLimiter, store history.Store) *Handler {
	svc := service.NewWeather(mc, cacheSvc, limiter, nil, 10*time.Minute)
	return NewHandler(svc, store, mc, zap.NewNop(), nil)
}

func sampleWeather() models.WeatherQuery {
	return models.WeatherQuery{
		City:        "São Paulo",
		Country:     "BR",
		Temperature: 25.5,
		FeelsLike:   27.2,
		Humidity:    65,
		Description: "few clouds",
		QueriedAt:   time.Now().UTC(),
	}
}

func doWeatherRequest(t *testing.T, h *Handler, url string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest("GET", url, nil)
	req.RemoteAddr = "1.2.3.4:5678"
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.GetWeather(w, req)
	return w
}

func TestGetWeather_Success(t *testing.T) {
	h := newTestHandler(&mockWeatherClient{weather: sampleWeather()}, &mockCache{}, nil, nil)

	w := doWeatherRequest(t, h, "/api/v1/weather/?city=S%C3%A3o%20Paulo&country=BR", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}

	var got models.WeatherQuery
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.City != "São Paulo" || got.Country != "BR" {
		t.Errorf("response = %+v", got)
	}
	if got.Temperature != 25.5 || got.FeelsLike != 27.2 || got.Humidity != 65 {
		t.Errorf("weather fields = %+v", got)
	}
	if got.Cached {
		t.Error("first response should have cached=false")
	}
}

func TestGetWeather_RepeatIsCached(t *testing.T) {
	h := newTestHandler(&mockWeatherClient{weather: sampleWeather()}, &mockCache{}, nil, nil)

	first := doWeatherRequest(t, h, "/api/v1/weather/?city=S%C3%A3o%20Paulo&country=BR", nil)
	if first.Code != http.StatusOK {
		t.Fatalf("first status = %d", first.Code)
	}
	second := doWeatherRequest(t, h, "/api/v1/weather/?city=S%C3%A3o%20Paulo&country=BR", nil)
	if second.Code != http.StatusOK {
		t.Fatalf("second status = %d", second.Code)
	}

	var got models.WeatherQuery
	if err := json.Unmarshal(second.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !got.Cached {
		t.Error("immediate repeat should have cached=true")
	}
	if got.Temperature != 25.5 || got.Description != "few clouds" {
		t.Errorf("cached payload = %+v", got)
	}
}

func TestGetWeather_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name       string
		url        string
		clientErr  error
		wantStatus int
		wantCode   string
	}{
		{"missing city", "/api/v1/weather/", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad country", "/api/v1/weather/?city=Berlin&country=GER", nil, http.StatusBadRequest, "INVALID_INPUT"},
		{"not found", "/api/v1/weather/?city=Atlantis", client.ErrLocationNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"provider rate limited", "/api/v1/weather/?city=Berlin", client.ErrProviderRateLimited, http.StatusTooManyRequests, "PROVIDER_RATE_LIMITED"},
		{"provider auth", "/api/v1/weather/?city=Berlin", client.ErrInvalidAPIKey, http.StatusBadGateway, "PROVIDER_AUTH"},
		{"provider down", "/api/v1/weather/?city=Berlin", client.ErrProviderUnavailable, http.StatusServiceUnavailable, "PROVIDER_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(&mockWeatherClient{err: tt.clientErr}, &mockCache{}, nil, nil)
			w := doWeatherRequest(t, h, tt.url, nil)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
			var body struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal error body: %v", err)
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestGetWeather_RateLimited(t *testing.T) {
	h := newTestHandler(&mockWeatherClient{weather: sampleWeather()}, &mockCache{}, &mockLimiter{allow: false}, nil)

	w := doWeatherRequest(t, h, "/api/v1/weather/?city=Berlin", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", w.Code)
	}
}

func TestGetWeather_CacheOutageStillServes(t *testing.T) {
	cacheSvc := &mockCache{err: errors.New("connection refused")}
	h := newTestHandler(&mockWeatherClient{weather: sampleWeather()}, cacheSvc, nil, nil)

	w := doWeatherRequest(t, h, "/api/v1/weather/?city=Berlin&country=DE", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when cache is unreachable", w.Code)
	}
}

func TestGetHistory(t *testing.T) {
	store := &mockHistoryStore{}
	for i := 0; i < 20; i++ {
		store.records = append(store.records, history.Record{ID: int64(i + 1), City: "Berlin"})
	}
	h := newTestHandler(&mockWeatherClient{}, &mockCache{}, nil, store)

	tests := []struct {
		name      string
		url       string
		wantCount int
		wantCode  int
	}{
		{"default limit", "/api/v1/weather/history/", 10, http.StatusOK},
		{"explicit limit", "/api/v1/weather/history/?limit=5", 5, http.StatusOK},
		{"limit capped", "/api/v1/weather/history/?limit=500", 20, http.StatusOK},
		{"bad limit", "/api/v1/weather/history/?limit=abc", 0, http.StatusBadRequest},
		{"negative limit", "/api/v1/weather/history/?limit=-1", 0, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.url, nil)
			w := httptest.NewRecorder()
			h.GetHistory(w, req)
			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusOK {
				return
			}
			var body struct {
				Count   int              `json:"count"`
				Results []history.Record `json:"results"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal response: %v", err)
			}
			if body.Count != tt.wantCount || len(body.Results) != tt.wantCount {
				t.Errorf("count = %d (results %d), want %d", body.Count, len(body.Results), tt.wantCount)
			}
		})
	}
}

func TestGetHistory_Disabled(t *testing.T) {
	h := newTestHandler(&mockWeatherClient{}, &mockCache{}, nil, nil)

	req := httptest.NewRequest("GET", "/api/v1/weather/history/", nil)
	w := httptest.NewRecorder()
	h.GetHistory(w, req)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 when history is disabled", w.Code)
	}
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name        string
		validateErr error
		cachePing   func() error
		wantStatus  int
		wantState   string
	}{
		{"healthy", nil, func() error { return nil }, http.StatusOK, "healthy"},
		{"provider key invalid", errors.New("bad key"), nil, http.StatusServiceUnavailable, "degraded"},
		{"cache down still serving", nil, func() error { return errors.New("down") }, http.StatusOK, "healthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mc := &mockWeatherClient{validateErr: tt.validateErr}
			svc := service.NewWeather(mc, &mockCache{}, nil, nil, 10*time.Minute)
			h := NewHandler(svc, nil, mc, zap.NewNop(), tt.cachePing)

			req := httptest.NewRequest("GET", "/api/v1/health/", nil)
			w := httptest.NewRecorder()
			h.GetHealth(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body struct {
				Status string `json:"status"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("unmarshal response: %v", err)
			}
			if body.Status != tt.wantState {
				t.Errorf("state = %q, want %q", body.Status, tt.wantState)
			}
		})
	}
}

func TestClientIdentity(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "5.6.7.8:1234"

	id, authed := clientIdentity(req)
	if authed {
		t.Error("request without token should be anonymous")
	}
	if id != "ip:5.6.7.8" {
		t.Errorf("identity = %q, want ip:5.6.7.8", id)
	}

	req.Header.Set("X-API-Token", "abc123")
	id, authed = clientIdentity(req)
	if !authed {
		t.Error("request with token should be authenticated")
	}
	if id != "token:abc123" {
		t.Errorf("identity = %q, want token:abc123", id)
	}
}

func TestClientIP_XForwardedFor(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		want       string
	}{
		{"no proxy", "5.6.7.8:1234", "", "5.6.7.8"},
		{"single hop", "10.0.0.1:80", "1.2.3.4", "1.2.3.4"},
		{"multiple hops", "10.0.0.1:80", "1.2.3.4, 10.0.0.2, 10.0.0.3", "1.2.3.4"},
		{"hop with spaces", "10.0.0.1:80", "  1.2.3.4 , 10.0.0.2", "1.2.3.4"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if got := clientIP(req); got != tt.want {
				t.Errorf("clientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}
