package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ikayroni/weather-api/internal/cache"
	"github.com/ikayroni/weather-api/internal/client"
	"github.com/ikayroni/weather-api/internal/config"
	"github.com/ikayroni/weather-api/internal/history"
	httphandler "github.com/ikayroni/weather-api/internal/http"
	"github.com/ikayroni/weather-api/internal/observability"
	"github.com/ikayroni/weather-api/internal/ratelimit"
	"github.com/ikayroni/weather-api/internal/service"
)

func main() {
	logger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}

	weatherClient, err := client.NewOpenWeatherClient(cfg.WeatherAPIKey, cfg.WeatherAPIURL, cfg.WeatherAPITimeout)
	if err != nil {
		logger.Fatal("weather client", zap.Error(err))
	}

	var cacheSvc cache.Cache
	var memcacheCloser *cache.MemcachedCache
	var counter ratelimit.Counter
	switch cfg.CacheBackend {
	case "memcached":
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddrs, cfg.MemcachedTimeout, cfg.MemcachedMaxIdleConns)
		if err != nil {
			logger.Fatal("memcached cache", zap.Error(err))
		}
		memcacheCloser = mc
		cacheSvc = mc
		// Rate-limit counters share the cache's connection pool so limits
		// hold across instances pointed at the same memcached.
		counter = ratelimit.NewMemcachedCounter(mc.Client())
		logger.Info("cache backend: memcached", zap.String("addrs", cfg.MemcachedAddrs))
	default:
		cacheSvc = cache.NewInMemoryCache()
		counter = ratelimit.NewInMemoryCounter()
		logger.Info("cache backend: in_memory")
	}

	limiter := ratelimit.New(counter, ratelimit.Config{
		Window:             cfg.RateLimitWindow,
		AnonymousLimit:     uint64(cfg.AnonymousLimit),
		AuthenticatedLimit: uint64(cfg.AuthenticatedLimit),
	}, logger)

	var historyStore history.Store
	var recorder *history.Recorder
	var pruner *history.Pruner
	var historySink service.HistorySink
	if cfg.HistoryEnabled {
		store, err := history.OpenSQLite(cfg.HistoryPath)
		if err != nil {
			logger.Fatal("history store", zap.Error(err))
		}
		historyStore = store
		recorder = history.NewRecorder(store, cfg.HistoryQueueSize, logger)
		historySink = recorder
		pruner = history.NewPruner(store, cfg.HistoryKeep, cfg.HistoryPruneInterval, logger)
		if err := pruner.Start(); err != nil {
			logger.Fatal("history pruner", zap.Error(err))
		}
		logger.Info("history enabled", zap.String("path", cfg.HistoryPath), zap.Int("keep", cfg.HistoryKeep))
	} else {
		logger.Info("history disabled")
	}

	weatherService := service.NewWeather(weatherClient, cacheSvc, limiter, historySink, cfg.CacheTTL)

	var cachePing func() error
	if memcacheCloser != nil {
		cachePing = memcacheCloser.Ping
	}
	handler := httphandler.NewHandler(weatherService, historyStore, weatherClient, logger, cachePing)

	var localLimiter *rate.Limiter
	if cfg.LocalRateLimitRPS > 0 {
		localLimiter = rate.NewLimiter(rate.Limit(cfg.LocalRateLimitRPS), cfg.LocalRateLimitBurst)
	}

	router := mux.NewRouter()
	router.Use(httphandler.CorrelationIDMiddleware(logger))
	router.Use(httphandler.MetricsMiddleware)
	router.HandleFunc("/api/v1/health/", handler.GetHealth).Methods("GET")
	router.Handle("/metrics", observability.MetricsHandler())
	weatherRouter := router.PathPrefix("/api/v1/weather").Subrouter()
	weatherRouter.Use(httphandler.LocalRateLimitMiddleware(localLimiter))
	weatherRouter.Use(httphandler.TimeoutMiddleware(cfg.RequestTimeout))
	weatherRouter.HandleFunc("/", handler.GetWeather).Methods("GET")
	weatherRouter.HandleFunc("/history/", handler.GetHistory).Methods("GET")

	srv := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", ":"+cfg.ServerPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	<-ctx.Done()
	stop()

	logger.Info("graceful shutdown triggered")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}

	inFlight := httphandler.InFlightCount()
	if inFlight > 0 {
		logger.Info("waiting for in-flight requests", zap.Int64("count", inFlight))
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := httphandler.WaitForInFlight(waitCtx, 50*time.Millisecond); err != nil {
			logger.Warn("in-flight requests not completed", zap.Error(err), zap.Int64("remaining", httphandler.InFlightCount()))
		}
		waitCancel()
	}

	// Drain queued history writes before closing the store.
	if recorder != nil {
		recorder.Close()
	}
	if pruner != nil {
		pruner.Stop()
	}
	if historyStore != nil {
		if err := historyStore.Close(); err != nil {
			logger.Error("history store close", zap.Error(err))
		}
	}

	if err := observability.FlushTelemetry(context.Background(), logger); err != nil {
		logger.Error("telemetry flush", zap.Error(err))
	}

	if memcacheCloser != nil {
		if err := memcacheCloser.Close(); err != nil {
			logger.Error("memcached close", zap.Error(err))
		}
	}
	logger.Info("shutdown complete")
}
