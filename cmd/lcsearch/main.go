package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/redis/rueidis"
	"go.uber.org/zap"

	"github.com/stellarlab/lcsearch/internal/config"
	"github.com/stellarlab/lcsearch/internal/lightcurve"
	logpkg "github.com/stellarlab/lcsearch/internal/logger"
	"github.com/stellarlab/lcsearch/internal/metrics"
	"github.com/stellarlab/lcsearch/internal/registry"
	catalogrepo "github.com/stellarlab/lcsearch/internal/repository/catalog"
	datasetrepo "github.com/stellarlab/lcsearch/internal/repository/dataset"
	"github.com/stellarlab/lcsearch/internal/resolver"
	chiTransport "github.com/stellarlab/lcsearch/internal/transport/chi"
	asmuc "github.com/stellarlab/lcsearch/internal/usecase/dataset"
	healthuc "github.com/stellarlab/lcsearch/internal/usecase/health"
	scheduleruc "github.com/stellarlab/lcsearch/internal/usecase/scheduler"
	searchuc "github.com/stellarlab/lcsearch/internal/usecase/search"
	"github.com/stellarlab/lcsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting lcsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("catalog", cfg.Catalog.Path),
	)

	ctx := context.Background()

	// Open the catalog and load every collection with its spatial index
	catalog, err := catalogrepo.Open(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("Failed to open catalog", zap.Error(err))
	}
	defer catalog.Close()
	if err := catalog.Ping(ctx); err != nil {
		logger.Fatal("Catalog not reachable", zap.Error(err))
	}

	reg, err := registry.Load(ctx, catalog, logger)
	if err != nil {
		logger.Fatal("Failed to load collections", zap.Error(err))
	}

	// Dataset store + artifact directory
	if err := os.MkdirAll(cfg.Datasets.Dir, 0o755); err != nil {
		logger.Fatal("Failed to create dataset directory", zap.Error(err))
	}
	store, err := datasetrepo.Open(cfg.Datasets.DBPath)
	if err != nil {
		logger.Fatal("Failed to open dataset store", zap.Error(err))
	}
	defer store.Close()

	// Register domain metrics explicitly (no init())
	metrics.RegisterSearchMetrics()

	// Name resolver, optionally cached in redis/valkey
	var nameResolver resolver.Resolver
	if cfg.Resolver.BaseURL != "" {
		client := resolver.NewClient(
			cfg.Resolver.BaseURL,
			time.Duration(cfg.Resolver.TimeoutSec)*time.Second,
			logger,
		)
		nameResolver = client

		if len(cfg.Resolver.CacheAddrs) > 0 {
			cache, err := rueidis.NewClient(rueidis.ClientOption{
				InitAddress: cfg.Resolver.CacheAddrs,
				Password:    cfg.Resolver.CachePass,
			})
			if err != nil {
				logger.Warn("Resolver cache unavailable, running uncached", zap.Error(err))
			} else {
				defer cache.Close()
				nameResolver = resolver.NewCached(client, cache, metrics.ResolverCacheTotal, logger)
				logger.Info("Resolver cache connected", zap.Strings("addrs", cfg.Resolver.CacheAddrs))
			}
		}
	}

	// Light-curve sources, one directory per collection
	var sources *lightcurve.Registry
	if cfg.Catalog.LightCurveDir != "" {
		sources = lightcurve.NewRegistry()
		for _, name := range reg.Names() {
			sources.Register(name, lightcurve.NewDirSource(filepath.Join(cfg.Catalog.LightCurveDir, name)))
		}
	}

	// Use case services
	searchSvc := searchuc.New(catalog, reg, nameResolver, logger)
	assembler := asmuc.NewAssembler(cfg.Datasets.Dir, sources, logger).
		WithPolicy(cfg.Datasets.PreviewRows, cfg.Datasets.BundleCeiling)

	sched, err := scheduleruc.New(store, searchSvc, assembler, cfg.Scheduler.Workers, logger)
	if err != nil {
		logger.Fatal("Failed to create scheduler", zap.Error(err))
	}
	defer sched.Close()
	sched.WithBudget(time.Duration(cfg.Scheduler.SyncBudgetSec) * time.Second)

	healthSvc := healthuc.New(catalog, store, cfg.Datasets.Dir)

	// Chi server
	server := chiTransport.NewServer(sched, store, reg, assembler, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.AuthMiddleware(cfg.Auth.APIKeys, cfg.Auth.SessionSecret))
	r.Use(chiTransport.RateLimitMiddleware(cfg.Auth.RateRPS, cfg.Auth.RateBurst))
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
