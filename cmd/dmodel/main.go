package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/dmodel/internal/config"
	"github.com/kailas-cloud/dmodel/internal/db"
	dbMemory "github.com/kailas-cloud/dmodel/internal/db/memory"
	dbRedis "github.com/kailas-cloud/dmodel/internal/db/redis"
	logpkg "github.com/kailas-cloud/dmodel/internal/logger"
	"github.com/kailas-cloud/dmodel/internal/metrics"
	"github.com/kailas-cloud/dmodel/internal/repository/resultcache"
	"github.com/kailas-cloud/dmodel/internal/shard"
	"github.com/kailas-cloud/dmodel/internal/shard/pack"
	"github.com/kailas-cloud/dmodel/internal/shard/zim"
	chiTransport "github.com/kailas-cloud/dmodel/internal/transport/chi"
	engineuc "github.com/kailas-cloud/dmodel/internal/usecase/engine"
	healthuc "github.com/kailas-cloud/dmodel/internal/usecase/health"
	searchuc "github.com/kailas-cloud/dmodel/internal/usecase/search"
	"github.com/kailas-cloud/dmodel/internal/version"
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

	logger.Info("Starting dmodel content server",
		zap.String("version", version.String()),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("default_app_id", cfg.Engine.DefaultAppID),
		zap.String("data_dir", cfg.Engine.DataDir),
		zap.Int("domains", len(cfg.Domains)),
		zap.String("cache_driver", cfg.Cache.Driver),
	)

	// Register engine metrics explicitly (no init())
	metrics.RegisterEngineMetrics()

	ctx := context.Background()
	store, err := newCacheStore(ctx, cfg.Cache)
	if err != nil {
		logger.Fatal("Result cache not available", zap.Error(err))
	}

	// Pass nil interfaces (not typed nil pointers) when no cache is configured.
	var (
		queryCache  searchuc.Cache
		invalidator engineuc.CacheInvalidator
		cachePinger healthuc.CachePinger
	)
	if store != nil {
		defer store.Close()
		cache := resultcache.New(
			store, cfg.Cache.KeyPrefix, time.Duration(cfg.Cache.TTLSec)*time.Second,
			metrics.ResultCacheTotal, logger,
		)
		queryCache, invalidator, cachePinger = cache, cache, store
		logger.Info("Result cache ready", zap.String("driver", cfg.Cache.Driver))
	}

	domains := make(map[string]engineuc.DomainConfig, len(cfg.Domains))
	for appID, d := range cfg.Domains {
		domains[appID] = engineuc.DomainConfig{Path: d.Path, Shards: d.Shards}
	}

	opener := shard.NewOpener(pack.Format, zim.Format)
	searchSvc := searchuc.New(queryCache, logger)
	engine := engineuc.New(engineuc.Config{
		DefaultAppID:    cfg.Engine.DefaultAppID,
		DataDir:         cfg.Engine.DataDir,
		Domains:         domains,
		InitConcurrency: cfg.Engine.InitConcurrency,
	}, opener, searchSvc, invalidator, logger)

	// Open the default domain eagerly so content errors surface at start-up.
	if err := engine.Ready(ctx); err != nil {
		logger.Warn("Default domain not available", zap.Error(err))
	}

	healthSvc := healthuc.New(engine, cachePinger)
	server := chiTransport.NewServer(engine, healthSvc, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
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
	if err := engine.Close(shutdownCtx); err != nil {
		logger.Error("Error closing shards", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// newCacheStore creates the KV store behind the result cache. It returns nil
// when caching is disabled.
func newCacheStore(ctx context.Context, cfg config.CacheConfig) (db.Store, error) {
	var store db.Store
	switch cfg.Driver {
	case config.CacheNone:
		return nil, nil
	case config.CacheMemory:
		store = dbMemory.NewStore()
	case config.CacheRedis, config.CacheValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Addrs,
			Password: cfg.Password,
		})
		if err != nil {
			return nil, fmt.Errorf("create %s store: %w", cfg.Driver, err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown cache driver %q", cfg.Driver)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("%s not ready: %w", cfg.Driver, err)
	}
	return store, nil
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
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
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.ErrorCodeInternalError,
						Message: "internal error",
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
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			ctx := logpkg.ContextWithLogger(r.Context(), logger.With(zap.String("request_id", requestID)))
			ctx = logpkg.WithAppID(ctx, r.URL.Query().Get("app_id"))

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			logpkg.FromContext(ctx).Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
