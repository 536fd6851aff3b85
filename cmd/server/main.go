package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mixaill76/byok_router/internal/config"
	"github.com/mixaill76/byok_router/internal/httputil"
	"github.com/mixaill76/byok_router/internal/logger"
	"github.com/mixaill76/byok_router/internal/monitoring"
	"github.com/mixaill76/byok_router/internal/provider"
	"github.com/mixaill76/byok_router/internal/proxy"
	"github.com/mixaill76/byok_router/internal/proxyauth"
	"github.com/mixaill76/byok_router/internal/router"
	"github.com/mixaill76/byok_router/internal/store/memory"
	"github.com/mixaill76/byok_router/internal/store/postgres"
	"github.com/mixaill76/byok_router/internal/usage"
	"github.com/mixaill76/byok_router/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Server.LoggingLevel, cfg.Server.LoggingFormat)
	log.Info("Starting byok_router",
		"logging_level", cfg.Server.LoggingLevel,
		"port", cfg.Server.Port,
	)
	config.PrintConfig(log, cfg)

	a, err := newApp(cfg, log)
	if err != nil {
		log.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           a.handler,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info("Server starting", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	a.shutdown(ctx)

	log.Info("Server shutdown complete")
}

// app holds everything with a lifecycle.
type app struct {
	handler    http.Handler
	pool       *postgres.Pool
	usageLog   *usage.Logger
	background *worker.Queue
	errorLog   *proxy.ErrorLog
	logger     *slog.Logger
}

// newApp wires stores, background workers, the router and the HTTP handler.
// Without a database URL the providers and proxy keys come from the config file.
func newApp(cfg *config.Config, log *slog.Logger) (*app, error) {
	a := &app{logger: log}
	metrics := monitoring.New(cfg.Monitoring.PrometheusEnabled)

	var (
		providers provider.Store
		keys      proxyauth.KeyStore
	)
	if cfg.Database.Enabled() {
		pool, err := postgres.NewPool(&postgres.Config{
			DatabaseURL:         cfg.Database.URL,
			MaxConns:            cfg.Database.MaxConns,
			MinConns:            cfg.Database.MinConns,
			HealthCheckInterval: cfg.Database.HealthCheckInterval,
			ConnectTimeout:      cfg.Database.ConnectTimeout,
			ApplySchema:         cfg.Database.ApplySchema,
			Logger:              log,
		})
		if err != nil {
			return nil, err
		}
		a.pool = pool
		providers = postgres.NewProviderStore(pool)
		keys = postgres.NewKeyStore(pool)
	} else {
		providers, keys = memoryStores(cfg)
		log.Info("Using in-memory stores",
			"providers", len(cfg.Providers),
			"proxy_keys", len(cfg.ProxyKeys),
		)
	}

	a.background = worker.NewQueue("background", worker.Config{
		Workers:    cfg.Background.Workers,
		QueueSize:  cfg.Background.QueueSize,
		JobTimeout: cfg.Background.JobTimeout,
		OnDrop:     metrics.DropCounter("background"),
	}, log)

	var recorder usage.Recorder = usage.Discard{}
	sink, err := usageSink(cfg.UsageLog.Sink, a.pool, log)
	if err != nil {
		a.shutdown(context.Background())
		return nil, err
	}
	if sink != nil {
		a.usageLog = usage.NewLogger(sink, usage.Config{
			QueueSize:     cfg.UsageLog.QueueSize,
			BatchSize:     cfg.UsageLog.BatchSize,
			FlushInterval: cfg.UsageLog.FlushInterval,
			OnDrop:        metrics.DropCounter("usage"),
		}, log)
		a.usageLog.Start()
		recorder = a.usageLog
	}

	auth, err := proxyauth.NewAuthenticator(keys, proxyauth.Config{
		KeyPrefix: cfg.Server.KeyPrefix,
		CacheSize: cfg.AuthCache.Size,
		CacheTTL:  cfg.AuthCache.TTL,
	}, a.background, log)
	if err != nil {
		a.shutdown(context.Background())
		return nil, err
	}

	client := httputil.NewHTTPClient(&httputil.HTTPClientConfig{
		MaxIdleConns:        cfg.Server.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.Server.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.Server.IdleConnTimeout,
	})
	rtr := router.New(
		&router.HTTPUpstream{Client: client},
		providers,
		recorder,
		a.background,
		metrics,
		router.Config{
			AttemptTimeout: cfg.Server.AttemptTimeout,
			Headers: router.HeaderConfig{
				AnthropicVersion: cfg.Server.AnthropicVersion,
				AnthropicBeta:    cfg.Server.AnthropicBeta,
			},
		},
		log,
	)

	deps := proxy.Deps{
		Auth:      auth,
		Providers: providers,
		Router:    rtr,
		Metrics:   metrics,
		Health: proxy.HealthSources{
			Background: a.background,
			AuthCache:  auth,
		},
	}
	if a.pool != nil {
		deps.Health.Database = a.pool
	}
	if a.usageLog != nil {
		deps.Health.UsageLog = a.usageLog
	}
	if cfg.RateLimit.Enabled {
		limiter, err := proxy.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, cfg.RateLimit.MaxClients)
		if err != nil {
			a.shutdown(context.Background())
			return nil, err
		}
		deps.Limiter = limiter
	}
	if cfg.Monitoring.LogErrors && cfg.Monitoring.ErrorsLogPath != "" {
		errorLog, err := proxy.OpenErrorLog(cfg.Monitoring.ErrorsLogPath)
		if err != nil {
			a.shutdown(context.Background())
			return nil, err
		}
		a.errorLog = errorLog
		deps.ErrorLog = errorLog
	}

	handler := proxy.New(deps, proxy.Config{
		MaxBodyBytes:       cfg.Server.MaxBodyBytes(),
		StreamChunkTimeout: cfg.Server.StreamChunkTimeout,
		HealthCheckPath:    cfg.Monitoring.HealthCheckPath,
		OpenAIErrors:       cfg.Server.ErrorEnvelope == config.EnvelopeOpenAI,
	}, log)

	mux := http.NewServeMux()
	mux.Handle("/", handler)
	if cfg.Monitoring.PrometheusEnabled {
		mux.Handle(cfg.Monitoring.MetricsPath, promhttp.Handler())
		log.Info("Prometheus metrics enabled", "path", cfg.Monitoring.MetricsPath)
	}
	a.handler = mux

	return a, nil
}

func memoryStores(cfg *config.Config) (*memory.ProviderStore, *memory.KeyStore) {
	providers := memory.NewProviderStore(nil)
	for _, pc := range cfg.Providers {
		providers.Put(pc.Provider())
	}
	keys := memory.NewKeyStore()
	for _, kc := range cfg.ProxyKeys {
		keys.Add(kc.ID, kc.UserID, kc.Key, cfg.Server.KeyPrefix)
	}
	return providers, keys
}

// usageSink picks where usage entries go. A nil sink disables usage logging.
func usageSink(kind string, pool *postgres.Pool, log *slog.Logger) (usage.Sink, error) {
	switch kind {
	case config.UsageSinkNone:
		return nil, nil
	case config.UsageSinkLog:
		return usage.SlogSink{Logger: log}, nil
	case config.UsageSinkDatabase:
		if pool == nil {
			return nil, errors.New("usage_log.sink is database but no database is configured")
		}
		return postgres.NewUsageSink(pool), nil
	default:
		if pool != nil {
			return postgres.NewUsageSink(pool), nil
		}
		return usage.SlogSink{Logger: log}, nil
	}
}

// shutdown drains background work, then releases the database. Each step is
// bounded by ctx.
func (a *app) shutdown(ctx context.Context) {
	start := time.Now()
	if a.background != nil {
		if err := a.background.Shutdown(ctx); err != nil {
			a.logger.Warn("Background queue did not drain", "error", err)
		}
	}
	if a.usageLog != nil {
		if err := a.usageLog.Shutdown(ctx); err != nil {
			a.logger.Warn("Usage logger did not drain", "error", err)
		}
	}
	if a.errorLog != nil {
		if err := a.errorLog.Close(); err != nil {
			a.logger.Warn("Failed to close error log", "error", err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	a.logger.Info("Background work drained", "duration", time.Since(start))
}
