package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/miradorstack/mirador-reliability/internal/api"
	"github.com/miradorstack/mirador-reliability/internal/cache"
	"github.com/miradorstack/mirador-reliability/internal/config"
	"github.com/miradorstack/mirador-reliability/internal/engine"
	"github.com/miradorstack/mirador-reliability/internal/metrics"
	"github.com/miradorstack/mirador-reliability/internal/repo"
	"github.com/miradorstack/mirador-reliability/internal/services"
	"github.com/miradorstack/mirador-reliability/internal/settings"
	"github.com/miradorstack/mirador-reliability/internal/utils"
	"github.com/miradorstack/mirador-reliability/internal/workers"
)

func main() {
	var configPath, initSettings string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&initSettings, "init-settings", "", "Write a settings template for the given service id and exit")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	clk := clock.New()
	caches := cache.NewService(cacheConfig(cfg.Cache), clk, logger)

	store, err := settings.NewStore(cfg.Settings.Dir, caches.Settings, logger)
	if err != nil {
		logger.Error("failed to open settings store", slog.Any("error", err))
		os.Exit(1)
	}
	if initSettings != "" {
		if _, err := store.Save(context.Background(), settings.Template(initSettings)); err != nil {
			logger.Error("failed to write settings template", slog.String("service_id", initSettings), slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	logger.Info("starting mirador-reliability", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	var shared cache.Provider = cache.NoopProvider{}
	if cfg.Cache.Redis.Enabled {
		provider, err := cache.NewRedisProvider(cache.RedisConfig{
			Addr:         cfg.Cache.Redis.Addr,
			Username:     cfg.Cache.Redis.Username,
			Password:     cfg.Cache.Redis.Password,
			DB:           cfg.Cache.Redis.DB,
			KeyPrefix:    cfg.Cache.Redis.KeyPrefix,
			DialTimeout:  cfg.Cache.Redis.DialTimeout,
			ReadTimeout:  cfg.Cache.Redis.ReadTimeout,
			WriteTimeout: cfg.Cache.Redis.WriteTimeout,
			MaxRetries:   cfg.Cache.Redis.MaxRetries,
			TLS:          cfg.Cache.Redis.TLS,
		})
		if err != nil {
			logger.Warn("redis cache unavailable", slog.Any("error", err))
		} else {
			shared = provider
			defer provider.Close()
		}
	}

	analytics := repo.NewAnalyticsClient(repo.AnalyticsConfig{
		BaseURL: cfg.Analytics.BaseURL,
		APIKey:  cfg.Analytics.APIKey,
		Paths: repo.AnalyticsPaths{
			Views:            cfg.Analytics.Paths.Views,
			RegressionWindow: cfg.Analytics.Paths.RegressionWindow,
			Regression:       cfg.Analytics.Paths.Regression,
			Graph:            cfg.Analytics.Paths.Graph,
			Events:           cfg.Analytics.Paths.Events,
			Transactions:     cfg.Analytics.Paths.Transactions,
			Deployments:      cfg.Analytics.Paths.Deployments,
			Groups:           cfg.Analytics.Paths.Groups,
		},
		Timeout: cfg.Analytics.Timeout,
		Breaker: repo.BreakerConfig{
			MaxRequests:  cfg.Analytics.Breaker.MaxRequests,
			Interval:     cfg.Analytics.Breaker.Interval,
			Timeout:      cfg.Analytics.Breaker.Timeout,
			MinRequests:  cfg.Analytics.Breaker.MinRequests,
			FailureRatio: cfg.Analytics.Breaker.FailureRatio,
		},
		Cache:    shared,
		CacheTTL: cfg.Cache.Redis.ResponseTTL,
		GroupTTL: cfg.Analytics.GroupTTL,
		Logger:   logger,
	})

	deps := engine.Deps{
		Backend:  analytics,
		Caches:   caches,
		Settings: store,
		Pools:    workers.NewRegistry(cfg.Workers.PoolSize),
		Clock:    clk,
		Logger:   logger,
	}
	orchestrator := engine.NewOrchestrator(deps, engine.Config{
		TaskTimeout:  cfg.Workers.TaskTimeout,
		DefaultLimit: cfg.Workers.DefaultLimit,
	})
	reliabilityService := services.NewReliabilityService(logger, orchestrator, engine.NewGraphRunner(deps), store)

	server, err := api.NewServer(cfg.Server, reliabilityService)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := caches.Init(ctx); err != nil {
		logger.Error("failed to start cache janitor", slog.Any("error", err))
		os.Exit(1)
	}

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if err := caches.Shutdown(shutdownCtx); err != nil {
		logger.Warn("cache shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	logger.Info("mirador-reliability stopped", slog.Duration("p95_report_latency", reliabilityService.LatencyP95()))
}

func cacheConfig(c config.CacheConfig) cache.ServiceConfig {
	memo := func(m config.MemoConfig) cache.MemoConfig {
		return cache.MemoConfig{
			MaxEntries:   m.MaxEntries,
			WriteTTL:     m.WriteTTL,
			AccessTTL:    m.AccessTTL,
			RefreshAfter: m.RefreshAfter,
		}
	}
	return cache.ServiceConfig{
		Views:             memo(c.Views),
		Events:            memo(c.Events),
		Graphs:            memo(c.Graphs),
		Transactions:      memo(c.Transactions),
		RegressionWindows: memo(c.Windows),
		Reports:           memo(c.Reports),
		Settings:          memo(c.Settings),
		JanitorInterval:   c.JanitorInterval,
	}
}
