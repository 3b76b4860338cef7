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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/audiopcb/veritas/internal/api"
	"github.com/audiopcb/veritas/internal/config"
	"github.com/audiopcb/veritas/internal/engine"
	"github.com/audiopcb/veritas/internal/metrics"
	"github.com/audiopcb/veritas/internal/rules"
	"github.com/audiopcb/veritas/internal/services"
	"github.com/audiopcb/veritas/internal/store"
	"github.com/audiopcb/veritas/internal/tracker"
	"github.com/audiopcb/veritas/internal/utils"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting veritas-engine", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		logger.Error("failed to open store", slog.String("path", cfg.Storage.Path), slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	registry := rules.NewRegistry()
	if _, err := rules.LoadPack(cfg.Rules.Path, registry, logger); err != nil {
		logger.Error("failed to load rule pack", slog.Any("error", err))
		os.Exit(1)
	}

	trk := tracker.New(cfg.Tracker, db, metrics.NewSink(), logger)
	if err := trk.Restore(context.Background()); err != nil {
		logger.Error("failed to restore effectiveness state", slog.Any("error", err))
		os.Exit(1)
	}

	improver := engine.NewImprovementGenerator(cfg.Tracker, registry.Has, logger)
	optimizer := engine.NewOptimizer(logger)

	manager := services.NewValidationManager(logger, registry, trk, improver, optimizer, db, services.Options{
		SummaryTTL:   cfg.Cache.SummaryTTL,
		HistoryLimit: cfg.Optimizer.HistoryLimit,
	})
	if err := manager.RestoreHistory(context.Background()); err != nil {
		logger.Error("failed to restore optimization history", slog.Any("error", err))
		os.Exit(1)
	}

	handlers := api.NewHandlers(manager, logger)
	server := api.NewServer(cfg.Server, handlers, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("veritas-engine stopped")
}
