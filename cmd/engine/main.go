// Package main provides the entry point for the strategy engine
// daemon: the backtest API, the session manager, and the monitor that
// drives live paper sessions.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/vectorquant/strategy-engine/internal/api"
	"github.com/vectorquant/strategy-engine/internal/backtest"
	"github.com/vectorquant/strategy-engine/internal/collab"
	"github.com/vectorquant/strategy-engine/internal/config"
	"github.com/vectorquant/strategy-engine/internal/session"
	"github.com/vectorquant/strategy-engine/internal/workers"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		// No logger yet.
		panic(err)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := setupLogger(cfg.Log.Level)
	defer logger.Sync()

	logger.Info("starting strategy engine",
		zap.String("addr", cfg.Server.Addr()),
		zap.Duration("pollInterval", cfg.Monitor.PollInterval),
		zap.Int("liveOwners", len(cfg.Session.LiveOwners)),
	)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	sessionMetrics := session.NewMetrics(registry)

	// Worker pool for parallel backtests
	poolConfig := workers.DefaultPoolConfig("backtest")
	if cfg.Workers.NumWorkers > 0 {
		poolConfig.NumWorkers = cfg.Workers.NumWorkers
	}
	poolConfig.QueueSize = cfg.Workers.QueueSize
	pool := workers.NewPool(logger, poolConfig)
	pool.Start()

	runner := backtest.NewRunner(logger, pool)

	// Collaborators
	persistence := collab.NewMemoryPersistence()
	market := collab.NewSyntheticFeed(cfg.Session.SyntheticSeed)
	entitlements := collab.NewStaticEntitlements(cfg.Session.LiveOwners)

	// WebSocket hub and notification chain
	hub := api.NewHub(logger)
	go hub.Run()
	notifier := api.NewHubNotifier(hub, collab.NewLogNotifier(logger))

	// Sessions
	store := session.NewMemoryStore()
	manager := session.NewManager(logger, store, persistence, notifier, entitlements, sessionMetrics)
	monitor := session.NewMonitor(logger, manager, store, market, sessionMetrics, cfg.Monitor.PollInterval)
	monitor.Start()

	// HTTP surface
	server := api.NewServer(logger, cfg.Server, runner, manager, hub, registry)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error("server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("shutdown signal received")

	// Stop the monitor before the server so no tick races teardown.
	monitor.Stop()

	if err := pool.Stop(); err != nil {
		logger.Error("error stopping worker pool", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", zap.Error(err))
	}
	hub.Stop()

	logger.Info("strategy engine stopped")
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := config.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
