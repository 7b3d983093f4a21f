package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/joelkehle/devfeasibility/internal/config"
	"github.com/joelkehle/devfeasibility/internal/draft"
	"github.com/joelkehle/devfeasibility/internal/extract"
	"github.com/joelkehle/devfeasibility/internal/feasibility"
	"github.com/joelkehle/devfeasibility/internal/httpapi"
	"github.com/joelkehle/devfeasibility/internal/render"
	"github.com/joelkehle/devfeasibility/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger, err := telemetry.NewLogger(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, "feasibility-server", cfg.OTLPEndpoint)
	if err != nil {
		logger.WithError(err).Fatal("tracing setup failed")
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdownTracing(sctx)
	}()

	rates := feasibility.DefaultRates()
	if cfg.RatesFile != "" {
		rates, err = feasibility.LoadRatesFile(cfg.RatesFile)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.RatesFile).Fatal("failed to load rate tables")
		}
	}
	logger.WithField("rates_version", rates.Version).Info("rate tables loaded")

	store, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	mgr := draft.NewManager(store, rates, draft.Config{TTL: cfg.DraftTTL, Logger: logger})
	go mgr.RunSweeper(ctx, cfg.SweepInterval)

	opts := httpapi.Options{
		PDF:    render.NewPDFRenderer(cfg.ChromePath, render.DefaultPrintOptions),
		Logger: logger,
	}
	if cfg.AnthropicAPIKey != "" {
		caller, err := extract.NewAnthropicCaller(cfg.AnthropicAPIKey)
		if err != nil {
			logger.WithError(err).Fatal("anthropic client setup failed")
		}
		opts.Extractor = extract.NewExtractor(caller, logger)
	} else {
		logger.Info("ANTHROPIC_API_KEY not set; model extraction disabled")
	}

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewServer(mgr, opts),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, scancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer scancel()
		_ = server.Shutdown(sctx)
	}()

	logger.WithFields(logrus.Fields{
		"addr":    server.Addr,
		"backend": cfg.StoreBackend,
	}).Info("feasibility-server listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("server stopped")
	}
}

func openStore(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (draft.Store, func()) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		ss, err := draft.NewSQLiteStore(cfg.DBPath)
		if err != nil {
			logger.WithError(err).WithField("path", cfg.DBPath).Fatal("failed to initialize sqlite store")
		}
		logger.WithField("path", cfg.DBPath).Info("using sqlite draft store")
		return ss, func() { _ = ss.Close() }
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		rs := draft.NewRedisStore(rdb, cfg.DraftTTL)
		if err := rs.Ping(ctx); err != nil {
			logger.WithError(err).WithField("addr", cfg.RedisAddress).Fatal("redis unreachable")
		}
		logger.WithField("addr", cfg.RedisAddress).Info("using redis draft store")
		return rs, func() { _ = rdb.Close() }
	default:
		logger.Info("using in-memory draft store")
		return draft.NewMemoryStore(), func() {}
	}
}
