package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/config"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/reconcile"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

var (
	configFile  = flag.String("config", "", "Path to configuration file")
	envPath     = flag.String("env", "config/", "Path to environment files")
	batchSize   = flag.Int("batch-size", 0, "Keyset page size (overrides config)")
	concurrency = flag.Int("concurrency", 0, "Parallel page writers (overrides config)")
	startCursor = flag.Uint64("cursor", 0, "Start after this entity id instead of the persisted cursor")
	resume      = flag.Bool("resume", true, "Resume from the persisted cursor of an interrupted run")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadReindexConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "reindex",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting full reconciliation")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

	// Initialize stores
	dataStore := store.NewPGStore(db)
	cursorStore := store.NewCursorStore(db)

	// Connect to the search index
	index, err := search.NewESIndex(ctx, search.Config{
		Addresses:      cfg.Search.Addresses,
		Username:       cfg.Search.Username,
		Password:       cfg.Search.Password,
		IndexName:      cfg.Search.IndexName,
		RequestTimeout: cfg.Search.RequestTimeout,
		ScrollPageSize: cfg.Search.ScrollPageSize,
	})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to search index", zap.Error(err))
	}

	// Cancel the run on interrupt; the reconciler persists its cursor after
	// every completed wave, so a later run resumes where this one stopped
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("Received shutdown signal, stopping after current wave", zap.String("signal", sig.String()))
		cancel()
	}()

	opts := reconcile.Options{
		BatchSize:   cfg.Reconcile.BatchSize,
		Concurrency: cfg.Reconcile.Concurrency,
		StartCursor: *startCursor,
		Resume:      *resume,
	}
	if *batchSize > 0 {
		opts.BatchSize = *batchSize
	}
	if *concurrency > 0 {
		opts.Concurrency = *concurrency
	}

	rates := pricing.NewFixed(cfg.Pricing.EthUSDRate)
	clock := adapter.NewClock()
	reconciler := reconcile.NewReconciler(dataStore, cursorStore, index, rates, clock, cfg.Pricing.InitialPremiumUSD)

	summary, err := reconciler.Run(ctx, opts)
	if err != nil {
		if summary != nil {
			logger.Info("Reconciliation interrupted",
				zap.Int("processed", summary.Processed),
				zap.Int("written", summary.Written),
				zap.Int("skipped", summary.Skipped),
				zap.Int("errored", summary.Errored),
				zap.Uint64("last_cursor", summary.LastCursor))
		}
		logger.ErrorCtx(ctx, err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}

	logger.Info("Reconciliation finished",
		zap.Int("processed", summary.Processed),
		zap.Int("written", summary.Written),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Duration("elapsed", summary.Elapsed))
}
