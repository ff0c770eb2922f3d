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
	"github.com/grailsmarket/backend-sub002/internal/providers/jetstream"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
	"github.com/grailsmarket/backend-sub002/internal/syncer"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadSyncdConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "syncd",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)
	logger.InfoCtx(ctx, "Starting sync daemon")

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	// Configure connection pool
	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}
	logger.InfoCtx(ctx, "Connected to database",
		zap.Int("max_open_conns", cfg.Database.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.Database.MaxIdleConns),
	)

	// Initialize store
	dataStore := store.NewPGStore(db)

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
	logger.InfoCtx(ctx, "Connected to search index", zap.String("index", cfg.Search.IndexName))

	// Subscribe to change signals
	subscriber, err := jetstream.NewSubscriber(jetstream.Config{
		URL:            cfg.NATS.URL,
		StreamName:     cfg.NATS.StreamName,
		ConsumerName:   cfg.NATS.ConsumerName,
		MaxReconnects:  cfg.NATS.MaxReconnects,
		ReconnectWait:  cfg.NATS.ReconnectWait,
		ConnectionName: cfg.NATS.ConnectionName,
		AckWait:        cfg.NATS.AckWait,
		MaxDeliver:     cfg.NATS.MaxDeliver,
	}, adapter.NewNatsJetStream(), adapter.NewJSON())
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
	}
	defer subscriber.Close()

	// Initialize sync engine
	rates := pricing.NewFixed(cfg.Pricing.EthUSDRate)
	clock := adapter.NewClock()
	engine := syncer.NewSyncer(dataStore, index, rates, clock, cfg.Pricing.InitialPremiumUSD)

	// Start consuming in a goroutine
	errChan := make(chan error, 1)
	go func() {
		if err := engine.Run(ctx, subscriber); err != nil && ctx.Err() == nil {
			errChan <- err
		}
	}()

	// Wait for interrupt signal or error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.InfoCtx(ctx, "Received shutdown signal", zap.String("signal", sig.String()))
	case err := <-errChan:
		logger.ErrorCtx(ctx, err)
	}

	cancel()
	logger.Info("Sync daemon stopped")
}
