package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/config"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
	"github.com/grailsmarket/backend-sub002/internal/syncer"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	entityID   = flag.Uint64("id", 0, "Entity id to resync")
	entityName = flag.String("name", "", "Entity name to resync (alternative to -id)")
)

func main() {
	flag.Parse()

	if *entityID == 0 && *entityName == "" {
		fmt.Fprintln(os.Stderr, "either -id or -name is required")
		flag.Usage()
		os.Exit(2)
	}

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadResyncConfig(*configFile, *envPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	ctx := context.Background()

	// Initialize logger with sentry integration
	err = logger.Initialize(logger.Config{
		Debug:           cfg.Debug,
		SentryDSN:       cfg.SentryDSN,
		BreadcrumbLevel: zapcore.InfoLevel,
		Tags: map[string]string{
			"service": "resync",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN()), &gorm.Config{})
	if err != nil {
		logger.FatalCtx(ctx, "Failed to connect to database", zap.Error(err))
	}

	if err := store.ConfigureConnectionPool(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, cfg.Database.ConnMaxLifetime, cfg.Database.ConnMaxIdleTime); err != nil {
		logger.FatalCtx(ctx, "Failed to configure connection pool", zap.Error(err))
	}

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

	rates := pricing.NewFixed(cfg.Pricing.EthUSDRate)
	clock := adapter.NewClock()
	engine := syncer.NewSyncer(dataStore, index, rates, clock, cfg.Pricing.InitialPremiumUSD)

	if *entityID != 0 {
		err = engine.Resync(ctx, *entityID)
	} else {
		err = engine.ResyncByName(ctx, *entityName)
	}
	if err != nil {
		logger.ErrorCtx(ctx, err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}

	logger.Info("Resync complete",
		zap.Uint64("entity_id", *entityID),
		zap.String("name", *entityName))
}
