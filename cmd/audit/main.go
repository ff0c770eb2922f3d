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
	"github.com/grailsmarket/backend-sub002/internal/audit"
	"github.com/grailsmarket/backend-sub002/internal/config"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/messaging"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/providers/jetstream"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	envPath    = flag.String("env", "config/", "Path to environment files")
	status     = flag.String("status", "", "Only audit documents with this status (active or unlisted)")
	fix        = flag.Bool("fix", false, "Publish repair signals for discrepant entities")
)

func main() {
	flag.Parse()

	// Load configuration
	config.ChdirRepoRoot()
	cfg, err := config.LoadAuditConfig(*configFile, *envPath)
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
			"service": "audit",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Flush(2 * time.Second)

	// The audit is read-only, so it can run against a read replica when one
	// is configured
	db, err := gorm.Open(postgres.Open(cfg.Database.ReadDSN()), &gorm.Config{})
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

	// Repair signals are only published with -fix
	var publisher messaging.Publisher
	if *fix {
		publisher, err = jetstream.NewPublisher(jetstream.Config{
			URL:            cfg.NATS.URL,
			StreamName:     cfg.NATS.StreamName,
			MaxReconnects:  cfg.NATS.MaxReconnects,
			ReconnectWait:  cfg.NATS.ReconnectWait,
			ConnectionName: cfg.NATS.ConnectionName,
		}, adapter.NewNatsJetStream(), adapter.NewJSON())
		if err != nil {
			logger.FatalCtx(ctx, "Failed to connect to NATS", zap.Error(err))
		}
		defer publisher.Close()
	}

	var filter search.Filter
	if *status != "" {
		s := domain.DocumentStatus(*status)
		if s != domain.DocumentStatusActive && s != domain.DocumentStatusUnlisted {
			fmt.Fprintf(os.Stderr, "invalid status %q\n", *status)
			os.Exit(2)
		}
		filter.Status = &s
	}

	rates := pricing.NewFixed(cfg.Pricing.EthUSDRate)
	clock := adapter.NewClock()
	auditor := audit.NewAuditor(dataStore, index, rates, clock, publisher, cfg.Pricing.InitialPremiumUSD)

	discrepancies, err := auditor.Run(ctx, filter)
	if err != nil {
		logger.ErrorCtx(ctx, err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}

	for _, d := range discrepancies {
		logger.Info("Drift detected",
			zap.Uint64("entity_id", d.EntityID),
			zap.String("name", d.Name),
			zap.String("kind", string(d.Kind)),
			zap.String("indexed", d.Indexed),
			zap.String("expected", d.Expected))
	}

	if len(discrepancies) > 0 {
		logger.Info("Audit found drift", zap.Int("discrepancies", len(discrepancies)))
		if !*fix {
			os.Exit(1)
		}
	}
}
