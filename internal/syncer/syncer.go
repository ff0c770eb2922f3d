package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/derive"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/messaging"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

// Syncer re-derives and rewrites the search document for one entity at a
// time, driven by change signals. All paths converge on Resync, so duplicate
// or stale signals only cost a redundant write of the same document.
type Syncer struct {
	store             store.Store
	index             search.Index
	rates             pricing.RateSource
	clock             adapter.Clock
	initialPremiumUSD float64
}

// NewSyncer creates a new incremental sync engine
func NewSyncer(s store.Store, index search.Index, rates pricing.RateSource, clock adapter.Clock, initialPremiumUSD float64) *Syncer {
	return &Syncer{
		store:             s,
		index:             index,
		rates:             rates,
		clock:             clock,
		initialPremiumUSD: initialPremiumUSD,
	}
}

// Resync rebuilds the search document for one entity from its authoritative
// view and upserts it. An entity that no longer exists in the database gets
// its document deleted instead, so removals propagate through the same path.
// The index write is retried with exponential backoff; transient index
// outages must not turn into dropped updates.
func (s *Syncer) Resync(ctx context.Context, entityID uint64) error {
	now := s.clock.Now()

	view, err := s.store.GetEntityView(ctx, entityID, now)
	if err != nil {
		return fmt.Errorf("failed to load entity view: %w", err)
	}

	if view == nil {
		if err := s.writeWithRetry(ctx, entityID, func(ctx context.Context) error {
			return s.index.Delete(ctx, entityID)
		}); err != nil {
			return fmt.Errorf("failed to delete document for removed entity: %w", err)
		}
		logger.InfoCtx(ctx, "Deleted document for removed entity", zap.Uint64("entity_id", entityID))
		return nil
	}

	if err := derive.ValidateView(view); err != nil {
		return err
	}

	rate, err := s.rates.EthUSD(ctx)
	if err != nil {
		return fmt.Errorf("failed to get ETH/USD rate: %w", err)
	}

	doc := derive.BuildDocument(view, now, s.initialPremiumUSD, rate.InexactFloat64())

	if err := s.writeWithRetry(ctx, entityID, func(ctx context.Context) error {
		return s.index.Upsert(ctx, entityID, doc)
	}); err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	logger.DebugCtx(ctx, "Resynced entity",
		zap.Uint64("entity_id", entityID),
		zap.String("name", view.Entity.Name),
		zap.String("status", string(doc.Status)))

	return nil
}

// ResyncByName resolves an entity by its unique name and resyncs it
func (s *Syncer) ResyncByName(ctx context.Context, name string) error {
	entity, err := s.store.GetEntityByName(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to look up entity by name: %w", err)
	}
	if entity == nil {
		return fmt.Errorf("%w: %s", domain.ErrEntityNotFound, name)
	}

	return s.Resync(ctx, entity.ID)
}

// Run subscribes to change signals and resyncs each signaled entity. Handler
// errors are returned to the subscriber, which NAKs for redelivery; resync is
// idempotent so replays are safe. Malformed source rows are the exception:
// redelivery cannot fix the row, so the signal is dropped after logging.
func (s *Syncer) Run(ctx context.Context, subscriber messaging.Subscriber) error {
	return subscriber.SubscribeSignals(ctx, func(signal *domain.ChangeSignal) error {
		err := s.Resync(ctx, signal.EntityID)
		if errors.Is(err, domain.ErrMalformedRecord) {
			logger.WarnCtx(ctx, "Dropping signal for malformed record",
				zap.Uint64("entity_id", signal.EntityID),
				zap.Error(err))
			return nil
		}
		return err
	})
}

func (s *Syncer) writeWithRetry(ctx context.Context, entityID uint64, op func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 1 * time.Minute
	b.Multiplier = 2.0

	notifyOnError := func(err error, duration time.Duration) {
		logger.WarnCtx(ctx, "Index write failed, retrying",
			zap.Uint64("entity_id", entityID),
			zap.Error(err),
			zap.Duration("next_retry_in", duration),
		)
	}

	operation := func() error {
		return op(ctx)
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(b, ctx), notifyOnError); err != nil {
		logger.ErrorCtx(ctx, err, zap.Uint64("entity_id", entityID))
		return err
	}

	return nil
}
