package offers

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/messaging"
	"github.com/grailsmarket/backend-sub002/internal/store"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

// Maintainer keeps the cached best-offer aggregate on each entity row correct
// as offers are created and removed, and emits a change signal whenever the
// cached value may have moved.
type Maintainer struct {
	store     store.Store
	publisher messaging.Publisher
	clock     adapter.Clock
}

// NewMaintainer creates a new best-offer aggregate maintainer
func NewMaintainer(s store.Store, publisher messaging.Publisher, clock adapter.Clock) *Maintainer {
	return &Maintainer{
		store:     s,
		publisher: publisher,
		clock:     clock,
	}
}

// OnOfferCreated processes a newly created offer. Ineligible offers (wrong
// currency, non-pending, already expired) never touch the cache. Eligible
// offers are applied through a single conditional update so concurrent
// creations cannot regress the cached amount; only the winning update emits a
// change signal. Returns whether the cache was updated.
func (m *Maintainer) OnOfferCreated(ctx context.Context, offer *schema.Offer) (bool, error) {
	now := m.clock.Now()

	if !m.eligible(offer, now) {
		logger.Debug("Offer not eligible for best-offer cache",
			zap.Uint64("offer_id", offer.ID),
			zap.String("currency", string(offer.Currency)),
			zap.String("status", string(offer.Status)))
		return false, nil
	}

	applied, err := m.store.BestOfferCAS(ctx, store.BestOfferCASInput{
		EntityID: offer.EntityID,
		OfferID:  offer.ID,
		Amount:   offer.Amount,
		Currency: offer.Currency,
		Now:      now,
	})
	if err != nil {
		return false, fmt.Errorf("failed to update cached best offer: %w", err)
	}

	if !applied {
		return false, nil
	}

	logger.Info("Cached best offer raised",
		zap.Uint64("entity_id", offer.EntityID),
		zap.Uint64("offer_id", offer.ID),
		zap.String("amount", offer.Amount.String()))

	if err := m.publishSignal(ctx, offer.EntityID, domain.ChangeReasonOfferCreated); err != nil {
		return true, err
	}

	return true, nil
}

// OnOfferRemoved processes an offer leaving the pending set for any reason
// (acceptance, rejection, cancellation, expiry). The cached best offer is
// recomputed from the remaining eligible offers and overwritten, then a change
// signal is emitted unconditionally: the removed offer may or may not have
// been the cached one, and the active offer count changed either way.
func (m *Maintainer) OnOfferRemoved(ctx context.Context, entityID uint64) error {
	now := m.clock.Now()

	remaining, err := m.store.ListEligibleOffers(ctx, entityID, now)
	if err != nil {
		return fmt.Errorf("failed to list eligible offers: %w", err)
	}

	var best *schema.Offer
	if len(remaining) > 0 {
		best = &remaining[0]
	}

	if err := m.store.SetCachedOffer(ctx, entityID, best, now); err != nil {
		return fmt.Errorf("failed to overwrite cached best offer: %w", err)
	}

	if best != nil {
		logger.Info("Cached best offer recomputed",
			zap.Uint64("entity_id", entityID),
			zap.Uint64("offer_id", best.ID),
			zap.String("amount", best.Amount.String()))
	} else {
		logger.Info("Cached best offer cleared", zap.Uint64("entity_id", entityID))
	}

	return m.publishSignal(ctx, entityID, domain.ChangeReasonOfferRemoved)
}

func (m *Maintainer) eligible(offer *schema.Offer, now time.Time) bool {
	if offer.Status != domain.OfferStatusPending {
		return false
	}
	if !offer.Currency.OfferEligible() {
		return false
	}
	if offer.ExpiresAt != nil && !offer.ExpiresAt.After(now) {
		return false
	}
	return true
}

func (m *Maintainer) publishSignal(ctx context.Context, entityID uint64, reason domain.ChangeReason) error {
	now := m.clock.Now()
	signal := &domain.ChangeSignal{
		EventID:   ulid.MustNewDefault(now).String(),
		EntityID:  entityID,
		Reason:    reason,
		Timestamp: now,
	}

	if err := m.publisher.PublishEntityChanged(ctx, signal); err != nil {
		return fmt.Errorf("failed to publish change signal: %w", err)
	}

	return nil
}
