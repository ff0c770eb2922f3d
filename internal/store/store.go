package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

// EntityView is the authoritative joined view of one entity: the row itself,
// its single active listing (most recent active by creation time, if any), and
// the count of currently eligible pending offers. This is the only input the
// derivation layer ever sees.
type EntityView struct {
	Entity           schema.Entity
	ActiveListing    *schema.Listing
	ActiveOfferCount int
}

// BestOfferCASInput is the input for the conditional best-offer update
type BestOfferCASInput struct {
	EntityID uint64
	OfferID  uint64
	Amount   decimal.Decimal
	Currency domain.Currency
	Now      time.Time
}

// Store defines the interface for database operations
//
//go:generate mockgen -source=store.go -destination=../mocks/store.go -package=mocks -mock_names=Store=MockStore
type Store interface {
	// GetEntityByID retrieves an entity by its primary key (nil if absent)
	GetEntityByID(ctx context.Context, id uint64) (*schema.Entity, error)
	// GetEntityByName retrieves an entity by its unique name (nil if absent)
	GetEntityByName(ctx context.Context, name string) (*schema.Entity, error)
	// GetEntityView retrieves the joined view for one entity (nil if absent)
	GetEntityView(ctx context.Context, id uint64, now time.Time) (*EntityView, error)
	// ListEntityViews retrieves a keyset page of joined views ordered by id,
	// strictly after afterID. Pages are disjoint by construction, so
	// concurrent inserts during a walk are neither skipped nor duplicated.
	ListEntityViews(ctx context.Context, afterID uint64, limit int, now time.Time) ([]EntityView, error)
	// BestOfferCAS conditionally replaces the cached best offer in a single
	// UPDATE statement: it applies only when the cached amount is absent or
	// strictly smaller than the candidate, compared as numerics by the store
	// itself. Returns whether the update applied.
	BestOfferCAS(ctx context.Context, input BestOfferCASInput) (bool, error)
	// ListEligibleOffers returns all pending, unexpired, eligible-currency
	// offers for an entity, ordered by amount descending then id ascending
	ListEligibleOffers(ctx context.Context, entityID uint64, now time.Time) ([]schema.Offer, error)
	// SetCachedOffer overwrites the cached best-offer fields from an offer,
	// or clears them when offer is nil
	SetCachedOffer(ctx context.Context, entityID uint64, offer *schema.Offer, now time.Time) error
}
