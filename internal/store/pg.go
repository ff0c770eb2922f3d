package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

type pgStore struct {
	db *gorm.DB
}

// NewPGStore creates a new PostgreSQL store instance
func NewPGStore(db *gorm.DB) Store {
	return &pgStore{db: db}
}

// ConfigureConnectionPool configures the connection pool settings for a GORM
// database connection
func ConfigureConnectionPool(db *gorm.DB, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime =
		NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	return nil
}

// NormalizeConnectionPoolSettings applies defaults and clamps pool settings
// into safe values.
//
// Defaults (when zero):
//   - MaxOpenConns: 20
//   - MaxIdleConns: 5
//   - ConnMaxLifetime: 5 minutes
//   - ConnMaxIdleTime: 10 minutes
//
// Notes:
//   - database/sql treats MaxOpenConns=0 as "unlimited"
//   - database/sql treats MaxIdleConns=0 as "no idle connections"
func NormalizeConnectionPoolSettings(maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (int, int, time.Duration, time.Duration) {
	if maxOpenConns == 0 {
		maxOpenConns = 20
	}
	if maxIdleConns == 0 {
		maxIdleConns = 5
	}
	if connMaxLifetime == 0 {
		connMaxLifetime = 5 * time.Minute
	}
	if connMaxIdleTime == 0 {
		connMaxIdleTime = 10 * time.Minute
	}

	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}

	return maxOpenConns, maxIdleConns, connMaxLifetime, connMaxIdleTime
}

// GetEntityByID retrieves an entity by its primary key
func (s *pgStore) GetEntityByID(ctx context.Context, id uint64) (*schema.Entity, error) {
	var entity schema.Entity
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}
	return &entity, nil
}

// GetEntityByName retrieves an entity by its unique name
func (s *pgStore) GetEntityByName(ctx context.Context, name string) (*schema.Entity, error) {
	var entity schema.Entity
	err := s.db.WithContext(ctx).Where("name = ?", name).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get entity by name: %w", err)
	}
	return &entity, nil
}

// GetEntityView retrieves the joined view for one entity
func (s *pgStore) GetEntityView(ctx context.Context, id uint64, now time.Time) (*EntityView, error) {
	entity, err := s.GetEntityByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if entity == nil {
		return nil, nil
	}

	view := EntityView{Entity: *entity}

	// Single active listing: most recent active, ordered by creation time
	// descending, limit one
	var listing schema.Listing
	err = s.db.WithContext(ctx).
		Where("entity_id = ? AND status = ?", id, domain.ListingStatusActive).
		Order("created_at DESC, id DESC").
		First(&listing).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to get active listing: %w", err)
		}
	} else {
		view.ActiveListing = &listing
	}

	var count int64
	err = s.db.WithContext(ctx).
		Model(&schema.Offer{}).
		Where("entity_id = ? AND status = ? AND currency IN ? AND (expires_at IS NULL OR expires_at > ?)",
			id, domain.OfferStatusPending, eligibleCurrencies(), now).
		Count(&count).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count eligible offers: %w", err)
	}
	view.ActiveOfferCount = int(count)

	return &view, nil
}

// ListEntityViews retrieves a keyset page of joined views ordered by id
func (s *pgStore) ListEntityViews(ctx context.Context, afterID uint64, limit int, now time.Time) ([]EntityView, error) {
	var entities []schema.Entity
	err := s.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&entities).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	if len(entities) == 0 {
		return []EntityView{}, nil
	}

	entityIDs := make([]uint64, len(entities))
	for i := range entities {
		entityIDs[i] = entities[i].ID
	}

	// Latest active listing per entity in one query via window function
	var listings []schema.Listing
	err = s.db.WithContext(ctx).Raw(`
		SELECT * FROM (
			SELECT
				*,
				ROW_NUMBER() OVER (PARTITION BY entity_id ORDER BY created_at DESC, id DESC) as rn
			FROM listings
			WHERE entity_id IN ? AND status = ?
		) sub
		WHERE rn = 1
	`, entityIDs, domain.ListingStatusActive).Scan(&listings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active listings: %w", err)
	}

	listingMap := make(map[uint64]*schema.Listing, len(listings))
	for i := range listings {
		listingMap[listings[i].EntityID] = &listings[i]
	}

	// Eligible offer counts per entity
	type offerCount struct {
		EntityID uint64 `gorm:"column:entity_id"`
		Count    int    `gorm:"column:count"`
	}
	var counts []offerCount
	err = s.db.WithContext(ctx).
		Model(&schema.Offer{}).
		Select("entity_id, COUNT(*) as count").
		Where("entity_id IN ? AND status = ? AND currency IN ? AND (expires_at IS NULL OR expires_at > ?)",
			entityIDs, domain.OfferStatusPending, eligibleCurrencies(), now).
		Group("entity_id").
		Scan(&counts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count eligible offers: %w", err)
	}

	countMap := make(map[uint64]int, len(counts))
	for _, c := range counts {
		countMap[c.EntityID] = c.Count
	}

	views := make([]EntityView, len(entities))
	for i := range entities {
		views[i] = EntityView{
			Entity:           entities[i],
			ActiveListing:    listingMap[entities[i].ID],
			ActiveOfferCount: countMap[entities[i].ID],
		}
	}

	return views, nil
}

// BestOfferCAS conditionally replaces the cached best offer. The comparison
// happens inside a single UPDATE statement against the numeric column, so
// concurrent offer creations for the same entity cannot lose an update.
func (s *pgStore) BestOfferCAS(ctx context.Context, input BestOfferCASInput) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("id = ?", input.EntityID).
		Where("cached_offer_amount IS NULL OR cached_offer_amount < ?", input.Amount).
		Updates(map[string]interface{}{
			"cached_offer_amount":     input.Amount,
			"cached_offer_currency":   input.Currency,
			"cached_offer_id":         input.OfferID,
			"cached_offer_updated_at": input.Now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update cached offer: %w", res.Error)
	}

	return res.RowsAffected > 0, nil
}

// ListEligibleOffers returns all currently eligible pending offers, ordered by
// amount descending then id ascending (the deterministic tie-break)
func (s *pgStore) ListEligibleOffers(ctx context.Context, entityID uint64, now time.Time) ([]schema.Offer, error) {
	var offers []schema.Offer
	err := s.db.WithContext(ctx).
		Where("entity_id = ? AND status = ? AND currency IN ? AND (expires_at IS NULL OR expires_at > ?)",
			entityID, domain.OfferStatusPending, eligibleCurrencies(), now).
		Order("amount DESC, id ASC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible offers: %w", err)
	}
	return offers, nil
}

// SetCachedOffer overwrites or clears the cached best-offer fields
func (s *pgStore) SetCachedOffer(ctx context.Context, entityID uint64, offer *schema.Offer, now time.Time) error {
	updates := map[string]interface{}{
		"cached_offer_amount":     nil,
		"cached_offer_currency":   nil,
		"cached_offer_id":         nil,
		"cached_offer_updated_at": now,
	}
	if offer != nil {
		updates["cached_offer_amount"] = offer.Amount
		updates["cached_offer_currency"] = offer.Currency
		updates["cached_offer_id"] = offer.ID
	}

	err := s.db.WithContext(ctx).
		Model(&schema.Entity{}).
		Where("id = ?", entityID).
		Updates(updates).Error
	if err != nil {
		return fmt.Errorf("failed to set cached offer: %w", err)
	}

	return nil
}

func eligibleCurrencies() []domain.Currency {
	return []domain.Currency{domain.CurrencyETH, domain.CurrencyWETH}
}
