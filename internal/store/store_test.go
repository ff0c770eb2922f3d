package store

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

// initDBFunc opens a fresh isolated database handle for one test
type initDBFunc func(t *testing.T) (*gorm.DB, Store)

// =============================================================================
// Test Data Builders
// =============================================================================

func wei(eth int64) decimal.Decimal {
	return decimal.NewFromInt(eth).Shift(18)
}

func seedEntity(t *testing.T, tx *gorm.DB, name string) *schema.Entity {
	expiry := time.Now().Add(200 * 24 * time.Hour).Truncate(time.Second)
	entity := &schema.Entity{
		Name:         name,
		TokenID:      "1",
		OwnerAddress: "0x1234567890123456789012345678901234567890",
		ExpiryDate:   &expiry,
		Clubs:        datatypes.NewJSONSlice([]string{"10k-club"}),
	}
	require.NoError(t, tx.Create(entity).Error)
	return entity
}

func seedListing(t *testing.T, tx *gorm.DB, entityID uint64, priceETH int64, status domain.ListingStatus, createdAt time.Time) *schema.Listing {
	listing := &schema.Listing{
		EntityID:  entityID,
		Price:     wei(priceETH),
		Currency:  domain.CurrencyETH,
		Status:    status,
		CreatedAt: createdAt,
	}
	require.NoError(t, tx.Create(listing).Error)
	return listing
}

func seedOffer(t *testing.T, tx *gorm.DB, entityID uint64, amount decimal.Decimal, currency domain.Currency, status domain.OfferStatus, expiresAt *time.Time) *schema.Offer {
	offer := &schema.Offer{
		EntityID:  entityID,
		Buyer:     "0xbuyer567890123456789012345678901234567890",
		Amount:    amount,
		Currency:  currency,
		Status:    status,
		ExpiresAt: expiresAt,
	}
	require.NoError(t, tx.Create(offer).Error)
	return offer
}

// =============================================================================
// Suite
// =============================================================================

// RunStoreTests runs the store contract tests against a live database; the
// SQL paths under test (the conditional best-offer UPDATE, the window-function
// listing join, keyset pagination) cannot be exercised by fakes
func RunStoreTests(t *testing.T, initDB initDBFunc) {
	t.Run("GetEntityByID", func(t *testing.T) { testGetEntityByID(t, initDB) })
	t.Run("GetEntityByName", func(t *testing.T) { testGetEntityByName(t, initDB) })
	t.Run("GetEntityView", func(t *testing.T) { testGetEntityView(t, initDB) })
	t.Run("ListEntityViews", func(t *testing.T) { testListEntityViews(t, initDB) })
	t.Run("BestOfferCAS", func(t *testing.T) { testBestOfferCAS(t, initDB) })
	t.Run("SetCachedOffer", func(t *testing.T) { testSetCachedOffer(t, initDB) })
	t.Run("ListEligibleOffers", func(t *testing.T) { testListEligibleOffers(t, initDB) })
	t.Run("CursorStore", func(t *testing.T) { testCursorStore(t, initDB) })
}

func testGetEntityByID(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()

	seeded := seedEntity(t, tx, "vault")

	entity, err := s.GetEntityByID(ctx, seeded.ID)
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, "vault", entity.Name)
	assert.Equal(t, []string{"10k-club"}, []string(entity.Clubs))

	// Absent id resolves to nil, not an error
	entity, err = s.GetEntityByID(ctx, seeded.ID+100000)
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func testGetEntityByName(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()

	seeded := seedEntity(t, tx, "vault")

	entity, err := s.GetEntityByName(ctx, "vault")
	require.NoError(t, err)
	require.NotNil(t, entity)
	assert.Equal(t, seeded.ID, entity.ID)

	entity, err = s.GetEntityByName(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, entity)
}

func testGetEntityView(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()
	now := time.Now()

	entity := seedEntity(t, tx, "vault")

	// Two active listings; the view must pick the most recently created one
	seedListing(t, tx, entity.ID, 5, domain.ListingStatusActive, now.Add(-2*time.Hour))
	newer := seedListing(t, tx, entity.ID, 7, domain.ListingStatusActive, now.Add(-1*time.Hour))
	seedListing(t, tx, entity.ID, 9, domain.ListingStatusCancelled, now)

	// Two eligible offers; USDC, expired, and accepted offers do not count
	past := now.Add(-time.Hour)
	seedOffer(t, tx, entity.ID, wei(1), domain.CurrencyETH, domain.OfferStatusPending, nil)
	seedOffer(t, tx, entity.ID, wei(2), domain.CurrencyWETH, domain.OfferStatusPending, nil)
	seedOffer(t, tx, entity.ID, decimal.NewFromInt(3000).Shift(6), domain.CurrencyUSDC, domain.OfferStatusPending, nil)
	seedOffer(t, tx, entity.ID, wei(3), domain.CurrencyETH, domain.OfferStatusPending, &past)
	seedOffer(t, tx, entity.ID, wei(4), domain.CurrencyETH, domain.OfferStatusAccepted, nil)

	view, err := s.GetEntityView(ctx, entity.ID, now)
	require.NoError(t, err)
	require.NotNil(t, view)

	require.NotNil(t, view.ActiveListing)
	assert.Equal(t, newer.ID, view.ActiveListing.ID)
	assert.True(t, view.ActiveListing.Price.Equal(wei(7)))
	assert.Equal(t, 2, view.ActiveOfferCount)

	// A removed entity resolves to a nil view
	view, err = s.GetEntityView(ctx, entity.ID+100000, now)
	require.NoError(t, err)
	assert.Nil(t, view)
}

func testListEntityViews(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()
	now := time.Now()

	names := []string{"alpha", "bravo", "charlie", "delta", "echo"}
	entities := make([]*schema.Entity, 0, len(names))
	for _, name := range names {
		entities = append(entities, seedEntity(t, tx, name))
	}

	// charlie has two active listings; the window function must attach only
	// the most recent one
	seedListing(t, tx, entities[2].ID, 5, domain.ListingStatusActive, now.Add(-2*time.Hour))
	newer := seedListing(t, tx, entities[2].ID, 7, domain.ListingStatusActive, now.Add(-1*time.Hour))
	seedOffer(t, tx, entities[3].ID, wei(1), domain.CurrencyETH, domain.OfferStatusPending, nil)

	first, err := s.ListEntityViews(ctx, 0, 3, now)
	require.NoError(t, err)
	require.Len(t, first, 3)
	assert.Equal(t, "alpha", first[0].Entity.Name)
	assert.Equal(t, "charlie", first[2].Entity.Name)
	require.NotNil(t, first[2].ActiveListing)
	assert.Equal(t, newer.ID, first[2].ActiveListing.ID)
	assert.True(t, first[2].ActiveListing.Price.Equal(wei(7)))

	// The next keyset page starts strictly after the last seen id, so pages
	// are disjoint
	second, err := s.ListEntityViews(ctx, first[2].Entity.ID, 3, now)
	require.NoError(t, err)
	require.Len(t, second, 2)
	assert.Equal(t, "delta", second[0].Entity.Name)
	assert.Equal(t, 1, second[0].ActiveOfferCount)
	assert.Equal(t, "echo", second[1].Entity.Name)
	assert.Nil(t, second[1].ActiveListing)

	// Past the end of the table
	empty, err := s.ListEntityViews(ctx, second[1].Entity.ID, 3, now)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func testBestOfferCAS(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()
	now := time.Now()

	entity := seedEntity(t, tx, "vault")

	reload := func() *schema.Entity {
		e, err := s.GetEntityByID(ctx, entity.ID)
		require.NoError(t, err)
		require.NotNil(t, e)
		return e
	}

	// Empty cache: any amount applies
	applied, err := s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 11, Amount: wei(1), Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	cached := reload()
	require.NotNil(t, cached.CachedOfferAmount)
	assert.True(t, cached.CachedOfferAmount.Equal(wei(1)))
	require.NotNil(t, cached.CachedOfferID)
	assert.Equal(t, uint64(11), *cached.CachedOfferID)

	// Lower amount does not regress the cache
	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 12, Amount: wei(1).Sub(decimal.NewFromInt(1)), Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, applied)

	// Equal amount does not apply either; the comparison is strict
	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 13, Amount: wei(1), Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, applied)
	assert.Equal(t, uint64(11), *reload().CachedOfferID)

	// Higher amount replaces the cache
	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 14, Amount: wei(2), Currency: domain.CurrencyWETH, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	cached = reload()
	assert.True(t, cached.CachedOfferAmount.Equal(wei(2)))
	assert.Equal(t, uint64(14), *cached.CachedOfferID)
	require.NotNil(t, cached.CachedOfferCurrency)
	assert.Equal(t, domain.CurrencyWETH, *cached.CachedOfferCurrency)

	// The comparison runs on the numeric column, so a one-wei difference at
	// a magnitude beyond float64 precision is still honored
	big := decimal.New(1, 24)
	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 15, Amount: big, Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID, OfferID: 16, Amount: big.Add(decimal.NewFromInt(1)), Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.True(t, applied)
	assert.True(t, reload().CachedOfferAmount.Equal(big.Add(decimal.NewFromInt(1))))

	// Unknown entity: no row matches, nothing applies
	applied, err = s.BestOfferCAS(ctx, BestOfferCASInput{
		EntityID: entity.ID + 100000, OfferID: 17, Amount: wei(9), Currency: domain.CurrencyETH, Now: now,
	})
	require.NoError(t, err)
	assert.False(t, applied)
}

func testSetCachedOffer(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()
	now := time.Now()

	entity := seedEntity(t, tx, "vault")
	offer := seedOffer(t, tx, entity.ID, wei(3), domain.CurrencyETH, domain.OfferStatusPending, nil)

	require.NoError(t, s.SetCachedOffer(ctx, entity.ID, offer, now))

	cached, err := s.GetEntityByID(ctx, entity.ID)
	require.NoError(t, err)
	require.NotNil(t, cached.CachedOfferAmount)
	assert.True(t, cached.CachedOfferAmount.Equal(wei(3)))
	assert.Equal(t, offer.ID, *cached.CachedOfferID)

	// Nil offer clears every cached field
	require.NoError(t, s.SetCachedOffer(ctx, entity.ID, nil, now))

	cached, err = s.GetEntityByID(ctx, entity.ID)
	require.NoError(t, err)
	assert.Nil(t, cached.CachedOfferAmount)
	assert.Nil(t, cached.CachedOfferCurrency)
	assert.Nil(t, cached.CachedOfferID)
}

func testListEligibleOffers(t *testing.T, initDB initDBFunc) {
	tx, s := initDB(t)
	ctx := context.Background()
	now := time.Now()

	entity := seedEntity(t, tx, "vault")

	past := now.Add(-time.Hour)
	lowETH := seedOffer(t, tx, entity.ID, wei(3), domain.CurrencyETH, domain.OfferStatusPending, nil)
	tieFirst := seedOffer(t, tx, entity.ID, wei(5), domain.CurrencyWETH, domain.OfferStatusPending, nil)
	tieSecond := seedOffer(t, tx, entity.ID, wei(5), domain.CurrencyETH, domain.OfferStatusPending, nil)
	seedOffer(t, tx, entity.ID, decimal.NewFromInt(9000).Shift(6), domain.CurrencyUSDC, domain.OfferStatusPending, nil)
	seedOffer(t, tx, entity.ID, wei(8), domain.CurrencyETH, domain.OfferStatusPending, &past)
	seedOffer(t, tx, entity.ID, wei(9), domain.CurrencyETH, domain.OfferStatusCancelled, nil)

	offers, err := s.ListEligibleOffers(ctx, entity.ID, now)
	require.NoError(t, err)
	require.Len(t, offers, 3)

	// Amount descending, equal amounts tie-broken by lowest id
	assert.Equal(t, tieFirst.ID, offers[0].ID)
	assert.Equal(t, tieSecond.ID, offers[1].ID)
	assert.Equal(t, lowETH.ID, offers[2].ID)
}

func testCursorStore(t *testing.T, initDB initDBFunc) {
	tx, _ := initDB(t)
	ctx := context.Background()

	cs := NewCursorStore(tx)

	cursor, err := cs.GetReconcileCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)

	require.NoError(t, cs.SetReconcileCursor(ctx, 42))
	cursor, err = cs.GetReconcileCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), cursor)

	// Overwriting the cursor is an upsert on the same key
	require.NoError(t, cs.SetReconcileCursor(ctx, 99))
	cursor, err = cs.GetReconcileCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(99), cursor)

	require.NoError(t, cs.ClearReconcileCursor(ctx))
	cursor, err = cs.GetReconcileCursor(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), cursor)
}
