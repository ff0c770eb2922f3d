package derive_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailsmarket/backend-sub002/internal/derive"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

func decimalPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func currencyPtr(c domain.Currency) *domain.Currency {
	return &c
}

func testView() *store.EntityView {
	registered := testNow.Add(-365 * 24 * time.Hour)
	saleDate := testNow.Add(-30 * 24 * time.Hour)

	return &store.EntityView{
		Entity: schema.Entity{
			ID:               42,
			Name:             "vault",
			TokenID:          "7331",
			OwnerAddress:     "0xabc",
			RegistrationDate: &registered,
			ExpiryDate:       daysAhead(200),
			Clubs:            []string{"10k-club"},
			HasNumbers:       false,
			HasEmoji:         false,
			LastSaleDate:     &saleDate,
			LastSalePrice:    decimalPtr("2000000000000000000"), // 2 ETH in wei
			LastSaleCurrency: currencyPtr(domain.CurrencyETH),
			LastSalePriceUSD: decimalPtr("5000.00"),
		},
		ActiveOfferCount: 3,
	}
}

func TestBuildDocument_Unlisted(t *testing.T) {
	doc := derive.BuildDocument(testView(), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.Equal(t, "vault", doc.Name)
	assert.Equal(t, domain.DocumentStatusUnlisted, doc.Status)
	assert.Nil(t, doc.Price)
	assert.Nil(t, doc.Currency)
	assert.Nil(t, doc.ListingCreatedAt)
	assert.Equal(t, 5, doc.CharacterCount)
	assert.Equal(t, []string{"5char", "letters-only"}, doc.Tags)
	assert.Equal(t, []string{"10k-club"}, doc.Clubs)
	assert.Equal(t, 3, doc.ActiveOfferCount)
	assert.False(t, doc.IsExpired)
	assert.Equal(t, 200, doc.DaysUntilExpiry)
}

func TestBuildDocument_ActiveListing(t *testing.T) {
	view := testView()
	listingCreated := testNow.Add(-2 * time.Hour)
	view.ActiveListing = &schema.Listing{
		ID:        9,
		EntityID:  42,
		Price:     decimal.RequireFromString("1500000000000000000"), // 1.5 ETH
		Currency:  domain.CurrencyETH,
		Status:    domain.ListingStatusActive,
		CreatedAt: listingCreated,
	}

	doc := derive.BuildDocument(view, testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.Equal(t, domain.DocumentStatusActive, doc.Status)
	require.NotNil(t, doc.Price)
	assert.Equal(t, 1.5, *doc.Price)
	require.NotNil(t, doc.Currency)
	assert.Equal(t, "ETH", *doc.Currency)
	require.NotNil(t, doc.ListingCreatedAt)
	assert.Equal(t, listingCreated, *doc.ListingCreatedAt)
}

func TestBuildDocument_SaleHistory(t *testing.T) {
	doc := derive.BuildDocument(testView(), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.True(t, doc.HasSales)
	require.NotNil(t, doc.DaysSinceLastSale)
	assert.Equal(t, 30, *doc.DaysSinceLastSale)
	require.NotNil(t, doc.LastSalePrice)
	assert.Equal(t, 2.0, *doc.LastSalePrice)
	require.NotNil(t, doc.LastSalePriceUSD)
	assert.Equal(t, 5000.0, *doc.LastSalePriceUSD)
}

func TestBuildDocument_BestOffer(t *testing.T) {
	view := testView()
	view.Entity.CachedOfferAmount = decimalPtr("750000000000000000") // 0.75 WETH
	view.Entity.CachedOfferCurrency = currencyPtr(domain.CurrencyWETH)

	doc := derive.BuildDocument(view, testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	require.NotNil(t, doc.BestOffer)
	assert.Equal(t, 0.75, *doc.BestOffer)
}

func TestBuildDocument_PremiumPeriod(t *testing.T) {
	view := testView()
	view.Entity.ExpiryDate = daysAgo(95)

	doc := derive.BuildDocument(view, testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.True(t, doc.IsExpired)
	assert.False(t, doc.IsGracePeriod)
	assert.True(t, doc.IsPremiumPeriod)
	require.NotNil(t, doc.PremiumAmountETH)
	assert.Greater(t, *doc.PremiumAmountETH, 0.0)
}

func TestBuildDocument_Deterministic(t *testing.T) {
	// Same view and time must marshal to identical bytes, so redundant
	// resyncs rewrite the exact same document
	a, err := json.Marshal(derive.BuildDocument(testView(), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate))
	require.NoError(t, err)
	b, err := json.Marshal(derive.BuildDocument(testView(), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate))
	require.NoError(t, err)

	assert.Equal(t, a, b)
}
