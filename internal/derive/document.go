package derive

import (
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

// BuildDocument assembles the full search document for one entity from its
// authoritative joined view. Pure and deterministic: identical view, time,
// and rate inputs always produce an identical document, so repeated syncs of
// unchanged state are byte-identical after marshaling.
func BuildDocument(view *store.EntityView, now time.Time, initialPremiumUSD, ethUSDRate float64) *search.Document {
	entity := &view.Entity

	doc := &search.Document{
		Name:             entity.Name,
		TokenID:          entity.TokenID,
		Owner:            entity.OwnerAddress,
		ExpiryDate:       entity.ExpiryDate,
		RegistrationDate: entity.RegistrationDate,
		CharacterCount:   utf8.RuneCountInString(entity.Name),
		HasNumbers:       entity.HasNumbers,
		HasEmoji:         entity.HasEmoji,
		Status:           domain.DocumentStatusUnlisted,
		Tags:             Tags(entity.Name),
		Clubs:            []string(entity.Clubs),
		ActiveOfferCount: view.ActiveOfferCount,
		LastSaleDate:     entity.LastSaleDate,
	}

	if view.ActiveListing != nil {
		price := toDisplayUnits(view.ActiveListing.Price, view.ActiveListing.Currency)
		currency := string(view.ActiveListing.Currency)
		createdAt := view.ActiveListing.CreatedAt

		doc.Status = domain.DocumentStatusActive
		doc.Price = &price
		doc.Currency = &currency
		doc.ListingCreatedAt = &createdAt
	}

	if entity.LastSalePrice != nil && entity.LastSaleCurrency != nil {
		salePrice := toDisplayUnits(*entity.LastSalePrice, *entity.LastSaleCurrency)
		saleCurrency := string(*entity.LastSaleCurrency)
		doc.LastSalePrice = &salePrice
		doc.LastSaleCurrency = &saleCurrency
	}
	if entity.LastSalePriceUSD != nil {
		usd := entity.LastSalePriceUSD.InexactFloat64()
		doc.LastSalePriceUSD = &usd
	}

	if entity.CachedOfferAmount != nil {
		offerCurrency := domain.CurrencyETH
		if entity.CachedOfferCurrency != nil {
			offerCurrency = *entity.CachedOfferCurrency
		}
		best := toDisplayUnits(*entity.CachedOfferAmount, offerCurrency)
		doc.BestOffer = &best
	}

	lifecycle := Lifecycle(entity.ExpiryDate, now, initialPremiumUSD, ethUSDRate)
	doc.IsExpired = lifecycle.Expired
	doc.IsGracePeriod = lifecycle.GracePeriod
	doc.IsPremiumPeriod = lifecycle.PremiumPeriod
	doc.DaysUntilExpiry = lifecycle.DaysUntilExpiry
	doc.PremiumAmountETH = lifecycle.PremiumAmountETH

	doc.HasSales, doc.DaysSinceLastSale = SaleHistory(entity.LastSaleDate, now)

	return doc
}

// toDisplayUnits converts a base-unit amount (e.g. wei) to display units
// (e.g. ether) for the numeric document fields
func toDisplayUnits(amount decimal.Decimal, currency domain.Currency) float64 {
	return amount.Shift(-currency.Decimals()).InexactFloat64()
}
