package search

import (
	"time"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// Document is the flat, fully recomputable projection of an entity plus its
// listing/offer state, stored in the search index with the entity id as the
// document id. Prices and offer amounts are numeric so the index can sort and
// range-filter on them.
type Document struct {
	Name              string                `json:"name"`
	TokenID           string                `json:"token_id"`
	Owner             string                `json:"owner"`
	Price             *float64              `json:"price"`
	Currency          *string               `json:"currency"`
	ExpiryDate        *time.Time            `json:"expiry_date"`
	RegistrationDate  *time.Time            `json:"registration_date"`
	CharacterCount    int                   `json:"character_count"`
	HasNumbers        bool                  `json:"has_numbers"`
	HasEmoji          bool                  `json:"has_emoji"`
	Status            domain.DocumentStatus `json:"status"`
	Tags              []string              `json:"tags"`
	Clubs             []string              `json:"clubs"`
	LastSalePrice     *float64              `json:"last_sale_price"`
	LastSaleCurrency  *string               `json:"last_sale_currency"`
	LastSalePriceUSD  *float64              `json:"last_sale_price_usd"`
	ListingCreatedAt  *time.Time            `json:"listing_created_at"`
	ActiveOfferCount  int                   `json:"active_offer_count"`
	BestOffer         *float64              `json:"best_offer"`
	IsExpired         bool                  `json:"is_expired"`
	IsGracePeriod     bool                  `json:"is_grace_period"`
	IsPremiumPeriod   bool                  `json:"is_premium_period"`
	DaysUntilExpiry   int                   `json:"days_until_expiry"`
	PremiumAmountETH  *float64              `json:"premium_amount_eth"`
	LastSaleDate      *time.Time            `json:"last_sale_date"`
	HasSales          bool                  `json:"has_sales"`
	DaysSinceLastSale *int                  `json:"days_since_last_sale"`
}
