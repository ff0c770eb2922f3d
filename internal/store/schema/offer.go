package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// Offer represents the offers table. An offer counts toward the cached
// best-offer aggregate while it is pending, in an eligible currency, and not
// past its optional expiry.
type Offer struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EntityID is the entity the offer was made on
	EntityID uint64 `gorm:"column:entity_id;not null;index:idx_offers_entity_status,priority:1"`
	// Buyer is the offerer's address
	Buyer string `gorm:"column:buyer;not null;type:text"`
	// Amount is the offered amount in base units (wei for ETH/WETH)
	Amount decimal.Decimal `gorm:"column:amount;type:numeric(78,0);not null"`
	// Currency is the offer currency
	Currency domain.Currency `gorm:"column:currency;not null;type:text"`
	// Status is the offer lifecycle status
	Status domain.OfferStatus `gorm:"column:status;not null;type:text;index:idx_offers_entity_status,priority:2"`
	// ExpiresAt is the optional offer expiry; nil means no expiry
	ExpiresAt *time.Time `gorm:"column:expires_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Offer model
func (Offer) TableName() string {
	return "offers"
}
