package schema

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// Listing represents the listings table. At most one listing per entity may be
// active at a time; order-lifecycle logic enforces that invariant and this
// layer consumes it as a precondition.
type Listing struct {
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// EntityID is the owning entity
	EntityID uint64 `gorm:"column:entity_id;not null;index:idx_listings_entity_status,priority:1"`
	// Price is the asking price in base units (wei for ETH/WETH)
	Price decimal.Decimal `gorm:"column:price;type:numeric(78,0);not null"`
	// Currency is the payment currency
	Currency domain.Currency `gorm:"column:currency;not null;type:text"`
	// Status is the listing lifecycle status
	Status domain.ListingStatus `gorm:"column:status;not null;type:text;index:idx_listings_entity_status,priority:2"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`
}

// TableName specifies the table name for the Listing model
func (Listing) TableName() string {
	return "listings"
}
