package schema

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// Entity represents the entities table - one row per tokenized name. It is the
// transactional source of truth; the search document is always regenerable
// from this row plus its listings and offers.
type Entity struct {
	// ID is the internal database primary key. Strictly increasing, which the
	// bulk reconciler relies on for keyset pagination.
	ID uint64 `gorm:"column:id;primaryKey;autoIncrement"`
	// Name is the token label (e.g. "vault" for vault.eth)
	Name string `gorm:"column:name;not null;uniqueIndex;type:text"`
	// TokenID is the on-chain token id (string to support uint256 values)
	TokenID string `gorm:"column:token_id;not null;type:text"`
	// OwnerAddress is the current owner's address
	OwnerAddress string `gorm:"column:owner_address;not null;type:text;index"`
	// RegistrationDate is when the name was registered
	RegistrationDate *time.Time `gorm:"column:registration_date"`
	// ExpiryDate is when the registration expires; nil means it never expires
	ExpiryDate *time.Time `gorm:"column:expiry_date;index"`
	// Clubs holds named group memberships (e.g. "10k-club")
	Clubs datatypes.JSONSlice[string] `gorm:"column:clubs;type:jsonb"`
	// HasNumbers indicates the name contains at least one digit
	HasNumbers bool `gorm:"column:has_numbers;not null;default:false"`
	// HasEmoji indicates the name contains at least one emoji rune
	HasEmoji bool `gorm:"column:has_emoji;not null;default:false"`

	// Sale history
	LastSaleDate     *time.Time       `gorm:"column:last_sale_date"`
	LastSalePrice    *decimal.Decimal `gorm:"column:last_sale_price;type:numeric(78,0)"`
	LastSaleCurrency *domain.Currency `gorm:"column:last_sale_currency;type:text"`
	LastSalePriceUSD *decimal.Decimal `gorm:"column:last_sale_price_usd;type:numeric(20,2)"`

	// Cached best-offer aggregate. Maintained exclusively by the offer
	// maintainer; everything else treats these fields as read-only.
	CachedOfferAmount    *decimal.Decimal `gorm:"column:cached_offer_amount;type:numeric(78,0)"`
	CachedOfferCurrency  *domain.Currency `gorm:"column:cached_offer_currency;type:text"`
	CachedOfferID        *uint64          `gorm:"column:cached_offer_id"`
	CachedOfferUpdatedAt *time.Time       `gorm:"column:cached_offer_updated_at"`

	CreatedAt time.Time `gorm:"column:created_at;not null;default:now()"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;default:now()"`

	// Associations
	Listings []Listing `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE"`
	Offers   []Offer   `gorm:"foreignKey:EntityID;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for the Entity model
func (Entity) TableName() string {
	return "entities"
}
