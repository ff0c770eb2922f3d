package domain

import (
	"fmt"
	"time"
)

// Currency identifies the payment currency of a listing or offer
type Currency string

const (
	// CurrencyETH is native ether
	CurrencyETH Currency = "ETH"
	// CurrencyWETH is wrapped ether
	CurrencyWETH Currency = "WETH"
	// CurrencyUSDC is USD Coin
	CurrencyUSDC Currency = "USDC"
)

// OfferEligible reports whether offers in this currency count toward the
// cached best-offer aggregate
func (c Currency) OfferEligible() bool {
	return c == CurrencyETH || c == CurrencyWETH
}

// Decimals returns the number of base-unit decimals for the currency.
// Amounts are stored in base units (wei for ETH/WETH) and converted to
// display units only when derived documents are built.
func (c Currency) Decimals() int32 {
	if c == CurrencyUSDC {
		return 6
	}
	return 18
}

// ListingStatus represents the lifecycle status of a listing
type ListingStatus string

const (
	ListingStatusActive    ListingStatus = "active"
	ListingStatusSold      ListingStatus = "sold"
	ListingStatusCancelled ListingStatus = "cancelled"
	ListingStatusExpired   ListingStatus = "expired"
)

// OfferStatus represents the lifecycle status of an offer
type OfferStatus string

const (
	OfferStatusPending   OfferStatus = "pending"
	OfferStatusAccepted  OfferStatus = "accepted"
	OfferStatusRejected  OfferStatus = "rejected"
	OfferStatusExpired   OfferStatus = "expired"
	OfferStatusCancelled OfferStatus = "cancelled"
)

// DocumentStatus is the derived listing status carried on the search document
type DocumentStatus string

const (
	// DocumentStatusActive means the name has an active listing
	DocumentStatusActive DocumentStatus = "active"
	// DocumentStatusUnlisted means the name has no active listing
	DocumentStatusUnlisted DocumentStatus = "unlisted"
)

// ChangeReason describes what kind of mutation triggered a change signal
type ChangeReason string

const (
	ChangeReasonOfferCreated     ChangeReason = "offer_created"
	ChangeReasonOfferRemoved     ChangeReason = "offer_removed"
	ChangeReasonListingChanged   ChangeReason = "listing_changed"
	ChangeReasonOwnershipChanged ChangeReason = "ownership_changed"
	ChangeReasonAuditRepair      ChangeReason = "audit_repair"
	ChangeReasonManual           ChangeReason = "manual"
)

// ChangeSignal is the entity-id-keyed notification carried on the durable
// change channel. Delivery is at-least-once; consumers must treat every signal
// as "re-derive this entity" regardless of Reason, so duplicates and
// out-of-order deliveries are harmless.
type ChangeSignal struct {
	// EventID is a ULID, unique and time-sortable
	EventID string `json:"event_id"`
	// EntityID is the primary key of the affected entity
	EntityID uint64 `json:"entity_id"`
	// Reason is informational only; it never changes consumer behavior
	Reason ChangeReason `json:"reason"`
	// Timestamp is the time the signal was emitted
	Timestamp time.Time `json:"timestamp"`
}

// DedupID returns the message deduplication id for the broker
func (s *ChangeSignal) DedupID() string {
	return fmt.Sprintf("%d:%s", s.EntityID, s.EventID)
}
