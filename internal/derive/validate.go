package derive

import (
	"fmt"

	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

// ValidateView rejects views that cannot be derived into a well-formed
// document. The derivation functions are total over well-typed input, so this
// is the gate that keeps malformed rows out: callers skip the record and
// count it instead of aborting the batch.
func ValidateView(view *store.EntityView) error {
	entity := &view.Entity

	if entity.Name == "" {
		return fmt.Errorf("%w: entity %d has an empty name", domain.ErrMalformedRecord, entity.ID)
	}
	if entity.TokenID == "" {
		return fmt.Errorf("%w: entity %d has an empty token id", domain.ErrMalformedRecord, entity.ID)
	}
	if entity.ExpiryDate != nil && entity.ExpiryDate.IsZero() {
		return fmt.Errorf("%w: entity %d has a zero expiry date", domain.ErrMalformedRecord, entity.ID)
	}
	if entity.RegistrationDate != nil && entity.RegistrationDate.IsZero() {
		return fmt.Errorf("%w: entity %d has a zero registration date", domain.ErrMalformedRecord, entity.ID)
	}
	if entity.LastSaleDate != nil && entity.LastSaleDate.IsZero() {
		return fmt.Errorf("%w: entity %d has a zero last sale date", domain.ErrMalformedRecord, entity.ID)
	}
	if view.ActiveListing != nil && view.ActiveListing.Price.IsNegative() {
		return fmt.Errorf("%w: entity %d has a negative listing price", domain.ErrMalformedRecord, entity.ID)
	}

	return nil
}
