package derive_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/grailsmarket/backend-sub002/internal/derive"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/store"
	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

func TestValidateView(t *testing.T) {
	expiry := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	zero := time.Time{}

	tests := []struct {
		name      string
		mutate    func(view *store.EntityView)
		malformed bool
	}{
		{
			name:      "well-formed view",
			mutate:    func(view *store.EntityView) {},
			malformed: false,
		},
		{
			name:      "empty name",
			mutate:    func(view *store.EntityView) { view.Entity.Name = "" },
			malformed: true,
		},
		{
			name:      "empty token id",
			mutate:    func(view *store.EntityView) { view.Entity.TokenID = "" },
			malformed: true,
		},
		{
			name:      "zero expiry date",
			mutate:    func(view *store.EntityView) { view.Entity.ExpiryDate = &zero },
			malformed: true,
		},
		{
			name:      "zero registration date",
			mutate:    func(view *store.EntityView) { view.Entity.RegistrationDate = &zero },
			malformed: true,
		},
		{
			name:      "zero last sale date",
			mutate:    func(view *store.EntityView) { view.Entity.LastSaleDate = &zero },
			malformed: true,
		},
		{
			name: "negative listing price",
			mutate: func(view *store.EntityView) {
				view.ActiveListing = &schema.Listing{
					EntityID: 1,
					Price:    decimal.NewFromInt(-1),
					Currency: domain.CurrencyETH,
					Status:   domain.ListingStatusActive,
				}
			},
			malformed: true,
		},
		{
			name:      "nil expiry date is valid",
			mutate:    func(view *store.EntityView) { view.Entity.ExpiryDate = nil },
			malformed: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := &store.EntityView{
				Entity: schema.Entity{
					ID:         1,
					Name:       "vault",
					TokenID:    "1",
					ExpiryDate: &expiry,
				},
			}
			tt.mutate(view)

			err := derive.ValidateView(view)
			if tt.malformed {
				assert.ErrorIs(t, err, domain.ErrMalformedRecord)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
