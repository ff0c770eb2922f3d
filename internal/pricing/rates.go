package pricing

import (
	"context"

	"github.com/shopspring/decimal"
)

// RateSource supplies the ETH/USD rate used to convert the decaying
// registration premium into ether. Premium values are derived on every read
// and never persisted, so changing the rate source simply changes the next
// derivation; historical documents pick up the new rate on their next sync or
// reconcile pass.
//
//go:generate mockgen -source=rates.go -destination=../mocks/rates.go -package=mocks -mock_names=RateSource=MockRateSource
type RateSource interface {
	EthUSD(ctx context.Context) (decimal.Decimal, error)
}

// Fixed is a RateSource returning a configured constant rate
type Fixed struct {
	rate decimal.Decimal
}

// NewFixed creates a fixed rate source
func NewFixed(rate float64) *Fixed {
	return &Fixed{rate: decimal.NewFromFloat(rate)}
}

// EthUSD returns the configured rate
func (f *Fixed) EthUSD(_ context.Context) (decimal.Decimal, error) {
	return f.rate, nil
}
