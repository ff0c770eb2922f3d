package derive

import (
	"math"
	"time"
)

const (
	// GracePeriodDays is how long after expiry the previous owner may still
	// renew before the name opens up to others
	GracePeriodDays = 90
	// PremiumPeriodDays is how long the decaying registration premium lasts
	// after the grace period ends
	PremiumPeriodDays = 21
	// DefaultInitialPremiumUSD is the premium at the start of the premium
	// period
	DefaultInitialPremiumUSD = 100_000_000
	// DefaultEthUSDRate is the fallback conversion rate when no rate source
	// is configured
	DefaultEthUSDRate = 2500

	// NeverExpires is the days-until-expiry sentinel for names without an
	// expiry date. Large but finite so the field stays numerically sortable.
	NeverExpires = 1<<31 - 1

	hoursPerDay = 24
)

// premiumDecayK makes the premium decay by a factor of 10,000 over the
// 21-day premium period
var premiumDecayK = math.Log(10_000) / PremiumPeriodDays

// LifecycleState is the derived time-dependent state of a registration.
// Exactly one of active (none of the flags), grace, premium, or fully expired
// holds for any input; the states are total and mutually exclusive.
type LifecycleState struct {
	Expired          bool
	GracePeriod      bool
	PremiumPeriod    bool
	DaysUntilExpiry  int
	PremiumAmountETH *float64
}

// Lifecycle derives the registration lifecycle from the expiry date and the
// current time. It is a pure function of the wall-clock delta, recomputed on
// every read; there is no transition state machine to get out of sync.
func Lifecycle(expiryDate *time.Time, now time.Time, initialPremiumUSD, ethUSDRate float64) LifecycleState {
	if expiryDate == nil {
		return LifecycleState{DaysUntilExpiry: NeverExpires}
	}

	daysSinceExpiry := int(math.Floor(now.Sub(*expiryDate).Hours() / hoursPerDay))
	daysUntilExpiry := int(math.Floor(expiryDate.Sub(now).Hours() / hoursPerDay))

	switch {
	case daysSinceExpiry < 0:
		// Not yet expired
		return LifecycleState{DaysUntilExpiry: daysUntilExpiry}

	case daysSinceExpiry <= GracePeriodDays:
		return LifecycleState{
			Expired:         true,
			GracePeriod:     true,
			DaysUntilExpiry: daysUntilExpiry,
		}

	case daysSinceExpiry <= GracePeriodDays+PremiumPeriodDays:
		daysIntoPremium := daysSinceExpiry - GracePeriodDays // 1..21
		premium := premiumAmountETH(daysIntoPremium, initialPremiumUSD, ethUSDRate)
		return LifecycleState{
			Expired:          true,
			PremiumPeriod:    true,
			DaysUntilExpiry:  daysUntilExpiry,
			PremiumAmountETH: &premium,
		}

	default:
		// Fully expired, premium decayed away
		return LifecycleState{
			Expired:         true,
			DaysUntilExpiry: daysUntilExpiry,
		}
	}
}

// premiumAmountETH computes the decayed premium for day p of the premium
// period: (initialPremiumUSD / ethUSDRate) * e^(-k*p)
func premiumAmountETH(daysIntoPremium int, initialPremiumUSD, ethUSDRate float64) float64 {
	if initialPremiumUSD <= 0 {
		initialPremiumUSD = DefaultInitialPremiumUSD
	}
	if ethUSDRate <= 0 {
		ethUSDRate = DefaultEthUSDRate
	}

	initialETH := initialPremiumUSD / ethUSDRate
	return initialETH * math.Exp(-premiumDecayK*float64(daysIntoPremium))
}

// SaleHistory derives sale recency fields from the last sale date
func SaleHistory(lastSaleDate *time.Time, now time.Time) (hasSales bool, daysSinceLastSale *int) {
	if lastSaleDate == nil {
		return false, nil
	}

	days := int(math.Floor(now.Sub(*lastSaleDate).Hours() / hoursPerDay))
	return true, &days
}
