package derive_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/grailsmarket/backend-sub002/internal/derive"
)

var testNow = time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

func daysAgo(d int) *time.Time {
	t := testNow.Add(-time.Duration(d) * 24 * time.Hour)
	return &t
}

func daysAhead(d int) *time.Time {
	t := testNow.Add(time.Duration(d) * 24 * time.Hour)
	return &t
}

func TestLifecycle_Active(t *testing.T) {
	state := derive.Lifecycle(daysAhead(30), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.False(t, state.Expired)
	assert.False(t, state.GracePeriod)
	assert.False(t, state.PremiumPeriod)
	assert.Equal(t, 30, state.DaysUntilExpiry)
	assert.Nil(t, state.PremiumAmountETH)
}

func TestLifecycle_NeverExpires(t *testing.T) {
	state := derive.Lifecycle(nil, testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.False(t, state.Expired)
	assert.False(t, state.GracePeriod)
	assert.False(t, state.PremiumPeriod)
	assert.Equal(t, derive.NeverExpires, state.DaysUntilExpiry)
	assert.Nil(t, state.PremiumAmountETH)
}

func TestLifecycle_GracePeriod(t *testing.T) {
	// 45 days past expiry: expired and in grace, no premium yet
	state := derive.Lifecycle(daysAgo(45), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.True(t, state.Expired)
	assert.True(t, state.GracePeriod)
	assert.False(t, state.PremiumPeriod)
	assert.Equal(t, -45, state.DaysUntilExpiry)
	assert.Nil(t, state.PremiumAmountETH)
}

func TestLifecycle_GracePeriodBoundaries(t *testing.T) {
	// Day 0 past expiry counts as grace, day 90 is the last grace day
	for _, d := range []int{0, 1, 90} {
		state := derive.Lifecycle(daysAgo(d), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)
		assert.True(t, state.Expired, "day %d", d)
		assert.True(t, state.GracePeriod, "day %d", d)
		assert.False(t, state.PremiumPeriod, "day %d", d)
	}
}

func TestLifecycle_PremiumPeriod(t *testing.T) {
	// 95 days past expiry: 5 days into the premium window
	state := derive.Lifecycle(daysAgo(95), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.True(t, state.Expired)
	assert.False(t, state.GracePeriod)
	assert.True(t, state.PremiumPeriod)
	require.NotNil(t, state.PremiumAmountETH)
	assert.Greater(t, *state.PremiumAmountETH, 0.0)
}

func TestLifecycle_FullyExpired(t *testing.T) {
	// 120 days past expiry: past grace and premium, back to base price
	state := derive.Lifecycle(daysAgo(120), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.True(t, state.Expired)
	assert.False(t, state.GracePeriod)
	assert.False(t, state.PremiumPeriod)
	assert.Nil(t, state.PremiumAmountETH)
}

func TestLifecycle_PremiumStrictlyDecreasing(t *testing.T) {
	var prev float64

	for d := 91; d <= 111; d++ {
		state := derive.Lifecycle(daysAgo(d), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)
		require.NotNil(t, state.PremiumAmountETH, "day %d", d)

		if d > 91 {
			assert.Less(t, *state.PremiumAmountETH, prev, "premium must strictly decrease, day %d", d)
		}
		prev = *state.PremiumAmountETH
	}
}

func TestLifecycle_PremiumDecayFactor(t *testing.T) {
	first := derive.Lifecycle(daysAgo(91), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)
	last := derive.Lifecycle(daysAgo(111), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	require.NotNil(t, first.PremiumAmountETH)
	require.NotNil(t, last.PremiumAmountETH)

	// On the final premium day the decay factor has reached 10000x, so the
	// premium equals the initial ETH amount divided by 10000
	initialETH := float64(derive.DefaultInitialPremiumUSD) / float64(derive.DefaultEthUSDRate)
	assert.InDelta(t, initialETH/10000, *last.PremiumAmountETH, initialETH/10000*0.001)
	assert.Less(t, *last.PremiumAmountETH, *first.PremiumAmountETH/1000)
}

func TestLifecycle_Pure(t *testing.T) {
	// Same inputs always give the same output
	a := derive.Lifecycle(daysAgo(95), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)
	b := derive.Lifecycle(daysAgo(95), testNow, derive.DefaultInitialPremiumUSD, derive.DefaultEthUSDRate)

	assert.Equal(t, a, b)
	require.NotNil(t, a.PremiumAmountETH)
	assert.Equal(t, *a.PremiumAmountETH, *b.PremiumAmountETH)
}

func TestLifecycle_RateScalesPremium(t *testing.T) {
	low := derive.Lifecycle(daysAgo(95), testNow, derive.DefaultInitialPremiumUSD, 2000)
	high := derive.Lifecycle(daysAgo(95), testNow, derive.DefaultInitialPremiumUSD, 4000)

	require.NotNil(t, low.PremiumAmountETH)
	require.NotNil(t, high.PremiumAmountETH)

	// Doubling the ETH/USD rate halves the premium denominated in ETH
	assert.InDelta(t, *low.PremiumAmountETH/2, *high.PremiumAmountETH, 1e-9)
}

func TestSaleHistory(t *testing.T) {
	hasSales, days := derive.SaleHistory(daysAgo(10), testNow)
	assert.True(t, hasSales)
	require.NotNil(t, days)
	assert.Equal(t, 10, *days)

	hasSales, days = derive.SaleHistory(nil, testNow)
	assert.False(t, hasSales)
	assert.Nil(t, days)
}
