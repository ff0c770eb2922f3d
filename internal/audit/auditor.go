package audit

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/derive"
	"github.com/grailsmarket/backend-sub002/internal/domain"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/messaging"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

// DriftKind classifies what disagrees between the indexed document and the
// freshly derived one
type DriftKind string

const (
	DriftPrice     DriftKind = "price"
	DriftStatus    DriftKind = "status"
	DriftBestOffer DriftKind = "best_offer"
	// DriftOrphaned means the document's entity no longer exists in the
	// database
	DriftOrphaned DriftKind = "orphaned"
)

// Discrepancy reports one field of one document that disagrees with the
// source of truth
type Discrepancy struct {
	EntityID uint64
	Name     string
	Kind     DriftKind
	Indexed  string
	Expected string
}

// Auditor compares indexed documents against freshly derived state and
// reports drift. It never writes to the database or the index; when a
// publisher is provided, discrepant entity ids are fed back into incremental
// sync as repair signals.
type Auditor struct {
	store             store.Store
	index             search.Index
	rates             pricing.RateSource
	clock             adapter.Clock
	publisher         messaging.Publisher
	initialPremiumUSD float64
}

// NewAuditor creates a new consistency auditor. The publisher may be nil for
// report-only runs.
func NewAuditor(s store.Store, index search.Index, rates pricing.RateSource, clock adapter.Clock, publisher messaging.Publisher, initialPremiumUSD float64) *Auditor {
	return &Auditor{
		store:             s,
		index:             index,
		rates:             rates,
		clock:             clock,
		publisher:         publisher,
		initialPremiumUSD: initialPremiumUSD,
	}
}

// Run scans every indexed document matching the filter and returns all
// discrepancies found. Comparison covers the fields that drift in practice:
// listing price, listing status, and the cached best offer.
func (a *Auditor) Run(ctx context.Context, filter search.Filter) ([]Discrepancy, error) {
	rate, err := a.rates.EthUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ETH/USD rate: %w", err)
	}
	ethUSDRate := rate.InexactFloat64()

	var discrepancies []Discrepancy
	scanned := 0

	err = a.index.Scroll(ctx, filter, func(entityID uint64, doc *search.Document) error {
		scanned++

		now := a.clock.Now()
		view, err := a.store.GetEntityView(ctx, entityID, now)
		if err != nil {
			return fmt.Errorf("failed to load entity view for %d: %w", entityID, err)
		}

		if view == nil {
			discrepancies = append(discrepancies, Discrepancy{
				EntityID: entityID,
				Name:     doc.Name,
				Kind:     DriftOrphaned,
				Indexed:  string(doc.Status),
				Expected: "absent",
			})
			return nil
		}

		expected := derive.BuildDocument(view, now, a.initialPremiumUSD, ethUSDRate)
		discrepancies = append(discrepancies, compare(entityID, doc, expected)...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoCtx(ctx, "Audit complete",
		zap.Int("scanned", scanned),
		zap.Int("discrepancies", len(discrepancies)))

	if a.publisher != nil && len(discrepancies) > 0 {
		if err := a.publishRepairs(ctx, discrepancies); err != nil {
			return discrepancies, err
		}
	}

	return discrepancies, nil
}

func compare(entityID uint64, indexed, expected *search.Document) []Discrepancy {
	var out []Discrepancy

	if indexed.Status != expected.Status {
		out = append(out, Discrepancy{
			EntityID: entityID,
			Name:     expected.Name,
			Kind:     DriftStatus,
			Indexed:  string(indexed.Status),
			Expected: string(expected.Status),
		})
	}

	if !floatPtrEqual(indexed.Price, expected.Price) {
		out = append(out, Discrepancy{
			EntityID: entityID,
			Name:     expected.Name,
			Kind:     DriftPrice,
			Indexed:  formatFloatPtr(indexed.Price),
			Expected: formatFloatPtr(expected.Price),
		})
	}

	if !floatPtrEqual(indexed.BestOffer, expected.BestOffer) {
		out = append(out, Discrepancy{
			EntityID: entityID,
			Name:     expected.Name,
			Kind:     DriftBestOffer,
			Indexed:  formatFloatPtr(indexed.BestOffer),
			Expected: formatFloatPtr(expected.BestOffer),
		})
	}

	return out
}

// publishRepairs emits one repair signal per discrepant entity so the
// incremental sync path rewrites its document
func (a *Auditor) publishRepairs(ctx context.Context, discrepancies []Discrepancy) error {
	seen := make(map[uint64]bool)
	for _, d := range discrepancies {
		if seen[d.EntityID] {
			continue
		}
		seen[d.EntityID] = true

		now := a.clock.Now()
		signal := &domain.ChangeSignal{
			EventID:   ulid.MustNewDefault(now).String(),
			EntityID:  d.EntityID,
			Reason:    domain.ChangeReasonAuditRepair,
			Timestamp: now,
		}
		if err := a.publisher.PublishEntityChanged(ctx, signal); err != nil {
			return fmt.Errorf("failed to publish repair signal for entity %d: %w", d.EntityID, err)
		}
	}

	logger.InfoCtx(ctx, "Published repair signals", zap.Int("entities", len(seen)))
	return nil
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func formatFloatPtr(f *float64) string {
	if f == nil {
		return "absent"
	}
	return fmt.Sprintf("%g", *f)
}
