package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"

	"github.com/grailsmarket/backend-sub002/internal/adapter"
	"github.com/grailsmarket/backend-sub002/internal/derive"
	"github.com/grailsmarket/backend-sub002/internal/logger"
	"github.com/grailsmarket/backend-sub002/internal/pricing"
	"github.com/grailsmarket/backend-sub002/internal/search"
	"github.com/grailsmarket/backend-sub002/internal/store"
)

const (
	DefaultBatchSize   = 500
	DefaultConcurrency = 4

	// batchTimeout bounds one page's derive-and-write so a stuck batch cannot
	// hang the whole run
	batchTimeout = 2 * time.Minute
)

// Options controls a reconciliation run
type Options struct {
	// BatchSize is the keyset page size
	BatchSize int
	// Concurrency is the number of pages derived and written in parallel
	Concurrency int
	// StartCursor overrides the persisted cursor when non-zero; entities with
	// id <= StartCursor are skipped
	StartCursor uint64
	// Resume loads the persisted cursor from an interrupted run
	Resume bool
}

// Summary reports the outcome of a reconciliation run. Skipped counts
// malformed source rows rejected before derivation; Errored counts documents
// the index refused.
type Summary struct {
	Processed  int
	Written    int
	Skipped    int
	Errored    int
	LastCursor uint64
	Elapsed    time.Duration
}

// Reconciler walks the entire entity table in keyset pages and rewrites every
// search document from authoritative state. Pages within a wave are processed
// in parallel; the cursor is persisted only after every page of the wave has
// been written, so a resumed run never skips an unwritten entity.
type Reconciler struct {
	store             store.Store
	cursors           store.CursorStore
	index             search.Index
	rates             pricing.RateSource
	clock             adapter.Clock
	initialPremiumUSD float64
}

// NewReconciler creates a new bulk reconciliation engine
func NewReconciler(s store.Store, cursors store.CursorStore, index search.Index, rates pricing.RateSource, clock adapter.Clock, initialPremiumUSD float64) *Reconciler {
	return &Reconciler{
		store:             s,
		cursors:           cursors,
		index:             index,
		rates:             rates,
		clock:             clock,
		initialPremiumUSD: initialPremiumUSD,
	}
}

// Run executes one full reconciliation pass. Refresh is disabled on the index
// for bulk throughput and restored (with a forced refresh) when the run ends,
// whether it completed or failed.
func (r *Reconciler) Run(ctx context.Context, opts Options) (*Summary, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}

	start := r.clock.Now()

	cursor := opts.StartCursor
	if opts.Resume && cursor == 0 {
		persisted, err := r.cursors.GetReconcileCursor(ctx)
		if err != nil {
			return nil, err
		}
		cursor = persisted
	}

	rate, err := r.rates.EthUSD(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get ETH/USD rate: %w", err)
	}
	ethUSDRate := rate.InexactFloat64()

	logger.InfoCtx(ctx, "Starting reconciliation",
		zap.Uint64("cursor", cursor),
		zap.Int("batch_size", opts.BatchSize),
		zap.Int("concurrency", opts.Concurrency))

	if err := r.index.SetRefreshInterval(ctx, "-1"); err != nil {
		logger.WarnCtx(ctx, "Failed to disable index refresh, continuing", zap.Error(err))
	}
	defer func() {
		restoreCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if err := r.index.SetRefreshInterval(restoreCtx, "1s"); err != nil {
			logger.Error(err, zap.String("message", "Failed to restore index refresh interval"))
		}
		if err := r.index.Refresh(restoreCtx); err != nil {
			logger.Error(err, zap.String("message", "Failed to refresh index"))
		}
	}()

	pool := pond.NewPool(opts.Concurrency)
	defer pool.StopAndWait()

	summary := &Summary{LastCursor: cursor}

	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		// Fetch up to one wave of disjoint keyset pages, then derive and
		// write them in parallel. The cursor only advances past a wave once
		// all of its pages are durably written.
		pages, nextCursor, done, err := r.fetchWave(ctx, cursor, opts)
		if err != nil {
			return summary, err
		}

		if len(pages) > 0 {
			var mu sync.Mutex
			group := pool.NewGroup()
			for _, page := range pages {
				group.SubmitErr(func() error {
					counts, err := r.processPage(ctx, page, ethUSDRate)
					mu.Lock()
					summary.Processed += counts.processed
					summary.Written += counts.written
					summary.Skipped += counts.skipped
					summary.Errored += counts.errored
					mu.Unlock()
					return err
				})
			}
			if err := group.Wait(); err != nil {
				return summary, err
			}

			summary.LastCursor = nextCursor
			if err := r.cursors.SetReconcileCursor(ctx, nextCursor); err != nil {
				return summary, err
			}
			cursor = nextCursor

			logger.InfoCtx(ctx, "Reconciliation progress",
				zap.Uint64("cursor", cursor),
				zap.Int("processed", summary.Processed),
				zap.Int("written", summary.Written),
				zap.Int("skipped", summary.Skipped),
				zap.Int("errored", summary.Errored))
		}

		if done {
			break
		}
	}

	if err := r.cursors.ClearReconcileCursor(ctx); err != nil {
		return summary, err
	}

	summary.Elapsed = r.clock.Since(start)

	logger.InfoCtx(ctx, "Reconciliation complete",
		zap.Int("processed", summary.Processed),
		zap.Int("written", summary.Written),
		zap.Int("skipped", summary.Skipped),
		zap.Int("errored", summary.Errored),
		zap.Duration("elapsed", summary.Elapsed))

	return summary, nil
}

// fetchWave reads up to Concurrency consecutive keyset pages. Pages are
// disjoint id ranges, so the parallel workers never touch the same entity.
func (r *Reconciler) fetchWave(ctx context.Context, cursor uint64, opts Options) ([][]store.EntityView, uint64, bool, error) {
	var pages [][]store.EntityView
	now := r.clock.Now()

	for i := 0; i < opts.Concurrency; i++ {
		views, err := r.store.ListEntityViews(ctx, cursor, opts.BatchSize, now)
		if err != nil {
			return nil, 0, false, fmt.Errorf("failed to list entity views after id %d: %w", cursor, err)
		}
		if len(views) == 0 {
			return pages, cursor, true, nil
		}

		pages = append(pages, views)
		cursor = views[len(views)-1].Entity.ID

		if len(views) < opts.BatchSize {
			return pages, cursor, true, nil
		}
	}

	return pages, cursor, false, nil
}

// pageCounts accumulates the per-record outcomes of one page
type pageCounts struct {
	processed int
	written   int
	skipped   int
	errored   int
}

// processPage derives documents for one page and writes them in a single bulk
// request. Malformed rows are skipped and counted before derivation; bulk
// item failures are counted and logged. Neither aborts the run.
func (r *Reconciler) processPage(ctx context.Context, views []store.EntityView, ethUSDRate float64) (pageCounts, error) {
	batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	now := r.clock.Now()
	counts := pageCounts{processed: len(views)}

	docs := make(map[uint64]*search.Document, len(views))
	for i := range views {
		view := &views[i]
		if err := derive.ValidateView(view); err != nil {
			logger.WarnCtx(ctx, "Skipping malformed record",
				zap.Uint64("entity_id", view.Entity.ID),
				zap.Error(err))
			counts.skipped++
			continue
		}
		docs[view.Entity.ID] = derive.BuildDocument(view, now, r.initialPremiumUSD, ethUSDRate)
	}

	if len(docs) == 0 {
		return counts, nil
	}

	result, err := r.index.BulkUpsert(batchCtx, docs)
	if err != nil {
		return counts, fmt.Errorf("bulk upsert failed: %w", err)
	}

	for _, itemErr := range result.Errors {
		logger.WarnCtx(ctx, "Document rejected during reconciliation",
			zap.Uint64("entity_id", itemErr.EntityID),
			zap.String("reason", itemErr.Reason))
	}

	counts.written = result.Written
	counts.errored = len(result.Errors)
	return counts, nil
}
