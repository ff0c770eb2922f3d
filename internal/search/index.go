package search

import (
	"context"

	"github.com/grailsmarket/backend-sub002/internal/domain"
)

// BulkItemError records a single failed document within a bulk write. Bulk
// item failures never abort the batch; callers collect them into the run
// summary.
type BulkItemError struct {
	EntityID uint64
	Reason   string
}

// BulkResult summarizes one bulk write
type BulkResult struct {
	Written int
	Errors  []BulkItemError
}

// Filter restricts an index iteration; zero value matches everything
type Filter struct {
	Status *domain.DocumentStatus
}

// ScrollFunc is called once per matching document during an iteration.
// Returning an error stops the scroll.
type ScrollFunc func(entityID uint64, doc *Document) error

// Index defines the interface for the derived search index
//
//go:generate mockgen -source=index.go -destination=../mocks/index.go -package=mocks -mock_names=Index=MockIndex
type Index interface {
	// Upsert writes one document keyed by entity id
	Upsert(ctx context.Context, entityID uint64, doc *Document) error
	// Delete removes one document; deleting an absent document is a no-op
	Delete(ctx context.Context, entityID uint64) error
	// Get retrieves one document (domain.ErrDocumentNotFound if absent)
	Get(ctx context.Context, entityID uint64) (*Document, error)
	// BulkUpsert writes many documents in one bulk request; individual
	// failures are reported per document, not as a request error
	BulkUpsert(ctx context.Context, docs map[uint64]*Document) (*BulkResult, error)
	// Scroll iterates every document matching the filter
	Scroll(ctx context.Context, filter Filter, fn ScrollFunc) error
	// SetRefreshInterval adjusts the index refresh interval ("-1" disables
	// refresh for bulk throughput, "1s" restores the default)
	SetRefreshInterval(ctx context.Context, interval string) error
	// Refresh forces an immediate refresh so all writes become searchable
	Refresh(ctx context.Context) error
}
