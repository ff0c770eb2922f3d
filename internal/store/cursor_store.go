package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/grailsmarket/backend-sub002/internal/store/schema"
)

const reconcileCursorKey = "reconcile_cursor:entities"

// CursorStore defines the interface for persisting the bulk reconciliation
// cursor so an interrupted run resumes from the last completed key range
//
//go:generate mockgen -source=cursor_store.go -destination=../mocks/cursor_store.go -package=mocks -mock_names=CursorStore=MockCursorStore
type CursorStore interface {
	// GetReconcileCursor retrieves the last committed entity id (0 if none)
	GetReconcileCursor(ctx context.Context) (uint64, error)
	// SetReconcileCursor stores the last committed entity id
	SetReconcileCursor(ctx context.Context, entityID uint64) error
	// ClearReconcileCursor removes the cursor after a completed run
	ClearReconcileCursor(ctx context.Context) error
}

type cursorStore struct {
	db *gorm.DB
}

// NewCursorStore creates a new cursor store
func NewCursorStore(db *gorm.DB) CursorStore {
	return &cursorStore{db: db}
}

// GetReconcileCursor retrieves the last committed entity id
func (s *cursorStore) GetReconcileCursor(ctx context.Context) (uint64, error) {
	var kv schema.KeyValueStore
	err := s.db.WithContext(ctx).Where("key = ?", reconcileCursorKey).First(&kv).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get reconcile cursor: %w", err)
	}

	entityID, err := strconv.ParseUint(kv.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse reconcile cursor: %w", err)
	}

	return entityID, nil
}

// SetReconcileCursor stores the last committed entity id
func (s *cursorStore) SetReconcileCursor(ctx context.Context, entityID uint64) error {
	kv := schema.KeyValueStore{
		Key:   reconcileCursorKey,
		Value: strconv.FormatUint(entityID, 10),
	}

	err := s.db.WithContext(ctx).Save(&kv).Error
	if err != nil {
		return fmt.Errorf("failed to set reconcile cursor: %w", err)
	}

	return nil
}

// ClearReconcileCursor removes the cursor after a completed run
func (s *cursorStore) ClearReconcileCursor(ctx context.Context) error {
	err := s.db.WithContext(ctx).
		Where("key = ?", reconcileCursorKey).
		Delete(&schema.KeyValueStore{}).Error
	if err != nil {
		return fmt.Errorf("failed to clear reconcile cursor: %w", err)
	}

	return nil
}
