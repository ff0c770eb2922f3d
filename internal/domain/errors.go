package domain

import "errors"

var (
	// ErrEntityNotFound is returned when an entity is not found
	ErrEntityNotFound = errors.New("entity not found")

	// ErrMalformedRecord is returned when a source row cannot be derived
	// (e.g. a malformed timestamp); callers count the record as skipped
	// instead of aborting a batch
	ErrMalformedRecord = errors.New("malformed record")

	// ErrDocumentNotFound is returned when an index document is not found
	ErrDocumentNotFound = errors.New("document not found")
)
