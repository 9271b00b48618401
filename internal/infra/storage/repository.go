package storage

import (
	"context"
	"errors"

	"github.com/vietddude/reviewer/internal/core/domain"
)

var (
	// ErrItemNotFound is returned when a write targets an unknown item
	ErrItemNotFound = errors.New("item not found")

	// ErrNotSupported is returned by stores lacking an optional capability
	ErrNotSupported = errors.New("operation not supported by store")
)

// ReviewStore is the store port consumed by the cycle scheduler.
//
// An item stays pending until a terminal outcome for it has been written,
// so a crash between fetch and write-back re-processes the item on the
// next run instead of losing it.
type ReviewStore interface {
	// FetchPending returns up to max pending items (max <= 0 means no limit).
	// Infrastructure failures wrap domain.ErrStoreUnavailable.
	FetchPending(ctx context.Context, max int) ([]domain.WorkItem, error)

	// WriteResult persists a terminal outcome. Writing the same result twice
	// leaves the store in the same state as writing it once.
	WriteResult(ctx context.Context, itemID string, res domain.ClassificationResult) error
}

// Counts summarises item states in a store.
type Counts struct {
	Pending   int
	Succeeded int
	Failed    int
}

// Total returns the number of items known to the store.
func (c Counts) Total() int {
	return c.Pending + c.Succeeded + c.Failed
}

// StatusReader is implemented by stores that can report item counts.
type StatusReader interface {
	Counts(ctx context.Context) (Counts, error)
}

// Resetter is implemented by stores that can move failed items back to pending.
type Resetter interface {
	// ResetFailed resets the given ids, or every failed item when ids is empty.
	ResetFailed(ctx context.Context, ids []string) (int, error)
}

// FailureJournal records items that ended a cycle as failed.
type FailureJournal interface {
	// Record upserts the entry, bumping its failure count when it already exists.
	Record(ctx context.Context, item domain.FailedItem) error

	// List returns entries, most frequently failing first.
	List(ctx context.Context, limit int) ([]domain.FailedItem, error)

	// Resolve removes an entry.
	Resolve(ctx context.Context, id string) error

	// Count returns the number of journaled items.
	Count(ctx context.Context) (int, error)
}
