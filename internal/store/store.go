package store

import (
	"context"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// Store defines the persistence interface for the search log.
type Store interface {
	// RecordSearch appends ev and sets its ID.
	RecordSearch(ctx context.Context, ev *model.SearchEvent) error
	ListSearches(ctx context.Context, filter model.SearchEventFilter) ([]*model.SearchEvent, int, error) // returns events, total count, error
	// TopQueries returns the most frequent non-empty queries since the given
	// time, case-folded, most frequent first.
	TopQueries(ctx context.Context, since time.Time, limit int) ([]*model.QueryCount, error)
	// PruneSearches deletes events older than before and reports how many.
	PruneSearches(ctx context.Context, before time.Time) (int64, error)

	// Transaction support
	RunInTransaction(ctx context.Context, fn func(tx Store) error) error

	// Lifecycle
	Close() error
}
