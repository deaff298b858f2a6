// Package stats consumes search-performed events and keeps the search log.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/discovery/internal/events"
	"github.com/alfredjeanlab/discovery/internal/metrics"
	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/store"
)

// DefaultWindow is the look-back of TopQueries when none is given.
const DefaultWindow = 7 * 24 * time.Hour

// Recorder writes search events to the store.
type Recorder struct {
	store   store.Store
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewRecorder creates a recorder backed by the given store. A nil logger
// means slog.Default(); nil metrics are discarded.
func NewRecorder(s store.Store, logger *slog.Logger, m *metrics.Metrics) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{store: s, logger: logger, metrics: metrics.OrDiscard(m), now: time.Now}
}

// Record persists one search event.
func (r *Recorder) Record(ctx context.Context, ev *events.SearchPerformed) error {
	if ev == nil || ev.Search == nil {
		return errors.New("stats: empty search event")
	}
	rec := *ev.Search
	rec.ID = 0
	if err := r.store.RecordSearch(ctx, &rec); err != nil {
		return fmt.Errorf("stats: record search: %w", err)
	}
	r.metrics.SearchesRecorded.Inc()
	return nil
}

// TopQueries returns the most frequent queries of the last window.
func (r *Recorder) TopQueries(ctx context.Context, window time.Duration, limit int) ([]*model.QueryCount, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	return r.store.TopQueries(ctx, r.now().Add(-window), limit)
}

// Prune drops search events older than retention.
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, nil
	}
	n, err := r.store.PruneSearches(ctx, r.now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("stats: prune: %w", err)
	}
	if n > 0 {
		r.logger.Info("stats: pruned search log", "deleted", n)
	}
	return n, nil
}

// StartSubscriber listens for search-performed events on the event bus and
// records them. It blocks until ctx is cancelled.
func (r *Recorder) StartSubscriber(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicSearchPerformed)
	if err != nil {
		return fmt.Errorf("stats: subscribe: %w", err)
	}
	defer cancel()

	r.logger.Info("stats: subscriber started")

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("stats: subscriber stopping")
			return nil
		case raw, ok := <-ch:
			if !ok {
				r.logger.Info("stats: subscription channel closed")
				return nil
			}

			ev, err := events.DecodeSearchPerformed(raw)
			if err != nil {
				r.logger.Warn("stats: bad event payload", "err", err)
				continue
			}
			if err := r.Record(ctx, ev); err != nil {
				r.logger.Error("stats: failed to record search", "query", ev.Search.Query, "err", err)
			}
		}
	}
}
