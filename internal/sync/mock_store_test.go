package sync

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/store"
)

// mockStore is a minimal in-memory store for sync tests.
type mockStore struct {
	mu       sync.Mutex
	searches []*model.SearchEvent
	listErr  error
	calls    int
}

func newMockStore() *mockStore {
	return &mockStore{}
}

var _ store.Store = (*mockStore)(nil)

func (m *mockStore) add(id int64, query string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, &model.SearchEvent{
		ID: id, PaginationID: "spc", Configuration: "default", Query: query,
		Page: 1, PageSize: 10, CreatedAt: at,
	})
}

func (m *mockStore) RecordSearch(_ context.Context, ev *model.SearchEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev.ID = int64(len(m.searches) + 1)
	m.searches = append(m.searches, ev)
	return nil
}

// ListSearches returns newest first, like the postgres store.
func (m *mockStore) ListSearches(_ context.Context, f model.SearchEventFilter) ([]*model.SearchEvent, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.listErr != nil {
		return nil, 0, m.listErr
	}
	var matched []*model.SearchEvent
	for _, ev := range m.searches {
		if !f.Since.IsZero() && ev.CreatedAt.Before(f.Since) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ID > matched[j].ID
	})
	total := len(matched)
	if f.Offset >= len(matched) {
		return nil, total, nil
	}
	matched = matched[f.Offset:]
	if f.Limit > 0 && len(matched) > f.Limit {
		matched = matched[:f.Limit]
	}
	return matched, total, nil
}

func (m *mockStore) TopQueries(_ context.Context, since time.Time, limit int) ([]*model.QueryCount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := make(map[string]*model.QueryCount)
	for _, ev := range m.searches {
		if ev.Query == "" || (!since.IsZero() && ev.CreatedAt.Before(since)) {
			continue
		}
		qc, ok := counts[ev.Query]
		if !ok {
			qc = &model.QueryCount{Query: ev.Query}
			counts[ev.Query] = qc
		}
		qc.Count++
		if ev.CreatedAt.After(qc.LastSeen) {
			qc.LastSeen = ev.CreatedAt
		}
	}
	var out []*model.QueryCount
	for _, qc := range counts {
		out = append(out, qc)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Query < out[j].Query
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) PruneSearches(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (m *mockStore) RunInTransaction(_ context.Context, fn func(tx store.Store) error) error {
	return fn(m)
}

func (m *mockStore) Close() error {
	return nil
}
