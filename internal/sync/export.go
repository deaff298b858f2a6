package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
	"github.com/alfredjeanlab/discovery/internal/store"
)

// exportPageSize is how many search events are read per store call.
const exportPageSize = 1000

// topQueriesInExport caps the top_query records of an export.
const topQueriesInExport = 50

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version       string    `json:"version"`
	Type          string    `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	Since         time.Time `json:"since,omitzero"`
	SearchCount   int       `json:"search_count"`
	TopQueryCount int       `json:"top_query_count"`
}

// record wraps a single JSONL line with a type discriminator.
type record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// ExportJSONL writes the search log recorded since the given time (zero
// means everything) as JSONL to w, followed by the top queries of the same
// period. Searches are written oldest first.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer, since time.Time) error {
	searches, err := listAll(ctx, s, since)
	if err != nil {
		return err
	}

	top, err := s.TopQueries(ctx, since, topQueriesInExport)
	if err != nil {
		return fmt.Errorf("top queries: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:       "1",
		Type:          "header",
		Timestamp:     time.Now().UTC(),
		Since:         since,
		SearchCount:   len(searches),
		TopQueryCount: len(top),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, ev := range searches {
		if err := enc.Encode(record{Type: "search", Data: ev}); err != nil {
			return fmt.Errorf("encode search %d: %w", ev.ID, err)
		}
	}
	for _, q := range top {
		if err := enc.Encode(record{Type: "top_query", Data: q}); err != nil {
			return fmt.Errorf("encode top query %q: %w", q.Query, err)
		}
	}
	return nil
}

// listAll pages through the search log. Rows inserted while paging can
// shift later pages, so events are de-duplicated by ID.
func listAll(ctx context.Context, s store.Store, since time.Time) ([]*model.SearchEvent, error) {
	seen := make(map[int64]bool)
	var out []*model.SearchEvent
	for offset := 0; ; offset += exportPageSize {
		page, _, err := s.ListSearches(ctx, model.SearchEventFilter{
			Since:  since,
			Limit:  exportPageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, fmt.Errorf("list searches: %w", err)
		}
		for _, ev := range page {
			if !seen[ev.ID] {
				seen[ev.ID] = true
				out = append(out, ev)
			}
		}
		if len(page) < exportPageSize {
			break
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out, nil
}
