package model

import "time"

// SearchEvent is a persisted "search performed" record, mirroring what is
// published on the event bus when a retrieval settles with hits.
type SearchEvent struct {
	ID            int64         `json:"id"`
	SessionID     string        `json:"session_id,omitempty"`
	PaginationID  string        `json:"pagination_id"`
	Configuration string        `json:"configuration"`
	Scope         string        `json:"scope,omitempty"`
	Query         string        `json:"query"`
	Filters       []Filter      `json:"filters,omitempty"`
	DSOType       DSOType       `json:"dso_type,omitempty"`
	Page          int           `json:"page"`
	PageSize      int           `json:"page_size"`
	Sort          SortOptions   `json:"sort"`
	TotalElements int           `json:"total_elements"`
	Returned      int           `json:"returned"`
	Took          time.Duration `json:"took"`
	CreatedAt     time.Time     `json:"created_at"`
}

// NewSearchEvent builds the record for a successful retrieval.
func NewSearchEvent(sessionID string, opts PaginatedSearchOptions, res *SearchResult, took time.Duration, at time.Time) *SearchEvent {
	ev := &SearchEvent{
		SessionID:     sessionID,
		PaginationID:  opts.Pagination.ID,
		Configuration: opts.Configuration,
		Scope:         opts.Scope,
		Query:         opts.Query,
		Filters:       append([]Filter(nil), opts.Filters...),
		DSOType:       opts.DSOType,
		Page:          opts.Pagination.CurrentPage,
		PageSize:      opts.Pagination.PageSize,
		Sort:          opts.Sort,
		Took:          took,
		CreatedAt:     at,
	}
	if res != nil {
		ev.TotalElements = res.Page.TotalElements
		ev.Returned = len(res.Objects)
	}
	return ev
}

// SearchEventFilter holds criteria for querying the search log.
type SearchEventFilter struct {
	SessionID     string    `json:"session_id,omitempty"`
	Configuration string    `json:"configuration,omitempty"`
	Scope         string    `json:"scope,omitempty"`
	Query         string    `json:"query,omitempty"` // substring match
	Since         time.Time `json:"since,omitempty"`
	Limit         int       `json:"limit,omitempty"`
	Offset        int       `json:"offset,omitempty"`
}

// QueryCount is one row of the top-queries report.
type QueryCount struct {
	Query    string    `json:"query"`
	Count    int       `json:"count"`
	LastSeen time.Time `json:"last_seen"`
}
