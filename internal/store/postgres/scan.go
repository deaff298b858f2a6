package postgres

import (
	"encoding/json"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// scannable is the interface satisfied by both *sql.Row and *sql.Rows.
type scannable interface {
	Scan(dest ...any) error
}

// scanSearchEventWithTotal scans a row that has a leading total_count
// column followed by the columns of searchColumns.
func scanSearchEventWithTotal(row scannable) (*model.SearchEvent, int, error) {
	var (
		total     int
		ev        model.SearchEvent
		filters   []byte
		dsoType   string
		direction string
		tookUS    int64
	)
	err := row.Scan(
		&total,
		&ev.ID,
		&ev.SessionID,
		&ev.PaginationID,
		&ev.Configuration,
		&ev.Scope,
		&ev.Query,
		&filters,
		&dsoType,
		&ev.Page,
		&ev.PageSize,
		&ev.Sort.Field,
		&direction,
		&ev.TotalElements,
		&ev.Returned,
		&tookUS,
		&ev.CreatedAt,
	)
	if err != nil {
		return nil, 0, err
	}
	ev.DSOType = model.DSOType(dsoType)
	ev.Sort.Direction = model.SortDirection(direction)
	ev.Took = time.Duration(tookUS) * time.Microsecond
	if len(filters) > 0 {
		if err := json.Unmarshal(filters, &ev.Filters); err != nil {
			return nil, 0, err
		}
	}
	return &ev, total, nil
}

// filtersJSON encodes filters for the JSONB column; no filters is NULL.
func filtersJSON(filters []model.Filter) ([]byte, error) {
	if len(filters) == 0 {
		return nil, nil
	}
	return json.Marshal(filters)
}
