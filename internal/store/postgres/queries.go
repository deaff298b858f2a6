package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/discovery/internal/model"
)

// searchColumns is the column list used for SELECT statements on the
// search_events table.
const searchColumns = `id, session_id, pagination_id, configuration, scope, query,
	filters, dso_type, page, page_size, sort_field, sort_direction,
	total_elements, returned, took_us, created_at`

// defaultTopQueriesLimit caps TopQueries when the caller passes no limit.
const defaultTopQueriesLimit = 20

// executor is the interface satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func queryRecordSearch(ctx context.Context, db executor, ev *model.SearchEvent) error {
	filters, err := filtersJSON(ev.Filters)
	if err != nil {
		return fmt.Errorf("encode filters: %w", err)
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	err = db.QueryRowContext(ctx, `
		INSERT INTO search_events (
			session_id, pagination_id, configuration, scope, query,
			filters, dso_type, page, page_size, sort_field, sort_direction,
			total_elements, returned, took_us, created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11,
			$12, $13, $14, $15
		) RETURNING id`,
		ev.SessionID,
		ev.PaginationID,
		ev.Configuration,
		ev.Scope,
		ev.Query,
		filters,
		string(ev.DSOType),
		ev.Page,
		ev.PageSize,
		ev.Sort.Field,
		string(ev.Sort.Direction),
		ev.TotalElements,
		ev.Returned,
		ev.Took.Microseconds(),
		ev.CreatedAt,
	).Scan(&ev.ID)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

func queryListSearches(ctx context.Context, db executor, filter model.SearchEventFilter) ([]*model.SearchEvent, int, error) {
	var (
		whereClauses []string
		args         []any
		argIdx       int
	)

	nextArg := func() string {
		argIdx++
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.SessionID != "" {
		whereClauses = append(whereClauses, "session_id = "+nextArg())
		args = append(args, filter.SessionID)
	}
	if filter.Configuration != "" {
		whereClauses = append(whereClauses, "configuration = "+nextArg())
		args = append(args, filter.Configuration)
	}
	if filter.Scope != "" {
		whereClauses = append(whereClauses, "scope = "+nextArg())
		args = append(args, filter.Scope)
	}
	if filter.Query != "" {
		whereClauses = append(whereClauses, fmt.Sprintf("query ILIKE '%%' || %s || '%%'", nextArg()))
		args = append(args, filter.Query)
	}
	if !filter.Since.IsZero() {
		whereClauses = append(whereClauses, "created_at >= "+nextArg())
		args = append(args, filter.Since)
	}

	whereSQL := ""
	if len(whereClauses) > 0 {
		whereSQL = " WHERE " + strings.Join(whereClauses, " AND ")
	}

	// Single query with COUNT(*) OVER() to get total and rows atomically.
	dataQuery := "SELECT COUNT(*) OVER() AS total_count, " + searchColumns +
		" FROM search_events" + whereSQL + " ORDER BY created_at DESC, id DESC"

	if filter.Limit > 0 {
		dataQuery += " LIMIT " + nextArg()
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		dataQuery += " OFFSET " + nextArg()
		args = append(args, filter.Offset)
	}

	rows, err := db.QueryContext(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list searches: %w", err)
	}
	defer rows.Close()

	var events []*model.SearchEvent
	var total int
	for rows.Next() {
		ev, t, err := scanSearchEventWithTotal(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan searches: %w", err)
		}
		total = t
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan searches: %w", err)
	}

	return events, total, nil
}

func queryTopQueries(ctx context.Context, db executor, since time.Time, limit int) ([]*model.QueryCount, error) {
	if limit <= 0 {
		limit = defaultTopQueriesLimit
	}
	rows, err := db.QueryContext(ctx, `
		SELECT lower(query) AS q, COUNT(*) AS n, MAX(created_at) AS last_seen
		FROM search_events
		WHERE query <> '' AND created_at >= $1
		GROUP BY lower(query)
		ORDER BY n DESC, q ASC
		LIMIT $2`, since, limit)
	if err != nil {
		return nil, fmt.Errorf("top queries: %w", err)
	}
	defer rows.Close()

	var out []*model.QueryCount
	for rows.Next() {
		var qc model.QueryCount
		if err := rows.Scan(&qc.Query, &qc.Count, &qc.LastSeen); err != nil {
			return nil, fmt.Errorf("scan top queries: %w", err)
		}
		out = append(out, &qc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan top queries: %w", err)
	}
	return out, nil
}

func queryPruneSearches(ctx context.Context, db executor, before time.Time) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM search_events WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("prune searches: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune searches: %w", err)
	}
	return n, nil
}
