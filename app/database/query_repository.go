package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type queryRepository struct {
	db *DB
}

func NewQueryRepository(db *DB) QueryRepository {
	return &queryRepository{db: db}
}

const querySelect = `
	SELECT id, user_id, project_id, monitor_name, query_text, search_mode, search_type,
	       sources, date_range_start, date_range_end, jurisdiction, status,
	       result_count, duplicate_count, filtered_count, error_message, created_at, completed_at
	FROM search_queries`

// CreateQuery inserts a query record. ID and CreatedAt are filled in when empty.
func (r *queryRepository) CreateQuery(query *Query) error {
	if query.ID == "" {
		query.ID = uuid.NewString()
	}
	if query.CreatedAt.IsZero() {
		query.CreatedAt = time.Now()
	}
	if query.Status == "" {
		query.Status = QueryStatusProcessing
	}

	sources, err := encodeList(query.Sources)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO search_queries (
			id, user_id, project_id, monitor_name, query_text, search_mode, search_type,
			sources, date_range_start, date_range_end, jurisdiction, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, query.ID, query.UserID, query.ProjectID, query.MonitorName, query.QueryText, query.SearchMode, query.SearchType,
		sources, utcPtr(query.DateRangeStart), utcPtr(query.DateRangeEnd), query.Jurisdiction, query.Status, utc(query.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create query: %w", err)
	}

	return nil
}

func (r *queryRepository) GetQuery(id string) (*Query, error) {
	row := r.db.QueryRow(querySelect+` WHERE id = ?`, id)

	query, err := scanQuery(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get query: %w", err)
	}

	return query, nil
}

func (r *queryRepository) ListQueries(userID string, limit int) ([]Query, error) {
	rows, err := r.db.Query(querySelect+`
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list queries: %w", err)
	}
	defer rows.Close()

	queries := []Query{}
	for rows.Next() {
		query, err := scanQuery(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan query row: %w", err)
		}
		queries = append(queries, *query)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating query rows: %w", err)
	}

	return queries, nil
}

// CountQueriesSince counts a user's queries created at or after since,
// optionally restricted to the given search modes.
func (r *queryRepository) CountQueriesSince(userID string, since time.Time, modes ...string) (int, error) {
	stmt := `SELECT COUNT(*) FROM search_queries WHERE user_id = ? AND created_at >= ?`
	args := []any{userID, utc(since)}

	if len(modes) > 0 {
		stmt += ` AND search_mode IN (` + placeholders(len(modes)) + `)`
		for _, mode := range modes {
			args = append(args, mode)
		}
	}

	var count int
	if err := r.db.QueryRow(stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count queries: %w", err)
	}

	return count, nil
}

func (r *queryRepository) CompleteQuery(id string, resultCount, duplicateCount, filteredCount int, completedAt time.Time) error {
	res, err := r.db.Exec(`
		UPDATE search_queries
		SET status = ?, result_count = ?, duplicate_count = ?, filtered_count = ?, completed_at = ?
		WHERE id = ?
	`, QueryStatusCompleted, resultCount, duplicateCount, filteredCount, utc(completedAt), id)
	if err != nil {
		return fmt.Errorf("failed to complete query: %w", err)
	}

	return expectRows(res, "query "+id)
}

func (r *queryRepository) FailQuery(id string, message string) error {
	res, err := r.db.Exec(`
		UPDATE search_queries
		SET status = ?, error_message = ?
		WHERE id = ?
	`, QueryStatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark query as failed: %w", err)
	}

	return expectRows(res, "query "+id)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQuery(row rowScanner) (*Query, error) {
	var query Query
	var sources string

	err := row.Scan(
		&query.ID, &query.UserID, &query.ProjectID, &query.MonitorName, &query.QueryText, &query.SearchMode, &query.SearchType,
		&sources, &query.DateRangeStart, &query.DateRangeEnd, &query.Jurisdiction, &query.Status,
		&query.ResultCount, &query.DuplicateCount, &query.FilteredCount, &query.ErrorMessage, &query.CreatedAt, &query.CompletedAt,
	)
	if err != nil {
		return nil, err
	}

	if query.Sources, err = decodeList(sources); err != nil {
		return nil, err
	}

	return &query, nil
}
