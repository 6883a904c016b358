package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type resultRepository struct {
	db *DB
}

func NewResultRepository(db *DB) ResultRepository {
	return &resultRepository{db: db}
}

const resultSelect = `
	SELECT id, query_id, user_id, source_type, source_url, source_domain, normalized_url, result_hash,
	       title, snippet, author, published_at, citation_alwd, is_filtered, filter_reason,
	       is_saved, saved_project_id, user_notes, user_tags, archived_url, archived_at, created_at
	FROM search_results`

func (r *resultRepository) GetResult(id string) (*Result, error) {
	result, err := scanResult(r.db.QueryRow(resultSelect+` WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	return result, nil
}

func (r *resultRepository) GetQueryResults(queryID string) ([]Result, error) {
	return r.queryResults(`
		WHERE query_id = ?
		ORDER BY created_at, rowid
	`, queryID)
}

// GetVisibleMonitorResults returns the newest unfiltered results produced by
// a monitor's runs.
func (r *resultRepository) GetVisibleMonitorResults(monitorName string, limit int) ([]Result, error) {
	return r.queryResults(`
		WHERE query_id IN (SELECT id FROM search_queries WHERE monitor_name = ?)
		  AND is_filtered = 0
		ORDER BY COALESCE(published_at, created_at) DESC
		LIMIT ?
	`, monitorName, limit)
}

// FindExisting returns a user's stored results matching any of the given
// fingerprints or normalized URLs.
func (r *resultRepository) FindExisting(userID string, hashes, normalizedURLs []string) ([]Result, error) {
	if len(hashes) == 0 && len(normalizedURLs) == 0 {
		return []Result{}, nil
	}

	args := []any{userID}
	var conditions []string
	if len(hashes) > 0 {
		conditions = append(conditions, `result_hash IN (`+placeholders(len(hashes))+`)`)
		for _, hash := range hashes {
			args = append(args, hash)
		}
	}
	if len(normalizedURLs) > 0 {
		conditions = append(conditions, `normalized_url IN (`+placeholders(len(normalizedURLs))+`)`)
		for _, u := range normalizedURLs {
			args = append(args, u)
		}
	}

	where := `WHERE user_id = ? AND (` + conditions[0]
	if len(conditions) > 1 {
		where += ` OR ` + conditions[1]
	}
	where += `)`

	return r.queryResults(where, args...)
}

// InsertResults stores results in a single transaction. ID and CreatedAt are
// filled in when empty.
func (r *resultRepository) InsertResults(results []Result) error {
	if len(results) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO search_results (
			id, query_id, user_id, source_type, source_url, source_domain, normalized_url, result_hash,
			title, snippet, author, published_at, citation_alwd, is_filtered, filter_reason, user_tags, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	for i := range results {
		result := &results[i]
		if result.ID == "" {
			result.ID = uuid.NewString()
		}
		if result.CreatedAt.IsZero() {
			result.CreatedAt = now
		}

		tags, err := encodeList(result.UserTags)
		if err != nil {
			return err
		}

		_, err = stmt.Exec(
			result.ID, result.QueryID, result.UserID, result.SourceType, result.SourceURL, result.SourceDomain,
			result.NormalizedURL, result.ResultHash, result.Title, result.Snippet, result.Author,
			utcPtr(result.PublishedAt), result.CitationALWD, result.IsFiltered, result.FilterReason, tags,
			utc(result.CreatedAt),
		)
		if err != nil {
			return fmt.Errorf("failed to insert result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit results: %w", err)
	}

	return nil
}

func (r *resultRepository) SaveResult(id, projectID, notes string, tags []string) error {
	encoded, err := encodeList(tags)
	if err != nil {
		return err
	}

	res, err := r.db.Exec(`
		UPDATE search_results
		SET is_saved = 1, saved_project_id = ?, user_notes = ?, user_tags = ?
		WHERE id = ?
	`, projectID, notes, encoded, id)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	return expectRows(res, "result "+id)
}

func (r *resultRepository) UpdateArchive(id, archivedURL string, archivedAt time.Time) error {
	res, err := r.db.Exec(`
		UPDATE search_results
		SET archived_url = ?, archived_at = ?
		WHERE id = ?
	`, archivedURL, utc(archivedAt), id)
	if err != nil {
		return fmt.Errorf("failed to update archive status: %w", err)
	}

	return expectRows(res, "result "+id)
}

func (r *resultRepository) queryResults(where string, args ...any) ([]Result, error) {
	rows, err := r.db.Query(resultSelect+" "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer rows.Close()

	results := []Result{}
	for rows.Next() {
		result, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		results = append(results, *result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating result rows: %w", err)
	}

	return results, nil
}

func scanResult(row rowScanner) (*Result, error) {
	var result Result
	var tags string

	err := row.Scan(
		&result.ID, &result.QueryID, &result.UserID, &result.SourceType, &result.SourceURL, &result.SourceDomain,
		&result.NormalizedURL, &result.ResultHash, &result.Title, &result.Snippet, &result.Author,
		&result.PublishedAt, &result.CitationALWD, &result.IsFiltered, &result.FilterReason,
		&result.IsSaved, &result.SavedProjectID, &result.UserNotes, &tags, &result.ArchivedURL,
		&result.ArchivedAt, &result.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if result.UserTags, err = decodeList(tags); err != nil {
		return nil, err
	}

	return &result, nil
}
