package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type archiveRepository struct {
	db *DB
}

func NewArchiveRepository(db *DB) ArchiveRepository {
	return &archiveRepository{db: db}
}

func (r *archiveRepository) CreateArchive(archive *Archive) error {
	if archive.ID == "" {
		archive.ID = uuid.NewString()
	}
	if archive.CreatedAt.IsZero() {
		archive.CreatedAt = time.Now()
	}

	var resultID any
	if archive.ResultID != "" {
		resultID = archive.ResultID
	}

	_, err := r.db.Exec(`
		INSERT INTO search_archives (
			id, user_id, result_id, original_url, final_url, canonical_url, title,
			content_type, archived_content, content_markdown, content_hash, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, archive.ID, archive.UserID, resultID, archive.OriginalURL, archive.FinalURL, archive.CanonicalURL, archive.Title,
		archive.ContentType, archive.Content, archive.Markdown, archive.ContentHash, utc(archive.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}

	return nil
}

func (r *archiveRepository) GetArchive(id string) (*Archive, error) {
	var archive Archive
	err := r.db.QueryRow(`
		SELECT id, user_id, COALESCE(result_id, ''), original_url, final_url, canonical_url, title,
		       content_type, archived_content, content_markdown, content_hash, created_at
		FROM search_archives
		WHERE id = ?
	`, id).Scan(
		&archive.ID, &archive.UserID, &archive.ResultID, &archive.OriginalURL, &archive.FinalURL, &archive.CanonicalURL,
		&archive.Title, &archive.ContentType, &archive.Content, &archive.Markdown, &archive.ContentHash, &archive.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get archive: %w", err)
	}

	return &archive, nil
}
