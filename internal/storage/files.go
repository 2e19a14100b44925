package storage

import (
	"context"
	"database/sql"
	"fmt"
	"mime"
	"path/filepath"
	"time"
)

// SaveSourceFile persists the blob and its metadata. When MimeType is
// empty it is inferred from the display name's extension, falling back
// to application/octet-stream.
func (s *Store) SaveSourceFile(ctx context.Context, f SourceFile) error {
	mimeType := f.MimeType
	if mimeType == "" {
		mimeType = InferMimeType(f.DisplayName)
	}
	createdAt := f.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO source_files (id, display_name, mime_type, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		f.ID, f.DisplayName, mimeType, f.Content, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting source file %s: %w", f.ID, err)
	}
	return nil
}

// GetSourceFile returns the blob and metadata for the given id.
func (s *Store) GetSourceFile(ctx context.Context, id string) (SourceFile, error) {
	var f SourceFile
	var createdAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, display_name, mime_type, content, created_at
		FROM source_files WHERE id = ?`, id,
	).Scan(&f.ID, &f.DisplayName, &f.MimeType, &f.Content, &createdAt)
	if err == sql.ErrNoRows {
		return SourceFile{}, ErrNotFound
	}
	if err != nil {
		return SourceFile{}, fmt.Errorf("fetching source file %s: %w", id, err)
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return SourceFile{}, fmt.Errorf("parsing created_at: %w", err)
	}
	f.CreatedAt = t
	return f, nil
}

// DeleteSourceFile removes the blob row. Referencing fragment and table
// records are deleted separately through the retrieval store; callers own
// the cascade. Returns ErrNotFound when the id does not exist.
func (s *Store) DeleteSourceFile(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM source_files WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting source file %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListSourceFiles returns metadata for stored documents, newest first,
// with fragment and table record counts taken from the embeddings table.
// tablesCollection names the collection holding table records; every
// other collection counts as fragments.
func (s *Store) ListSourceFiles(ctx context.Context, tablesCollection string, limit int) ([]SourceFileInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT f.id, f.display_name, f.mime_type, LENGTH(f.content), f.created_at,
			COALESCE(SUM(CASE WHEN e.collection != ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN e.collection = ? THEN 1 ELSE 0 END), 0)
		FROM source_files f
		LEFT JOIN embeddings e ON e.source_id = f.id
		GROUP BY f.id
		ORDER BY f.created_at DESC
		LIMIT ?`, tablesCollection, tablesCollection, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("listing source files: %w", err)
	}
	defer rows.Close()

	var results []SourceFileInfo
	for rows.Next() {
		var info SourceFileInfo
		var createdAt string
		if err := rows.Scan(&info.ID, &info.DisplayName, &info.MimeType, &info.SizeBytes, &createdAt, &info.Fragments, &info.Tables); err != nil {
			return nil, fmt.Errorf("scanning source file row: %w", err)
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		info.CreatedAt = t
		results = append(results, info)
	}
	return results, rows.Err()
}

// InferMimeType guesses a MIME type from the file name's extension.
func InferMimeType(name string) string {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}
