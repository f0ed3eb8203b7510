package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
)

// fileMetadataStore implements driven.FileMetadataStore.
type fileMetadataStore struct {
	store *Store
}

var _ driven.FileMetadataStore = (*fileMetadataStore)(nil)

// ListFiles returns every tracked file keyed by ID.
func (s *fileMetadataStore) ListFiles(ctx context.Context) (map[string]domain.FileMetadata, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT file_id, file_name, file_path, parent_id, size, modified_datetime,
		       etag, checksum, last_indexed, indexed_in_search, index_name
		FROM file_metadata
	`)
	if err != nil {
		return nil, fmt.Errorf("querying file metadata: %w", err)
	}
	defer rows.Close()

	files := make(map[string]domain.FileMetadata)
	for rows.Next() {
		var f domain.FileMetadata
		var lastIndexed sql.NullString
		var indexed int
		if err := rows.Scan(&f.ID, &f.Name, &f.Path, &f.ParentID, &f.Size, &f.ModifiedDateTime,
			&f.ETag, &f.Checksum, &lastIndexed, &indexed, &f.IndexName); err != nil {
			return nil, fmt.Errorf("scanning file metadata: %w", err)
		}
		f.LastIndexed = parseNullTime(lastIndexed)
		f.IndexedInSearch = indexed == 1
		files[f.ID] = f
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating file metadata: %w", err)
	}
	return files, nil
}

// UpsertFile creates or replaces a file's metadata.
func (s *fileMetadataStore) UpsertFile(ctx context.Context, f domain.FileMetadata) error {
	if f.ID == "" {
		return fmt.Errorf("%w: file id is required", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO file_metadata (
			file_id, file_name, file_path, parent_id, size, modified_datetime,
			etag, checksum, last_indexed, indexed_in_search, index_name, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_id) DO UPDATE SET
			file_name = excluded.file_name,
			file_path = excluded.file_path,
			parent_id = excluded.parent_id,
			size = excluded.size,
			modified_datetime = excluded.modified_datetime,
			etag = excluded.etag,
			checksum = excluded.checksum,
			last_indexed = excluded.last_indexed,
			indexed_in_search = excluded.indexed_in_search,
			index_name = excluded.index_name,
			updated_at = excluded.updated_at
	`, f.ID, f.Name, f.Path, f.ParentID, f.Size, f.ModifiedDateTime,
		f.ETag, f.Checksum, nullTime(f.LastIndexed), boolToInt(f.IndexedInSearch), f.IndexName,
		formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("saving file metadata: %w", err)
	}
	return nil
}

// DeleteFiles removes metadata for ids in one transaction.
func (s *fileMetadataStore) DeleteFiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM file_metadata WHERE file_id = ?`)
	if err != nil {
		return fmt.Errorf("preparing delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("deleting file metadata %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	return nil
}

// RecordSync appends one sync history row.
func (s *fileMetadataStore) RecordSync(ctx context.Context, r domain.SyncRecord) error {
	if r.ID == "" {
		return fmt.Errorf("%w: sync record id is required", domain.ErrInvalidInput)
	}

	_, err := s.store.db.ExecContext(ctx, `
		INSERT INTO sync_history (
			id, synced_at, files_added, files_modified, files_deleted,
			folders_scanned, duration_ms, status, error_message
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, formatTime(r.SyncedAt), r.FilesAdded, r.FilesModified, r.FilesDeleted,
		r.FoldersScanned, r.Duration.Milliseconds(), string(r.Status), nullString(r.ErrorMessage))
	if err != nil {
		return fmt.Errorf("recording sync history: %w", err)
	}
	return nil
}

// SyncHistory returns the most recent limit runs, newest first.
func (s *fileMetadataStore) SyncHistory(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, synced_at, files_added, files_modified, files_deleted,
		       folders_scanned, duration_ms, status, error_message
		FROM sync_history
		ORDER BY synced_at DESC, rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying sync history: %w", err)
	}
	defer rows.Close()

	var records []domain.SyncRecord //nolint:prealloc // size unknown from query
	for rows.Next() {
		var r domain.SyncRecord
		var syncedAt, status string
		var durationMS int64
		var errMsg sql.NullString
		if err := rows.Scan(&r.ID, &syncedAt, &r.FilesAdded, &r.FilesModified, &r.FilesDeleted,
			&r.FoldersScanned, &durationMS, &status, &errMsg); err != nil {
			return nil, fmt.Errorf("scanning sync history: %w", err)
		}
		r.SyncedAt = parseTime(syncedAt)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		r.Status = domain.SyncStatus(status)
		r.ErrorMessage = errMsg.String
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync history: %w", err)
	}
	return records, nil
}
