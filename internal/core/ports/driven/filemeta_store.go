package driven

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// FileMetadataStore persists tracked SharePoint file metadata and the
// append-only sync history.
type FileMetadataStore interface {
	// ListFiles returns every stored record keyed by file ID.
	ListFiles(ctx context.Context) (map[string]domain.FileMetadata, error)

	// UpsertFile creates or replaces the record with the same ID.
	// Each call commits independently.
	UpsertFile(ctx context.Context, meta domain.FileMetadata) error

	// DeleteFiles removes the records with the given IDs.
	// Unknown IDs are ignored.
	DeleteFiles(ctx context.Context, ids []string) error

	// RecordSync appends a sync history row.
	RecordSync(ctx context.Context, record domain.SyncRecord) error

	// SyncHistory returns the most recent rows, newest first.
	SyncHistory(ctx context.Context, limit int) ([]domain.SyncRecord, error)
}
