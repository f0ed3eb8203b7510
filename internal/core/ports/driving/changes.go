package driving

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// ChangeTracker detects and applies SharePoint changes against stored metadata.
//
// Folder arguments are document-library paths such as "/Reports/2024". A
// folder written as "Library Name|/path" is read from the named library
// instead of the site's default drive.
type ChangeTracker interface {
	// CurrentFiles lists the files currently in the given folders, keyed by ID.
	CurrentFiles(ctx context.Context, folders []string) (map[string]domain.FileMetadata, error)

	// DetectChanges classifies the live folder contents against stored metadata.
	// Nothing is written.
	DetectChanges(ctx context.Context, folders []string) (domain.ChangeSet, error)

	// Sync detects changes, purges deleted files from the index, indexes new
	// and modified files, and records the run in the sync history.
	Sync(ctx context.Context, folders []string, indexName string) domain.SyncReport

	// History returns the most recent sync runs, newest first.
	History(ctx context.Context, limit int) ([]domain.SyncRecord, error)
}
