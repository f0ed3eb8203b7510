package driving

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// PurgeOptions are per-invocation overrides. Empty fields fall back to configuration.
type PurgeOptions struct {
	IndexName        string
	TargetFolderPath string
}

// Purger reconciles the search index against SharePoint.
//
// Neither method returns a Go error: configuration, authentication and index
// failures are reported through the outcome's Success, Message and Errors fields.
type Purger interface {
	// Purge deletes the chunks of every orphaned file in batches.
	Purge(ctx context.Context, opts PurgeOptions) domain.PurgeOutcome

	// Preview reports what Purge would delete without deleting anything.
	Preview(ctx context.Context, opts PurgeOptions) domain.PreviewOutcome
}
