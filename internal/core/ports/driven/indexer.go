package driven

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// FileIndexer pushes a SharePoint file into the search index.
// Chunking and embedding happen behind this port.
type FileIndexer interface {
	// IndexFile indexes one new or modified file into the named index.
	IndexFile(ctx context.Context, index string, file domain.FileMetadata) error
}
