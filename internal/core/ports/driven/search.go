package driven

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// SearchIndex provides access to the search index holding SharePoint chunks.
// Backed by Azure AI Search.
type SearchIndex interface {
	// Search runs a query against the named index and returns raw documents.
	Search(ctx context.Context, index string, query domain.SearchQuery) ([]domain.IndexDocument, error)

	// Delete removes documents by key in a single call.
	// Callers are responsible for batching; see domain.MaxDeleteBatchSize.
	Delete(ctx context.Context, index, keyField string, keys []string) error
}
