package azuresearch

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// APIError represents a non-success Azure Search response.
type APIError struct {
	StatusCode int
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("azuresearch: API error %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Is lets errors.Is(err, domain.ErrNotFound) match a missing index.
func (e *APIError) Is(target error) bool {
	return target == domain.ErrNotFound && e.StatusCode == http.StatusNotFound
}

// IndexingError reports the keys a delete batch failed for.
type IndexingError struct {
	Failed map[string]string
}

func (e *IndexingError) Error() string {
	keys := make([]string, 0, len(e.Failed))
	for key := range e.Failed {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, key+": "+e.Failed[key])
	}
	return fmt.Sprintf("azuresearch: %d documents failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// IsNotFound checks if the error indicates the index does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, domain.ErrNotFound)
}

// IsForbidden checks if the error indicates a rejected api-key.
func IsForbidden(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusForbidden || apiErr.StatusCode == http.StatusUnauthorized
	}
	return false
}
