package driven

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// GraphClient issues authenticated requests against Microsoft Graph for the
// configured SharePoint site.
//
// Resource arguments are Graph paths relative to the API root, for example
// "/drives/{drive-id}/items/{item-id}". Implementations return an error
// wrapping domain.ErrNotFound when Graph answers 404; any other failure is
// indeterminate and must not be treated as absence.
type GraphClient interface {
	// AcquireToken obtains a client-credentials access token.
	// Returns an error wrapping domain.ErrAuthFailed when the grant fails.
	AcquireToken(ctx context.Context) error

	// ResolveSite looks up the configured site. An empty site name resolves
	// the tenant root site.
	ResolveSite(ctx context.Context) (domain.Site, error)

	// DefaultDriveID returns the ID of the site's default document library.
	DefaultDriveID(ctx context.Context, siteID string) (string, error)

	// DriveIDByName returns the ID of the document library with the given
	// name, compared case-insensitively.
	DriveIDByName(ctx context.Context, siteID, name string) (string, error)

	// GetItem fetches a single drive item.
	GetItem(ctx context.Context, resource string) (*domain.DriveItem, error)

	// ListChildren returns every child of a folder, following pagination.
	ListChildren(ctx context.Context, resource string) ([]domain.DriveItem, error)
}
