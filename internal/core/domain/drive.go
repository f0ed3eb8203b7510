package domain

import (
	"strings"
	"time"
)

// Site is a resolved SharePoint site.
type Site struct {
	// ID is the Graph site ID. For named sites this is the composite
	// "host,siteCollectionId,webId" form.
	ID string

	// Host is the tenant host, e.g. contoso.sharepoint.com.
	Host string

	// Path is the server-relative site path, "" for the root site.
	Path string
}

// IsComposite reports whether the site ID has the comma-separated composite form.
func (s Site) IsComposite() bool {
	return strings.Contains(s.ID, ",")
}

// DriveItem is a file or folder returned by Graph.
type DriveItem struct {
	ID           string
	Name         string
	ETag         string
	Size         int64
	LastModified time.Time
	WebURL       string

	// ParentID and ParentPath come from the item's parentReference.
	ParentID   string
	ParentPath string

	// SHA1 is the file hash when Graph reports one.
	SHA1 string

	// IsFolder is set for folder items.
	IsFolder bool
}
