package domain

import (
	"fmt"
	"sort"
	"strings"
)

// IndexDocument is one raw document returned by the search index.
// Index schemas vary, so fields are kept as decoded JSON values and read
// through the typed accessors below.
type IndexDocument map[string]any

// Has reports whether the document carries the field at all.
func (d IndexDocument) Has(field string) bool {
	_, ok := d[field]
	return ok
}

// String returns the field as a string, or "" when it is absent or null.
// Non-string scalars are formatted.
func (d IndexDocument) String(field string) string {
	v, ok := d[field]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case float64, int, int64, bool:
		return fmt.Sprint(t)
	default:
		return ""
	}
}

// Fields returns the document's field names in sorted order.
func (d IndexDocument) Fields() []string {
	fields := make([]string, 0, len(d))
	for k := range d {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// IsSharePoint reports whether the document's url field points at SharePoint.
func (d IndexDocument) IsSharePoint() bool {
	return strings.Contains(d.String(FieldURL), "sharepoint.com")
}

// Index field names used by the scanner.
const (
	FieldID           = "id"
	FieldURL          = "url"
	FieldParentID     = "parent_id"
	FieldSharePointID = "sharepoint_id"
	FieldStoragePath  = "metadata_storage_path"
	FieldStorageName  = "metadata_storage_name"
	FieldSourceFile   = "source_file"
	FieldFilename     = "filename"
	FieldSource       = "source"
)

// IdentityFieldPriority is the order in which index fields are considered
// as the carrier of SharePoint file identity. The first present field wins.
var IdentityFieldPriority = []string{
	FieldURL,
	FieldParentID,
	FieldSharePointID,
	FieldStoragePath,
}

// IndexedChunk is one chunk row read during a scan.
type IndexedChunk struct {
	// ID is the chunk's index key.
	ID string

	// IdentityValue is the raw value of the identity field.
	IdentityValue string

	StorageName string
	SourceFile  string
	Filename    string
	StoragePath string
	URL         string
}

// ChunkFromDocument validates a scanned document against the identity field.
// It returns false when the chunk key or the identity value is missing.
func ChunkFromDocument(doc IndexDocument, identityField string) (IndexedChunk, bool) {
	c := IndexedChunk{
		ID:            doc.String(FieldID),
		IdentityValue: doc.String(identityField),
		StorageName:   doc.String(FieldStorageName),
		SourceFile:    doc.String(FieldSourceFile),
		Filename:      doc.String(FieldFilename),
		StoragePath:   doc.String(FieldStoragePath),
		URL:           doc.String(FieldURL),
	}
	if c.ID == "" || c.IdentityValue == "" {
		return IndexedChunk{}, false
	}
	return c, true
}

// MetadataName returns the best filename carried by index metadata.
func (c IndexedChunk) MetadataName() string {
	switch {
	case c.StorageName != "":
		return c.StorageName
	case c.SourceFile != "":
		return c.SourceFile
	default:
		return c.Filename
	}
}

// FileKey is one distinct SharePoint file referenced by the index.
// Several chunks share a key; grouping happens on Value before any Graph lookup.
type FileKey struct {
	// Value is the identifier taken from the index, after pattern extraction
	// (sourcedoc GUID, drive item ID) but before any Graph resolution.
	Value string

	// DisplayName is the best-effort original filename, "" when unknown.
	DisplayName string

	// Path is the storage path or URL recorded for the file.
	Path string

	// ChunkIDs are the index keys of every chunk of the file, in scan order.
	ChunkIDs []string
}

// IsURL reports whether the key still needs URL-to-ID resolution.
func (k FileKey) IsURL() bool {
	return strings.HasPrefix(k.Value, "http://") || strings.HasPrefix(k.Value, "https://")
}

// SearchQuery is a request to the index store.
type SearchQuery struct {
	// Text is the full-text query; "*" matches everything.
	Text string

	// Filter is an OData filter expression, "" for none.
	Filter string

	// Select lists returned fields; ["*"] or empty returns all.
	Select []string

	// Top caps the number of returned documents.
	Top int
}
