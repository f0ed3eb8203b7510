package services

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/logger"
)

const (
	sampleSize = 10
	scanLimit  = 10000
)

var (
	sourceDocPattern = regexp.MustCompile(`sourcedoc=([^&]+)`)
	driveItemPattern = regexp.MustCompile(`/drive/items/([^/]+)`)
	fileParamPattern = regexp.MustCompile(`[&?]file=([^&]+)`)
)

// ScanResult is the outcome of reading SharePoint chunks from the index.
type ScanResult struct {
	// DocumentsChecked is the number of chunks returned by the main scan.
	DocumentsChecked int

	// IdentityField is the field used to identify files.
	IdentityField string

	// Files groups chunk keys by source file, in first-seen order.
	Files []domain.FileKey

	// Message is set when the scan ended as a no-op.
	Message string
}

// Scanner reads SharePoint chunks from the search index and groups them by file.
type Scanner struct {
	index driven.SearchIndex
}

// NewScanner creates a scanner over the given index store.
func NewScanner(index driven.SearchIndex) *Scanner {
	return &Scanner{index: index}
}

// Scan samples the index to pick the identity field, reads every SharePoint
// chunk and groups the chunks by file. An error is only returned when the
// index could not be read.
func (s *Scanner) Scan(ctx context.Context, indexName string) (ScanResult, error) {
	sample, err := s.index.Search(ctx, indexName, domain.SearchQuery{
		Text:   "*",
		Select: []string{"*"},
		Top:    sampleSize,
	})
	if err != nil {
		return ScanResult{}, fmt.Errorf("sample index: %w", err)
	}
	if len(sample) == 0 {
		return ScanResult{Message: domain.MsgNoDocuments}, nil
	}

	var spDocs []domain.IndexDocument
	for _, doc := range sample {
		if doc.IsSharePoint() {
			spDocs = append(spDocs, doc)
		}
	}
	if len(spDocs) == 0 {
		for i, doc := range sample {
			if i == 3 {
				break
			}
			logger.Info("sample doc %d: url=%q source=%q", i+1, truncate(doc.String(domain.FieldURL), 100), doc.String(domain.FieldSource))
		}
		return ScanResult{Message: domain.MsgNoSharePointDocs}, nil
	}

	schema := spDocs[0]
	field := identityField(schema)
	if field == "" {
		logger.Warn("available fields: %v", schema.Fields())
		return ScanResult{Message: domain.MsgNoIdentityField}, nil
	}
	logger.Info("using field %q for SharePoint file identification", field)

	docs, err := s.readChunks(ctx, indexName, scanQuery(schema, field))
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{
		DocumentsChecked: len(docs),
		IdentityField:    field,
	}
	if len(docs) == 0 {
		result.Message = domain.MsgNoChunks
		return result, nil
	}

	chunks := make([]domain.IndexedChunk, 0, len(docs))
	for _, doc := range docs {
		if c, ok := domain.ChunkFromDocument(doc, field); ok {
			chunks = append(chunks, c)
		}
	}
	result.Files = GroupChunks(chunks, field)
	if len(result.Files) == 0 {
		result.Message = domain.MsgNoFileIDs
	}
	return result, nil
}

// readChunks runs the main scan. A text and filter search that finds nothing
// is retried with the filter alone; a failed search falls back to text only.
func (s *Scanner) readChunks(ctx context.Context, indexName string, q domain.SearchQuery) ([]domain.IndexDocument, error) {
	mode := "text+filter"
	docs, err := s.index.Search(ctx, indexName, q)
	if err == nil && len(docs) == 0 {
		logger.Info("no results with text and filter, trying filter only")
		mode = "filter-only"
		fq := q
		fq.Text = "*"
		docs, err = s.index.Search(ctx, indexName, fq)
	}
	if err != nil {
		logger.Warn("%s search failed: %v", mode, err)
		mode = "text-only"
		tq := q
		tq.Filter = ""
		docs, err = s.index.Search(ctx, indexName, tq)
		if err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
	}
	logger.Info("%s search returned %d documents", mode, len(docs))
	return docs, nil
}

// identityField returns the first field of the priority list present in doc.
func identityField(doc domain.IndexDocument) string {
	for _, f := range domain.IdentityFieldPriority {
		if doc.Has(f) {
			return f
		}
	}
	return ""
}

// scanQuery builds the main scan query for the chosen identity field.
func scanQuery(schema domain.IndexDocument, field string) domain.SearchQuery {
	q := domain.SearchQuery{
		Text:   "sharepoint.com",
		Filter: field + " ne null",
		Select: []string{domain.FieldID, field},
		Top:    scanLimit,
	}
	if field == domain.FieldStoragePath {
		q.Text = "*"
		q.Filter = "source eq 'sharepoint' and metadata_storage_path ne null"
	}
	optional := []string{
		domain.FieldStorageName,
		domain.FieldStoragePath,
		domain.FieldSourceFile,
		domain.FieldFilename,
		domain.FieldURL,
	}
	for _, f := range optional {
		if schema.Has(f) && !slices.Contains(q.Select, f) {
			q.Select = append(q.Select, f)
		}
	}
	return q
}

// GroupChunks groups chunks by file key. The key is taken from the identity
// value before any Graph lookup: a sourcedoc GUID or the raw URL for url, the
// drive item ID for metadata_storage_path, the raw value otherwise.
// Chunks whose storage path carries no item ID are skipped.
func GroupChunks(chunks []domain.IndexedChunk, field string) []domain.FileKey {
	var files []domain.FileKey
	byKey := make(map[string]int)

	for _, c := range chunks {
		key, ok := fileKeyValue(c.IdentityValue, field)
		if !ok {
			logger.Warn("could not extract file ID from %q", c.IdentityValue)
			continue
		}

		i, seen := byKey[key]
		if !seen {
			i = len(files)
			byKey[key] = i
			files = append(files, domain.FileKey{
				Value: key,
				Path:  filePath(c),
			})
		}
		f := &files[i]
		f.ChunkIDs = append(f.ChunkIDs, c.ID)
		if f.DisplayName == "" {
			f.DisplayName = displayName(c)
		}
	}
	return files
}

func fileKeyValue(value, field string) (string, bool) {
	switch field {
	case domain.FieldURL:
		if m := sourceDocPattern.FindStringSubmatch(value); m != nil {
			return strings.Trim(unescape(m[1]), "{}"), true
		}
		return value, true
	case domain.FieldStoragePath:
		m := driveItemPattern.FindStringSubmatch(value)
		if m == nil {
			return "", false
		}
		return m[1], true
	default:
		return value, true
	}
}

func displayName(c domain.IndexedChunk) string {
	if name := c.MetadataName(); name != "" {
		return name
	}
	if c.URL != "" {
		return nameFromURL(c.URL)
	}
	return ""
}

// nameFromURL reads the file= parameter of a Doc.aspx link, or the last path
// segment of a direct link. Query and fragment never form part of the name.
func nameFromURL(raw string) string {
	if m := fileParamPattern.FindStringSubmatch(raw); m != nil {
		return unescape(m[1])
	}
	u, err := url.Parse(raw)
	if err != nil {
		parts := strings.Split(raw, "/")
		return unescape(parts[len(parts)-1])
	}
	parts := strings.Split(strings.TrimSuffix(u.Path, "/"), "/")
	return parts[len(parts)-1]
}

func filePath(c domain.IndexedChunk) string {
	switch {
	case c.StoragePath != "":
		return c.StoragePath
	case c.URL != "":
		return c.URL
	default:
		return "Unknown"
	}
}

func unescape(s string) string {
	if u, err := url.PathUnescape(s); err == nil {
		return u
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
