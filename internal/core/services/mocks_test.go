package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
)

// --- Shared mock implementations ---

var errGraphUnavailable = errors.New("graph: status 503")

func graphNotFound(resource string) error {
	return fmt.Errorf("graph %s: %w", resource, domain.ErrNotFound)
}

// mockGraph implements driven.GraphClient for testing.
// Unregistered resources answer with a 400-style indeterminate error.
type mockGraph struct {
	mu sync.Mutex

	site     domain.Site
	siteErr  error
	tokenErr error
	driveID  string
	driveErr error
	drives   map[string]string

	items        map[string]*domain.DriveItem
	itemErrs     map[string]error
	children     map[string][]domain.DriveItem
	childrenErrs map[string]error

	delay       time.Duration
	calls       []string
	inFlight    int
	maxInFlight int
}

func newMockGraph() *mockGraph {
	return &mockGraph{
		site:         domain.Site{ID: "contoso.sharepoint.com,site-guid,web-guid"},
		driveID:      "drive-1",
		drives:       map[string]string{"archive": "drive-archive"},
		items:        make(map[string]*domain.DriveItem),
		itemErrs:     make(map[string]error),
		children:     make(map[string][]domain.DriveItem),
		childrenErrs: make(map[string]error),
	}
}

func (m *mockGraph) enter(resource string) {
	m.mu.Lock()
	m.calls = append(m.calls, resource)
	m.inFlight++
	if m.inFlight > m.maxInFlight {
		m.maxInFlight = m.inFlight
	}
	delay := m.delay
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
}

func (m *mockGraph) leave() {
	m.mu.Lock()
	m.inFlight--
	m.mu.Unlock()
}

func (m *mockGraph) AcquireToken(_ context.Context) error {
	return m.tokenErr
}

func (m *mockGraph) ResolveSite(_ context.Context) (domain.Site, error) {
	if m.siteErr != nil {
		return domain.Site{}, m.siteErr
	}
	return m.site, nil
}

func (m *mockGraph) DefaultDriveID(_ context.Context, _ string) (string, error) {
	if m.driveErr != nil {
		return "", m.driveErr
	}
	return m.driveID, nil
}

func (m *mockGraph) DriveIDByName(_ context.Context, _, name string) (string, error) {
	id, ok := m.drives[name]
	if !ok {
		return "", graphNotFound("drive " + name)
	}
	return id, nil
}

func (m *mockGraph) GetItem(_ context.Context, resource string) (*domain.DriveItem, error) {
	m.enter(resource)
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.itemErrs[resource]; ok {
		return nil, err
	}
	if item, ok := m.items[resource]; ok {
		return item, nil
	}
	return nil, fmt.Errorf("graph %s: status 400", resource)
}

func (m *mockGraph) ListChildren(_ context.Context, resource string) ([]domain.DriveItem, error) {
	m.enter(resource)
	defer m.leave()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.childrenErrs[resource]; ok {
		return nil, err
	}
	if items, ok := m.children[resource]; ok {
		return items, nil
	}
	return nil, graphNotFound(resource)
}

func (m *mockGraph) setItem(resource, id string) {
	m.items[resource] = &domain.DriveItem{ID: id}
}

func (m *mockGraph) callsWithPrefix(prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

// mockSearchIndex implements driven.SearchIndex for testing.
type mockSearchIndex struct {
	mu sync.Mutex

	docs     []domain.IndexDocument
	searchFn func(q domain.SearchQuery) ([]domain.IndexDocument, error)

	queries    []domain.SearchQuery
	deleteErrs map[int]error
	deletes    [][]string
}

func newMockSearchIndex(docs ...domain.IndexDocument) *mockSearchIndex {
	return &mockSearchIndex{docs: docs, deleteErrs: make(map[int]error)}
}

func (m *mockSearchIndex) Search(_ context.Context, _ string, q domain.SearchQuery) ([]domain.IndexDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.searchFn != nil {
		return m.searchFn(q)
	}
	docs := m.docs
	if q.Top > 0 && len(docs) > q.Top {
		docs = docs[:q.Top]
	}
	return docs, nil
}

func (m *mockSearchIndex) Delete(_ context.Context, _, keyField string, keys []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if keyField != domain.FieldID {
		return fmt.Errorf("unexpected key field %s", keyField)
	}
	call := len(m.deletes)
	m.deletes = append(m.deletes, append([]string(nil), keys...))
	return m.deleteErrs[call]
}

func (m *mockSearchIndex) deletedKeys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for i, batch := range m.deletes {
		if m.deleteErrs[i] == nil {
			out = append(out, batch...)
		}
	}
	return out
}

// mockFileMetadataStore implements driven.FileMetadataStore for testing.
type mockFileMetadataStore struct {
	mu      sync.Mutex
	files   map[string]domain.FileMetadata
	history []domain.SyncRecord
	listErr error
}

func newMockFileMetadataStore(files ...domain.FileMetadata) *mockFileMetadataStore {
	m := &mockFileMetadataStore{files: make(map[string]domain.FileMetadata)}
	for _, f := range files {
		m.files[f.ID] = f
	}
	return m
}

func (m *mockFileMetadataStore) ListFiles(_ context.Context) (map[string]domain.FileMetadata, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make(map[string]domain.FileMetadata, len(m.files))
	for k, v := range m.files {
		out[k] = v
	}
	return out, nil
}

func (m *mockFileMetadataStore) UpsertFile(_ context.Context, meta domain.FileMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[meta.ID] = meta
	return nil
}

func (m *mockFileMetadataStore) DeleteFiles(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		delete(m.files, id)
	}
	return nil
}

func (m *mockFileMetadataStore) RecordSync(_ context.Context, record domain.SyncRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, record)
	return nil
}

func (m *mockFileMetadataStore) SyncHistory(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]domain.SyncRecord(nil), m.history...)
	sort.Slice(out, func(i, j int) bool { return out[i].SyncedAt.After(out[j].SyncedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mockIndexer implements driven.FileIndexer for testing.
type mockIndexer struct {
	mu      sync.Mutex
	indexed []string
	fail    map[string]error
}

func (m *mockIndexer) IndexFile(_ context.Context, _ string, file domain.FileMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail[file.ID]; err != nil {
		return err
	}
	m.indexed = append(m.indexed, file.ID)
	return nil
}

// mockPurger implements driving.Purger for testing.
type mockPurger struct {
	mu      sync.Mutex
	outcome domain.PurgeOutcome
	calls   int
	opts    []driving.PurgeOptions
}

func (m *mockPurger) Purge(_ context.Context, opts driving.PurgeOptions) domain.PurgeOutcome {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.opts = append(m.opts, opts)
	return m.outcome
}

func (m *mockPurger) Preview(_ context.Context, _ driving.PurgeOptions) domain.PreviewOutcome {
	return domain.PreviewOutcome{}
}

func (m *mockPurger) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingMetrics implements driven.Metrics for testing.
type recordingMetrics struct {
	mu        sync.Mutex
	runs      map[string]int
	existence map[domain.Existence]int
	deleted   int
	failures  int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{runs: map[string]int{}, existence: map[domain.Existence]int{}}
}

func (m *recordingMetrics) ObserveRun(kind string, _ bool, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[kind]++
}

func (m *recordingMetrics) ObserveExistence(e domain.Existence) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.existence[e]++
}

func (m *recordingMetrics) AddChunksDeleted(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted += n
}

func (m *recordingMetrics) IncDeleteBatchFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *recordingMetrics) ObserveGraphRequest(int, time.Duration) {}

// Ensure mocks implement interfaces
var (
	_ driven.GraphClient       = (*mockGraph)(nil)
	_ driven.SearchIndex       = (*mockSearchIndex)(nil)
	_ driven.FileMetadataStore = (*mockFileMetadataStore)(nil)
	_ driven.FileIndexer       = (*mockIndexer)(nil)
	_ driven.Metrics           = (*recordingMetrics)(nil)
	_ driving.Purger           = (*mockPurger)(nil)
)

// testConfig returns an enabled configuration for the Engineering site.
func testConfig() domain.Config {
	cfg := domain.DefaultConfig()
	cfg.SharePoint = domain.SharePointConfig{
		Enabled:      true,
		TenantID:     "tenant",
		ClientID:     "client",
		ClientSecret: "secret",
		SiteDomain:   "contoso.sharepoint.com",
		SiteName:     "Engineering",
	}
	cfg.Search.IndexName = "idx"
	return cfg
}

const (
	sitePathPrefixEng = "/sites/contoso.sharepoint.com:/sites/Engineering:/drive/items/"
	siteIDPrefix      = "/sites/contoso.sharepoint.com,site-guid,web-guid/drive/items/"
	drivePrefix       = "/drives/drive-1/items/"
)

// chunk builds an index document whose url carries the file GUID as sourcedoc.
func chunk(id, guid, name string) domain.IndexDocument {
	return domain.IndexDocument{
		"id":                    id,
		"url":                   "https://contoso.sharepoint.com/_layouts/15/Doc.aspx?sourcedoc=%7B" + guid + "%7D&file=" + name,
		"metadata_storage_name": name,
	}
}
