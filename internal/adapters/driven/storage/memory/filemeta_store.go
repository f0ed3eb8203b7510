package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
)

// Ensure FileMetadataStore implements the interface.
var _ driven.FileMetadataStore = (*FileMetadataStore)(nil)

// FileMetadataStore is an in-memory implementation of driven.FileMetadataStore.
// It backs --ephemeral runs that must not touch the database.
type FileMetadataStore struct {
	mu      sync.RWMutex
	files   map[string]domain.FileMetadata
	history []domain.SyncRecord
}

// NewFileMetadataStore creates a new in-memory file metadata store.
func NewFileMetadataStore() *FileMetadataStore {
	return &FileMetadataStore{
		files: make(map[string]domain.FileMetadata),
	}
}

// ListFiles returns a copy of every stored record.
func (s *FileMetadataStore) ListFiles(_ context.Context) (map[string]domain.FileMetadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.FileMetadata, len(s.files))
	for id, f := range s.files {
		out[id] = f
	}
	return out, nil
}

// UpsertFile stores or replaces a record.
func (s *FileMetadataStore) UpsertFile(_ context.Context, meta domain.FileMetadata) error {
	if meta.ID == "" {
		return fmt.Errorf("%w: file id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[meta.ID] = meta
	return nil
}

// DeleteFiles removes records by ID.
func (s *FileMetadataStore) DeleteFiles(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		delete(s.files, id)
	}
	return nil
}

// RecordSync appends a history row.
func (s *FileMetadataStore) RecordSync(_ context.Context, record domain.SyncRecord) error {
	if record.ID == "" {
		return fmt.Errorf("%w: sync record id is required", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, record)
	return nil
}

// SyncHistory returns up to limit rows, newest first.
func (s *FileMetadataStore) SyncHistory(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.SyncRecord, len(s.history))
	// Reverse insertion order breaks ties between equal timestamps.
	for i, r := range s.history {
		out[len(s.history)-1-i] = r
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SyncedAt.After(out[j].SyncedAt)
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
