package domain

import (
	"sort"
	"time"
)

// FileMetadata is the persisted state of one tracked SharePoint file.
type FileMetadata struct {
	ID               string
	Name             string
	Path             string
	ParentID         string
	Size             int64
	ModifiedDateTime string
	ETag             string
	Checksum         string

	// LastIndexed is when the file was last indexed successfully.
	LastIndexed time.Time

	// IndexedInSearch reflects whether the last sync attempt indexed the file.
	IndexedInSearch bool

	// IndexName is the index the file was last indexed into.
	IndexName string
}

// FileMetadataFromItem converts a Graph item into a metadata record.
func FileMetadataFromItem(item DriveItem) FileMetadata {
	path := item.Name
	if item.ParentPath != "" {
		path = item.ParentPath + "/" + item.Name
	}
	modified := ""
	if !item.LastModified.IsZero() {
		modified = item.LastModified.UTC().Format(time.RFC3339)
	}
	return FileMetadata{
		ID:               item.ID,
		Name:             item.Name,
		Path:             path,
		ParentID:         item.ParentID,
		Size:             item.Size,
		ModifiedDateTime: modified,
		ETag:             item.ETag,
		Checksum:         item.SHA1,
	}
}

// ChangeSet classifies tracked files against a live scan.
// Every ID of current ∪ stored appears in exactly one list.
type ChangeSet struct {
	New       []string `json:"new"`
	Modified  []string `json:"modified"`
	Deleted   []string `json:"deleted"`
	Unchanged []string `json:"unchanged"`
}

// HasChanges reports whether anything other than unchanged files was detected.
func (c ChangeSet) HasChanges() bool {
	return len(c.New)+len(c.Modified)+len(c.Deleted) > 0
}

// Total returns the number of classified files.
func (c ChangeSet) Total() int {
	return len(c.New) + len(c.Modified) + len(c.Deleted) + len(c.Unchanged)
}

// Sort orders every list so results are deterministic.
func (c *ChangeSet) Sort() {
	sort.Strings(c.New)
	sort.Strings(c.Modified)
	sort.Strings(c.Deleted)
	sort.Strings(c.Unchanged)
}

// SyncStatus is the final state of a sync run.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "success"
	SyncStatusPartial SyncStatus = "partial"
	SyncStatusFailed  SyncStatus = "failed"
)

// SyncRecord is one append-only row of sync history.
type SyncRecord struct {
	ID             string        `json:"id"`
	SyncedAt       time.Time     `json:"synced_at"`
	FilesAdded     int           `json:"files_added"`
	FilesModified  int           `json:"files_modified"`
	FilesDeleted   int           `json:"files_deleted"`
	FoldersScanned int           `json:"folders_scanned"`
	Duration       time.Duration `json:"duration"`
	Status         SyncStatus    `json:"status"`
	ErrorMessage   string        `json:"error_message,omitempty"`
}

// SyncReport is returned by a change sync.
type SyncReport struct {
	ID      string     `json:"id"`
	Status  SyncStatus `json:"status"`
	Changes ChangeSet  `json:"changes"`

	// IndexedFiles were handed to the indexer successfully.
	IndexedFiles []string `json:"indexed_files"`

	// PendingFiles are new or modified files no indexer processed.
	PendingFiles []string `json:"pending_files"`

	// DeletedFromIndex are deleted files whose metadata was removed after the purge.
	DeletedFromIndex []string `json:"deleted_from_index"`

	Purge    *PurgeOutcome `json:"purge,omitempty"`
	Errors   []string      `json:"errors"`
	Duration time.Duration `json:"duration"`
}

// DetectChanges classifies current against stored by file ID. Files present in
// both are modified when either the ETag or the modified timestamp differs.
// Lists are sorted.
func DetectChanges(current, stored map[string]FileMetadata) ChangeSet {
	cs := ChangeSet{
		New:       []string{},
		Modified:  []string{},
		Deleted:   []string{},
		Unchanged: []string{},
	}
	for id, cur := range current {
		old, ok := stored[id]
		switch {
		case !ok:
			cs.New = append(cs.New, id)
		case cur.ETag != old.ETag || cur.ModifiedDateTime != old.ModifiedDateTime:
			cs.Modified = append(cs.Modified, id)
		default:
			cs.Unchanged = append(cs.Unchanged, id)
		}
	}
	for id := range stored {
		if _, ok := current[id]; !ok {
			cs.Deleted = append(cs.Deleted, id)
		}
	}
	cs.Sort()
	return cs
}
