package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
	"github.com/custodia-labs/sppurge/internal/logger"
)

// Ensure ChangeTrackerService implements the interface.
var _ driving.ChangeTracker = (*ChangeTrackerService)(nil)

// ChangeTrackerService detects SharePoint changes against stored metadata and
// applies them to the search index.
type ChangeTrackerService struct {
	config  domain.Config
	graph   driven.GraphClient
	store   driven.FileMetadataStore
	purger  driving.Purger
	indexer driven.FileIndexer
	metrics driven.Metrics

	running sync.Mutex
	now     func() time.Time
}

// NewChangeTracker creates a change tracker.
// indexer and metrics are optional. Without an indexer, new and modified
// files are stored as not indexed and reported as pending.
func NewChangeTracker(
	config domain.Config,
	graph driven.GraphClient,
	store driven.FileMetadataStore,
	purger driving.Purger,
	indexer driven.FileIndexer,
	metrics driven.Metrics,
) *ChangeTrackerService {
	return &ChangeTrackerService{
		config:  config,
		graph:   graph,
		store:   store,
		purger:  purger,
		indexer: indexer,
		metrics: metricsOrNop(metrics),
		now:     time.Now,
	}
}

// ParseFolder splits "Library Name|/path" into its drive name and path.
// A folder without a drive name uses the site's default drive.
func ParseFolder(folder string) (driveName, path string) {
	if i := strings.Index(folder, "|"); i >= 0 {
		return strings.TrimSpace(folder[:i]), strings.TrimSpace(folder[i+1:])
	}
	return "", strings.TrimSpace(folder)
}

// CurrentFiles lists the files directly inside each folder.
// Any folder that cannot be listed fails the whole call, so a partial scan is
// never mistaken for deletions.
func (t *ChangeTrackerService) CurrentFiles(ctx context.Context, folders []string) (map[string]domain.FileMetadata, error) {
	if t.graph == nil {
		return nil, fmt.Errorf("list files: %w", domain.ErrMissingConfig)
	}
	site, err := t.graph.ResolveSite(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve site: %w", err)
	}

	drives := make(map[string]string)
	driveFor := func(name string) (string, error) {
		if id, ok := drives[name]; ok {
			return id, nil
		}
		var id string
		var err error
		if name == "" {
			id, err = t.graph.DefaultDriveID(ctx, site.ID)
		} else {
			id, err = t.graph.DriveIDByName(ctx, site.ID, name)
		}
		if err != nil {
			return "", fmt.Errorf("resolve drive %q: %w", name, err)
		}
		drives[name] = id
		return id, nil
	}

	current := make(map[string]domain.FileMetadata)
	for _, folder := range folders {
		driveName, path := ParseFolder(folder)
		logger.Info("scanning SharePoint folder: %s", folder)

		driveID, err := driveFor(driveName)
		if err != nil {
			return nil, err
		}
		items, err := t.graph.ListChildren(ctx, FolderChildrenResource(driveID, path))
		if err != nil {
			return nil, fmt.Errorf("list folder %s: %w", folder, err)
		}
		for _, item := range items {
			if item.IsFolder || item.ID == "" {
				continue
			}
			current[item.ID] = domain.FileMetadataFromItem(item)
		}
	}
	logger.Info("found %d files in SharePoint", len(current))
	return current, nil
}

// DetectChanges classifies the live folder contents against stored metadata.
func (t *ChangeTrackerService) DetectChanges(ctx context.Context, folders []string) (domain.ChangeSet, error) {
	current, stored, err := t.load(ctx, folders)
	if err != nil {
		return domain.ChangeSet{}, err
	}
	return domain.DetectChanges(current, stored), nil
}

func (t *ChangeTrackerService) load(ctx context.Context, folders []string) (current, stored map[string]domain.FileMetadata, err error) {
	current, err = t.CurrentFiles(ctx, folders)
	if err != nil {
		return nil, nil, err
	}
	stored, err = t.store.ListFiles(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load stored metadata: %w", err)
	}
	logger.Info("found %d files in metadata database", len(stored))
	return current, stored, nil
}

// Sync applies detected changes. Deleted files are purged from the index
// first and their metadata is only removed once the purge succeeded.
func (t *ChangeTrackerService) Sync(ctx context.Context, folders []string, indexName string) domain.SyncReport {
	ctx, span := tracer.Start(ctx, "changetracker.sync")
	defer span.End()

	start := t.now()
	report := domain.SyncReport{
		ID:               uuid.New().String(),
		Errors:           []string{},
		IndexedFiles:     []string{},
		PendingFiles:     []string{},
		DeletedFromIndex: []string{},
	}
	if indexName == "" {
		indexName = t.config.Search.IndexName
	}

	if !t.running.TryLock() {
		report.Status = domain.SyncStatusFailed
		report.Errors = append(report.Errors, domain.ErrRunInProgress.Error())
		return report
	}
	defer t.running.Unlock()

	logger.Info("starting SharePoint sync for folders: %v", folders)
	current, stored, err := t.load(ctx, folders)
	if err != nil {
		logger.Error("SharePoint sync failed: %v", err)
		report.Status = domain.SyncStatusFailed
		report.Errors = append(report.Errors, err.Error())
		report.Duration = t.now().Sub(start)
		t.record(ctx, report, len(folders), start)
		return report
	}

	changes := domain.DetectChanges(current, stored)
	report.Changes = changes
	logger.Info("changes detected - new: %d, modified: %d, deleted: %d, unchanged: %d",
		len(changes.New), len(changes.Modified), len(changes.Deleted), len(changes.Unchanged))

	if len(changes.Deleted) > 0 {
		t.applyDeletions(ctx, &report, indexName)
	}

	toIndex := append(slices.Clone(changes.New), changes.Modified...)
	slices.Sort(toIndex)
	for _, id := range toIndex {
		file := current[id]
		if old, ok := stored[id]; ok {
			file.LastIndexed = old.LastIndexed
		}
		t.indexFile(ctx, &report, indexName, file)
	}

	for _, id := range changes.Unchanged {
		file := current[id]
		old := stored[id]
		file.IndexedInSearch = old.IndexedInSearch
		file.IndexName = old.IndexName
		file.LastIndexed = old.LastIndexed
		if !file.IndexedInSearch && t.indexer != nil {
			t.indexFile(ctx, &report, indexName, file)
			continue
		}
		if err := t.store.UpsertFile(ctx, file); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("Metadata error for %s: %v", id, err))
		}
	}

	report.Status = domain.SyncStatusSuccess
	if len(report.Errors) > 0 {
		report.Status = domain.SyncStatusPartial
	}
	report.Duration = t.now().Sub(start)
	t.record(ctx, report, len(folders), start)

	span.SetAttributes(
		attribute.Int("files_added", len(changes.New)),
		attribute.Int("files_modified", len(changes.Modified)),
		attribute.Int("files_deleted", len(changes.Deleted)),
		attribute.String("status", string(report.Status)),
	)
	logger.Info("SharePoint sync completed (%s) in %s", report.Status, report.Duration)
	return report
}

func (t *ChangeTrackerService) applyDeletions(ctx context.Context, report *domain.SyncReport, indexName string) {
	deleted := report.Changes.Deleted
	logger.Info("processing %d deleted files", len(deleted))

	if t.purger == nil {
		report.Errors = append(report.Errors, "Deletion error: no purger configured")
		return
	}
	out := t.purger.Purge(ctx, driving.PurgeOptions{IndexName: indexName})
	report.Purge = &out
	switch {
	case !out.Success:
		report.Errors = append(report.Errors, "Deletion error: "+out.Message)
		return
	case out.Skipped:
		report.Errors = append(report.Errors, "Deletion skipped: "+out.Message)
		return
	}

	if err := t.store.DeleteFiles(ctx, deleted); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Deletion error: %v", err))
		return
	}
	report.DeletedFromIndex = append(report.DeletedFromIndex, deleted...)
	logger.Info("removed metadata for %d deleted files", len(deleted))
}

// indexFile hands a file to the indexer and stores its metadata with the
// resulting indexed flag.
func (t *ChangeTrackerService) indexFile(ctx context.Context, report *domain.SyncReport, indexName string, file domain.FileMetadata) {
	file.IndexedInSearch = false
	file.IndexName = ""

	switch {
	case t.indexer == nil:
		report.PendingFiles = append(report.PendingFiles, file.ID)
	default:
		if err := t.indexer.IndexFile(ctx, indexName, file); err != nil {
			logger.Error("error indexing file %s: %v", file.ID, err)
			report.Errors = append(report.Errors, fmt.Sprintf("Indexing error for %s: %v", file.ID, err))
			break
		}
		file.IndexedInSearch = true
		file.IndexName = indexName
		file.LastIndexed = t.now().UTC()
		report.IndexedFiles = append(report.IndexedFiles, file.ID)
	}

	if err := t.store.UpsertFile(ctx, file); err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("Metadata error for %s: %v", file.ID, err))
	}
}

func (t *ChangeTrackerService) record(ctx context.Context, report domain.SyncReport, folders int, start time.Time) {
	record := domain.SyncRecord{
		ID:             report.ID,
		SyncedAt:       start,
		FilesAdded:     len(report.Changes.New),
		FilesModified:  len(report.Changes.Modified),
		FilesDeleted:   len(report.Changes.Deleted),
		FoldersScanned: folders,
		Duration:       report.Duration,
		Status:         report.Status,
	}
	if len(report.Errors) > 0 {
		record.ErrorMessage = strings.Join(report.Errors, "; ")
	}
	if err := t.store.RecordSync(ctx, record); err != nil {
		logger.Warn("failed to record sync history: %v", err)
	}
	t.metrics.ObserveRun("sync", report.Status != domain.SyncStatusFailed, report.Duration)
}

// History returns the most recent sync runs.
func (t *ChangeTrackerService) History(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be positive", domain.ErrInvalidInput)
	}
	records, err := t.store.SyncHistory(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load sync history: %w", err)
	}
	return records, nil
}

// errNoFolders is returned by the scheduled sync when no folders are configured.
var errNoFolders = errors.New("no folders configured for change sync")
