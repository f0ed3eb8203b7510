package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
	"github.com/custodia-labs/sppurge/internal/logger"
)

// Ensure PurgeService implements the interface.
var _ driving.Purger = (*PurgeService)(nil)

const (
	msgSearchUnconfigured = "Search index is not configured. Set AZURE_SEARCH_ENDPOINT and AZURE_SEARCH_API_KEY."
	msgRunInProgress      = "A purge or preview is already running."
)

// PurgeService reconciles the search index against SharePoint.
// Purge and Preview share one reconciliation path so a preview always
// predicts the following purge for an unchanged index.
type PurgeService struct {
	config  domain.Config
	graph   driven.GraphClient
	index   driven.SearchIndex
	history driven.FileMetadataStore
	metrics driven.Metrics

	running sync.Mutex
	now     func() time.Time
}

// NewPurgeService creates a purge service.
// history and metrics are optional; purge runs are appended to history when set.
func NewPurgeService(
	config domain.Config,
	graph driven.GraphClient,
	index driven.SearchIndex,
	history driven.FileMetadataStore,
	metrics driven.Metrics,
) *PurgeService {
	return &PurgeService{
		config:  config,
		graph:   graph,
		index:   index,
		history: history,
		metrics: metricsOrNop(metrics),
		now:     time.Now,
	}
}

// reconciliation is the shared result of scanning and checking.
type reconciliation struct {
	info     domain.RunInfo
	stats    domain.RunStats
	orphans  []domain.OrphanedFile
	chunkIDs []string

	// finished is set when the run ended before any purge or preview step.
	finished bool

	indexName string
	batchSize int
}

// Purge deletes the chunks of every orphaned file.
func (s *PurgeService) Purge(ctx context.Context, opts driving.PurgeOptions) domain.PurgeOutcome {
	ctx, span := tracer.Start(ctx, "purger.purge")
	defer span.End()

	if !s.running.TryLock() {
		return domain.PurgeOutcome{RunInfo: s.busy()}
	}
	defer s.running.Unlock()

	rec := s.reconcile(ctx, opts)
	out := domain.PurgeOutcome{RunInfo: rec.info, RunStats: rec.stats}

	if !rec.finished {
		enter(&out.RunInfo, domain.StagePurging)
		out.Success = true
		if len(rec.chunkIDs) == 0 {
			out.Message = domain.MsgIndexClean
		} else {
			logger.Info("%d document chunks identified for purging (from %d deleted files)", len(rec.chunkIDs), out.FilesNotFound)
			out.DocumentsDeleted = s.deleteInBatches(ctx, &out.RunInfo, rec.indexName, rec.chunkIDs, rec.batchSize)
			out.DeletedFiles = rec.orphans
			if out.DocumentsDeleted == 0 && len(out.Errors) > 0 {
				out.Success = false
				out.Message = fmt.Sprintf("Failed to purge any of %d orphaned document chunks", len(rec.chunkIDs))
			} else {
				out.Message = fmt.Sprintf("Successfully purged %d orphaned document chunks from %d deleted files", out.DocumentsDeleted, out.FilesNotFound)
			}
		}
		enter(&out.RunInfo, domain.StageDone)
	}
	out.FinishedAt = s.now()

	s.recordPurge(ctx, out)
	s.metrics.ObserveRun("purge", out.Success, out.Duration())
	span.SetAttributes(
		attribute.String("index", out.IndexName),
		attribute.Int("documents_checked", out.DocumentsChecked),
		attribute.Int("files_not_found", out.FilesNotFound),
		attribute.Int("documents_deleted", out.DocumentsDeleted),
	)
	if !out.Success {
		span.SetStatus(codes.Error, out.Message)
	}
	return out
}

// Preview reports what Purge would delete.
func (s *PurgeService) Preview(ctx context.Context, opts driving.PurgeOptions) domain.PreviewOutcome {
	ctx, span := tracer.Start(ctx, "purger.preview")
	defer span.End()

	if !s.running.TryLock() {
		return domain.PreviewOutcome{RunInfo: s.busy(), OrphanedFiles: []domain.OrphanedFile{}}
	}
	defer s.running.Unlock()

	rec := s.reconcile(ctx, opts)
	out := domain.PreviewOutcome{
		RunInfo:       rec.info,
		RunStats:      rec.stats,
		OrphanedFiles: []domain.OrphanedFile{},
	}

	if !rec.finished {
		enter(&out.RunInfo, domain.StagePreviewing)
		out.Success = true
		out.WouldDeleteCount = len(rec.chunkIDs)
		if len(rec.orphans) > 0 {
			out.OrphanedFiles = rec.orphans
			out.Message = fmt.Sprintf("Found %d orphaned files that would be purged (%d document chunks)", len(rec.orphans), out.WouldDeleteCount)
		} else {
			out.Message = domain.MsgPreviewClean
		}
		enter(&out.RunInfo, domain.StageDone)
	}
	out.FinishedAt = s.now()

	s.metrics.ObserveRun("preview", out.Success, out.Duration())
	span.SetAttributes(
		attribute.String("index", out.IndexName),
		attribute.Int("files_not_found", out.FilesNotFound),
		attribute.Int("would_delete_count", out.WouldDeleteCount),
	)
	if !out.Success {
		span.SetStatus(codes.Error, out.Message)
	}
	return out
}

//nolint:gocyclo // Sequential stages with early exits
func (s *PurgeService) reconcile(ctx context.Context, opts driving.PurgeOptions) reconciliation {
	cfg := s.config.WithOverrides(opts.IndexName, opts.TargetFolderPath)
	rec := reconciliation{
		info: domain.RunInfo{
			Errors:           []string{},
			Stage:            domain.StageNotStarted,
			IndexName:        cfg.Search.IndexName,
			TargetFolderPath: cfg.Purge.TargetFolderPath,
			StartedAt:        s.now(),
		},
		indexName: cfg.Search.IndexName,
		batchSize: cfg.Purge.BatchSize,
	}
	logger.Info("using index: %s, target folder: %q", rec.indexName, cfg.Purge.TargetFolderPath)

	end := func(success bool, message string) reconciliation {
		rec.info.Success = success
		rec.info.Message = message
		rec.finished = true
		enter(&rec.info, domain.StageDone)
		return rec
	}
	skip := func(message string) reconciliation {
		logger.Info("%s", message)
		rec.info.Skipped = true
		return end(true, message)
	}

	enter(&rec.info, domain.StageInitializing)
	if !cfg.SharePoint.Enabled {
		return skip(domain.MsgConnectorDisabled)
	}
	if missing := cfg.MissingSettings(); len(missing) > 0 {
		return skip(fmt.Sprintf("%s: %s", domain.MsgMissingSettingsBase, strings.Join(missing, ", ")))
	}
	if s.index == nil || s.graph == nil {
		return skip(msgSearchUnconfigured)
	}
	if err := cfg.Purge.Validate(); err != nil {
		return skip(err.Error())
	}

	site, err := s.graph.ResolveSite(ctx)
	if err != nil {
		logger.Error("%s: %v", domain.MsgSiteUnresolved, err)
		rec.info.AddError("Could not retrieve SharePoint site ID")
		return end(false, domain.MsgSiteUnresolved)
	}
	enter(&rec.info, domain.StageSiteResolved)

	if err := s.graph.AcquireToken(ctx); err != nil {
		logger.Error("%s: %v", domain.MsgTokenUnavailable, err)
		rec.info.AddError("Could not obtain Microsoft Graph access token")
		return end(false, domain.MsgTokenUnavailable)
	}
	enter(&rec.info, domain.StageTokenAcquired)

	driveID, err := s.graph.DefaultDriveID(ctx, site.ID)
	if err != nil {
		logger.Error("%s: %v", domain.MsgDriveUnresolved, err)
		rec.info.AddError("Could not retrieve SharePoint drive ID")
		return end(false, domain.MsgDriveUnresolved)
	}

	enter(&rec.info, domain.StageScanningIndex)
	scan, err := NewScanner(s.index).Scan(ctx, rec.indexName)
	if err != nil {
		message := fmt.Sprintf("Failed to retrieve documents from Azure Search: %v", err)
		logger.Error("%s", message)
		rec.info.AddError(err.Error())
		return end(false, message)
	}
	rec.stats.DocumentsChecked = scan.DocumentsChecked
	rec.stats.FilesChecked = len(scan.Files)
	if scan.Message != "" {
		logger.Info("%s", scan.Message)
		return end(true, scan.Message)
	}

	enter(&rec.info, domain.StageCheckingExistence)
	if cfg.Purge.TargetFolderPath != "" {
		logger.Info("using folder-specific existence checks for folder: %s", cfg.Purge.TargetFolderPath)
	} else {
		logger.Info("using global existence checks (no target folder specified)")
	}
	resolver := NewResolver(s.graph, ResolverTarget{
		Site:       site,
		Host:       cfg.SharePoint.SiteDomain,
		SiteName:   cfg.SharePoint.SiteName,
		DriveID:    driveID,
		FolderPath: cfg.Purge.TargetFolderPath,
	}, cfg.Purge.Concurrency, s.metrics)
	results := resolver.CheckAll(ctx, scan.Files)

	// Cancelled checks report unknown; never let that reach the purge policy.
	if err := ctx.Err(); err != nil {
		rec.info.AddError(err.Error())
		return end(false, fmt.Sprintf("Existence checks interrupted: %v", err))
	}

	for _, r := range results {
		if r.Existence == domain.ExistenceUnknown {
			rec.stats.FilesIndeterminate++
		}
		if !r.Existence.Orphaned(cfg.Purge.Indeterminate) {
			continue
		}
		rec.orphans = append(rec.orphans, orphanedFile(r))
		rec.chunkIDs = append(rec.chunkIDs, r.Key.ChunkIDs...)
	}
	rec.stats.FilesNotFound = len(rec.orphans)
	if rec.stats.FilesIndeterminate > 0 {
		logger.Warn("%d files could not be verified (policy: %s)", rec.stats.FilesIndeterminate, cfg.Purge.Indeterminate)
	}
	return rec
}

// deleteInBatches deletes keys in batches and returns the number of keys in
// batches that succeeded. Failed batches are recorded and the rest still run.
func (s *PurgeService) deleteInBatches(ctx context.Context, info *domain.RunInfo, index string, keys []string, batchSize int) int {
	deleted := 0
	for _, batch := range Batches(keys, batchSize) {
		if err := s.index.Delete(ctx, index, domain.FieldID, batch.Keys); err != nil {
			msg := fmt.Sprintf("Failed to purge batch starting at index %d: %v", batch.Offset, err)
			logger.Error("%s", msg)
			info.AddError(msg)
			s.metrics.IncDeleteBatchFailures()
			continue
		}
		deleted += len(batch.Keys)
		s.metrics.AddChunksDeleted(len(batch.Keys))
		logger.Info("purged batch of %d documents", len(batch.Keys))
	}
	return deleted
}

// Batch is a slice of keys and its offset in the full key list.
type Batch struct {
	Offset int
	Keys   []string
}

// Batches splits keys into consecutive batches of at most size keys.
// size is clamped to [1, domain.MaxDeleteBatchSize].
func Batches(keys []string, size int) []Batch {
	if size < 1 || size > domain.MaxDeleteBatchSize {
		size = domain.MaxDeleteBatchSize
	}
	var batches []Batch
	for i := 0; i < len(keys); i += size {
		end := min(i+size, len(keys))
		batches = append(batches, Batch{Offset: i, Keys: keys[i:end]})
	}
	return batches
}

func orphanedFile(r domain.ExistenceResult) domain.OrphanedFile {
	name := r.Key.DisplayName
	if name == "" {
		name = "Unknown"
	}
	reason := "not found in SharePoint"
	switch {
	case r.Existence == domain.ExistenceUnknown:
		reason = "existence could not be verified"
	case r.Method == MethodFolderAbsent:
		reason = "target folder not found"
	case strings.HasPrefix(r.Method, "folder:"):
		reason = "not found in target folder"
	}
	return domain.OrphanedFile{
		FileKey:    r.Key.Value,
		FileName:   name,
		FilePath:   r.Key.Path,
		ChunkCount: len(r.Key.ChunkIDs),
		Existence:  r.Existence,
		Reason:     reason,
	}
}

func (s *PurgeService) busy() domain.RunInfo {
	now := s.now()
	return domain.RunInfo{
		Success:    false,
		Message:    msgRunInProgress,
		Errors:     []string{domain.ErrRunInProgress.Error()},
		Stage:      domain.StageDone,
		IndexName:  s.config.Search.IndexName,
		StartedAt:  now,
		FinishedAt: now,
	}
}

// recordPurge appends a purge run to the sync history. Configuration skips
// are not recorded.
func (s *PurgeService) recordPurge(ctx context.Context, out domain.PurgeOutcome) {
	if s.history == nil || out.Skipped {
		return
	}
	status := domain.SyncStatusSuccess
	switch {
	case !out.Success:
		status = domain.SyncStatusFailed
	case len(out.Errors) > 0:
		status = domain.SyncStatusPartial
	}
	record := domain.SyncRecord{
		ID:           uuid.New().String(),
		SyncedAt:     out.StartedAt,
		FilesDeleted: out.FilesNotFound,
		Duration:     out.Duration(),
		Status:       status,
	}
	if status != domain.SyncStatusSuccess {
		record.ErrorMessage = out.Message
		if len(out.Errors) > 0 {
			record.ErrorMessage = strings.Join(out.Errors, "; ")
		}
	}
	if err := s.history.RecordSync(ctx, record); err != nil {
		logger.Warn("failed to record purge history: %v", err)
	}
}

func enter(info *domain.RunInfo, stage domain.Stage) {
	info.Stage = stage
	logger.Section(string(stage))
}
