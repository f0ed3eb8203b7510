package domain

import "time"

// Stage is a step of a purge or preview run.
type Stage string

// Run stages in execution order. Any stage may jump straight to StageDone.
const (
	StageNotStarted        Stage = "not_started"
	StageInitializing      Stage = "initializing"
	StageSiteResolved      Stage = "site_resolved"
	StageTokenAcquired     Stage = "token_acquired"
	StageScanningIndex     Stage = "scanning_index"
	StageCheckingExistence Stage = "checking_existence"
	StagePurging           Stage = "purging"
	StagePreviewing        Stage = "previewing"
	StageDone              Stage = "done"
)

// Messages shared by purge and preview outcomes.
const (
	MsgConnectorDisabled   = "SharePoint purge connector is disabled. Set SHAREPOINT_CONNECTOR_ENABLED to 'true' to enable the connector."
	MsgNoDocuments         = "No documents found in the index."
	MsgNoSharePointDocs    = "No SharePoint documents found in the index. Documents found but none contain SharePoint URLs."
	MsgNoIdentityField     = "No SharePoint file ID field (url, parent_id, sharepoint_id, or metadata_storage_path) found in index schema. Cannot verify file existence."
	MsgNoChunks            = "No SharePoint document chunks found in the index."
	MsgNoFileIDs           = "No valid SharePoint file IDs found in documents."
	MsgIndexClean          = "No orphaned documents found - index is clean!"
	MsgPreviewClean        = "No orphaned files found - index is clean!"
	MsgSiteUnresolved      = "Unable to retrieve site_id. Aborting operation."
	MsgTokenUnavailable    = "Cannot proceed without access token."
	MsgDriveUnresolved     = "Unable to retrieve drive_id. Aborting operation."
	MsgMissingSettingsBase = "Missing required settings"
)

// RunStats are the counters shared by purge and preview.
type RunStats struct {
	// DocumentsChecked is the number of chunks returned by the index scan.
	DocumentsChecked int `json:"documents_checked"`

	// FilesChecked is the number of distinct files whose existence was checked.
	FilesChecked int `json:"files_checked"`

	// FilesNotFound is the number of files classified as orphaned.
	FilesNotFound int `json:"files_not_found"`

	// FilesIndeterminate counts files Graph never answered for definitively.
	FilesIndeterminate int `json:"files_indeterminate"`
}

// RunInfo is the bookkeeping shared by purge and preview outcomes.
type RunInfo struct {
	Success bool     `json:"success"`
	Message string   `json:"message"`
	Errors  []string `json:"errors"`

	// Skipped is set when the run was a configuration no-op.
	Skipped bool `json:"skipped,omitempty"`

	// Stage is the last stage reached.
	Stage Stage `json:"stage"`

	IndexName        string    `json:"index_name"`
	TargetFolderPath string    `json:"target_folder_path,omitempty"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
}

// Duration returns how long the run took.
func (r RunInfo) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// AddError records a non-fatal error.
func (r *RunInfo) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
}

// PurgeOutcome is the result of a destructive purge run.
type PurgeOutcome struct {
	RunInfo
	RunStats

	// DocumentsDeleted counts chunk keys in successfully deleted batches.
	DocumentsDeleted int `json:"documents_deleted"`

	// DeletedFiles lists the orphaned files whose chunks were targeted.
	DeletedFiles []OrphanedFile `json:"deleted_files,omitempty"`
}

// PreviewOutcome is the result of a dry run.
type PreviewOutcome struct {
	RunInfo
	RunStats

	// WouldDeleteCount is the number of chunks purge would delete.
	WouldDeleteCount int `json:"would_delete_count"`

	OrphanedFiles []OrphanedFile `json:"orphaned_files"`
}

// OrphanedFile describes a file whose chunks are (or would be) purged.
type OrphanedFile struct {
	FileKey    string    `json:"parent_id"`
	FileName   string    `json:"file_name"`
	FilePath   string    `json:"file_path"`
	ChunkCount int       `json:"chunk_count"`
	Existence  Existence `json:"-"`
	Reason     string    `json:"reason"`
}
