package domain

import (
	"fmt"
	"strings"
)

// Environment variable names consumed by the reconciler.
const (
	EnvConnectorEnabled = "SHAREPOINT_CONNECTOR_ENABLED"
	EnvTenantID         = "SHAREPOINT_TENANT_ID"
	EnvClientID         = "SHAREPOINT_CLIENT_ID"
	EnvClientSecret     = "SHAREPOINT_CLIENT_SECRET"
	EnvSiteDomain       = "SHAREPOINT_SITE_DOMAIN"
	EnvSiteName         = "SHAREPOINT_SITE_NAME"
	EnvIndexName        = "AZURE_SEARCH_SHAREPOINT_INDEX_NAME"
	EnvTargetFolderPath = "SHAREPOINT_TARGET_FOLDER_PATH"
	EnvSearchEndpoint   = "AZURE_SEARCH_ENDPOINT"
	EnvSearchAPIKey     = "AZURE_SEARCH_API_KEY"
)

const (
	// DefaultIndexName is used when neither the environment nor the caller names an index.
	DefaultIndexName = "sharepoint-index-1"

	// DefaultConcurrency bounds simultaneous existence checks.
	DefaultConcurrency = 10

	// MaxConcurrency is the most existence checks allowed in flight against Graph.
	MaxConcurrency = 10

	// MaxDeleteBatchSize is the largest number of keys sent in one delete call.
	MaxDeleteBatchSize = 100
)

// IndeterminatePolicy decides what happens to a file whose existence could
// not be established because Graph answered with something other than 200 or 404.
type IndeterminatePolicy string

const (
	// IndeterminatePurge treats unknown files as deleted (fail-closed).
	IndeterminatePurge IndeterminatePolicy = "purge"

	// IndeterminateRetain keeps the chunks of unknown files (fail-open).
	IndeterminateRetain IndeterminatePolicy = "retain"
)

// Valid reports whether p is a known policy.
func (p IndeterminatePolicy) Valid() bool {
	return p == IndeterminatePurge || p == IndeterminateRetain
}

// SharePointConfig holds the app registration and site used for Graph lookups.
type SharePointConfig struct {
	// Enabled is the master switch (SHAREPOINT_CONNECTOR_ENABLED).
	Enabled bool

	TenantID     string
	ClientID     string
	ClientSecret string

	// SiteDomain is the tenant host, e.g. contoso.sharepoint.com.
	SiteDomain string

	// SiteName is the site under /sites/. Empty targets the tenant root site.
	SiteName string
}

// IsRootSite reports whether the configuration targets the tenant root site.
func (c SharePointConfig) IsRootSite() bool {
	return strings.TrimSpace(c.SiteName) == ""
}

// SearchConfig locates the search index holding SharePoint chunks.
type SearchConfig struct {
	Endpoint  string
	APIKey    string
	IndexName string
}

// PurgeConfig tunes the reconciliation run.
type PurgeConfig struct {
	// TargetFolderPath scopes existence checks to one folder when set.
	TargetFolderPath string

	// Concurrency bounds simultaneous existence checks.
	Concurrency int

	// BatchSize is the number of chunk keys per delete call, capped at MaxDeleteBatchSize.
	BatchSize int

	// Indeterminate decides the fate of files Graph could not answer for.
	Indeterminate IndeterminatePolicy
}

// Config is the full runtime configuration.
type Config struct {
	SharePoint SharePointConfig
	Search     SearchConfig
	Purge      PurgeConfig
	Scheduler  SchedulerConfig

	// DataDir holds the SQLite metadata database.
	DataDir string
}

// DefaultConfig returns the configuration used before file and environment overlays.
func DefaultConfig() Config {
	return Config{
		Search: SearchConfig{IndexName: DefaultIndexName},
		Purge: PurgeConfig{
			Concurrency:   DefaultConcurrency,
			BatchSize:     MaxDeleteBatchSize,
			Indeterminate: IndeterminatePurge,
		},
		Scheduler: DefaultSchedulerConfig(),
	}
}

// WithOverrides applies per-invocation overrides. Empty values keep the configured ones.
func (c Config) WithOverrides(indexName, targetFolder string) Config {
	if indexName != "" {
		c.Search.IndexName = indexName
	}
	if targetFolder != "" {
		c.Purge.TargetFolderPath = targetFolder
	}
	return c
}

// MissingSettings lists the required settings that are empty, by environment name.
// SHAREPOINT_SITE_NAME is optional and never reported.
func (c Config) MissingSettings() []string {
	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{EnvTenantID, c.SharePoint.TenantID},
		{EnvClientID, c.SharePoint.ClientID},
		{EnvClientSecret, c.SharePoint.ClientSecret},
		{EnvSiteDomain, c.SharePoint.SiteDomain},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			missing = append(missing, r.name)
		}
	}
	if strings.TrimSpace(c.Search.IndexName) == "" {
		missing = append(missing, "INDEX_NAME")
	}
	return missing
}

// Validate checks the purge tuning values.
func (c PurgeConfig) Validate() error {
	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("%w: concurrency must be between 1 and %d", ErrInvalidInput, MaxConcurrency)
	}
	if c.BatchSize < 1 || c.BatchSize > MaxDeleteBatchSize {
		return fmt.Errorf("%w: batch size must be between 1 and %d", ErrInvalidInput, MaxDeleteBatchSize)
	}
	if !c.Indeterminate.Valid() {
		return fmt.Errorf("%w: unknown indeterminate policy %q", ErrInvalidInput, c.Indeterminate)
	}
	return nil
}
