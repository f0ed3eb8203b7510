package file

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
)

// Configuration keys.
const (
	KeySharePointEnabled = "sharepoint.enabled"
	KeyTenantID          = "sharepoint.tenant_id"
	KeyClientID          = "sharepoint.client_id"
	KeyClientSecret      = "sharepoint.client_secret"
	KeySiteDomain        = "sharepoint.site_domain"
	KeySiteName          = "sharepoint.site_name"

	KeySearchEndpoint = "search.endpoint"
	KeySearchAPIKey   = "search.api_key"
	KeyIndexName      = "search.index_name"

	KeyTargetFolder  = "purge.target_folder"
	KeyConcurrency   = "purge.concurrency"
	KeyBatchSize     = "purge.batch_size"
	KeyIndeterminate = "purge.indeterminate"

	KeySchedulerEnabled = "scheduler.enabled"
	KeyPurgeEnabled     = "scheduler.purge_enabled"
	KeyPurgeInterval    = "scheduler.purge_interval"
	KeySyncEnabled      = "scheduler.sync_enabled"
	KeySyncInterval     = "scheduler.sync_interval"
	KeySyncFolders      = "scheduler.sync_folders"
	KeyHistoryLimit     = "scheduler.history_limit"

	KeyDataDir = "data_dir"
)

// SecretKeys are masked when configuration is displayed.
var SecretKeys = map[string]bool{
	KeyClientSecret: true,
	KeySearchAPIKey: true,
}

// envBindings maps environment variables onto string keys.
var envBindings = []struct {
	env string
	key string
}{
	{domain.EnvTenantID, KeyTenantID},
	{domain.EnvClientID, KeyClientID},
	{domain.EnvClientSecret, KeyClientSecret},
	{domain.EnvSiteDomain, KeySiteDomain},
	{domain.EnvSiteName, KeySiteName},
	{domain.EnvSearchEndpoint, KeySearchEndpoint},
	{domain.EnvSearchAPIKey, KeySearchAPIKey},
	{domain.EnvIndexName, KeyIndexName},
	{domain.EnvTargetFolderPath, KeyTargetFolder},
}

// LookupEnv matches os.LookupEnv.
type LookupEnv func(key string) (string, bool)

// LoadConfig builds the runtime configuration from defaults, then the store,
// then the environment. A nil lookup uses os.LookupEnv.
func LoadConfig(store driven.ConfigStore, lookup LookupEnv) (domain.Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	cfg := domain.DefaultConfig()

	str := func(key string, dst *string) {
		if v := store.GetString(key); v != "" {
			*dst = v
		}
	}
	str(KeyTenantID, &cfg.SharePoint.TenantID)
	str(KeyClientID, &cfg.SharePoint.ClientID)
	str(KeyClientSecret, &cfg.SharePoint.ClientSecret)
	str(KeySiteDomain, &cfg.SharePoint.SiteDomain)
	str(KeySiteName, &cfg.SharePoint.SiteName)
	str(KeySearchEndpoint, &cfg.Search.Endpoint)
	str(KeySearchAPIKey, &cfg.Search.APIKey)
	str(KeyIndexName, &cfg.Search.IndexName)
	str(KeyTargetFolder, &cfg.Purge.TargetFolderPath)
	str(KeyDataDir, &cfg.DataDir)

	if _, ok := store.Get(KeySharePointEnabled); ok {
		cfg.SharePoint.Enabled = store.GetBool(KeySharePointEnabled)
	}
	if v := store.GetInt(KeyConcurrency); v != 0 {
		cfg.Purge.Concurrency = v
	}
	if v := store.GetInt(KeyBatchSize); v != 0 {
		cfg.Purge.BatchSize = v
	}
	if v := store.GetString(KeyIndeterminate); v != "" {
		cfg.Purge.Indeterminate = domain.IndeterminatePolicy(strings.ToLower(v))
	}

	if err := loadScheduler(store, &cfg.Scheduler); err != nil {
		return cfg, err
	}

	// Environment wins over the file.
	if v, ok := lookup(domain.EnvConnectorEnabled); ok {
		cfg.SharePoint.Enabled = strings.EqualFold(strings.TrimSpace(v), "true")
	}
	for _, b := range envBindings {
		if v, ok := lookup(b.env); ok && v != "" {
			switch b.key {
			case KeyTenantID:
				cfg.SharePoint.TenantID = v
			case KeyClientID:
				cfg.SharePoint.ClientID = v
			case KeyClientSecret:
				cfg.SharePoint.ClientSecret = v
			case KeySiteDomain:
				cfg.SharePoint.SiteDomain = v
			case KeySiteName:
				cfg.SharePoint.SiteName = v
			case KeySearchEndpoint:
				cfg.Search.Endpoint = v
			case KeySearchAPIKey:
				cfg.Search.APIKey = v
			case KeyIndexName:
				cfg.Search.IndexName = v
			case KeyTargetFolder:
				cfg.Purge.TargetFolderPath = v
			}
		}
	}

	if err := cfg.Purge.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func loadScheduler(store driven.ConfigStore, sc *domain.SchedulerConfig) error {
	if _, ok := store.Get(KeySchedulerEnabled); ok {
		sc.Enabled = store.GetBool(KeySchedulerEnabled)
	}
	if v := store.GetInt(KeyHistoryLimit); v > 0 {
		sc.HistoryLimit = v
	}
	sc.SyncFolders = store.GetStringSlice(KeySyncFolders)

	tasks := []struct {
		id          string
		enabledKey  string
		intervalKey string
	}{
		{domain.TaskIDOrphanPurge, KeyPurgeEnabled, KeyPurgeInterval},
		{domain.TaskIDChangeSync, KeySyncEnabled, KeySyncInterval},
	}
	for _, t := range tasks {
		tc := sc.GetTaskConfig(t.id)
		if _, ok := store.Get(t.enabledKey); ok {
			tc.Enabled = store.GetBool(t.enabledKey)
		} else if t.id == domain.TaskIDChangeSync && len(sc.SyncFolders) > 0 {
			// Configuring folders is enough to turn change sync on.
			tc.Enabled = true
		}
		if v := store.GetString(t.intervalKey); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil || d <= 0 {
				return fmt.Errorf("%w: %s must be a positive duration, got %q", domain.ErrInvalidInput, t.intervalKey, v)
			}
			tc.Interval = d
		}
		sc.TaskConfigs[t.id] = tc
	}
	return nil
}

// ParseValue converts a command-line value to the type stored for key.
func ParseValue(key, raw string) (any, error) {
	switch key {
	case KeySharePointEnabled, KeySchedulerEnabled, KeyPurgeEnabled, KeySyncEnabled:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects true or false", domain.ErrInvalidInput, key)
		}
		return b, nil
	case KeyConcurrency, KeyBatchSize, KeyHistoryLimit:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s expects an integer", domain.ErrInvalidInput, key)
		}
		return n, nil
	case KeyPurgeInterval, KeySyncInterval:
		if _, err := time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("%w: %s expects a duration such as 1h or 30m", domain.ErrInvalidInput, key)
		}
		return raw, nil
	case KeyIndeterminate:
		if !domain.IndeterminatePolicy(raw).Valid() {
			return nil, fmt.Errorf("%w: %s expects purge or retain", domain.ErrInvalidInput, key)
		}
		return raw, nil
	case KeySyncFolders:
		var folders []string
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				folders = append(folders, f)
			}
		}
		return folders, nil
	default:
		return raw, nil
	}
}
