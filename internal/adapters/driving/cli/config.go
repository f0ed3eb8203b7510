package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sppurge/internal/adapters/driven/config/file"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show and edit the configuration file",
	Long: `Reads and writes ~/.sppurge/config.toml. Environment variables still
override file values at run time.

Keys:
  sharepoint.enabled, sharepoint.tenant_id, sharepoint.client_id,
  sharepoint.client_secret, sharepoint.site_domain, sharepoint.site_name
  search.endpoint, search.api_key, search.index_name
  purge.target_folder, purge.concurrency, purge.batch_size, purge.indeterminate
  scheduler.enabled, scheduler.purge_enabled, scheduler.purge_interval,
  scheduler.sync_enabled, scheduler.sync_interval, scheduler.sync_folders,
  scheduler.history_limit
  data_dir`,
	Annotations: map[string]string{configOnly: "true"},
	RunE:        runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	RunE:  runConfigShow,
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one value from the configuration file",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigGet,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one value to the configuration file",
	Args:  cobra.ExactArgs(2),
	RunE:  runConfigSet,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	RunE: func(cmd *cobra.Command, _ []string) error {
		s, err := requireServices()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), s.ConfigStore.Path())
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{configShowCmd, configGetCmd, configSetCmd, configPathCmd} {
		c.Annotations = map[string]string{configOnly: "true"}
	}
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configPathCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	c := s.Config

	rows := [][2]string{
		{file.KeySharePointEnabled, fmt.Sprint(c.SharePoint.Enabled)},
		{file.KeyTenantID, c.SharePoint.TenantID},
		{file.KeyClientID, c.SharePoint.ClientID},
		{file.KeyClientSecret, maskSecret(c.SharePoint.ClientSecret)},
		{file.KeySiteDomain, c.SharePoint.SiteDomain},
		{file.KeySiteName, c.SharePoint.SiteName},
		{file.KeySearchEndpoint, c.Search.Endpoint},
		{file.KeySearchAPIKey, maskSecret(c.Search.APIKey)},
		{file.KeyIndexName, c.Search.IndexName},
		{file.KeyTargetFolder, c.Purge.TargetFolderPath},
		{file.KeyConcurrency, fmt.Sprint(c.Purge.Concurrency)},
		{file.KeyBatchSize, fmt.Sprint(c.Purge.BatchSize)},
		{file.KeyIndeterminate, string(c.Purge.Indeterminate)},
		{file.KeySchedulerEnabled, fmt.Sprint(c.Scheduler.Enabled)},
		{file.KeySyncFolders, fmt.Sprint(c.Scheduler.SyncFolders)},
		{file.KeyDataDir, c.DataDir},
	}

	if jsonOutput {
		out := make(map[string]string, len(rows))
		for _, r := range rows {
			out[r[0]] = r[1]
		}
		return printJSON(cmd, out)
	}

	t := newTable("Key", "Value")
	for _, r := range rows {
		t.Row(r[0], r[1])
	}
	fmt.Fprintln(cmd.OutOrStdout(), t.Render())
	cmd.Println(mutedStyle.Render("File: " + s.ConfigStore.Path()))
	if missing := c.MissingSettings(); len(missing) > 0 {
		cmd.Println(warningStyle.Render(fmt.Sprintf("Missing: %v", missing)))
	}
	return nil
}

func runConfigGet(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	val, ok := s.ConfigStore.Get(args[0])
	if !ok {
		return fmt.Errorf("%s is not set in %s", args[0], s.ConfigStore.Path())
	}
	if file.SecretKeys[args[0]] {
		if str, ok := val.(string); ok {
			val = maskSecret(str)
		}
	}
	fmt.Fprintln(cmd.OutOrStdout(), val)
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	key, raw := args[0], args[1]
	if !knownKey(key) {
		return fmt.Errorf("unknown key %q (see 'sppurge config --help')", key)
	}
	val, err := file.ParseValue(key, raw)
	if err != nil {
		return err
	}
	if err := s.ConfigStore.Set(key, val); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	cmd.Printf("%s updated.\n", key)
	return nil
}

var knownKeys = []string{
	file.KeySharePointEnabled, file.KeyTenantID, file.KeyClientID, file.KeyClientSecret,
	file.KeySiteDomain, file.KeySiteName,
	file.KeySearchEndpoint, file.KeySearchAPIKey, file.KeyIndexName,
	file.KeyTargetFolder, file.KeyConcurrency, file.KeyBatchSize, file.KeyIndeterminate,
	file.KeySchedulerEnabled, file.KeyPurgeEnabled, file.KeyPurgeInterval,
	file.KeySyncEnabled, file.KeySyncInterval, file.KeySyncFolders, file.KeyHistoryLimit,
	file.KeyDataDir,
}

func knownKey(key string) bool {
	i := sort.SearchStrings(sortedKeys, key)
	return i < len(sortedKeys) && sortedKeys[i] == key
}

var sortedKeys = func() []string {
	keys := append([]string(nil), knownKeys...)
	sort.Strings(keys)
	return keys
}()

func maskSecret(secret string) string {
	switch {
	case secret == "":
		return "(not set)"
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "..." + secret[len(secret)-4:]
	}
}
