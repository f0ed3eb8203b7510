// Package cli implements the sppurge command line with cobra.
package cli

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
	"github.com/custodia-labs/sppurge/internal/logger"
)

// version is set at build time with -ldflags "-X .../cli.version=...".
var version = "dev"

// GlobalOptions are the persistent flags every command shares.
type GlobalOptions struct {
	ConfigDir string
	DataDir   string
	Ephemeral bool
	Verbose   bool

	// ConfigOnly asks for the configuration store alone. Invalid settings
	// must not stop the config commands that repair them.
	ConfigOnly bool
}

// Services are the wired application services.
type Services struct {
	Config      domain.Config
	ConfigStore driven.ConfigStore
	Purger      driving.Purger
	Tracker     driving.ChangeTracker
	Scheduler   driving.Scheduler

	// Gatherer exposes metrics on the daemon's /metrics endpoint.
	Gatherer prometheus.Gatherer

	// Close releases the database. May be nil.
	Close func() error
}

// Bootstrap builds the services once flags are parsed.
type Bootstrap func(opts GlobalOptions) (*Services, error)

var (
	opts       GlobalOptions
	jsonOutput bool

	bootstrap Bootstrap
	services  *Services
)

// Command annotations read by setup.
const (
	skipServices = "skip-services"
	configOnly   = "config-only"
)

var rootCmd = &cobra.Command{
	Use:   "sppurge",
	Short: "Keep a SharePoint search index in step with SharePoint",
	Long: `sppurge removes chunks of deleted SharePoint files from an Azure AI Search
index and tracks file changes between syncs.

Configuration is read from ~/.sppurge/config.toml and overridden by the
SHAREPOINT_* and AZURE_SEARCH_* environment variables.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
		return teardown()
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable verbose logging")
	flags.StringVar(&opts.ConfigDir, "config-dir", "", "Configuration directory (default ~/.sppurge)")
	flags.StringVar(&opts.DataDir, "data-dir", "", "Database directory (default ~/.sppurge/data)")
	flags.BoolVar(&opts.Ephemeral, "ephemeral", false, "Keep metadata in memory and ignore the config file")
	flags.BoolVar(&jsonOutput, "json", false, "Print results as JSON")
}

// Execute runs the root command with build wiring the services.
func Execute(ctx context.Context, build Bootstrap) error {
	bootstrap = build
	return rootCmd.ExecuteContext(ctx)
}

func setup(cmd *cobra.Command, _ []string) error {
	logger.SetVerbose(opts.Verbose)
	if cmd.Annotations[skipServices] == "true" || services != nil || bootstrap == nil {
		return nil
	}
	o := opts
	o.ConfigOnly = cmd.Annotations[configOnly] == "true"
	s, err := bootstrap(o)
	if err != nil {
		return err
	}
	services = s
	return nil
}

func teardown() error {
	if bootstrap == nil || services == nil {
		return nil
	}
	s := services
	services = nil
	if s.Close != nil {
		return s.Close()
	}
	return nil
}

// requireServices returns the wired services or an error naming what is missing.
func requireServices() (*Services, error) {
	if services == nil {
		return nil, errors.New("services not configured")
	}
	return services, nil
}

// commandContext returns the command's context, which cobra leaves nil when
// Execute is called without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
