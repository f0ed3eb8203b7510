// Command sppurge keeps an Azure AI Search index in step with SharePoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/custodia-labs/sppurge/internal/adapters/driven/azuresearch"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/config/file"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/graph"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/metrics"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sppurge/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/sppurge/internal/adapters/driving/cli"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/services"
	"github.com/custodia-labs/sppurge/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.Execute(ctx, build); err != nil {
		stop()
		os.Exit(1)
	}
}

// build wires the adapters into the core services.
func build(opts cli.GlobalOptions) (*cli.Services, error) {
	var configStore driven.ConfigStore
	if opts.Ephemeral {
		configStore = memory.NewConfigStore(nil)
	} else {
		fileStore, err := file.NewConfigStore(opts.ConfigDir)
		if err != nil {
			return nil, err
		}
		configStore = fileStore
	}

	cfg, err := file.LoadConfig(configStore, nil)
	if opts.ConfigOnly {
		if err != nil {
			logger.Warn("configuration is invalid: %v", err)
		}
		return &cli.Services{Config: cfg, ConfigStore: configStore}, nil
	}
	if err != nil {
		return nil, err
	}
	if opts.DataDir != "" {
		cfg.DataDir = opts.DataDir
	}

	var (
		metaStore  driven.FileMetadataStore
		schedStore driven.SchedulerStore
		closeFn    func() error
	)
	if opts.Ephemeral {
		metaStore = memory.NewFileMetadataStore()
		schedStore = memory.NewSchedulerStore()
	} else {
		store, err := sqlite.NewStore(cfg.DataDir)
		if err != nil {
			return nil, err
		}
		logger.Debug("database: %s", store.Path())
		metaStore = store.FileMetadataStore()
		schedStore = store.SchedulerStore()
		closeFn = store.Close
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	graphClient := graph.NewClient(cfg.SharePoint, graph.Options{Metrics: recorder})

	// A nil index makes runs report the missing search settings.
	var index driven.SearchIndex
	if cfg.Search.Endpoint != "" && cfg.Search.APIKey != "" {
		index = azuresearch.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey, nil)
	}

	purger := services.NewPurgeService(cfg, graphClient, index, metaStore, recorder)
	tracker := services.NewChangeTracker(cfg, graphClient, metaStore, purger, nil, recorder)
	scheduler := services.NewScheduler(cfg.Scheduler, schedStore, purger, tracker)

	return &cli.Services{
		Config:      cfg,
		ConfigStore: configStore,
		Purger:      purger,
		Tracker:     tracker,
		Scheduler:   scheduler,
		Gatherer:    registry,
		Close:       closeFn,
	}, nil
}
