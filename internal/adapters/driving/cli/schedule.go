package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sppurge/internal/adapters/driven/metrics"
	"github.com/custodia-labs/sppurge/internal/logger"
)

var (
	scheduleMetricsAddr string
	scheduleStatusLimit int
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run or inspect the background scheduler",
}

var scheduleRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run scheduled purges and syncs until interrupted",
	Long: `Runs the orphan purge and, when folders are configured, the change sync on
their configured intervals. Task state survives restarts.

Metrics and health checks are served on --metrics-addr; pass an empty
value to disable the listener.`,
	RunE: runSchedule,
}

var scheduleStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show scheduled tasks and recent results",
	RunE:  runScheduleStatus,
}

func init() {
	scheduleRunCmd.Flags().StringVar(&scheduleMetricsAddr, "metrics-addr", ":9108", "Listen address for /metrics, /healthz and /readyz")
	scheduleStatusCmd.Flags().IntVarP(&scheduleStatusLimit, "limit", "n", 5, "Recent results to show per task")

	scheduleCmd.AddCommand(scheduleRunCmd)
	scheduleCmd.AddCommand(scheduleStatusCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if !s.Config.Scheduler.Enabled {
		return errors.New("scheduler is disabled (scheduler.enabled = false)")
	}
	ctx := commandContext(cmd)
	logger.SetTimestamps(true)
	defer logger.SetTimestamps(false)

	var srv *http.Server
	if scheduleMetricsAddr != "" {
		ready := func(ctx context.Context) error {
			_, err := s.Scheduler.Status(ctx, 0)
			return err
		}
		srv = &http.Server{
			Addr:              scheduleMetricsAddr,
			Handler:           metrics.NewHandler(s.Gatherer, ready),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("metrics listening on %s", scheduleMetricsAddr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server: %v", err)
			}
		}()
	}

	cmd.Println("Scheduler running. Press Ctrl+C to stop.")
	err = s.Scheduler.Start(ctx)

	stopErr := s.Scheduler.Stop()
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	if err == nil {
		cmd.Println("Scheduler stopped.")
	}
	return errors.Join(err, stopErr)
}

func runScheduleStatus(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	statuses, err := s.Scheduler.Status(commandContext(cmd), scheduleStatusLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, statuses)
	}
	RenderSchedule(cmd.OutOrStdout(), statuses)
	return nil
}
