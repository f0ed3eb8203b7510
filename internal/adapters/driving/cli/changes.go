package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

var (
	changesIndex        string
	changesHistoryLimit int
)

var changesCmd = &cobra.Command{
	Use:   "changes",
	Short: "Track SharePoint file changes",
	Long: `Compares the files in SharePoint folders with the metadata stored by the
last sync.

Folders are library paths such as /Reports/2024. Prefix a folder with a
library name and a pipe ("Archive|/2023") to read a library other than the
site's default. Without arguments the scheduler.sync_folders setting is used.`,
}

var changesDetectCmd = &cobra.Command{
	Use:   "detect [folder...]",
	Short: "List new, modified and deleted files without changing anything",
	RunE:  runChangesDetect,
}

var changesSyncCmd = &cobra.Command{
	Use:   "sync [folder...]",
	Short: "Apply detected changes to the index and stored metadata",
	RunE:  runChangesSync,
}

var changesHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent sync runs",
	RunE:  runChangesHistory,
}

func init() {
	changesSyncCmd.Flags().StringVar(&changesIndex, "index", "", "Index name (overrides configuration)")
	changesHistoryCmd.Flags().IntVarP(&changesHistoryLimit, "limit", "n", 20, "Number of runs to show")

	changesCmd.AddCommand(changesDetectCmd)
	changesCmd.AddCommand(changesSyncCmd)
	changesCmd.AddCommand(changesHistoryCmd)
	rootCmd.AddCommand(changesCmd)
}

func syncFolders(s *Services, args []string) ([]string, error) {
	if len(args) > 0 {
		return args, nil
	}
	if len(s.Config.Scheduler.SyncFolders) > 0 {
		return s.Config.Scheduler.SyncFolders, nil
	}
	return nil, errors.New("no folders given and scheduler.sync_folders is not configured")
}

func runChangesDetect(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	folders, err := syncFolders(s, args)
	if err != nil {
		return err
	}

	cs, err := s.Tracker.DetectChanges(commandContext(cmd), folders)
	if err != nil {
		return err
	}
	if jsonOutput {
		return printJSON(cmd, cs)
	}
	RenderChanges(cmd.OutOrStdout(), cs)
	return nil
}

func runChangesSync(cmd *cobra.Command, args []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	folders, err := syncFolders(s, args)
	if err != nil {
		return err
	}

	report := s.Tracker.Sync(commandContext(cmd), folders, changesIndex)
	if jsonOutput {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		RenderSyncReport(cmd.OutOrStdout(), report)
	}
	if report.Status == domain.SyncStatusFailed {
		return errRunFailed
	}
	return nil
}

func runChangesHistory(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	if changesHistoryLimit < 1 {
		return errors.New("--limit must be at least 1")
	}

	records, err := s.Tracker.History(commandContext(cmd), changesHistoryLimit)
	if err != nil {
		return err
	}
	if jsonOutput {
		if records == nil {
			records = []domain.SyncRecord{}
		}
		return printJSON(cmd, records)
	}
	RenderHistory(cmd.OutOrStdout(), records)
	return nil
}
