package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
)

var (
	purgeIndex  string
	purgeFolder string
	purgeYes    bool
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Delete chunks of files that no longer exist in SharePoint",
	Long: `Scans the search index for SharePoint chunks, checks every referenced file
against Microsoft Graph and deletes the chunks of files that are gone.

Without --yes a preview is shown first and the purge only runs after
confirmation on an interactive terminal.`,
	RunE: runPurge,
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show which files purge would remove, without deleting",
	RunE:  runPreview,
}

func init() {
	for _, c := range []*cobra.Command{purgeCmd, previewCmd} {
		c.Flags().StringVar(&purgeIndex, "index", "", "Index name (overrides configuration)")
		c.Flags().StringVar(&purgeFolder, "folder", "", "Only check files in this SharePoint folder")
	}
	purgeCmd.Flags().BoolVarP(&purgeYes, "yes", "y", false, "Purge without confirmation")

	rootCmd.AddCommand(purgeCmd)
	rootCmd.AddCommand(previewCmd)
}

func purgeOptions() driving.PurgeOptions {
	return driving.PurgeOptions{IndexName: purgeIndex, TargetFolderPath: purgeFolder}
}

// errRunFailed is returned after a failed outcome has been printed.
var errRunFailed = errors.New("run failed")

func runPreview(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}

	outcome := s.Purger.Preview(commandContext(cmd), purgeOptions())
	if jsonOutput {
		if err := printJSON(cmd, outcome); err != nil {
			return err
		}
	} else {
		RenderPreview(cmd.OutOrStdout(), outcome)
	}
	if !outcome.Success {
		return errRunFailed
	}
	return nil
}

func runPurge(cmd *cobra.Command, _ []string) error {
	s, err := requireServices()
	if err != nil {
		return err
	}
	ctx := commandContext(cmd)

	if !purgeYes {
		if jsonOutput || !stdinIsTerminal() {
			return errors.New("refusing to purge without --yes on a non-interactive terminal")
		}
		preview := s.Purger.Preview(ctx, purgeOptions())
		RenderPreview(cmd.OutOrStdout(), preview)
		if !preview.Success {
			return errRunFailed
		}
		if len(preview.OrphanedFiles) == 0 {
			return nil
		}
		prompt := fmt.Sprintf("Delete %d chunks from %d files? [y/N] ",
			preview.WouldDeleteCount, len(preview.OrphanedFiles))
		if !confirm(cmd.InOrStdin(), cmd.OutOrStdout(), prompt) {
			cmd.Println("Aborted.")
			return nil
		}
	}

	outcome := s.Purger.Purge(ctx, purgeOptions())
	if jsonOutput {
		if err := printJSON(cmd, outcome); err != nil {
			return err
		}
	} else {
		RenderPurge(cmd.OutOrStdout(), outcome)
	}
	if !outcome.Success {
		return errRunFailed
	}
	return nil
}

//nolint:errcheck // CLI prompt, error ignored for UX
func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	answer, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

