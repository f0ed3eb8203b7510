package cli

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
)

var (
	colourPrimary = lipgloss.Color("#7C3AED")
	colourMuted   = lipgloss.Color("#6C7086")
	colourSuccess = lipgloss.Color("#A6E3A1")
	colourWarning = lipgloss.Color("#F9E2AF")
	colourError   = lipgloss.Color("#F38BA8")
	colourBorder  = lipgloss.Color("#45475A")

	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourPrimary)
	mutedStyle   = lipgloss.NewStyle().Foreground(colourMuted)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(colourSuccess)
	warningStyle = lipgloss.NewStyle().Foreground(colourWarning)
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(colourError)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
)

func newTable(headers ...string) *table.Table {
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colourBorder)).
		Headers(headers...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
}

func statusLine(info domain.RunInfo) string {
	switch {
	case !info.Success:
		return errorStyle.Render("FAILED") + " " + info.Message
	case info.Skipped:
		return warningStyle.Render("SKIPPED") + " " + info.Message
	default:
		return successStyle.Render("OK") + " " + info.Message
	}
}

func renderRunHeader(w io.Writer, title string, info domain.RunInfo) {
	fmt.Fprintln(w, titleStyle.Render(title))
	fmt.Fprintln(w, statusLine(info))
	scope := info.IndexName
	if info.TargetFolderPath != "" {
		scope += " (folder " + info.TargetFolderPath + ")"
	}
	if scope != "" {
		fmt.Fprintln(w, mutedStyle.Render("Index: "+scope))
	}
}

func renderStats(w io.Writer, stats domain.RunStats, extraLabel string, extra int) {
	t := newTable("Documents checked", "Files checked", "Files not found", "Indeterminate", extraLabel).
		Row(
			strconv.Itoa(stats.DocumentsChecked),
			strconv.Itoa(stats.FilesChecked),
			strconv.Itoa(stats.FilesNotFound),
			strconv.Itoa(stats.FilesIndeterminate),
			strconv.Itoa(extra),
		)
	fmt.Fprintln(w, t.Render())
}

func renderFiles(w io.Writer, files []domain.OrphanedFile) {
	if len(files) == 0 {
		return
	}
	t := newTable("File", "Path", "Chunks", "Reason")
	for _, f := range files {
		t.Row(f.FileName, f.FilePath, strconv.Itoa(f.ChunkCount), f.Reason)
	}
	fmt.Fprintln(w, t.Render())
}

func renderErrors(w io.Writer, errs []string) {
	if len(errs) == 0 {
		return
	}
	fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("Errors (%d)", len(errs))))
	for _, e := range errs {
		fmt.Fprintln(w, "  - "+e)
	}
}

// RenderPurge writes a purge outcome.
func RenderPurge(w io.Writer, o domain.PurgeOutcome) {
	renderRunHeader(w, "Orphan purge", o.RunInfo)
	if o.Stage != domain.StageNotStarted && !o.Skipped {
		renderStats(w, o.RunStats, "Chunks deleted", o.DocumentsDeleted)
	}
	renderFiles(w, o.DeletedFiles)
	renderErrors(w, o.Errors)
}

// RenderPreview writes a preview outcome.
func RenderPreview(w io.Writer, o domain.PreviewOutcome) {
	renderRunHeader(w, "Orphan preview", o.RunInfo)
	if o.Stage != domain.StageNotStarted && !o.Skipped {
		renderStats(w, o.RunStats, "Would delete", o.WouldDeleteCount)
	}
	renderFiles(w, o.OrphanedFiles)
	renderErrors(w, o.Errors)
}

// RenderChanges writes a change set.
func RenderChanges(w io.Writer, cs domain.ChangeSet) {
	fmt.Fprintln(w, titleStyle.Render("Changes"))
	if !cs.HasChanges() {
		fmt.Fprintln(w, successStyle.Render("No changes")+mutedStyle.Render(fmt.Sprintf(" (%d unchanged)", len(cs.Unchanged))))
		return
	}

	t := newTable("Change", "File ID")
	add := func(kind string, ids []string) {
		for _, id := range ids {
			t.Row(kind, id)
		}
	}
	add("new", cs.New)
	add("modified", cs.Modified)
	add("deleted", cs.Deleted)
	fmt.Fprintln(w, t.Render())
	fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%d new, %d modified, %d deleted, %d unchanged",
		len(cs.New), len(cs.Modified), len(cs.Deleted), len(cs.Unchanged))))
}

// RenderSyncReport writes the result of a change sync.
func RenderSyncReport(w io.Writer, r domain.SyncReport) {
	status := successStyle.Render(string(r.Status))
	switch r.Status {
	case domain.SyncStatusPartial:
		status = warningStyle.Render(string(r.Status))
	case domain.SyncStatusFailed:
		status = errorStyle.Render(string(r.Status))
	}
	fmt.Fprintln(w, titleStyle.Render("Change sync")+" "+status+mutedStyle.Render(" "+r.Duration.Round(time.Millisecond).String()))

	t := newTable("New", "Modified", "Deleted", "Unchanged", "Indexed", "Pending", "Removed")
	t.Row(
		strconv.Itoa(len(r.Changes.New)),
		strconv.Itoa(len(r.Changes.Modified)),
		strconv.Itoa(len(r.Changes.Deleted)),
		strconv.Itoa(len(r.Changes.Unchanged)),
		strconv.Itoa(len(r.IndexedFiles)),
		strconv.Itoa(len(r.PendingFiles)),
		strconv.Itoa(len(r.DeletedFromIndex)),
	)
	fmt.Fprintln(w, t.Render())
	if r.Purge != nil {
		fmt.Fprintln(w, "Purge: "+statusLine(r.Purge.RunInfo))
	}
	renderErrors(w, r.Errors)
}

// RenderHistory writes sync history rows.
func RenderHistory(w io.Writer, records []domain.SyncRecord) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No sync history."))
		return
	}
	t := newTable("Synced at", "Status", "Added", "Modified", "Deleted", "Folders", "Duration", "Error")
	for _, r := range records {
		t.Row(
			r.SyncedAt.Local().Format(time.DateTime),
			string(r.Status),
			strconv.Itoa(r.FilesAdded),
			strconv.Itoa(r.FilesModified),
			strconv.Itoa(r.FilesDeleted),
			strconv.Itoa(r.FoldersScanned),
			r.Duration.Round(time.Millisecond).String(),
			r.ErrorMessage,
		)
	}
	fmt.Fprintln(w, t.Render())
}

// RenderSchedule writes scheduled tasks and their recent results.
func RenderSchedule(w io.Writer, statuses []driving.TaskStatus) {
	if len(statuses) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No scheduled tasks. Run 'sppurge schedule run' to create them."))
		return
	}
	t := newTable("Task", "Enabled", "Interval", "Last run", "Next run", "Last error")
	for _, s := range statuses {
		t.Row(
			s.Task.Name,
			strconv.FormatBool(s.Task.Enabled),
			s.Task.Interval.String(),
			formatWhen(s.Task.LastRun),
			formatWhen(s.Task.NextRun),
			s.Task.LastError,
		)
	}
	fmt.Fprintln(w, t.Render())

	for _, s := range statuses {
		if len(s.Recent) == 0 {
			continue
		}
		fmt.Fprintln(w, titleStyle.Render(s.Task.Name+" history"))
		h := newTable("Started", "Duration", "Result", "Items", "Error")
		for _, r := range s.Recent {
			result := "ok"
			if !r.Success {
				result = "failed"
			}
			h.Row(
				formatWhen(r.StartedAt),
				r.EndedAt.Sub(r.StartedAt).Round(time.Millisecond).String(),
				result,
				strconv.Itoa(r.ItemsProcessed),
				r.Error,
			)
		}
		fmt.Fprintln(w, h.Render())
	}
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}
