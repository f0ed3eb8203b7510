package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/custodia-labs/sppurge/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
)

// mockPurger implements driving.Purger for testing.
type mockPurger struct {
	purge   domain.PurgeOutcome
	preview domain.PreviewOutcome

	purgeCalls   int
	previewCalls int
	lastOpts     driving.PurgeOptions
}

func (m *mockPurger) Purge(_ context.Context, opts driving.PurgeOptions) domain.PurgeOutcome {
	m.purgeCalls++
	m.lastOpts = opts
	return m.purge
}

func (m *mockPurger) Preview(_ context.Context, opts driving.PurgeOptions) domain.PreviewOutcome {
	m.previewCalls++
	m.lastOpts = opts
	return m.preview
}

// mockTracker implements driving.ChangeTracker for testing.
type mockTracker struct {
	changes domain.ChangeSet
	report  domain.SyncReport
	history []domain.SyncRecord
	err     error

	lastFolders []string
	lastIndex   string
	lastLimit   int
}

func (m *mockTracker) CurrentFiles(_ context.Context, folders []string) (map[string]domain.FileMetadata, error) {
	m.lastFolders = folders
	return nil, m.err
}

func (m *mockTracker) DetectChanges(_ context.Context, folders []string) (domain.ChangeSet, error) {
	m.lastFolders = folders
	return m.changes, m.err
}

func (m *mockTracker) Sync(_ context.Context, folders []string, indexName string) domain.SyncReport {
	m.lastFolders = folders
	m.lastIndex = indexName
	return m.report
}

func (m *mockTracker) History(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	m.lastLimit = limit
	return m.history, m.err
}

// mockScheduler implements driving.Scheduler for testing.
type mockScheduler struct {
	statuses []driving.TaskStatus
	err      error

	started bool
	stopped bool
}

func (m *mockScheduler) Start(ctx context.Context) error {
	m.started = true
	<-ctx.Done()
	return ctx.Err()
}

func (m *mockScheduler) Stop() error {
	m.stopped = true
	return nil
}

func (m *mockScheduler) Status(_ context.Context, _ int) ([]driving.TaskStatus, error) {
	return m.statuses, m.err
}

func newTestServices() *Services {
	return &Services{
		Config:      domain.DefaultConfig(),
		ConfigStore: memory.NewConfigStore(nil),
		Purger:      &mockPurger{},
		Tracker:     &mockTracker{},
		Scheduler:   &mockScheduler{},
	}
}

// execute runs the root command against svc with a non-interactive stdin.
func execute(t *testing.T, svc *Services, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCommand(context.Background(), t, svc, stdin, false, args...)
}

// executeInteractive runs a command as if stdin were a terminal.
func executeInteractive(t *testing.T, svc *Services, stdin string, args ...string) (string, error) {
	t.Helper()
	return runCommand(context.Background(), t, svc, stdin, true, args...)
}

func executeContext(ctx context.Context, t *testing.T, svc *Services, args ...string) (string, error) {
	t.Helper()
	return runCommand(ctx, t, svc, "", false, args...)
}

// runCommand swaps in svc, runs the root command and resets flag state afterwards.
func runCommand(
	ctx context.Context,
	t *testing.T,
	svc *Services,
	stdin string,
	terminal bool,
	args ...string,
) (string, error) {
	t.Helper()

	oldServices, oldBootstrap, oldTerminal := services, bootstrap, stdinIsTerminal
	services, bootstrap = svc, nil
	stdinIsTerminal = func() bool { return terminal }
	t.Cleanup(func() {
		services, bootstrap, stdinIsTerminal = oldServices, oldBootstrap, oldTerminal
		resetFlags()
	})

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
	}()

	err := rootCmd.ExecuteContext(ctx)
	return buf.String(), err
}

func resetFlags() {
	opts = GlobalOptions{}
	jsonOutput = false
	purgeIndex, purgeFolder, purgeYes = "", "", false
	changesIndex, changesHistoryLimit = "", 20
	scheduleMetricsAddr, scheduleStatusLimit = ":9108", 5
}
