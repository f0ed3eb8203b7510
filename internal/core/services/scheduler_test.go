package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
)

// --- Mock implementations for scheduler testing ---

// mockSchedulerStore implements driven.SchedulerStore for testing.
type mockSchedulerStore struct {
	mu       sync.RWMutex
	tasks    map[string]*domain.ScheduledTask
	results  map[string][]domain.TaskResult
	saveErr  error
	listErr  error
	pruneErr error
}

func newMockSchedulerStore() *mockSchedulerStore {
	return &mockSchedulerStore{
		tasks:   make(map[string]*domain.ScheduledTask),
		results: make(map[string][]domain.TaskResult),
	}
}

func (m *mockSchedulerStore) GetTask(_ context.Context, taskID string) (*domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	task, exists := m.tasks[taskID]
	if !exists {
		return nil, nil
	}
	taskCopy := *task
	return &taskCopy, nil
}

func (m *mockSchedulerStore) ListTasks(_ context.Context) ([]domain.ScheduledTask, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	tasks := make([]domain.ScheduledTask, 0, len(m.tasks))
	for _, t := range m.tasks {
		tasks = append(tasks, *t)
	}
	return tasks, nil
}

func (m *mockSchedulerStore) SaveTask(_ context.Context, task *domain.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	if task == nil {
		return domain.ErrInvalidInput
	}
	taskCopy := *task
	m.tasks[task.ID] = &taskCopy
	return nil
}

func (m *mockSchedulerStore) DeleteTask(_ context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tasks, taskID)
	return nil
}

func (m *mockSchedulerStore) RecordResult(_ context.Context, result *domain.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if result == nil {
		return domain.ErrInvalidInput
	}
	m.results[result.TaskID] = append(m.results[result.TaskID], *result)
	return nil
}

func (m *mockSchedulerStore) GetTaskHistory(_ context.Context, taskID string, limit int) ([]domain.TaskResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	results := m.results[taskID]
	if len(results) > limit {
		results = results[len(results)-limit:]
	}
	return results, nil
}

func (m *mockSchedulerStore) PruneHistory(_ context.Context, _ int) error {
	return m.pruneErr
}

func (m *mockSchedulerStore) task(id string) *domain.ScheduledTask {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tasks[id]
}

func (m *mockSchedulerStore) resultsFor(id string) []domain.TaskResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.TaskResult(nil), m.results[id]...)
}

// mockTracker implements driving.ChangeTracker for testing.
type mockTracker struct {
	mu      sync.Mutex
	report  domain.SyncReport
	folders [][]string
	block   chan struct{}
}

func (m *mockTracker) CurrentFiles(context.Context, []string) (map[string]domain.FileMetadata, error) {
	return nil, nil
}

func (m *mockTracker) DetectChanges(context.Context, []string) (domain.ChangeSet, error) {
	return domain.ChangeSet{}, nil
}

func (m *mockTracker) Sync(_ context.Context, folders []string, _ string) domain.SyncReport {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = append(m.folders, folders)
	return m.report
}

func (m *mockTracker) History(context.Context, int) ([]domain.SyncRecord, error) {
	return nil, nil
}

func (m *mockTracker) syncCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.folders)
}

// Ensure mocks implement interfaces
var _ driven.SchedulerStore = (*mockSchedulerStore)(nil)
var _ driving.ChangeTracker = (*mockTracker)(nil)

func successfulPurger(deleted int) *mockPurger {
	return &mockPurger{outcome: domain.PurgeOutcome{
		RunInfo:          domain.RunInfo{Success: true},
		DocumentsDeleted: deleted,
	}}
}

// ==================== Scheduler Tests ====================

func TestNewScheduler(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	scheduler := NewScheduler(config, newMockSchedulerStore(), nil, nil)

	require.NotNil(t, scheduler)
	assert.Equal(t, config.Enabled, scheduler.config.Enabled)
}

func TestScheduler_StartStop(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), successfulPurger(0), nil)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	cancel()
	err := scheduler.Stop()
	require.NoError(t, err)

	wg.Wait()
}

func TestScheduler_StopWithoutStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)

	// Stop without starting should be safe
	require.NoError(t, scheduler.Stop())
}

func TestScheduler_DoubleStart(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), successfulPurger(0), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = scheduler.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)

	// Second start returns immediately
	assert.NoError(t, scheduler.Start(context.Background()))

	cancel()
	scheduler.Stop() //nolint:errcheck
	wg.Wait()
}

func TestScheduler_InitialiseTasks(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil, nil)

	ctx := context.Background()
	require.NoError(t, scheduler.initialiseTasks(ctx))

	purgeTask, err := store.GetTask(ctx, domain.TaskIDOrphanPurge)
	require.NoError(t, err)
	require.NotNil(t, purgeTask)
	assert.Equal(t, "Orphan Purge", purgeTask.Name)
	assert.True(t, purgeTask.Enabled)
	assert.Equal(t, time.Hour, purgeTask.Interval)

	// Disabled tasks are not created
	syncTask, err := store.GetTask(ctx, domain.TaskIDChangeSync)
	require.NoError(t, err)
	assert.Nil(t, syncTask)
}

func TestScheduler_EnsureTask_UpdateInterval(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil, nil)
	ctx := context.Background()

	taskCfg := domain.TaskConfig{Enabled: true, Interval: 1 * time.Hour}
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	taskCfg.Interval = 2 * time.Hour
	require.NoError(t, scheduler.ensureTask(ctx, "test-task", "Test Task", taskCfg))

	task, err := store.GetTask(ctx, "test-task")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Hour, task.Interval)
}

func TestScheduler_EnsureTask_DisablesStoredTask(t *testing.T) {
	store := newMockSchedulerStore()
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil, nil)
	ctx := context.Background()

	require.NoError(t, scheduler.ensureTask(ctx, "t", "T", domain.TaskConfig{Enabled: true, Interval: time.Hour}))
	require.NoError(t, scheduler.ensureTask(ctx, "t", "T", domain.TaskConfig{Enabled: false, Interval: time.Hour}))

	task, err := store.GetTask(ctx, "t")
	require.NoError(t, err)
	assert.False(t, task.Enabled)
}

func TestScheduler_RunOrphanPurge(t *testing.T) {
	purger := successfulPurger(42)
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), purger, nil)

	n, err := scheduler.runOrphanPurge(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 42, n)
	assert.Equal(t, 1, purger.callCount())
	assert.Equal(t, driving.PurgeOptions{}, purger.opts[0])
}

func TestScheduler_RunOrphanPurge_Failure(t *testing.T) {
	purger := &mockPurger{outcome: domain.PurgeOutcome{RunInfo: domain.RunInfo{Message: domain.MsgTokenUnavailable}}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), purger, nil)

	_, err := scheduler.runOrphanPurge(context.Background())

	require.Error(t, err)
	assert.Equal(t, domain.MsgTokenUnavailable, err.Error())
}

func TestScheduler_RunOrphanPurge_SkippedIsNotAnError(t *testing.T) {
	purger := &mockPurger{outcome: domain.PurgeOutcome{RunInfo: domain.RunInfo{Success: true, Skipped: true, Message: domain.MsgConnectorDisabled}}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), purger, nil)

	n, err := scheduler.runOrphanPurge(context.Background())

	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestScheduler_RunOrphanPurge_NilPurger(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)

	_, err := scheduler.runOrphanPurge(context.Background())
	require.NoError(t, err)
}

func TestScheduler_RunChangeSync(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.SyncFolders = []string{"/ppt", "Archive|/old"}
	tracker := &mockTracker{report: domain.SyncReport{
		Status:           domain.SyncStatusSuccess,
		IndexedFiles:     []string{"A", "B"},
		DeletedFromIndex: []string{"C"},
	}}
	scheduler := NewScheduler(config, newMockSchedulerStore(), nil, tracker)

	n, err := scheduler.runChangeSync(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, [][]string{{"/ppt", "Archive|/old"}}, tracker.folders)
}

func TestScheduler_RunChangeSync_Errors(t *testing.T) {
	t.Run("no folders", func(t *testing.T) {
		scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, &mockTracker{})
		_, err := scheduler.runChangeSync(context.Background())
		assert.ErrorIs(t, err, errNoFolders)
	})

	t.Run("failed sync", func(t *testing.T) {
		config := domain.DefaultSchedulerConfig()
		config.SyncFolders = []string{"/ppt"}
		tracker := &mockTracker{report: domain.SyncReport{Status: domain.SyncStatusFailed, Errors: []string{"boom"}}}
		scheduler := NewScheduler(config, newMockSchedulerStore(), nil, tracker)

		_, err := scheduler.runChangeSync(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "boom")
	})
}

func TestScheduler_CheckAndRunDueTasks(t *testing.T) {
	store := newMockSchedulerStore()
	purger := successfulPurger(5)
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, purger, nil)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDOrphanPurge,
		Name:     "Orphan Purge",
		Interval: 1 * time.Hour,
		NextRun:  now.Add(-1 * time.Minute),
		Enabled:  true,
	}))
	require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{
		ID:       domain.TaskIDChangeSync,
		Name:     "Change Sync",
		Interval: 1 * time.Hour,
		NextRun:  now.Add(time.Hour),
		Enabled:  true,
	}))

	scheduler.checkAndRunDueTasks(ctx)
	scheduler.wg.Wait()

	assert.Equal(t, 1, purger.callCount())

	task := store.task(domain.TaskIDOrphanPurge)
	require.NotNil(t, task)
	assert.Empty(t, task.LastError)
	assert.False(t, task.LastSuccess.IsZero())
	assert.True(t, task.NextRun.After(now))

	results := store.resultsFor(domain.TaskIDOrphanPurge)
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)
	assert.Equal(t, 5, results[0].ItemsProcessed)
	assert.Empty(t, store.resultsFor(domain.TaskIDChangeSync))
}

func TestScheduler_FailedTaskRecordsError(t *testing.T) {
	store := newMockSchedulerStore()
	purger := &mockPurger{outcome: domain.PurgeOutcome{RunInfo: domain.RunInfo{Message: domain.MsgSiteUnresolved}}}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, purger, nil)

	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: domain.TaskIDOrphanPurge, Interval: time.Hour, Enabled: true})
	scheduler.wg.Wait()

	task := store.task(domain.TaskIDOrphanPurge)
	require.NotNil(t, task)
	assert.Equal(t, domain.MsgSiteUnresolved, task.LastError)
	results := store.resultsFor(domain.TaskIDOrphanPurge)
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
}

func TestScheduler_SkipsTaskStillRunning(t *testing.T) {
	config := domain.DefaultSchedulerConfig()
	config.SyncFolders = []string{"/ppt"}
	tracker := &mockTracker{block: make(chan struct{}), report: domain.SyncReport{Status: domain.SyncStatusSuccess}}
	scheduler := NewScheduler(config, newMockSchedulerStore(), nil, tracker)
	task := &domain.ScheduledTask{ID: domain.TaskIDChangeSync, Interval: time.Minute, Enabled: true}

	scheduler.runTask(context.Background(), task)
	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: domain.TaskIDChangeSync, Interval: time.Minute, Enabled: true})
	close(tracker.block)
	scheduler.wg.Wait()

	assert.Equal(t, 1, tracker.syncCount())
}

func TestScheduler_Status(t *testing.T) {
	store := newMockSchedulerStore()
	ctx := context.Background()
	for _, id := range []string{domain.TaskIDOrphanPurge, domain.TaskIDChangeSync} {
		require.NoError(t, store.SaveTask(ctx, &domain.ScheduledTask{ID: id, Name: domain.TaskName(id), Enabled: true}))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, store.RecordResult(ctx, &domain.TaskResult{TaskID: domain.TaskIDOrphanPurge, ItemsProcessed: i}))
	}
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), store, nil, nil)

	statuses, err := scheduler.Status(ctx, 2)

	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, domain.TaskIDChangeSync, statuses[0].Task.ID)
	assert.Empty(t, statuses[0].Recent)
	assert.Equal(t, domain.TaskIDOrphanPurge, statuses[1].Task.ID)
	assert.Len(t, statuses[1].Recent, 2)
}

func TestScheduler_RunTask_UnknownTaskID(t *testing.T) {
	scheduler := NewScheduler(domain.DefaultSchedulerConfig(), newMockSchedulerStore(), nil, nil)

	// Logs and returns without panicking
	scheduler.runTask(context.Background(), &domain.ScheduledTask{ID: "unknown-task", Name: "Unknown", Enabled: true})
	scheduler.wg.Wait()
}
