package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
	"github.com/custodia-labs/sppurge/internal/core/ports/driving"
	"github.com/custodia-labs/sppurge/internal/logger"
)

// Ensure Scheduler implements the interface.
var _ driving.Scheduler = (*Scheduler)(nil)

// Scheduler runs the orphan purge and change sync on their intervals.
// Task state is persisted so intervals survive restarts.
type Scheduler struct {
	config  domain.SchedulerConfig
	store   driven.SchedulerStore
	purger  driving.Purger
	tracker driving.ChangeTracker

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// inFlight holds the IDs of tasks currently executing.
	inFlight map[string]bool
}

// NewScheduler creates a scheduler with configuration.
// purger and tracker may be nil; their tasks then complete without work.
func NewScheduler(
	config domain.SchedulerConfig,
	store driven.SchedulerStore,
	purger driving.Purger,
	tracker driving.ChangeTracker,
) *Scheduler {
	return &Scheduler{
		config:   config,
		store:    store,
		purger:   purger,
		tracker:  tracker,
		inFlight: make(map[string]bool),
	}
}

// Start begins the scheduler loop. This method blocks until Stop is called
// or the context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil // Already running
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.initialiseTasks(ctx); err != nil {
		logger.Error("scheduler: failed to initialise tasks: %v", err)
	}

	return s.run(ctx)
}

// Stop gracefully shuts down the scheduler.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	// Wait for running tasks to complete
	s.wg.Wait()

	return nil
}

// Status returns every task with its most recent results.
func (s *Scheduler) Status(ctx context.Context, historyLimit int) ([]driving.TaskStatus, error) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].ID < tasks[j].ID })

	statuses := make([]driving.TaskStatus, 0, len(tasks))
	for _, task := range tasks {
		history, err := s.store.GetTaskHistory(ctx, task.ID, historyLimit)
		if err != nil {
			return nil, fmt.Errorf("task history %s: %w", task.ID, err)
		}
		statuses = append(statuses, driving.TaskStatus{Task: task, Recent: history})
	}
	return statuses, nil
}

// initialiseTasks ensures all configured tasks exist in the store.
func (s *Scheduler) initialiseTasks(ctx context.Context) error {
	for _, id := range []string{domain.TaskIDOrphanPurge, domain.TaskIDChangeSync} {
		taskCfg := s.config.GetTaskConfig(id)
		if err := s.ensureTask(ctx, id, domain.TaskName(id), taskCfg); err != nil {
			return err
		}
	}
	return nil
}

// ensureTask creates or updates a task in the store.
func (s *Scheduler) ensureTask(ctx context.Context, id, name string, cfg domain.TaskConfig) error {
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}

	if task == nil {
		if !cfg.Enabled {
			return nil
		}
		task = &domain.ScheduledTask{
			ID:       id,
			Name:     name,
			Interval: cfg.Interval,
			Enabled:  cfg.Enabled,
			NextRun:  time.Now().Add(cfg.Interval),
		}
	} else {
		// Update interval if changed
		if task.Interval != cfg.Interval {
			task.Interval = cfg.Interval
			// Recalculate next run from now
			task.NextRun = time.Now().Add(cfg.Interval)
		}
		task.Enabled = cfg.Enabled
	}

	return s.store.SaveTask(ctx, task)
}

// run is the main scheduler loop.
func (s *Scheduler) run(ctx context.Context) error {
	// Check for due tasks immediately on startup
	s.checkAndRunDueTasks(ctx)

	// Use a 1-minute ticker to check for due tasks
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case <-ticker.C:
			s.checkAndRunDueTasks(ctx)
		}
	}
}

// checkAndRunDueTasks finds and executes tasks that are due.
func (s *Scheduler) checkAndRunDueTasks(ctx context.Context) {
	tasks, err := s.store.ListTasks(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list tasks: %v", err)
		return
	}

	now := time.Now()
	for i := range tasks {
		task := &tasks[i]
		if !task.Enabled {
			continue
		}
		if task.NextRun.IsZero() || !task.NextRun.After(now) {
			s.runTask(ctx, task)
		}
	}
}

// runTask executes a single task unless a previous run of it is still going.
func (s *Scheduler) runTask(ctx context.Context, task *domain.ScheduledTask) {
	s.mu.Lock()
	if s.inFlight[task.ID] {
		s.mu.Unlock()
		logger.Debug("scheduler: %s still running, skipping", task.ID)
		return
	}
	s.inFlight[task.ID] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.inFlight, task.ID)
			s.mu.Unlock()
		}()

		result := &domain.TaskResult{
			TaskID:    task.ID,
			StartedAt: time.Now(),
		}

		var err error
		switch task.ID {
		case domain.TaskIDOrphanPurge:
			result.ItemsProcessed, err = s.runOrphanPurge(ctx)
		case domain.TaskIDChangeSync:
			result.ItemsProcessed, err = s.runChangeSync(ctx)
		default:
			logger.Warn("scheduler: unknown task ID: %s", task.ID)
			return
		}

		result.EndedAt = time.Now()
		if err != nil {
			logger.Error("scheduler: %s failed: %v", task.ID, err)
			result.Success = false
			result.Error = err.Error()
			task.LastError = err.Error()
		} else {
			logger.Info("scheduler: %s completed, %d items processed", task.ID, result.ItemsProcessed)
			result.Success = true
			task.LastError = ""
			task.LastSuccess = result.EndedAt
		}

		// Update task state
		task.LastRun = result.StartedAt
		task.NextRun = result.EndedAt.Add(task.Interval)

		if saveErr := s.store.SaveTask(ctx, task); saveErr != nil {
			logger.Error("scheduler: failed to save task %s: %v", task.ID, saveErr)
		}

		// Record result for history
		if recordErr := s.store.RecordResult(ctx, result); recordErr != nil {
			logger.Error("scheduler: failed to record result for %s: %v", task.ID, recordErr)
		}

		if pruneErr := s.store.PruneHistory(ctx, s.historyLimit()); pruneErr != nil {
			logger.Error("scheduler: failed to prune history: %v", pruneErr)
		}
	}()
}

func (s *Scheduler) historyLimit() int {
	if s.config.HistoryLimit > 0 {
		return s.config.HistoryLimit
	}
	return 100
}

// runOrphanPurge purges orphaned chunks and returns the number deleted.
func (s *Scheduler) runOrphanPurge(ctx context.Context) (int, error) {
	if s.purger == nil {
		return 0, nil
	}
	out := s.purger.Purge(ctx, driving.PurgeOptions{})
	if !out.Success {
		return out.DocumentsDeleted, errors.New(out.Message)
	}
	if out.Skipped {
		logger.Info("scheduler: orphan purge skipped: %s", out.Message)
	}
	return out.DocumentsDeleted, nil
}

// runChangeSync syncs the configured folders and returns the number of
// files indexed or removed.
func (s *Scheduler) runChangeSync(ctx context.Context) (int, error) {
	if s.tracker == nil {
		return 0, nil
	}
	if len(s.config.SyncFolders) == 0 {
		return 0, errNoFolders
	}
	report := s.tracker.Sync(ctx, s.config.SyncFolders, "")
	processed := len(report.IndexedFiles) + len(report.DeletedFromIndex)
	if report.Status == domain.SyncStatusFailed {
		return processed, fmt.Errorf("change sync failed: %v", report.Errors)
	}
	return processed, nil
}
