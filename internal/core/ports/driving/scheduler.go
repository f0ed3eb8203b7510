package driving

import (
	"context"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// Scheduler runs the orphan purge and change sync on their intervals.
type Scheduler interface {
	// Start begins running scheduled tasks.
	// Blocks until context is cancelled or an error occurs.
	Start(ctx context.Context) error

	// Stop gracefully stops all running tasks.
	Stop() error

	// Status returns every task with up to historyLimit recent results.
	Status(ctx context.Context, historyLimit int) ([]TaskStatus, error)
}

// TaskStatus is a scheduled task with its most recent results.
type TaskStatus struct {
	Task   domain.ScheduledTask
	Recent []domain.TaskResult
}
