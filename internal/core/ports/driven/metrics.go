package driven

import (
	"time"

	"github.com/custodia-labs/sppurge/internal/core/domain"
)

// Metrics records operational counters.
type Metrics interface {
	// ObserveRun records a finished purge, preview or sync run.
	ObserveRun(kind string, success bool, duration time.Duration)

	// ObserveExistence records one existence check outcome.
	ObserveExistence(existence domain.Existence)

	// AddChunksDeleted counts chunks removed from the index.
	AddChunksDeleted(n int)

	// IncDeleteBatchFailures counts failed delete batches.
	IncDeleteBatchFailures()

	// ObserveGraphRequest records one Graph HTTP response by status code.
	ObserveGraphRequest(status int, duration time.Duration)
}
