package services

import (
	"time"

	"go.opentelemetry.io/otel"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
)

var tracer = otel.Tracer("github.com/custodia-labs/sppurge/internal/core/services")

// nopMetrics is used when no recorder is configured.
type nopMetrics struct{}

func (nopMetrics) ObserveRun(string, bool, time.Duration) {}

func (nopMetrics) ObserveExistence(domain.Existence) {}

func (nopMetrics) AddChunksDeleted(int) {}

func (nopMetrics) IncDeleteBatchFailures() {}

func (nopMetrics) ObserveGraphRequest(int, time.Duration) {}

func metricsOrNop(m driven.Metrics) driven.Metrics {
	if m == nil {
		return nopMetrics{}
	}
	return m
}
