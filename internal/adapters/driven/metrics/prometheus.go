package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/custodia-labs/sppurge/internal/core/domain"
	"github.com/custodia-labs/sppurge/internal/core/ports/driven"
)

// Namespace prefixes every metric name.
const Namespace = "sppurge"

// Ensure Recorder implements the interface.
var _ driven.Metrics = (*Recorder)(nil)

// Recorder records purge, sync and Graph metrics in a Prometheus registry.
type Recorder struct {
	runsTotal      *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
	existenceTotal *prometheus.CounterVec
	chunksDeleted  prometheus.Counter
	batchFailures  prometheus.Counter
	graphRequests  *prometheus.CounterVec
	graphLatency   prometheus.Histogram
}

// NewRecorder registers the metrics with reg. A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Recorder{
		runsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "runs_total",
			Help:      "Finished purge, preview and sync runs by outcome.",
		}, []string{"kind", "result"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of purge, preview and sync runs.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}, []string{"kind"}),
		existenceTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "existence_checks_total",
			Help:      "SharePoint existence checks by outcome.",
		}, []string{"existence"}),
		chunksDeleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "chunks_deleted_total",
			Help:      "Orphaned chunks removed from the search index.",
		}),
		batchFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "delete_batch_failures_total",
			Help:      "Delete batches rejected by the search index.",
		}),
		graphRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "graph_requests_total",
			Help:      "Microsoft Graph responses by HTTP status code.",
		}, []string{"status"}),
		graphLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "graph_request_duration_seconds",
			Help:      "Microsoft Graph request latency.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

// ObserveRun records a finished run.
func (r *Recorder) ObserveRun(kind string, success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "failure"
	}
	r.runsTotal.WithLabelValues(kind, result).Inc()
	r.runDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveExistence records one existence check.
func (r *Recorder) ObserveExistence(existence domain.Existence) {
	r.existenceTotal.WithLabelValues(existence.String()).Inc()
}

// AddChunksDeleted counts deleted chunks.
func (r *Recorder) AddChunksDeleted(n int) {
	if n > 0 {
		r.chunksDeleted.Add(float64(n))
	}
}

// IncDeleteBatchFailures counts one failed delete batch.
func (r *Recorder) IncDeleteBatchFailures() {
	r.batchFailures.Inc()
}

// ObserveGraphRequest records a Graph response. Status 0 means the request
// never got a response.
func (r *Recorder) ObserveGraphRequest(status int, duration time.Duration) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	r.graphRequests.WithLabelValues(label).Inc()
	r.graphLatency.Observe(duration.Seconds())
}
