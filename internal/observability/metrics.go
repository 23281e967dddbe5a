package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome label values.
const (
	OutcomeSuccess    = "success"
	OutcomeValidation = "validation"
	OutcomeUpload     = "upload"
	OutcomePersist    = "persistence"
	OutcomeBusy       = "busy"
	OutcomeCancelled  = "cancelled"
)

// Metrics holds the editor counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	submissions      *prometheus.CounterVec
	submitDuration   *prometheus.HistogramVec
	deletions        *prometheus.CounterVec
	uploads          *prometheus.CounterVec
	cleanupFailures  *prometheus.CounterVec
	snapshotsApplied *prometheus.CounterVec
}

// NewMetrics registers the portfolio admin metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "submissions_total",
			Help:      "Draft submissions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		submitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portfolio",
			Name:      "submission_duration_seconds",
			Help:      "Time from submit to persisted record.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		deletions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "deletions_total",
			Help:      "Record deletions by kind and outcome.",
		}, []string{"kind", "outcome"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "uploads_total",
			Help:      "Attachment uploads by kind and outcome.",
		}, []string{"kind", "outcome"}),
		cleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "attachment_cleanup_failures_total",
			Help:      "Attachment deletions that failed while removing a record.",
		}, []string{"kind"}),
		snapshotsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portfolio",
			Name:      "snapshots_applied_total",
			Help:      "Authoritative collection snapshots applied to the record cache.",
		}, []string{"kind"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.submissions,
		m.submitDuration,
		m.deletions,
		m.uploads,
		m.cleanupFailures,
		m.snapshotsApplied,
	)
	return m
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveSubmission records one submission attempt. A nil receiver is a no-op.
func (m *Metrics) ObserveSubmission(kind, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(kind, outcome).Inc()
	if outcome == OutcomeSuccess {
		m.submitDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	}
}

// ObserveDeletion records one confirmed deletion.
func (m *Metrics) ObserveDeletion(kind, outcome string) {
	if m == nil {
		return
	}
	m.deletions.WithLabelValues(kind, outcome).Inc()
}

// ObserveUpload records one attachment upload.
func (m *Metrics) ObserveUpload(kind, outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(kind, outcome).Inc()
}

// ObserveCleanupFailure records an attachment that could not be removed.
func (m *Metrics) ObserveCleanupFailure(kind string) {
	if m == nil {
		return
	}
	m.cleanupFailures.WithLabelValues(kind).Inc()
}

// ObserveSnapshot records an applied snapshot.
func (m *Metrics) ObserveSnapshot(kind string) {
	if m == nil {
		return
	}
	m.snapshotsApplied.WithLabelValues(kind).Inc()
}
