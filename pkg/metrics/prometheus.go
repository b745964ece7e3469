package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	decisions     *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	ai            *prometheus.CounterVec
	notifications *prometheus.CounterVec
	ingested      *prometheus.CounterVec
	reloads       *prometheus.CounterVec
}

// New creates a recorder on the default registry.
func New() *Recorder { return NewWithRegistry(prometheus.DefaultRegisterer) }

// NewWithRegistry creates a recorder on reg. Tests pass a fresh
// prometheus.NewRegistry() so repeated construction does not collide.
func NewWithRegistry(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		decisions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_decisions_total",
				Help: "Committed decisions by verdict and source",
			},
			[]string{"decision", "source"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "newssignal_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		ai: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_ai_requests_total",
				Help: "AI arbiter outcomes (used, cache_hit, limited, error)",
			},
			[]string{"outcome"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_notifications_total",
				Help: "Notification deliveries by sink and status",
			},
			[]string{"sink", "status"},
		),
		ingested: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_ingested_statements_total",
				Help: "Statements pulled by ingest providers",
			},
			[]string{"provider", "status"},
		),
		reloads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "newssignal_config_reloads_total",
				Help: "Hot reloads of structured resources",
			},
			[]string{"resource", "status"},
		),
	}
}

func (r *Recorder) RecordDecision(decision, source string) {
	r.decisions.WithLabelValues(decision, source).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordAI(outcome string) {
	r.ai.WithLabelValues(outcome).Inc()
}

func (r *Recorder) RecordNotification(sink, status string) {
	r.notifications.WithLabelValues(sink, status).Inc()
}

func (r *Recorder) RecordIngest(provider, status string, n int) {
	if n <= 0 {
		return
	}
	r.ingested.WithLabelValues(provider, status).Add(float64(n))
}

func (r *Recorder) RecordReload(resource, status string) {
	r.reloads.WithLabelValues(resource, status).Inc()
}

// Nop discards everything. Used by tests and one-shot CLI commands.
type Nop struct{}

func (Nop) RecordDecision(string, string) {}
func (Nop) RecordError(string) {}
func (Nop) RecordLatency(string, float64) {}
func (Nop) RecordAI(string) {}
func (Nop) RecordNotification(string, string) {}
func (Nop) RecordIngest(string, string, int) {}
func (Nop) RecordReload(string, string) {}
