package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	APILatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newssignal",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of engine API endpoints",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	APIErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "newssignal",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Errors by engine API endpoint",
		},
		[]string{"endpoint"},
	)

	BatchSize = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "newssignal",
			Subsystem: "api",
			Name:      "batch_size",
			Help:      "Statements per decide request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 200},
		},
		[]string{"endpoint"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(APILatency, APIErrors, BatchSize)
	})
}

// Observe records one endpoint call that started at start.
func Observe(endpoint string, start time.Time, err error) {
	APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	if err != nil {
		APIErrors.WithLabelValues(endpoint).Inc()
	}
}
