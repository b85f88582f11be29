package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once     sync.Once
	latency  *prometheus.HistogramVec
	failures *prometheus.CounterVec
)

func register() {
	once.Do(func() {
		latency = promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "marketsignal",
			Subsystem: "api",
			Name:      "latency_seconds",
			Help:      "Latency of scoring endpoints.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"})
		failures = promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "marketsignal",
			Subsystem: "api",
			Name:      "errors_total",
			Help:      "Failed scoring calls by endpoint and error code.",
		}, []string{"endpoint", "code"})
	})
}

// ObserveEndpoint records how long one call to endpoint took.
func ObserveEndpoint(endpoint string, took time.Duration) {
	register()
	latency.WithLabelValues(endpoint).Observe(took.Seconds())
}

// EndpointFailed counts a failed call by its API error code.
func EndpointFailed(endpoint, code string) {
	register()
	failures.WithLabelValues(endpoint, code).Inc()
}
