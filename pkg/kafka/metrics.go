package kafka

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type clientMetrics struct {
	published   *prometheus.CounterVec
	publishSecs *prometheus.HistogramVec
	bytesOut    *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
	handleSecs  *prometheus.HistogramVec
	handled     *prometheus.CounterVec
	retries     *prometheus.CounterVec
	deadLetters *prometheus.CounterVec
}

var (
	metricsOnce sync.Once
	kafkaStats  *clientMetrics
)

// stats registers the Kafka collectors with the default registry on first
// use.
func stats() *clientMetrics {
	metricsOnce.Do(func() {
		kafkaStats = &clientMetrics{
			published: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "marketsignal_kafka_published_total",
				Help: "Messages written to Kafka by result.",
			}, []string{"topic", "result"}),
			publishSecs: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "marketsignal_kafka_publish_seconds",
				Help:    "Latency of one publish call.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			bytesOut: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "marketsignal_kafka_published_bytes_total",
				Help: "Payload bytes written to Kafka.",
			}, []string{"topic", "compression"}),
			queueDepth: promauto.NewGaugeVec(prometheus.GaugeOpts{
				Name: "marketsignal_kafka_consumer_queue_depth",
				Help: "Fetched messages waiting for a worker.",
			}, []string{"topic"}),
			handleSecs: promauto.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "marketsignal_kafka_consumer_handle_seconds",
				Help:    "Handling time per message including retries.",
				Buckets: prometheus.DefBuckets,
			}, []string{"topic"}),
			handled: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "marketsignal_kafka_consumer_handled_total",
				Help: "Consumed messages by outcome.",
			}, []string{"topic", "outcome"}),
			retries: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "marketsignal_kafka_consumer_retries_total",
				Help: "Handler retries after a transient error.",
			}, []string{"topic"}),
			deadLetters: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "marketsignal_kafka_dead_letters_total",
				Help: "Messages forwarded to the dead letter topic.",
			}, []string{"topic"}),
		}
	})
	return kafkaStats
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
