// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	FramesReceived   prometheus.Counter
	EventsValidated  prometheus.Counter
	ValidationErrors prometheus.Counter

	// Fanout metrics
	EventsBroadcast         prometheus.Counter
	Subscribers             prometheus.Gauge
	SlowConsumerDisconnects prometheus.Counter
	BroadcastLatency        prometheus.Histogram

	// Aggregation metrics
	TokensTracked     prometheus.Gauge
	DuplicatesSkipped prometheus.Gauge
	TokensEvicted     prometheus.Gauge
}

// NewMetrics creates a Metrics instance backed by its own registry, so
// tests can construct as many instances as they need.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "token_pulse"
	}

	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total raw frames received from the upstream feed",
		}),
		EventsValidated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_validated_total",
			Help:      "Total frames that passed schema validation",
		}),
		ValidationErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_errors_total",
			Help:      "Total frames dropped by the validator",
		}),

		EventsBroadcast: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_broadcast_total",
			Help:      "Total event deliveries to downstream subscribers",
		}),
		Subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "subscribers",
			Help:      "Currently registered downstream subscribers",
		}),
		SlowConsumerDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slow_consumer_disconnects_total",
			Help:      "Subscribers disconnected because their queue overflowed",
		}),
		BroadcastLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "broadcast_latency_seconds",
			Help:      "Time to fan one event out to all subscribers",
			Buckets:   prometheus.ExponentialBuckets(0.00001, 5, 8),
		}),

		TokensTracked: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens_tracked",
			Help:      "Tokens currently held by the aggregation store",
		}),
		DuplicatesSkipped: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "duplicate_events_skipped_total",
			Help:      "Events skipped because their signature was already applied",
		}),
		TokensEvicted: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tokens_evicted_total",
			Help:      "Tokens evicted from the aggregation store by capacity pressure",
		}),
	}
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
