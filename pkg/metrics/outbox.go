package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outbox publish outcomes.
const (
	OutboxPublished    = "published"
	OutboxRetried      = "retried"
	OutboxDeadLettered = "dead_lettered"
)

// OutboxPublisherMetrics tracks dispatch of outbox rows to Pub/Sub.
type OutboxPublisherMetrics struct {
	events  *prometheus.CounterVec
	latency *prometheus.HistogramVec
	batches prometheus.Counter
}

func NewOutboxPublisherMetrics(reg prometheus.Registerer) *OutboxPublisherMetrics {
	if reg == nil {
		return &OutboxPublisherMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ofn_outbox_events_total",
		Help: "Outbox rows handled by the publisher, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ofn_outbox_publish_lag_seconds",
		Help:    "Time between an outbox row being written and its publication.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	}, []string{"event_type"})
	batches := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ofn_outbox_batches_total",
		Help: "Non-empty batches claimed by the publisher.",
	})
	reg.MustRegister(events, latency, batches)
	return &OutboxPublisherMetrics{events: events, latency: latency, batches: batches}
}

func (m *OutboxPublisherMetrics) ObserveEvent(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), outcome).Inc()
}

// ObserveLag records how long a published row waited in the outbox.
func (m *OutboxPublisherMetrics) ObserveLag(eventType string, createdAt, publishedAt time.Time) {
	if m == nil || m.latency == nil || createdAt.IsZero() {
		return
	}
	lag := publishedAt.Sub(createdAt)
	if lag < 0 {
		lag = 0
	}
	m.latency.WithLabelValues(normalizeLabel(eventType)).Observe(lag.Seconds())
}

func (m *OutboxPublisherMetrics) IncBatch() {
	if m == nil || m.batches == nil {
		return
	}
	m.batches.Inc()
}
