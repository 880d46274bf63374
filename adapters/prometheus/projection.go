package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/sourcing-go/core/metrics"
	"github.com/codewandler/sourcing-go/core/projection"
)

// projectionMetrics implements projection.Metrics using Prometheus.
type projectionMetrics struct {
	eventsProcessed *prometheus.CounterVec
	tickDuration    *prometheus.HistogramVec
	lag             *prometheus.GaugeVec
}

// NewProjectionMetrics creates a new Prometheus implementation of
// projection.Metrics.
func NewProjectionMetrics(reg prometheus.Registerer) projection.Metrics {
	m := &projectionMetrics{
		eventsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_projection_events_total",
			Help: "Total number of events delivered to projections",
		}, []string{"projection", "event_type", "success"}),

		tickDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_projection_tick_duration_seconds",
			Help:    "Polling pass latency per projection in seconds",
			Buckets: defaultBuckets,
		}, []string{"projection"}),

		lag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sourcing_projection_lag",
			Help: "Supported events waiting past the projection watermark",
		}, []string{"projection"}),
	}

	reg.MustRegister(
		m.eventsProcessed,
		m.tickDuration,
		m.lag,
	)

	return m
}

func (m *projectionMetrics) EventProcessed(projection, eventType string, success bool) {
	m.eventsProcessed.WithLabelValues(projection, eventType, boolToStr(success)).Inc()
}

func (m *projectionMetrics) TickDuration(projection string) metrics.Timer {
	return newTimer(m.tickDuration.WithLabelValues(projection))
}

func (m *projectionMetrics) Lag(projection string, pending int64) {
	m.lag.WithLabelValues(projection).Set(float64(pending))
}

var _ projection.Metrics = (*projectionMetrics)(nil)
