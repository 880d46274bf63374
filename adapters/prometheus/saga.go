package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/sourcing-go/core/metrics"
	"github.com/codewandler/sourcing-go/core/saga"
)

// sagaMetrics implements saga.Metrics using Prometheus.
type sagaMetrics struct {
	sagasStarted     *prometheus.CounterVec
	sagasEnded       *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	stepsExecuted    *prometheus.CounterVec
	stepsCompensated *prometheus.CounterVec
}

// NewSagaMetrics creates a new Prometheus implementation of saga.Metrics.
func NewSagaMetrics(reg prometheus.Registerer) saga.Metrics {
	m := &sagaMetrics{
		sagasStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_saga_started_total",
			Help: "Total number of saga instances started",
		}, []string{"saga_type"}),

		sagasEnded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_saga_ended_total",
			Help: "Total number of saga instances ended, by terminal status",
		}, []string{"saga_type", "status"}),

		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_saga_step_duration_seconds",
			Help:    "Step execution latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"saga_type", "step"}),

		stepsExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_saga_steps_total",
			Help: "Total number of step execution attempts",
		}, []string{"saga_type", "step", "success"}),

		stepsCompensated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_saga_compensations_total",
			Help: "Total number of step compensations",
		}, []string{"saga_type", "step", "success"}),
	}

	reg.MustRegister(
		m.sagasStarted,
		m.sagasEnded,
		m.stepDuration,
		m.stepsExecuted,
		m.stepsCompensated,
	)

	return m
}

func (m *sagaMetrics) SagaStarted(sagaType string) {
	m.sagasStarted.WithLabelValues(sagaType).Inc()
}

func (m *sagaMetrics) SagaEnded(sagaType string, status saga.Status) {
	m.sagasEnded.WithLabelValues(sagaType, status.String()).Inc()
}

func (m *sagaMetrics) StepDuration(sagaType, step string) metrics.Timer {
	return newTimer(m.stepDuration.WithLabelValues(sagaType, step))
}

func (m *sagaMetrics) StepExecuted(sagaType, step string, success bool) {
	m.stepsExecuted.WithLabelValues(sagaType, step, boolToStr(success)).Inc()
}

func (m *sagaMetrics) StepCompensated(sagaType, step string, success bool) {
	m.stepsCompensated.WithLabelValues(sagaType, step, boolToStr(success)).Inc()
}

var _ saga.Metrics = (*sagaMetrics)(nil)
