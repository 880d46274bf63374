package saga

import "github.com/codewandler/sourcing-go/core/metrics"

// Metrics defines the metrics interface for the saga layer.
// Implementations must be safe for concurrent use.
type Metrics interface {
	SagaStarted(sagaType string)
	SagaEnded(sagaType string, status Status)
	StepDuration(sagaType, step string) metrics.Timer
	StepExecuted(sagaType, step string, success bool)
	StepCompensated(sagaType, step string, success bool)
}

type nopMetrics struct{}

func (nopMetrics) SagaStarted(string)                        {}
func (nopMetrics) SagaEnded(string, Status)                  {}
func (nopMetrics) StepDuration(string, string) metrics.Timer { return metrics.NopTimer() }
func (nopMetrics) StepExecuted(string, string, bool)         {}
func (nopMetrics) StepCompensated(string, string, bool)      {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
