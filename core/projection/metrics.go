package projection

import "github.com/codewandler/sourcing-go/core/metrics"

// Metrics defines the metrics interface for the projection engine.
// Implementations must be safe for concurrent use.
type Metrics interface {
	// EventProcessed counts one delivery attempt per projection and
	// event type.
	EventProcessed(projection, eventType string, success bool)
	// TickDuration times one polling pass of a projection.
	TickDuration(projection string) metrics.Timer
	// Lag reports how many supported events are waiting past the
	// watermark.
	Lag(projection string, pending int64)
}

type nopMetrics struct{}

func (nopMetrics) EventProcessed(string, string, bool) {}
func (nopMetrics) TickDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopMetrics) Lag(string, int64)                   {}

// NopMetrics returns a no-op Metrics implementation.
func NopMetrics() Metrics { return nopMetrics{} }
