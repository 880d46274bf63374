// Package metrics defines small instrumentation interfaces so the core
// packages can be measured without depending on a concrete backend.
// The adapters/prometheus package provides a real implementation; the
// nop implementations here are the default.
package metrics

// Counter only ever goes up.
type Counter interface {
	// Inc increments the counter by 1.
	Inc()
	// Add increments the counter by delta. delta must be >= 0.
	Add(delta float64)
}

// Gauge tracks a value that can go up and down.
type Gauge interface {
	// Set sets the gauge to value.
	Set(value float64)
	// Inc increments the gauge by 1.
	Inc()
	// Dec decrements the gauge by 1.
	Dec()
	// Add adds delta to the gauge. delta can be negative.
	Add(delta float64)
}

// Histogram samples observations, e.g. operation latencies.
type Histogram interface {
	// Observe adds a single observation to the histogram.
	Observe(value float64)
}

// Timer records the duration of one operation. Create it when the
// operation starts and call ObserveDuration when it completes:
//
//	defer m.StoreAppendDuration("order").ObserveDuration()
type Timer interface {
	ObserveDuration()
}
