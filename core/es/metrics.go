package es

import "github.com/codewandler/sourcing-go/core/metrics"

// ESMetrics defines the metrics interface for the event sourcing layer.
// Implementations must be safe for concurrent use.
type ESMetrics interface {
	// Store operations
	StoreLoadDuration(streamType string) metrics.Timer
	StoreAppendDuration(streamType string) metrics.Timer
	EventsAppended(streamType string, count int)

	// Repository operations
	RepoLoadDuration(streamType string) metrics.Timer
	RepoSaveDuration(streamType string) metrics.Timer
	ConcurrencyConflict(streamType string)

	// Snapshots
	SnapshotLoadDuration(streamType string) metrics.Timer
	SnapshotSaveDuration(streamType string) metrics.Timer

	// Replay
	EventsReplayed(streamType string, count int)
	ReplayDuration(streamType string) metrics.Timer
}

type nopESMetrics struct{}

func (nopESMetrics) StoreLoadDuration(string) metrics.Timer   { return metrics.NopTimer() }
func (nopESMetrics) StoreAppendDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) EventsAppended(string, int)               {}

func (nopESMetrics) RepoLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) RepoSaveDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) ConcurrencyConflict(string)            {}

func (nopESMetrics) SnapshotLoadDuration(string) metrics.Timer { return metrics.NopTimer() }
func (nopESMetrics) SnapshotSaveDuration(string) metrics.Timer { return metrics.NopTimer() }

func (nopESMetrics) EventsReplayed(string, int)          {}
func (nopESMetrics) ReplayDuration(string) metrics.Timer { return metrics.NopTimer() }

// NopESMetrics returns a no-op ESMetrics implementation.
func NopESMetrics() ESMetrics { return nopESMetrics{} }

// ESMetricsOption sets the metrics for ES components.
type ESMetricsOption struct{ m ESMetrics }

// WithMetrics sets the metrics implementation for ES components.
func WithMetrics(m ESMetrics) ESMetricsOption { return ESMetricsOption{m: m} }
