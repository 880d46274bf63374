package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/codewandler/sourcing-go/core/es"
	"github.com/codewandler/sourcing-go/core/metrics"
)

// esMetrics implements es.ESMetrics using Prometheus.
type esMetrics struct {
	// Store metrics
	storeLoadDuration   *prometheus.HistogramVec
	storeAppendDuration *prometheus.HistogramVec
	eventsAppended      *prometheus.CounterVec

	// Repository metrics
	repoLoadDuration     *prometheus.HistogramVec
	repoSaveDuration     *prometheus.HistogramVec
	concurrencyConflicts *prometheus.CounterVec

	// Snapshot metrics
	snapshotLoadDuration *prometheus.HistogramVec
	snapshotSaveDuration *prometheus.HistogramVec

	// Replay metrics
	eventsReplayed *prometheus.CounterVec
	replayDuration *prometheus.HistogramVec
}

// NewESMetrics creates a new Prometheus implementation of ESMetrics.
func NewESMetrics(reg prometheus.Registerer) es.ESMetrics {
	m := &esMetrics{
		storeLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_store_load_duration_seconds",
			Help:    "Event store load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		storeAppendDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_store_append_duration_seconds",
			Help:    "Event store append latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		eventsAppended: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_es_events_appended_total",
			Help: "Total number of events appended",
		}, []string{"stream_type"}),

		repoLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_repo_load_duration_seconds",
			Help:    "Repository load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		repoSaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_repo_save_duration_seconds",
			Help:    "Repository save latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		concurrencyConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_es_concurrency_conflicts_total",
			Help: "Total number of optimistic lock failures",
		}, []string{"stream_type"}),

		snapshotLoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_snapshot_load_duration_seconds",
			Help:    "Snapshot load latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		snapshotSaveDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_snapshot_save_duration_seconds",
			Help:    "Snapshot save latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),

		eventsReplayed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sourcing_es_events_replayed_total",
			Help: "Total number of events republished by replay",
		}, []string{"stream_type"}),

		replayDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sourcing_es_replay_duration_seconds",
			Help:    "Replay latency in seconds",
			Buckets: defaultBuckets,
		}, []string{"stream_type"}),
	}

	reg.MustRegister(
		m.storeLoadDuration,
		m.storeAppendDuration,
		m.eventsAppended,
		m.repoLoadDuration,
		m.repoSaveDuration,
		m.concurrencyConflicts,
		m.snapshotLoadDuration,
		m.snapshotSaveDuration,
		m.eventsReplayed,
		m.replayDuration,
	)

	return m
}

func (m *esMetrics) StoreLoadDuration(streamType string) metrics.Timer {
	return newTimer(m.storeLoadDuration.WithLabelValues(streamType))
}

func (m *esMetrics) StoreAppendDuration(streamType string) metrics.Timer {
	return newTimer(m.storeAppendDuration.WithLabelValues(streamType))
}

func (m *esMetrics) EventsAppended(streamType string, count int) {
	m.eventsAppended.WithLabelValues(streamType).Add(float64(count))
}

func (m *esMetrics) RepoLoadDuration(streamType string) metrics.Timer {
	return newTimer(m.repoLoadDuration.WithLabelValues(streamType))
}

func (m *esMetrics) RepoSaveDuration(streamType string) metrics.Timer {
	return newTimer(m.repoSaveDuration.WithLabelValues(streamType))
}

func (m *esMetrics) ConcurrencyConflict(streamType string) {
	m.concurrencyConflicts.WithLabelValues(streamType).Inc()
}

func (m *esMetrics) SnapshotLoadDuration(streamType string) metrics.Timer {
	return newTimer(m.snapshotLoadDuration.WithLabelValues(streamType))
}

func (m *esMetrics) SnapshotSaveDuration(streamType string) metrics.Timer {
	return newTimer(m.snapshotSaveDuration.WithLabelValues(streamType))
}

func (m *esMetrics) EventsReplayed(streamType string, count int) {
	m.eventsReplayed.WithLabelValues(streamType).Add(float64(count))
}

func (m *esMetrics) ReplayDuration(streamType string) metrics.Timer {
	return newTimer(m.replayDuration.WithLabelValues(streamType))
}

var _ es.ESMetrics = (*esMetrics)(nil)
