package prometheus

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/sourcing-go/core/saga"
)

func TestNewESMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewESMetrics(reg)

	require.NotNil(t, m)

	// Test store operations
	timer := m.StoreLoadDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.StoreAppendDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.EventsAppended("order", 5)

	// Test repository operations
	timer = m.RepoLoadDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.RepoSaveDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.ConcurrencyConflict("order")

	// Test snapshots
	timer = m.SnapshotLoadDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	timer = m.SnapshotSaveDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	// Test replay
	m.EventsReplayed("order", 100)

	timer = m.ReplayDuration("order")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	// Verify metrics were registered
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["sourcing_es_store_load_duration_seconds"])
	assert.True(t, names["sourcing_es_repo_load_duration_seconds"])
	assert.True(t, names["sourcing_es_concurrency_conflicts_total"])
	assert.True(t, names["sourcing_es_events_replayed_total"])
}

func TestNewProjectionMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewProjectionMetrics(reg)

	require.NotNil(t, m)

	m.EventProcessed("order-summary", "OrderCreated", true)
	m.EventProcessed("order-summary", "OrderCreated", false)

	timer := m.TickDuration("order-summary")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.Lag("order-summary", 42)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["sourcing_projection_events_total"])
	assert.True(t, names["sourcing_projection_tick_duration_seconds"])
	assert.True(t, names["sourcing_projection_lag"])
}

func TestNewSagaMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSagaMetrics(reg)

	require.NotNil(t, m)

	m.SagaStarted("order-fulfillment")
	m.SagaEnded("order-fulfillment", saga.StatusCompleted)
	m.SagaEnded("order-fulfillment", saga.StatusCompensated)

	timer := m.StepDuration("order-fulfillment", "reserve-stock")
	assert.NotNil(t, timer)
	timer.ObserveDuration()

	m.StepExecuted("order-fulfillment", "reserve-stock", true)
	m.StepExecuted("order-fulfillment", "reserve-stock", false)
	m.StepCompensated("order-fulfillment", "reserve-stock", true)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)

	names := make(map[string]bool)
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}

	assert.True(t, names["sourcing_saga_started_total"])
	assert.True(t, names["sourcing_saga_step_duration_seconds"])
	assert.True(t, names["sourcing_saga_compensations_total"])
}

func TestNewAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewAllMetrics(reg)

	require.NotNil(t, m)
	require.NotNil(t, m.ES)
	require.NotNil(t, m.Projection)
	require.NotNil(t, m.Saga)

	// All metrics should be usable
	m.ES.ConcurrencyConflict("order")
	m.Projection.EventProcessed("order-summary", "OrderCreated", true)
	m.Saga.SagaStarted("order-fulfillment")

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}

func TestBoolToStr(t *testing.T) {
	assert.Equal(t, "true", boolToStr(true))
	assert.Equal(t, "false", boolToStr(false))
}
