package saga_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/sourcing-go/core/saga"
)

func pendingInstance(id string) *saga.Instance {
	return &saga.Instance{
		ID:       id,
		SagaType: "order-fulfillment",
		Status:   saga.StatusPending,
		Context:  &saga.Context{Data: map[string]any{"order_id": "o-1"}},
		Steps:    []string{"a", "b"},
	}
}

func TestInMemoryStore_SaveGet(t *testing.T) {
	sut := saga.NewInMemoryStore()

	_, err := sut.Get(context.Background(), "nope")
	require.ErrorIs(t, err, saga.ErrSagaNotFound)

	inst := pendingInstance("s-1")
	require.NoError(t, sut.Save(context.Background(), inst))
	require.Equal(t, uint64(1), inst.Version)

	got, err := sut.Get(context.Background(), "s-1")
	require.NoError(t, err)
	require.Equal(t, inst.ID, got.ID)
	require.False(t, got.UpdatedAt.IsZero())

	t.Run("get returns a copy", func(t *testing.T) {
		got.Context.Data["order_id"] = "tampered"
		got.Steps[0] = "tampered"

		fresh, err := sut.Get(context.Background(), "s-1")
		require.NoError(t, err)
		require.Equal(t, "o-1", fresh.Context.Data["order_id"])
		require.Equal(t, "a", fresh.Steps[0])
	})

	t.Run("save bumps the version", func(t *testing.T) {
		require.NoError(t, sut.Save(context.Background(), inst))
		require.Equal(t, uint64(2), inst.Version)
	})
}

func TestInMemoryStore_TerminalIsImmutable(t *testing.T) {
	sut := saga.NewInMemoryStore()

	inst := pendingInstance("s-1")
	inst.Status = saga.StatusCompleted
	require.NoError(t, sut.Save(context.Background(), inst))

	t.Run("same status may still be written", func(t *testing.T) {
		require.NoError(t, sut.Save(context.Background(), inst))
	})

	t.Run("a different status is rejected", func(t *testing.T) {
		back := pendingInstance("s-1")
		back.Status = saga.StatusRunning
		require.ErrorIs(t, sut.Save(context.Background(), back), saga.ErrSagaTerminal)
	})

	t.Run("update status is rejected too", func(t *testing.T) {
		err := sut.UpdateStatus(context.Background(), "s-1", saga.StatusCompleted, saga.StatusRunning)
		require.Error(t, err)
	})
}

func TestInMemoryStore_Due(t *testing.T) {
	sut := saga.NewInMemoryStore()
	now := time.Now()

	ready := pendingInstance("ready")
	require.NoError(t, sut.Save(context.Background(), ready))

	later := pendingInstance("later")
	later.NextAttemptAt = now.Add(time.Minute)
	require.NoError(t, sut.Save(context.Background(), later))

	running := pendingInstance("running")
	running.Status = saga.StatusRunning
	require.NoError(t, sut.Save(context.Background(), running))

	due, err := sut.Due(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "ready", due[0].ID)

	t.Run("becomes due once the attempt time passes", func(t *testing.T) {
		due, err := sut.Due(context.Background(), now.Add(time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 2)
	})
}

func TestInMemoryStore_UpdateStatus(t *testing.T) {
	sut := saga.NewInMemoryStore()

	inst := pendingInstance("s-1")
	require.NoError(t, sut.Save(context.Background(), inst))

	require.NoError(t, sut.UpdateStatus(context.Background(), "s-1", saga.StatusPending, saga.StatusRunning))

	t.Run("stale expectation conflicts", func(t *testing.T) {
		err := sut.UpdateStatus(context.Background(), "s-1", saga.StatusPending, saga.StatusRunning)
		require.ErrorIs(t, err, saga.ErrStatusConflict)
	})

	t.Run("illegal transition is rejected", func(t *testing.T) {
		err := sut.UpdateStatus(context.Background(), "s-1", saga.StatusRunning, saga.StatusCompensated)
		require.Error(t, err)
		require.NotErrorIs(t, err, saga.ErrStatusConflict)
	})

	t.Run("unknown saga", func(t *testing.T) {
		err := sut.UpdateStatus(context.Background(), "nope", saga.StatusPending, saga.StatusRunning)
		require.ErrorIs(t, err, saga.ErrSagaNotFound)
	})
}
