package estests

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/sourcing-go/core/es"
	"github.com/codewandler/sourcing-go/core/es/estests/domain"
)

func TestSnapshot_Forced(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Order)))

	o := domain.NewOrder("o-1")
	require.NoError(t, o.Create("o-1"))
	require.NoError(t, o.AddItem("sku-1"))
	require.NoError(t, te.Repository().Save(context.Background(), o, es.WithSnapshot(true)))

	ss, err := te.Snapshotter().LoadSnapshot(context.Background(), "order", "o-1")
	require.NoError(t, err)
	require.NotEmpty(t, ss.SnapshotID)
	require.Equal(t, "order", ss.StreamType)
	require.Equal(t, "o-1", ss.StreamID)
	require.Equal(t, es.Version(2), ss.Version)
	require.Equal(t, o.GetSeq(), ss.Seq)
	require.Equal(t, "json", ss.Encoding)

	t.Run("apply restores version and seq", func(t *testing.T) {
		restored := domain.NewOrder("o-1")
		require.NoError(t, es.ApplySnapshot(context.Background(), te.Snapshotter(), restored))
		require.Equal(t, es.Version(2), restored.GetVersion())
		require.Equal(t, o.GetSeq(), restored.GetSeq())
		require.Equal(t, 1, restored.NumItems())
	})

	t.Run("load from snapshot equals full replay", func(t *testing.T) {
		fromSnapshot := domain.NewOrder("o-1")
		require.NoError(t, te.Repository().Load(context.Background(), fromSnapshot))

		fromHistory := domain.NewOrder("o-1")
		require.NoError(t, te.Repository().Load(context.Background(), fromHistory, es.WithSnapshot(false)))

		require.Equal(t, fromHistory.GetVersion(), fromSnapshot.GetVersion())
		require.Equal(t, fromHistory.Items, fromSnapshot.Items)
		require.Equal(t, fromHistory.Confirmed, fromSnapshot.Confirmed)
	})
}

func TestSnapshot_Automatic(t *testing.T) {
	const frq = 10

	te := es.StartTestEnv(
		t,
		es.WithAggregates(new(domain.Order)),
		es.WithRepositoryOptions(es.WithSnapshotFrequency(frq)),
	)

	o := domain.NewOrder("o-1")
	require.NoError(t, o.Create("o-1"))
	require.NoError(t, te.Repository().Save(context.Background(), o))

	// below the threshold: no snapshot yet
	_, err := te.Snapshotter().SnapshotVersion(context.Background(), "order", "o-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	for i := 0; i < frq-1; i++ {
		require.NoError(t, o.AddItem(fmt.Sprintf("sku-%d", i)))
	}
	require.NoError(t, te.Repository().Save(context.Background(), o))

	v, err := te.Snapshotter().SnapshotVersion(context.Background(), "order", "o-1")
	require.NoError(t, err)
	require.Equal(t, es.Version(frq), v)

	t.Run("next snapshot only after another batch", func(t *testing.T) {
		require.NoError(t, o.AddItem("one-more"))
		require.NoError(t, te.Repository().Save(context.Background(), o))

		v, err := te.Snapshotter().SnapshotVersion(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Equal(t, es.Version(frq), v, "snapshot version must be unchanged")
	})
}

func TestSnapshot_DeletedStream(t *testing.T) {
	te := es.StartTestEnv(t, es.WithAggregates(new(domain.Order)))

	o := domain.NewOrder("o-1")
	require.NoError(t, o.Create("o-1"))
	require.NoError(t, o.AddItem("sku-1"))
	require.NoError(t, te.Repository().Save(context.Background(), o, es.WithSnapshot(true)))

	require.NoError(t, te.Store().DeleteStream(context.Background(), "order", "o-1"))

	// the leftover snapshot must not resurrect the stream
	loaded := domain.NewOrder("o-1")
	require.ErrorIs(t, te.Repository().Load(context.Background(), loaded), es.ErrAggregateNotFound)
}

func TestInMemorySnapshotter(t *testing.T) {
	sut := es.NewInMemorySnapshotter()

	_, err := sut.LoadSnapshot(context.Background(), "order", "o-1")
	require.ErrorIs(t, err, es.ErrSnapshotNotFound)

	o := domain.NewOrder("o-1")
	require.NoError(t, o.Create("o-1"))
	ss, err := es.CaptureSnapshot(o)
	require.NoError(t, err)
	require.NoError(t, sut.SaveSnapshot(context.Background(), ss))

	t.Run("save overwrites", func(t *testing.T) {
		require.NoError(t, o.AddItem("sku-1"))
		ss2, err := es.CaptureSnapshot(o)
		require.NoError(t, err)
		require.NoError(t, sut.SaveSnapshot(context.Background(), ss2))

		got, err := sut.LoadSnapshot(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Equal(t, ss2.SnapshotID, got.SnapshotID)
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, sut.DeleteSnapshot(context.Background(), "order", "o-1"))
		require.ErrorIs(t, sut.DeleteSnapshot(context.Background(), "order", "o-1"), es.ErrSnapshotNotFound)
	})
}
