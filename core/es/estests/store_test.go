package estests

import (
	"context"
	"testing"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/sourcing-go/core/es"
	"github.com/codewandler/sourcing-go/core/es/estests/domain"
)

func testEnvelope(streamType, streamID, eventType string) es.Envelope {
	return es.Envelope{
		ID:         gonanoid.Must(),
		StreamType: streamType,
		StreamID:   streamID,
		Type:       eventType,
		OccurredAt: time.Now(),
	}
}

func TestInMemoryStore_Append(t *testing.T) {
	sut := es.NewInMemoryStore()

	t.Run("versions are gapless from 1", func(t *testing.T) {
		ar, err := sut.Append(context.Background(), "order", "o-1", 0, []es.Envelope{
			testEnvelope("order", "o-1", "ItemAdded"),
			testEnvelope("order", "o-1", "ItemAdded"),
		})
		require.NoError(t, err)
		require.Equal(t, uint64(2), ar.LastSeq)
		require.Equal(t, es.Version(2), ar.LastVersion)

		loaded, err := sut.Load(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		for i, e := range loaded {
			require.Equal(t, es.Version(i+1), e.Version)
			require.NotEmpty(t, e.Seq)
			require.False(t, e.StoredAt.IsZero())
		}
	})

	t.Run("stale expected version conflicts", func(t *testing.T) {
		_, err := sut.Append(context.Background(), "order", "o-1", 0, []es.Envelope{
			testEnvelope("order", "o-1", "ItemAdded"),
		})
		require.ErrorIs(t, err, es.ErrConcurrencyConflict)

		var ce *es.ConcurrencyError
		require.ErrorAs(t, err, &ce)
		require.Equal(t, "o-1", ce.StreamID)
		require.Equal(t, es.Version(0), ce.Expected)
		require.Equal(t, es.Version(2), ce.Actual)

		// nothing was written
		v, err := sut.StreamVersion(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Equal(t, es.Version(2), v)
	})

	t.Run("AnyVersion skips the check", func(t *testing.T) {
		ar, err := sut.Append(context.Background(), "order", "o-1", es.AnyVersion, []es.Envelope{
			testEnvelope("order", "o-1", "ItemAdded"),
		})
		require.NoError(t, err)
		require.Equal(t, es.Version(3), ar.LastVersion)
	})

	t.Run("empty batch is rejected", func(t *testing.T) {
		_, err := sut.Append(context.Background(), "order", "o-1", es.AnyVersion, nil)
		require.ErrorIs(t, err, es.ErrStoreNoEvents)
	})

	t.Run("invalid event aborts the whole batch", func(t *testing.T) {
		before, err := sut.StreamVersion(context.Background(), "order", "o-1")
		require.NoError(t, err)

		bad := testEnvelope("order", "o-1", "ItemAdded")
		bad.Type = ""
		_, err = sut.Append(context.Background(), "order", "o-1", before, []es.Envelope{
			testEnvelope("order", "o-1", "ItemAdded"),
			bad,
		})
		require.Error(t, err)

		after, err := sut.StreamVersion(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Equal(t, before, after, "a failed append must write nothing")
	})
}

func TestInMemoryStore_Load(t *testing.T) {
	sut := es.NewInMemoryStore()

	_, err := sut.Append(context.Background(), "order", "o-1", 0, []es.Envelope{
		testEnvelope("order", "o-1", "ItemAdded"),
		testEnvelope("order", "o-1", "ItemAdded"),
		testEnvelope("order", "o-1", "ItemAdded"),
		testEnvelope("order", "o-1", "OrderConfirmed"),
	})
	require.NoError(t, err)

	t.Run("unknown stream", func(t *testing.T) {
		_, err := sut.Load(context.Background(), "order", "nope")
		require.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("version range", func(t *testing.T) {
		loaded, err := sut.Load(context.Background(), "order", "o-1",
			es.WithFromVersion(1),
			es.WithToVersion(3),
		)
		require.NoError(t, err)
		require.Len(t, loaded, 2)
		require.Equal(t, es.Version(2), loaded[0].Version)
		require.Equal(t, es.Version(3), loaded[1].Version)
	})

	t.Run("exists and version", func(t *testing.T) {
		ok, err := sut.StreamExists(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.True(t, ok)

		v, err := sut.StreamVersion(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.Equal(t, es.Version(4), v)
	})
}

func TestInMemoryStore_LoadAll(t *testing.T) {
	sut := es.NewInMemoryStore()

	e1 := testEnvelope("order", "o-1", "ItemAdded")
	e1.OccurredAt = time.Now().Add(-time.Hour)
	_, err := sut.Append(context.Background(), "order", "o-1", 0, []es.Envelope{e1})
	require.NoError(t, err)
	_, err = sut.Append(context.Background(), "customer", "c-1", 0, []es.Envelope{
		testEnvelope("customer", "c-1", "CustomerRegistered"),
	})
	require.NoError(t, err)
	_, err = sut.Append(context.Background(), "order", "o-2", 0, []es.Envelope{
		testEnvelope("order", "o-2", "ItemAdded"),
	})
	require.NoError(t, err)

	t.Run("orders by global sequence", func(t *testing.T) {
		all, err := sut.LoadAll(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 3)
		for i := 1; i < len(all); i++ {
			require.Greater(t, all[i].Seq, all[i-1].Seq)
		}
	})

	t.Run("filter by stream type", func(t *testing.T) {
		orders, err := sut.LoadAll(context.Background(), es.WithStreamType("order"))
		require.NoError(t, err)
		require.Len(t, orders, 2)
	})

	t.Run("filter by sequence", func(t *testing.T) {
		tail, err := sut.LoadAll(context.Background(), es.WithAfterSeq(1))
		require.NoError(t, err)
		require.Len(t, tail, 2)
	})

	t.Run("filter by time", func(t *testing.T) {
		recent, err := sut.LoadAll(context.Background(), es.WithFromTime(time.Now().Add(-time.Minute)))
		require.NoError(t, err)
		require.Len(t, recent, 2)

		old, err := sut.LoadAll(context.Background(), es.WithToTime(time.Now().Add(-time.Minute)))
		require.NoError(t, err)
		require.Len(t, old, 1)
		require.Equal(t, "o-1", old[0].StreamID)
	})
}

func TestInMemoryStore_DeleteStream(t *testing.T) {
	sut := es.NewInMemoryStore()

	_, err := sut.Append(context.Background(), "order", "o-1", 0, []es.Envelope{
		testEnvelope("order", "o-1", "ItemAdded"),
	})
	require.NoError(t, err)
	_, err = sut.Append(context.Background(), "order", "o-2", 0, []es.Envelope{
		testEnvelope("order", "o-2", "ItemAdded"),
	})
	require.NoError(t, err)

	require.NoError(t, sut.DeleteStream(context.Background(), "order", "o-1"))

	t.Run("unknown stream", func(t *testing.T) {
		require.ErrorIs(t, sut.DeleteStream(context.Background(), "order", "nope"), es.ErrStreamNotFound)
	})

	t.Run("delete twice", func(t *testing.T) {
		require.ErrorIs(t, sut.DeleteStream(context.Background(), "order", "o-1"), es.ErrStreamNotFound)
	})

	t.Run("history is gone", func(t *testing.T) {
		_, err := sut.Load(context.Background(), "order", "o-1")
		require.ErrorIs(t, err, es.ErrStreamNotFound)

		ok, err := sut.StreamExists(context.Background(), "order", "o-1")
		require.NoError(t, err)
		require.False(t, ok)

		_, err = sut.StreamVersion(context.Background(), "order", "o-1")
		require.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("appends are rejected", func(t *testing.T) {
		_, err := sut.Append(context.Background(), "order", "o-1", es.AnyVersion, []es.Envelope{
			testEnvelope("order", "o-1", "ItemAdded"),
		})
		require.ErrorIs(t, err, es.ErrStreamNotFound)
	})

	t.Run("excluded from scans", func(t *testing.T) {
		all, err := sut.LoadAll(context.Background())
		require.NoError(t, err)
		require.Len(t, all, 1)
		require.Equal(t, "o-2", all[0].StreamID)
	})
}

func TestAppendEvents(t *testing.T) {
	sut := es.NewInMemoryStore()

	meta := es.Metadata{CorrelationID: "corr-1", UserID: "u-1"}
	ar, err := es.AppendEvents(context.Background(), sut, "order", "o-1", 0, meta,
		&domain.ItemAdded{SKU: "A"},
		&domain.OrderConfirmed{},
	)
	require.NoError(t, err)
	require.Equal(t, es.Version(2), ar.LastVersion)

	loaded, err := sut.Load(context.Background(), "order", "o-1")
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, "ItemAdded", loaded[0].Type)
	require.Equal(t, "OrderConfirmed", loaded[1].Type)
	require.Equal(t, 1, loaded[0].SchemaVersion)
	require.Equal(t, meta, loaded[0].Metadata)
}
