package projection_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/codewandler/sourcing-go/core/projection"
)

func TestInMemoryStatusStore(t *testing.T) {
	sut := projection.NewInMemoryStatusStore()
	now := time.Now()

	_, err := sut.Get(context.Background(), "p")
	require.ErrorIs(t, err, projection.ErrStatusNotFound)

	require.NoError(t, sut.Init(context.Background(), "p", now))
	st, err := sut.Get(context.Background(), "p")
	require.NoError(t, err)
	require.Equal(t, uint64(0), st.LastSeq)
	require.Equal(t, now, st.RegisteredAt)

	t.Run("advance", func(t *testing.T) {
		require.NoError(t, sut.Advance(context.Background(), "p", "e-5", 5, now))
		st, err := sut.Get(context.Background(), "p")
		require.NoError(t, err)
		require.Equal(t, uint64(5), st.LastSeq)
		require.Equal(t, "e-5", st.LastEventID)
	})

	t.Run("advance is monotonic", func(t *testing.T) {
		require.NoError(t, sut.Advance(context.Background(), "p", "e-3", 3, now))
		st, err := sut.Get(context.Background(), "p")
		require.NoError(t, err)
		require.Equal(t, uint64(5), st.LastSeq, "watermark must never move backwards")
	})

	t.Run("init preserves an existing watermark", func(t *testing.T) {
		require.NoError(t, sut.Init(context.Background(), "p", now.Add(time.Hour)))
		st, err := sut.Get(context.Background(), "p")
		require.NoError(t, err)
		require.Equal(t, uint64(5), st.LastSeq)
		require.Equal(t, now, st.RegisteredAt)
	})

	t.Run("running flag is mutually exclusive", func(t *testing.T) {
		ok, err := sut.SetRunning(context.Background(), "p", true)
		require.NoError(t, err)
		require.True(t, ok)

		ok, err = sut.SetRunning(context.Background(), "p", true)
		require.NoError(t, err)
		require.False(t, ok, "second acquisition must be refused")

		ok, err = sut.SetRunning(context.Background(), "p", false)
		require.NoError(t, err)
		require.True(t, ok)
	})

	t.Run("reset clears the watermark", func(t *testing.T) {
		require.NoError(t, sut.Reset(context.Background(), "p", now))
		st, err := sut.Get(context.Background(), "p")
		require.NoError(t, err)
		require.Equal(t, uint64(0), st.LastSeq)
		require.Empty(t, st.LastEventID)
	})

	t.Run("unknown projection", func(t *testing.T) {
		require.ErrorIs(t, sut.Advance(context.Background(), "nope", "e", 1, now), projection.ErrStatusNotFound)
		_, err := sut.SetRunning(context.Background(), "nope", true)
		require.ErrorIs(t, err, projection.ErrStatusNotFound)
		require.ErrorIs(t, sut.Reset(context.Background(), "nope", now), projection.ErrStatusNotFound)
	})
}
