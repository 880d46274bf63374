package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrSnapshotterUnconfigured = errors.New("no snapshotter configured")
	ErrSnapshotNotFound        = errors.New("snapshot not found")
)

type (
	// Snapshot is cached aggregate state at a given stream version. At
	// most one live snapshot exists per stream; saving overwrites.
	Snapshot struct {
		SnapshotID string `json:"snapshot_id"`

		StreamID   string  `json:"stream_id"`
		StreamType string  `json:"stream_type"`
		Version    Version `json:"version"` // stream version at capture time
		Seq        uint64  `json:"seq"`     // global sequence at capture time

		CreatedAt     time.Time `json:"created_at"`
		SchemaVersion int       `json:"schema_version"`
		Encoding      string    `json:"encoding"`
		Data          []byte    `json:"data"`
	}

	// Snapshottable aggregates control their own snapshot encoding.
	// Aggregates without it fall back to JSON marshaling.
	Snapshottable interface {
		Snapshot() (data []byte, err error)
		RestoreSnapshot(data []byte) error
	}

	// Snapshotter stores at most one snapshot per stream. It is purely
	// an optimization: repository correctness holds with it absent.
	Snapshotter interface {
		SaveSnapshot(ctx context.Context, snapshot *Snapshot) error
		LoadSnapshot(ctx context.Context, streamType, streamID string) (*Snapshot, error)
		SnapshotVersion(ctx context.Context, streamType, streamID string) (Version, error)
		DeleteSnapshot(ctx context.Context, streamType, streamID string) error
	}
)

func (s *Snapshot) logAttrs() slog.Attr {
	return slog.Group(
		"snapshot",
		slog.String("id", s.SnapshotID),
		slog.String("stream_type", s.StreamType),
		slog.String("stream_id", s.StreamID),
		s.Version.SlogAttr(),
		slog.Uint64("seq", s.Seq),
		slog.Time("created_at", s.CreatedAt),
		slog.Int("size", len(s.Data)),
	)
}

// ApplySnapshot loads the stream's snapshot (if any) and restores agg
// from it, setting version and sequence to the capture point.
func ApplySnapshot(ctx context.Context, snapshotter Snapshotter, agg Aggregate) error {
	if snapshotter == nil {
		return ErrSnapshotterUnconfigured
	}
	snapshot, err := snapshotter.LoadSnapshot(ctx, agg.GetAggType(), agg.GetID())
	if err != nil {
		return err
	}
	if sa, ok := any(agg).(Snapshottable); ok {
		err = sa.RestoreSnapshot(snapshot.Data)
	} else {
		err = json.Unmarshal(snapshot.Data, agg)
	}
	if err != nil {
		return fmt.Errorf("failed to restore snapshot: %w", err)
	}
	agg.setVersion(snapshot.Version)
	agg.setSeq(snapshot.Seq)
	return nil
}

// CaptureSnapshot serializes the aggregate's current state.
func CaptureSnapshot(agg Aggregate) (*Snapshot, error) {
	var (
		data []byte
		err  error
	)
	if sa, ok := any(agg).(Snapshottable); ok {
		data, err = sa.Snapshot()
	} else {
		data, err = json.Marshal(agg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to capture snapshot: %w", err)
	}
	return &Snapshot{
		SnapshotID:    gonanoid.Must(),
		StreamID:      agg.GetID(),
		StreamType:    agg.GetAggType(),
		Version:       agg.GetVersion(),
		Seq:           agg.GetSeq(),
		CreatedAt:     time.Now(),
		SchemaVersion: 1,
		Encoding:      "json",
		Data:          data,
	}, nil
}

// === In-Memory Snapshotter ===

type InMemorySnapshotter struct {
	mu        sync.Mutex
	log       *slog.Logger
	snapshots map[string]*Snapshot
}

func NewInMemorySnapshotter() *InMemorySnapshotter {
	return &InMemorySnapshotter{
		log:       slog.Default().With(slog.String("snapshotter", "memory")),
		snapshots: map[string]*Snapshot{},
	}
}

func (i *InMemorySnapshotter) key(streamType, streamID string) string {
	return fmt.Sprintf("%s-%s", streamType, streamID)
}

func (i *InMemorySnapshotter) SaveSnapshot(_ context.Context, snapshot *Snapshot) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.snapshots[i.key(snapshot.StreamType, snapshot.StreamID)] = snapshot
	return nil
}

func (i *InMemorySnapshotter) LoadSnapshot(_ context.Context, streamType, streamID string) (*Snapshot, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.snapshots[i.key(streamType, streamID)]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return s, nil
}

func (i *InMemorySnapshotter) SnapshotVersion(_ context.Context, streamType, streamID string) (Version, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	s, ok := i.snapshots[i.key(streamType, streamID)]
	if !ok {
		return 0, ErrSnapshotNotFound
	}
	return s.Version, nil
}

func (i *InMemorySnapshotter) DeleteSnapshot(_ context.Context, streamType, streamID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	k := i.key(streamType, streamID)
	if _, ok := i.snapshots[k]; !ok {
		return ErrSnapshotNotFound
	}
	delete(i.snapshots, k)
	return nil
}

var _ Snapshotter = (*InMemorySnapshotter)(nil)
