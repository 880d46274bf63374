package es

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// InMemoryStore is a map-backed event store for tests and development.
// It is one conformance-tested adapter; durable backends implement the
// same EventStore interface.
type InMemoryStore struct {
	mu      sync.Mutex
	log     *slog.Logger
	seq     uint64
	streams map[string][]Envelope
	deleted map[string]struct{}
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		log:     slog.Default().With(slog.String("store", "memory")),
		streams: map[string][]Envelope{},
		deleted: map[string]struct{}{},
	}
}

func (s *InMemoryStore) streamKey(streamType, streamID string) string {
	return fmt.Sprintf("%s-%s", streamType, streamID)
}

func (s *InMemoryStore) Append(
	_ context.Context,
	streamType string,
	streamID string,
	expected Version,
	events []Envelope,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sk := s.streamKey(streamType, streamID)
	if _, gone := s.deleted[sk]; gone {
		return nil, ErrStreamNotFound
	}

	var (
		curStream  = s.streams[sk]
		curVersion = Version(len(curStream))
	)

	if expected != AnyVersion && expected != curVersion {
		return nil, &ConcurrencyError{
			StreamID: streamID,
			Expected: expected,
			Actual:   curVersion,
		}
	}

	// assign sequence, version and store time; nothing is written until
	// every event passed validation
	var (
		now       = time.Now()
		newEvents = make([]Envelope, 0, len(events))
	)
	for i, e := range events {
		e.Seq = s.seq + uint64(i) + 1
		e.Version = curVersion + Version(i) + 1
		e.StoredAt = now
		if err := e.Validate(); err != nil {
			return nil, err
		}
		newEvents = append(newEvents, e)
	}

	s.seq += uint64(len(newEvents))
	s.streams[sk] = append(curStream, newEvents...)

	last := newEvents[len(newEvents)-1]
	s.log.Debug(
		"append",
		slog.String("stream", sk),
		slog.Uint64("last_seq", last.Seq),
		last.Version.SlogAttr(),
		slog.Int("num_events", len(newEvents)),
	)

	return &AppendResult{LastSeq: last.Seq, LastVersion: last.Version}, nil
}

func (s *InMemoryStore) Load(
	_ context.Context,
	streamType,
	streamID string,
	opts ...StoreLoadOption,
) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	loadOpts := newStoreLoadOptions(opts...)

	events, err := s.liveStreamLocked(streamType, streamID)
	if err != nil {
		return nil, err
	}

	out := make([]Envelope, 0)
	for _, e := range events {
		if e.Version <= loadOpts.fromVersion {
			continue
		}
		if loadOpts.toVersion > 0 && e.Version > loadOpts.toVersion {
			continue
		}
		out = append(out, e)
	}

	return out, nil
}

func (s *InMemoryStore) LoadAll(_ context.Context, opts ...StoreScanOption) ([]Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	scanOpts := newStoreScanOptions(opts...)

	out := make([]Envelope, 0)
	for sk, events := range s.streams {
		if _, gone := s.deleted[sk]; gone {
			continue
		}
		for _, e := range events {
			if scanOpts.streamType != "" && e.StreamType != scanOpts.streamType {
				continue
			}
			if e.Seq <= scanOpts.afterSeq {
				continue
			}
			if !scanOpts.fromTime.IsZero() && e.OccurredAt.Before(scanOpts.fromTime) {
				continue
			}
			if !scanOpts.toTime.IsZero() && e.OccurredAt.After(scanOpts.toTime) {
				continue
			}
			out = append(out, e)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })

	return out, nil
}

func (s *InMemoryStore) StreamExists(_ context.Context, streamType, streamID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.liveStreamLocked(streamType, streamID)
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *InMemoryStore) StreamVersion(_ context.Context, streamType, streamID string) (Version, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	events, err := s.liveStreamLocked(streamType, streamID)
	if err != nil {
		return 0, err
	}
	return Version(len(events)), nil
}

func (s *InMemoryStore) DeleteStream(_ context.Context, streamType, streamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sk := s.streamKey(streamType, streamID)
	if _, ok := s.streams[sk]; !ok {
		return ErrStreamNotFound
	}
	if _, gone := s.deleted[sk]; gone {
		return ErrStreamNotFound
	}
	s.deleted[sk] = struct{}{}
	s.log.Debug("stream deleted", slog.String("stream", sk))
	return nil
}

// liveStreamLocked returns the events of a stream that exists and has
// not been soft-deleted.
func (s *InMemoryStore) liveStreamLocked(streamType, streamID string) ([]Envelope, error) {
	sk := s.streamKey(streamType, streamID)
	if _, gone := s.deleted[sk]; gone {
		return nil, ErrStreamNotFound
	}
	events, ok := s.streams[sk]
	if !ok {
		return nil, ErrStreamNotFound
	}
	return events, nil
}

var _ EventStore = (*InMemoryStore)(nil)
