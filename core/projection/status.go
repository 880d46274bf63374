package projection

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrStatusNotFound = errors.New("projection status not found")
	ErrProjectionBusy = errors.New("projection is busy")
)

// Status is the persisted processing state of one projection. The
// watermark (LastSeq) only ever advances, except through Reset.
type Status struct {
	Name            string
	LastEventID     string
	LastSeq         uint64 // watermark: global sequence of the last processed event
	Running         bool
	RegisteredAt    time.Time
	LastProcessedAt time.Time
	UpdatedAt       time.Time
}

// StatusStore persists projection watermarks. Registering a projection
// again after a restart must find its previous watermark here.
type StatusStore interface {
	// Get returns the status for name, or ErrStatusNotFound.
	Get(ctx context.Context, name string) (Status, error)
	// Init creates a zero watermark for name if absent. An existing
	// status is preserved.
	Init(ctx context.Context, name string, now time.Time) error
	// Advance moves the watermark forward. Calls with a seq at or below
	// the current watermark are ignored.
	Advance(ctx context.Context, name, eventID string, seq uint64, now time.Time) error
	// SetRunning flips the mutual exclusion flag. Setting it to true
	// reports false when the projection is already running.
	SetRunning(ctx context.Context, name string, running bool) (bool, error)
	// Reset clears the watermark back to zero.
	Reset(ctx context.Context, name string, now time.Time) error
}

// InMemoryStatusStore is the reference StatusStore adapter.
type InMemoryStatusStore struct {
	mu       sync.Mutex
	statuses map[string]Status
}

func NewInMemoryStatusStore() *InMemoryStatusStore {
	return &InMemoryStatusStore{statuses: map[string]Status{}}
}

func (s *InMemoryStatusStore) Get(_ context.Context, name string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[name]
	if !ok {
		return Status{}, ErrStatusNotFound
	}
	return st, nil
}

func (s *InMemoryStatusStore) Init(_ context.Context, name string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.statuses[name]; ok {
		return nil
	}
	s.statuses[name] = Status{
		Name:         name,
		RegisteredAt: now,
		UpdatedAt:    now,
	}
	return nil
}

func (s *InMemoryStatusStore) Advance(_ context.Context, name, eventID string, seq uint64, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[name]
	if !ok {
		return ErrStatusNotFound
	}
	if seq <= st.LastSeq {
		return nil
	}
	st.LastEventID = eventID
	st.LastSeq = seq
	st.LastProcessedAt = now
	st.UpdatedAt = now
	s.statuses[name] = st
	return nil
}

func (s *InMemoryStatusStore) SetRunning(_ context.Context, name string, running bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[name]
	if !ok {
		return false, ErrStatusNotFound
	}
	if running && st.Running {
		return false, nil
	}
	st.Running = running
	s.statuses[name] = st
	return true, nil
}

func (s *InMemoryStatusStore) Reset(_ context.Context, name string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.statuses[name]
	if !ok {
		return ErrStatusNotFound
	}
	st.LastEventID = ""
	st.LastSeq = 0
	st.LastProcessedAt = time.Time{}
	st.UpdatedAt = now
	s.statuses[name] = st
	return nil
}

var _ StatusStore = (*InMemoryStatusStore)(nil)
