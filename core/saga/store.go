package saga

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Store persists saga instances. The persisted status is the sole
// synchronization point for processing: UpdateStatus must be a
// compare-and-swap so that concurrent pollers (including other
// workers) can never both claim the same instance.
type Store interface {
	// Save upserts the full instance state. Saving over a terminal
	// instance fails with ErrSagaTerminal unless the statuses match:
	// terminal instances never transition again.
	Save(ctx context.Context, inst *Instance) error

	// Get returns a copy of the instance, or ErrSagaNotFound.
	Get(ctx context.Context, id string) (*Instance, error)

	// Due returns PENDING instances whose next attempt time has been
	// reached.
	Due(ctx context.Context, now time.Time) ([]*Instance, error)

	// UpdateStatus transitions id from one status to another
	// atomically. It fails with ErrStatusConflict when the stored
	// status differs from expected, and rejects illegal transitions.
	UpdateStatus(ctx context.Context, id string, expected, next Status) error
}

// InMemoryStore is the reference Store adapter. Instances are deep
// copied on the way in and out.
type InMemoryStore struct {
	mu        sync.Mutex
	instances map[string]*Instance
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{instances: map[string]*Instance{}}
}

func (s *InMemoryStore) Save(_ context.Context, inst *Instance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := s.instances[inst.ID]; ok {
		if cur.Status.Terminal() && cur.Status != inst.Status {
			return fmt.Errorf("cannot save saga %s: %w", inst.ID, ErrSagaTerminal)
		}
	}

	inst.Version++
	inst.UpdatedAt = time.Now()
	s.instances[inst.ID] = inst.clone()
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return nil, ErrSagaNotFound
	}
	return inst.clone(), nil
}

func (s *InMemoryStore) Due(_ context.Context, now time.Time) ([]*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Instance, 0)
	for _, inst := range s.instances {
		if inst.Status != StatusPending {
			continue
		}
		if !inst.NextAttemptAt.IsZero() && inst.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, inst.clone())
	}
	return out, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, id string, expected, next Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inst, ok := s.instances[id]
	if !ok {
		return ErrSagaNotFound
	}
	if inst.Status != expected {
		return fmt.Errorf(
			"saga %s is %s, not %s: %w",
			id, inst.Status, expected, ErrStatusConflict,
		)
	}
	if !expected.CanTransition(next) {
		return fmt.Errorf("saga %s: illegal transition %s -> %s", id, expected, next)
	}
	inst.Status = next
	inst.Version++
	inst.UpdatedAt = time.Now()
	return nil
}

var _ Store = (*InMemoryStore)(nil)
