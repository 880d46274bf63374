package projection

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/codewandler/sourcing-go/core/es"
)

// Manager polls the event store and delivers undelivered events to
// every registered projection whose supported set includes them. Each
// projection advances its own watermark independently; a failure in one
// projection never affects another.
type Manager struct {
	log      *slog.Logger
	store    es.EventStore
	decoder  es.Decoder
	statuses StatusStore
	clock    clock.Clock
	cfg      Config
	metrics  Metrics

	mu          sync.RWMutex
	projections map[string]Projection

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type (
	managerOpts struct {
		log      *slog.Logger
		statuses StatusStore
		clock    clock.Clock
		cfg      Config
		metrics  Metrics
	}

	ManagerOption interface{ applyToManager(*managerOpts) }

	logOption      struct{ l *slog.Logger }
	statusesOption struct{ s StatusStore }
	clockOption    struct{ c clock.Clock }
	configOption   struct{ cfg Config }
	metricsOption  struct{ m Metrics }
)

func (o logOption) applyToManager(opts *managerOpts)      { opts.log = o.l }
func (o statusesOption) applyToManager(opts *managerOpts) { opts.statuses = o.s }
func (o clockOption) applyToManager(opts *managerOpts)    { opts.clock = o.c }
func (o configOption) applyToManager(opts *managerOpts)   { opts.cfg = o.cfg }
func (o metricsOption) applyToManager(opts *managerOpts)  { opts.metrics = o.m }

func WithLog(l *slog.Logger) ManagerOption        { return logOption{l} }
func WithStatusStore(s StatusStore) ManagerOption { return statusesOption{s} }
func WithClock(c clock.Clock) ManagerOption       { return clockOption{c} }
func WithConfig(cfg Config) ManagerOption         { return configOption{cfg} }
func WithManagerMetrics(m Metrics) ManagerOption  { return metricsOption{m} }

func NewManager(store es.EventStore, decoder es.Decoder, opts ...ManagerOption) *Manager {
	options := managerOpts{
		log:      slog.Default(),
		statuses: NewInMemoryStatusStore(),
		clock:    clock.New(),
		cfg:      DefaultConfig(),
		metrics:  NopMetrics(),
	}
	for _, opt := range opts {
		opt.applyToManager(&options)
	}

	return &Manager{
		log:         options.log.With(slog.String("component", "projection-manager")),
		store:       store,
		decoder:     decoder,
		statuses:    options.statuses,
		clock:       options.clock,
		cfg:         options.cfg,
		metrics:     options.metrics,
		projections: map[string]Projection{},
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Register adds a projection. It is idempotent and initializes the
// watermark only when absent, so a projection re-registered after a
// restart resumes where it left off.
func (m *Manager) Register(ctx context.Context, p Projection) error {
	if p.Name() == "" {
		return fmt.Errorf("projection name is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projections[p.Name()]; ok {
		return nil
	}
	if err := m.statuses.Init(ctx, p.Name(), m.clock.Now()); err != nil {
		return fmt.Errorf("failed to init projection status: %w", err)
	}
	m.projections[p.Name()] = p

	m.log.Info(
		"projection registered",
		slog.String("projection", p.Name()),
		slog.Any("events", p.SupportedEvents()),
	)
	return nil
}

// Start begins the polling loop. It returns immediately; Stop (or ctx
// cancellation) terminates the loop.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		go func() {
			defer close(m.done)

			ticker := m.clock.Ticker(m.cfg.PollInterval)
			defer ticker.Stop()

			m.log.Info("started", slog.Duration("poll_interval", m.cfg.PollInterval))

			for {
				select {
				case <-ctx.Done():
					return
				case <-m.stop:
					return
				case <-ticker.C:
					if err := m.Tick(ctx); err != nil {
						m.log.Error("tick failed", slog.Any("error", err))
					}
				}
			}
		}()
	})
}

// Stop terminates the polling loop and waits for it to finish.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		<-m.done
	})
}

// Tick runs one polling pass over all registered projections. The
// projections fan out concurrently and independently; a failure in one
// only aborts that projection's pass.
func (m *Manager) Tick(ctx context.Context) error {
	m.mu.RLock()
	projections := make([]Projection, 0, len(m.projections))
	for _, p := range m.projections {
		projections = append(projections, p)
	}
	m.mu.RUnlock()

	var eg errgroup.Group
	for _, p := range projections {
		p := p
		eg.Go(func() error {
			if err := m.tickProjection(ctx, p); err != nil {
				// isolate: log and keep the other projections going
				m.log.Error(
					"projection tick failed",
					slog.String("projection", p.Name()),
					slog.Any("error", err),
				)
			}
			return nil
		})
	}
	return eg.Wait()
}

func (m *Manager) tickProjection(ctx context.Context, p Projection) error {
	acquired, err := m.statuses.SetRunning(ctx, p.Name(), true)
	if err != nil {
		return err
	}
	if !acquired {
		// previous tick still in flight
		return nil
	}
	defer m.clearRunning(ctx, p.Name())

	return m.catchUp(ctx, p)
}

func (m *Manager) clearRunning(ctx context.Context, name string) {
	if _, err := m.statuses.SetRunning(ctx, name, false); err != nil {
		m.log.Error("failed to clear running flag", slog.String("projection", name), slog.Any("error", err))
	}
}

// catchUp delivers everything past the watermark to p. The caller must
// hold the projection's running flag.
func (m *Manager) catchUp(ctx context.Context, p Projection) error {
	name := p.Name()

	defer m.metrics.TickDuration(name).ObserveDuration()

	status, err := m.statuses.Get(ctx, name)
	if err != nil {
		return err
	}

	batch, err := m.pending(ctx, p, status.LastSeq)
	if err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	log := m.log.With(slog.String("projection", name))
	log.Debug("processing", slog.Int("num_events", len(batch)), slog.Uint64("watermark", status.LastSeq))

	for _, env := range batch {
		event, err := m.decoder.Decode(env)
		if err != nil {
			m.metrics.EventProcessed(name, env.Type, false)
			return fmt.Errorf("failed to decode event %s: %w", env.ID, err)
		}
		if err := p.Handle(ctx, env, event); err != nil {
			m.metrics.EventProcessed(name, env.Type, false)
			// watermark untouched: the event is redelivered next tick
			return fmt.Errorf("failed to project event %s (seq=%d): %w", env.ID, env.Seq, err)
		}
		if err := m.statuses.Advance(ctx, name, env.ID, env.Seq, m.clock.Now()); err != nil {
			return fmt.Errorf("failed to advance watermark: %w", err)
		}
		m.metrics.EventProcessed(name, env.Type, true)
	}

	return nil
}

// pending collects the supported events past the watermark, ordered by
// occurred-at time (sequence breaks ties).
func (m *Manager) pending(ctx context.Context, p Projection, afterSeq uint64) ([]es.Envelope, error) {
	events, err := m.store.LoadAll(ctx, es.WithAfterSeq(afterSeq))
	if err != nil {
		return nil, fmt.Errorf("failed to scan events: %w", err)
	}

	supported := make(map[string]struct{}, len(p.SupportedEvents()))
	for _, t := range p.SupportedEvents() {
		supported[t] = struct{}{}
	}

	batch := make([]es.Envelope, 0, len(events))
	for _, e := range events {
		if _, ok := supported[e.Type]; ok {
			batch = append(batch, e)
		}
	}

	sort.SliceStable(batch, func(i, j int) bool {
		if batch[i].OccurredAt.Equal(batch[j].OccurredAt) {
			return batch[i].Seq < batch[j].Seq
		}
		return batch[i].OccurredAt.Before(batch[j].OccurredAt)
	})

	return batch, nil
}

// Rebuild clears the projection's read model and watermark, then
// replays its events from the beginning of the store, synchronously.
// It claims the projection's running flag for the whole operation;
// while a tick is in flight it returns ErrProjectionBusy without
// touching the read model, so a concurrent tick can never advance a
// freshly reset watermark past events the reset wiped.
func (m *Manager) Rebuild(ctx context.Context, name string) error {
	m.mu.RLock()
	p, ok := m.projections[name]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown projection: %s", name)
	}

	acquired, err := m.statuses.SetRunning(ctx, name, true)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: %s", ErrProjectionBusy, name)
	}
	defer m.clearRunning(ctx, name)

	if err := p.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset projection %s: %w", name, err)
	}
	if err := m.statuses.Reset(ctx, name, m.clock.Now()); err != nil {
		return err
	}

	m.log.Info("rebuilding projection", slog.String("projection", name))
	return m.catchUp(ctx, p)
}

// GetStatus returns the projection's persisted processing state.
func (m *Manager) GetStatus(ctx context.Context, name string) (Status, error) {
	return m.statuses.Get(ctx, name)
}

// Healthy reports false when the projection has unprocessed events and
// its watermark has not advanced within the staleness window.
func (m *Manager) Healthy(ctx context.Context, name string) (bool, error) {
	m.mu.RLock()
	p, ok := m.projections[name]
	m.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("unknown projection: %s", name)
	}

	status, err := m.statuses.Get(ctx, name)
	if err != nil {
		return false, err
	}

	batch, err := m.pending(ctx, p, status.LastSeq)
	if err != nil {
		return false, err
	}
	m.metrics.Lag(name, int64(len(batch)))
	if len(batch) == 0 {
		return true, nil
	}

	ref := status.LastProcessedAt
	if ref.IsZero() {
		ref = status.UpdatedAt
	}
	return m.clock.Now().Sub(ref) <= m.cfg.StalenessWindow, nil
}
