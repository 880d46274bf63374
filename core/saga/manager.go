package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/codewandler/sourcing-go/core/perkey"
)

const maxRetryDelay = 30 * time.Second

// Manager drives registered saga definitions: it persists new
// instances, polls for due work, executes steps sequentially, retries
// bounded failures with exponential backoff and unwinds completed
// steps when an instance fails irrecoverably.
//
// Two safeguards keep processing of one instance exclusive: the
// per-key scheduler serializes in-process work per saga ID, and the
// store's compare-and-swap PENDING→RUNNING transition rejects every
// claimant but one across workers.
type Manager struct {
	log     *slog.Logger
	store   Store
	clock   clock.Clock
	cfg     ManagerConfig
	metrics Metrics

	mu   sync.RWMutex
	defs map[string]Definition

	sched   *perkey.Scheduler[string]
	running atomic.Bool

	startOnce sync.Once
	stopOnce  sync.Once
	stop      chan struct{}
	done      chan struct{}
}

type (
	managerOpts struct {
		log     *slog.Logger
		clock   clock.Clock
		cfg     ManagerConfig
		metrics Metrics
	}

	ManagerOption interface{ applyToManager(*managerOpts) }

	logOption     struct{ l *slog.Logger }
	clockOption   struct{ c clock.Clock }
	configOption  struct{ cfg ManagerConfig }
	metricsOption struct{ m Metrics }
)

func (o logOption) applyToManager(opts *managerOpts)     { opts.log = o.l }
func (o clockOption) applyToManager(opts *managerOpts)   { opts.clock = o.c }
func (o configOption) applyToManager(opts *managerOpts)  { opts.cfg = o.cfg }
func (o metricsOption) applyToManager(opts *managerOpts) { opts.metrics = o.m }

func WithLog(l *slog.Logger) ManagerOption       { return logOption{l} }
func WithClock(c clock.Clock) ManagerOption      { return clockOption{c} }
func WithConfig(cfg ManagerConfig) ManagerOption { return configOption{cfg} }
func WithManagerMetrics(m Metrics) ManagerOption { return metricsOption{m} }

func NewManager(store Store, opts ...ManagerOption) *Manager {
	options := managerOpts{
		log:     slog.Default(),
		clock:   clock.New(),
		cfg:     DefaultManagerConfig(),
		metrics: NopMetrics(),
	}
	for _, opt := range opts {
		opt.applyToManager(&options)
	}

	return &Manager{
		log:     options.log.With(slog.String("component", "saga-manager")),
		store:   store,
		clock:   options.clock,
		cfg:     options.cfg,
		metrics: options.metrics,
		defs:    map[string]Definition{},
		sched:   perkey.New[string](),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Register adds a saga definition. Definitions must be registered
// before instances of their type can start or resume.
func (m *Manager) Register(def Definition) error {
	if def.SagaType() == "" {
		return errors.New("saga type is empty")
	}
	if len(def.Steps()) == 0 {
		return fmt.Errorf("saga %s has no steps", def.SagaType())
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.defs[def.SagaType()] = def

	m.log.Info(
		"saga registered",
		slog.String("saga_type", def.SagaType()),
		slog.Int("num_steps", len(def.Steps())),
	)
	return nil
}

type (
	startOpts struct{ userID string }

	StartOption interface{ applyToStart(*startOpts) }

	userIDOption struct{ v string }
)

func (o userIDOption) applyToStart(opts *startOpts) { opts.userID = o.v }

func WithUserID(userID string) StartOption { return userIDOption{v: userID} }

// StartSaga validates the input against the definition (fail-fast),
// persists a new PENDING instance and, when the manager is running,
// schedules immediate processing. The caller only receives the saga ID
// and polls status; step failures drive the state machine instead of
// surfacing here.
func (m *Manager) StartSaga(
	ctx context.Context,
	sagaType string,
	correlationID string,
	data map[string]any,
	opts ...StartOption,
) (string, error) {
	def, err := m.definition(sagaType)
	if err != nil {
		return "", err
	}

	options := startOpts{}
	for _, opt := range opts {
		opt.applyToStart(&options)
	}

	if v, ok := def.(DataValidator); ok {
		if err := v.ValidateData(data); err != nil {
			return "", fmt.Errorf("invalid saga data: %w", err)
		}
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}

	steps := def.Steps()
	stepNames := make([]string, len(steps))
	for i, s := range steps {
		stepNames[i] = s.Name()
	}

	now := m.clock.Now()
	inst := &Instance{
		ID:            uuid.NewString(),
		SagaType:      sagaType,
		CorrelationID: correlationID,
		Status:        StatusPending,
		Context: &Context{
			CorrelationID: correlationID,
			UserID:        options.userID,
			Data:          data,
			StepResults:   map[string]any{},
		},
		Steps:     stepNames,
		CreatedAt: now,
	}

	if err := m.store.Save(ctx, inst); err != nil {
		return "", fmt.Errorf("failed to persist saga: %w", err)
	}
	m.metrics.SagaStarted(sagaType)

	m.log.Info(
		"saga started",
		slog.String("saga_id", inst.ID),
		slog.String("saga_type", sagaType),
		slog.String("correlation_id", correlationID),
	)

	if m.running.Load() {
		go m.process(ctx, inst.ID)
	}

	return inst.ID, nil
}

// Start begins the polling loop draining due PENDING instances.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		m.running.Store(true)
		go func() {
			defer close(m.done)
			defer m.running.Store(false)

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
		m.sched.Close()
	})
}

// Tick runs one polling pass: every due PENDING instance is processed,
// one after the other.
func (m *Manager) Tick(ctx context.Context) error {
	due, err := m.store.Due(ctx, m.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to poll due sagas: %w", err)
	}

	for _, inst := range due {
		m.process(ctx, inst.ID)
	}
	return nil
}

// process runs one processing pass for a saga, serialized per saga ID.
func (m *Manager) process(ctx context.Context, id string) {
	err := m.sched.DoContext(ctx, id, func() error {
		return m.run(ctx, id)
	})
	if err != nil && !errors.Is(err, ErrStatusConflict) {
		m.log.Error("saga processing failed", slog.String("saga_id", id), slog.Any("error", err))
	}
}

// run claims the instance (PENDING→RUNNING) and recurses through
// consecutive successful steps within this one pass. A retryable
// failure parks the instance back in PENDING with a next-attempt time;
// a non-retryable one starts compensation.
func (m *Manager) run(ctx context.Context, id string) error {
	if err := m.store.UpdateStatus(ctx, id, StatusPending, StatusRunning); err != nil {
		// lost the claim: another worker has it, or it was cancelled
		return err
	}

	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	def, err := m.definition(inst.SagaType)
	if err != nil {
		return err
	}
	cfg := sagaConfigOf(def)
	steps := def.Steps()

	if inst.StartedAt.IsZero() {
		inst.StartedAt = m.clock.Now()
	}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	log := m.log.With(
		slog.String("saga_id", inst.ID),
		slog.String("saga_type", inst.SagaType),
	)

	for {
		// a concurrent cancel wins between steps
		cur, err := m.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != StatusRunning {
			log.Debug("run aborted", cur.Status.SlogAttr())
			return nil
		}

		if cfg.Timeout > 0 && m.clock.Now().Sub(inst.StartedAt) > cfg.Timeout {
			log.Warn("saga timed out", slog.Duration("timeout", cfg.Timeout))
			inst.Error = ErrSagaTimeout.Error()
			if !cfg.Compensate {
				return m.fail(ctx, log, def, inst)
			}
			return m.unwind(ctx, log, def, cfg, inst, inst.CurrentStep, ErrSagaTimeout)
		}

		if inst.CurrentStep >= len(steps) {
			return m.complete(ctx, log, def, inst)
		}

		step := steps[inst.CurrentStep]

		if sk, ok := step.(Skippable); ok && sk.CanSkip(inst.Context) {
			inst.record(StepRecord{
				Step:      step.Name(),
				Status:    StepSkipped,
				StartedAt: m.clock.Now(),
				EndedAt:   m.clock.Now(),
			})
			inst.CurrentStep++
			if err := m.store.Save(ctx, inst); err != nil {
				return err
			}
			log.Debug("step skipped", slog.String("step", step.Name()))
			continue
		}

		rec := StepRecord{
			Step:      step.Name(),
			Attempt:   inst.RetryCount + 1,
			StartedAt: m.clock.Now(),
		}
		timer := m.metrics.StepDuration(inst.SagaType, step.Name())
		result, stepErr := step.Execute(ctx, inst.Context)
		timer.ObserveDuration()
		rec.EndedAt = m.clock.Now()
		rec.Duration = rec.EndedAt.Sub(rec.StartedAt)

		if stepErr == nil {
			rec.Status = StepCompleted
			rec.Result = result
			inst.record(rec)
			inst.Context.StepResults[step.Name()] = result
			inst.CurrentStep++
			if err := m.store.Save(ctx, inst); err != nil {
				return err
			}
			m.metrics.StepExecuted(inst.SagaType, step.Name(), true)
			log.Debug("step completed", slog.String("step", step.Name()))
			continue
		}

		rec.Status = StepFailed
		rec.Error = stepErr.Error()
		inst.record(rec)
		m.metrics.StepExecuted(inst.SagaType, step.Name(), false)
		log.Warn(
			"step failed",
			slog.String("step", step.Name()),
			slog.Int("attempt", rec.Attempt),
			slog.Any("error", stepErr),
		)

		if m.retryable(step, stepErr, inst.RetryCount, cfg.MaxRetries) {
			return m.reschedule(ctx, log, inst, step, stepErr)
		}

		inst.Error = stepErr.Error()
		if !cfg.Compensate {
			return m.fail(ctx, log, def, inst)
		}
		return m.unwind(ctx, log, def, cfg, inst, inst.CurrentStep, stepErr)
	}
}

// retryable decides whether a step failure is worth another attempt.
// StepError always means no; a Retryable step gets a veto; the retry
// budget bounds everything.
func (m *Manager) retryable(step Step, err error, retryCount, maxRetries int) bool {
	var se *StepError
	if errors.As(err, &se) {
		return false
	}
	if r, ok := step.(Retryable); ok && !r.CanRetry(err) {
		return false
	}
	return retryCount < maxRetries
}

// reschedule parks the instance back in PENDING with an exponential
// backoff delay; the poll loop picks it up when due.
func (m *Manager) reschedule(ctx context.Context, log *slog.Logger, inst *Instance, step Step, stepErr error) error {
	inst.RetryCount++
	delay := retryDelay(step, inst.RetryCount)
	inst.NextAttemptAt = m.clock.Now().Add(delay)
	inst.Status = StatusPending

	if err := m.store.UpdateStatus(ctx, inst.ID, StatusRunning, StatusPending); err != nil {
		return err
	}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	log.Info(
		"step retry scheduled",
		slog.String("step", step.Name()),
		slog.Int("retry_count", inst.RetryCount),
		slog.Duration("delay", delay),
	)
	return nil
}

// unwind compensates the steps strictly before failedIdx in reverse
// index order. Compensation is best-effort: a failing compensation is
// recorded and the unwind keeps going.
func (m *Manager) unwind(
	ctx context.Context,
	log *slog.Logger,
	def Definition,
	cfg Config,
	inst *Instance,
	failedIdx int,
	cause error,
) error {
	if err := m.store.UpdateStatus(ctx, inst.ID, StatusRunning, StatusCompensating); err != nil {
		return err
	}
	inst.Status = StatusCompensating
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	log.Info(
		"compensating",
		slog.Int("failed_step", failedIdx),
		slog.Any("cause", cause),
	)

	steps := def.Steps()
	for i := failedIdx - 1; i >= 0; i-- {
		step := steps[i]

		// skipped steps did nothing to undo
		if m.wasSkipped(inst, step.Name()) {
			continue
		}

		rec := StepRecord{
			Step:      step.Name(),
			StartedAt: m.clock.Now(),
		}
		err := step.Compensate(ctx, inst.Context)
		rec.EndedAt = m.clock.Now()
		rec.Duration = rec.EndedAt.Sub(rec.StartedAt)

		if err != nil {
			rec.Status = StepCompensationFailed
			rec.Error = err.Error()
			log.Error(
				"compensation failed",
				slog.String("step", step.Name()),
				slog.Any("error", err),
			)
		} else {
			rec.Status = StepCompensated
		}
		inst.record(rec)
		m.metrics.StepCompensated(inst.SagaType, step.Name(), err == nil)

		if err := m.store.Save(ctx, inst); err != nil {
			return err
		}
	}

	if err := m.store.UpdateStatus(ctx, inst.ID, StatusCompensating, StatusCompensated); err != nil {
		return err
	}
	inst.Status = StatusCompensated
	inst.EndedAt = m.clock.Now()
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}
	m.metrics.SagaEnded(inst.SagaType, StatusCompensated)
	log.Info("saga compensated")

	if h, ok := def.(CompensatedHook); ok {
		h.OnCompensated(ctx, inst)
	}
	return nil
}

func (m *Manager) wasSkipped(inst *Instance, stepName string) bool {
	for _, rec := range inst.StepHistory {
		if rec.Step == stepName && rec.Status == StepSkipped {
			return true
		}
	}
	return false
}

func (m *Manager) complete(ctx context.Context, log *slog.Logger, def Definition, inst *Instance) error {
	if err := m.store.UpdateStatus(ctx, inst.ID, StatusRunning, StatusCompleted); err != nil {
		return err
	}
	inst.Status = StatusCompleted
	inst.EndedAt = m.clock.Now()
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}
	m.metrics.SagaEnded(inst.SagaType, StatusCompleted)
	log.Info("saga completed", slog.Int("num_steps", len(inst.Steps)))

	if h, ok := def.(CompletedHook); ok {
		h.OnCompleted(ctx, inst)
	}
	return nil
}

func (m *Manager) fail(ctx context.Context, log *slog.Logger, def Definition, inst *Instance) error {
	if err := m.store.UpdateStatus(ctx, inst.ID, StatusRunning, StatusFailed); err != nil {
		return err
	}
	inst.Status = StatusFailed
	inst.EndedAt = m.clock.Now()
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}
	m.metrics.SagaEnded(inst.SagaType, StatusFailed)
	log.Error("saga failed", slog.String("error", inst.Error))

	if h, ok := def.(FailedHook); ok {
		h.OnFailed(ctx, inst)
	}
	return nil
}

// CancelSaga transitions a non-terminal instance straight to
// CANCELLED. Remaining steps do not run and no compensation happens:
// cancellation assumes no committed side effects, or delegates cleanup
// to the caller.
func (m *Manager) CancelSaga(ctx context.Context, id string) error {
	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		return fmt.Errorf("cannot cancel saga %s (%s): %w", id, inst.Status, ErrSagaTerminal)
	}

	if err := m.store.UpdateStatus(ctx, id, inst.Status, StatusCancelled); err != nil {
		return err
	}
	m.metrics.SagaEnded(inst.SagaType, StatusCancelled)
	m.log.Info("saga cancelled", slog.String("saga_id", id))
	return nil
}

// ResumeSaga reschedules a non-terminal instance from its persisted
// position: the step history and current index survive restarts.
func (m *Manager) ResumeSaga(ctx context.Context, id string) error {
	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if inst.Terminal() {
		return fmt.Errorf("cannot resume saga %s (%s): %w", id, inst.Status, ErrSagaTerminal)
	}

	if inst.Status != StatusPending {
		if err := m.store.UpdateStatus(ctx, id, inst.Status, StatusPending); err != nil {
			return err
		}
		inst.Status = StatusPending
	}
	inst.NextAttemptAt = time.Time{}
	if err := m.store.Save(ctx, inst); err != nil {
		return err
	}

	m.log.Info("saga resumed", slog.String("saga_id", id), slog.Int("current_step", inst.CurrentStep))

	if m.running.Load() {
		go m.process(ctx, id)
	}
	return nil
}

// GetInstance returns a copy of the persisted instance.
func (m *Manager) GetInstance(ctx context.Context, id string) (*Instance, error) {
	return m.store.Get(ctx, id)
}

// GetStatus returns the instance's current status.
func (m *Manager) GetStatus(ctx context.Context, id string) (Status, error) {
	inst, err := m.store.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return inst.Status, nil
}

func (m *Manager) definition(sagaType string) (Definition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	def, ok := m.defs[sagaType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSagaType, sagaType)
	}
	return def, nil
}

// retryDelay computes the wait before the next attempt: the step's own
// policy when it has one, otherwise 1s doubling per attempt, capped at
// 30s.
func retryDelay(step Step, attempt int) time.Duration {
	if d, ok := step.(RetryDelayer); ok {
		return d.RetryDelay(attempt)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.RandomizationFactor = 0
	b.Multiplier = 2
	b.MaxInterval = maxRetryDelay
	b.Reset()

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}
