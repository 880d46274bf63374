package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/codewandler/sourcing-go/core/perkey"
)

type Repository interface {
	Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error
	Save(ctx context.Context, agg Aggregate, opts ...SaveOption) error
	CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error)
}

// repository rehydrates aggregates and persists new events with
// optimistic concurrency.
type repository struct {
	log         *slog.Logger
	store       EventStore
	registry    *EventRegistry
	snapshotter Snapshotter
	snapshotFrq Version
	idGenerator IDGenerator
	metrics     ESMetrics
}

func NewRepository(
	log *slog.Logger,
	store EventStore,
	registry *EventRegistry,
	opts ...RepositoryOption,
) Repository {
	options := newRepoOpts(opts...)

	return &repository{
		log:         log.With(slog.String("repo", fmt.Sprintf("%T", store))),
		store:       store,
		registry:    registry,
		snapshotter: options.snapshotter,
		snapshotFrq: options.snapshotFrequency,
		idGenerator: options.idGenerator,
		metrics:     options.metrics,
	}
}

// Load rehydrates agg from the store. It returns ErrAggregateNotFound
// when neither a snapshot nor any events exist, which is distinct from
// an infrastructure failure.
func (r *repository) Load(ctx context.Context, agg Aggregate, opts ...LoadOption) error {
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}
	if len(agg.Uncommitted()) != 0 {
		return errors.New("aggregate has uncommitted events (dirty=true)")
	}

	loadOptions := newLoadOptions(opts...)

	defer r.metrics.RepoLoadDuration(aggType).ObserveDuration()

	log := r.log.With(
		slog.Group(
			"agg",
			slog.String("type", aggType),
			slog.String("id", aggID),
		),
	)

	if loadOptions.snapshot && r.snapshotter != nil {
		err := ApplySnapshot(ctx, r.snapshotter, agg)
		if err != nil {
			if !errors.Is(err, ErrSnapshotNotFound) {
				return fmt.Errorf("failed to apply snapshot: %w", err)
			}
		} else {
			log.Debug(
				"snapshot applied",
				slog.Uint64("seq", agg.GetSeq()),
				agg.GetVersion().SlogAttr(),
			)
		}
	}

	curVersion := agg.GetVersion()

	loaded, err := r.store.Load(ctx, aggType, aggID, WithFromVersion(curVersion))
	if err != nil {
		if errors.Is(err, ErrStreamNotFound) {
			// a leftover snapshot must not resurrect a deleted stream
			return ErrAggregateNotFound
		}
		return err
	}

	for _, e := range loaded {
		expectVersion := agg.GetVersion() + 1
		if e.Version != expectVersion {
			return fmt.Errorf("gap in stream %s: expect version %d, got %d", aggID, expectVersion, e.Version)
		}

		evt, err := r.registry.Decode(e)
		if err != nil {
			return err
		}
		if err := agg.Apply(evt); err != nil {
			return err
		}

		agg.setVersion(e.Version)
		agg.setSeq(e.Seq)
	}

	if agg.GetVersion() == 0 {
		return ErrAggregateNotFound
	}

	log.Debug("loaded", agg.GetVersion().SlogAttr(), slog.Int("num_events", len(loaded)))

	return nil
}

// Save drains the aggregate's uncommitted events and appends them under
// an optimistic version check. It is a no-op when nothing is pending.
// Snapshot creation afterwards is best-effort: failures are logged and
// never fail the save.
func (r *repository) Save(ctx context.Context, agg Aggregate, saveOpts ...SaveOption) error {
	uncommitted := agg.Uncommitted()
	if len(uncommitted) == 0 {
		return nil
	}
	aggType := agg.GetAggType()
	if aggType == "" {
		return errors.New("aggregate type is empty")
	}
	aggID := agg.GetID()
	if aggID == "" {
		return errors.New("aggregate id is empty")
	}

	saveOptions := newSaveOptions(saveOpts...)

	defer r.metrics.RepoSaveDuration(aggType).ObserveDuration()

	meta := saveOptions.metadata
	if meta.CorrelationID == "" {
		meta.CorrelationID = uuid.NewString()
	}

	expectVersion := agg.GetVersion()
	if saveOptions.expectedVersionSet {
		expectVersion = saveOptions.expectedVersion
	}

	newEnvs := make([]Envelope, 0, len(uncommitted))
	for _, ev := range uncommitted {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}

		newEnvs = append(newEnvs, Envelope{
			ID:            r.idGenerator(),
			Type:          getEventTypeOf(ev),
			SchemaVersion: getEventSchemaVersionOf(ev),
			StreamID:      aggID,
			StreamType:    aggType,
			OccurredAt:    time.Now(),
			Data:          data,
			Metadata:      meta,
		})
	}

	res, err := r.store.Append(ctx, aggType, aggID, expectVersion, newEnvs)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			r.metrics.ConcurrencyConflict(aggType)
		}
		return fmt.Errorf("failed to save agg_type=%s agg_id=%s: %w", aggType, aggID, err)
	}
	r.metrics.EventsAppended(aggType, len(newEnvs))

	agg.setSeq(res.LastSeq)
	agg.setVersion(res.LastVersion)
	agg.ClearUncommitted()

	if saveOptions.snapshot || r.dueForSnapshot(ctx, agg) {
		if _, snapshotErr := r.CreateSnapshot(ctx, agg); snapshotErr != nil &&
			!errors.Is(snapshotErr, ErrSnapshotterUnconfigured) {
			r.log.Error(
				"snapshot failed",
				slog.String("agg_id", aggID),
				slog.Any("error", snapshotErr),
			)
		}
	}

	r.log.Debug(
		"saved",
		slog.Group(
			"agg",
			slog.String("id", aggID),
			slog.String("type", aggType),
			slog.Uint64("seq", agg.GetSeq()),
			agg.GetVersion().SlogAttr(),
		),
		slog.Int("num_events", len(newEnvs)),
	)

	return nil
}

// dueForSnapshot reports whether enough events accumulated since the
// last snapshot to warrant a new one.
func (r *repository) dueForSnapshot(ctx context.Context, agg Aggregate) bool {
	if r.snapshotter == nil || r.snapshotFrq <= 0 {
		return false
	}
	lastVersion, err := r.snapshotter.SnapshotVersion(ctx, agg.GetAggType(), agg.GetID())
	if err != nil && !errors.Is(err, ErrSnapshotNotFound) {
		return false
	}
	return agg.GetVersion()-lastVersion >= r.snapshotFrq
}

func (r *repository) CreateSnapshot(ctx context.Context, agg Aggregate) (*Snapshot, error) {
	if r.snapshotter == nil {
		return nil, ErrSnapshotterUnconfigured
	}
	defer r.metrics.SnapshotSaveDuration(agg.GetAggType()).ObserveDuration()

	ss, err := CaptureSnapshot(agg)
	if err != nil {
		return nil, err
	}
	if err := r.snapshotter.SaveSnapshot(ctx, ss); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}
	r.log.Debug("snapshot saved", ss.logAttrs())
	return ss, nil
}

var _ Repository = (*repository)(nil)

// === TypedRepository ===

type TypedRepository[T Aggregate] interface {
	GetAggType() string
	New() T
	NewWithID(id string) T
	Load(ctx context.Context, a T, opts ...LoadOption) error
	Create(ctx context.Context, aggID string) (T, error)
	GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
	GetByID(ctx context.Context, aggID string, opts ...LoadOption) (T, error)
	Save(ctx context.Context, agg T, opts ...SaveOption) error
	// WithTransaction loads the aggregate, runs fn and saves, with all
	// calls for the same aggregate ID serialized within this process.
	WithTransaction(ctx context.Context, aggID string, fn func(a T) error) error
}

type typedRepo[T Aggregate] struct {
	r     Repository
	log   *slog.Logger
	sched *perkey.Scheduler[string]
}

func NewTypedRepository[T Aggregate](log *slog.Logger, s EventStore, reg *EventRegistry, opts ...RepositoryOption) TypedRepository[T] {
	return NewTypedRepositoryFrom[T](log, NewRepository(log, s, reg, opts...))
}

func NewTypedRepositoryFrom[T Aggregate](log *slog.Logger, r Repository) TypedRepository[T] {
	return &typedRepo[T]{
		r:     r,
		log:   log.With(slog.String("repo", fmt.Sprintf("%T", *new(T)))),
		sched: perkey.New[string](),
	}
}

func (t *typedRepo[T]) New() T { return t.NewWithID("") }

func (t *typedRepo[T]) NewWithID(id string) T {
	var a T
	rt := reflect.TypeOf((*T)(nil)).Elem()
	if rt.Kind() == reflect.Pointer {
		a = reflect.New(rt.Elem()).Interface().(T)
	} else {
		a = *new(T)
	}
	a.SetID(id)
	return a
}

func (t *typedRepo[T]) Load(ctx context.Context, a T, opts ...LoadOption) error {
	return t.r.Load(ctx, a, opts...)
}

func (t *typedRepo[T]) Create(ctx context.Context, aggID string) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = a.Create(aggID); err != nil {
		return a, err
	}
	if err = t.Save(ctx, a); err != nil {
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) GetOrCreate(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	a, err = t.GetByID(ctx, aggID, opts...)
	if err != nil {
		if errors.Is(err, ErrAggregateNotFound) {
			return t.Create(ctx, aggID)
		}
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) GetByID(ctx context.Context, aggID string, opts ...LoadOption) (a T, err error) {
	if aggID == "" {
		return a, errors.New("aggregate id is empty")
	}
	a = t.NewWithID(aggID)
	if err = t.r.Load(ctx, a, opts...); err != nil {
		return a, err
	}
	return a, nil
}

func (t *typedRepo[T]) Save(ctx context.Context, agg T, opts ...SaveOption) error {
	return t.r.Save(ctx, agg, opts...)
}

func (t *typedRepo[T]) WithTransaction(ctx context.Context, aggID string, fn func(a T) error) error {
	return t.sched.DoContext(ctx, aggID, func() error {
		a, err := t.GetByID(ctx, aggID)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		return t.Save(ctx, a)
	})
}

func (t *typedRepo[T]) GetAggType() string {
	a := t.New()
	return a.GetAggType()
}
