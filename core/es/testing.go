package es

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

// === Helpers ===

// TestingEnv wires a store, snapshotter, registry and repository for
// tests. Aggregates passed via WithAggregates get their events
// registered up front.
type TestingEnv struct {
	t           *testing.T
	log         *slog.Logger
	store       EventStore
	snapshotter Snapshotter
	registry    *EventRegistry
	repo        Repository
}

type (
	envOpts struct {
		log         *slog.Logger
		store       EventStore
		snapshotter Snapshotter
		aggregates  []Aggregate
		repoOpts    []RepositoryOption
	}

	EnvOption interface{ applyToEnv(*envOpts) }

	aggregatesOption struct{ aggs []Aggregate }
	storeOption      struct{ s EventStore }
	repoOptsOption   struct{ opts []RepositoryOption }
)

func (o aggregatesOption) applyToEnv(opts *envOpts) { opts.aggregates = o.aggs }
func (o storeOption) applyToEnv(opts *envOpts)      { opts.store = o.s }
func (o repoOptsOption) applyToEnv(opts *envOpts)   { opts.repoOpts = o.opts }
func (o LogOption) applyToEnv(opts *envOpts)        { opts.log = o.l }
func (o SnapshotterOption) applyToEnv(opts *envOpts) {
	opts.snapshotter = o.v
}

// WithAggregates registers each aggregate's events with the env registry.
func WithAggregates(aggs ...Aggregate) EnvOption { return aggregatesOption{aggs} }

// WithStore overrides the default in-memory event store.
func WithStore(s EventStore) EnvOption { return storeOption{s} }

// WithRepositoryOptions forwards options to the env repository.
func WithRepositoryOptions(opts ...RepositoryOption) EnvOption { return repoOptsOption{opts} }

func StartTestEnv(t *testing.T, opts ...EnvOption) *TestingEnv {
	options := envOpts{
		log:         slog.Default(),
		store:       NewInMemoryStore(),
		snapshotter: NewInMemorySnapshotter(),
	}
	for _, opt := range opts {
		opt.applyToEnv(&options)
	}

	registry := NewRegistry()
	RegisterEventFor[AggregateCreatedEvent](registry)
	for _, a := range options.aggregates {
		a.Register(registry)
	}

	repoOpts := append(
		[]RepositoryOption{WithSnapshotter(options.snapshotter)},
		options.repoOpts...,
	)

	return &TestingEnv{
		t:           t,
		log:         options.log,
		store:       options.store,
		snapshotter: options.snapshotter,
		registry:    registry,
		repo:        NewRepository(options.log, options.store, registry, repoOpts...),
	}
}

func (e *TestingEnv) Store() EventStore        { return e.store }
func (e *TestingEnv) Snapshotter() Snapshotter { return e.snapshotter }
func (e *TestingEnv) Registry() *EventRegistry { return e.registry }
func (e *TestingEnv) Repository() Repository   { return e.repo }

func (e *TestingEnv) Assert() *TestingEnvAssert {
	return &TestingEnvAssert{env: e}
}

type TestingEnvAssert struct {
	env *TestingEnv
}

func (t *TestingEnvAssert) Append(
	ctx context.Context,
	expect Version,
	streamType string,
	streamID string,
	events ...any,
) *AppendResult {
	res, err := AppendEvents(ctx, t.env.store, streamType, streamID, expect, Metadata{}, events...)
	require.NoError(t.env.t, err)
	return res
}
