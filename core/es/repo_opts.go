package es

import (
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// IDGenerator is a function that generates unique IDs for events.
type IDGenerator func() string

// DefaultIDGenerator returns the default ID generator using nanoid.
func DefaultIDGenerator() IDGenerator {
	return func() string { return gonanoid.Must() }
}

type (
	repoOpts struct {
		snapshotter       Snapshotter
		snapshotFrequency Version
		idGenerator       IDGenerator
		metrics           ESMetrics
	}

	repoSaveOptions struct {
		snapshot           bool
		metadata           Metadata
		expectedVersion    Version
		expectedVersionSet bool
	}

	repoLoadOptions struct {
		snapshot bool
	}
)

type (
	RepositoryOption interface{ applyToRepository(*repoOpts) }
	SaveOption       interface{ applyToSaveOptions(*repoSaveOptions) }
	LoadOption       interface{ applyToLoadOptions(*repoLoadOptions) }
)

type (
	SnapshotterOption       valueOption[Snapshotter]
	SnapshotFrequencyOption valueOption[Version]
	RepoIDGeneratorOption   valueOption[IDGenerator]
	SnapshotOption          valueOption[bool]
	MetadataOption          valueOption[Metadata]
	ExpectedVersionOption   valueOption[Version]
)

// WithSnapshotter configures the snapshotter used for automatic and
// forced snapshots. Without one, the repository replays full history.
func WithSnapshotter(s Snapshotter) SnapshotterOption { return SnapshotterOption{v: s} }

// WithSnapshotFrequency sets how many events may accumulate before the
// repository creates a new snapshot on save. Zero disables automatic
// snapshots.
func WithSnapshotFrequency(frq Version) SnapshotFrequencyOption {
	return SnapshotFrequencyOption{v: frq}
}

// WithIDGenerator sets a custom ID generator for event envelope IDs.
func WithIDGenerator(gen IDGenerator) RepoIDGeneratorOption {
	return RepoIDGeneratorOption{v: gen}
}

// WithSnapshot forces (or suppresses) snapshot use for a single load or
// save, overriding the frequency-based default.
func WithSnapshot(enabled bool) SnapshotOption { return SnapshotOption{v: enabled} }

// WithMetadata attaches correlation metadata to every event appended by
// this save.
func WithMetadata(m Metadata) MetadataOption { return MetadataOption{v: m} }

// WithExpectedVersion overrides the optimistic concurrency check for a
// single save. Pass AnyVersion to skip the check entirely.
func WithExpectedVersion(v Version) ExpectedVersionOption { return ExpectedVersionOption{v: v} }

func (o SnapshotterOption) applyToRepository(opts *repoOpts)       { opts.snapshotter = o.v }
func (o SnapshotFrequencyOption) applyToRepository(opts *repoOpts) { opts.snapshotFrequency = o.v }
func (o RepoIDGeneratorOption) applyToRepository(opts *repoOpts)   { opts.idGenerator = o.v }
func (o ESMetricsOption) applyToRepository(opts *repoOpts)         { opts.metrics = o.m }

func (o SnapshotOption) applyToSaveOptions(opts *repoSaveOptions) { opts.snapshot = o.v }
func (o MetadataOption) applyToSaveOptions(opts *repoSaveOptions) { opts.metadata = o.v }
func (o ExpectedVersionOption) applyToSaveOptions(opts *repoSaveOptions) {
	opts.expectedVersion = o.v
	opts.expectedVersionSet = true
}

func (o SnapshotOption) applyToLoadOptions(opts *repoLoadOptions) { opts.snapshot = o.v }

func newRepoOpts(opts ...RepositoryOption) repoOpts {
	options := repoOpts{
		snapshotFrequency: DefaultSnapshotFrequency,
		idGenerator:       DefaultIDGenerator(),
		metrics:           NopESMetrics(),
	}
	for _, opt := range opts {
		opt.applyToRepository(&options)
	}
	return options
}

func newSaveOptions(opts ...SaveOption) repoSaveOptions {
	options := repoSaveOptions{}
	for _, opt := range opts {
		opt.applyToSaveOptions(&options)
	}
	return options
}

func newLoadOptions(opts ...LoadOption) repoLoadOptions {
	options := repoLoadOptions{snapshot: true}
	for _, opt := range opts {
		opt.applyToLoadOptions(&options)
	}
	return options
}
