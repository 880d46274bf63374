package es

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

var (
	ErrStoreNoEvents       = errors.New("no events to store")
	ErrStreamNotFound      = errors.New("stream not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
)

// ConcurrencyError reports a failed optimistic concurrency check on
// append. Callers re-read the stream and retry.
type ConcurrencyError struct {
	StreamID string
	Expected Version
	Actual   Version
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf(
		"concurrency conflict on stream %s: expected version %d, actual %d",
		e.StreamID, e.Expected, e.Actual,
	)
}

func (e *ConcurrencyError) Unwrap() error { return ErrConcurrencyConflict }

type (
	startVersionOption valueOption[Version]
	endVersionOption   valueOption[Version]

	storeLoadOptions struct {
		fromVersion Version // exclusive
		toVersion   Version // inclusive, 0 = no bound
	}

	StoreLoadOption interface {
		applyToStoreLoadOptions(*storeLoadOptions)
	}
)

func (o startVersionOption) applyToStoreLoadOptions(opts *storeLoadOptions) { opts.fromVersion = o.v }
func (o endVersionOption) applyToStoreLoadOptions(opts *storeLoadOptions)   { opts.toVersion = o.v }

// WithFromVersion limits a load to events with version > v.
func WithFromVersion(v Version) StoreLoadOption { return startVersionOption{v} }

// WithToVersion limits a load to events with version <= v.
func WithToVersion(v Version) StoreLoadOption { return endVersionOption{v} }

func newStoreLoadOptions(opts ...StoreLoadOption) storeLoadOptions {
	options := storeLoadOptions{}
	for _, opt := range opts {
		opt.applyToStoreLoadOptions(&options)
	}
	return options
}

type (
	streamTypeOption valueOption[string]
	fromTimeOption   valueOption[time.Time]
	toTimeOption     valueOption[time.Time]
	afterSeqOption   valueOption[uint64]

	storeScanOptions struct {
		streamType string
		fromTime   time.Time
		toTime     time.Time
		afterSeq   uint64
	}

	StoreScanOption interface {
		applyToStoreScanOptions(*storeScanOptions)
	}
)

func (o streamTypeOption) applyToStoreScanOptions(opts *storeScanOptions) { opts.streamType = o.v }
func (o fromTimeOption) applyToStoreScanOptions(opts *storeScanOptions)   { opts.fromTime = o.v }
func (o toTimeOption) applyToStoreScanOptions(opts *storeScanOptions)     { opts.toTime = o.v }
func (o afterSeqOption) applyToStoreScanOptions(opts *storeScanOptions)   { opts.afterSeq = o.v }

// WithStreamType limits a scan to streams of the given type.
func WithStreamType(streamType string) StoreScanOption { return streamTypeOption{streamType} }

// WithFromTime limits a scan to events that occurred at or after t.
func WithFromTime(t time.Time) StoreScanOption { return fromTimeOption{t} }

// WithToTime limits a scan to events that occurred at or before t.
func WithToTime(t time.Time) StoreScanOption { return toTimeOption{t} }

// WithAfterSeq limits a scan to events with a global sequence > seq.
func WithAfterSeq(seq uint64) StoreScanOption { return afterSeqOption{seq} }

func newStoreScanOptions(opts ...StoreScanOption) storeScanOptions {
	options := storeScanOptions{}
	for _, opt := range opts {
		opt.applyToStoreScanOptions(&options)
	}
	return options
}

type (
	// AppendResult reports where an append landed in the store.
	AppendResult struct {
		LastSeq     uint64
		LastVersion Version
	}

	// EventStore is an append-only, per-stream event log with optimistic
	// concurrency. Within a stream, versions are strictly increasing and
	// gapless; across streams only the global sequence orders events.
	EventStore interface {
		// Append atomically appends events to a stream. When expected is
		// not AnyVersion it must equal the stream's current version, or
		// the append fails with a ConcurrencyError and nothing is written.
		Append(ctx context.Context, streamType, streamID string, expected Version, events []Envelope) (*AppendResult, error)

		// Load returns a stream's events in version order. It fails with
		// ErrStreamNotFound when the stream never existed or was deleted.
		Load(ctx context.Context, streamType, streamID string, opts ...StoreLoadOption) ([]Envelope, error)

		// LoadAll scans events across streams in global sequence order.
		// Soft-deleted streams are excluded.
		LoadAll(ctx context.Context, opts ...StoreScanOption) ([]Envelope, error)

		// StreamExists reports whether a stream exists and is not deleted.
		StreamExists(ctx context.Context, streamType, streamID string) (bool, error)

		// StreamVersion returns the stream's current version.
		StreamVersion(ctx context.Context, streamType, streamID string) (Version, error)

		// DeleteStream soft-deletes a stream. Its history becomes
		// permanently inaccessible through Load, LoadAll and Append.
		DeleteStream(ctx context.Context, streamType, streamID string) error
	}
)

// AppendEvents wraps raw events in envelopes and appends them in one
// call. Versions are assigned contiguously after expect; when expect is
// AnyVersion the store resolves the current version itself.
func AppendEvents(
	ctx context.Context,
	store EventStore,
	streamType string,
	streamID string,
	expect Version,
	meta Metadata,
	events ...any,
) (*AppendResult, error) {
	if len(events) == 0 {
		return nil, ErrStoreNoEvents
	}
	envelopes := make([]Envelope, 0, len(events))
	for _, ev := range events {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, Envelope{
			ID:            gonanoid.Must(),
			Type:          getEventTypeOf(ev),
			SchemaVersion: getEventSchemaVersionOf(ev),
			StreamID:      streamID,
			StreamType:    streamType,
			Data:          data,
			OccurredAt:    time.Now(),
			Metadata:      meta,
		})
	}
	return store.Append(ctx, streamType, streamID, expect, envelopes)
}

type valueOption[T any] struct{ v T }
