// Package es provides the event-sourced persistence core: an
// append-only event store with optimistic concurrency, snapshotting,
// aggregate rehydration and event replay.
//
// # Core Components
//
// Aggregate: the domain object that encapsulates business logic and
// state changes. Events are raised within aggregates and applied to
// update internal state. Use [BaseAggregate] as an embeddable helper
// that tracks version and uncommitted events.
//
//	type Order struct {
//	    es.BaseAggregate
//	    Status string
//	}
//
//	func (o *Order) Confirm() error {
//	    return es.RaiseAndApply(o, &OrderConfirmed{})
//	}
//
// EventStore: the persistence layer for events. [EventStore.Load]
// retrieves one stream, [EventStore.Append] persists new events under
// an optimistic version check, and [EventStore.LoadAll] scans across
// streams for projections and replay. [NewInMemoryStore] is the
// reference adapter; durable backends implement the same interface.
//
// Repository: the application-level interface for working with
// aggregates. It rehydrates by replaying events (optionally from a
// snapshot) and persists uncommitted events. Use [NewTypedRepository]
// for type-safe operations:
//
//	repo := es.NewTypedRepository[*Order](log, store, registry)
//	order, err := repo.GetByID(ctx, "order-1")
//	order.Confirm()
//	repo.Save(ctx, order)
//
// Replayer: feeds historical events back through an injected
// [Publisher] for read model rebuilds and migrations.
//
// # Event Registration
//
// Events must be registered with an [EventRegistry] before they can be
// decoded; decoding dispatches on the persisted type tag:
//
//	registry := es.NewRegistry()
//	es.RegisterEvents(registry, es.Event[OrderCreated](), es.Event[OrderConfirmed]())
//
// # Snapshots
//
// Snapshots capture aggregate state every [DefaultSnapshotFrequency]
// events and shortcut replay on load. They are purely an optimization:
// a repository without a snapshotter returns identical aggregates,
// just slower. Implement [Snapshottable] for custom serialization;
// JSON marshaling is the fallback.
//
// # Concurrency Control
//
// Saving checks the aggregate's loaded [Version] against the store.
// When another writer moved the stream on, the save fails with a
// [ConcurrencyError] (matching [ErrConcurrencyConflict]); callers
// re-read and retry. [TypedRepository.WithTransaction] serializes
// in-process access per aggregate ID.
package es
