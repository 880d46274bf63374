// Package projection implements the polling read-model engine: a
// manager that delivers stored events, in occurred-at order, to
// registered projections and tracks a per-projection watermark.
//
// Delivery is at-least-once on error paths: a failed event is retried
// on the next tick, so projections must tolerate redelivery. A
// projection only ever mutates its own read-model state.
package projection

import (
	"context"

	"github.com/codewandler/sourcing-go/core/es"
)

// Projection folds events into a read model. Implementations are
// registered with the Manager and must be pluggable without modifying
// it.
type Projection interface {
	// Name identifies the projection; it keys the watermark.
	Name() string
	// SupportedEvents lists the event types this projection consumes.
	SupportedEvents() []string
	// Handle folds one event into the read model. The decoded payload
	// is the registry-constructed typed event. Handle must be
	// idempotent with respect to redelivery.
	Handle(ctx context.Context, env es.Envelope, event any) error
	// Reset clears all read-model state before a rebuild.
	Reset(ctx context.Context) error
}
