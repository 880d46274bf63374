package es

import "context"

// Publisher receives events during replays. It is an explicitly
// constructed collaborator injected into whatever consumes the replayed
// stream; there is no process-wide bus.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(ctx context.Context, env Envelope) error

func (f PublisherFunc) Publish(ctx context.Context, env Envelope) error { return f(ctx, env) }

// ChannelPublisher forwards events to a channel, respecting context
// cancellation while the receiver is slow.
type ChannelPublisher struct {
	ch chan Envelope
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	return &ChannelPublisher{ch: make(chan Envelope, buffer)}
}

func (p *ChannelPublisher) Chan() <-chan Envelope { return p.ch }

func (p *ChannelPublisher) Publish(ctx context.Context, env Envelope) error {
	select {
	case p.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the underlying channel. Publish must not be called after.
func (p *ChannelPublisher) Close() { close(p.ch) }

var _ Publisher = (*ChannelPublisher)(nil)
