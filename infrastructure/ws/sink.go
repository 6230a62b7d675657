package ws

import (
	"context"
	"fmt"

	"roomhub/contract"
	"roomhub/domain/event"
)

var _ contract.EventSink = (*connSink)(nil)

// connSink adapts one Client to the fan-out's EventSink. Delivery is
// best effort: a frame that cannot be queued before the fan-out's timeout
// is lost for this connection only.
type connSink struct {
	client *Client
}

func newConnSink(c *Client) *connSink {
	return &connSink{client: c}
}

func (s *connSink) Consume(ctx context.Context, e event.DomainEvent) error {
	payload, err := encodeEvent(e)
	if err != nil {
		return err
	}
	// The done branch covers the disconnect race: the fan-out may have
	// snapshotted this sink before the connection was torn down.
	select {
	case s.client.send <- payload:
		return nil
	case <-s.client.done:
		return fmt.Errorf("connection %s is closed", s.client.id)
	case <-ctx.Done():
		return fmt.Errorf("connection %s not draining: %w", s.client.id, ctx.Err())
	}
}
