package workers

import (
	"context"
	"log/slog"
	"time"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/domain/event"
)

var _ contract.Worker = (*EventFanout)(nil)

// EventFanout broadcasts room events to the subscribers of that room plus
// the permanent sinks (projections, observability).
//
// It provides best-effort delivery with no retries: a dead or slow
// connection loses the event and nothing else happens. Because it consumes
// a single channel sequentially, subscribers of one room always observe
// events in the order the room's worker produced them.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry, events chan event.DomainEvent,
	permanentSinks []contract.EventSink, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		events:         events,
		permanentSinks: permanentSinks,
		sinkTimeout:    sinkTimeout,
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping event fanout")
			return ctx.Err()
		case evt, ok := <-w.events:
			if !ok {
				return nil
			}
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every sink that should see it. The origin
// connection is skipped for roster and typing changes; messages are echoed
// back so the sender reconciles against the server-assigned timestamp.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, evt)
	}

	origin := event.OriginConn(evt)
	for _, sub := range w.registry.GetSinksForRoom(domain.RoomID(evt.RoomID())) {
		if sub.ConnID == origin && !event.EchoedToOrigin(evt) {
			continue
		}
		w.consume(ctx, sub.Sink, evt)
	}
}

// consume pushes the event into one sink under a delivery timeout. A
// failure here means a dead connection; it is swallowed, never retried.
func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.log.Debug("event delivery failed", "room_id", evt.RoomID(), "error", err)
	}
}
