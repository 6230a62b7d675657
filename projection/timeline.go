// Package projection builds local timelines from observed events.
// Handles ordering and projections. Does not emit events or interact
// with delivery directly.
package projection

import (
	"context"
	"sync"

	"roomhub/domain"
	"roomhub/domain/event"
)

// Timeline keeps an in-memory, cross-room feed of delivered messages.
// Registered as a permanent sink, it observes every message the fanout
// ships, in delivery order.
type Timeline struct {
	mu       sync.Mutex
	messages []domain.Message
}

func NewTimeline() *Timeline {
	return &Timeline{}
}

func (t *Timeline) Consume(_ context.Context, e event.DomainEvent) error {
	evt, ok := e.(event.MessageReceived)
	if !ok {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, fromEvent(evt))
	return nil
}

// Messages returns a snapshot of the observed feed.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Message, len(t.messages))
	copy(out, t.messages)
	return out
}

func fromEvent(evt event.MessageReceived) domain.Message {
	return domain.Message{
		ID:     evt.ID,
		Room:   domain.RoomID(evt.Room),
		Sender: evt.Sender,
		Text:   evt.Text,
		At:     evt.At,
	}
}
