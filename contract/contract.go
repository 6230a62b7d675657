package contract

import (
	"context"
	"reflect"

	"roomhub/domain"
	"roomhub/domain/event"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// Worker doesn't protect itself. It can be silly and focused; the
// supervisor handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker,
// used for logging and supervision without forcing naming into the
// Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// Subscriber pairs a live connection with its delivery sink so the fanout
// can skip the event's origin where the protocol calls for it.
type Subscriber struct {
	ConnID string
	Sink   EventSink
}

type IRegistry interface {
	GetSinksForRoom(roomID domain.RoomID) []Subscriber
	Subscribe(connID string, roomID domain.RoomID, sink EventSink)
	Unsubscribe(connID string, roomID domain.RoomID)
}
