// Package runtime handles command routing, event propagation, and the
// lifecycles of room workers. It orchestrates the system without containing
// business logic or domain rules.
package runtime

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/domain/event"
	"roomhub/repositories"
	"roomhub/runtime/workers"
)

type Orchestrator struct {
	mu             sync.Mutex
	log            *slog.Logger
	supervisor     contract.ISupervisor
	registry       contract.IRegistry
	rooms          *RoomRegistry
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewOrchestrator(log *slog.Logger, supervisor contract.ISupervisor, registry contract.IRegistry,
	store repositories.RoomStore, bufferSize int, sinkTimeout, typingExpiry time.Duration) *Orchestrator {
	events := make(chan event.DomainEvent, bufferSize)
	return &Orchestrator{
		log:         log,
		supervisor:  supervisor,
		registry:    registry,
		rooms:       NewRoomRegistry(log, store, supervisor, events, bufferSize, typingExpiry),
		events:      events,
		sinkTimeout: sinkTimeout,
	}
}

// AddSinks registers permanent sinks that observe every event of every
// room, regardless of subscriptions. Must be called before Start.
func (o *Orchestrator) AddSinks(sinks ...contract.EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.permanentSinks = append(o.permanentSinks, sinks...)
}

// CreateRoom persists a new room and makes it joinable.
func (o *Orchestrator) CreateRoom(name, description, category, creatorName string) (domain.RoomSummary, error) {
	return o.rooms.Create(name, description, category, creatorName)
}

func (o *Orchestrator) GetRoom(id domain.RoomID) (domain.RoomSummary, error) {
	return o.rooms.Summary(id)
}

func (o *Orchestrator) ListRooms() ([]domain.RoomSummary, error) {
	return o.rooms.List()
}

// Dispatch routes a command to its room's serialized mutation path.
func (o *Orchestrator) Dispatch(ctx context.Context, cmd domain.Command) error {
	return o.rooms.Dispatch(ctx, cmd)
}

// Subscribe attaches a connection's delivery sink to a room's event stream.
func (o *Orchestrator) Subscribe(connID string, roomID domain.RoomID, sink contract.EventSink) {
	o.registry.Subscribe(connID, roomID, sink)
}

// Unsubscribe detaches a connection. Done synchronously on disconnect so no
// event is ever routed toward a connection already known to be dead.
func (o *Orchestrator) Unsubscribe(connID string, roomID domain.RoomID) {
	o.registry.Unsubscribe(connID, roomID)
}

// Start wires the fan-out pipeline and runs the supervisor. It blocks until
// Stop is called or ctx is canceled, so it is usually run in its own
// goroutine.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	fanout := workers.NewEventFanout(o.log, o.registry, o.events, o.permanentSinks, o.sinkTimeout)
	o.supervisor.Add(fanout)
	o.mu.Unlock()

	o.rooms.Bind(ctx)

	o.log.Info("Starting orchestrator and all supervised workers")
	o.supervisor.Run(ctx)
	return nil
}

// Stop initiates a graceful shutdown: workers observe the canceled context
// and drain.
func (o *Orchestrator) Stop() {
	o.log.Info("Requesting orchestrator shutdown")
	o.supervisor.Stop()
}
