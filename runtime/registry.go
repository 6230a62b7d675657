package runtime

import (
	"sync"

	"roomhub/contract"
	"roomhub/domain"
)

type Set map[string]struct{}

// Registry tracks which live connections are subscribed to which room.
// It is the only bridge between the fan-out pipeline and transport-level
// delivery sinks.
type Registry struct {
	mu          sync.RWMutex
	Sessions    map[string]contract.EventSink // map connection -> sink
	RoomMembers map[domain.RoomID]Set         // map room -> connections
}

func NewRegistry() *Registry {
	return &Registry{
		Sessions:    make(map[string]contract.EventSink),
		RoomMembers: make(map[domain.RoomID]Set),
	}
}

// GetSinksForRoom retrieves all active delivery channels for one room.
// It performs a two-step lookup:
// 1. Identifies connection ids subscribed to the room via RoomMembers.
// 2. Resolves those ids into actual EventSinks using the Sessions map.
//
// Returns nil if the room has no subscribers.
func (r *Registry) GetSinksForRoom(roomID domain.RoomID) []contract.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members, ok := r.RoomMembers[roomID]
	if !ok {
		return nil
	}
	var subscribers []contract.Subscriber
	for connID := range members {
		if sink, exists := r.Sessions[connID]; exists {
			subscribers = append(subscribers, contract.Subscriber{ConnID: connID, Sink: sink})
		}
	}
	return subscribers
}

// Subscribe registers a connection's sink and assigns it to a room.
// If the room does not yet exist in the registry, it is initialized on
// the fly.
func (r *Registry) Subscribe(connID string, roomID domain.RoomID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Sessions[connID] = sink

	if _, ok := r.RoomMembers[roomID]; !ok {
		r.RoomMembers[roomID] = make(Set)
	}
	r.RoomMembers[roomID][connID] = struct{}{}
}

// Unsubscribe removes a connection from the registry and its room. It
// cleans up the session and leaves no empty sets behind in the room map,
// so an idle room costs nothing here.
func (r *Registry) Unsubscribe(connID string, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.Sessions, connID)

	if members, ok := r.RoomMembers[roomID]; ok {
		delete(members, connID)

		if len(members) == 0 {
			delete(r.RoomMembers, roomID)
		}
	}
}
