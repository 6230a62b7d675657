package runtime

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/domain/event"
)

type Sink struct {
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Subscribe_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := uuid.NewString()
	roomID := domain.RoomID(uuid.NewString())
	sink := Sink{}

	// Given no connection exists
	// And no room exists
	req.Empty(registry.Sessions)
	req.Empty(registry.RoomMembers)

	// When a connection subscribes a room
	registry.Subscribe(connID, roomID, sink)

	// Then
	req.Len(registry.Sessions, 1)
	req.Equal(sink, registry.Sessions[connID])

	req.Len(registry.RoomMembers, 1)
	req.Contains(registry.RoomMembers[roomID], connID)

	subscribers := registry.GetSinksForRoom(roomID)
	req.Len(subscribers, 1)
	req.Contains(subscribers, contract.Subscriber{ConnID: connID, Sink: sink})
}

func TestRegistry_Subscribe_One_Room_Multiple_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID1 := uuid.NewString()
	connID2 := uuid.NewString()
	roomID := domain.RoomID(uuid.NewString())
	sink1 := Sink{}
	sink2 := Sink{}

	// When connections subscribe a room
	registry.Subscribe(connID1, roomID, sink1)
	registry.Subscribe(connID2, roomID, sink2)

	// Then
	req.Len(registry.Sessions, 2)
	req.Len(registry.RoomMembers[roomID], 2)

	subscribers := registry.GetSinksForRoom(roomID)
	req.Len(subscribers, 2)
	req.Contains(subscribers, contract.Subscriber{ConnID: connID1, Sink: sink1})
}

func TestRegistry_Unsubscribe_One_Room_One_Connection(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID := uuid.NewString()
	roomID := domain.RoomID(uuid.NewString())
	sink := Sink{}

	// Given a connection subscribed to a room
	registry.Subscribe(connID, roomID, sink)

	// When the connection unsubscribes
	registry.Unsubscribe(connID, roomID)

	// Then no connection is left
	// And the room doesn't exist anymore
	req.Empty(registry.Sessions)
	req.Empty(registry.RoomMembers)
	req.Empty(registry.GetSinksForRoom(roomID))
}

func TestRegistry_Unsubscribe_Keeps_Other_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connID1 := uuid.NewString()
	connID2 := uuid.NewString()
	roomID := domain.RoomID(uuid.NewString())

	// Given two connections subscribed to the same room
	registry.Subscribe(connID1, roomID, Sink{})
	registry.Subscribe(connID2, roomID, Sink{})

	// When one of them unsubscribes
	registry.Unsubscribe(connID1, roomID)

	// Then the other one still receives events
	subscribers := registry.GetSinksForRoom(roomID)
	req.Len(subscribers, 1)
	req.Equal(connID2, subscribers[0].ConnID)
}
