package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"roomhub/domain"
	"roomhub/domain/event"
	"roomhub/runtime"
	"roomhub/services"
)

// scriptedService answers the hub without a running engine and records the
// calls the hub makes.
type scriptedService struct {
	mu       sync.Mutex
	joins    []services.JoinRoomRequest
	leaves   []services.LeaveRoomRequest
	messages []services.PostMessageRequest
	typing   []services.SetTypingRequest
	joinErr  error
}

func (s *scriptedService) CreateRoom(context.Context, services.CreateRoomRequest) (domain.RoomSummary, error) {
	return domain.RoomSummary{}, nil
}

func (s *scriptedService) ListRooms(context.Context) ([]domain.RoomSummary, error) { return nil, nil }

func (s *scriptedService) GetRoom(context.Context, string) (domain.RoomSummary, error) {
	return domain.RoomSummary{}, nil
}

func (s *scriptedService) JoinRoom(_ context.Context, req services.JoinRoomRequest) (services.JoinRoomResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinErr != nil {
		return services.JoinRoomResult{}, s.joinErr
	}
	s.joins = append(s.joins, req)
	return services.JoinRoomResult{
		Room: domain.RoomSummary{ID: domain.RoomID(req.RoomID), Name: "gophers", MemberCount: 2},
		Members: []domain.Member{
			{DisplayName: "alice", JoinedAt: time.Now().UTC()},
			{DisplayName: req.DisplayName, JoinedAt: time.Now().UTC()},
		},
	}, nil
}

func (s *scriptedService) LeaveRoom(_ context.Context, req services.LeaveRoomRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leaves = append(s.leaves, req)
	return nil
}

func (s *scriptedService) PostMessage(_ context.Context, req services.PostMessageRequest) (domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, req)
	return domain.Message{ID: uuid.New(), Room: domain.RoomID(req.RoomID), Sender: req.Sender, Text: req.Text}, nil
}

func (s *scriptedService) GetHistory(context.Context, string) ([]domain.Message, error) {
	return nil, nil
}

func (s *scriptedService) SetTyping(_ context.Context, req services.SetTypingRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.typing = append(s.typing, req)
	return nil
}

type wsHarness struct {
	service  *scriptedService
	registry *runtime.Registry
	conn     *websocket.Conn
}

func dialHub(t *testing.T) *wsHarness {
	t.Helper()
	service := &scriptedService{}
	registry := runtime.NewRegistry()
	hub := NewSessionHub(slog.Default(), service, registry, 16, 4096)

	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &wsHarness{service: service, registry: registry, conn: conn}
}

func (h *wsHarness) send(t *testing.T, frame clientFrame) {
	t.Helper()
	require.NoError(t, h.conn.WriteJSON(frame))
}

func (h *wsHarness) read(t *testing.T) map[string]json.RawMessage {
	t.Helper()
	require.NoError(t, h.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame map[string]json.RawMessage
	require.NoError(t, h.conn.ReadJSON(&frame))
	return frame
}

func frameType(t *testing.T, frame map[string]json.RawMessage) string {
	t.Helper()
	var kind string
	require.NoError(t, json.Unmarshal(frame["type"], &kind))
	return kind
}

func TestSessionHub_JoinFlow(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)
	roomID := uuid.NewString()

	// When the client joins a room
	h.send(t, clientFrame{Action: actionJoin, RoomID: roomID, DisplayName: "bob"})

	// Then it receives the joined snapshot
	frame := h.read(t)
	req.Equal(frameJoined, frameType(t, frame))

	var members []memberPayload
	req.NoError(json.Unmarshal(frame["members"], &members))
	req.Len(members, 2)

	// And its sink is subscribed to the room
	req.Eventually(func() bool {
		return len(h.registry.GetSinksForRoom(domain.RoomID(roomID))) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestSessionHub_JoinSecondRoomIsRejected(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)

	h.send(t, clientFrame{Action: actionJoin, RoomID: uuid.NewString(), DisplayName: "bob"})
	req.Equal(frameJoined, frameType(t, h.read(t)))

	// When the same connection tries to join another room
	h.send(t, clientFrame{Action: actionJoin, RoomID: uuid.NewString(), DisplayName: "bob"})

	// Then the hub refuses and keeps the original binding
	frame := h.read(t)
	req.Equal(frameError, frameType(t, frame))
}

func TestSessionHub_MessageRequiresJoin(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)

	// When a message is sent before any join
	h.send(t, clientFrame{Action: actionMessage, Text: "hello"})

	// Then an error frame comes back and the service is never called
	frame := h.read(t)
	req.Equal(frameError, frameType(t, frame))
	h.service.mu.Lock()
	defer h.service.mu.Unlock()
	req.Empty(h.service.messages)
}

func TestSessionHub_MessageUsesBoundIdentity(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)
	roomID := uuid.NewString()

	h.send(t, clientFrame{Action: actionJoin, RoomID: roomID, DisplayName: "bob"})
	req.Equal(frameJoined, frameType(t, h.read(t)))

	// When the client sends a message
	h.send(t, clientFrame{Action: actionMessage, Text: "hello"})

	// Then the post carries the binding's room and display name
	req.Eventually(func() bool {
		h.service.mu.Lock()
		defer h.service.mu.Unlock()
		return len(h.service.messages) == 1
	}, time.Second, 10*time.Millisecond)

	h.service.mu.Lock()
	defer h.service.mu.Unlock()
	req.Equal(roomID, h.service.messages[0].RoomID)
	req.Equal("bob", h.service.messages[0].Sender)
}

func TestSessionHub_DisconnectLeavesRoom(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)
	roomID := uuid.NewString()

	h.send(t, clientFrame{Action: actionJoin, RoomID: roomID, DisplayName: "bob"})
	req.Equal(frameJoined, frameType(t, h.read(t)))

	// When the connection drops
	req.NoError(h.conn.Close())

	// Then the hub unsubscribes the sink and releases the membership
	req.Eventually(func() bool {
		h.service.mu.Lock()
		defer h.service.mu.Unlock()
		return len(h.service.leaves) == 1
	}, time.Second, 10*time.Millisecond)
	req.Empty(h.registry.GetSinksForRoom(domain.RoomID(roomID)))
}

func TestConnSink_DisconnectDuringDelivery(t *testing.T) {
	req := require.New(t)
	hub := NewSessionHub(slog.Default(), &scriptedService{}, runtime.NewRegistry(), 0, 4096)

	// Given a client with no reader and no buffer, so delivery must wait
	c := newClient(uuid.NewString(), hub, nil, 0, slog.Default())
	hub.clients[c.id] = c
	sink := newConnSink(c)

	// When the connection is torn down while the fan-out holds its sink
	go func() {
		time.Sleep(20 * time.Millisecond)
		hub.disconnect(c)
	}()

	err := sink.Consume(context.Background(), event.MessageReceived{Room: "r1", ID: uuid.New()})

	// Then delivery fails as an ordinary error, it never panics
	req.Error(err)

	// And later deliveries to the dead connection fail immediately too
	err = sink.Consume(context.Background(), event.TypingChanged{Room: "r1"})
	req.Error(err)
}

func TestSessionHub_FailedRejoinKeepsSubscription(t *testing.T) {
	req := require.New(t)
	h := dialHub(t)
	roomID := uuid.NewString()

	// Given a connection joined to a room
	h.send(t, clientFrame{Action: actionJoin, RoomID: roomID, DisplayName: "bob"})
	req.Equal(frameJoined, frameType(t, h.read(t)))
	req.Eventually(func() bool {
		return len(h.registry.GetSinksForRoom(domain.RoomID(roomID))) == 1
	}, time.Second, 10*time.Millisecond)

	// When a rejoin to the same room fails
	h.service.mu.Lock()
	h.service.joinErr = context.DeadlineExceeded
	h.service.mu.Unlock()
	h.send(t, clientFrame{Action: actionJoin, RoomID: roomID, DisplayName: "bob"})
	req.Equal(frameError, frameType(t, h.read(t)))

	// Then the subscription the connection already held survives
	req.Len(h.registry.GetSinksForRoom(domain.RoomID(roomID)), 1)
}

func TestEncodeEvent_FrameTypes(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	cases := map[string]event.DomainEvent{
		frameMemberJoined: event.MemberJoined{Room: "r1", DisplayName: "bob", At: now},
		frameMemberLeft:   event.MemberLeft{Room: "r1", DisplayName: "bob", At: now},
		frameMessage:      event.MessageReceived{Room: "r1", ID: uuid.New(), Sender: "bob", Text: "hi", At: now},
		frameTyping:       event.TypingChanged{Room: "r1", DisplayName: "bob", IsTyping: true},
	}
	for want, evt := range cases {
		payload, err := encodeEvent(evt)
		req.NoError(err)

		var frame struct {
			Type string `json:"type"`
		}
		req.NoError(json.Unmarshal(payload, &frame))
		req.Equal(want, frame.Type)
	}
}
