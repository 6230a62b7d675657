// Package ws is the realtime transport: it upgrades HTTP connections,
// speaks the JSON frame protocol, and bridges connections into the room
// engine through the service layer and the sink registry.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/errors"
	"roomhub/services"
)

const requestTimeout = 5 * time.Second

// SessionHub tracks live websocket connections and their room bindings.
// Each connection is bound to at most one room at a time; all binding
// changes happen on the connection's own read loop.
type SessionHub struct {
	mu             sync.Mutex
	log            *slog.Logger
	service        services.IRoomService
	registry       contract.IRegistry
	clients        map[string]*Client
	upgrader       websocket.Upgrader
	sendBuffer     int
	maxMessageSize int64
}

func NewSessionHub(log *slog.Logger, service services.IRoomService, registry contract.IRegistry,
	sendBuffer int, maxMessageSize int64) *SessionHub {
	return &SessionHub{
		log:      log,
		service:  service,
		registry: registry,
		clients:  make(map[string]*Client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		sendBuffer:     sendBuffer,
		maxMessageSize: maxMessageSize,
	}
}

func (h *SessionHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := newClient(uuid.NewString(), h, conn, h.sendBuffer, h.log)
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
	h.log.Info("connection opened", "conn_id", c.id)

	go c.writePump()
	c.readPump()
}

// ConnectionCount reports the number of live connections.
func (h *SessionHub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *SessionHub) handleFrame(c *Client, raw []byte) {
	var frame clientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.sendError("malformed frame")
		return
	}

	switch frame.Action {
	case actionJoin:
		h.handleJoin(c, frame)
	case actionLeave:
		h.handleLeave(c)
	case actionMessage:
		h.handleMessage(c, frame)
	case actionTyping:
		h.handleTyping(c, frame)
	default:
		c.sendError("unknown action")
	}
}

// handleJoin binds the connection to a room. The sink is subscribed before
// the join command is dispatched so the connection cannot miss events
// emitted between the roster change and its subscription.
func (h *SessionHub) handleJoin(c *Client, frame clientFrame) {
	if c.joined && string(c.roomID) != frame.RoomID {
		c.sendError(errors.ErrAlreadyJoined.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	roomID := domain.RoomID(frame.RoomID)
	// On a rejoin the connection already holds a live subscription; a failed
	// attempt must not tear that one down.
	rebind := c.joined && c.roomID == roomID
	h.registry.Subscribe(c.id, roomID, newConnSink(c))

	res, err := h.service.JoinRoom(ctx, services.JoinRoomRequest{
		RoomID:      frame.RoomID,
		DisplayName: frame.DisplayName,
		Origin:      c.id,
	})
	if err != nil {
		if !rebind {
			h.registry.Unsubscribe(c.id, roomID)
		}
		c.sendError(err.Error())
		return
	}

	history, err := h.service.GetHistory(ctx, frame.RoomID)
	if err != nil {
		h.log.Warn("history load failed on join", "room_id", frame.RoomID, "error", err)
	}

	c.roomID = roomID
	c.displayName = frame.DisplayName
	c.joined = true

	c.sendFrame(joinedFrame{
		Type:          frameJoined,
		Room:          toRoomPayload(res.Room),
		Members:       domainMemberPayloads(res.Members),
		History:       toMessagePayloads(history),
		AlreadyMember: res.AlreadyMember,
	})
	h.log.Info("connection joined room", "conn_id", c.id, "room_id", roomID, "display_name", frame.DisplayName)
}

// handleLeave releases the binding but keeps the connection open, so the
// client can join another room on the same socket.
func (h *SessionHub) handleLeave(c *Client) {
	if !c.joined {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	h.registry.Unsubscribe(c.id, c.roomID)
	if err := h.service.LeaveRoom(ctx, services.LeaveRoomRequest{
		RoomID:      string(c.roomID),
		DisplayName: c.displayName,
		Origin:      c.id,
	}); err != nil {
		h.log.Warn("leave failed", "conn_id", c.id, "room_id", c.roomID, "error", err)
	}

	c.roomID = ""
	c.displayName = ""
	c.joined = false
}

func (h *SessionHub) handleMessage(c *Client, frame clientFrame) {
	if !c.joined {
		c.sendError(errors.ErrNotJoined.Error())
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if _, err := h.service.PostMessage(ctx, services.PostMessageRequest{
		RoomID: string(c.roomID),
		Sender: c.displayName,
		Text:   frame.Text,
		Origin: c.id,
	}); err != nil {
		c.sendError(err.Error())
	}
}

func (h *SessionHub) handleTyping(c *Client, frame clientFrame) {
	if !c.joined {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	if err := h.service.SetTyping(ctx, services.SetTypingRequest{
		RoomID:      string(c.roomID),
		DisplayName: c.displayName,
		IsTyping:    frame.IsTyping,
		Origin:      c.id,
	}); err != nil {
		h.log.Debug("typing update failed", "conn_id", c.id, "error", err)
	}
}

// disconnect runs once per connection, from its read loop's exit path. The
// sink is unsubscribed before the roster mutation so no event can be routed
// toward a connection already known dead.
func (h *SessionHub) disconnect(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.id)
	h.mu.Unlock()

	if c.joined {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		h.registry.Unsubscribe(c.id, c.roomID)
		if err := h.service.LeaveRoom(ctx, services.LeaveRoomRequest{
			RoomID:      string(c.roomID),
			DisplayName: c.displayName,
			Origin:      c.id,
		}); err != nil {
			h.log.Warn("leave on disconnect failed", "conn_id", c.id, "room_id", c.roomID, "error", err)
		}
	}

	close(c.done)
	h.log.Info("connection closed", "conn_id", c.id)
}

func (c *Client) sendError(message string) {
	c.sendFrame(errorFrame{Type: frameError, Error: message})
}

func (c *Client) sendFrame(frame any) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("frame marshal failed", "error", err)
		return
	}
	c.enqueue(payload)
}
