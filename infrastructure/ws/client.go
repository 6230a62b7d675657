package ws

import (
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"roomhub/domain"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Client is one upgraded websocket connection. Its binding (roomID,
// displayName) is only ever touched from the connection's own read loop,
// so it needs no lock.
//
// done signals teardown instead of closing send: the fan-out may hold a
// snapshot of this client's sink while the connection disconnects, and a
// send on a closed channel would panic the fan-out worker. send is never
// closed.
type Client struct {
	id   string
	hub  *SessionHub
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger

	roomID      domain.RoomID
	displayName string
	joined      bool
}

func newClient(id string, hub *SessionHub, conn *websocket.Conn, sendBuffer int, log *slog.Logger) *Client {
	return &Client{
		id:   id,
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  log.With("conn_id", id),
	}
}

// enqueue hands a frame to the write pump without blocking the caller. A
// full buffer means the peer is not draining; the frame is dropped.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		c.log.Debug("send buffer full, dropping frame")
		return false
	}
}

// readPump pulls frames off the wire and hands them to the hub. It owns all
// binding mutations for this connection. On any read error the connection
// is torn down.
func (c *Client) readPump() {
	defer c.hub.disconnect(c)

	c.conn.SetReadLimit(c.hub.maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("unexpected close", "error", err)
			}
			return
		}
		c.hub.handleFrame(c, raw)
	}
}

// writePump serializes all writes to the connection: queued frames plus
// keepalive pings. The done signal makes it send a close frame and exit.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case payload := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
