package domain

import (
	"time"

	"github.com/google/uuid"
)

// Message is one entry of a room's append-only log. The timestamp is always
// assigned by the server; client-supplied timestamps are never trusted.
type Message struct {
	ID     uuid.UUID
	Room   RoomID
	Sender string
	Text   string
	At     time.Time
}
