package event

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is anything a room produces for fan-out to its subscribers.
type DomainEvent interface {
	RoomID() string
}

// Member mirrors the roster entry carried inside membership events.
type Member struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type MemberJoined struct {
	Room        string
	Origin      string
	DisplayName string
	Members     []Member
	At          time.Time
}

func (e MemberJoined) RoomID() string { return e.Room }

type MemberLeft struct {
	Room        string
	Origin      string
	DisplayName string
	Members     []Member
	At          time.Time
}

func (e MemberLeft) RoomID() string { return e.Room }

type MessageReceived struct {
	Room   string
	Origin string
	ID     uuid.UUID
	Sender string
	Text   string
	At     time.Time
}

func (e MessageReceived) RoomID() string { return e.Room }

type TypingChanged struct {
	Room        string
	Origin      string
	DisplayName string
	IsTyping    bool
}

func (e TypingChanged) RoomID() string { return e.Room }

// OriginConn returns the connection id that caused e, or "" when the
// mutation did not come from a live connection (HTTP call, timer expiry).
func OriginConn(e DomainEvent) string {
	switch evt := e.(type) {
	case MemberJoined:
		return evt.Origin
	case MemberLeft:
		return evt.Origin
	case MessageReceived:
		return evt.Origin
	case TypingChanged:
		return evt.Origin
	}
	return ""
}

// EchoedToOrigin reports whether e is delivered back to the connection that
// produced it. Messages are, so the sender reconciles against the
// server-assigned timestamp instead of a local echo. Roster and typing
// changes are not, the origin already knows.
func EchoedToOrigin(e DomainEvent) bool {
	_, ok := e.(MessageReceived)
	return ok
}
