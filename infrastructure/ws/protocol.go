package ws

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	"roomhub/domain"
	"roomhub/domain/event"
)

// Inbound actions a connection may send after upgrade.
const (
	actionJoin    = "join"
	actionLeave   = "leave"
	actionMessage = "message"
	actionTyping  = "typing"
)

// Outbound frame types.
const (
	frameJoined       = "joined"
	frameMemberJoined = "member_joined"
	frameMemberLeft   = "member_left"
	frameMessage      = "message"
	frameTyping       = "typing"
	frameError        = "error"
)

type clientFrame struct {
	Action      string `json:"action"`
	RoomID      string `json:"room_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Text        string `json:"text,omitempty"`
	IsTyping    bool   `json:"is_typing,omitempty"`
}

type memberPayload struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type messagePayload struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type roomPayload struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	Participants int       `json:"participants"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type joinedFrame struct {
	Type          string           `json:"type"`
	Room          roomPayload      `json:"room"`
	Members       []memberPayload  `json:"members"`
	History       []messagePayload `json:"history"`
	AlreadyMember bool             `json:"already_in_room"`
}

type rosterFrame struct {
	Type        string          `json:"type"`
	RoomID      string          `json:"room_id"`
	DisplayName string          `json:"display_name"`
	Members     []memberPayload `json:"members"`
	At          time.Time       `json:"at"`
}

type messageFrame struct {
	Type   string         `json:"type"`
	RoomID string         `json:"room_id"`
	Body   messagePayload `json:"message"`
}

type typingFrame struct {
	Type        string `json:"type"`
	RoomID      string `json:"room_id"`
	DisplayName string `json:"display_name"`
	IsTyping    bool   `json:"is_typing"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// encodeEvent maps a domain event onto its wire frame.
func encodeEvent(e event.DomainEvent) ([]byte, error) {
	switch evt := e.(type) {
	case event.MemberJoined:
		return json.Marshal(rosterFrame{
			Type:        frameMemberJoined,
			RoomID:      evt.Room,
			DisplayName: evt.DisplayName,
			Members:     toMemberPayloads(evt.Members),
			At:          evt.At,
		})
	case event.MemberLeft:
		return json.Marshal(rosterFrame{
			Type:        frameMemberLeft,
			RoomID:      evt.Room,
			DisplayName: evt.DisplayName,
			Members:     toMemberPayloads(evt.Members),
			At:          evt.At,
		})
	case event.MessageReceived:
		return json.Marshal(messageFrame{
			Type:   frameMessage,
			RoomID: evt.Room,
			Body: messagePayload{
				ID:        evt.ID.String(),
				Sender:    evt.Sender,
				Text:      evt.Text,
				Timestamp: evt.At,
			},
		})
	case event.TypingChanged:
		return json.Marshal(typingFrame{
			Type:        frameTyping,
			RoomID:      evt.Room,
			DisplayName: evt.DisplayName,
			IsTyping:    evt.IsTyping,
		})
	}
	return nil, fmt.Errorf("no frame mapping for event %T", e)
}

func toMemberPayloads(members []event.Member) []memberPayload {
	return lo.Map(members, func(m event.Member, _ int) memberPayload {
		return memberPayload{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
	})
}

func toRoomPayload(s domain.RoomSummary) roomPayload {
	return roomPayload{
		ID:           string(s.ID),
		Name:         s.Name,
		Description:  s.Description,
		Category:     s.Category,
		Participants: s.MemberCount,
		CreatedBy:    s.CreatedBy,
		CreatedAt:    s.CreatedAt,
	}
}

func toMessagePayloads(messages []domain.Message) []messagePayload {
	return lo.Map(messages, func(m domain.Message, _ int) messagePayload {
		return messagePayload{ID: m.ID.String(), Sender: m.Sender, Text: m.Text, Timestamp: m.At}
	})
}

func domainMemberPayloads(members []domain.Member) []memberPayload {
	return lo.Map(members, func(m domain.Member, _ int) memberPayload {
		return memberPayload{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
	})
}
