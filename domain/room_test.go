package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"roomhub/domain/event"
)

func TestRoom_NewRoom_SeedsCreatorAndDefaultCategory(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()

	// When a room is created without an explicit category
	room := NewRoom("r1", "gophers", "a place", "", "alice", now)

	// Then the creator is the first member
	req.Len(room.Members(), 1)
	req.Equal("alice", room.Members()[0].DisplayName)
	// And the category falls back to General
	req.Equal(CategoryGeneral, room.Category)
	// And creation emits nothing
	req.Empty(room.FlushEvents())
}

func TestRoom_Join_EmitsMemberJoined(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", CategoryGaming, "alice", now)

	// When a second member joins
	res := room.Join("bob", "conn-bob", now.Add(time.Second))

	// Then the roster grows and the join is broadcast
	req.False(res.AlreadyMember)
	req.Len(res.Members, 2)

	events := room.FlushEvents()
	req.Len(events, 1)
	joined, ok := events[0].(event.MemberJoined)
	req.True(ok)
	req.Equal("bob", joined.DisplayName)
	req.Equal("conn-bob", joined.Origin)
	req.Len(joined.Members, 2)
}

func TestRoom_Join_IsIdempotentAndCaseInsensitive(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", "", "alice", now)
	room.Join("bob", "c1", now)
	room.FlushEvents()

	// When the same member joins again with different casing
	res := room.Join("BOB", "c2", now.Add(time.Minute))

	// Then nothing changes and nothing is emitted
	req.True(res.AlreadyMember)
	req.Len(res.Members, 2)
	req.Empty(room.FlushEvents())
}

func TestRoom_Leave_UnknownMemberIsNoop(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", "", "alice", now)
	room.FlushEvents()

	// When someone who never joined leaves
	left := room.Leave("mallory", "c9", now)

	// Then the roster is untouched and nothing is emitted
	req.False(left)
	req.Len(room.Members(), 1)
	req.Empty(room.FlushEvents())
}

func TestRoom_AppendMessage_EmitsMessageReceived(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", "", "alice", now)
	room.FlushEvents()

	msg := Message{ID: uuid.New(), Room: "r1", Sender: "alice", Text: "hello", At: now}

	// When a message is appended
	room.AppendMessage(msg, "conn-alice")

	// Then it lands in the log and in the outbox
	req.Len(room.History(), 1)
	events := room.FlushEvents()
	req.Len(events, 1)
	received, ok := events[0].(event.MessageReceived)
	req.True(ok)
	req.Equal(msg.ID, received.ID)
	req.Equal("hello", received.Text)
}

func TestRoom_SetTyping_GenerationsGrowPerSignal(t *testing.T) {
	req := require.New(t)
	room := NewRoom("r1", "gophers", "", "", "alice", time.Now().UTC())
	room.FlushEvents()

	// When the same member signals typing twice
	gen1, changed1 := room.SetTyping("alice", true, "c1")
	gen2, changed2 := room.SetTyping("alice", true, "c1")

	// Then each signal arms a newer generation
	req.True(changed1)
	req.True(changed2)
	req.Greater(gen2, gen1)
}

func TestRoom_ExpireTyping_StaleGenerationIsNoop(t *testing.T) {
	req := require.New(t)
	room := NewRoom("r1", "gophers", "", "", "alice", time.Now().UTC())
	room.FlushEvents()

	gen1, _ := room.SetTyping("alice", true, "c1")
	// Member typed again, re-arming with a newer generation
	room.SetTyping("alice", true, "c1")
	room.FlushEvents()

	// When the old timer fires with its stale generation
	expired := room.ExpireTyping("alice", gen1)

	// Then the indicator stays on and nothing is emitted
	req.False(expired)
	req.Empty(room.FlushEvents())
}

func TestRoom_ExpireTyping_AfterExplicitStopDoesNotDoubleEmit(t *testing.T) {
	req := require.New(t)
	room := NewRoom("r1", "gophers", "", "", "alice", time.Now().UTC())
	room.FlushEvents()

	gen, _ := room.SetTyping("alice", true, "c1")
	// Member explicitly stops before the quiet period elapses
	_, changed := room.SetTyping("alice", false, "c1")
	req.True(changed)
	room.FlushEvents()

	// When the armed timer fires anyway
	expired := room.ExpireTyping("alice", gen)

	// Then only the first stop won
	req.False(expired)
	req.Empty(room.FlushEvents())
}

func TestRoom_Leave_ClearsTypingIndicator(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", "", "alice", now)
	room.Join("bob", "c1", now)
	gen, _ := room.SetTyping("bob", true, "c1")
	room.FlushEvents()

	// When the typing member leaves
	left := room.Leave("bob", "c1", now.Add(time.Second))
	req.True(left)

	// Then subscribers see the indicator turn off before the departure
	events := room.FlushEvents()
	req.Len(events, 2)
	stopped, ok := events[0].(event.TypingChanged)
	req.True(ok)
	req.False(stopped.IsTyping)
	req.Equal("bob", stopped.DisplayName)
	_, ok = events[1].(event.MemberLeft)
	req.True(ok)

	// And the armed timer's expiry is stale, it cannot emit for a non-member
	req.False(room.ExpireTyping("bob", gen))
	req.Empty(room.FlushEvents())
}

func TestRoom_DiscardEvents_DropsPendingOutbox(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	room := NewRoom("r1", "gophers", "", "", "alice", now)
	room.FlushEvents()
	room.Join("bob", "c1", now)

	// When the pending mutation is rolled back at the persistence layer
	room.DiscardEvents()

	// Then no subscriber will ever observe the join
	req.Empty(room.FlushEvents())
}
