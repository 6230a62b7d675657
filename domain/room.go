package domain

import (
	"strings"
	"time"

	"github.com/samber/lo"

	"roomhub/domain/event"
)

type RoomID string

// Room categories shown in the public directory.
const (
	CategoryGeneral    = "General"
	CategoryGaming     = "Gaming"
	CategoryTechnology = "Technology"
)

type Member struct {
	DisplayName string
	JoinedAt    time.Time
}

// RoomSummary is the directory view of a room.
type RoomSummary struct {
	ID          RoomID
	Name        string
	Description string
	Category    string
	MemberCount int
	CreatedBy   string
	CreatedAt   time.Time
}

// Room is the authoritative in-memory state of one chat room: roster,
// append-only message log, and ephemeral typing state. Mutations append
// events to an outbox which the room's worker flushes after persistence.
//
// Room is not safe for concurrent use. Every method must be called from the
// room's single writer (its RoomWorker).
type Room struct {
	ID          RoomID
	Name        string
	Description string
	Category    string
	CreatedBy   string
	CreatedAt   time.Time

	members []Member
	log     []Message
	typing  map[string]typingState
	outbox  []event.DomainEvent
}

// typingState tracks one member's typing indicator. The generation counter
// disambiguates a racing expiry from a fresh typing signal: an expiry only
// acts when its generation still matches.
type typingState struct {
	displayName string
	origin      string
	gen         uint64
}

// NewRoom creates a room with the creator as its first member.
func NewRoom(id RoomID, name, description, category, createdBy string, now time.Time) *Room {
	if category == "" {
		category = CategoryGeneral
	}
	return &Room{
		ID:          id,
		Name:        name,
		Description: description,
		Category:    category,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		members:     []Member{{DisplayName: createdBy, JoinedAt: now}},
		typing:      make(map[string]typingState),
	}
}

// Restore rebuilds a room from persisted state, typically after a restart.
func Restore(id RoomID, name, description, category, createdBy string, createdAt time.Time, members []Member, log []Message) *Room {
	return &Room{
		ID:          id,
		Name:        name,
		Description: description,
		Category:    category,
		CreatedBy:   createdBy,
		CreatedAt:   createdAt,
		members:     members,
		log:         log,
		typing:      make(map[string]typingState),
	}
}

type JoinResult struct {
	AlreadyMember bool
	Members       []Member
}

// Join adds displayName to the roster. Joining twice is not an error: the
// second call reports AlreadyMember and mutates nothing, so a reconnecting
// client never duplicates itself. Membership equality is case-insensitive.
func (r *Room) Join(displayName, origin string, now time.Time) JoinResult {
	if r.memberIndex(displayName) >= 0 {
		return JoinResult{AlreadyMember: true, Members: r.Members()}
	}
	r.members = append(r.members, Member{DisplayName: displayName, JoinedAt: now})
	r.outbox = append(r.outbox, event.MemberJoined{
		Room:        string(r.ID),
		Origin:      origin,
		DisplayName: displayName,
		Members:     r.eventMembers(),
		At:          now,
	})
	return JoinResult{Members: r.Members()}
}

// Leave removes displayName from the roster. Leaving a room you are not in
// is a no-op, not an error. A member leaving mid-typing has their indicator
// cleared here, so subscribers never see "typing" from a non-member.
func (r *Room) Leave(displayName, origin string, now time.Time) bool {
	i := r.memberIndex(displayName)
	if i < 0 {
		return false
	}
	r.members = append(r.members[:i], r.members[i+1:]...)
	if st, ok := r.typing[strings.ToLower(displayName)]; ok {
		delete(r.typing, strings.ToLower(displayName))
		r.outbox = append(r.outbox, event.TypingChanged{
			Room:        string(r.ID),
			Origin:      st.origin,
			DisplayName: st.displayName,
			IsTyping:    false,
		})
	}
	r.outbox = append(r.outbox, event.MemberLeft{
		Room:        string(r.ID),
		Origin:      origin,
		DisplayName: displayName,
		Members:     r.eventMembers(),
		At:          now,
	})
	return true
}

// AppendMessage appends to the message log and emits MessageReceived.
// The caller is responsible for validation and for assigning msg.At.
func (r *Room) AppendMessage(msg Message, origin string) {
	r.log = append(r.log, msg)
	r.outbox = append(r.outbox, event.MessageReceived{
		Room:   string(r.ID),
		Origin: origin,
		ID:     msg.ID,
		Sender: msg.Sender,
		Text:   msg.Text,
		At:     msg.At,
	})
}

// SetTyping updates the typing indicator for displayName and emits
// TypingChanged when the signal changes anything. It returns the generation
// to arm an expiry timer with, and whether the caller needs to (re)arm or
// cancel one.
func (r *Room) SetTyping(displayName string, isTyping bool, origin string) (gen uint64, changed bool) {
	key := strings.ToLower(displayName)
	current, exists := r.typing[key]
	if isTyping {
		gen = current.gen + 1
		r.typing[key] = typingState{displayName: displayName, origin: origin, gen: gen}
		r.outbox = append(r.outbox, event.TypingChanged{
			Room:        string(r.ID),
			Origin:      origin,
			DisplayName: displayName,
			IsTyping:    true,
		})
		return gen, true
	}
	if !exists {
		// Explicit stop after an expiry already fired. Only the first wins.
		return 0, false
	}
	delete(r.typing, key)
	r.outbox = append(r.outbox, event.TypingChanged{
		Room:        string(r.ID),
		Origin:      origin,
		DisplayName: displayName,
		IsTyping:    false,
	})
	return current.gen, true
}

// ExpireTyping clears the indicator armed with gen. A stale generation means
// the member either stopped explicitly or typed again since; the expiry then
// does nothing, which keeps stop events from double-firing.
func (r *Room) ExpireTyping(displayName string, gen uint64) bool {
	key := strings.ToLower(displayName)
	current, exists := r.typing[key]
	if !exists || current.gen != gen {
		return false
	}
	delete(r.typing, key)
	r.outbox = append(r.outbox, event.TypingChanged{
		Room:        string(r.ID),
		Origin:      current.origin,
		DisplayName: current.displayName,
		IsTyping:    false,
	})
	return true
}

// Members returns a copy of the roster in join order.
func (r *Room) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

// History returns a copy of the full message log in append order.
func (r *Room) History() []Message {
	out := make([]Message, len(r.log))
	copy(out, r.log)
	return out
}

func (r *Room) MemberCount() int { return len(r.members) }

func (r *Room) Summary() RoomSummary {
	return RoomSummary{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		Category:    r.Category,
		MemberCount: len(r.members),
		CreatedBy:   r.CreatedBy,
		CreatedAt:   r.CreatedAt,
	}
}

// FlushEvents drains the outbox. The worker calls this once persistence
// succeeded; a failed operation discards instead so that no subscriber ever
// observes an event for a mutation the store never acknowledged.
func (r *Room) FlushEvents() []event.DomainEvent {
	events := r.outbox
	r.outbox = nil
	return events
}

// DiscardEvents drops pending events after a failed persistence call.
func (r *Room) DiscardEvents() {
	r.outbox = nil
}

func (r *Room) memberIndex(displayName string) int {
	for i, m := range r.members {
		if strings.EqualFold(m.DisplayName, displayName) {
			return i
		}
	}
	return -1
}

func (r *Room) eventMembers() []event.Member {
	return lo.Map(r.members, func(m Member, _ int) event.Member {
		return event.Member{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
	})
}
