package workers

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"log/slog"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/domain/event"
	"roomhub/errors"
	"roomhub/repositories"
)

var _ contract.Worker = (*RoomWorker)(nil)

// RoomWorker is the single writer of one room. It drains the room's command
// queue one command at a time in arrival order, persists through the store
// before flushing any event, and owns the typing-expiry timers so that
// expiry re-enters the same serialized path as every other mutation.
//
// A slow store call delays later commands to this room only; other rooms
// have their own worker and are never blocked.
type RoomWorker struct {
	room     *domain.Room
	commands chan domain.Command
	events   chan event.DomainEvent
	store    repositories.RoomStore
	expiry   time.Duration
	timers   map[string]*time.Timer
	log      *slog.Logger
}

func NewRoomWorker(room *domain.Room, commands chan domain.Command, events chan event.DomainEvent,
	store repositories.RoomStore, expiry time.Duration, log *slog.Logger) *RoomWorker {
	return &RoomWorker{
		room:     room,
		commands: commands,
		events:   events,
		store:    store,
		expiry:   expiry,
		timers:   make(map[string]*time.Timer),
		log:      log,
	}
}

func (w *RoomWorker) Run(ctx context.Context) error {
	defer w.stopTimers()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Stopping room worker", "room_id", w.room.ID)
			return ctx.Err()
		case cmd, ok := <-w.commands:
			if !ok {
				return nil
			}
			w.handle(ctx, cmd)
		}
	}
}

func (w *RoomWorker) handle(ctx context.Context, cmd domain.Command) {
	switch c := cmd.(type) {
	case domain.JoinCommand:
		w.handleJoin(ctx, c)
	case domain.LeaveCommand:
		w.handleLeave(ctx, c)
	case domain.PostMessageCommand:
		w.handlePost(ctx, c)
	case domain.SetTypingCommand:
		w.handleTyping(ctx, c)
	case domain.TypingExpiredCommand:
		if w.room.ExpireTyping(c.DisplayName, c.Gen) {
			delete(w.timers, strings.ToLower(c.DisplayName))
			w.flush(ctx)
		}
	case domain.HistoryCommand:
		if c.Reply != nil {
			c.Reply <- w.room.History()
		}
	default:
		w.log.Warn("Unknown command dropped", "room_id", w.room.ID)
	}
}

func (w *RoomWorker) handleJoin(ctx context.Context, c domain.JoinCommand) {
	res := w.room.Join(c.DisplayName, c.Origin, time.Now().UTC())
	if res.AlreadyMember {
		// Idempotent rejoin: nothing to persist, nothing to broadcast.
		w.reply(c.Reply, domain.JoinReply{AlreadyMember: true, Members: res.Members})
		return
	}
	if err := w.persistMembers(); err != nil {
		w.room.DiscardEvents()
		w.reply(c.Reply, domain.JoinReply{Err: err})
		return
	}
	w.reply(c.Reply, domain.JoinReply{Members: res.Members})
	w.flush(ctx)
}

func (w *RoomWorker) handleLeave(ctx context.Context, c domain.LeaveCommand) {
	if !w.room.Leave(c.DisplayName, c.Origin, time.Now().UTC()) {
		return
	}
	w.cancelTimer(c.DisplayName)
	if err := w.persistMembers(); err != nil {
		w.room.DiscardEvents()
		return
	}
	w.flush(ctx)
}

func (w *RoomWorker) handlePost(ctx context.Context, c domain.PostMessageCommand) {
	if strings.TrimSpace(c.Text) == "" {
		w.replyPost(c.Reply, domain.PostMessageReply{Err: errors.ErrInvalidInput})
		return
	}
	msg := domain.Message{
		ID:     uuid.New(),
		Room:   w.room.ID,
		Sender: c.Sender,
		Text:   c.Text,
		At:     time.Now().UTC(),
	}
	w.room.AppendMessage(msg, c.Origin)
	// A message implies the sender stopped typing.
	if _, changed := w.room.SetTyping(c.Sender, false, c.Origin); changed {
		w.cancelTimer(c.Sender)
	}
	if err := w.store.AppendMessage(toMessageRecord(msg)); err != nil {
		w.log.Error("message append failed", "room_id", w.room.ID, "error", err)
		w.room.DiscardEvents()
		w.replyPost(c.Reply, domain.PostMessageReply{Err: errors.ErrStoreUnavailable})
		return
	}
	w.replyPost(c.Reply, domain.PostMessageReply{Message: msg})
	w.flush(ctx)
}

func (w *RoomWorker) handleTyping(ctx context.Context, c domain.SetTypingCommand) {
	gen, changed := w.room.SetTyping(c.DisplayName, c.IsTyping, c.Origin)
	if !changed {
		return
	}
	if c.IsTyping {
		w.armTimer(ctx, c.DisplayName, gen)
	} else {
		w.cancelTimer(c.DisplayName)
	}
	w.flush(ctx)
}

// armTimer (re)starts the quiet-period countdown for one member. The timer
// fires into the room's own command queue; it must never mutate room state
// from the timer goroutine.
func (w *RoomWorker) armTimer(ctx context.Context, displayName string, gen uint64) {
	key := strings.ToLower(displayName)
	if t, ok := w.timers[key]; ok {
		t.Stop()
	}
	room := w.room.ID
	w.timers[key] = time.AfterFunc(w.expiry, func() {
		select {
		case w.commands <- domain.TypingExpiredCommand{Room: room, DisplayName: displayName, Gen: gen}:
		case <-ctx.Done():
		}
	})
}

func (w *RoomWorker) cancelTimer(displayName string) {
	key := strings.ToLower(displayName)
	if t, ok := w.timers[key]; ok {
		t.Stop()
		delete(w.timers, key)
	}
}

func (w *RoomWorker) stopTimers() {
	for key, t := range w.timers {
		t.Stop()
		delete(w.timers, key)
	}
}

func (w *RoomWorker) persistMembers() error {
	if err := w.store.UpdateMembers(string(w.room.ID), ToMemberRecords(w.room.Members())); err != nil {
		w.log.Error("members update failed", "room_id", w.room.ID, "error", err)
		return errors.ErrStoreUnavailable
	}
	return nil
}

func (w *RoomWorker) flush(ctx context.Context) {
	for _, evt := range w.room.FlushEvents() {
		select {
		case w.events <- evt:
		case <-ctx.Done():
			return
		}
	}
}

func (w *RoomWorker) reply(ch chan<- domain.JoinReply, r domain.JoinReply) {
	if ch != nil {
		ch <- r
	}
}

func (w *RoomWorker) replyPost(ch chan<- domain.PostMessageReply, r domain.PostMessageReply) {
	if ch != nil {
		ch <- r
	}
}

func ToMemberRecords(members []domain.Member) []repositories.MemberRecord {
	return lo.Map(members, func(m domain.Member, _ int) repositories.MemberRecord {
		return repositories.MemberRecord{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
	})
}

func toMessageRecord(m domain.Message) repositories.MessageRecord {
	return repositories.MessageRecord{
		ID:     m.ID.String(),
		Room:   string(m.Room),
		Sender: m.Sender,
		Text:   m.Text,
		At:     m.At,
	}
}
