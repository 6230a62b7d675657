package runtime

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"roomhub/contract"
	"roomhub/domain"
	"roomhub/domain/event"
	"roomhub/errors"
	"roomhub/repositories"
	"roomhub/runtime/workers"
)

type roomRuntime struct {
	room     *domain.Room
	commands chan domain.Command
}

// RoomRegistry owns the id -> live room mapping. It is the sole creator of
// Room instances and of their single-writer workers. Creation persists the
// room before making it visible in the map, so a room can never be joined
// before it is recoverable. Rooms evicted by a restart are hydrated from
// the store on first lookup; beyond that, rooms stay resident for the
// process lifetime (there is no deletion or archival path).
type RoomRegistry struct {
	mu           sync.Mutex
	log          *slog.Logger
	store        repositories.RoomStore
	supervisor   contract.ISupervisor
	events       chan event.DomainEvent
	bufferSize   int
	typingExpiry time.Duration
	rooms        map[domain.RoomID]*roomRuntime
	ctx          context.Context
}

func NewRoomRegistry(log *slog.Logger, store repositories.RoomStore, supervisor contract.ISupervisor,
	events chan event.DomainEvent, bufferSize int, typingExpiry time.Duration) *RoomRegistry {
	return &RoomRegistry{
		log:          log,
		store:        store,
		supervisor:   supervisor,
		events:       events,
		bufferSize:   bufferSize,
		typingExpiry: typingExpiry,
		rooms:        make(map[domain.RoomID]*roomRuntime),
	}
}

// Bind gives the registry the context under which room workers run. Must
// be called before any room is created or looked up.
func (r *RoomRegistry) Bind(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctx = ctx
}

// Create persists a new room and starts its worker. The whole operation
// holds the registry lock, so two concurrent creates with the same name
// resolve to exactly one success and one ErrDuplicateName.
func (r *RoomRegistry) Create(name, description, category, creatorName string) (domain.RoomSummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx == nil {
		return domain.RoomSummary{}, fmt.Errorf("room registry is not started")
	}

	now := time.Now().UTC()
	room := domain.NewRoom(domain.RoomID(uuid.NewString()), name, description, category, creatorName, now)

	// Durability before visibility.
	if err := r.store.InsertRoom(toRoomRecord(room)); err != nil {
		if stderrors.Is(err, errors.ErrDuplicateName) {
			return domain.RoomSummary{}, errors.ErrDuplicateName
		}
		r.log.Error("room insert failed", "name", name, "error", err)
		return domain.RoomSummary{}, errors.ErrStoreUnavailable
	}

	r.attach(room)
	r.log.Info("room created", "room_id", room.ID, "name", room.Name, "created_by", creatorName)
	return room.Summary(), nil
}

// Dispatch routes a command to its room's single-writer queue, hydrating
// the room from the store if this process has not seen it yet.
func (r *RoomRegistry) Dispatch(ctx context.Context, cmd domain.Command) error {
	rt, err := r.lookup(cmd.RoomID())
	if err != nil {
		return err
	}
	select {
	case rt.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary reads one room's directory entry from the store.
func (r *RoomRegistry) Summary(id domain.RoomID) (domain.RoomSummary, error) {
	record, err := r.store.FindRoomByID(string(id))
	if err != nil {
		return domain.RoomSummary{}, err
	}
	return toSummary(record), nil
}

// List returns every known room, newest first.
func (r *RoomRegistry) List() ([]domain.RoomSummary, error) {
	records, err := r.store.ListRooms()
	if err != nil {
		return nil, err
	}
	return lo.Map(records, func(record repositories.RoomRecord, _ int) domain.RoomSummary {
		return toSummary(record)
	}), nil
}

func (r *RoomRegistry) lookup(id domain.RoomID) (*roomRuntime, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rt, ok := r.rooms[id]; ok {
		return rt, nil
	}
	if r.ctx == nil {
		return nil, fmt.Errorf("room registry is not started")
	}

	record, err := r.store.FindRoomByID(string(id))
	if err != nil {
		if stderrors.Is(err, errors.ErrRoomNotFound) {
			return nil, errors.ErrRoomNotFound
		}
		r.log.Error("room lookup failed", "room_id", id, "error", err)
		return nil, errors.ErrStoreUnavailable
	}
	messages, err := r.store.ListMessages(string(id))
	if err != nil {
		r.log.Error("room history load failed", "room_id", id, "error", err)
		return nil, errors.ErrStoreUnavailable
	}

	room, err := fromRoomRecord(record, messages)
	if err != nil {
		r.log.Error("room record corrupt", "room_id", id, "error", err)
		return nil, errors.ErrStoreUnavailable
	}
	rt := r.attach(room)
	r.log.Info("room hydrated from store", "room_id", id, "messages", len(messages))
	return rt, nil
}

// attach makes the room visible and starts its worker. Caller holds r.mu.
func (r *RoomRegistry) attach(room *domain.Room) *roomRuntime {
	rt := &roomRuntime{
		room:     room,
		commands: make(chan domain.Command, r.bufferSize),
	}
	r.rooms[room.ID] = rt
	worker := workers.NewRoomWorker(room, rt.commands, r.events, r.store, r.typingExpiry, r.log)
	r.supervisor.Start(r.ctx, worker)
	return rt
}

func toRoomRecord(room *domain.Room) repositories.RoomRecord {
	return repositories.RoomRecord{
		ID:          string(room.ID),
		Name:        room.Name,
		Description: room.Description,
		Category:    room.Category,
		CreatedBy:   room.CreatedBy,
		CreatedAt:   room.CreatedAt,
		Members:     workers.ToMemberRecords(room.Members()),
	}
}

func fromRoomRecord(record repositories.RoomRecord, messages []repositories.MessageRecord) (*domain.Room, error) {
	members := lo.Map(record.Members, func(m repositories.MemberRecord, _ int) domain.Member {
		return domain.Member{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
	})
	log := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		parsedID, err := uuid.Parse(m.ID)
		if err != nil {
			return nil, fmt.Errorf("error parsing message id %s: %w", m.ID, err)
		}
		log = append(log, domain.Message{
			ID:     parsedID,
			Room:   domain.RoomID(m.Room),
			Sender: m.Sender,
			Text:   m.Text,
			At:     m.At,
		})
	}
	return domain.Restore(domain.RoomID(record.ID), record.Name, record.Description,
		record.Category, record.CreatedBy, record.CreatedAt, members, log), nil
}

func toSummary(record repositories.RoomRecord) domain.RoomSummary {
	return domain.RoomSummary{
		ID:          domain.RoomID(record.ID),
		Name:        record.Name,
		Description: record.Description,
		Category:    record.Category,
		MemberCount: len(record.Members),
		CreatedBy:   record.CreatedBy,
		CreatedAt:   record.CreatedAt,
	}
}
