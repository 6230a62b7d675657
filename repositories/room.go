package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"roomhub/errors"
)

// RoomStore is the durable persistence consumed by the room engine. Writes
// must be acknowledged only once durable: the registry relies on it to make
// a room recoverable before it becomes joinable.
type RoomStore interface {
	InsertRoom(record RoomRecord) error
	FindRoomByID(id string) (RoomRecord, error)
	FindRoomByName(name string) (RoomRecord, error)
	UpdateMembers(id string, members []MemberRecord) error
	AppendMessage(message MessageRecord) error
	ListMessages(roomID string) ([]MessageRecord, error)
	ListRooms() ([]RoomRecord, error)
}

type RoomRecord struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	CreatedBy   string         `json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
	Members     []MemberRecord `json:"members"`
}

type MemberRecord struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type MessageRecord struct {
	ID     string    `json:"id"`
	Room   string    `json:"room"`
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	At     time.Time `json:"at"`
}

// RoomRepository stores one record per room plus an append-only message
// keyspace in BadgerDB.
//
// Keys:
//
//	room:{id}                      room metadata and members
//	roomname:{lowercased name}     name uniqueness index -> room id
//	msg:{room_id}:{padded_ts}:{id} one message
//
// The message timestamp is zero-padded to 19 digits so lexicographical
// iteration yields chronological order; the message id disambiguates two
// messages landing on the same nanosecond.
type RoomRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewRoomRepository(db *badger.DB, log *slog.Logger) RoomRepository {
	return RoomRepository{db: db, log: log}
}

func roomKey(id string) []byte       { return []byte("room:" + id) }
func roomNameKey(name string) []byte { return []byte("roomname:" + strings.ToLower(name)) }

func messageKey(m MessageRecord) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", m.Room, m.At.UnixNano(), m.ID))
}

// InsertRoom persists a new room and claims its name in the same
// transaction. The compare-and-insert is atomic: two concurrent creates
// with the same name can never both succeed.
func (r RoomRepository) InsertRoom(record RoomRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("error encoding room %s: %w", record.ID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(roomNameKey(record.Name))
		if err == nil {
			return errors.ErrDuplicateName
		}
		if !stderrors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(roomNameKey(record.Name), []byte(record.ID)); err != nil {
			return err
		}
		return txn.Set(roomKey(record.ID), value)
	})
	if err != nil {
		if stderrors.Is(err, errors.ErrDuplicateName) {
			return errors.ErrDuplicateName
		}
		return fmt.Errorf("error inserting room %s: %w", record.Name, err)
	}
	return nil
}

func (r RoomRepository) FindRoomByID(id string) (RoomRecord, error) {
	var record RoomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return RoomRecord{}, errors.ErrRoomNotFound
		}
		return RoomRecord{}, fmt.Errorf("error reading room %s: %w", id, err)
	}
	return record, nil
}

func (r RoomRepository) FindRoomByName(name string) (RoomRecord, error) {
	var id string
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(roomNameKey(name))
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			id = string(value)
			return nil
		})
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return RoomRecord{}, errors.ErrRoomNotFound
		}
		return RoomRecord{}, fmt.Errorf("error resolving room name %s: %w", name, err)
	}
	return r.FindRoomByID(id)
}

// UpdateMembers rewrites the members of an existing room record.
func (r RoomRepository) UpdateMembers(id string, members []MemberRecord) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(roomKey(id))
		if err != nil {
			return err
		}
		var record RoomRecord
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &record)
		}); err != nil {
			return err
		}
		record.Members = members
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(roomKey(id), value)
	})
	if err != nil {
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return errors.ErrRoomNotFound
		}
		return fmt.Errorf("error updating members of room %s: %w", id, err)
	}
	return nil
}

func (r RoomRepository) AppendMessage(message MessageRecord) error {
	value, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("error encoding message %s: %w", message.ID, err)
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(message), value)
	})
	if err != nil {
		return fmt.Errorf("error appending message to room %s: %w", message.Room, err)
	}
	return nil
}

// ListMessages returns the full log of a room, oldest first. The padded
// timestamp in the key makes a forward prefix scan chronological.
func (r RoomRepository) ListMessages(roomID string) ([]MessageRecord, error) {
	var messages []MessageRecord
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("msg:" + roomID + ":")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record MessageRecord
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			messages = append(messages, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing messages of room %s: %w", roomID, err)
	}
	return messages, nil
}

// ListRooms returns every room record, newest first.
func (r RoomRepository) ListRooms() ([]RoomRecord, error) {
	var rooms []RoomRecord
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte("room:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var record RoomRecord
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &record)
			})
			if err != nil {
				return err
			}
			rooms = append(rooms, record)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error listing rooms: %w", err)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
	})
	return rooms, nil
}
