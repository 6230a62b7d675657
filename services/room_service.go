package services

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"roomhub/domain"
	"roomhub/errors"
	"roomhub/runtime"
)

type IRoomService interface {
	CreateRoom(ctx context.Context, req CreateRoomRequest) (domain.RoomSummary, error)
	ListRooms(ctx context.Context) ([]domain.RoomSummary, error)
	GetRoom(ctx context.Context, roomID string) (domain.RoomSummary, error)
	JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResult, error)
	LeaveRoom(ctx context.Context, req LeaveRoomRequest) error
	PostMessage(ctx context.Context, req PostMessageRequest) (domain.Message, error)
	GetHistory(ctx context.Context, roomID string) ([]domain.Message, error)
	SetTyping(ctx context.Context, req SetTypingRequest) error
}

type CreateRoomRequest struct {
	Name        string `validate:"required,max=64"`
	Description string `validate:"max=280"`
	Category    string `validate:"omitempty,oneof=General Gaming Technology"`
	CreatorName string `validate:"required,max=32"`
}

type JoinRoomRequest struct {
	RoomID      string `validate:"required"`
	DisplayName string `validate:"required,max=32"`
	Origin      string
}

type JoinRoomResult struct {
	Room          domain.RoomSummary
	Members       []domain.Member
	AlreadyMember bool
}

type LeaveRoomRequest struct {
	RoomID      string `validate:"required"`
	DisplayName string `validate:"required"`
	Origin      string
}

type PostMessageRequest struct {
	RoomID string `validate:"required"`
	Sender string `validate:"required,max=32"`
	Text   string `validate:"required,max=2000"`
	Origin string
}

type SetTypingRequest struct {
	RoomID      string `validate:"required"`
	DisplayName string `validate:"required"`
	IsTyping    bool
	Origin      string
}

// RoomService is the validated command surface in front of the room engine.
// Transports (HTTP routes, the websocket hub) only ever talk to rooms
// through it.
type RoomService struct {
	orchestrator *runtime.Orchestrator
	validate     *validator.Validate
}

func NewRoomService(o *runtime.Orchestrator) *RoomService {
	return &RoomService{orchestrator: o, validate: validator.New()}
}

func (s *RoomService) CreateRoom(_ context.Context, req CreateRoomRequest) (domain.RoomSummary, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.RoomSummary{}, invalid(err)
	}
	return s.orchestrator.CreateRoom(req.Name, req.Description, req.Category, req.CreatorName)
}

func (s *RoomService) ListRooms(_ context.Context) ([]domain.RoomSummary, error) {
	return s.orchestrator.ListRooms()
}

func (s *RoomService) GetRoom(_ context.Context, roomID string) (domain.RoomSummary, error) {
	return s.orchestrator.GetRoom(domain.RoomID(roomID))
}

func (s *RoomService) JoinRoom(ctx context.Context, req JoinRoomRequest) (JoinRoomResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return JoinRoomResult{}, invalid(err)
	}
	reply := make(chan domain.JoinReply, 1)
	cmd := domain.JoinCommand{
		Room:        domain.RoomID(req.RoomID),
		DisplayName: req.DisplayName,
		Origin:      req.Origin,
		Reply:       reply,
	}
	if err := s.orchestrator.Dispatch(ctx, cmd); err != nil {
		return JoinRoomResult{}, err
	}
	select {
	case r := <-reply:
		if r.Err != nil {
			return JoinRoomResult{}, r.Err
		}
		summary, err := s.orchestrator.GetRoom(cmd.Room)
		if err != nil {
			return JoinRoomResult{}, err
		}
		summary.MemberCount = len(r.Members)
		return JoinRoomResult{Room: summary, Members: r.Members, AlreadyMember: r.AlreadyMember}, nil
	case <-ctx.Done():
		return JoinRoomResult{}, ctx.Err()
	}
}

func (s *RoomService) LeaveRoom(ctx context.Context, req LeaveRoomRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return invalid(err)
	}
	return s.orchestrator.Dispatch(ctx, domain.LeaveCommand{
		Room:        domain.RoomID(req.RoomID),
		DisplayName: req.DisplayName,
		Origin:      req.Origin,
	})
}

func (s *RoomService) PostMessage(ctx context.Context, req PostMessageRequest) (domain.Message, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.Message{}, invalid(err)
	}
	reply := make(chan domain.PostMessageReply, 1)
	cmd := domain.PostMessageCommand{
		Room:   domain.RoomID(req.RoomID),
		Sender: req.Sender,
		Text:   req.Text,
		Origin: req.Origin,
		Reply:  reply,
	}
	if err := s.orchestrator.Dispatch(ctx, cmd); err != nil {
		return domain.Message{}, err
	}
	select {
	case r := <-reply:
		return r.Message, r.Err
	case <-ctx.Done():
		return domain.Message{}, ctx.Err()
	}
}

func (s *RoomService) GetHistory(ctx context.Context, roomID string) ([]domain.Message, error) {
	reply := make(chan []domain.Message, 1)
	if err := s.orchestrator.Dispatch(ctx, domain.HistoryCommand{
		Room:  domain.RoomID(roomID),
		Reply: reply,
	}); err != nil {
		return nil, err
	}
	select {
	case messages := <-reply:
		return messages, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *RoomService) SetTyping(ctx context.Context, req SetTypingRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return invalid(err)
	}
	return s.orchestrator.Dispatch(ctx, domain.SetTypingCommand{
		Room:        domain.RoomID(req.RoomID),
		DisplayName: req.DisplayName,
		IsTyping:    req.IsTyping,
		Origin:      req.Origin,
	})
}

func invalid(err error) error {
	return fmt.Errorf("%w: %s", errors.ErrInvalidInput, err)
}
