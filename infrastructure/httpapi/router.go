// Package httpapi exposes the room directory and message history over REST.
// Realtime traffic goes through the websocket transport; these routes serve
// clients that only need request/response access.
package httpapi

import (
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/samber/lo"

	"roomhub/domain"
	"roomhub/errors"
	"roomhub/services"
)

type Handler struct {
	log     *slog.Logger
	service services.IRoomService
}

func NewRouter(log *slog.Logger, service services.IRoomService, hub http.Handler) *mux.Router {
	h := &Handler{log: log, service: service}

	r := mux.NewRouter()
	r.HandleFunc("/api/chat/rooms", h.listRooms).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/rooms", h.createRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/rooms/{roomId}", h.getRoom).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/rooms/{roomId}/join", h.joinRoom).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/rooms/{roomId}/messages", h.listMessages).Methods(http.MethodGet)
	r.HandleFunc("/api/chat/rooms/{roomId}/messages", h.postMessage).Methods(http.MethodPost)
	r.Handle("/ws", hub)
	return r
}

type createRoomBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Username    string `json:"username"`
}

type joinRoomBody struct {
	Username string `json:"username"`
}

type postMessageBody struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
}

type roomResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Category     string    `json:"category"`
	Participants int       `json:"participants"`
	CreatedBy    string    `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
}

type memberResponse struct {
	DisplayName string    `json:"display_name"`
	JoinedAt    time.Time `json:"joined_at"`
}

type joinResponse struct {
	Room          roomResponse     `json:"room"`
	Members       []memberResponse `json:"members"`
	AlreadyInRoom bool             `json:"already_in_room"`
}

type messageResponse struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.service.ListRooms(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lo.Map(rooms, func(s domain.RoomSummary, _ int) roomResponse {
		return toRoomResponse(s)
	}))
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var body createRoomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.ErrInvalidInput)
		return
	}
	summary, err := h.service.CreateRoom(r.Context(), services.CreateRoomRequest{
		Name:        body.Name,
		Description: body.Description,
		Category:    body.Category,
		CreatorName: body.Username,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toRoomResponse(summary))
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	summary, err := h.service.GetRoom(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toRoomResponse(summary))
}

func (h *Handler) joinRoom(w http.ResponseWriter, r *http.Request) {
	var body joinRoomBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.ErrInvalidInput)
		return
	}
	res, err := h.service.JoinRoom(r.Context(), services.JoinRoomRequest{
		RoomID:      mux.Vars(r)["roomId"],
		DisplayName: body.Username,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, joinResponse{
		Room: toRoomResponse(res.Room),
		Members: lo.Map(res.Members, func(m domain.Member, _ int) memberResponse {
			return memberResponse{DisplayName: m.DisplayName, JoinedAt: m.JoinedAt}
		}),
		AlreadyInRoom: res.AlreadyMember,
	})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := h.service.GetHistory(r.Context(), mux.Vars(r)["roomId"])
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lo.Map(messages, func(m domain.Message, _ int) messageResponse {
		return toMessageResponse(m)
	}))
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var body postMessageBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		h.writeError(w, errors.ErrInvalidInput)
		return
	}
	message, err := h.service.PostMessage(r.Context(), services.PostMessageRequest{
		RoomID: mux.Vars(r)["roomId"],
		Sender: body.Sender,
		Text:   body.Text,
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, toMessageResponse(message))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error("response encoding failed", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case stderrors.Is(err, errors.ErrInvalidInput):
		status = http.StatusBadRequest
	case stderrors.Is(err, errors.ErrRoomNotFound):
		status = http.StatusNotFound
	case stderrors.Is(err, errors.ErrDuplicateName):
		status = http.StatusConflict
	case stderrors.Is(err, errors.ErrStoreUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"message": err.Error()})
}

func toRoomResponse(s domain.RoomSummary) roomResponse {
	return roomResponse{
		ID:           string(s.ID),
		Name:         s.Name,
		Description:  s.Description,
		Category:     s.Category,
		Participants: s.MemberCount,
		CreatedBy:    s.CreatedBy,
		CreatedAt:    s.CreatedAt,
	}
}

func toMessageResponse(m domain.Message) messageResponse {
	return messageResponse{ID: m.ID.String(), Sender: m.Sender, Text: m.Text, Timestamp: m.At}
}
