package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/identity"
	"github.com/mcdev12/memoria/go/internal/models"
	"github.com/mcdev12/memoria/go/internal/rooms"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// Rooms is the room registry as seen by the HTTP layer
type Rooms interface {
	Create(ctx context.Context, name string, creator models.Player) (models.Room, error)
	List() []models.Room
	State(ctx context.Context, idOrCode string) (models.RoomState, error)
	Teams(idOrCode string) (rooms.TeamsView, error)
	Join(ctx context.Context, idOrCode string, player models.Player, teamID int) (models.Room, error)
	Start(ctx context.Context, idOrCode string) (models.Room, error)
	Flip(ctx context.Context, idOrCode string, teamID, cardID int) error
	Relay(ctx context.Context, idOrCode string, data json.RawMessage) error
	Close(ctx context.Context, idOrCode string) error
}

// HealthCheck reports one dependency on /health
type HealthCheck func(ctx context.Context) (healthy bool, detail any)

// Handler serves the REST operations
type Handler struct {
	rooms    Rooms
	identity *identity.App
	checks   map[string]HealthCheck
	now      func() time.Time
}

func NewHandler(rooms Rooms, identityApp *identity.App) *Handler {
	return &Handler{
		rooms:    rooms,
		identity: identityApp,
		checks:   make(map[string]HealthCheck),
		now:      time.Now,
	}
}

// AddHealthCheck includes a dependency in the health response. An
// unhealthy dependency turns the response into a 503.
func (h *Handler) AddHealthCheck(name string, check HealthCheck) {
	h.checks[name] = check
}

// PlayerBody is a player as sent by clients. The web client sends the
// login address as "email".
type PlayerBody struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	Email  string `json:"email"`
	TeamID int    `json:"teamId"`
}

func (p PlayerBody) player() models.Player {
	handle := p.Handle
	if handle == "" {
		handle = p.Email
	}
	return models.Player{ID: p.ID, Handle: handle, TeamID: p.TeamID}
}

type CreateRoomRequest struct {
	Name    string      `json:"name"`
	Creator *PlayerBody `json:"creator"`
}

type JoinRoomRequest struct {
	Player *PlayerBody `json:"player"`
	TeamID int         `json:"teamId"`
}

type FlipRequest struct {
	TeamID int `json:"teamId"`
	CardID int `json:"cardId"`
}

type EventRequest struct {
	Event json.RawMessage `json:"event"`
}

type okResponse struct {
	OK bool `json:"ok"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC(),
	}
	status := http.StatusOK
	if len(h.checks) > 0 {
		details := make(map[string]any, len(h.checks))
		for name, check := range h.checks {
			healthy, detail := check(r.Context())
			details[name] = detail
			if !healthy {
				status = http.StatusServiceUnavailable
				body["status"] = "degraded"
			}
		}
		body["checks"] = details
	}
	writeJSON(w, status, body)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req identity.LoginRequest
	if !decode(w, r, &req) {
		return
	}
	player, err := h.identity.Login(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, player)
}

func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.rooms.List())
}

func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Creator == nil {
		writeError(w, fmt.Errorf("name and creator required: %w", models.ErrInvalidInput))
		return
	}
	room, err := h.rooms.Create(r.Context(), req.Name, req.Creator.player())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	state, err := h.rooms.State(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) GetTeams(w http.ResponseWriter, r *http.Request) {
	view, err := h.rooms.Teams(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRoomRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Player == nil {
		writeError(w, fmt.Errorf("player required: %w", models.ErrInvalidInput))
		return
	}
	player := req.Player.player()
	if strings.TrimSpace(player.ID) == "" {
		player.ID = uuid.NewString()
	}
	room, err := h.rooms.Join(r.Context(), chi.URLParam(r, "id"), player, req.TeamID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func (h *Handler) StartRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Start(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

// FlipCard accepts a flip. Illegal flips are dropped by the room, so the
// result is only visible on the broadcast channel.
func (h *Handler) FlipCard(w http.ResponseWriter, r *http.Request) {
	var req FlipRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rooms.Flip(r.Context(), chi.URLParam(r, "id"), req.TeamID, req.CardID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, okResponse{OK: true})
}

func (h *Handler) RelayEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.rooms.Relay(r.Context(), chi.URLParam(r, "id"), req.Event); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *Handler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	if err := h.rooms.Close(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string      `json:"error"`
	Code  models.Code `json:"code"`
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrRoomNotFound), errors.Is(err, models.ErrRoomClosed):
		return http.StatusNotFound
	case errors.Is(err, models.ErrRoomFull), errors.Is(err, models.ErrTeamFull), errors.Is(err, models.ErrNotEnoughTeams):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: models.CodeOf(err)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to write response")
	}
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, fmt.Errorf("malformed request body: %v: %w", err, models.ErrInvalidInput))
		return false
	}
	return true
}
