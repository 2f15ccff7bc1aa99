package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/identity"
	"github.com/mcdev12/memoria/go/internal/models"
	"github.com/mcdev12/memoria/go/internal/rooms"
	"github.com/mcdev12/memoria/go/internal/session"
)

func setupAPI(t *testing.T, strict bool) (http.Handler, *rooms.Registry) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := session.DefaultConfig()
	cfg.StrictTeams = strict
	reg := rooms.NewRegistry(ctx, cfg, events.Discard, rooms.WithClock(clockwork.NewFakeClock()))
	t.Cleanup(func() {
		reg.Shutdown()
		cancel()
	})
	return NewRouter(NewHandler(reg, identity.NewApp())), reg
}

func do(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func createRoom(t *testing.T, h http.Handler) models.Room {
	t.Helper()
	rec := do(t, h, http.MethodPost, "/api/rooms", map[string]any{
		"name":    "Friday",
		"creator": map[string]any{"id": "p1", "email": "p1@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[models.Room](t, rec)
}

func join(t *testing.T, h http.Handler, room, id string, team int) *httptest.ResponseRecorder {
	t.Helper()
	return do(t, h, http.MethodPost, "/api/rooms/"+room+"/join", map[string]any{
		"player": map[string]any{"id": id, "handle": id},
		"teamId": team,
	})
}

func TestHealth(t *testing.T) {
	h, _ := setupAPI(t, false)
	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestLogin(t *testing.T) {
	h, _ := setupAPI(t, false)

	rec := do(t, h, http.MethodPost, "/api/login", map[string]string{"email": "ana@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	p := decodeBody[models.Player](t, rec)
	assert.Equal(t, "ana@example.com", p.Handle)
	assert.NotEmpty(t, p.ID)

	rec = do(t, h, http.MethodPost, "/api/login", map[string]string{"handle": " "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, models.CodeInvalidInput, decodeBody[ErrorResponse](t, rec).Code)

	rec = do(t, h, http.MethodPost, "/api/login", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateAndListRooms(t *testing.T) {
	h, _ := setupAPI(t, false)

	room := createRoom(t, h)
	assert.Equal(t, "Friday", room.Name)
	assert.Len(t, room.Code, 6)
	require.Len(t, room.Players, 1)
	assert.Equal(t, "p1@example.com", room.Players[0].Handle)
	assert.Equal(t, 1, room.Players[0].TeamID)

	rec := do(t, h, http.MethodGet, "/api/rooms", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decodeBody[[]models.Room](t, rec)
	require.Len(t, list, 1)
	assert.Equal(t, room.ID, list[0].ID)

	rec = do(t, h, http.MethodPost, "/api/rooms", map[string]any{"name": "no creator"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/rooms", map[string]any{"creator": map[string]any{"id": "x", "handle": "x"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestJoinByCode(t *testing.T) {
	h, _ := setupAPI(t, false)
	room := createRoom(t, h)

	rec := join(t, h, room.Code, "p2", 2)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined := decodeBody[models.Room](t, rec)
	assert.Len(t, joined.Players, 2)

	// a missing id is issued by the server
	rec = do(t, h, http.MethodPost, "/api/rooms/"+room.ID+"/join", map[string]any{
		"player": map[string]any{"email": "guest@example.com"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	joined = decodeBody[models.Room](t, rec)
	require.Len(t, joined.Players, 3)
	assert.NotEmpty(t, joined.Players[2].ID)
	assert.Equal(t, 1, joined.Players[2].TeamID)

	assert.Equal(t, http.StatusNotFound, join(t, h, "ZZZZZZ", "p9", 1).Code)
	assert.Equal(t, http.StatusBadRequest, join(t, h, room.ID, "p9", 6).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/rooms/"+room.ID+"/join", map[string]any{}).Code)
}

func TestJoin_RoomFull(t *testing.T) {
	h, _ := setupAPI(t, false)
	room := createRoom(t, h)
	for i := 2; i <= models.DefaultMaxPlayers; i++ {
		require.Equal(t, http.StatusOK, join(t, h, room.ID, "p"+string(rune('a'+i)), (i%5)+1).Code)
	}

	rec := join(t, h, room.ID, "late", 1)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.CodeRoomFull, decodeBody[ErrorResponse](t, rec).Code)
}

func TestStrictTeams(t *testing.T) {
	h, _ := setupAPI(t, true)
	room := createRoom(t, h)

	rec := do(t, h, http.MethodPut, "/api/rooms/"+room.ID+"/start", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.CodeNotEnoughTeams, decodeBody[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p2", 1).Code)
	rec = join(t, h, room.ID, "p3", 1)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, models.CodeTeamFull, decodeBody[ErrorResponse](t, rec).Code)

	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p3", 2).Code)
	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p4", 2).Code)

	rec = do(t, h, http.MethodGet, "/api/rooms/"+room.ID+"/teams", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[rooms.TeamsView](t, rec)
	assert.Equal(t, []int{1, 2}, view.Complete)
	assert.Equal(t, []int{3, 4, 5}, view.Available)
	assert.True(t, view.Startable)

	rec = do(t, h, http.MethodPost, "/api/rooms/"+room.Code+"/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[models.Room](t, rec).Started)
}

func TestGameFlow(t *testing.T) {
	h, _ := setupAPI(t, false)
	room := createRoom(t, h)
	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p2", 1).Code)
	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p3", 2).Code)
	require.Equal(t, http.StatusOK, join(t, h, room.ID, "p4", 2).Code)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/api/rooms/"+room.ID+"/start", nil).Code)

	rec := do(t, h, http.MethodGet, "/api/rooms/"+room.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	state := decodeBody[models.RoomState](t, rec)
	assert.Equal(t, []int{1, 2}, state.Order)
	assert.Equal(t, 1, state.Turn.ActiveTeamID)
	require.NotEmpty(t, state.Board)

	card := state.Board[0].ID
	rec = do(t, h, http.MethodPost, "/api/rooms/"+room.ID+"/flip", FlipRequest{TeamID: 1, CardID: card})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	// wrong team is accepted and ignored
	rec = do(t, h, http.MethodPost, "/api/rooms/"+room.ID+"/flip", FlipRequest{TeamID: 2, CardID: state.Board[1].ID})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/rooms/"+room.ID, nil)
	after := decodeBody[models.RoomState](t, rec)
	assert.Equal(t, []int{card}, after.Turn.FlippedCardIDs)

	rec = do(t, h, http.MethodPost, "/api/rooms/nope/flip", FlipRequest{TeamID: 1, CardID: 0})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRelayEvent(t *testing.T) {
	h, _ := setupAPI(t, false)
	room := createRoom(t, h)

	rec := do(t, h, http.MethodPost, "/api/rooms/"+room.ID+"/event", map[string]any{"event": map[string]any{"emote": "wave"}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/rooms/missing/event", map[string]any{"event": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCloseRoom(t *testing.T) {
	h, reg := setupAPI(t, false)
	room := createRoom(t, h)

	rec := do(t, h, http.MethodDelete, "/api/rooms/"+room.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 0, reg.Len())

	rec = do(t, h, http.MethodGet, "/api/rooms/"+room.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, models.CodeRoomNotFound, decodeBody[ErrorResponse](t, rec).Code)

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodDelete, "/api/rooms/"+room.ID, nil).Code)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, statusOf(models.ErrRoomClosed))
	assert.Equal(t, http.StatusConflict, statusOf(models.ErrTeamFull))
	assert.Equal(t, http.StatusGatewayTimeout, statusOf(context.DeadlineExceeded))
	assert.Equal(t, http.StatusInternalServerError, statusOf(assert.AnError))
}

func TestHealth_Checks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reg := rooms.NewRegistry(ctx, session.DefaultConfig(), events.Discard)
	defer reg.Shutdown()

	handler := NewHandler(reg, identity.NewApp())
	healthy := true
	handler.AddHealthCheck("relay", func(context.Context) (bool, any) {
		return healthy, map[string]bool{"natsConnected": healthy}
	})
	h := NewRouter(handler)

	rec := do(t, h, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"natsConnected":true}`, string(mustMarshal(t, decodeBody[map[string]any](t, rec)["checks"].(map[string]any)["relay"])))

	healthy = false
	rec = do(t, h, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "degraded", decodeBody[map[string]any](t, rec)["status"])
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}
