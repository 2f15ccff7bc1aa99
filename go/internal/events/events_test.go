package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/memoria/go/internal/models"
)

func TestNew_RoomScoped(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	ev, err := New("room-1", EventTypeRoomStarted, StatePayload{RoomID: "room-1"}, now)
	require.NoError(t, err)

	assert.NotEmpty(t, ev.ID)
	assert.Equal(t, ScopeRoom, ev.Scope)
	assert.Equal(t, "room-1", ev.RoomID)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())

	payload, err := ParsePayload(ev)
	require.NoError(t, err)
	assert.Equal(t, "room-1", payload.(*StatePayload).RoomID)
}

func TestNewGlobal(t *testing.T) {
	ev, err := NewGlobal(EventTypeRoomsUpdate, RoomsUpdatePayload{Rooms: []models.Room{{ID: "r"}}}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, ScopeGlobal, ev.Scope)
	assert.Empty(t, ev.RoomID)

	raw, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "roomId\":\"\"")
}

func TestNew_MarshalError(t *testing.T) {
	_, err := New("r", EventTypeGameEvent, make(chan int), time.Now())
	assert.Error(t, err)
}

func TestParsePayload_Unknown(t *testing.T) {
	_, err := ParsePayload(&Event{Type: "nope", Data: json.RawMessage(`{}`)})
	assert.Error(t, err)
}

func TestFanout(t *testing.T) {
	var got []string
	f := Fanout{
		PublisherFunc(func(ev *Event) { got = append(got, "a:"+string(ev.Type)) }),
		nil,
		PublisherFunc(func(ev *Event) { got = append(got, "b:"+string(ev.Type)) }),
	}
	f.Publish(&Event{Type: EventTypeTimerTick})
	Discard.Publish(&Event{})

	assert.Equal(t, []string{"a:timer:tick", "b:timer:tick"}, got)
}
