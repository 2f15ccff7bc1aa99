package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event represents the envelope every broadcast shares
type Event struct {
	ID        string          `json:"id"`               // Event UUID
	Type      EventType       `json:"type"`             // Event type
	Scope     Scope           `json:"scope"`            // global or room
	RoomID    string          `json:"roomId,omitempty"` // empty for global events
	Timestamp time.Time       `json:"timestamp"`        // Event creation time
	Data      json.RawMessage `json:"data"`             // Event-specific payload
}

// EventType represents the type of a broadcast event
type EventType string

const (
	EventTypeRoomsUpdate    EventType = "rooms:update"
	EventTypePlayerJoined   EventType = "player:joined"
	EventTypeRoomStarted    EventType = "room:started"
	EventTypeCardFlipped    EventType = "card:flipped"
	EventTypePairMatched    EventType = "pair:matched"
	EventTypePairMismatched EventType = "pair:mismatched"
	EventTypeTurnAdvanced   EventType = "turn:advanced"
	EventTypeTimerTick      EventType = "timer:tick"
	EventTypeRoundAdvanced  EventType = "round:advanced"
	EventTypeGameCompleted  EventType = "game:completed"
	EventTypeRoomClosed     EventType = "room:closed"
	EventTypeGameEvent      EventType = "game:event"
)

// Scope selects the channel an event is delivered on
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeRoom   Scope = "room"
)

// New builds a room-scoped event with a marshalled payload
func New(roomID string, eventType EventType, payload any, now time.Time) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Scope:     ScopeRoom,
		RoomID:    roomID,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}

// NewGlobal builds an event for every connected client
func NewGlobal(eventType EventType, payload any, now time.Time) (*Event, error) {
	ev, err := New("", eventType, payload, now)
	if err != nil {
		return nil, err
	}
	ev.Scope = ScopeGlobal
	return ev, nil
}

// Publisher receives every event the server emits. Implementations must not block.
type Publisher interface {
	Publish(ev *Event)
}

// PublisherFunc adapts a function to Publisher
type PublisherFunc func(ev *Event)

func (f PublisherFunc) Publish(ev *Event) { f(ev) }

// Fanout delivers each event to every wrapped publisher in order
type Fanout []Publisher

func (f Fanout) Publish(ev *Event) {
	for _, p := range f {
		if p != nil {
			p.Publish(ev)
		}
	}
}

// Discard drops every event
var Discard Publisher = PublisherFunc(func(*Event) {})

// ParsePayload decodes the event data into the payload struct of its type
func ParsePayload(ev *Event) (any, error) {
	var payload any
	switch ev.Type {
	case EventTypeRoomsUpdate:
		payload = &RoomsUpdatePayload{}
	case EventTypePlayerJoined:
		payload = &PlayerJoinedPayload{}
	case EventTypeRoomStarted, EventTypeTimerTick, EventTypeRoomClosed:
		payload = &StatePayload{}
	case EventTypeCardFlipped:
		payload = &CardFlippedPayload{}
	case EventTypePairMatched, EventTypePairMismatched:
		payload = &PairPayload{}
	case EventTypeTurnAdvanced:
		payload = &TurnAdvancedPayload{}
	case EventTypeRoundAdvanced:
		payload = &RoundAdvancedPayload{}
	case EventTypeGameCompleted:
		payload = &GameCompletedPayload{}
	case EventTypeGameEvent:
		payload = &GameEventPayload{}
	default:
		return nil, fmt.Errorf("unknown event type %q", ev.Type)
	}
	if err := json.Unmarshal(ev.Data, payload); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", ev.Type, err)
	}
	return payload, nil
}
