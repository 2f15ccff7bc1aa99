package events

import (
	"encoding/json"

	"github.com/mcdev12/memoria/go/internal/models"
)

// Every room payload carries the full room state so clients can replace
// their view instead of patching it.

// RoomsUpdatePayload is the global listing
type RoomsUpdatePayload struct {
	Rooms []models.Room `json:"rooms"`
}

// StatePayload is used by events whose only content is the new state
type StatePayload struct {
	RoomID string           `json:"roomId"`
	State  models.RoomState `json:"state"`
}

// PlayerJoinedPayload is the payload for a player:joined event
type PlayerJoinedPayload struct {
	RoomID string           `json:"roomId"`
	Player models.Player    `json:"player"`
	State  models.RoomState `json:"state"`
}

// CardFlippedPayload is the payload for a card:flipped event
type CardFlippedPayload struct {
	RoomID string           `json:"roomId"`
	TeamID int              `json:"teamId"`
	Card   models.Card      `json:"card"`
	State  models.RoomState `json:"state"`
}

// PairPayload is the payload for pair:matched and pair:mismatched
type PairPayload struct {
	RoomID  string           `json:"roomId"`
	TeamID  int              `json:"teamId"`
	CardIDs []int            `json:"cardIds"`
	Points  int              `json:"points"`
	State   models.RoomState `json:"state"`
}

// TurnAdvancedPayload is the payload for a turn:advanced event
type TurnAdvancedPayload struct {
	RoomID       string           `json:"roomId"`
	PreviousTeam int              `json:"previousTeamId"`
	ActiveTeam   int              `json:"activeTeamId"`
	Reason       string           `json:"reason"`
	State        models.RoomState `json:"state"`
}

// Turn advance reasons
const (
	ReasonMismatch = "mismatch"
	ReasonTimeout  = "timeout"
)

// RoundAdvancedPayload is the payload for a round:advanced event
type RoundAdvancedPayload struct {
	RoomID string             `json:"roomId"`
	Round  int                `json:"round"`
	Config models.RoundConfig `json:"config"`
	State  models.RoomState   `json:"state"`
}

// GameCompletedPayload is the payload for a game:completed event
type GameCompletedPayload struct {
	RoomID    string             `json:"roomId"`
	Standings []models.TeamScore `json:"standings"`
	Winner    int                `json:"winnerTeamId"`
	State     models.RoomState   `json:"state"`
}

// GameEventPayload carries an opaque client message relayed to the room
type GameEventPayload struct {
	RoomID string          `json:"roomId"`
	Data   json.RawMessage `json:"data"`
}
