package models

import "time"

const (
	// DefaultMaxPlayers is the membership cap of a room.
	DefaultMaxPlayers = 10
	// MaxTeams is the highest team id a player can join.
	MaxTeams = 5
	// TeamSize is the number of players a complete team has.
	TeamSize = 2
	// MaxRounds is the number of rounds in a game.
	MaxRounds = 5
)

// Phase defines where a room is in its game lifecycle.
type Phase string

const (
	PhaseLobby         Phase = "lobby"
	PhaseInRound       Phase = "in_round"
	PhaseResolving     Phase = "resolving"
	PhaseRoundComplete Phase = "round_complete"
	PhaseComplete      Phase = "complete"
)

// Room represents one multiplayer game session. JSON names follow the
// wire format the web client already consumes.
type Room struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Players    []Player  `json:"players"`
	MaxPlayers int       `json:"maxPlayers"`
	Started    bool      `json:"isStarted"`
	Round      int       `json:"currentRound"`
	ActiveTeam int       `json:"currentTeam"`
	CreatorID  string    `json:"creatorId"`
	Phase      Phase     `json:"phase"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Clone returns a copy of the room that shares no slices with the receiver.
func (r Room) Clone() Room {
	out := r
	out.Players = append([]Player(nil), r.Players...)
	return out
}

// HasPlayer reports whether a player with the given id is on the roster.
func (r Room) HasPlayer(id string) bool {
	for _, p := range r.Players {
		if p.ID == id {
			return true
		}
	}
	return false
}

// TurnState is the transient state of the current turn.
type TurnState struct {
	FlippedCardIDs []int `json:"flippedCardIds"`
	ActiveTeamID   int   `json:"activeTeamId"`
	TimeRemaining  int   `json:"timeRemaining"`
}

// TeamScore accumulates across the rounds of one game.
type TeamScore struct {
	TeamID             int `json:"teamId"`
	Score              int `json:"score"`
	ConsecutiveMatches int `json:"consecutiveMatches"`
	Matches            int `json:"matches"`
	BestStreak         int `json:"bestStreak"`
}

// RoomState is the full snapshot clients replace their local view with.
type RoomState struct {
	Room        Room        `json:"room"`
	Version     int         `json:"version"`
	RoundConfig RoundConfig `json:"roundConfig"`
	Board       []Card      `json:"board"`
	Turn        TurnState   `json:"turn"`
	Order       []int       `json:"order"`
	Scores      []TeamScore `json:"scores"`
	PairsLeft   int         `json:"pairsLeft"`
}
