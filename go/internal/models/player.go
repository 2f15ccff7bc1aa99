package models

// NoTeam is the team id of a player that has not picked a team yet.
const NoTeam = 0

// Player represents a connected participant. The ID is stable for the session.
type Player struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
	TeamID int    `json:"teamId"`
}

// Team is a derived view over a room's roster.
type Team struct {
	TeamID  int      `json:"teamId"`
	Players []Player `json:"players"`
}

// Complete reports whether the team has exactly two members.
func (t Team) Complete() bool {
	return len(t.Players) == TeamSize
}
