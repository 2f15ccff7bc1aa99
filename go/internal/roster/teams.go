package roster

import (
	"fmt"

	"github.com/mcdev12/memoria/go/internal/models"
)

// counts returns the number of players on each team, indexed by team id.
func counts(players []models.Player) [models.MaxTeams + 1]int {
	var c [models.MaxTeams + 1]int
	for _, p := range players {
		if p.TeamID >= 1 && p.TeamID <= models.MaxTeams {
			c[p.TeamID]++
		}
	}
	return c
}

// AvailableTeams returns the team ids that still have room for a player.
func AvailableTeams(players []models.Player) []int {
	c := counts(players)
	out := make([]int, 0, models.MaxTeams)
	for t := 1; t <= models.MaxTeams; t++ {
		if c[t] < models.TeamSize {
			out = append(out, t)
		}
	}
	return out
}

// CompleteTeams returns, in ascending order, the ids of teams with exactly two players.
func CompleteTeams(players []models.Player) []int {
	c := counts(players)
	var out []int
	for t := 1; t <= models.MaxTeams; t++ {
		if c[t] == models.TeamSize {
			out = append(out, t)
		}
	}
	return out
}

// OccupiedTeams returns, in ascending order, the ids of teams with at least one player.
func OccupiedTeams(players []models.Player) []int {
	c := counts(players)
	var out []int
	for t := 1; t <= models.MaxTeams; t++ {
		if c[t] > 0 {
			out = append(out, t)
		}
	}
	return out
}

// Rotation returns the turn order for a round: the complete teams, or when
// none is complete and strict is unset, every occupied team.
func Rotation(players []models.Player, strict bool) []int {
	order := CompleteTeams(players)
	if len(order) == 0 && !strict {
		order = OccupiedTeams(players)
	}
	return order
}

// Startable reports whether at least two complete teams exist.
func Startable(players []models.Player) bool {
	return len(CompleteTeams(players)) >= 2
}

// Teams builds the team view for every team id, empty teams included.
func Teams(players []models.Player) []models.Team {
	teams := make([]models.Team, models.MaxTeams)
	for i := range teams {
		teams[i] = models.Team{TeamID: i + 1, Players: []models.Player{}}
	}
	for _, p := range players {
		if p.TeamID >= 1 && p.TeamID <= models.MaxTeams {
			teams[p.TeamID-1].Players = append(teams[p.TeamID-1].Players, p)
		}
	}
	return teams
}

// Upsert replaces the player with the same id or appends it.
// The input slice is not modified.
func Upsert(players []models.Player, player models.Player) []models.Player {
	out := make([]models.Player, 0, len(players)+1)
	replaced := false
	for _, p := range players {
		if p.ID == player.ID {
			out = append(out, player)
			replaced = true
			continue
		}
		out = append(out, p)
	}
	if !replaced {
		out = append(out, player)
	}
	return out
}

// NormalizeTeam maps an unset team to team 1 and rejects ids outside 1..5.
func NormalizeTeam(teamID int) (int, error) {
	if teamID == models.NoTeam {
		return 1, nil
	}
	if teamID < 1 || teamID > models.MaxTeams {
		return 0, fmt.Errorf("team %d: %w", teamID, models.ErrInvalidInput)
	}
	return teamID, nil
}

// CheckJoin validates placing player on teamID. A player already in the
// room never hits the room cap. The per-team cap is only enforced when
// strict is set.
func CheckJoin(players []models.Player, player models.Player, teamID, maxPlayers int, strict bool) error {
	if player.ID == "" {
		return fmt.Errorf("player id is required: %w", models.ErrInvalidInput)
	}
	present := false
	onTeam := 0
	for _, p := range players {
		if p.ID == player.ID {
			present = true
			continue
		}
		if p.TeamID == teamID {
			onTeam++
		}
	}
	if !present && len(players) >= maxPlayers {
		return fmt.Errorf("%d of %d players: %w", len(players), maxPlayers, models.ErrRoomFull)
	}
	if strict && onTeam >= models.TeamSize {
		return fmt.Errorf("team %d: %w", teamID, models.ErrTeamFull)
	}
	return nil
}

// CheckStart validates starting a game with the given roster.
func CheckStart(players []models.Player, strict bool) error {
	if strict && !Startable(players) {
		return fmt.Errorf("%d complete teams: %w", len(CompleteTeams(players)), models.ErrNotEnoughTeams)
	}
	return nil
}
