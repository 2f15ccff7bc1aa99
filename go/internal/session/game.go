package session

import (
	"fmt"
	"sort"

	"github.com/mcdev12/memoria/go/internal/match"
	"github.com/mcdev12/memoria/go/internal/models"
	"github.com/mcdev12/memoria/go/internal/roster"
)

const (
	// BasePoints is awarded for a match with no streak.
	BasePoints = 10
	// StreakBonus is added per consecutive match already made this turn.
	StreakBonus = 5
)

// Game is the turn state machine of one room. It holds no clock and no
// locks; the Coordinator serializes every call and owns the timers.
type Game struct {
	rounds match.RoundTable
	dealer *match.Dealer
	strict bool

	Phase  models.Phase
	Round  int
	Board  []models.Card
	Turn   models.TurnState
	Order  []int
	scores map[int]*models.TeamScore

	// Generation changes whenever a pending settle must be discarded.
	Generation uint64
}

// NewGame creates a game in the lobby phase. With strict set only complete
// teams take turns.
func NewGame(rounds match.RoundTable, dealer *match.Dealer, strict bool) *Game {
	return &Game{
		rounds: rounds,
		dealer: dealer,
		strict: strict,
		Phase:  models.PhaseLobby,
		Round:  1,
		scores: make(map[int]*models.TeamScore),
		Turn:   models.TurnState{FlippedCardIDs: []int{}},
	}
}

// Config returns the configuration of the current round.
func (g *Game) Config() models.RoundConfig {
	return g.rounds.Config(g.Round)
}

// Begin leaves the lobby and deals round 1.
func (g *Game) Begin(players []models.Player) error {
	if g.Phase != models.PhaseLobby {
		return fmt.Errorf("begin in phase %s: %w", g.Phase, models.ErrIllegalAction)
	}
	g.Round = 1
	return g.deal(players)
}

// deal starts the current round with a fresh board and a rotation frozen
// from the teams that are complete right now. A lenient game with no
// complete team rotates through the occupied teams instead.
func (g *Game) deal(players []models.Player) error {
	cfg := g.Config()
	board, err := g.dealer.Deal(cfg.CardCount)
	if err != nil {
		return fmt.Errorf("deal round %d: %w", g.Round, err)
	}
	g.Board = board
	g.Order = roster.Rotation(players, g.strict)
	for _, t := range g.Order {
		if _, ok := g.scores[t]; !ok {
			g.scores[t] = &models.TeamScore{TeamID: t}
		}
	}
	active := models.NoTeam
	if len(g.Order) > 0 {
		active = g.Order[0]
	}
	g.Turn = models.TurnState{
		FlippedCardIDs: []int{},
		ActiveTeamID:   active,
		TimeRemaining:  cfg.TurnSeconds,
	}
	g.Phase = models.PhaseInRound
	g.Generation++
	return nil
}

// FlipOutcome describes the effect of a flip request.
type FlipOutcome struct {
	// Ignored is set for stale or out-of-turn requests; Reason says why.
	Ignored bool
	Reason  error

	Card models.Card
	// Pair is set when the flip turned the second card; Match tells the result.
	Pair       bool
	Match      bool
	CardIDs    []int
	Generation uint64
}

func ignored(format string, args ...any) FlipOutcome {
	return FlipOutcome{Ignored: true, Reason: fmt.Errorf(format+": %w", append(args, models.ErrIllegalAction)...)}
}

// Flip turns a card for a team. Illegal requests change nothing.
func (g *Game) Flip(teamID, cardID int) FlipOutcome {
	switch {
	case g.Phase != models.PhaseInRound:
		return ignored("phase %s", g.Phase)
	case teamID == models.NoTeam || teamID != g.Turn.ActiveTeamID:
		return ignored("team %d is not active", teamID)
	case len(g.Turn.FlippedCardIDs) >= 2:
		return ignored("pair awaiting resolution")
	case cardID < 0 || cardID >= len(g.Board):
		return ignored("card %d out of range", cardID)
	case g.Board[cardID].Flipped || g.Board[cardID].Matched:
		return ignored("card %d already face up", cardID)
	}

	g.Board[cardID].Flipped = true
	g.Turn.FlippedCardIDs = append(g.Turn.FlippedCardIDs, cardID)
	out := FlipOutcome{Card: g.Board[cardID], Generation: g.Generation}
	if len(g.Turn.FlippedCardIDs) < 2 {
		return out
	}

	a, b := g.Board[g.Turn.FlippedCardIDs[0]], g.Board[g.Turn.FlippedCardIDs[1]]
	g.Phase = models.PhaseResolving
	out.Pair = true
	out.Match = match.IsMatch(a, b)
	out.CardIDs = append([]int(nil), g.Turn.FlippedCardIDs...)
	return out
}

// ResolveOutcome describes a settled pair.
type ResolveOutcome struct {
	Applied   bool
	Match     bool
	TeamID    int
	CardIDs   []int
	Points    int
	NextTeam  int
	RoundOver bool
}

// Resolve settles the pending pair. A stale generation is a no-op.
func (g *Game) Resolve(gen uint64) ResolveOutcome {
	if gen != g.Generation || g.Phase != models.PhaseResolving || len(g.Turn.FlippedCardIDs) != 2 {
		return ResolveOutcome{}
	}
	team := g.Turn.ActiveTeamID
	ids := append([]int(nil), g.Turn.FlippedCardIDs...)
	a, b := &g.Board[ids[0]], &g.Board[ids[1]]
	g.Turn.FlippedCardIDs = []int{}
	out := ResolveOutcome{Applied: true, TeamID: team, CardIDs: ids}

	if match.IsMatch(*a, *b) {
		a.Matched, b.Matched = true, true
		out.Match = true
		out.Points = g.score(team)
		out.NextTeam = team
		if match.Remaining(g.Board) == 0 {
			g.Phase = models.PhaseRoundComplete
			out.RoundOver = true
		} else {
			g.Phase = models.PhaseInRound
		}
		return out
	}

	a.Flipped, b.Flipped = false, false
	g.resetStreak(team)
	g.passTurn()
	g.Phase = models.PhaseInRound
	out.NextTeam = g.Turn.ActiveTeamID
	return out
}

// score awards a match to team and returns the points.
func (g *Game) score(team int) int {
	s, ok := g.scores[team]
	if !ok {
		s = &models.TeamScore{TeamID: team}
		g.scores[team] = s
	}
	points := BasePoints + StreakBonus*s.ConsecutiveMatches
	s.Score += points
	s.ConsecutiveMatches++
	s.Matches++
	if s.ConsecutiveMatches > s.BestStreak {
		s.BestStreak = s.ConsecutiveMatches
	}
	return points
}

func (g *Game) resetStreak(team int) {
	if s, ok := g.scores[team]; ok {
		s.ConsecutiveMatches = 0
	}
}

// passTurn moves to the next team of the frozen rotation and resets the clock.
func (g *Game) passTurn() {
	g.Turn.TimeRemaining = g.Config().TurnSeconds
	if len(g.Order) == 0 {
		g.Turn.ActiveTeamID = models.NoTeam
		return
	}
	next := g.Order[0]
	for i, t := range g.Order {
		if t == g.Turn.ActiveTeamID {
			next = g.Order[(i+1)%len(g.Order)]
			break
		}
	}
	g.Turn.ActiveTeamID = next
}

// TickOutcome describes one second of the turn clock.
type TickOutcome struct {
	Applied      bool
	TimedOut     bool
	PreviousTeam int
	NextTeam     int
}

// Tick decrements the turn clock. The clock only runs in the in_round phase.
func (g *Game) Tick() TickOutcome {
	if g.Phase != models.PhaseInRound {
		return TickOutcome{}
	}
	if g.Turn.TimeRemaining > 0 {
		g.Turn.TimeRemaining--
	}
	if g.Turn.TimeRemaining > 0 {
		return TickOutcome{Applied: true, NextTeam: g.Turn.ActiveTeamID}
	}
	prev := g.Turn.ActiveTeamID
	g.Timeout()
	return TickOutcome{Applied: true, TimedOut: true, PreviousTeam: prev, NextTeam: g.Turn.ActiveTeamID}
}

// Timeout ends the active team's turn: streak lost, lone face-up card hidden,
// turn passed and clock reset.
func (g *Game) Timeout() {
	if g.Phase != models.PhaseInRound {
		return
	}
	g.resetStreak(g.Turn.ActiveTeamID)
	for _, id := range g.Turn.FlippedCardIDs {
		g.Board[id].Flipped = false
	}
	g.Turn.FlippedCardIDs = []int{}
	g.passTurn()
}

// AdvanceRound deals the next round, or completes the game after the last one.
// It reports whether anything changed.
func (g *Game) AdvanceRound(gen uint64, players []models.Player) (bool, error) {
	if gen != g.Generation || g.Phase != models.PhaseRoundComplete {
		return false, nil
	}
	if g.Round >= models.MaxRounds {
		g.Phase = models.PhaseComplete
		g.Turn = models.TurnState{FlippedCardIDs: []int{}}
		g.Generation++
		return true, nil
	}
	g.Round++
	if err := g.deal(players); err != nil {
		return false, err
	}
	return true, nil
}

// Close invalidates every pending settle.
func (g *Game) Close() {
	g.Generation++
}

// Scores returns the score of every team that took part, ordered by team id.
func (g *Game) Scores() []models.TeamScore {
	out := make([]models.TeamScore, 0, len(g.scores))
	for _, s := range g.scores {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TeamID < out[j].TeamID })
	return out
}

// Standings returns the scores ordered best first, ties by team id.
func (g *Game) Standings() []models.TeamScore {
	out := g.Scores()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (g *Game) board() []models.Card {
	return append([]models.Card{}, g.Board...)
}
