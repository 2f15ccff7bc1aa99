package match

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/memoria/go/internal/models"
)

// ErrInvalidRounds is returned when a round table breaks its progression rules.
var ErrInvalidRounds = errors.New("invalid round table")

// RoundTable is the per-round configuration of a game, indexed from round 1.
type RoundTable struct {
	Rounds []models.RoundConfig `yaml:"rounds"`
}

// DefaultRounds returns the standard five-round progression.
func DefaultRounds() RoundTable {
	return RoundTable{Rounds: []models.RoundConfig{
		{Round: 1, CardCount: 8, TurnSeconds: 45, Difficulty: "Easy"},
		{Round: 2, CardCount: 12, TurnSeconds: 40, Difficulty: "Normal"},
		{Round: 3, CardCount: 16, TurnSeconds: 35, Difficulty: "Medium"},
		{Round: 4, CardCount: 20, TurnSeconds: 30, Difficulty: "Hard"},
		{Round: 5, CardCount: 24, TurnSeconds: 25, Difficulty: "Expert"},
	}}
}

// LoadRounds reads a round table from a YAML file and validates it.
func LoadRounds(path string) (RoundTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return RoundTable{}, fmt.Errorf("failed to read rounds file: %w", err)
	}
	return ParseRounds(data)
}

// ParseRounds decodes a YAML round table and validates it.
func ParseRounds(data []byte) (RoundTable, error) {
	var t RoundTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return RoundTable{}, fmt.Errorf("failed to parse rounds: %w", err)
	}
	for i := range t.Rounds {
		if t.Rounds[i].Round == 0 {
			t.Rounds[i].Round = i + 1
		}
	}
	if err := t.Validate(); err != nil {
		return RoundTable{}, err
	}
	return t, nil
}

// Validate checks that the table has one entry per round with growing
// boards that the palette can cover and a turn clock that never gets longer.
func (t RoundTable) Validate() error {
	if len(t.Rounds) != models.MaxRounds {
		return fmt.Errorf("%w: want %d rounds, got %d", ErrInvalidRounds, models.MaxRounds, len(t.Rounds))
	}
	for i, r := range t.Rounds {
		if r.Round != i+1 {
			return fmt.Errorf("%w: entry %d is round %d", ErrInvalidRounds, i+1, r.Round)
		}
		if r.CardCount < 2 || r.CardCount%2 != 0 {
			return fmt.Errorf("%w: round %d: %w", ErrInvalidRounds, r.Round, ErrInvalidCardCount)
		}
		if r.Pairs() > len(palette) {
			return fmt.Errorf("%w: round %d: %w", ErrInvalidRounds, r.Round, ErrInsufficientSymbols)
		}
		if r.TurnSeconds <= 0 {
			return fmt.Errorf("%w: round %d has no turn clock", ErrInvalidRounds, r.Round)
		}
		if i == 0 {
			continue
		}
		prev := t.Rounds[i-1]
		if r.CardCount <= prev.CardCount {
			return fmt.Errorf("%w: round %d does not add cards", ErrInvalidRounds, r.Round)
		}
		if r.TurnSeconds > prev.TurnSeconds {
			return fmt.Errorf("%w: round %d has a longer turn than round %d", ErrInvalidRounds, r.Round, prev.Round)
		}
	}
	return nil
}

// Config returns the configuration of round r (1-based), clamped to the table.
func (t RoundTable) Config(r int) models.RoundConfig {
	if r < 1 {
		r = 1
	}
	if r > len(t.Rounds) {
		r = len(t.Rounds)
	}
	return t.Rounds[r-1]
}

// Marshal encodes the table as YAML.
func (t RoundTable) Marshal() ([]byte, error) {
	return yaml.Marshal(t)
}
