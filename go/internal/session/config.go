package session

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/match"
	"github.com/mcdev12/memoria/go/internal/models"
)

// Config holds the rules and delays of a room.
type Config struct {
	MaxPlayers int
	// StrictTeams enforces the two-per-team cap on join and requires two
	// complete teams to start.
	StrictTeams bool
	Rounds      match.RoundTable

	TickInterval   time.Duration
	MatchSettle    time.Duration
	MismatchSettle time.Duration
	RoundAdvance   time.Duration
}

// DefaultConfig returns the standard room configuration.
func DefaultConfig() Config {
	return Config{
		MaxPlayers:     models.DefaultMaxPlayers,
		Rounds:         match.DefaultRounds(),
		TickInterval:   time.Second,
		MatchSettle:    800 * time.Millisecond,
		MismatchSettle: time.Second,
		RoundAdvance:   1500 * time.Millisecond,
	}
}

// Options wires a Coordinator to its collaborators.
type Options struct {
	Config    Config
	Clock     clockwork.Clock
	Publisher events.Publisher
	// OnChange is called from the room goroutine after membership or
	// lifecycle changes, once the new snapshot is visible. It must not
	// call back into the same Coordinator synchronously.
	OnChange func(room models.Room)
	// Seed drives the board shuffle. Zero draws one from crypto/rand.
	Seed uint64
}

func (o *Options) defaults() error {
	if o.Clock == nil {
		o.Clock = clockwork.NewRealClock()
	}
	if o.Publisher == nil {
		o.Publisher = events.Discard
	}
	if o.OnChange == nil {
		o.OnChange = func(models.Room) {}
	}
	if o.Config.MaxPlayers <= 0 {
		o.Config.MaxPlayers = models.DefaultMaxPlayers
	}
	if o.Config.Rounds.Rounds == nil {
		o.Config.Rounds = match.DefaultRounds()
	}
	if o.Config.TickInterval <= 0 {
		o.Config.TickInterval = time.Second
	}
	if o.Seed == 0 {
		seed, err := match.NewSeed()
		if err != nil {
			return err
		}
		o.Seed = seed
	}
	return nil
}
