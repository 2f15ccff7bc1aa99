package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/match"
	"github.com/mcdev12/memoria/go/internal/relay"
	"github.com/mcdev12/memoria/go/internal/session"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the process configuration read from the environment
type Config struct {
	Port        string `env:"PORT" envDefault:"5176"`
	Env         string `env:"APP_ENV" envDefault:"development"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	// LogFormat is console or json. Empty picks console outside production.
	LogFormat string `env:"LOG_FORMAT"`

	Room RoomConfig `envPrefix:"ROOM_"`
	NATS NATSConfig `envPrefix:"NATS_"`
}

type RoomConfig struct {
	MaxPlayers     int           `env:"MAX_PLAYERS" envDefault:"10"`
	StrictTeams    bool          `env:"STRICT_TEAMS" envDefault:"false"`
	TickInterval   time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`
	MatchSettle    time.Duration `env:"MATCH_SETTLE" envDefault:"800ms"`
	MismatchSettle time.Duration `env:"MISMATCH_SETTLE" envDefault:"1s"`
	RoundAdvance   time.Duration `env:"ROUND_ADVANCE" envDefault:"1500ms"`
	RoundsFile     string        `env:"ROUNDS_FILE"`
}

// NATSConfig enables the JetStream relay when URL is set
type NATSConfig struct {
	URL           string `env:"URL"`
	Stream        string `env:"STREAM" envDefault:"MEMORIA_EVENTS"`
	SubjectPrefix string `env:"SUBJECT_PREFIX" envDefault:"memoria.events"`
}

// Load reads .env files when present and then the environment.
// Variables already set in the environment win over .env values.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn().Err(err).Msg("could not load .env file")
		} else {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return Parse()
}

// Parse reads the configuration from the environment only
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Port) == "" {
		return errors.New("PORT must not be empty")
	}
	if c.Room.MaxPlayers < 1 {
		return fmt.Errorf("ROOM_MAX_PLAYERS must be positive, got %d", c.Room.MaxPlayers)
	}
	if c.Room.TickInterval <= 0 {
		return fmt.Errorf("ROOM_TICK_INTERVAL must be positive, got %s", c.Room.TickInterval)
	}
	if c.Room.MatchSettle < 0 || c.Room.MismatchSettle < 0 || c.Room.RoundAdvance < 0 {
		return errors.New("room settle delays must not be negative")
	}
	switch c.LogFormat {
	case "", "console", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be console or json, got %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// Addr is the listen address
func (c Config) Addr() string {
	return ":" + c.Port
}

// AllowedOrigins restricts CORS to the frontend in production
func (c Config) AllowedOrigins() []string {
	if c.Production() {
		return []string{c.FrontendURL}
	}
	return []string{"*"}
}

func (c Config) Level() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}

// ConsoleLogs reports whether logs are written for humans
func (c Config) ConsoleLogs() bool {
	if c.LogFormat == "" {
		return !c.Production()
	}
	return c.LogFormat == "console"
}

// Session builds the room configuration, reading the round table from
// ROOM_ROUNDS_FILE when set.
func (c Config) Session() (session.Config, error) {
	rounds := match.DefaultRounds()
	if c.Room.RoundsFile != "" {
		var err error
		rounds, err = match.LoadRounds(c.Room.RoundsFile)
		if err != nil {
			return session.Config{}, fmt.Errorf("load rounds: %w", err)
		}
	}
	return session.Config{
		MaxPlayers:     c.Room.MaxPlayers,
		StrictTeams:    c.Room.StrictTeams,
		Rounds:         rounds,
		TickInterval:   c.Room.TickInterval,
		MatchSettle:    c.Room.MatchSettle,
		MismatchSettle: c.Room.MismatchSettle,
		RoundAdvance:   c.Room.RoundAdvance,
	}, nil
}

func (c Config) RelayEnabled() bool {
	return c.NATS.URL != ""
}

func (c Config) JetStream() relay.JetStreamConfig {
	js := relay.DefaultJetStreamConfig()
	js.URL = c.NATS.URL
	js.StreamName = c.NATS.Stream
	js.SubjectPrefix = c.NATS.SubjectPrefix
	return js
}
