package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/config"
)

func loadConfig(envFile string) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}
	setupLogging(cfg)
	return cfg, nil
}

// setupLogging configures the global zerolog logger
func setupLogging(cfg config.Config) {
	level, err := cfg.Level()
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.ConsoleLogs() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Str("service", "memoria").Logger()
}
