package main

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/config"
	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/gateway"
	"github.com/mcdev12/memoria/go/internal/identity"
	"github.com/mcdev12/memoria/go/internal/relay"
	"github.com/mcdev12/memoria/go/internal/rooms"
)

type Services struct {
	Rooms    *rooms.Registry
	Hub      *gateway.ConnectionManager
	Identity *identity.App

	// Relay and JetStream are nil unless NATS_URL is set
	Relay     *relay.Worker
	JetStream *relay.JetStreamPublisher
}

func setupServices(ctx context.Context, cfg config.Config) (*Services, error) {
	// Wire up the event path
	// Room actors → Fanout → WebSocket hub (+ JetStream relay)

	sessionCfg, err := cfg.Session()
	if err != nil {
		return nil, err
	}

	services := &Services{Identity: identity.NewApp()}

	var hub *gateway.ConnectionManager
	fanout := events.Fanout{
		// hub is assigned below, before any room exists
		events.PublisherFunc(func(ev *events.Event) { hub.Publish(ev) }),
	}

	if cfg.RelayEnabled() {
		js, err := relay.NewJetStreamPublisher(ctx, cfg.JetStream())
		if err != nil {
			return nil, fmt.Errorf("failed to start event relay: %w", err)
		}
		services.JetStream = js
		services.Relay = relay.NewWorker(js, relay.DefaultConfig())
		fanout = append(fanout, services.Relay)
		log.Info().
			Str("nats_url", cfg.NATS.URL).
			Str("stream", cfg.NATS.Stream).
			Msg("event relay enabled")
	}

	services.Rooms = rooms.NewRegistry(ctx, sessionCfg, fanout)

	connCfg := gateway.DefaultConnectionConfig()
	connCfg.CheckOrigin = originChecker(cfg.AllowedOrigins())
	hub = gateway.NewConnectionManager(connCfg, services.Rooms)
	services.Hub = hub

	return services, nil
}

func (s *Services) Close() {
	s.Rooms.Shutdown()
	if s.JetStream != nil {
		if err := s.JetStream.Close(); err != nil {
			log.Error().Err(err).Msg("failed to drain NATS connection")
		}
	}
}

// originChecker accepts WebSocket upgrades from the CORS origins
func originChecker(allowed []string) func(r *http.Request) bool {
	if slices.Contains(allowed, "*") {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// non-browser clients send no origin
		return origin == "" || slices.Contains(allowed, origin)
	}
}
