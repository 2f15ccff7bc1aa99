package main

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mcdev12/memoria/go/internal/api"
	"github.com/mcdev12/memoria/go/internal/config"
	"github.com/mcdev12/memoria/go/internal/gateway"
	"github.com/mcdev12/memoria/go/internal/relay"
)

func setupServer(cfg config.Config, services *Services) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr(),
		Handler:           setupHandler(cfg, services),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

func setupHandler(cfg config.Config, services *Services) http.Handler {
	// Setup CORS middleware
	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedHeaders:   []string{"*"},
		AllowCredentials: cfg.Production(),
	})

	// REST operations and health check
	handler := api.NewHandler(services.Rooms, services.Identity)
	if services.Relay != nil {
		checker := relay.NewHealthChecker(services.Relay, services.JetStream)
		handler.AddHealthCheck("relay", func(ctx context.Context) (bool, any) {
			status := checker.Check(ctx)
			return status.Healthy, status
		})
	}
	router := api.NewRouter(handler)

	// Register WebSocket routes
	gateway.NewWebSocketHandler(services.Hub).RegisterRoutes(router)

	// Setup HTTP/2 server with CORS
	return h2c.NewHandler(c.Handler(router), &http2.Server{})
}
