package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"
)

// Routes registers the REST operations on r
func (h *Handler) Routes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		r.Route("/rooms", func(r chi.Router) {
			r.Get("/", h.ListRooms)
			r.Post("/", h.CreateRoom)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRoom)
				r.Delete("/", h.CloseRoom)
				r.Get("/teams", h.GetTeams)
				r.Post("/join", h.JoinRoom)
				r.Put("/start", h.StartRoom)
				r.Post("/start", h.StartRoom)
				r.Post("/flip", h.FlipCard)
				r.Post("/event", h.RelayEvent)
			})
		})
	})
}

// NewRouter returns a router with the REST operations and the shared
// middleware stack. Further routes such as the WebSocket hub are mounted
// by the caller.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(AccessLog)
	h.Routes(r)
	return r
}

// AccessLog logs one line per request with zerolog
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			// hijacked or nothing written
			status = http.StatusOK
		}
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("http request")
	})
}
