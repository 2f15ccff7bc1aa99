package identity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/models"
)

// maxHandleLength bounds display names in bytes.
const maxHandleLength = 64

// App issues player identities. It keeps no state: any non-empty handle
// is accepted and ids are only guaranteed to be fresh.
type App struct {
	newID func() string
}

// NewApp creates a new identity App
func NewApp() *App {
	return &App{newID: uuid.NewString}
}

// Login issues a player for the given handle, keeping a caller-supplied id
func (a *App) Login(ctx context.Context, req LoginRequest) (models.Player, error) {
	if err := a.validateLoginRequest(&req); err != nil {
		return models.Player{}, fmt.Errorf("validation failed: %w", err)
	}

	id := strings.TrimSpace(req.ID)
	if id == "" {
		id = a.newID()
	}
	player := models.Player{ID: id, Handle: req.Handle, TeamID: models.NoTeam}

	log.Info().
		Str("player_id", player.ID).
		Str("handle", player.Handle).
		Msg("player logged in")
	return player, nil
}

// validateLoginRequest trims the handle and rejects an empty or oversized one
func (a *App) validateLoginRequest(req *LoginRequest) error {
	req.Handle = strings.TrimSpace(req.Handle)
	if req.Handle == "" {
		return fmt.Errorf("handle is required: %w", models.ErrInvalidInput)
	}
	if len(req.Handle) > maxHandleLength {
		return fmt.Errorf("handle longer than %d bytes: %w", maxHandleLength, models.ErrInvalidInput)
	}
	return nil
}
