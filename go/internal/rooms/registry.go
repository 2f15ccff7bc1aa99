package rooms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/models"
	"github.com/mcdev12/memoria/go/internal/roster"
	"github.com/mcdev12/memoria/go/internal/session"
)

// Registry is the process-wide table of rooms. It owns membership of the
// table and join codes; each room's state is owned by its Coordinator.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]*session.Coordinator // by room id
	codes map[string]string               // join code -> room id
	order []string                        // creation order

	ctx     context.Context
	cfg     session.Config
	clock   clockwork.Clock
	pub     events.Publisher
	codeGen CodeGenerator
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock sets the clock used by every room.
func WithClock(clock clockwork.Clock) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithCodeGenerator replaces the join code source.
func WithCodeGenerator(gen CodeGenerator) Option {
	return func(r *Registry) { r.codeGen = gen }
}

// NewRegistry creates an empty registry. Rooms live until Close, Shutdown
// or cancellation of ctx.
func NewRegistry(ctx context.Context, cfg session.Config, pub events.Publisher, opts ...Option) *Registry {
	if pub == nil {
		pub = events.Discard
	}
	r := &Registry{
		rooms:   make(map[string]*session.Coordinator),
		codes:   make(map[string]string),
		ctx:     ctx,
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		pub:     pub,
		codeGen: GenerateCode,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create opens a room with the creator on team 1.
func (r *Registry) Create(ctx context.Context, name string, creator models.Player) (models.Room, error) {
	name = strings.TrimSpace(name)
	creator.Handle = strings.TrimSpace(creator.Handle)
	if name == "" {
		return models.Room{}, fmt.Errorf("room name is required: %w", models.ErrInvalidInput)
	}
	if creator.ID == "" || creator.Handle == "" {
		return models.Room{}, fmt.Errorf("creator is required: %w", models.ErrInvalidInput)
	}
	creator.TeamID = 1

	r.mu.Lock()
	code, err := r.uniqueCode()
	if err != nil {
		r.mu.Unlock()
		return models.Room{}, fmt.Errorf("failed to generate join code: %w", err)
	}
	room := models.Room{
		ID:         uuid.NewString(),
		Name:       name,
		Code:       code,
		Players:    []models.Player{creator},
		MaxPlayers: r.cfg.MaxPlayers,
		Round:      1,
		CreatorID:  creator.ID,
		Phase:      models.PhaseLobby,
		CreatedAt:  r.clock.Now().UTC(),
	}
	c, err := session.New(r.ctx, room, session.Options{
		Config:    r.cfg,
		Clock:     r.clock,
		Publisher: r.pub,
		OnChange:  r.onChange,
	})
	if err != nil {
		r.mu.Unlock()
		return models.Room{}, fmt.Errorf("failed to start room: %w", err)
	}
	r.rooms[room.ID] = c
	r.codes[code] = room.ID
	r.order = append(r.order, room.ID)
	r.mu.Unlock()

	log.Info().
		Str("room_id", room.ID).
		Str("code", code).
		Str("player_id", creator.ID).
		Msg("room created")

	r.broadcastListing()
	return c.Snapshot(), nil
}

// uniqueCode draws codes until one is free. Callers hold the write lock.
func (r *Registry) uniqueCode() (string, error) {
	for {
		code, err := r.codeGen()
		if err != nil {
			return "", err
		}
		code = normalizeCode(code)
		if _, taken := r.codes[code]; !taken && code != "" {
			return code, nil
		}
		log.Debug().Str("code", code).Msg("collision on join code, regenerating")
	}
}

// Find looks a room up by id or join code.
func (r *Registry) Find(idOrCode string) (*session.Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.findLocked(idOrCode)
}

func (r *Registry) findLocked(idOrCode string) (*session.Coordinator, error) {
	if c, ok := r.rooms[idOrCode]; ok {
		return c, nil
	}
	if id, ok := r.codes[normalizeCode(idOrCode)]; ok {
		return r.rooms[id], nil
	}
	return nil, fmt.Errorf("room %q: %w", idOrCode, models.ErrRoomNotFound)
}

// Resolve maps an id or join code to the room id.
func (r *Registry) Resolve(idOrCode string) (string, error) {
	c, err := r.Find(idOrCode)
	if err != nil {
		return "", err
	}
	return c.ID(), nil
}

// Get returns the room as last published by its coordinator.
func (r *Registry) Get(idOrCode string) (models.Room, error) {
	c, err := r.Find(idOrCode)
	if err != nil {
		return models.Room{}, err
	}
	return c.Snapshot(), nil
}

// Join places a player on a team, replacing any previous seat of the same
// player. Changing team is a join with another team id.
func (r *Registry) Join(ctx context.Context, idOrCode string, player models.Player, teamID int) (models.Room, error) {
	c, err := r.Find(idOrCode)
	if err != nil {
		return models.Room{}, err
	}
	player.TeamID = teamID
	return c.Join(ctx, player)
}

// Start begins the game of a room.
func (r *Registry) Start(ctx context.Context, idOrCode string) (models.Room, error) {
	c, err := r.Find(idOrCode)
	if err != nil {
		return models.Room{}, err
	}
	return c.Start(ctx)
}

// Flip forwards a card flip. Only a missing room is an error.
func (r *Registry) Flip(ctx context.Context, idOrCode string, teamID, cardID int) error {
	c, err := r.Find(idOrCode)
	if err != nil {
		return err
	}
	_, err = c.Flip(ctx, teamID, cardID)
	return err
}

// State returns the full state of a room.
func (r *Registry) State(ctx context.Context, idOrCode string) (models.RoomState, error) {
	c, err := r.Find(idOrCode)
	if err != nil {
		return models.RoomState{}, err
	}
	return c.State(ctx)
}

// Relay broadcasts an opaque message to a room.
func (r *Registry) Relay(ctx context.Context, idOrCode string, data json.RawMessage) error {
	c, err := r.Find(idOrCode)
	if err != nil {
		return err
	}
	return c.Relay(ctx, data)
}

// TeamsView is the team breakdown of a room.
type TeamsView struct {
	RoomID    string        `json:"roomId"`
	Teams     []models.Team `json:"teams"`
	Available []int         `json:"availableTeams"`
	Complete  []int         `json:"completeTeams"`
	Startable bool          `json:"startable"`
}

// Teams returns the derived team view of a room.
func (r *Registry) Teams(idOrCode string) (TeamsView, error) {
	room, err := r.Get(idOrCode)
	if err != nil {
		return TeamsView{}, err
	}
	complete := roster.CompleteTeams(room.Players)
	if complete == nil {
		complete = []int{}
	}
	return TeamsView{
		RoomID:    room.ID,
		Teams:     roster.Teams(room.Players),
		Available: roster.AvailableTeams(room.Players),
		Complete:  complete,
		Startable: roster.Startable(room.Players),
	}, nil
}

// List returns every room in creation order.
func (r *Registry) List() []models.Room {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Room, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.rooms[id].Snapshot())
	}
	return out
}

// Close removes a room and stops its clock.
func (r *Registry) Close(ctx context.Context, idOrCode string) error {
	r.mu.Lock()
	c, err := r.findLocked(idOrCode)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	r.removeLocked(c)
	r.mu.Unlock()

	if _, err := c.Close(ctx); err != nil {
		log.Warn().Err(err).Str("room_id", c.ID()).Msg("room was already stopped")
	}
	r.broadcastListing()
	return nil
}

func (r *Registry) removeLocked(c *session.Coordinator) {
	delete(r.rooms, c.ID())
	delete(r.codes, c.Code())
	for i, id := range r.order {
		if id == c.ID() {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Shutdown stops every room without broadcasting.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := make([]*session.Coordinator, 0, len(r.rooms))
	for _, c := range r.rooms {
		all = append(all, c)
	}
	r.rooms = make(map[string]*session.Coordinator)
	r.codes = make(map[string]string)
	r.order = nil
	r.mu.Unlock()

	// rooms may be inside onChange waiting for the read lock
	for _, c := range all {
		c.Stop()
	}
	log.Info().Int("rooms", len(all)).Msg("room registry shut down")
}

func (r *Registry) onChange(models.Room) {
	r.broadcastListing()
}

// broadcastListing sends the full listing on the global channel.
func (r *Registry) broadcastListing() {
	ev, err := events.NewGlobal(events.EventTypeRoomsUpdate, events.RoomsUpdatePayload{Rooms: r.List()}, r.clock.Now())
	if err != nil {
		log.Error().Err(err).Msg("failed to build room listing")
		return
	}
	r.pub.Publish(ev)
}
