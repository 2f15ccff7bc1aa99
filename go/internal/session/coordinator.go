package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/events"
	"github.com/mcdev12/memoria/go/internal/match"
	"github.com/mcdev12/memoria/go/internal/models"
	"github.com/mcdev12/memoria/go/internal/roster"
)

type msg interface{ isRoomMsg() }

type joinMsg struct {
	player models.Player
	reply  chan result[models.Room]
}

type startMsg struct {
	reply chan result[models.Room]
}

type flipMsg struct {
	teamID int
	cardID int
	reply  chan result[FlipOutcome]
}

type stateMsg struct {
	reply chan result[models.RoomState]
}

type relayMsg struct {
	data  json.RawMessage
	reply chan result[struct{}]
}

type closeMsg struct {
	reply chan result[models.RoomState]
}

type tickMsg struct{}

type settleKind int

const (
	settlePair settleKind = iota
	settleRound
)

type settleMsg struct {
	kind settleKind
	gen  uint64
}

func (joinMsg) isRoomMsg()   {}
func (startMsg) isRoomMsg()  {}
func (flipMsg) isRoomMsg()   {}
func (stateMsg) isRoomMsg()  {}
func (relayMsg) isRoomMsg()  {}
func (closeMsg) isRoomMsg()  {}
func (tickMsg) isRoomMsg()   {}
func (settleMsg) isRoomMsg() {}

type result[T any] struct {
	val T
	err error
}

// Coordinator owns one room. A single goroutine applies client requests
// and timer callbacks in the order they reach the inbox, so no two
// mutations of a room ever interleave.
type Coordinator struct {
	id       string
	code     string
	cfg      Config
	clock    clockwork.Clock
	pub      events.Publisher
	onChange func(models.Room)

	room    models.Room
	game    *Game
	version int

	inbox  chan msg
	done   chan struct{}
	ctx    context.Context
	cancel context.CancelFunc

	ticker     clockwork.Ticker
	tickerStop chan struct{}
	settle     clockwork.Timer

	snapshot atomic.Pointer[models.Room]
}

// New starts the goroutine of a room. The room must already hold its creator.
func New(parent context.Context, room models.Room, opts Options) (*Coordinator, error) {
	if err := opts.defaults(); err != nil {
		return nil, fmt.Errorf("failed to seed room dealer: %w", err)
	}
	ctx, cancel := context.WithCancel(parent)

	room.Phase = models.PhaseLobby
	room.MaxPlayers = opts.Config.MaxPlayers
	if room.Round == 0 {
		room.Round = 1
	}
	c := &Coordinator{
		id:       room.ID,
		code:     room.Code,
		cfg:      opts.Config,
		clock:    opts.Clock,
		pub:      opts.Publisher,
		onChange: opts.OnChange,
		room:     room.Clone(),
		game:     NewGame(opts.Config.Rounds, match.NewDealer(opts.Seed), opts.Config.StrictTeams),
		inbox:    make(chan msg, 64),
		done:     make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	c.storeSnapshot()

	go c.loop()
	return c, nil
}

// ID returns the room id.
func (c *Coordinator) ID() string { return c.id }

// Code returns the room join code.
func (c *Coordinator) Code() string { return c.code }

// Snapshot returns the room as of the last completed step without
// going through the room goroutine.
func (c *Coordinator) Snapshot() models.Room {
	return c.snapshot.Load().Clone()
}

// Done is closed once the room goroutine has exited.
func (c *Coordinator) Done() <-chan struct{} { return c.done }

// Join adds or moves a player. Team 0 means team 1.
func (c *Coordinator) Join(ctx context.Context, player models.Player) (models.Room, error) {
	return call(ctx, c, func(r chan result[models.Room]) msg { return joinMsg{player: player, reply: r} })
}

// Start begins the game. Starting a started room returns it unchanged.
func (c *Coordinator) Start(ctx context.Context) (models.Room, error) {
	return call(ctx, c, func(r chan result[models.Room]) msg { return startMsg{reply: r} })
}

// Flip submits a card flip. Illegal flips are absorbed; the outcome is
// returned for logging and tests, clients learn the result by broadcast.
func (c *Coordinator) Flip(ctx context.Context, teamID, cardID int) (FlipOutcome, error) {
	return call(ctx, c, func(r chan result[FlipOutcome]) msg {
		return flipMsg{teamID: teamID, cardID: cardID, reply: r}
	})
}

// State returns the full room state.
func (c *Coordinator) State(ctx context.Context) (models.RoomState, error) {
	return call(ctx, c, func(r chan result[models.RoomState]) msg { return stateMsg{reply: r} })
}

// Relay broadcasts an opaque client message to the room.
func (c *Coordinator) Relay(ctx context.Context, data json.RawMessage) error {
	_, err := call(ctx, c, func(r chan result[struct{}]) msg { return relayMsg{data: data, reply: r} })
	return err
}

// Close stops the room, its clock and every pending settle.
func (c *Coordinator) Close(ctx context.Context) (models.RoomState, error) {
	return call(ctx, c, func(r chan result[models.RoomState]) msg { return closeMsg{reply: r} })
}

// Stop cancels the room goroutine without publishing anything and waits for it.
func (c *Coordinator) Stop() {
	c.cancel()
	<-c.done
}

func call[T any](ctx context.Context, c *Coordinator, build func(chan result[T]) msg) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	reply := make(chan result[T], 1)
	select {
	case c.inbox <- build(reply):
	case <-c.done:
		return zero, fmt.Errorf("room %s: %w", c.id, models.ErrRoomClosed)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.val, r.err
	case <-c.done:
		// the goroutine may have answered right before exiting
		select {
		case r := <-reply:
			return r.val, r.err
		default:
			return zero, fmt.Errorf("room %s: %w", c.id, models.ErrRoomClosed)
		}
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// enqueue is used by timer goroutines; it gives up once the room is gone.
func (c *Coordinator) enqueue(m msg) {
	select {
	case c.inbox <- m:
	case <-c.done:
	case <-c.ctx.Done():
	}
}

func (c *Coordinator) loop() {
	defer close(c.done)
	log.Debug().Str("room_id", c.room.ID).Msg("room goroutine started")

	for {
		select {
		case <-c.ctx.Done():
			c.stopTimers()
			log.Debug().Str("room_id", c.room.ID).Msg("room goroutine stopped")
			return
		case m := <-c.inbox:
			if c.handle(m) {
				c.cancel()
				return
			}
		}
	}
}

// handle applies one message and reports whether the room is finished.
func (c *Coordinator) handle(m msg) bool {
	switch m := m.(type) {
	case joinMsg:
		room, err := c.join(m.player)
		m.reply <- result[models.Room]{val: room, err: err}
	case startMsg:
		room, err := c.start()
		m.reply <- result[models.Room]{val: room, err: err}
	case flipMsg:
		m.reply <- result[FlipOutcome]{val: c.flip(m.teamID, m.cardID)}
	case stateMsg:
		m.reply <- result[models.RoomState]{val: c.state()}
	case relayMsg:
		c.emit(events.EventTypeGameEvent, events.GameEventPayload{RoomID: c.room.ID, Data: m.data})
		m.reply <- result[struct{}]{}
	case tickMsg:
		c.tick()
	case settleMsg:
		switch m.kind {
		case settlePair:
			c.resolve(m.gen)
		case settleRound:
			c.advanceRound(m.gen)
		}
	case closeMsg:
		m.reply <- result[models.RoomState]{val: c.close()}
		return true
	}
	return false
}

func (c *Coordinator) join(player models.Player) (models.Room, error) {
	player.Handle = strings.TrimSpace(player.Handle)
	if player.Handle == "" {
		player.Handle = player.ID
	}
	team, err := roster.NormalizeTeam(player.TeamID)
	if err != nil {
		return models.Room{}, err
	}
	player.TeamID = team
	if err := roster.CheckJoin(c.room.Players, player, player.TeamID, c.cfg.MaxPlayers, c.cfg.StrictTeams); err != nil {
		return models.Room{}, fmt.Errorf("join room %s: %w", c.room.ID, err)
	}

	c.room.Players = roster.Upsert(c.room.Players, player)
	c.changed()
	c.emit(events.EventTypePlayerJoined, events.PlayerJoinedPayload{
		RoomID: c.room.ID,
		Player: player,
		State:  c.state(),
	})
	c.onChange(c.Snapshot())

	log.Info().
		Str("room_id", c.room.ID).
		Str("player_id", player.ID).
		Int("team_id", player.TeamID).
		Int("players", len(c.room.Players)).
		Msg("player joined room")
	return c.room.Clone(), nil
}

func (c *Coordinator) start() (models.Room, error) {
	if c.room.Started {
		return c.room.Clone(), nil
	}
	if err := roster.CheckStart(c.room.Players, c.cfg.StrictTeams); err != nil {
		return models.Room{}, fmt.Errorf("start room %s: %w", c.room.ID, err)
	}
	if err := c.game.Begin(c.room.Players); err != nil {
		return models.Room{}, fmt.Errorf("start room %s: %w", c.room.ID, err)
	}
	c.room.Started = true
	c.startTicker()
	c.changed()
	c.emit(events.EventTypeRoomStarted, events.StatePayload{RoomID: c.room.ID, State: c.state()})
	c.onChange(c.Snapshot())

	log.Info().
		Str("room_id", c.room.ID).
		Ints("order", c.game.Order).
		Int("active_team", c.game.Turn.ActiveTeamID).
		Msg("game started")
	if len(c.game.Order) == 0 {
		log.Warn().Str("room_id", c.room.ID).Msg("game started without a complete team")
	}
	return c.room.Clone(), nil
}

func (c *Coordinator) flip(teamID, cardID int) FlipOutcome {
	out := c.game.Flip(teamID, cardID)
	if out.Ignored {
		log.Debug().
			Err(out.Reason).
			Str("room_id", c.room.ID).
			Int("team_id", teamID).
			Int("card_id", cardID).
			Msg("flip ignored")
		return out
	}

	c.changed()
	c.emit(events.EventTypeCardFlipped, events.CardFlippedPayload{
		RoomID: c.room.ID,
		TeamID: teamID,
		Card:   out.Card,
		State:  c.state(),
	})
	if out.Pair {
		delay := c.cfg.MismatchSettle
		if out.Match {
			delay = c.cfg.MatchSettle
		}
		c.schedule(delay, settleMsg{kind: settlePair, gen: out.Generation})
	}
	return out
}

func (c *Coordinator) resolve(gen uint64) {
	res := c.game.Resolve(gen)
	if !res.Applied {
		log.Debug().Str("room_id", c.room.ID).Uint64("generation", gen).Msg("stale pair settle dropped")
		return
	}
	c.changed()

	if res.Match {
		c.emit(events.EventTypePairMatched, events.PairPayload{
			RoomID:  c.room.ID,
			TeamID:  res.TeamID,
			CardIDs: res.CardIDs,
			Points:  res.Points,
			State:   c.state(),
		})
		log.Debug().
			Str("room_id", c.room.ID).
			Int("team_id", res.TeamID).
			Int("points", res.Points).
			Msg("pair matched")
		if res.RoundOver {
			log.Info().Str("room_id", c.room.ID).Int("round", c.game.Round).Msg("round cleared")
			c.schedule(c.cfg.RoundAdvance, settleMsg{kind: settleRound, gen: c.game.Generation})
		}
		return
	}

	c.emit(events.EventTypePairMismatched, events.PairPayload{
		RoomID:  c.room.ID,
		TeamID:  res.TeamID,
		CardIDs: res.CardIDs,
		State:   c.state(),
	})
	c.emit(events.EventTypeTurnAdvanced, events.TurnAdvancedPayload{
		RoomID:       c.room.ID,
		PreviousTeam: res.TeamID,
		ActiveTeam:   res.NextTeam,
		Reason:       events.ReasonMismatch,
		State:        c.state(),
	})
}

func (c *Coordinator) tick() {
	out := c.game.Tick()
	if !out.Applied {
		return
	}
	c.changed()
	if out.TimedOut {
		log.Debug().
			Str("room_id", c.room.ID).
			Int("team_id", out.PreviousTeam).
			Int("next_team", out.NextTeam).
			Msg("turn timed out")
		c.emit(events.EventTypeTurnAdvanced, events.TurnAdvancedPayload{
			RoomID:       c.room.ID,
			PreviousTeam: out.PreviousTeam,
			ActiveTeam:   out.NextTeam,
			Reason:       events.ReasonTimeout,
			State:        c.state(),
		})
		return
	}
	c.emit(events.EventTypeTimerTick, events.StatePayload{RoomID: c.room.ID, State: c.state()})
}

func (c *Coordinator) advanceRound(gen uint64) {
	changed, err := c.game.AdvanceRound(gen, c.room.Players)
	if err != nil {
		log.Error().Err(err).Str("room_id", c.room.ID).Msg("failed to deal next round")
		return
	}
	if !changed {
		log.Debug().Str("room_id", c.room.ID).Uint64("generation", gen).Msg("stale round advance dropped")
		return
	}
	c.changed()

	if c.game.Phase == models.PhaseComplete {
		c.stopTimers()
		standings := c.game.Standings()
		winner := models.NoTeam
		if len(standings) > 0 {
			winner = standings[0].TeamID
		}
		c.emit(events.EventTypeGameCompleted, events.GameCompletedPayload{
			RoomID:    c.room.ID,
			Standings: standings,
			Winner:    winner,
			State:     c.state(),
		})
		c.onChange(c.Snapshot())
		log.Info().Str("room_id", c.room.ID).Int("winner_team", winner).Msg("game completed")
		return
	}

	c.emit(events.EventTypeRoundAdvanced, events.RoundAdvancedPayload{
		RoomID: c.room.ID,
		Round:  c.game.Round,
		Config: c.game.Config(),
		State:  c.state(),
	})
	c.onChange(c.Snapshot())
	log.Info().
		Str("room_id", c.room.ID).
		Int("round", c.game.Round).
		Ints("order", c.game.Order).
		Msg("round started")
}

func (c *Coordinator) close() models.RoomState {
	c.game.Close()
	c.stopTimers()
	c.changed()
	st := c.state()
	c.emit(events.EventTypeRoomClosed, events.StatePayload{RoomID: c.room.ID, State: st})
	log.Info().Str("room_id", c.room.ID).Msg("room closed")
	return st
}

// changed mirrors the game into the room, bumps the version and
// publishes the snapshot.
func (c *Coordinator) changed() {
	c.room.Round = c.game.Round
	c.room.ActiveTeam = c.game.Turn.ActiveTeamID
	c.room.Phase = c.game.Phase
	c.version++
	c.storeSnapshot()
}

func (c *Coordinator) storeSnapshot() {
	room := c.room.Clone()
	c.snapshot.Store(&room)
}

func (c *Coordinator) state() models.RoomState {
	return models.RoomState{
		Room:        c.room.Clone(),
		Version:     c.version,
		RoundConfig: c.game.Config(),
		Board:       c.game.board(),
		Turn: models.TurnState{
			FlippedCardIDs: append([]int{}, c.game.Turn.FlippedCardIDs...),
			ActiveTeamID:   c.game.Turn.ActiveTeamID,
			TimeRemaining:  c.game.Turn.TimeRemaining,
		},
		Order:     append([]int{}, c.game.Order...),
		Scores:    c.game.Scores(),
		PairsLeft: match.Remaining(c.game.Board),
	}
}

func (c *Coordinator) emit(eventType events.EventType, payload any) {
	ev, err := events.New(c.room.ID, eventType, payload, c.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", c.room.ID).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	c.pub.Publish(ev)
}
