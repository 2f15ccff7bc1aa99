package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/events"
)

// JetStreamConfig locates the NATS server and describes the event stream.
// Events are kept for MaxAge; a message id seen again within
// DuplicateWindow is stored once.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string

	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int

	MaxAge          time.Duration
	MaxMsgs         int64
	Replicas        int
	DuplicateWindow time.Duration
}

func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:             nats.DefaultURL,
		StreamName:      "MEMORIA_EVENTS",
		SubjectPrefix:   "memoria.events",
		ConnectTimeout:  5 * time.Second,
		ReconnectWait:   2 * time.Second,
		MaxReconnects:   -1,
		MaxAge:          24 * time.Hour,
		MaxMsgs:         -1,
		Replicas:        1,
		DuplicateWindow: 2 * time.Minute,
	}
}

// streamPublisher is the part of jetstream.JetStream the relay publishes through
type streamPublisher interface {
	PublishMsg(ctx context.Context, msg *nats.Msg, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// streamAdmin is the part of jetstream.JetStream that manages the stream
type streamAdmin interface {
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
	UpdateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// JetStreamPublisher writes events to a JetStream stream
type JetStreamPublisher struct {
	nc     *nats.Conn
	js     streamPublisher
	config JetStreamConfig
}

// NewJetStreamPublisher connects to NATS and makes sure the event stream
// exists with the configured limits.
func NewJetStreamPublisher(ctx context.Context, cfg JetStreamConfig) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(cfg.URL, natsOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS at %s: %w", cfg.URL, err)
	}

	js, err := jetstream.New(nc)
	if err == nil {
		err = ensureStream(ctx, js, streamConfig(cfg))
	}
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("prepare stream %s: %w", cfg.StreamName, err)
	}

	log.Info().
		Str("url", nc.ConnectedUrl()).
		Str("stream", cfg.StreamName).
		Str("subject_prefix", cfg.SubjectPrefix).
		Msg("event relay connected to JetStream")
	return &JetStreamPublisher{nc: nc, js: js, config: cfg}, nil
}

func natsOptions(cfg JetStreamConfig) []nats.Option {
	logger := log.With().Str("component", "relay").Logger()
	return []nats.Option{
		nats.Name("memoria-relay"),
		nats.Timeout(cfg.ConnectTimeout),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS connection lost")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS connection restored")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.Error().Err(err).Msg("NATS async error")
		}),
	}
}

// streamConfig captures every subject under the prefix in one stream.
func streamConfig(cfg JetStreamConfig) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:        cfg.StreamName,
		Description: "Memory match room and lobby events",
		Subjects:    []string{cfg.SubjectPrefix + ".>"},
		Retention:   jetstream.LimitsPolicy,
		Storage:     jetstream.FileStorage,
		MaxAge:      cfg.MaxAge,
		MaxMsgs:     cfg.MaxMsgs,
		Replicas:    cfg.Replicas,
		Duplicates:  cfg.DuplicateWindow,
	}
}

// ensureStream creates the stream, or updates it when the server copy has
// drifted from want.
func ensureStream(ctx context.Context, js streamAdmin, want jetstream.StreamConfig) error {
	stream, err := js.Stream(ctx, want.Name)
	switch {
	case errors.Is(err, jetstream.ErrStreamNotFound):
		if _, err := js.CreateStream(ctx, want); err != nil {
			return fmt.Errorf("create stream: %w", err)
		}
		log.Info().Str("stream", want.Name).Msg("created JetStream stream")
		return nil
	case err != nil:
		return fmt.Errorf("look up stream: %w", err)
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("get stream info: %w", err)
	}
	drift := streamDrift(info.Config, want)
	if len(drift) == 0 {
		return nil
	}
	if _, err := js.UpdateStream(ctx, want); err != nil {
		return fmt.Errorf("update stream: %w", err)
	}
	log.Info().
		Str("stream", want.Name).
		Strs("changed", drift).
		Msg("updated JetStream stream")
	return nil
}

// streamDrift names the settings of have that differ from want.
func streamDrift(have, want jetstream.StreamConfig) []string {
	var drift []string
	if !slices.Equal(have.Subjects, want.Subjects) {
		drift = append(drift, "subjects")
	}
	if have.MaxAge != want.MaxAge {
		drift = append(drift, "max_age")
	}
	if have.MaxMsgs != want.MaxMsgs {
		drift = append(drift, "max_msgs")
	}
	if have.Replicas != want.Replicas {
		drift = append(drift, "replicas")
	}
	if have.Duplicates != want.Duplicates {
		drift = append(drift, "duplicates")
	}
	return drift
}

// Subject returns the subject an event is stored under:
// <prefix>.global.<type> or <prefix>.room.<room id>.<type>.
func Subject(prefix string, ev *events.Event) string {
	if ev.Scope == events.ScopeGlobal || ev.RoomID == "" {
		return fmt.Sprintf("%s.global.%s", prefix, ev.Type)
	}
	return fmt.Sprintf("%s.room.%s.%s", prefix, ev.RoomID, ev.Type)
}

func (p *JetStreamPublisher) message(ev *events.Event) (*nats.Msg, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	msg := nats.NewMsg(Subject(p.config.SubjectPrefix, ev))
	msg.Data = data
	msg.Header.Set("Event-ID", ev.ID)
	msg.Header.Set("Event-Type", string(ev.Type))
	if ev.RoomID != "" {
		msg.Header.Set("Room-ID", ev.RoomID)
	}
	return msg, nil
}

// Publish writes one event. The event id doubles as the JetStream message
// id, so a retried publish inside the duplicate window is stored once.
func (p *JetStreamPublisher) Publish(ctx context.Context, ev *events.Event) error {
	msg, err := p.message(ev)
	if err != nil {
		return err
	}

	ack, err := p.js.PublishMsg(ctx, msg,
		jetstream.WithMsgID(ev.ID),
		jetstream.WithExpectStream(p.config.StreamName),
	)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", ev.Type, msg.Subject, err)
	}

	log.Debug().
		Str("subject", msg.Subject).
		Str("event_id", ev.ID).
		Uint64("sequence", ack.Sequence).
		Bool("duplicate", ack.Duplicate).
		Msg("event relayed")
	return nil
}

// Connected reports whether the NATS connection is up
func (p *JetStreamPublisher) Connected() bool {
	return p.nc != nil && p.nc.IsConnected()
}

// Close flushes pending publishes and closes the connection
func (p *JetStreamPublisher) Close() error {
	if p.nc == nil {
		return nil
	}
	return p.nc.Drain()
}
