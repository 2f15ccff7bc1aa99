package relay

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/memoria/go/internal/events"
)

// EventPublisher stores one event durably
type EventPublisher interface {
	Publish(ctx context.Context, ev *events.Event) error
}

type Config struct {
	QueueSize      int
	MaxRetries     int
	RetryDelay     time.Duration
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		QueueSize:      1024,
		MaxRetries:     3,
		RetryDelay:     200 * time.Millisecond,
		PublishTimeout: 5 * time.Second,
	}
}

// Worker mirrors broadcast events to an EventPublisher off the hot path.
// It implements events.Publisher: Publish only queues, and a full queue
// drops the event.
type Worker struct {
	publisher EventPublisher
	config    Config
	queue     chan *events.Event
	done      chan struct{}

	processed atomic.Uint64
	failed    atomic.Uint64
	lastEvent atomic.Int64 // unix nanos of the last successful publish
}

func NewWorker(publisher EventPublisher, cfg Config) *Worker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Worker{
		publisher: publisher,
		config:    cfg,
		queue:     make(chan *events.Event, cfg.QueueSize),
		done:      make(chan struct{}),
	}
}

// Publish queues an event without blocking
func (w *Worker) Publish(ev *events.Event) {
	select {
	case w.queue <- ev:
	default:
		log.Warn().
			Str("event_id", ev.ID).
			Str("event_type", string(ev.Type)).
			Msg("relay queue full, dropping event")
	}
}

// Run publishes queued events until ctx is cancelled
func (w *Worker) Run(ctx context.Context) error {
	defer close(w.done)
	log.Info().Int("queue_size", cap(w.queue)).Msg("event relay started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Int("pending", len(w.queue)).Msg("event relay stopped")
			return nil
		case ev := <-w.queue:
			err := w.publishWithRetry(ctx, ev)
			if err == nil {
				w.processed.Add(1)
				w.lastEvent.Store(time.Now().UnixNano())
				continue
			}
			w.failed.Add(1)
			if ctx.Err() == nil {
				log.Error().
					Err(err).
					Str("event_id", ev.ID).
					Str("event_type", string(ev.Type)).
					Msg("failed to relay event")
			}
		}
	}
}

// Stats returns the published and failed counts and the time of the last publish
func (w *Worker) Stats() (processed, failed uint64, last time.Time) {
	if ns := w.lastEvent.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return w.processed.Load(), w.failed.Load(), last
}

// Done is closed when Run returns
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

func (w *Worker) publishWithRetry(ctx context.Context, ev *events.Event) error {
	var lastErr error

	for attempt := 0; attempt <= w.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.config.RetryDelay * time.Duration(attempt)):
			}
		}

		pctx, cancel := context.WithTimeout(ctx, w.config.PublishTimeout)
		err := w.publisher.Publish(pctx, ev)
		cancel()
		if err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Str("event_id", ev.ID).
				Int("attempt", attempt+1).
				Msg("failed to publish event, retrying")
			continue
		}

		return nil
	}

	return fmt.Errorf("failed after %d attempts: %w", w.config.MaxRetries+1, lastErr)
}
