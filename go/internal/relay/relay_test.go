package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/memoria/go/internal/events"
)

type fakeStream struct {
	mu   sync.Mutex
	msgs []*nats.Msg
	err  error
}

func (f *fakeStream) PublishMsg(_ context.Context, msg *nats.Msg, _ ...jetstream.PublishOpt) (*jetstream.PubAck, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.msgs = append(f.msgs, msg)
	return &jetstream.PubAck{Stream: "MEMORIA_EVENTS", Sequence: uint64(len(f.msgs))}, nil
}

type flakyPublisher struct {
	mu       sync.Mutex
	failures int
	calls    int
	got      []*events.Event
}

func (f *flakyPublisher) Publish(_ context.Context, ev *events.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failures > 0 {
		f.failures--
		return errors.New("nats: timeout")
	}
	f.got = append(f.got, ev)
	return nil
}

func (f *flakyPublisher) published() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.got)
}

func mustEvent(t *testing.T, roomID string, typ events.EventType) *events.Event {
	t.Helper()
	ev, err := events.New(roomID, typ, events.GameEventPayload{RoomID: roomID}, time.Now())
	require.NoError(t, err)
	return ev
}

func TestSubject(t *testing.T) {
	room := mustEvent(t, "r-1", events.EventTypePairMatched)
	assert.Equal(t, "memoria.events.room.r-1.pair:matched", Subject("memoria.events", room))

	global, err := events.NewGlobal(events.EventTypeRoomsUpdate, events.RoomsUpdatePayload{}, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "memoria.events.global.rooms:update", Subject("memoria.events", global))
}

func TestJetStreamPublisher_Publish(t *testing.T) {
	stream := &fakeStream{}
	p := &JetStreamPublisher{js: stream, config: DefaultJetStreamConfig()}

	ev := mustEvent(t, "r-1", events.EventTypeCardFlipped)
	require.NoError(t, p.Publish(context.Background(), ev))

	require.Len(t, stream.msgs, 1)
	msg := stream.msgs[0]
	assert.Equal(t, "memoria.events.room.r-1.card:flipped", msg.Subject)
	assert.Equal(t, ev.ID, msg.Header.Get("Event-ID"))
	assert.Equal(t, "r-1", msg.Header.Get("Room-ID"))
	assert.Equal(t, "card:flipped", msg.Header.Get("Event-Type"))

	var decoded events.Event
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, ev.ID, decoded.ID)
	assert.Equal(t, events.ScopeRoom, decoded.Scope)

	stream.err = errors.New("no responders")
	assert.Error(t, p.Publish(context.Background(), ev))
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)
	assert.Equal(t, "MEMORIA_EVENTS", sc.Name)
	assert.Equal(t, []string{"memoria.events.>"}, sc.Subjects)
	assert.Empty(t, streamDrift(sc, streamConfig(cfg)))

	cfg.MaxAge = time.Hour
	cfg.SubjectPrefix = "games"
	assert.Equal(t, []string{"subjects", "max_age"}, streamDrift(sc, streamConfig(cfg)))
}

// fakeAdmin serves one stream, or none when info is nil
type fakeAdmin struct {
	info    *jetstream.StreamInfo
	lookup  error
	created []jetstream.StreamConfig
	updated []jetstream.StreamConfig
}

type fakeStreamHandle struct {
	jetstream.Stream
	info *jetstream.StreamInfo
}

func (s fakeStreamHandle) Info(context.Context, ...jetstream.StreamInfoOpt) (*jetstream.StreamInfo, error) {
	return s.info, nil
}

func (a *fakeAdmin) Stream(_ context.Context, _ string) (jetstream.Stream, error) {
	if a.lookup != nil {
		return nil, a.lookup
	}
	if a.info == nil {
		return nil, jetstream.ErrStreamNotFound
	}
	return fakeStreamHandle{info: a.info}, nil
}

func (a *fakeAdmin) CreateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	a.created = append(a.created, cfg)
	return nil, nil
}

func (a *fakeAdmin) UpdateStream(_ context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error) {
	a.updated = append(a.updated, cfg)
	return nil, nil
}

func TestEnsureStream(t *testing.T) {
	ctx := context.Background()
	want := streamConfig(DefaultJetStreamConfig())

	t.Run("creates a missing stream", func(t *testing.T) {
		admin := &fakeAdmin{}
		require.NoError(t, ensureStream(ctx, admin, want))
		assert.Len(t, admin.created, 1)
		assert.Empty(t, admin.updated)
	})

	t.Run("leaves a matching stream alone", func(t *testing.T) {
		admin := &fakeAdmin{info: &jetstream.StreamInfo{Config: want}}
		require.NoError(t, ensureStream(ctx, admin, want))
		assert.Empty(t, admin.created)
		assert.Empty(t, admin.updated)
	})

	t.Run("updates a drifted stream", func(t *testing.T) {
		old := want
		old.Duplicates = time.Hour
		admin := &fakeAdmin{info: &jetstream.StreamInfo{Config: old}}
		require.NoError(t, ensureStream(ctx, admin, want))
		require.Len(t, admin.updated, 1)
		assert.Equal(t, want.Duplicates, admin.updated[0].Duplicates)
	})

	t.Run("lookup failures are not treated as missing", func(t *testing.T) {
		admin := &fakeAdmin{lookup: errors.New("nats: timeout")}
		require.Error(t, ensureStream(ctx, admin, want))
		assert.Empty(t, admin.created)
	})
}

func TestWorker_RelaysInOrder(t *testing.T) {
	pub := &flakyPublisher{}
	w := NewWorker(pub, DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	for i := 0; i < 5; i++ {
		w.Publish(mustEvent(t, "r-1", events.EventTypeTimerTick))
	}
	require.Eventually(t, func() bool { return pub.published() == 5 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestWorker_Retries(t *testing.T) {
	pub := &flakyPublisher{failures: 2}
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	w := NewWorker(pub, cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	w.Publish(mustEvent(t, "r-1", events.EventTypeRoomStarted))
	require.Eventually(t, func() bool { return pub.published() == 1 }, time.Second, 5*time.Millisecond)

	pub.mu.Lock()
	defer pub.mu.Unlock()
	assert.Equal(t, 3, pub.calls)
}

func TestWorker_GivesUp(t *testing.T) {
	pub := &flakyPublisher{failures: 100}
	cfg := DefaultConfig()
	cfg.MaxRetries = 1
	cfg.RetryDelay = time.Millisecond
	w := NewWorker(pub, cfg)

	err := w.publishWithRetry(context.Background(), mustEvent(t, "r-1", events.EventTypeRoomStarted))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 2 attempts")
}

func TestWorker_FullQueueDrops(t *testing.T) {
	cfg := DefaultConfig()
	cfg.QueueSize = 2
	w := NewWorker(&flakyPublisher{}, cfg)

	// not running: the third event is dropped instead of blocking
	for i := 0; i < 3; i++ {
		w.Publish(mustEvent(t, "r-1", events.EventTypeTimerTick))
	}
	assert.Len(t, w.queue, 2)
}

type fakeConn bool

func (c fakeConn) Connected() bool { return bool(c) }

func TestHealthChecker(t *testing.T) {
	pub := &flakyPublisher{}
	cfg := DefaultConfig()
	cfg.QueueSize = 10
	w := NewWorker(pub, cfg)

	status := NewHealthChecker(w, fakeConn(true)).Check(context.Background())
	assert.True(t, status.Healthy)
	assert.True(t, status.NATSConnected)
	assert.Empty(t, status.Errors)
	assert.True(t, status.LastEventTime.IsZero())

	status = NewHealthChecker(w, fakeConn(false)).Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, []string{"NATS disconnected"}, status.Errors)

	// not running: the queue backs up
	for i := 0; i < 10; i++ {
		w.Publish(mustEvent(t, "r-1", events.EventTypeTimerTick))
	}
	status = NewHealthChecker(w, fakeConn(true)).Check(context.Background())
	assert.False(t, status.Healthy)
	assert.Equal(t, 10, status.PendingEvents)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)
	require.Eventually(t, func() bool {
		processed, _, _ := w.Stats()
		return processed == 10
	}, time.Second, 5*time.Millisecond)

	status = NewHealthChecker(w, fakeConn(true)).Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Equal(t, uint64(10), status.EventsProcessed)
	assert.False(t, status.LastEventTime.IsZero())
}
