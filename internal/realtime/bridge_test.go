package realtime_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/events"
	"github.com/sakif/vinstackcode/internal/realtime"
)

type chanSubscriber struct {
	ch  chan events.ChangeEvent
	err error
}

func (s *chanSubscriber) Subscribe(context.Context) (<-chan events.ChangeEvent, error) {
	return s.ch, s.err
}

type sentMessage struct {
	room string
	msg  realtime.Message
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []sentMessage
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, room string, msg realtime.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sentMessage{room: room, msg: msg})
	return nil
}

func (r *recordingBroadcaster) snapshot() []sentMessage {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentMessage(nil), r.sent...)
}

func TestBridge_Forward(t *testing.T) {
	out := &recordingBroadcaster{}
	b := realtime.NewBridge(&chanSubscriber{}, out, testLogger())
	ctx := context.Background()

	require.NoError(t, b.Forward(ctx, events.ChangeEvent{
		Table: events.TableComments, Action: events.ActionInsert, RecordID: "c1", SnippetID: "s1",
	}))
	require.NoError(t, b.Forward(ctx, events.ChangeEvent{
		Table: events.TableNotifications, Action: events.ActionInsert, RecordID: "n1", UserID: "ada",
	}))

	sent := out.snapshot()
	require.Len(t, sent, 2)
	assert.Equal(t, "snippet:s1", sent[0].room)
	assert.Equal(t, realtime.TypeRowChange, sent[0].msg.Type)
	assert.Equal(t, "user:ada", sent[1].room)
	assert.Equal(t, realtime.TypeNotification, sent[1].msg.Type)

	var ev events.ChangeEvent
	require.NoError(t, sent[0].msg.Decode(&ev))
	assert.Equal(t, "c1", ev.RecordID)
	assert.Equal(t, events.TableComments, ev.Table)
}

func TestBridge_ServeUntilCanceled(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan events.ChangeEvent, 1)}
	out := &recordingBroadcaster{}
	b := realtime.NewBridge(sub, out, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- b.Serve(ctx) }()

	sub.ch <- events.ChangeEvent{Table: events.TableSnippets, Action: events.ActionUpdate, RecordID: "s1", SnippetID: "s1"}
	require.Eventually(t, func() bool { return len(out.snapshot()) == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestBridge_ClosedSubscriptionIsAnError(t *testing.T) {
	sub := &chanSubscriber{ch: make(chan events.ChangeEvent)}
	close(sub.ch)
	b := realtime.NewBridge(sub, &recordingBroadcaster{}, testLogger())

	err := b.Serve(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, context.Canceled)

	failing := realtime.NewBridge(&chanSubscriber{err: errors.New("no broker")}, &recordingBroadcaster{}, testLogger())
	assert.EqualError(t, failing.Serve(context.Background()), "no broker")
}

// readySubscriber reports when the wrapped subscription is in place.
type readySubscriber struct {
	realtime.Subscriber
	ready chan struct{}
}

func (s readySubscriber) Subscribe(ctx context.Context) (<-chan events.ChangeEvent, error) {
	ch, err := s.Subscriber.Subscribe(ctx)
	close(s.ready)
	return ch, err
}

// The bridge and hub together: a change event reaches a websocket client.
func TestBridge_EndToEnd(t *testing.T) {
	hub, srv := startHub(t, realtime.DefaultHubConfig())
	conn := dial(t, srv, realtime.SnippetRoom("s1"), "ada")
	read(t, conn) // presence_state
	require.Eventually(t, func() bool { return hub.RoomSize("snippet:s1") == 1 }, time.Second, 5*time.Millisecond)

	bus := events.NewInProcessBus(testLogger())
	t.Cleanup(func() { _ = bus.Close() })
	sub := readySubscriber{Subscriber: bus, ready: make(chan struct{})}
	bridge := realtime.NewBridge(sub, hub, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bridge.Serve(ctx) }()
	<-sub.ready

	ev := events.ChangeEvent{Table: events.TableComments, Action: events.ActionInsert, RecordID: "c1", SnippetID: "s1"}
	require.NoError(t, bus.Publish(ctx, ev))

	got := read(t, conn)
	assert.Equal(t, realtime.TypeRowChange, got.Type)
	var forwarded events.ChangeEvent
	require.NoError(t, got.Decode(&forwarded))
	assert.Equal(t, "c1", forwarded.RecordID)
}
