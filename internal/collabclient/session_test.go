package collabclient_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/collabclient"
	"github.com/sakif/vinstackcode/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// channelServer runs a realtime hub behind httptest. The caller's identity
// comes from the X-User header, the room from the "room" query parameter,
// and room "denied" is refused with 403.
type channelServer struct {
	hub   *realtime.Hub
	srv   *httptest.Server
	dials atomic.Int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func startChannelServer(t *testing.T) *channelServer {
	t.Helper()
	cs := &channelServer{hub: realtime.NewHub(realtime.DefaultHubConfig(), testLogger())}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = cs.hub.Serve(ctx)
	}()

	upgrader := websocket.Upgrader{}
	cs.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cs.dials.Add(1)
		room := r.URL.Query().Get("room")
		if room == "denied" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		cs.mu.Lock()
		cs.conns = append(cs.conns, conn)
		cs.mu.Unlock()
		user := r.Header.Get("X-User")
		_, _ = cs.hub.Attach(r.Context(), conn, realtime.ClientInfo{UserID: user, Username: user, Room: room})
	}))

	t.Cleanup(func() {
		cs.srv.Close()
		cancel()
		<-done
	})
	return cs
}

func (cs *channelServer) config(room, user string) collabclient.Config {
	h := http.Header{}
	h.Set("X-User", user)
	return collabclient.Config{
		URL:    "ws" + strings.TrimPrefix(cs.srv.URL, "http") + "/?room=" + room,
		Header: h,
	}
}

// dropAll severs every server-side connection.
func (cs *channelServer) dropAll() {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	for _, c := range cs.conns {
		_ = c.Close()
	}
	cs.conns = nil
}

type countingReconciler struct {
	calls atomic.Int32
	fail  atomic.Bool
}

func (r *countingReconciler) Reconcile(context.Context) error {
	r.calls.Add(1)
	if r.fail.Load() {
		return errors.New("fetch failed")
	}
	return nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 10*time.Millisecond)
}

func TestSession_ConnectReconcilesOnce(t *testing.T) {
	cs := startChannelServer(t)
	rec := &countingReconciler{}

	var mu sync.Mutex
	var states []collabclient.State
	s := collabclient.NewSession(cs.config(realtime.SnippetRoom("s1"), "ada"), rec, collabclient.Handlers{
		OnStateChange: func(_, to collabclient.State) {
			mu.Lock()
			states = append(states, to)
			mu.Unlock()
		},
	}, testLogger())
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, collabclient.StateSynced, s.State())
	assert.True(t, s.IsConnected())
	assert.EqualValues(t, 1, rec.calls.Load())

	mu.Lock()
	assert.Equal(t, []collabclient.State{
		collabclient.StateConnecting,
		collabclient.StateReconciling,
		collabclient.StateSynced,
	}, states)
	mu.Unlock()

	waitFor(t, func() bool { return len(s.Presence()) == 1 })
}

func TestSession_RowChangeTriggersReconcile(t *testing.T) {
	cs := startChannelServer(t)
	rec := &countingReconciler{}
	room := realtime.SnippetRoom("s1")

	s := collabclient.NewSession(cs.config(room, "ada"), rec, collabclient.Handlers{}, testLogger())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))
	waitFor(t, func() bool { return cs.hub.RoomSize(room) == 1 })

	msg, err := realtime.NewMessage(realtime.TypeRowChange, map[string]string{"table": "comments"})
	require.NoError(t, err)
	require.NoError(t, cs.hub.Broadcast(context.Background(), room, msg))

	waitFor(t, func() bool { return rec.calls.Load() == 2 })
	assert.Equal(t, collabclient.StateSynced, s.State())
}

func TestSession_CursorsAndPresence(t *testing.T) {
	cs := startChannelServer(t)
	room := realtime.SnippetRoom("s1")

	ada := collabclient.NewSession(cs.config(room, "ada"), nil, collabclient.Handlers{}, testLogger())
	t.Cleanup(func() { _ = ada.Close() })
	require.NoError(t, ada.Connect(context.Background()))

	cursors := make(chan realtime.Cursor, 1)
	bob := collabclient.NewSession(cs.config(room, "bob"), nil, collabclient.Handlers{
		OnCursor: func(c realtime.Cursor) { cursors <- c },
	}, testLogger())
	t.Cleanup(func() { _ = bob.Close() })
	require.NoError(t, bob.Connect(context.Background()))

	waitFor(t, func() bool { return len(ada.Presence()) == 2 })
	assert.Equal(t, "ada", ada.Presence()[0].UserID)
	assert.Equal(t, "bob", ada.Presence()[1].UserID)

	require.NoError(t, ada.SendCursor(context.Background(), 3, 7, "#ff0000"))
	select {
	case c := <-cursors:
		assert.Equal(t, "ada", c.UserID)
		assert.Equal(t, 3, c.Line)
		assert.Equal(t, 7, c.Column)
	case <-time.After(2 * time.Second):
		t.Fatal("cursor not relayed")
	}
	assert.Contains(t, bob.Cursors(), "ada")

	// Leaving removes both presence and the cursor.
	require.NoError(t, ada.Close())
	waitFor(t, func() bool { return len(bob.Presence()) == 1 })
	assert.NotContains(t, bob.Cursors(), "ada")
}

func TestSession_SendCursorRequiresConnection(t *testing.T) {
	s := collabclient.NewSession(collabclient.Config{URL: "ws://127.0.0.1:1/"}, nil, collabclient.Handlers{}, testLogger())
	assert.ErrorIs(t, s.SendCursor(context.Background(), 0, 0, ""), collabclient.ErrNotConnected)
}

func TestSession_ReconnectsAndReconcilesAfterDrop(t *testing.T) {
	cs := startChannelServer(t)
	rec := &countingReconciler{}
	room := realtime.SnippetRoom("s1")

	cfg := cs.config(room, "ada")
	cfg.Retryer = collabclient.NewFixedRetryer(20*time.Millisecond, 0)

	var disconnected atomic.Int32
	s := collabclient.NewSession(cfg, rec, collabclient.Handlers{
		OnStateChange: func(_, to collabclient.State) {
			if to == collabclient.StateDisconnected {
				disconnected.Add(1)
			}
		},
	}, testLogger())
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.Connect(context.Background()))
	waitFor(t, func() bool { return cs.hub.RoomSize(room) == 1 })

	cs.dropAll()

	waitFor(t, func() bool { return disconnected.Load() >= 1 })
	waitFor(t, func() bool {
		return rec.calls.Load() >= 2 && s.State() == collabclient.StateSynced
	})
	assert.GreaterOrEqual(t, cs.dials.Load(), int32(2))
	waitFor(t, func() bool { return cs.hub.RoomSize(room) == 1 })
}

func TestSession_NoCallbacksAfterClose(t *testing.T) {
	cs := startChannelServer(t)
	rec := &countingReconciler{}
	room := realtime.SnippetRoom("s1")

	var afterClose atomic.Bool
	var late atomic.Int32
	s := collabclient.NewSession(cs.config(room, "ada"), rec, collabclient.Handlers{
		OnReconciled: func() {
			if afterClose.Load() {
				late.Add(1)
			}
		},
		OnStateChange: func(_, _ collabclient.State) {
			if afterClose.Load() {
				late.Add(1)
			}
		},
	}, testLogger())
	require.NoError(t, s.Connect(context.Background()))
	waitFor(t, func() bool { return cs.hub.RoomSize(room) == 1 })

	require.NoError(t, s.Close())
	afterClose.Store(true)
	require.NoError(t, s.Close())

	msg, err := realtime.NewMessage(realtime.TypeRowChange, nil)
	require.NoError(t, err)
	_ = cs.hub.Broadcast(context.Background(), room, msg)

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, late.Load())
	assert.Equal(t, collabclient.StateClosed, s.State())
	assert.ErrorIs(t, s.Connect(context.Background()), collabclient.ErrClosed)
}

func TestSession_RefusedHandshakeIsNotRetried(t *testing.T) {
	cs := startChannelServer(t)
	cfg := cs.config("denied", "ada")
	cfg.Retryer = collabclient.NewFixedRetryer(10*time.Millisecond, 5)

	s := collabclient.NewSession(cfg, nil, collabclient.Handlers{}, testLogger())
	t.Cleanup(func() { _ = s.Close() })

	err := s.Connect(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.EqualValues(t, 1, cs.dials.Load())
	assert.Equal(t, collabclient.StateDisconnected, s.State())
}

func TestSession_FailedInitialReconcile(t *testing.T) {
	cs := startChannelServer(t)
	rec := &countingReconciler{}
	rec.fail.Store(true)

	s := collabclient.NewSession(cs.config(realtime.SnippetRoom("s1"), "ada"), rec, collabclient.Handlers{}, testLogger())
	t.Cleanup(func() { _ = s.Close() })

	require.Error(t, s.Connect(context.Background()))
	assert.Equal(t, collabclient.StateDisconnected, s.State())

	rec.fail.Store(false)
	require.NoError(t, s.Connect(context.Background()))
	assert.Equal(t, collabclient.StateSynced, s.State())
}
