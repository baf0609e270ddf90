package realtime_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/vinstackcode/internal/realtime"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// startHub runs a hub for the test and serves it over httptest. The user
// and room come from query parameters so each dial can pick its identity.
func startHub(t *testing.T, cfg realtime.HubConfig) (*realtime.Hub, *httptest.Server) {
	t.Helper()
	hub := realtime.NewHub(cfg, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = hub.Serve(ctx)
	}()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		q := r.URL.Query()
		_, _ = hub.Attach(r.Context(), conn, realtime.ClientInfo{
			UserID:   q.Get("user"),
			Username: q.Get("name"),
			Room:     q.Get("room"),
		})
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
		<-done
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, room, user string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?room=" + room + "&user=" + user + "&name=" + user
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func read(t *testing.T, conn *websocket.Conn) realtime.Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	var msg realtime.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

// readType skips messages until one of type want arrives.
func readType(t *testing.T, conn *websocket.Conn, want realtime.MessageType) realtime.Message {
	t.Helper()
	for range 10 {
		msg := read(t, conn)
		if msg.Type == want {
			return msg
		}
	}
	t.Fatalf("no %s message received", want)
	return realtime.Message{}
}

func send(t *testing.T, conn *websocket.Conn, typ realtime.MessageType, data any) {
	t.Helper()
	msg, err := realtime.NewMessage(typ, data)
	require.NoError(t, err)
	raw, err := json.Marshal(msg)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 10*time.Millisecond)
}

func TestHub_PresenceStateOnJoin(t *testing.T) {
	hub, srv := startHub(t, realtime.DefaultHubConfig())
	room := realtime.SnippetRoom("s1")

	ada := dial(t, srv, room, "ada")
	state := read(t, ada)
	require.Equal(t, realtime.TypePresenceState, state.Type)
	var ps realtime.PresenceState
	require.NoError(t, state.Decode(&ps))
	assert.Equal(t, []realtime.Presence{{UserID: "ada", Username: "ada"}}, ps.Users)

	bob := dial(t, srv, room, "bob")
	state = read(t, bob)
	require.NoError(t, state.Decode(&ps))
	assert.Len(t, ps.Users, 2)

	join := read(t, ada)
	require.Equal(t, realtime.TypePresenceJoin, join.Type)
	var p realtime.Presence
	require.NoError(t, join.Decode(&p))
	assert.Equal(t, "bob", p.UserID)

	waitFor(t, func() bool { return hub.RoomSize(room) == 2 })
}

func TestHub_PresenceIsReferenceCounted(t *testing.T) {
	hub, srv := startHub(t, realtime.DefaultHubConfig())
	room := realtime.SnippetRoom("s1")

	ada := dial(t, srv, room, "ada")
	read(t, ada) // presence_state

	bobTab1 := dial(t, srv, room, "bob")
	read(t, bobTab1)
	readType(t, ada, realtime.TypePresenceJoin)

	bobTab2 := dial(t, srv, room, "bob")
	read(t, bobTab2)
	waitFor(t, func() bool { return hub.RoomSize(room) == 3 })
	assert.Len(t, hub.Roster(room), 2)

	// Closing one of bob's tabs leaves him present.
	require.NoError(t, bobTab2.Close())
	waitFor(t, func() bool { return hub.RoomSize(room) == 2 })
	assert.Len(t, hub.Roster(room), 2)

	require.NoError(t, bobTab1.Close())
	leave := readType(t, ada, realtime.TypePresenceLeave)
	var p realtime.Presence
	require.NoError(t, leave.Decode(&p))
	assert.Equal(t, "bob", p.UserID)
	assert.Equal(t, []realtime.Presence{{UserID: "ada", Username: "ada"}}, hub.Roster(room))
}

func TestHub_CursorRelayedToOthersOnly(t *testing.T) {
	_, srv := startHub(t, realtime.DefaultHubConfig())
	room := realtime.SnippetRoom("s1")

	ada := dial(t, srv, room, "ada")
	read(t, ada)
	bob := dial(t, srv, room, "bob")
	read(t, bob)
	readType(t, ada, realtime.TypePresenceJoin)

	// The sender cannot spoof who the cursor belongs to.
	send(t, ada, realtime.TypeCursor, realtime.Cursor{UserID: "mallory", Line: 4, Column: 2, Color: "#f00"})

	msg := readType(t, bob, realtime.TypeCursor)
	var cur realtime.Cursor
	require.NoError(t, msg.Decode(&cur))
	assert.Equal(t, realtime.Cursor{UserID: "ada", Username: "ada", Line: 4, Column: 2, Color: "#f00"}, cur)

	// ada gets her pong but never her own cursor back.
	send(t, ada, realtime.TypePing, nil)
	assert.Equal(t, realtime.TypePong, read(t, ada).Type)
}

func TestHub_CursorRules(t *testing.T) {
	_, srv := startHub(t, realtime.HubConfig{CursorRate: 0.001, CursorBurst: 1})
	room := realtime.SnippetRoom("s1")

	anon := dial(t, srv, room, "")
	read(t, anon)
	send(t, anon, realtime.TypeCursor, realtime.Cursor{Line: 1})
	assert.Equal(t, realtime.TypeError, read(t, anon).Type)

	ada := dial(t, srv, room, "ada")
	read(t, ada)
	send(t, ada, realtime.TypeCursor, realtime.Cursor{Line: -1})
	assert.Equal(t, realtime.TypeError, read(t, ada).Type)

	bob := dial(t, srv, room, "bob")
	read(t, bob)
	readType(t, ada, realtime.TypePresenceJoin)

	// Burst of one: the second cursor is dropped by the limiter.
	send(t, ada, realtime.TypeCursor, realtime.Cursor{Line: 1})
	send(t, ada, realtime.TypeCursor, realtime.Cursor{Line: 2})
	send(t, ada, realtime.TypePing, nil)
	assert.Equal(t, realtime.TypePong, readType(t, ada, realtime.TypePong).Type)

	first := readType(t, bob, realtime.TypeCursor)
	var cur realtime.Cursor
	require.NoError(t, first.Decode(&cur))
	assert.Equal(t, 1, cur.Line)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "the rate-limited cursor must not be relayed")
}

func TestHub_BroadcastReachesOnlyTheRoom(t *testing.T) {
	hub, srv := startHub(t, realtime.DefaultHubConfig())

	inRoom := dial(t, srv, realtime.UserRoom("ada"), "ada")
	elsewhere := dial(t, srv, realtime.UserRoom("bob"), "bob")
	waitFor(t, func() bool { return hub.ClientCount() == 2 })

	msg, err := realtime.NewMessage(realtime.TypeNotification, map[string]string{"id": "n1"})
	require.NoError(t, err)
	require.NoError(t, hub.Broadcast(context.Background(), realtime.UserRoom("ada"), msg))

	got := read(t, inRoom)
	assert.Equal(t, realtime.TypeNotification, got.Type)

	require.NoError(t, elsewhere.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err = elsewhere.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnknownAndMalformedMessages(t *testing.T) {
	_, srv := startHub(t, realtime.DefaultHubConfig())
	conn := dial(t, srv, realtime.UserRoom("ada"), "ada")

	send(t, conn, realtime.TypeRowChange, map[string]string{})
	assert.Equal(t, realtime.TypeError, read(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{nope")))
	assert.Equal(t, realtime.TypeError, read(t, conn).Type)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub := realtime.NewHub(realtime.DefaultHubConfig(), testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_, _ = hub.Attach(r.Context(), conn, realtime.ClientInfo{UserID: "ada", Room: realtime.SnippetRoom("s1")})
	}))
	defer srv.Close()

	conn := dial(t, srv, "", "")
	read(t, conn)
	waitFor(t, func() bool { return hub.ClientCount() == 1 })

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}
