// Package realtime is the websocket side of collaboration: one room per
// snippet for row changes, cursors and presence, and one room per user for
// notifications.
//
// OWNERSHIP:
// A single goroutine (Hub.Serve) owns every room. Connections, the event
// bridge and the HTTP handlers talk to it over channels, so the room maps are
// never touched concurrently and no message can be delivered to a client the
// hub has already dropped.
//
// SLOW CLIENTS:
// Each client has a bounded send buffer. When it fills up the hub drops the
// client instead of the message. A dropped client reconnects and re-fetches,
// which is exactly what it does after any other disconnect, whereas a
// silently skipped row_change would leave its screen stale.
//
// PRESENCE:
// A user with three tabs open on the same snippet is one presence entry.
// presence_join goes out when their first connection arrives and
// presence_leave when their last one goes.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/sakif/vinstackcode/internal/metrics"
)

// ErrHubUnavailable is returned when the hub is not accepting connections.
var ErrHubUnavailable = errors.New("realtime: hub is not running")

// attachTimeout bounds how long an upgraded connection waits for the hub.
const attachTimeout = 5 * time.Second

// HubConfig tunes per-connection limits.
type HubConfig struct {
	SendBuffer  int
	CursorRate  float64 // cursor messages per second per connection
	CursorBurst int
}

func DefaultHubConfig() HubConfig {
	return HubConfig{SendBuffer: 256, CursorRate: 20, CursorBurst: 10}
}

// envelope is a message addressed to a room. only narrows delivery to a
// single client; except skips one.
type envelope struct {
	room   string
	msg    Message
	only   *Client
	except *Client
}

type member struct {
	username string
	conns    int
}

// Hub routes messages between the clients of each room.
type Hub struct {
	cfg    HubConfig
	logger *slog.Logger

	register   chan *Client
	unregister chan *Client
	inbox      chan envelope

	// mu guards the maps for the read-only accessors. Serve is the only
	// writer.
	mu       sync.RWMutex
	rooms    map[string]map[*Client]struct{}
	presence map[string]map[string]*member
}

func NewHub(cfg HubConfig, logger *slog.Logger) *Hub {
	def := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = def.SendBuffer
	}
	if cfg.CursorRate <= 0 {
		cfg.CursorRate = def.CursorRate
	}
	if cfg.CursorBurst <= 0 {
		cfg.CursorBurst = def.CursorBurst
	}
	return &Hub{
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "realtime-hub")),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbox:      make(chan envelope, 256),
		rooms:      make(map[string]map[*Client]struct{}),
		presence:   make(map[string]map[string]*member),
	}
}

// String names the hub in supervisor logs.
func (h *Hub) String() string { return "realtime-hub" }

// Serve runs the hub until ctx is canceled. On shutdown every client is
// closed so a restarted hub starts from empty rooms.
//
// Lifecycle events are drained before messages, so a client is always in its
// room before anything addressed to that room is delivered.
func (h *Hub) Serve(ctx context.Context) error {
	h.logger.Info("realtime hub started")
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case env := <-h.inbox:
			h.deliver(env)
		}
	}
}

// Attach wraps an upgraded connection in a client, joins it to info.Room and
// starts its pumps. The connection is closed when the hub cannot take it.
func (h *Hub) Attach(ctx context.Context, conn *websocket.Conn, info ClientInfo) (*Client, error) {
	if info.Room == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("realtime: client has no room")
	}
	c := newClient(h, conn, info)

	ctx, cancel := context.WithTimeout(ctx, attachTimeout)
	defer cancel()
	select {
	case h.register <- c:
	case <-ctx.Done():
		_ = conn.Close()
		return nil, ErrHubUnavailable
	}
	c.start()
	return c, nil
}

// Broadcast delivers msg to every client in room.
func (h *Hub) Broadcast(ctx context.Context, room string, msg Message) error {
	select {
	case h.inbox <- envelope{room: room, msg: msg}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ClientCount is the number of connected clients across all rooms.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.rooms {
		n += len(clients)
	}
	return n
}

// RoomSize is the number of connections in room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

// Roster lists the users present in room, sorted by user id.
func (h *Hub) Roster(room string) []Presence {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked(room)
}

// =========================================================================
// CALLED FROM CLIENT PUMPS
// =========================================================================

// The pumps select on c.gone so they never block on a hub that has already
// let go of the client.

func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-c.gone:
	}
}

func (h *Hub) relay(from *Client, msg Message) {
	h.post(from, envelope{room: from.info.Room, msg: msg, except: from})
}

func (h *Hub) direct(to *Client, msg Message) {
	h.post(to, envelope{room: to.info.Room, msg: msg, only: to})
}

func (h *Hub) post(c *Client, env envelope) {
	select {
	case h.inbox <- env:
	case <-c.gone:
	}
}

// =========================================================================
// HUB GOROUTINE ONLY
// =========================================================================

func (h *Hub) add(c *Client) {
	room := c.info.Room

	h.mu.Lock()
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*Client]struct{})
	}
	h.rooms[room][c] = struct{}{}
	firstConn := false
	if tracksPresence(room) && c.info.UserID != "" {
		if h.presence[room] == nil {
			h.presence[room] = make(map[string]*member)
		}
		m, ok := h.presence[room][c.info.UserID]
		if !ok {
			m = &member{username: c.info.Username}
			h.presence[room][c.info.UserID] = m
			firstConn = true
		}
		m.conns++
	}
	roster := h.rosterLocked(room)
	h.mu.Unlock()

	metrics.WSConnections.Inc()
	c.logger.Debug("client joined", slog.String("userId", c.info.UserID))

	if !tracksPresence(room) {
		return
	}
	if msg, err := NewMessage(TypePresenceState, PresenceState{Users: roster}); err == nil {
		h.deliver(envelope{room: room, msg: msg, only: c})
	}
	if firstConn {
		p := Presence{UserID: c.info.UserID, Username: c.info.Username}
		if msg, err := NewMessage(TypePresenceJoin, p); err == nil {
			h.deliver(envelope{room: room, msg: msg, except: c})
		}
	}
}

// remove drops c from its room and closes its send buffer. It is a no-op for
// a client that is already gone.
func (h *Hub) remove(c *Client) {
	room := c.info.Room

	h.mu.Lock()
	clients, ok := h.rooms[room]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, present := clients[c]; !present {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.rooms, room)
	}
	close(c.send)
	close(c.gone)

	lastConn := false
	if members := h.presence[room]; members != nil && c.info.UserID != "" {
		if m, ok := members[c.info.UserID]; ok {
			m.conns--
			if m.conns <= 0 {
				delete(members, c.info.UserID)
				lastConn = true
			}
		}
		if len(members) == 0 {
			delete(h.presence, room)
		}
	}
	h.mu.Unlock()

	metrics.WSConnections.Dec()
	c.logger.Debug("client left", slog.String("userId", c.info.UserID))

	if lastConn {
		p := Presence{UserID: c.info.UserID, Username: c.info.Username}
		if msg, err := NewMessage(TypePresenceLeave, p); err == nil {
			h.deliver(envelope{room: room, msg: msg})
		}
	}
}

// deliver encodes env once and queues it on every addressed client. Clients
// whose buffer is full are dropped after the loop.
func (h *Hub) deliver(env envelope) {
	data, err := json.Marshal(env.msg)
	if err != nil {
		h.logger.Error("failed to encode message",
			slog.String("type", string(env.msg.Type)),
			slog.String("error", err.Error()),
		)
		return
	}
	out := outbound{typ: env.msg.Type, data: data}

	var slow []*Client
	h.mu.RLock()
	for c := range h.rooms[env.room] {
		if env.only != nil && c != env.only {
			continue
		}
		if c == env.except {
			continue
		}
		if !c.enqueue(out) {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		metrics.WSMessagesDropped.WithLabelValues("slow_consumer").Inc()
		c.logger.Warn("dropping slow websocket client", slog.String("type", string(env.msg.Type)))
		h.remove(c)
	}
}

func (h *Hub) shutdown() {
	h.mu.RLock()
	var all []*Client
	for _, clients := range h.rooms {
		for c := range clients {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.remove(c)
	}
	h.logger.Info("realtime hub stopped", slog.Int("closedClients", len(all)))
}

func (h *Hub) rosterLocked(room string) []Presence {
	members := h.presence[room]
	out := make([]Presence, 0, len(members))
	for id, m := range members {
		out = append(out, Presence{UserID: id, Username: m.username})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Only snippet rooms have presence; a user's notification room is private.
func tracksPresence(room string) bool {
	return strings.HasPrefix(room, "snippet:")
}
