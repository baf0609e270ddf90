// Package collabclient is the Go client for a realtime channel: it keeps one
// logical websocket per snippet (or per user inbox) alive across drops and
// keeps local state in step with the server.
//
// RE-FETCH, DON'T MERGE:
// A row_change message says "something in this snippet changed", not what.
// The session answers every one of them, and every (re)connect, by asking
// its Reconciler to fetch the current state again. Events missed while
// disconnected therefore cannot leave the client out of date, and there is
// no diffing code to get wrong. Cursors and presence are the exception: they
// are applied straight from the message because they are never stored.
//
// CALLBACKS:
// Handlers run on the session's own goroutine, one at a time. Once Close has
// returned none of them runs again. A handler must not call Close directly;
// use go s.Close() if a handler decides the session is over.
package collabclient

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sakif/vinstackcode/internal/realtime"
)

var (
	ErrNotConnected = errors.New("collabclient: not connected")
	ErrClosed       = errors.New("collabclient: session closed")
	// ErrThrottled is returned by SendCursor when updates arrive faster than
	// the configured rate. The caller can simply send the next position.
	ErrThrottled = errors.New("collabclient: cursor update throttled")
)

const (
	readWait  = 75 * time.Second // the server pings every 54s
	writeWait = 5 * time.Second
)

// Reconciler reloads the state a channel describes.
type Reconciler interface {
	Reconcile(ctx context.Context) error
}

// Config says where to connect and how to retry.
type Config struct {
	URL    string
	Header http.Header
	Dialer *websocket.Dialer
	// Retryer drives redials after a drop. nil disables reconnection.
	Retryer     Retryer
	CursorRate  float64
	CursorBurst int
}

// Handlers receive the session's events. Any of them may be nil.
type Handlers struct {
	OnStateChange func(from, to State)
	OnReconciled  func()
	OnCursor      func(realtime.Cursor)
	// OnPresence receives the full roster after every change.
	OnPresence func([]realtime.Presence)
	OnError    func(error)
}

// Session is one logical realtime channel.
type Session struct {
	cfg        Config
	reconciler Reconciler
	handlers   Handlers
	logger     *slog.Logger
	limiter    *rate.Limiter

	stateMu sync.Mutex
	state   State

	connMu sync.Mutex // guards conn and serializes writes
	conn   *websocket.Conn

	cbMu   sync.Mutex // held while a handler runs
	closed bool

	dataMu   sync.RWMutex
	cursors  map[string]realtime.Cursor
	presence map[string]realtime.Presence

	// cancel and done belong to the running loop; guarded by stateMu.
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSession(cfg Config, reconciler Reconciler, handlers Handlers, logger *slog.Logger) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.CursorRate <= 0 {
		cfg.CursorRate = 15
	}
	if cfg.CursorBurst <= 0 {
		cfg.CursorBurst = 5
	}
	return &Session{
		cfg:        cfg,
		reconciler: reconciler,
		handlers:   handlers,
		logger:     logger.With(slog.String("channel", cfg.URL)),
		limiter:    rate.NewLimiter(rate.Limit(cfg.CursorRate), cfg.CursorBurst),
		state:      StateDisconnected,
		cursors:    make(map[string]realtime.Cursor),
		presence:   make(map[string]realtime.Presence),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// IsConnected reports whether the channel is currently up.
func (s *Session) IsConnected() bool {
	return s.State().Connected()
}

// Connect dials the channel, reconciles once and starts listening. ctx bounds
// the initial dial and fetch only; the session lives until Close.
func (s *Session) Connect(ctx context.Context) error {
	if err := s.transition(StateConnecting); err != nil {
		if s.State() == StateClosed {
			return ErrClosed
		}
		return err
	}

	conn, err := s.dial(ctx)
	if err != nil {
		_ = s.transition(StateDisconnected)
		return err
	}
	s.setConn(conn)

	if err := s.reconcile(ctx); err != nil {
		s.dropConn()
		_ = s.transition(StateDisconnected)
		return err
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.stateMu.Lock()
	s.cancel, s.done = cancel, done
	s.stateMu.Unlock()

	go s.loop(loopCtx, conn, done)
	return nil
}

// Close stops the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.cbMu.Lock()
	if s.closed {
		s.cbMu.Unlock()
		return nil
	}
	s.closed = true
	s.cbMu.Unlock()

	_ = s.transition(StateClosed)
	s.stateMu.Lock()
	cancel, done := s.cancel, s.done
	s.stateMu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.dropConn()
	if done != nil {
		<-done
	}
	return nil
}

// Cursors returns a copy of the other users' cursors keyed by user id.
func (s *Session) Cursors() map[string]realtime.Cursor {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	out := make(map[string]realtime.Cursor, len(s.cursors))
	for k, v := range s.cursors {
		out[k] = v
	}
	return out
}

// Presence returns the users in the channel sorted by user id.
func (s *Session) Presence() []realtime.Presence {
	s.dataMu.RLock()
	defer s.dataMu.RUnlock()
	return s.rosterLocked()
}

// SendCursor shares the local caret with the room.
func (s *Session) SendCursor(ctx context.Context, line, column int, color string) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	if !s.limiter.Allow() {
		return ErrThrottled
	}
	msg, err := realtime.NewMessage(realtime.TypeCursor, realtime.Cursor{Line: line, Column: column, Color: color})
	if err != nil {
		return err
	}
	return s.write(ctx, msg)
}

// =========================================================================
// LOOP
// =========================================================================

func (s *Session) loop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)

	for {
		err := s.listen(ctx, conn)
		if s.isClosed() || ctx.Err() != nil {
			return
		}
		s.logger.Info("realtime channel dropped", slog.String("error", err.Error()))
		s.dropConn()
		s.resetEphemeral()
		if terr := s.transition(StateDisconnected); terr != nil {
			return
		}
		if s.cfg.Retryer == nil {
			s.emitError(fmt.Errorf("collabclient: connection lost: %w", err))
			return
		}

		conn, err = s.reconnect(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.emitError(err)
			}
			return
		}
	}
}

func (s *Session) reconnect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for failures := 0; ; failures++ {
		if failures > 0 {
			if err := s.wait(ctx, failures-1, lastErr); err != nil {
				return nil, err
			}
		}
		if err := s.transition(StateConnecting); err != nil {
			return nil, err
		}
		conn, err := s.dial(ctx)
		if err != nil {
			_ = s.transition(StateDisconnected)
			return nil, err
		}
		s.setConn(conn)

		if err := s.reconcile(ctx); err != nil {
			// The channel is up but the state could not be loaded; start
			// over rather than run with stale data.
			s.dropConn()
			_ = s.transition(StateDisconnected)
			if ctx.Err() != nil || s.isClosed() {
				return nil, err
			}
			s.emitError(err)
			lastErr = err
			continue
		}
		return conn, nil
	}
}

// listen reads until the connection fails.
func (s *Session) listen(ctx context.Context, conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(readWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(readWait))

		var msg realtime.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			s.logger.Warn("ignoring malformed realtime message", slog.String("error", err.Error()))
			continue
		}
		s.dispatch(ctx, msg)
	}
}

func (s *Session) dispatch(ctx context.Context, msg realtime.Message) {
	switch msg.Type {
	case realtime.TypeRowChange, realtime.TypeNotification:
		if err := s.reconcile(ctx); err != nil && !s.isClosed() {
			s.emitError(err)
		}

	case realtime.TypeCursor:
		var c realtime.Cursor
		if err := msg.Decode(&c); err != nil || c.UserID == "" {
			return
		}
		s.dataMu.Lock()
		s.cursors[c.UserID] = c
		s.dataMu.Unlock()
		s.emit(func() {
			if s.handlers.OnCursor != nil {
				s.handlers.OnCursor(c)
			}
		})

	case realtime.TypePresenceState:
		var ps realtime.PresenceState
		if err := msg.Decode(&ps); err != nil {
			return
		}
		s.dataMu.Lock()
		s.presence = make(map[string]realtime.Presence, len(ps.Users))
		for _, p := range ps.Users {
			s.presence[p.UserID] = p
		}
		s.dataMu.Unlock()
		s.emitPresence()

	case realtime.TypePresenceJoin:
		var p realtime.Presence
		if err := msg.Decode(&p); err != nil {
			return
		}
		s.dataMu.Lock()
		s.presence[p.UserID] = p
		s.dataMu.Unlock()
		s.emitPresence()

	case realtime.TypePresenceLeave:
		var p realtime.Presence
		if err := msg.Decode(&p); err != nil {
			return
		}
		s.dataMu.Lock()
		delete(s.presence, p.UserID)
		delete(s.cursors, p.UserID)
		s.dataMu.Unlock()
		s.emitPresence()

	case realtime.TypeError:
		var e realtime.ErrorData
		if err := msg.Decode(&e); err == nil {
			s.emitError(fmt.Errorf("collabclient: server: %s", e.Message))
		}

	case realtime.TypePing, realtime.TypePong:
	}
}

// reconcile moves through Reconciling while the state is re-fetched.
func (s *Session) reconcile(ctx context.Context) error {
	if err := s.transition(StateReconciling); err != nil {
		return err
	}
	var err error
	if s.reconciler != nil {
		err = s.reconciler.Reconcile(ctx)
	}
	if terr := s.transition(StateSynced); terr != nil {
		return terr
	}
	if err != nil {
		return fmt.Errorf("collabclient: reconciling: %w", err)
	}
	s.emit(func() {
		if s.handlers.OnReconciled != nil {
			s.handlers.OnReconciled()
		}
	})
	return nil
}

// =========================================================================
// CONNECTION
// =========================================================================

// dial connects, retrying through the Retryer. A handshake the server
// rejected with a 4xx (bad token, no access) is not retried.
func (s *Session) dial(ctx context.Context) (*websocket.Conn, error) {
	for attempt := 0; ; attempt++ {
		conn, resp, err := s.cfg.Dialer.DialContext(ctx, s.cfg.URL, s.cfg.Header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err == nil {
			if s.cfg.Retryer != nil {
				s.cfg.Retryer.Reset()
			}
			return conn, nil
		}
		if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, fmt.Errorf("collabclient: channel refused with status %d: %w", resp.StatusCode, err)
		}
		if s.cfg.Retryer == nil || ctx.Err() != nil {
			return nil, fmt.Errorf("collabclient: dialing: %w", err)
		}

		if werr := s.wait(ctx, attempt, err); werr != nil {
			return nil, werr
		}
	}
}

// wait sleeps for the Retryer's next delay.
func (s *Session) wait(ctx context.Context, attempt int, lastErr error) error {
	if s.cfg.Retryer == nil {
		return fmt.Errorf("collabclient: not retrying: %w", lastErr)
	}
	delay, ok := s.cfg.Retryer.NextDelay(attempt, lastErr)
	if !ok {
		return fmt.Errorf("collabclient: giving up after %d attempts: %w", attempt+1, lastErr)
	}
	s.logger.Debug("retrying realtime channel", slog.Int("attempt", attempt+1), slog.Duration("delay", delay))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Session) write(ctx context.Context, msg realtime.Message) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	_ = s.conn.SetWriteDeadline(deadline)
	return s.conn.WriteMessage(websocket.TextMessage, raw)
}

func (s *Session) setConn(conn *websocket.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conn = conn
}

func (s *Session) dropConn() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	_ = s.conn.Close()
	s.conn = nil
}

// =========================================================================
// STATE AND CALLBACKS
// =========================================================================

func (s *Session) transition(next State) error {
	s.stateMu.Lock()
	prev := s.state
	if err := prev.validateTransitionTo(next); err != nil {
		s.stateMu.Unlock()
		return err
	}
	s.state = next
	s.stateMu.Unlock()

	s.logger.Debug("session state changed", slog.String("from", prev.String()), slog.String("to", next.String()))
	s.emit(func() {
		if s.handlers.OnStateChange != nil {
			s.handlers.OnStateChange(prev, next)
		}
	})
	return nil
}

// emit runs fn unless the session is closed.
func (s *Session) emit(fn func()) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	if s.closed {
		return
	}
	fn()
}

func (s *Session) emitError(err error) {
	s.logger.Warn("realtime session error", slog.String("error", err.Error()))
	s.emit(func() {
		if s.handlers.OnError != nil {
			s.handlers.OnError(err)
		}
	})
}

func (s *Session) emitPresence() {
	roster := s.Presence()
	s.emit(func() {
		if s.handlers.OnPresence != nil {
			s.handlers.OnPresence(roster)
		}
	})
}

func (s *Session) isClosed() bool {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	return s.closed
}

// resetEphemeral forgets cursors and presence; the server resends presence
// after the next connect.
func (s *Session) resetEphemeral() {
	s.dataMu.Lock()
	s.cursors = make(map[string]realtime.Cursor)
	s.presence = make(map[string]realtime.Presence)
	s.dataMu.Unlock()
}

func (s *Session) rosterLocked() []realtime.Presence {
	out := make([]realtime.Presence, 0, len(s.presence))
	for _, p := range s.presence {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
