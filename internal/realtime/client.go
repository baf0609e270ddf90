package realtime

import (
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/sakif/vinstackcode/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ClientInfo says who is on the other end of a connection and which room it
// listens to. UserID is empty for anonymous readers of public snippets.
type ClientInfo struct {
	UserID   string
	Username string
	Room     string
}

// outbound is an encoded message waiting in a client's send buffer. The type
// travels alongside so the write pump can count it without decoding.
type outbound struct {
	typ  MessageType
	data []byte
}

// Client is one websocket connection. The hub owns its membership; the two
// pumps own the connection.
type Client struct {
	id      string
	info    ClientInfo
	hub     *Hub
	conn    *websocket.Conn
	send    chan outbound
	gone    chan struct{} // closed by the hub when it drops the client
	limiter *rate.Limiter
	logger  *slog.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, info ClientInfo) *Client {
	id := uuid.NewString()
	return &Client{
		id:      id,
		info:    info,
		hub:     hub,
		conn:    conn,
		send:    make(chan outbound, hub.cfg.SendBuffer),
		gone:    make(chan struct{}),
		limiter: rate.NewLimiter(rate.Limit(hub.cfg.CursorRate), hub.cfg.CursorBurst),
		logger: hub.logger.With(
			slog.String("clientId", id),
			slog.String("room", info.Room),
		),
	}
}

func (c *Client) ID() string       { return c.id }
func (c *Client) Info() ClientInfo { return c.info }

// enqueue hands msg to the write pump without blocking. It reports false when
// the buffer is full. Only the hub goroutine calls it.
func (c *Client) enqueue(msg outbound) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// readPump turns incoming frames into hub actions until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error("failed to set read deadline", slog.String("error", err.Error()))
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("unexpected websocket close", slog.String("error", err.Error()))
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(TypeError, ErrorData{Message: "malformed message"})
			continue
		}
		metrics.WSMessagesTotal.WithLabelValues("in", string(msg.Type)).Inc()

		switch msg.Type {
		case TypePing:
			c.reply(TypePong, nil)
		case TypeCursor:
			c.handleCursor(msg)
		default:
			c.reply(TypeError, ErrorData{Message: "unsupported message type"})
		}
	}
}

// handleCursor relays the sender's caret to the rest of the room. The
// identity on the relayed message is always the connection's own.
func (c *Client) handleCursor(msg Message) {
	if c.info.UserID == "" {
		c.reply(TypeError, ErrorData{Message: "sign in to share your cursor"})
		return
	}
	var cur Cursor
	if err := msg.Decode(&cur); err != nil || cur.Line < 0 || cur.Column < 0 {
		c.reply(TypeError, ErrorData{Message: "invalid cursor"})
		return
	}
	if !c.limiter.Allow() {
		metrics.WSMessagesDropped.WithLabelValues("rate_limited").Inc()
		return
	}
	cur.UserID = c.info.UserID
	cur.Username = c.info.Username

	relay, err := NewMessage(TypeCursor, cur)
	if err != nil {
		c.logger.Error("failed to encode cursor", slog.String("error", err.Error()))
		return
	}
	c.hub.relay(c, relay)
}

// reply queues a message for this connection only.
func (c *Client) reply(t MessageType, data any) {
	msg, err := NewMessage(t, data)
	if err != nil {
		c.logger.Error("failed to encode reply", slog.String("error", err.Error()))
		return
	}
	c.hub.direct(c, msg)
}

// writePump drains the send buffer onto the connection and keeps it alive
// with pings. It exits when the hub closes the buffer or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				c.logger.Debug("websocket write failed", slog.String("error", err.Error()))
				return
			}
			metrics.WSMessagesTotal.WithLabelValues("out", string(msg.typ)).Inc()

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) start() {
	go c.writePump()
	go c.readPump()
}
