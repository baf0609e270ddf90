package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/authz"
	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/realtime"
)

// SnippetAuthorizer decides whether a user may open a snippet's channel.
type SnippetAuthorizer interface {
	Authorize(ctx context.Context, snippetID, userID string, action authz.Action) (*model.Snippet, model.Role, error)
}

// RealtimeHandler upgrades requests to websockets and hands them to the hub.
//
// CHECK BEFORE UPGRADE:
// Authorization runs while the request is still plain HTTP, so a refused
// channel is an ordinary 401/403/404 JSON answer. Clients can tell "you may
// not" apart from "the network dropped" and do not retry the former.
//
// ORIGINS:
// Browsers always send Origin on a websocket handshake and attach cookies
// regardless of which page opened it, so a browser origin must be on the
// CORS allow-list. Requests without Origin come from non-browser clients,
// which authenticate with a Bearer header and carry no ambient cookie.
type RealtimeHandler struct {
	hub      *realtime.Hub
	access   SnippetAuthorizer
	upgrader websocket.Upgrader
	origins  []string
	logger   *slog.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, access SnippetAuthorizer, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	h := &RealtimeHandler{
		hub:     hub,
		access:  access,
		origins: allowedOrigins,
		logger:  logger,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin:      h.checkOrigin,
	}
	return h
}

// HandleSnippet joins the caller to a snippet's room: row changes, cursors
// and presence. Anyone who can read the snippet may listen; anonymous
// visitors of public snippets too.
//
// HTTP: GET /api/realtime/snippets/{id} (websocket)
func (h *RealtimeHandler) HandleSnippet(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFromContext(r.Context())
	snippetID := chi.URLParam(r, "id")

	if _, _, err := h.access.Authorize(r.Context(), snippetID, id.UserID, authz.ActionRead); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.attach(w, r, realtime.ClientInfo{
		UserID:   id.UserID,
		Username: id.Username,
		Room:     realtime.SnippetRoom(snippetID),
	})
}

// HandleNotifications joins the caller to their own inbox room.
//
// HTTP: GET /api/realtime/notifications (websocket)
func (h *RealtimeHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		writeError(w, r, h.logger, apperror.Unauthorized("sign in to receive notifications"))
		return
	}
	h.attach(w, r, realtime.ClientInfo{
		UserID:   id.UserID,
		Username: id.Username,
		Room:     realtime.UserRoom(id.UserID),
	})
}

func (h *RealtimeHandler) attach(w http.ResponseWriter, r *http.Request, info realtime.ClientInfo) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	if _, err := h.hub.Attach(r.Context(), conn, info); err != nil {
		h.logger.Warn("websocket attach failed",
			slog.String("room", info.Room),
			slog.String("error", err.Error()),
		)
		return
	}
	h.logger.Debug("websocket attached", slog.String("room", info.Room), slog.String("userId", info.UserID))
}

func (h *RealtimeHandler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.origins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	// Same-origin pages are always fine.
	if u, err := url.Parse(origin); err == nil && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	h.logger.Warn("websocket rejected from unlisted origin", slog.String("origin", sanitizeLogValue(origin)))
	return false
}

// sanitizeLogValue keeps a client-supplied header from forging log lines.
func sanitizeLogValue(s string) string {
	if len(s) > 200 {
		s = s[:200]
	}
	return strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
