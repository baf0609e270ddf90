package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/service"
)

// CollaborationHandler serves the collaborator roster and comment threads of
// a snippet. Both hang off /api/snippets/{id}.
type CollaborationHandler struct {
	collaborators *service.CollaboratorService
	comments      *service.CommentService
	logger        *slog.Logger
}

func NewCollaborationHandler(
	collaborators *service.CollaboratorService,
	comments *service.CommentService,
	logger *slog.Logger,
) *CollaborationHandler {
	return &CollaborationHandler{collaborators: collaborators, comments: comments, logger: logger}
}

// HTTP: GET /api/snippets/{id}/collaborators
func (h *CollaborationHandler) HandleListCollaborators(w http.ResponseWriter, r *http.Request) {
	list, err := h.collaborators.List(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type inviteRequest struct {
	Username string     `json:"username" validate:"required"`
	Role     model.Role `json:"role" validate:"required"`
}

// HTTP: POST /api/snippets/{id}/collaborators
func (h *CollaborationHandler) HandleInvite(w http.ResponseWriter, r *http.Request) {
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.collaborators.Invite(r.Context(), userID(r), chi.URLParam(r, "id"), req.Username, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// HTTP: POST /api/snippets/{id}/collaborators/accept
func (h *CollaborationHandler) HandleAccept(w http.ResponseWriter, r *http.Request) {
	c, err := h.collaborators.Accept(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: DELETE /api/snippets/{id}/collaborators/{userID}
func (h *CollaborationHandler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	err := h.collaborators.Remove(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleThreads returns the comments as a forest: top-level comments with
// their replies nested.
//
// HTTP: GET /api/snippets/{id}/comments
func (h *CollaborationHandler) HandleThreads(w http.ResponseWriter, r *http.Request) {
	threads, err := h.comments.Threads(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, threads)
}

type commentRequest struct {
	Content  string `json:"content" validate:"required"`
	ParentID string `json:"parentId"`
	Line     *int   `json:"line" validate:"omitempty,min=0"`
}

// HTTP: POST /api/snippets/{id}/comments
func (h *CollaborationHandler) HandleComment(w http.ResponseWriter, r *http.Request) {
	var req commentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.comments.Create(r.Context(), userID(r), chi.URLParam(r, "id"), service.CommentInput{
		Content:  req.Content,
		ParentID: req.ParentID,
		Line:     req.Line,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type resolveRequest struct {
	Resolved bool `json:"resolved"`
}

// HTTP: PUT /api/snippets/{id}/comments/{commentID}
func (h *CollaborationHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	c, err := h.comments.SetResolved(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "commentID"), req.Resolved)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// HTTP: DELETE /api/snippets/{id}/comments/{commentID}
func (h *CollaborationHandler) HandleDeleteComment(w http.ResponseWriter, r *http.Request) {
	if err := h.comments.Delete(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "commentID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// NotificationHandler serves the caller's inbox. Every route requires a
// signed-in user; the services enforce that notifications are only ever
// touched by their recipient.
type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

// HTTP: GET /api/notifications?limit=&offset=
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.notifications.List(r.Context(), userID(r), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: GET /api/notifications/unread-count
func (h *NotificationHandler) HandleUnreadCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.UnreadCount(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// HTTP: POST /api/notifications/{id}/read
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HTTP: POST /api/notifications/read-all
func (h *NotificationHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

// HTTP: DELETE /api/notifications/{id}
func (h *NotificationHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
