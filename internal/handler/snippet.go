package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/repository"
	"github.com/sakif/vinstackcode/internal/service"
)

// SnippetHandler serves snippets, their history and likes.
//
// THIN HANDLERS:
// Each method decodes, calls one service method and encodes. Permission
// checks, validation of business rules and side effects (events,
// notifications, activity) all live in the service, so the websocket layer
// and the tests see exactly the same behaviour as HTTP clients.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

// HandleList returns the snippets the caller may read.
//
// HTTP: GET /api/snippets?language=&tag=&visibility=&owner=&folder=&q=&limit=&offset=
func (h *SnippetHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	filter := repository.SnippetFilter{
		Language:    q.Get("language"),
		Tag:         q.Get("tag"),
		Visibility:  model.Visibility(q.Get("visibility")),
		OwnerID:     q.Get("owner"),
		FolderID:    q.Get("folder"),
		Query:       q.Get("q"),
		ListOptions: opts,
	}

	snippets, err := h.snippets.List(r.Context(), userID(r), filter)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippets)
}

type createSnippetRequest struct {
	Title        string            `json:"title" validate:"required"`
	Description  string            `json:"description"`
	Content      string            `json:"content"`
	Language     string            `json:"language"`
	Tags         []string          `json:"tags"`
	Visibility   string            `json:"visibility" validate:"omitempty,oneof=public private team"`
	TeamID       string            `json:"teamId"`
	FolderID     string            `json:"folderId"`
	CustomFields map[string]string `json:"customFields"`
}

// HandleCreate stores a new snippet as version 1.
//
// HTTP: POST /api/snippets
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), userID(r), service.CreateSnippetInput{
		Title:        req.Title,
		Description:  req.Description,
		Content:      req.Content,
		Language:     req.Language,
		Tags:         req.Tags,
		Visibility:   req.Visibility,
		TeamID:       req.TeamID,
		FolderID:     req.FolderID,
		CustomFields: req.CustomFields,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippet)
}

// HandleGet returns one snippet with the caller's role and allowed actions.
//
// HTTP: GET /api/snippets/{id}[?view=false]
//
// Opening a snippet counts a view. Clients that re-fetch after a realtime
// event pass view=false so their refreshes do not inflate the counter.
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	get := h.snippets.Get
	if countView, err := strconv.ParseBool(r.URL.Query().Get("view")); err == nil && !countView {
		get = h.snippets.Peek
	}

	detail, err := get(r.Context(), userID(r), id)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

type updateSnippetRequest struct {
	Title         *string           `json:"title"`
	Description   *string           `json:"description"`
	Content       *string           `json:"content"`
	Language      *string           `json:"language"`
	Tags          []string          `json:"tags"`
	Visibility    *string           `json:"visibility" validate:"omitempty,oneof=public private team"`
	TeamID        *string           `json:"teamId"`
	FolderID      *string           `json:"folderId"`
	CustomFields  map[string]string `json:"customFields"`
	ChangeMessage string            `json:"changeMessage" validate:"max=500"`
}

// HandleUpdate applies a partial update and appends a version.
//
// HTTP: PUT /api/snippets/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateSnippetRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), userID(r), chi.URLParam(r, "id"), service.UpdateSnippetInput{
		Title:         req.Title,
		Description:   req.Description,
		Content:       req.Content,
		Language:      req.Language,
		Tags:          req.Tags,
		Visibility:    req.Visibility,
		TeamID:        req.TeamID,
		FolderID:      req.FolderID,
		CustomFields:  req.CustomFields,
		ChangeMessage: req.ChangeMessage,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleDelete removes a snippet and everything hanging off it.
//
// HTTP: DELETE /api/snippets/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), userID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVersions lists the history, newest first.
//
// HTTP: GET /api/snippets/{id}/versions
func (h *SnippetHandler) HandleVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := h.snippets.Versions(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

// HandleVersion returns one version.
//
// HTTP: GET /api/snippets/{id}/versions/{number}
func (h *SnippetHandler) HandleVersion(w http.ResponseWriter, r *http.Request) {
	number, err := pathInt(r, "number")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	version, err := h.snippets.Version(r.Context(), userID(r), chi.URLParam(r, "id"), number)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

// HandleRestore copies an old version forward as the newest one.
//
// HTTP: POST /api/snippets/{id}/versions/{number}/restore
func (h *SnippetHandler) HandleRestore(w http.ResponseWriter, r *http.Request) {
	number, err := pathInt(r, "number")
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	snippet, err := h.snippets.Restore(r.Context(), userID(r), chi.URLParam(r, "id"), number)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleLike and HandleUnlike are idempotent.
//
// HTTP: POST /api/snippets/{id}/like, DELETE /api/snippets/{id}/like
func (h *SnippetHandler) HandleLike(w http.ResponseWriter, r *http.Request) {
	res, err := h.snippets.Like(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *SnippetHandler) HandleUnlike(w http.ResponseWriter, r *http.Request) {
	res, err := h.snippets.Unlike(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type suggestTagsRequest struct {
	Code     string `json:"code" validate:"max=100000"`
	Language string `json:"language"`
}

// HandleSuggestTags proposes tags for a piece of code without saving it.
//
// HTTP: POST /api/tags/suggest
func (h *SnippetHandler) HandleSuggestTags(w http.ResponseWriter, r *http.Request) {
	var req suggestTagsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tags": h.snippets.SuggestTags(req.Code, req.Language)})
}
