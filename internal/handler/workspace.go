package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/vinstackcode/internal/model"
	"github.com/sakif/vinstackcode/internal/service"
)

// WorkspaceHandler serves the parts of the app that organise a user's work
// around snippets: folders, teams, the activity feed and the quest board.
type WorkspaceHandler struct {
	folders    *service.FolderService
	teams      *service.TeamService
	activities *service.ActivityService
	quests     *service.QuestService
	logger     *slog.Logger
}

func NewWorkspaceHandler(
	folders *service.FolderService,
	teams *service.TeamService,
	activities *service.ActivityService,
	quests *service.QuestService,
	logger *slog.Logger,
) *WorkspaceHandler {
	return &WorkspaceHandler{
		folders:    folders,
		teams:      teams,
		activities: activities,
		quests:     quests,
		logger:     logger,
	}
}

// --- folders ---

// HTTP: GET /api/folders
func (h *WorkspaceHandler) HandleListFolders(w http.ResponseWriter, r *http.Request) {
	list, err := h.folders.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type folderRequest struct {
	Name     string `json:"name" validate:"required"`
	ParentID string `json:"parentId"`
}

// HTTP: POST /api/folders
func (h *WorkspaceHandler) HandleCreateFolder(w http.ResponseWriter, r *http.Request) {
	var req folderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	f, err := h.folders.Create(r.Context(), userID(r), req.Name, req.ParentID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, f)
}

// --- teams ---

// HTTP: GET /api/teams
func (h *WorkspaceHandler) HandleListTeams(w http.ResponseWriter, r *http.Request) {
	list, err := h.teams.List(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type teamRequest struct {
	Name string `json:"name" validate:"required"`
}

// HTTP: POST /api/teams
func (h *WorkspaceHandler) HandleCreateTeam(w http.ResponseWriter, r *http.Request) {
	var req teamRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	t, err := h.teams.Create(r.Context(), userID(r), req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HTTP: GET /api/teams/{id}
func (h *WorkspaceHandler) HandleGetTeam(w http.ResponseWriter, r *http.Request) {
	view, err := h.teams.Get(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type memberRequest struct {
	Username string         `json:"username" validate:"required"`
	Role     model.TeamRole `json:"role"`
}

// HTTP: POST /api/teams/{id}/members
func (h *WorkspaceHandler) HandleAddMember(w http.ResponseWriter, r *http.Request) {
	var req memberRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	m, err := h.teams.AddMember(r.Context(), userID(r), chi.URLParam(r, "id"), req.Username, req.Role)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// HTTP: DELETE /api/teams/{id}/members/{userID}
func (h *WorkspaceHandler) HandleRemoveMember(w http.ResponseWriter, r *http.Request) {
	if err := h.teams.RemoveMember(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "userID")); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- activity ---

// HTTP: GET /api/activities?limit=&offset=
func (h *WorkspaceHandler) HandleActivities(w http.ResponseWriter, r *http.Request) {
	opts, err := listOptions(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	list, err := h.activities.Feed(r.Context(), userID(r), opts)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// --- quests ---

// HandleQuests lists the catalog, optionally one kind.
//
// HTTP: GET /api/quests?kind=tutorial|challenge|race
func (h *WorkspaceHandler) HandleQuests(w http.ResponseWriter, r *http.Request) {
	list, err := h.quests.Quests(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// HTTP: GET /api/quests/{id}
func (h *WorkspaceHandler) HandleQuest(w http.ResponseWriter, r *http.Request) {
	q, err := h.quests.Quest(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

// HTTP: GET /api/player
func (h *WorkspaceHandler) HandlePlayer(w http.ResponseWriter, r *http.Request) {
	p, err := h.quests.Player(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type submitRequest struct {
	Code  string `json:"code"`
	Place int    `json:"place" validate:"min=0"`
}

// HandleSubmit runs a quest attempt. Challenges execute the code against the
// quest's tests, so this can take as long as the sandbox timeout.
//
// HTTP: POST /api/quests/{id}/submit
func (h *WorkspaceHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	sub, err := h.quests.Submit(r.Context(), userID(r), chi.URLParam(r, "id"), service.SubmitInput{
		Code:  req.Code,
		Place: req.Place,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
