package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/vinstackcode/internal/executor"
	"github.com/sakif/vinstackcode/internal/service"
)

// ExecuteHandler runs code in the sandbox.
type ExecuteHandler struct {
	runs   *service.ExecutionService
	logger *slog.Logger
}

func NewExecuteHandler(runs *service.ExecutionService, logger *slog.Logger) *ExecuteHandler {
	return &ExecuteHandler{runs: runs, logger: logger}
}

type executeRequest struct {
	Language string `json:"language" validate:"required"`
	Code     string `json:"code" validate:"required"`
	Stdin    string `json:"stdin"`
}

// HandleExecute runs one piece of code. A timeout is a normal 200 answer
// with status "timeout"; only a missing or broken sandbox is an error.
//
// HTTP: POST /api/execute
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.runs.Run(r.Context(), executor.Request{
		Language: req.Language,
		Code:     req.Code,
		Stdin:    req.Stdin,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// HTTP: GET /api/execute/languages
func (h *ExecuteHandler) HandleLanguages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"languages": h.runs.Languages()})
}
