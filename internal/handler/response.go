package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError, so the API has a
// single success shape (a bare JSON object or array) and a single error
// shape:
//
//	{"error": "not_found", "message": "snippet not found with id abc123"}
//
// ERROR MAPPING:
// Services return apperror sentinels and know nothing about HTTP. This file
// is the only place where a sentinel becomes a status code. Anything that is
// not an *apperror.AppError is an unexpected failure: it is logged with the
// request id and the client gets a generic 500, because raw error strings can
// carry SQL or file paths.

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"

	"github.com/sakif/vinstackcode/internal/apperror"
	"github.com/sakif/vinstackcode/internal/auth"
	"github.com/sakif/vinstackcode/internal/repository"
	"github.com/sakif/vinstackcode/internal/validation"
)

// maxBodyBytes bounds every JSON request body. Snippet content is capped
// well below this by the services.
const maxBodyBytes = 1 << 20

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// writeJSON sends data with the given status. Headers must be set before
// WriteHeader; anything set afterwards is silently dropped.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// The status line is already out; all we can do is log.
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError maps a domain error to its status and sends it.
//
// errors.Is walks the whole Unwrap chain, so a service may wrap freely:
//
//	fmt.Errorf("creating snippet: %w", apperror.ValidationFailed(...))
//	  → AppError{Err: ErrValidation} → 400
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		logger.Error("request failed",
			slog.String("requestId", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_error",
			Message: "An internal error occurred",
		})
		return
	}

	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed",
			slog.String("requestId", middleware.GetReqID(r.Context())),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, ErrorResponse{Error: code, Message: appErr.Message, Field: appErr.Field})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUnavailable):
		return http.StatusServiceUnavailable, "unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON reads a bounded JSON body into v and runs the struct's
// `validate` tags. Both failures come back as validation errors.
func decodeJSON(r *http.Request, v any) error {
	body := http.MaxBytesReader(nil, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.ValidationFailed("body", "request body is required")
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.ValidationFailed("body", "request body is too large")
		}
		return apperror.ValidationFailed("body", "request body must be valid JSON")
	}
	return validation.Struct(v)
}

// userID is the caller's id, or "" for anonymous requests. Services decide
// whether anonymous is acceptable.
func userID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// listOptions reads ?limit= and ?offset=. Bad numbers are a 400 rather than
// being silently replaced.
func listOptions(r *http.Request) (repository.ListOptions, error) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		return repository.ListOptions{}, err
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		return repository.ListOptions{}, err
	}
	return repository.ListOptions{Limit: limit, Offset: offset}.Normalize(), nil
}

func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}

func pathInt(r *http.Request, name string) (int, error) {
	n, err := strconv.Atoi(chi.URLParam(r, name))
	if err != nil || n < 1 {
		return 0, apperror.ValidationFailed(name, name+" must be a positive integer")
	}
	return n, nil
}
