package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/vinstackcode/internal/integration/mentor"
	"github.com/sakif/vinstackcode/internal/service"
)

// IntegrationHandler fronts the features backed by outside vendors: speech,
// video, payments and the AI mentor.
//
// DEGRADED, NOT BROKEN:
// Each vendor is optional. When one is not configured, or its circuit
// breaker is open, the service answers apperror.ErrUnavailable and these
// routes return 503 while the rest of the API carries on.
type IntegrationHandler struct {
	media   *service.MediaService
	billing *service.BillingService
	mentor  *service.MentorService
	logger  *slog.Logger
}

func NewIntegrationHandler(
	media *service.MediaService,
	billing *service.BillingService,
	mentor *service.MentorService,
	logger *slog.Logger,
) *IntegrationHandler {
	return &IntegrationHandler{media: media, billing: billing, mentor: mentor, logger: logger}
}

type speechRequest struct {
	Text string `json:"text" validate:"required,max=5000"`
}

// HandleSpeech returns the narration of a text as MP3.
//
// HTTP: POST /api/media/speech
func (h *IntegrationHandler) HandleSpeech(w http.ResponseWriter, r *http.Request) {
	var req speechRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	audio, err := h.media.Speech(r.Context(), userID(r), req.Text)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "audio/mpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(audio)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(audio); err != nil {
		h.logger.Warn("writing speech audio", slog.String("error", err.Error()))
	}
}

type videoRequest struct {
	Script string `json:"script" validate:"required,max=10000"`
	Name   string `json:"name" validate:"max=200"`
}

// HandleCreateVideo starts a generation job. The answer carries the job id
// to poll.
//
// HTTP: POST /api/media/videos
func (h *IntegrationHandler) HandleCreateVideo(w http.ResponseWriter, r *http.Request) {
	var req videoRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	v, err := h.media.CreateVideo(r.Context(), userID(r), req.Script, req.Name)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusAccepted, v)
}

// HTTP: GET /api/media/videos/{id}
func (h *IntegrationHandler) HandleVideo(w http.ResponseWriter, r *http.Request) {
	v, err := h.media.Video(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

type checkoutRequest struct {
	PriceID string `json:"priceId"`
}

// HandleCheckout returns the hosted checkout page to redirect to.
//
// HTTP: POST /api/billing/checkout
func (h *IntegrationHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	var req checkoutRequest
	// An empty body selects the default price.
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, h.logger, err)
			return
		}
	}
	session, err := h.billing.Checkout(r.Context(), userID(r), req.PriceID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HTTP: POST /api/billing/portal
func (h *IntegrationHandler) HandlePortal(w http.ResponseWriter, r *http.Request) {
	session, err := h.billing.Portal(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// HTTP: GET /api/billing/subscription
func (h *IntegrationHandler) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	sub, err := h.billing.Subscription(r.Context(), userID(r))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

type askRequest struct {
	Question string `json:"question" validate:"required"`
	Code     string `json:"code"`
	Language string `json:"language"`
}

// HTTP: POST /api/mentor/ask
func (h *IntegrationHandler) HandleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	answer, err := h.mentor.Ask(r.Context(), userID(r), mentor.Prompt{
		Question: req.Question,
		Code:     req.Code,
		Language: req.Language,
	})
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}
