package chat

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/analysis/safety"
	"github.com/maeumieum/counsel/backend/internal/handler/stream"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
	chatService "github.com/maeumieum/counsel/backend/internal/service/chat"
	"github.com/maeumieum/counsel/backend/internal/turn"
	"github.com/maeumieum/counsel/backend/pkg/utils"
)

// Handler serves the session REST endpoints.
type Handler struct {
	chatSvc *chatService.Service
	logger  zerolog.Logger
}

// New creates a chat handler.
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With().Str("component", "chat_handler").Logger(),
	}
}

// RegisterRoutes registers the session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions", h.handleCreateSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.handleGetSession)
		r.Delete("/", h.handleResetSession)
		r.Post("/messages", h.handleSubmit)
	})
}

type sessionResponse struct {
	Session  chat.Session   `json:"session"`
	Messages []chat.Message `json:"messages"`
	Busy     bool           `json:"busy"`
}

type submitResponse struct {
	Outcome  turn.Outcome          `json:"outcome"`
	Messages []chat.Message        `json:"messages"`
	Safety   *stream.SafetyPayload `json:"safety,omitempty"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		TopicID string `json:"topicId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	session, messages, err := h.chatSvc.CreateSession(r.Context(), payload.TopicID)
	if err != nil {
		h.fail(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, sessionResponse{Session: session, Messages: messages})
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	messages, err := h.chatSvc.Transcript(r.Context(), sessionID)
	if err != nil {
		h.fail(w, err)
		return
	}
	busy, _ := h.chatSvc.Busy(sessionID)

	utils.RespondJSON(w, http.StatusOK, sessionResponse{Session: session, Messages: messages, Busy: busy})
}

func (h *Handler) handleResetSession(w http.ResponseWriter, r *http.Request) {
	if err := h.chatSvc.Reset(r.Context(), chi.URLParam(r, "sessionID")); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleSubmit runs a turn and answers once the reply is complete.
func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	var payload struct {
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	outcome, err := h.chatSvc.Submit(r.Context(), sessionID, payload.Content)
	if err != nil {
		h.fail(w, err)
		return
	}

	resp := submitResponse{Outcome: outcome}
	if decision := h.chatSvc.Screen(sessionID, outcome.UserMessage.Content); decision.Flagged() {
		resp.Safety = &stream.SafetyPayload{
			Level:      decision.Level,
			Categories: decision.Categories,
			Hotlines:   safety.Hotlines,
		}
	}
	// The session may have been reset while the turn ran.
	resp.Messages, _ = h.chatSvc.Transcript(r.Context(), sessionID)

	utils.RespondJSON(w, http.StatusOK, resp)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := stream.StatusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Msg("request failed")
	}
	utils.RespondError(w, status, err.Error())
}
