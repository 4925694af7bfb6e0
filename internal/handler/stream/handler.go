// Package stream serves live turns over Server-Sent Events.
package stream

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	chatService "github.com/maeumieum/counsel/backend/internal/service/chat"
	"github.com/maeumieum/counsel/backend/internal/turn"
	"github.com/maeumieum/counsel/backend/pkg/utils"
)

const relayBuffer = 64

const errLagged = "stream fell behind, reload the transcript"

// Handler manages streaming turns via Server-Sent Events.
type Handler struct {
	chatSvc *chatService.Service
	logger  zerolog.Logger
}

// New creates a new stream handler.
func New(chatSvc *chatService.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		logger:  logger.With().Str("component", "sse").Logger(),
	}
}

// RegisterRoutes registers the SSE endpoint.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/stream/{sessionID}", h.handleStream)
}

type turnResult struct {
	outcome turn.Outcome
	err     error
}

// handleStream submits ?message= as a turn and streams the transcript changes
// until the turn ends. A disconnecting client stops the stream, not the turn.
func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	message := strings.TrimSpace(r.URL.Query().Get("message"))
	if message == "" {
		utils.RespondError(w, http.StatusBadRequest, "message query parameter is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	relay := NewRelay(relayBuffer)
	unsubscribe, err := h.chatSvc.Subscribe(sessionID, relay.Listen)
	if err != nil {
		utils.RespondError(w, StatusFor(err), err.Error())
		return
	}
	relay.Attach(unsubscribe)
	defer relay.Close()

	if busy, _ := h.chatSvc.Busy(sessionID); busy {
		utils.RespondError(w, http.StatusConflict, turn.ErrTurnInFlight.Error())
		return
	}

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	send := func(ev Event) bool {
		if err := utils.SendSSEEvent(w, flusher, ev.Name, ev.Data); err != nil {
			logger.Debug().Err(err).Str("event", ev.Name).Msg("client went away")
			return false
		}
		return true
	}

	if !send(Event{Name: EventStart, Data: map[string]string{"sessionId": sessionID}}) {
		return
	}
	if decision := h.chatSvc.Screen(sessionID, message); decision.Flagged() {
		if !send(NewSafetyEvent(decision)) {
			return
		}
	}

	results := make(chan turnResult, 1)
	go func() {
		outcome, err := h.chatSvc.Submit(context.WithoutCancel(r.Context()), sessionID, message)
		results <- turnResult{outcome: outcome, err: err}
	}()

	ctx := r.Context()
	for {
		select {
		case ev := <-relay.Events():
			if !send(ev) {
				return
			}
		case res := <-results:
			for _, ev := range relay.Drain() {
				if !send(ev) {
					return
				}
			}
			if relay.Lagged() {
				send(Event{Name: EventError, Data: ErrorPayload{Error: errLagged}})
				return
			}
			if res.err != nil {
				send(Event{Name: EventError, Data: ErrorPayload{Error: res.err.Error()}})
				return
			}
			send(Event{Name: EventEnd, Data: EndPayload{SessionID: sessionID, Outcome: res.outcome}})
			logger.Info().
				Int("fragments", res.outcome.Fragments).
				Bool("failed", res.outcome.Failed).
				Msg("stream completed")
			return
		case <-relay.Done():
			for _, ev := range relay.Drain() {
				if !send(ev) {
					return
				}
			}
			logger.Warn().Msg("client fell behind, closing stream")
			send(Event{Name: EventError, Data: ErrorPayload{Error: errLagged}})
			return
		case <-ctx.Done():
			logger.Info().Msg("client disconnected before the turn ended")
			return
		}
	}
}

// StatusFor maps service errors to HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, chatService.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, chatService.ErrTopicRequired),
		errors.Is(err, chatService.ErrTopicNotFound),
		errors.Is(err, turn.ErrEmptyInput):
		return http.StatusBadRequest
	case errors.Is(err, turn.ErrTurnInFlight):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
