package topic

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/pkg/utils"
)

// Handler serves the topic catalogue.
type Handler struct {
	topics topic.Store
}

// New creates a topic handler.
func New(topics topic.Store) *Handler {
	return &Handler{topics: topics}
}

// RegisterRoutes registers the topic routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/topics", h.handleListTopics)
}

func (h *Handler) handleListTopics(w http.ResponseWriter, _ *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.topics.List())
}
