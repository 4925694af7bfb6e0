package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/handler/chat"
	"github.com/maeumieum/counsel/backend/internal/handler/stream"
	"github.com/maeumieum/counsel/backend/internal/handler/topic"
	"github.com/maeumieum/counsel/backend/internal/handler/ws"
	"github.com/maeumieum/counsel/backend/internal/middleware"
	topicModel "github.com/maeumieum/counsel/backend/internal/model/topic"
	chatService "github.com/maeumieum/counsel/backend/internal/service/chat"
	"github.com/maeumieum/counsel/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(logger zerolog.Logger, topics topicModel.Store, chatSvc *chatService.Service) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Metrics)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		topic.New(topics).RegisterRoutes(api)
		chat.New(chatSvc, logger).RegisterRoutes(api)
		stream.New(chatSvc, logger).RegisterRoutes(api)
		ws.New(chatSvc, logger).RegisterRoutes(api)
	})

	return r
}
