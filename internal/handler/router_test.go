package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	chatService "github.com/maeumieum/counsel/backend/internal/service/chat"
)

func newTestRouter() http.Handler {
	topics := topic.NewMemoryStore(topic.Seed())
	svc := chatService.NewService(topics, ai.NewScriptedProvider(0, 10, zerolog.Nop()), zerolog.Nop())
	return NewRouter(zerolog.Nop(), topics, svc)
}

func TestRouterServesAPI(t *testing.T) {
	r := newTestRouter()

	cases := []struct {
		method string
		path   string
		body   string
		want   int
	}{
		{http.MethodGet, "/healthz", "", http.StatusOK},
		{http.MethodGet, "/api/topics", "", http.StatusOK},
		{http.MethodPost, "/api/sessions", `{"topicId":"divorce"}`, http.StatusCreated},
		{http.MethodGet, "/api/sessions/missing", "", http.StatusNotFound},
		{http.MethodDelete, "/api/sessions/missing", "", http.StatusNotFound},
	}

	for _, tc := range cases {
		req := httptest.NewRequest(tc.method, tc.path, bytes.NewBufferString(tc.body))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		assert.Equal(t, tc.want, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestRouterExposesMetrics(t *testing.T) {
	r := newTestRouter()

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/topics", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "counsel_http_requests_total")
}
