package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeumieum/counsel/backend/internal/handler/stream"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	chatservice "github.com/maeumieum/counsel/backend/internal/service/chat"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func setup(t *testing.T) (*httptest.Server, *chatservice.Service, string) {
	t.Helper()
	provider := ai.NewScriptedProvider(0, 10, zerolog.Nop())
	svc := chatservice.NewService(topic.NewMemoryStore(topic.Seed()), provider, zerolog.Nop())
	session, _, err := svc.CreateSession(context.Background(), topic.ParentChild)
	require.NoError(t, err)

	r := chi.NewRouter()
	New(svc, zerolog.Nop()).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, svc, session.ID
}

func dial(t *testing.T, srv *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) []frame {
	t.Helper()
	var frames []frame
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f))
		frames = append(frames, f)
		if f.Type == want {
			return frames
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, msgType string, data any) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(InboundMessage{Type: msgType, Data: raw}))
}

func TestWebSocketRunsTurn(t *testing.T) {
	srv, svc, sessionID := setup(t)
	conn := dial(t, srv, sessionID)

	readUntil(t, conn, EventConnected)
	send(t, conn, "text", TextMessage{Text: "아이와 자꾸 싸워요"})

	frames := readUntil(t, conn, stream.EventEnd)
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, stream.EventAppended, frames[0].Type)
	assert.Equal(t, stream.EventAppended, frames[1].Type)

	var last stream.DeltaPayload
	for _, f := range frames {
		if f.Type == stream.EventDelta {
			require.NoError(t, json.Unmarshal(f.Data, &last))
		}
	}
	assert.False(t, last.IsStreaming)

	var end stream.EndPayload
	require.NoError(t, json.Unmarshal(frames[len(frames)-1].Data, &end))
	assert.Equal(t, last.Content, end.Outcome.Text)

	messages, err := svc.Transcript(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Len(t, messages, 3)
}

func TestWebSocketRejectsEmptyText(t *testing.T) {
	srv, _, sessionID := setup(t)
	conn := dial(t, srv, sessionID)

	readUntil(t, conn, EventConnected)
	send(t, conn, "text", TextMessage{Text: " "})

	frames := readUntil(t, conn, stream.EventError)
	assert.Contains(t, string(frames[len(frames)-1].Data), "input is empty")
}

func TestWebSocketResetClosesSession(t *testing.T) {
	srv, svc, sessionID := setup(t)
	conn := dial(t, srv, sessionID)

	readUntil(t, conn, EventConnected)
	send(t, conn, "reset", struct{}{})

	readUntil(t, conn, stream.EventReset)

	var f frame
	err := conn.ReadJSON(&f)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	_, err = svc.GetSession(context.Background(), sessionID)
	assert.ErrorIs(t, err, chatservice.ErrSessionNotFound)
}

func TestWebSocketUnknownSession(t *testing.T) {
	srv, _, _ := setup(t)

	resp, err := http.Get(srv.URL + "/ws/missing")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
