// Package ws serves counseling sessions over a websocket.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/handler/stream"
	chatservice "github.com/maeumieum/counsel/backend/internal/service/chat"
	"github.com/maeumieum/counsel/backend/pkg/utils"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	relayBuffer  = 64

	// eventClose asks the writer to flush and close the connection.
	eventClose = "close"
	// EventConnected greets a freshly upgraded connection.
	EventConnected = "connected"
)

// Handler upgrades session connections and relays transcript changes.
type Handler struct {
	chatSvc  *chatservice.Service
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// New creates a websocket handler.
func New(chatSvc *chatservice.Service, logger zerolog.Logger) *Handler {
	return &Handler{
		chatSvc: chatSvc,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger: logger.With().Str("component", "websocket").Logger(),
	}
}

// RegisterRoutes registers the websocket route.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/ws/{sessionID}", h.handleWebSocket)
}

// InboundMessage is a client frame. Type is "text" or "reset".
type InboundMessage struct {
	Type      string          `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data"`
}

// TextMessage is the data of a "text" frame.
type TextMessage struct {
	Text string `json:"text"`
}

// OutgoingMessage is a server frame.
type OutgoingMessage struct {
	Type      string      `json:"type"`
	SessionID string      `json:"sessionId,omitempty"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.chatSvc.GetSession(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, stream.StatusFor(err), err.Error())
		return
	}

	relay := stream.NewRelay(relayBuffer)
	unsubscribe, err := h.chatSvc.Subscribe(sessionID, relay.Listen)
	if err != nil {
		utils.RespondError(w, stream.StatusFor(err), err.Error())
		return
	}
	relay.Attach(unsubscribe)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		relay.Close()
		h.logger.Warn().Err(err).Msg("upgrade failed")
		return
	}

	logger := h.logger.With().Str("session_id", sessionID).Logger()
	logger.Info().Msg("connection opened")

	writerDone := make(chan struct{})
	go h.writeLoop(conn, relay, sessionID, logger, writerDone)
	defer func() {
		relay.Close()
		<-writerDone
		_ = conn.Close()
		logger.Info().Msg("connection closed")
	}()

	relay.Publish(stream.Event{Name: EventConnected, Data: map[string]string{
		"sessionId": session.ID,
		"topicId":   session.TopicID,
	}})

	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		var msg InboundMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warn().Err(err).Msg("read failed")
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		if msg.SessionID != "" && msg.SessionID != sessionID {
			publishError(relay, "session mismatch")
			continue
		}

		if done := h.handleMessage(relay, sessionID, &msg); done {
			relay.Publish(stream.Event{Name: eventClose})
			select {
			case <-writerDone:
			case <-time.After(writeTimeout):
			}
			return
		}
	}
}

// handleMessage reports true when the connection should be closed.
func (h *Handler) handleMessage(relay *stream.Relay, sessionID string, msg *InboundMessage) bool {
	switch msg.Type {
	case "text":
		var text TextMessage
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			publishError(relay, "invalid text payload")
			return false
		}
		if decision := h.chatSvc.Screen(sessionID, text.Text); decision.Flagged() {
			relay.Publish(stream.NewSafetyEvent(decision))
		}
		go h.runTurn(relay, sessionID, text.Text)
		return false
	case "reset":
		if err := h.chatSvc.Reset(context.Background(), sessionID); err != nil {
			publishError(relay, err.Error())
			return false
		}
		return true
	default:
		publishError(relay, "unsupported message type: "+msg.Type)
		return false
	}
}

// runTurn submits text and queues the end of the turn behind its deltas.
func (h *Handler) runTurn(relay *stream.Relay, sessionID, text string) {
	outcome, err := h.chatSvc.Submit(context.Background(), sessionID, text)
	if err != nil {
		publishError(relay, err.Error())
		return
	}
	relay.Publish(stream.Event{Name: stream.EventEnd, Data: stream.EndPayload{
		SessionID: sessionID,
		Outcome:   outcome,
	}})
}

func publishError(relay *stream.Relay, message string) {
	relay.Publish(stream.Event{Name: stream.EventError, Data: stream.ErrorPayload{Error: message}})
}

// writeLoop is the only goroutine writing to conn.
func (h *Handler) writeLoop(conn *websocket.Conn, relay *stream.Relay, sessionID string, logger zerolog.Logger, done chan<- struct{}) {
	defer close(done)
	defer relay.Close()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-relay.Done():
			if relay.Lagged() {
				logger.Warn().Msg("client fell behind, closing connection")
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "client fell behind"))
			}
			return
		case ev := <-relay.Events():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if ev.Name == eventClose {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session reset"))
				return
			}
			msg := OutgoingMessage{
				Type:      ev.Name,
				SessionID: sessionID,
				Data:      ev.Data,
				Timestamp: time.Now().Unix(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				logger.Debug().Err(err).Str("event", ev.Name).Msg("write failed")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
