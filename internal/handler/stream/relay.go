package stream

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/maeumieum/counsel/backend/internal/analysis/safety"
	"github.com/maeumieum/counsel/backend/internal/conversation"
	"github.com/maeumieum/counsel/backend/internal/metrics"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
	"github.com/maeumieum/counsel/backend/internal/turn"
)

// Event names shared by the SSE and websocket transports.
const (
	EventStart    = "start"
	EventAppended = "appended"
	EventDelta    = "delta"
	EventReset    = "reset"
	EventSafety   = "safety"
	EventEnd      = "end"
	EventError    = "error"
)

// Event is one message pushed to a live client.
type Event struct {
	Name string
	Data any
}

// AppendedPayload announces a new transcript entry.
type AppendedPayload struct {
	Message chat.Message `json:"message"`
}

// DeltaPayload carries the full text of the in-flight reply plus the piece
// added since the previous delta.
type DeltaPayload struct {
	ID          string `json:"id"`
	Content     string `json:"content"`
	Fragment    string `json:"fragment"`
	IsStreaming bool   `json:"isStreaming"`
}

// SafetyPayload points the client to emergency contacts.
type SafetyPayload struct {
	Level      safety.Level      `json:"level"`
	Categories []safety.Category `json:"categories"`
	Hotlines   []safety.Hotline  `json:"hotlines"`
}

// EndPayload closes a turn.
type EndPayload struct {
	SessionID string       `json:"sessionId"`
	Outcome   turn.Outcome `json:"outcome"`
}

// ErrorPayload reports a rejected or failed request.
type ErrorPayload struct {
	Error string `json:"error"`
}

// NewSafetyEvent builds the event sent when screening flags a message.
func NewSafetyEvent(d safety.Decision) Event {
	return Event{Name: EventSafety, Data: SafetyPayload{
		Level:      d.Level,
		Categories: d.Categories,
		Hotlines:   safety.Hotlines,
	}}
}

// Relay turns transcript changes into client events. The store listener hands
// events over a channel so that only the connection goroutine writes to the
// client. A client that lets the buffer fill up is cut off so the store never
// waits on it.
type Relay struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	lagged    atomic.Bool

	mu          sync.Mutex
	closed      bool
	unsubscribe func()

	last map[string]string
}

// NewRelay returns a relay with room for buffer pending events. Attach it to
// a store with Listen.
func NewRelay(buffer int) *Relay {
	return &Relay{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		last:   make(map[string]string),
	}
}

// Attach records the function that detaches the relay from its store. If the
// relay is already closed, unsubscribe runs right away.
func (r *Relay) Attach(unsubscribe func()) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	r.mu.Unlock()
}

// Events delivers events in mutation order.
func (r *Relay) Events() <-chan Event {
	return r.events
}

// Listen is the conversation.Listener feeding the relay. It never blocks: when
// the buffer is full the relay is closed and marked as lagged.
func (r *Relay) Listen(change conversation.Change) {
	var ev Event
	switch change.Kind {
	case conversation.ChangeAppended:
		r.last[change.Message.ID] = change.Message.Content
		ev = Event{Name: EventAppended, Data: AppendedPayload{Message: change.Message}}
	case conversation.ChangeUpdated:
		msg := change.Message
		previous := r.last[msg.ID]
		r.last[msg.ID] = msg.Content
		fragment := ""
		if strings.HasPrefix(msg.Content, previous) {
			fragment = msg.Content[len(previous):]
		}
		ev = Event{Name: EventDelta, Data: DeltaPayload{
			ID:          msg.ID,
			Content:     msg.Content,
			Fragment:    fragment,
			IsStreaming: msg.IsStreaming,
		}}
	case conversation.ChangeReset:
		r.last = make(map[string]string)
		ev = Event{Name: EventReset, Data: struct{}{}}
	default:
		return
	}

	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.events <- ev:
	default:
		r.lagged.Store(true)
		metrics.RelaysDropped.Inc()
		r.Close()
	}
}

// Publish queues an event behind everything the store has already emitted.
// It reports false once the relay is closed.
func (r *Relay) Publish(ev Event) bool {
	select {
	case r.events <- ev:
		return true
	case <-r.done:
		return false
	}
}

// Lagged reports whether the relay was closed because its consumer fell
// behind.
func (r *Relay) Lagged() bool {
	return r.lagged.Load()
}

// Done is closed when the relay is closed.
func (r *Relay) Done() <-chan struct{} {
	return r.done
}

// Drain returns the events already queued without waiting.
func (r *Relay) Drain() []Event {
	var out []Event
	for {
		select {
		case ev := <-r.events:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// Close releases a blocked listener and detaches the relay.
func (r *Relay) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.mu.Lock()
		r.closed = true
		unsubscribe := r.unsubscribe
		r.mu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
	})
}
