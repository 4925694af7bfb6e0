// Package conversation holds the ordered transcript of a counseling session.
package conversation

import (
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/metrics"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
)

// ChangeKind tells subscribers what kind of mutation happened.
type ChangeKind string

const (
	ChangeAppended ChangeKind = "appended"
	ChangeUpdated  ChangeKind = "updated"
	ChangeReset    ChangeKind = "reset"
)

// Change describes one mutation. Message holds the entry after the mutation
// and is zero for ChangeReset.
type Change struct {
	Kind    ChangeKind
	Message chat.Message
}

// Listener observes store mutations. Listeners run synchronously in mutation
// order and must not mutate the store they are subscribed to.
type Listener func(Change)

// Store is the in-memory, append-only transcript of one session.
type Store struct {
	// writeMu serializes mutations together with their notifications.
	writeMu sync.Mutex

	mu       sync.RWMutex
	messages []chat.Message
	index    map[string]int

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	logger zerolog.Logger
}

// NewStore creates an empty transcript.
func NewStore(logger zerolog.Logger) *Store {
	return &Store{
		messages:  make([]chat.Message, 0, 16),
		index:     make(map[string]int),
		listeners: make(map[int]Listener),
		logger:    logger.With().Str("component", "conversation").Logger(),
	}
}

// Append inserts msg at the end of the transcript. A message whose id is
// already present is dropped and nobody is notified.
func (s *Store) Append(msg chat.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if _, exists := s.index[msg.ID]; exists {
		s.mu.Unlock()
		metrics.DuplicateAppends.Inc()
		s.logger.Warn().Str("message_id", msg.ID).Msg("ignoring append with duplicate message id")
		return
	}
	s.index[msg.ID] = len(s.messages)
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAppended, Message: msg})
}

// UpdateByID merges patch into the message with the given id. Unknown ids are
// a no-op; that happens when a late update arrives after Reset. It reports
// whether a message was updated.
func (s *Store) UpdateByID(id string, patch chat.Patch) bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	pos, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		metrics.StaleUpdates.Inc()
		s.logger.Debug().Str("message_id", id).Msg("dropping update for unknown message")
		return false
	}
	updated := patch.Apply(s.messages[pos])
	s.messages[pos] = updated
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdated, Message: updated})
	return true
}

// Reset clears the transcript. Resetting an empty store is a no-op.
func (s *Store) Reset() {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	if len(s.messages) == 0 {
		s.mu.Unlock()
		return
	}
	s.messages = make([]chat.Message, 0, 16)
	s.index = make(map[string]int)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

// Messages returns a snapshot of the transcript.
func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	copied := make([]chat.Message, len(s.messages))
	copy(copied, s.messages)
	return copied
}

// Get returns the message with the given id.
func (s *Store) Get(id string) (chat.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pos, ok := s.index[id]
	if !ok {
		return chat.Message{}, false
	}
	return s.messages[pos], true
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Subscribe registers l and returns a function removing it.
func (s *Store) Subscribe(l Listener) func() {
	s.listenersMu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	s.listenersMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.listenersMu.Lock()
			delete(s.listeners, id)
			s.listenersMu.Unlock()
		})
	}
}

func (s *Store) notify(change Change) {
	s.listenersMu.Lock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	listeners := make([]Listener, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		listeners = append(listeners, s.listeners[id])
	}
	s.listenersMu.Unlock()

	for _, l := range listeners {
		l(change)
	}
}
