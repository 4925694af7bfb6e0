// Package chat manages counseling sessions: one transcript, one turn
// controller and one generation session per selected topic.
package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/analysis/safety"
	"github.com/maeumieum/counsel/backend/internal/conversation"
	"github.com/maeumieum/counsel/backend/internal/metrics"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	"github.com/maeumieum/counsel/backend/internal/turn"
)

var (
	ErrTopicRequired   = errors.New("topic id is required")
	ErrTopicNotFound   = errors.New("topic not found")
	ErrSessionNotFound = errors.New("session not found")
)

// Option customises a Service.
type Option func(*Service)

// WithApology overrides the apology appended to failed replies.
func WithApology(text string) Option {
	return func(s *Service) { s.apology = text }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service encapsulates conversation state management.
type Service struct {
	topics   topic.Store
	provider ai.Provider
	apology  string
	now      func() time.Time
	logger   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

// entry is the live state of one session. ctx scopes its turns: it outlives
// individual client connections and is cancelled on reset.
type entry struct {
	session    chat.Session
	store      *conversation.Store
	controller *turn.Controller
	ctx        context.Context
	cancel     context.CancelFunc
}

// NewService bootstraps the in-memory session manager.
func NewService(topics topic.Store, provider ai.Provider, logger zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		topics:   topics,
		provider: provider,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With().Str("component", "chat").Logger(),
		sessions: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Topics lists the selectable counseling topics.
func (s *Service) Topics() []topic.Topic {
	return s.topics.List()
}

// CreateSession opens a session for topicID. The transcript starts with the
// topic greeting.
func (s *Service) CreateSession(ctx context.Context, topicID string) (chat.Session, []chat.Message, error) {
	topicID = strings.TrimSpace(topicID)
	if topicID == "" {
		return chat.Session{}, nil, ErrTopicRequired
	}
	t, ok := s.topics.FindByID(topicID)
	if !ok {
		return chat.Session{}, nil, errors.Wrapf(ErrTopicNotFound, "topic %q", topicID)
	}

	generator, err := s.provider.NewSession(ctx, t)
	if err != nil {
		return chat.Session{}, nil, errors.Wrap(err, "open generation session")
	}

	session := chat.Session{
		ID:        uuid.NewString(),
		TopicID:   t.ID,
		StartedAt: s.now(),
	}
	logger := s.logger.With().Str("session_id", session.ID).Logger()

	store := conversation.NewStore(logger)
	store.Append(chat.Message{
		ID:        uuid.NewString(),
		Role:      chat.RoleModel,
		Content:   topic.Greeting(t),
		Timestamp: session.StartedAt,
	})

	turnCtx, cancel := context.WithCancel(context.Background())
	e := &entry{
		session: session,
		store:   store,
		controller: turn.NewController(store, generator, logger,
			turn.WithApology(s.apology),
			turn.WithClock(s.now),
		),
		ctx:    turnCtx,
		cancel: cancel,
	}

	s.mu.Lock()
	s.sessions[session.ID] = e
	s.mu.Unlock()
	metrics.SessionsActive.Inc()

	logger.Info().Str("topic_id", t.ID).Str("provider", s.provider.Name()).Msg("session created")
	return session, store.Messages(), nil
}

// GetSession retrieves a session by identifier.
func (s *Service) GetSession(_ context.Context, sessionID string) (chat.Session, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return chat.Session{}, err
	}
	return e.session, nil
}

// Transcript returns a snapshot of the session's messages.
func (s *Service) Transcript(_ context.Context, sessionID string) ([]chat.Message, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.store.Messages(), nil
}

// Busy reports whether the session is waiting for a reply.
func (s *Service) Busy(sessionID string) (bool, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return false, err
	}
	return e.controller.Busy(), nil
}

// Subscribe registers l for the session's transcript changes.
func (s *Service) Subscribe(sessionID string, l conversation.Listener) (func(), error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	return e.store.Subscribe(l), nil
}

// Screen checks a user message for crisis signals and counts every flagged
// category.
func (s *Service) Screen(sessionID, text string) safety.Decision {
	decision := safety.Analyze(text)
	if decision.Flagged() {
		for _, category := range decision.Categories {
			metrics.SafetyFlags.WithLabelValues(string(category)).Inc()
		}
		s.logger.Warn().
			Str("session_id", sessionID).
			Str("level", string(decision.Level)).
			Interface("categories", decision.Categories).
			Msg("safety screening flagged message")
	}
	return decision
}

// Submit runs one turn. The turn is bound to the session, not to ctx: a
// caller going away does not abort generation, a reset does.
func (s *Service) Submit(_ context.Context, sessionID, text string) (turn.Outcome, error) {
	e, err := s.lookup(sessionID)
	if err != nil {
		return turn.Outcome{}, err
	}
	return e.controller.Submit(e.ctx, text)
}

// Reset ends the session: any in-flight turn is cancelled, the transcript is
// cleared and the generation session discarded.
func (s *Service) Reset(_ context.Context, sessionID string) error {
	s.mu.Lock()
	e, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.close(e)
	s.logger.Info().Str("session_id", sessionID).Msg("session reset")
	return nil
}

// Shutdown cancels every session and releases the provider.
func (s *Service) Shutdown(_ context.Context) error {
	s.mu.Lock()
	entries := make([]*entry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	for _, e := range entries {
		s.close(e)
	}
	return errors.Wrap(s.provider.Close(), "close provider")
}

func (s *Service) close(e *entry) {
	e.cancel()
	e.store.Reset()
	metrics.SessionsActive.Dec()
}

func (s *Service) lookup(sessionID string) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return e, nil
}
