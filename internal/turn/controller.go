// Package turn sequences one request/response cycle of a counseling session.
package turn

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/metrics"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// DefaultApology replaces the reply tail when generation fails.
const DefaultApology = "죄송합니다. 잠시 연결에 문제가 생겼습니다. 잠시 후 다시 말씀해 주시겠어요?"

var (
	ErrEmptyInput   = errors.New("input is empty")
	ErrTurnInFlight = errors.New("a response is still being generated")
)

// Generator opens the fragment stream answering one user submission.
type Generator interface {
	SendMessageStream(ctx context.Context, text string) (stream.Sequence, error)
}

// Store is the part of the conversation store a turn mutates.
type Store interface {
	Append(msg chat.Message)
	UpdateByID(id string, patch chat.Patch) bool
}

// Outcome reports how an accepted turn ended.
type Outcome struct {
	UserMessage chat.Message `json:"userMessage"`
	ReplyID     string       `json:"replyId"`
	Text        string       `json:"text"`
	Fragments   int          `json:"fragments"`
	Failed      bool         `json:"failed"`
	Cancelled   bool         `json:"cancelled"`
}

// Option customises a Controller.
type Option func(*Controller)

// WithApology overrides DefaultApology.
func WithApology(text string) Option {
	return func(c *Controller) {
		if strings.TrimSpace(text) != "" {
			c.apology = text
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDs replaces the message id generator, for tests.
func WithIDs(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// Controller admits at most one turn at a time and drives it to completion.
type Controller struct {
	store     Store
	generator Generator
	busy      atomic.Bool
	apology   string
	now       func() time.Time
	newID     func() string
	logger    zerolog.Logger
}

// NewController wires a controller to a transcript and the session's generator.
func NewController(store Store, generator Generator, logger zerolog.Logger, opts ...Option) *Controller {
	c := &Controller{
		store:     store,
		generator: generator,
		apology:   DefaultApology,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
		logger:    logger.With().Str("component", "turn").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Busy reports whether a turn is awaiting its response.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// Submit runs one turn for input and blocks until the reply stream ends.
// Empty input and submissions during an in-flight turn are rejected with
// ErrEmptyInput and ErrTurnInFlight and leave the store untouched. Generation
// failures never surface as errors: the reply carries the apology instead.
func (c *Controller) Submit(ctx context.Context, input string) (Outcome, error) {
	text := strings.TrimSpace(input)
	if text == "" {
		metrics.TurnsRejected.WithLabelValues("empty").Inc()
		return Outcome{}, ErrEmptyInput
	}
	if !c.busy.CompareAndSwap(false, true) {
		metrics.TurnsRejected.WithLabelValues("busy").Inc()
		c.logger.Debug().Msg("submission rejected while awaiting response")
		return Outcome{}, ErrTurnInFlight
	}
	defer c.busy.Store(false)

	userMsg := chat.Message{
		ID:        c.newID(),
		Role:      chat.RoleUser,
		Content:   text,
		Timestamp: c.now(),
	}
	c.store.Append(userMsg)

	reply := chat.Message{
		ID:          c.newID(),
		Role:        chat.RoleModel,
		IsStreaming: true,
		Timestamp:   c.now(),
	}
	c.store.Append(reply)

	seq, err := c.open(ctx, text)
	if err != nil {
		c.logger.Error().Err(err).Str("reply_id", reply.ID).Msg("failed to open response stream")
		seq = stream.Failed(err)
	}

	acc := stream.NewAccumulator(c.store, reply.ID, c.apology, c.logger)
	result := acc.Run(ctx, seq)

	switch {
	case result.Cancelled:
		metrics.TurnsTotal.WithLabelValues("cancelled").Inc()
		c.logger.Info().Str("reply_id", reply.ID).Int("fragments", result.Fragments).Msg("turn cancelled")
	case result.Failed:
		metrics.TurnsTotal.WithLabelValues("failed").Inc()
		c.logger.Error().Err(result.Err).Str("reply_id", reply.ID).Int("fragments", result.Fragments).Msg("response stream failed")
	default:
		metrics.TurnsTotal.WithLabelValues("completed").Inc()
		c.logger.Info().Str("reply_id", reply.ID).Int("fragments", result.Fragments).Int("text_len", len(result.Text)).Msg("turn completed")
	}

	return Outcome{
		UserMessage: userMsg,
		ReplyID:     reply.ID,
		Text:        result.Text,
		Fragments:   result.Fragments,
		Failed:      result.Failed,
		Cancelled:   result.Cancelled,
	}, nil
}

// open calls the generator, turning a panic into an error so the busy flag
// and the placeholder are always settled.
func (c *Controller) open(ctx context.Context, text string) (seq stream.Sequence, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("generator panicked: %v", r)
		}
	}()
	if c.generator == nil {
		return nil, errors.New("no generator configured")
	}
	seq, err = c.generator.SendMessageStream(ctx, text)
	if err != nil {
		return nil, errors.Wrap(err, "send message stream")
	}
	if seq == nil {
		return nil, errors.New("generator returned no stream")
	}
	return seq, nil
}
