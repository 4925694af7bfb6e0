package stream

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/metrics"
	"github.com/maeumieum/counsel/backend/internal/model/chat"
)

// Updater is the slice of the conversation store the accumulator writes to.
type Updater interface {
	UpdateByID(id string, patch chat.Patch) bool
}

// Result summarises one accumulation run.
type Result struct {
	Text      string
	Fragments int
	Failed    bool
	Cancelled bool
	Err       error
}

// Accumulator grows the content of one model message from a Sequence.
type Accumulator struct {
	store     Updater
	messageID string
	apology   string
	logger    zerolog.Logger
}

// NewAccumulator binds an accumulator to the message it fills. apology is
// appended to whatever was received when the sequence fails.
func NewAccumulator(store Updater, messageID, apology string, logger zerolog.Logger) *Accumulator {
	return &Accumulator{
		store:     store,
		messageID: messageID,
		apology:   apology,
		logger:    logger,
	}
}

// Run drains seq, pushing the full accumulated text to the store after each
// fragment. Whatever the exit path, the message's streaming flag is cleared
// exactly once before Run returns and seq is closed. Partial text is kept on
// failure. Cancelling ctx stops consumption without an apology.
func (a *Accumulator) Run(ctx context.Context, seq Sequence) Result {
	var (
		text   strings.Builder
		result Result
	)

	defer func() {
		if err := seq.Close(); err != nil {
			a.logger.Warn().Err(err).Str("message_id", a.messageID).Msg("failed to close fragment sequence")
		}
	}()

loop:
	for {
		if err := ctx.Err(); err != nil {
			result.Cancelled = true
			result.Err = err
			break
		}

		ev := seq.Next(ctx)
		switch ev.Kind {
		case KindFragment:
			if ev.Text == "" {
				continue
			}
			text.WriteString(ev.Text)
			result.Fragments++
			metrics.FragmentsReceived.Inc()
			a.store.UpdateByID(a.messageID, chat.ContentPatch(text.String()))
		case KindEnd:
			break loop
		default:
			if err := ctx.Err(); err != nil {
				result.Cancelled = true
				result.Err = err
				break loop
			}
			result.Failed = true
			result.Err = ev.Err
			text.WriteString(a.apology)
			a.store.UpdateByID(a.messageID, chat.ContentPatch(text.String()))
			break loop
		}
	}

	a.store.UpdateByID(a.messageID, chat.StreamingPatch(false))
	result.Text = text.String()

	a.logger.Debug().
		Str("message_id", a.messageID).
		Int("fragments", result.Fragments).
		Bool("failed", result.Failed).
		Bool("cancelled", result.Cancelled).
		Int("text_len", len(result.Text)).
		Msg("stream drained")

	return result
}
