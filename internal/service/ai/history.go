package ai

import (
	"context"
	"strings"
	"sync"

	"github.com/maeumieum/counsel/backend/internal/stream"
)

// exchange is one completed user/model pair kept as generation context.
type exchange struct {
	User  string
	Reply string
}

// history keeps the most recent exchanges of a session.
type history struct {
	mu    sync.Mutex
	limit int
	items []exchange
}

func newHistory(limit int) *history {
	if limit < 1 {
		limit = 1
	}
	return &history{limit: limit}
}

func (h *history) snapshot() []exchange {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]exchange(nil), h.items...)
}

func (h *history) record(user, reply string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.items = append(h.items, exchange{User: user, Reply: reply})
	if len(h.items) > h.limit {
		h.items = append([]exchange(nil), h.items[len(h.items)-h.limit:]...)
	}
}

// recordOnEnd wraps seq so that a sequence ending normally adds the exchange
// to h. Failed or abandoned replies are not remembered.
func recordOnEnd(seq stream.Sequence, h *history, user string) stream.Sequence {
	return &recordingSequence{Sequence: seq, history: h, user: user}
}

type recordingSequence struct {
	stream.Sequence
	history *history
	user    string
	reply   strings.Builder
	done    bool
}

func (s *recordingSequence) Next(ctx context.Context) stream.Event {
	ev := s.Sequence.Next(ctx)
	switch ev.Kind {
	case stream.KindFragment:
		s.reply.WriteString(ev.Text)
	case stream.KindEnd:
		if !s.done {
			s.done = true
			s.history.record(s.user, s.reply.String())
		}
	}
	return ev
}
