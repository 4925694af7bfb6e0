package ai

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/maeumieum/counsel/backend/internal/config"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/stream"
)

// ScriptedProvider answers with canned empathetic replies. It needs no
// credentials and is used for local runs and tests.
type ScriptedProvider struct {
	delay        time.Duration
	historyLimit int
	logger       zerolog.Logger
}

// NewScriptedProvider returns an offline provider emitting one word every delay.
func NewScriptedProvider(delay time.Duration, historyLimit int, logger zerolog.Logger) *ScriptedProvider {
	return &ScriptedProvider{delay: delay, historyLimit: historyLimit, logger: logger}
}

// Name implements Provider.
func (p *ScriptedProvider) Name() string { return config.ProviderScripted }

// Close implements Provider.
func (p *ScriptedProvider) Close() error { return nil }

// NewSession implements Provider.
func (p *ScriptedProvider) NewSession(_ context.Context, t topic.Topic) (Session, error) {
	return &scriptedSession{
		topic:   t,
		delay:   p.delay,
		history: newHistory(p.historyLimit),
	}, nil
}

type scriptedSession struct {
	topic   topic.Topic
	delay   time.Duration
	history *history
	turns   atomic.Int64
}

var scriptedFollowUps = []string{
	"그때 어떤 마음이 드셨는지 조금 더 이야기해 주실 수 있을까요?",
	"그 상황에서 가장 바라셨던 것은 무엇이었나요?",
	"비슷한 일이 있을 때 보통은 어떻게 대처하셨나요?",
	"지금 이 이야기를 하시면서 어떤 감정이 가장 크게 느껴지세요?",
}

func (s *scriptedSession) SendMessageStream(_ context.Context, text string) (stream.Sequence, error) {
	n := s.turns.Add(1)
	reply := scriptedReply(s.topic, text, int(n))
	seq := stream.Paced(stream.FromSlice(splitWords(reply), nil), s.delay)
	return recordOnEnd(seq, s.history, text), nil
}

func scriptedReply(t topic.Topic, text string, turn int) string {
	var b strings.Builder
	b.WriteString("말씀해 주셔서 고마워요. ")
	switch {
	case strings.Contains(text, "다퉈") || strings.Contains(text, "싸"):
		b.WriteString("가까운 사람과 부딪히는 일이 잦으면 많이 힘드시겠어요. ")
	case t.ID != topic.General && t.Title != "":
		b.WriteString(t.Title + " 문제로 마음고생이 크셨겠어요. ")
	default:
		b.WriteString("그런 일이 있으셨다니 마음이 무거우셨겠어요. ")
	}
	b.WriteString(scriptedFollowUps[(turn-1)%len(scriptedFollowUps)])
	return b.String()
}

// splitWords splits s into fragments that concatenate back to s.
func splitWords(s string) []string {
	words := strings.SplitAfter(s, " ")
	out := words[:0]
	for _, w := range words {
		if w != "" {
			out = append(out, w)
		}
	}
	return out
}
