package chat_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeumieum/counsel/backend/internal/conversation"
	modelchat "github.com/maeumieum/counsel/backend/internal/model/chat"
	"github.com/maeumieum/counsel/backend/internal/model/topic"
	"github.com/maeumieum/counsel/backend/internal/service/ai"
	chat "github.com/maeumieum/counsel/backend/internal/service/chat"
	"github.com/maeumieum/counsel/backend/internal/stream"
	"github.com/maeumieum/counsel/backend/internal/turn"
)

// blockingProvider hands out sessions whose reply stalls after one fragment
// until the turn context is cancelled.
type blockingProvider struct {
	started chan struct{}
	once    sync.Once
}

func (p *blockingProvider) Name() string { return "blocking" }
func (p *blockingProvider) Close() error { return nil }
func (p *blockingProvider) NewSession(context.Context, topic.Topic) (ai.Session, error) {
	return p, nil
}

func (p *blockingProvider) SendMessageStream(context.Context, string) (stream.Sequence, error) {
	return &blockingSequence{provider: p}, nil
}

type blockingSequence struct {
	provider *blockingProvider
	sent     bool
}

func (s *blockingSequence) Next(ctx context.Context) stream.Event {
	if !s.sent {
		s.sent = true
		s.provider.once.Do(func() { close(s.provider.started) })
		return stream.Fragment("잠시")
	}
	<-ctx.Done()
	return stream.Failure(ctx.Err())
}

func (s *blockingSequence) Close() error { return nil }

func newService(provider ai.Provider) *chat.Service {
	return chat.NewService(topic.NewMemoryStore(topic.Seed()), provider, zerolog.Nop())
}

func scripted() ai.Provider {
	return ai.NewScriptedProvider(0, 10, zerolog.Nop())
}

func TestServiceGetSession(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()

	session, messages, err := svc.CreateSession(ctx, topic.Spouse)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, topic.Spouse, got.TopicID)

	require.Len(t, messages, 1)
	assert.Equal(t, modelchat.RoleModel, messages[0].Role)
	assert.Contains(t, messages[0].Content, "부부/배우자 갈등")
	assert.False(t, messages[0].IsStreaming)
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := newService(scripted())

	_, err := svc.GetSession(context.Background(), "missing")
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}

func TestServiceCreateSessionValidatesTopic(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()

	_, _, err := svc.CreateSession(ctx, " ")
	assert.ErrorIs(t, err, chat.ErrTopicRequired)

	_, _, err = svc.CreateSession(ctx, "astrology")
	assert.ErrorIs(t, err, chat.ErrTopicNotFound)
}

func TestServiceSubmitStreamsIntoTranscript(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()

	session, _, err := svc.CreateSession(ctx, topic.Spouse)
	require.NoError(t, err)

	outcome, err := svc.Submit(ctx, session.ID, "남편과 자주 다퉈요")
	require.NoError(t, err)
	assert.False(t, outcome.Failed)
	assert.Contains(t, outcome.Text, "힘드시겠어요")

	messages, err := svc.Transcript(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, messages, 3)
	assert.Equal(t, "남편과 자주 다퉈요", messages[1].Content)
	assert.Equal(t, outcome.Text, messages[2].Content)
	assert.False(t, messages[2].IsStreaming)

	busy, err := svc.Busy(session.ID)
	require.NoError(t, err)
	assert.False(t, busy)
}

func TestServiceSubmitRejectsEmpty(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()
	session, _, err := svc.CreateSession(ctx, topic.General)
	require.NoError(t, err)

	_, err = svc.Submit(ctx, session.ID, "   ")
	assert.ErrorIs(t, err, turn.ErrEmptyInput)

	messages, err := svc.Transcript(ctx, session.ID)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
}

func TestServiceSubscribeSeesChanges(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()
	session, _, err := svc.CreateSession(ctx, topic.General)
	require.NoError(t, err)

	var kinds []conversation.ChangeKind
	unsubscribe, err := svc.Subscribe(session.ID, func(c conversation.Change) {
		kinds = append(kinds, c.Kind)
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, err = svc.Submit(ctx, session.ID, "안녕하세요")
	require.NoError(t, err)

	require.GreaterOrEqual(t, len(kinds), 3)
	assert.Equal(t, conversation.ChangeAppended, kinds[0])
	assert.Equal(t, conversation.ChangeAppended, kinds[1])
	assert.Equal(t, conversation.ChangeUpdated, kinds[len(kinds)-1])
}

func TestServiceResetCancelsInFlightTurn(t *testing.T) {
	provider := &blockingProvider{started: make(chan struct{})}
	svc := newService(provider)
	ctx := context.Background()

	session, _, err := svc.CreateSession(ctx, topic.General)
	require.NoError(t, err)

	done := make(chan turn.Outcome, 1)
	go func() {
		outcome, err := svc.Submit(ctx, session.ID, "들어주세요")
		assert.NoError(t, err)
		done <- outcome
	}()

	select {
	case <-provider.started:
	case <-time.After(2 * time.Second):
		t.Fatal("turn did not start")
	}

	busy, err := svc.Busy(session.ID)
	require.NoError(t, err)
	assert.True(t, busy)

	require.NoError(t, svc.Reset(ctx, session.ID))

	select {
	case outcome := <-done:
		assert.True(t, outcome.Cancelled)
		assert.False(t, outcome.Failed)
	case <-time.After(2 * time.Second):
		t.Fatal("reset did not cancel the turn")
	}

	_, err = svc.GetSession(ctx, session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
	assert.ErrorIs(t, svc.Reset(ctx, session.ID), chat.ErrSessionNotFound)
}

func TestServiceSubmitOutlivesCallerContext(t *testing.T) {
	svc := newService(scripted())
	session, _, err := svc.CreateSession(context.Background(), topic.General)
	require.NoError(t, err)

	callerCtx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := svc.Submit(callerCtx, session.ID, "안녕하세요")
	require.NoError(t, err)
	assert.False(t, outcome.Cancelled)
	assert.NotEmpty(t, outcome.Text)
}

func TestServiceScreen(t *testing.T) {
	svc := newService(scripted())

	assert.False(t, svc.Screen("s", "남편과 자주 다퉈요").Flagged())
	assert.True(t, svc.Screen("s", "죽고 싶어요").Flagged())
}

func TestServiceShutdownClosesSessions(t *testing.T) {
	svc := newService(scripted())
	ctx := context.Background()
	session, _, err := svc.CreateSession(ctx, topic.General)
	require.NoError(t, err)

	require.NoError(t, svc.Shutdown(ctx))

	_, err = svc.Transcript(ctx, session.ID)
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)
}
