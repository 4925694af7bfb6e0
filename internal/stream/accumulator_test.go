package stream

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maeumieum/counsel/backend/internal/model/chat"
)

const apology = "죄송합니다. 잠시 연결에 문제가 생겼습니다. 잠시 후 다시 말씀해 주시겠어요?"

type recordingUpdater struct {
	msg     chat.Message
	patches []chat.Patch
	missing bool
}

func newRecordingUpdater() *recordingUpdater {
	return &recordingUpdater{msg: chat.Message{ID: "reply", Role: chat.RoleModel, IsStreaming: true}}
}

func (r *recordingUpdater) UpdateByID(id string, patch chat.Patch) bool {
	if r.missing || id != r.msg.ID {
		return false
	}
	r.patches = append(r.patches, patch)
	r.msg = patch.Apply(r.msg)
	return true
}

func (r *recordingUpdater) flagClears() int {
	n := 0
	for _, p := range r.patches {
		if p.IsStreaming != nil && !*p.IsStreaming {
			n++
		}
	}
	return n
}

func (r *recordingUpdater) contents() []string {
	var out []string
	for _, p := range r.patches {
		if p.Content != nil {
			out = append(out, *p.Content)
		}
	}
	return out
}

func run(t *testing.T, ctx context.Context, seq Sequence) (*recordingUpdater, Result) {
	t.Helper()
	store := newRecordingUpdater()
	acc := NewAccumulator(store, "reply", apology, zerolog.Nop())
	return store, acc.Run(ctx, seq)
}

func TestRunPreservesArrivalOrder(t *testing.T) {
	store, result := run(t, context.Background(), FromSlice([]string{"안", "녕", "하세요"}, nil))

	assert.Equal(t, "안녕하세요", store.msg.Content)
	assert.Equal(t, []string{"안", "안녕", "안녕하세요"}, store.contents())
	assert.False(t, store.msg.IsStreaming)
	assert.Equal(t, 1, store.flagClears())
	assert.Equal(t, 3, result.Fragments)
	assert.False(t, result.Failed)
	assert.NoError(t, result.Err)
}

func TestRunClearsFlagOnceForEmptySequence(t *testing.T) {
	store, result := run(t, context.Background(), FromSlice(nil, nil))

	assert.Equal(t, "", store.msg.Content)
	assert.False(t, store.msg.IsStreaming)
	assert.Equal(t, 1, store.flagClears())
	assert.Empty(t, store.contents())
	assert.Zero(t, result.Fragments)
}

func TestRunKeepsPartialContentOnFailure(t *testing.T) {
	store, result := run(t, context.Background(), FromSlice([]string{"안", "녕"}, errors.New("upstream reset")))

	assert.Equal(t, "안녕"+apology, store.msg.Content)
	assert.False(t, store.msg.IsStreaming)
	assert.Equal(t, 1, store.flagClears())
	assert.True(t, result.Failed)
	assert.EqualError(t, result.Err, "upstream reset")
	assert.Equal(t, "안녕"+apology, result.Text)
}

func TestRunFailureBeforeFirstFragment(t *testing.T) {
	store, result := run(t, context.Background(), Failed(errors.New("dial tcp: refused")))

	assert.Equal(t, apology, store.msg.Content)
	assert.False(t, store.msg.IsStreaming)
	assert.Equal(t, 1, store.flagClears())
	assert.True(t, result.Failed)
}

func TestRunSkipsEmptyFragments(t *testing.T) {
	store, result := run(t, context.Background(), FromSlice([]string{"힘드", "", "시겠", "어요"}, nil))

	assert.Equal(t, "힘드시겠어요", store.msg.Content)
	assert.Equal(t, 3, result.Fragments)
	assert.Len(t, store.contents(), 3)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store, result := run(t, ctx, FromSlice([]string{"안"}, nil))

	assert.True(t, result.Cancelled)
	assert.ErrorIs(t, result.Err, context.Canceled)
	assert.Equal(t, "", store.msg.Content)
	assert.False(t, store.msg.IsStreaming)
	assert.Equal(t, 1, store.flagClears())
}

func TestRunCancelledWhilePacedDoesNotApologise(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	store, result := run(t, ctx, Paced(FromSlice([]string{"a", "b"}, nil), time.Second))

	assert.True(t, result.Cancelled)
	assert.False(t, result.Failed)
	assert.NotContains(t, store.msg.Content, apology)
	assert.False(t, store.msg.IsStreaming)
}

func TestRunToleratesStaleTarget(t *testing.T) {
	store := newRecordingUpdater()
	store.missing = true
	acc := NewAccumulator(store, "reply", apology, zerolog.Nop())

	result := acc.Run(context.Background(), FromSlice([]string{"늦은", " 조각"}, nil))

	assert.Equal(t, "늦은 조각", result.Text)
	assert.Empty(t, store.patches)
}

type closeCounter struct {
	Sequence
	closes int
}

func (c *closeCounter) Close() error {
	c.closes++
	return nil
}

func TestRunClosesSequence(t *testing.T) {
	seq := &closeCounter{Sequence: FromSlice([]string{"x"}, nil)}
	_, _ = run(t, context.Background(), seq)
	assert.Equal(t, 1, seq.closes)
}

func TestFromRecvMapsEOFAndErrors(t *testing.T) {
	chunks := []string{"힘드", "시겠"}
	i := 0
	closed := false
	seq := FromRecv(func() (string, error) {
		if i < len(chunks) {
			i++
			return chunks[i-1], nil
		}
		return "", io.EOF
	}, func() error {
		closed = true
		return nil
	})

	ctx := context.Background()
	assert.Equal(t, Fragment("힘드"), seq.Next(ctx))
	assert.Equal(t, Fragment("시겠"), seq.Next(ctx))
	assert.Equal(t, KindEnd, seq.Next(ctx).Kind)
	assert.Equal(t, KindEnd, seq.Next(ctx).Kind, "terminal event must repeat")
	require.NoError(t, seq.Close())
	require.NoError(t, seq.Close())
	assert.True(t, closed)

	failing := FromRecv(func() (string, error) { return "", errors.New("boom") }, nil)
	ev := failing.Next(ctx)
	assert.Equal(t, KindFailure, ev.Kind)
	assert.EqualError(t, ev.Err, "boom")
	assert.NoError(t, failing.Close())
}

func TestFailureWithoutCause(t *testing.T) {
	ev := Failure(nil)
	assert.Equal(t, KindFailure, ev.Kind)
	assert.Error(t, ev.Err)
	assert.Equal(t, "failure", ev.Kind.String())
}
