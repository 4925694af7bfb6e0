// Package stream folds incremental text fragments from a generation service
// into a single growing transcript entry.
package stream

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
)

// Kind tags an Event.
type Kind int

const (
	KindFragment Kind = iota
	KindEnd
	KindFailure
)

func (k Kind) String() string {
	switch k {
	case KindFragment:
		return "fragment"
	case KindEnd:
		return "end"
	case KindFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Event is one step of a fragment sequence: a piece of text, the normal end of
// the sequence, or a failure carrying its cause.
type Event struct {
	Kind Kind
	Text string
	Err  error
}

// Fragment builds a text event.
func Fragment(text string) Event { return Event{Kind: KindFragment, Text: text} }

// End builds the terminal event of a successful sequence.
func End() Event { return Event{Kind: KindEnd} }

// Failure builds the terminal event of a failed sequence.
func Failure(err error) Event {
	if err == nil {
		err = errors.New("stream failed")
	}
	return Event{Kind: KindFailure, Err: err}
}

// Sequence is a lazy, ordered, non-restartable source of events. After a
// terminal event Next keeps returning terminal events.
type Sequence interface {
	Next(ctx context.Context) Event
	Close() error
}

// FromRecv adapts a pull-style SDK stream. recv returning io.EOF ends the
// sequence; any other error fails it. closeFn may be nil.
func FromRecv(recv func() (string, error), closeFn func() error) Sequence {
	return &recvSequence{recv: recv, closeFn: closeFn}
}

type recvSequence struct {
	recv    func() (string, error)
	closeFn func() error
	last    *Event
	closed  bool
}

func (s *recvSequence) Next(_ context.Context) Event {
	if s.last != nil {
		return *s.last
	}
	text, err := s.recv()
	switch {
	case errors.Is(err, io.EOF):
		ev := End()
		s.last = &ev
		return ev
	case err != nil:
		ev := Failure(err)
		s.last = &ev
		return ev
	}
	return Fragment(text)
}

func (s *recvSequence) Close() error {
	if s.closed || s.closeFn == nil {
		return nil
	}
	s.closed = true
	return s.closeFn()
}

// FromSlice yields fragments in order, then fails with failure when it is
// non-nil or ends normally otherwise.
func FromSlice(fragments []string, failure error) Sequence {
	return &sliceSequence{fragments: append([]string(nil), fragments...), failure: failure}
}

// Failed is a sequence that fails before yielding anything.
func Failed(err error) Sequence {
	return FromSlice(nil, Failure(err).Err)
}

type sliceSequence struct {
	fragments []string
	pos       int
	failure   error
}

func (s *sliceSequence) Next(_ context.Context) Event {
	if s.pos < len(s.fragments) {
		text := s.fragments[s.pos]
		s.pos++
		return Fragment(text)
	}
	if s.failure != nil {
		return Failure(s.failure)
	}
	return End()
}

func (s *sliceSequence) Close() error { return nil }

// Paced delays every event of seq by delay, honouring ctx while waiting.
func Paced(seq Sequence, delay time.Duration) Sequence {
	if delay <= 0 {
		return seq
	}
	return &pacedSequence{Sequence: seq, delay: delay}
}

type pacedSequence struct {
	Sequence
	delay time.Duration
}

func (s *pacedSequence) Next(ctx context.Context) Event {
	timer := time.NewTimer(s.delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return Failure(ctx.Err())
	case <-timer.C:
	}
	return s.Sequence.Next(ctx)
}
