package runtime

import (
	"context"
	"sync"

	"github.com/cortexlab/cortex/internal/model"
)

// EventKind tags a stream event.
type EventKind int

const (
	EventToken EventKind = iota
	EventDone
	EventError
)

// Event is one item of a query stream. A stream carries any number of token events
// followed by exactly one done or error event.
type Event struct {
	Kind   EventKind
	Token  string
	Result *model.QueryResult
	Err    error
}

// Stream delivers a query's events over a channel. The internal queue is unbounded,
// so a slow reader never stalls generation.
type Stream struct {
	in     chan Event
	out    chan Event
	closed chan struct{}
	once   sync.Once
}

// Stream runs ProcessQuery in the background and returns its event stream.
// Token events pass through a validator screen: a banned term never appears in them,
// and the tail of the text is released only once the whole answer has passed. When
// the answer is rejected the done event carries the replacement, and clients must
// show Result.Response in place of the tokens received so far. opts.OnToken, when
// set, still receives every raw fragment.
func (r *Runtime) Stream(ctx context.Context, input string, opts Options) *Stream {
	s := &Stream{
		in:     make(chan Event),
		out:    make(chan Event),
		closed: make(chan struct{}),
	}
	go s.pump()

	screen := r.validator.Screen()
	user := opts.OnToken
	opts.OnToken = func(tok string) {
		if user != nil {
			user(tok)
		}
		if safe := screen.Write(tok); safe != "" {
			s.in <- Event{Kind: EventToken, Token: safe}
		}
	}
	go func() {
		defer close(s.in)
		res, err := r.ProcessQuery(ctx, input, opts)
		if err != nil {
			s.in <- Event{Kind: EventError, Err: err}
			return
		}
		if !res.Refused && res.Response != InternalError {
			if rest := screen.Flush(); rest != "" {
				s.in <- Event{Kind: EventToken, Token: rest}
			}
		}
		s.in <- Event{Kind: EventDone, Result: res}
	}()
	return s
}

// Events returns the event channel. It is closed after the terminal event.
func (s *Stream) Events() <-chan Event { return s.out }

// Close abandons the stream. Remaining events are discarded; the query itself runs
// to completion unless its context is cancelled.
func (s *Stream) Close() {
	s.once.Do(func() { close(s.closed) })
}

// Wait drains the stream and returns its terminal event.
func (s *Stream) Wait() Event {
	var last Event
	for ev := range s.out {
		last = ev
	}
	return last
}

func (s *Stream) pump() {
	defer close(s.out)
	var queue []Event
	in := s.in
	for in != nil || len(queue) > 0 {
		var out chan Event
		var next Event
		if len(queue) > 0 {
			out = s.out
			next = queue[0]
		}
		select {
		case ev, ok := <-in:
			if !ok {
				in = nil
				continue
			}
			queue = append(queue, ev)
		case out <- next:
			queue[0] = Event{}
			queue = queue[1:]
		case <-s.closed:
			if in != nil {
				for range in {
				}
			}
			return
		}
	}
}
