package streaming

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/teslamotors/vehicle-streaming/pkg/protocol"
)

// EventKind identifies the variant of an Event.
type EventKind int

const (
	// EventOpen indicates the authentication message was sent. It does not mean the server accepted
	// it; an invalid token typically results in a data:error event.
	EventOpen EventKind = iota
	// EventData carries a telemetry sample.
	EventData
	EventError
	// EventDisconnected is always the last event of a Stream.
	EventDisconnected
)

func (k EventKind) String() string {
	switch k {
	case EventOpen:
		return "open"
	case EventData:
		return "data"
	case EventError:
		return "error"
	case EventDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event is delivered to Stream consumers. Data is set for EventData and Err for EventError.
type Event struct {
	Kind EventKind
	Data protocol.StreamEvent
	Err  error
}

// Stream is a single-consumer sequence of events from one streaming session.
//
// Events are delivered in the order the server sent the frames they were derived from. The
// sequence ends after an EventDisconnected event, after Close, or (if the vehicle record was
// reloaded) with the error that prevented the vehicle from being resolved.
type Stream struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	session   *Session

	// err is written before events is closed.
	err error
}

func newStream() *Stream {
	return &Stream{
		events: make(chan Event, eventBufferSize),
		done:   make(chan struct{}),
	}
}

// ID returns the identifier used in log messages for this stream's session.
func (s *Stream) ID() string {
	return s.session.ID
}

// State returns the name of the session's current state.
func (s *Stream) State() string {
	return s.session.State()
}

func (s *Stream) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Next blocks until the next event is available. It returns io.EOF once the sequence has ended,
// or the resolution failure if the vehicle could not be reloaded.
func (s *Stream) Next(ctx context.Context) (Event, error) {
	if s.closed() {
		return Event{}, io.EOF
	}
	select {
	case event, ok := <-s.events:
		if !ok {
			if s.err != nil {
				return Event{}, s.err
			}
			return Event{}, io.EOF
		}
		// Close may have been called while event was queued.
		if s.closed() {
			return Event{}, io.EOF
		}
		return event, nil
	case <-s.done:
		return Event{}, io.EOF
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// All returns an iterator over the remaining events. Iteration stops after the terminal event. If
// the sequence ends with an error other than io.EOF, it's yielded with a zero Event.
func (s *Stream) All(ctx context.Context) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := s.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(event, err) || err != nil {
				return
			}
		}
	}
}

// Close ends the stream and disconnects from the server. No events are delivered after Close
// returns. Repeated calls have no effect.
func (s *Stream) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.session != nil {
			s.session.close()
		}
	})
}
