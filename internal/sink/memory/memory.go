// Package memory is an in-process Sink that applies the heartbeat merge rule
// itself and records every decision it makes.
package memory

import (
	"context"
	"sync"
	"time"

	"winwatch/internal/event"
	"winwatch/internal/sink"
)

// Decision records what happened to one heartbeat.
type Decision struct {
	Stream event.StreamID
	Merged bool
	// Event is the stored event after the decision.
	Event event.Event
}

type Sink struct {
	mu        sync.Mutex
	streams   map[event.StreamID][]event.Event
	decisions []Decision
}

func New() *Sink {
	return &Sink{streams: make(map[event.StreamID][]event.Event)}
}

func (s *Sink) Heartbeat(_ context.Context, stream event.StreamID, e event.Event, pulsetime time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.streams[stream]
	if n := len(events); n > 0 {
		if merged, ok := event.Merge(events[n-1], e, pulsetime); ok {
			events[n-1] = merged
			s.decisions = append(s.decisions, Decision{Stream: stream, Merged: true, Event: merged})
			return nil
		}
	}

	e.Labels = append([]string(nil), e.Labels...)
	s.streams[stream] = append(events, e)
	s.decisions = append(s.decisions, Decision{Stream: stream, Event: e})
	return nil
}

// Events returns a copy of the stored events for a stream, oldest first.
func (s *Sink) Events(stream event.StreamID) []event.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]event.Event(nil), s.streams[stream]...)
}

func (s *Sink) Decisions() []Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Decision(nil), s.decisions...)
}

var _ sink.Sink = (*Sink)(nil)
