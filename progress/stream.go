// Package progress carries the live event stream from a scrape run to an
// observer transport (SSE, polling buffer, test collector). Publishing never
// blocks the engine; a slow or absent consumer only grows the queue.
package progress

import (
	"sync"
	"time"

	"gmaps-scraper/models"
)

// EventType discriminates the progress event variants.
type EventType string

const (
	EventPostcodeStarted  EventType = "postcode-started"
	EventListingFound     EventType = "listing-found"
	EventPostcodeFinished EventType = "postcode-finished"
	EventRunFinished      EventType = "run-finished"
	EventMessage          EventType = "message"
	EventError            EventType = "error"
)

// Event is one progress record. Only the fields relevant to its Type are
// populated. Events for a given postcode arrive in discovery order; an
// event is published only after its subject has been merged into the store.
type Event struct {
	Type     EventType
	Postcode string
	Listing  *models.CanonicalListing
	IsNew    bool
	State    *models.PostcodeRunState
	Summary  *models.RunSummary
	Message  string
	At       time.Time
}

// Stream is an append-only event queue for one run. Publish appends without
// ever blocking, so scrape sessions and cancellation never wait on the
// transport; the queue holds events until the consumer drains them. Each
// event is delivered exactly once, in publish order.
type Stream struct {
	out chan Event

	mu      sync.Mutex
	cond    *sync.Cond
	pending []Event
	closed  bool
}

// NewStream creates a Stream. buffer sizes the consumer-side channel; the
// queue behind it is unbounded.
func NewStream(buffer int) *Stream {
	if buffer < 1 {
		buffer = 1
	}
	s := &Stream{out: make(chan Event, buffer)}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Publish appends an event, stamping it with the current time. Publishing
// to a closed stream is a no-op so late session teardown cannot panic.
// Publish returns immediately regardless of consumer state.
func (s *Stream) Publish(ev Event) {
	ev.At = time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.pending = append(s.pending, ev)
	s.cond.Signal()
}

// Events returns the receive side for the transport to drain. The channel
// closes once the stream is closed and every queued event has been taken.
func (s *Stream) Events() <-chan Event {
	return s.out
}

// Close marks the end of the run. No events follow run-finished; anything
// already queued still reaches the consumer before the channel closes.
func (s *Stream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.cond.Signal()
}

// pump moves queued events onto the consumer channel. It is the only sender
// on out and the only goroutine that blocks on a slow consumer.
func (s *Stream) pump() {
	for {
		s.mu.Lock()
		for len(s.pending) == 0 && !s.closed {
			s.cond.Wait()
		}
		if len(s.pending) == 0 {
			s.mu.Unlock()
			close(s.out)
			return
		}
		ev := s.pending[0]
		s.pending = s.pending[1:]
		s.mu.Unlock()

		s.out <- ev
	}
}
