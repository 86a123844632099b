package agent

import (
	"sync"

	"github.com/sgrlab/deepresearch/core"
	"github.com/sgrlab/deepresearch/parser"
)

// EventKind discriminates loop events.
type EventKind string

const (
	// EventDelta carries one typed parser delta of the in-progress action.
	EventDelta EventKind = "delta"
	// EventRaw carries one raw model-output fragment of the current step.
	EventRaw EventKind = "raw"
	// EventToolResult carries the execution result appended to history.
	EventToolResult EventKind = "tool_result"
	// EventState signals a lifecycle state transition.
	EventState EventKind = "state"
	// EventDone closes the observing stream. Reason explains why: the task
	// finished, the agent parked for clarification, or it failed.
	EventDone EventKind = "done"
)

// Event is one observable moment of a running loop.
type Event struct {
	Kind   EventKind
	Step   int
	Delta  parser.Delta
	Raw    string
	Result string
	State  core.State
	Reason string
}

// EventStream fans loop events out to subscribers. Subscribers receive on a
// buffered channel; when a subscriber falls behind its events are dropped
// rather than blocking the loop, so a stalled or disconnected client can
// never stall the agent.
type EventStream struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{subs: map[int]chan Event{}}
}

// Subscribe attaches an observer. The returned cancel function detaches it
// and closes the channel; it is safe to call more than once.
func (s *EventStream) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 256
	}
	ch := make(chan Event, buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers the event to all current subscribers, dropping it for any
// subscriber whose buffer is full.
func (s *EventStream) Publish(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
