package studio

import (
	"sync"
	"time"
)

// EventKind identifies a session event.
type EventKind string

const (
	EventMarkupUpdated     EventKind = "markup_updated"
	EventTextChanged       EventKind = "text_changed"
	EventFeedbackRecorded  EventKind = "feedback_recorded"
	EventFeedbackDiscarded EventKind = "feedback_discarded"
	EventSynthesisStarted  EventKind = "synthesis_started"
	EventVersionCreated    EventKind = "version_created"
	EventSynthesisFailed   EventKind = "synthesis_failed"
	EventSessionClosed     EventKind = "session_closed"
)

// Event is a state change pushed to subscribers.
type Event struct {
	Kind       EventKind `json:"kind"`
	SessionID  string    `json:"session_id"`
	Generation uint64    `json:"generation"`
	At         time.Time `json:"at"`

	// Markup is set for markup and text events.
	Markup string `json:"markup,omitempty"`

	// Text is the sacred text for text events or the feedback text for
	// feedback events.
	Text string `json:"text,omitempty"`

	// Source is the interpreter behind a markup update.
	Source string `json:"source,omitempty"`

	// Version is set for version events.
	Version *VersionInfo `json:"version,omitempty"`

	// Error carries the user-facing failure message.
	Error string `json:"error,omitempty"`
}

// subscriberBuffer is the per-subscriber queue length. Events beyond it are
// dropped for that subscriber.
const subscriberBuffer = 32

// broker fans events out to subscribers without ever blocking the
// publisher.
type broker struct {
	mu     sync.Mutex
	next   int
	subs   map[int]chan Event
	closed bool
}

func newBroker() *broker {
	return &broker{subs: make(map[int]chan Event)}
}

// subscribe registers a listener. The returned cancel function is
// idempotent and closes the channel.
func (b *broker) subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

func (b *broker) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// close delivers nothing further and closes every subscriber channel.
func (b *broker) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
