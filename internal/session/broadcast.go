package session

import "sync"

// Envelope is one event pushed to subscriber channels.
type Envelope struct {
	Type   string `json:"type"`
	Status Status `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
}

// Message is the payload of a "message" envelope.
type Message struct {
	From      string `json:"from"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Broadcaster fans session events out to subscriber channels. Delivery is
// fire and forget: a channel whose buffer is full is skipped, and publishing
// to a session with no subscribers is a no-op.
type Broadcaster struct {
	mu          sync.Mutex
	subscribers map[string][]chan Envelope
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: make(map[string][]chan Envelope)}
}

// Subscribe appends ch to the session's subscriber list.
func (b *Broadcaster) Subscribe(sessionID string, ch chan Envelope) {
	if ch == nil {
		return
	}
	b.mu.Lock()
	b.subscribers[sessionID] = append(b.subscribers[sessionID], ch)
	b.mu.Unlock()
}

// Unsubscribe removes ch from the session's subscriber list. Removing an
// unknown channel is a no-op; other subscribers are unaffected.
func (b *Broadcaster) Unsubscribe(sessionID string, ch chan Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sessionID]
	for i, sub := range subs {
		if sub == ch {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, sessionID)
		return
	}
	b.subscribers[sessionID] = subs
}

// Publish delivers env to every current subscriber of the session. Channels
// that cannot accept the event immediately are skipped, never failed on.
func (b *Broadcaster) Publish(sessionID string, env Envelope) {
	b.mu.Lock()
	subs := make([]chan Envelope, len(b.subscribers[sessionID]))
	copy(subs, b.subscribers[sessionID])
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub <- env:
		default:
		}
	}
}

// SubscriberCount reports how many channels observe the session.
func (b *Broadcaster) SubscriberCount(sessionID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers[sessionID])
}
