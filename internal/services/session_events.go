package services

import (
	"log"
	"sync"

	"studyforge/internal/models"
)

// SessionEventBus is an in-memory pub/sub for session events, scoped per user.
// Auth handlers publish sign-in, sign-out and refresh events; every open
// session stream of that user receives them.
type SessionEventBus struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan models.SessionEvent // userID → subID → chan
	relay       func(userID string, event models.SessionEvent)
}

// SetRelay forwards every published event to other server instances.
// Pass nil to detach.
func (b *SessionEventBus) SetRelay(relay func(userID string, event models.SessionEvent)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.relay = relay
}

// NewSessionEventBus creates a new event bus
func NewSessionEventBus() *SessionEventBus {
	return &SessionEventBus{
		subscribers: make(map[string]map[string]chan models.SessionEvent),
	}
}

// Subscribe creates a new event channel for a user
func (b *SessionEventBus) Subscribe(userID, subID string, bufSize int) <-chan models.SessionEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan models.SessionEvent, bufSize)
	if _, ok := b.subscribers[userID]; !ok {
		b.subscribers[userID] = make(map[string]chan models.SessionEvent)
	}
	b.subscribers[userID][subID] = ch

	log.Printf("[SESSION-BUS] Subscribe: user=%s sub=%s (total=%d)", userID, subID, len(b.subscribers[userID]))
	return ch
}

// Unsubscribe removes a subscription. The channel is not closed; the
// subscriber exits via its own done signal.
func (b *SessionEventBus) Unsubscribe(userID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if conns, ok := b.subscribers[userID]; ok {
		delete(conns, subID)
		if len(conns) == 0 {
			delete(b.subscribers, userID)
		}
		log.Printf("[SESSION-BUS] Unsubscribe: user=%s sub=%s (remaining=%d)", userID, subID, len(conns))
	}
}

// Publish sends an event to all subscribers for a user. Non-blocking: a full
// subscriber misses the event. Events for users with no open stream are dropped.
func (b *SessionEventBus) Publish(userID string, event models.SessionEvent) {
	relay := b.deliver(userID, event)
	if relay != nil {
		relay(userID, event)
	}
	GetMetrics().RecordSessionEvent(event.Type)
}

// deliver fans an event out to this instance's subscribers only
func (b *SessionEventBus) deliver(userID string, event models.SessionEvent) func(string, models.SessionEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[userID] {
		select {
		case ch <- event:
		default:
		}
	}
	return b.relay
}

// SubscriberCount returns the number of active subscribers for a user
func (b *SessionEventBus) SubscriberCount(userID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[userID])
}
