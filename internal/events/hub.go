package events

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

const subscriberBuffer = 10

// Hub delivers events in-process to subscribers of the users they concern
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
}

func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[string][]chan Event),
	}
}

// Subscribe returns a channel of events for userID and a function that ends the subscription
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan Event, subscriberBuffer)
	h.subscribers[userID] = append(h.subscribers[userID], ch)

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			subs := h.subscribers[userID]
			for i, c := range subs {
				if c == ch {
					h.subscribers[userID] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[userID]) == 0 {
				delete(h.subscribers, userID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish never blocks: a subscriber with a full buffer misses the event
func (h *Hub) Publish(ctx context.Context, event Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, userID := range event.UserIDs {
		for _, ch := range h.subscribers[userID] {
			select {
			case ch <- event:
			default:
				log.WithFields(log.Fields{
					"userId":    userID,
					"eventType": event.Type,
				}).Warn("Subscriber buffer full, dropping event")
			}
		}
	}
	return nil
}

func (h *Hub) SubscriberCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[userID])
}
