package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// EventType names a committed state change
type EventType string

const (
	EventTypeTransactionSettled  EventType = "wallet.transaction_settled"
	EventTypeGameJoined          EventType = "game.joined"
	EventTypeGameStarted         EventType = "game.started"
	EventTypeGameSettled         EventType = "game.settled"
	EventTypeGameCancelled       EventType = "game.cancelled"
	EventTypeTournamentJoined    EventType = "tournament.registered"
	EventTypeTournamentStarted   EventType = "tournament.started"
	EventTypeTournamentCompleted EventType = "tournament.completed"
	EventTypePaymentReconciled   EventType = "payment.reconciled"
)

// Event is published only after the unit of work that produced it committed
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	UserIDs    []string       `json:"user_ids,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

func New(eventType EventType, userIDs []string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		UserIDs:    userIDs,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NoopPublisher drops every event
type NoopPublisher struct{}

func (NoopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// MultiPublisher fans an event out to several publishers, continuing past failures
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes events from a committed unit of work. Publishing is a
// notification: failures are logged and never undo the committed state.
func Emit(ctx context.Context, p Publisher, evts ...Event) {
	if p == nil {
		return
	}
	for _, e := range evts {
		if err := p.Publish(ctx, e); err != nil {
			log.WithFields(log.Fields{
				"eventType": e.Type,
				"eventId":   e.ID,
				"error":     err,
			}).Error("Failed to publish event")
			continue
		}
		log.WithFields(log.Fields{
			"eventType": e.Type,
			"eventId":   e.ID,
		}).Debug("Event published")
	}
}
