package outbox

import (
	"context"
	"encoding/json"
	"time"

	"github.com/botsports/empire/internal/draft/events"
	"github.com/google/uuid"
)

// Event is one row of the transactional outbox. Rows are inserted by the
// engine inside the state-mutating transaction and published by the worker
// after commit, which gives at-least-once delivery.
type Event struct {
	ID        uuid.UUID       `json:"id"`
	DraftID   uuid.UUID       `json:"draft_id"`
	EventType events.Type     `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
}

// Envelope converts the outbox row to the wire envelope.
func (e Event) Envelope() events.Envelope {
	return events.Envelope{
		ID:        e.ID.String(),
		DraftID:   e.DraftID.String(),
		Type:      e.EventType,
		Timestamp: e.CreatedAt,
		Data:      e.Payload,
	}
}

// Store is what the worker needs from the persistence layer.
type Store interface {
	FetchUnsentOutbox(ctx context.Context, limit int) ([]Event, error)
	MarkOutboxSent(ctx context.Context, ids []uuid.UUID) error
}

// EventPublisher delivers one outbox event to the notification transport.
type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}
