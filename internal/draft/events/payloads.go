// Package events defines the domain event envelope and payloads shared
// between the draft engine, the outbox relay, and the gateway.
package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Type identifies a draft domain event.
type Type string

const (
	TypePickMade       Type = "pick_made"
	TypeDraftStarted   Type = "draft_started"
	TypeDraftCompleted Type = "draft_completed"
)

// Envelope is the wire structure delivered to subscribers. Data holds the
// event-specific payload.
type Envelope struct {
	ID        string          `json:"id"`
	DraftID   string          `json:"draft_id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// NewEnvelope wraps a payload into an Envelope, marshalling it to JSON.
func NewEnvelope(draftID uuid.UUID, eventType Type, at time.Time, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		ID:        uuid.New().String(),
		DraftID:   draftID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// PickMadePayload is the payload for a pick_made event.
type PickMadePayload struct {
	PickID   string    `json:"pick_id"`
	TeamID   string    `json:"team_id"`
	PlayerID string    `json:"player_id"`
	Round    int       `json:"round"`
	Pick     int       `json:"pick"`
	Sequence int       `json:"sequence"`
	MadeAt   time.Time `json:"made_at"`
}

// DraftStartedPayload is the payload for a draft_started event.
type DraftStartedPayload struct {
	DraftID     string    `json:"draft_id"`
	DraftType   string    `json:"draft_type"`
	StartedAt   time.Time `json:"started_at"`
	TotalRounds int       `json:"total_rounds"`
	TotalPicks  int       `json:"total_picks"`
}

// DraftCompletedPayload is the payload for a draft_completed event.
type DraftCompletedPayload struct {
	DraftID     string    `json:"draft_id"`
	CompletedAt time.Time `json:"completed_at"`
	Duration    string    `json:"duration"`
	TotalPicks  int       `json:"total_picks"`
}
