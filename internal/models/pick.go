package models

import (
	"time"

	"github.com/google/uuid"
)

// Pick represents a single turn in a draft.
//
// Sequence indices for a draft form the contiguous range [0, rounds*teams).
// Once a pick is assigned it is immutable.
type Pick struct {
	ID       uuid.UUID  `json:"id"`
	DraftID  uuid.UUID  `json:"draft_id"`
	Sequence int        `json:"sequence"` // 0-based overall pick index
	Round    int        `json:"round"`    // 1-based round number
	Pick     int        `json:"pick"`     // 1-based pick number within the round
	TeamID   uuid.UUID  `json:"team_id"`
	PlayerID *uuid.UUID `json:"player_id,omitempty"` // nil until assigned
	PickedAt *time.Time `json:"picked_at,omitempty"`
	Voided   bool       `json:"voided"` // set when the draft is cancelled before this pick
}

// Assigned reports whether the pick has been bound to a player.
func (p Pick) Assigned() bool {
	return p.PlayerID != nil
}
