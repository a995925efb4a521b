package models

import (
	"github.com/google/uuid"
)

// Player represents a draftable candidate. The draft engine references
// players by id and never mutates them; the rank value is refreshed by an
// external ADP sync process.
type Player struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"full_name"`
	Position string    `json:"position"`       // 'QB', 'RB', 'WR', etc.
	Rank     *float64  `json:"rank,omitempty"` // average draft position, lower is better
	Active   bool      `json:"active"`
}
