package engine

import (
	"time"

	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
)

// CreateDraftRequest carries the parameters for a new draft.
type CreateDraftRequest struct {
	ID        uuid.UUID            `json:"id"`
	LeagueID  uuid.UUID            `json:"league_id"`
	Name      string               `json:"name"`
	DraftType models.DraftType     `json:"draft_type"`
	Settings  models.DraftSettings `json:"settings"`
}

// AssignPickRequest binds a player to the draft's current pick.
type AssignPickRequest struct {
	DraftID  uuid.UUID `json:"draft_id"`
	PickID   uuid.UUID `json:"pick_id"`
	PlayerID uuid.UUID `json:"player_id"`
}

// Snapshot is the state handed to a late-joining subscriber before live
// events, so it never observes a gap.
type Snapshot struct {
	DraftID         uuid.UUID          `json:"draft_id"`
	Status          models.DraftStatus `json:"status"`
	CurrentSequence *int               `json:"current_sequence,omitempty"`
	NextDeadline    *time.Time         `json:"next_deadline,omitempty"`
	TotalPicks      int                `json:"total_picks"`
	CompletedPicks  int                `json:"completed_picks"`
	RecentPicks     []models.Pick      `json:"recent_picks"`
}
