package models

import (
	"time"

	"github.com/google/uuid"
)

// DraftType defines the turn-order scheme of a draft.
type DraftType string

const (
	DraftTypeSnake   DraftType = "SNAKE"
	DraftTypeLinear  DraftType = "LINEAR"
	DraftTypeAuction DraftType = "AUCTION"
)

// DraftStatus defines the lifecycle status of a draft.
type DraftStatus string

const (
	DraftStatusForming    DraftStatus = "FORMING"
	DraftStatusInProgress DraftStatus = "IN_PROGRESS"
	DraftStatusCompleted  DraftStatus = "COMPLETED"
	DraftStatusCancelled  DraftStatus = "CANCELLED"
)

// Terminal reports whether no further status transitions are allowed.
func (s DraftStatus) Terminal() bool {
	return s == DraftStatusCompleted || s == DraftStatusCancelled
}

// DraftSettings holds the draft configuration persisted as JSONB.
type DraftSettings struct {
	Rounds         int         `json:"rounds"`
	TimePerPickSec int         `json:"time_per_pick_sec"` // 0 disables the pick clock
	DraftOrder     []uuid.UUID `json:"draft_order,omitempty"`
}

// TeamCount returns the number of teams in the draft order.
func (s DraftSettings) TeamCount() int {
	return len(s.DraftOrder)
}

// TotalPicks returns rounds x teams.
func (s DraftSettings) TotalPicks() int {
	return s.Rounds * len(s.DraftOrder)
}

// PickBudget returns the per-pick time budget as a duration. Zero means the
// draft is untimed.
func (s DraftSettings) PickBudget() time.Duration {
	return time.Duration(s.TimePerPickSec) * time.Second
}

// Draft represents a draft instance.
//
// Status and the current-pick pointer are the only mutable top-level fields
// once the draft has been created.
type Draft struct {
	ID           uuid.UUID     `json:"id"`
	LeagueID     uuid.UUID     `json:"league_id"`
	Name         string        `json:"name"`
	DraftType    DraftType     `json:"draft_type"`
	Status       DraftStatus   `json:"status"`
	Settings     DraftSettings `json:"settings"`
	CurrentPick  *int          `json:"current_pick,omitempty"`  // sequence index of the pick on the clock
	NextDeadline *time.Time    `json:"next_deadline,omitempty"` // when the current pick times out
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}
