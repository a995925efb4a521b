// Package order generates deterministic pick orders for drafts.
package order

import (
	"errors"
	"fmt"

	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
)

// ErrInvalidConfiguration indicates malformed generation parameters.
var ErrInvalidConfiguration = errors.New("invalid draft configuration")

// Slot is one generated turn: which team picks at which position.
type Slot struct {
	Round    int       // 1-based round number
	Pick     int       // 1-based pick number within the round
	Sequence int       // 0-based overall index, (round-1)*teams + (pick-1)
	TeamID   uuid.UUID // owning team
}

// Generate computes the full pick order for a draft. Snake drafts reverse
// team order on even rounds (1-indexed); linear and auction drafts keep the
// input order every round. The result always contains rounds*len(teams)
// slots with contiguous sequence indices.
func Generate(rounds int, teams []uuid.UUID, draftType models.DraftType) ([]Slot, error) {
	if rounds <= 0 {
		return nil, fmt.Errorf("%w: rounds must be greater than 0, got %d", ErrInvalidConfiguration, rounds)
	}
	if len(teams) == 0 {
		return nil, fmt.Errorf("%w: draft order is empty", ErrInvalidConfiguration)
	}
	switch draftType {
	case models.DraftTypeSnake, models.DraftTypeLinear, models.DraftTypeAuction:
	default:
		return nil, fmt.Errorf("%w: unknown draft type %q", ErrInvalidConfiguration, draftType)
	}

	numTeams := len(teams)
	slots := make([]Slot, 0, rounds*numTeams)

	sequence := 0
	for round := 1; round <= rounds; round++ {
		roundOrder := teams
		if draftType == models.DraftTypeSnake && round%2 == 0 {
			roundOrder = reverse(teams)
		}

		for pick, teamID := range roundOrder {
			slots = append(slots, Slot{
				Round:    round,
				Pick:     pick + 1,
				Sequence: sequence,
				TeamID:   teamID,
			})
			sequence++
		}
	}

	return slots, nil
}

func reverse(teams []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(teams))
	for i, teamID := range teams {
		out[len(teams)-1-i] = teamID
	}
	return out
}
