package engine

import (
	"context"
	"time"

	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
)

// NextDeadline is the soonest pick deadline across all in-progress drafts.
type NextDeadline struct {
	DraftID  uuid.UUID  `json:"draft_id"`
	Deadline *time.Time `json:"deadline"`
}

// Reader is the read-only slice of the persistence collaborator. Reads
// performed outside RunInTransaction see committed state only.
type Reader interface {
	GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error)
	GetPick(ctx context.Context, id uuid.UUID) (*models.Pick, error)
	ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.Pick, error)
	ListAssignedPicksByTeam(ctx context.Context, draftID, teamID uuid.UUID) ([]models.Pick, error)
	PlayerTaken(ctx context.Context, draftID, playerID uuid.UUID) (bool, error)
	NextDeadline(ctx context.Context) (*NextDeadline, error)
	ListDraftsDueForPick(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}

// Tx is the transactional view of the persistence collaborator. All writes
// made through a Tx commit or roll back atomically.
type Tx interface {
	Reader
	CreateDraft(ctx context.Context, draft *models.Draft) error
	SaveDraft(ctx context.Context, draft *models.Draft) error
	DeleteDraft(ctx context.Context, id uuid.UUID) error
	CreatePicks(ctx context.Context, picks []models.Pick) error
	SavePick(ctx context.Context, pick *models.Pick) error
	VoidUnassignedPicks(ctx context.Context, draftID uuid.UUID) (int, error)
	InsertOutboxEvent(ctx context.Context, draftID uuid.UUID, eventType events.Type, payload []byte) error
}

// Store is the persistence collaborator contract. The engine never assumes a
// specific storage engine; it requires only transactional semantics.
type Store interface {
	Reader
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// PlayerFilter narrows an eligible-player listing.
type PlayerFilter struct {
	Position   string    // optional position tag
	NotInDraft uuid.UUID // exclude players already assigned in this draft
	Limit      int       // 0 means no limit
}

// PlayerSource is the candidate data collaborator. Player rank values are
// refreshed out of band.
type PlayerSource interface {
	GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error)
	ListEligiblePlayers(ctx context.Context, filter PlayerFilter) ([]models.Player, error)
}
