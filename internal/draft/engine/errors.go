package engine

import (
	"errors"

	"github.com/botsports/empire/internal/draft/order"
)

// Error kinds surfaced by the engine. Callers are expected to classify them
// with errors.Is; none of them is bound to a transport status code.
var (
	// ErrInvalidConfiguration rejects malformed draft parameters before any
	// state is created.
	ErrInvalidConfiguration = order.ErrInvalidConfiguration

	// ErrInvalidState rejects an operation attempted from a lifecycle state
	// that forbids it, e.g. starting a draft twice.
	ErrInvalidState = errors.New("operation not allowed in current draft state")

	// ErrNotFound indicates the referenced draft or pick does not exist.
	ErrNotFound = errors.New("not found")

	// Assignment precondition failures. The caller should refresh state and
	// may retry with a different candidate.
	ErrDraftNotActive       = errors.New("draft is not in progress")
	ErrPickNotCurrent       = errors.New("pick is not the current pick on the clock")
	ErrPickAlreadyAssigned  = errors.New("pick already assigned")
	ErrCandidateUnavailable = errors.New("player already drafted")
	ErrCandidateIneligible  = errors.New("player is not eligible")

	// ErrBusy indicates the per-draft lock could not be acquired within the
	// configured deadline. This is the only kind for which automatic
	// client-side retry (with backoff) is appropriate.
	ErrBusy = errors.New("draft is busy")

	// ErrCollaboratorUnavailable wraps persistence or player-data
	// collaborator failures. The mutating transaction aborts cleanly.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
)
