// Package engine owns the draft lifecycle: it generates pick orders,
// validates and applies pick assignments, and advances drafts to completion.
// All state mutations for one draft serialize behind a single logical lock;
// domain events are written to the outbox inside the mutating transaction and
// published only after commit.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/draft/order"
	"github.com/botsports/empire/internal/draft/recommend"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// DefaultLockWait bounds how long AssignPick waits for the per-draft lock
// before failing with ErrBusy.
const DefaultLockWait = 2 * time.Second

// defaultSnapshotPicks is how many recent picks a snapshot carries.
const defaultSnapshotPicks = 10

// Engine coordinates all draft mutations.
type Engine struct {
	store    Store
	players  PlayerSource
	locks    *lockTable
	clock    clockwork.Clock
	lockWait time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) { e.clock = clock }
}

// WithLockWait overrides the bounded wait for the per-draft lock.
func WithLockWait(wait time.Duration) Option {
	return func(e *Engine) { e.lockWait = wait }
}

// New creates an Engine backed by the given collaborators.
func New(store Store, players PlayerSource, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		players:  players,
		locks:    newLockTable(),
		clock:    clockwork.NewRealClock(),
		lockWait: DefaultLockWait,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateDraft validates the configuration and persists a new draft in
// FORMING. No picks exist until the draft is started.
func (e *Engine) CreateDraft(ctx context.Context, req CreateDraftRequest) (*models.Draft, error) {
	if err := validateCreateDraftRequest(req); err != nil {
		return nil, err
	}

	now := e.clock.Now().UTC()
	draft := &models.Draft{
		ID:        req.ID,
		LeagueID:  req.LeagueID,
		Name:      req.Name,
		DraftType: req.DraftType,
		Status:    models.DraftStatusForming,
		Settings:  req.Settings,
		CreatedAt: now,
		UpdatedAt: now,
	}

	err := e.store.RunInTransaction(ctx, func(tx Tx) error {
		return tx.CreateDraft(ctx, draft)
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Info().
		Str("draft_id", draft.ID.String()).
		Str("draft_type", string(draft.DraftType)).
		Int("rounds", draft.Settings.Rounds).
		Int("teams", draft.Settings.TeamCount()).
		Msg("created draft")
	return draft, nil
}

// StartDraft transitions a FORMING draft to IN_PROGRESS: it runs the pick
// order generator, persists every pick in pending state, and puts sequence 0
// on the clock. A draft without a pick budget gets no deadline and never
// auto-picks. Calling it from any other state fails with ErrInvalidState.
func (e *Engine) StartDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	release, err := e.locks.tryAcquire(draftID)
	if err != nil {
		return nil, err
	}
	defer release()

	var started *models.Draft
	err = e.store.RunInTransaction(ctx, func(tx Tx) error {
		draft, err := tx.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		if draft.Status != models.DraftStatusForming {
			return fmt.Errorf("%w: cannot start draft in status %s", ErrInvalidState, draft.Status)
		}

		slots, err := order.Generate(draft.Settings.Rounds, draft.Settings.DraftOrder, draft.DraftType)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		picks := make([]models.Pick, len(slots))
		for i, slot := range slots {
			picks[i] = models.Pick{
				ID:       uuid.New(),
				DraftID:  draft.ID,
				Sequence: slot.Sequence,
				Round:    slot.Round,
				Pick:     slot.Pick,
				TeamID:   slot.TeamID,
			}
		}
		if err := tx.CreatePicks(ctx, picks); err != nil {
			return err
		}

		first := 0
		draft.Status = models.DraftStatusInProgress
		draft.CurrentPick = &first
		if budget := draft.Settings.PickBudget(); budget > 0 {
			deadline := now.Add(budget)
			draft.NextDeadline = &deadline
		}
		draft.StartedAt = &now
		draft.UpdatedAt = now
		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		payload := events.DraftStartedPayload{
			DraftID:     draft.ID.String(),
			DraftType:   string(draft.DraftType),
			StartedAt:   now,
			TotalRounds: draft.Settings.Rounds,
			TotalPicks:  len(picks),
		}
		if err := insertEvent(ctx, tx, draft.ID, events.TypeDraftStarted, payload); err != nil {
			return err
		}

		started = draft
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Int("total_picks", started.Settings.TotalPicks()).
		Msg("draft started")
	return started, nil
}

// AssignPick binds a player to the draft's current pick. Preconditions are
// checked in order inside a single transaction; the first failure wins and
// nothing is mutated. On success the pick assignment and the current-pointer
// advance commit atomically, together with the pick_made outbox row.
//
// AssignPick is the only engine operation that blocks on the per-draft lock;
// if the lock cannot be acquired within the configured wait it fails with
// ErrBusy.
func (e *Engine) AssignPick(ctx context.Context, req AssignPickRequest) (*models.Pick, error) {
	release, err := e.locks.acquire(ctx, req.DraftID, e.lockWait)
	if err != nil {
		return nil, err
	}
	defer release()

	var assigned *models.Pick
	err = e.store.RunInTransaction(ctx, func(tx Tx) error {
		draft, err := tx.GetDraft(ctx, req.DraftID)
		if err != nil {
			return err
		}
		if draft.Status != models.DraftStatusInProgress {
			return fmt.Errorf("%w: draft status is %s", ErrDraftNotActive, draft.Status)
		}

		pick, err := tx.GetPick(ctx, req.PickID)
		if err != nil {
			return err
		}
		if pick.DraftID != draft.ID {
			return fmt.Errorf("%w: pick %s does not belong to draft %s", ErrNotFound, req.PickID, req.DraftID)
		}
		if draft.CurrentPick == nil || pick.Sequence != *draft.CurrentPick {
			return fmt.Errorf("%w: pick sequence %d, current sequence %s",
				ErrPickNotCurrent, pick.Sequence, formatPointer(draft.CurrentPick))
		}
		if pick.Assigned() {
			return fmt.Errorf("%w: pick %s", ErrPickAlreadyAssigned, pick.ID)
		}

		taken, err := tx.PlayerTaken(ctx, draft.ID, req.PlayerID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: player %s", ErrCandidateUnavailable, req.PlayerID)
		}

		player, err := e.players.GetPlayer(ctx, req.PlayerID)
		if err != nil {
			return fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, err)
		}
		if !player.Active {
			return fmt.Errorf("%w: player %s is inactive", ErrCandidateIneligible, req.PlayerID)
		}

		now := e.clock.Now().UTC()
		pick.PlayerID = &req.PlayerID
		pick.PickedAt = &now
		if err := tx.SavePick(ctx, pick); err != nil {
			return err
		}

		if err := e.advance(ctx, tx, draft, pick.Sequence, now); err != nil {
			return err
		}

		payload := events.PickMadePayload{
			PickID:   pick.ID.String(),
			TeamID:   pick.TeamID.String(),
			PlayerID: req.PlayerID.String(),
			Round:    pick.Round,
			Pick:     pick.Pick,
			Sequence: pick.Sequence,
			MadeAt:   now,
		}
		if err := insertEvent(ctx, tx, draft.ID, events.TypePickMade, payload); err != nil {
			return err
		}

		assigned = pick
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}

	log.Info().
		Str("draft_id", req.DraftID.String()).
		Str("pick_id", assigned.ID.String()).
		Str("player_id", req.PlayerID.String()).
		Int("sequence", assigned.Sequence).
		Msg("pick assigned")
	return assigned, nil
}

// advance moves the current-pick pointer to the next unassigned sequence, or
// completes the draft when none remains. Runs inside the assignment
// transaction so pointer and pick state never diverge.
func (e *Engine) advance(ctx context.Context, tx Tx, draft *models.Draft, justAssigned int, now time.Time) error {
	picks, err := tx.ListPicks(ctx, draft.ID)
	if err != nil {
		return err
	}

	next, ok := nextPending(picks, justAssigned)
	if ok {
		draft.CurrentPick = &next
		draft.NextDeadline = nil
		if budget := draft.Settings.PickBudget(); budget > 0 {
			deadline := now.Add(budget)
			draft.NextDeadline = &deadline
		}
		draft.UpdatedAt = now
		return tx.SaveDraft(ctx, draft)
	}

	draft.Status = models.DraftStatusCompleted
	draft.CurrentPick = nil
	draft.NextDeadline = nil
	draft.CompletedAt = &now
	draft.UpdatedAt = now
	if err := tx.SaveDraft(ctx, draft); err != nil {
		return err
	}

	var duration string
	if draft.StartedAt != nil {
		duration = now.Sub(*draft.StartedAt).String()
	}
	payload := events.DraftCompletedPayload{
		DraftID:     draft.ID.String(),
		CompletedAt: now,
		Duration:    duration,
		TotalPicks:  draft.Settings.TotalPicks(),
	}
	return insertEvent(ctx, tx, draft.ID, events.TypeDraftCompleted, payload)
}

// CancelDraft terminates a FORMING or IN_PROGRESS draft and voids its
// remaining unassigned picks.
func (e *Engine) CancelDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	release, err := e.locks.tryAcquire(draftID)
	if err != nil {
		return nil, err
	}
	defer release()

	var cancelled *models.Draft
	err = e.store.RunInTransaction(ctx, func(tx Tx) error {
		draft, err := tx.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		switch draft.Status {
		case models.DraftStatusForming, models.DraftStatusInProgress:
		default:
			return fmt.Errorf("%w: cannot cancel draft in status %s", ErrInvalidState, draft.Status)
		}

		voided, err := tx.VoidUnassignedPicks(ctx, draftID)
		if err != nil {
			return err
		}

		now := e.clock.Now().UTC()
		draft.Status = models.DraftStatusCancelled
		draft.CurrentPick = nil
		draft.NextDeadline = nil
		draft.UpdatedAt = now
		if err := tx.SaveDraft(ctx, draft); err != nil {
			return err
		}

		log.Info().
			Str("draft_id", draftID.String()).
			Int("voided_picks", voided).
			Msg("draft cancelled")
		cancelled = draft
		return nil
	})
	if err != nil {
		return nil, storeErr(err)
	}
	return cancelled, nil
}

// DeleteDraft removes a draft that has not started. Picks cascade (none
// exist while FORMING, but the store deletes defensively).
func (e *Engine) DeleteDraft(ctx context.Context, draftID uuid.UUID) error {
	release, err := e.locks.tryAcquire(draftID)
	if err != nil {
		return err
	}
	defer release()

	err = e.store.RunInTransaction(ctx, func(tx Tx) error {
		draft, err := tx.GetDraft(ctx, draftID)
		if err != nil {
			return err
		}
		if draft.Status != models.DraftStatusForming {
			return fmt.Errorf("%w: cannot delete draft in status %s", ErrInvalidState, draft.Status)
		}
		return tx.DeleteDraft(ctx, draftID)
	})
	return storeErr(err)
}

// GetDraft retrieves a draft by id.
func (e *Engine) GetDraft(ctx context.Context, draftID uuid.UUID) (*models.Draft, error) {
	draft, err := e.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, storeErr(err)
	}
	return draft, nil
}

// ListPicks returns all picks of a draft ordered by sequence.
func (e *Engine) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.Pick, error) {
	picks, err := e.store.ListPicks(ctx, draftID)
	if err != nil {
		return nil, storeErr(err)
	}
	sort.Slice(picks, func(i, j int) bool { return picks[i].Sequence < picks[j].Sequence })
	return picks, nil
}

// TeamRoster resolves the players a team has acquired in this draft, in
// pick order. Used by the recommendation path; reads committed state only.
func (e *Engine) TeamRoster(ctx context.Context, draftID, teamID uuid.UUID) ([]models.Player, error) {
	picks, err := e.store.ListAssignedPicksByTeam(ctx, draftID, teamID)
	if err != nil {
		return nil, storeErr(err)
	}
	roster := make([]models.Player, 0, len(picks))
	for _, pick := range picks {
		player, err := e.players.GetPlayer(ctx, *pick.PlayerID)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, err)
		}
		roster = append(roster, *player)
	}
	return roster, nil
}

// Recommend scores the remaining eligible players against a team's current
// roster. Advisory only: a recommendation may race with a concurrent
// assignment, so callers must still handle ErrCandidateUnavailable on the
// actual pick.
func (e *Engine) Recommend(ctx context.Context, draftID, teamID uuid.UUID, limit int) ([]recommend.Recommendation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", ErrInvalidConfiguration)
	}

	roster, err := e.TeamRoster(ctx, draftID, teamID)
	if err != nil {
		return nil, err
	}

	pool, err := e.players.ListEligiblePlayers(ctx, PlayerFilter{NotInDraft: draftID})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, err)
	}

	return recommend.Recommend(roster, pool, limit), nil
}

// Snapshot builds the late-joiner view of a draft: lifecycle status, the
// pick on the clock, and the most recent assigned picks.
func (e *Engine) Snapshot(ctx context.Context, draftID uuid.UUID) (*Snapshot, error) {
	draft, err := e.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, storeErr(err)
	}
	picks, err := e.ListPicks(ctx, draftID)
	if err != nil {
		return nil, err
	}

	var recent []models.Pick
	completed := 0
	for _, pick := range picks {
		if pick.Assigned() {
			completed++
			recent = append(recent, pick)
		}
	}
	if len(recent) > defaultSnapshotPicks {
		recent = recent[len(recent)-defaultSnapshotPicks:]
	}

	return &Snapshot{
		DraftID:         draft.ID,
		Status:          draft.Status,
		CurrentSequence: draft.CurrentPick,
		NextDeadline:    draft.NextDeadline,
		TotalPicks:      draft.Settings.TotalPicks(),
		CompletedPicks:  completed,
		RecentPicks:     recent,
	}, nil
}

// PendingDeadline exposes the soonest pick deadline across in-progress
// drafts, for the auto-pick scheduler.
func (e *Engine) PendingDeadline(ctx context.Context) (*NextDeadline, error) {
	deadline, err := e.store.NextDeadline(ctx)
	if err != nil {
		return nil, storeErr(err)
	}
	return deadline, nil
}

// DraftsDueForPick lists drafts whose current pick deadline has passed.
func (e *Engine) DraftsDueForPick(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: limit must be greater than 0", ErrInvalidConfiguration)
	}
	ids, err := e.store.ListDraftsDueForPick(ctx, now, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return ids, nil
}

// IsPickExpired reports whether a pick that went on the clock at startedAt
// has exhausted its budget at the given instant. Pure; external schedulers
// poll it.
func IsPickExpired(startedAt, now time.Time, budget time.Duration) bool {
	if startedAt.IsZero() {
		return false
	}
	return !now.Before(startedAt.Add(budget))
}

// nextPending returns the lowest unassigned, unvoided sequence other than
// the one just assigned.
func nextPending(picks []models.Pick, justAssigned int) (int, bool) {
	next := -1
	for _, pick := range picks {
		if pick.Assigned() || pick.Voided || pick.Sequence == justAssigned {
			continue
		}
		if next == -1 || pick.Sequence < next {
			next = pick.Sequence
		}
	}
	return next, next != -1
}

func insertEvent(ctx context.Context, tx Tx, draftID uuid.UUID, eventType events.Type, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return tx.InsertOutboxEvent(ctx, draftID, eventType, data)
}

func validateCreateDraftRequest(req CreateDraftRequest) error {
	if req.ID == uuid.Nil {
		return fmt.Errorf("%w: id is required", ErrInvalidConfiguration)
	}
	if req.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidConfiguration)
	}
	switch req.DraftType {
	case models.DraftTypeSnake, models.DraftTypeLinear, models.DraftTypeAuction:
	default:
		return fmt.Errorf("%w: invalid draft type %q", ErrInvalidConfiguration, req.DraftType)
	}
	if req.Settings.Rounds <= 0 {
		return fmt.Errorf("%w: rounds must be greater than 0", ErrInvalidConfiguration)
	}
	if len(req.Settings.DraftOrder) == 0 {
		return fmt.Errorf("%w: draft_order is required", ErrInvalidConfiguration)
	}
	if req.Settings.TimePerPickSec < 0 {
		return fmt.Errorf("%w: time_per_pick_sec cannot be negative", ErrInvalidConfiguration)
	}
	seen := make(map[uuid.UUID]struct{}, len(req.Settings.DraftOrder))
	for _, teamID := range req.Settings.DraftOrder {
		if teamID == uuid.Nil {
			return fmt.Errorf("%w: draft_order contains a nil team id", ErrInvalidConfiguration)
		}
		if _, dup := seen[teamID]; dup {
			return fmt.Errorf("%w: duplicate team %s in draft_order", ErrInvalidConfiguration, teamID)
		}
		seen[teamID] = struct{}{}
	}
	return nil
}

// storeErr passes engine error kinds through untouched and classifies
// everything else as a collaborator failure.
func storeErr(err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{
		ErrInvalidConfiguration, ErrInvalidState, ErrNotFound,
		ErrDraftNotActive, ErrPickNotCurrent, ErrPickAlreadyAssigned,
		ErrCandidateUnavailable, ErrCandidateIneligible, ErrBusy,
		ErrCollaboratorUnavailable,
	} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %s", ErrCollaboratorUnavailable, err)
}

func formatPointer(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *p)
}
