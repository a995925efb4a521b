// Package orchestrator enforces pick deadlines. It polls for drafts whose
// current pick clock has expired and makes the pick on the team's behalf
// through the same engine path a client would use, so every validation rule
// applies to auto-picks too.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Config tunes the deadline poller.
type Config struct {
	PollInterval time.Duration
	BatchSize    int
	NumWorkers   int
}

// DefaultConfig returns sane polling defaults.
func DefaultConfig() Config {
	return Config{
		PollInterval: time.Second,
		BatchSize:    25,
		NumWorkers:   4,
	}
}

// Orchestrator drives expired picks to completion.
type Orchestrator struct {
	engine *engine.Engine
	strat  AutoPickStrategy
	clock  clockwork.Clock
	config Config

	workCh chan uuid.UUID

	// inFlight prevents the poller from re-enqueueing a draft a worker is
	// already processing.
	inFlightMu sync.Mutex
	inFlight   map[uuid.UUID]bool

	wg sync.WaitGroup
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock replaces the wall clock, for tests.
func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

// New creates an Orchestrator.
func New(e *engine.Engine, strat AutoPickStrategy, config Config, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		engine:   e,
		strat:    strat,
		clock:    clockwork.NewRealClock(),
		config:   config,
		workCh:   make(chan uuid.UUID, config.NumWorkers*2),
		inFlight: make(map[uuid.UUID]bool),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run polls until the context is cancelled. It blocks; callers run it in a
// goroutine.
func (o *Orchestrator) Run(ctx context.Context) {
	log.Info().
		Dur("poll_interval", o.config.PollInterval).
		Int("workers", o.config.NumWorkers).
		Msg("orchestrator started")

	for i := 0; i < o.config.NumWorkers; i++ {
		o.wg.Add(1)
		go o.worker(ctx, i)
	}

	ticker := o.clock.NewTicker(o.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.wg.Wait()
			log.Info().Msg("orchestrator stopped")
			return
		case <-ticker.Chan():
			o.pollOnce(ctx)
		}
	}
}

// pollOnce enqueues every draft whose deadline has passed, skipping drafts a
// worker already holds.
func (o *Orchestrator) pollOnce(ctx context.Context) {
	due, err := o.engine.DraftsDueForPick(ctx, o.clock.Now().UTC(), o.config.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("failed to list due drafts")
		return
	}

	for _, draftID := range due {
		if !o.markInFlight(draftID) {
			continue
		}
		select {
		case o.workCh <- draftID:
		default:
			o.clearInFlight(draftID)
			log.Warn().Str("draft_id", draftID.String()).Msg("work channel full, deferring to next poll")
		}
	}
}

func (o *Orchestrator) worker(ctx context.Context, id int) {
	defer o.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case draftID := <-o.workCh:
			if err := o.processExpiredPick(ctx, draftID); err != nil {
				log.Error().
					Err(err).
					Str("draft_id", draftID.String()).
					Int("worker", id).
					Msg("failed to process expired pick")
			}
			o.clearInFlight(draftID)
		}
	}
}

// processExpiredPick re-verifies the deadline against committed state, then
// makes the pick for the team on the clock. Losing a race to a human pick is
// the expected case, not an error.
func (o *Orchestrator) processExpiredPick(ctx context.Context, draftID uuid.UUID) error {
	draft, err := o.engine.GetDraft(ctx, draftID)
	if err != nil {
		return fmt.Errorf("get draft: %w", err)
	}
	now := o.clock.Now().UTC()
	if draft.CurrentPick == nil || draft.NextDeadline == nil || now.Before(*draft.NextDeadline) {
		// The pick was made, or the draft ended, between poll and process.
		return nil
	}

	picks, err := o.engine.ListPicks(ctx, draftID)
	if err != nil {
		return fmt.Errorf("list picks: %w", err)
	}
	var current *uuid.UUID
	var teamID uuid.UUID
	for _, pick := range picks {
		if pick.Sequence == *draft.CurrentPick {
			pickID := pick.ID
			current = &pickID
			teamID = pick.TeamID
			break
		}
	}
	if current == nil {
		return fmt.Errorf("current pick sequence %d not found", *draft.CurrentPick)
	}

	playerID, err := o.strat.SelectPlayer(ctx, draftID, teamID)
	if err != nil {
		return fmt.Errorf("select player: %w", err)
	}

	_, err = o.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID:  draftID,
		PickID:   *current,
		PlayerID: playerID,
	})
	switch {
	case err == nil:
	case errors.Is(err, engine.ErrPickNotCurrent),
		errors.Is(err, engine.ErrPickAlreadyAssigned),
		errors.Is(err, engine.ErrDraftNotActive):
		// A client pick landed first; nothing to do.
		log.Debug().
			Str("draft_id", draftID.String()).
			Msg("auto-pick lost race to client pick")
		return nil
	case errors.Is(err, engine.ErrCandidateUnavailable):
		// The recommended player was taken between selection and assignment;
		// the next poll retries with a fresh selection.
		log.Debug().
			Str("draft_id", draftID.String()).
			Str("player_id", playerID.String()).
			Msg("auto-pick candidate taken, will retry")
		return nil
	case errors.Is(err, engine.ErrBusy):
		// Lock contention; the next poll retries.
		return nil
	default:
		return fmt.Errorf("assign pick: %w", err)
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", playerID.String()).
		Msg("auto-pick made")
	return nil
}

func (o *Orchestrator) markInFlight(draftID uuid.UUID) bool {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	if o.inFlight[draftID] {
		return false
	}
	o.inFlight[draftID] = true
	return true
}

func (o *Orchestrator) clearInFlight(draftID uuid.UUID) {
	o.inFlightMu.Lock()
	defer o.inFlightMu.Unlock()
	delete(o.inFlight, draftID)
}
