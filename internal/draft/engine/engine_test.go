package engine_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/draft/repository"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine  *engine.Engine
	store   *repository.MemoryStore
	players *repository.MemoryPlayerSource
	clock   *clockwork.FakeClock
	teams   []uuid.UUID
	pool    []models.Player
}

func newFixture(t *testing.T, teams int) *fixture {
	t.Helper()

	store := repository.NewMemoryStore()
	players := repository.NewMemoryPlayerSource(store)
	clock := clockwork.NewFakeClock()

	f := &fixture{
		store:   store,
		players: players,
		clock:   clock,
		engine:  engine.New(store, players, engine.WithClock(clock)),
	}
	for i := 0; i < teams; i++ {
		f.teams = append(f.teams, uuid.New())
	}
	positions := []string{"QB", "RB", "WR", "TE", "RB", "WR", "K", "DEF"}
	for i := 0; i < 24; i++ {
		rank := float64(i + 1)
		p := models.Player{
			ID:       uuid.New(),
			FullName: fmt.Sprintf("Player %02d", i+1),
			Position: positions[i%len(positions)],
			Rank:     &rank,
			Active:   true,
		}
		players.AddPlayer(p)
		f.pool = append(f.pool, p)
	}
	return f
}

func (f *fixture) createDraft(t *testing.T, draftType models.DraftType, rounds int) *models.Draft {
	t.Helper()
	draft, err := f.engine.CreateDraft(context.Background(), engine.CreateDraftRequest{
		ID:        uuid.New(),
		LeagueID:  uuid.New(),
		Name:      "test draft",
		DraftType: draftType,
		Settings: models.DraftSettings{
			Rounds:         rounds,
			TimePerPickSec: 30,
			DraftOrder:     f.teams,
		},
	})
	require.NoError(t, err)
	return draft
}

func (f *fixture) startDraft(t *testing.T, draftType models.DraftType, rounds int) *models.Draft {
	t.Helper()
	draft := f.createDraft(t, draftType, rounds)
	started, err := f.engine.StartDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	return started
}

func (f *fixture) currentPick(t *testing.T, draftID uuid.UUID) models.Pick {
	t.Helper()
	draft, err := f.engine.GetDraft(context.Background(), draftID)
	require.NoError(t, err)
	require.NotNil(t, draft.CurrentPick)
	picks, err := f.engine.ListPicks(context.Background(), draftID)
	require.NoError(t, err)
	for _, pick := range picks {
		if pick.Sequence == *draft.CurrentPick {
			return pick
		}
	}
	t.Fatalf("current pick %d not found", *draft.CurrentPick)
	return models.Pick{}
}

func (f *fixture) eventTypes(t *testing.T, draftID uuid.UUID) []events.Type {
	t.Helper()
	rows, err := f.store.FetchUnsentOutbox(context.Background(), 1000)
	require.NoError(t, err)
	var types []events.Type
	for _, row := range rows {
		if row.DraftID == draftID {
			types = append(types, row.EventType)
		}
	}
	return types
}

func TestCreateDraft_Validation(t *testing.T) {
	f := newFixture(t, 2)

	valid := engine.CreateDraftRequest{
		ID:        uuid.New(),
		LeagueID:  uuid.New(),
		Name:      "draft",
		DraftType: models.DraftTypeSnake,
		Settings: models.DraftSettings{
			Rounds:         2,
			TimePerPickSec: 30,
			DraftOrder:     f.teams,
		},
	}

	tests := []struct {
		name   string
		mutate func(*engine.CreateDraftRequest)
	}{
		{name: "nil id", mutate: func(r *engine.CreateDraftRequest) { r.ID = uuid.Nil }},
		{name: "empty name", mutate: func(r *engine.CreateDraftRequest) { r.Name = "" }},
		{name: "unknown type", mutate: func(r *engine.CreateDraftRequest) { r.DraftType = "KEEPER" }},
		{name: "zero rounds", mutate: func(r *engine.CreateDraftRequest) { r.Settings.Rounds = 0 }},
		{name: "no teams", mutate: func(r *engine.CreateDraftRequest) { r.Settings.DraftOrder = nil }},
		{name: "negative pick budget", mutate: func(r *engine.CreateDraftRequest) { r.Settings.TimePerPickSec = -1 }},
		{name: "duplicate team", mutate: func(r *engine.CreateDraftRequest) {
			r.Settings.DraftOrder = []uuid.UUID{f.teams[0], f.teams[0]}
		}},
		{name: "nil team", mutate: func(r *engine.CreateDraftRequest) {
			r.Settings.DraftOrder = []uuid.UUID{f.teams[0], uuid.Nil}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := valid
			req.Settings.DraftOrder = append([]uuid.UUID(nil), valid.Settings.DraftOrder...)
			tt.mutate(&req)
			_, err := f.engine.CreateDraft(context.Background(), req)
			require.ErrorIs(t, err, engine.ErrInvalidConfiguration)
		})
	}
}

func TestCreateDraft_StartsForming(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.createDraft(t, models.DraftTypeSnake, 2)

	require.Equal(t, models.DraftStatusForming, draft.Status)
	require.Nil(t, draft.CurrentPick)

	picks, err := f.engine.ListPicks(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Empty(t, picks, "no picks exist before start")
}

func TestStartDraft_CreatesPicksAndStartsClock(t *testing.T) {
	f := newFixture(t, 3)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)

	require.Equal(t, models.DraftStatusInProgress, draft.Status)
	require.NotNil(t, draft.CurrentPick)
	require.Equal(t, 0, *draft.CurrentPick)
	require.NotNil(t, draft.StartedAt)
	require.NotNil(t, draft.NextDeadline)
	require.Equal(t, draft.StartedAt.Add(30*time.Second), *draft.NextDeadline)

	picks, err := f.engine.ListPicks(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Len(t, picks, 6)
	for i, pick := range picks {
		require.Equal(t, i, pick.Sequence)
		require.False(t, pick.Assigned())
	}
	// Snake: round 2 reverses the order.
	require.Equal(t, f.teams[2], picks[3].TeamID)
	require.Equal(t, f.teams[0], picks[5].TeamID)

	require.Equal(t, []events.Type{events.TypeDraftStarted}, f.eventTypes(t, draft.ID))
}

func TestStartDraft_ZeroBudgetDisablesPickClock(t *testing.T) {
	f := newFixture(t, 2)
	draft, err := f.engine.CreateDraft(context.Background(), engine.CreateDraftRequest{
		ID:        uuid.New(),
		LeagueID:  uuid.New(),
		Name:      "untimed draft",
		DraftType: models.DraftTypeSnake,
		Settings: models.DraftSettings{
			Rounds:         1,
			TimePerPickSec: 0,
			DraftOrder:     f.teams,
		},
	})
	require.NoError(t, err)

	started, err := f.engine.StartDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusInProgress, started.Status)
	require.NotNil(t, started.CurrentPick)
	require.Nil(t, started.NextDeadline, "an untimed draft carries no deadline")

	// The pointer advances without ever rearming a deadline.
	pick := f.currentPick(t, draft.ID)
	_, err = f.engine.AssignPick(context.Background(), engine.AssignPickRequest{
		DraftID:  draft.ID,
		PickID:   pick.ID,
		PlayerID: f.pool[0].ID,
	})
	require.NoError(t, err)

	after, err := f.engine.GetDraft(context.Background(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, 1, *after.CurrentPick)
	require.Nil(t, after.NextDeadline)

	// No amount of elapsed time makes the draft due for an auto-pick.
	f.clock.Advance(24 * time.Hour)
	due, err := f.engine.DraftsDueForPick(context.Background(), f.clock.Now().UTC(), 10)
	require.NoError(t, err)
	require.Empty(t, due)
}

func TestStartDraft_OnlyFromForming(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)

	_, err := f.engine.StartDraft(context.Background(), draft.ID)
	require.ErrorIs(t, err, engine.ErrInvalidState)

	_, err = f.engine.StartDraft(context.Background(), uuid.New())
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestAssignPick_HappyPathToCompletion(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		pick := f.currentPick(t, draft.ID)
		assigned, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
			DraftID:  draft.ID,
			PickID:   pick.ID,
			PlayerID: f.pool[i].ID,
		})
		require.NoError(t, err)
		require.True(t, assigned.Assigned())
		require.Equal(t, f.pool[i].ID, *assigned.PlayerID)
	}

	final, err := f.engine.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusCompleted, final.Status)
	require.Nil(t, final.CurrentPick)
	require.Nil(t, final.NextDeadline)
	require.NotNil(t, final.CompletedAt)

	types := f.eventTypes(t, draft.ID)
	require.Equal(t, []events.Type{
		events.TypeDraftStarted,
		events.TypePickMade, events.TypePickMade, events.TypePickMade, events.TypePickMade,
		events.TypeDraftCompleted,
	}, types)
}

func TestAssignPick_EnforcesTurnOrder(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	picks, err := f.engine.ListPicks(ctx, draft.ID)
	require.NoError(t, err)

	// Sequence 1 is not on the clock yet.
	_, err = f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID:  draft.ID,
		PickID:   picks[1].ID,
		PlayerID: f.pool[0].ID,
	})
	require.ErrorIs(t, err, engine.ErrPickNotCurrent)

	// Nothing was mutated by the rejected attempt.
	after, err := f.engine.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, 0, *after.CurrentPick)
}

func TestAssignPick_RejectsTakenPlayer(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	first := f.currentPick(t, draft.ID)
	_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: first.ID, PlayerID: f.pool[0].ID,
	})
	require.NoError(t, err)

	second := f.currentPick(t, draft.ID)
	_, err = f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: second.ID, PlayerID: f.pool[0].ID,
	})
	require.ErrorIs(t, err, engine.ErrCandidateUnavailable)
}

func TestAssignPick_RejectsInactivePlayer(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)

	retired := models.Player{ID: uuid.New(), FullName: "Retired Guy", Position: "RB", Active: false}
	f.players.AddPlayer(retired)

	pick := f.currentPick(t, draft.ID)
	_, err := f.engine.AssignPick(context.Background(), engine.AssignPickRequest{
		DraftID: draft.ID, PickID: pick.ID, PlayerID: retired.ID,
	})
	require.ErrorIs(t, err, engine.ErrCandidateIneligible)
}

func TestAssignPick_RejectsForeignPickAndInactiveDraft(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	forming := f.createDraft(t, models.DraftTypeSnake, 2)
	_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: forming.ID, PickID: uuid.New(), PlayerID: f.pool[0].ID,
	})
	require.ErrorIs(t, err, engine.ErrDraftNotActive)

	running := f.startDraft(t, models.DraftTypeSnake, 2)
	_, err = f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: running.ID, PickID: uuid.New(), PlayerID: f.pool[0].ID,
	})
	require.ErrorIs(t, err, engine.ErrNotFound)
}

func TestAssignPick_NoDoubleAssignAcrossDraft(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	used := make(map[uuid.UUID]bool)
	for i := 0; i < 4; i++ {
		pick := f.currentPick(t, draft.ID)
		_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
			DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[i].ID,
		})
		require.NoError(t, err)
		require.False(t, used[f.pool[i].ID])
		used[f.pool[i].ID] = true
	}

	picks, err := f.engine.ListPicks(ctx, draft.ID)
	require.NoError(t, err)
	seen := make(map[uuid.UUID]bool)
	for _, pick := range picks {
		require.True(t, pick.Assigned())
		require.False(t, seen[*pick.PlayerID], "player assigned twice")
		seen[*pick.PlayerID] = true
	}
}

// slowStore gates RunInTransaction so a test can hold the per-draft lock in
// a controlled way.
type slowStore struct {
	engine.Store
	entered chan struct{}
	release chan struct{}
}

func (s *slowStore) RunInTransaction(ctx context.Context, fn func(tx engine.Tx) error) error {
	s.entered <- struct{}{}
	<-s.release
	return s.Store.RunInTransaction(ctx, fn)
}

func TestAssignPick_BusyWhenLockHeld(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	slow := &slowStore{
		Store:   f.store,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	contended := engine.New(slow, f.players,
		engine.WithLockWait(20*time.Millisecond))

	pick := f.currentPick(t, draft.ID)

	done := make(chan error, 1)
	go func() {
		_, err := contended.AssignPick(ctx, engine.AssignPickRequest{
			DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[0].ID,
		})
		done <- err
	}()

	// Wait until the first assignment holds the lock inside its transaction.
	<-slow.entered

	_, err := contended.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[1].ID,
	})
	require.ErrorIs(t, err, engine.ErrBusy)

	close(slow.release)
	require.NoError(t, <-done)
}

func TestCancelDraft_VoidsUnassignedPicks(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	pick := f.currentPick(t, draft.ID)
	_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[0].ID,
	})
	require.NoError(t, err)

	cancelled, err := f.engine.CancelDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusCancelled, cancelled.Status)
	require.Nil(t, cancelled.CurrentPick)

	picks, err := f.engine.ListPicks(ctx, draft.ID)
	require.NoError(t, err)
	for _, p := range picks {
		if p.ID == pick.ID {
			require.True(t, p.Assigned(), "assigned pick survives cancellation")
			require.False(t, p.Voided)
		} else {
			require.True(t, p.Voided, "unassigned pick %d must be voided", p.Sequence)
		}
	}

	// Terminal states reject further transitions.
	_, err = f.engine.CancelDraft(ctx, draft.ID)
	require.ErrorIs(t, err, engine.ErrInvalidState)
	_, err = f.engine.StartDraft(ctx, draft.ID)
	require.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestDeleteDraft_OnlyWhileForming(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	forming := f.createDraft(t, models.DraftTypeSnake, 2)
	require.NoError(t, f.engine.DeleteDraft(ctx, forming.ID))
	_, err := f.engine.GetDraft(ctx, forming.ID)
	require.ErrorIs(t, err, engine.ErrNotFound)

	started := f.startDraft(t, models.DraftTypeSnake, 2)
	err = f.engine.DeleteDraft(ctx, started.ID)
	require.ErrorIs(t, err, engine.ErrInvalidState)
}

func TestSnapshot_TracksProgress(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	snap, err := f.engine.Snapshot(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusInProgress, snap.Status)
	require.Equal(t, 4, snap.TotalPicks)
	require.Equal(t, 0, snap.CompletedPicks)
	require.Empty(t, snap.RecentPicks)

	for i := 0; i < 2; i++ {
		pick := f.currentPick(t, draft.ID)
		_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
			DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[i].ID,
		})
		require.NoError(t, err)
	}

	snap, err = f.engine.Snapshot(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, 2, snap.CompletedPicks)
	require.Len(t, snap.RecentPicks, 2)
	require.Equal(t, 0, snap.RecentPicks[0].Sequence)
	require.Equal(t, 1, snap.RecentPicks[1].Sequence)
	require.NotNil(t, snap.CurrentSequence)
	require.Equal(t, 2, *snap.CurrentSequence)
}

func TestTeamRoster_InPickOrder(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		pick := f.currentPick(t, draft.ID)
		_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
			DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[i].ID,
		})
		require.NoError(t, err)
	}

	// Snake with 2 teams: team 0 has sequences 0 and 3.
	roster, err := f.engine.TeamRoster(ctx, draft.ID, f.teams[0])
	require.NoError(t, err)
	require.Len(t, roster, 2)
	require.Equal(t, f.pool[0].ID, roster[0].ID)
	require.Equal(t, f.pool[3].ID, roster[1].ID)
}

func TestRecommend_ExcludesTakenPlayers(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	pick := f.currentPick(t, draft.ID)
	_, err := f.engine.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[0].ID,
	})
	require.NoError(t, err)

	recs, err := f.engine.Recommend(ctx, draft.ID, f.teams[1], 5)
	require.NoError(t, err)
	require.Len(t, recs, 5)
	for _, rec := range recs {
		require.NotEqual(t, f.pool[0].ID, rec.Player.ID, "taken player must not be recommended")
	}

	_, err = f.engine.Recommend(ctx, draft.ID, f.teams[1], 0)
	require.ErrorIs(t, err, engine.ErrInvalidConfiguration)
}

func TestDraftsDueForPick_UsesDeadline(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	due, err := f.engine.DraftsDueForPick(ctx, f.clock.Now().UTC(), 10)
	require.NoError(t, err)
	require.Empty(t, due, "deadline has not passed yet")

	f.clock.Advance(31 * time.Second)
	due, err = f.engine.DraftsDueForPick(ctx, f.clock.Now().UTC(), 10)
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{draft.ID}, due)

	deadline, err := f.engine.PendingDeadline(ctx)
	require.NoError(t, err)
	require.NotNil(t, deadline)
	require.Equal(t, draft.ID, deadline.DraftID)
}

func TestIsPickExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	budget := 30 * time.Second

	tests := []struct {
		name string
		now  time.Time
		want bool
	}{
		{name: "before budget", now: start.Add(29 * time.Second), want: false},
		{name: "exactly at budget", now: start.Add(30 * time.Second), want: true},
		{name: "after budget", now: start.Add(31 * time.Second), want: true},
		{name: "zero start", now: start, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			startedAt := start
			if tt.name == "zero start" {
				startedAt = time.Time{}
			}
			require.Equal(t, tt.want, engine.IsPickExpired(startedAt, tt.now, budget))
		})
	}
}

// failingPlayers simulates an unavailable player data collaborator.
type failingPlayers struct{}

func (failingPlayers) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	return nil, errors.New("upstream down")
}

func (failingPlayers) ListEligiblePlayers(ctx context.Context, filter engine.PlayerFilter) ([]models.Player, error) {
	return nil, errors.New("upstream down")
}

func TestAssignPick_CollaboratorFailureAbortsCleanly(t *testing.T) {
	f := newFixture(t, 2)
	draft := f.startDraft(t, models.DraftTypeSnake, 2)
	ctx := context.Background()

	broken := engine.New(f.store, failingPlayers{})
	pick := f.currentPick(t, draft.ID)

	_, err := broken.AssignPick(ctx, engine.AssignPickRequest{
		DraftID: draft.ID, PickID: pick.ID, PlayerID: f.pool[0].ID,
	})
	require.ErrorIs(t, err, engine.ErrCollaboratorUnavailable)

	// The failed transaction left no partial state behind.
	after, err := f.engine.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, 0, *after.CurrentPick)
	fresh, err := f.engine.ListPicks(ctx, draft.ID)
	require.NoError(t, err)
	require.False(t, fresh[0].Assigned())
}
