package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func seedDraft(t *testing.T, store *MemoryStore) *models.Draft {
	t.Helper()
	draft := &models.Draft{
		ID:        uuid.New(),
		LeagueID:  uuid.New(),
		Name:      "seed",
		DraftType: models.DraftTypeSnake,
		Status:    models.DraftStatusForming,
		Settings: models.DraftSettings{
			Rounds:         1,
			TimePerPickSec: 30,
			DraftOrder:     []uuid.UUID{uuid.New(), uuid.New()},
		},
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	err := store.RunInTransaction(context.Background(), func(tx engine.Tx) error {
		return tx.CreateDraft(context.Background(), draft)
	})
	require.NoError(t, err)
	return draft
}

func TestMemoryStore_TransactionRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	boom := errors.New("boom")
	err := store.RunInTransaction(ctx, func(tx engine.Tx) error {
		loaded, err := tx.GetDraft(ctx, draft.ID)
		require.NoError(t, err)
		loaded.Status = models.DraftStatusInProgress
		require.NoError(t, tx.SaveDraft(ctx, loaded))
		if err := tx.InsertOutboxEvent(ctx, draft.ID, events.TypeDraftStarted, []byte(`{}`)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	// Neither the status change nor the outbox row survived.
	loaded, err := store.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusForming, loaded.Status)

	rows, err := store.FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestMemoryStore_TransactionCommitsOnSuccess(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx engine.Tx) error {
		loaded, err := tx.GetDraft(ctx, draft.ID)
		require.NoError(t, err)
		loaded.Status = models.DraftStatusInProgress
		if err := tx.SaveDraft(ctx, loaded); err != nil {
			return err
		}
		return tx.InsertOutboxEvent(ctx, draft.ID, events.TypeDraftStarted, []byte(`{}`))
	})
	require.NoError(t, err)

	loaded, err := store.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusInProgress, loaded.Status)

	rows, err := store.FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, events.TypeDraftStarted, rows[0].EventType)
}

func TestMemoryStore_MarkOutboxSent(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	err := store.RunInTransaction(ctx, func(tx engine.Tx) error {
		if err := tx.InsertOutboxEvent(ctx, draft.ID, events.TypePickMade, []byte(`{}`)); err != nil {
			return err
		}
		return tx.InsertOutboxEvent(ctx, draft.ID, events.TypePickMade, []byte(`{}`))
	})
	require.NoError(t, err)

	rows, err := store.FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, store.MarkOutboxSent(ctx, []uuid.UUID{rows[0].ID}))

	remaining, err := store.FetchUnsentOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, rows[1].ID, remaining[0].ID)
}

func TestMemoryStore_VoidUnassignedPicks(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	playerID := uuid.New()
	now := time.Now().UTC()
	picks := []models.Pick{
		{ID: uuid.New(), DraftID: draft.ID, Sequence: 0, Round: 1, Pick: 1,
			TeamID: draft.Settings.DraftOrder[0], PlayerID: &playerID, PickedAt: &now},
		{ID: uuid.New(), DraftID: draft.ID, Sequence: 1, Round: 1, Pick: 2,
			TeamID: draft.Settings.DraftOrder[1]},
	}
	err := store.RunInTransaction(ctx, func(tx engine.Tx) error {
		return tx.CreatePicks(ctx, picks)
	})
	require.NoError(t, err)

	var voided int
	err = store.RunInTransaction(ctx, func(tx engine.Tx) error {
		var err error
		voided, err = tx.VoidUnassignedPicks(ctx, draft.ID)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 1, voided)

	taken, err := store.PlayerTaken(ctx, draft.ID, playerID)
	require.NoError(t, err)
	require.True(t, taken)
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	first, err := store.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	first.Status = models.DraftStatusCancelled
	first.Settings.DraftOrder[0] = uuid.Nil

	second, err := store.GetDraft(ctx, draft.ID)
	require.NoError(t, err)
	require.Equal(t, models.DraftStatusForming, second.Status)
	require.NotEqual(t, uuid.Nil, second.Settings.DraftOrder[0])
}

func TestMemoryPlayerSource_FiltersAndSorts(t *testing.T) {
	store := NewMemoryStore()
	draft := seedDraft(t, store)
	ctx := context.Background()

	rank := func(v float64) *float64 { return &v }
	taken := models.Player{ID: uuid.New(), FullName: "Taken", Position: "RB", Rank: rank(1), Active: true}
	best := models.Player{ID: uuid.New(), FullName: "Best", Position: "RB", Rank: rank(2), Active: true}
	wr := models.Player{ID: uuid.New(), FullName: "Wide", Position: "WR", Rank: rank(3), Active: true}
	inactive := models.Player{ID: uuid.New(), FullName: "Hurt", Position: "RB", Rank: rank(4), Active: false}
	unranked := models.Player{ID: uuid.New(), FullName: "Rookie", Position: "RB", Active: true}

	source := NewMemoryPlayerSource(store, taken, best, wr, inactive, unranked)

	now := time.Now().UTC()
	err := store.RunInTransaction(ctx, func(tx engine.Tx) error {
		return tx.CreatePicks(ctx, []models.Pick{{
			ID: uuid.New(), DraftID: draft.ID, Sequence: 0, Round: 1, Pick: 1,
			TeamID: draft.Settings.DraftOrder[0], PlayerID: &taken.ID, PickedAt: &now,
		}})
	})
	require.NoError(t, err)

	players, err := source.ListEligiblePlayers(ctx, engine.PlayerFilter{NotInDraft: draft.ID})
	require.NoError(t, err)
	require.Len(t, players, 3, "taken and inactive players excluded")
	require.Equal(t, best.ID, players[0].ID)
	require.Equal(t, wr.ID, players[1].ID)
	require.Equal(t, unranked.ID, players[2].ID, "unranked sorts last")

	rbs, err := source.ListEligiblePlayers(ctx, engine.PlayerFilter{Position: "RB", NotInDraft: draft.ID})
	require.NoError(t, err)
	require.Len(t, rbs, 2)

	limited, err := source.ListEligiblePlayers(ctx, engine.PlayerFilter{NotInDraft: draft.ID, Limit: 1})
	require.NoError(t, err)
	require.Len(t, limited, 1)
}
