// Package repository implements the draft engine's persistence contracts on
// PostgreSQL, plus an in-memory variant for tests and single-node
// development. Draft settings live in a JSONB column; everything else is
// plain relational.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/draft/events"
	"github.com/botsports/empire/internal/draft/outbox"
	"github.com/botsports/empire/internal/models"
	"github.com/botsports/empire/internal/sqlutil"
	"github.com/google/uuid"
)

// querier is the overlap of *sql.DB and *sql.Tx the queries run against.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every statement. Bound to *sql.DB it serves committed reads;
// bound to *sql.Tx it serves the engine's transactional view.
type queries struct {
	db querier
}

func newTxQueries(tx *sql.Tx) *queries {
	return &queries{db: tx}
}

// PostgresStore implements engine.Store and outbox.Store on a shared
// connection pool.
type PostgresStore struct {
	queries
	pool *sql.DB
}

var (
	_ engine.Store = (*PostgresStore)(nil)
	_ outbox.Store = (*PostgresStore)(nil)
)

// NewPostgresStore creates a store on an open connection pool.
func NewPostgresStore(pool *sql.DB) *PostgresStore {
	return &PostgresStore{
		queries: queries{db: pool},
		pool:    pool,
	}
}

// RunInTransaction executes fn against a transactional view of the store.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx engine.Tx) error) error {
	return sqlutil.Run(ctx, s.pool, newTxQueries, func(q *queries) error {
		return fn(q)
	})
}

const draftColumns = `id, league_id, name, draft_type, status, settings,
	current_pick, next_deadline, started_at, completed_at, created_at, updated_at`

func (q *queries) GetDraft(ctx context.Context, id uuid.UUID) (*models.Draft, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+draftColumns+` FROM drafts WHERE id = $1`, id)
	draft, err := scanDraft(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: draft %s", engine.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return draft, nil
}

func (q *queries) CreateDraft(ctx context.Context, draft *models.Draft) error {
	settings, err := json.Marshal(draft.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal draft settings: %w", err)
	}

	_, err = q.db.ExecContext(ctx,
		`INSERT INTO drafts (`+draftColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		draft.ID, draft.LeagueID, draft.Name, string(draft.DraftType),
		string(draft.Status), settings,
		nullInt(draft.CurrentPick), nullTime(draft.NextDeadline),
		nullTime(draft.StartedAt), nullTime(draft.CompletedAt),
		draft.CreatedAt, draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create draft: %w", err)
	}
	return nil
}

func (q *queries) SaveDraft(ctx context.Context, draft *models.Draft) error {
	settings, err := json.Marshal(draft.Settings)
	if err != nil {
		return fmt.Errorf("failed to marshal draft settings: %w", err)
	}

	res, err := q.db.ExecContext(ctx,
		`UPDATE drafts SET
			name = $2, draft_type = $3, status = $4, settings = $5,
			current_pick = $6, next_deadline = $7, started_at = $8,
			completed_at = $9, updated_at = $10
		 WHERE id = $1`,
		draft.ID, draft.Name, string(draft.DraftType), string(draft.Status),
		settings, nullInt(draft.CurrentPick), nullTime(draft.NextDeadline),
		nullTime(draft.StartedAt), nullTime(draft.CompletedAt), draft.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return requireRow(res, "draft", draft.ID)
}

func (q *queries) DeleteDraft(ctx context.Context, id uuid.UUID) error {
	res, err := q.db.ExecContext(ctx, `DELETE FROM drafts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete draft: %w", err)
	}
	return requireRow(res, "draft", id)
}

const pickColumns = `id, draft_id, sequence, round, pick, team_id, player_id, picked_at, voided`

func (q *queries) GetPick(ctx context.Context, id uuid.UUID) (*models.Pick, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+pickColumns+` FROM draft_picks WHERE id = $1`, id)
	pick, err := scanPick(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: pick %s", engine.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get pick: %w", err)
	}
	return pick, nil
}

func (q *queries) ListPicks(ctx context.Context, draftID uuid.UUID) ([]models.Pick, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+pickColumns+` FROM draft_picks WHERE draft_id = $1 ORDER BY sequence`, draftID)
	if err != nil {
		return nil, fmt.Errorf("failed to list picks: %w", err)
	}
	return collectPicks(rows)
}

func (q *queries) ListAssignedPicksByTeam(ctx context.Context, draftID, teamID uuid.UUID) ([]models.Pick, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+pickColumns+` FROM draft_picks
		 WHERE draft_id = $1 AND team_id = $2 AND player_id IS NOT NULL
		 ORDER BY sequence`, draftID, teamID)
	if err != nil {
		return nil, fmt.Errorf("failed to list team picks: %w", err)
	}
	return collectPicks(rows)
}

func (q *queries) CreatePicks(ctx context.Context, picks []models.Pick) error {
	for _, pick := range picks {
		_, err := q.db.ExecContext(ctx,
			`INSERT INTO draft_picks (`+pickColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			pick.ID, pick.DraftID, pick.Sequence, pick.Round, pick.Pick,
			pick.TeamID, nullUUID(pick.PlayerID), nullTime(pick.PickedAt), pick.Voided)
		if err != nil {
			return fmt.Errorf("failed to create pick %d: %w", pick.Sequence, err)
		}
	}
	return nil
}

func (q *queries) SavePick(ctx context.Context, pick *models.Pick) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE draft_picks SET player_id = $2, picked_at = $3, voided = $4 WHERE id = $1`,
		pick.ID, nullUUID(pick.PlayerID), nullTime(pick.PickedAt), pick.Voided)
	if err != nil {
		return fmt.Errorf("failed to save pick: %w", err)
	}
	return requireRow(res, "pick", pick.ID)
}

func (q *queries) VoidUnassignedPicks(ctx context.Context, draftID uuid.UUID) (int, error) {
	res, err := q.db.ExecContext(ctx,
		`UPDATE draft_picks SET voided = TRUE
		 WHERE draft_id = $1 AND player_id IS NULL AND NOT voided`, draftID)
	if err != nil {
		return 0, fmt.Errorf("failed to void picks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count voided picks: %w", err)
	}
	return int(n), nil
}

func (q *queries) PlayerTaken(ctx context.Context, draftID, playerID uuid.UUID) (bool, error) {
	var taken bool
	err := q.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM draft_picks
			WHERE draft_id = $1 AND player_id = $2 AND NOT voided
		 )`, draftID, playerID).Scan(&taken)
	if err != nil {
		return false, fmt.Errorf("failed to check player taken: %w", err)
	}
	return taken, nil
}

func (q *queries) NextDeadline(ctx context.Context) (*engine.NextDeadline, error) {
	var out engine.NextDeadline
	var deadline sql.NullTime
	err := q.db.QueryRowContext(ctx,
		`SELECT id, next_deadline FROM drafts
		 WHERE status = 'IN_PROGRESS' AND next_deadline IS NOT NULL
		 ORDER BY next_deadline ASC LIMIT 1`).Scan(&out.DraftID, &deadline)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch next deadline: %w", err)
	}
	if deadline.Valid {
		out.Deadline = &deadline.Time
	}
	return &out, nil
}

func (q *queries) ListDraftsDueForPick(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id FROM drafts
		 WHERE status = 'IN_PROGRESS' AND next_deadline IS NOT NULL AND next_deadline <= $1
		 ORDER BY next_deadline ASC LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due drafts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan draft id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (q *queries) InsertOutboxEvent(ctx context.Context, draftID uuid.UUID, eventType events.Type, payload []byte) error {
	_, err := q.db.ExecContext(ctx,
		`INSERT INTO draft_outbox (id, draft_id, event_type, payload)
		 VALUES ($1, $2, $3, $4)`,
		uuid.New(), draftID, string(eventType), payload)
	if err != nil {
		return fmt.Errorf("failed to insert %s outbox event: %w", eventType, err)
	}
	return nil
}

// FetchUnsentOutbox returns unsent outbox rows oldest-first. The relay calls
// this outside a transaction, so two workers polling concurrently can fetch
// and publish the same row. Delivery is at-least-once; the broker
// deduplicates by message id.
func (q *queries) FetchUnsentOutbox(ctx context.Context, limit int) ([]outbox.Event, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, draft_id, event_type, payload, created_at, sent_at
		 FROM draft_outbox
		 WHERE sent_at IS NULL
		 ORDER BY created_at ASC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var out []outbox.Event
	for rows.Next() {
		var evt outbox.Event
		var eventType string
		var sentAt sql.NullTime
		if err := rows.Scan(&evt.ID, &evt.DraftID, &eventType, &evt.Payload, &evt.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		evt.EventType = events.Type(eventType)
		if sentAt.Valid {
			evt.SentAt = &sentAt.Time
		}
		out = append(out, evt)
	}
	return out, rows.Err()
}

func (q *queries) MarkOutboxSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]string, len(ids))
	for i, id := range ids {
		args[i] = id.String()
	}
	_, err := q.db.ExecContext(ctx,
		`UPDATE draft_outbox SET sent_at = NOW() WHERE id = ANY($1::uuid[])`, args)
	if err != nil {
		return fmt.Errorf("failed to mark outbox events as sent: %w", err)
	}
	return nil
}

func scanDraft(row *sql.Row) (*models.Draft, error) {
	var draft models.Draft
	var draftType, status string
	var settings []byte
	var currentPick sql.NullInt64
	var nextDeadline, startedAt, completedAt sql.NullTime

	err := row.Scan(&draft.ID, &draft.LeagueID, &draft.Name, &draftType,
		&status, &settings, &currentPick, &nextDeadline, &startedAt,
		&completedAt, &draft.CreatedAt, &draft.UpdatedAt)
	if err != nil {
		return nil, err
	}

	draft.DraftType = models.DraftType(draftType)
	draft.Status = models.DraftStatus(status)
	if err := json.Unmarshal(settings, &draft.Settings); err != nil {
		return nil, fmt.Errorf("failed to unmarshal draft settings: %w", err)
	}
	if currentPick.Valid {
		v := int(currentPick.Int64)
		draft.CurrentPick = &v
	}
	if nextDeadline.Valid {
		draft.NextDeadline = &nextDeadline.Time
	}
	if startedAt.Valid {
		draft.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		draft.CompletedAt = &completedAt.Time
	}
	return &draft, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPickRow(row scannable) (*models.Pick, error) {
	var pick models.Pick
	var playerID sql.NullString
	var pickedAt sql.NullTime

	err := row.Scan(&pick.ID, &pick.DraftID, &pick.Sequence, &pick.Round,
		&pick.Pick, &pick.TeamID, &playerID, &pickedAt, &pick.Voided)
	if err != nil {
		return nil, err
	}

	if playerID.Valid {
		id, err := uuid.Parse(playerID.String)
		if err != nil {
			return nil, fmt.Errorf("invalid player id %q: %w", playerID.String, err)
		}
		pick.PlayerID = &id
	}
	if pickedAt.Valid {
		pick.PickedAt = &pickedAt.Time
	}
	return &pick, nil
}

func scanPick(row *sql.Row) (*models.Pick, error) {
	return scanPickRow(row)
}

func collectPicks(rows *sql.Rows) ([]models.Pick, error) {
	defer rows.Close()
	var picks []models.Pick
	for rows.Next() {
		pick, err := scanPickRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pick: %w", err)
		}
		picks = append(picks, *pick)
	}
	return picks, rows.Err()
}

func requireRow(res sql.Result, kind string, id uuid.UUID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s %s", engine.ErrNotFound, kind, id)
	}
	return nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func nullUUID(v *uuid.UUID) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: v.String(), Valid: true}
}
