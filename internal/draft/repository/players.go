package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
)

// PostgresPlayerSource implements engine.PlayerSource on the players table.
type PostgresPlayerSource struct {
	pool *sql.DB
}

var _ engine.PlayerSource = (*PostgresPlayerSource)(nil)

// NewPostgresPlayerSource creates a player source on an open connection pool.
func NewPostgresPlayerSource(pool *sql.DB) *PostgresPlayerSource {
	return &PostgresPlayerSource{pool: pool}
}

func (s *PostgresPlayerSource) GetPlayer(ctx context.Context, id uuid.UUID) (*models.Player, error) {
	var player models.Player
	var rank sql.NullFloat64
	err := s.pool.QueryRowContext(ctx,
		`SELECT id, full_name, position, rank, active FROM players WHERE id = $1`, id).
		Scan(&player.ID, &player.FullName, &player.Position, &rank, &player.Active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("player %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get player: %w", err)
	}
	if rank.Valid {
		player.Rank = &rank.Float64
	}
	return &player, nil
}

// ListEligiblePlayers returns active players matching the filter, best rank
// first, unranked players last.
func (s *PostgresPlayerSource) ListEligiblePlayers(ctx context.Context, filter engine.PlayerFilter) ([]models.Player, error) {
	query := `SELECT p.id, p.full_name, p.position, p.rank, p.active
		FROM players p
		WHERE p.active`
	args := []any{}

	if filter.Position != "" {
		args = append(args, filter.Position)
		query += fmt.Sprintf(" AND p.position = $%d", len(args))
	}
	if filter.NotInDraft != uuid.Nil {
		args = append(args, filter.NotInDraft)
		query += fmt.Sprintf(` AND NOT EXISTS (
			SELECT 1 FROM draft_picks dp
			WHERE dp.draft_id = $%d AND dp.player_id = p.id AND NOT dp.voided
		)`, len(args))
	}

	query += " ORDER BY p.rank ASC NULLS LAST, p.id ASC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list eligible players: %w", err)
	}
	defer rows.Close()

	var players []models.Player
	for rows.Next() {
		var player models.Player
		var rank sql.NullFloat64
		if err := rows.Scan(&player.ID, &player.FullName, &player.Position, &rank, &player.Active); err != nil {
			return nil, fmt.Errorf("failed to scan player: %w", err)
		}
		if rank.Valid {
			player.Rank = &rank.Float64
		}
		players = append(players, player)
	}
	return players, rows.Err()
}
