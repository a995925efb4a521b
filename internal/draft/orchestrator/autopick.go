package orchestrator

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/botsports/empire/internal/draft/engine"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// AutoPickStrategy selects the player to draft for a team whose pick clock
// expired.
type AutoPickStrategy interface {
	SelectPlayer(ctx context.Context, draftID, teamID uuid.UUID) (uuid.UUID, error)
}

// RecommendationStrategy picks the top-scored recommendation for the team on
// the clock. This is the default production strategy: expired picks get the
// same candidate a human would have been advised to take.
type RecommendationStrategy struct {
	engine *engine.Engine
}

// NewRecommendationStrategy creates a recommendation-backed strategy.
func NewRecommendationStrategy(e *engine.Engine) *RecommendationStrategy {
	return &RecommendationStrategy{engine: e}
}

// SelectPlayer implements AutoPickStrategy.
func (s *RecommendationStrategy) SelectPlayer(ctx context.Context, draftID, teamID uuid.UUID) (uuid.UUID, error) {
	recs, err := s.engine.Recommend(ctx, draftID, teamID, 1)
	if err != nil {
		return uuid.Nil, fmt.Errorf("recommend: %w", err)
	}
	if len(recs) == 0 {
		return uuid.Nil, fmt.Errorf("no available players")
	}

	log.Info().
		Str("draft_id", draftID.String()).
		Str("team_id", teamID.String()).
		Str("player_id", recs[0].Player.ID.String()).
		Float64("score", recs[0].Score).
		Msg("auto-pick selected recommended player")
	return recs[0].Player.ID, nil
}

// RandomStrategy picks a random eligible player. Useful for load tests and
// as a fallback when player rank data is missing.
type RandomStrategy struct {
	players engine.PlayerSource

	mu  sync.Mutex // rand.Rand is not safe for concurrent workers
	rng *rand.Rand
}

// NewRandomStrategy constructs a RandomStrategy with its own seed.
func NewRandomStrategy(players engine.PlayerSource) *RandomStrategy {
	src := rand.NewSource(time.Now().UnixNano())
	return &RandomStrategy{
		players: players,
		rng:     rand.New(src),
	}
}

// SelectPlayer implements AutoPickStrategy.
func (s *RandomStrategy) SelectPlayer(ctx context.Context, draftID, teamID uuid.UUID) (uuid.UUID, error) {
	pool, err := s.players.ListEligiblePlayers(ctx, engine.PlayerFilter{NotInDraft: draftID})
	if err != nil {
		return uuid.Nil, fmt.Errorf("list players: %w", err)
	}
	if len(pool) == 0 {
		return uuid.Nil, fmt.Errorf("no available players")
	}

	s.mu.Lock()
	choice := pool[s.rng.Intn(len(pool))]
	s.mu.Unlock()
	log.Info().
		Str("draft_id", draftID.String()).
		Str("player_id", choice.ID.String()).
		Msg("auto-pick selected random player")
	return choice.ID, nil
}
