package recommend

import (
	"testing"

	"github.com/botsports/empire/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func player(name, position string, rank float64) models.Player {
	r := rank
	return models.Player{
		ID:       uuid.New(),
		FullName: name,
		Position: position,
		Rank:     &r,
		Active:   true,
	}
}

func TestNeedWeights_EmptyRoster(t *testing.T) {
	weights := NeedWeights(nil)

	// Every starting slot open plus full bench depth.
	require.Equal(t, 1*starterWeight+1*benchWeight, weights["QB"])
	require.Equal(t, 2*starterWeight+2*benchWeight, weights["RB"])
	require.Equal(t, 2*starterWeight+2*benchWeight, weights["WR"])
	require.Equal(t, 1*starterWeight+1*benchWeight, weights["TE"])
	require.Equal(t, starterWeight, weights["K"])
	require.Equal(t, starterWeight, weights["DEF"])
}

func TestNeedWeights_PartiallyFilled(t *testing.T) {
	roster := []models.Player{
		player("QB One", "QB", 10),
		player("RB One", "RB", 2),
	}
	weights := NeedWeights(roster)

	// One QB drafted: starter filled, bench slot remains.
	require.Equal(t, benchWeight, weights["QB"])
	// One of two RB starters filled.
	require.Equal(t, 1*starterWeight+2*benchWeight, weights["RB"])
	// WR untouched.
	require.Equal(t, 2*starterWeight+2*benchWeight, weights["WR"])
}

func TestNeedWeights_FilledPositionKeepsFloor(t *testing.T) {
	roster := []models.Player{
		player("QB One", "QB", 10),
		player("QB Two", "QB", 30),
	}
	weights := NeedWeights(roster)
	require.Equal(t, filledWeight, weights["QB"])
}

func TestRecommend_PrefersNeedOverRawRank(t *testing.T) {
	// Roster already has both RB starters; QB slot is empty.
	roster := []models.Player{
		player("RB One", "RB", 1),
		player("RB Two", "RB", 2),
	}
	rb := player("RB Three", "RB", 10)
	qb := player("QB One", "QB", 12)
	pool := []models.Player{rb, qb}

	recs := Recommend(roster, pool, 2)
	require.Len(t, recs, 2)
	require.Equal(t, qb.ID, recs[0].Player.ID, "open QB slot should outrank deep RB")
	require.Equal(t, rb.ID, recs[1].Player.ID)
}

func TestRecommend_BetterRankWinsWithinPosition(t *testing.T) {
	a := player("WR One", "WR", 4)
	b := player("WR Two", "WR", 12)

	recs := Recommend(nil, []models.Player{b, a}, 2)
	require.Len(t, recs, 2)
	require.Equal(t, a.ID, recs[0].Player.ID)
	require.Greater(t, recs[0].Score, recs[1].Score)
}

func TestRecommend_UnrankedSortLast(t *testing.T) {
	ranked := player("TE One", "TE", 50)
	unranked := models.Player{ID: uuid.New(), FullName: "TE Two", Position: "TE", Active: true}

	recs := Recommend(nil, []models.Player{unranked, ranked}, 2)
	require.Len(t, recs, 2)
	require.Equal(t, ranked.ID, recs[0].Player.ID)
	require.Equal(t, unranked.ID, recs[1].Player.ID)
	require.Zero(t, recs[1].Score)
}

func TestRecommend_TieBreaksByRankThenID(t *testing.T) {
	// Same position and same rank: the lower player id wins.
	r := 7.0
	a := models.Player{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), FullName: "WR A", Position: "WR", Rank: &r, Active: true}
	b := models.Player{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), FullName: "WR B", Position: "WR", Rank: &r, Active: true}

	recs := Recommend(nil, []models.Player{b, a}, 2)
	require.Equal(t, a.ID, recs[0].Player.ID)
	require.Equal(t, b.ID, recs[1].Player.ID)
}

func TestRecommend_DeterministicAndPure(t *testing.T) {
	roster := []models.Player{player("QB One", "QB", 5)}
	pool := []models.Player{
		player("RB One", "RB", 1),
		player("WR One", "WR", 2),
		player("TE One", "TE", 3),
		player("QB Two", "QB", 4),
	}
	poolCopy := append([]models.Player(nil), pool...)

	first := Recommend(roster, pool, 4)
	second := Recommend(roster, pool, 4)
	require.Equal(t, first, second)
	require.Equal(t, poolCopy, pool, "pool must not be mutated")
}

func TestRecommend_LimitAndEmptyPool(t *testing.T) {
	pool := []models.Player{
		player("RB One", "RB", 1),
		player("RB Two", "RB", 2),
		player("RB Three", "RB", 3),
	}

	recs := Recommend(nil, pool, 2)
	require.Len(t, recs, 2)

	require.Nil(t, Recommend(nil, nil, 5))
	require.Nil(t, Recommend(nil, pool, 0))
}

func TestRecommend_UnknownPositionGetsBenchWeight(t *testing.T) {
	exotic := player("Punter", "P", 5)
	known := player("RB One", "RB", 5)

	recs := Recommend(nil, []models.Player{exotic, known}, 2)
	require.Equal(t, known.ID, recs[0].Player.ID)
	require.Equal(t, exotic.ID, recs[1].Player.ID)
}
