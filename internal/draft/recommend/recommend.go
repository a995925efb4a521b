// Package recommend scores available players against a team's positional
// needs. It is stateless and advisory: a recommendation computed here may
// race with a concurrent pick assignment, which is accepted.
package recommend

import (
	"sort"

	"github.com/botsports/empire/internal/models"
)

// rosterTarget is the composition a team drafts toward, split into starting
// slots and bench depth. Starting-slot deficits weigh heavier than bench
// deficits when scoring need.
type rosterTarget struct {
	Starters int
	Bench    int
}

var rosterTargets = map[string]rosterTarget{
	"QB":  {Starters: 1, Bench: 1},
	"RB":  {Starters: 2, Bench: 2},
	"WR":  {Starters: 2, Bench: 2},
	"TE":  {Starters: 1, Bench: 1},
	"K":   {Starters: 1},
	"DEF": {Starters: 1},
}

const (
	starterWeight = 3.0
	benchWeight   = 1.0
	// filledWeight keeps fully-stocked positions draftable at a discount.
	filledWeight = 0.25
)

// Recommendation is a scored candidate.
type Recommendation struct {
	Player models.Player `json:"player"`
	Score  float64       `json:"score"`
}

// NeedWeights computes the per-position need weight for a roster. The roster
// is the list of players the team has already acquired in this draft.
func NeedWeights(roster []models.Player) map[string]float64 {
	counts := make(map[string]int, len(roster))
	for _, p := range roster {
		counts[p.Position]++
	}

	weights := make(map[string]float64, len(rosterTargets))
	for position, target := range rosterTargets {
		have := counts[position]
		w := 0.0
		if have < target.Starters {
			w += float64(target.Starters-have) * starterWeight
			w += float64(target.Bench) * benchWeight
		} else if have < target.Starters+target.Bench {
			w += float64(target.Starters+target.Bench-have) * benchWeight
		}
		if w == 0 {
			w = filledWeight
		}
		weights[position] = w
	}
	return weights
}

// Recommend returns up to limit players from pool ordered by combined
// need-times-rank score, best first. The ordering is fully deterministic:
// ties break by ascending rank, then by ascending player id. Calling it
// twice with identical inputs yields identical output. Inputs are not
// mutated.
func Recommend(roster []models.Player, pool []models.Player, limit int) []Recommendation {
	if limit <= 0 || len(pool) == 0 {
		return nil
	}

	weights := NeedWeights(roster)

	recs := make([]Recommendation, 0, len(pool))
	for _, p := range pool {
		recs = append(recs, Recommendation{Player: p, Score: score(p, weights)})
	}

	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Score != recs[j].Score {
			return recs[i].Score > recs[j].Score
		}
		ri, rj := recs[i].Player.Rank, recs[j].Player.Rank
		switch {
		case ri != nil && rj != nil && *ri != *rj:
			return *ri < *rj
		case ri != nil && rj == nil:
			return true
		case ri == nil && rj != nil:
			return false
		}
		return recs[i].Player.ID.String() < recs[j].Player.ID.String()
	})

	if len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// score combines positional need with inverse ADP. Unranked players score
// zero so they sort after every ranked player.
func score(p models.Player, weights map[string]float64) float64 {
	if p.Rank == nil || *p.Rank <= 0 {
		return 0
	}
	w, ok := weights[p.Position]
	if !ok {
		w = benchWeight
	}
	return w * (100.0 / *p.Rank)
}
