package npi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/logger"
)

func teamSet(names ...string) league.TeamSet {
	ts := make(league.TeamSet)
	for _, n := range names {
		ts[n] = struct{}{}
	}
	return ts
}

func season() []league.Game {
	return []league.Game{
		{Date: "02/10/2024", TeamA: "Alpha", TeamB: "Beta", ScoreA: 3, ScoreB: 1, GameNumber: 1},
		{Date: "02/11/2024", TeamA: "Beta", TeamB: "Gamma", ScoreA: 2, ScoreB: 0, GameNumber: 1},
		{Date: "02/12/2024", TeamA: "Gamma", TeamB: "Alpha", ScoreA: 4, ScoreB: 4, GameNumber: 1},
	}
}

func TestConvergeZeroIterations(t *testing.T) {
	e := NewEngine(0, nil, logger.Discard())
	res := e.Converge(season(), teamSet("Alpha", "Beta", "Gamma", "Delta"))

	assert.Equal(t, 0, res.Rounds)
	require.Len(t, res.Teams, 4)
	for team, rec := range res.Teams {
		assert.False(t, rec.HasGames, team)
		_, ok := res.Rating(team)
		assert.False(t, ok)
	}
	assert.Empty(t, res.Ranking())
}

func TestConvergeRunsExactlyIterations(t *testing.T) {
	for _, k := range []int{1, 2, 30} {
		e := NewEngine(k, nil, logger.Discard())
		var seen []int
		e.OnRound = func(round int, strengths map[string]float64) {
			seen = append(seen, round)
			assert.NotContains(t, strengths, "Delta", "teams without games never enter the feedback map")
		}
		res := e.Converge(season(), teamSet("Alpha", "Beta", "Gamma", "Delta"))
		assert.Equal(t, k, res.Rounds)
		assert.Len(t, seen, k)
		assert.Equal(t, k, seen[len(seen)-1])
	}
}

func TestConvergeFirstRound(t *testing.T) {
	res := NewEngine(1, nil, logger.Discard()).Converge(season(), teamSet("Alpha", "Beta", "Gamma", "Delta"))

	// every opponent is at the neutral 50 in round one
	alpha, ok := res.Rating("Alpha")
	require.True(t, ok)
	assert.InDelta(t, (60.0+50.0)/2, alpha, 1e-9)

	beta, _ := res.Rating("Beta")
	assert.InDelta(t, (40.0+60.0)/2, beta, 1e-9)

	gamma, _ := res.Rating("Gamma")
	assert.InDelta(t, (40.0+50.0)/2, gamma, 1e-9)

	assert.False(t, res.Teams["Delta"].HasGames)
	assert.Len(t, res.Teams["Alpha"].GameRatings, 2)
}

func TestConvergeUsesPreviousRound(t *testing.T) {
	games := []league.Game{{Date: "02/10/2024", TeamA: "Alpha", TeamB: "Beta", ScoreA: 1, ScoreB: 0, GameNumber: 1}}
	res := NewEngine(2, nil, logger.Discard()).Converge(games, teamSet("Alpha", "Beta"))

	// round 1: Alpha 60, Beta 40; round 2 scores against those
	alpha, _ := res.Rating("Alpha")
	beta, _ := res.Rating("Beta")
	assert.InDelta(t, 20+0.8*40, alpha, 1e-9)
	assert.InDelta(t, 0.8*60, beta, 1e-9)

	ranking := res.Ranking()
	require.Len(t, ranking, 2)
	assert.Equal(t, "Alpha", ranking[0].Team)
}

func TestConvergeCustomScorer(t *testing.T) {
	count := ScorerFunc{
		Game: func(o Outcome) float64 {
			if o.Result == Win {
				return 1
			}
			return 0
		},
		Fold: func(rs []float64) float64 {
			var s float64
			for _, r := range rs {
				s += r
			}
			return s
		},
	}
	res := NewEngine(3, count, logger.Discard()).Converge(season(), teamSet("Alpha", "Beta", "Gamma"))

	alpha, _ := res.Rating("Alpha")
	beta, _ := res.Rating("Beta")
	gamma, _ := res.Rating("Gamma")
	assert.Equal(t, 1.0, alpha)
	assert.Equal(t, 1.0, beta)
	assert.Equal(t, 0.0, gamma)
}

func TestConvergeNeutralOverride(t *testing.T) {
	e := NewEngine(1, nil, logger.Discard())
	e.Neutral = 0
	games := []league.Game{{Date: "02/10/2024", TeamA: "Alpha", TeamB: "Beta", ScoreA: 0, ScoreB: 1, GameNumber: 1}}
	res := e.Converge(games, teamSet("Alpha", "Beta"))

	alpha, _ := res.Rating("Alpha")
	assert.Equal(t, 0.0, alpha)
}

func TestLinearScorer(t *testing.T) {
	s := NewLinearScorer()
	assert.InDelta(t, 20+0.8*70, s.GameRating(Outcome{Result: Win, OpponentRating: 70}), 1e-12)
	assert.InDelta(t, 10+0.8*70, s.GameRating(Outcome{Result: Tie, OpponentRating: 70}), 1e-12)
	assert.InDelta(t, 0.8*70, s.GameRating(Outcome{Result: Loss, OpponentRating: 70}), 1e-12)
	assert.InDelta(t, 2.0, s.Aggregate([]float64{1, 2, 3}), 1e-12)
}
