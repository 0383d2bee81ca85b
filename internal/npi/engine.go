// Package npi computes opponent-adjusted power ratings by repeated passes
// over a season's games.
package npi

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/league"
)

const (
	DefaultIterations = 30
	NeutralRating     = 50.0
)

// Record is one team's rating after the final round.
type Record struct {
	Team        string    `json:"team"`
	Rating      float64   `json:"npi"`
	HasGames    bool      `json:"has_games"`
	GameRatings []float64 `json:"game_ratings,omitempty"`
}

// Ranked reports whether the record carries a usable rating.
func (r Record) Ranked() bool { return r.HasGames }

// Result is the output of one convergence run.
type Result struct {
	Teams  map[string]Record
	Rounds int
}

// Rating returns a team's rating and whether it is ranked.
func (r *Result) Rating(team string) (float64, bool) {
	rec, ok := r.Teams[team]
	if !ok || !rec.Ranked() {
		return 0, false
	}
	return rec.Rating, true
}

// Ranking returns ranked teams by descending rating, name breaking ties.
func (r *Result) Ranking() []Record {
	out := make([]Record, 0, len(r.Teams))
	for _, rec := range r.Teams {
		if rec.Ranked() {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].Team < out[j].Team
	})
	return out
}

// Engine runs a fixed number of rating rounds.
type Engine struct {
	Iterations int
	Neutral    float64
	Scorer     Scorer
	// OnRound, when set, observes each new opponent-strength map.
	OnRound func(round int, strengths map[string]float64)

	logger *logrus.Entry
}

// NewEngine builds an engine. A nil scorer uses the linear scorer.
func NewEngine(iterations int, scorer Scorer, logger *logrus.Logger) *Engine {
	if scorer == nil {
		scorer = NewLinearScorer()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Engine{
		Iterations: iterations,
		Neutral:    NeutralRating,
		Scorer:     scorer,
		logger:     logger.WithField("component", "npi"),
	}
}

type side struct {
	opponent string
	result   GameResult
	pf, pa   int
}

// Converge rates every team in teams from games. Exactly e.Iterations
// rounds run; the last round is returned whether or not ratings settled.
func (e *Engine) Converge(games []league.Game, teams league.TeamSet) *Result {
	names := teams.Sorted()

	schedule := make(map[string][]side, len(names))
	for _, g := range games {
		ra, rb := Loss, Win
		switch {
		case g.ScoreA > g.ScoreB:
			ra, rb = Win, Loss
		case g.ScoreA == g.ScoreB:
			ra, rb = Tie, Tie
		}
		schedule[g.TeamA] = append(schedule[g.TeamA], side{g.TeamB, ra, g.ScoreA, g.ScoreB})
		schedule[g.TeamB] = append(schedule[g.TeamB], side{g.TeamA, rb, g.ScoreB, g.ScoreA})
	}

	records := make(map[string]Record, len(names))
	for _, t := range names {
		records[t] = Record{Team: t}
	}

	strengths := make(map[string]float64, len(names))
	for _, t := range names {
		strengths[t] = e.Neutral
	}

	rounds := 0
	for round := 1; round <= e.Iterations; round++ {
		next := make(map[string]Record, len(names))
		for _, t := range names {
			sides := schedule[t]
			if len(sides) == 0 {
				next[t] = Record{Team: t}
				continue
			}
			ratings := make([]float64, len(sides))
			for i, s := range sides {
				opp, ok := strengths[s.opponent]
				if !ok {
					opp = e.Neutral
				}
				ratings[i] = e.Scorer.GameRating(Outcome{
					Team:           t,
					Opponent:       s.opponent,
					Result:         s.result,
					PointsFor:      s.pf,
					PointsAgainst:  s.pa,
					OpponentRating: opp,
				})
			}
			next[t] = Record{
				Team:        t,
				Rating:      e.Scorer.Aggregate(ratings),
				HasGames:    true,
				GameRatings: ratings,
			}
		}

		strengths = make(map[string]float64, len(next))
		for t, rec := range next {
			if rec.HasGames {
				strengths[t] = rec.Rating
			}
		}
		records = next
		rounds++
		if e.OnRound != nil {
			e.OnRound(round, strengths)
		}
	}

	e.logger.WithFields(logrus.Fields{
		"teams":  len(names),
		"games":  len(games),
		"rounds": rounds,
	}).Debug("ratings converged")

	return &Result{Teams: records, Rounds: rounds}
}
