package league

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"
)

const (
	DefaultScalingFactor = 400.0
	DefaultUpdateFactor  = 133.0
)

// ExpectedScore is the logistic probability that a team rated a beats a
// team rated b.
func ExpectedScore(a, b, scalingFactor float64) float64 {
	return 1 / (1 + math.Pow(10, (b-a)/scalingFactor))
}

// NewRating applies one Elo step.
func NewRating(rating, actual, expected, updateFactor float64) float64 {
	return rating + updateFactor*(actual-expected)
}

// Predictor decides fixtures from rating differentials, one game at a time.
type Predictor struct {
	ScalingFactor float64
	UpdateFactor  float64
	// KeepPlayed replays fixtures that already carry a result instead of
	// sampling them.
	KeepPlayed bool

	rng *rand.Rand
}

// NewPredictor returns a predictor drawing from rng. A nil rng is seeded
// from the clock.
func NewPredictor(scalingFactor, updateFactor float64, rng *rand.Rand) *Predictor {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if scalingFactor == 0 {
		scalingFactor = DefaultScalingFactor
	}
	return &Predictor{ScalingFactor: scalingFactor, UpdateFactor: updateFactor, rng: rng}
}

// Predict resolves every fixture in order, mutating table as the season
// unfolds. Sampled fixtures carry a W/L flag and a 1-0 or 0-1 score;
// replayed ones keep their score and may be ties.
func (p *Predictor) Predict(table *Table, fixtures []Fixture) ([]Fixture, error) {
	out := make([]Fixture, len(fixtures))
	for i, f := range fixtures {
		if !f.Scheduled() {
			return nil, fmt.Errorf("fixture %d on %s for %q: %w", i, f.Date.Format(DateLayout), f.Team, ErrUnscheduled)
		}
		var err error
		if p.KeepPlayed && f.Played() {
			actual := playedScore(f)
			err = p.apply(table, f.Team, f.Opponent, func(float64) float64 { return actual })
			out[i] = f
			out[i].WL = wl(actual)
		} else {
			var actual float64
			err = p.apply(table, f.Team, f.Opponent, func(exp float64) float64 {
				if p.rng.Float64() < exp {
					actual = 1
				}
				return actual
			})
			out[i] = withResult(f, actual == 1)
		}
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
	}
	return out, nil
}

// apply updates both teams' counters and ratings; decide receives the home
// side's expected score and returns its actual score: 1, 0.5 or 0.
func (p *Predictor) apply(table *Table, home, away string, decide func(float64) float64) error {
	h, err := table.mustGet(home)
	if err != nil {
		return err
	}
	a, err := table.mustGet(away)
	if err != nil {
		return err
	}

	h.Played++
	a.Played++

	expected := ExpectedScore(h.Elo, a.Elo, p.ScalingFactor)
	actual := decide(expected)
	switch {
	case actual > 0.5:
		h.Wins++
	case actual < 0.5:
		a.Wins++
	}

	newHome := NewRating(h.Elo, actual, expected, p.UpdateFactor)
	newAway := NewRating(a.Elo, 1-actual, 1-expected, p.UpdateFactor)
	h.Elo, a.Elo = newHome, newAway
	return nil
}

// playedScore is the home side's actual score for a decided fixture. The
// fixture's W/L/T flag wins over the scoreline.
func playedScore(f Fixture) float64 {
	switch strings.ToUpper(strings.TrimSpace(f.WL)) {
	case "W":
		return 1
	case "L":
		return 0
	case "T":
		return 0.5
	}
	switch {
	case f.HomeScore > f.AwayScore:
		return 1
	case f.HomeScore < f.AwayScore:
		return 0
	}
	return 0.5
}

func withResult(f Fixture, won bool) Fixture {
	if won {
		f.WL = "W"
		f.HomeScore, f.AwayScore = 1, 0
	} else {
		f.WL = "L"
		f.HomeScore, f.AwayScore = 0, 1
	}
	return f
}

func wl(actual float64) string {
	switch {
	case actual > 0.5:
		return "W"
	case actual < 0.5:
		return "L"
	}
	return "T"
}
