package league

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/optimize"
)

// ReplayStats summarises how well pre-game ratings anticipated real results.
type ReplayStats struct {
	Games int
	// MSE is the mean squared difference between result and expected score.
	MSE float64
	// ErrorRate is the share of games where a Bernoulli draw from the
	// expected score disagreed with the real result.
	ErrorRate float64
}

// Replay walks played fixtures in order, updating table with real results.
// Unplayed fixtures are skipped. rng drives the error-rate draw and may be
// nil, in which case the favourite is taken as the prediction.
func Replay(table *Table, fixtures []Fixture, scalingFactor, updateFactor float64, rng *rand.Rand) (ReplayStats, error) {
	p := &Predictor{ScalingFactor: scalingFactor, UpdateFactor: updateFactor}
	if p.ScalingFactor == 0 {
		p.ScalingFactor = DefaultScalingFactor
	}

	var stats ReplayStats
	var sq float64
	var misses int
	for i, f := range fixtures {
		if !f.Scheduled() || !f.Played() {
			continue
		}
		actual := playedScore(f)
		var expected float64
		err := p.apply(table, f.Team, f.Opponent, func(exp float64) float64 {
			expected = exp
			return actual
		})
		if err != nil {
			return ReplayStats{}, fmt.Errorf("fixture %d: %w", i, err)
		}
		sq += (actual - expected) * (actual - expected)

		predicted := expected >= 0.5
		if rng != nil {
			predicted = rng.Float64() < expected
		}
		// a tie is never predicted correctly
		if actual == 0.5 || predicted != (actual == 1) {
			misses++
		}
		stats.Games++
	}
	if stats.Games > 0 {
		stats.MSE = sq / float64(stats.Games)
		stats.ErrorRate = float64(misses) / float64(stats.Games)
	}
	return stats, nil
}

// Calibration is the result of fitting the update factor.
type Calibration struct {
	UpdateFactor float64
	Stats        ReplayStats
}

// Calibrate searches for the update factor that minimises the replay MSE of
// fixtures, starting from start. base is not modified.
func Calibrate(base *Table, fixtures []Fixture, scalingFactor, start float64) (Calibration, error) {
	objective := func(x []float64) float64 {
		k := x[0]
		if k <= 0 {
			return math.Inf(1)
		}
		stats, err := Replay(base.Clone(), fixtures, scalingFactor, k, nil)
		if err != nil || stats.Games == 0 {
			return math.Inf(1)
		}
		return stats.MSE
	}

	// Surface missing teams before handing control to the optimiser.
	stats, err := Replay(base.Clone(), fixtures, scalingFactor, start, nil)
	if err != nil {
		return Calibration{}, err
	}
	if stats.Games == 0 {
		return Calibration{}, &ValidationError{Field: "fixtures", Message: "no played games to calibrate on"}
	}

	res, err := optimize.Minimize(optimize.Problem{Func: objective}, []float64{start}, nil, &optimize.NelderMead{})
	if err != nil && res == nil {
		return Calibration{}, fmt.Errorf("minimising update factor: %w", err)
	}

	k := res.X[0]
	final, err := Replay(base.Clone(), fixtures, scalingFactor, k, nil)
	if err != nil {
		return Calibration{}, err
	}
	return Calibration{UpdateFactor: k, Stats: final}, nil
}
