// Package simulation drives nested Monte Carlo season realizations: one
// completed schedule per outer realization, many sampled outcomes per
// schedule, each rated from scratch.
package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/logger"
	"github.com/utakatalp/npi-simulator/internal/npi"
)

var ErrInvalidOptions = errors.New("invalid simulation options")

// Options configures a Runner.
type Options struct {
	ScheduleSims int
	OutcomeSims  int
	// Workers bounds concurrent outcome realizations; 0 means GOMAXPROCS.
	Workers int
	// Seed makes runs reproducible; 0 picks one from the clock.
	Seed int64

	Strategy      league.Strategy
	RegionalQuota float64
	RegionalTeams []string

	ScalingFactor float64
	UpdateFactor  float64
	KeepPlayed    bool

	Iterations int
	Neutral    float64
	Scorer     npi.Scorer
}

// DefaultOptions returns a single-realization run with the standard rating
// constants.
func DefaultOptions() Options {
	return Options{
		ScheduleSims:  1,
		OutcomeSims:   1,
		RegionalQuota: league.DefaultRegionalQuota,
		ScalingFactor: league.DefaultScalingFactor,
		UpdateFactor:  league.DefaultUpdateFactor,
		Iterations:    npi.DefaultIterations,
		Neutral:       npi.NeutralRating,
	}
}

func (o Options) validate() error {
	switch {
	case o.ScheduleSims < 1:
		return fmt.Errorf("%w: schedule simulations must be at least 1", ErrInvalidOptions)
	case o.OutcomeSims < 1:
		return fmt.Errorf("%w: outcome simulations must be at least 1", ErrInvalidOptions)
	case o.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidOptions)
	case o.Iterations < 0:
		return fmt.Errorf("%w: iterations must not be negative", ErrInvalidOptions)
	case o.ScalingFactor <= 0:
		return fmt.Errorf("%w: scaling factor must be positive", ErrInvalidOptions)
	}
	return nil
}

// Sink receives each schedule realization once it has fully completed.
type Sink interface {
	WriteSchedule(ctx context.Context, index int, schedule []league.Fixture) error
	WriteRatings(ctx context.Context, index int, table *WideTable) error
}

// Sinks fans a realization out to several sinks in order.
type Sinks []Sink

func (ss Sinks) WriteSchedule(ctx context.Context, index int, schedule []league.Fixture) error {
	for _, s := range ss {
		if err := s.WriteSchedule(ctx, index, schedule); err != nil {
			return err
		}
	}
	return nil
}

func (ss Sinks) WriteRatings(ctx context.Context, index int, table *WideTable) error {
	for _, s := range ss {
		if err := s.WriteRatings(ctx, index, table); err != nil {
			return err
		}
	}
	return nil
}

// ScheduleResult is the output of one schedule realization.
type ScheduleResult struct {
	Index    int
	Schedule []league.Fixture
	Ratings  *WideTable
	// Stats sums ledger counters over the outcome realizations.
	Stats league.LoadStats
}

// Runner executes simulation runs.
type Runner struct {
	opts   Options
	engine *npi.Engine
	sink   Sink
	logger *logrus.Entry
}

// NewRunner validates opts and prepares a runner. sink may be nil.
func NewRunner(opts Options, sink Sink, log *logrus.Logger) (*Runner, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Workers == 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}

	engine := npi.NewEngine(opts.Iterations, opts.Scorer, log)
	engine.Neutral = opts.Neutral

	return &Runner{
		opts:   opts,
		engine: engine,
		sink:   sink,
		logger: log.WithField("component", "simulation"),
	}, nil
}

// Seed returns the seed in effect, including one chosen from the clock.
func (r *Runner) Seed() int64 { return r.opts.Seed }

// Run performs every schedule realization in order. Each realization is
// handed to the sink before the next one starts; the run stops at the first
// error or when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, template []league.Fixture, base *league.Table) ([]ScheduleResult, error) {
	start := time.Now()
	r.logger.WithFields(logrus.Fields{
		"schedule_sims": r.opts.ScheduleSims,
		"outcome_sims":  r.opts.OutcomeSims,
		"workers":       r.opts.Workers,
		"seed":          r.opts.Seed,
		"fixtures":      len(template),
	}).Info("Starting season simulation")

	results := make([]ScheduleResult, 0, r.opts.ScheduleSims)
	for s := 1; s <= r.opts.ScheduleSims; s++ {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		res, err := r.RunSchedule(ctx, s, template, base)
		if err != nil {
			return results, fmt.Errorf("schedule simulation %d: %w", s, err)
		}

		if r.sink != nil {
			if err := r.sink.WriteSchedule(ctx, s, res.Schedule); err != nil {
				return results, fmt.Errorf("writing schedule %d: %w", s, err)
			}
			if err := r.sink.WriteRatings(ctx, s, res.Ratings); err != nil {
				return results, fmt.Errorf("writing ratings %d: %w", s, err)
			}
		}
		results = append(results, res)
	}

	r.logger.WithFields(logrus.Fields{
		"schedule_sims":  len(results),
		"execution_time": time.Since(start),
	}).Info("Season simulation completed")
	return results, nil
}

// RunSchedule completes the template once and runs every outcome
// realization over it.
func (r *Runner) RunSchedule(ctx context.Context, s int, template []league.Fixture, base *league.Table) (ScheduleResult, error) {
	completer := league.NewCompleter(r.opts.Strategy, r.opts.RegionalQuota, r.opts.RegionalTeams, r.rng(s, 0))
	schedule, err := completer.Complete(template, base)
	if err != nil {
		return ScheduleResult{}, fmt.Errorf("completing schedule: %w", err)
	}

	parts := make([]TeamRatings, r.opts.OutcomeSims)
	stats := make([]league.LoadStats, r.opts.OutcomeSims)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Workers)
	for o := 1; o <= r.opts.OutcomeSims; o++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			part, st, err := r.RunOutcome(s, o, schedule, base)
			if err != nil {
				return fmt.Errorf("outcome simulation %d: %w", o, err)
			}
			parts[o-1] = part
			stats[o-1] = st
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ScheduleResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return ScheduleResult{}, err
	}

	res := ScheduleResult{Index: s, Schedule: schedule, Ratings: Merge(parts)}
	for _, st := range stats {
		res.Stats.Loaded += st.Loaded
		res.Stats.Unparseable += st.Unparseable
		res.Stats.ZeroZero += st.ZeroZero
		res.Stats.InvalidTeam += st.InvalidTeam
		res.Stats.SelfPlay += st.SelfPlay
		res.Stats.Duplicate += st.Duplicate
	}

	r.logger.WithFields(logrus.Fields{
		"schedule": s,
		"fixtures": len(schedule),
		"teams":    len(res.Ratings.Rows),
		"loaded":   res.Stats.Loaded,
		"skipped":  res.Stats.Skipped(),
	}).Info("Schedule simulation done")
	return res, nil
}

// RunOutcome samples one season over a fixed schedule and rates it. base
// is cloned, never modified.
func (r *Runner) RunOutcome(s, o int, schedule []league.Fixture, base *league.Table) (TeamRatings, league.LoadStats, error) {
	season, _, err := r.SampleOutcome(s, o, schedule, base)
	if err != nil {
		return TeamRatings{}, league.LoadStats{}, err
	}

	teams := league.TeamsOf(season)
	games, stats := league.Load(league.RowsFromFixtures(season), teams)
	result := r.engine.Converge(games, teams)

	part := TeamRatings{Index: o, Teams: teams.Sorted(), Ratings: make(map[string]float64, len(teams))}
	for team := range teams {
		if v, ok := result.Rating(team); ok {
			part.Ratings[team] = v
		}
	}

	logger.WithRealization(r.logger, s, o).WithFields(logrus.Fields{
		"games":  len(games),
		"rounds": result.Rounds,
	}).Debug("Outcome simulation done")
	return part, stats, nil
}

// SampleOutcome resolves schedule for outcome realization o of schedule s
// and returns the decided fixtures with the rating table they left behind.
func (r *Runner) SampleOutcome(s, o int, schedule []league.Fixture, base *league.Table) ([]league.Fixture, *league.Table, error) {
	predictor := league.NewPredictor(r.opts.ScalingFactor, r.opts.UpdateFactor, r.rng(s, o))
	predictor.KeepPlayed = r.opts.KeepPlayed

	table := base.Clone()
	season, err := predictor.Predict(table, schedule)
	if err != nil {
		return nil, nil, err
	}
	return season, table, nil
}

// ScheduleRand returns the source used to complete schedule realization s.
func (r *Runner) ScheduleRand(s int) *rand.Rand { return r.rng(s, 0) }

// rng derives an independent source per (schedule, outcome) so results do
// not depend on worker scheduling. Outcome 0 is the schedule draw.
func (r *Runner) rng(s, o int) *rand.Rand {
	return rand.New(rand.NewSource(deriveSeed(r.opts.Seed, uint64(s), uint64(o))))
}

// deriveSeed mixes the base seed with indexes using the splitmix64
// finaliser.
func deriveSeed(base int64, parts ...uint64) int64 {
	x := uint64(base)
	for _, p := range parts {
		x ^= p + 0x9e3779b97f4a7c15 + (x << 6) + (x >> 2)
		x += 0x9e3779b97f4a7c15
		x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
		x = (x ^ (x >> 27)) * 0x94d049bb133111eb
		x ^= x >> 31
	}
	return int64(x)
}
