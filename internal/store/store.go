package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/simulation"
)

var ErrRunNotFound = errors.New("simulation run not found")

// Store wraps a Postgres connection and persists simulation runs.
type Store struct {
	DB *sql.DB
}

// NewStore opens a Postgres connection using the given connection string.
func NewStore(connStr string) (*Store, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// verify early
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Store{DB: db}, nil
}

func (s *Store) Close() error { return s.DB.Close() }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

// Migrate creates the necessary tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS simulation_runs (
		    id             SERIAL PRIMARY KEY,
		    seed           BIGINT  NOT NULL,
		    strategy       INT     NOT NULL,
		    schedule_sims  INT     NOT NULL,
		    outcome_sims   INT     NOT NULL,
		    iterations     INT     NOT NULL,
		    created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE TABLE IF NOT EXISTS simulated_fixtures (
		    id           SERIAL PRIMARY KEY,
		    run_id       INT  NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
		    schedule     INT  NOT NULL,
		    game_date    DATE NOT NULL,
		    team         TEXT NOT NULL,
		    opponent     TEXT NOT NULL,
		    game_number  INT  NOT NULL,
		    home_score   INT,
		    away_score   INT
		);`,
		`CREATE TABLE IF NOT EXISTS simulated_ratings (
		    run_id    INT  NOT NULL REFERENCES simulation_runs(id) ON DELETE CASCADE,
		    schedule  INT  NOT NULL,
		    outcome   INT  NOT NULL,
		    team      TEXT NOT NULL,
		    rating    DOUBLE PRECISION,
		    PRIMARY KEY (run_id, schedule, outcome, team)
		);`,
	}
	for _, q := range queries {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migrating: %w", err)
		}
	}
	return nil
}

// RunInfo describes a simulation run when it is registered.
type RunInfo struct {
	Seed         int64
	Strategy     league.Strategy
	ScheduleSims int
	OutcomeSims  int
	Iterations   int
}

// Run is a registered simulation run. It implements simulation.Sink.
type Run struct {
	ID    int
	store *Store
}

// CreateRun registers a run and returns a sink bound to it.
func (s *Store) CreateRun(ctx context.Context, info RunInfo) (*Run, error) {
	const q = `
INSERT INTO simulation_runs (seed, strategy, schedule_sims, outcome_sims, iterations)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`
	run := &Run{store: s}
	err := s.DB.QueryRowContext(ctx, q,
		info.Seed, int(info.Strategy), info.ScheduleSims, info.OutcomeSims, info.Iterations,
	).Scan(&run.ID)
	if err != nil {
		return nil, fmt.Errorf("creating run: %w", err)
	}
	return run, nil
}

// WriteSchedule stores one completed schedule. Unplayed fixtures keep NULL
// scores.
func (r *Run) WriteSchedule(ctx context.Context, index int, schedule []league.Fixture) error {
	tx, err := r.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin WriteSchedule tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO simulated_fixtures (run_id, schedule, game_date, team, opponent, game_number, home_score, away_score)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
`)
	if err != nil {
		return fmt.Errorf("preparing fixture insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range schedule {
		var home, away sql.NullInt64
		if f.Played() {
			home = sql.NullInt64{Int64: int64(f.HomeScore), Valid: true}
			away = sql.NullInt64{Int64: int64(f.AwayScore), Valid: true}
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID, index, f.Date, f.Team, f.Opponent, f.GameNumber, home, away,
		); err != nil {
			return fmt.Errorf("saving fixture %s %s vs %s: %w", f.Date.Format(league.DateLayout), f.Team, f.Opponent, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit WriteSchedule tx: %w", err)
	}
	return nil
}

// WriteRatings stores the wide table of one schedule, one row per cell.
// Absent cells are stored as NULL so the outer join survives a round trip.
func (r *Run) WriteRatings(ctx context.Context, index int, table *simulation.WideTable) error {
	tx, err := r.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin WriteRatings tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO simulated_ratings (run_id, schedule, outcome, team, rating)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (run_id, schedule, outcome, team) DO UPDATE SET rating = EXCLUDED.rating
`)
	if err != nil {
		return fmt.Errorf("preparing rating insert: %w", err)
	}
	defer stmt.Close()

	for _, row := range table.Rows {
		for col, v := range row.Values {
			var rating sql.NullFloat64
			if v != nil {
				rating = sql.NullFloat64{Float64: *v, Valid: true}
			}
			if _, err := stmt.ExecContext(ctx, r.ID, index, col+1, row.Team, rating); err != nil {
				return fmt.Errorf("saving rating %s/%s: %w", row.Team, table.Columns[col], err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit WriteRatings tx: %w", err)
	}
	return nil
}

// LoadRatings rebuilds the wide table of one stored schedule.
func (s *Store) LoadRatings(ctx context.Context, runID, index int) (*simulation.WideTable, error) {
	const q = `
SELECT outcome, team, rating
FROM simulated_ratings
WHERE run_id = $1 AND schedule = $2
ORDER BY outcome, team
`
	rows, err := s.DB.QueryContext(ctx, q, runID, index)
	if err != nil {
		return nil, fmt.Errorf("querying ratings: %w", err)
	}
	defer rows.Close()

	var parts []simulation.TeamRatings
	for rows.Next() {
		var (
			outcome int
			team    string
			rating  sql.NullFloat64
		)
		if err := rows.Scan(&outcome, &team, &rating); err != nil {
			return nil, fmt.Errorf("scanning rating row: %w", err)
		}
		if len(parts) == 0 || parts[len(parts)-1].Index != outcome {
			parts = append(parts, simulation.TeamRatings{Index: outcome, Ratings: map[string]float64{}})
		}
		p := &parts[len(parts)-1]
		p.Teams = append(p.Teams, team)
		if rating.Valid {
			p.Ratings[team] = rating.Float64
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rating rows: %w", err)
	}
	return simulation.Merge(parts), nil
}

// LoadSchedule fetches one stored schedule in game order.
func (s *Store) LoadSchedule(ctx context.Context, runID, index int) ([]league.Fixture, error) {
	const q = `
SELECT game_date, team, opponent, game_number, home_score, away_score
FROM simulated_fixtures
WHERE run_id = $1 AND schedule = $2
ORDER BY game_date, game_number, id
`
	rows, err := s.DB.QueryContext(ctx, q, runID, index)
	if err != nil {
		return nil, fmt.Errorf("querying fixtures: %w", err)
	}
	defer rows.Close()

	var fixtures []league.Fixture
	for rows.Next() {
		var (
			f          league.Fixture
			date       time.Time
			home, away sql.NullInt64
		)
		if err := rows.Scan(&date, &f.Team, &f.Opponent, &f.GameNumber, &home, &away); err != nil {
			return nil, fmt.Errorf("scanning fixture: %w", err)
		}
		f.Date = date
		if home.Valid && away.Valid {
			f.HomeScore, f.AwayScore = int(home.Int64), int(away.Int64)
			switch {
			case f.HomeScore > f.AwayScore:
				f.WL = "W"
			case f.HomeScore < f.AwayScore:
				f.WL = "L"
			default:
				f.WL = "T"
			}
		}
		fixtures = append(fixtures, f)
	}
	return fixtures, rows.Err()
}

// DeleteRun removes a run and everything stored under it.
func (s *Store) DeleteRun(ctx context.Context, runID int) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM simulation_runs WHERE id = $1`, runID)
	if err != nil {
		return fmt.Errorf("deleting run %d: %w", runID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting run %d: %w", runID, err)
	}
	if n == 0 {
		return fmt.Errorf("run %d: %w", runID, ErrRunNotFound)
	}
	return nil
}

var _ simulation.Sink = (*Run)(nil)
