package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/npi"
	"github.com/utakatalp/npi-simulator/internal/simulation"
	"github.com/utakatalp/npi-simulator/internal/store"
)

// MaxRealizations caps schedule_sims * outcome_sims for one request.
const MaxRealizations = 10000

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthStatus is the body of GET /health.
type HealthStatus struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// GameInput is one season row in a request body.
type GameInput struct {
	Date       string `json:"date"`
	Team       string `json:"team"`
	Opponent   string `json:"opponent"`
	HomeScore  *int   `json:"home_score,omitempty"`
	AwayScore  *int   `json:"away_score,omitempty"`
	GameNumber int    `json:"game_number,omitempty"`
	WL         string `json:"wl,omitempty"`
}

func (g GameInput) row() league.Row {
	r := league.Row{Date: g.Date, Team: g.Team, Opponent: g.Opponent, WL: g.WL}
	if g.HomeScore != nil {
		r.HomeScore = strconv.Itoa(*g.HomeScore)
	}
	if g.AwayScore != nil {
		r.AwayScore = strconv.Itoa(*g.AwayScore)
	}
	if g.GameNumber != 0 {
		r.GameNumber = strconv.Itoa(g.GameNumber)
	}
	return r
}

func (g GameInput) fixture() (league.Fixture, error) {
	date, err := league.ParseDate(g.Date)
	if err != nil {
		return league.Fixture{}, err
	}
	f := league.Fixture{
		Date:       date,
		Team:       league.NormalizeTeam(g.Team),
		Opponent:   league.NormalizeTeam(g.Opponent),
		GameNumber: g.GameNumber,
		WL:         strings.ToUpper(strings.TrimSpace(g.WL)),
	}
	if f.Team == "" {
		return league.Fixture{}, &league.ValidationError{Field: "team", Message: "team is required"}
	}
	if f.GameNumber == 0 {
		f.GameNumber = 1
	}
	if g.HomeScore != nil {
		f.HomeScore = *g.HomeScore
	}
	if g.AwayScore != nil {
		f.AwayScore = *g.AwayScore
	}
	return f, nil
}

// RankRequest rates a season whose results are known.
type RankRequest struct {
	Games      []GameInput `json:"games"`
	Iterations *int        `json:"iterations,omitempty"`
}

// RankResponse is the body of POST /api/v1/rank.
type RankResponse struct {
	Ratings   []npi.Record      `json:"ratings"`
	Unranked  []string          `json:"unranked,omitempty"`
	Standings []league.Standing `json:"standings"`
	Stats     league.LoadStats  `json:"stats"`
	Rounds    int               `json:"rounds"`
}

// SimulateRequest runs a nested Monte Carlo over a schedule template.
// Zero-valued fields fall back to the server defaults.
type SimulateRequest struct {
	Fixtures      []GameInput     `json:"fixtures"`
	Ratings       []league.Rating `json:"ratings"`
	ScheduleSims  int             `json:"schedule_sims,omitempty"`
	OutcomeSims   int             `json:"outcome_sims,omitempty"`
	Seed          int64           `json:"seed,omitempty"`
	Strategy      *int            `json:"strategy,omitempty"`
	RegionalTeams []string        `json:"regional_teams,omitempty"`
	KeepPlayed    *bool           `json:"keep_played,omitempty"`
	// Persist stores the run when the server has a database.
	Persist bool `json:"persist,omitempty"`
}

// ScheduleOutput is one schedule realization in a simulate reply.
type ScheduleOutput struct {
	Index    int                      `json:"index"`
	Schedule []league.Fixture         `json:"schedule"`
	Ratings  *simulation.WideTable    `json:"ratings"`
	Summary  []simulation.TeamSummary `json:"summary"`
	Stats    league.LoadStats         `json:"stats"`
}

// SimulateResponse is the body of POST /api/v1/simulate.
type SimulateResponse struct {
	Seed          int64            `json:"seed"`
	RunID         int              `json:"run_id,omitempty"`
	Schedules     []ScheduleOutput `json:"schedules"`
	ExecutionTime time.Duration    `json:"execution_time"`
}

// Handler serves the rating and simulation endpoints.
type Handler struct {
	defaults simulation.Options
	store    *store.Store
	logger   *logrus.Logger
}

// NewHandler creates a handler. store may be nil.
func NewHandler(defaults simulation.Options, st *store.Store, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{defaults: defaults, store: st, logger: logger}
}

// GetHealth returns the basic health status.
func (h *Handler) GetHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthStatus{
		Status:    "ok",
		Service:   "npisim",
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}
	if h.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Checks["database"] = "failed: " + err.Error()
		} else {
			resp.Checks["database"] = "ok"
		}
	} else {
		resp.Checks["database"] = "not_configured"
	}
	writeJSON(w, http.StatusOK, resp)
}

// Rank rates a season.
func (h *Handler) Rank(w http.ResponseWriter, r *http.Request) {
	var req RankRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}
	if len(req.Games) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "No games supplied", nil)
		return
	}

	iterations := h.defaults.Iterations
	if req.Iterations != nil {
		if *req.Iterations < 0 {
			writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Iterations must not be negative", nil)
			return
		}
		iterations = *req.Iterations
	}

	rows := make([]league.Row, len(req.Games))
	for i, g := range req.Games {
		rows[i] = g.row()
	}

	engine := npi.NewEngine(iterations, h.defaults.Scorer, h.logger)
	engine.Neutral = h.defaults.Neutral
	ranking := simulation.RankSeason(rows, engine, h.logger)

	writeJSON(w, http.StatusOK, RankResponse{
		Ratings:   ranking.Records,
		Unranked:  ranking.Unranked,
		Standings: ranking.Standings,
		Stats:     ranking.Stats,
		Rounds:    ranking.Rounds,
	})
}

// Simulate runs schedule and outcome realizations and returns all of them.
func (h *Handler) Simulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request format", err)
		return
	}

	template, err := req.template()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_SIMULATION", "Invalid fixtures", err)
		return
	}
	if len(req.Ratings) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_SIMULATION", "No ratings supplied", nil)
		return
	}

	opts := h.options(req)
	if opts.ScheduleSims*opts.OutcomeSims > MaxRealizations {
		writeError(w, http.StatusBadRequest, "INVALID_SIMULATION",
			fmt.Sprintf("At most %d realizations per request", MaxRealizations), nil)
		return
	}

	var sink simulation.Sink
	var runID int
	if req.Persist {
		if h.store == nil {
			writeError(w, http.StatusServiceUnavailable, "NO_DATABASE", "Persistence is not configured", nil)
			return
		}
		// The run row needs the seed up front.
		if opts.Seed == 0 {
			opts.Seed = time.Now().UnixNano()
		}
		run, err := h.store.CreateRun(r.Context(), store.RunInfo{
			Seed:         opts.Seed,
			Strategy:     opts.Strategy,
			ScheduleSims: opts.ScheduleSims,
			OutcomeSims:  opts.OutcomeSims,
			Iterations:   opts.Iterations,
		})
		if err != nil {
			h.logger.WithError(err).Error("Failed to create simulation run")
			writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to create simulation run", err)
			return
		}
		sink, runID = run, run.ID
	}

	// a failed run leaves no stored rows behind
	abandon := func() {
		if runID == 0 {
			return
		}
		if err := h.store.DeleteRun(context.WithoutCancel(r.Context()), runID); err != nil {
			h.logger.WithError(err).WithField("run_id", runID).Warn("Failed to remove incomplete run")
		}
	}

	runner, err := simulation.NewRunner(opts, sink, h.logger)
	if err != nil {
		abandon()
		writeError(w, http.StatusBadRequest, "INVALID_SIMULATION", "Invalid simulation parameters", err)
		return
	}

	start := time.Now()
	results, err := runner.Run(r.Context(), template, league.NewTable(req.Ratings))
	if err != nil {
		abandon()
		status, code := http.StatusInternalServerError, "SIMULATION_FAILED"
		var verr *league.ValidationError
		switch {
		case errors.As(err, &verr), errors.Is(err, league.ErrUnknownTeam), errors.Is(err, league.ErrNoCandidates):
			status, code = http.StatusUnprocessableEntity, "INVALID_SIMULATION"
		case errors.Is(err, context.Canceled):
			status, code = http.StatusRequestTimeout, "CANCELLED"
		}
		h.logger.WithError(err).WithField("seed", runner.Seed()).Warn("Simulation failed")
		writeError(w, status, code, "Simulation failed", err)
		return
	}

	resp := SimulateResponse{
		Seed:          runner.Seed(),
		RunID:         runID,
		Schedules:     make([]ScheduleOutput, len(results)),
		ExecutionTime: time.Since(start),
	}
	for i, res := range results {
		resp.Schedules[i] = ScheduleOutput{
			Index:    res.Index,
			Schedule: res.Schedule,
			Ratings:  res.Ratings,
			Summary:  rankedSummaries(res.Ratings),
			Stats:    res.Stats,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// StoredSchedule is the body of GET /api/v1/runs/{id}/schedules/{index}.
type StoredSchedule struct {
	RunID    int                      `json:"run_id"`
	Index    int                      `json:"index"`
	Schedule []league.Fixture         `json:"schedule"`
	Ratings  *simulation.WideTable    `json:"ratings"`
	Summary  []simulation.TeamSummary `json:"summary"`
}

// GetRunSchedule returns one persisted schedule realization.
func (h *Handler) GetRunSchedule(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_DATABASE", "Persistence is not configured", nil)
		return
	}
	vars := mux.Vars(r)
	runID, err := strconv.Atoi(vars["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid run id", err)
		return
	}
	index, err := strconv.Atoi(vars["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid schedule index", err)
		return
	}

	schedule, err := h.store.LoadSchedule(r.Context(), runID, index)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to load schedule")
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load schedule", err)
		return
	}
	if len(schedule) == 0 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Run %d has no schedule %d", runID, index), nil)
		return
	}
	ratings, err := h.store.LoadRatings(r.Context(), runID, index)
	if err != nil {
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to load ratings")
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to load ratings", err)
		return
	}

	writeJSON(w, http.StatusOK, StoredSchedule{
		RunID:    runID,
		Index:    index,
		Schedule: schedule,
		Ratings:  ratings,
		Summary:  rankedSummaries(ratings),
	})
}

// DeleteRun removes a persisted run.
func (h *Handler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "NO_DATABASE", "Persistence is not configured", nil)
		return
	}
	runID, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid run id", err)
		return
	}
	if err := h.store.DeleteRun(r.Context(), runID); err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "NOT_FOUND", fmt.Sprintf("Run %d not found", runID), nil)
			return
		}
		h.logger.WithError(err).WithField("run_id", runID).Error("Failed to delete run")
		writeError(w, http.StatusInternalServerError, "STORE_ERROR", "Failed to delete run", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (req SimulateRequest) template() ([]league.Fixture, error) {
	if len(req.Fixtures) == 0 {
		return nil, &league.ValidationError{Field: "fixtures", Message: "no fixtures supplied"}
	}
	out := make([]league.Fixture, len(req.Fixtures))
	for i, g := range req.Fixtures {
		f, err := g.fixture()
		if err != nil {
			return nil, fmt.Errorf("fixture %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func (h *Handler) options(req SimulateRequest) simulation.Options {
	opts := h.defaults
	if req.ScheduleSims > 0 {
		opts.ScheduleSims = req.ScheduleSims
	}
	if req.OutcomeSims > 0 {
		opts.OutcomeSims = req.OutcomeSims
	}
	if req.Seed != 0 {
		opts.Seed = req.Seed
	}
	if req.Strategy != nil {
		opts.Strategy = league.Strategy(*req.Strategy)
	}
	if req.RegionalTeams != nil {
		opts.RegionalTeams = req.RegionalTeams
	}
	if req.KeepPlayed != nil {
		opts.KeepPlayed = *req.KeepPlayed
	}
	return opts
}

// rankedSummaries drops teams never ranked; their NaN statistics have no
// JSON form.
func rankedSummaries(table *simulation.WideTable) []simulation.TeamSummary {
	all := simulation.Summarize(table)
	out := make([]simulation.TeamSummary, 0, len(all))
	for _, s := range all {
		if s.Count > 0 {
			out = append(out, s)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, msg string, err error) {
	resp := ErrorResponse{Error: msg, Code: code}
	if err != nil {
		resp.Details = map[string]string{"error": err.Error()}
	}
	writeJSON(w, status, resp)
}
