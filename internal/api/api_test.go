package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utakatalp/npi-simulator/internal/league"
	"github.com/utakatalp/npi-simulator/internal/logger"
	"github.com/utakatalp/npi-simulator/internal/simulation"
	"github.com/utakatalp/npi-simulator/internal/store"
)

func newTestRouter() http.Handler {
	logger.Logger = logger.Discard()
	opts := simulation.DefaultOptions()
	opts.Workers = 2
	return NewRouter(NewHandler(opts, nil, logger.Discard()))
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func score(n int) *int { return &n }

func TestHealth(t *testing.T) {
	rec := do(t, newTestRouter(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "not_configured", resp.Checks["database"])
}

func TestRank(t *testing.T) {
	body := RankRequest{Games: []GameInput{
		{Date: "02/10/2024", Team: "Alpha", Opponent: "Beta", HomeScore: score(3), AwayScore: score(1)},
		{Date: "02/11/2024", Team: "Beta", Opponent: "Gamma", HomeScore: score(2), AwayScore: score(0)},
		{Date: "02/12/2024", Team: "Gamma", Opponent: "Alpha", HomeScore: score(0), AwayScore: score(0)},
		{Date: "02/10/2024", Team: "Beta", Opponent: "Alpha", HomeScore: score(1), AwayScore: score(3)},
	}}

	rec := do(t, newTestRouter(), http.MethodPost, "/api/v1/rank", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Stats.Loaded)
	assert.Equal(t, 1, resp.Stats.ZeroZero)
	assert.Equal(t, 1, resp.Stats.Duplicate)
	assert.Equal(t, 30, resp.Rounds)
	require.Len(t, resp.Ratings, 3)
	assert.Equal(t, "Alpha", resp.Ratings[0].Team)
}

func TestRankRejectsBadBodies(t *testing.T) {
	router := newTestRouter()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/rank", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	neg := -1
	rec = do(t, router, http.MethodPost, "/api/v1/rank", RankRequest{
		Games:      []GameInput{{Date: "02/10/2024", Team: "A", Opponent: "B", HomeScore: score(1), AwayScore: score(0)}},
		Iterations: &neg,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, router, http.MethodPost, "/api/v1/rank", RankRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSimulate(t *testing.T) {
	body := SimulateRequest{
		Fixtures: []GameInput{
			{Date: "02/10/2024", Team: "Alpha", Opponent: "Beta"},
			{Date: "02/11/2024", Team: "Beta", Opponent: "Alpha"},
		},
		Ratings: []league.Rating{
			{Team: "Alpha", Elo: 1600},
			{Team: "Beta", Elo: 1400},
		},
		ScheduleSims: 2,
		OutcomeSims:  3,
		Seed:         42,
	}

	router := newTestRouter()
	rec := do(t, router, http.MethodPost, "/api/v1/simulate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp SimulateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(42), resp.Seed)
	require.Len(t, resp.Schedules, 2)
	for _, s := range resp.Schedules {
		assert.Len(t, s.Schedule, 2)
		assert.Equal(t, []string{"rating_1", "rating_2", "rating_3"}, s.Ratings.Columns)
		require.Len(t, s.Ratings.Rows, 2)
		for _, row := range s.Ratings.Rows {
			for _, v := range row.Values {
				assert.NotNil(t, v)
			}
		}
		assert.Len(t, s.Summary, 2)
	}

	again := do(t, router, http.MethodPost, "/api/v1/simulate", body)
	var second SimulateResponse
	require.NoError(t, json.Unmarshal(again.Body.Bytes(), &second))
	assert.Equal(t, resp.Schedules[0].Ratings, second.Schedules[0].Ratings)
}

func TestSimulateErrors(t *testing.T) {
	router := newTestRouter()
	ratings := []league.Rating{{Team: "Alpha", Elo: 1500}, {Team: "Beta", Elo: 1500}}

	tests := []struct {
		name   string
		body   SimulateRequest
		status int
	}{
		{
			name:   "no fixtures",
			body:   SimulateRequest{Ratings: ratings},
			status: http.StatusBadRequest,
		},
		{
			name:   "bad date",
			body:   SimulateRequest{Fixtures: []GameInput{{Date: "tomorrow", Team: "Alpha"}}, Ratings: ratings},
			status: http.StatusBadRequest,
		},
		{
			name:   "too many realizations",
			body:   SimulateRequest{Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha"}}, Ratings: ratings, ScheduleSims: 1000, OutcomeSims: 1000},
			status: http.StatusBadRequest,
		},
		{
			name:   "unknown team",
			body:   SimulateRequest{Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha", Opponent: "Zeta"}}, Ratings: ratings},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "strategy without regional teams",
			body:   SimulateRequest{Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha"}}, Ratings: ratings, Strategy: score(1)},
			status: http.StatusUnprocessableEntity,
		},
		{
			name:   "persist without database",
			body:   SimulateRequest{Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha"}}, Ratings: ratings, Persist: true},
			status: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodPost, "/api/v1/simulate", tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.NotEmpty(t, resp.Code)
		})
	}
}

func TestMethodNotAllowed(t *testing.T) {
	rec := do(t, newTestRouter(), http.MethodGet, "/api/v1/simulate", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRankUsesConfiguredNeutral(t *testing.T) {
	opts := simulation.DefaultOptions()
	opts.Neutral = 0
	router := NewRouter(NewHandler(opts, nil, logger.Discard()))

	one := 1
	rec := do(t, router, http.MethodPost, "/api/v1/rank", RankRequest{
		Games:      []GameInput{{Date: "02/10/2024", Team: "Alpha", Opponent: "Beta", HomeScore: score(2), AwayScore: score(1)}},
		Iterations: &one,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp RankResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Ratings, 2)
	assert.InDelta(t, 20, resp.Ratings[0].Rating, 1e-12)
	assert.InDelta(t, 0, resp.Ratings[1].Rating, 1e-12)
}

func TestRunRoutesWithoutDatabase(t *testing.T) {
	router := newTestRouter()

	rec := do(t, router, http.MethodGet, "/api/v1/runs/3/schedules/1", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodDelete, "/api/v1/runs/3", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = do(t, router, http.MethodGet, "/api/v1/runs/abc/schedules/1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func testStore(t *testing.T) *store.Store {
	t.Helper()
	dsn := os.Getenv("NPISIM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("NPISIM_TEST_DATABASE_URL not set; skipping Postgres tests")
	}
	st, err := store.NewStore(dsn)
	if err != nil {
		t.Skipf("PostgreSQL not available: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestPersistedRunLifecycle(t *testing.T) {
	st := testStore(t)
	logger.Logger = logger.Discard()
	router := NewRouter(NewHandler(simulation.DefaultOptions(), st, logger.Discard()))

	body := SimulateRequest{
		Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha", Opponent: "Beta"}},
		Ratings:  []league.Rating{{Team: "Alpha", Elo: 1500}, {Team: "Beta", Elo: 1500}},
		Seed:     424242,
		Persist:  true,
	}
	rec := do(t, router, http.MethodPost, "/api/v1/simulate", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp SimulateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotZero(t, resp.RunID)

	path := fmt.Sprintf("/api/v1/runs/%d/schedules/1", resp.RunID)
	rec = do(t, router, http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var stored StoredSchedule
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stored))
	assert.Len(t, stored.Schedule, 1)
	assert.Equal(t, []string{"rating_1"}, stored.Ratings.Columns)
	assert.Len(t, stored.Summary, 2)

	rec = do(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/runs/%d", resp.RunID), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = do(t, router, http.MethodGet, path, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = do(t, router, http.MethodDelete, fmt.Sprintf("/api/v1/runs/%d", resp.RunID), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFailedPersistedRunLeavesNoRow(t *testing.T) {
	st := testStore(t)
	logger.Logger = logger.Discard()
	router := NewRouter(NewHandler(simulation.DefaultOptions(), st, logger.Discard()))

	const seed = 737373
	rec := do(t, router, http.MethodPost, "/api/v1/simulate", SimulateRequest{
		Fixtures: []GameInput{{Date: "02/10/2024", Team: "Alpha", Opponent: "Zeta"}},
		Ratings:  []league.Rating{{Team: "Alpha", Elo: 1500}},
		Seed:     seed,
		Persist:  true,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())

	var n int
	require.NoError(t, st.DB.QueryRowContext(context.Background(),
		`SELECT COUNT(*) FROM simulation_runs WHERE seed = $1`, seed).Scan(&n))
	assert.Zero(t, n)
}
