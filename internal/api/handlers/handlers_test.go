package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/engine"
	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/internal/trends"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/redis"
)

type call struct {
	windowType contracts.WindowType
	start, end time.Time
	force      bool
}

type fakeRunner struct {
	mu     sync.Mutex
	calls  []call
	result *contracts.RunResult
	err    error
	runs   []contracts.ProcessingLog
	latest *contracts.ProcessingLog
}

func (f *fakeRunner) RunWindow(ctx context.Context, wt contracts.WindowType, start, end time.Time, force bool) (*contracts.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{wt, start, end, force})
	return f.result, f.err
}

func (f *fakeRunner) Runs(ctx context.Context, wt contracts.WindowType, limit int) ([]contracts.ProcessingLog, error) {
	if len(f.runs) > limit {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func (f *fakeRunner) LatestCompleted(ctx context.Context, wt contracts.WindowType) (*contracts.ProcessingLog, error) {
	return f.latest, nil
}

func (f *fakeRunner) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// clock sits on the Monday after the week of Jan 1-7 2024
var clock = time.Date(2024, 1, 8, 1, 0, 0, 0, time.UTC)

func newTrendHandler(runner TrendRunner) *TrendHandler {
	client := redis.Disabled()
	h := NewTrendHandler(
		context.Background(),
		runner,
		redis.NewRateLimiter(client, "camps"),
		redis.TriggerRateLimit(6),
		redis.NewCache(client, "camps"),
		logger.Nop(),
	)
	h.now = func() time.Time { return clock }
	return h
}

func post(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/admin/trends/recalculate", strings.NewReader(body))
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), v))
}

func TestRecalculate_Completed(t *testing.T) {
	runner := &fakeRunner{result: &contracts.RunResult{Status: contracts.RunCompleted, SnapshotsWritten: 10, AllItemsSucceeded: true}}
	h := newTrendHandler(runner)

	rr := post(t, h.Recalculate, `{"from":"2024-01-01","to":"2024-01-07","force":true}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RecalculateResponse
	decode(t, rr, &resp)
	assert.Equal(t, "completed", resp.Status)
	require.NotNil(t, resp.Result)
	assert.Equal(t, 10, resp.Result.SnapshotsWritten)

	require.Len(t, runner.calls, 1)
	c := runner.calls[0]
	assert.Equal(t, contracts.WindowOnDemand, c.windowType)
	assert.True(t, c.force)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), c.start)
	// date-only upper bound covers the whole day
	assert.Equal(t, time.Date(2024, 1, 7, 23, 59, 59, 0, time.UTC), c.end)
}

func TestRecalculate_Skipped(t *testing.T) {
	runner := &fakeRunner{result: &contracts.RunResult{Status: contracts.RunSkipped}}
	h := newTrendHandler(runner)

	rr := post(t, h.Recalculate, `{"from":"2024-01-01","to":"2024-01-07"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RecalculateResponse
	decode(t, rr, &resp)
	assert.Equal(t, "skipped", resp.Status)
}

func TestRecalculate_RFC3339Bounds(t *testing.T) {
	runner := &fakeRunner{result: &contracts.RunResult{Status: contracts.RunCompleted}}
	h := newTrendHandler(runner)

	rr := post(t, h.Recalculate, `{"from":"2024-01-01T00:00:00Z","to":"2024-01-07T12:00:00Z"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, time.Date(2024, 1, 7, 12, 0, 0, 0, time.UTC), runner.calls[0].end)
}

func TestRecalculate_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"bad from", `{"from":"01/01/2024","to":"2024-01-07"}`},
		{"bad to", `{"from":"2024-01-01","to":"tomorrow"}`},
		{"missing bounds", `{}`},
		{"start after end", `{"from":"2024-02-01","to":"2024-01-07"}`},
		{"start too old", `{"from":"2020-01-01","to":"2024-01-07"}`},
		{"start in future", `{"from":"2999-01-01","to":"2999-01-07"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			h := newTrendHandler(runner)

			rr := post(t, h.Recalculate, tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Zero(t, runner.callCount())
		})
	}
}

func TestRecalculate_ErrorMapping(t *testing.T) {
	failed := &contracts.RunResult{Status: contracts.RunFailed, Error: "boom"}

	tests := []struct {
		name   string
		result *contracts.RunResult
		err    error
		status int
	}{
		{"in progress", nil, contracts.ErrRunInProgress, http.StatusConflict},
		{"invalid window", nil, trends.ErrStartAfterEnd, http.StatusBadRequest},
		{"run failed", failed, engine.ErrRunFailed, http.StatusInternalServerError},
		{"unexpected", nil, errors.New("db down"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTrendHandler(&fakeRunner{result: tt.result, err: tt.err})

			rr := post(t, h.Recalculate, `{"from":"2024-01-01","to":"2024-01-07"}`)
			assert.Equal(t, tt.status, rr.Code)
		})
	}

	t.Run("failed run carries result", func(t *testing.T) {
		h := newTrendHandler(&fakeRunner{result: failed, err: engine.ErrRunFailed})

		rr := post(t, h.Recalculate, `{"from":"2024-01-01","to":"2024-01-07"}`)
		var resp RecalculateResponse
		decode(t, rr, &resp)
		assert.Equal(t, "failed", resp.Status)
		require.NotNil(t, resp.Result)
		assert.Equal(t, "boom", resp.Result.Error)
	})
}

func TestRecalculate_Async(t *testing.T) {
	runner := &fakeRunner{result: &contracts.RunResult{Status: contracts.RunCompleted}}
	h := newTrendHandler(runner)

	rr := post(t, h.Recalculate, `{"from":"2024-01-01","to":"2024-01-07","async":true}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	h.Wait()
	assert.Equal(t, 1, runner.callCount())
}

func TestListRuns(t *testing.T) {
	runs := make([]contracts.ProcessingLog, 3)
	for i := range runs {
		runs[i] = contracts.ProcessingLog{ID: uuid.New(), WindowType: contracts.WindowWeekly, Status: contracts.StatusCompleted}
	}
	h := newTrendHandler(&fakeRunner{runs: runs})

	t.Run("default", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ListRuns(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/runs?type=WEEKLY", nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Runs  []contracts.ProcessingLog `json:"runs"`
			Count int                       `json:"count"`
		}
		decode(t, rr, &body)
		assert.Equal(t, 3, body.Count)
		assert.Equal(t, runs[0].ID, body.Runs[0].ID)
	})

	t.Run("limit", func(t *testing.T) {
		rr := httptest.NewRecorder()
		h.ListRuns(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/runs?limit=2", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), `"count":2`)
	})

	t.Run("invalid", func(t *testing.T) {
		for _, q := range []string{"?type=DAILY", "?limit=0", "?limit=abc", "?limit=1000"} {
			rr := httptest.NewRecorder()
			h.ListRuns(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/runs"+q, nil))
			assert.Equal(t, http.StatusBadRequest, rr.Code, q)
		}
	})
}

func TestLatestRun(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		latest := &contracts.ProcessingLog{ID: uuid.New(), Status: contracts.StatusCompleted}
		h := newTrendHandler(&fakeRunner{latest: latest})

		rr := httptest.NewRecorder()
		h.LatestRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/latest?type=WEEKLY", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Contains(t, rr.Body.String(), latest.ID.String())
	})

	t.Run("none", func(t *testing.T) {
		h := newTrendHandler(&fakeRunner{})

		rr := httptest.NewRecorder()
		h.LatestRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/latest?type=WEEKLY", nil))
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("type required", func(t *testing.T) {
		h := newTrendHandler(&fakeRunner{})

		rr := httptest.NewRecorder()
		h.LatestRun(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/latest", nil))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestGranularity(t *testing.T) {
	h := newTrendHandler(&fakeRunner{})

	tests := []struct {
		query string
		want  trends.Granularity
	}{
		{"?from=2024-01-01&to=2024-01-20", trends.GranularityDaily},
		{"?from=2024-01-01&to=2024-06-01", trends.GranularityWeekly},
		{"?from=2022-01-01&to=2024-06-01", trends.GranularityMonthly},
	}

	for _, tt := range tests {
		rr := httptest.NewRecorder()
		h.Granularity(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/granularity"+tt.query, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var body struct {
			Granularity trends.Granularity `json:"granularity"`
		}
		decode(t, rr, &body)
		assert.Equal(t, tt.want, body.Granularity, tt.query)
	}

	rr := httptest.NewRecorder()
	h.Granularity(rr, httptest.NewRequest(http.MethodGet, "/api/admin/trends/granularity?from=2024-02-01&to=2024-01-01", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

type fakeJobs struct {
	ran []string
}

func (f *fakeJobs) GetJobStats() map[string]scheduler.JobStats {
	return map[string]scheduler.JobStats{"weekly_trends": {JobName: "weekly_trends", Schedule: "0 0 1 * * MON"}}
}

func (f *fakeJobs) RunJob(name string) error {
	if name != "weekly_trends" {
		return errors.New("job not found: " + name)
	}
	f.ran = append(f.ran, name)
	return nil
}

func TestJobHandler(t *testing.T) {
	jobs := &fakeJobs{}
	h := NewJobHandler(jobs, logger.Nop())

	r := mux.NewRouter()
	r.HandleFunc("/jobs", h.ListJobs).Methods("GET")
	r.HandleFunc("/jobs/{name}/run", h.RunJob).Methods("POST")

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "weekly_trends")

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/weekly_trends/run", nil))
	assert.Equal(t, http.StatusAccepted, rr.Code)
	assert.Equal(t, []string{"weekly_trends"}, jobs.ran)

	rr = httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/jobs/unknown/run", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	ok := pingerFunc(func(context.Context) error { return nil })
	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })

	rr := httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"postgres": ok}).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"status":"ok"`)

	rr = httptest.NewRecorder()
	NewHealthHandler(map[string]Pinger{"postgres": ok, "redis": down}).Health(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Contains(t, rr.Body.String(), "connection refused")
}
