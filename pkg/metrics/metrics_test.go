package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunMetrics(t *testing.T) {
	r := New()

	r.RunStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsInFlight))

	r.RunFinished("WEEKLY", "COMPLETED", true, 3*time.Second)
	r.RunFinished("WEEKLY", "SKIPPED", false, 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(r.runsInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("WEEKLY", "COMPLETED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.runsTotal.WithLabelValues("WEEKLY", "SKIPPED")))
	assert.Equal(t, 1, testutil.CollectAndCount(r.runDuration))
}

func TestItemAndJobMetrics(t *testing.T) {
	r := New(WithNamespace("test"))

	r.Item("TEAM", OutcomeWritten)
	r.Item("TEAM", OutcomeWritten)
	r.Item("EMPLOYEE", OutcomeFailed)
	r.JobRun("weekly_trends", true)
	r.JobRun("weekly_trends", false)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.itemsTotal.WithLabelValues("TEAM", OutcomeWritten)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.itemsTotal.WithLabelValues("EMPLOYEE", OutcomeFailed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.jobRunsTotal.WithLabelValues("weekly_trends", "failure")))
}

func TestLastSuccess(t *testing.T) {
	r := New()
	at := time.Date(2024, 1, 8, 1, 0, 0, 0, time.UTC)

	r.RunSucceeded("WEEKLY", at)

	assert.Equal(t, float64(at.Unix()), testutil.ToFloat64(r.lastSuccessUnix.WithLabelValues("WEEKLY")))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	assert.NotPanics(t, func() {
		r.RunStarted()
		r.RunFinished("WEEKLY", "FAILED", true, time.Second)
		r.RunSucceeded("WEEKLY", time.Now())
		r.Item("TEAM", OutcomeSkipped)
		r.JobRun("weekly_trends", true)
		r.HTTPRequest("/health", http.MethodGet, http.StatusOK, time.Millisecond)
	})
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.HTTPRequest("/health", http.MethodGet, http.StatusOK, 5*time.Millisecond)
	r.Item("ORGANIZATION", OutcomeWritten)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "camps_trends_items_total"))
	assert.True(t, strings.Contains(body, "camps_http_requests_total"))
	assert.False(t, strings.Contains(body, "go_goroutines"))
}
