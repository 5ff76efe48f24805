package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/engine"
	"github.com/wonny/camps/internal/trends"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/redis"
)

const (
	dateLayout       = "2006-01-02"
	defaultRunsLimit = 20
	maxRunsLimit     = 200
)

// TrendRunner is the engine surface the admin API needs
type TrendRunner interface {
	RunWindow(ctx context.Context, windowType contracts.WindowType, start, end time.Time, force bool) (*contracts.RunResult, error)
	Runs(ctx context.Context, windowType contracts.WindowType, limit int) ([]contracts.ProcessingLog, error)
	LatestCompleted(ctx context.Context, windowType contracts.WindowType) (*contracts.ProcessingLog, error)
}

// TrendHandler serves the admin trend endpoints.
// Run listings are cached briefly; the engine's finish hook invalidates them.
// Async recalculations run on the handler's base context and are joined by Wait.
// ⭐ SSOT: 트렌드 관리 API 핸들러는 이 구조체에서만
type TrendHandler struct {
	runner  TrendRunner
	limiter *redis.RateLimiter
	limit   redis.RateLimitConfig
	cache   *redis.Cache
	logger  *logger.Logger

	baseCtx context.Context
	wg      sync.WaitGroup
	now     func() time.Time
}

// NewTrendHandler creates a new trend handler.
// baseCtx bounds async runs; cancel it on shutdown, then call Wait.
func NewTrendHandler(
	baseCtx context.Context,
	runner TrendRunner,
	limiter *redis.RateLimiter,
	limit redis.RateLimitConfig,
	cache *redis.Cache,
	log *logger.Logger,
) *TrendHandler {
	return &TrendHandler{
		runner:  runner,
		limiter: limiter,
		limit:   limit,
		cache:   cache,
		logger:  log.Module("api.trends"),
		baseCtx: baseCtx,
		now:     time.Now,
	}
}

// RecalculateRequest represents an on-demand recalculation request
type RecalculateRequest struct {
	From  string `json:"from"`  // YYYY-MM-DD or RFC3339
	To    string `json:"to"`    // YYYY-MM-DD (end of day) or RFC3339
	Force bool   `json:"force"` // recompute even if already covered
	Async bool   `json:"async"` // return 202 and run in the background
}

// RecalculateResponse represents a recalculation response
type RecalculateResponse struct {
	Status  string               `json:"status"`
	Message string               `json:"message,omitempty"`
	Window  trends.Window        `json:"window"`
	Result  *contracts.RunResult `json:"result,omitempty"`
}

// Recalculate triggers an ON_DEMAND run
// POST /api/admin/trends/recalculate
func (h *TrendHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RecalculateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	start, err := parseBound(req.From, false)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'from' (expected YYYY-MM-DD or RFC3339)")
		return
	}
	end, err := parseBound(req.To, true)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid 'to' (expected YYYY-MM-DD or RFC3339)")
		return
	}
	if err := trends.ValidateWindow(start, end, h.now()); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	allowed, remaining, err := h.limiter.Allow(ctx, h.limit)
	if err != nil {
		h.logger.WithError(err).Warn("Rate limiter unavailable, allowing trigger")
	} else if !allowed {
		w.Header().Set("Retry-After", strconv.Itoa(int(h.limit.Window.Seconds())))
		respondError(w, http.StatusTooManyRequests, "Too many recalculation requests")
		return
	} else {
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	}

	window := trends.Window{Start: start, End: end}
	h.logger.WithFields(map[string]interface{}{
		"window": window.String(),
		"force":  req.Force,
		"async":  req.Async,
	}).Info("Trend recalculation triggered")

	if req.Async {
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			if _, err := h.run(h.baseCtx, window, req.Force); err != nil {
				h.logger.WithError(err).WithField("window", window.String()).Error("Async recalculation failed")
			}
		}()
		respondJSON(w, http.StatusAccepted, RecalculateResponse{
			Status:  "accepted",
			Message: "Recalculation started",
			Window:  window,
		})
		return
	}

	result, err := h.run(ctx, window, req.Force)
	switch {
	case errors.Is(err, trends.ErrInvalidWindow):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, contracts.ErrRunInProgress):
		respondError(w, http.StatusConflict, "A run for this window is already in progress")
	case errors.Is(err, engine.ErrRunFailed):
		respondJSON(w, http.StatusInternalServerError, RecalculateResponse{
			Status: "failed", Message: "Recalculation failed", Window: window, Result: result,
		})
	case err != nil:
		h.logger.WithError(err).Error("Failed to run recalculation")
		respondError(w, http.StatusInternalServerError, "Failed to run recalculation")
	default:
		respondJSON(w, http.StatusOK, RecalculateResponse{
			Status: statusText(result.Status), Window: window, Result: result,
		})
	}
}

func (h *TrendHandler) run(ctx context.Context, window trends.Window, force bool) (*contracts.RunResult, error) {
	return h.runner.RunWindow(ctx, contracts.WindowOnDemand, window.Start, window.End, force)
}

// Wait blocks until every async recalculation has returned
func (h *TrendHandler) Wait() {
	h.wg.Wait()
}

// ListRuns returns processing log rows newest first
// GET /api/admin/trends/runs?type=WEEKLY&limit=20
func (h *TrendHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	windowType, ok := parseWindowType(r.URL.Query().Get("type"))
	if !ok {
		respondError(w, http.StatusBadRequest, "Invalid type (valid: WEEKLY, MONTHLY, ON_DEMAND)")
		return
	}

	limit := defaultRunsLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 || n > maxRunsLimit {
			respondError(w, http.StatusBadRequest, "Invalid limit (1-200)")
			return
		}
		limit = n
	}

	var runs []contracts.ProcessingLog
	err := h.cache.GetOrSet(r.Context(), redis.RunsKey(string(windowType), limit), &runs, redis.TTLShort, func() (interface{}, error) {
		return h.runner.Runs(r.Context(), windowType, limit)
	})
	if err != nil {
		h.logger.WithError(err).Error("Failed to list runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve runs")
		return
	}
	if runs == nil {
		runs = []contracts.ProcessingLog{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// LatestRun returns the completed run reaching furthest forward
// GET /api/admin/trends/latest?type=WEEKLY
func (h *TrendHandler) LatestRun(w http.ResponseWriter, r *http.Request) {
	windowType, ok := parseWindowType(r.URL.Query().Get("type"))
	if !ok || windowType == "" {
		respondError(w, http.StatusBadRequest, "Invalid type (valid: WEEKLY, MONTHLY, ON_DEMAND)")
		return
	}

	latest, err := h.runner.LatestCompleted(r.Context(), windowType)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get latest run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve latest run")
		return
	}
	if latest == nil {
		respondError(w, http.StatusNotFound, "No completed run")
		return
	}

	respondJSON(w, http.StatusOK, latest)
}

// Granularity returns the presentation bucket for a date range
// GET /api/admin/trends/granularity?from=2024-01-01&to=2024-03-01
func (h *TrendHandler) Granularity(w http.ResponseWriter, r *http.Request) {
	from, err := parseBound(r.URL.Query().Get("from"), false)
	if err != nil || from.IsZero() {
		respondError(w, http.StatusBadRequest, "Invalid 'from' (expected YYYY-MM-DD or RFC3339)")
		return
	}
	to, err := parseBound(r.URL.Query().Get("to"), true)
	if err != nil || to.IsZero() {
		respondError(w, http.StatusBadRequest, "Invalid 'to' (expected YYYY-MM-DD or RFC3339)")
		return
	}
	if from.After(to) {
		respondError(w, http.StatusBadRequest, "'from' is after 'to'")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"from":        from,
		"to":          to,
		"granularity": trends.ChooseGranularity(from, to),
	})
}

// parseBound accepts YYYY-MM-DD or RFC3339; a date-only upper bound means end of day
func parseBound(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Second)
	}
	return t, nil
}

// parseWindowType allows an empty value meaning "all types"
func parseWindowType(s string) (contracts.WindowType, bool) {
	if s == "" {
		return "", true
	}
	return contracts.ParseWindowType(s)
}

func statusText(s contracts.RunStatus) string {
	switch s {
	case contracts.RunSkipped:
		return "skipped"
	case contracts.RunFailed:
		return "failed"
	}
	return "completed"
}
