// Package engine is the single entry point for trend runs. Triggers (cron,
// startup check, admin API, CLI) call RunWindow; the engine owns no timers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/camps/internal/batch"
	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/runlog"
	"github.com/wonny/camps/internal/trends"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/metrics"
	"github.com/wonny/camps/pkg/redis"
)

// ErrRunFailed wraps orchestration failures reported with a FAILED result
var ErrRunFailed = errors.New("trend run failed")

// Engine runs trend windows end to end
// ⭐ SSOT: 트렌드 실행은 RunWindow 하나로만
type Engine struct {
	coordinator *runlog.Coordinator
	executor    *batch.Executor
	ratings     contracts.RatingLookup
	lookupRPS   float64

	locker  *redis.Locker
	lockTTL time.Duration

	metrics  *metrics.Recorder
	logger   *logger.Logger
	now      func() time.Time
	onFinish []func(ctx context.Context, result *contracts.RunResult)
}

// Option configures an Engine
type Option func(*Engine)

// WithClock replaces the wall clock used for validation
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithLock serialises runs of the same window across processes
func WithLock(locker *redis.Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = locker
		e.lockTTL = ttl
	}
}

// WithMetrics records run and item metrics on rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(e *Engine) {
		e.metrics = rec
	}
}

// WithLookupRPS throttles rating lookups; 0 disables throttling
func WithLookupRPS(rps float64) Option {
	return func(e *Engine) {
		e.lookupRPS = rps
	}
}

// OnFinish registers a callback invoked after every executed run
func OnFinish(fn func(ctx context.Context, result *contracts.RunResult)) Option {
	return func(e *Engine) {
		e.onFinish = append(e.onFinish, fn)
	}
}

// New creates an engine
func New(coordinator *runlog.Coordinator, executor *batch.Executor, ratings contracts.RatingLookup, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		coordinator: coordinator,
		executor:    executor,
		ratings:     ratings,
		logger:      log.Module("engine"),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RunWindow computes snapshots for [start, end] with end as the record date.
//
// Returned errors:
//   - trends.ErrInvalidWindow family: rejected before any log row is written
//   - contracts.ErrRunInProgress: another run holds the window
//   - ErrRunFailed: the run started and was marked FAILED; result is non-nil
//
// A window already covered by a completed run returns a SKIPPED result and no error.
func (e *Engine) RunWindow(ctx context.Context, windowType contracts.WindowType, start, end time.Time, force bool) (*contracts.RunResult, error) {
	if err := trends.ValidateWindow(start, end, e.now()); err != nil {
		return nil, err
	}

	result := &contracts.RunResult{
		WindowType:  windowType,
		WindowStart: start,
		WindowEnd:   end,
	}

	log := e.logger.WithFields(map[string]interface{}{
		"window_type":  windowType,
		"window_start": start,
		"window_end":   end,
		"force":        force,
	})

	if e.locker != nil {
		lock, err := e.locker.Acquire(ctx, redis.TrendRunLockName(start), e.lockTTL)
		if errors.Is(err, redis.ErrLockHeld) {
			log.Warn("Window locked by another process")
			return nil, contracts.ErrRunInProgress
		}
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to release run lock")
			}
		}()
	}

	handle, err := e.coordinator.Begin(ctx, windowType, start, end, force)
	switch {
	case errors.Is(err, runlog.ErrAlreadyCovered):
		result.Status = contracts.RunSkipped
		result.AllItemsSucceeded = true
		e.metrics.RunFinished(string(windowType), string(result.Status), false, 0)
		return result, nil
	case err != nil:
		return nil, err
	}

	logID := handle.ID()
	result.LogID = &logID
	log = log.WithField("log_id", logID)

	e.metrics.RunStarted()
	started := time.Now()

	tally, execErr := e.execute(ctx, logID, end)

	result.SnapshotsWritten = tally.Written
	result.ItemsSkipped = tally.Skipped
	result.ItemsFailed = tally.Failed
	result.Duration = time.Since(started)

	// terminal writes must land even when the trigger's context is gone
	termCtx := context.WithoutCancel(ctx)

	if execErr != nil {
		result.Status = contracts.RunFailed
		result.Error = execErr.Error()
		if err := e.coordinator.Fail(termCtx, handle, execErr); err != nil {
			log.WithError(err).Error("Failed to record run failure")
		}
		log.WithError(execErr).WithFields(map[string]interface{}{
			"written": tally.Written,
			"skipped": tally.Skipped,
			"failed":  tally.Failed,
		}).Error("Trend run failed")
		e.finish(termCtx, result, started)
		return result, fmt.Errorf("%w: %v", ErrRunFailed, execErr)
	}

	result.Status = contracts.RunCompleted
	result.AllItemsSucceeded = tally.Failed == 0
	if err := e.coordinator.Complete(termCtx, handle); err != nil {
		log.WithError(err).Error("Failed to record run completion")
	}
	e.metrics.RunSucceeded(string(windowType), e.now())

	log.WithFields(map[string]interface{}{
		"written":     tally.Written,
		"skipped":     tally.Skipped,
		"failed":      tally.Failed,
		"duration_ms": result.Duration.Milliseconds(),
	}).Info("Trend run completed")

	e.finish(termCtx, result, started)
	return result, nil
}

// execute runs the batch, turning a panic outside item isolation into an error
func (e *Engine) execute(ctx context.Context, runID uuid.UUID, recordDate time.Time) (tally batch.Tally, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("batch panicked: %v", r)
		}
	}()

	run := batch.Run{
		ID:         runID,
		RecordDate: recordDate,
		Aggregator: trends.NewAggregator(e.ratings, trends.NewLimiter(e.lookupRPS)),
	}
	return e.executor.Execute(ctx, run)
}

func (e *Engine) finish(ctx context.Context, result *contracts.RunResult, started time.Time) {
	e.metrics.RunFinished(string(result.WindowType), string(result.Status), true, time.Since(started))
	for _, fn := range e.onFinish {
		fn(ctx, result)
	}
}

// RunLastCompletedWeek runs the most recent fully elapsed week in loc
func (e *Engine) RunLastCompletedWeek(ctx context.Context, loc *time.Location, force bool) (*contracts.RunResult, error) {
	w := trends.LastCompletedWeek(e.now(), loc)
	return e.RunWindow(ctx, contracts.WindowWeekly, w.Start, w.End, force)
}

// Runs lists processing log rows newest first
func (e *Engine) Runs(ctx context.Context, windowType contracts.WindowType, limit int) ([]contracts.ProcessingLog, error) {
	return e.coordinator.Recent(ctx, windowType, limit)
}

// LatestCompleted returns the completed run reaching furthest forward
func (e *Engine) LatestCompleted(ctx context.Context, windowType contracts.WindowType) (*contracts.ProcessingLog, error) {
	return e.coordinator.LatestCompleted(ctx, windowType)
}
