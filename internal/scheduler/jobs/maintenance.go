package jobs

import (
	"context"
	"time"

	"github.com/wonny/camps/pkg/logger"
)

// TrendCatchUpJob re-checks the last completed week between Monday runs.
// A missed or failed weekly run is recovered here; a covered week is a no-op.
type TrendCatchUpJob struct {
	runner   WeekRunner
	location *time.Location
	logger   *logger.Logger
}

// NewTrendCatchUpJob creates a new catch-up job
func NewTrendCatchUpJob(runner WeekRunner, loc *time.Location, log *logger.Logger) *TrendCatchUpJob {
	return &TrendCatchUpJob{
		runner:   runner,
		location: loc,
		logger:   log,
	}
}

// Name returns the job name
func (j *TrendCatchUpJob) Name() string {
	return "trend_catch_up"
}

// Schedule returns the cron schedule (every 6 hours)
func (j *TrendCatchUpJob) Schedule() string {
	return "0 30 */6 * * *"
}

// Run executes the catch-up check
func (j *TrendCatchUpJob) Run(ctx context.Context) error {
	j.logger.Debug("Starting trend catch-up check")
	return runWeek(ctx, j.runner, j.location, j.logger.WithField("job", j.Name()))
}
