package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/internal/trends"
	"github.com/wonny/camps/pkg/logger"
)

// WeekRunner runs the most recent fully elapsed week
type WeekRunner interface {
	RunLastCompletedWeek(ctx context.Context, loc *time.Location, force bool) (*contracts.RunResult, error)
}

// WeeklyTrendsJob computes trend snapshots for the week that just ended
type WeeklyTrendsJob struct {
	runner   WeekRunner
	schedule string
	location *time.Location
	logger   *logger.Logger
}

// NewWeeklyTrendsJob creates a new weekly trends job
func NewWeeklyTrendsJob(runner WeekRunner, schedule string, loc *time.Location, log *logger.Logger) *WeeklyTrendsJob {
	return &WeeklyTrendsJob{
		runner:   runner,
		schedule: schedule,
		location: loc,
		logger:   log,
	}
}

// Name returns the job name
func (j *WeeklyTrendsJob) Name() string {
	return "weekly_trends"
}

// Schedule returns the cron schedule (Monday 01:00 by default)
func (j *WeeklyTrendsJob) Schedule() string {
	return j.schedule
}

// Run executes the weekly trend calculation
func (j *WeeklyTrendsJob) Run(ctx context.Context) error {
	return runWeek(ctx, j.runner, j.location, j.logger.WithField("job", j.Name()))
}

// runWeek maps engine outcomes onto job outcomes.
// Skipped and in-progress windows are not failures; invalid windows are not retried.
func runWeek(ctx context.Context, runner WeekRunner, loc *time.Location, log *logger.Logger) error {
	result, err := runner.RunLastCompletedWeek(ctx, loc, false)
	switch {
	case errors.Is(err, contracts.ErrRunInProgress):
		log.Info("Weekly trends already running elsewhere")
		return nil
	case errors.Is(err, trends.ErrInvalidWindow):
		return scheduler.Permanent(err)
	case err != nil:
		return err
	}

	fields := map[string]interface{}{
		"status":       result.Status,
		"window_start": result.WindowStart,
		"window_end":   result.WindowEnd,
	}
	if result.Status == contracts.RunSkipped {
		log.WithFields(fields).Debug("Weekly trends already computed")
		return nil
	}

	fields["written"] = result.SnapshotsWritten
	fields["skipped"] = result.ItemsSkipped
	fields["failed"] = result.ItemsFailed
	log.WithFields(fields).Info("Weekly trends computed")
	return nil
}
