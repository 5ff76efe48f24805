package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/camps/internal/batch"
	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/engine"
	"github.com/wonny/camps/internal/ratings"
	"github.com/wonny/camps/internal/runlog"
	"github.com/wonny/camps/internal/scheduler"
	"github.com/wonny/camps/internal/scheduler/jobs"
	"github.com/wonny/camps/internal/snapshots"
	"github.com/wonny/camps/pkg/config"
	"github.com/wonny/camps/pkg/database"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/metrics"
	"github.com/wonny/camps/pkg/redis"
)

// keyPrefix namespaces every Redis key this service writes
const keyPrefix = "camps"

// app holds the process-wide dependencies shared by commands
type app struct {
	cfg      *config.Config
	log      *logger.Logger
	db       *database.DB
	redis    *redis.Client
	metrics  *metrics.Recorder
	location *time.Location

	ratings   *ratings.Repository
	snapshots *snapshots.Repository
	runs      *runlog.Repository
}

// newApp loads config and connects to PostgreSQL and (optionally) Redis
func newApp() (*app, error) {
	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if verbose {
		cfg.LogLevel = "debug"
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	// 3. Connect to database
	db, err := database.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// 4. Connect to Redis (disabled client when REDIS_ENABLED=false)
	rc, err := redis.New(cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	var rec *metrics.Recorder
	if cfg.MetricsEnabled {
		rec = metrics.New()
	}

	return &app{
		cfg:       cfg,
		log:       log,
		db:        db,
		redis:     rc,
		metrics:   rec,
		location:  loc,
		ratings:   ratings.NewRepository(db.Pool),
		snapshots: snapshots.NewRepository(db.Pool),
		runs:      runlog.NewRepository(db.Pool),
	}, nil
}

// Close releases connections
func (a *app) Close() {
	if err := a.redis.Close(); err != nil {
		a.log.WithError(err).Warn("Failed to close redis")
	}
	a.db.Close()
}

// stores bundles the persistence an engine runs against
type stores struct {
	directory contracts.Directory
	ratings   contracts.RatingLookup
	snapshots contracts.SnapshotStore
	runs      contracts.ProcessingLogStore
}

func (a *app) dbStores() stores {
	return stores{
		directory: a.ratings,
		ratings:   a.ratings,
		snapshots: a.snapshots,
		runs:      a.runs,
	}
}

// newEngine assembles coordinator, executor and engine from config
func (a *app) newEngine(s stores, extra ...engine.Option) *engine.Engine {
	t := a.cfg.Trends

	coordinator := runlog.NewCoordinator(s.runs, t.StalePendingAfter, a.log)
	executor := batch.NewExecutor(s.directory, s.snapshots, batch.Options{
		Strategy:            batch.Strategy(t.Execution),
		Workers:             t.Workers,
		BatchPause:          t.BatchPause,
		IncludeOrganization: t.IncludeOrganization,
	}, a.metrics, a.log)

	opts := []engine.Option{
		engine.WithMetrics(a.metrics),
		engine.WithLookupRPS(t.LookupRPS),
	}
	if a.redis.Enabled() {
		opts = append(opts, engine.WithLock(redis.NewLocker(a.redis, keyPrefix), t.LockTTL))

		cache := redis.NewCache(a.redis, keyPrefix)
		opts = append(opts, engine.OnFinish(func(ctx context.Context, _ *contracts.RunResult) {
			if err := cache.DeletePattern(ctx, redis.RunsPattern); err != nil {
				a.log.WithError(err).Warn("Failed to invalidate run cache")
			}
		}))
	}
	opts = append(opts, extra...)

	return engine.New(coordinator, executor, s.ratings, a.log, opts...)
}

// newScheduler registers the weekly job and its catch-up companion
func (a *app) newScheduler(eng *engine.Engine) (*scheduler.Scheduler, error) {
	t := a.cfg.Trends

	sched := scheduler.New(a.log, scheduler.Options{
		MaxRetries: t.JobMaxRetries,
		RetryDelay: t.JobRetryDelay,
		Location:   a.location,
		Metrics:    a.metrics,
	})

	if err := sched.AddJob(jobs.NewWeeklyTrendsJob(eng, t.WeeklyCron, a.location, a.log)); err != nil {
		return nil, err
	}
	if err := sched.AddJob(jobs.NewTrendCatchUpJob(eng, a.location, a.log)); err != nil {
		return nil, err
	}

	return sched, nil
}

// startupCheck runs the last completed week unless already covered
func (a *app) startupCheck(ctx context.Context, eng *engine.Engine) {
	if !a.cfg.Trends.RunOnStartup {
		return
	}

	result, err := eng.RunLastCompletedWeek(ctx, a.location, false)
	if err != nil {
		a.log.WithError(err).Warn("Startup trend check did not complete")
		return
	}

	a.log.WithFields(map[string]interface{}{
		"status":  result.Status,
		"written": result.SnapshotsWritten,
	}).Info("Startup trend check finished")
}
