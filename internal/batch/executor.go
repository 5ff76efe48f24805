// Package batch runs trend computation over every team, employee and the
// organization. Item failures are isolated and counted; only directory
// listing failures abort a run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/internal/trends"
	"github.com/wonny/camps/pkg/logger"
	"github.com/wonny/camps/pkg/metrics"
)

// Strategy selects how entities are scheduled
type Strategy string

const (
	Sequential Strategy = "sequential"
	Parallel   Strategy = "parallel"
)

// Options configures an Executor
type Options struct {
	Strategy            Strategy
	Workers             int           // parallel: entities per batch and concurrency limit
	BatchPause          time.Duration // parallel: pause between batches
	IncludeOrganization bool
}

// Tally counts item outcomes. An item is one (scope, category) pair.
type Tally struct {
	Written int `json:"written"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Total returns the number of items attempted
func (t Tally) Total() int {
	return t.Written + t.Skipped + t.Failed
}

// Run carries per-run state into Execute
type Run struct {
	ID         uuid.UUID
	RecordDate time.Time
	Aggregator *trends.Aggregator
}

// Executor computes and persists snapshots for one record date
type Executor struct {
	directory contracts.Directory
	snapshots contracts.SnapshotStore
	computer  *trends.Computer
	lags      *trends.LagLocator
	opts      Options
	metrics   *metrics.Recorder
	logger    *logger.Logger
}

// NewExecutor creates an executor. rec may be nil.
func NewExecutor(directory contracts.Directory, snapshots contracts.SnapshotStore, opts Options, rec *metrics.Recorder, log *logger.Logger) *Executor {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.Strategy == "" {
		opts.Strategy = Parallel
	}
	return &Executor{
		directory: directory,
		snapshots: snapshots,
		computer:  trends.NewComputer(),
		lags:      trends.NewLagLocator(snapshots),
		opts:      opts,
		metrics:   rec,
		logger:    log.Module("batch"),
	}
}

type outcome int

const (
	written outcome = iota
	skipped
	failed
)

// tally is the concurrent accumulator behind Tally
type tally struct {
	mu sync.Mutex
	t  Tally
}

func (t *tally) add(o outcome, n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch o {
	case written:
		t.t.Written += n
	case skipped:
		t.t.Skipped += n
	case failed:
		t.t.Failed += n
	}
}

func (t *tally) snapshot() Tally {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.t
}

// Execute processes teams, then employees, then the organization.
// The returned error is non-nil only when a directory listing fails or ctx ends;
// the tally is valid either way.
func (e *Executor) Execute(ctx context.Context, run Run) (Tally, error) {
	acc := &tally{}
	start := time.Now()

	teams, err := e.directory.ListTeams(ctx)
	if err != nil {
		return acc.snapshot(), fmt.Errorf("list teams: %w", err)
	}
	if err := e.forEach(ctx, len(teams), func(ctx context.Context, i int) {
		e.processTeam(ctx, run, teams[i], acc)
	}); err != nil {
		return acc.snapshot(), err
	}

	employees, err := e.directory.ListEmployees(ctx)
	if err != nil {
		return acc.snapshot(), fmt.Errorf("list employees: %w", err)
	}
	if err := e.forEach(ctx, len(employees), func(ctx context.Context, i int) {
		e.processScope(ctx, run, contracts.EmployeeScope(employees[i]), acc)
	}); err != nil {
		return acc.snapshot(), err
	}

	if e.opts.IncludeOrganization {
		e.processScope(ctx, run, contracts.OrganizationScope(employees), acc)
	}

	result := acc.snapshot()
	e.logger.WithFields(map[string]interface{}{
		"run_id":      run.ID,
		"record_date": run.RecordDate,
		"strategy":    e.opts.Strategy,
		"teams":       len(teams),
		"employees":   len(employees),
		"written":     result.Written,
		"skipped":     result.Skipped,
		"failed":      result.Failed,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Batch finished")

	return result, ctx.Err()
}

// forEach applies fn to indexes [0, n) using the configured strategy
func (e *Executor) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if e.opts.Strategy == Sequential {
		for i := 0; i < n; i++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(ctx, i)
		}
		return nil
	}

	size := e.opts.Workers
	for lo := 0; lo < n; lo += size {
		if err := ctx.Err(); err != nil {
			return err
		}

		hi := lo + size
		if hi > n {
			hi = n
		}

		var g errgroup.Group
		g.SetLimit(e.opts.Workers)
		for i := lo; i < hi; i++ {
			i := i
			g.Go(func() error {
				fn(ctx, i)
				return nil
			})
		}
		_ = g.Wait()

		if hi < n && e.opts.BatchPause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(e.opts.BatchPause):
			}
		}
	}
	return nil
}

func (e *Executor) processTeam(ctx context.Context, run Run, team contracts.Team, acc *tally) {
	members, err := e.directory.ListEmployeesOfTeam(ctx, team.ID)
	if err != nil {
		categories := len(contracts.AllCategories())
		acc.add(failed, categories)
		for i := 0; i < categories; i++ {
			e.metrics.Item(string(contracts.ScopeTeam), metrics.OutcomeFailed)
		}
		e.logger.WithError(err).WithFields(map[string]interface{}{
			"team_id": team.ID,
		}).Error("Failed to list team members")
		return
	}
	e.processScope(ctx, run, contracts.TeamScope(team, members), acc)
}

func (e *Executor) processScope(ctx context.Context, run Run, ref contracts.ScopeRef, acc *tally) {
	for _, category := range contracts.AllCategories() {
		o := e.processItem(ctx, run, ref, category)
		acc.add(o, 1)
	}
}

// processItem computes and persists one snapshot. Panics are contained here.
func (e *Executor) processItem(ctx context.Context, run Run, ref contracts.ScopeRef, category contracts.Category) (o outcome) {
	log := e.logger.WithFields(map[string]interface{}{
		"run_id":   run.ID,
		"scope":    ref.String(),
		"category": category,
	})

	defer func() {
		if r := recover(); r != nil {
			log.WithFields(map[string]interface{}{
				"panic": fmt.Sprint(r),
				"stack": string(debug.Stack()),
			}).Error("Item panicked")
			o = failed
		}
		e.metrics.Item(string(ref.Scope), outcomeLabel(o))
	}()

	agg, found, err := run.Aggregator.ComputeValue(ctx, ref, category, run.RecordDate)
	if errors.Is(err, trends.ErrInvalidScope) {
		log.WithError(err).Warn("Invalid scope reference, skipping")
		return skipped
	}
	if err != nil {
		log.WithError(err).Error("Failed to compute current value")
		return failed
	}
	if !found {
		log.Debug("No ratings for item, skipping")
		return skipped
	}

	snap, err := e.computer.Compose(ctx, ref, category, run.RecordDate, agg, e.lags.For(ref, category, run.RecordDate))
	if err != nil {
		log.WithError(err).Error("Failed to compose snapshot")
		return failed
	}
	runID := run.ID
	snap.RunID = &runID

	if err := e.snapshots.Save(ctx, snap); err != nil {
		log.WithError(err).Error("Failed to save snapshot")
		return failed
	}
	return written
}

func outcomeLabel(o outcome) string {
	switch o {
	case written:
		return metrics.OutcomeWritten
	case skipped:
		return metrics.OutcomeSkipped
	}
	return metrics.OutcomeFailed
}
