// Package runlog brackets each trend run with a processing log row.
// A completed row of any window type whose end reaches the requested end
// short-circuits the run unless forced. A PENDING row per window start
// excludes concurrent runs across window types.
package runlog

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/wonny/camps/internal/contracts"
	"github.com/wonny/camps/pkg/logger"
)

// maxErrorMessage bounds what is stored in error_message
const maxErrorMessage = 2000

// ErrAlreadyCovered is returned when a completed run already reaches the requested end
var ErrAlreadyCovered = errors.New("window already covered by a completed run")

// Coordinator owns the processing log lifecycle: PENDING -> COMPLETED | FAILED
type Coordinator struct {
	store      contracts.ProcessingLogStore
	staleAfter time.Duration
	now        func() time.Time
	logger     *logger.Logger
}

// NewCoordinator creates a coordinator.
// staleAfter <= 0 disables abandoning stuck PENDING rows.
func NewCoordinator(store contracts.ProcessingLogStore, staleAfter time.Duration, log *logger.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     log.Module("runlog"),
	}
}

// WithClock replaces the wall clock
func (c *Coordinator) WithClock(now func() time.Time) *Coordinator {
	c.now = now
	return c
}

// Handle is an open run
type Handle struct {
	entry contracts.ProcessingLog
}

// ID returns the processing log id
func (h *Handle) ID() uuid.UUID {
	return h.entry.ID
}

// Log returns a copy of the current row state
func (h *Handle) Log() contracts.ProcessingLog {
	return h.entry
}

// Begin opens a run for [start, end].
// Returns ErrAlreadyCovered when skipped, contracts.ErrRunInProgress when another run holds the window.
// Coverage and the PENDING guard ignore the window type.
func (c *Coordinator) Begin(ctx context.Context, windowType contracts.WindowType, start, end time.Time, force bool) (*Handle, error) {
	if !force {
		latest, err := c.store.FindLatestCompleted(ctx, "")
		if err != nil {
			return nil, fmt.Errorf("check latest completed run: %w", err)
		}
		if latest.Covers(end) {
			c.logger.WithFields(map[string]interface{}{
				"window_type":    windowType,
				"requested_end":  end,
				"latest_log_id":  latest.ID,
				"latest_type":    latest.WindowType,
				"latest_log_end": latest.WindowEnd,
			}).Info("Window already processed, skipping")
			return nil, ErrAlreadyCovered
		}
	}

	now := c.now()
	if c.staleAfter > 0 {
		n, err := c.store.AbandonStale(ctx, "", start, now.Add(-c.staleAfter))
		if err != nil {
			return nil, fmt.Errorf("abandon stale runs: %w", err)
		}
		if n > 0 {
			c.logger.WithFields(map[string]interface{}{
				"window_type":  windowType,
				"window_start": start,
				"abandoned":    n,
			}).Warn("Abandoned stale PENDING runs")
		}
	}

	entry := contracts.ProcessingLog{
		ID:          uuid.New(),
		WindowType:  windowType,
		RunAt:       now,
		WindowStart: start,
		WindowEnd:   end,
		Status:      contracts.StatusPending,
		CreatedAt:   now,
	}
	if err := c.store.Insert(ctx, &entry); err != nil {
		if errors.Is(err, contracts.ErrRunInProgress) {
			return nil, err
		}
		return nil, fmt.Errorf("record pending run: %w", err)
	}

	c.logger.WithFields(map[string]interface{}{
		"log_id":       entry.ID,
		"window_type":  windowType,
		"window_start": start,
		"window_end":   end,
		"force":        force,
	}).Info("Run started")

	return &Handle{entry: entry}, nil
}

// Complete marks the run COMPLETED
func (c *Coordinator) Complete(ctx context.Context, h *Handle) error {
	completedAt := c.now()
	h.entry.Status = contracts.StatusCompleted
	h.entry.CompletedAt = &completedAt
	h.entry.ErrorMessage = nil

	if err := c.store.Update(ctx, &h.entry); err != nil {
		return fmt.Errorf("mark run %s completed: %w", h.entry.ID, err)
	}
	return nil
}

// Fail marks the run FAILED with cause
func (c *Coordinator) Fail(ctx context.Context, h *Handle, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}
	msg = truncateMessage(msg, maxErrorMessage)

	h.entry.Status = contracts.StatusFailed
	h.entry.ErrorMessage = &msg

	if err := c.store.Update(ctx, &h.entry); err != nil {
		return fmt.Errorf("mark run %s failed: %w", h.entry.ID, err)
	}
	return nil
}

// truncateMessage cuts msg to at most max bytes on a rune boundary
func truncateMessage(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

// LatestCompleted returns the completed run reaching furthest forward, or nil
func (c *Coordinator) LatestCompleted(ctx context.Context, windowType contracts.WindowType) (*contracts.ProcessingLog, error) {
	return c.store.FindLatestCompleted(ctx, windowType)
}

// Recent lists runs newest first
func (c *Coordinator) Recent(ctx context.Context, windowType contracts.WindowType, limit int) ([]contracts.ProcessingLog, error) {
	return c.store.ListRecent(ctx, windowType, limit)
}
