package contracts

import (
	"time"

	"github.com/google/uuid"
)

// WindowType names the cadence a processing run covers
type WindowType string

const (
	WindowWeekly   WindowType = "WEEKLY"
	WindowMonthly  WindowType = "MONTHLY"
	WindowOnDemand WindowType = "ON_DEMAND"
)

// ParseWindowType validates a window type string
func ParseWindowType(s string) (WindowType, bool) {
	switch wt := WindowType(s); wt {
	case WindowWeekly, WindowMonthly, WindowOnDemand:
		return wt, true
	}
	return "", false
}

// ProcessingStatus is the lifecycle state of a processing log row
type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "PENDING"
	StatusCompleted ProcessingStatus = "COMPLETED"
	StatusFailed    ProcessingStatus = "FAILED"
)

// ProcessingLog is the audit record bracketing one run
// PENDING -> COMPLETED | FAILED
type ProcessingLog struct {
	ID           uuid.UUID        `json:"id"`
	WindowType   WindowType       `json:"window_type"`
	RunAt        time.Time        `json:"run_at"`
	WindowStart  time.Time        `json:"window_start"`
	WindowEnd    time.Time        `json:"window_end"`
	Status       ProcessingStatus `json:"status"`
	ErrorMessage *string          `json:"error_message,omitempty"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
	Version      int64            `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Covers reports whether a completed log already reaches end
func (l *ProcessingLog) Covers(end time.Time) bool {
	return l != nil && l.Status == StatusCompleted && !l.WindowEnd.Before(end)
}

// RunStatus is the outcome reported to the trigger
type RunStatus string

const (
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunSkipped   RunStatus = "SKIPPED"
)

// RunResult summarises one RunWindow call.
// Status says whether the run executed; AllItemsSucceeded says whether every item did.
type RunResult struct {
	LogID             *uuid.UUID    `json:"log_id,omitempty"`
	Status            RunStatus     `json:"status"`
	WindowType        WindowType    `json:"window_type"`
	WindowStart       time.Time     `json:"window_start"`
	WindowEnd         time.Time     `json:"window_end"`
	SnapshotsWritten  int           `json:"snapshots_written"`
	ItemsSkipped      int           `json:"items_skipped"`
	ItemsFailed       int           `json:"items_failed"`
	AllItemsSucceeded bool          `json:"all_items_succeeded"`
	Duration          time.Duration `json:"duration"`
	Error             string        `json:"error,omitempty"`
}
