package contracts

import (
	"time"

	"github.com/google/uuid"
)

// LagKind is a comparison period used for deltas
type LagKind string

const (
	LagWeek    LagKind = "WEEK"
	LagMonth   LagKind = "MONTH"
	LagQuarter LagKind = "QUARTER"
	LagYear    LagKind = "YEAR"
)

// AllLagKinds returns the four comparison periods, shortest first
func AllLagKinds() []LagKind {
	return []LagKind{LagWeek, LagMonth, LagQuarter, LagYear}
}

// TrendSnapshot is an immutable comparative value for one scope and category.
// nil previous values mean "no baseline"; nil deltas follow them.
type TrendSnapshot struct {
	ID       uuid.UUID  `json:"id"`
	RunID    *uuid.UUID `json:"run_id,omitempty"`
	Scope    Scope      `json:"scope"`
	EntityID *uuid.UUID `json:"entity_id,omitempty"`
	TeamID   *uuid.UUID `json:"team_id,omitempty"`
	Category Category   `json:"category"`

	RecordDate   time.Time `json:"record_date"`
	CurrentValue float64   `json:"current_value"`

	PrevWeek    *float64 `json:"prev_week"`
	PrevMonth   *float64 `json:"prev_month"`
	PrevQuarter *float64 `json:"prev_quarter"`
	PrevYear    *float64 `json:"prev_year"`

	DeltaWeek    *float64 `json:"delta_week"`
	DeltaMonth   *float64 `json:"delta_month"`
	DeltaQuarter *float64 `json:"delta_quarter"`
	DeltaYear    *float64 `json:"delta_year"`

	// TEAM and ORGANIZATION only
	ContributorCount *int `json:"contributor_count,omitempty"`
	DataPoints       *int `json:"data_points,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Previous returns the lagged value for kind
func (s *TrendSnapshot) Previous(kind LagKind) *float64 {
	switch kind {
	case LagWeek:
		return s.PrevWeek
	case LagMonth:
		return s.PrevMonth
	case LagQuarter:
		return s.PrevQuarter
	case LagYear:
		return s.PrevYear
	}
	return nil
}

// Delta returns current minus the lagged value for kind
func (s *TrendSnapshot) Delta(kind LagKind) *float64 {
	switch kind {
	case LagWeek:
		return s.DeltaWeek
	case LagMonth:
		return s.DeltaMonth
	case LagQuarter:
		return s.DeltaQuarter
	case LagYear:
		return s.DeltaYear
	}
	return nil
}

// SetLag stores the lagged value and its delta for kind
func (s *TrendSnapshot) SetLag(kind LagKind, previous, delta *float64) {
	switch kind {
	case LagWeek:
		s.PrevWeek, s.DeltaWeek = previous, delta
	case LagMonth:
		s.PrevMonth, s.DeltaMonth = previous, delta
	case LagQuarter:
		s.PrevQuarter, s.DeltaQuarter = previous, delta
	case LagYear:
		s.PrevYear, s.DeltaYear = previous, delta
	}
}
