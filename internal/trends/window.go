package trends

import (
	"errors"
	"fmt"
	"time"

	"github.com/wonny/camps/internal/contracts"
)

// LagTolerance is how far a lagged snapshot may sit from its anchor
const LagTolerance = 7 * 24 * time.Hour

// MaxWindowYears bounds both window age and window span
const MaxWindowYears = 2

// Granularity is the bucket size for time-series presentation
type Granularity string

const (
	GranularityDaily   Granularity = "DAILY"
	GranularityWeekly  Granularity = "WEEKLY"
	GranularityMonthly Granularity = "MONTHLY"
)

// Window validation errors. All wrap ErrInvalidWindow.
var (
	ErrInvalidWindow  = errors.New("invalid window")
	ErrMissingBound   = fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	ErrStartAfterEnd  = fmt.Errorf("%w: start is after end", ErrInvalidWindow)
	ErrStartInFuture  = fmt.Errorf("%w: start is in the future", ErrInvalidWindow)
	ErrStartTooOld    = fmt.Errorf("%w: start is more than %d years ago", ErrInvalidWindow, MaxWindowYears)
	ErrWindowTooLarge = fmt.Errorf("%w: window spans more than %d years", ErrInvalidWindow, MaxWindowYears)
)

// Window is a closed time interval [Start, End]
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// String renders the window as two RFC3339 timestamps
func (w Window) String() string {
	return w.Start.Format(time.RFC3339) + ".." + w.End.Format(time.RFC3339)
}

// LagAnchor returns the target date for a comparison period.
// Month-based periods clamp to the last day of the target month (Mar 31 - 1 month = Feb 28/29).
func LagAnchor(recordDate time.Time, kind contracts.LagKind) time.Time {
	switch kind {
	case contracts.LagWeek:
		return recordDate.AddDate(0, 0, -7)
	case contracts.LagMonth:
		return subtractMonths(recordDate, 1)
	case contracts.LagQuarter:
		return subtractMonths(recordDate, 3)
	case contracts.LagYear:
		return subtractMonths(recordDate, 12)
	}
	return recordDate
}

// LagAnchors returns the anchor for every comparison period
func LagAnchors(recordDate time.Time) map[contracts.LagKind]time.Time {
	anchors := make(map[contracts.LagKind]time.Time, 4)
	for _, kind := range contracts.AllLagKinds() {
		anchors[kind] = LagAnchor(recordDate, kind)
	}
	return anchors
}

// subtractMonths moves t back n calendar months, clamping the day.
// time.AddDate normalises overflow instead (Mar 31 - 1 month = Mar 3).
func subtractMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	total := y*12 + int(m) - 1 - n
	ty, tm := total/12, time.Month(total%12+1)

	lastDay := time.Date(ty, tm+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(ty, tm, d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// ChooseGranularity picks the bucket size for a presentation range.
// Whole days are counted; up to 30 is DAILY, up to 365 is WEEKLY.
func ChooseGranularity(from, to time.Time) Granularity {
	days := int64(to.Sub(from) / (24 * time.Hour))
	switch {
	case days <= 30:
		return GranularityDaily
	case days <= 365:
		return GranularityWeekly
	default:
		return GranularityMonthly
	}
}

// LastCompletedWeek returns Monday 00:00:00 through Sunday 23:59:59 of the
// most recent fully elapsed week in loc. On a Sunday the current week is
// still open, so the week before is returned.
func LastCompletedWeek(now time.Time, loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)

	back := int(today.Weekday()) // Sunday = 0
	if back == 0 {
		back = 7
	}
	sunday := today.AddDate(0, 0, -back)

	return Window{
		Start: sunday.AddDate(0, 0, -6),
		End:   time.Date(sunday.Year(), sunday.Month(), sunday.Day(), 23, 59, 59, 0, loc),
	}
}

// ValidateWindow rejects windows the engine must not process
func ValidateWindow(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return ErrMissingBound
	}
	if start.After(end) {
		return ErrStartAfterEnd
	}
	if start.After(now) {
		return ErrStartInFuture
	}
	if start.Before(now.AddDate(-MaxWindowYears, 0, 0)) {
		return ErrStartTooOld
	}
	if end.After(start.AddDate(MaxWindowYears, 0, 0)) {
		return ErrWindowTooLarge
	}
	return nil
}
