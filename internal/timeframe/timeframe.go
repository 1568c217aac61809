package timeframe

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidWindow is returned for missing, unparseable or inverted window bounds.
var ErrInvalidWindow = errors.New("invalid time window")

// RangeLabel represents the named range presets accepted instead of explicit bounds
type RangeLabel string

const (
	RangeLabelToday        RangeLabel = "today"
	RangeLabelYesterday    RangeLabel = "yesterday"
	RangeLabelLast7Days    RangeLabel = "last_7_days"
	RangeLabelLast30Days   RangeLabel = "last_30_days"
	RangeLabelMonthToDate  RangeLabel = "month_to_date"
	RangeLabelLastMonth    RangeLabel = "last_month"
	RangeLabelYearToDate   RangeLabel = "year_to_date"
	RangeLabelLast12Months RangeLabel = "last_12_months"
)

type TimeProvider interface {
	Now(loc *time.Location) time.Time
}

// DefaultTimeProvider is the default implementation that uses the system clock
type DefaultTimeProvider struct{}

// Now returns the current time in the given location
func (p *DefaultTimeProvider) Now(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// Window is a half-open time range [Start, End). Both bounds are stored in UTC.
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow validates and normalizes the bounds of a window.
func NewWindow(start, end time.Time) (*Window, error) {
	if start.IsZero() || end.IsZero() {
		return nil, fmt.Errorf("%w: start and end are required", ErrInvalidWindow)
	}
	if !end.After(start) {
		return nil, fmt.Errorf("%w: end must be after start", ErrInvalidWindow)
	}
	return &Window{Start: start.UTC(), End: end.UTC()}, nil
}

// Contains reports whether t falls inside the window. A nil window is all-time.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	return !t.Before(w.Start) && t.Before(w.End)
}

// Key renders the window for cache keys and logs.
func (w *Window) Key() string {
	if w == nil {
		return "all"
	}
	return w.Start.Format(time.RFC3339Nano) + "_" + w.End.Format(time.RFC3339Nano)
}

func (w *Window) String() string {
	if w == nil {
		return "all time"
	}
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// windowForRange computes the window of a preset relative to now. Days are
// UTC midnights, matching the dashboard's date pickers.
func windowForRange(label RangeLabel, now time.Time) (*Window, error) {
	today := startOfDay(now.UTC())
	tomorrow := today.AddDate(0, 0, 1)

	switch label {
	case RangeLabelToday:
		return NewWindow(today, tomorrow)
	case RangeLabelYesterday:
		return NewWindow(today.AddDate(0, 0, -1), today)
	case RangeLabelLast7Days:
		return NewWindow(today.AddDate(0, 0, -7), today)
	case RangeLabelLast30Days:
		return NewWindow(today.AddDate(0, 0, -30), today)
	case RangeLabelMonthToDate:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return NewWindow(first, tomorrow)
	case RangeLabelLastMonth:
		first := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
		return NewWindow(first.AddDate(0, -1, 0), first)
	case RangeLabelYearToDate:
		first := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, time.UTC)
		return NewWindow(first, tomorrow)
	case RangeLabelLast12Months:
		return NewWindow(today.AddDate(-1, 0, 0), tomorrow)
	default:
		return nil, fmt.Errorf("%w: unknown range %q", ErrInvalidWindow, label)
	}
}
