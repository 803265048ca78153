package royalty

import "time"

// Period is a half-open UTC time window: start inclusive, end exclusive.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a period, normalizing both bounds to UTC.
func NewPeriod(start, end time.Time) (Period, error) {
	if start.IsZero() || end.IsZero() {
		return Period{}, ErrInvalidPeriod
	}
	start = start.UTC()
	end = end.UTC()
	if !start.Before(end) {
		return Period{}, ErrInvalidPeriod
	}
	return Period{Start: start, End: end}, nil
}

// Overlap returns the shared window of two periods, if any.
func (p Period) Overlap(other Period) (Period, bool) {
	start := p.Start
	if other.Start.After(start) {
		start = other.Start
	}
	end := p.End
	if other.End.Before(end) {
		end = other.End
	}
	if !start.Before(end) {
		return Period{}, false
	}
	return Period{Start: start, End: end}, true
}

// Contains reports whether other lies entirely within p.
func (p Period) Contains(other Period) bool {
	return !other.Start.Before(p.Start) && !other.End.After(p.End)
}

// Days returns the number of calendar days the period covers.
// Bounds are truncated to UTC day boundaries before counting.
func (p Period) Days() int {
	start := truncateDay(p.Start)
	end := truncateDay(p.End)
	if p.End.After(end) {
		// A partial trailing day counts as a whole day.
		end = end.AddDate(0, 0, 1)
	}
	return int(end.Sub(start).Hours() / 24)
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
