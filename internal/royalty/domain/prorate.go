package royalty

import "fmt"

// Proration is a fee license's revenue for a run period, with the provenance
// needed for audit and line-item display.
type Proration struct {
	RevenueCents int64
	Overlap      Period
	OverlapDays  int
	TermDays     int
	Formula      string
}

// ProratedRevenue scales a flat fee by the calendar-day overlap between the
// license term and the run period: floor(feeCents * overlapDays / termDays).
// The denominator is the license's own full term length. Start bounds are
// inclusive and end bounds exclusive, matching the period-boundary check.
// A zero-day overlap yields zero revenue with no error; a zero-day term is
// ErrZeroTermDays, never a silent zero.
func ProratedRevenue(feeCents int64, term, period Period) (Proration, error) {
	if feeCents < 0 {
		return Proration{}, ErrNegativeAmount
	}
	termDays := term.Days()
	if termDays <= 0 {
		return Proration{}, ErrZeroTermDays
	}

	overlap, ok := term.Overlap(period)
	if !ok {
		return Proration{TermDays: termDays}, nil
	}
	overlapDays := overlap.Days()
	if overlapDays <= 0 {
		return Proration{TermDays: termDays}, nil
	}

	revenue := feeCents * int64(overlapDays) / int64(termDays)
	return Proration{
		RevenueCents: revenue,
		Overlap:      overlap,
		OverlapDays:  overlapDays,
		TermDays:     termDays,
		Formula:      fmt.Sprintf("floor(%d * %d / %d)", feeCents, overlapDays, termDays),
	}, nil
}
