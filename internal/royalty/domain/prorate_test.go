package royalty

import (
	"errors"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestProratedRevenue_FullOverlap(t *testing.T) {
	term := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}
	period := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}

	got, err := ProratedRevenue(10000, term, period)
	if err != nil {
		t.Fatalf("ProratedRevenue: %v", err)
	}
	if got.RevenueCents != 10000 {
		t.Fatalf("revenue = %d, want 10000", got.RevenueCents)
	}
	if got.OverlapDays != 31 || got.TermDays != 31 {
		t.Fatalf("days = %d/%d, want 31/31", got.OverlapDays, got.TermDays)
	}
}

func TestProratedRevenue_PartialOverlapFloors(t *testing.T) {
	term := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}
	period := Period{Start: day(2025, 1, 1), End: day(2025, 1, 11)}

	got, err := ProratedRevenue(10000, term, period)
	if err != nil {
		t.Fatalf("ProratedRevenue: %v", err)
	}
	// floor(10000 * 10 / 31) = 3225
	if got.RevenueCents != 3225 {
		t.Fatalf("revenue = %d, want 3225", got.RevenueCents)
	}
	if got.OverlapDays != 10 {
		t.Fatalf("overlap days = %d, want 10", got.OverlapDays)
	}
	if got.Formula == "" {
		t.Fatal("formula should record the proration inputs")
	}
}

func TestProratedRevenue_NoOverlap(t *testing.T) {
	term := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}
	period := Period{Start: day(2025, 3, 1), End: day(2025, 4, 1)}

	got, err := ProratedRevenue(10000, term, period)
	if err != nil {
		t.Fatalf("ProratedRevenue: %v", err)
	}
	if got.RevenueCents != 0 {
		t.Fatalf("revenue = %d, want 0", got.RevenueCents)
	}
}

func TestProratedRevenue_ZeroTermDays(t *testing.T) {
	term := Period{Start: day(2025, 1, 1), End: day(2025, 1, 1)}
	period := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}

	_, err := ProratedRevenue(10000, term, period)
	if !errors.Is(err, ErrZeroTermDays) {
		t.Fatalf("err = %v, want ErrZeroTermDays", err)
	}
}

func TestProratedRevenue_NegativeFee(t *testing.T) {
	term := Period{Start: day(2025, 1, 1), End: day(2025, 2, 1)}
	_, err := ProratedRevenue(-1, term, term)
	if !errors.Is(err, ErrNegativeAmount) {
		t.Fatalf("err = %v, want ErrNegativeAmount", err)
	}
}
