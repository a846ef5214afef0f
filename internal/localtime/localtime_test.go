package localtime

import (
	"testing"
	"time"
)

func mustLoad(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestMonthRangeUTCCoversLocalMidnight(t *testing.T) {
	loc := mustLoad(t, "America/Belem") // UTC-3, no DST

	from, to := MonthRangeUTC(2025, time.November, loc)

	if got := from.Format(time.RFC3339); got != "2025-11-01T03:00:00Z" {
		t.Fatalf("unexpected from: %s", got)
	}
	if got := to.Format(time.RFC3339); got != "2025-12-01T03:00:00Z" {
		t.Fatalf("unexpected to: %s", got)
	}
}

func TestLateNightSaleStaysInLocalMonth(t *testing.T) {
	loc := mustLoad(t, "America/Belem")

	// 23:30 local on Nov 30 is already Dec 1 in UTC.
	soldAt := time.Date(2025, time.November, 30, 23, 30, 0, 0, loc).UTC()
	if soldAt.Month() != time.December {
		t.Fatalf("expected UTC month to roll over, got %s", soldAt.Month())
	}

	from, to := MonthRangeUTC(2025, time.November, loc)
	if soldAt.Before(from) || !soldAt.Before(to) {
		t.Fatalf("sale at %s not inside November range [%s, %s)", soldAt, from, to)
	}

	decFrom, decTo := MonthRangeUTC(2025, time.December, loc)
	if !soldAt.Before(decFrom) && soldAt.Before(decTo) {
		t.Fatalf("sale leaked into December range")
	}
}

func TestMonthRangeUTCDecemberRollsIntoNextYear(t *testing.T) {
	loc := mustLoad(t, "America/Belem")

	from, to := MonthRangeUTC(2025, time.December, loc)
	if from.Year() != 2025 || to.Year() != 2026 {
		t.Fatalf("expected range to cross the year boundary, got [%s, %s)", from, to)
	}
	if !to.After(from) {
		t.Fatalf("degenerate range [%s, %s)", from, to)
	}
}

func TestFormatRendersLocalWallClock(t *testing.T) {
	loc := mustLoad(t, "America/Belem")

	stored := time.Date(2025, time.December, 1, 2, 30, 0, 0, time.UTC)
	if got := Format(stored, loc); got != "30/11/2025 23:30:00" {
		t.Fatalf("unexpected rendering: %s", got)
	}
}
