// Package localtime converts between the fixed UTC storage timezone and the
// business's civil calendar. Month bucketing for reports must happen in the
// local calendar: a sale recorded late at night locally would otherwise be
// attributed to the next UTC day or month.
package localtime

import "time"

// MonthRangeUTC returns the half-open UTC interval [from, to) covering the
// given calendar month in loc. time.Date normalizes month+1 overflow, so
// December rolls into January of the next year.
func MonthRangeUTC(year int, month time.Month, loc *time.Location) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	to := time.Date(year, month+1, 1, 0, 0, 0, 0, loc)
	return from.UTC(), to.UTC()
}

// Format renders a stored UTC timestamp for display in the business timezone.
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02/01/2006 15:04:05")
}
