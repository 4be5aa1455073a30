package services

import (
	"errors"
	"time"
)

// ErrUnknownDuration is returned for a duration outside the fixed set the
// order form offers.
var ErrUnknownDuration = errors.New("unknown expire duration")

type span struct {
	months int
	years  int
}

// Durations selectable on the order form. Keys are the wire values.
var durations = map[string]span{
	"1_month":  {months: 1},
	"2_months": {months: 2},
	"3_months": {months: 3},
	"6_months": {months: 6},
	"1_year":   {years: 1},
	"2_years":  {years: 2},
	"3_years":  {years: 3},
	"5_years":  {years: 5},
}

// ExpireDate advances purchase by the named duration using calendar-aware
// arithmetic: the day of month is clamped to the target month's last day, so
// 2024-01-31 + 1_month is 2024-02-29, not an overflow into March.
func ExpireDate(purchase time.Time, duration string) (time.Time, error) {
	s, ok := durations[duration]
	if !ok {
		return time.Time{}, ErrUnknownDuration
	}
	return addCalendar(purchase, s.years, s.months), nil
}

func addCalendar(t time.Time, years, months int) time.Time {
	y, m, d := t.Date()
	y += years
	mo := int(m) + months
	y += (mo - 1) / 12
	mo = (mo-1)%12 + 1
	if last := daysIn(y, time.Month(mo)); d > last {
		d = last
	}
	return time.Date(y, time.Month(mo), d, 0, 0, 0, 0, t.Location())
}

// daysIn returns the number of days in the given month; day 0 of the next
// month is the last day of this one.
func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
