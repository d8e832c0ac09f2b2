package domain

import (
	"time"
)

// DateLayout is the wire and storage format of a calendar day.
const DateLayout = "2006-01-02"

// Calendar fixes the timezone in which "today" is evaluated. One Calendar is
// built from configuration and shared by everything that needs a reference
// date, so recording and streak computation always agree on the day.
type Calendar struct {
	loc *time.Location
}

// NewCalendar builds a Calendar for loc. A nil location means UTC.
func NewCalendar(loc *time.Location) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	return Calendar{loc: loc}
}

// Location returns the calendar's timezone.
func (c Calendar) Location() *time.Location {
	if c.loc == nil {
		return time.UTC
	}
	return c.loc
}

// Today returns the calendar day that now falls on in the calendar's timezone.
func (c Calendar) Today(now time.Time) time.Time {
	return DateOf(now.In(c.Location()))
}

// DateOf truncates t to its calendar day. The year, month and day are read in
// t's own location and the result is midnight UTC, so two instants that share
// a Y-M-D compare equal regardless of the zone they were produced in.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// FormatDate renders a calendar day as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD string into a calendar day.
func ParseDate(value string) (time.Time, error) {
	t, err := time.Parse(DateLayout, value)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// dayNumber counts days since the Unix epoch. Differences between day numbers
// are exact day counts with no DST drift.
func dayNumber(t time.Time) int64 {
	return DateOf(t).Unix() / 86400
}
