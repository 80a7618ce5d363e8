package attendance

import (
	"time"
)

// Calendar decides which days are work days and in which zone a punch
// belongs to a date.
type Calendar struct {
	Location *time.Location
	WorkDays map[time.Weekday]bool
	Holidays map[string]bool // keyed by DateLayout
}

// NewCalendar builds a calendar. A nil location means UTC.
func NewCalendar(loc *time.Location, workDays []time.Weekday, holidays []string) Calendar {
	if loc == nil {
		loc = time.UTC
	}
	cal := Calendar{
		Location: loc,
		WorkDays: make(map[time.Weekday]bool, len(workDays)),
		Holidays: make(map[string]bool, len(holidays)),
	}
	for _, d := range workDays {
		cal.WorkDays[d] = true
	}
	for _, h := range holidays {
		cal.Holidays[h] = true
	}
	return cal
}

// DateOf truncates t to midnight of its calendar day.
func (c Calendar) DateOf(t time.Time) time.Time {
	local := t.In(c.Location)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.Location)
}

// IsWorkDay reports whether date is a configured work day that is not a holiday.
func (c Calendar) IsWorkDay(date time.Time) bool {
	d := c.DateOf(date)
	if c.Holidays[d.Format(DateLayout)] {
		return false
	}
	return c.WorkDays[d.Weekday()]
}

// Today returns midnight of the current day for now.
func (c Calendar) Today(now time.Time) time.Time {
	return c.DateOf(now)
}

// Elapsed reports whether date is fully in the past relative to now.
func (c Calendar) Elapsed(date, now time.Time) bool {
	return c.DateOf(date).Before(c.Today(now))
}

// Days returns every calendar date in [from, to], inclusive.
func (c Calendar) Days(from, to time.Time) []time.Time {
	start := c.DateOf(from)
	end := c.DateOf(to)
	var days []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}
