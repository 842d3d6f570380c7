package calendar

import (
	"time"

	"salon-service/internal/models"
	"salon-service/internal/timeutil"
)

// Calendar resolves the effective open window for a calendar date: weekly
// recurring hours overridden by date-specific exceptions.
type Calendar struct {
	loc        *time.Location
	weekly     map[int]models.OpeningHours
	exceptions map[string]models.OpeningException
}

func New(loc *time.Location, weekly []models.OpeningHours, exceptions []models.OpeningException) *Calendar {
	c := &Calendar{
		loc:        loc,
		weekly:     make(map[int]models.OpeningHours, len(weekly)),
		exceptions: make(map[string]models.OpeningException, len(exceptions)),
	}

	for _, h := range weekly {
		c.weekly[h.DayOfWeek] = h
	}
	for _, e := range exceptions {
		c.exceptions[dateKey(e.Date.In(loc))] = e
	}

	return c
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// OpenWindow returns the open interval for the given date, or open=false if
// the business is closed that day.
//
// An exception record fully overrides the weekly default, even a partial
// one: a not-closed exception that is missing either time of day carries no
// derivable window and is treated as closed.
func (c *Calendar) OpenWindow(date time.Time) (start, end time.Time, open bool) {
	date = timeutil.StartOfDay(date.In(c.loc))

	opensAt, closesAt, ok := c.hoursFor(date)
	if !ok {
		return time.Time{}, time.Time{}, false
	}

	start, startOK := timeutil.CombineDateAndTime(date, opensAt, c.loc)
	end, endOK := timeutil.CombineDateAndTime(date, closesAt, c.loc)
	if !startOK || !endOK {
		return time.Time{}, time.Time{}, false
	}

	// closes_at <= opens_at is a data integrity problem, not a fatal one.
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}

	return start, end, true
}

func (c *Calendar) hoursFor(date time.Time) (opensAt, closesAt *string, ok bool) {
	if exc, found := c.exceptions[dateKey(date)]; found {
		if exc.IsClosed {
			return nil, nil, false
		}
		return exc.OpensAt, exc.ClosesAt, true
	}

	weekly, found := c.weekly[int(date.Weekday())]
	if !found || weekly.IsClosed {
		return nil, nil, false
	}

	return weekly.OpensAt, weekly.ClosesAt, true
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
