package availability

import (
	"time"

	"salon-service/internal/timeutil"
)

// Interval is a half-open [Start,End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && other.Start.Before(iv.End)
}

// Expand widens the interval by the given buffers.
func (iv Interval) Expand(before, after time.Duration) Interval {
	return Interval{Start: iv.Start.Add(-before), End: iv.End.Add(after)}
}

// DayParams describes one staff member's slot generation for one calendar
// date. Busy intervals are expected to be buffer-expanded already.
type DayParams struct {
	OpenStart time.Time // un-clipped business window for the date
	OpenEnd   time.Time
	From      time.Time // requested range
	To        time.Time
	Now       time.Time

	DurationMinutes     int
	StepMinutes         int
	BufferBeforeMinutes int
	BufferAfterMinutes  int

	Busy []Interval
}

// DaySlots returns the bookable slots for one staff member on one date.
//
// Candidate starts walk a step-minute grid from the clipped window start. A
// candidate is accepted when a booking of the configured duration, expanded
// by both buffers, stays inside the un-clipped business window and touches
// none of the busy intervals. Starts in the past are skipped.
func DaySlots(p DayParams) []Interval {
	if p.DurationMinutes <= 0 || p.StepMinutes <= 0 {
		return nil
	}

	windowStart := p.OpenStart
	if p.From.After(windowStart) {
		windowStart = p.From
	}
	windowEnd := p.OpenEnd
	if p.To.Before(windowEnd) {
		windowEnd = p.To
	}
	if !windowEnd.After(windowStart) {
		return nil
	}

	duration := time.Duration(p.DurationMinutes) * time.Minute
	step := time.Duration(p.StepMinutes) * time.Minute
	before := time.Duration(p.BufferBeforeMinutes) * time.Minute
	after := time.Duration(p.BufferAfterMinutes) * time.Minute

	var slots []Interval

	for start := timeutil.AlignUpToStep(windowStart, p.StepMinutes); !start.Add(duration).After(windowEnd); start = start.Add(step) {
		if start.Before(p.Now) {
			continue
		}

		candidate := Interval{Start: start, End: start.Add(duration)}
		buffered := candidate.Expand(before, after)

		// Buffers must not push the booking outside business hours.
		if buffered.Start.Before(p.OpenStart) || buffered.End.After(p.OpenEnd) {
			continue
		}

		if overlapsAny(buffered, p.Busy) {
			continue
		}

		slots = append(slots, candidate)
	}

	return slots
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
