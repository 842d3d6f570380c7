package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"salon-service/pkg/response"
)

// rangeLiteralRe matches the persisted tstzrange text form:
// a bracketed, comma separated pair of timestamps, e.g.
// [2026-03-02T09:00:00Z,2026-03-02T10:00:00Z)
var rangeLiteralRe = regexp.MustCompile(`^[\[(](.+),(.+)[)\]]$`)

// ParseLocalDateTime parses an ISO-8601 timestamp and rebases it into the
// business timezone.
func ParseLocalDateTime(value string, loc *time.Location) (time.Time, error) {
	const op = "timeutil.ParseLocalDateTime"

	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q: %w", op, value, response.ErrInvalidInput)
	}

	return t.In(loc), nil
}

// RangeLiteral serializes a half-open [start,end) pair in UTC.
func RangeLiteral(start, end time.Time) string {
	return "[" + start.UTC().Format(time.RFC3339Nano) + "," + end.UTC().Format(time.RFC3339Nano) + ")"
}

// ParseRangeLiteral is the inverse of RangeLiteral. Bounds come back in the
// given location.
func ParseRangeLiteral(value string, loc *time.Location) (start, end time.Time, err error) {
	const op = "timeutil.ParseRangeLiteral"

	m := rangeLiteralRe.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: %q: %w", op, value, response.ErrInvalidInput)
	}

	start, err = parseRangeBound(strings.TrimSpace(m[1]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: start bound: %w", op, response.ErrInvalidInput)
	}

	end, err = parseRangeBound(strings.TrimSpace(m[2]))
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("%s: end bound: %w", op, response.ErrInvalidInput)
	}

	return start.In(loc), end.In(loc), nil
}

// parseRangeBound accepts both the RFC3339 "T" form we write and the
// space-separated form Postgres prints for tstzrange bounds, with or without
// surrounding double quotes.
func parseRangeBound(value string) (time.Time, error) {
	value = strings.Trim(value, `"`)

	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999Z07:00", value); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02 15:04:05.999999999-07", value); err == nil {
		return t, nil
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// CombineDateAndTime builds a local timestamp from a calendar date and an
// HH:MM[:SS] time of day. A nil time of day means "no hours configured" and
// yields ok=false.
func CombineDateAndTime(date time.Time, timeOfDay *string, loc *time.Location) (time.Time, bool) {
	if timeOfDay == nil || *timeOfDay == "" {
		return time.Time{}, false
	}

	parts := strings.Split(*timeOfDay, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return time.Time{}, false
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return time.Time{}, false
		}
		nums[i] = n
	}

	if nums[0] > 23 || nums[1] > 59 || nums[2] > 59 {
		return time.Time{}, false
	}

	return time.Date(date.Year(), date.Month(), date.Day(), nums[0], nums[1], nums[2], 0, loc), true
}

// AlignUpToStep rounds t up to the next multiple of stepMinutes within its
// minute component. Seconds and sub-second precision are truncated first; an
// already aligned timestamp is returned unchanged.
func AlignUpToStep(t time.Time, stepMinutes int) time.Time {
	truncated := t.Truncate(time.Minute)

	if stepMinutes <= 0 {
		return truncated
	}

	remainder := truncated.Minute() % stepMinutes
	if remainder == 0 {
		return truncated
	}

	return truncated.Add(time.Duration(stepMinutes-remainder) * time.Minute)
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
