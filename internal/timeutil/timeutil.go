package timeutil

import (
	"fmt"
	"time"

	"tutor-service/pkg/response"
)

const DefaultTimezone = "Europe/Moscow"

// ToUTC builds the wall-clock instant localTime ("15:04") on the
// calendar date of day in the given IANA zone and converts it to UTC.
// The offset is resolved for that specific date, so dates on either
// side of a DST transition come out right where fixed-offset
// arithmetic would not.
func ToUTC(tz string, day time.Time, localTime string) (time.Time, error) {
	const op = "timeutil.ToUTC"

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %q: %w", op, tz, response.ErrConfiguration)
	}

	t, err := time.Parse("15:04", localTime)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: invalid time %q: %w", op, localTime, err)
	}

	local := time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, loc)

	return local.UTC(), nil
}

// FormatInZone renders a UTC instant in the recipient's zone for
// message bodies. An empty or unknown zone falls back to the default.
func FormatInZone(utc time.Time, tz string) string {
	if tz == "" {
		tz = DefaultTimezone
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc, _ = time.LoadLocation(DefaultTimezone)
	}

	return utc.In(loc).Format("2006-01-02 15:04")
}

// TruncateToDate returns midnight of t's calendar date in loc.
func TruncateToDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// RuleWeekday maps time.Weekday (Sunday=0) to the stored
// 0=Monday..6=Sunday convention.
func RuleWeekday(wd time.Weekday) int {
	return (int(wd) + 6) % 7
}
