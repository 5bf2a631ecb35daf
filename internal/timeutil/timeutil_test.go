package timeutil

import (
	"errors"
	"testing"
	"time"

	"tutor-service/pkg/response"
)

func TestToUTC_FixedOffsetZone(t *testing.T) {
	// Europe/Moscow is UTC+3 year round: 10:00 local is 07:00 UTC.
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	got, err := ToUTC("Europe/Moscow", day, "10:00")
	if err != nil {
		t.Fatalf("ToUTC: %v", err)
	}

	want := time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestToUTC_DSTTransition(t *testing.T) {
	tests := []struct {
		name string
		day  time.Time
		want time.Time
	}{
		{
			// Berlin is CET (UTC+1) in January.
			name: "winter",
			day:  time.Date(2026, 1, 12, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC),
		},
		{
			// And CEST (UTC+2) in July; same wall clock, different instant.
			name: "summer",
			day:  time.Date(2026, 7, 13, 0, 0, 0, 0, time.UTC),
			want: time.Date(2026, 7, 13, 8, 0, 0, 0, time.UTC),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ToUTC("Europe/Berlin", tc.day, "10:00")
			if err != nil {
				t.Fatalf("ToUTC: %v", err)
			}
			if !got.Equal(tc.want) {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestToUTC_InvalidZone(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	_, err := ToUTC("Mars/Olympus", day, "10:00")
	if !errors.Is(err, response.ErrConfiguration) {
		t.Errorf("want ErrConfiguration, got %v", err)
	}
}

func TestToUTC_InvalidTime(t *testing.T) {
	day := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

	if _, err := ToUTC("Europe/Moscow", day, "25:99"); err == nil {
		t.Error("want error for invalid local time")
	}
}

func TestFormatInZone(t *testing.T) {
	utc := time.Date(2026, 1, 5, 7, 0, 0, 0, time.UTC)

	if got := FormatInZone(utc, "Europe/Moscow"); got != "2026-01-05 10:00" {
		t.Errorf("moscow: got %q", got)
	}
	if got := FormatInZone(utc, ""); got != "2026-01-05 10:00" {
		t.Errorf("default zone: got %q", got)
	}
	if got := FormatInZone(utc, "Bad/Zone"); got != "2026-01-05 10:00" {
		t.Errorf("fallback zone: got %q", got)
	}
}

func TestRuleWeekday(t *testing.T) {
	if got := RuleWeekday(time.Monday); got != 0 {
		t.Errorf("Monday: got %d, want 0", got)
	}
	if got := RuleWeekday(time.Sunday); got != 6 {
		t.Errorf("Sunday: got %d, want 6", got)
	}
}
