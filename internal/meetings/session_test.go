package meetings

import (
	"testing"
	"time"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestDurationSeconds(t *testing.T) {
	start := time.Date(2025, 6, 14, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name    string
		started *time.Time
		ended   *time.Time
		want    int64
	}{
		{"one hour", timePtr(start), timePtr(start.Add(time.Hour)), 3600},
		{"sub-second", timePtr(start), timePtr(start.Add(500 * time.Millisecond)), 0},
		{"never started", nil, timePtr(start), 0},
		{"never ended", timePtr(start), nil, 0},
		{"clock skew", timePtr(start), timePtr(start.Add(-time.Minute)), 0},
	}
	for _, c := range cases {
		if got := DurationSeconds(c.started, c.ended); got != c.want {
			t.Errorf("%s: DurationSeconds = %d, want %d", c.name, got, c.want)
		}
	}
}

func TestHappened(t *testing.T) {
	cases := []struct {
		joins    int
		duration int64
		want     bool
	}{
		{3, 3600, true},
		{1, 1, true},
		{0, 3600, false},
		{2, 0, false},
		{0, 0, false},
	}
	for _, c := range cases {
		if got := Happened(c.joins, c.duration); got != c.want {
			t.Errorf("Happened(%d, %d) = %v, want %v", c.joins, c.duration, got, c.want)
		}
	}
}
