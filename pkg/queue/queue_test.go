package queue

import (
	"testing"
	"time"
)

func TestBackoffDelayDoublesPerAttempt(t *testing.T) {
	base := 2 * time.Second
	want := []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	for i, w := range want {
		if got := BackoffDelay(base, i+1); got != w {
			t.Errorf("BackoffDelay(2s, %d) = %v, want %v", i+1, got, w)
		}
	}
}

func TestBackoffDelayClampsAttempt(t *testing.T) {
	if got := BackoffDelay(time.Second, 0); got != time.Second {
		t.Errorf("BackoffDelay(1s, 0) = %v, want 1s", got)
	}
	if got := BackoffDelay(time.Second, -3); got != time.Second {
		t.Errorf("BackoffDelay(1s, -3) = %v, want 1s", got)
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	if o.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", o.MaxAttempts)
	}
	if o.BackoffBase != 2*time.Second {
		t.Errorf("BackoffBase = %v, want 2s", o.BackoffBase)
	}
	if o.CompletedKept != 100 || o.FailedKept != 50 {
		t.Errorf("retention caps = %d/%d, want 100/50", o.CompletedKept, o.FailedKept)
	}
	if o.Retention != 24*time.Hour {
		t.Errorf("Retention = %v, want 24h", o.Retention)
	}
	if o.KeyPrefix != "transfer" {
		t.Errorf("KeyPrefix = %q, want transfer", o.KeyPrefix)
	}
}

func TestOptionsExplicitValuesKept(t *testing.T) {
	o := Options{KeyPrefix: "x", MaxAttempts: 5, BackoffBase: time.Millisecond, CompletedKept: 7, FailedKept: 3, Retention: time.Minute}.withDefaults()
	if o.MaxAttempts != 5 || o.BackoffBase != time.Millisecond || o.CompletedKept != 7 || o.FailedKept != 3 || o.Retention != time.Minute || o.KeyPrefix != "x" {
		t.Errorf("explicit options were overridden: %+v", o)
	}
}
