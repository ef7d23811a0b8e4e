package transfer

import (
	"testing"
	"time"
)

func TestDestinationKeyIdempotentSameDay(t *testing.T) {
	now := time.Date(2025, 6, 14, 10, 30, 0, 0, time.UTC)
	a := DestinationKey("recordings", "sess-abc", "shared_screen_with_speaker_view", "meeting.mp4", now)
	b := DestinationKey("recordings", "sess-abc", "shared_screen_with_speaker_view", "meeting.mp4", now.Add(5*time.Hour))
	if a != b {
		t.Fatalf("same-day keys differ: %q vs %q", a, b)
	}
	want := "recordings/2025-06-14/sess-abc/shared_screen_with_speaker_view/meeting.mp4"
	if a != want {
		t.Fatalf("key = %q, want %q", a, want)
	}
}

func TestDestinationKeyUsesUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 01:00 on the 15th in UTC+9 is still the 14th in UTC.
	now := time.Date(2025, 6, 15, 1, 0, 0, 0, loc)
	key := DestinationKey("recordings", "s", "audio_only", "a.m4a", now)
	want := "recordings/2025-06-14/s/audio_only/a.m4a"
	if key != want {
		t.Fatalf("key = %q, want %q", key, want)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"meeting.mp4", "meeting.mp4"},
		{"Weekly Sync (Q3).mp4", "Weekly_Sync__Q3_.mp4"},
		{"audio only.m4a", "audio_only.m4a"},
		{"../../etc/passwd", ".._.._etc_passwd"},
		{"видео.mp4", "_____.mp4"},
		{"", ""},
		{"ALL-good.File-1.txt", "ALL-good.File-1.txt"},
	}
	for _, c := range cases {
		if got := SanitizeFileName(c.in); got != c.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", c.in, got, c.want)
		}
		// Deterministic: a second pass yields the same result.
		if got := SanitizeFileName(SanitizeFileName(c.in)); got != c.want {
			t.Errorf("SanitizeFileName not stable for %q", c.in)
		}
	}
}

func TestContentTypeFor(t *testing.T) {
	cases := map[string]string{
		"rec.mp4":       "video/mp4",
		"rec.MP4":       "video/mp4",
		"audio.m4a":     "audio/m4a",
		"timeline.json": "application/json",
		"chat.txt":      "text/plain",
		"cc.vtt":        "text/vtt",
		"unknown.xyz":   "application/octet-stream",
		"noext":         "application/octet-stream",
	}
	for name, want := range cases {
		if got := ContentTypeFor(name); got != want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", name, got, want)
		}
	}
}
