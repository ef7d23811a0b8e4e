package models

import (
	"time"

	"github.com/google/uuid"
)

// Meeting lifecycle statuses.
const (
	MeetingStatusScheduled = "scheduled"
	MeetingStatusLive      = "live"
	MeetingStatusEnded     = "ended"
)

// Recording statuses stored on the meeting record.
const (
	RecordingStatusCompleted = "completed"
)

// Meeting is the durable meeting record, keyed by MeetingName for webhook
// reconciliation (the provider carries it as session_name).
type Meeting struct {
	ID               uuid.UUID  `json:"id"`
	MeetingName      string     `json:"meeting_name"`
	Topic            string     `json:"topic"`
	Status           string     `json:"status"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	DurationSeconds  int64      `json:"duration_seconds"`
	ActuallyHappened bool       `json:"actually_happened"`
	RecordingStatus  string     `json:"recording_status,omitempty"`
	RecordingURL     string     `json:"recording_url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// Participant tracks one attendee's join/leave within a meeting.
type Participant struct {
	ID              uuid.UUID  `json:"id"`
	MeetingID       uuid.UUID  `json:"meeting_id"`
	ParticipantID   string     `json:"participant_id"`
	DisplayName     string     `json:"display_name,omitempty"`
	JoinedAt        time.Time  `json:"joined_at"`
	LeftAt          *time.Time `json:"left_at,omitempty"`
	AttendedSeconds int64      `json:"attended_seconds"`
}
