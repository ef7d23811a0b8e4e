package models

// Webhook event types sent by the meeting provider.
const (
	EventRecordingCompleted = "session.recording_completed"
	EventURLValidation      = "endpoint.url_validation"
)

// Recording file types. SharedScreenWithSpeaker is the composite view preferred
// as the meeting's canonical recording.
const (
	RecordingTypeSharedScreenWithSpeaker = "shared_screen_with_speaker_view"
	RecordingTypeAudioOnly               = "audio_only"
	RecordingTypeTimeline                = "timeline"
)

// RecordingFile is one media artifact announced by the provider webhook.
// Immutable once the transfer job is enqueued.
type RecordingFile struct {
	ID             string `json:"id"`
	RecordingType  string `json:"recording_type"`
	FileName       string `json:"file_name"`
	FileSize       int64  `json:"file_size"`
	DownloadURL    string `json:"download_url"`
	RecordingStart string `json:"recording_start"`
	RecordingEnd   string `json:"recording_end"`
	Duration       int    `json:"duration"`
}

// WebhookObject is the session object inside the webhook payload.
// SessionID is transient per recording session; SessionName is the durable
// meeting identifier used for database lookup.
type WebhookObject struct {
	SessionID      string          `json:"session_id"`
	SessionName    string          `json:"session_name"`
	RecordingFiles []RecordingFile `json:"recording_files"`
}

// WebhookPayload is the inner payload of a provider webhook event.
type WebhookPayload struct {
	AccountID  string        `json:"account_id"`
	Object     WebhookObject `json:"object"`
	PlainToken string        `json:"plainToken,omitempty"` // endpoint.url_validation only
}

// WebhookEvent is the provider webhook envelope.
type WebhookEvent struct {
	Event         string         `json:"event"`
	EventTS       int64          `json:"event_ts"`
	Payload       WebhookPayload `json:"payload"`
	DownloadToken string         `json:"download_token"`
}
