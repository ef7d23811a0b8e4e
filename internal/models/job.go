package models

import "time"

// TransferJobPayload is the unit of queued work: transfer every recording file
// of one completed session into object storage.
type TransferJobPayload struct {
	Event         string          `json:"event"`
	SessionID     string          `json:"session_id"`
	SessionName   string          `json:"session_name"`
	AccountID     string          `json:"account_id"`
	DownloadToken string          `json:"download_token"`
	Files         []RecordingFile `json:"files"`
	EnqueuedAt    time.Time       `json:"enqueued_at"`
}

// UploadedFile describes one successfully transferred recording file.
type UploadedFile struct {
	S3URL          string `json:"s3Url"`
	S3Key          string `json:"s3Key"`
	OriginalFileID string `json:"originalFileId"`
	RecordingType  string `json:"recordingType"`
	FileSize       int64  `json:"fileSize"`
	Duration       int    `json:"duration"`
}

// FailedUpload describes one file that could not be transferred.
type FailedUpload struct {
	FileID string `json:"fileId"`
	Error  string `json:"error"`
}

// JobResult is the structured outcome of one transfer job. It is always
// produced, whether successes or failures are empty, and stored as the job's
// completion payload.
type JobResult struct {
	SessionID         string         `json:"sessionId"`
	AccountID         string         `json:"accountId"`
	FilesProcessed    int            `json:"filesProcessed"`
	FailedFiles       int            `json:"failedFiles"`
	TotalFiles        int            `json:"totalFiles"`
	SuccessfulUploads []UploadedFile `json:"successfulUploads"`
	FailedUploads     []FailedUpload `json:"failedUploads"`
	TotalSize         int64          `json:"totalSize"`
	TotalDuration     int            `json:"totalDuration"`
	ProcessingTime    time.Time      `json:"processingTime"`
	DatabaseUpdated   bool           `json:"databaseUpdated"`
}
