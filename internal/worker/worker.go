// Package worker processes queued recording transfer jobs: validate the
// payload, fan the files out to the batch orchestrator, reconcile the outcome
// into the meeting record, and report a structured result.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/internal/transfer"
)

// ErrMeetingNotFound is returned by a Reconciler when no meeting record
// matches the durable meeting identifier. The job still succeeds; the files
// are already safely stored.
var ErrMeetingNotFound = errors.New("worker: meeting record not found")

// Reconciler updates the meeting record after a successful transfer. Optional:
// without one the reconcile stage is a no-op and results report
// databaseUpdated=false.
type Reconciler interface {
	ReconcileRecording(ctx context.Context, meetingName, status, recordingURL string) error
}

// BatchTransferer fans one job's files out to concurrent transfers.
// *transfer.Orchestrator implements it.
type BatchTransferer interface {
	TransferAll(ctx context.Context, files []models.RecordingFile, sessionID, authToken string) transfer.BatchResult
}

// Processor runs one transfer job through its stages:
// received -> validating -> uploading -> reconciling -> done.
type Processor struct {
	orchestrator BatchTransferer
	reconciler   Reconciler
	logger       *zap.Logger
	now          func() time.Time
}

// NewProcessor creates a job processor. reconciler may be nil.
func NewProcessor(orchestrator BatchTransferer, reconciler Reconciler, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{orchestrator: orchestrator, reconciler: reconciler, logger: logger, now: time.Now}
}

// Process executes one job. Predictable per-file failures are folded into the
// returned JobResult; an error return is reserved for job-fatal conditions
// (validation) that retrying cannot fix.
func (p *Processor) Process(ctx context.Context, payload models.TransferJobPayload) (*models.JobResult, error) {
	log := p.logger.With(
		zap.String("session_id", payload.SessionID),
		zap.String("session_name", payload.SessionName),
	)
	log.Debug("job stage", zap.String("stage", "validating"))

	if err := validate(payload); err != nil {
		log.Warn("job rejected", zap.Error(err))
		return nil, err
	}

	result := &models.JobResult{
		SessionID:         payload.SessionID,
		AccountID:         payload.AccountID,
		TotalFiles:        len(payload.Files),
		SuccessfulUploads: []models.UploadedFile{},
		FailedUploads:     []models.FailedUpload{},
	}

	if len(payload.Files) == 0 {
		// Nothing to transfer is not an error.
		result.ProcessingTime = p.now().UTC()
		log.Info("job completed with no files")
		return result, nil
	}

	log.Debug("job stage", zap.String("stage", "uploading"), zap.Int("files", len(payload.Files)))
	batch := p.transferAll(ctx, payload)
	if ctx.Err() != nil {
		// Shutdown or deadline cut the batch short; let the queue retry the
		// whole job rather than record a misleading partial result.
		return nil, fmt.Errorf("job interrupted: %w", ctx.Err())
	}

	for _, s := range batch.Successes {
		size := s.BytesTransferred
		if size <= 0 {
			size = s.File.FileSize
		}
		result.SuccessfulUploads = append(result.SuccessfulUploads, models.UploadedFile{
			S3URL:          s.URL,
			S3Key:          s.Key,
			OriginalFileID: s.File.ID,
			RecordingType:  s.File.RecordingType,
			FileSize:       size,
			Duration:       s.File.Duration,
		})
		result.TotalSize += size
		result.TotalDuration += s.File.Duration
	}
	for _, f := range batch.Failures {
		result.FailedUploads = append(result.FailedUploads, models.FailedUpload{
			FileID: f.FileID,
			Error:  f.Err.Error(),
		})
	}
	result.FilesProcessed = len(result.SuccessfulUploads)
	result.FailedFiles = len(result.FailedUploads)

	if result.FilesProcessed > 0 {
		log.Debug("job stage", zap.String("stage", "reconciling"))
		result.DatabaseUpdated = p.reconcile(ctx, payload, result, log)
	}

	result.ProcessingTime = p.now().UTC()
	log.Info("job done",
		zap.Int("processed", result.FilesProcessed),
		zap.Int("failed", result.FailedFiles),
		zap.Int64("total_bytes", result.TotalSize),
		zap.Bool("database_updated", result.DatabaseUpdated),
	)
	return result, nil
}

// transferAll shields the job from an orchestrator crash: a panic becomes an
// all-failed batch instead of blocking the worker pool.
func (p *Processor) transferAll(ctx context.Context, payload models.TransferJobPayload) (batch transfer.BatchResult) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("orchestrator crashed", zap.Any("panic", r), zap.String("session_id", payload.SessionID))
			batch = transfer.BatchResult{
				TotalFiles:  len(payload.Files),
				SessionID:   payload.SessionID,
				CompletedAt: p.now().UTC(),
			}
			for _, f := range payload.Files {
				batch.Failures = append(batch.Failures, transfer.FileFailure{
					FileID: f.ID,
					Err:    transfer.Errorf(transfer.KindUnexpected, "batch transfer crashed: %v", r),
				})
			}
		}
	}()
	return p.orchestrator.TransferAll(ctx, payload.Files, payload.SessionID, payload.DownloadToken)
}

// reconcile picks the primary upload and updates the meeting record. Failures
// here never fail the job: the files are already stored.
func (p *Processor) reconcile(ctx context.Context, payload models.TransferJobPayload, result *models.JobResult, log *zap.Logger) bool {
	if p.reconciler == nil {
		return false
	}
	if payload.SessionName == "" {
		log.Warn("no durable meeting identifier in payload, skipping reconciliation")
		return false
	}
	primary := selectPrimary(result.SuccessfulUploads)
	err := p.reconciler.ReconcileRecording(ctx, payload.SessionName, models.RecordingStatusCompleted, primary.S3URL)
	if err != nil {
		if errors.Is(err, ErrMeetingNotFound) {
			log.Warn("meeting record not found, recording metadata not linked")
		} else {
			log.Error("meeting record update failed", zap.Error(err))
		}
		return false
	}
	return true
}

// selectPrimary returns the upload that represents the meeting's canonical
// recording: the shared-screen-with-speaker composite when present, otherwise
// the first success.
func selectPrimary(uploads []models.UploadedFile) models.UploadedFile {
	for _, u := range uploads {
		if u.RecordingType == models.RecordingTypeSharedScreenWithSpeaker {
			return u
		}
	}
	return uploads[0]
}

func validate(payload models.TransferJobPayload) error {
	if payload.Event != models.EventRecordingCompleted {
		return transfer.Errorf(transfer.KindValidation, "unexpected event type %q", payload.Event)
	}
	if payload.SessionID == "" {
		return transfer.Errorf(transfer.KindValidation, "missing session id")
	}
	if payload.DownloadToken == "" {
		return transfer.Errorf(transfer.KindValidation, "missing download token")
	}
	return nil
}
