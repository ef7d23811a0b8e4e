package transfer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/internal/models"
)

// FileUploader is the single-file transfer contract the orchestrator fans out
// to. *Uploader implements it.
type FileUploader interface {
	Transfer(ctx context.Context, req Request) (*Result, error)
}

// FileSuccess is one transferred file with enough of the original metadata for
// downstream aggregation.
type FileSuccess struct {
	File             models.RecordingFile
	Key              string
	URL              string
	ETag             string
	BytesTransferred int64
}

// FileFailure is one file that could not be transferred.
type FileFailure struct {
	FileID string
	Err    error
}

// BatchResult aggregates every file's outcome for one session. Always
// len(Successes)+len(Failures) == TotalFiles.
type BatchResult struct {
	Successes   []FileSuccess
	Failures    []FileFailure
	TotalFiles  int
	SessionID   string
	CompletedAt time.Time
}

// Orchestrator transfers all files of a job concurrently with settle-all
// semantics: every file's outcome is collected, no fail-fast, and TransferAll
// itself never returns an error.
type Orchestrator struct {
	uploader FileUploader
	logger   *zap.Logger
}

// NewOrchestrator creates a batch orchestrator.
func NewOrchestrator(uploader FileUploader, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{uploader: uploader, logger: logger}
}

// TransferAll issues one transfer per file concurrently and collects every
// outcome. Outcomes are appended in completion order, not input order.
func (o *Orchestrator) TransferAll(ctx context.Context, files []models.RecordingFile, sessionID, authToken string) BatchResult {
	result := BatchResult{
		TotalFiles: len(files),
		SessionID:  sessionID,
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, f := range files {
		wg.Add(1)
		go func(file models.RecordingFile) {
			defer wg.Done()
			res, err := o.transferOne(ctx, file, sessionID, authToken)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failures = append(result.Failures, FileFailure{FileID: file.ID, Err: err})
				return
			}
			result.Successes = append(result.Successes, FileSuccess{
				File:             file,
				Key:              res.Key,
				URL:              res.URL,
				ETag:             res.ETag,
				BytesTransferred: res.BytesTransferred,
			})
		}(f)
	}
	wg.Wait()

	result.CompletedAt = time.Now().UTC()
	o.logger.Info("batch transfer settled",
		zap.String("session_id", sessionID),
		zap.Int("total", result.TotalFiles),
		zap.Int("succeeded", len(result.Successes)),
		zap.Int("failed", len(result.Failures)),
	)
	return result
}

// transferOne shields the batch from a panicking uploader: the panic becomes
// this file's failure, siblings keep running.
func (o *Orchestrator) transferOne(ctx context.Context, file models.RecordingFile, sessionID, authToken string) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = Errorf(KindUnexpected, "transfer panic for file %s: %v", file.ID, r)
		}
	}()
	res, err = o.uploader.Transfer(ctx, Request{
		SourceURL:    file.DownloadURL,
		SessionID:    sessionID,
		FileName:     file.FileName,
		FileType:     file.RecordingType,
		AuthToken:    authToken,
		DeclaredSize: file.FileSize,
	})
	if err != nil {
		o.logger.Warn("file transfer failed",
			zap.String("session_id", sessionID),
			zap.String("file_id", file.ID),
			zap.String("kind", string(KindOf(err))),
			zap.Error(err),
		)
		return nil, fmt.Errorf("file %s: %w", file.ID, err)
	}
	return res, nil
}
