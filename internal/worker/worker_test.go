package worker

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/internal/transfer"
)

type fakeBatch struct {
	result   transfer.BatchResult
	panicMsg string
	calls    int
}

func (f *fakeBatch) TransferAll(ctx context.Context, files []models.RecordingFile, sessionID, authToken string) transfer.BatchResult {
	f.calls++
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.result
}

type fakeReconciler struct {
	err         error
	calls       int
	gotName     string
	gotStatus   string
	gotURL      string
}

func (f *fakeReconciler) ReconcileRecording(ctx context.Context, meetingName, status, recordingURL string) error {
	f.calls++
	f.gotName = meetingName
	f.gotStatus = status
	f.gotURL = recordingURL
	return f.err
}

func validPayload(files ...models.RecordingFile) models.TransferJobPayload {
	return models.TransferJobPayload{
		Event:         models.EventRecordingCompleted,
		SessionID:     "sess-1",
		SessionName:   "weekly-standup",
		AccountID:     "acct-1",
		DownloadToken: "tok",
		Files:         files,
		EnqueuedAt:    time.Now(),
	}
}

func successFor(f models.RecordingFile) transfer.FileSuccess {
	return transfer.FileSuccess{
		File:             f,
		Key:              "recordings/2025-06-14/sess-1/" + f.RecordingType + "/" + f.FileName,
		URL:              "https://blobs.test/" + f.FileName,
		BytesTransferred: f.FileSize,
	}
}

func TestProcessRejectsInvalidPayloads(t *testing.T) {
	p := NewProcessor(&fakeBatch{}, nil, nil)
	cases := []struct {
		name    string
		mutate  func(*models.TransferJobPayload)
	}{
		{"wrong event", func(pl *models.TransferJobPayload) { pl.Event = "session.ended" }},
		{"missing session id", func(pl *models.TransferJobPayload) { pl.SessionID = "" }},
		{"missing token", func(pl *models.TransferJobPayload) { pl.DownloadToken = "" }},
	}
	for _, c := range cases {
		pl := validPayload(models.RecordingFile{ID: "f1", FileName: "a.mp4"})
		c.mutate(&pl)
		_, err := p.Process(context.Background(), pl)
		if err == nil {
			t.Errorf("%s: expected error", c.name)
			continue
		}
		if transfer.KindOf(err) != transfer.KindValidation {
			t.Errorf("%s: kind = %s, want validation", c.name, transfer.KindOf(err))
		}
	}
}

func TestProcessZeroFilesSucceedsWithoutReconcile(t *testing.T) {
	rec := &fakeReconciler{}
	batch := &fakeBatch{}
	p := NewProcessor(batch, rec, nil)

	res, err := p.Process(context.Background(), validPayload())
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.FilesProcessed != 0 || res.FailedFiles != 0 || res.TotalFiles != 0 {
		t.Errorf("counts = %d/%d/%d, want 0/0/0", res.FilesProcessed, res.FailedFiles, res.TotalFiles)
	}
	if rec.calls != 0 {
		t.Errorf("reconciler called %d times for empty job", rec.calls)
	}
	if batch.calls != 0 {
		t.Errorf("orchestrator called %d times for empty job", batch.calls)
	}
	if res.DatabaseUpdated {
		t.Error("DatabaseUpdated = true for empty job")
	}
}

func TestProcessPrimarySelectionPrefersSharedScreen(t *testing.T) {
	timeline := models.RecordingFile{ID: "f-tl", RecordingType: models.RecordingTypeTimeline, FileName: "timeline.json", FileSize: 10}
	screen := models.RecordingFile{ID: "f-ss", RecordingType: models.RecordingTypeSharedScreenWithSpeaker, FileName: "screen.mp4", FileSize: 2048}

	// Timeline settles first; the composite view must still win.
	batch := &fakeBatch{result: transfer.BatchResult{
		Successes:  []transfer.FileSuccess{successFor(timeline), successFor(screen)},
		TotalFiles: 2,
		SessionID:  "sess-1",
	}}
	rec := &fakeReconciler{}
	p := NewProcessor(batch, rec, nil)

	res, err := p.Process(context.Background(), validPayload(timeline, screen))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.calls != 1 {
		t.Fatalf("reconciler calls = %d, want 1", rec.calls)
	}
	if rec.gotURL != "https://blobs.test/screen.mp4" {
		t.Errorf("primary url = %q, want the shared screen upload", rec.gotURL)
	}
	if rec.gotName != "weekly-standup" {
		t.Errorf("meeting name = %q, want weekly-standup", rec.gotName)
	}
	if rec.gotStatus != models.RecordingStatusCompleted {
		t.Errorf("status = %q, want completed", rec.gotStatus)
	}
	if !res.DatabaseUpdated {
		t.Error("DatabaseUpdated = false, want true")
	}
}

func TestProcessPrimaryFallsBackToFirstSuccess(t *testing.T) {
	audio := models.RecordingFile{ID: "f-a", RecordingType: models.RecordingTypeAudioOnly, FileName: "audio.m4a", FileSize: 64}
	batch := &fakeBatch{result: transfer.BatchResult{
		Successes:  []transfer.FileSuccess{successFor(audio)},
		TotalFiles: 1,
	}}
	rec := &fakeReconciler{}
	p := NewProcessor(batch, rec, nil)

	if _, err := p.Process(context.Background(), validPayload(audio)); err != nil {
		t.Fatalf("process: %v", err)
	}
	if rec.gotURL != "https://blobs.test/audio.m4a" {
		t.Errorf("primary url = %q, want first success", rec.gotURL)
	}
}

func TestProcessReconciliationFailureDoesNotFailJob(t *testing.T) {
	file := models.RecordingFile{ID: "f1", RecordingType: models.RecordingTypeAudioOnly, FileName: "a.m4a", FileSize: 100}
	batch := &fakeBatch{result: transfer.BatchResult{
		Successes:  []transfer.FileSuccess{successFor(file)},
		TotalFiles: 1,
	}}
	for _, recErr := range []error{errors.New("db down"), ErrMeetingNotFound} {
		rec := &fakeReconciler{err: recErr}
		p := NewProcessor(batch, rec, nil)

		res, err := p.Process(context.Background(), validPayload(file))
		if err != nil {
			t.Fatalf("reconciler error %v escalated to job failure: %v", recErr, err)
		}
		if res.DatabaseUpdated {
			t.Errorf("DatabaseUpdated = true despite reconciler error %v", recErr)
		}
		if res.FilesProcessed != 1 {
			t.Errorf("FilesProcessed = %d, want 1", res.FilesProcessed)
		}
	}
}

func TestProcessWithoutReconcilerReportsDatabaseNotUpdated(t *testing.T) {
	file := models.RecordingFile{ID: "f1", RecordingType: models.RecordingTypeAudioOnly, FileName: "a.m4a", FileSize: 100}
	batch := &fakeBatch{result: transfer.BatchResult{
		Successes:  []transfer.FileSuccess{successFor(file)},
		TotalFiles: 1,
	}}
	p := NewProcessor(batch, nil, nil)
	res, err := p.Process(context.Background(), validPayload(file))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.DatabaseUpdated {
		t.Error("DatabaseUpdated = true with no reconciler configured")
	}
}

func TestProcessOrchestratorPanicBecomesAllFailed(t *testing.T) {
	files := []models.RecordingFile{
		{ID: "f1", FileName: "a.mp4"},
		{ID: "f2", FileName: "b.m4a"},
	}
	p := NewProcessor(&fakeBatch{panicMsg: "total outage"}, &fakeReconciler{}, nil)

	res, err := p.Process(context.Background(), validPayload(files...))
	if err != nil {
		t.Fatalf("panic escaped as job error: %v", err)
	}
	if res.FailedFiles != 2 || res.FilesProcessed != 0 {
		t.Fatalf("counts = %d failed / %d processed, want 2/0", res.FailedFiles, res.FilesProcessed)
	}
	for _, f := range res.FailedUploads {
		if !strings.Contains(f.Error, "total outage") {
			t.Errorf("failure %s error = %q, want raised error", f.FileID, f.Error)
		}
	}
	if res.DatabaseUpdated {
		t.Error("DatabaseUpdated = true with zero successes")
	}
}

// blobSink is an in-memory BlobStore for the end-to-end scenario.
type blobSink struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (b *blobSink) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, metadata map[string]string) (string, string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", "", err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = make(map[string][]byte)
	}
	b.objects[key] = data
	return "https://recordings.test/" + key, `"e2e"`, nil
}

func TestProcessEndToEndPartialFailure(t *testing.T) {
	payload := bytes.Repeat([]byte("v"), 1024)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/good.mp4") {
			w.Write(payload)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer src.Close()

	uploader := transfer.NewUploader(&blobSink{}, transfer.UploaderConfig{
		FolderPrefix: "recordings",
		FileTimeout:  5 * time.Second,
	}, nil)
	orch := transfer.NewOrchestrator(uploader, nil)
	rec := &fakeReconciler{}
	p := NewProcessor(orch, rec, nil)

	files := []models.RecordingFile{
		{ID: "f-ok", RecordingType: models.RecordingTypeSharedScreenWithSpeaker, FileName: "good.mp4", FileSize: 1024, DownloadURL: src.URL + "/good.mp4", Duration: 1800},
		{ID: "f-bad", RecordingType: models.RecordingTypeAudioOnly, FileName: "gone.m4a", FileSize: 512, DownloadURL: src.URL + "/gone.m4a", Duration: 1800},
	}

	res, err := p.Process(context.Background(), validPayload(files...))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.FilesProcessed != 1 || res.FailedFiles != 1 || res.TotalFiles != 2 {
		t.Fatalf("counts = %d/%d/%d, want 1/1/2", res.FilesProcessed, res.FailedFiles, res.TotalFiles)
	}
	if len(res.SuccessfulUploads) != 1 {
		t.Fatalf("successfulUploads = %d, want 1", len(res.SuccessfulUploads))
	}
	up := res.SuccessfulUploads[0]
	if up.OriginalFileID != "f-ok" {
		t.Errorf("success id = %s, want f-ok", up.OriginalFileID)
	}
	if !strings.HasPrefix(up.S3URL, "https://recordings.test/recordings/") || !strings.HasSuffix(up.S3URL, "/good.mp4") {
		t.Errorf("s3 url = %q, want well-formed destination URL", up.S3URL)
	}
	if up.FileSize != 1024 {
		t.Errorf("fileSize = %d, want 1024", up.FileSize)
	}
	if len(res.FailedUploads) != 1 || res.FailedUploads[0].FileID != "f-bad" {
		t.Fatalf("failedUploads = %+v, want one entry for f-bad", res.FailedUploads)
	}
	if res.TotalSize != 1024 {
		t.Errorf("totalSize = %d, want 1024", res.TotalSize)
	}
	if !res.DatabaseUpdated || rec.gotURL != up.S3URL {
		t.Errorf("reconciled url = %q (updated=%v), want %q", rec.gotURL, res.DatabaseUpdated, up.S3URL)
	}
	if res.ProcessingTime.IsZero() {
		t.Error("processingTime not set")
	}
}
