package recordings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/pkg/queue"
)

type fakeEnqueuer struct {
	calls    int
	payload  models.TransferJobPayload
	opts     queue.EnqueueOptions
	fail     error
	returnID string
}

func (f *fakeEnqueuer) Enqueue(ctx context.Context, payload interface{}, opts queue.EnqueueOptions) (*queue.Job, error) {
	f.calls++
	f.payload = payload.(models.TransferJobPayload)
	f.opts = opts
	if f.fail != nil {
		return nil, f.fail
	}
	id := f.returnID
	if id == "" {
		id = "job-1"
	}
	raw, _ := json.Marshal(payload)
	return &queue.Job{ID: id, Payload: raw, State: "waiting"}, nil
}

func newWebhookRouter(q Enqueuer, events *EventLog, secret string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	h := NewWebhookHandler(q, events, secret, nil)
	r.POST("/api/webhooks/recordings", h.HandleEvent)
	return r
}

func postWebhook(t *testing.T, r *gin.Engine, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/recordings", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func completedEvent() models.WebhookEvent {
	return models.WebhookEvent{
		Event:         models.EventRecordingCompleted,
		EventTS:       1718360000000,
		DownloadToken: "dl-token",
		Payload: models.WebhookPayload{
			AccountID: "acct-1",
			Object: models.WebhookObject{
				SessionID:   "sess-abc",
				SessionName: "weekly-standup",
				RecordingFiles: []models.RecordingFile{
					{ID: "f1", RecordingType: models.RecordingTypeSharedScreenWithSpeaker, FileName: "view.mp4", DownloadURL: "https://cdn.example.com/view.mp4"},
				},
			},
		},
	}
}

func TestWebhookURLValidationChallenge(t *testing.T) {
	q := &fakeEnqueuer{}
	r := newWebhookRouter(q, NewEventLog(10), "s3cret")

	body, _ := json.Marshal(models.WebhookEvent{
		Event:   models.EventURLValidation,
		Payload: models.WebhookPayload{PlainToken: "qgg8vlvZRS6UYooatFL8Aw"},
	})
	w := postWebhook(t, r, body, nil)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var resp struct {
		PlainToken     string `json:"plainToken"`
		EncryptedToken string `json:"encryptedToken"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.PlainToken != "qgg8vlvZRS6UYooatFL8Aw" {
		t.Errorf("plainToken = %q", resp.PlainToken)
	}
	if want := signHMAC("s3cret", "qgg8vlvZRS6UYooatFL8Aw"); resp.EncryptedToken != want {
		t.Errorf("encryptedToken = %q, want %q", resp.EncryptedToken, want)
	}
	if q.calls != 0 {
		t.Errorf("challenge must not enqueue, got %d calls", q.calls)
	}
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	q := &fakeEnqueuer{}
	r := newWebhookRouter(q, NewEventLog(10), "s3cret")
	body, _ := json.Marshal(completedEvent())

	cases := []struct {
		name    string
		headers map[string]string
	}{
		{"missing headers", nil},
		{"wrong signature", map[string]string{"x-timestamp": "1718360000", "x-signature": "v0=deadbeef"}},
	}
	for _, c := range cases {
		w := postWebhook(t, r, body, c.headers)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", c.name, w.Code)
		}
	}
	if q.calls != 0 {
		t.Errorf("rejected webhooks must not enqueue, got %d calls", q.calls)
	}
}

func TestWebhookAcceptsSignedEvent(t *testing.T) {
	q := &fakeEnqueuer{}
	events := NewEventLog(10)
	r := newWebhookRouter(q, events, "s3cret")
	body, _ := json.Marshal(completedEvent())

	ts := "1718360000"
	sig := "v0=" + signHMAC("s3cret", fmt.Sprintf("v0:%s:%s", ts, body))
	w := postWebhook(t, r, body, map[string]string{"x-timestamp": ts, "x-signature": sig})

	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if q.calls != 1 {
		t.Fatalf("enqueue calls = %d, want 1", q.calls)
	}
	p := q.payload
	if p.SessionID != "sess-abc" || p.SessionName != "weekly-standup" {
		t.Errorf("payload session = %s/%s", p.SessionID, p.SessionName)
	}
	if p.DownloadToken != "dl-token" || p.AccountID != "acct-1" {
		t.Errorf("payload auth fields = %s/%s", p.DownloadToken, p.AccountID)
	}
	if len(p.Files) != 1 || p.Files[0].ID != "f1" {
		t.Errorf("payload files = %+v", p.Files)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			JobID string `json:"job_id"`
			Files int    `json:"files"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success || resp.Data.JobID != "job-1" || resp.Data.Files != 1 {
		t.Errorf("response = %+v", resp)
	}

	recent := events.Recent()
	if len(recent) != 1 {
		t.Fatalf("event log len = %d, want 1", len(recent))
	}
	if recent[0].JobID != "job-1" || recent[0].SessionName != "weekly-standup" || recent[0].FileCount != 1 {
		t.Errorf("logged event = %+v", recent[0])
	}
}

func TestWebhookNoSecretSkipsVerification(t *testing.T) {
	q := &fakeEnqueuer{}
	r := newWebhookRouter(q, NewEventLog(10), "")
	body, _ := json.Marshal(completedEvent())

	w := postWebhook(t, r, body, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", w.Code, w.Body.String())
	}
	if q.calls != 1 {
		t.Errorf("enqueue calls = %d, want 1", q.calls)
	}
}

func TestWebhookIgnoresOtherEvents(t *testing.T) {
	q := &fakeEnqueuer{}
	r := newWebhookRouter(q, NewEventLog(10), "")
	body, _ := json.Marshal(models.WebhookEvent{Event: "session.started"})

	w := postWebhook(t, r, body, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if q.calls != 0 {
		t.Errorf("ignored event must not enqueue, got %d calls", q.calls)
	}
}

func TestWebhookValidation(t *testing.T) {
	noFiles := completedEvent()
	noFiles.Payload.Object.RecordingFiles = nil
	noSession := completedEvent()
	noSession.Payload.Object.SessionID = ""

	cases := []struct {
		name  string
		event models.WebhookEvent
	}{
		{"no files", noFiles},
		{"no session id", noSession},
	}
	for _, c := range cases {
		q := &fakeEnqueuer{}
		r := newWebhookRouter(q, NewEventLog(10), "")
		body, _ := json.Marshal(c.event)
		w := postWebhook(t, r, body, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", c.name, w.Code)
		}
		if q.calls != 0 {
			t.Errorf("%s: invalid event must not enqueue", c.name)
		}
	}
}
