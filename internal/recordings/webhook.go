package recordings

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/internal/models"
	"github.com/nimbusmeet/backend/pkg/queue"
	"github.com/nimbusmeet/backend/pkg/response"
)

// Enqueuer puts transfer jobs on the durable queue. Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload interface{}, opts queue.EnqueueOptions) (*queue.Job, error)
}

// WebhookHandler handles recording webhooks from the meeting provider.
type WebhookHandler struct {
	queue  Enqueuer
	events *EventLog
	secret string
	logger *zap.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables
// signature verification (local development). A nil events log gets a
// default-capacity one.
func NewWebhookHandler(q Enqueuer, events *EventLog, secret string, logger *zap.Logger) *WebhookHandler {
	if events == nil {
		events = NewEventLog(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookHandler{queue: q, events: events, secret: secret, logger: logger}
}

func signHMAC(secret string, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks the provider's x-signature header: the hex HMAC-SHA256
// of "v0:{timestamp}:{body}" prefixed with "v0=".
func (h *WebhookHandler) verifySignature(c *gin.Context, body []byte) bool {
	if h.secret == "" {
		return true
	}
	ts := c.GetHeader("x-timestamp")
	sig := c.GetHeader("x-signature")
	if ts == "" || sig == "" {
		return false
	}
	want := "v0=" + signHMAC(h.secret, fmt.Sprintf("v0:%s:%s", ts, body))
	return hmac.Equal([]byte(sig), []byte(want))
}

// HandleEvent handles POST /api/webhooks/recordings. Answers the provider's
// URL validation challenge, verifies the request signature when a secret is
// configured, and enqueues a transfer job for completed recordings.
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		response.BadRequest(c, "failed to read request body")
		return
	}

	var event models.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.BadRequest(c, "invalid webhook payload: "+err.Error())
		return
	}

	// The validation challenge is answered before signature checks so that a
	// freshly configured endpoint can complete provider verification.
	if event.Event == models.EventURLValidation {
		plain := event.Payload.PlainToken
		if plain == "" {
			response.BadRequest(c, "plainToken required")
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"plainToken":     plain,
			"encryptedToken": signHMAC(h.secret, plain),
		})
		return
	}

	if !h.verifySignature(c, body) {
		h.logger.Warn("webhook signature rejected", zap.String("event", event.Event))
		response.Unauthorized(c, "invalid webhook signature")
		return
	}

	if event.Event != models.EventRecordingCompleted {
		h.logger.Info("ignoring webhook event", zap.String("event", event.Event))
		c.JSON(http.StatusOK, gin.H{"success": true, "status": "ignored"})
		return
	}

	obj := event.Payload.Object
	if obj.SessionID == "" {
		response.BadRequest(c, "session_id required")
		return
	}
	if len(obj.RecordingFiles) == 0 {
		response.BadRequest(c, "recording_files required")
		return
	}

	job, err := h.queue.Enqueue(c.Request.Context(), models.TransferJobPayload{
		Event:         event.Event,
		SessionID:     obj.SessionID,
		SessionName:   obj.SessionName,
		AccountID:     event.Payload.AccountID,
		DownloadToken: event.DownloadToken,
		Files:         obj.RecordingFiles,
		EnqueuedAt:    time.Now().UTC(),
	}, queue.EnqueueOptions{})
	if err != nil {
		h.logger.Error("enqueue transfer job failed", zap.Error(err), zap.String("session_id", obj.SessionID))
		response.Internal(c, "failed to enqueue transfer job")
		return
	}

	h.events.Append(Event{
		ReceivedAt:  time.Now().UTC(),
		EventType:   event.Event,
		SessionID:   obj.SessionID,
		SessionName: obj.SessionName,
		FileCount:   len(obj.RecordingFiles),
		JobID:       job.ID,
	})

	h.logger.Info("recording webhook accepted",
		zap.String("job_id", job.ID),
		zap.String("session_id", obj.SessionID),
		zap.Int("files", len(obj.RecordingFiles)))
	response.Accepted(c, gin.H{"job_id": job.ID, "files": len(obj.RecordingFiles)})
}
