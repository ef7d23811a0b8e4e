package transfer

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nimbusmeet/backend/pkg/storage"
)

// BlobStore is the destination side of a transfer. pkg/storage.S3 implements
// it; tests substitute an in-memory store.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, body io.Reader, size int64, metadata map[string]string) (url, etag string, err error)
}

// Request describes one file to move from the provider into object storage.
type Request struct {
	SourceURL    string
	SessionID    string
	FileName     string
	FileType     string
	AuthToken    string
	DeclaredSize int64
}

// Result is a successful single-file transfer.
type Result struct {
	Key              string
	URL              string
	ETag             string
	BytesTransferred int64
}

// UploaderConfig tunes the single-file uploader.
type UploaderConfig struct {
	FolderPrefix string
	FileTimeout  time.Duration // budget for download+upload of one file
	SourceTag    string        // recorded in object metadata
}

// Uploader streams one remote recording file into the blob store without
// buffering it fully in memory. Failures come back as classified *Error
// values; the caller decides whether they are job-fatal.
type Uploader struct {
	store  BlobStore
	client *http.Client
	cfg    UploaderConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewUploader creates a single-file uploader.
func NewUploader(store BlobStore, cfg UploaderConfig, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.FileTimeout <= 0 {
		cfg.FileTimeout = 300 * time.Second
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = "meeting-webhook"
	}
	return &Uploader{
		store:  store,
		client: &http.Client{},
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Transfer moves one file. The source is either a bearer-token HTTP resource
// or an inline data: resource (fixtures only). The whole operation is bounded
// by the configured per-file timeout; a timeout fails only this file.
func (u *Uploader) Transfer(ctx context.Context, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, u.cfg.FileTimeout)
	defer cancel()

	body, size, err := u.openSource(ctx, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	key := DestinationKey(u.cfg.FolderPrefix, req.SessionID, req.FileType, req.FileName, u.now())
	counted := &countingReader{r: body}
	metadata := map[string]string{
		"session-id":    req.SessionID,
		"file-type":     req.FileType,
		"original-name": req.FileName,
		"uploaded-at":   u.now().UTC().Format(time.RFC3339),
		"source":        u.cfg.SourceTag,
		"declared-size": fmt.Sprintf("%d", req.DeclaredSize),
	}

	url, etag, err := u.store.Put(ctx, key, ContentTypeFor(req.FileName), counted, size, metadata)
	if err != nil {
		return nil, u.classifyPutError(err)
	}

	u.logger.Info("file transferred",
		zap.String("session_id", req.SessionID),
		zap.String("key", key),
		zap.Int64("bytes", counted.n),
	)
	return &Result{Key: key, URL: url, ETag: etag, BytesTransferred: counted.n}, nil
}

// openSource returns a reader over the source payload and its length when
// known (<= 0 means unknown).
func (u *Uploader) openSource(ctx context.Context, req Request) (io.ReadCloser, int64, error) {
	if strings.HasPrefix(req.SourceURL, "data:") {
		data, err := decodeDataURL(req.SourceURL)
		if err != nil {
			return nil, 0, NewError(KindUnexpected, err)
		}
		return io.NopCloser(strings.NewReader(data)), int64(len(data)), nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.SourceURL, nil)
	if err != nil {
		return nil, 0, Errorf(KindUnexpected, "create request: %w", err)
	}
	if req.AuthToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.AuthToken)
	}
	resp, err := u.client.Do(httpReq)
	if err != nil {
		return nil, 0, Errorf(KindSourceNetwork, "download %s: %w", req.FileName, err)
	}
	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		resp.Body.Close()
		return nil, 0, Errorf(KindSourceAuth, "download %s: status %d (token expired or invalid)", req.FileName, resp.StatusCode)
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, Errorf(KindSourceNotFound, "download %s: source no longer available", req.FileName)
	default:
		resp.Body.Close()
		return nil, 0, Errorf(KindUnexpected, "download %s: status %d", req.FileName, resp.StatusCode)
	}

	size := resp.ContentLength
	if size <= 0 {
		size = req.DeclaredSize
	}
	return resp.Body, size, nil
}

func (u *Uploader) classifyPutError(err error) error {
	switch {
	case errors.Is(err, storage.ErrBucketNotFound):
		return NewError(KindDestinationNotFound, err)
	case errors.Is(err, storage.ErrAccessDenied):
		return NewError(KindDestinationAccess, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Errorf(KindSourceNetwork, "transfer timed out: %w", err)
	default:
		return NewError(KindUnexpected, err)
	}
}

// decodeDataURL decodes data:[mediatype][;base64],payload resources.
func decodeDataURL(raw string) (string, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return "", fmt.Errorf("malformed data url")
	}
	if strings.HasSuffix(meta, ";base64") {
		decoded, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return "", fmt.Errorf("decode data url: %w", err)
		}
		return string(decoded), nil
	}
	return payload, nil
}
