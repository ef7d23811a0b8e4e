// Package storage provides the S3-backed blob store recordings are
// transferred into.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// Upload strategies. Streaming is the canonical choice: multipart upload fed
// directly from the source reader, so memory stays bounded regardless of file
// size. Buffered reads the whole payload first and is acceptable only for
// small files and test fixtures.
type Strategy string

const (
	StrategyStreaming Strategy = "streaming"
	StrategyBuffered  Strategy = "buffered"
)

// Destination error classification, for callers deciding how to report a
// failed transfer.
var (
	ErrBucketNotFound = errors.New("storage: bucket not found")
	ErrAccessDenied   = errors.New("storage: access denied")
)

const uploadPartSize = 5 * 1024 * 1024

// S3Config holds S3 client configuration.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// S3 writes objects to a single recordings bucket.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	strategy Strategy
	logger   *zap.Logger
}

// NewS3 creates an S3 client using credentials from config or the environment
// (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, strategy Strategy, logger *zap.Logger) (*S3, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strategy == "" {
		strategy = StrategyStreaming
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
	} else {
		logger.Warn("S3 client using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = uploadPartSize
	})
	logger.Info("S3 client ready",
		zap.String("region", cfg.Region),
		zap.String("bucket", cfg.Bucket),
		zap.String("strategy", string(strategy)),
	)
	return &S3{client: client, uploader: uploader, cfg: cfg, strategy: strategy, logger: logger}, nil
}

// Bucket returns the recordings bucket name.
func (s *S3) Bucket() string { return s.cfg.Bucket }

// ObjectURL returns the public URL for an object key.
func (s *S3) ObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// Put writes one object from body using the configured strategy. size <= 0
// means unknown length. Returns the public object URL and the ETag.
func (s *S3) Put(ctx context.Context, key, contentType string, body io.Reader, size int64, metadata map[string]string) (string, string, error) {
	var etag *string
	var err error
	if s.strategy == StrategyBuffered {
		etag, err = s.putBuffered(ctx, key, contentType, body, metadata)
	} else {
		etag, err = s.putStreaming(ctx, key, contentType, body, size, metadata)
	}
	if err != nil {
		return "", "", classify(err)
	}
	return s.ObjectURL(key), aws.ToString(etag), nil
}

func (s *S3) putStreaming(ctx context.Context, key, contentType string, body io.Reader, size int64, metadata map[string]string) (*string, error) {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	out, err := s.uploader.Upload(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("streaming upload: %w", err)
	}
	return out.ETag, nil
}

func (s *S3) putBuffered(ctx context.Context, key, contentType string, body io.Reader, metadata map[string]string) (*string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("buffer source: %w", err)
	}
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("buffered upload: %w", err)
	}
	return out.ETag, nil
}

// classify wraps bucket-level S3 API errors with sentinel kinds so callers can
// tell configuration problems from transient ones.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket":
			return fmt.Errorf("%w: %s", ErrBucketNotFound, apiErr.ErrorMessage())
		case "AccessDenied":
			return fmt.Errorf("%w: %s", ErrAccessDenied, apiErr.ErrorMessage())
		}
	}
	return err
}
