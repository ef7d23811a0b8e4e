package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	AWS      AWSConfig
	Webhook  WebhookConfig
	Token    TokenConfig
	Transfer TransferConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        int
	WriteTimeout       int
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/meetings?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// AWSConfig holds AWS credentials and the recordings bucket.
type AWSConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	RecordingsBucket string
}

// WebhookConfig holds the shared secret the meeting provider signs webhooks with.
type WebhookConfig struct {
	SecretToken string
}

// TokenConfig holds video SDK session token signing settings.
type TokenConfig struct {
	SDKKey      string
	SDKSecret   string
	ExpireHours int
}

// TransferConfig tunes the recording transfer pipeline.
type TransferConfig struct {
	Concurrency      int           // jobs processed at once, system-wide
	MaxAttempts      int           // total attempts per job before it is marked failed
	BackoffBase      time.Duration // first retry delay; doubles per retry
	FileTimeout      time.Duration // per-file download+upload budget
	RetentionWindow  time.Duration // completed/failed entries older than this are purged
	CompletedKept    int           // newest completed jobs retained
	FailedKept       int           // newest failed jobs retained
	FolderPrefix     string        // destination key prefix in the bucket
	BufferedUploads  bool          // use the buffered single-put strategy instead of streaming
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load() // .env

	readTimeout, _ := strconv.Atoi(getEnv("READ_TIMEOUT_SEC", "30"))
	writeTimeout, _ := strconv.Atoi(getEnv("WRITE_TIMEOUT_SEC", "30"))
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        readTimeout,
			WriteTimeout:       writeTimeout,
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "meetings"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			RecordingsBucket: getEnv("AWS_S3_RECORDINGS_BUCKET", "meeting-recordings-bucket"),
		},
		Webhook: WebhookConfig{
			SecretToken: getEnv("WEBHOOK_SECRET_TOKEN", ""),
		},
		Token: TokenConfig{
			SDKKey:      getEnv("VIDEO_SDK_KEY", ""),
			SDKSecret:   getEnv("VIDEO_SDK_SECRET", ""),
			ExpireHours: getEnvInt("VIDEO_TOKEN_EXPIRE_HOURS", 2),
		},
		Transfer: TransferConfig{
			Concurrency:     getEnvInt("TRANSFER_CONCURRENCY", 2),
			MaxAttempts:     getEnvInt("TRANSFER_MAX_ATTEMPTS", 3),
			BackoffBase:     getEnvDuration("TRANSFER_BACKOFF_BASE", 2*time.Second),
			FileTimeout:     getEnvDuration("TRANSFER_FILE_TIMEOUT", 300*time.Second),
			RetentionWindow: getEnvDuration("TRANSFER_RETENTION_WINDOW", 24*time.Hour),
			CompletedKept:   getEnvInt("TRANSFER_COMPLETED_KEPT", 100),
			FailedKept:      getEnvInt("TRANSFER_FAILED_KEPT", 50),
			FolderPrefix:    getEnv("TRANSFER_FOLDER_PREFIX", "recordings"),
			BufferedUploads: getEnvBool("TRANSFER_BUFFERED_UPLOADS", false),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			return true
		case "0", "false", "no":
			return false
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
