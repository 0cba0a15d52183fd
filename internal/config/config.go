// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Static errors for configuration validation.
var (
	// ErrUnknownStorageBackend is returned when STORAGE_BACKEND names an unsupported backend.
	ErrUnknownStorageBackend = errors.New("config: STORAGE_BACKEND must be one of local, s3, gcs, minio")
	// ErrS3ConfigRequired is returned when the s3 backend is selected without bucket and region.
	ErrS3ConfigRequired = errors.New("config: S3_BUCKET and S3_REGION are required for the s3 backend")
	// ErrGCSBucketRequired is returned when the gcs backend is selected without a bucket.
	ErrGCSBucketRequired = errors.New("config: GCS_BUCKET is required for the gcs backend")
	// ErrMinIOConfigRequired is returned when the minio backend is missing endpoint or bucket.
	ErrMinIOConfigRequired = errors.New("config: MINIO_ENDPOINT and MINIO_BUCKET are required for the minio backend")
	// ErrInvalidMaxPoints is returned when WAVEFORM_MAX_POINTS is not positive.
	ErrInvalidMaxPoints = errors.New("config: WAVEFORM_MAX_POINTS must be positive")
)

// Storage backends.
const (
	BackendLocal = "local"
	BackendS3    = "s3"
	BackendGCS   = "gcs"
	BackendMinIO = "minio"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int           `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`
	WriteTimeout   time.Duration `env:"WRITE_TIMEOUT, default=10m" json:"write_timeout"`

	// External tools
	YTDLPPath   string `env:"YTDLP_PATH, default=yt-dlp" json:"ytdlp_path"`
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Processing settings
	TempDir           string `env:"TEMP_DIR, default=/tmp/audiocut" json:"temp_dir"`
	WaveformMaxPoints int    `env:"WAVEFORM_MAX_POINTS, default=2000" json:"waveform_max_points"`
	DefaultFormat     string `env:"DEFAULT_FORMAT, default=mp3" json:"default_format"`

	// Artifact storage
	StorageBackend string        `env:"STORAGE_BACKEND, default=local" json:"storage_backend"`
	OutputDir      string        `env:"OUTPUT_DIR, default=output" json:"output_dir"`
	RetentionTTL   time.Duration `env:"RETENTION_TTL, default=24h" json:"retention_ttl"`

	// S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// GCS settings
	GCSBucket          string `env:"GCS_BUCKET" json:"gcs_bucket,omitempty"`
	GCSPrefix          string `env:"GCS_PREFIX" json:"gcs_prefix,omitempty"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE" json:"-"`

	// MinIO settings
	MinIOEndpoint  string `env:"MINIO_ENDPOINT" json:"minio_endpoint,omitempty"`
	MinIOBucket    string `env:"MINIO_BUCKET" json:"minio_bucket,omitempty"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" json:"-"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" json:"-"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL, default=false" json:"minio_use_ssl"`

	// Metadata cache
	RedisAddr        string        `env:"REDIS_ADDR" json:"redis_addr,omitempty"`
	RedisPassword    string        `env:"REDIS_PASSWORD" json:"-"`
	RedisDB          int           `env:"REDIS_DB, default=0" json:"redis_db"`
	MetadataCacheTTL time.Duration `env:"METADATA_CACHE_TTL, default=10m" json:"metadata_cache_ttl"`

	// Logging settings
	LogFormat     string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel      string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
	LogFile       string `env:"LOG_FILE" json:"log_file,omitempty"`
	LogMaxSizeMB  int    `env:"LOG_MAX_SIZE_MB, default=50" json:"log_max_size_mb"`
	LogMaxBackups int    `env:"LOG_MAX_BACKUPS, default=3" json:"log_max_backups"`
}

// CacheEnabled returns true if a Redis address is configured.
func (c *Config) CacheEnabled() bool {
	return c.RedisAddr != ""
}

// Load reads configuration from environment variables using go-envconfig.
// A .env file in the working directory is loaded first when present;
// variables already set in the environment take precedence over it.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.StorageBackend = strings.ToLower(cfg.StorageBackend)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the selected storage backend has everything it needs.
func (c *Config) Validate() error {
	if c.WaveformMaxPoints <= 0 {
		return ErrInvalidMaxPoints
	}

	switch c.StorageBackend {
	case BackendLocal, "":
		return nil
	case BackendS3:
		if c.S3Bucket == "" || c.S3Region == "" {
			return ErrS3ConfigRequired
		}
	case BackendGCS:
		if c.GCSBucket == "" {
			return ErrGCSBucketRequired
		}
	case BackendMinIO:
		if c.MinIOEndpoint == "" || c.MinIOBucket == "" {
			return ErrMinIOConfigRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorageBackend, c.StorageBackend)
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs. When LogFile is set,
// records are also written to a size-rotated file.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with a custom console writer.
func (c *Config) NewLoggerTo(out io.Writer) *slog.Logger {
	if c.LogFile != "" {
		out = io.MultiWriter(out, &lumberjack.Logger{
			Filename:   c.LogFile,
			MaxSize:    c.LogMaxSizeMB,
			MaxBackups: c.LogMaxBackups,
			Compress:   true,
		})
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, StorageBackend: %s, OutputDir: %s, WaveformMaxPoints: %d, DefaultFormat: %s, RedisAddr: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.StorageBackend,
		c.OutputDir,
		c.WaveformMaxPoints,
		c.DefaultFormat,
		c.RedisAddr,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
