package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "TEMP_DIR", "STORAGE_BACKEND", "OUTPUT_DIR", "RETENTION_TTL",
		"S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"GCS_BUCKET", "MINIO_ENDPOINT", "MINIO_BUCKET", "REDIS_ADDR",
		"WAVEFORM_MAX_POINTS", "LOG_FORMAT", "LOG_LEVEL", "LOG_FILE", "ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/audiocut", cfg.TempDir)
	assert.Equal(t, "yt-dlp", cfg.YTDLPPath)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 2000, cfg.WaveformMaxPoints)
	assert.Equal(t, "mp3", cfg.DefaultFormat)
	assert.Equal(t, BackendLocal, cfg.StorageBackend)
	assert.Equal(t, 24*time.Hour, cfg.RetentionTTL)
	assert.Equal(t, 10*time.Minute, cfg.MetadataCacheTTL)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.CacheEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("TEMP_DIR", "/custom/temp")
	t.Setenv("STORAGE_BACKEND", "S3")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test,http://b.test")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, BackendS3, cfg.StorageBackend)
	assert.Equal(t, "my-bucket", cfg.S3Bucket)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.True(t, cfg.CacheEnabled())
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_InvalidInteger(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-number")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_IncompleteBackend(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORAGE_BACKEND", "gcs")

	_, err := Load()
	require.ErrorIs(t, err, ErrGCSBucketRequired)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{"local", Config{StorageBackend: BackendLocal, WaveformMaxPoints: 2000}, nil},
		{"s3 complete", Config{StorageBackend: BackendS3, S3Bucket: "b", S3Region: "r", WaveformMaxPoints: 1}, nil},
		{"s3 missing region", Config{StorageBackend: BackendS3, S3Bucket: "b", WaveformMaxPoints: 1}, ErrS3ConfigRequired},
		{"gcs missing bucket", Config{StorageBackend: BackendGCS, WaveformMaxPoints: 1}, ErrGCSBucketRequired},
		{"minio missing endpoint", Config{StorageBackend: BackendMinIO, MinIOBucket: "b", WaveformMaxPoints: 1}, ErrMinIOConfigRequired},
		{"unknown backend", Config{StorageBackend: "ftp", WaveformMaxPoints: 1}, ErrUnknownStorageBackend},
		{"zero max points", Config{StorageBackend: BackendLocal}, ErrInvalidMaxPoints},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		StorageBackend:     BackendMinIO,
		MinIOSecretKey:     "minio-secret",
		AWSSecretAccessKey: "aws-secret",
		RedisPassword:      "redis-secret",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "minio")

	assert.NotContains(t, str, "minio-secret")
	assert.NotContains(t, str, "aws-secret")
	assert.NotContains(t, str, "redis-secret")
}

func TestConfig_NewLogger_JSON(t *testing.T) {
	cfg := &Config{LogFormat: "json", LogLevel: "info"}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Info("test message", slog.String("key", "value"))

	assert.Contains(t, buf.String(), `"msg":"test message"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestConfig_NewLogger_TextRespectsLevel(t *testing.T) {
	cfg := &Config{LogFormat: "text", LogLevel: "warn"}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "msg=shown")
}

func TestConfig_NewLogger_FileSink(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "audiocut.log")
	cfg := &Config{LogFormat: "text", LogLevel: "info", LogFile: logFile, LogMaxSizeMB: 1, LogMaxBackups: 1}

	var buf bytes.Buffer
	logger := cfg.NewLoggerTo(&buf)
	logger.Info("rotated")

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "rotated")
	assert.Contains(t, buf.String(), "rotated")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
