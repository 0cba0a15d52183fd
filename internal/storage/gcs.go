package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSConfig holds the configuration for Google Cloud Storage.
type GCSConfig struct {
	Bucket          string
	Prefix          string // Optional: prepended to every object name
	CredentialsFile string // Optional: application default credentials otherwise
	Endpoint        string // Optional: emulator or test endpoint
}

// GCSStorage publishes artifacts to a Google Cloud Storage bucket.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

var _ Storage = (*GCSStorage)(nil)

// NewGCSStorage creates a new GCSStorage instance.
func NewGCSStorage(ctx context.Context, cfg GCSConfig) (*GCSStorage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create GCS client: %w", err)
	}

	return &GCSStorage{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// PutFile uploads localPath and returns a gs:// location.
func (s *GCSStorage) PutFile(ctx context.Context, key, localPath string) (string, error) {
	f, err := os.Open(localPath) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	// cancelling the writer's context aborts the upload without committing it
	uploadCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	name := s.objectName(key)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(uploadCtx)
	w.ContentType = contentType(localPath)

	if _, err := io.Copy(w, f); err != nil {
		cancel()
		return "", fmt.Errorf("upload to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize GCS upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, name), nil
}

// Delete removes the object stored under key.
func (s *GCSStorage) Delete(ctx context.Context, key string) error {
	err := s.client.Bucket(s.bucket).Object(s.objectName(key)).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("delete from GCS: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func (s *GCSStorage) objectName(key string) string {
	key = cleanKey(key)
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}
