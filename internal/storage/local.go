package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// LocalStorage implements the Storage interface using local disk.
// Artifacts are copied below a base directory, mirroring their keys.
type LocalStorage struct {
	baseDir string
	now     func() time.Time
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance.
// The directory is created if it doesn't exist.
func NewLocalStorage(baseDir string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "output"
	}

	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0750); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	return &LocalStorage{baseDir: abs, now: time.Now}, nil
}

// BaseDir returns the absolute output directory.
func (s *LocalStorage) BaseDir() string {
	return s.baseDir
}

// PutFile copies localPath to the key below the base directory and returns
// the absolute destination path. The copy is written to a temporary file
// first so readers never see a partial artifact.
func (s *LocalStorage) PutFile(ctx context.Context, key, localPath string) (string, error) {
	select {
	case <-ctx.Done():
		return "", fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	dst := s.pathFor(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}

	src, err := os.Open(localPath) // #nosec G304 - path is provided by trusted caller
	if err != nil {
		return "", fmt.Errorf("open artifact: %w", err)
	}
	defer func() { _ = src.Close() }()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload_*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("move artifact into place: %w", err)
	}

	return dst, nil
}

// Delete removes the artifact stored under key.
func (s *LocalStorage) Delete(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	if err := os.Remove(s.pathFor(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", key, err)
	}
	return nil
}

// Sweep deletes artifacts last modified more than ttl ago and prunes
// directories left empty. It returns the number of files removed.
func (s *LocalStorage) Sweep(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)
	removed := 0
	var dirs []string

	err := filepath.WalkDir(s.baseDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if p != s.baseDir {
				dirs = append(dirs, p)
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("sweep %s: %w", s.baseDir, err)
	}

	// deepest first, so parents empty out after their children
	for i := len(dirs) - 1; i >= 0; i-- {
		_ = os.Remove(dirs[i]) // fails harmlessly when not empty
	}
	return removed, nil
}

// StartRetention runs Sweep every interval until ctx is done.
func (s *LocalStorage) StartRetention(ctx context.Context, ttl, interval time.Duration, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.Sweep(ctx, ttl)
				if err != nil {
					logger.Warn("artifact sweep failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					logger.Info("expired artifacts removed", slog.Int("count", n))
				}
			}
		}
	}()
	logger.Info("artifact retention started",
		slog.Duration("ttl", ttl),
		slog.Duration("interval", interval),
	)
}

func (s *LocalStorage) pathFor(key string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(cleanKey(key)))
}
