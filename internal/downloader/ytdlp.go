package downloader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/media"
	"github.com/maauso/audiocut-api/internal/ytdlp"
)

// audioExtensions are the containers yt-dlp may deliver for audio streams.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".m4a":  true,
	".webm": true,
	".opus": true,
	".ogg":  true,
	".aac":  true,
	".flac": true,
	".wav":  true,
	".mp4":  true,
}

// YTDLPFetcher implements Fetcher with yt-dlp, normalizing the result to MP3
// through the media processor.
type YTDLPFetcher struct {
	runner    *ytdlp.Runner
	processor media.Processor
	logger    *slog.Logger
}

var _ Fetcher = (*YTDLPFetcher)(nil)

// Option configures a YTDLPFetcher.
type Option func(*YTDLPFetcher)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *YTDLPFetcher) {
		f.logger = logger
	}
}

// NewYTDLPFetcher creates a new YTDLPFetcher.
func NewYTDLPFetcher(runner *ytdlp.Runner, processor media.Processor, opts ...Option) *YTDLPFetcher {
	f := &YTDLPFetcher{
		runner:    runner,
		processor: processor,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// downloadInfo is the subset of the yt-dlp info JSON the fetcher reads.
type downloadInfo struct {
	Title              string  `json:"title"`
	Ext                string  `json:"ext"`
	Duration           float64 `json:"duration"`
	RequestedDownloads []struct {
		Filepath string `json:"filepath"`
	} `json:"requested_downloads"`
}

// Fetch implements Fetcher.Fetch.
func (f *YTDLPFetcher) Fetch(ctx context.Context, url, dir string) (*Result, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperr.Wrap(apperr.ErrInput, "fetch", ErrEmptyURL)
	}

	start := time.Now()
	out, err := f.runner.Run(ctx, url,
		"-f", "bestaudio/best",
		"--no-playlist",
		"--no-simulate",
		"--no-progress",
		"--restrict-filenames",
		"--dump-single-json",
		"-o", filepath.Join(dir, "%(title)s.%(ext)s"),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDownload, "fetch", err)
	}

	var info downloadInfo
	if err := json.Unmarshal(out, &info); err != nil {
		f.logger.Warn("Could not parse yt-dlp info", slog.String("url", url), slog.String("error", err.Error()))
	}

	path, err := locateDownload(dir, info)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrDownload, "fetch", err)
	}

	sourceFormat := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if sourceFormat != "mp3" {
		path, err = f.toMP3(ctx, path)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrDownload, "fetch", err)
		}
	}

	duration := info.Duration
	if duration <= 0 {
		duration = f.recoverDuration(ctx, path)
	}

	title := info.Title
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	f.logger.Info("Audio downloaded",
		slog.String("url", url),
		slog.String("file", filepath.Base(path)),
		slog.String("source_format", sourceFormat),
		slog.Float64("duration", duration),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &Result{
		Path:         path,
		Format:       "mp3",
		SourceFormat: sourceFormat,
		Title:        title,
		Duration:     duration,
	}, nil
}

// toMP3 transcodes src next to itself and removes the original. On failure
// neither the partial output nor the original is left behind.
func (f *YTDLPFetcher) toMP3(ctx context.Context, src string) (string, error) {
	codec, err := media.CodecFor("mp3")
	if err != nil {
		return "", err
	}

	dst := strings.TrimSuffix(src, filepath.Ext(src)) + ".mp3"
	if err := f.processor.Transcode(ctx, src, dst, codec); err != nil {
		_ = os.Remove(dst)
		_ = os.Remove(src)
		return "", fmt.Errorf("convert to mp3: %w", err)
	}

	if err := os.Remove(src); err != nil {
		f.logger.Warn("Failed to remove original download", slog.String("path", src), slog.String("error", err.Error()))
	}
	return dst, nil
}

// recoverDuration scans MP3 frames and falls back to ffprobe. It returns zero
// when both fail.
func (f *YTDLPFetcher) recoverDuration(ctx context.Context, path string) float64 {
	if d, err := media.MP3Duration(path); err == nil && d > 0 {
		return d
	}
	d, err := f.processor.GetMediaDuration(ctx, path)
	if err != nil {
		f.logger.Warn("Duration unknown", slog.String("path", path), slog.String("error", err.Error()))
		return 0
	}
	return d
}

// locateDownload prefers the path reported by yt-dlp and falls back to the
// newest audio file in dir.
func locateDownload(dir string, info downloadInfo) (string, error) {
	for _, rd := range info.RequestedDownloads {
		if rd.Filepath == "" {
			continue
		}
		if _, err := os.Stat(rd.Filepath); err == nil {
			return rd.Filepath, nil
		}
	}
	return findDownloadedFile(dir)
}

// findDownloadedFile returns the most recently modified audio file in dir.
func findDownloadedFile(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read download dir: %w", err)
	}

	var (
		newest  string
		newestT time.Time
	)
	for _, entry := range entries {
		if entry.IsDir() || !audioExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		if newest == "" || fi.ModTime().After(newestT) {
			newest = filepath.Join(dir, entry.Name())
			newestT = fi.ModTime()
		}
	}

	if newest == "" {
		return "", ErrNoAudioFiles
	}
	return newest, nil
}
