package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/ytdlp"
)

// Prober defines the interface for looking up metadata of a URL.
type Prober interface {
	Probe(ctx context.Context, url string) (*Record, error)
}

// YTDLPProber implements Prober by asking yt-dlp for the info JSON without
// downloading media.
type YTDLPProber struct {
	runner *ytdlp.Runner
}

var _ Prober = (*YTDLPProber)(nil)

// NewYTDLPProber creates a new YTDLPProber.
func NewYTDLPProber(runner *ytdlp.Runner) *YTDLPProber {
	return &YTDLPProber{runner: runner}
}

// Probe implements Prober.Probe.
func (p *YTDLPProber) Probe(ctx context.Context, url string) (*Record, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperr.New(apperr.ErrInput, "probe", "url is required")
	}

	out, err := p.runner.Run(ctx, url,
		"--dump-single-json",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
		"-f", "bestaudio[ext=m4a]/bestaudio/best",
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrProbe, "probe", err)
	}

	var info map[string]any
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, apperr.Wrap(apperr.ErrProbe, "probe", fmt.Errorf("parse yt-dlp output: %w", err))
	}

	return BuildRecord(url, info), nil
}

// Cache stores records by URL.
type Cache interface {
	// Get returns the cached record, or false on a miss.
	Get(ctx context.Context, url string) (*Record, bool, error)
	Set(ctx context.Context, url string, rec *Record) error
}

// CachedProber serves records from a Cache and falls through to the wrapped
// Prober on a miss. Cache failures are logged, never returned.
type CachedProber struct {
	next   Prober
	cache  Cache
	logger *slog.Logger
}

var _ Prober = (*CachedProber)(nil)

// NewCachedProber wraps next with cache. A nil logger discards output.
func NewCachedProber(next Prober, cache Cache, logger *slog.Logger) *CachedProber {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CachedProber{next: next, cache: cache, logger: logger}
}

// Probe implements Prober.Probe.
func (p *CachedProber) Probe(ctx context.Context, url string) (*Record, error) {
	rec, ok, err := p.cache.Get(ctx, url)
	switch {
	case err != nil:
		p.logger.Warn("Metadata cache read failed", slog.String("url", url), slog.String("error", err.Error()))
	case ok:
		p.logger.Debug("Metadata cache hit", slog.String("url", url))
		return rec, nil
	}

	rec, err = p.next.Probe(ctx, url)
	if err != nil {
		return nil, err
	}

	if err := p.cache.Set(ctx, url, rec); err != nil {
		p.logger.Warn("Metadata cache write failed", slog.String("url", url), slog.String("error", err.Error()))
	}
	return rec, nil
}
