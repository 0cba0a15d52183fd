// Package processing provides the use cases behind the HTTP API and the CLI:
// metadata lookup, waveform rendering and audio splitting.
package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/audio"
	"github.com/maauso/audiocut-api/internal/downloader"
	"github.com/maauso/audiocut-api/internal/media"
	"github.com/maauso/audiocut-api/internal/metadata"
	"github.com/maauso/audiocut-api/internal/storage"
	"github.com/maauso/audiocut-api/internal/waveform"
)

// Renderer turns a decoded buffer into a PNG data URI.
type Renderer interface {
	Render(buf *audio.Buffer, splitPoints []float64) (string, error)
}

var _ Renderer = (*waveform.Renderer)(nil)

// Components are the collaborators a Service orchestrates.
type Components struct {
	Fetcher   downloader.Fetcher
	Prober    metadata.Prober
	Resolver  metadata.Resolver
	Decoder   audio.Decoder
	Splitter  audio.Splitter
	Processor media.Processor
	Renderer  Renderer
	Storage   storage.Storage
}

// ProcessInput contains the input parameters for waveform processing.
type ProcessInput struct {
	URL string
	// SplitPoints are drawn as markers on the image. Optional.
	SplitPoints []float64
}

// ProcessOutput contains the result of waveform processing.
type ProcessOutput struct {
	Waveform waveform.Series
	// Image is a PNG data URI.
	Image string
	// Duration in seconds as reported by the fetcher, or of the decoded
	// audio when the fetcher reports none.
	Duration float64
	// FilePath is where the normalized source audio was published.
	FilePath string
	Title    string
}

// SplitInput contains the input parameters for splitting.
type SplitInput struct {
	URL         string
	SplitPoints []float64
	// Format of the segments. Default: the service default format.
	Format string
	// OnProgress, when set, is called after each segment is encoded.
	OnProgress func(done, total int)
}

// SplitOutput contains the published segments.
type SplitOutput struct {
	Segments []audio.Segment
}

// ExtractInput selects one range of the audio at URL.
type ExtractInput struct {
	URL string
	// Start and End are in seconds. End is clamped to the audio duration.
	Start  float64
	End    float64
	Format string
}

// ExtractOutput contains the published range.
type ExtractOutput struct {
	Segment audio.Segment
}

// Service runs each request in its own workspace, which is removed before
// the call returns. Every returned error carries an apperr class.
type Service struct {
	fetcher       downloader.Fetcher
	prober        metadata.Prober
	resolver      metadata.Resolver
	decoder       audio.Decoder
	splitter      audio.Splitter
	processor     media.Processor
	renderer      Renderer
	store         storage.Storage
	workRoot      string
	maxPoints     int
	defaultFormat string
	logger        *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithWorkRoot sets the directory request workspaces are created in.
func WithWorkRoot(dir string) Option {
	return func(s *Service) {
		s.workRoot = dir
	}
}

// WithMaxPoints sets the waveform series cap.
func WithMaxPoints(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPoints = n
		}
	}
}

// WithDefaultFormat sets the segment format used when a request names none.
func WithDefaultFormat(format string) Option {
	return func(s *Service) {
		if format != "" {
			s.defaultFormat = format
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new Service.
func NewService(c Components, opts ...Option) *Service {
	s := &Service{
		fetcher:       c.Fetcher,
		prober:        c.Prober,
		resolver:      c.Resolver,
		decoder:       c.Decoder,
		splitter:      c.Splitter,
		processor:     c.Processor,
		renderer:      c.Renderer,
		store:         c.Storage,
		maxPoints:     waveform.DefaultMaxPoints,
		defaultFormat: "mp3",
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Metadata looks up descriptive information about url without downloading
// it.
func (s *Service) Metadata(ctx context.Context, url string) (*metadata.Record, error) {
	if err := requireURL(url); err != nil {
		return nil, err
	}

	rec, err := s.prober.Probe(ctx, url)
	if err != nil {
		s.logFailure("metadata", url, err)
		return nil, apperr.Wrap(apperr.ErrProbe, "metadata", err)
	}
	return rec, nil
}

// Resolve finds a stream for url that a player can fetch directly.
func (s *Service) Resolve(ctx context.Context, url string) (*metadata.Resolution, error) {
	if err := requireURL(url); err != nil {
		return nil, err
	}

	res, err := s.resolver.Resolve(ctx, url)
	if err != nil {
		s.logFailure("resolve", url, err)
		return nil, apperr.Wrap(apperr.ErrProbe, "resolve", err)
	}
	return res, nil
}

// ProcessAudio downloads url, computes the waveform series and image, and
// publishes the normalized source audio.
func (s *Service) ProcessAudio(ctx context.Context, in ProcessInput) (*ProcessOutput, error) {
	if err := requireURL(in.URL); err != nil {
		return nil, err
	}

	start := time.Now()
	out, err := withWorkspace(s, func(ws *storage.Workspace) (*ProcessOutput, error) {
		src, buf, _, err := s.fetchAndDecode(ctx, in.URL, ws)
		if err != nil {
			return nil, err
		}

		series := waveform.Downsample(buf, s.maxPoints)

		image, err := s.renderer.Render(buf, in.SplitPoints)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrRender, "render waveform", err)
		}

		key := storage.Key("sources", ws.ID(), filepath.Base(src.Path))
		location, err := s.store.PutFile(ctx, key, src.Path)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrStorage, "publish source", err)
		}

		duration := src.Duration
		if duration <= 0 {
			duration = buf.Duration()
		}

		return &ProcessOutput{
			Waveform: series,
			Image:    image,
			Duration: duration,
			FilePath: location,
			Title:    src.Title,
		}, nil
	})
	if err != nil {
		s.logFailure("process-audio", in.URL, err)
		return nil, err
	}

	s.logger.Info("Audio processed",
		slog.String("url", in.URL),
		slog.Float64("duration", out.Duration),
		slog.Int("points", len(out.Waveform.Times)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// SplitAudio downloads url, cuts it at the split points and publishes every
// segment. If publishing fails, segments already published are deleted.
func (s *Service) SplitAudio(ctx context.Context, in SplitInput) (*SplitOutput, error) {
	if err := requireURL(in.URL); err != nil {
		return nil, err
	}
	if len(in.SplitPoints) == 0 {
		return nil, apperr.New(apperr.ErrInput, "split-audio", "split_points is required")
	}

	format := strings.ToLower(in.Format)
	if format == "" {
		format = s.defaultFormat
	}
	if _, err := media.CodecFor(format); err != nil {
		return nil, apperr.Wrap(apperr.ErrInput, "split-audio", err)
	}

	start := time.Now()
	out, err := withWorkspace(s, func(ws *storage.Workspace) (*SplitOutput, error) {
		_, buf, wavPath, err := s.fetchAndDecode(ctx, in.URL, ws)
		if err != nil {
			return nil, err
		}

		segments, err := s.splitter.Split(ctx, wavPath, ws.Dir(), audio.SplitOpts{
			Points:     in.SplitPoints,
			DurationMs: buf.DurationMs(),
			Format:     format,
			OnProgress: in.OnProgress,
		})
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrEncode, "split", err)
		}

		if err := s.publishSegments(ctx, ws.ID(), segments); err != nil {
			return nil, err
		}
		return &SplitOutput{Segments: segments}, nil
	})
	if err != nil {
		s.logFailure("split-audio", in.URL, err)
		return nil, err
	}

	s.logger.Info("Audio split",
		slog.String("url", in.URL),
		slog.String("format", format),
		slog.Int("segments", len(out.Segments)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// ExtractRange downloads url and publishes the range [Start, End) as a
// single file.
func (s *Service) ExtractRange(ctx context.Context, in ExtractInput) (*ExtractOutput, error) {
	if err := requireURL(in.URL); err != nil {
		return nil, err
	}
	if math.IsNaN(in.Start) || math.IsNaN(in.End) || in.Start < 0 || in.End <= in.Start {
		return nil, apperr.New(apperr.ErrInput, "extract", "end_time must be greater than start_time, and start_time must not be negative")
	}

	format := strings.ToLower(in.Format)
	if format == "" {
		format = s.defaultFormat
	}
	codec, err := media.CodecFor(format)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInput, "extract", err)
	}

	start := time.Now()
	out, err := withWorkspace(s, func(ws *storage.Workspace) (*ExtractOutput, error) {
		src, err := s.fetcher.Fetch(ctx, in.URL, ws.Dir())
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrDownload, "download", err)
		}

		end := in.End
		if src.Duration > 0 {
			if in.Start >= src.Duration {
				return nil, apperr.New(apperr.ErrInput, "extract", fmt.Sprintf("start_time is past the end of the audio (%.1fs)", src.Duration))
			}
			end = math.Min(end, src.Duration)
		}

		filename := fmt.Sprintf("audio_selection_%.1f_to_%.1f.%s", in.Start, end, codec.Format)
		dst := ws.Path(filename)
		if err := s.processor.ExtractSegment(ctx, src.Path, dst, in.Start, end-in.Start, codec); err != nil {
			return nil, apperr.Wrap(apperr.ErrEncode, "extract", err)
		}

		location, err := s.store.PutFile(ctx, storage.Key("segments", ws.ID(), filename), dst)
		if err != nil {
			return nil, apperr.Wrap(apperr.ErrStorage, "publish range", err)
		}

		return &ExtractOutput{Segment: audio.Segment{
			Index:     1,
			StartTime: in.Start,
			EndTime:   end,
			Duration:  end - in.Start,
			Filename:  filename,
			TempPath:  location,
		}}, nil
	})
	if err != nil {
		s.logFailure("extract", in.URL, err)
		return nil, err
	}

	s.logger.Info("Range extracted",
		slog.String("url", in.URL),
		slog.String("file", out.Segment.Filename),
		slog.Duration("elapsed", time.Since(start)),
	)
	return out, nil
}

// publishSegments stores each segment and records its location in TempPath.
func (s *Service) publishSegments(ctx context.Context, workspaceID string, segments []audio.Segment) error {
	published := make([]string, 0, len(segments))
	for i := range segments {
		key := storage.Key("segments", workspaceID, segments[i].Filename)
		location, err := s.store.PutFile(ctx, key, segments[i].Path)
		if err != nil {
			s.rollback(published)
			return apperr.Wrap(apperr.ErrStorage, fmt.Sprintf("publish segment %d", segments[i].Index), err)
		}
		published = append(published, key)
		segments[i].TempPath = location
	}
	return nil
}

// rollback deletes published artifacts. It runs on a fresh context so a
// cancelled request still cleans up.
func (s *Service) rollback(keys []string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete published artifact",
				slog.String("key", key),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *Service) fetchAndDecode(ctx context.Context, url string, ws *storage.Workspace) (*downloader.Result, *audio.Buffer, string, error) {
	src, err := s.fetcher.Fetch(ctx, url, ws.Dir())
	if err != nil {
		return nil, nil, "", apperr.Wrap(apperr.ErrDownload, "download", err)
	}

	buf, wavPath, err := s.decoder.Decode(ctx, src.Path, ws.Dir())
	if err != nil {
		return nil, nil, "", apperr.Wrap(apperr.ErrDecode, "decode", err)
	}
	return src, buf, wavPath, nil
}

// withWorkspace runs fn inside a fresh workspace and removes it afterwards.
func withWorkspace[T any](s *Service, fn func(ws *storage.Workspace) (T, error)) (T, error) {
	var zero T
	ws, err := storage.NewWorkspace(s.workRoot)
	if err != nil {
		return zero, apperr.Wrap(apperr.ErrStorage, "workspace", err)
	}
	defer func() {
		if err := ws.Close(); err != nil {
			s.logger.Warn("Failed to remove workspace", slog.String("dir", ws.Dir()), slog.String("error", err.Error()))
		}
	}()
	return fn(ws)
}

func (s *Service) logFailure(op, url string, err error) {
	level := slog.LevelError
	if errors.Is(err, apperr.ErrInput) || errors.Is(err, context.Canceled) {
		level = slog.LevelWarn
	}
	s.logger.Log(context.Background(), level, "Request failed",
		slog.String("op", op),
		slog.String("url", url),
		slog.String("error", err.Error()),
	)
}

func requireURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return apperr.New(apperr.ErrInput, "validate", "url is required")
	}
	return nil
}
