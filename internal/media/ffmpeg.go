package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrInvalidRange is returned when a segment has a negative start or no length.
	ErrInvalidRange = errors.New("invalid range: start must be >= 0 and duration > 0")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// FFmpegProcessor implements Processor using the ffmpeg CLI.
type FFmpegProcessor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

var _ Processor = (*FFmpegProcessor)(nil)

// Option configures an FFmpegProcessor.
type Option func(*FFmpegProcessor)

// WithFFprobePath overrides the ffprobe binary.
func WithFFprobePath(path string) Option {
	return func(p *FFmpegProcessor) {
		if path != "" {
			p.ffprobePath = path
		}
	}
}

// NewFFmpegProcessor creates a new FFmpegProcessor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
func NewFFmpegProcessor(ffmpegPath string, opts ...Option) *FFmpegProcessor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	p := &FFmpegProcessor{ffmpegPath: ffmpegPath, ffprobePath: "ffprobe"}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Transcode re-encodes src into dst with the given codec.
func (p *FFmpegProcessor) Transcode(ctx context.Context, src, dst string, codec Codec) error {
	args := []string{"-y", "-i", src}
	args = append(args, codec.args()...)
	args = append(args, dst)
	return p.runFFmpeg(ctx, args)
}

// DecodeToWAV writes a mono 16-bit PCM WAV of src to dst at the source sample rate.
func (p *FFmpegProcessor) DecodeToWAV(ctx context.Context, src, dst string) error {
	args := []string{
		"-y",
		"-i", src,
		"-vn",
		"-ac", "1", // downmix by averaging channels
		"-c:a", "pcm_s16le",
		"-f", "wav",
		dst,
	}
	return p.runFFmpeg(ctx, args)
}

// ExtractSegment encodes [start, start+duration) seconds of src into dst.
// Seeking after -i keeps the cut sample accurate on PCM input.
func (p *FFmpegProcessor) ExtractSegment(ctx context.Context, src, dst string, start, duration float64, codec Codec) error {
	if start < 0 || duration <= 0 {
		return fmt.Errorf("%w: start=%.3f, duration=%.3f", ErrInvalidRange, start, duration)
	}

	args := []string{
		"-y",
		"-i", src,
		"-ss", formatSeconds(start),
		"-t", formatSeconds(duration),
	}
	args = append(args, codec.args()...)
	args = append(args, dst)
	return p.runFFmpeg(ctx, args)
}

// runFFmpeg executes ffmpeg with the given arguments and returns an error
// containing stderr output if the command fails.
func (p *FFmpegProcessor) runFFmpeg(ctx context.Context, args []string) error {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, append([]string{"-hide_banner", "-nostdin"}, args...)...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		// Check if context was cancelled
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, lastLines(e.Stderr, 5))
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// GetMediaDuration returns the duration in seconds of a media file.
// It uses ffprobe to extract the duration metadata.
func (p *FFmpegProcessor) GetMediaDuration(ctx context.Context, path string) (float64, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() != nil {
			return 0, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return 0, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	duration, err := strconv.ParseFloat(strings.TrimSpace(stdout.String()), 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration: %w", err)
	}

	return duration, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}

// lastLines keeps the tail of ffmpeg's stderr, which is where the actual error is.
func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
