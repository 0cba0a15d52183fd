package audio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/media"
)

// FFmpegSplitter implements Splitter by encoding each span with ffmpeg.
type FFmpegSplitter struct {
	processor media.Processor
	newName   func() string
}

var _ Splitter = (*FFmpegSplitter)(nil)

// NewFFmpegSplitter creates a new FFmpegSplitter.
func NewFFmpegSplitter(processor media.Processor) *FFmpegSplitter {
	return &FFmpegSplitter{
		processor: processor,
		newName:   func() string { return uuid.NewString() },
	}
}

// Split implements Splitter.Split.
func (s *FFmpegSplitter) Split(ctx context.Context, src, outputDir string, opts SplitOpts) ([]Segment, error) {
	format := opts.Format
	if format == "" {
		format = "mp3"
	}
	codec, err := media.CodecFor(format)
	if err != nil {
		return nil, apperr.Wrap(apperr.ErrInput, "split", err)
	}

	if _, err := os.Stat(src); err != nil {
		return nil, apperr.Wrap(apperr.ErrEncode, "split", fmt.Errorf("input file: %w", err))
	}

	spans := PlanSegments(opts.Points, opts.DurationMs)
	segments := make([]Segment, 0, len(spans))

	for i, span := range spans {
		start, end, length := span.Seconds()
		path := filepath.Join(outputDir, fmt.Sprintf("segment_%s.%s", s.newName(), codec.Format))

		if err := s.processor.ExtractSegment(ctx, src, path, start, length, codec); err != nil {
			_ = os.Remove(path)
			removeSegments(segments)
			return nil, apperr.Wrap(apperr.ErrEncode, fmt.Sprintf("split segment %d", i+1), err)
		}

		segments = append(segments, Segment{
			Index:     i + 1,
			StartTime: start,
			EndTime:   end,
			Duration:  length,
			Filename:  fmt.Sprintf("segment_%d.%s", i+1, codec.Format),
			Path:      path,
		})

		if opts.OnProgress != nil {
			opts.OnProgress(i+1, len(spans))
		}
	}

	return segments, nil
}

// removeSegments deletes the files of already written segments.
func removeSegments(segments []Segment) {
	for _, seg := range segments {
		_ = os.Remove(seg.Path)
	}
}
