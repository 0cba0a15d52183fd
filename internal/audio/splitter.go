package audio

import (
	"context"
	"math"
)

// SplitOpts configures a split.
type SplitOpts struct {
	// Points are the caller's cut positions in seconds, in the order given.
	// Points outside [0, duration] are ignored.
	Points []float64

	// DurationMs is the total length of the source in milliseconds.
	DurationMs int64

	// Format is the output format, e.g. "mp3" or "flac".
	// Default: "mp3".
	Format string

	// OnProgress, when set, is called after each segment is written.
	OnProgress func(done, total int)
}

// Segment describes one encoded piece of the source.
type Segment struct {
	Index     int     `json:"index"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Duration  float64 `json:"duration"`
	Filename  string  `json:"filename"`
	// TempPath is where the segment can be fetched from once published.
	TempPath string `json:"temp_path"`

	// Path is the file written during the split, local to the work directory.
	Path string `json:"-"`
}

// Span is a half-open millisecond range [StartMs, EndMs).
type Span struct {
	StartMs int64
	EndMs   int64
}

// Seconds returns the span bounds and length in seconds.
func (s Span) Seconds() (start, end, length float64) {
	start = float64(s.StartMs) / 1000
	end = float64(s.EndMs) / 1000
	return start, end, end - start
}

// Splitter defines the interface for cutting audio at caller-supplied points.
type Splitter interface {
	// Split encodes every planned span of src into its own file inside
	// outputDir. On error no segment file is left behind.
	Split(ctx context.Context, src, outputDir string, opts SplitOpts) ([]Segment, error)
}

// PlanSegments turns split points into ordered, non-overlapping spans
// covering [0, durationMs].
//
// Points are truncated to whole milliseconds. Points outside [0, duration]
// are dropped. A cut that does not move past the previous one is skipped, so
// duplicates and out-of-order points never produce empty or overlapping spans.
func PlanSegments(points []float64, durationMs int64) []Span {
	if durationMs <= 0 {
		return nil
	}
	duration := float64(durationMs) / 1000

	cuts := make([]int64, 0, len(points)+1)
	for _, p := range points {
		if math.IsNaN(p) || p < 0 || p > duration {
			continue
		}
		cuts = append(cuts, int64(p*1000))
	}
	cuts = append(cuts, durationMs)

	spans := make([]Span, 0, len(cuts))
	var start int64
	for _, cut := range cuts {
		if cut <= start {
			continue
		}
		spans = append(spans, Span{StartMs: start, EndMs: cut})
		start = cut
	}
	return spans
}
