// Package media provides audio transcoding, decoding and probing on top of
// the ffmpeg and ffprobe command line tools.
package media

import "context"

// Processor defines the ffmpeg operations the audio pipeline depends on.
type Processor interface {
	// Transcode re-encodes src into dst using the given codec.
	// Video streams are dropped.
	Transcode(ctx context.Context, src, dst string, codec Codec) error

	// DecodeToWAV writes a mono 16-bit PCM WAV of src to dst, keeping the
	// source sample rate. Channels are averaged.
	DecodeToWAV(ctx context.Context, src, dst string) error

	// ExtractSegment encodes the range [start, start+duration) seconds of src
	// into dst using the given codec.
	ExtractSegment(ctx context.Context, src, dst string, start, duration float64, codec Codec) error

	// GetMediaDuration returns the container duration of path in seconds.
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}
