package media

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrUnsupportedFormat is returned for output formats without a codec entry.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Codec describes how ffmpeg encodes one output format.
type Codec struct {
	// Format is the file extension without the dot.
	Format string
	// Encoder is the ffmpeg audio encoder name.
	Encoder string
	// Bitrate is passed as -b:a for lossy encoders.
	Bitrate string
	// Muxer forces the ffmpeg output format when the extension is ambiguous.
	Muxer string
}

var codecs = map[string]Codec{
	"mp3":  {Format: "mp3", Encoder: "libmp3lame", Bitrate: "192k"},
	"wav":  {Format: "wav", Encoder: "pcm_s16le"},
	"flac": {Format: "flac", Encoder: "flac"},
	"m4a":  {Format: "m4a", Encoder: "aac", Bitrate: "192k", Muxer: "ipod"},
	"ogg":  {Format: "ogg", Encoder: "libvorbis", Bitrate: "192k"},
}

// CodecFor returns the codec for a format name such as "mp3" or ".FLAC".
func CodecFor(format string) (Codec, error) {
	key := strings.ToLower(strings.TrimPrefix(format, "."))
	c, ok := codecs[key]
	if !ok {
		return Codec{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	return c, nil
}

// SupportedFormats lists the accepted output formats in sorted order.
func SupportedFormats() []string {
	formats := make([]string, 0, len(codecs))
	for f := range codecs {
		formats = append(formats, f)
	}
	slices.Sort(formats)
	return formats
}

// args returns the ffmpeg output arguments for the codec.
func (c Codec) args() []string {
	args := []string{"-vn", "-c:a", c.Encoder}
	if c.Bitrate != "" {
		args = append(args, "-b:a", c.Bitrate)
	}
	if c.Muxer != "" {
		args = append(args, "-f", c.Muxer)
	}
	return args
}
