package audio

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/media"
)

// Static errors for decoding.
var (
	// ErrInvalidWAV is returned when a file does not carry a readable WAV header.
	ErrInvalidWAV = errors.New("invalid wav file")
	// ErrEmptyAudio is returned when decoding produced no samples.
	ErrEmptyAudio = errors.New("decoded audio is empty")
)

// Decoder turns an audio file into a mono sample buffer.
type Decoder interface {
	// Decode decodes src at its native sample rate. The intermediate PCM WAV
	// is written inside workDir and its path returned alongside the buffer,
	// so later steps can cut from it without decoding again.
	Decode(ctx context.Context, src, workDir string) (*Buffer, string, error)
}

// WAVDecoder decodes through ffmpeg into 16-bit PCM WAV and reads the result
// with go-audio/wav.
type WAVDecoder struct {
	processor media.Processor
}

var _ Decoder = (*WAVDecoder)(nil)

// NewWAVDecoder creates a WAVDecoder.
func NewWAVDecoder(processor media.Processor) *WAVDecoder {
	return &WAVDecoder{processor: processor}
}

// Decode implements Decoder.
func (d *WAVDecoder) Decode(ctx context.Context, src, workDir string) (*Buffer, string, error) {
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	wavPath := filepath.Join(workDir, base+".decoded.wav")

	if err := d.processor.DecodeToWAV(ctx, src, wavPath); err != nil {
		_ = os.Remove(wavPath)
		return nil, "", apperr.Wrap(apperr.ErrDecode, "decode", err)
	}

	buf, err := ReadWAV(wavPath)
	if err != nil {
		return nil, "", apperr.Wrap(apperr.ErrDecode, "decode", err)
	}
	return buf, wavPath, nil
}

// ReadWAV reads an integer PCM WAV file into a mono buffer. Multi-channel
// files are averaged down to one channel.
func ReadWAV(path string) (*Buffer, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted internal code
	if err != nil {
		return nil, fmt.Errorf("open wav: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWAV, filepath.Base(path))
	}

	pcm, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	if pcm == nil || pcm.Format == nil || len(pcm.Data) == 0 {
		return nil, ErrEmptyAudio
	}

	channels := pcm.Format.NumChannels
	if channels < 1 {
		channels = 1
	}
	depth := int(dec.BitDepth)
	if depth <= 0 {
		depth = 16
	}
	scale := math.Pow(2, float64(depth-1))

	frames := len(pcm.Data) / channels
	samples := make([]float64, frames)
	for i := range frames {
		var sum float64
		for c := range channels {
			sum += float64(pcm.Data[i*channels+c])
		}
		samples[i] = sum / float64(channels) / scale
	}

	return &Buffer{Samples: samples, SampleRate: pcm.Format.SampleRate}, nil
}
