// Package audio decodes downloaded audio into sample buffers and splits it
// into independently encoded segments.
package audio

import "math"

// Buffer is decoded mono audio with samples normalized to [-1, 1].
type Buffer struct {
	Samples    []float64
	SampleRate int
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	return len(b.Samples)
}

// Duration returns the buffer length in seconds.
func (b *Buffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(len(b.Samples)) / float64(b.SampleRate)
}

// DurationMs returns the buffer length in whole milliseconds, rounded.
func (b *Buffer) DurationMs() int64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return int64(math.Round(float64(len(b.Samples)) * 1000 / float64(b.SampleRate)))
}

// Peak returns the largest sample value (not the largest magnitude).
// An empty buffer has a peak of 0.
func (b *Buffer) Peak() float64 {
	if len(b.Samples) == 0 {
		return 0
	}
	peak := b.Samples[0]
	for _, s := range b.Samples[1:] {
		if s > peak {
			peak = s
		}
	}
	return peak
}
