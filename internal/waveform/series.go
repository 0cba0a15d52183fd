// Package waveform turns decoded audio into a lightweight amplitude series
// for clients and a rendered PNG preview.
package waveform

import "github.com/maauso/audiocut-api/internal/audio"

// DefaultMaxPoints caps the length of a Series.
const DefaultMaxPoints = 2000

// Series is a downsampled view of a buffer, suitable for client-side drawing.
type Series struct {
	Times          []float64 `json:"times"`
	Amplitudes     []float64 `json:"amplitudes"`
	Duration       float64   `json:"duration"`
	SampleRate     int       `json:"sample_rate"`
	OriginalLength int       `json:"original_length"`
}

// Downsample keeps every k-th sample, with k chosen so that at most
// maxPoints samples remain. Times are taken from an evenly spaced grid over
// [0, duration] spanning the full sample count.
func Downsample(buf *audio.Buffer, maxPoints int) Series {
	if maxPoints < 1 {
		maxPoints = DefaultMaxPoints
	}

	n := buf.Len()
	duration := buf.Duration()
	s := Series{
		Times:          []float64{},
		Amplitudes:     []float64{},
		Duration:       duration,
		SampleRate:     buf.SampleRate,
		OriginalLength: n,
	}
	if n == 0 {
		return s
	}

	stride := (n + maxPoints - 1) / maxPoints
	count := (n + stride - 1) / stride
	s.Times = make([]float64, 0, count)
	s.Amplitudes = make([]float64, 0, count)

	for i := 0; i < n; i += stride {
		s.Times = append(s.Times, timeAt(i, n, duration))
		s.Amplitudes = append(s.Amplitudes, buf.Samples[i])
	}
	return s
}

// timeAt maps sample index i of n onto [0, duration], endpoints included.
func timeAt(i, n int, duration float64) float64 {
	if n <= 1 {
		return 0
	}
	return float64(i) * duration / float64(n-1)
}
