// Package server provides the HTTP server for the audiocut API.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"strings"

	"github.com/maauso/audiocut-api/internal/audio"
	"github.com/maauso/audiocut-api/internal/waveform"
)

// normalizer is implemented by requests that clean up their fields before
// validation.
type normalizer interface {
	normalize()
}

// HomeResponse is the HTTP response for the root endpoint.
type HomeResponse struct {
	Message string `json:"message"`
}

// MetadataRequest is the HTTP request body for a metadata lookup.
type MetadataRequest struct {
	URL string `json:"url" validate:"required"`
}

// ResolveRequest is the HTTP request body for stream resolution.
type ResolveRequest struct {
	URL string `json:"url" validate:"required"`
}

// ProcessAudioRequest is the HTTP request body for waveform processing.
type ProcessAudioRequest struct {
	URL string `json:"url" validate:"required"`
	// SplitPoints are drawn as markers on the waveform image.
	SplitPoints []float64 `json:"split_points"`
}

// ProcessAudioResponse is the HTTP response for waveform processing.
type ProcessAudioResponse struct {
	Success      bool            `json:"success"`
	WaveformData waveform.Series `json:"waveform_data"`
	// WaveformImage is a PNG data URI.
	WaveformImage string  `json:"waveform_image"`
	Duration      float64 `json:"duration"`
	// FilePath is where the normalized source audio was published.
	FilePath string `json:"file_path"`
}

// SplitAudioRequest is the HTTP request body for splitting.
type SplitAudioRequest struct {
	URL         string    `json:"url" validate:"required"`
	SplitPoints []float64 `json:"split_points" validate:"required,min=1"`
	// Format is the segment format. Default: mp3.
	Format string `json:"format" validate:"omitempty,oneof=mp3 wav flac m4a ogg"`
}

func (r *SplitAudioRequest) normalize() {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
}

// ExtractSegmentRequest is the HTTP request body for extracting one range.
type ExtractSegmentRequest struct {
	URL       string   `json:"url" validate:"required"`
	StartTime *float64 `json:"start_time" validate:"required,gte=0"`
	EndTime   *float64 `json:"end_time" validate:"required,gte=0"`
	// Format is the output format. Default: mp3.
	Format string `json:"format" validate:"omitempty,oneof=mp3 wav flac m4a ogg"`
}

func (r *ExtractSegmentRequest) normalize() {
	r.Format = strings.ToLower(strings.TrimSpace(r.Format))
}

// ExtractSegmentResponse is the HTTP response for range extraction.
type ExtractSegmentResponse struct {
	Success bool          `json:"success"`
	Segment audio.Segment `json:"segment"`
}

// SplitAudioResponse is the HTTP response for splitting.
type SplitAudioResponse struct {
	Success  bool            `json:"success"`
	Segments []audio.Segment `json:"segments"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
