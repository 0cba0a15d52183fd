// Package downloader fetches the audio stream behind a URL into a local
// directory.
package downloader

import (
	"context"
	"errors"
)

// Errors returned by fetchers.
var (
	ErrEmptyURL     = errors.New("url is required")
	ErrNoAudioFiles = errors.New("no audio file found after download")
)

// Result describes a downloaded audio file.
type Result struct {
	// Path is the local MP3 file.
	Path string
	// Format is the container of Path, always "mp3" after normalization.
	Format string
	// SourceFormat is the container yt-dlp delivered before normalization.
	SourceFormat string
	Title        string
	// Duration in seconds; zero when it could not be determined.
	Duration float64
}

// Fetcher defines the interface for downloading audio.
type Fetcher interface {
	// Fetch downloads the best available audio of url into dir and returns
	// the normalized MP3 file.
	Fetch(ctx context.Context, url, dir string) (*Result, error)
}
