// Package metadata extracts descriptive information about a media URL
// without downloading it.
package metadata

import (
	"fmt"
	"math"
)

// Defaults used when no source key yields a value.
const (
	UnknownTitle    = "Unknown Title"
	UnknownAlbum    = "Unknown Album"
	UnknownArtist   = "Unknown Artist"
	UnknownSize     = "Unknown Size"
	UnknownFormat   = "Unknown Format"
	UnknownBitrate  = "Unknown"
	UnknownSizeText = "Unknown"
)

// Source keys consulted for each field, in order. A key counts as absent
// when it is missing, null or an empty string.
var (
	titleSources     = []string{"title"}
	albumSources     = []string{"album", "playlist_title"}
	authorSources    = []string{"uploader", "channel", "artist"}
	durationSources  = []string{"duration"}
	thumbnailSources = []string{"thumbnail", "webpage_url"}
	sizeSources      = []string{"filesize_approx", "filesize"}
	formatSources    = []string{"ext"}
	bitrateSources   = []string{"abr"}
)

// Record is the metadata returned for a URL. Every field is always
// serialized.
type Record struct {
	Title    string  `json:"title"`
	Album    string  `json:"album"`
	Author   string  `json:"author"`
	Duration float64 `json:"duration"`
	// Thumbnail is null when no image or page URL is known.
	Thumbnail *string `json:"thumbnail"`
	// Filesize is a byte count, or UnknownSize.
	Filesize          any      `json:"filesize"`
	FilesizeBytes     *float64 `json:"filesize_bytes"`
	FilesizeFormatted string   `json:"filesize_formatted"`
	Format            string   `json:"format"`
	URL               string   `json:"url"`
	DirectAudioURL    *string  `json:"direct_audio_url"`
	// Bitrate is the audio bitrate in kbit/s, or UnknownBitrate.
	Bitrate any `json:"bitrate"`
}

// BuildRecord maps a yt-dlp info object to a Record. Collections use their
// first entry.
func BuildRecord(url string, info map[string]any) *Record {
	if entries, ok := info["entries"].([]any); ok && len(entries) > 0 {
		if first, ok := entries[0].(map[string]any); ok {
			info = first
		}
	}

	rec := &Record{
		Title:             stringOr(info, titleSources, UnknownTitle),
		Album:             stringOr(info, albumSources, UnknownAlbum),
		Author:            stringOr(info, authorSources, UnknownArtist),
		Filesize:          UnknownSize,
		FilesizeFormatted: UnknownSizeText,
		Format:            stringOr(info, formatSources, UnknownFormat),
		URL:               url,
		Bitrate:           UnknownBitrate,
	}

	if d, ok := firstNumber(info, durationSources); ok {
		rec.Duration = d
	}
	if thumb, ok := firstString(info, thumbnailSources); ok {
		rec.Thumbnail = &thumb
	}
	if size, ok := firstNumber(info, sizeSources); ok {
		rec.Filesize = size
		rec.FilesizeBytes = &size
		rec.FilesizeFormatted = FormatSize(size)
	}
	if abr, ok := firstNumber(info, bitrateSources); ok {
		rec.Bitrate = abr
	}

	if best := bestAudioFormat(info); best != nil {
		if u, ok := firstString(best, []string{"url"}); ok {
			rec.DirectAudioURL = &u
		}
		if ext, ok := firstString(best, []string{"ext"}); ok {
			rec.Format = ext
		}
	}

	return rec
}

// bestAudioFormat returns the audio-only format with the highest abr.
// Formats without abr rank as zero; the first of equal candidates wins.
func bestAudioFormat(info map[string]any) map[string]any {
	return bestFormat(info, func(format map[string]any) bool {
		acodec, _ := format["acodec"].(string)
		vcodec, _ := format["vcodec"].(string)
		return acodec != "none" && vcodec == "none"
	})
}

// bestFormat returns the format with the highest abr among those keep
// accepts.
func bestFormat(info map[string]any, keep func(map[string]any) bool) map[string]any {
	formats, _ := info["formats"].([]any)

	var (
		best    map[string]any
		bestAbr float64
	)
	for _, f := range formats {
		format, ok := f.(map[string]any)
		if !ok || !keep(format) {
			continue
		}
		abr, _ := firstNumber(format, []string{"abr"})
		if best == nil || abr > bestAbr {
			best, bestAbr = format, abr
		}
	}
	return best
}

// FormatSize renders a byte count as megabytes above 1 MiB and kilobytes
// otherwise.
func FormatSize(bytes float64) string {
	const mib = 1024 * 1024
	switch {
	case bytes <= 0 || math.IsNaN(bytes):
		return UnknownSizeText
	case bytes > mib:
		return fmt.Sprintf("%.1f MB", bytes/mib)
	default:
		return fmt.Sprintf("%.0f KB", bytes/1024)
	}
}

func stringOr(info map[string]any, keys []string, fallback string) string {
	if s, ok := firstString(info, keys); ok {
		return s
	}
	return fallback
}

func firstString(info map[string]any, keys []string) (string, bool) {
	for _, k := range keys {
		if s, ok := info[k].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

func firstNumber(info map[string]any, keys []string) (float64, bool) {
	for _, k := range keys {
		if n, ok := info[k].(float64); ok {
			return n, true
		}
	}
	return 0, false
}
