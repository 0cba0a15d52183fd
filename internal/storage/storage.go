// Package storage provides per-request working directories and the artifact
// stores that produced files are published to. Implementations exist for
// local disk, S3, Google Cloud Storage and MinIO.
package storage

import (
	"context"
	"mime"
	"path"
	"path/filepath"
	"strings"
)

// Storage defines where finished artifacts (normalized source audio and
// segments) are published.
type Storage interface {
	// PutFile publishes the file at localPath under key and returns the
	// location clients can fetch it from.
	PutFile(ctx context.Context, key, localPath string) (location string, err error)

	// Delete removes a published artifact. A missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Key joins parts into an object key using forward slashes.
func Key(parts ...string) string {
	return cleanKey(path.Join(parts...))
}

// cleanKey normalizes a key and strips any attempt to climb out of the root.
func cleanKey(key string) string {
	return strings.TrimPrefix(path.Clean("/"+strings.ReplaceAll(key, "\\", "/")), "/")
}

// contentType guesses the MIME type from the file extension.
func contentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".flac":
		return "audio/flac"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return "application/octet-stream"
}
