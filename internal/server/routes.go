package server

import (
	"log/slog"
	"net/http"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", h.Home)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST /metadata", h.Metadata)
	mux.HandleFunc("POST /resolve", h.Resolve)
	mux.HandleFunc("POST /process-audio", h.ProcessAudio)
	mux.HandleFunc("POST /split-audio", h.SplitAudio)
	mux.HandleFunc("POST /extract-segment", h.ExtractSegment)
	mux.HandleFunc("GET /download-segment/{filename...}", h.DownloadSegment)

	// Apply middleware chain
	chain := ChainMiddleware(
		RequestIDMiddleware(),
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
