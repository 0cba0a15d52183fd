package metadata

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/maauso/audiocut-api/internal/apperr"
	"github.com/maauso/audiocut-api/internal/ytdlp"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

var segmentedURL = regexp.MustCompile(`(?i)m3u8|mpd|dash|manifest`)

// Resolution is a stream a player can fetch directly. Unknown fields are
// null.
type Resolution struct {
	URL           *string  `json:"url"`
	Duration      *float64 `json:"duration"`
	Title         *string  `json:"title"`
	IsProgressive bool     `json:"is_progressive"`
}

// Resolver finds a directly playable audio stream for a page URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (*Resolution, error)
}

// DurationSource reports the duration in seconds of a local file or remote
// media URL.
type DurationSource interface {
	GetMediaDuration(ctx context.Context, path string) (float64, error)
}

// YTDLPResolver implements Resolver with yt-dlp. Missing durations are
// filled in with ffprobe for progressive streams and by summing an HLS
// playlist otherwise.
type YTDLPResolver struct {
	runner        *ytdlp.Runner
	durations     DurationSource
	httpClient    *http.Client
	lookupTimeout time.Duration
	logger        *slog.Logger
}

var _ Resolver = (*YTDLPResolver)(nil)

// ResolverOption configures a YTDLPResolver.
type ResolverOption func(*YTDLPResolver)

// WithHTTPClient sets the client used to download HLS playlists.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *YTDLPResolver) {
		r.httpClient = c
	}
}

// WithLookupTimeout bounds each duration lookup.
func WithLookupTimeout(d time.Duration) ResolverOption {
	return func(r *YTDLPResolver) {
		if d > 0 {
			r.lookupTimeout = d
		}
	}
}

// WithResolverLogger sets the logger.
func WithResolverLogger(logger *slog.Logger) ResolverOption {
	return func(r *YTDLPResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewYTDLPResolver creates a new YTDLPResolver.
func NewYTDLPResolver(runner *ytdlp.Runner, durations DurationSource, opts ...ResolverOption) *YTDLPResolver {
	r := &YTDLPResolver{
		runner:        runner,
		durations:     durations,
		httpClient:    &http.Client{Timeout: 10 * time.Second},
		lookupTimeout: 10 * time.Second,
		logger:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve implements Resolver.Resolve. The info JSON is tried first; when it
// yields nothing usable, yt-dlp is asked for the bestaudio URL directly.
func (r *YTDLPResolver) Resolve(ctx context.Context, url string) (*Resolution, error) {
	if strings.TrimSpace(url) == "" {
		return nil, apperr.New(apperr.ErrInput, "resolve", "url is required")
	}

	res, err := r.fromInfo(ctx, url)
	if err == nil && res != nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return nil, apperr.Wrap(apperr.ErrProbe, "resolve", ctx.Err())
	}
	if err != nil {
		r.logger.Warn("yt-dlp info lookup failed, trying direct URL",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}

	res, err = r.fromDirectURL(ctx, url)
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperr.Wrap(apperr.ErrProbe, "resolve", ctx.Err())
		}
		r.logger.Warn("yt-dlp direct URL lookup failed",
			slog.String("url", url),
			slog.String("error", err.Error()),
		)
	}
	if res == nil {
		return nil, apperr.New(apperr.ErrUnresolved, "resolve", "Unable to resolve media URL")
	}
	return res, nil
}

// fromInfo returns nil without error when the info has neither a playable
// format nor a duration.
func (r *YTDLPResolver) fromInfo(ctx context.Context, url string) (*Resolution, error) {
	out, err := r.runner.Run(ctx, url,
		"--dump-single-json",
		"--no-warnings",
		"--no-check-certificates",
		"--prefer-free-formats",
		"--no-playlist",
		"--add-header", "User-Agent: "+userAgent,
		"--add-header", "Referer: "+url,
	)
	if err != nil {
		return nil, err
	}

	var info map[string]any
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("parse yt-dlp output: %w", err)
	}

	title := optional(firstString(info, titleSources))
	duration, _ := firstNumber(info, durationSources)

	if chosen := bestStreamFormat(info); chosen != nil {
		streamURL, _ := firstString(chosen, []string{"url"})
		if duration <= 0 {
			duration = r.streamDuration(ctx, streamURL)
		}
		return &Resolution{
			URL:           &streamURL,
			Duration:      positive(duration),
			Title:         title,
			IsProgressive: !isSegmented(chosen),
		}, nil
	}

	if duration <= 0 {
		if manifest := firstManifest(info); manifest != "" {
			duration = r.playlistDuration(ctx, manifest)
		}
	}
	if duration <= 0 {
		return nil, nil
	}
	return &Resolution{Duration: &duration, Title: title}, nil
}

func (r *YTDLPResolver) fromDirectURL(ctx context.Context, url string) (*Resolution, error) {
	out, err := r.runner.Run(ctx, url,
		"-f", "bestaudio",
		"-g",
		"--add-header", "User-Agent: "+userAgent,
		"--add-header", "Referer: "+url,
	)
	if err != nil {
		return nil, err
	}

	direct := lastLine(string(out))
	if direct == "" {
		return nil, nil
	}
	if segmentedURL.MatchString(direct) {
		return &Resolution{URL: &direct, Duration: positive(r.playlistDuration(ctx, direct))}, nil
	}
	return &Resolution{URL: &direct, Duration: positive(r.streamDuration(ctx, direct)), IsProgressive: true}, nil
}

// streamDuration asks ffprobe for the duration of a remote stream. Failures
// count as unknown.
func (r *YTDLPResolver) streamDuration(ctx context.Context, streamURL string) float64 {
	if r.durations == nil || streamURL == "" {
		return 0
	}
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	d, err := r.durations.GetMediaDuration(ctx, streamURL)
	if err != nil {
		r.logger.Debug("ffprobe duration lookup failed", slog.String("error", err.Error()))
		return 0
	}
	return d
}

// playlistDuration sums the #EXTINF entries of an HLS playlist. Failures
// count as unknown.
func (r *YTDLPResolver) playlistDuration(ctx context.Context, manifestURL string) float64 {
	ctx, cancel := context.WithTimeout(ctx, r.lookupTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, manifestURL, nil)
	if err != nil {
		return 0
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Debug("HLS playlist download failed", slog.String("error", err.Error()))
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0
	}
	return SumPlaylist(resp.Body)
}

// SumPlaylist returns the total of the #EXTINF durations in an HLS playlist.
func SumPlaylist(r io.Reader) float64 {
	var total float64
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		rest, ok := strings.CutPrefix(strings.TrimSpace(sc.Text()), "#EXTINF:")
		if !ok {
			continue
		}
		value, _, _ := strings.Cut(rest, ",")
		if d, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil && d > 0 {
			total += d
		}
	}
	return total
}

// bestStreamFormat returns the highest-abr audio-only format that has a URL
// served over plain HTTP or HLS.
func bestStreamFormat(info map[string]any) map[string]any {
	return bestFormat(info, func(format map[string]any) bool {
		acodec, _ := format["acodec"].(string)
		vcodec, _ := format["vcodec"].(string)
		url, _ := format["url"].(string)
		if acodec == "" || acodec == "none" || (vcodec != "" && vcodec != "none") || url == "" {
			return false
		}
		protocol, _ := format["protocol"].(string)
		protocol = strings.ToLower(protocol)
		hls := strings.Contains(protocol, "m3u8") || strings.Contains(url, ".m3u8")
		progressive := !isSegmented(format) && strings.HasPrefix(protocol, "http")
		return hls || progressive
	})
}

func isSegmented(format map[string]any) bool {
	protocol, _ := format["protocol"].(string)
	protocol = strings.ToLower(protocol)
	url, _ := format["url"].(string)
	return strings.Contains(protocol, "m3u8") || strings.Contains(protocol, "dash") ||
		strings.Contains(url, ".m3u8") || strings.Contains(url, "manifest")
}

func firstManifest(info map[string]any) string {
	formats, _ := info["formats"].([]any)
	for _, f := range formats {
		format, ok := f.(map[string]any)
		if !ok {
			continue
		}
		if url, _ := format["url"].(string); strings.Contains(url, ".m3u8") {
			return url
		}
	}
	return ""
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

func optional(s string, ok bool) *string {
	if !ok {
		return nil
	}
	return &s
}

func positive(d float64) *float64 {
	if d <= 0 {
		return nil
	}
	return &d
}
