// Package ytdlp runs the yt-dlp command line tool.
package ytdlp

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner executes yt-dlp and collects its output.
type Runner struct {
	path string
}

// NewRunner creates a Runner. If path is empty, it defaults to "yt-dlp"
// (found via PATH).
func NewRunner(path string) *Runner {
	if path == "" {
		path = "yt-dlp"
	}
	return &Runner{path: path}
}

// Path returns the binary the runner invokes.
func (r *Runner) Path() string {
	return r.path
}

// Run executes yt-dlp with args followed by "--" and url, so a URL starting
// with a dash is never read as an option. It returns stdout.
func (r *Runner) Run(ctx context.Context, url string, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+2)
	full = append(full, args...)
	full = append(full, "--", url)

	// #nosec G204 - path is set by the application, url is passed after "--"
	cmd := exec.CommandContext(ctx, r.path, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("yt-dlp cancelled: %w", ctx.Err())
		}
		return nil, &Error{Args: full, Stderr: stderr.String(), Err: err}
	}
	return stdout.Bytes(), nil
}

// Error represents a failed yt-dlp invocation.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

// Error returns the last "ERROR:" line yt-dlp printed, falling back to the
// process error.
func (e *Error) Error() string {
	if msg := errorLine(e.Stderr); msg != "" {
		return "yt-dlp: " + msg
	}
	return fmt.Sprintf("yt-dlp: %v", e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errorLine(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "ERROR:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "ERROR:"))
		}
	}
	if n := len(lines); n > 0 {
		return strings.TrimSpace(lines[n-1])
	}
	return ""
}
