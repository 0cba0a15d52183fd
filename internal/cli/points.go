package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoPoints is returned when neither --at nor a cue file yields a point.
var ErrNoPoints = errors.New("no split points given")

// CueFile is the YAML layout accepted by --cues.
//
//	format: flac
//	split_points: [30, "1:01.5", "1:02:03"]
type CueFile struct {
	Format      string   `yaml:"format"`
	SplitPoints []string `yaml:"split_points"`
}

// LoadCueFile reads and parses a cue file.
func LoadCueFile(path string) ([]float64, string, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path comes from the command line
	if err != nil {
		return nil, "", fmt.Errorf("read cue file: %w", err)
	}

	var cues CueFile
	if err := yaml.Unmarshal(data, &cues); err != nil {
		return nil, "", fmt.Errorf("parse cue file: %w", err)
	}

	points := make([]float64, 0, len(cues.SplitPoints))
	for _, raw := range cues.SplitPoints {
		p, err := ParseTimestamp(raw)
		if err != nil {
			return nil, "", err
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, "", ErrNoPoints
	}
	return points, strings.ToLower(cues.Format), nil
}

// ParsePoints parses a comma separated list of timestamps, keeping order.
func ParsePoints(s string) ([]float64, error) {
	var points []float64
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		p, err := ParseTimestamp(field)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	if len(points) == 0 {
		return nil, ErrNoPoints
	}
	return points, nil
}

// ParseTimestamp accepts plain seconds ("61.5"), "mm:ss" or "hh:mm:ss",
// each with optional fractional seconds.
func ParseTimestamp(s string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total float64
	for i, part := range parts {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || v < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		// only the seconds field may carry a fraction or exceed 59
		if i < len(parts)-1 && v != float64(int(v)) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		total = total*60 + v
	}
	return total, nil
}

func resolvePoints(at, cuesPath string) ([]float64, string, error) {
	if cuesPath != "" {
		return LoadCueFile(cuesPath)
	}
	points, err := ParsePoints(at)
	return points, "", err
}
