package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tcolgate/mp3"
)

// ErrNoMP3Frames is returned when a file contains no decodable MP3 frame.
var ErrNoMP3Frames = errors.New("no mp3 frames found")

// MP3Duration sums the frame durations of an MP3 file. Trailing garbage after
// the first valid frame ends the scan instead of failing it.
func MP3Duration(path string) (float64, error) {
	f, err := os.Open(path) // #nosec G304 - path is provided by trusted internal code
	if err != nil {
		return 0, fmt.Errorf("open mp3: %w", err)
	}
	defer func() { _ = f.Close() }()

	dec := mp3.NewDecoder(f)
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || frames > 0 {
				break
			}
			return 0, fmt.Errorf("decode mp3 frame: %w", err)
		}
		total += frame.Duration()
		frames++
	}

	if frames == 0 {
		return 0, ErrNoMP3Frames
	}
	return total.Seconds(), nil
}
