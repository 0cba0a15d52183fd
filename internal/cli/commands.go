package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/k0kubun/go-ansi"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/maauso/audiocut-api/internal/bootstrap"
	"github.com/maauso/audiocut-api/internal/media"
	"github.com/maauso/audiocut-api/internal/processing"
	"github.com/maauso/audiocut-api/internal/waveform"
)

var formatUsage = "output format: " + strings.Join(media.SupportedFormats(), ", ")

func newServeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return bootstrap.Serve(cmd.Context(), a.cfg, a.cfg.NewLogger())
		},
	}
}

func newProbeCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <url>",
		Short: "Print metadata for a URL without downloading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDeps(deps)

			rec, err := deps.Service.Metadata(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newSplitCommand(a *app) *cobra.Command {
	var (
		at       string
		cuesPath string
		format   string
		noBar    bool
	)

	cmd := &cobra.Command{
		Use:   "split <url>",
		Short: "Split audio at the given points and print the segments",
		Example: `  audiocut split https://example.com/set --at 30,1:01.5 --format flac
  audiocut split https://example.com/set --cues cues.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			points, cueFormat, err := resolvePoints(at, cuesPath)
			if err != nil {
				return err
			}
			if format == "" {
				format = cueFormat
			}

			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDeps(deps)

			var bar *progressbar.ProgressBar
			in := processing.SplitInput{
				URL:         args[0],
				SplitPoints: points,
				Format:      format,
			}
			if !noBar {
				in.OnProgress = func(done, total int) {
					if bar == nil {
						bar = newProgressBar(total)
					}
					_ = bar.Set(done)
				}
			}

			out, err := deps.Service.SplitAudio(cmd.Context(), in)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Segments)
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "comma separated split points (seconds, mm:ss or hh:mm:ss)")
	cmd.Flags().StringVar(&cuesPath, "cues", "", "YAML cue file with split_points and an optional format")
	cmd.Flags().StringVarP(&format, "format", "f", "", formatUsage)
	cmd.Flags().BoolVar(&noBar, "no-progress", false, "disable the progress bar")
	cmd.MarkFlagsMutuallyExclusive("at", "cues")
	cmd.MarkFlagsOneRequired("at", "cues")
	return cmd
}

func newResolveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>",
		Short: "Print a directly playable stream URL for a page",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDeps(deps)

			res, err := deps.Service.Resolve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		},
	}
}

func newExtractCommand(a *app) *cobra.Command {
	var (
		from   string
		to     string
		format string
	)

	cmd := &cobra.Command{
		Use:     "extract <url>",
		Short:   "Extract one time range and print the stored segment",
		Example: `  audiocut extract https://example.com/set --from 1:00 --to 2:30 --format wav`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := ParseTimestamp(from)
			if err != nil {
				return err
			}
			end, err := ParseTimestamp(to)
			if err != nil {
				return err
			}

			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDeps(deps)

			out, err := deps.Service.ExtractRange(cmd.Context(), processing.ExtractInput{
				URL:    args[0],
				Start:  start,
				End:    end,
				Format: format,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Segment)
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "range start (seconds, mm:ss or hh:mm:ss)")
	cmd.Flags().StringVar(&to, "to", "", "range end (seconds, mm:ss or hh:mm:ss)")
	cmd.Flags().StringVarP(&format, "format", "f", "", formatUsage)
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newWaveformCommand(a *app) *cobra.Command {
	var (
		at  string
		out string
	)

	cmd := &cobra.Command{
		Use:   "waveform <url>",
		Short: "Render the waveform of a URL to a PNG file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var points []float64
			if at != "" {
				var err error
				if points, err = ParsePoints(at); err != nil {
					return err
				}
			}

			deps, err := a.dependencies(cmd.Context())
			if err != nil {
				return err
			}
			defer a.closeDeps(deps)

			res, err := deps.Service.ProcessAudio(cmd.Context(), processing.ProcessInput{
				URL:         args[0],
				SplitPoints: points,
			})
			if err != nil {
				return err
			}

			png, err := waveform.DecodeDataURI(res.Image)
			if err != nil {
				return err
			}
			if !strings.HasSuffix(strings.ToLower(out), ".png") {
				out += ".png"
			}
			if err := os.WriteFile(out, png, 0o644); err != nil { // #nosec G306 - image meant to be shared
				return fmt.Errorf("write %s: %w", out, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s (%.2fs, %d points) -> %s\n", res.Title, res.Duration, len(res.Waveform.Times), out)
			return nil
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "comma separated marker positions (seconds, mm:ss or hh:mm:ss)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output PNG path")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func newProgressBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWriter(ansi.NewAnsiStderr()),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.ThemeASCII),
		progressbar.OptionFullWidth(),
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan]Encoding segments...[reset]"),
	)
}
