// Package cli implements the audiocut command line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maauso/audiocut-api/internal/bootstrap"
	"github.com/maauso/audiocut-api/internal/config"
)

// app carries state shared by the subcommands.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	logLevel string
	loadCfg  func() (*config.Config, error)
}

// NewRootCommand builds the audiocut command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{loadCfg: config.Load})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "audiocut",
		Short:         "Download audio, render waveforms and split tracks.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadCfg()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if a.logLevel != "" {
				cfg.LogLevel = a.logLevel
			}
			a.cfg = cfg
			// stdout is reserved for command output
			a.logger = cfg.NewLoggerTo(cmd.ErrOrStderr())
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "override LOG_LEVEL (debug, info, warn, error)")

	root.AddCommand(
		newServeCommand(a),
		newProbeCommand(a),
		newResolveCommand(a),
		newSplitCommand(a),
		newExtractCommand(a),
		newWaveformCommand(a),
	)
	return root
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

// dependencies wires the service for one command invocation.
func (a *app) dependencies(ctx context.Context) (*bootstrap.Dependencies, error) {
	deps, err := bootstrap.NewDependencies(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("initialize dependencies: %w", err)
	}
	return deps, nil
}

func (a *app) closeDeps(deps *bootstrap.Dependencies) {
	if err := deps.Close(); err != nil {
		a.logger.Warn("failed to close dependencies", slog.String("error", err.Error()))
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
