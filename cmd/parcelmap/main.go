package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mohammed-shakir/flurstueck-map/internal/core/config"
	"github.com/mohammed-shakir/flurstueck-map/internal/logger"
	"github.com/mohammed-shakir/flurstueck-map/internal/resolver"
)

var Version = "dev"

const exitAmbiguous = 2

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	os.Exit(exitCode(err))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, resolver.ErrAmbiguous):
		return exitAmbiguous
	default:
		return 1
	}
}

// app carries what every subcommand needs once flags are parsed.
type app struct {
	cfg    config.Config
	log    *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}
	var (
		logLevel  string
		arcgisURL string
		in, out   string
	)

	root := &cobra.Command{
		Use:           "parcelmap",
		Short:         "Resolve cadastral parcels and render them on a web map",
		Long:          "Without a subcommand, renders the snapshot in data.json to map_with_geometry.html.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.cfg = config.FromEnv()
			if f := cmd.Flags().Lookup("log-level"); f != nil && f.Changed {
				a.cfg.LogLevel = logLevel
			}
			if f := cmd.Flags().Lookup("arcgis-url"); f != nil && f.Changed {
				a.cfg.ArcGISURL = arcgisURL
			}
			zl := logger.Build(logger.Config{
				Level:     a.cfg.LogLevel,
				Console:   a.cfg.LogConsole,
				SampleN:   a.cfg.LogSampleN,
				Component: cmd.Name(),
			}, a.stderr)
			a.log = logger.NewSlog(&zl)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.render(cmd.Context(), renderFlags{in: in, out: out})
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
	root.PersistentFlags().StringVar(&arcgisURL, "arcgis-url", "", "feature layer URL (overrides ARCGIS_URL)")
	root.Flags().StringVar(&in, "in", "", "snapshot file (default $INPUT_PATH or data.json)")
	root.Flags().StringVar(&out, "out", "", "output HTML file (default $OUTPUT_PATH or map_with_geometry.html)")

	root.AddCommand(
		a.newRenderCmd(),
		a.newResolveCmd(),
		a.newFetchCmd(),
		a.newServeCmd(),
		newVersionCmd(),
	)
	return root
}

// fail logs err with the command context and hands it back to cobra.
func (a *app) fail(msg string, err error) error {
	if errors.Is(err, resolver.ErrAmbiguous) {
		a.log.Warn(msg, "err", err)
	} else {
		a.log.Error(msg, "err", err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the parcelmap version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "parcelmap", Version)
		},
	}
}
