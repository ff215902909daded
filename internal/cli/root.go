// Package cli wires the pipeline components into the sermonpipe command.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/pulpitlabs/sermonpipe/internal/logging"
	"github.com/pulpitlabs/sermonpipe/internal/pipeline"
	"github.com/pulpitlabs/sermonpipe/internal/version"
)

type appState struct {
	verbose    bool
	jsonLogs   bool
	noProgress bool

	language          string
	startSec          int
	endSec            int
	includeTranscript bool
	outputDir         string
	exportDir         string
	timeout           time.Duration

	logger *zap.Logger
	now    func() time.Time
	out    io.Writer

	runFn func(ctx context.Context, job *pipeline.Job) (*pipeline.Result, error)
}

// NewRootCmd builds the sermonpipe command tree.
func NewRootCmd() *cobra.Command {
	app := &appState{
		language: "en",
		endSec:   -1,
		now:      time.Now,
		out:      os.Stdout,
	}
	app.runFn = app.runJob

	cmd := &cobra.Command{
		Use:           "sermonpipe",
		Short:         "Download, transcribe, and analyze sermon audio",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version.Resolve(),
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			logger, err := logging.New(logging.Options{Verbose: app.verbose, JSON: app.jsonLogs})
			if err != nil {
				return fmt.Errorf("initialize logger: %w", err)
			}
			app.logger = logger
			return nil
		},
	}

	cmd.SetVersionTemplate("{{.Name}} v{{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&app.verbose, "verbose", app.verbose, "Enable verbose logs")
	cmd.PersistentFlags().BoolVar(&app.jsonLogs, "json", app.jsonLogs, "Enable JSON logging")
	cmd.PersistentFlags().BoolVar(&app.noProgress, "no-progress", app.noProgress, "Disable progress indicators")

	cmd.AddCommand(newProcessCmd(app))
	cmd.AddCommand(newJobsCmd(app))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func (a *appState) log() *zap.Logger {
	if a.logger == nil {
		return zap.NewNop()
	}
	return a.logger
}

func (a *appState) outWriter() io.Writer {
	if a.out == nil {
		return os.Stdout
	}
	return a.out
}

func (a *appState) progressEnabled() bool {
	if a.noProgress {
		return false
	}
	return term.IsTerminal(int(os.Stderr.Fd()))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		RunE: func(cmd *cobra.Command, _ []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "sermonpipe v%s\n", version.Resolve())
			return nil
		},
	}
}
