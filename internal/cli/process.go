package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/analyze"
	"github.com/pulpitlabs/sermonpipe/internal/config"
	"github.com/pulpitlabs/sermonpipe/internal/download"
	"github.com/pulpitlabs/sermonpipe/internal/pipeline"
	"github.com/pulpitlabs/sermonpipe/internal/store"
	"github.com/pulpitlabs/sermonpipe/internal/transcribe"
	"github.com/pulpitlabs/sermonpipe/internal/workspace"
)

// processOutput is what the process command prints on success.
type processOutput struct {
	JobID string `json:"job_id"`
	analyze.Result
	DurationSeconds float64         `json:"duration,omitempty"`
	ProcessedAt     string          `json:"processed_at"`
	Transcription   *string         `json:"transcription,omitempty"`
	Artifacts       store.Locations `json:"artifacts"`
}

func newProcessCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <media-url>",
		Short: "Run one sermon through download, transcription, and analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runFn := app.runFn
			if runFn == nil {
				runFn = app.runJob
			}

			var trim *download.TrimRange
			if cmd.Flags().Changed("start") || cmd.Flags().Changed("end") {
				trim = &download.TrimRange{Start: app.startSec, End: app.endSec}
			}

			ctx := cmd.Context()
			if app.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, app.timeout)
				defer cancel()
			}

			job := pipeline.NewJob(args[0], app.language, trim)
			app.log().Info("processing sermon", zap.String("job_id", job.ID), zap.String("source", job.Source))

			stopSpinner := startSpinner(app.progressEnabled(), "Processing")
			result, err := runFn(ctx, job)
			stopSpinner()
			if err != nil {
				return err
			}

			out := processOutput{
				JobID:           job.ID,
				Result:          result.Analysis,
				DurationSeconds: result.Artifact.Duration,
				ProcessedAt:     app.now().UTC().Format(time.RFC3339),
				Artifacts:       result.Locations,
			}
			if app.includeTranscript {
				out.Transcription = &result.Transcript.Text
			}

			encoder := json.NewEncoder(app.outWriter())
			encoder.SetIndent("", "  ")
			if err := encoder.Encode(out); err != nil {
				return err
			}

			if app.exportDir != "" {
				if err := app.exportAnalysis(result.Analysis); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&app.startSec, "start", 0, "Trim start offset in seconds")
	cmd.Flags().IntVar(&app.endSec, "end", -1, "Trim end offset in seconds")
	cmd.Flags().StringVar(&app.language, "language", app.language, "Language hint for transcription")
	cmd.Flags().BoolVar(&app.includeTranscript, "include-transcript", false, "Include the transcript in the printed result")
	cmd.Flags().StringVar(&app.outputDir, "output", "", "Durable artifact directory (overrides STORAGE_DIR)")
	cmd.Flags().StringVar(&app.exportDir, "export", "", "Also export the analysis as <title>.json into this directory")
	cmd.Flags().DurationVar(&app.timeout, "timeout", 0, "Overall job timeout, e.g. 10m; 0 means no limit")

	return cmd
}

// runJob assembles the production pipeline from configuration and
// executes one job. The Redis index, when configured, records the
// terminal outcome either way.
func (a *appState) runJob(ctx context.Context, job *pipeline.Job) (*pipeline.Result, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	workspaces, err := workspace.NewManager(cfg.WorkspaceRoot, a.log())
	if err != nil {
		return nil, err
	}

	storageDir := cfg.StorageDir
	if a.outputDir != "" {
		storageDir = a.outputDir
	}
	durable, err := store.NewFS(storageDir, a.log())
	if err != nil {
		return nil, err
	}

	downloader := download.New(nil, a.log())
	downloader.NoProgress = !a.progressEnabled()

	orch := &pipeline.Orchestrator{
		Workspaces:  workspaces,
		Downloader:  downloader,
		Transcriber: transcribe.NewClient(cfg.TranscribeURL, cfg.TranscribeKey, cfg.TranscribeTimeout, a.log()),
		Analyzer:    analyze.NewAnalyzer(cfg.AnalyzeURL, cfg.AnalyzeKey, cfg.AnalyzeModel, cfg.AnalyzeTimeout, cfg.AnalyzeMaxChars, a.log()),
		Store:       durable,
		Logger:      a.log(),
		RetryMax:    cfg.RetryMax,
	}

	result, runErr := orch.Run(ctx, job)

	if cfg.RedisAddr != "" {
		a.recordOutcome(cfg.RedisAddr, job, result)
	}

	return result, runErr
}

// recordOutcome is best-effort: a dead index never fails a finished job.
func (a *appState) recordOutcome(addr string, job *pipeline.Job, result *pipeline.Result) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	index, err := store.NewRedisIndex(ctx, addr)
	if err != nil {
		a.log().Warn("job index unavailable", zap.Error(err))
		return
	}
	defer index.Close()

	rec := store.JobRecord{
		ID:          job.ID,
		Source:      job.Source,
		Status:      string(job.Status),
		Stage:       string(job.Stage),
		CompletedAt: job.CompletedAt,
	}
	if job.Error != nil {
		rec.Error = job.Error.Detail
	}
	if result != nil {
		rec.Title = result.Analysis.Title
		rec.Locations = result.Locations
	}

	if err := index.Record(ctx, rec); err != nil {
		a.log().Warn("failed to record job outcome", zap.String("job_id", job.ID), zap.Error(err))
	}
}

func (a *appState) exportAnalysis(analysis analyze.Result) error {
	name := store.SafeFilename(analysis.Title, "sermon") + ".json"
	path, err := store.EnsureUniquePath(a.exportDir, name)
	if err != nil {
		return fmt.Errorf("resolve export path: %w", err)
	}

	data, err := json.MarshalIndent(analysis, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("export analysis: %w", err)
	}

	a.log().Info("analysis exported", zap.String("path", path))
	return nil
}
