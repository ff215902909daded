package pipeline

import (
	"context"
	"os"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/pulpitlabs/sermonpipe/internal/analyze"
	"github.com/pulpitlabs/sermonpipe/internal/download"
	"github.com/pulpitlabs/sermonpipe/internal/fault"
	"github.com/pulpitlabs/sermonpipe/internal/store"
	"github.com/pulpitlabs/sermonpipe/internal/transcribe"
	"github.com/pulpitlabs/sermonpipe/internal/workspace"
)

// Workspaces provisions and destroys per-job scratch directories.
type Workspaces interface {
	Acquire() (*workspace.Workspace, error)
	Release(ws *workspace.Workspace) error
}

// Downloader produces the audio artifact for a source.
type Downloader interface {
	Download(ctx context.Context, source string, ws *workspace.Workspace, trim *download.TrimRange) (download.Artifact, error)
}

// Transcriber turns an audio artifact into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact download.Artifact, language string) (transcribe.Transcript, error)
}

// Analyzer derives structured analysis from a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript transcribe.Transcript) (analyze.Result, error)
}

// Result is the output of a fully successful job.
type Result struct {
	Job        *Job
	Artifact   download.Artifact
	Transcript transcribe.Transcript
	Analysis   analyze.Result
	Locations  store.Locations
}

// Orchestrator runs jobs through the stage sequence. All collaborators
// are injected so tests can substitute fakes.
type Orchestrator struct {
	Workspaces  Workspaces
	Downloader  Downloader
	Transcriber Transcriber
	Analyzer    Analyzer
	Store       store.Store
	Logger      *zap.Logger

	// RetryMax bounds extra attempts after the first for upstream
	// transport failures; other failure kinds are never retried.
	RetryMax      int
	RetryInterval time.Duration
}

// Run executes one job to a terminal state. The workspace is released
// exactly once on every exit path; no artifact survives a failed job.
func (o *Orchestrator) Run(ctx context.Context, job *Job) (*Result, error) {
	log := o.log().With(zap.String("job_id", job.ID))

	if job.Terminal() {
		return nil, fault.New(fault.InvalidArgument, "pipeline", "job %s already reached state %s", job.ID, job.Status)
	}

	job.Status = StatusRunning
	job.StartedAt = time.Now().UTC()

	ws, err := o.Workspaces.Acquire()
	if err != nil {
		// Workspace provisioning is fatal; no stage is attempted.
		return nil, o.fail(job, StagePending, err)
	}
	defer func() {
		if err := o.Workspaces.Release(ws); err != nil {
			log.Warn("workspace release failed", zap.Error(err))
		}
	}()

	job.Stage = StageDownloading
	log.Info("downloading source", zap.String("source", job.Source))
	artifact, err := o.Downloader.Download(ctx, job.Source, ws, job.Trim)
	if err != nil {
		return nil, o.fail(job, StageDownloading, err)
	}
	log.Info("audio ready",
		zap.Float64("duration_s", artifact.Duration),
		zap.String("format", artifact.Format),
		zap.Int64("bytes", artifact.Size))

	if err := ctx.Err(); err != nil {
		return nil, o.fail(job, StageTranscribing, err)
	}
	job.Stage = StageTranscribing
	transcript, err := retryUpstream(ctx, o.retryPolicy(), func() (transcribe.Transcript, error) {
		return o.Transcriber.Transcribe(ctx, artifact, job.Language)
	})
	if err != nil {
		return nil, o.fail(job, StageTranscribing, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, o.fail(job, StageAnalyzing, err)
	}
	job.Stage = StageAnalyzing
	analysis, err := retryUpstream(ctx, o.retryPolicy(), func() (analyze.Result, error) {
		return o.Analyzer.Analyze(ctx, transcript)
	})
	if err != nil {
		return nil, o.fail(job, StageAnalyzing, err)
	}

	if err := ctx.Err(); err != nil {
		return nil, o.fail(job, StagePersisting, err)
	}
	job.Stage = StagePersisting
	audio, err := os.ReadFile(artifact.Path)
	if err != nil {
		return nil, o.fail(job, StagePersisting, fault.Wrap(fault.Persistence, "persist", err))
	}
	locations, err := o.Store.Save(ctx, job.ID, audio, transcript, analysis)
	if err != nil {
		// The workspace is ephemeral by contract: raw artifacts are gone
		// even though upstream work succeeded.
		return nil, o.fail(job, StagePersisting, fault.Wrap(fault.Persistence, "persist", err))
	}

	job.Status = StatusSucceeded
	job.CompletedAt = time.Now().UTC()
	log.Info("job succeeded", zap.String("audio", locations.Audio))

	return &Result{
		Job:        job,
		Artifact:   artifact,
		Transcript: transcript,
		Analysis:   analysis,
		Locations:  locations,
	}, nil
}

func (o *Orchestrator) fail(job *Job, stage Stage, err error) error {
	job.Status = StatusFailed
	job.Stage = stage
	job.CompletedAt = time.Now().UTC()
	job.Error = &JobError{Stage: stage, Kind: fault.KindOf(err), Detail: err.Error()}

	o.log().Error("job failed",
		zap.String("job_id", job.ID),
		zap.String("stage", string(stage)),
		zap.String("kind", fault.KindOf(err).String()),
		zap.Error(err))

	return &StageError{Stage: stage, Err: err}
}

func (o *Orchestrator) retryPolicy() retryPolicy {
	interval := o.RetryInterval
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	max := o.RetryMax
	if max < 0 {
		max = 0
	}
	return retryPolicy{max: uint64(max), interval: interval}
}

func (o *Orchestrator) log() *zap.Logger {
	if o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

type retryPolicy struct {
	max      uint64
	interval time.Duration
}

// retryUpstream reruns op with exponential backoff while it fails with an
// upstream transport error. Every other failure kind is permanent.
func retryUpstream[T any](ctx context.Context, policy retryPolicy, op func() (T, error)) (T, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = policy.interval

	var out T
	err := backoff.Retry(func() error {
		v, err := op()
		if err != nil {
			if !fault.Retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		out = v
		return nil
	}, backoff.WithContext(backoff.WithMaxRetries(bo, policy.max), ctx))
	return out, err
}
