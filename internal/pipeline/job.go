// Package pipeline sequences download, transcription, analysis, and
// persistence for one job over an ephemeral workspace.
package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pulpitlabs/sermonpipe/internal/download"
	"github.com/pulpitlabs/sermonpipe/internal/fault"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Stage names one unit of sequential pipeline work. On a failed job the
// stage records where the failure happened.
type Stage string

const (
	StagePending      Stage = "pending"
	StageDownloading  Stage = "downloading"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
	StagePersisting   Stage = "persisting"
)

// JobError is the terminal failure detail recorded on a job.
type JobError struct {
	Stage  Stage      `json:"stage"`
	Kind   fault.Kind `json:"-"`
	Detail string     `json:"detail"`
}

// Job is one end-to-end processing request. Created by the caller,
// mutated only by the orchestrator, immutable once terminal.
type Job struct {
	ID       string
	Source   string
	Trim     *download.TrimRange
	Language string

	Status Status
	Stage  Stage
	Error  *JobError

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// NewJob creates a pending job with a fresh identifier.
func NewJob(source, language string, trim *download.TrimRange) *Job {
	return &Job{
		ID:        uuid.NewString(),
		Source:    source,
		Language:  language,
		Trim:      trim,
		Status:    StatusPending,
		Stage:     StagePending,
		CreatedAt: time.Now().UTC(),
	}
}

// Terminal reports whether the job reached a final state.
func (j *Job) Terminal() bool {
	return j.Status == StatusSucceeded || j.Status == StatusFailed
}

// StageError attributes a stage's failure without reinterpreting its kind.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
