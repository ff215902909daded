// Package store persists the final artifacts of a successful job and
// keeps an index of finished jobs for later retrieval.
package store

import (
	"context"

	"github.com/pulpitlabs/sermonpipe/internal/analyze"
	"github.com/pulpitlabs/sermonpipe/internal/transcribe"
)

// Locations points at the durable copies of a job's artifacts.
type Locations struct {
	Audio      string `json:"audio"`
	Transcript string `json:"transcript"`
	Analysis   string `json:"analysis"`
}

// Store is the durable persistence collaborator. Implementations must
// fail closed: a partial write is never reported as success.
type Store interface {
	Save(ctx context.Context, jobID string, audio []byte, transcript transcribe.Transcript, analysis analyze.Result) (Locations, error)
}
