// Package fault classifies pipeline failures so callers can decide
// whether a retry is worthwhile without inspecting error strings.
package fault

import (
	"errors"
	"fmt"
)

// Kind identifies the failure class of a pipeline operation.
type Kind int

const (
	// Unknown is the zero kind for errors that carry no classification.
	Unknown Kind = iota
	// InvalidArgument means the caller supplied bad input; never retried.
	InvalidArgument
	// Resource means workspace or environment provisioning failed; fatal to the job.
	Resource
	// SourceUnavailable means the media source could not be fetched; the caller may retry.
	SourceUnavailable
	// Processing means local media processing failed; retrying the same input is pointless.
	Processing
	// Upstream means a remote service failed at the transport level; retryable with backoff.
	Upstream
	// ContractViolation means a remote response was transport-successful but malformed; never retried.
	ContractViolation
	// Persistence means the durable store rejected the final write.
	Persistence
)

func (k Kind) String() string {
	switch k {
	case InvalidArgument:
		return "invalid_argument"
	case Resource:
		return "resource"
	case SourceUnavailable:
		return "source_unavailable"
	case Processing:
		return "processing"
	case Upstream:
		return "upstream"
	case ContractViolation:
		return "contract_violation"
	case Persistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error couples a Kind with an underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error from a message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf walks the error chain and returns the first classification found.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// Retryable reports whether the error class is worth a bounded retry.
func Retryable(err error) bool {
	return KindOf(err) == Upstream
}
