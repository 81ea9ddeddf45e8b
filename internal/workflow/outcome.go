package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/hugorneri/RPA-DCTFWEB/internal/interfaces"
	"github.com/hugorneri/RPA-DCTFWEB/internal/models"
)

// Checkpoint names a step of the per-entity state machine
type Checkpoint string

const (
	CheckpointHome             Checkpoint = "Home"
	CheckpointDeclarationsMenu Checkpoint = "DeclarationsMenu"
	CheckpointTransmitAction   Checkpoint = "TransmitAction"
	CheckpointGrantorConsent   Checkpoint = "GrantorConsent"
	CheckpointSearchFilter     Checkpoint = "SearchFilter"
	CheckpointResultsOrEmpty   Checkpoint = "ResultsOrEmpty"
	CheckpointIssueDocument    Checkpoint = "IssueDocument"
	CheckpointArtifactCapture  Checkpoint = "ArtifactCapture"
	CheckpointConfirm          Checkpoint = "Confirm"
	CheckpointDone             Checkpoint = "Done"
)

// OutcomeKind is the tag of an attempt outcome
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeNotFound
	OutcomeRetryable
	OutcomeFatal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// FailureKind classifies a failed attempt
type FailureKind string

const (
	FailureNone           FailureKind = ""
	FailureElementTimeout FailureKind = "element_timeout"
	FailureUnexpected     FailureKind = "unexpected"
	// FailureSessionLost and FailureAborted are session-level and escape the runner
	FailureSessionLost FailureKind = "session_lost"
	FailureAborted     FailureKind = "aborted"
)

// Outcome is the result of one attempt of the workflow for one entity
type Outcome struct {
	Kind       OutcomeKind
	Failure    FailureKind
	Checkpoint Checkpoint
	Err        error

	// Artifact is true when a download was captured and renamed
	Artifact     bool
	ArtifactPath string
}

// Success builds a completed outcome
func Success(artifactPath string, captured bool) Outcome {
	return Outcome{Kind: OutcomeSuccess, Checkpoint: CheckpointDone, Artifact: captured, ArtifactPath: artifactPath}
}

// NotFound builds the terminal "no declaration" outcome
func NotFound() Outcome {
	return Outcome{Kind: OutcomeNotFound, Checkpoint: CheckpointResultsOrEmpty}
}

// Retryable builds a transient failure outcome
func Retryable(checkpoint Checkpoint, err error) Outcome {
	return Outcome{Kind: OutcomeRetryable, Failure: FailureElementTimeout, Checkpoint: checkpoint, Err: err}
}

// Fatal builds a non-retryable failure outcome
func Fatal(kind FailureKind, checkpoint Checkpoint, err error) Outcome {
	return Outcome{Kind: OutcomeFatal, Failure: kind, Checkpoint: checkpoint, Err: err}
}

// Classify maps an error raised at a checkpoint to an outcome
func Classify(ctx context.Context, checkpoint Checkpoint, err error) Outcome {
	switch {
	case errors.Is(err, interfaces.ErrSessionClosed):
		return Fatal(FailureSessionLost, checkpoint, err)
	case ctx.Err() != nil:
		return Fatal(FailureAborted, checkpoint, ctx.Err())
	case errors.Is(err, interfaces.ErrElementTimeout):
		return Retryable(checkpoint, err)
	default:
		return Fatal(FailureUnexpected, checkpoint, err)
	}
}

// IsSessionLevel reports whether the failure must escape to the session supervisor
func (o Outcome) IsSessionLevel() bool {
	return o.Kind == OutcomeFatal && (o.Failure == FailureSessionLost || o.Failure == FailureAborted)
}

// Status maps the outcome to the ledger status
func (o Outcome) Status() models.Status {
	switch o.Kind {
	case OutcomeSuccess:
		return models.StatusCompleted
	case OutcomeNotFound:
		return models.StatusNotFound
	case OutcomeRetryable:
		return models.StatusDownloadError
	default:
		return models.StatusUnexpectedError
	}
}

// Result is the final result of the runner for one entity
type Result struct {
	Entity   models.Entity
	Status   models.Status
	Attempts int
	Last     Outcome
}
