package workflows

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

var (
	// ErrWorkflowNotFound is returned when no pipeline is registered for a job
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrValidationInput is returned when the upload batch is unacceptable
	ErrValidationInput = errors.New("invalid input")

	// ErrPayloadTooLarge is returned when a size or count ceiling is exceeded
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrWorkspaceIO is returned when the job workspace cannot be read or written
	ErrWorkspaceIO = errors.New("workspace i/o failed")

	// ErrExternalProcess is returned when the validation tool produced no report
	ErrExternalProcess = errors.New("external process failed")

	// ErrTransform is returned for a per-file transform failure
	ErrTransform = errors.New("transform failed")

	// ErrReportMissing is returned when no report exists at dispatch time
	ErrReportMissing = errors.New("report missing")

	// ErrNoFiles is returned when a batch holds no accepted file
	ErrNoFiles = fmt.Errorf("%w: no files uploaded", ErrValidationInput)

	// ErrIllegalTransition is returned when a job is moved to a state it cannot reach
	ErrIllegalTransition = errors.New("illegal job state transition")
)

// Kind classifies stage errors for the error boundary
type Kind int

const (
	KindInternal Kind = iota
	KindValidationInput
	KindPayloadTooLarge
	KindWorkspaceIO
	KindExternalProcess
	KindTransform
	KindReportMissing
)

// Classify maps err to its kind. Unknown errors are internal.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindInternal
	case errors.Is(err, ErrValidationInput):
		return KindValidationInput
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrWorkspaceIO):
		return KindWorkspaceIO
	case errors.Is(err, ErrExternalProcess):
		return KindExternalProcess
	case errors.Is(err, ErrTransform):
		return KindTransform
	case errors.Is(err, ErrReportMissing):
		return KindReportMissing
	default:
		return KindInternal
	}
}

func (k Kind) String() string {
	switch k {
	case KindValidationInput:
		return "validation_input"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindWorkspaceIO:
		return "workspace_io"
	case KindExternalProcess:
		return "external_process"
	case KindTransform:
		return "transform"
	case KindReportMissing:
		return "report_missing"
	default:
		return "internal"
	}
}

// Outcome returns the metrics and ledger label for a job that failed with k
func (k Kind) Outcome() string {
	switch k {
	case KindValidationInput:
		return pipeline.OutcomeInvalidInput
	case KindPayloadTooLarge:
		return pipeline.OutcomeTooLarge
	case KindWorkspaceIO:
		return pipeline.OutcomeWorkspaceIO
	case KindReportMissing:
		return pipeline.OutcomeReportMissing
	default:
		return pipeline.OutcomeInternal
	}
}
