package workflows

import (
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tendant/simple-icon-tester/internal/storage"
	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

// State is a job lifecycle state
type State string

const (
	StateAllocated        State = "allocated"
	StateStaged           State = "staged"
	StateTransformed      State = "transformed"
	StateMetadataResolved State = "metadata_resolved"
	StateReportProduced   State = "report_produced"
	StateDispatched       State = "dispatched"
	StateFailed           State = "failed"
	StateCleanedUp        State = "cleaned_up"
)

// transitions lists the legal successors of every state. Failed is added for
// every non-terminal state in Advance.
var transitions = map[State][]State{
	StateAllocated:        {StateStaged},
	StateStaged:           {StateTransformed, StateMetadataResolved},
	StateTransformed:      {StateMetadataResolved},
	StateMetadataResolved: {StateReportProduced},
	StateReportProduced:   {StateDispatched},
	StateDispatched:       {StateCleanedUp},
	StateFailed:           {StateCleanedUp},
}

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateCleanedUp
}

// UploadedFile is one accepted file in a job workspace
type UploadedFile struct {
	OriginalName      string
	StoredPath        string
	SizeBytes         int64
	DeclaredMediaType string
	// Checksum is the xxhash64 of the content, hex encoded
	Checksum string
}

// ReportArtifact is the HTML report produced for a job
type ReportArtifact struct {
	Path       string
	ProducedAt time.Time
	// Fallback is set when the report is a diagnostic written in place of the
	// tool's own report
	Fallback bool
}

// Job is the state of one request. It is owned by a single request and never
// shared.
type Job struct {
	ID        string
	Name      string
	Workspace *storage.Workspace
	Files     []UploadedFile
	State     State
	StartedAt time.Time
	Log       *slog.Logger

	// Previews holds a data URI per file index, empty when none was rendered
	Previews []string
	// Report is set once the producer wrote the report
	Report *ReportArtifact
	// Err is the error that moved the job to Failed
	Err error
}

// Advance moves the job to next, rejecting transitions the lifecycle does not allow
func (j *Job) Advance(next State) error {
	if next == StateFailed && !j.State.Terminal() && j.State != StateFailed {
		j.State = next
		return nil
	}
	for _, allowed := range transitions[j.State] {
		if allowed == next {
			j.logger().Debug("Job state changed", "from", j.State, "to", next)
			j.State = next
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, j.State, next)
}

// Fail records err and moves the job to Failed. It is a no-op on a job that
// already failed or was cleaned up.
func (j *Job) Fail(err error) {
	if j.State == StateFailed || j.State.Terminal() {
		return
	}
	j.Err = err
	j.State = StateFailed
}

// Outcome is the label recorded for the job in metrics and the ledger
func (j *Job) Outcome() string {
	switch {
	case j.Err != nil:
		return Classify(j.Err).Outcome()
	case j.Report != nil && j.Report.Fallback:
		return pipeline.OutcomeFallback
	default:
		return pipeline.OutcomeSuccess
	}
}

// Digest identifies the batch content: the xxhash64 of the file checksums in
// upload order. It is empty before staging.
func (j *Job) Digest() string {
	if len(j.Files) == 0 {
		return ""
	}
	h := xxhash.New()
	for _, f := range j.Files {
		h.WriteString(f.Checksum)
		h.WriteString("\n")
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

func (j *Job) logger() *slog.Logger {
	if j.Log == nil {
		return slog.Default()
	}
	return j.Log
}
