package workflows

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-icon-tester/pkg/pipeline"
)

func TestJob_Advance(t *testing.T) {
	t.Run("should walk the validation path", func(t *testing.T) {
		job := &Job{State: StateAllocated}
		for _, next := range []State{StateStaged, StateMetadataResolved, StateReportProduced, StateDispatched, StateCleanedUp} {
			require.NoError(t, job.Advance(next), next)
		}
		assert.True(t, job.State.Terminal())
	})

	t.Run("should walk the visual path through Transformed", func(t *testing.T) {
		job := &Job{State: StateStaged}
		require.NoError(t, job.Advance(StateTransformed))
		require.NoError(t, job.Advance(StateMetadataResolved))
	})

	t.Run("should reject skipping stages", func(t *testing.T) {
		job := &Job{State: StateAllocated}
		err := job.Advance(StateReportProduced)
		assert.ErrorIs(t, err, ErrIllegalTransition)
		assert.Equal(t, StateAllocated, job.State)
	})

	t.Run("should allow Failed from any non-terminal state", func(t *testing.T) {
		for _, from := range []State{StateAllocated, StateStaged, StateTransformed, StateMetadataResolved, StateReportProduced, StateDispatched} {
			job := &Job{State: from}
			assert.NoError(t, job.Advance(StateFailed), from)
			assert.NoError(t, job.Advance(StateCleanedUp), from)
		}
	})

	t.Run("should not leave CleanedUp", func(t *testing.T) {
		job := &Job{State: StateCleanedUp}
		assert.ErrorIs(t, job.Advance(StateFailed), ErrIllegalTransition)
	})
}

func TestJob_FailAndOutcome(t *testing.T) {
	job := &Job{State: StateStaged}
	assert.Equal(t, pipeline.OutcomeSuccess, job.Outcome())

	job.Report = &ReportArtifact{Fallback: true}
	assert.Equal(t, pipeline.OutcomeFallback, job.Outcome())

	job.Fail(fmt.Errorf("%w: too big", ErrPayloadTooLarge))
	assert.Equal(t, StateFailed, job.State)
	assert.Equal(t, pipeline.OutcomeTooLarge, job.Outcome())

	// the first failure sticks
	job.Fail(errors.New("later"))
	assert.ErrorIs(t, job.Err, ErrPayloadTooLarge)
}

func TestJob_Digest(t *testing.T) {
	assert.Empty(t, (&Job{}).Digest())

	a := UploadedFile{OriginalName: "a.svg", Checksum: "1d3c"}
	b := UploadedFile{OriginalName: "b.svg", Checksum: "7f20"}

	first := &Job{Files: []UploadedFile{a, b}}
	same := &Job{Files: []UploadedFile{{OriginalName: "renamed.svg", Checksum: "1d3c"}, b}}
	swapped := &Job{Files: []UploadedFile{b, a}}

	assert.NotEmpty(t, first.Digest())
	assert.Equal(t, first.Digest(), same.Digest(), "names do not change the digest")
	assert.NotEqual(t, first.Digest(), swapped.Digest())
}

func TestClassify(t *testing.T) {
	cases := map[error]Kind{
		fmt.Errorf("%w: x", ErrValidationInput): KindValidationInput,
		fmt.Errorf("%w: x", ErrPayloadTooLarge): KindPayloadTooLarge,
		fmt.Errorf("%w: x", ErrWorkspaceIO):     KindWorkspaceIO,
		fmt.Errorf("%w: x", ErrExternalProcess): KindExternalProcess,
		fmt.Errorf("%w: x", ErrTransform):       KindTransform,
		fmt.Errorf("%w: x", ErrReportMissing):   KindReportMissing,
		errors.New("boom"):                      KindInternal,
		nil:                                     KindInternal,
	}
	for err, want := range cases {
		assert.Equal(t, want, Classify(err), fmt.Sprint(err))
	}

	assert.Equal(t, pipeline.OutcomeInvalidInput, KindValidationInput.Outcome())
	assert.Equal(t, pipeline.OutcomeInternal, KindInternal.Outcome())
	assert.Equal(t, "payload_too_large", KindPayloadTooLarge.String())
}
