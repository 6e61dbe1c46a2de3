package pipeline

import (
	"time"

	"github.com/jackzampolin/folio/internal/types"
)

// Outcome is the result of dispatching one step.
type Outcome struct {
	Step   types.StepName   `json:"step"`
	Status types.StepStatus `json:"status"`
	Result string           `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`

	// JobID is set when the step created a batch job and stays running
	// until the reconciler finalizes it.
	JobID string `json:"job_id,omitempty"`

	// NextStep is the step that should run next, empty when the pipeline
	// is done, halted, or waiting on a job.
	NextStep types.StepName `json:"next_step,omitempty"`
}

// beginStep marks a step running and points the pipeline at it.
func beginStep(state *types.PipelineState, step types.StepName, now time.Time) {
	st := state.Step(step)
	st.Status = types.StepRunning
	t := now.UTC()
	st.StartedAt = &t
	st.Error = ""
	st.JobID = ""
	state.CurrentStep = step
}

// applyOutcome records a step outcome on the pipeline state and decides what
// happens next. Pure; the orchestrator persists the mutated state afterward.
//
// Rules: a failed step halts the pipeline with CurrentStep left on the failed
// step for diagnostics. A completed edition step completes the pipeline. A
// job-backed step that created a job stays running until finalized. Otherwise
// the pipeline advances to the next step in the fixed order.
func applyOutcome(state *types.PipelineState, out *Outcome, now time.Time) {
	st := state.Step(out.Step)
	t := now.UTC()

	if out.JobID != "" && out.Status == types.StepRunning {
		st.JobID = out.JobID
		return
	}

	st.Status = out.Status
	st.Result = out.Result
	st.Error = out.Error
	st.CompletedAt = &t

	switch {
	case out.Status == types.StepFailed:
		state.Status = types.PipelineFailed
		state.Error = out.Error

	case out.Step == types.StepEdition && out.Status == types.StepCompleted:
		state.Status = types.PipelineCompleted
		state.CurrentStep = ""
		state.CompletedAt = &t

	default:
		out.NextStep = types.NextStep(out.Step)
	}
}
