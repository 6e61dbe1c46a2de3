package pipeline

import (
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/types"
)

func runningState() *types.PipelineState {
	now := time.Now().UTC()
	return &types.PipelineState{
		Status:    types.PipelineRunning,
		StartedAt: &now,
	}
}

// Walks the full step order, completing each step, and checks the pipeline
// only reports completed after the edition step.
func TestStepOrderCompletesAfterEdition(t *testing.T) {
	state := runningState()
	now := time.Now()

	for i, step := range types.StepOrder {
		beginStep(state, step, now)
		if state.CurrentStep != step {
			t.Fatalf("current step = %s, want %s", state.CurrentStep, step)
		}

		out := &Outcome{Step: step, Status: types.StepCompleted}
		applyOutcome(state, out, now)

		isLast := i == len(types.StepOrder)-1
		if isLast {
			if state.Status != types.PipelineCompleted {
				t.Errorf("after edition: status = %s, want completed", state.Status)
			}
			if state.CurrentStep != "" {
				t.Errorf("after edition: current step = %s, want empty", state.CurrentStep)
			}
			if state.CompletedAt == nil {
				t.Error("after edition: completed_at not set")
			}
			if out.NextStep != "" {
				t.Errorf("after edition: next step = %s, want none", out.NextStep)
			}
		} else {
			if state.Status != types.PipelineRunning {
				t.Fatalf("after %s: status = %s, want running", step, state.Status)
			}
			if out.NextStep != types.StepOrder[i+1] {
				t.Errorf("after %s: next = %s, want %s", step, out.NextStep, types.StepOrder[i+1])
			}
		}
	}
}

func TestOCRFailureHaltsPipeline(t *testing.T) {
	state := runningState()
	now := time.Now()

	beginStep(state, types.StepSplitCheck, now)
	applyOutcome(state, &Outcome{Step: types.StepSplitCheck, Status: types.StepSkipped, Result: "3 pages missing crop data"}, now)

	beginStep(state, types.StepOCR, now)
	applyOutcome(state, &Outcome{Step: types.StepOCR, Status: types.StepFailed, Error: "provider batch failed"}, now)

	if state.Status != types.PipelineFailed {
		t.Errorf("status = %s, want failed", state.Status)
	}
	if state.CurrentStep != types.StepOCR {
		t.Errorf("current step = %s, want ocr (kept for diagnostics)", state.CurrentStep)
	}
	if state.Error != "provider batch failed" {
		t.Errorf("error = %q", state.Error)
	}
	if state.Step(types.StepOCR).CompletedAt == nil {
		t.Error("failed step should have completed_at")
	}
}

func TestSkippedStepStillAdvances(t *testing.T) {
	state := runningState()
	now := time.Now()

	beginStep(state, types.StepSplitCheck, now)
	out := &Outcome{Step: types.StepSplitCheck, Status: types.StepSkipped, Result: "5 pages missing crop data"}
	applyOutcome(state, out, now)

	if state.Status != types.PipelineRunning {
		t.Errorf("status = %s, want running", state.Status)
	}
	if out.NextStep != types.StepOCR {
		t.Errorf("next = %s, want ocr", out.NextStep)
	}
	if state.Step(types.StepSplitCheck).Result != "5 pages missing crop data" {
		t.Error("skip result not recorded")
	}
}

func TestJobBackedStepParks(t *testing.T) {
	state := runningState()
	now := time.Now()

	beginStep(state, types.StepOCR, now)
	out := &Outcome{Step: types.StepOCR, Status: types.StepRunning, JobID: "job-1"}
	applyOutcome(state, out, now)

	st := state.Step(types.StepOCR)
	if st.Status != types.StepRunning {
		t.Errorf("step status = %s, want running", st.Status)
	}
	if st.JobID != "job-1" {
		t.Errorf("job id = %s, want job-1", st.JobID)
	}
	if st.CompletedAt != nil {
		t.Error("parked step must not have completed_at")
	}
	if out.NextStep != "" {
		t.Errorf("parked step advanced to %s", out.NextStep)
	}
	if state.Status != types.PipelineRunning {
		t.Errorf("pipeline status = %s, want running", state.Status)
	}
}

func TestNewEdition(t *testing.T) {
	book := &types.Book{ID: "b1", Title: "De Rerum Natura"}
	now := time.Now()

	first := NewEdition(book, "", 120, now)
	if first.Version != 1 {
		t.Errorf("version = %d, want 1", first.Version)
	}
	if first.License != "CC-BY-4.0" {
		t.Errorf("license = %s, want default", first.License)
	}
	if first.PageCount != 120 {
		t.Errorf("page count = %d", first.PageCount)
	}

	book.Edition = first
	second := NewEdition(book, "PD", 124, now)
	if second.Version != 2 {
		t.Errorf("version = %d, want 2", second.Version)
	}
	if second.License != "PD" {
		t.Errorf("license = %s, want PD", second.License)
	}
}

func TestBuildSummaryPrompt(t *testing.T) {
	pages := []*types.Page{
		{PageNumber: 1, Translation: types.TranslationField{Data: "On the nature of things."}},
		{PageNumber: 2, Translation: types.TranslationField{Data: "Atoms move through the void."}},
	}

	prompt := buildSummaryPrompt("De Rerum Natura", pages)
	if !strings.Contains(prompt, `"De Rerum Natura"`) {
		t.Error("title missing from prompt")
	}
	if !strings.Contains(prompt, "--- page 1 ---") || !strings.Contains(prompt, "--- page 2 ---") {
		t.Error("page markers missing")
	}
	if strings.Index(prompt, "nature of things") > strings.Index(prompt, "Atoms move") {
		t.Error("pages out of order in prompt")
	}
}
