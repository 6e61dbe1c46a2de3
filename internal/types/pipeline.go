package types

import "time"

// StepName identifies one step of the fixed book pipeline.
type StepName string

const (
	StepSplitCheck StepName = "split_check"
	StepOCR        StepName = "ocr"
	StepTranslate  StepName = "translate"
	StepSummarize  StepName = "summarize"
	StepEdition    StepName = "edition"
)

// StepOrder is the fixed execution order of the pipeline.
// There is no branching; a step may report "skipped" but the sequence
// itself never changes.
var StepOrder = []StepName{
	StepSplitCheck,
	StepOCR,
	StepTranslate,
	StepSummarize,
	StepEdition,
}

// NextStep returns the step after the given one, or "" if it is the last.
func NextStep(step StepName) StepName {
	for i, s := range StepOrder {
		if s == step && i+1 < len(StepOrder) {
			return StepOrder[i+1]
		}
	}
	return ""
}

// ValidStep reports whether the name is a known pipeline step.
func ValidStep(step StepName) bool {
	for _, s := range StepOrder {
		if s == step {
			return true
		}
	}
	return false
}

// PipelineStatus is the status of a whole pipeline.
type PipelineStatus string

const (
	PipelineIdle      PipelineStatus = "idle"
	PipelineRunning   PipelineStatus = "running"
	PipelinePaused    PipelineStatus = "paused"
	PipelineCompleted PipelineStatus = "completed"
	PipelineFailed    PipelineStatus = "failed"
)

// StepStatus is the status of a single pipeline step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepSkipped   StepStatus = "skipped"
	StepFailed    StepStatus = "failed"
)

// StepState is the persisted state of one pipeline step.
type StepState struct {
	Status      StepStatus `json:"status"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Result      string     `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
	JobID       string     `json:"job_id,omitempty"`
}

// PipelineConfig carries per-pipeline settings chosen at start.
type PipelineConfig struct {
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	License        string `json:"license,omitempty"`
}

// PipelineState is the pipeline bookkeeping embedded in a Book document.
// It is created when a pipeline starts and mutated only by the orchestrator.
type PipelineState struct {
	Status      PipelineStatus          `json:"status"`
	CurrentStep StepName                `json:"current_step,omitempty"`
	Steps       map[StepName]*StepState `json:"steps"`
	Config      PipelineConfig          `json:"config"`
	Error       string                  `json:"error,omitempty"`
	StartedAt   *time.Time              `json:"started_at,omitempty"`
	CompletedAt *time.Time              `json:"completed_at,omitempty"`
}

// Step returns the state for a step, allocating it if absent.
func (p *PipelineState) Step(name StepName) *StepState {
	if p.Steps == nil {
		p.Steps = make(map[StepName]*StepState)
	}
	st, ok := p.Steps[name]
	if !ok {
		st = &StepState{Status: StepPending}
		p.Steps[name] = st
	}
	return st
}
