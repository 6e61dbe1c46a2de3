// Package jobs implements the durable job registry. A Job record tracks one
// chunk of batch work (OCR or translation for a set of pages) across process
// restarts. Records move only through the transitions defined here; all other
// (status, action) pairs are rejected without mutation.
package jobs

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the jobs package.
var (
	// ErrInvalidTransition is returned when an action is not valid for the
	// job's current status.
	ErrInvalidTransition = errors.New("invalid job transition")

	// ErrNotFound is returned when a job does not exist.
	ErrNotFound = errors.New("job not found")
)

// JobType identifies the kind of batch work a job tracks.
type JobType string

const (
	TypeBatchOCR       JobType = "batch_ocr"
	TypeBatchTranslate JobType = "batch_translate"
)

// ValidType reports whether the job type is known.
func ValidType(t JobType) bool {
	return t == TypeBatchOCR || t == TypeBatchTranslate
}

// Status represents the current state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusPaused     Status = "paused"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Terminal reports whether the status admits no further work.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Action is a user-requested job transition.
type Action string

const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionCancel Action = "cancel"
	ActionRetry  Action = "retry"
)

// ValidAction reports whether the action is known.
func ValidAction(a Action) bool {
	switch a {
	case ActionPause, ActionResume, ActionCancel, ActionRetry:
		return true
	}
	return false
}

// PageResult records the outcome of one page within a batch.
// Exactly one of Payload or Error is meaningful, selected by Success.
type PageResult struct {
	PageID  string `json:"page_id"`
	Success bool   `json:"success"`
	Payload string `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Progress summarizes per-page outcomes. Completed and Failed are derived
// from the results list when results merge, so the counts cannot drift from
// the entries.
type Progress struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Config carries the model settings a job was created with.
type Config struct {
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// Record represents a job record stored in the document store.
type Record struct {
	ID          string       `json:"_docID,omitempty"`
	Type        JobType      `json:"job_type"`
	Status      Status       `json:"status"`
	Progress    Progress     `json:"progress"`
	BookID      string       `json:"book_id"`
	PageIDs     []string     `json:"page_ids"`
	Results     []PageResult `json:"results,omitempty"`
	Config      Config       `json:"config"`
	Error       string       `json:"error,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	StartedAt   *time.Time   `json:"started_at,omitempty"`
	CompletedAt *time.Time   `json:"completed_at,omitempty"`
	UpdatedAt   *time.Time   `json:"updated_at,omitempty"`
}

// NewRecord creates a new job record in the pending state.
func NewRecord(jobType JobType, bookID string, pageIDs []string, cfg Config) *Record {
	return &Record{
		Type:      jobType,
		Status:    StatusPending,
		Progress:  Progress{Total: len(pageIDs)},
		BookID:    bookID,
		PageIDs:   pageIDs,
		Config:    cfg,
		CreatedAt: time.Now().UTC(),
	}
}

// invalidTransition builds the rejection error naming the offending pair.
func invalidTransition(status Status, action Action) error {
	return fmt.Errorf("%w: cannot %s a %s job", ErrInvalidTransition, action, status)
}

// Apply performs a user action on the record. On rejection the record is
// left untouched and the error wraps ErrInvalidTransition.
func (r *Record) Apply(action Action, now time.Time) error {
	switch action {
	case ActionPause:
		if r.Status != StatusPending && r.Status != StatusProcessing {
			return invalidTransition(r.Status, action)
		}
		r.Status = StatusPaused

	case ActionResume:
		if r.Status != StatusPaused {
			return invalidTransition(r.Status, action)
		}
		r.Status = StatusPending

	case ActionCancel:
		if r.Status == StatusCompleted || r.Status == StatusCancelled {
			return invalidTransition(r.Status, action)
		}
		r.Status = StatusCancelled
		t := now.UTC()
		r.CompletedAt = &t

	case ActionRetry:
		if r.Status != StatusFailed && r.Status != StatusCancelled {
			return invalidTransition(r.Status, action)
		}
		// Drop failed entries so they are retried; keep prior successes so
		// a resubmission never recomputes already-successful pages.
		kept := r.Results[:0:0]
		for _, res := range r.Results {
			if res.Success {
				kept = append(kept, res)
			}
		}
		r.Results = kept
		r.Progress.Failed = 0
		r.Status = StatusPending
		r.Error = ""
		r.CompletedAt = nil

	default:
		return invalidTransition(r.Status, action)
	}

	t := now.UTC()
	r.UpdatedAt = &t
	return nil
}

// MergeResults merges per-page outcomes from a worker or reconciler into the
// record and recomputes the derived counts. Entries are keyed by PageID: a
// replayed merge overwrites in place instead of appending, so counts never
// exceed the page set. The first merge that moves the record into processing
// stamps StartedAt.
func (r *Record) MergeResults(results []PageResult, status Status, now time.Time) {
	index := make(map[string]int, len(r.Results))
	for i, res := range r.Results {
		index[res.PageID] = i
	}
	for _, res := range results {
		if i, ok := index[res.PageID]; ok {
			r.Results[i] = res
			continue
		}
		index[res.PageID] = len(r.Results)
		r.Results = append(r.Results, res)
	}

	completed, failed := 0, 0
	for _, res := range r.Results {
		if res.Success {
			completed++
		} else {
			failed++
		}
	}
	r.Progress.Completed = completed
	r.Progress.Failed = failed

	t := now.UTC()
	if status != "" {
		if status == StatusProcessing && r.StartedAt == nil {
			r.StartedAt = &t
		}
		if (status == StatusCompleted || status == StatusFailed) && r.CompletedAt == nil {
			r.CompletedAt = &t
		}
		r.Status = status
	}
	r.UpdatedAt = &t
}
