package jobs

import (
	"errors"
	"testing"
	"time"
)

func TestApplyTransitions(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		status Status
		action Action
		want   Status
		wantOK bool
	}{
		{"pause pending", StatusPending, ActionPause, StatusPaused, true},
		{"pause processing", StatusProcessing, ActionPause, StatusPaused, true},
		{"pause paused", StatusPaused, ActionPause, "", false},
		{"pause completed", StatusCompleted, ActionPause, "", false},
		{"pause failed", StatusFailed, ActionPause, "", false},
		{"pause cancelled", StatusCancelled, ActionPause, "", false},

		{"resume paused", StatusPaused, ActionResume, StatusPending, true},
		{"resume pending", StatusPending, ActionResume, "", false},
		{"resume processing", StatusProcessing, ActionResume, "", false},
		{"resume completed", StatusCompleted, ActionResume, "", false},

		{"cancel pending", StatusPending, ActionCancel, StatusCancelled, true},
		{"cancel processing", StatusProcessing, ActionCancel, StatusCancelled, true},
		{"cancel paused", StatusPaused, ActionCancel, StatusCancelled, true},
		{"cancel failed", StatusFailed, ActionCancel, StatusCancelled, true},
		{"cancel completed", StatusCompleted, ActionCancel, "", false},
		{"cancel cancelled", StatusCancelled, ActionCancel, "", false},

		{"retry failed", StatusFailed, ActionRetry, StatusPending, true},
		{"retry cancelled", StatusCancelled, ActionRetry, StatusPending, true},
		{"retry pending", StatusPending, ActionRetry, "", false},
		{"retry processing", StatusProcessing, ActionRetry, "", false},
		{"retry paused", StatusPaused, ActionRetry, "", false},
		{"retry completed", StatusCompleted, ActionRetry, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := NewRecord(TypeBatchOCR, "book-1", []string{"p1", "p2"}, Config{})
			record.Status = tt.status

			err := record.Apply(tt.action, now)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Apply(%s) error = %v", tt.action, err)
				}
				if record.Status != tt.want {
					t.Errorf("status = %s, want %s", record.Status, tt.want)
				}
			} else {
				if err == nil {
					t.Fatalf("Apply(%s) on %s job succeeded, want rejection", tt.action, tt.status)
				}
				if !errors.Is(err, ErrInvalidTransition) {
					t.Errorf("error = %v, want ErrInvalidTransition", err)
				}
				// Rejection must leave the record unchanged.
				if record.Status != tt.status {
					t.Errorf("status mutated on rejection: %s -> %s", tt.status, record.Status)
				}
			}
		})
	}
}

func TestCancelSetsCompletedAt(t *testing.T) {
	record := NewRecord(TypeBatchOCR, "book-1", []string{"p1"}, Config{})

	if err := record.Apply(ActionCancel, time.Now()); err != nil {
		t.Fatalf("Apply(cancel) error = %v", err)
	}
	if record.CompletedAt == nil {
		t.Error("expected CompletedAt to be set on cancel")
	}
}

func TestRetryResetsFailures(t *testing.T) {
	record := NewRecord(TypeBatchOCR, "book-1", []string{"p1", "p2", "p3", "p4"}, Config{})
	record.MergeResults([]PageResult{
		{PageID: "p1", Success: true, Payload: "text one"},
		{PageID: "p2", Success: false, Error: "empty payload"},
		{PageID: "p3", Success: true, Payload: "text three"},
		{PageID: "p4", Success: false, Error: "empty payload"},
	}, StatusFailed, time.Now())

	if record.Progress.Completed != 2 || record.Progress.Failed != 2 {
		t.Fatalf("progress = %+v, want completed=2 failed=2", record.Progress)
	}

	if err := record.Apply(ActionRetry, time.Now()); err != nil {
		t.Fatalf("Apply(retry) error = %v", err)
	}

	if record.Status != StatusPending {
		t.Errorf("status = %s, want pending", record.Status)
	}
	if record.Progress.Failed != 0 {
		t.Errorf("progress.failed = %d, want 0", record.Progress.Failed)
	}
	if record.Progress.Completed != 2 {
		t.Errorf("progress.completed = %d, want 2 (unchanged)", record.Progress.Completed)
	}
	if record.Progress.Total != 4 {
		t.Errorf("progress.total = %d, want 4 (unchanged)", record.Progress.Total)
	}

	if len(record.Results) != 2 {
		t.Fatalf("results = %d entries, want 2 (only prior successes)", len(record.Results))
	}
	for _, res := range record.Results {
		if !res.Success {
			t.Errorf("failed result %s survived retry", res.PageID)
		}
	}
}

func TestMergeResultsDerivesCounts(t *testing.T) {
	record := NewRecord(TypeBatchTranslate, "book-1", []string{"p1", "p2", "p3"}, Config{})

	record.MergeResults([]PageResult{
		{PageID: "p1", Success: true, Payload: "uno"},
	}, StatusProcessing, time.Now())

	if record.StartedAt == nil {
		t.Error("first processing merge should stamp StartedAt")
	}
	started := *record.StartedAt

	record.MergeResults([]PageResult{
		{PageID: "p2", Success: true, Payload: "dos"},
		{PageID: "p3", Success: false, Error: "no response"},
	}, StatusCompleted, time.Now())

	if record.Progress.Completed != 2 {
		t.Errorf("completed = %d, want 2", record.Progress.Completed)
	}
	if record.Progress.Failed != 1 {
		t.Errorf("failed = %d, want 1", record.Progress.Failed)
	}
	if record.CompletedAt == nil {
		t.Error("completed merge should stamp CompletedAt")
	}
	if !record.StartedAt.Equal(started) {
		t.Error("StartedAt should only be stamped once")
	}
}

func TestMergeResultsReplayKeepsCountsStable(t *testing.T) {
	record := NewRecord(TypeBatchOCR, "book-1", []string{"p1", "p2"}, Config{})

	results := []PageResult{
		{PageID: "p1", Success: true, Payload: "uno"},
		{PageID: "p2", Success: true, Payload: "dos"},
	}
	record.MergeResults(results, StatusCompleted, time.Now())
	record.MergeResults(results, StatusCompleted, time.Now())

	if len(record.Results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(record.Results))
	}
	if record.Progress.Completed != 2 || record.Progress.Failed != 0 {
		t.Errorf("progress = %+v, want 2/0", record.Progress)
	}
	if record.Progress.Completed > record.Progress.Total {
		t.Errorf("completed %d exceeds total %d", record.Progress.Completed, record.Progress.Total)
	}
}

func TestMergeResultsOverwritesByPage(t *testing.T) {
	record := NewRecord(TypeBatchOCR, "book-1", []string{"p1", "p2"}, Config{})

	record.MergeResults([]PageResult{
		{PageID: "p1", Success: false, Error: "no response"},
		{PageID: "p2", Success: true, Payload: "dos"},
	}, StatusProcessing, time.Now())

	// A later pass brings a result for the page that had none.
	record.MergeResults([]PageResult{
		{PageID: "p1", Success: true, Payload: "uno"},
	}, StatusCompleted, time.Now())

	if len(record.Results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(record.Results))
	}
	if record.Progress.Completed != 2 || record.Progress.Failed != 0 {
		t.Errorf("progress = %+v, want 2/0", record.Progress)
	}
	for _, res := range record.Results {
		if res.PageID == "p1" && !res.Success {
			t.Error("p1 should hold the replacement result")
		}
	}
}

func TestNewRecordDefaults(t *testing.T) {
	record := NewRecord(TypeBatchOCR, "book-9", []string{"a", "b", "c"}, Config{Model: "gpt-5-mini", Language: "la"})

	if record.Status != StatusPending {
		t.Errorf("status = %s, want pending", record.Status)
	}
	if record.Progress.Total != 3 {
		t.Errorf("total = %d, want 3", record.Progress.Total)
	}
	if record.Progress.Completed != 0 || record.Progress.Failed != 0 {
		t.Errorf("fresh record has nonzero counts: %+v", record.Progress)
	}
	if record.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}
}
