package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// State is the closed local vocabulary for provider batch state. Provider
// strings are translated at the boundary; nothing downstream ever sees a raw
// provider status.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
	StateUnknown   State = "unknown"
)

// stateTable maps the provider's batch status vocabulary to local states.
// Anything not listed normalizes to unknown rather than erroring, so a new
// provider status never breaks polling.
var stateTable = map[string]State{
	"validating":  StatePending,
	"in_progress": StateRunning,
	"finalizing":  StateRunning,
	"completed":   StateSucceeded,
	"failed":      StateFailed,
	"expired":     StateFailed,
	"cancelling":  StateCancelled,
	"cancelled":   StateCancelled,
}

// NormalizeState translates a raw provider status string.
func NormalizeState(raw string) State {
	if s, ok := stateTable[raw]; ok {
		return s
	}
	return StateUnknown
}

// Decision is the outcome of comparing local and remote batch state.
type Decision struct {
	Status  State
	Collect bool // results should be collected this call
	Done    bool // the remote job reached a terminal state
}

// reconcile decides what a poll should do given the local record and the
// normalized remote state. Pure so the decision logic tests without I/O.
func reconcile(local *BatchJob, remote State) Decision {
	d := Decision{Status: remote}

	switch remote {
	case StateSucceeded:
		d.Done = true
		d.Collect = !local.ResultsCollected
	case StateFailed, StateCancelled:
		d.Done = true
	}
	return d
}

// Finalizer is notified when a job-backed pipeline step's batch reaches a
// terminal state. The pipeline orchestrator implements it.
type Finalizer interface {
	FinalizeStep(ctx context.Context, bookID, jobID string, succeeded bool, errMsg string) error
}

// PollResult reports the outcome of one reconciliation pass.
type PollResult struct {
	JobName      string `json:"job_name"`
	Status       State  `json:"status"`
	Collected    bool   `json:"collected"` // collection happened on this call
	SuccessCount int    `json:"success_count"`
	FailCount    int    `json:"fail_count"`
}

// Reconciler polls provider batch state and drives the local records toward
// it, collecting results into the page store exactly once.
type Reconciler struct {
	records   *Records
	pages     *store.Pages
	jobs      *jobs.Manager
	provider  provider.Provider
	finalizer Finalizer
	logger    *slog.Logger
}

// NewReconciler creates a reconciler. finalizer may be nil when no pipeline
// is attached (standalone batch jobs).
func NewReconciler(records *Records, pages *store.Pages, jobManager *jobs.Manager, p provider.Provider, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		records:  records,
		pages:    pages,
		jobs:     jobManager,
		provider: p,
		logger:   logger,
	}
}

// SetFinalizer attaches the pipeline callback. Called once at wiring time.
func (r *Reconciler) SetFinalizer(f Finalizer) {
	r.finalizer = f
}

// Poll reconciles one batch job against the provider. Safe to call from any
// number of concurrent callers; the results_collected latch guarantees page
// writes are counted once.
func (r *Reconciler) Poll(ctx context.Context, jobName string) (*PollResult, error) {
	rec, err := r.records.GetByName(ctx, jobName)
	if err != nil {
		return nil, err
	}

	// Already collected: answer from the record. settle repairs the mirror
	// job if a previous poller crashed between the latch and the job update;
	// once the mirror is terminal this path performs no writes.
	if rec.ResultsCollected {
		r.settle(ctx, rec)
		return &PollResult{
			JobName:      rec.JobName,
			Status:       rec.Status,
			SuccessCount: rec.SuccessCount,
			FailCount:    rec.FailCount,
		}, nil
	}

	snap, err := r.provider.GetBatch(ctx, rec.JobName)
	if err != nil {
		return nil, fmt.Errorf("failed to poll provider: %w", err)
	}

	decision := reconcile(rec, NormalizeState(snap.State))

	if decision.Status != rec.Status {
		if err := r.records.SetStatus(ctx, rec.ID, decision.Status); err != nil {
			return nil, err
		}
	}

	result := &PollResult{JobName: rec.JobName, Status: decision.Status}

	switch {
	case decision.Collect:
		return r.collect(ctx, rec, snap, result)

	case decision.Status == StateFailed:
		r.failMirrorJob(ctx, rec, "provider batch failed")
		r.notifyFinalizer(ctx, rec, false, "provider batch failed")

	case decision.Status == StateCancelled:
		r.failMirrorJob(ctx, rec, "provider batch cancelled")
		r.notifyFinalizer(ctx, rec, false, "provider batch cancelled")

	case decision.Status == StateRunning:
		if rec.JobID != "" {
			if _, err := r.jobs.ApplyProgress(ctx, rec.JobID, nil, jobs.StatusProcessing); err != nil {
				r.logger.Warn("failed to mark mirror job processing", "job_id", rec.JobID, "error", err)
			}
		}
	}

	return result, nil
}

// collect writes per-page results into the page store, then flips the latch
// with the final counts. Page writes land before the latch so a crash in
// between leaves the batch collectable on the next poll; the writes are
// value-idempotent so the replay is harmless.
func (r *Reconciler) collect(ctx context.Context, rec *BatchJob, snap *provider.BatchSnapshot, result *PollResult) (*PollResult, error) {
	now := time.Now().UTC()
	pageResults, success, fail := pairResults(rec.PageIDs, snap)

	for _, res := range pageResults {
		if !res.Success {
			continue
		}
		if err := r.writePage(ctx, rec, res.PageID, res.Payload, now); err != nil {
			return nil, fmt.Errorf("failed to write page %s: %w", res.PageID, err)
		}
	}

	won, err := r.records.Latch(ctx, rec.ID, success, fail, now)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another poller finished first. The page writes above were
		// value-idempotent duplicates; report the winner's counts.
		final, err := r.records.GetByName(ctx, rec.JobName)
		if err != nil {
			return nil, err
		}
		result.Status = final.Status
		result.SuccessCount = final.SuccessCount
		result.FailCount = final.FailCount
		return result, nil
	}

	result.Collected = true
	result.SuccessCount = success
	result.FailCount = fail

	r.logger.Info("batch results collected",
		"job_name", rec.JobName, "success", success, "fail", fail)

	jobStatus := jobs.StatusCompleted
	if success == 0 && fail > 0 {
		jobStatus = jobs.StatusFailed
	}
	if rec.JobID != "" {
		if _, err := r.jobs.ApplyProgress(ctx, rec.JobID, pageResults, jobStatus); err != nil {
			r.logger.Warn("failed to update mirror job", "job_id", rec.JobID, "error", err)
		}
	}

	r.notifyFinalizer(ctx, rec, jobStatus == jobs.StatusCompleted, "")
	return result, nil
}

// settle finishes the local bookkeeping for a batch whose results were
// already collected. If a previous poller died after winning the latch but
// before updating the mirror job, the job would stay processing and a parked
// pipeline step would never finalize; replaying the snapshot into the mirror
// here lets any later poll complete the interrupted collection. A terminal
// mirror job makes this a read-only no-op.
func (r *Reconciler) settle(ctx context.Context, rec *BatchJob) {
	if rec.JobID == "" {
		return
	}
	job, err := r.jobs.Get(ctx, rec.JobID)
	if err != nil {
		r.logger.Warn("failed to load mirror job", "job_id", rec.JobID, "error", err)
		return
	}
	switch job.Status {
	case jobs.StatusCompleted, jobs.StatusFailed, jobs.StatusCancelled:
		return
	}

	snap, err := r.provider.GetBatch(ctx, rec.JobName)
	if err != nil {
		r.logger.Warn("failed to replay batch results", "job_name", rec.JobName, "error", err)
		return
	}
	pageResults, success, fail := pairResults(rec.PageIDs, snap)

	jobStatus := jobs.StatusCompleted
	if success == 0 && fail > 0 {
		jobStatus = jobs.StatusFailed
	}
	if _, err := r.jobs.ApplyProgress(ctx, rec.JobID, pageResults, jobStatus); err != nil {
		r.logger.Warn("failed to update mirror job", "job_id", rec.JobID, "error", err)
		return
	}

	r.logger.Info("mirror job settled after interrupted collection",
		"job_name", rec.JobName, "job_id", rec.JobID)
	r.notifyFinalizer(ctx, rec, jobStatus == jobs.StatusCompleted, "")
}

// pairResults matches submitted page IDs against provider responses in
// submission order. A missing response or an empty payload fails that page
// only, never the whole batch.
func pairResults(pageIDs []string, snap *provider.BatchSnapshot) ([]jobs.PageResult, int, int) {
	results := make([]jobs.PageResult, 0, len(pageIDs))
	success, fail := 0, 0

	for _, pageID := range pageIDs {
		resp := snap.ResponseFor(pageID)
		switch {
		case resp == nil:
			fail++
			results = append(results, jobs.PageResult{
				PageID: pageID, Error: "no response from provider",
			})

		case resp.Error != "" || resp.Content == "":
			fail++
			msg := resp.Error
			if msg == "" {
				msg = "empty payload"
			}
			results = append(results, jobs.PageResult{
				PageID: pageID, Error: msg,
			})

		default:
			success++
			results = append(results, jobs.PageResult{
				PageID: pageID, Success: true, Payload: resp.Content,
			})
		}
	}
	return results, success, fail
}

// writePage applies one successful payload to its page record.
func (r *Reconciler) writePage(ctx context.Context, rec *BatchJob, pageID, payload string, now time.Time) error {
	switch jobs.JobType(rec.JobType) {
	case jobs.TypeBatchOCR:
		return r.pages.WriteOCR(ctx, pageID, types.OCRField{
			Data:      payload,
			Model:     rec.Model,
			Source:    types.ResultSource,
			UpdatedAt: &now,
		})
	case jobs.TypeBatchTranslate:
		return r.pages.WriteTranslation(ctx, pageID, types.TranslationField{
			Data:      payload,
			Model:     rec.Model,
			Source:    types.ResultSource,
			UpdatedAt: &now,
		})
	}
	return fmt.Errorf("unknown job type %q", rec.JobType)
}

// failMirrorJob marks the mirror Job failed. Cancelled jobs stay cancelled;
// the manager enforces that.
func (r *Reconciler) failMirrorJob(ctx context.Context, rec *BatchJob, msg string) {
	if rec.JobID == "" {
		return
	}
	if err := r.jobs.SetError(ctx, rec.JobID, msg); err != nil {
		r.logger.Warn("failed to mark mirror job failed", "job_id", rec.JobID, "error", err)
	}
}

func (r *Reconciler) notifyFinalizer(ctx context.Context, rec *BatchJob, succeeded bool, errMsg string) {
	if r.finalizer == nil {
		return
	}
	if err := r.finalizer.FinalizeStep(ctx, rec.BookID, rec.JobID, succeeded, errMsg); err != nil {
		r.logger.Warn("pipeline finalize failed", "book_id", rec.BookID, "error", err)
	}
}
