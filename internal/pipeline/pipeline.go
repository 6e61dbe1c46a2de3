// Package pipeline sequences the fixed digitization steps for one book:
// split_check, ocr, translate, summarize, edition. Inline steps run and
// advance in a single call; job-backed steps (ocr, translate) hand work to
// the batch provider and wait for the reconciler to finalize them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/batch"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// Sentinel errors for the pipeline package.
var (
	// ErrNotRunning is returned when a step is executed on a pipeline that
	// is not in the running state.
	ErrNotRunning = errors.New("pipeline is not running")

	// ErrNoPipeline is returned when a book has no pipeline state.
	ErrNoPipeline = errors.New("book has no pipeline")

	// ErrAlreadyRunning is returned when starting a pipeline that is
	// already running.
	ErrAlreadyRunning = errors.New("pipeline already running")
)

// summarizeSampleSize bounds how many translated pages feed the summary.
const summarizeSampleSize = 20

// Orchestrator drives the fixed step sequence for books.
type Orchestrator struct {
	books     *store.Books
	pages     *store.Pages
	jobs      *jobs.Manager
	submitter *batch.Submitter
	provider  provider.Provider
	logger    *slog.Logger
}

// NewOrchestrator creates a pipeline orchestrator.
func NewOrchestrator(books *store.Books, pages *store.Pages, jobManager *jobs.Manager, submitter *batch.Submitter, p provider.Provider, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		books:     books,
		pages:     pages,
		jobs:      jobManager,
		submitter: submitter,
		provider:  p,
		logger:    logger,
	}
}

// Start creates pipeline state for a book and executes the first step.
func (o *Orchestrator) Start(ctx context.Context, bookID string, cfg types.PipelineConfig) (*Outcome, error) {
	book, err := o.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Pipeline != nil && book.Pipeline.Status == types.PipelineRunning {
		return nil, fmt.Errorf("%w: book %s", ErrAlreadyRunning, bookID)
	}

	now := time.Now().UTC()
	state := &types.PipelineState{
		Status:    types.PipelineRunning,
		Config:    cfg,
		StartedAt: &now,
	}
	if err := o.books.SavePipeline(ctx, bookID, state); err != nil {
		return nil, err
	}

	o.logger.Info("pipeline started", "book_id", bookID)
	return o.ExecuteStep(ctx, bookID, types.StepOrder[0])
}

// Status returns the pipeline state for a book.
func (o *Orchestrator) Status(ctx context.Context, bookID string) (*types.PipelineState, error) {
	book, err := o.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	if book.Pipeline == nil {
		return nil, fmt.Errorf("%w: book %s", ErrNoPipeline, bookID)
	}
	return book.Pipeline, nil
}

// ExecuteStep runs one named step. Inline steps complete within this call
// and advance the pipeline; job-backed steps return with a job ID and stay
// running until FinalizeStep.
func (o *Orchestrator) ExecuteStep(ctx context.Context, bookID string, step types.StepName) (*Outcome, error) {
	if !types.ValidStep(step) {
		return nil, fmt.Errorf("unknown pipeline step %q", step)
	}

	book, err := o.books.Get(ctx, bookID)
	if err != nil {
		return nil, err
	}
	state := book.Pipeline
	if state == nil {
		return nil, fmt.Errorf("%w: book %s", ErrNoPipeline, bookID)
	}
	if state.Status != types.PipelineRunning {
		return nil, fmt.Errorf("%w: book %s is %s", ErrNotRunning, bookID, state.Status)
	}

	now := time.Now()
	beginStep(state, step, now)
	if err := o.books.SavePipeline(ctx, bookID, state); err != nil {
		return nil, err
	}

	out, err := o.dispatch(ctx, book, state, step)
	if err != nil {
		return nil, err
	}

	applyOutcome(state, out, time.Now())
	if err := o.books.SavePipeline(ctx, bookID, state); err != nil {
		return nil, err
	}

	o.logger.Info("pipeline step finished",
		"book_id", bookID, "step", step, "status", out.Status, "job_id", out.JobID)

	// Inline steps chain forward; a job-backed step parks here until the
	// reconciler finalizes it.
	if out.NextStep != "" {
		return o.ExecuteStep(ctx, bookID, out.NextStep)
	}
	return out, nil
}

// FinalizeStep completes a job-backed step once its batch reached a terminal
// state, then advances the pipeline. Called by the batch reconciler.
func (o *Orchestrator) FinalizeStep(ctx context.Context, bookID, jobID string, succeeded bool, errMsg string) error {
	book, err := o.books.Get(ctx, bookID)
	if err != nil {
		return err
	}
	state := book.Pipeline
	if state == nil || state.Status != types.PipelineRunning {
		// Standalone batch job or halted pipeline; nothing to finalize.
		return nil
	}

	step := state.CurrentStep
	st := state.Step(step)
	if st.Status != types.StepRunning || st.JobID != jobID {
		return nil
	}

	if !succeeded {
		out := &Outcome{Step: step, Status: types.StepFailed, Error: errMsg}
		if out.Error == "" {
			out.Error = "batch job failed"
		}
		applyOutcome(state, out, time.Now())
		if err := o.books.SavePipeline(ctx, bookID, state); err != nil {
			return err
		}
		o.logger.Info("pipeline step finalized",
			"book_id", bookID, "step", step, "status", out.Status)
		return nil
	}

	// One batch covers at most one chunk of the book. Run the step again so
	// remaining pages get their own batch; the no-work branch completes the
	// step and advances once the selector drains.
	o.logger.Info("pipeline step batch finished",
		"book_id", bookID, "step", step, "job_id", jobID)
	_, err = o.ExecuteStep(ctx, bookID, step)
	return err
}

// dispatch runs the step body and returns its outcome without touching the
// pipeline state.
func (o *Orchestrator) dispatch(ctx context.Context, book *types.Book, state *types.PipelineState, step types.StepName) (*Outcome, error) {
	out := &Outcome{Step: step}

	switch step {
	case types.StepSplitCheck:
		missing, err := o.pages.CountMissingCrop(ctx, book.ID)
		if err != nil {
			return nil, err
		}
		if missing == 0 {
			out.Status = types.StepCompleted
			out.Result = "all pages have crop data"
		} else {
			out.Status = types.StepSkipped
			out.Result = fmt.Sprintf("%d pages missing crop data", missing)
		}

	case types.StepOCR:
		return o.dispatchJob(ctx, book.ID, state, jobs.TypeBatchOCR)

	case types.StepTranslate:
		return o.dispatchJob(ctx, book.ID, state, jobs.TypeBatchTranslate)

	case types.StepSummarize:
		return o.dispatchSummarize(ctx, book, state)

	case types.StepEdition:
		return o.dispatchEdition(ctx, book, state)
	}

	return out, nil
}

// dispatchJob submits a batch for a job-backed step. An empty selector means
// the step has nothing left to do and completes immediately.
func (o *Orchestrator) dispatchJob(ctx context.Context, bookID string, state *types.PipelineState, jobType jobs.JobType) (*Outcome, error) {
	step := types.StepOCR
	if jobType == jobs.TypeBatchTranslate {
		step = types.StepTranslate
	}
	out := &Outcome{Step: step}

	result, err := o.submitter.Submit(ctx, batch.SubmitRequest{
		BookID:         bookID,
		Type:           jobType,
		Model:          state.Config.Model,
		Language:       state.Config.Language,
		TargetLanguage: state.Config.TargetLanguage,
	})
	if err != nil {
		if errors.Is(err, batch.ErrPrepareFailed) {
			out.Status = types.StepFailed
			out.Error = err.Error()
			return out, nil
		}
		return nil, err
	}

	if result.NoWork {
		out.Status = types.StepCompleted
		out.Result = "no pages need work"
		return out, nil
	}

	out.Status = types.StepRunning
	out.JobID = result.JobID
	out.Result = fmt.Sprintf("batch %s submitted with %d pages", result.JobName, result.PagesSubmitted)
	return out, nil
}

// dispatchSummarize builds a summary from a bounded sample of translated
// pages with one synchronous model call.
func (o *Orchestrator) dispatchSummarize(ctx context.Context, book *types.Book, state *types.PipelineState) (*Outcome, error) {
	out := &Outcome{Step: types.StepSummarize}

	pages, err := o.pages.Translated(ctx, book.ID, summarizeSampleSize)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		out.Status = types.StepFailed
		out.Error = "no translated pages to summarize"
		return out, nil
	}

	summary, err := o.provider.Chat(ctx, provider.ChatRequest{
		Model:  state.Config.Model,
		System: "You summarize historical books from excerpts of their pages.",
		Prompt: buildSummaryPrompt(book.Title, pages),
	})
	if err != nil {
		out.Status = types.StepFailed
		out.Error = fmt.Sprintf("summarization call failed: %v", err)
		return out, nil
	}

	if err := o.books.SaveSummary(ctx, book.ID, summary, state.Config.Model); err != nil {
		return nil, err
	}

	out.Status = types.StepCompleted
	out.Result = fmt.Sprintf("summary generated from %d pages", len(pages))
	return out, nil
}

// dispatchEdition publishes an edition record for the book. At least one
// translated page is required.
func (o *Orchestrator) dispatchEdition(ctx context.Context, book *types.Book, state *types.PipelineState) (*Outcome, error) {
	out := &Outcome{Step: types.StepEdition}

	translated, err := o.pages.Translated(ctx, book.ID, 0)
	if err != nil {
		return nil, err
	}
	if len(translated) == 0 {
		out.Status = types.StepFailed
		out.Error = "no translated pages, cannot publish edition"
		return out, nil
	}

	edition := NewEdition(book, state.Config.License, len(translated), time.Now())
	if err := o.books.SaveEdition(ctx, book.ID, edition); err != nil {
		return nil, err
	}

	out.Status = types.StepCompleted
	out.Result = fmt.Sprintf("edition v%d published with %d pages", edition.Version, edition.PageCount)
	return out, nil
}

// NewEdition builds the next edition record for a book, bumping the version
// when one was published before.
func NewEdition(book *types.Book, license string, pageCount int, now time.Time) *types.Edition {
	version := 1
	if book.Edition != nil {
		version = book.Edition.Version + 1
	}
	if license == "" {
		license = "CC-BY-4.0"
	}
	return &types.Edition{
		Version:   version,
		License:   license,
		PageCount: pageCount,
		CreatedAt: now.UTC(),
	}
}

// buildSummaryPrompt concatenates translated page text in page order.
func buildSummaryPrompt(title string, pages []*types.Page) string {
	var b strings.Builder
	b.WriteString("Summarize the following book")
	if title != "" {
		fmt.Fprintf(&b, " titled %q", title)
	}
	b.WriteString(" based on these translated page excerpts. ")
	b.WriteString("Write two or three paragraphs covering subject, structure, and notable content.\n")
	for _, page := range pages {
		fmt.Fprintf(&b, "\n--- page %d ---\n%s\n", page.PageNumber, page.Translation.Data)
	}
	return b.String()
}
