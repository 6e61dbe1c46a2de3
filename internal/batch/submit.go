package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// ErrPrepareFailed is returned when candidate pages existed but none could be
// turned into a provider request. Distinct from "no pages need work" so the
// caller can tell an outage from completion.
var ErrPrepareFailed = errors.New("no batch requests could be prepared")

const (
	defaultBatchLimit = 50
	ocrMaxTokens      = 8192

	ocrSystemPrompt = "You are a meticulous transcriptionist for scanned historical book pages."
	ocrPrompt       = "Transcribe all text on this page exactly as printed. " +
		"Preserve line breaks, original spelling, and punctuation. " +
		"Return only the transcription with no commentary."

	translateSystemPrompt = "You are a careful translator of historical texts."
)

// SubmitRequest describes one batch submission.
type SubmitRequest struct {
	BookID         string
	Type           jobs.JobType
	Limit          int
	Model          string
	Language       string // source language hint for OCR
	TargetLanguage string // translation target, defaults to English
}

// SubmitResult reports what a submission did.
type SubmitResult struct {
	JobName        string `json:"job_name,omitempty"`
	JobID          string `json:"job_id,omitempty"`
	PagesSubmitted int    `json:"pages_submitted"`

	// NoWork is true when no pages matched the selector. The provider was
	// not contacted and no records were created.
	NoWork bool `json:"no_work,omitempty"`
}

// Submitter builds and submits provider batches from pending pages.
type Submitter struct {
	pages    *store.Pages
	records  *Records
	jobs     *jobs.Manager
	provider provider.Provider
	fetcher  *provider.ImageFetcher
	logger   *slog.Logger
}

// NewSubmitter creates a batch submitter.
func NewSubmitter(pages *store.Pages, records *Records, jobManager *jobs.Manager, p provider.Provider, fetcher *provider.ImageFetcher, logger *slog.Logger) *Submitter {
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = provider.NewImageFetcher(0)
	}
	return &Submitter{
		pages:    pages,
		records:  records,
		jobs:     jobManager,
		provider: p,
		fetcher:  fetcher,
		logger:   logger,
	}
}

// Submit selects up to req.Limit pages needing work, builds one provider
// request per page, submits them as a batch, and persists the BatchJob plus
// a mirror Job for pause/cancel control.
func (s *Submitter) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	if !jobs.ValidType(req.Type) {
		return nil, fmt.Errorf("unknown job type %q", req.Type)
	}
	if req.Limit <= 0 {
		req.Limit = defaultBatchLimit
	}

	all, err := s.pages.ForBook(ctx, req.BookID)
	if err != nil {
		return nil, err
	}

	candidates := SelectPages(all, req.Type, req.Limit)
	if len(candidates) == 0 {
		return &SubmitResult{NoWork: true}, nil
	}

	items := s.buildItems(ctx, candidates, req)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %d candidates, 0 prepared", ErrPrepareFailed, len(candidates))
	}

	handle, err := s.provider.SubmitBatch(ctx, req.Model, items)
	if err != nil {
		return nil, fmt.Errorf("batch submission failed: %w", err)
	}

	pageIDs := make([]string, len(items))
	for i, item := range items {
		pageIDs[i] = item.Key
	}

	record, err := s.jobs.Create(ctx, req.Type, req.BookID, pageIDs, jobs.Config{
		Model:          req.Model,
		Language:       req.Language,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		return nil, err
	}

	bj := &BatchJob{
		JobName:     handle.Name,
		JobID:       record.ID,
		JobType:     string(req.Type),
		BookID:      req.BookID,
		Model:       req.Model,
		PageIDs:     pageIDs,
		PageCount:   len(pageIDs),
		Status:      NormalizeState(handle.State),
		SubmittedAt: time.Now().UTC(),
	}
	if _, err := s.records.Create(ctx, bj); err != nil {
		return nil, err
	}

	s.logger.Info("batch submitted",
		"job_name", handle.Name, "type", req.Type,
		"book_id", req.BookID, "pages", len(pageIDs),
		"skipped", len(candidates)-len(items))

	return &SubmitResult{
		JobName:        handle.Name,
		JobID:          record.ID,
		PagesSubmitted: len(pageIDs),
	}, nil
}

// SelectPages filters pages to those the job type still needs, in page
// order, up to limit. OCR wants pages with no transcription; translation
// wants transcribed pages with no translation.
func SelectPages(pages []*types.Page, jobType jobs.JobType, limit int) []*types.Page {
	selected := make([]*types.Page, 0, limit)
	for _, page := range pages {
		switch jobType {
		case jobs.TypeBatchOCR:
			if !page.NeedsOCR() {
				continue
			}
		case jobs.TypeBatchTranslate:
			if !page.NeedsTranslation() {
				continue
			}
		default:
			continue
		}
		selected = append(selected, page)
		if limit > 0 && len(selected) >= limit {
			break
		}
	}
	return selected
}

// buildItems converts candidate pages into provider requests. A page whose
// image cannot be fetched is skipped, not failed; a later submission will
// pick it up again.
func (s *Submitter) buildItems(ctx context.Context, candidates []*types.Page, req SubmitRequest) []provider.BatchItem {
	items := make([]provider.BatchItem, 0, len(candidates))
	for _, page := range candidates {
		switch req.Type {
		case jobs.TypeBatchOCR:
			if page.ImageURL == "" {
				s.logger.Warn("page has no image, skipping", "page_id", page.ID)
				continue
			}
			dataURL, err := s.fetcher.FetchDataURL(ctx, page.ImageURL)
			if err != nil {
				s.logger.Warn("image fetch failed, skipping page",
					"page_id", page.ID, "error", err)
				continue
			}
			items = append(items, provider.BatchItem{
				Key:          page.ID,
				System:       ocrSystemPrompt,
				Prompt:       ocrPromptFor(req.Language),
				ImageDataURL: dataURL,
				MaxTokens:    ocrMaxTokens,
			})

		case jobs.TypeBatchTranslate:
			items = append(items, provider.BatchItem{
				Key:       page.ID,
				System:    translateSystemPrompt,
				Prompt:    translatePrompt(page.OCR.Data, page.OCR.Language, req.TargetLanguage),
				MaxTokens: ocrMaxTokens,
			})
		}
	}
	return items
}

func ocrPromptFor(language string) string {
	if language == "" {
		return ocrPrompt
	}
	return ocrPrompt + " The page is primarily in " + language + "."
}

func translatePrompt(text, sourceLanguage, targetLanguage string) string {
	if targetLanguage == "" {
		targetLanguage = "English"
	}
	header := fmt.Sprintf("Translate the following page text into %s. "+
		"Preserve paragraph structure. Return only the translation.", targetLanguage)
	if sourceLanguage != "" {
		header = fmt.Sprintf("Translate the following %s page text into %s. "+
			"Preserve paragraph structure. Return only the translation.", sourceLanguage, targetLanguage)
	}
	return header + "\n\n" + text
}
