// Package batch submits page work to the inference provider's batch API and
// reconciles provider state back into the local stores. The BatchJob record
// is the durable link between a provider job handle and the pages it covers;
// its results_collected flag is a one-way latch that makes collection happen
// exactly once no matter how many pollers race.
package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/store"
)

// ErrNotFound is returned when a batch job record does not exist.
var ErrNotFound = errors.New("batch job not found")

// batchJobFields is the full field selection for BatchJob queries.
const batchJobFields = `_docID job_name job_id job_type book_id model page_ids
		page_count status results_collected success_count fail_count
		submitted_at completed_at`

// BatchJob is the durable record of one provider batch submission.
type BatchJob struct {
	ID               string     `json:"_docID,omitempty"`
	JobName          string     `json:"job_name"`
	JobID            string     `json:"job_id,omitempty"`
	JobType          string     `json:"job_type"`
	BookID           string     `json:"book_id"`
	Model            string     `json:"model"`
	PageIDs          []string   `json:"page_ids"`
	PageCount        int        `json:"page_count"`
	Status           State      `json:"status"`
	ResultsCollected bool       `json:"results_collected"`
	SuccessCount     int        `json:"success_count"`
	FailCount        int        `json:"fail_count"`
	SubmittedAt      time.Time  `json:"submitted_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
}

// Records provides typed access to the BatchJob collection.
type Records struct {
	client *store.Client
}

// NewRecords creates a BatchJob repository backed by the given client.
func NewRecords(client *store.Client) *Records {
	return &Records{client: client}
}

// Create persists a new batch job record.
func (r *Records) Create(ctx context.Context, bj *BatchJob) (string, error) {
	input := map[string]any{
		"job_name":          bj.JobName,
		"job_type":          bj.JobType,
		"book_id":           bj.BookID,
		"model":             bj.Model,
		"page_ids":          bj.PageIDs,
		"page_count":        bj.PageCount,
		"status":            string(bj.Status),
		"results_collected": false,
		"success_count":     0,
		"fail_count":        0,
		"submitted_at":      bj.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if bj.JobID != "" {
		input["job_id"] = bj.JobID
	}

	id, err := r.client.Create(ctx, "BatchJob", input)
	if err != nil {
		return "", fmt.Errorf("failed to create batch job record: %w", err)
	}
	bj.ID = id
	return id, nil
}

// GetByName returns the batch job record for a provider job handle.
func (r *Records) GetByName(ctx context.Context, jobName string) (*BatchJob, error) {
	query := fmt.Sprintf(`{ BatchJob(filter: {job_name: {_eq: %q}}) { %s } }`,
		jobName, batchJobFields)
	resp, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.Data["BatchJob"].([]any)
	if !ok || len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobName)
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobName)
	}
	return parseBatchJob(doc), nil
}

// ForBook returns recent batch jobs for a book, newest first.
func (r *Records) ForBook(ctx context.Context, bookID string, limit int) ([]*BatchJob, error) {
	id, err := store.SafeID(bookID)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	query := fmt.Sprintf(`{
		BatchJob(filter: {book_id: {_eq: %q}}, order: {submitted_at: DESC}, limit: %d) { %s }
	}`, id, limit, batchJobFields)
	resp, err := r.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.Data["BatchJob"].([]any)
	if !ok {
		return []*BatchJob{}, nil
	}
	jobs := make([]*BatchJob, 0, len(docs))
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		jobs = append(jobs, parseBatchJob(doc))
	}
	return jobs, nil
}

// SetStatus persists the normalized provider status. Writing the value the
// record already holds is harmless, so repeat polls need no guard here.
func (r *Records) SetStatus(ctx context.Context, docID string, status State) error {
	return r.client.Update(ctx, "BatchJob", docID, map[string]any{
		"status": string(status),
	})
}

// Latch attempts to flip results_collected from false to true, recording the
// final counts in the same conditional write. It returns true when this
// caller won the latch; a false return means another poller already collected
// (or is about to finish collecting) and this caller must not count anything.
func (r *Records) Latch(ctx context.Context, docID string, success, fail int, completedAt time.Time) (bool, error) {
	updated, err := r.client.UpdateWhere(ctx, "BatchJob",
		map[string]any{
			"_docID":            map[string]any{"_eq": docID},
			"results_collected": map[string]any{"_eq": false},
		},
		map[string]any{
			"results_collected": true,
			"success_count":     success,
			"fail_count":        fail,
			"status":            string(StateSucceeded),
			"completed_at":      completedAt.UTC().Format(time.RFC3339),
		},
	)
	if err != nil {
		return false, fmt.Errorf("failed to latch collection: %w", err)
	}
	return len(updated) > 0, nil
}

// parseBatchJob converts a raw document into a BatchJob.
func parseBatchJob(doc map[string]any) *BatchJob {
	bj := &BatchJob{
		ID:           getString(doc, "_docID"),
		JobName:      getString(doc, "job_name"),
		JobID:        getString(doc, "job_id"),
		JobType:      getString(doc, "job_type"),
		BookID:       getString(doc, "book_id"),
		Model:        getString(doc, "model"),
		Status:       State(getString(doc, "status")),
		PageCount:    getInt(doc, "page_count"),
		SuccessCount: getInt(doc, "success_count"),
		FailCount:    getInt(doc, "fail_count"),
	}

	if b, ok := doc["results_collected"].(bool); ok {
		bj.ResultsCollected = b
	}
	if raw, ok := doc["page_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				bj.PageIDs = append(bj.PageIDs, s)
			}
		}
	}
	if s := getString(doc, "submitted_at"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			bj.SubmittedAt = t
		}
	}
	if s := getString(doc, "completed_at"); s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			bj.CompletedAt = &t
		}
	}
	return bj
}

func getString(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func getInt(doc map[string]any, key string) int {
	if f, ok := doc[key].(float64); ok {
		return int(f)
	}
	if i, ok := doc[key].(int); ok {
		return i
	}
	return 0
}
