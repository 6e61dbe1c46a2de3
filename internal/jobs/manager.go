package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/folio/internal/store"
)

// jobFields is the full field selection for Job queries.
const jobFields = `_docID job_type status book_id page_ids
		progress_total progress_completed progress_failed
		results config error created_at started_at completed_at updated_at`

// Manager handles job record CRUD in the document store. It does not run
// the batch work itself - the provider does - it only tracks lifecycle.
type Manager struct {
	store  *store.Client
	logger *slog.Logger
}

// NewManager creates a new job manager.
func NewManager(client *store.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  client,
		logger: logger,
	}
}

// Create persists a new job record and returns it with its ID set.
func (m *Manager) Create(ctx context.Context, jobType JobType, bookID string, pageIDs []string, cfg Config) (*Record, error) {
	record := NewRecord(jobType, bookID, pageIDs, cfg)

	input, err := recordInput(record)
	if err != nil {
		return nil, err
	}

	id, err := m.store.Create(ctx, "Job", input)
	if err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}
	record.ID = id

	m.logger.Info("job created", "id", id, "type", jobType, "book_id", bookID, "pages", len(pageIDs))
	return record, nil
}

// Get returns a job record by ID.
func (m *Manager) Get(ctx context.Context, jobID string) (*Record, error) {
	id, err := store.SafeID(jobID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`{ Job(docID: %q) { %s } }`, id, jobFields)
	resp, err := m.store.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.Data["Job"].([]any)
	if !ok || len(docs) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	doc, ok := docs[0].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}

	return parseRecord(doc), nil
}

// ListFilter specifies criteria for listing jobs.
type ListFilter struct {
	BookID string  // Filter by book (empty = all)
	Status Status  // Filter by status (empty = all)
	Type   JobType // Filter by job type (empty = all)
	Limit  int     // Max results (0 = default 100)
}

// List returns jobs matching the filter, most recent first.
func (m *Manager) List(ctx context.Context, filter ListFilter) ([]*Record, error) {
	filterParts := []string{}
	if filter.BookID != "" {
		id, err := store.SafeID(filter.BookID)
		if err != nil {
			return nil, err
		}
		filterParts = append(filterParts, fmt.Sprintf(`book_id: {_eq: %q}`, id))
	}
	if filter.Status != "" {
		filterParts = append(filterParts, fmt.Sprintf(`status: {_eq: %q}`, filter.Status))
	}
	if filter.Type != "" {
		filterParts = append(filterParts, fmt.Sprintf(`job_type: {_eq: %q}`, filter.Type))
	}

	filterStr := ""
	if len(filterParts) > 0 {
		filterStr = "filter: {" + strings.Join(filterParts, ", ") + "}, "
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`{ Job(%sorder: {created_at: DESC}, limit: %d) { %s } }`, filterStr, limit, jobFields)
	resp, err := m.store.Query(ctx, query)
	if err != nil {
		return nil, err
	}

	docs, ok := resp.Data["Job"].([]any)
	if !ok {
		return []*Record{}, nil
	}

	records := make([]*Record, 0, len(docs))
	for _, d := range docs {
		doc, ok := d.(map[string]any)
		if !ok {
			continue
		}
		records = append(records, parseRecord(doc))
	}
	return records, nil
}

// Transition applies a user action (pause/resume/cancel/retry) to a job.
// The status write is guarded on the status the action was computed from, so
// two concurrent transitions cannot both win.
func (m *Manager) Transition(ctx context.Context, jobID string, action Action) (*Record, error) {
	record, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	prev := record.Status
	if err := record.Apply(action, time.Now()); err != nil {
		return nil, err
	}

	input, err := mutableInput(record)
	if err != nil {
		return nil, err
	}

	updated, err := m.store.UpdateWhere(ctx, "Job",
		map[string]any{
			"_docID": map[string]any{"_eq": record.ID},
			"status": map[string]any{"_eq": string(prev)},
		},
		input,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to persist transition: %w", err)
	}
	if len(updated) == 0 {
		return nil, fmt.Errorf("%w: job %s changed concurrently", ErrInvalidTransition, jobID)
	}

	m.logger.Info("job transition", "id", jobID, "action", action, "from", prev, "to", record.Status)
	return record, nil
}

// ApplyProgress merges per-page results into a job. Cancelled jobs are left
// untouched: cancellation is a terminal local decision and late provider
// results must never resurrect the job.
func (m *Manager) ApplyProgress(ctx context.Context, jobID string, results []PageResult, status Status) (*Record, error) {
	record, err := m.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if record.Status == StatusCancelled {
		m.logger.Info("skipping progress for cancelled job", "id", jobID)
		return record, nil
	}

	record.MergeResults(results, status, time.Now())

	input, err := mutableInput(record)
	if err != nil {
		return nil, err
	}
	if err := m.store.Update(ctx, "Job", record.ID, input); err != nil {
		return nil, fmt.Errorf("failed to persist progress: %w", err)
	}
	return record, nil
}

// SetError marks a job failed with the given message.
func (m *Manager) SetError(ctx context.Context, jobID, msg string) error {
	record, err := m.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if record.Status == StatusCancelled {
		return nil
	}

	now := time.Now().UTC()
	record.Status = StatusFailed
	record.Error = msg
	if record.CompletedAt == nil {
		record.CompletedAt = &now
	}
	record.UpdatedAt = &now

	input, err := mutableInput(record)
	if err != nil {
		return err
	}
	return m.store.Update(ctx, "Job", record.ID, input)
}

// recordInput builds the full create input for a record.
func recordInput(r *Record) (map[string]any, error) {
	input := map[string]any{
		"job_type":           string(r.Type),
		"status":             string(r.Status),
		"book_id":            r.BookID,
		"page_ids":           r.PageIDs,
		"progress_total":     r.Progress.Total,
		"progress_completed": r.Progress.Completed,
		"progress_failed":    r.Progress.Failed,
		"created_at":         r.CreatedAt.Format(time.RFC3339),
	}

	cfgJSON, err := json.Marshal(r.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	input["config"] = string(cfgJSON)

	if len(r.Results) > 0 {
		resJSON, err := json.Marshal(r.Results)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal results: %w", err)
		}
		input["results"] = string(resJSON)
	}
	return input, nil
}

// mutableInput builds the update input for the fields transitions and
// progress merges may change.
func mutableInput(r *Record) (map[string]any, error) {
	resJSON, err := json.Marshal(r.Results)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal results: %w", err)
	}

	input := map[string]any{
		"status":             string(r.Status),
		"progress_completed": r.Progress.Completed,
		"progress_failed":    r.Progress.Failed,
		"results":            string(resJSON),
		"error":              r.Error,
	}
	if r.StartedAt != nil {
		input["started_at"] = r.StartedAt.Format(time.RFC3339)
	}
	if r.CompletedAt != nil {
		input["completed_at"] = r.CompletedAt.Format(time.RFC3339)
	} else {
		input["completed_at"] = ""
	}
	if r.UpdatedAt != nil {
		input["updated_at"] = r.UpdatedAt.Format(time.RFC3339)
	}
	return input, nil
}

// parseRecord converts a raw document into a Record.
func parseRecord(doc map[string]any) *Record {
	record := &Record{
		ID:     str(doc, "_docID"),
		Type:   JobType(str(doc, "job_type")),
		Status: Status(str(doc, "status")),
		BookID: str(doc, "book_id"),
		Error:  str(doc, "error"),
		Progress: Progress{
			Total:     num(doc, "progress_total"),
			Completed: num(doc, "progress_completed"),
			Failed:    num(doc, "progress_failed"),
		},
	}

	if raw, ok := doc["page_ids"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				record.PageIDs = append(record.PageIDs, s)
			}
		}
	}

	if raw := str(doc, "results"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &record.Results)
	}
	if raw := str(doc, "config"); raw != "" {
		_ = json.Unmarshal([]byte(raw), &record.Config)
	}

	record.CreatedAt = ts(doc, "created_at")
	record.StartedAt = tsPtr(doc, "started_at")
	record.CompletedAt = tsPtr(doc, "completed_at")
	record.UpdatedAt = tsPtr(doc, "updated_at")
	return record
}

func str(doc map[string]any, key string) string {
	s, _ := doc[key].(string)
	return s
}

func num(doc map[string]any, key string) int {
	if f, ok := doc[key].(float64); ok {
		return int(f)
	}
	if i, ok := doc[key].(int); ok {
		return i
	}
	return 0
}

func ts(doc map[string]any, key string) time.Time {
	s, ok := doc[key].(string)
	if !ok || s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func tsPtr(doc map[string]any, key string) *time.Time {
	t := ts(doc, key)
	if t.IsZero() {
		return nil
	}
	return &t
}
