package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/batch"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// SubmitBatchRequest is the request body for submitting a batch job.
type SubmitBatchRequest struct {
	BookID         string `json:"book_id"`
	Type           string `json:"type"`
	Limit          int    `json:"limit,omitempty"`
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// SubmitBatchResponse wraps a submission result with a human message.
type SubmitBatchResponse struct {
	Message string `json:"message,omitempty"`
	*batch.SubmitResult
}

// SubmitBatchEndpoint handles POST /api/jobs/batch.
type SubmitBatchEndpoint struct{}

func (e *SubmitBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/jobs/batch", e.handler
}

func (e *SubmitBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Submit batch job
//	@Description	Select pages needing OCR or translation and submit them as a provider batch
//	@Tags			batch
//	@Accept			json
//	@Produce		json
//	@Param			request	body		SubmitBatchRequest	true	"Submission parameters"
//	@Success		201		{object}	SubmitBatchResponse
//	@Success		200		{object}	SubmitBatchResponse	"No pages needed work"
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs/batch [post]
func (e *SubmitBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req SubmitBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.BookID == "" {
		writeError(w, http.StatusBadRequest, "book_id is required")
		return
	}
	if !jobs.ValidType(jobs.JobType(req.Type)) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown job type %q", req.Type))
		return
	}

	submitter := svcctx.SubmitterFrom(r.Context())
	if submitter == nil {
		writeError(w, http.StatusServiceUnavailable, "batch submitter not initialized")
		return
	}

	result, err := submitter.Submit(r.Context(), batch.SubmitRequest{
		BookID:         req.BookID,
		Type:           jobs.JobType(req.Type),
		Limit:          req.Limit,
		Model:          req.Model,
		Language:       req.Language,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		if errors.Is(err, batch.ErrPrepareFailed) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if result.NoWork {
		writeJSON(w, http.StatusOK, SubmitBatchResponse{
			Message:      "no pages need work",
			SubmitResult: result,
		})
		return
	}

	writeJSON(w, http.StatusCreated, SubmitBatchResponse{SubmitResult: result})
}

func (e *SubmitBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int
	var model, language, target string

	cmd := &cobra.Command{
		Use:   "submit <book-id> <type>",
		Short: "Submit a batch job (batch_ocr or batch_translate)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			req := SubmitBatchRequest{
				BookID:         args[0],
				Type:           args[1],
				Limit:          limit,
				Model:          model,
				Language:       language,
				TargetLanguage: target,
			}

			var resp SubmitBatchResponse
			if err := client.Post(ctx, "/api/jobs/batch", req, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "max pages per batch (0 = server default)")
	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&language, "language", "", "source language hint for OCR")
	cmd.Flags().StringVar(&target, "target-language", "", "translation target language")
	return cmd
}

// ListBatchResponse is the response for listing batch job records.
type ListBatchResponse struct {
	Jobs  []*batch.BatchJob `json:"jobs"`
	Count int               `json:"count"`
}

// PollBatchEndpoint handles GET /api/jobs/batch. With job_name it polls the
// provider and reconciles one batch; with book_id alone it lists records.
type PollBatchEndpoint struct{}

func (e *PollBatchEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/batch", e.handler
}

func (e *PollBatchEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Poll or list batch jobs
//	@Description	With job_name, poll the provider and reconcile that batch. With book_id, list the book's batch records.
//	@Tags			batch
//	@Produce		json
//	@Param			job_name	query		string	false	"Batch job name to poll"
//	@Param			book_id		query		string	false	"Book ID to list batches for"
//	@Param			limit		query		int		false	"Max records when listing"
//	@Success		200			{object}	batch.PollResult
//	@Failure		400			{object}	ErrorResponse
//	@Failure		404			{object}	ErrorResponse
//	@Failure		500			{object}	ErrorResponse
//	@Failure		503			{object}	ErrorResponse
//	@Router			/api/jobs/batch [get]
func (e *PollBatchEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jobName := r.URL.Query().Get("job_name")
	bookID := r.URL.Query().Get("book_id")

	if jobName == "" && bookID == "" {
		writeError(w, http.StatusBadRequest, "job_name or book_id is required")
		return
	}

	if jobName != "" {
		reconciler := svcctx.ReconcilerFrom(r.Context())
		if reconciler == nil {
			writeError(w, http.StatusServiceUnavailable, "batch reconciler not initialized")
			return
		}

		result, err := reconciler.Poll(r.Context(), jobName)
		if err != nil {
			if errors.Is(err, batch.ErrNotFound) {
				writeError(w, http.StatusNotFound, "batch job not found")
				return
			}
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, result)
		return
	}

	records := svcctx.BatchRecordsFrom(r.Context())
	if records == nil {
		writeError(w, http.StatusServiceUnavailable, "batch records not initialized")
		return
	}

	batches, err := records.ForBook(r.Context(), bookID, intQuery(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ListBatchResponse{Jobs: batches, Count: len(batches)})
}

func (e *PollBatchEndpoint) Command(getServerURL func() string) *cobra.Command {
	var bookID, jobName string
	var limit int

	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Poll a batch job or list a book's batches",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			if jobName != "" {
				var result batch.PollResult
				if err := client.Get(ctx, "/api/jobs/batch?job_name="+jobName, &result); err != nil {
					return err
				}
				return api.Output(result)
			}
			if bookID == "" {
				return fmt.Errorf("--job or --book is required")
			}

			var resp ListBatchResponse
			path := fmt.Sprintf("/api/jobs/batch?book_id=%s&limit=%d", bookID, limit)
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().StringVar(&jobName, "job", "", "batch job name to poll")
	cmd.Flags().StringVar(&bookID, "book", "", "book ID to list batches for")
	cmd.Flags().IntVar(&limit, "limit", 20, "max records when listing")
	return cmd
}
