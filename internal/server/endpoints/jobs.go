package endpoints

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// ListJobsResponse is the response for listing jobs.
type ListJobsResponse struct {
	Jobs  []*jobs.Record `json:"jobs"`
	Count int            `json:"count"`
}

// ListJobsEndpoint handles GET /api/jobs.
type ListJobsEndpoint struct{}

func (e *ListJobsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs", e.handler
}

func (e *ListJobsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List jobs
//	@Description	List job records, optionally filtered by book, status, or type
//	@Tags			jobs
//	@Produce		json
//	@Param			book_id	query		string	false	"Filter by book ID"
//	@Param			status	query		string	false	"Filter by status"
//	@Param			type	query		string	false	"Filter by job type"
//	@Param			limit	query		int		false	"Max results (default 100)"
//	@Success		200		{object}	ListJobsResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs [get]
func (e *ListJobsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	filter := jobs.ListFilter{
		BookID: r.URL.Query().Get("book_id"),
		Status: jobs.Status(r.URL.Query().Get("status")),
		Type:   jobs.JobType(r.URL.Query().Get("type")),
		Limit:  intQuery(r, "limit"),
	}

	records, err := jm.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListJobsResponse{Jobs: records, Count: len(records)})
}

func (e *ListJobsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var bookID, status, jobType string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			path := fmt.Sprintf("/api/jobs?limit=%d", limit)
			if bookID != "" {
				path += "&book_id=" + bookID
			}
			if status != "" {
				path += "&status=" + status
			}
			if jobType != "" {
				path += "&type=" + jobType
			}

			var resp ListJobsResponse
			if err := client.Get(ctx, path, &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().StringVar(&bookID, "book", "", "filter by book ID")
	cmd.Flags().StringVar(&status, "status", "", "filter by status")
	cmd.Flags().StringVar(&jobType, "type", "", "filter by job type")
	cmd.Flags().IntVar(&limit, "limit", 100, "max results")
	return cmd
}

// GetJobEndpoint handles GET /api/jobs/{id}.
type GetJobEndpoint struct{}

func (e *GetJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/jobs/{id}", e.handler
}

func (e *GetJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get job by ID
//	@Description	Get a job record including per-page results and progress counts
//	@Tags			jobs
//	@Produce		json
//	@Param			id	path		string	true	"Job ID"
//	@Success		200	{object}	jobs.Record
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/jobs/{id} [get]
func (e *GetJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	job, err := jm.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (e *GetJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <job-id>",
		Short: "Get job details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var job jobs.Record
			if err := client.Get(ctx, "/api/jobs/"+args[0], &job); err != nil {
				return err
			}
			return api.Output(job)
		},
	}
}

// UpdateJobRequest is the request body for job actions.
type UpdateJobRequest struct {
	Action string `json:"action"`
}

// UpdateJobEndpoint handles PATCH /api/jobs/{id}.
type UpdateJobEndpoint struct{}

func (e *UpdateJobEndpoint) Route() (string, string, http.HandlerFunc) {
	return "PATCH", "/api/jobs/{id}", e.handler
}

func (e *UpdateJobEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Update job
//	@Description	Apply a lifecycle action (pause, resume, cancel, retry) to a job
//	@Tags			jobs
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string				true	"Job ID"
//	@Param			request	body		UpdateJobRequest	true	"Action to apply"
//	@Success		200		{object}	jobs.Record
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/jobs/{id} [patch]
func (e *UpdateJobEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "job id is required")
		return
	}

	var req UpdateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	action := jobs.Action(req.Action)
	if !jobs.ValidAction(action) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}

	jm := svcctx.JobManagerFrom(r.Context())
	if jm == nil {
		writeError(w, http.StatusServiceUnavailable, "job manager not initialized")
		return
	}

	job, err := jm.Transition(r.Context(), id, action)
	if err != nil {
		switch {
		case errors.Is(err, jobs.ErrNotFound):
			writeError(w, http.StatusNotFound, "job not found")
		case errors.Is(err, jobs.ErrInvalidTransition):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, job)
}

func (e *UpdateJobEndpoint) Command(getServerURL func() string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update <job-id> <action>",
		Short: "Apply a job action (pause, resume, cancel, retry)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var job jobs.Record
			err := client.Patch(ctx, "/api/jobs/"+args[0], UpdateJobRequest{Action: args[1]}, &job)
			if err != nil {
				return err
			}
			return api.Output(job)
		},
	}
	return cmd
}

// intQuery parses an integer query parameter, returning 0 when absent or
// malformed.
func intQuery(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return 0
	}
	return n
}
