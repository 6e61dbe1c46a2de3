package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/pipeline"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// StartPipelineRequest carries the settings a pipeline starts with.
type StartPipelineRequest struct {
	Model          string `json:"model,omitempty"`
	Language       string `json:"language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	License        string `json:"license,omitempty"`
}

// StartPipelineEndpoint handles POST /api/pipeline/{book_id}/start.
type StartPipelineEndpoint struct{}

func (e *StartPipelineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/pipeline/{book_id}/start", e.handler
}

func (e *StartPipelineEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Start pipeline
//	@Description	Start the processing pipeline for a book and run its first step
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			book_id	path		string					true	"Book ID"
//	@Param			request	body		StartPipelineRequest	false	"Pipeline settings"
//	@Success		200		{object}	pipeline.Outcome
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		409		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pipeline/{book_id}/start [post]
func (e *StartPipelineEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	var req StartPipelineRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline orchestrator not initialized")
		return
	}

	outcome, err := orch.Start(r.Context(), bookID, types.PipelineConfig{
		Model:          req.Model,
		Language:       req.Language,
		TargetLanguage: req.TargetLanguage,
		License:        req.License,
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, pipeline.ErrAlreadyRunning):
			writeError(w, http.StatusConflict, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (e *StartPipelineEndpoint) Command(getServerURL func() string) *cobra.Command {
	var model, language, target, license string

	cmd := &cobra.Command{
		Use:   "start <book-id>",
		Short: "Start the processing pipeline for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			req := StartPipelineRequest{
				Model:          model,
				Language:       language,
				TargetLanguage: target,
				License:        license,
			}

			var outcome pipeline.Outcome
			if err := client.Post(ctx, "/api/pipeline/"+args[0]+"/start", req, &outcome); err != nil {
				return err
			}
			return api.Output(outcome)
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "model override")
	cmd.Flags().StringVar(&language, "language", "", "source language hint")
	cmd.Flags().StringVar(&target, "target-language", "", "translation target language")
	cmd.Flags().StringVar(&license, "license", "", "edition license")
	return cmd
}

// StepPipelineRequest names the step to execute.
type StepPipelineRequest struct {
	Step string `json:"step"`
}

// StepPipelineEndpoint handles POST /api/pipeline/{book_id}/step.
type StepPipelineEndpoint struct{}

func (e *StepPipelineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/pipeline/{book_id}/step", e.handler
}

func (e *StepPipelineEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Execute pipeline step
//	@Description	Execute one named pipeline step for a book
//	@Tags			pipeline
//	@Accept			json
//	@Produce		json
//	@Param			book_id	path		string				true	"Book ID"
//	@Param			request	body		StepPipelineRequest	true	"Step to execute"
//	@Success		200		{object}	pipeline.Outcome
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pipeline/{book_id}/step [post]
func (e *StepPipelineEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	var req StepPipelineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if !types.ValidStep(types.StepName(req.Step)) {
		writeError(w, http.StatusBadRequest, "unknown pipeline step "+req.Step)
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline orchestrator not initialized")
		return
	}

	outcome, err := orch.ExecuteStep(r.Context(), bookID, types.StepName(req.Step))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "book not found")
		case errors.Is(err, pipeline.ErrNoPipeline), errors.Is(err, pipeline.ErrNotRunning):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

func (e *StepPipelineEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "step <book-id> <step>",
		Short: "Execute one pipeline step",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var outcome pipeline.Outcome
			err := client.Post(ctx, "/api/pipeline/"+args[0]+"/step", StepPipelineRequest{Step: args[1]}, &outcome)
			if err != nil {
				return err
			}
			return api.Output(outcome)
		},
	}
}

// GetPipelineEndpoint handles GET /api/pipeline/{book_id}.
type GetPipelineEndpoint struct{}

func (e *GetPipelineEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/pipeline/{book_id}", e.handler
}

func (e *GetPipelineEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get pipeline status
//	@Description	Get the pipeline state of a book including per-step status
//	@Tags			pipeline
//	@Produce		json
//	@Param			book_id	path		string	true	"Book ID"
//	@Success		200		{object}	types.PipelineState
//	@Failure		400		{object}	ErrorResponse
//	@Failure		404		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/pipeline/{book_id} [get]
func (e *GetPipelineEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("book_id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	orch := svcctx.OrchestratorFrom(r.Context())
	if orch == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline orchestrator not initialized")
		return
	}

	state, err := orch.Status(r.Context(), bookID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound), errors.Is(err, pipeline.ErrNoPipeline):
			writeError(w, http.StatusNotFound, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, state)
}

func (e *GetPipelineEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "status <book-id>",
		Short: "Get pipeline status for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var state types.PipelineState
			if err := client.Get(ctx, "/api/pipeline/"+args[0], &state); err != nil {
				return err
			}
			return api.Output(state)
		},
	}
}
