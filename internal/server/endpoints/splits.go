package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/gutter"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// AnalyzeSplitsEndpoint handles POST /api/books/{id}/splits/analyze.
type AnalyzeSplitsEndpoint struct{}

func (e *AnalyzeSplitsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/splits/analyze", e.handler
}

func (e *AnalyzeSplitsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Analyze page splits
//	@Description	Locate the gutter on every uncropped page of a book and store crop suggestions
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	gutter.BookAnalysis
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/splits/analyze [post]
func (e *AnalyzeSplitsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	splitter := svcctx.SplitterFrom(r.Context())
	if splitter == nil {
		writeError(w, http.StatusServiceUnavailable, "split analysis not initialized")
		return
	}

	analysis, err := splitter.AnalyzeBook(r.Context(), bookID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, analysis)
}

func (e *AnalyzeSplitsEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze-splits <book-id>",
		Short: "Propose crop splits for the uncropped pages of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var analysis gutter.BookAnalysis
			if err := client.Post(ctx, "/api/books/"+args[0]+"/splits/analyze", nil, &analysis); err != nil {
				return err
			}
			return api.Output(analysis)
		},
	}
}

// CalibrateSplitsRequest bounds the calibration sample.
type CalibrateSplitsRequest struct {
	Samples int `json:"samples,omitempty"`
}

// CalibrateSplitsEndpoint handles POST /api/books/{id}/splits/calibrate.
type CalibrateSplitsEndpoint struct{}

func (e *CalibrateSplitsEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/{id}/splits/calibrate", e.handler
}

func (e *CalibrateSplitsEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Calibrate the split model
//	@Description	Fit the gutter model against vision proposals for sample pages of a book
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string					true	"Book ID"
//	@Param			request	body		CalibrateSplitsRequest	false	"Calibration settings"
//	@Success		200		{object}	gutter.CalibrationResult
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/{id}/splits/calibrate [post]
func (e *CalibrateSplitsEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	bookID := r.PathValue("id")
	if bookID == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	var req CalibrateSplitsRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
			return
		}
	}

	splitter := svcctx.SplitterFrom(r.Context())
	if splitter == nil {
		writeError(w, http.StatusServiceUnavailable, "split analysis not initialized")
		return
	}

	result, err := splitter.CalibrateBook(r.Context(), bookID, req.Samples)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (e *CalibrateSplitsEndpoint) Command(getServerURL func() string) *cobra.Command {
	var samples int

	cmd := &cobra.Command{
		Use:   "calibrate-splits <book-id>",
		Short: "Fit the split model against vision proposals for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var result gutter.CalibrationResult
			err := client.Post(ctx, "/api/books/"+args[0]+"/splits/calibrate",
				CalibrateSplitsRequest{Samples: samples}, &result)
			if err != nil {
				return err
			}
			return api.Output(result)
		},
	}

	cmd.Flags().IntVar(&samples, "samples", 0, "pages to sample for calibration")
	return cmd
}
