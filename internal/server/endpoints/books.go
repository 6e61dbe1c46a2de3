package endpoints

import (
	"encoding/json"
	"errors"
	"net/http"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/ingest"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// IngestBookRequest is the request body for ingesting book scans.
type IngestBookRequest struct {
	PDFPaths []string `json:"pdf_paths"`
	Title    string   `json:"title,omitempty"`
	Author   string   `json:"author,omitempty"`
}

// IngestBookEndpoint handles POST /api/books/ingest.
type IngestBookEndpoint struct{}

func (e *IngestBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "POST", "/api/books/ingest", e.handler
}

func (e *IngestBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Ingest book
//	@Description	Render the given PDFs to page images and create Book and Page records
//	@Tags			books
//	@Accept			json
//	@Produce		json
//	@Param			request	body		IngestBookRequest	true	"PDFs to ingest"
//	@Success		201		{object}	ingest.Result
//	@Failure		400		{object}	ErrorResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books/ingest [post]
func (e *IngestBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	var req IngestBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.PDFPaths) == 0 {
		writeError(w, http.StatusBadRequest, "pdf_paths is required")
		return
	}

	books := svcctx.BooksFrom(r.Context())
	pages := svcctx.PagesFrom(r.Context())
	homeDir := svcctx.HomeFrom(r.Context())
	if books == nil || pages == nil || homeDir == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	result, err := ingest.Ingest(r.Context(), books, pages, homeDir, ingest.Request{
		PDFPaths: req.PDFPaths,
		Title:    req.Title,
		Author:   req.Author,
		Logger:   svcctx.LoggerFrom(r.Context()),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, result)
}

func (e *IngestBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	var title, author string

	cmd := &cobra.Command{
		Use:   "ingest <pdf> [pdf...]",
		Short: "Ingest book scans from PDF files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			// Server resolves paths relative to its own working
			// directory, so send absolutes.
			paths := make([]string, 0, len(args))
			for _, a := range args {
				abs, err := filepath.Abs(a)
				if err != nil {
					return err
				}
				paths = append(paths, abs)
			}

			req := IngestBookRequest{PDFPaths: paths, Title: title, Author: author}
			var result ingest.Result
			if err := client.Post(ctx, "/api/books/ingest", req, &result); err != nil {
				return err
			}
			return api.Output(result)
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "book title (derived from filename if empty)")
	cmd.Flags().StringVar(&author, "author", "", "book author")
	return cmd
}

// ListBooksResponse is the response for listing books.
type ListBooksResponse struct {
	Books []*types.Book `json:"books"`
	Count int           `json:"count"`
}

// ListBooksEndpoint handles GET /api/books.
type ListBooksEndpoint struct{}

func (e *ListBooksEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books", e.handler
}

func (e *ListBooksEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List books
//	@Description	List books, most recent first
//	@Tags			books
//	@Produce		json
//	@Param			limit	query		int	false	"Max results (default 100)"
//	@Success		200		{object}	ListBooksResponse
//	@Failure		500		{object}	ErrorResponse
//	@Failure		503		{object}	ErrorResponse
//	@Router			/api/books [get]
func (e *ListBooksEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	books := svcctx.BooksFrom(r.Context())
	if books == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	list, err := books.List(r.Context(), intQuery(r, "limit"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListBooksResponse{Books: list, Count: len(list)})
}

func (e *ListBooksEndpoint) Command(getServerURL func() string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List books",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var resp ListBooksResponse
			if err := client.Get(ctx, "/api/books", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 100, "max results")
	return cmd
}

// GetBookEndpoint handles GET /api/books/{id}.
type GetBookEndpoint struct{}

func (e *GetBookEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}", e.handler
}

func (e *GetBookEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		Get book by ID
//	@Description	Get a book including its summary, edition, and pipeline state
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	types.Book
//	@Failure		400	{object}	ErrorResponse
//	@Failure		404	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id} [get]
func (e *GetBookEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	books := svcctx.BooksFrom(r.Context())
	if books == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	book, err := books.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, book)
}

func (e *GetBookEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "get <book-id>",
		Short: "Get book details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var book types.Book
			if err := client.Get(ctx, "/api/books/"+args[0], &book); err != nil {
				return err
			}
			return api.Output(book)
		},
	}
}
