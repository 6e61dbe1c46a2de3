package endpoints

import (
	"errors"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
	"github.com/jackzampolin/folio/internal/types"
)

// ListPagesResponse is the response for listing a book's pages.
type ListPagesResponse struct {
	Pages []*types.Page `json:"pages"`
	Count int           `json:"count"`
}

// ListPagesEndpoint handles GET /api/books/{id}/pages.
type ListPagesEndpoint struct{}

func (e *ListPagesEndpoint) Route() (string, string, http.HandlerFunc) {
	return "GET", "/api/books/{id}/pages", e.handler
}

func (e *ListPagesEndpoint) RequiresInit() bool { return true }

// handler godoc
//
//	@Summary		List pages
//	@Description	List all pages of a book in page order with OCR and translation state
//	@Tags			books
//	@Produce		json
//	@Param			id	path		string	true	"Book ID"
//	@Success		200	{object}	ListPagesResponse
//	@Failure		400	{object}	ErrorResponse
//	@Failure		500	{object}	ErrorResponse
//	@Failure		503	{object}	ErrorResponse
//	@Router			/api/books/{id}/pages [get]
func (e *ListPagesEndpoint) handler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "book id is required")
		return
	}

	pages := svcctx.PagesFrom(r.Context())
	if pages == nil {
		writeError(w, http.StatusServiceUnavailable, "store not initialized")
		return
	}

	list, err := pages.ForBook(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "book not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ListPagesResponse{Pages: list, Count: len(list)})
}

func (e *ListPagesEndpoint) Command(getServerURL func() string) *cobra.Command {
	return &cobra.Command{
		Use:   "pages <book-id>",
		Short: "List pages of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client := api.NewClient(getServerURL())

			var resp ListPagesResponse
			if err := client.Get(ctx, "/api/books/"+args[0]+"/pages", &resp); err != nil {
				return err
			}
			return api.Output(resp)
		},
	}
}
