package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/types"
)

// bookFields is the full field selection for Book queries.
var bookFields = []string{
	"_docID",
	"title",
	"author",
	"page_count",
	"status",
	"created_at",
	"summary",
	"summary_model",
	"edition",
	"pipeline",
}

// Books provides typed access to the Book collection.
type Books struct {
	client *Client
}

// NewBooks creates a Book repository backed by the given client.
func NewBooks(client *Client) *Books {
	return &Books{client: client}
}

// Create inserts a new book document and returns its ID.
func (b *Books) Create(ctx context.Context, book *types.Book) (string, error) {
	input := map[string]any{
		"title":      book.Title,
		"page_count": book.PageCount,
		"created_at": book.CreatedAt.UTC().Format(time.RFC3339),
	}
	if book.Author != "" {
		input["author"] = book.Author
	}
	if book.Status != "" {
		input["status"] = book.Status
	}
	return b.client.Create(ctx, "Book", input)
}

// Get returns a book by document ID.
func (b *Books) Get(ctx context.Context, bookID string) (*types.Book, error) {
	id, err := SafeID(bookID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`{ Book(docID: %q) { %s } }`, id, joinFields(bookFields))
	resp, err := b.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("book query error: %s", errMsg)
	}

	docs := docsFrom(resp, "Book")
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: book %s", ErrNotFound, bookID)
	}
	return parseBook(docs[0]), nil
}

// List returns up to limit books, most recent first.
func (b *Books) List(ctx context.Context, limit int) ([]*types.Book, error) {
	if limit <= 0 {
		limit = 100
	}

	query := fmt.Sprintf(`{ Book(order: {created_at: DESC}, limit: %d) { %s } }`, limit, joinFields(bookFields))
	resp, err := b.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("book query error: %s", errMsg)
	}

	docs := docsFrom(resp, "Book")
	books := make([]*types.Book, 0, len(docs))
	for _, doc := range docs {
		books = append(books, parseBook(doc))
	}
	return books, nil
}

// SavePipeline persists the embedded pipeline state of a book.
func (b *Books) SavePipeline(ctx context.Context, bookID string, state *types.PipelineState) error {
	id, err := SafeID(bookID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal pipeline state: %w", err)
	}
	return b.client.Update(ctx, "Book", id, map[string]any{"pipeline": string(raw)})
}

// SaveSummary persists the book summary produced by the summarize step.
func (b *Books) SaveSummary(ctx context.Context, bookID, summary, model string) error {
	id, err := SafeID(bookID)
	if err != nil {
		return err
	}
	return b.client.Update(ctx, "Book", id, map[string]any{
		"summary":       summary,
		"summary_model": model,
	})
}

// SaveEdition persists the edition record produced by the edition step.
func (b *Books) SaveEdition(ctx context.Context, bookID string, edition *types.Edition) error {
	id, err := SafeID(bookID)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(edition)
	if err != nil {
		return fmt.Errorf("failed to marshal edition: %w", err)
	}
	return b.client.Update(ctx, "Book", id, map[string]any{"edition": string(raw)})
}

// parseBook converts a raw document into a typed Book.
func parseBook(doc map[string]any) *types.Book {
	book := &types.Book{
		ID:           parseString(doc, "_docID"),
		Title:        parseString(doc, "title"),
		Author:       parseString(doc, "author"),
		PageCount:    parseInt(doc, "page_count"),
		Status:       parseString(doc, "status"),
		CreatedAt:    parseTime(doc, "created_at"),
		Summary:      parseString(doc, "summary"),
		SummaryModel: parseString(doc, "summary_model"),
	}

	if raw := parseString(doc, "edition"); raw != "" {
		var edition types.Edition
		if err := json.Unmarshal([]byte(raw), &edition); err == nil {
			book.Edition = &edition
		}
	}
	if raw := parseString(doc, "pipeline"); raw != "" {
		var state types.PipelineState
		if err := json.Unmarshal([]byte(raw), &state); err == nil {
			book.Pipeline = &state
		}
	}
	return book
}
