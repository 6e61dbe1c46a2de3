package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackzampolin/folio/internal/types"
)

// pageFields is the full field selection for Page queries.
var pageFields = []string{
	"_docID",
	"book_id",
	"page_number",
	"image_url",
	"crop",
	"ocr_language",
	"ocr_model",
	"ocr_data",
	"ocr_source",
	"ocr_updated_at",
	"translation_source_language",
	"translation_target_language",
	"translation_model",
	"translation_data",
	"translation_source",
	"translation_updated_at",
}

// Pages provides typed access to the Page collection.
type Pages struct {
	client *Client
}

// NewPages creates a Page repository backed by the given client.
func NewPages(client *Client) *Pages {
	return &Pages{client: client}
}

// Create inserts a new page document and returns its ID.
func (p *Pages) Create(ctx context.Context, page *types.Page) (string, error) {
	input := map[string]any{
		"book_id":     page.BookID,
		"page_number": page.PageNumber,
	}
	if page.ImageURL != "" {
		input["image_url"] = page.ImageURL
	}
	return p.client.Create(ctx, "Page", input)
}

// Get returns a single page by document ID.
func (p *Pages) Get(ctx context.Context, pageID string) (*types.Page, error) {
	id, err := SafeID(pageID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`{ Page(docID: %q) { %s } }`, id, joinFields(pageFields))
	resp, err := p.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("page query error: %s", errMsg)
	}

	docs := docsFrom(resp, "Page")
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: page %s", ErrNotFound, pageID)
	}
	return parsePage(docs[0]), nil
}

// ForBook returns all pages of a book ordered by page number.
func (p *Pages) ForBook(ctx context.Context, bookID string) ([]*types.Page, error) {
	id, err := SafeID(bookID)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`{
		Page(filter: {book_id: {_eq: %q}}, order: {page_number: ASC}) { %s }
	}`, id, joinFields(pageFields))

	resp, err := p.client.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	if errMsg := resp.Error(); errMsg != "" {
		return nil, fmt.Errorf("page query error: %s", errMsg)
	}

	docs := docsFrom(resp, "Page")
	pages := make([]*types.Page, 0, len(docs))
	for _, doc := range docs {
		pages = append(pages, parsePage(doc))
	}
	return pages, nil
}

// Translated returns up to limit translated pages of a book in page order.
// A limit of 0 or less returns all translated pages.
func (p *Pages) Translated(ctx context.Context, bookID string, limit int) ([]*types.Page, error) {
	pages, err := p.ForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	translated := make([]*types.Page, 0, len(pages))
	for _, page := range pages {
		if page.HasTranslation() {
			translated = append(translated, page)
			if limit > 0 && len(translated) >= limit {
				break
			}
		}
	}
	return translated, nil
}

// CountMissingCrop returns how many pages of a book have no crop data.
func (p *Pages) CountMissingCrop(ctx context.Context, bookID string) (int, error) {
	pages, err := p.ForBook(ctx, bookID)
	if err != nil {
		return 0, err
	}

	missing := 0
	for _, page := range pages {
		if page.Crop == "" {
			missing++
		}
	}
	return missing, nil
}

// WriteOCR writes collected OCR output onto a page. Called only by batch
// result collection; the write is value-idempotent so replays are safe.
func (p *Pages) WriteOCR(ctx context.Context, pageID string, field types.OCRField) error {
	id, err := SafeID(pageID)
	if err != nil {
		return err
	}

	input := map[string]any{
		"ocr_data":   field.Data,
		"ocr_model":  field.Model,
		"ocr_source": field.Source,
	}
	if field.Language != "" {
		input["ocr_language"] = field.Language
	}
	if field.UpdatedAt != nil {
		input["ocr_updated_at"] = field.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return p.client.Update(ctx, "Page", id, input)
}

// WriteTranslation writes collected translation output onto a page.
func (p *Pages) WriteTranslation(ctx context.Context, pageID string, field types.TranslationField) error {
	id, err := SafeID(pageID)
	if err != nil {
		return err
	}

	input := map[string]any{
		"translation_data":   field.Data,
		"translation_model":  field.Model,
		"translation_source": field.Source,
	}
	if field.SourceLanguage != "" {
		input["translation_source_language"] = field.SourceLanguage
	}
	if field.TargetLanguage != "" {
		input["translation_target_language"] = field.TargetLanguage
	}
	if field.UpdatedAt != nil {
		input["translation_updated_at"] = field.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return p.client.Update(ctx, "Page", id, input)
}

// WriteCrop stores crop geometry on a page.
func (p *Pages) WriteCrop(ctx context.Context, pageID string, crop string) error {
	id, err := SafeID(pageID)
	if err != nil {
		return err
	}
	return p.client.Update(ctx, "Page", id, map[string]any{"crop": crop})
}

// parsePage converts a raw document into a typed Page.
func parsePage(doc map[string]any) *types.Page {
	page := &types.Page{
		ID:         parseString(doc, "_docID"),
		BookID:     parseString(doc, "book_id"),
		PageNumber: parseInt(doc, "page_number"),
		ImageURL:   parseString(doc, "image_url"),
		Crop:       parseString(doc, "crop"),
		OCR: types.OCRField{
			Language:  parseString(doc, "ocr_language"),
			Model:     parseString(doc, "ocr_model"),
			Data:      parseString(doc, "ocr_data"),
			Source:    parseString(doc, "ocr_source"),
			UpdatedAt: parseTimePtr(doc, "ocr_updated_at"),
		},
		Translation: types.TranslationField{
			SourceLanguage: parseString(doc, "translation_source_language"),
			TargetLanguage: parseString(doc, "translation_target_language"),
			Model:          parseString(doc, "translation_model"),
			Data:           parseString(doc, "translation_data"),
			Source:         parseString(doc, "translation_source"),
			UpdatedAt:      parseTimePtr(doc, "translation_updated_at"),
		},
	}
	return page
}
