// Package types provides shared types used across multiple packages.
// This package has no dependencies on other folio packages to avoid import cycles.
package types

import "time"

// OCRField holds the OCR output stored on a page.
type OCRField struct {
	Language  string     `json:"language,omitempty"`
	Model     string     `json:"model,omitempty"`
	Data      string     `json:"data,omitempty"`
	Source    string     `json:"source,omitempty"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TranslationField holds the translation output stored on a page.
// Translation work requires non-empty OCR data on the same page.
type TranslationField struct {
	SourceLanguage string     `json:"source_language,omitempty"`
	TargetLanguage string     `json:"target_language,omitempty"`
	Model          string     `json:"model,omitempty"`
	Data           string     `json:"data,omitempty"`
	Source         string     `json:"source,omitempty"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Page represents one scanned page of a book.
type Page struct {
	ID          string           `json:"_docID,omitempty"`
	BookID      string           `json:"book_id"`
	PageNumber  int              `json:"page_number"`
	ImageURL    string           `json:"image_url,omitempty"`
	Crop        string           `json:"crop,omitempty"` // JSON-encoded crop geometry, empty until split/crop runs
	OCR         OCRField         `json:"ocr"`
	Translation TranslationField `json:"translation"`
}

// HasOCR reports whether the page carries extracted text.
func (p *Page) HasOCR() bool {
	return p.OCR.Data != ""
}

// HasTranslation reports whether the page carries translated text.
func (p *Page) HasTranslation() bool {
	return p.Translation.Data != ""
}

// NeedsOCR reports whether the page is a candidate for an OCR batch.
func (p *Page) NeedsOCR() bool {
	return !p.HasOCR()
}

// NeedsTranslation reports whether the page is a candidate for a
// translation batch. Pages without OCR text are never candidates.
func (p *Page) NeedsTranslation() bool {
	return p.HasOCR() && !p.HasTranslation()
}

// ResultSource marks fields written by batch result collection.
const ResultSource = "batch"
