// Package ingest turns scanned book PDFs into Book and Page records with
// rendered page images on disk.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// Request contains the parameters for ingesting book scans.
type Request struct {
	PDFPaths []string     // PDF file paths, sorted by numeric suffix before extraction
	Title    string       // Book title, derived from filename if empty
	Author   string       // Book author (optional)
	Logger   *slog.Logger // Optional logger for progress updates
}

// Result reports a completed ingest.
type Result struct {
	BookID    string `json:"book_id"`
	Title     string `json:"title"`
	Author    string `json:"author,omitempty"`
	PageCount int    `json:"page_count"`
}

// Ingest renders every page of the given PDFs to PNG, creates the Book
// record, and creates one Page record per image. Page numbering is
// continuous across multi-part PDFs.
func Ingest(ctx context.Context, books *store.Books, pages *store.Pages, homeDir *home.Dir, req Request) (*Result, error) {
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}

	if len(req.PDFPaths) == 0 {
		return nil, fmt.Errorf("no PDF paths provided")
	}
	for _, p := range req.PDFPaths {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("PDF not found: %s", p)
		}
	}

	sortedPaths := sortPDFsByNumber(req.PDFPaths)
	log.Info("starting ingest", "pdfs", len(sortedPaths), "title", req.Title)

	title := req.Title
	if title == "" {
		title = deriveTitle(sortedPaths[0])
	}

	// Render into a directory named by a placeholder ID; renamed to the
	// document ID once the Book record exists.
	tmpID := uuid.New().String()
	if err := homeDir.EnsureSourceImagesDir(tmpID); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	outDir := homeDir.SourceImagesDir(tmpID)

	pageCount := 0
	for i, pdfPath := range sortedPaths {
		log.Debug("extracting PDF", "file", filepath.Base(pdfPath), "part", i+1, "of", len(sortedPaths))
		count, err := extractImages(ctx, pdfPath, outDir, pageCount)
		if err != nil {
			os.RemoveAll(outDir)
			return nil, fmt.Errorf("failed to extract images from %s: %w", pdfPath, err)
		}
		pageCount += count
	}
	if pageCount == 0 {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("no images extracted from PDFs")
	}

	book := &types.Book{
		Title:     title,
		Author:    req.Author,
		PageCount: pageCount,
		Status:    "ingested",
		CreatedAt: time.Now().UTC(),
	}
	bookID, err := books.Create(ctx, book)
	if err != nil {
		os.RemoveAll(outDir)
		return nil, fmt.Errorf("failed to create Book record: %w", err)
	}

	newDir := homeDir.SourceImagesDir(bookID)
	if err := os.Rename(outDir, newDir); err != nil {
		return nil, fmt.Errorf("failed to rename image directory: %w", err)
	}

	for n := 1; n <= pageCount; n++ {
		page := &types.Page{
			BookID:     bookID,
			PageNumber: n,
			ImageURL:   homeDir.SourceImageURL(bookID, n),
		}
		if _, err := pages.Create(ctx, page); err != nil {
			return nil, fmt.Errorf("failed to create page %d: %w", n, err)
		}
	}

	log.Info("ingest complete", "book_id", bookID, "pages", pageCount)
	return &Result{
		BookID:    bookID,
		Title:     title,
		Author:    req.Author,
		PageCount: pageCount,
	}, nil
}

// extractImages renders all pages of one PDF into outDir with sequential
// naming starting after pageOffset. Pages render concurrently, one worker
// per CPU.
func extractImages(ctx context.Context, pdfPath, outDir string, pageOffset int) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	pageCount, err := pdfapi.PageCount(f, nil)
	f.Close()
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}

	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, runtime.NumCPU())

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{}
		go func(pageInPDF int) {
			defer func() { <-sem }()
			err := renderPage(ctx, pdfPath, outDir, pageInPDF, pageOffset+pageInPDF)
			results <- result{pageNum: pageInPDF, err: err}
		}(page)
	}

	for i := 0; i < pageCount; i++ {
		r := <-results
		if r.err != nil {
			return 0, fmt.Errorf("failed to render page %d: %w", r.pageNum, r.err)
		}
	}
	return pageCount, nil
}

// sortPDFsByNumber sorts PDF paths by their numeric suffix so that
// book-2.pdf comes after book-1.pdf and before book-10.pdf.
func sortPDFsByNumber(paths []string) []string {
	sorted := make([]string, len(paths))
	copy(sorted, paths)

	re := regexp.MustCompile(`-(\d+)\.pdf$`)

	sort.Slice(sorted, func(i, j int) bool {
		mi := re.FindStringSubmatch(sorted[i])
		mj := re.FindStringSubmatch(sorted[j])

		if len(mi) > 1 && len(mj) > 1 {
			ni, _ := strconv.Atoi(mi[1])
			nj, _ := strconv.Atoi(mj[1])
			return ni < nj
		}

		// Files without numbers come first
		if len(mi) > 1 {
			return false
		}
		if len(mj) > 1 {
			return true
		}
		return sorted[i] < sorted[j]
	})

	return sorted
}

// deriveTitle extracts a title from a PDF filename, dropping the extension
// and any part-number suffix like "-1".
func deriveTitle(pdfPath string) string {
	base := filepath.Base(pdfPath)
	name := strings.TrimSuffix(base, filepath.Ext(base))

	re := regexp.MustCompile(`-\d+$`)
	return re.ReplaceAllString(name, "")
}
