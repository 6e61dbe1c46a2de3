package gutter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"log/slog"

	_ "image/jpeg"
	_ "image/png"

	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

// defaultCalibrationSample bounds how many pages feed one calibration run.
const defaultCalibrationSample = 10

// Suggestion is the crop proposal split analysis stores on a page. The
// split_check pipeline step treats any page carrying one as resolved.
type Suggestion struct {
	SplitRatio float64               `json:"split_ratio"`
	Confidence types.ConfidenceLevel `json:"confidence"`
	Source     string                `json:"source"` // "heuristic" or "model"
}

// Service runs split analysis over the pages of a book and persists the
// resulting crop suggestions. A fitted model, when one has been calibrated,
// backs up the heuristic on low-confidence pages.
type Service struct {
	pages      *store.Pages
	fetcher    *provider.ImageFetcher
	calibrator *Calibrator
	modelPath  string
	logger     *slog.Logger
}

// NewService creates a split analysis service. calibrator may be nil when no
// vision provider is available; analysis then runs heuristic-only.
func NewService(pages *store.Pages, fetcher *provider.ImageFetcher, calibrator *Calibrator, modelPath string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if fetcher == nil {
		fetcher = provider.NewImageFetcher(0)
	}
	return &Service{
		pages:      pages,
		fetcher:    fetcher,
		calibrator: calibrator,
		modelPath:  modelPath,
		logger:     logger,
	}
}

// BookAnalysis summarizes one analysis pass over a book.
type BookAnalysis struct {
	BookID    string `json:"book_id"`
	Analyzed  int    `json:"analyzed"`
	Written   int    `json:"written"`
	Skipped   int    `json:"skipped"` // pages that already had crop data
	ModelUsed bool   `json:"model_used"`
}

// AnalyzeBook proposes a crop for every page of the book that has none and
// writes the suggestions to the page store. Pages whose image cannot be
// loaded are skipped; a later pass picks them up.
func (s *Service) AnalyzeBook(ctx context.Context, bookID string) (*BookAnalysis, error) {
	pages, err := s.pages.ForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	model, err := LoadModel(s.modelPath)
	if err != nil {
		s.logger.Warn("gutter model unavailable, heuristic only", "error", err)
		model = nil
	}

	out := &BookAnalysis{BookID: bookID, ModelUsed: model != nil}
	for _, page := range pages {
		if page.Crop != "" {
			out.Skipped++
			continue
		}

		img, err := s.loadImage(ctx, page.ImageURL)
		if err != nil {
			s.logger.Warn("page image unavailable, skipping",
				"page_id", page.ID, "error", err)
			continue
		}
		out.Analyzed++

		raw, err := json.Marshal(suggest(img, model))
		if err != nil {
			return nil, fmt.Errorf("failed to encode suggestion: %w", err)
		}
		if err := s.pages.WriteCrop(ctx, page.ID, string(raw)); err != nil {
			return nil, fmt.Errorf("failed to write crop for page %s: %w", page.ID, err)
		}
		out.Written++
	}

	s.logger.Info("split analysis finished",
		"book_id", bookID, "written", out.Written, "skipped", out.Skipped)
	return out, nil
}

// suggest builds the crop suggestion for one image. The heuristic answer
// stands unless it is low confidence and a fitted model is available.
func suggest(img image.Image, model *Model) Suggestion {
	analysis := Analyze(img)
	suggestion := Suggestion{
		SplitRatio: analysis.SplitRatio,
		Confidence: analysis.Confidence,
		Source:     "heuristic",
	}

	if analysis.Confidence == types.ConfidenceLow && model != nil {
		bounds := img.Bounds()
		aspect := float64(bounds.Dx()) / float64(bounds.Dy())
		features := ExtractFeatures(columnStats(downsample(img, analysisWidth)), aspect)
		suggestion.SplitRatio = model.PredictRatio(features)
		suggestion.Source = "model"
	}
	return suggestion
}

// CalibrationResult reports a calibration run.
type CalibrationResult struct {
	BookID  string `json:"book_id"`
	Samples int    `json:"samples"`
	Path    string `json:"path"`
}

// CalibrateBook fits a fresh model against vision proposals for up to sample
// pages of the book and persists it for later analysis passes.
func (s *Service) CalibrateBook(ctx context.Context, bookID string, sample int) (*CalibrationResult, error) {
	if s.calibrator == nil {
		return nil, errors.New("no calibrator configured")
	}
	if sample <= 0 {
		sample = defaultCalibrationSample
	}

	pages, err := s.pages.ForBook(ctx, bookID)
	if err != nil {
		return nil, err
	}

	images := make([]image.Image, 0, sample)
	for _, page := range pages {
		if len(images) >= sample {
			break
		}
		img, err := s.loadImage(ctx, page.ImageURL)
		if err != nil {
			s.logger.Warn("calibration page unreadable, skipping",
				"page_id", page.ID, "error", err)
			continue
		}
		images = append(images, img)
	}
	if len(images) == 0 {
		return nil, fmt.Errorf("no readable page images for book %s", bookID)
	}

	model, err := s.calibrator.Calibrate(ctx, images)
	if err != nil {
		return nil, err
	}
	if err := SaveModel(s.modelPath, model); err != nil {
		return nil, err
	}

	return &CalibrationResult{BookID: bookID, Samples: len(images), Path: s.modelPath}, nil
}

// loadImage fetches and decodes one page image.
func (s *Service) loadImage(ctx context.Context, url string) (image.Image, error) {
	if url == "" {
		return nil, errors.New("page has no image")
	}
	data, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}
