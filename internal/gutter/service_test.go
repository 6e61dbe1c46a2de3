package gutter

import (
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

func TestSaveLoadModelRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gutter_model.json")

	// Missing file is not an error, just no model.
	m, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel on missing file error = %v", err)
	}
	if m != nil {
		t.Fatal("missing file should yield nil model")
	}

	fitted := &Model{}
	samples := []Sample{{Features: Features{DarkestIndex: 0.5, AspectRatio: 1.5}, Target: 500}}
	if err := fitted.Fit(samples); err != nil {
		t.Fatalf("Fit error = %v", err)
	}
	if err := SaveModel(path, fitted); err != nil {
		t.Fatalf("SaveModel error = %v", err)
	}

	loaded, err := LoadModel(path)
	if err != nil {
		t.Fatalf("LoadModel error = %v", err)
	}
	if loaded == nil || !loaded.Trained {
		t.Fatal("loaded model should be trained")
	}
	if loaded.Weights != fitted.Weights || loaded.Bias != fitted.Bias {
		t.Errorf("loaded = %+v, want %+v", loaded, fitted)
	}

	// An untrained model on disk is treated as absent.
	if err := SaveModel(path, &Model{}); err != nil {
		t.Fatal(err)
	}
	if m, _ := LoadModel(path); m != nil {
		t.Error("untrained model should load as nil")
	}
}

func TestSuggestFallsBackToModel(t *testing.T) {
	model := &Model{}
	if err := model.Fit([]Sample{
		{Features: Features{DarkestIndex: 0.5, AspectRatio: 1.0}, Target: 500},
	}); err != nil {
		t.Fatal(err)
	}

	// A clean landscape spread keeps the heuristic answer.
	s := suggest(spreadImage(800, 500, 0.5), model)
	if s.Source != "heuristic" {
		t.Errorf("landscape source = %s, want heuristic", s.Source)
	}
	if s.Confidence == types.ConfidenceLow {
		t.Error("clean spread should not be low confidence")
	}

	// A portrait scan grades low, so the fitted model takes over.
	s = suggest(spreadImage(400, 600, 0.5), model)
	if s.Source != "model" {
		t.Errorf("portrait source = %s, want model", s.Source)
	}
	if s.SplitRatio < clampLow/scaleMax || s.SplitRatio > clampHigh/scaleMax {
		t.Errorf("model ratio %.3f escaped clamp band", s.SplitRatio)
	}

	// Without a model the low-confidence heuristic answer stands.
	s = suggest(spreadImage(400, 600, 0.5), nil)
	if s.Source != "heuristic" || s.Confidence != types.ConfidenceLow {
		t.Errorf("no-model suggestion = %+v, want low-confidence heuristic", s)
	}
}

// fakePageStore answers the page queries and records crop writes.
type fakePageStore struct {
	mu    sync.Mutex
	pages []map[string]any
	crops map[string]string
}

var cropInputRe = regexp.MustCompile(`update_Page\(docID: "([^"]+)", input: \{crop: ("(?:[^"\\]|\\.)*")\}`)

func (f *fakePageStore) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Query string `json:"query"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		q := req.Query

		f.mu.Lock()
		defer f.mu.Unlock()

		write := func(data map[string]any) {
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"data": data})
		}

		switch {
		case strings.Contains(q, "update_Page"):
			m := cropInputRe.FindStringSubmatch(q)
			if m == nil {
				t.Errorf("unexpected page mutation: %s", q)
				http.Error(w, "bad mutation", http.StatusBadRequest)
				return
			}
			var crop string
			if err := json.Unmarshal([]byte(m[2]), &crop); err != nil {
				t.Errorf("crop input is not a valid string literal: %v", err)
			}
			f.crops[m[1]] = crop
			write(map[string]any{"update_Page": []any{map[string]any{"_docID": m[1]}}})

		case strings.Contains(q, "Page(filter"):
			docs := make([]any, len(f.pages))
			for i, p := range f.pages {
				docs[i] = p
			}
			write(map[string]any{"Page": docs})

		default:
			t.Errorf("fake store got unhandled query: %s", q)
			http.Error(w, "unhandled query", http.StatusBadRequest)
		}
	}
}

func writeSpreadPNG(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	file, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	if err := png.Encode(file, spreadImage(800, 500, 0.5)); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestAnalyzeBookWritesCrops(t *testing.T) {
	dir := t.TempDir()
	img := writeSpreadPNG(t, dir, "page_0001.png")

	fs := &fakePageStore{
		crops: map[string]string{},
		pages: []map[string]any{
			{"_docID": "p1", "book_id": "book-1", "page_number": 1, "image_url": "file://" + img},
			{"_docID": "p2", "book_id": "book-1", "page_number": 2, "image_url": "file://" + img, "crop": `{"split_ratio":0.5}`},
		},
	}
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	svc := NewService(store.NewPages(store.NewClient(ts.URL)), nil, nil,
		filepath.Join(dir, "gutter_model.json"), nil)

	analysis, err := svc.AnalyzeBook(context.Background(), "book-1")
	if err != nil {
		t.Fatalf("AnalyzeBook error = %v", err)
	}
	if analysis.Analyzed != 1 || analysis.Written != 1 || analysis.Skipped != 1 {
		t.Errorf("analysis = %+v, want 1 analyzed / 1 written / 1 skipped", analysis)
	}

	raw, ok := fs.crops["p1"]
	if !ok {
		t.Fatal("no crop written for p1")
	}
	var suggestion Suggestion
	if err := json.Unmarshal([]byte(raw), &suggestion); err != nil {
		t.Fatalf("stored crop is not a suggestion: %v", err)
	}
	if suggestion.SplitRatio < 0.45 || suggestion.SplitRatio > 0.55 {
		t.Errorf("split ratio = %.3f, want ~0.5", suggestion.SplitRatio)
	}
	if suggestion.Source != "heuristic" {
		t.Errorf("source = %s, want heuristic", suggestion.Source)
	}
	if _, ok := fs.crops["p2"]; ok {
		t.Error("page with existing crop data must not be rewritten")
	}
}

func TestCalibrateBookPersistsModel(t *testing.T) {
	dir := t.TempDir()
	img := writeSpreadPNG(t, dir, "page_0001.png")

	fs := &fakePageStore{
		crops: map[string]string{},
		pages: []map[string]any{
			{"_docID": "p1", "book_id": "book-1", "page_number": 1, "image_url": "file://" + img},
			{"_docID": "p2", "book_id": "book-1", "page_number": 2, "image_url": "file://" + img},
		},
	}
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	mock := provider.NewMock()
	mock.ChatFunc = func(req provider.ChatRequest) (string, error) {
		return `{"split_position": 500}`, nil
	}

	modelPath := filepath.Join(dir, "gutter_model.json")
	svc := NewService(store.NewPages(store.NewClient(ts.URL)), nil,
		NewCalibrator(mock, "gpt-5-mini", nil), modelPath, nil)

	result, err := svc.CalibrateBook(context.Background(), "book-1", 0)
	if err != nil {
		t.Fatalf("CalibrateBook error = %v", err)
	}
	if result.Samples != 2 {
		t.Errorf("samples = %d, want 2", result.Samples)
	}

	model, err := LoadModel(modelPath)
	if err != nil {
		t.Fatalf("LoadModel error = %v", err)
	}
	if model == nil || !model.Trained {
		t.Error("calibration should persist a trained model")
	}
}
