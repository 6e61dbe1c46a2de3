package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/batch"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/types"
)

var pipelineInputRe = regexp.MustCompile(`pipeline: ("(?:[^"\\]|\\.)*")`)

// fakeBookStore serves the GraphQL shapes the orchestrator and submitter
// issue for one book with three pages. The stored pipeline state round-trips
// through update_Book mutations like it would in DefraDB.
type fakeBookStore struct {
	mu sync.Mutex

	pipelineJSON string
	pages        []map[string]any

	jobCreates    int
	batchCreates  int
	lastJobCreate string
}

func (f *fakeBookStore) setState(t *testing.T, state *types.PipelineState) {
	t.Helper()
	raw, err := json.Marshal(state)
	if err != nil {
		t.Fatal(err)
	}
	f.mu.Lock()
	f.pipelineJSON = string(raw)
	f.mu.Unlock()
}

func (f *fakeBookStore) state(t *testing.T) *types.PipelineState {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	var state types.PipelineState
	if err := json.Unmarshal([]byte(f.pipelineJSON), &state); err != nil {
		t.Fatalf("stored pipeline state is not valid JSON: %v", err)
	}
	return &state
}

func (f *fakeBookStore) handler(t *testing.T) http.HandlerFunc {
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
		case strings.Contains(q, "update_Book"):
			if m := pipelineInputRe.FindStringSubmatch(q); m != nil {
				var raw string
				if err := json.Unmarshal([]byte(m[1]), &raw); err != nil {
					t.Errorf("pipeline input is not a valid string literal: %v", err)
				}
				f.pipelineJSON = raw
			}
			write(map[string]any{"update_Book": []any{map[string]any{"_docID": "book-1"}}})

		case strings.Contains(q, "create_BatchJob"):
			f.batchCreates++
			write(map[string]any{"create_BatchJob": []any{map[string]any{"_docID": "bj-2"}}})

		case strings.Contains(q, "create_Job"):
			f.jobCreates++
			f.lastJobCreate = q
			write(map[string]any{"create_Job": []any{map[string]any{"_docID": "job-2"}}})

		case strings.Contains(q, "Book(docID"):
			write(map[string]any{"Book": []any{map[string]any{
				"_docID":     "book-1",
				"title":      "Liber Primus",
				"page_count": 3,
				"status":     "ingested",
				"created_at": "2026-03-01T12:00:00Z",
				"pipeline":   f.pipelineJSON,
			}}})

		case strings.Contains(q, "Page(filter"):
			write(map[string]any{"Page": []any{f.pages[0], f.pages[1], f.pages[2]}})

		default:
			t.Errorf("fake store got unhandled query: %s", q)
			http.Error(w, "unhandled query", http.StatusBadRequest)
		}
	}
}

func pageDoc(id string, n int, imageURL, ocr, translation string) map[string]any {
	return map[string]any{
		"_docID":           id,
		"book_id":          "book-1",
		"page_number":      n,
		"image_url":        imageURL,
		"ocr_data":         ocr,
		"translation_data": translation,
	}
}

// ocrParkedState is a running pipeline whose ocr step is waiting on job-1.
func ocrParkedState() *types.PipelineState {
	now := time.Now().UTC()
	state := &types.PipelineState{
		Status:      types.PipelineRunning,
		CurrentStep: types.StepOCR,
		StartedAt:   &now,
	}
	state.Step(types.StepSplitCheck).Status = types.StepCompleted
	ocr := state.Step(types.StepOCR)
	ocr.Status = types.StepRunning
	ocr.JobID = "job-1"
	return state
}

func newTestOrchestrator(ts *httptest.Server, mock *provider.Mock) *Orchestrator {
	client := store.NewClient(ts.URL)
	books := store.NewBooks(client)
	pages := store.NewPages(client)
	jm := jobs.NewManager(client, nil)
	records := batch.NewRecords(client)
	submitter := batch.NewSubmitter(pages, records, jm, mock, nil, nil)
	return NewOrchestrator(books, pages, jm, submitter, mock, nil)
}

// A finished batch only covers one chunk. Finalizing the ocr step while a
// page still needs transcription must submit a fresh batch for it and keep
// the pipeline parked on ocr, not advance to translate.
func TestFinalizeStepResubmitsRemainingPages(t *testing.T) {
	img := filepath.Join(t.TempDir(), "page_0003.png")
	if err := os.WriteFile(img, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 0o644); err != nil {
		t.Fatal(err)
	}

	fs := &fakeBookStore{
		pages: []map[string]any{
			pageDoc("p1", 1, "", "TEXT ONE", ""),
			pageDoc("p2", 2, "", "TEXT TWO", ""),
			pageDoc("p3", 3, "file://"+img, "", ""),
		},
	}
	fs.setState(t, ocrParkedState())
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	mock := provider.NewMock()
	orch := newTestOrchestrator(ts, mock)

	if err := orch.FinalizeStep(context.Background(), "book-1", "job-1", true, ""); err != nil {
		t.Fatalf("FinalizeStep error = %v", err)
	}

	state := fs.state(t)
	if state.CurrentStep != types.StepOCR {
		t.Errorf("current step = %s, want ocr until the selector drains", state.CurrentStep)
	}
	st := state.Step(types.StepOCR)
	if st.Status != types.StepRunning {
		t.Errorf("ocr step = %s, want running on the follow-up batch", st.Status)
	}
	if st.JobID != "job-2" {
		t.Errorf("ocr job id = %s, want job-2", st.JobID)
	}
	if fs.jobCreates != 1 || fs.batchCreates != 1 {
		t.Errorf("creates = %d jobs / %d batches, want 1/1", fs.jobCreates, fs.batchCreates)
	}
	if !strings.Contains(fs.lastJobCreate, `"p3"`) || strings.Contains(fs.lastJobCreate, `"p1"`) {
		t.Errorf("follow-up batch should cover only p3: %s", fs.lastJobCreate)
	}
}

// Once every page is transcribed and translated, finalizing the ocr step
// drains through the no-work branches of ocr and translate, then runs the
// inline steps to completion.
func TestFinalizeStepDrainsAndAdvances(t *testing.T) {
	fs := &fakeBookStore{
		pages: []map[string]any{
			pageDoc("p1", 1, "", "TEXT ONE", "texte un"),
			pageDoc("p2", 2, "", "TEXT TWO", "texte deux"),
			pageDoc("p3", 3, "", "TEXT THREE", "texte trois"),
		},
	}
	fs.setState(t, ocrParkedState())
	ts := httptest.NewServer(fs.handler(t))
	defer ts.Close()

	mock := provider.NewMock()
	orch := newTestOrchestrator(ts, mock)

	if err := orch.FinalizeStep(context.Background(), "book-1", "job-1", true, ""); err != nil {
		t.Fatalf("FinalizeStep error = %v", err)
	}

	state := fs.state(t)
	if state.Status != types.PipelineCompleted {
		t.Fatalf("pipeline = %s, want completed", state.Status)
	}
	if got := state.Step(types.StepOCR).Status; got != types.StepCompleted {
		t.Errorf("ocr step = %s, want completed via no-work", got)
	}
	if got := state.Step(types.StepTranslate).Status; got != types.StepCompleted {
		t.Errorf("translate step = %s, want completed via no-work", got)
	}
	if got := state.Step(types.StepEdition).Status; got != types.StepCompleted {
		t.Errorf("edition step = %s, want completed", got)
	}
	if fs.jobCreates != 0 {
		t.Errorf("drained pipeline created %d jobs, want 0", fs.jobCreates)
	}
}
