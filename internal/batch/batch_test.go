package batch

import (
	"strings"
	"testing"
	"time"

	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/provider"
	"github.com/jackzampolin/folio/internal/types"
)

func TestNormalizeState(t *testing.T) {
	tests := []struct {
		raw  string
		want State
	}{
		{"validating", StatePending},
		{"in_progress", StateRunning},
		{"finalizing", StateRunning},
		{"completed", StateSucceeded},
		{"failed", StateFailed},
		{"expired", StateFailed},
		{"cancelling", StateCancelled},
		{"cancelled", StateCancelled},
		{"some_future_status", StateUnknown},
		{"", StateUnknown},
	}
	for _, tt := range tests {
		if got := NormalizeState(tt.raw); got != tt.want {
			t.Errorf("NormalizeState(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestReconcileDecision(t *testing.T) {
	uncollected := &BatchJob{JobName: "batch_001"}
	collected := &BatchJob{JobName: "batch_001", ResultsCollected: true}

	d := reconcile(uncollected, StateSucceeded)
	if !d.Collect || !d.Done {
		t.Errorf("succeeded uncollected: %+v, want collect+done", d)
	}

	d = reconcile(collected, StateSucceeded)
	if d.Collect {
		t.Error("succeeded collected batch must not collect again")
	}
	if !d.Done {
		t.Error("succeeded is terminal")
	}

	d = reconcile(uncollected, StateRunning)
	if d.Collect || d.Done {
		t.Errorf("running: %+v, want neither collect nor done", d)
	}

	d = reconcile(uncollected, StateFailed)
	if d.Collect || !d.Done {
		t.Errorf("failed: %+v, want done without collect", d)
	}

	d = reconcile(uncollected, StateUnknown)
	if d.Collect || d.Done {
		t.Errorf("unknown: %+v, want neither", d)
	}
}

func makePage(id string, n int, ocr, translation string) *types.Page {
	p := &types.Page{ID: id, BookID: "book-1", PageNumber: n, ImageURL: "http://img/" + id}
	p.OCR.Data = ocr
	p.Translation.Data = translation
	return p
}

func TestSelectPages(t *testing.T) {
	pages := []*types.Page{
		makePage("p1", 1, "", ""),
		makePage("p2", 2, "text", ""),
		makePage("p3", 3, "", ""),
		makePage("p4", 4, "text", "texte"),
		makePage("p5", 5, "", ""),
	}

	ocr := SelectPages(pages, jobs.TypeBatchOCR, 0)
	if len(ocr) != 3 {
		t.Fatalf("ocr candidates = %d, want 3", len(ocr))
	}
	// Page order preserved.
	if ocr[0].ID != "p1" || ocr[1].ID != "p3" || ocr[2].ID != "p5" {
		t.Errorf("ocr order = %s,%s,%s", ocr[0].ID, ocr[1].ID, ocr[2].ID)
	}

	limited := SelectPages(pages, jobs.TypeBatchOCR, 2)
	if len(limited) != 2 {
		t.Errorf("limited = %d, want 2", len(limited))
	}

	translate := SelectPages(pages, jobs.TypeBatchTranslate, 0)
	if len(translate) != 1 || translate[0].ID != "p2" {
		t.Errorf("translate candidates = %v, want [p2]", translate)
	}

	if got := SelectPages(pages, jobs.JobType("bogus"), 0); len(got) != 0 {
		t.Errorf("unknown type selected %d pages", len(got))
	}
}

func TestPairResults(t *testing.T) {
	snap := &provider.BatchSnapshot{
		Responses: []provider.BatchResponse{
			{Key: "p1", Content: "TEXT ONE"},
			{Key: "p2", Content: ""},
			{Key: "p3", Error: "rate limited"},
		},
	}

	results, success, fail := pairResults([]string{"p1", "p2", "p3", "p4"}, snap)
	if success != 1 || fail != 3 {
		t.Fatalf("success=%d fail=%d, want 1/3", success, fail)
	}
	if len(results) != 4 {
		t.Fatalf("results = %d, want 4", len(results))
	}

	if !results[0].Success || results[0].Payload != "TEXT ONE" {
		t.Errorf("p1 = %+v", results[0])
	}
	if results[1].Success || results[1].Error != "empty payload" {
		t.Errorf("p2 = %+v", results[1])
	}
	if results[2].Error != "rate limited" {
		t.Errorf("p3 = %+v", results[2])
	}
	if results[3].Error != "no response from provider" {
		t.Errorf("p4 = %+v", results[3])
	}
}

// Spec'd scenario: 10 submitted, 8 succeed, 2 come back empty. Both the
// first pairing and a replayed pairing produce identical counts.
func TestPairResultsIdempotentCounts(t *testing.T) {
	pageIDs := make([]string, 10)
	responses := make([]provider.BatchResponse, 10)
	for i := range pageIDs {
		id := string(rune('a' + i))
		pageIDs[i] = id
		if i < 8 {
			responses[i] = provider.BatchResponse{Key: id, Content: "page text " + id}
		} else {
			responses[i] = provider.BatchResponse{Key: id, Content: ""}
		}
	}
	snap := &provider.BatchSnapshot{Responses: responses}

	_, s1, f1 := pairResults(pageIDs, snap)
	_, s2, f2 := pairResults(pageIDs, snap)
	if s1 != 8 || f1 != 2 {
		t.Errorf("first pass: success=%d fail=%d, want 8/2", s1, f1)
	}
	if s1 != s2 || f1 != f2 {
		t.Errorf("replay diverged: %d/%d vs %d/%d", s1, f1, s2, f2)
	}
}

func TestTranslatePrompt(t *testing.T) {
	p := translatePrompt("lorem ipsum", "Latin", "English")
	if !strings.Contains(p, "Latin") || !strings.Contains(p, "English") {
		t.Errorf("prompt missing languages: %s", p)
	}
	if !strings.HasSuffix(p, "lorem ipsum") {
		t.Errorf("prompt should end with the source text: %s", p)
	}

	p = translatePrompt("text", "", "")
	if !strings.Contains(p, "English") {
		t.Error("empty target should default to English")
	}
}

func TestOCRPromptLanguageHint(t *testing.T) {
	if p := ocrPromptFor(""); strings.Contains(p, "primarily in") {
		t.Error("no language hint expected")
	}
	if p := ocrPromptFor("Latin"); !strings.Contains(p, "primarily in Latin") {
		t.Errorf("missing hint: %s", p)
	}
}

func TestParseBatchJob(t *testing.T) {
	submitted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	doc := map[string]any{
		"_docID":            "doc-1",
		"job_name":          "batch_abc",
		"job_id":            "job-1",
		"job_type":          "batch_ocr",
		"book_id":           "book-1",
		"model":             "gpt-5-mini",
		"page_ids":          []any{"p1", "p2"},
		"page_count":        float64(2),
		"status":            "running",
		"results_collected": true,
		"success_count":     float64(2),
		"fail_count":        float64(0),
		"submitted_at":      submitted.Format(time.RFC3339),
	}

	bj := parseBatchJob(doc)
	if bj.JobName != "batch_abc" || bj.JobID != "job-1" {
		t.Errorf("identity fields: %+v", bj)
	}
	if len(bj.PageIDs) != 2 || bj.PageCount != 2 {
		t.Errorf("pages: %+v", bj)
	}
	if !bj.ResultsCollected || bj.SuccessCount != 2 {
		t.Errorf("collection fields: %+v", bj)
	}
	if !bj.SubmittedAt.Equal(submitted) {
		t.Errorf("submitted_at = %v", bj.SubmittedAt)
	}
	if bj.CompletedAt != nil {
		t.Error("completed_at should be nil when absent")
	}
}
