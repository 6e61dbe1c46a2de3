package endpoints

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestAllRoutesAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for _, ep := range All(Config{}) {
		method, path, handler := ep.Route()
		if handler == nil {
			t.Errorf("%s %s has nil handler", method, path)
		}
		key := method + " " + path
		if seen[key] {
			t.Errorf("duplicate route %s", key)
		}
		seen[key] = true
	}
}

func TestAllCommandsBuild(t *testing.T) {
	url := func() string { return "http://127.0.0.1:8080" }
	for _, ep := range All(Config{}) {
		cmd := ep.Command(url)
		if cmd == nil {
			_, path, _ := ep.Route()
			t.Errorf("endpoint %s returned nil command", path)
			continue
		}
		if cmd.Use == "" {
			t.Errorf("command for %T has empty Use", ep)
		}
	}
}

func TestHealthEndpoint(t *testing.T) {
	ep := &HealthEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestReadyEndpointWithoutStore(t *testing.T) {
	ep := &ReadyEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("GET", "/ready", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestSubmitBatchValidation(t *testing.T) {
	ep := &SubmitBatchEndpoint{}
	_, _, handler := ep.Route()

	tests := []struct {
		name string
		body string
		want int
	}{
		{"malformed body", "{not json", http.StatusBadRequest},
		{"missing book id", `{"type":"batch_ocr"}`, http.StatusBadRequest},
		{"bogus job type", `{"book_id":"b1","type":"batch_paint"}`, http.StatusBadRequest},
		// Valid request with no services wired hits the 503 guard.
		{"no submitter", `{"book_id":"b1","type":"batch_ocr"}`, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/jobs/batch", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			handler(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestPollBatchRequiresSelector(t *testing.T) {
	ep := &PollBatchEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("GET", "/api/jobs/batch", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestUpdateJobRejectsUnknownAction(t *testing.T) {
	ep := &UpdateJobEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("PATCH", "/api/jobs/j1", strings.NewReader(`{"action":"explode"}`))
	req.SetPathValue("id", "j1")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestStepPipelineRejectsUnknownStep(t *testing.T) {
	ep := &StepPipelineEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("POST", "/api/pipeline/b1/step", strings.NewReader(`{"step":"laminate"}`))
	req.SetPathValue("book_id", "b1")
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIngestRequiresPaths(t *testing.T) {
	ep := &IngestBookEndpoint{}
	_, _, handler := ep.Route()

	req := httptest.NewRequest("POST", "/api/books/ingest", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestIntQuery(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/jobs?limit=25&bad=abc", nil)
	if got := intQuery(req, "limit"); got != 25 {
		t.Errorf("limit = %d, want 25", got)
	}
	if got := intQuery(req, "bad"); got != 0 {
		t.Errorf("bad = %d, want 0", got)
	}
	if got := intQuery(req, "missing"); got != 0 {
		t.Errorf("missing = %d, want 0", got)
	}
}
