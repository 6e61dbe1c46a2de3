package provider

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBuildBatchInput(t *testing.T) {
	items := []BatchItem{
		{Key: "page-1", System: "You transcribe pages.", Prompt: "Transcribe this page.", ImageDataURL: "data:image/png;base64,AAAA", MaxTokens: 4096},
		{Key: "page-2", Prompt: "Translate: lorem ipsum"},
	}

	data, err := buildBatchInput("gpt-5-mini", items)
	if err != nil {
		t.Fatalf("buildBatchInput error = %v", err)
	}

	scanner := bufio.NewScanner(strings.NewReader(string(data)))
	var lines []map[string]any
	for scanner.Scan() {
		var line map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &line); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		lines = append(lines, line)
	}
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}

	first := lines[0]
	if first["custom_id"] != "page-1" {
		t.Errorf("custom_id = %v, want page-1", first["custom_id"])
	}
	if first["method"] != "POST" || first["url"] != "/v1/chat/completions" {
		t.Errorf("method/url = %v %v", first["method"], first["url"])
	}

	body := first["body"].(map[string]any)
	if body["model"] != "gpt-5-mini" {
		t.Errorf("model = %v", body["model"])
	}
	messages := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("messages = %d, want 2 (system + user)", len(messages))
	}
	user := messages[1].(map[string]any)
	parts, ok := user["content"].([]any)
	if !ok || len(parts) != 2 {
		t.Fatalf("image item should produce two content parts, got %v", user["content"])
	}

	// Text-only item keeps plain string content.
	second := lines[1]
	secondUser := second["body"].(map[string]any)["messages"].([]any)[0].(map[string]any)
	if _, ok := secondUser["content"].(string); !ok {
		t.Errorf("text item content should be a string, got %T", secondUser["content"])
	}
}

func TestParseOutputLine(t *testing.T) {
	tests := []struct {
		name        string
		line        string
		wantKey     string
		wantContent string
		wantErrMsg  string
	}{
		{
			name:        "success",
			line:        `{"custom_id":"page-1","response":{"status_code":200,"body":{"choices":[{"message":{"content":"LOREM IPSUM"}}]}}}`,
			wantKey:     "page-1",
			wantContent: "LOREM IPSUM",
		},
		{
			name:       "item error",
			line:       `{"custom_id":"page-2","error":{"code":"server_error","message":"upstream failed"}}`,
			wantKey:    "page-2",
			wantErrMsg: "upstream failed",
		},
		{
			name:       "http failure",
			line:       `{"custom_id":"page-3","response":{"status_code":429,"body":{}}}`,
			wantKey:    "page-3",
			wantErrMsg: "status 429",
		},
		{
			name:       "missing response",
			line:       `{"custom_id":"page-4"}`,
			wantKey:    "page-4",
			wantErrMsg: "missing response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br, err := parseOutputLine([]byte(tt.line))
			if err != nil {
				t.Fatalf("parseOutputLine error = %v", err)
			}
			if br.Key != tt.wantKey {
				t.Errorf("key = %s, want %s", br.Key, tt.wantKey)
			}
			if br.Content != tt.wantContent {
				t.Errorf("content = %q, want %q", br.Content, tt.wantContent)
			}
			if br.Error != tt.wantErrMsg {
				t.Errorf("error = %q, want %q", br.Error, tt.wantErrMsg)
			}
		})
	}

	if _, err := parseOutputLine([]byte("not json")); err == nil {
		t.Error("malformed line should return an error")
	}
}

func TestDataURL(t *testing.T) {
	// Minimal PNG signature so content sniffing identifies the type.
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	url := DataURL(png)
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("url = %s, want image/png data URL", url)
	}

	// Unsniffable bytes fall back to jpeg.
	url = DataURL([]byte("plain text"))
	if !strings.HasPrefix(url, "data:image/jpeg;base64,") {
		t.Errorf("url = %s, want jpeg fallback", url)
	}
}

func TestFetchDoesNotRetryHTTPErrors(t *testing.T) {
	var calls int
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	fetcher := NewImageFetcher(0)
	_, err := fetcher.Fetch(context.Background(), ts.URL+"/missing.jpg")
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if calls != 1 {
		t.Errorf("server called %d times, want 1 (no retry on HTTP status)", calls)
	}
}

func TestFetchSuccess(t *testing.T) {
	payload := []byte("image-bytes")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer ts.Close()

	fetcher := NewImageFetcher(0)
	data, err := fetcher.Fetch(context.Background(), ts.URL+"/page.jpg")
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %q, want %q", data, payload)
	}
}

func TestFetchFileURL(t *testing.T) {
	payload := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0, 0, 0, 0}
	path := filepath.Join(t.TempDir(), "page_0001.png")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		t.Fatal(err)
	}

	fetcher := NewImageFetcher(0)
	data, err := fetcher.Fetch(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}
	if string(data) != string(payload) {
		t.Errorf("data = %q, want file contents", data)
	}

	// Ingested pages go through FetchDataURL on the way into a batch.
	url, err := fetcher.FetchDataURL(context.Background(), "file://"+path)
	if err != nil {
		t.Fatalf("FetchDataURL error = %v", err)
	}
	if !strings.HasPrefix(url, "data:image/png;base64,") {
		t.Errorf("url = %s, want png data URL", url)
	}

	if _, err := fetcher.Fetch(context.Background(), "file://"+path+".missing"); err == nil {
		t.Error("missing file should return an error")
	}
}

func TestOpenAISubmitBatch(t *testing.T) {
	var uploadedJSONL string

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			t.Fatalf("bad multipart upload: %v", err)
		}
		if purpose := r.FormValue("purpose"); purpose != "batch" {
			t.Errorf("purpose = %s, want batch", purpose)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("missing file part: %v", err)
		}
		raw, _ := io.ReadAll(file)
		uploadedJSONL = string(raw)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"file-abc","object":"file","purpose":"batch"}`)
	})
	mux.HandleFunc("/v1/batches", func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad batch create body: %v", err)
		}
		if req["input_file_id"] != "file-abc" {
			t.Errorf("input_file_id = %v, want file-abc", req["input_file_id"])
		}
		if req["endpoint"] != "/v1/chat/completions" {
			t.Errorf("endpoint = %v", req["endpoint"])
		}
		if req["completion_window"] != "24h" {
			t.Errorf("completion_window = %v", req["completion_window"])
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"batch_xyz","object":"batch","status":"validating","request_counts":{"total":2,"completed":0,"failed":0}}`)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewOpenAIClient(OpenAIConfig{
		APIKey:  "test-key",
		BaseURL: ts.URL + "/v1/",
	})

	handle, err := client.SubmitBatch(context.Background(), "gpt-5-mini", []BatchItem{
		{Key: "page-1", Prompt: "one"},
		{Key: "page-2", Prompt: "two"},
	})
	if err != nil {
		t.Fatalf("SubmitBatch error = %v", err)
	}
	if handle.Name != "batch_xyz" {
		t.Errorf("name = %s, want batch_xyz", handle.Name)
	}
	if handle.State != "validating" {
		t.Errorf("state = %s, want validating", handle.State)
	}
	if !strings.Contains(uploadedJSONL, `"custom_id":"page-1"`) {
		t.Errorf("uploaded JSONL missing page-1: %s", uploadedJSONL)
	}
}

func TestOpenAISubmitBatchEmpty(t *testing.T) {
	client := NewOpenAIClient(OpenAIConfig{APIKey: "k"})
	if _, err := client.SubmitBatch(context.Background(), "", nil); err != ErrEmptyBatch {
		t.Errorf("err = %v, want ErrEmptyBatch", err)
	}
}

func TestOpenAIGetBatchWithOutput(t *testing.T) {
	outputJSONL := strings.Join([]string{
		`{"custom_id":"page-1","response":{"status_code":200,"body":{"choices":[{"message":{"content":"TEXT ONE"}}]}}}`,
		`{"custom_id":"page-2","response":{"status_code":200,"body":{"choices":[{"message":{"content":""}}]}}}`,
	}, "\n")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/batches/batch_xyz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"batch_xyz","object":"batch","status":"completed","output_file_id":"file-out","request_counts":{"total":2,"completed":2,"failed":0}}`)
	})
	mux.HandleFunc("/v1/files/file-out/content", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, outputJSONL)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "test-key", BaseURL: ts.URL + "/v1/"})

	snap, err := client.GetBatch(context.Background(), "batch_xyz")
	if err != nil {
		t.Fatalf("GetBatch error = %v", err)
	}
	if snap.State != "completed" {
		t.Errorf("state = %s, want completed", snap.State)
	}
	if snap.Counts.Total != 2 || snap.Counts.Completed != 2 {
		t.Errorf("counts = %+v", snap.Counts)
	}
	if len(snap.Responses) != 2 {
		t.Fatalf("responses = %d, want 2", len(snap.Responses))
	}

	one := snap.ResponseFor("page-1")
	if one == nil || one.Content != "TEXT ONE" {
		t.Errorf("page-1 response = %+v", one)
	}
	two := snap.ResponseFor("page-2")
	if two == nil || two.Content != "" {
		t.Errorf("page-2 response = %+v", two)
	}
	if snap.ResponseFor("page-9") != nil {
		t.Error("unknown key should return nil")
	}
}

func TestMockProviderLifecycle(t *testing.T) {
	mock := NewMock()

	handle, err := mock.SubmitBatch(context.Background(), "m", []BatchItem{{Key: "a", Prompt: "x"}})
	if err != nil {
		t.Fatalf("SubmitBatch error = %v", err)
	}

	mock.SetState(handle.Name, "in_progress")
	snap, err := mock.GetBatch(context.Background(), handle.Name)
	if err != nil {
		t.Fatalf("GetBatch error = %v", err)
	}
	if snap.State != "in_progress" {
		t.Errorf("state = %s", snap.State)
	}

	mock.SetResponses(handle.Name, []BatchResponse{{Key: "a", Content: "done"}})
	mock.SetState(handle.Name, "completed")
	snap, _ = mock.GetBatch(context.Background(), handle.Name)
	if snap.Counts.Completed != 1 {
		t.Errorf("completed = %d, want 1", snap.Counts.Completed)
	}

	if _, err := mock.GetBatch(context.Background(), "nope"); err == nil {
		t.Error("unknown batch should error")
	}
}
