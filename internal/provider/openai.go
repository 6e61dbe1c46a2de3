package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

const (
	OpenAIName         = "openai"
	openAIDefaultModel = "gpt-5-mini"

	// completionEndpoint is the batch target endpoint; every batch line
	// posts a chat completion.
	completionEndpoint = "/v1/chat/completions"
)

// OpenAIConfig holds configuration for the OpenAI batch client.
type OpenAIConfig struct {
	APIKey     string
	Model      string        // default model when a request does not name one
	MaxRetries int           // SDK transport retries
	Timeout    time.Duration // HTTP timeout
	BaseURL    string        // Optional (tests)
	HTTPClient *http.Client  // Optional (tests)
}

// OpenAIClient implements Provider using the official OpenAI SDK and its
// Batch API: requests are written as a JSONL file, uploaded, and executed
// asynchronously by the provider.
type OpenAIClient struct {
	model  string
	client openai.Client
}

// NewOpenAIClient creates a new OpenAI batch client.
func NewOpenAIClient(cfg OpenAIConfig) *OpenAIClient {
	if cfg.Model == "" {
		cfg.Model = openAIDefaultModel
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &OpenAIClient{
		model:  cfg.Model,
		client: openai.NewClient(opts...),
	}
}

// Name returns the provider identifier.
func (c *OpenAIClient) Name() string {
	return OpenAIName
}

// SubmitBatch uploads the items as a JSONL batch input file and creates a
// batch job against the chat completions endpoint.
func (c *OpenAIClient) SubmitBatch(ctx context.Context, model string, items []BatchItem) (*BatchHandle, error) {
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}
	if model == "" {
		model = c.model
	}

	jsonl, err := buildBatchInput(model, items)
	if err != nil {
		return nil, err
	}

	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    openai.File(bytes.NewReader(jsonl), "batch_input.jsonl", "application/jsonl"),
		Purpose: openai.FilePurposeBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload batch input: %w", err)
	}

	batch, err := c.client.Batches.New(ctx, openai.BatchNewParams{
		InputFileID:      file.ID,
		Endpoint:         openai.BatchNewParamsEndpointV1ChatCompletions,
		CompletionWindow: openai.BatchNewParamsCompletionWindow24h,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	return &BatchHandle{
		Name:  batch.ID,
		State: string(batch.Status),
	}, nil
}

// GetBatch returns the provider's view of a batch job. When the job has an
// output file its per-item responses are downloaded and parsed.
func (c *OpenAIClient) GetBatch(ctx context.Context, name string) (*BatchSnapshot, error) {
	batch, err := c.client.Batches.Get(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("failed to get batch %s: %w", name, err)
	}

	snapshot := &BatchSnapshot{
		Name:  batch.ID,
		State: string(batch.Status),
		Counts: BatchCounts{
			Total:     int(batch.RequestCounts.Total),
			Completed: int(batch.RequestCounts.Completed),
			Failed:    int(batch.RequestCounts.Failed),
		},
	}

	if batch.OutputFileID != "" {
		responses, err := c.downloadResponses(ctx, batch.OutputFileID)
		if err != nil {
			return nil, err
		}
		snapshot.Responses = responses
	}
	if batch.ErrorFileID != "" {
		failures, err := c.downloadResponses(ctx, batch.ErrorFileID)
		if err == nil {
			snapshot.Responses = append(snapshot.Responses, failures...)
		}
	}

	return snapshot, nil
}

// Chat performs one synchronous chat completion.
func (c *OpenAIClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	if req.ImageDataURL != "" {
		messages = append(messages, openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
			openai.TextContentPart(req.Prompt),
			openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: req.ImageDataURL,
			}),
		}))
	} else {
		messages = append(messages, openai.UserMessage(req.Prompt))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("chat completion returned no choices")
	}
	return completion.Choices[0].Message.Content, nil
}

// downloadResponses fetches an output/error file and parses its JSONL lines.
func (c *OpenAIClient) downloadResponses(ctx context.Context, fileID string) ([]BatchResponse, error) {
	resp, err := c.client.Files.Content(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to download batch output %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	var responses []BatchResponse
	scanner := bufio.NewScanner(resp.Body)
	// Page payloads can be large; raise the line limit well past the default.
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		br, err := parseOutputLine(line)
		if err != nil {
			// A malformed line loses one item, not the whole collection.
			responses = append(responses, BatchResponse{Error: err.Error()})
			continue
		}
		responses = append(responses, br)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read batch output: %w", err)
	}
	return responses, nil
}

// batchOutputLine mirrors one line of the provider's output JSONL.
type batchOutputLine struct {
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int             `json:"status_code"`
		Body       json.RawMessage `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// parseOutputLine extracts the text payload from one output line.
func parseOutputLine(line []byte) (BatchResponse, error) {
	var out batchOutputLine
	if err := json.Unmarshal(line, &out); err != nil {
		return BatchResponse{}, fmt.Errorf("malformed batch output line: %w", err)
	}

	br := BatchResponse{Key: out.CustomID}
	if out.Error != nil {
		br.Error = out.Error.Message
		return br, nil
	}
	if out.Response == nil {
		br.Error = "missing response"
		return br, nil
	}

	br.StatusCode = out.Response.StatusCode
	if out.Response.StatusCode != http.StatusOK {
		br.Error = fmt.Sprintf("status %d", out.Response.StatusCode)
		return br, nil
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(out.Response.Body, &body); err != nil {
		br.Error = "malformed completion body"
		return br, nil
	}
	if len(body.Choices) > 0 {
		br.Content = body.Choices[0].Message.Content
	}
	return br, nil
}

// buildBatchInput renders the items as the provider's JSONL batch format,
// one chat completion request per line keyed by custom_id.
func buildBatchInput(model string, items []BatchItem) ([]byte, error) {
	var buf bytes.Buffer
	for _, item := range items {
		var content any = item.Prompt
		if item.ImageDataURL != "" {
			content = []map[string]any{
				{"type": "text", "text": item.Prompt},
				{"type": "image_url", "image_url": map[string]any{"url": item.ImageDataURL}},
			}
		}

		messages := []map[string]any{}
		if item.System != "" {
			messages = append(messages, map[string]any{"role": "system", "content": item.System})
		}
		messages = append(messages, map[string]any{"role": "user", "content": content})

		body := map[string]any{
			"model":    model,
			"messages": messages,
		}
		if item.MaxTokens > 0 {
			body["max_completion_tokens"] = item.MaxTokens
		}

		line := map[string]any{
			"custom_id": item.Key,
			"method":    "POST",
			"url":       completionEndpoint,
			"body":      body,
		}
		encoded, err := json.Marshal(line)
		if err != nil {
			return nil, fmt.Errorf("failed to encode batch item %s: %w", item.Key, err)
		}
		buf.Write(encoded)
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
