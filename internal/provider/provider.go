// Package provider wraps the external batch inference API. The rest of the
// system talks to the Provider interface so tests can substitute a fake
// without network access.
package provider

import (
	"context"
	"errors"
)

// Sentinel errors for the provider package.
var (
	// ErrEmptyBatch is returned when a batch submission contains no items.
	ErrEmptyBatch = errors.New("batch contains no items")

	// ErrBatchNotFound is returned when the provider does not know the job.
	ErrBatchNotFound = errors.New("batch job not found")
)

// BatchItem is one request inside a batch submission, keyed so the response
// can be matched back to its page.
type BatchItem struct {
	// Key identifies the item; responses carry it back. Page document IDs
	// are used as keys.
	Key string

	// System is an optional system prompt.
	System string

	// Prompt is the user message text.
	Prompt string

	// ImageDataURL, when set, attaches an image to the request (OCR jobs).
	ImageDataURL string

	// MaxTokens bounds the response length. Zero means provider default.
	MaxTokens int
}

// BatchHandle identifies a submitted batch at the provider.
type BatchHandle struct {
	// Name is the opaque provider job handle.
	Name string

	// State is the provider's initial state string, unnormalized.
	State string
}

// BatchCounts are the provider's per-item progress counts.
type BatchCounts struct {
	Total     int
	Completed int
	Failed    int
}

// BatchResponse is the provider's response for one batch item.
type BatchResponse struct {
	Key        string
	StatusCode int
	Content    string // extracted text payload, empty on failure
	Error      string
}

// BatchSnapshot is a point-in-time view of a provider batch job.
type BatchSnapshot struct {
	Name   string
	State  string // provider vocabulary, normalized by the reconciler
	Counts BatchCounts

	// Responses holds per-item outputs, present only once the provider has
	// produced its output file.
	Responses []BatchResponse
}

// ResponseFor returns the response for a key, or nil if the provider
// returned nothing for it.
func (s *BatchSnapshot) ResponseFor(key string) *BatchResponse {
	for i := range s.Responses {
		if s.Responses[i].Key == key {
			return &s.Responses[i]
		}
	}
	return nil
}

// ChatRequest is a single synchronous model call (summaries, calibration).
type ChatRequest struct {
	Model        string
	System       string
	Prompt       string
	ImageDataURL string
	MaxTokens    int
}

// Provider is the boundary to the external batch inference service.
type Provider interface {
	// SubmitBatch uploads the items as one batch against the model and
	// returns the provider job handle.
	SubmitBatch(ctx context.Context, model string, items []BatchItem) (*BatchHandle, error)

	// GetBatch returns the current state of a batch job, including per-item
	// responses when the job has produced output.
	GetBatch(ctx context.Context, name string) (*BatchSnapshot, error)

	// Chat performs one synchronous completion request.
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Name returns the provider identifier (e.g., "openai").
	Name() string
}
