package provider

import (
	"context"
	"fmt"
	"sync"
)

// Mock is an in-memory Provider for tests. Batches are stored by name and
// advanced by the test through SetState and SetResponses.
type Mock struct {
	mu      sync.Mutex
	seq     int
	batches map[string]*BatchSnapshot

	// ChatFunc, when set, handles Chat calls. Otherwise Chat echoes the
	// prompt.
	ChatFunc func(req ChatRequest) (string, error)

	// SubmitErr, when set, is returned from SubmitBatch.
	SubmitErr error
}

// NewMock creates an empty mock provider.
func NewMock() *Mock {
	return &Mock{batches: make(map[string]*BatchSnapshot)}
}

func (m *Mock) Name() string { return "mock" }

// SubmitBatch records the batch and returns a handle in the "validating"
// state, matching the remote API's initial state.
func (m *Mock) SubmitBatch(_ context.Context, model string, items []BatchItem) (*BatchHandle, error) {
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	if len(items) == 0 {
		return nil, ErrEmptyBatch
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	name := fmt.Sprintf("batch_%03d", m.seq)
	m.batches[name] = &BatchSnapshot{
		Name:   name,
		State:  "validating",
		Counts: BatchCounts{Total: len(items)},
	}
	return &BatchHandle{Name: name, State: "validating"}, nil
}

// GetBatch returns the stored snapshot for the batch.
func (m *Mock) GetBatch(_ context.Context, name string) (*BatchSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.batches[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBatchNotFound, name)
	}
	out := *snap
	out.Responses = append([]BatchResponse(nil), snap.Responses...)
	return &out, nil
}

// Chat invokes ChatFunc or echoes the prompt.
func (m *Mock) Chat(_ context.Context, req ChatRequest) (string, error) {
	if m.ChatFunc != nil {
		return m.ChatFunc(req)
	}
	return req.Prompt, nil
}

// SetState moves a batch to the given provider state.
func (m *Mock) SetState(name, state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if snap, ok := m.batches[name]; ok {
		snap.State = state
	}
}

// SetResponses installs per-item responses and derives the counts.
func (m *Mock) SetResponses(name string, responses []BatchResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap, ok := m.batches[name]
	if !ok {
		return
	}
	snap.Responses = responses
	completed, failed := 0, 0
	for _, r := range responses {
		if r.Error == "" && r.Content != "" {
			completed++
		} else {
			failed++
		}
	}
	snap.Counts.Completed = completed
	snap.Counts.Failed = failed
}
