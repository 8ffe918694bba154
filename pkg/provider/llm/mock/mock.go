// Package mock provides a configurable [llm.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/llm"
)

// Provider implements [llm.Provider] with a pluggable function and records
// every request it receives.
type Provider struct {
	// CompleteFunc handles each request. When nil, the last user message
	// is echoed back.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	mu    sync.Mutex
	calls []llm.CompletionRequest
}

var _ llm.Provider = (*Provider)(nil)

// Complete implements [llm.Provider].
func (m *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}

	content := ""
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == "user" {
			content = req.Messages[i].Content
			break
		}
	}
	return &llm.CompletionResponse{Content: content, Model: "mock"}, nil
}

// Calls returns a copy of the requests seen so far.
func (m *Provider) Calls() []llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]llm.CompletionRequest, len(m.calls))
	copy(out, m.calls)
	return out
}
