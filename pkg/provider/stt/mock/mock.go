// Package mock provides a configurable [stt.Transcriber] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
)

// Transcriber implements [stt.Transcriber] with a pluggable function and
// records every request it receives.
type Transcriber struct {
	// TranscribeFunc handles each request. When nil, a fixed placeholder
	// result is returned.
	TranscribeFunc func(ctx context.Context, req stt.Request) (*stt.Result, error)

	mu    sync.Mutex
	calls []stt.Request
}

var _ stt.Transcriber = (*Transcriber)(nil)

// Transcribe implements [stt.Transcriber].
func (m *Transcriber) Transcribe(ctx context.Context, req stt.Request) (*stt.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.TranscribeFunc != nil {
		return m.TranscribeFunc(ctx, req)
	}
	return &stt.Result{Transcript: "mock transcript", SpeechModel: "mock"}, nil
}

// Calls returns a copy of the requests seen so far.
func (m *Transcriber) Calls() []stt.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]stt.Request, len(m.calls))
	copy(out, m.calls)
	return out
}
