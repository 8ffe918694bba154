package cleanup_test

import (
	"context"
	"strings"
	"testing"

	"github.com/LegendarySpy/Glimpse-sub000/internal/cleanup"
	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/llm"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/llm/mock"
)

func TestExtractOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			"tagged answer",
			"Sure thing.\n<output>cleaned text</output>\nAnything else?",
			"cleaned text",
		},
		{
			"first tag pair wins",
			"<output>one</output><output>two</output>",
			"one",
		},
		{
			"inner whitespace trimmed",
			"<output>\n  hello\n</output>",
			"hello",
		},
		{
			"no tags strips control tokens",
			"<|im_start|>hello   world<|im_end|>",
			"hello world",
		},
		{
			"no tags collapses whitespace",
			"  plain\t\tanswer  ",
			"plain answer",
		},
		{
			"empty after stripping returns input",
			"<|end|>",
			"<|end|>",
		},
		{
			"unclosed tag falls through",
			"<output>dangling",
			"<output>dangling",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cleanup.ExtractOutput(tc.in); got != tc.want {
				t.Errorf("ExtractOutput(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestResolveBaseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider settings.LLMProvider
		endpoint string
		want     string
	}{
		{"groq default", settings.ProviderGroq, "", "https://api.groq.com/openai/v1"},
		{"openrouter default", settings.ProviderOpenRouter, "", "https://openrouter.ai/api/v1"},
		{"ollama default", settings.ProviderOllama, "", "http://localhost:11434/v1"},
		{"openai uses sdk default", settings.ProviderOpenAI, "", ""},
		{"explicit endpoint passes through", settings.ProviderCustom, "https://llm.internal/v1", "https://llm.internal/v1"},
		{
			"full completions route trimmed to base",
			settings.ProviderCustom,
			"https://llm.internal/v1/chat/completions",
			"https://llm.internal/v1",
		},
		{"explicit endpoint beats provider default", settings.ProviderGroq, "https://other/v1", "https://other/v1"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := cleanup.ResolveBaseURL(tc.provider, tc.endpoint); got != tc.want {
				t.Errorf("ResolveBaseURL = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.Temperature != 0.2 {
				t.Errorf("temperature = %v, want 0.2", req.Temperature)
			}
			if req.MaxTokens != 4096 {
				t.Errorf("max tokens = %d, want 4096", req.MaxTokens)
			}
			if len(req.Messages) != 1 || req.Messages[0].Content != "um so hello" {
				t.Errorf("messages = %+v", req.Messages)
			}
			if !strings.Contains(req.SystemPrompt, "The speaker's name is Sam.") {
				t.Errorf("system prompt missing user name:\n%s", req.SystemPrompt)
			}
			if !strings.Contains(req.SystemPrompt, "writes Go all day") {
				t.Errorf("system prompt missing user context:\n%s", req.SystemPrompt)
			}
			return &llm.CompletionResponse{Content: "<output>so hello</output>", Model: "llama-3.3-70b"}, nil
		},
	}

	c := cleanup.New(provider, "configured-model", "writes Go all day", "Sam")
	got, model, err := c.Clean(context.Background(), "um so hello", "")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got != "so hello" {
		t.Errorf("cleaned = %q", got)
	}
	if model != "llama-3.3-70b" {
		t.Errorf("model = %q", model)
	}
}

func TestClean_EmptyTranscriptSkipsProvider(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{}
	c := cleanup.New(provider, "m", "", "")
	got, _, err := c.Clean(context.Background(), "   ", "")
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if got != "   " {
		t.Errorf("got %q, want input unchanged", got)
	}
	if len(provider.Calls()) != 0 {
		t.Errorf("provider was called for a blank transcript")
	}
}

func TestEdit(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if req.MaxTokens != 8192 {
				t.Errorf("max tokens = %d, want 8192", req.MaxTokens)
			}
			content := req.Messages[0].Content
			if !strings.Contains(content, "<selected>\nold text\n</selected>") {
				t.Errorf("selection not wrapped: %q", content)
			}
			if !strings.Contains(content, "<instruction>\nmake it shorter\n</instruction>") {
				t.Errorf("instruction not wrapped: %q", content)
			}
			return &llm.CompletionResponse{Content: "<output>new</output>"}, nil
		},
	}

	c := cleanup.New(provider, "fallback-model", "", "")
	got, model, err := c.Edit(context.Background(), "old text", "make it shorter", "")
	if err != nil {
		t.Fatalf("Edit: %v", err)
	}
	if got != "new" {
		t.Errorf("edited = %q", got)
	}
	if model != "fallback-model" {
		t.Errorf("model = %q, want configured fallback", model)
	}
}

func TestClean_ModePromptAppended(t *testing.T) {
	t.Parallel()

	provider := &mock.Provider{
		CompleteFunc: func(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
			if !strings.HasSuffix(req.SystemPrompt, "Write in a casual tone.") {
				t.Errorf("mode prompt not appended:\n%s", req.SystemPrompt)
			}
			return &llm.CompletionResponse{Content: "<output>x</output>"}, nil
		},
	}

	c := cleanup.New(provider, "m", "", "")
	if _, _, err := c.Clean(context.Background(), "text", "Write in a casual tone."); err != nil {
		t.Fatalf("Clean: %v", err)
	}
}
