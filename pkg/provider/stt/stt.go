// Package stt defines the shared transcription types used by the local and
// cloud backends, plus the transcript normalisation every backend applies
// before returning text to the pipeline.
package stt

import (
	"context"
	"strings"
)

// Request carries one utterance to a transcription backend.
type Request struct {
	// Samples is interleaved mono signed 16-bit PCM.
	Samples []int16

	// SampleRate is the rate of Samples in Hz.
	SampleRate int

	// Prompt is an optional biasing prompt. Only Whisper-family models
	// honour it; other engines ignore it.
	Prompt string

	// Language is a BCP-47 code; empty means auto-detect.
	Language string
}

// Result is the outcome of a transcription request.
type Result struct {
	// Transcript is the normalised transcript text. May be empty when no
	// speech was detected.
	Transcript string

	// RawTranscript is the pre-cleanup text when the backend already ran a
	// cleanup pass (cloud mode); empty otherwise.
	RawTranscript string

	// SpeechModel is the human-readable label of the model that produced
	// the transcript.
	SpeechModel string

	// LLMCleaned reports whether the backend applied its own LLM cleanup.
	LLMCleaned bool

	// LLMModel names the cleanup model when LLMCleaned is true.
	LLMModel string
}

// Transcriber is the seam the dictation pipeline speaks to. The local and
// cloud backends are adapted to it by the controller, which binds model or
// credential state ahead of time.
type Transcriber interface {
	// Transcribe converts one utterance to text.
	Transcribe(ctx context.Context, req Request) (*Result, error)
}

// TranscriberFunc adapts a function to the [Transcriber] interface.
type TranscriberFunc func(ctx context.Context, req Request) (*Result, error)

// Transcribe implements [Transcriber].
func (f TranscriberFunc) Transcribe(ctx context.Context, req Request) (*Result, error) {
	return f(ctx, req)
}

// Normalize collapses runs of spaces and tabs within each line to single
// spaces, trims line ends, and strips leading and trailing blank lines.
// Interior blank lines are preserved.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}

	start := 0
	for start < len(lines) && lines[start] == "" {
		start++
	}
	end := len(lines)
	for end > start && lines[end-1] == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}

// WordCount returns the number of whitespace-separated words in text.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
