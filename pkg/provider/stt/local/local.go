// Package local runs speech recognition against a locally installed model.
//
// Whisper-family models are executed in-process through the whisper.cpp CGO
// bindings; the whisper.cpp static library (libwhisper.a) and headers must
// be available at link time via LIBRARY_PATH and C_INCLUDE_PATH. Parakeet
// and Moonshine models are served by a sidecar inference server and reached
// over its multipart HTTP endpoint.
//
// The transcriber caches exactly one loaded engine, keyed by (model key,
// artifact path). Requesting a different model releases the cached engine
// before the new one is loaded so at most one model's weights are resident.
package local

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/audio"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
)

// EngineKind discriminates the tagged engine variant of a [Model].
type EngineKind string

const (
	KindWhisper   EngineKind = "whisper"
	KindParakeet  EngineKind = "parakeet"
	KindMoonshine EngineKind = "moonshine"
)

// Engine is the tagged model-engine variant.
type Engine struct {
	Kind EngineKind

	// Int8 marks the quantised Parakeet build.
	Int8 bool

	// Variant names the Moonshine flavour (e.g. "base", "tiny").
	Variant string
}

// Model describes an installed, ready-to-load speech model.
type Model struct {
	// Key is the registry identifier (e.g. "whisper-large-v3-turbo").
	Key string

	// Path is the absolute path to the model artifact.
	Path string

	Engine Engine
}

// ErrInferenceFailed wraps engine-level failures so callers can map them to
// the user-visible "Transcription failed" disposition.
var ErrInferenceFailed = errors.New("local inference failed")

// Option is a functional option for configuring a [Transcriber].
type Option func(*Transcriber)

// WithServer sets the sidecar inference server used for Parakeet and
// Moonshine models (e.g. "http://127.0.0.1:8642"). apiKey may be empty.
func WithServer(baseURL, apiKey string) Option {
	return func(t *Transcriber) {
		t.serverURL = strings.TrimRight(baseURL, "/")
		t.apiKey = apiKey
	}
}

// WithWordTimestamps forwards include_word_timestamps to the sidecar server.
func WithWordTimestamps(enabled bool) Option {
	return func(t *Transcriber) {
		t.wordTimestamps = enabled
	}
}

// WithHTTPClient overrides the HTTP client used for sidecar requests.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transcriber) {
		t.client = c
	}
}

// Transcriber holds the single cached speech engine. Safe for concurrent
// use; requests serialise on the engine lock because whisper.cpp contexts
// are not thread-safe and inference is CPU-bound anyway.
type Transcriber struct {
	mu         sync.Mutex
	cachedKey  string
	cachedPath string
	model      whisperlib.Model

	serverURL      string
	apiKey         string
	wordTimestamps bool
	client         *http.Client
}

// New creates a Transcriber with no engine loaded yet.
func New(opts ...Option) *Transcriber {
	t := &Transcriber{
		client: &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

// Close releases the cached engine, if any.
func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.release()
}

// release drops the cached engine. Caller holds the lock.
func (t *Transcriber) release() error {
	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	t.cachedKey = ""
	t.cachedPath = ""
	return err
}

// Transcribe runs m over the PCM in req and returns the normalised
// transcript with the model's friendly label. Whisper models receive
// req.Prompt as an initial biasing prompt; Parakeet and Moonshine ignore it.
func (t *Transcriber) Transcribe(ctx context.Context, m Model, req stt.Request) (*stt.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("local: context already cancelled: %w", err)
	}

	switch m.Engine.Kind {
	case KindWhisper:
		return t.transcribeWhisper(ctx, m, req)
	case KindParakeet, KindMoonshine:
		wav := encodeWAV(audio.I16ToBytes(req.Samples), req.SampleRate, 1)
		return t.transcribeServer(ctx, m, "audio.wav", wav, req.Language)
	default:
		return nil, fmt.Errorf("local: unknown engine kind %q", m.Engine.Kind)
	}
}

// TranscribeFile submits a persisted MP3 to the sidecar server. Used for
// the retry path and for server-backed engines when the encoded artifact
// already exists.
func (t *Transcriber) TranscribeFile(ctx context.Context, m Model, path, language string) (*stt.Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("local: read audio %q: %w", path, err)
	}
	return t.transcribeServer(ctx, m, filepath.Base(path), data, language)
}

// ---- whisper.cpp -----------------------------------------------------------

// transcribeWhisper ensures the model is loaded and runs in-process
// inference over a fresh whisper context.
func (t *Transcriber) transcribeWhisper(ctx context.Context, m Model, req stt.Request) (*stt.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.ensureLoaded(m); err != nil {
		return nil, err
	}

	samples := audio.PrepareForInference(req.Samples, req.SampleRate)

	wctx, err := t.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("local: create context: %w: %w", ErrInferenceFailed, err)
	}

	if req.Language != "" {
		if err := wctx.SetLanguage(req.Language); err != nil {
			slog.Warn("local: failed to set language, using auto-detect", "language", req.Language, "error", err)
		}
	}
	if req.Prompt != "" {
		wctx.SetInitialPrompt(req.Prompt)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("local: process audio: %w: %w", ErrInferenceFailed, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("local: read segment: %w: %w", ErrInferenceFailed, err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}

	return &stt.Result{
		Transcript:  stt.Normalize(strings.Join(parts, " ")),
		SpeechModel: Label(m),
	}, nil
}

// ensureLoaded makes t.model match m, swapping engines when the key or
// artifact path differ. The previous engine is released before the new one
// loads to bound peak memory. Caller holds the lock.
func (t *Transcriber) ensureLoaded(m Model) error {
	if t.model != nil && t.cachedKey == m.Key && t.cachedPath == m.Path {
		return nil
	}
	if t.model != nil {
		slog.Info("local: swapping speech model", "from", t.cachedKey, "to", m.Key)
		if err := t.release(); err != nil {
			slog.Warn("local: releasing previous model failed", "error", err)
		}
	}

	model, err := whisperlib.New(m.Path)
	if err != nil {
		return fmt.Errorf("local: load model %q: %w", m.Path, err)
	}
	t.model = model
	t.cachedKey = m.Key
	t.cachedPath = m.Path
	return nil
}

// ---- sidecar server --------------------------------------------------------

// serverResponse is the JSON body returned by the sidecar /transcribe
// endpoint.
type serverResponse struct {
	Transcript string `json:"transcript"`
	Model      string `json:"model"`
	Error      string `json:"error"`
}

// transcribeServer POSTs audio as multipart form data to the sidecar
// /transcribe endpoint.
func (t *Transcriber) transcribeServer(ctx context.Context, m Model, filename string, data []byte, language string) (*stt.Result, error) {
	if t.serverURL == "" {
		return nil, fmt.Errorf("local: engine %q needs an inference server but none is configured", m.Engine.Kind)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("local: create form file: %w", err)
	}
	if _, err := fw.Write(data); err != nil {
		return nil, fmt.Errorf("local: write audio data: %w", err)
	}
	if language != "" {
		if err := mw.WriteField("language", language); err != nil {
			return nil, fmt.Errorf("local: write language field: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("local: close multipart writer: %w", err)
	}

	endpoint := t.serverURL + "/transcribe?include_word_timestamps=" +
		url.QueryEscape(strconv.FormatBool(t.wordTimestamps))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("local: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("local: read response: %w", err)
	}

	var decoded serverResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("local: parse response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if decoded.Error != "" {
			return nil, fmt.Errorf("local: server error: %s: %w", decoded.Error, ErrInferenceFailed)
		}
		return nil, fmt.Errorf("local: server returned HTTP %d: %w", resp.StatusCode, ErrInferenceFailed)
	}

	label := decoded.Model
	if label == "" {
		label = Label(m)
	}
	return &stt.Result{
		Transcript:  stt.Normalize(decoded.Transcript),
		SpeechModel: label,
	}, nil
}

// Label renders a human-readable model label from a registry key, e.g.
// "whisper-large-v3-turbo" → "Whisper Large V3 Turbo".
func Label(m Model) string {
	if m.Key == "" {
		return string(m.Engine.Kind)
	}
	words := strings.Split(m.Key, "-")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
