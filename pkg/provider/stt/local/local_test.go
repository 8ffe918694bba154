package local_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt/local"
)

func TestLabel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want string
	}{
		{"whisper-large-v3-turbo", "Whisper Large V3 Turbo"},
		{"parakeet", "Parakeet"},
		{"moonshine-base", "Moonshine Base"},
	}
	for _, tc := range tests {
		m := local.Model{Key: tc.key}
		if got := local.Label(m); got != tc.want {
			t.Errorf("Label(%q) = %q, want %q", tc.key, got, tc.want)
		}
	}

	fallback := local.Model{Engine: local.Engine{Kind: local.KindWhisper}}
	if got := local.Label(fallback); got != "whisper" {
		t.Errorf("Label with empty key = %q, want %q", got, "whisper")
	}
}

func TestTranscribe_ServerEngine(t *testing.T) {
	t.Parallel()

	var gotQuery, gotAPIKey, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAPIKey = r.Header.Get("x-api-key")
		gotContentType = r.Header.Get("Content-Type")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("missing file part: %v", err)
		} else {
			data, _ := io.ReadAll(file)
			file.Close()
			if string(data[:4]) != "RIFF" {
				t.Errorf("uploaded audio is not a WAV container")
			}
		}
		if lang := r.FormValue("language"); lang != "en" {
			t.Errorf("language field = %q, want %q", lang, "en")
		}

		json.NewEncoder(w).Encode(map[string]string{
			"transcript": "  hello   world  ",
			"model":      "Parakeet TDT",
		})
	}))
	defer srv.Close()

	tr := local.New(
		local.WithServer(srv.URL, "secret"),
		local.WithWordTimestamps(true),
	)
	defer tr.Close()

	m := local.Model{Key: "parakeet", Engine: local.Engine{Kind: local.KindParakeet, Int8: true}}
	res, err := tr.Transcribe(context.Background(), m, stt.Request{
		Samples:    make([]int16, 1600),
		SampleRate: 16000,
		Language:   "en",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.Transcript != "hello world" {
		t.Errorf("transcript = %q, want %q", res.Transcript, "hello world")
	}
	if res.SpeechModel != "Parakeet TDT" {
		t.Errorf("model label = %q, want %q", res.SpeechModel, "Parakeet TDT")
	}
	if gotQuery != "include_word_timestamps=true" {
		t.Errorf("query = %q", gotQuery)
	}
	if gotAPIKey != "secret" {
		t.Errorf("x-api-key = %q", gotAPIKey)
	}
	if gotContentType == "" {
		t.Errorf("missing multipart content type")
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"error": "model crashed"})
	}))
	defer srv.Close()

	tr := local.New(local.WithServer(srv.URL, ""))
	m := local.Model{Key: "moonshine-base", Engine: local.Engine{Kind: local.KindMoonshine, Variant: "base"}}

	_, err := tr.Transcribe(context.Background(), m, stt.Request{Samples: make([]int16, 16), SampleRate: 16000})
	if !errors.Is(err, local.ErrInferenceFailed) {
		t.Fatalf("err = %v, want ErrInferenceFailed", err)
	}
}

func TestTranscribe_NoServerConfigured(t *testing.T) {
	t.Parallel()

	tr := local.New()
	m := local.Model{Key: "parakeet", Engine: local.Engine{Kind: local.KindParakeet}}

	_, err := tr.Transcribe(context.Background(), m, stt.Request{Samples: make([]int16, 16), SampleRate: 16000})
	if err == nil {
		t.Fatal("expected error when no inference server is configured")
	}
}

func TestTranscribe_CancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tr := local.New()
	m := local.Model{Key: "whisper-base", Engine: local.Engine{Kind: local.KindWhisper}}
	if _, err := tr.Transcribe(ctx, m, stt.Request{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
