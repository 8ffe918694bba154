package record_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/LegendarySpy/Glimpse-sub000/internal/record"
)

// fakeEncoder installs a stand-in ffmpeg that just creates its output file,
// so path layout and bookkeeping are testable without a real encoder.
func fakeEncoder(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake encoder script needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	script := "#!/bin/sh\ncat > /dev/null\nfor out; do :; done\n: > \"$out\"\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write fake encoder: %v", err)
	}
	return path
}

func TestSave_EmptyBuffer(t *testing.T) {
	t.Parallel()

	p := &record.Persister{BaseDir: t.TempDir()}
	_, err := p.Save(context.Background(), nil, 16000, 1, time.Now(), time.Now())
	if !errors.Is(err, record.ErrEmptyBuffer) {
		t.Fatalf("err = %v, want ErrEmptyBuffer", err)
	}
}

func TestSave_InvalidSampleRate(t *testing.T) {
	t.Parallel()

	p := &record.Persister{BaseDir: t.TempDir()}
	if _, err := p.Save(context.Background(), []int16{1}, 0, 1, time.Now(), time.Now()); err == nil {
		t.Fatal("expected error for zero sample rate")
	}
}

func TestSave_PathLayoutAndDuration(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	p := &record.Persister{BaseDir: base, FFmpegPath: fakeEncoder(t)}

	started := time.Date(2026, 8, 26, 9, 41, 7, 0, time.Local)
	ended := started.Add(2 * time.Second)
	samples := make([]int16, 32000) // two seconds of mono at 16 kHz

	saved, err := p.Save(context.Background(), samples, 16000, 1, started, ended)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	want := filepath.Join(base, "2026-08-26", "094107.mp3")
	if saved.Path != want {
		t.Errorf("path = %q, want %q", saved.Path, want)
	}
	if _, err := os.Stat(saved.Path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}
	if saved.DurationSeconds != 2.0 {
		t.Errorf("duration = %v, want 2.0", saved.DurationSeconds)
	}
	if !saved.StartedAt.Equal(started) || !saved.EndedAt.Equal(ended) {
		t.Errorf("timestamps not carried through")
	}
}

func TestSave_WideChannelsDownmixed(t *testing.T) {
	t.Parallel()

	p := &record.Persister{BaseDir: t.TempDir(), FFmpegPath: fakeEncoder(t)}

	// Four channels, 16000 frames: one second after downmix to mono.
	samples := make([]int16, 4*16000)
	saved, err := p.Save(context.Background(), samples, 16000, 4, time.Now(), time.Now())
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.DurationSeconds != 1.0 {
		t.Errorf("duration = %v, want 1.0 after downmix", saved.DurationSeconds)
	}
}

func TestSave_EncoderFailureRemovesArtifact(t *testing.T) {
	t.Parallel()

	p := &record.Persister{BaseDir: t.TempDir(), FFmpegPath: "/nonexistent/ffmpeg"}
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	_, err := p.Save(context.Background(), []int16{1, 2, 3}, 16000, 1, started, started)
	if err == nil {
		t.Fatal("expected encoder failure")
	}
	if _, statErr := os.Stat(filepath.Join(p.BaseDir, "2026-01-02", "030405.mp3")); !os.IsNotExist(statErr) {
		t.Errorf("partial artifact left behind: %v", statErr)
	}
}

func TestDecode_MissingFile(t *testing.T) {
	t.Parallel()

	if _, _, err := record.Decode(filepath.Join(t.TempDir(), "nope.mp3")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestDecode_GarbageFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "junk.mp3")
	if err := os.WriteFile(path, []byte("this is not an mp3"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, _, err := record.Decode(path); err == nil {
		t.Fatal("expected error for non-MP3 content")
	}
}
