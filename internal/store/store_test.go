package store_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/LegendarySpy/Glimpse-sub000/internal/store"
)

func openStore(t *testing.T) (*store.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history", "transcriptions.json")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return s, path
}

func TestSaveAndReload(t *testing.T) {
	t.Parallel()

	s, path := openStore(t)
	rec, err := s.Save("hello world", "/tmp/a.mp3", store.Metadata{
		SpeechModel:          "Whisper Base",
		WordCount:            2,
		AudioDurationSeconds: 1.5,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.ID == "" || rec.Status != store.StatusSuccess {
		t.Errorf("record = %+v", rec)
	}

	reloaded, err := store.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got := reloaded.GetAll()
	if len(got) != 1 || got[0].Text != "hello world" || got[0].Metadata.WordCount != 2 {
		t.Errorf("reloaded = %+v", got)
	}
}

func TestSaveWithCleanup(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	rec, err := s.SaveWithCleanup("um hello", "hello", "/tmp/a.mp3", store.Metadata{LLMModel: "gpt-4o-mini"})
	if err != nil {
		t.Fatalf("SaveWithCleanup: %v", err)
	}
	if rec.Text != "hello" || rec.RawText != "um hello" {
		t.Errorf("record = %+v", rec)
	}
}

func TestGetAll_NewestFirst(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	first, _ := s.Save("first", "/tmp/1.mp3", store.Metadata{})
	second, _ := s.Save("second", "/tmp/2.mp3", store.Metadata{})

	got := s.GetAll()
	if len(got) != 2 {
		t.Fatalf("len = %d", len(got))
	}
	if got[0].ID != second.ID || got[1].ID != first.ID {
		t.Errorf("order = [%s %s], want newest first", got[0].Text, got[1].Text)
	}
}

func TestDelete_ReturnsAudioPath(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	rec, _ := s.Save("text", "/recordings/x.mp3", store.Metadata{})

	audioPath, err := s.Delete(rec.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if audioPath != "/recordings/x.mp3" {
		t.Errorf("audioPath = %q", audioPath)
	}
	if s.GetByID(rec.ID) != nil {
		t.Errorf("record still present after delete")
	}

	if _, err := s.Delete("missing-id"); err == nil {
		t.Errorf("deleting unknown id should fail")
	}
}

func TestReplace(t *testing.T) {
	t.Parallel()

	s, _ := openStore(t)
	failed, _ := s.SaveError("transcription failed", "/tmp/r.mp3", store.Metadata{})

	fixed := *failed
	fixed.Status = store.StatusSuccess
	fixed.Text = "retried text"
	fixed.ErrorMessage = ""
	if err := s.Replace(failed.ID, fixed); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	got := s.GetByID(failed.ID)
	if got == nil || got.Status != store.StatusSuccess || got.Text != "retried text" {
		t.Errorf("record = %+v", got)
	}
}

func TestFileIsPrettyPrinted(t *testing.T) {
	t.Parallel()

	s, path := openStore(t)
	if _, err := s.Save("text", "/tmp/a.mp3", store.Metadata{}); err != nil {
		t.Fatalf("Save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(data), "\n  ") {
		t.Errorf("file is not indented:\n%s", data)
	}
	var parsed []store.Record
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Errorf("file is not valid JSON: %v", err)
	}
}

func TestOpen_CorruptFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "transcriptions.json")
	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := store.Open(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}
