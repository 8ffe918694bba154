// Package store persists transcription history as a pretty-printed JSON
// document on disk. The file is small (one entry per dictation) and is
// rewritten atomically on every mutation; reads serve from the in-memory
// copy loaded at open time.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status marks whether a dictation produced text or failed.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Metadata carries per-record bookkeeping.
type Metadata struct {
	// SpeechModel is the label of the model that produced the transcript.
	SpeechModel string `json:"speech_model"`

	// LLMModel names the cleanup model, when cleanup ran.
	LLMModel string `json:"llm_model,omitempty"`

	// WordCount is the number of words in the final text.
	WordCount int `json:"word_count"`

	// AudioDurationSeconds is the recording length.
	AudioDurationSeconds float64 `json:"audio_duration_seconds"`

	// Synced reports whether the record has been uploaded to history
	// sync.
	Synced bool `json:"synced"`
}

// Record is one stored dictation.
type Record struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`

	// Text is the final transcript. Empty only on error records.
	Text string `json:"text"`

	// RawText is the pre-cleanup transcript when cleanup ran.
	RawText string `json:"raw_text,omitempty"`

	// AudioPath is the MP3 artifact for this dictation.
	AudioPath string `json:"audio_path"`

	Status Status `json:"status"`

	// ErrorMessage explains the failure on error records.
	ErrorMessage string `json:"error_message,omitempty"`

	Metadata Metadata `json:"metadata"`
}

// Store owns the history file.
type Store struct {
	mu      sync.Mutex
	path    string
	records []Record
}

// Open loads the history file at path, creating an empty store when the
// file does not exist yet.
func Open(path string) (*Store, error) {
	s := &Store{path: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		return nil, fmt.Errorf("store: parse %q: %w", path, err)
	}
	return s, nil
}

// Save appends a success record and returns it.
func (s *Store) Save(text, audioPath string, meta Metadata) (*Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Text:      text,
		AudioPath: audioPath,
		Status:    StatusSuccess,
		Metadata:  meta,
	}
	if err := s.append(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveWithCleanup appends a success record carrying both the raw and the
// cleaned transcript.
func (s *Store) SaveWithCleanup(raw, cleaned, audioPath string, meta Metadata) (*Record, error) {
	rec := Record{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Text:      cleaned,
		RawText:   raw,
		AudioPath: audioPath,
		Status:    StatusSuccess,
		Metadata:  meta,
	}
	if err := s.append(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SaveError appends an error record so a failed dictation can be retried
// later from its retained audio.
func (s *Store) SaveError(message, audioPath string, meta Metadata) (*Record, error) {
	rec := Record{
		ID:           uuid.NewString(),
		Timestamp:    time.Now(),
		AudioPath:    audioPath,
		Status:       StatusError,
		ErrorMessage: message,
		Metadata:     meta,
	}
	if err := s.append(rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Replace swaps the record with the given id for rec, keeping rec's own id.
// Used by retry to replace an error record with its successful rerun.
func (s *Store) Replace(id string, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i] = rec
			return s.flush()
		}
	}
	return fmt.Errorf("store: record %q not found", id)
}

// GetAll returns every record, newest first.
func (s *Store) GetAll() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Record, len(s.records))
	copy(out, s.records)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}

// GetByID returns the record with the given id, or nil.
func (s *Store) GetByID(id string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			rec := s.records[i]
			return &rec
		}
	}
	return nil
}

// Delete removes the record with the given id and returns its audio path
// so the caller can unlink the artifact.
func (s *Store) Delete(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.records {
		if s.records[i].ID == id {
			audioPath := s.records[i].AudioPath
			s.records = append(s.records[:i], s.records[i+1:]...)
			if err := s.flush(); err != nil {
				return "", err
			}
			return audioPath, nil
		}
	}
	return "", fmt.Errorf("store: record %q not found", id)
}

// append adds rec and flushes.
func (s *Store) append(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.flush()
}

// flush rewrites the history file atomically. Caller holds the lock.
func (s *Store) flush() error {
	data, err := json.MarshalIndent(s.records, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal records: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: create directory: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("store: write %q: %w", tmp, err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("store: rename %q: %w", tmp, err)
	}
	return nil
}
