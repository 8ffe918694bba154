package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Load reads the JSON settings file at path and returns a validated
// [Settings]. A missing file yields [Default] rather than an error so a
// first run works without setup.
func Load(path string) (Settings, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("settings: open %q: %w", path, err)
	}
	defer f.Close()

	s, err := LoadFromReader(f)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: parse %q: %w", path, err)
	}
	return s, nil
}

// LoadFromReader decodes JSON settings from r and validates the result.
// Useful in tests where settings are constructed from string literals.
func LoadFromReader(r io.Reader) (Settings, error) {
	s := Default()
	dec := json.NewDecoder(r)
	if err := dec.Decode(&s); err != nil {
		return Settings{}, fmt.Errorf("settings: decode json: %w", err)
	}
	if err := Validate(&s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks that s contains a coherent set of values and returns a
// joined error listing all failures found.
func Validate(s *Settings) error {
	var errs []error

	if s.TranscriptionMode != "" && !s.TranscriptionMode.IsValid() {
		errs = append(errs, fmt.Errorf("transcription_mode %q is invalid; valid values: local, cloud", s.TranscriptionMode))
	}
	if s.LLMProvider != "" && !s.LLMProvider.IsValid() {
		errs = append(errs, fmt.Errorf("llm_provider %q is invalid", s.LLMProvider))
	}
	if s.TranscriptionMode == ModeLocal && s.LocalModelKey == "" {
		slog.Warn("transcription_mode is local but local_model_key is empty; dictation will fail until a model is selected")
	}
	if s.LLMCleanupEnabled && s.LLMModel == "" {
		slog.Warn("llm_cleanup_enabled is set but llm_model is empty; cleanup will be skipped")
	}
	if s.EditModeEnabled && !s.LLMCleanupEnabled {
		slog.Warn("edit_mode_enabled requires llm_cleanup_enabled; edit requests will be rejected")
	}

	for i, sc := range []Shortcut{s.HoldShortcut, s.ToggleShortcut, s.SmartShortcut} {
		if sc.Enabled && sc.Accelerator == "" {
			errs = append(errs, fmt.Errorf("shortcut %d is enabled but has no accelerator", i))
		}
	}

	return errors.Join(errs...)
}

// Save writes s as pretty JSON to path, creating parent directories as
// needed. The write is atomic via a temp-file rename.
func Save(path string, s Settings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("settings: mkdir: %w", err)
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("settings: write: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("settings: rename: %w", err)
	}
	return nil
}

// Store holds the live settings value and hands out copies. The controller
// takes one [Store.Snapshot] per operation, giving the snapshot semantics
// the pipeline requires.
type Store struct {
	mu   sync.RWMutex
	path string
	cur  Settings
}

// NewStore loads path and returns a store around the result.
func NewStore(path string) (*Store, error) {
	s, err := Load(path)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, cur: s}, nil
}

// Snapshot returns a copy of the current settings. Slices are cloned so a
// concurrent update cannot mutate an in-flight operation's view.
func (st *Store) Snapshot() Settings {
	st.mu.RLock()
	defer st.mu.RUnlock()

	s := st.cur
	s.Dictionary = append([]string(nil), st.cur.Dictionary...)
	s.Replacements = append([]Replacement(nil), st.cur.Replacements...)
	s.Personalities = append([]Personality(nil), st.cur.Personalities...)
	return s
}

// Update validates, persists, and swaps in the new settings.
func (st *Store) Update(s Settings) error {
	if err := Validate(&s); err != nil {
		return err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if err := Save(st.path, s); err != nil {
		return err
	}
	st.cur = s
	return nil
}

// Reload re-reads the settings file from disk, replacing the current value.
func (st *Store) Reload() error {
	s, err := Load(st.path)
	if err != nil {
		return err
	}
	st.mu.Lock()
	st.cur = s
	st.mu.Unlock()
	return nil
}
