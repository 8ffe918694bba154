// Package settings provides the persisted user settings schema and loader
// for Glimpse. The pipeline controller reads settings as an immutable
// snapshot once per dictation operation; mutations made while an operation
// is in flight are observed by the next one.
package settings

import "strings"

// TranscriptionMode selects which transcription backend the pipeline uses.
type TranscriptionMode string

const (
	// ModeLocal runs inference against the locally installed speech model.
	ModeLocal TranscriptionMode = "local"

	// ModeCloud posts recorded audio to the remote transcription function.
	ModeCloud TranscriptionMode = "cloud"
)

// IsValid reports whether m is a recognised transcription mode.
func (m TranscriptionMode) IsValid() bool {
	return m == ModeLocal || m == ModeCloud
}

// LLMProvider identifies the chat-completions vendor used for cleanup.
type LLMProvider string

const (
	ProviderOpenAI     LLMProvider = "openai"
	ProviderGroq       LLMProvider = "groq"
	ProviderOpenRouter LLMProvider = "openrouter"
	ProviderOllama     LLMProvider = "ollama"
	ProviderCustom     LLMProvider = "custom"
)

// IsValid reports whether p is a recognised LLM provider.
func (p LLMProvider) IsValid() bool {
	switch p {
	case ProviderOpenAI, ProviderGroq, ProviderOpenRouter, ProviderOllama, ProviderCustom:
		return true
	}
	return false
}

// Shortcut is one of the three global hotkey bindings.
type Shortcut struct {
	// Enabled activates the binding. A disabled binding is never delivered.
	Enabled bool `json:"enabled"`

	// Accelerator is the key combination in "Mod+Mod+Key" form,
	// e.g. "Cmd+Shift+Space".
	Accelerator string `json:"accelerator"`
}

// Replacement is a single post-transcription find/replace rule.
type Replacement struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Personality maps a foreground application or site to an extra prompt
// appended to the LLM cleanup system prompt.
type Personality struct {
	// Name is a human-readable label shown in settings.
	Name string `json:"name"`

	// Enabled activates this entry for mode-context matching.
	Enabled bool `json:"enabled"`

	// Sites lists host fragments matched against the foreground URL.
	Sites []string `json:"sites"`

	// Apps lists application names matched against the foreground app.
	Apps []string `json:"apps"`

	// Prompt is the text appended to the cleanup system prompt on match.
	Prompt string `json:"prompt"`
}

// Settings is the snapshot-valued user configuration consumed by the
// capture-to-paste pipeline. It is loaded from a JSON file via [Load].
type Settings struct {
	// TranscriptionMode selects the local or cloud backend.
	TranscriptionMode TranscriptionMode `json:"transcription_mode"`

	// LocalModelKey names the installed model used in local mode.
	LocalModelKey string `json:"local_model_key"`

	// Language is the BCP-47 language code passed to the transcriber.
	// Empty means auto-detect.
	Language string `json:"language"`

	// HoldShortcut records while the key is physically down.
	HoldShortcut Shortcut `json:"hold_shortcut"`

	// ToggleShortcut starts on press and stops on the next press.
	ToggleShortcut Shortcut `json:"toggle_shortcut"`

	// SmartShortcut acts as toggle on a short tap and hold otherwise.
	SmartShortcut Shortcut `json:"smart_shortcut"`

	// MicrophoneDeviceID selects a capture device; empty uses the default.
	MicrophoneDeviceID string `json:"microphone_device_id,omitempty"`

	// AutoPaste injects the transcript into the focused app after copy.
	AutoPaste bool `json:"auto_paste"`

	// EditModeEnabled rewrites the current selection using the transcript
	// as an instruction when a selection is present.
	EditModeEnabled bool `json:"edit_mode_enabled"`

	// LLMCleanupEnabled runs the transcript through the cleanup pass.
	LLMCleanupEnabled bool `json:"llm_cleanup_enabled"`

	LLMProvider LLMProvider `json:"llm_provider"`
	LLMEndpoint string      `json:"llm_endpoint"`
	LLMAPIKey   string      `json:"llm_api_key"`
	LLMModel    string      `json:"llm_model"`

	// UserContext is free text forwarded to cloud transcription and the
	// cleanup prompt (vocabulary, role, preferences).
	UserContext string `json:"user_context"`

	// UserName personalises the cleanup prompt.
	UserName string `json:"user_name"`

	// Dictionary is the ordered preferred-terms list used as a biasing
	// prompt for Whisper-family models.
	Dictionary []string `json:"dictionary"`

	// Replacements are applied to every transcript, in order.
	Replacements []Replacement `json:"replacements"`

	// Personalities drive the mode-context prompt.
	Personalities []Personality `json:"personalities"`
}

// Default returns the settings used when no file exists yet.
func Default() Settings {
	return Settings{
		TranscriptionMode: ModeCloud,
		HoldShortcut:      Shortcut{Enabled: true, Accelerator: "Fn"},
		ToggleShortcut:    Shortcut{Enabled: false, Accelerator: "Fn+Space"},
		SmartShortcut:     Shortcut{Enabled: false, Accelerator: "F13"},
		AutoPaste:         true,
		LLMProvider:       ProviderOpenAI,
	}
}

// Truthy reports whether an environment value means "on": 1, true, or yes,
// case-insensitively.
func Truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return true
	}
	return false
}
