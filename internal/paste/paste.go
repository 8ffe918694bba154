// Package paste delivers transcripts to the focused application by writing
// them to the system clipboard and synthesising the platform paste chord.
// The previous clipboard contents are restored shortly afterwards so
// dictation does not clobber whatever the user had copied.
package paste

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"github.com/atotto/clipboard"
	"github.com/micmonay/keybd_event"
)

const (
	// writeSettle is the pause between writing the clipboard and sending
	// the paste chord, so the target app sees the new contents.
	writeSettle = 10 * time.Millisecond

	// chordHold is how long the synthetic chord is held down.
	chordHold = 5 * time.Millisecond

	// restoreAfter is how long the transcript stays on the clipboard
	// before the previous contents come back.
	restoreAfter = time.Second

	// copySettle is the wait after a synthetic copy before reading the
	// selection back.
	copySettle = 150 * time.Millisecond

	// maxSelectionLen caps the captured selection handed to edit mode,
	// in runes.
	maxSelectionLen = 10000
)

// Clipboard abstracts the system clipboard.
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Keyboard synthesises the paste and copy chords.
type Keyboard interface {
	Paste() error
	Copy() error
}

// systemClipboard backs Clipboard with the real system clipboard.
type systemClipboard struct{}

func (systemClipboard) Read() (string, error)   { return clipboard.ReadAll() }
func (systemClipboard) Write(text string) error { return clipboard.WriteAll(text) }

// systemKeyboard synthesises chords with virtual key events. The modifier
// is Cmd on macOS and Ctrl everywhere else.
type systemKeyboard struct{}

func (systemKeyboard) Paste() error { return sendChord(keybd_event.VK_V) }
func (systemKeyboard) Copy() error  { return sendChord(keybd_event.VK_C) }

func sendChord(key int) error {
	kb, err := keybd_event.NewKeyBonding()
	if err != nil {
		return fmt.Errorf("paste: create key bonding: %w", err)
	}
	kb.SetKeys(key)
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}

	if err := kb.Press(); err != nil {
		return fmt.Errorf("paste: press chord: %w", err)
	}
	time.Sleep(chordHold)
	if err := kb.Release(); err != nil {
		return fmt.Errorf("paste: release chord: %w", err)
	}
	return nil
}

// Actuator pastes text into the focused application.
type Actuator struct {
	clip  Clipboard
	kb    Keyboard
	sleep func(time.Duration)

	// after schedules the clipboard restore; replaceable in tests.
	after func(time.Duration, func())
}

// Option is a functional option for an [Actuator].
type Option func(*Actuator)

// WithClipboard replaces the system clipboard.
func WithClipboard(c Clipboard) Option {
	return func(a *Actuator) { a.clip = c }
}

// WithKeyboard replaces the synthetic keyboard.
func WithKeyboard(k Keyboard) Option {
	return func(a *Actuator) { a.kb = k }
}

// WithSleep replaces the settle waits.
func WithSleep(sleep func(time.Duration)) Option {
	return func(a *Actuator) { a.sleep = sleep }
}

// WithScheduler replaces the deferred-restore scheduler.
func WithScheduler(after func(time.Duration, func())) Option {
	return func(a *Actuator) { a.after = after }
}

// New creates an Actuator bound to the real clipboard and keyboard.
func New(opts ...Option) *Actuator {
	a := &Actuator{
		clip:  systemClipboard{},
		kb:    systemKeyboard{},
		sleep: time.Sleep,
		after: func(d time.Duration, fn func()) {
			time.AfterFunc(d, fn)
		},
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Paste writes text to the clipboard and sends the paste chord. On chord
// failure the text is left on the clipboard so the user can paste by hand;
// the returned error signals that degradation. On success the previous
// clipboard contents are restored after [restoreAfter]. The clipboard
// binding carries text only; HTML and image payloads are not preserved
// across the restore.
func (a *Actuator) Paste(text string) error {
	prev, err := a.clip.Read()
	if err != nil {
		slog.Debug("paste: could not read previous clipboard", "error", err)
		prev = ""
	}

	if err := a.clip.Write(text); err != nil {
		return fmt.Errorf("paste: write clipboard: %w", err)
	}
	a.sleep(writeSettle)

	if err := a.kb.Paste(); err != nil {
		return fmt.Errorf("paste: send paste chord: %w", err)
	}

	a.after(restoreAfter, func() {
		if err := a.clip.Write(prev); err != nil {
			slog.Debug("paste: restoring clipboard failed", "error", err)
		}
	})
	return nil
}

// CopyOnly places text on the clipboard without synthesising a chord. Used
// when auto-paste is disabled.
func (a *Actuator) CopyOnly(text string) error {
	if err := a.clip.Write(text); err != nil {
		return fmt.Errorf("paste: write clipboard: %w", err)
	}
	return nil
}

// ReadSelection captures the focused application's current text selection
// by synthesising the copy chord and reading the clipboard back. The
// previous clipboard contents are restored before returning. An empty
// string means nothing was selected.
func (a *Actuator) ReadSelection() (string, error) {
	prev, err := a.clip.Read()
	if err != nil {
		prev = ""
	}

	// Clear first so stale clipboard contents cannot masquerade as a
	// selection when the copy chord is a no-op.
	if err := a.clip.Write(""); err != nil {
		return "", fmt.Errorf("paste: clear clipboard: %w", err)
	}

	if err := a.kb.Copy(); err != nil {
		a.restore(prev)
		return "", fmt.Errorf("paste: send copy chord: %w", err)
	}
	a.sleep(copySettle)

	selection, err := a.clip.Read()
	a.restore(prev)
	if err != nil {
		return "", fmt.Errorf("paste: read selection: %w", err)
	}

	if r := []rune(selection); len(r) > maxSelectionLen {
		selection = string(r[:maxSelectionLen])
	}
	return selection, nil
}

func (a *Actuator) restore(prev string) {
	if err := a.clip.Write(prev); err != nil {
		slog.Debug("paste: restoring clipboard failed", "error", err)
	}
}
