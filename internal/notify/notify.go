// Package notify shows desktop notifications. Failures are logged and
// swallowed; a missing notification daemon must never break dictation.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

const appTitle = "Glimpse"

// Info shows an informational toast.
func Info(message string) {
	if err := beeep.Notify(appTitle, message, ""); err != nil {
		slog.Debug("notify: info toast failed", "error", err)
	}
}

// Warn shows a warning toast.
func Warn(message string) {
	if err := beeep.Notify(appTitle, message, ""); err != nil {
		slog.Debug("notify: warning toast failed", "error", err)
	}
}

// Error shows an error alert.
func Error(message string) {
	if err := beeep.Alert(appTitle, message, ""); err != nil {
		slog.Debug("notify: error alert failed", "error", err)
	}
}
