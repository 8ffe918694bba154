package settings

import "os"

// Env carries the process-environment overrides recognised by Glimpse.
// These take precedence over the settings file for the fields they cover.
type Env struct {
	// APIURL is the local-transcription fallback host
	// (GLIMPSE_API_URL, or GLIMPSE_API_ENDPOINT when unset).
	APIURL string

	// APIKey is sent as x-api-key to the fallback host (GLIMPSE_API_KEY).
	APIKey string

	// IncludeWordTimestamps forwards word timing to the fallback host
	// (GLIMPSE_INCLUDE_WORD_TIMESTAMPS).
	IncludeWordTimestamps bool

	// AutoPaste force-enables auto paste (GLIMPSE_AUTO_PASTE).
	AutoPaste bool

	// AutoPasteSet distinguishes "unset" from "explicitly off".
	AutoPasteSet bool

	// CheckoutURL is the purchase page opened from upgrade toasts
	// (VITE_CHECKOUT_URL).
	CheckoutURL string
}

// ReadEnv collects the recognised environment overrides.
func ReadEnv() Env {
	e := Env{
		APIURL:      os.Getenv("GLIMPSE_API_URL"),
		APIKey:      os.Getenv("GLIMPSE_API_KEY"),
		CheckoutURL: os.Getenv("VITE_CHECKOUT_URL"),
	}
	if e.APIURL == "" {
		e.APIURL = os.Getenv("GLIMPSE_API_ENDPOINT")
	}
	e.IncludeWordTimestamps = Truthy(os.Getenv("GLIMPSE_INCLUDE_WORD_TIMESTAMPS"))
	if v, ok := os.LookupEnv("GLIMPSE_AUTO_PASTE"); ok {
		e.AutoPasteSet = true
		e.AutoPaste = Truthy(v)
	}
	return e
}

// Apply overlays the environment overrides onto s.
func (e Env) Apply(s *Settings) {
	if e.AutoPasteSet {
		s.AutoPaste = e.AutoPaste
	}
}
