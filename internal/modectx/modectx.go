// Package modectx infers a per-dictation prompt from the foreground window.
// Users define personalities, each with a prompt and the sites or apps it
// applies to; the first enabled personality matching the target wins.
// Matching is a pure function so it can be computed once at stop time and
// tested without a window system.
package modectx

import (
	"net/url"
	"strings"
	"unicode"

	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
)

// Target describes the foreground window at the moment recording stopped.
type Target struct {
	// App is the foreground application name.
	App string

	// WindowTitle is the window's title text.
	WindowTitle string

	// URL is the page address when the app is a browser; empty otherwise.
	URL string
}

// Prompt returns the prompt of the first enabled personality matching
// target, or "" when none matches.
func Prompt(target Target, personalities []settings.Personality) string {
	for _, p := range personalities {
		if !p.Enabled {
			continue
		}
		if matches(target, p) {
			return p.Prompt
		}
	}
	return ""
}

// matches reports whether any of the personality's sites or apps fit the
// target.
func matches(target Target, p settings.Personality) bool {
	host := extractHost(target.URL)
	for _, site := range p.Sites {
		if site = strings.TrimSpace(site); site == "" {
			continue
		}
		if matchesSite(host, target.WindowTitle, site) {
			return true
		}
	}
	for _, app := range p.Apps {
		if app = strings.TrimSpace(app); app == "" {
			continue
		}
		if matchesApp(target.App, app) {
			return true
		}
	}
	return false
}

// matchesSite checks a site pattern against the page host, falling back to
// the window title for browsers that expose no URL.
func matchesSite(host, windowTitle, site string) bool {
	site = strings.ToLower(extractHost(site))
	if site == "" {
		return false
	}
	if host != "" {
		if host == site || strings.HasSuffix(host, "."+site) {
			return true
		}
		return containsToken(host, firstLabel(site))
	}
	return containsToken(windowTitle, site) || containsToken(windowTitle, firstLabel(site))
}

// firstLabel returns the leading DNS label of a host ("github" for
// "github.com").
func firstLabel(host string) string {
	if idx := strings.IndexByte(host, '.'); idx > 0 {
		return host[:idx]
	}
	return host
}

// matchesApp checks an app pattern by case-insensitive equality, then by
// token match within the app name.
func matchesApp(app, pattern string) bool {
	if strings.EqualFold(app, pattern) {
		return true
	}
	return containsToken(app, pattern)
}

// extractHost pulls the lowercased host out of a URL-ish string. Inputs
// without a scheme are treated as bare hosts; paths are dropped.
func extractHost(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if strings.Contains(raw, "://") {
		if u, err := url.Parse(raw); err == nil && u.Host != "" {
			return strings.TrimPrefix(u.Hostname(), "www.")
		}
	}
	if idx := strings.IndexAny(raw, "/?#"); idx >= 0 {
		raw = raw[:idx]
	}
	return strings.TrimPrefix(raw, "www.")
}

// containsToken reports whether needle occurs in haystack on token
// boundaries. Tokens are runs of letters and digits; comparison is
// case-insensitive.
func containsToken(haystack, needle string) bool {
	needle = strings.ToLower(needle)
	if needle == "" {
		return false
	}
	tokens := strings.FieldsFunc(strings.ToLower(haystack), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, tok := range tokens {
		if tok == needle {
			return true
		}
	}
	return false
}
