// Package dictionary applies the user's preferred-terms list to the
// transcription pipeline in two ways: as a biasing prompt handed to
// Whisper-family models before inference, and as ordered find/replace rules
// applied to the transcript afterwards with case preservation.
package dictionary

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
)

const (
	// maxTerms caps the sanitised dictionary length.
	maxTerms = 64

	// maxTermLen caps each individual term, in runes.
	maxTermLen = 160

	promptHeader = "Use the following preferred terms verbatim when transcribing:\n"
)

// SanitizeTerms trims terms, drops empties, deduplicates case-insensitively
// (first occurrence wins), truncates each term to 160 characters, and caps
// the list at 64 entries. Order is preserved.
func SanitizeTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if r := []rune(t); len(r) > maxTermLen {
			t = string(r[:maxTermLen])
		}
		key := strings.ToLower(t)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

// BuildPrompt renders the biasing prompt for a sanitised term list, one
// "- term" line per entry. Returns "" when the list is empty.
func BuildPrompt(terms []string) string {
	terms = SanitizeTerms(terms)
	if len(terms) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(promptHeader)
	for _, t := range terms {
		sb.WriteString("- ")
		sb.WriteString(t)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ApplyReplacements runs every rule with a non-empty From over text, in
// order. Matching is case-insensitive on word boundaries; the replacement
// mirrors the case shape of the matched text:
//
//   - match entirely uppercase with at least two letters → To uppercased
//   - first letter of the match uppercase → To with its first letter uppercased
//   - otherwise → To verbatim
func ApplyReplacements(text string, rules []settings.Replacement) string {
	for _, rule := range rules {
		if rule.From == "" {
			continue
		}
		re, err := compileRule(rule.From)
		if err != nil {
			continue
		}
		text = re.ReplaceAllStringFunc(text, func(match string) string {
			return preserveCase(match, rule.To)
		})
	}
	return text
}

// compileRule builds the case-insensitive word-boundary pattern for a rule.
func compileRule(from string) (*regexp.Regexp, error) {
	return regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
}

// preserveCase shapes replacement to match the capitalisation of match.
func preserveCase(match, replacement string) string {
	if isAllUpper(match) {
		return strings.ToUpper(replacement)
	}
	if firstAlphaIsUpper(match) {
		return upperFirst(replacement)
	}
	return replacement
}

// isAllUpper reports whether match contains at least two letters and every
// letter is uppercase.
func isAllUpper(s string) bool {
	letters := 0
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return letters >= 2
}

// firstAlphaIsUpper reports whether the first letter in s is uppercase.
func firstAlphaIsUpper(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return unicode.IsUpper(r)
		}
	}
	return false
}

// upperFirst uppercases the first letter of s, leaving the rest untouched.
func upperFirst(s string) string {
	for i, r := range s {
		if unicode.IsLetter(r) {
			return s[:i] + string(unicode.ToUpper(r)) + s[i+len(string(r)):]
		}
	}
	return s
}
