package hotkey

import (
	"fmt"
	"sort"
	"strings"
)

// Accelerator is a parsed key chord. Keys are stored normalised so
// "Ctrl+Shift+Space" and "shift+control+SPACE" compare equal.
type Accelerator struct {
	keys map[string]struct{}
}

// keyAliases maps accelerator spellings onto canonical key names.
var keyAliases = map[string]string{
	"control":  "ctrl",
	"cmd":      "meta",
	"command":  "meta",
	"super":    "meta",
	"win":      "meta",
	"option":   "alt",
	"return":   "enter",
	"esc":      "escape",
	"spacebar": "space",
}

// ParseAccelerator parses a "+"-separated chord string such as
// "Ctrl+Shift+Space" or "Fn".
func ParseAccelerator(s string) (Accelerator, error) {
	parts := strings.Split(s, "+")
	keys := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			return Accelerator{}, fmt.Errorf("hotkey: empty key in accelerator %q", s)
		}
		if canonical, ok := keyAliases[p]; ok {
			p = canonical
		}
		keys[p] = struct{}{}
	}
	if len(keys) == 0 {
		return Accelerator{}, fmt.Errorf("hotkey: empty accelerator")
	}
	return Accelerator{keys: keys}, nil
}

// Empty reports whether the accelerator holds no keys.
func (a Accelerator) Empty() bool { return len(a.keys) == 0 }

// Contains reports whether the accelerator includes the canonical key name.
func (a Accelerator) Contains(key string) bool {
	if canonical, ok := keyAliases[key]; ok {
		key = canonical
	}
	_, ok := a.keys[key]
	return ok
}

// Equal reports whether both accelerators name the same key set.
func (a Accelerator) Equal(b Accelerator) bool {
	if len(a.keys) != len(b.keys) {
		return false
	}
	for k := range a.keys {
		if _, ok := b.keys[k]; !ok {
			return false
		}
	}
	return true
}

// IsStrictSubsetOf reports whether every key of a appears in b and b has at
// least one more key.
func (a Accelerator) IsStrictSubsetOf(b Accelerator) bool {
	if len(a.keys) >= len(b.keys) {
		return false
	}
	for k := range a.keys {
		if _, ok := b.keys[k]; !ok {
			return false
		}
	}
	return true
}

// String renders the canonical sorted chord, e.g. "ctrl+shift+space".
func (a Accelerator) String() string {
	keys := make([]string, 0, len(a.keys))
	for k := range a.keys {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "+")
}
