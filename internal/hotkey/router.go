// Package hotkey routes global keyboard chords to the dictation
// controller. Three logical bindings exist: hold (push-to-talk), toggle
// (tap to start, tap to stop) and smart (short tap upgrades a hold into a
// toggle). The router translates raw key events into (binding, edge) pairs
// and resolves the overlap between a hold chord that is a strict subset of
// the toggle chord.
package hotkey

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"

	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
)

// Binding names a logical shortcut.
type Binding string

const (
	BindingHold   Binding = "hold"
	BindingToggle Binding = "toggle"
	BindingSmart  Binding = "smart"
)

// Edge is a key transition.
type Edge int

const (
	Pressed Edge = iota
	Released
)

// String implements fmt.Stringer.
func (e Edge) String() string {
	if e == Pressed {
		return "pressed"
	}
	return "released"
}

// Event is one routed shortcut edge.
type Event struct {
	Binding Binding
	Edge    Edge

	// Accelerator is the canonical chord string that triggered the edge.
	Accelerator string
}

// Handler receives routed events. Called on the router's event goroutine;
// implementations must not block.
type Handler func(Event)

// Router owns the binding table and the raw-event translation.
type Router struct {
	mu       sync.Mutex
	bindings map[Binding]Accelerator

	// suppressHold is set when hold is a strict key-subset of toggle and
	// both are enabled; hold edges triggered by the full toggle chord are
	// then dropped.
	suppressHold bool
	toggleAccel  Accelerator

	// down tracks which bindings are currently held, for Released edges.
	down map[Binding]bool

	handler Handler
}

// NewRouter creates a Router delivering events to handler.
func NewRouter(handler Handler) *Router {
	return &Router{
		bindings: make(map[Binding]Accelerator),
		down:     make(map[Binding]bool),
		handler:  handler,
	}
}

// Configure installs the enabled bindings from settings. Disabled or
// unparsable bindings are skipped; an unparsable enabled binding is
// reported.
func (r *Router) Configure(hold, toggle, smart settings.Shortcut) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bindings = make(map[Binding]Accelerator)
	r.suppressHold = false
	r.toggleAccel = Accelerator{}

	var errs []string
	install := func(b Binding, sc settings.Shortcut) {
		if !sc.Enabled {
			return
		}
		accel, err := ParseAccelerator(sc.Accelerator)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", b, err))
			return
		}
		r.bindings[b] = accel
	}
	install(BindingHold, hold)
	install(BindingToggle, toggle)
	install(BindingSmart, smart)

	holdAccel, hasHold := r.bindings[BindingHold]
	toggleAccel, hasToggle := r.bindings[BindingToggle]
	if hasHold && hasToggle && holdAccel.IsStrictSubsetOf(toggleAccel) {
		r.suppressHold = true
		r.toggleAccel = toggleAccel
	}

	if len(errs) > 0 {
		return fmt.Errorf("hotkey: invalid bindings: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Dispatch routes one raw chord edge to every matching binding. triggered
// is the canonical chord string of the physical event. Exported as the
// pure core of the router so the disambiguation and edge rules are
// testable without a keyboard.
func (r *Router) Dispatch(triggered Accelerator, edge Edge) {
	r.mu.Lock()
	type delivery struct {
		binding Binding
		accel   Accelerator
	}
	var deliveries []delivery
	for binding, accel := range r.bindings {
		if !r.matches(binding, accel, triggered, edge) {
			continue
		}
		deliveries = append(deliveries, delivery{binding, accel})
	}
	for _, d := range deliveries {
		r.down[d.binding] = edge == Pressed
	}
	handler := r.handler
	r.mu.Unlock()

	if handler == nil {
		return
	}
	for _, d := range deliveries {
		handler(Event{Binding: d.binding, Edge: edge, Accelerator: triggered.String()})
	}
}

// matches applies the per-binding edge rules. Caller holds the lock.
func (r *Router) matches(binding Binding, accel, triggered Accelerator, edge Edge) bool {
	switch edge {
	case Pressed:
		if !accel.Equal(triggered) && !accel.IsStrictSubsetOf(triggered) {
			return false
		}
	case Released:
		// A release breaks the chord as soon as any of its keys lifts,
		// so match on binding-down state plus key membership.
		if !r.down[binding] {
			return false
		}
		anyShared := false
		for k := range triggered.keys {
			if accel.Contains(k) {
				anyShared = true
				break
			}
		}
		if !anyShared {
			return false
		}
	}

	switch binding {
	case BindingToggle:
		// Toggle acts on taps only.
		if edge == Released {
			return false
		}
	case BindingHold:
		if r.suppressHold && triggered.Equal(r.toggleAccel) {
			return false
		}
	}
	return true
}

// Run attaches to the global keyboard hook and feeds edges to Dispatch
// until ctx is cancelled. Blocks; run it on its own goroutine.
func (r *Router) Run(ctx context.Context) error {
	events := hook.Start()
	defer hook.End()

	slog.Info("hotkey: global hook started")

	pressed := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("hotkey: event hook closed")
			}
			switch ev.Kind {
			case hook.KeyDown, hook.KeyHold:
				name := keyName(ev)
				if name == "" {
					continue
				}
				// Auto-repeat passes through; the controller
				// deduplicates via its hold-key state.
				pressed[name] = struct{}{}
				r.Dispatch(chordOf(pressed), Pressed)
			case hook.KeyUp:
				name := keyName(ev)
				if name == "" {
					continue
				}
				// Report the chord as it was before the key lifted.
				r.Dispatch(chordOf(pressed), Released)
				delete(pressed, name)
			}
		}
	}
}

// chordOf builds an Accelerator from the currently pressed key set.
func chordOf(pressed map[string]struct{}) Accelerator {
	keys := make(map[string]struct{}, len(pressed))
	for k := range pressed {
		keys[k] = struct{}{}
	}
	return Accelerator{keys: keys}
}

// keyName maps a raw hook event to a canonical key name.
func keyName(ev hook.Event) string {
	name := strings.ToLower(hook.RawcodetoKeychar(ev.Rawcode))
	if name == "" && ev.Keychar != 0 && ev.Keychar != 65535 {
		name = strings.ToLower(string(ev.Keychar))
	}
	if canonical, ok := keyAliases[name]; ok {
		return canonical
	}
	return name
}
