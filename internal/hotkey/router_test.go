package hotkey_test

import (
	"testing"

	"github.com/LegendarySpy/Glimpse-sub000/internal/hotkey"
	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
)

func accel(t *testing.T, s string) hotkey.Accelerator {
	t.Helper()
	a, err := hotkey.ParseAccelerator(s)
	if err != nil {
		t.Fatalf("ParseAccelerator(%q): %v", s, err)
	}
	return a
}

func enabled(s string) settings.Shortcut {
	return settings.Shortcut{Enabled: true, Accelerator: s}
}

func TestParseAccelerator(t *testing.T) {
	t.Parallel()

	t.Run("normalises aliases and order", func(t *testing.T) {
		t.Parallel()
		a := accel(t, "Shift+Control+SPACE")
		b := accel(t, "ctrl+space+shift")
		if !a.Equal(b) {
			t.Errorf("%v != %v", a, b)
		}
		if a.String() != "ctrl+shift+space" {
			t.Errorf("String() = %q", a.String())
		}
	})

	t.Run("cmd and super map to meta", func(t *testing.T) {
		t.Parallel()
		if !accel(t, "Cmd+V").Equal(accel(t, "super+v")) {
			t.Error("cmd and super should be the same modifier")
		}
	})

	t.Run("single key", func(t *testing.T) {
		t.Parallel()
		a := accel(t, "Fn")
		if a.String() != "fn" {
			t.Errorf("String() = %q", a.String())
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		t.Parallel()
		if _, err := hotkey.ParseAccelerator(""); err == nil {
			t.Error("empty accelerator should fail")
		}
		if _, err := hotkey.ParseAccelerator("ctrl++space"); err == nil {
			t.Error("empty component should fail")
		}
	})
}

func TestIsStrictSubsetOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want bool
	}{
		{"ctrl", "ctrl+space", true},
		{"ctrl+space", "ctrl+space", false},
		{"ctrl+space", "ctrl", false},
		{"alt", "ctrl+space", false},
	}
	for _, tc := range tests {
		got := accel(t, tc.a).IsStrictSubsetOf(accel(t, tc.b))
		if got != tc.want {
			t.Errorf("%q subset of %q = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func collectEvents(events *[]hotkey.Event) hotkey.Handler {
	return func(ev hotkey.Event) { *events = append(*events, ev) }
}

func TestDispatch_HoldObservesBothEdges(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(enabled("Fn"), settings.Shortcut{}, settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	fn := accel(t, "fn")
	r.Dispatch(fn, hotkey.Pressed)
	r.Dispatch(fn, hotkey.Released)

	if len(events) != 2 {
		t.Fatalf("events = %+v, want press then release", events)
	}
	if events[0].Binding != hotkey.BindingHold || events[0].Edge != hotkey.Pressed {
		t.Errorf("first event = %+v", events[0])
	}
	if events[1].Edge != hotkey.Released {
		t.Errorf("second event = %+v", events[1])
	}
}

func TestDispatch_ToggleIgnoresRelease(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(settings.Shortcut{}, enabled("Ctrl+Space"), settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	chord := accel(t, "ctrl+space")
	r.Dispatch(chord, hotkey.Pressed)
	r.Dispatch(chord, hotkey.Released)

	if len(events) != 1 || events[0].Edge != hotkey.Pressed {
		t.Fatalf("events = %+v, want exactly one Pressed", events)
	}
}

func TestDispatch_HoldSubsetOfToggleSuppressed(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(enabled("Ctrl"), enabled("Ctrl+Space"), settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	// The full toggle chord fires toggle only; hold must stay silent.
	r.Dispatch(accel(t, "ctrl+space"), hotkey.Pressed)
	if len(events) != 1 || events[0].Binding != hotkey.BindingToggle {
		t.Fatalf("events = %+v, want toggle only", events)
	}

	// The bare hold chord still fires hold.
	events = events[:0]
	r.Dispatch(accel(t, "ctrl"), hotkey.Pressed)
	if len(events) != 1 || events[0].Binding != hotkey.BindingHold {
		t.Fatalf("events = %+v, want hold", events)
	}
}

func TestDispatch_NoSuppressionWithoutSubset(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(enabled("Alt"), enabled("Ctrl+Space"), settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	r.Dispatch(accel(t, "alt"), hotkey.Pressed)
	if len(events) != 1 || events[0].Binding != hotkey.BindingHold {
		t.Fatalf("events = %+v", events)
	}
}

func TestDispatch_SmartObservesBothEdges(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(settings.Shortcut{}, settings.Shortcut{}, enabled("F13")); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	chord := accel(t, "f13")
	r.Dispatch(chord, hotkey.Pressed)
	r.Dispatch(chord, hotkey.Released)

	if len(events) != 2 {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Binding != hotkey.BindingSmart || events[1].Edge != hotkey.Released {
		t.Errorf("events = %+v", events)
	}
}

func TestDispatch_DisabledBindingSilent(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(settings.Shortcut{Enabled: false, Accelerator: "Fn"}, settings.Shortcut{}, settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	r.Dispatch(accel(t, "fn"), hotkey.Pressed)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}

func TestConfigure_InvalidEnabledBinding(t *testing.T) {
	t.Parallel()

	r := hotkey.NewRouter(nil)
	if err := r.Configure(enabled(""), settings.Shortcut{}, settings.Shortcut{}); err == nil {
		t.Fatal("expected error for enabled binding with empty accelerator")
	}
}

func TestDispatch_ReleaseWithoutPressIgnored(t *testing.T) {
	t.Parallel()

	var events []hotkey.Event
	r := hotkey.NewRouter(collectEvents(&events))
	if err := r.Configure(enabled("Fn"), settings.Shortcut{}, settings.Shortcut{}); err != nil {
		t.Fatalf("Configure: %v", err)
	}

	r.Dispatch(accel(t, "fn"), hotkey.Released)
	if len(events) != 0 {
		t.Fatalf("events = %+v, want none", events)
	}
}
