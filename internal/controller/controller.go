// Package controller is the dictation state machine. It accepts shortcut
// edges from the hotkey router, moderates microphone capture, and drives
// each finished recording through the transcription pipeline: persist,
// transcribe, optional LLM cleanup or edit, dictionary replacements, paste
// and history record.
//
// The controller is event-driven: HandleEvent performs only synchronous
// bookkeeping on the caller's goroutine and hands long work (HTTP, local
// inference, file I/O) to a pipeline goroutine. A single pending request
// exists at any time; a further press from the same binding cancels it.
package controller

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/LegendarySpy/Glimpse-sub000/internal/capture"
	"github.com/LegendarySpy/Glimpse-sub000/internal/events"
	"github.com/LegendarySpy/Glimpse-sub000/internal/hotkey"
	"github.com/LegendarySpy/Glimpse-sub000/internal/modectx"
	"github.com/LegendarySpy/Glimpse-sub000/internal/observe"
	"github.com/LegendarySpy/Glimpse-sub000/internal/record"
	"github.com/LegendarySpy/Glimpse-sub000/internal/settings"
	"github.com/LegendarySpy/Glimpse-sub000/internal/store"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt"
	"github.com/LegendarySpy/Glimpse-sub000/pkg/provider/stt/cloud"
)

// State is the controller's lifecycle state.
type State string

const (
	StateIdle       State = "idle"
	StateListening  State = "listening"
	StateProcessing State = "processing"
	StateError      State = "error"
)

// Mode is the recording mode orthogonal to State.
type Mode string

const (
	ModeNone   Mode = "none"
	ModeHold   Mode = "hold"
	ModeToggle Mode = "toggle"
)

const (
	// minRecording discards shorter recordings without persisting.
	minRecording = 300 * time.Millisecond

	// smartTapWindow upgrades a smart hold into a toggle when released
	// within it.
	smartTapWindow = 200 * time.Millisecond
)

// Recorder is the capture seam.
type Recorder interface {
	Start() error
	Stop() (capture.Recording, error)
	Abort()
}

// Paster is the clipboard delivery seam.
type Paster interface {
	Paste(text string) error
	CopyOnly(text string) error
	ReadSelection() (string, error)
}

// Cleaner is the LLM cleanup seam. Nil Cleaner in Deps disables cleanup.
type Cleaner interface {
	Clean(ctx context.Context, transcript, modePrompt string) (cleaned, model string, err error)
	Edit(ctx context.Context, selected, instruction, modePrompt string) (edited, model string, err error)
}

// History is the transcription store seam.
type History interface {
	Save(text, audioPath string, meta store.Metadata) (*store.Record, error)
	SaveWithCleanup(raw, cleaned, audioPath string, meta store.Metadata) (*store.Record, error)
	SaveError(message, audioPath string, meta store.Metadata) (*store.Record, error)
	Replace(id string, rec store.Record) error
	GetByID(id string) *store.Record
	Delete(id string) (string, error)
}

// Deps wires the controller to its collaborators. Function fields exist
// where a full interface would be overkill; all are required unless noted.
type Deps struct {
	Settings *settings.Store
	Bus      *events.Bus
	Recorder Recorder
	Paster   Paster
	History  History

	// Persist encodes and writes the MP3 artifact.
	Persist func(ctx context.Context, samples []int16, sampleRate, channels int, startedAt, endedAt time.Time) (*record.Saved, error)

	// LocalTranscribe runs the configured local model over PCM.
	LocalTranscribe func(ctx context.Context, req stt.Request) (*stt.Result, error)

	// CloudPreflight validates cloud credentials before capture starts.
	// Nil when cloud mode is unconfigured.
	CloudPreflight func() error

	// CloudTranscribe uploads the persisted MP3.
	CloudTranscribe func(ctx context.Context, audio []byte, req cloud.Request) (*stt.Result, error)

	// Cleaner is optional; nil disables LLM cleanup and edit mode.
	Cleaner Cleaner

	// Foreground reports the focused window at stop time. Optional.
	Foreground func() modectx.Target

	// Decode reads a persisted MP3 back to PCM for retry.
	Decode func(path string) ([]int16, int, error)

	// RemoveFile unlinks an audio artifact.
	RemoveFile func(path string) error

	// Notify shows a user-facing toast outside the event bus. Optional.
	Notify func(level, message string)

	// Metrics is optional.
	Metrics *observe.Metrics

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

// Controller is the single-flight dictation state machine.
type Controller struct {
	deps Deps

	mu          sync.Mutex
	state       State
	mode        Mode
	holdKeyDown bool
	viaSmart    bool
	pressTime   time.Time
	startedAt   time.Time

	// origin is the binding that started the pending request; presses
	// from the same origin cancel it.
	origin hotkey.Binding

	// cancelPipeline aborts the in-flight pipeline goroutine.
	cancelPipeline context.CancelFunc

	// wg tracks the pipeline goroutine for Close.
	wg sync.WaitGroup
}

// New creates a Controller in Idle.
func New(deps Deps) *Controller {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Notify == nil {
		deps.Notify = func(string, string) {}
	}
	return &Controller{deps: deps, state: StateIdle, mode: ModeNone}
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close cancels any in-flight work and waits for the pipeline to drain.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.cancelPipeline != nil {
		c.cancelPipeline()
	}
	if c.state == StateListening {
		c.deps.Recorder.Abort()
		c.setStateLocked(StateIdle, ModeNone)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

// HandleEvent consumes one routed shortcut edge. Safe for concurrent use;
// never blocks on pipeline work.
func (c *Controller) HandleEvent(ev hotkey.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case StateError:
		if ev.Edge == hotkey.Pressed {
			c.setStateLocked(StateIdle, ModeNone)
			c.holdKeyDown = false
			c.handleIdleLocked(ev)
		}
	case StateIdle:
		c.handleIdleLocked(ev)
	case StateListening:
		c.handleListeningLocked(ev)
	case StateProcessing:
		c.handleProcessingLocked(ev)
	}
}

// handleIdleLocked starts capture for Pressed edges.
func (c *Controller) handleIdleLocked(ev hotkey.Event) {
	if ev.Edge != hotkey.Pressed {
		if ev.Binding == hotkey.BindingHold || ev.Binding == hotkey.BindingSmart {
			c.holdKeyDown = false
		}
		return
	}

	switch ev.Binding {
	case hotkey.BindingHold:
		if c.holdKeyDown {
			return // auto-repeat
		}
		c.startListeningLocked(ModeHold, ev.Binding, false)
	case hotkey.BindingToggle:
		c.startListeningLocked(ModeToggle, ev.Binding, false)
	case hotkey.BindingSmart:
		if c.holdKeyDown {
			return
		}
		c.startListeningLocked(ModeHold, ev.Binding, true)
	}
}

// handleListeningLocked stops, upgrades, or ignores edges during capture.
func (c *Controller) handleListeningLocked(ev hotkey.Event) {
	switch ev.Binding {
	case hotkey.BindingHold:
		if ev.Edge == hotkey.Released && c.mode == ModeHold && !c.viaSmart && c.holdKeyDown {
			c.holdKeyDown = false
			c.stopAndProcessLocked()
		}
	case hotkey.BindingToggle:
		if ev.Edge == hotkey.Pressed && c.mode == ModeToggle && !c.viaSmart {
			c.stopAndProcessLocked()
		}
	case hotkey.BindingSmart:
		if !c.viaSmart {
			return
		}
		switch {
		case ev.Edge == hotkey.Released && c.mode == ModeHold:
			if c.deps.Now().Sub(c.pressTime) < smartTapWindow {
				// Short tap upgrades the session to toggle; recording
				// continues until the next smart press.
				c.mode = ModeToggle
				c.holdKeyDown = false
				c.publishPillLocked()
			} else {
				c.holdKeyDown = false
				c.stopAndProcessLocked()
			}
		case ev.Edge == hotkey.Pressed && c.mode == ModeToggle:
			c.stopAndProcessLocked()
		}
	}
}

// handleProcessingLocked cancels the pending request on a same-origin
// press; different origins are dropped.
func (c *Controller) handleProcessingLocked(ev hotkey.Event) {
	if ev.Edge != hotkey.Pressed {
		if ev.Binding == hotkey.BindingHold || ev.Binding == hotkey.BindingSmart {
			c.holdKeyDown = false
		}
		return
	}
	if ev.Binding != c.origin {
		slog.Debug("controller: press from different origin during processing, dropped",
			"origin", c.origin, "binding", ev.Binding)
		return
	}
	slog.Info("controller: cancelling pending transcription", "origin", c.origin)
	if c.cancelPipeline != nil {
		c.cancelPipeline()
	}
	c.setStateLocked(StateIdle, ModeNone)
}

// startListeningLocked runs the capture-start guards and opens the stream.
func (c *Controller) startListeningLocked(mode Mode, origin hotkey.Binding, viaSmart bool) {
	snap := c.deps.Settings.Snapshot()

	if snap.TranscriptionMode == settings.ModeCloud && c.deps.CloudPreflight != nil {
		if err := c.deps.CloudPreflight(); err != nil {
			c.reportAuthError(err)
			return
		}
	}

	if err := c.deps.Recorder.Start(); err != nil {
		slog.Warn("controller: capture start failed", "error", err)
		c.deps.Bus.Publish(events.RecordingError, err.Error())
		c.deps.Bus.Publish(events.ToastShow, "Microphone permission needed")
		c.deps.Notify("warn", "Microphone permission needed")
		return
	}

	c.origin = origin
	c.viaSmart = viaSmart
	c.pressTime = c.deps.Now()
	c.startedAt = c.pressTime
	if mode == ModeHold {
		c.holdKeyDown = true
	}
	c.setStateLocked(StateListening, mode)
	c.deps.Bus.Publish(events.RecordingStart, map[string]any{"mode": string(mode)})
	if c.deps.Metrics != nil {
		c.deps.Metrics.ActiveRecordings.Add(context.Background(), 1)
	}
}

// stopAndProcessLocked closes the stream, applies the duration gate, and
// launches the pipeline.
func (c *Controller) stopAndProcessLocked() {
	rec, err := c.deps.Recorder.Stop()
	if c.deps.Metrics != nil {
		c.deps.Metrics.ActiveRecordings.Add(context.Background(), -1)
	}
	c.deps.Bus.Publish(events.RecordingStop, nil)

	if err != nil {
		slog.Warn("controller: capture stop failed", "error", err)
	}
	if rec.Empty() || rec.Duration() < minRecording {
		slog.Debug("controller: recording below minimum duration, discarded",
			"duration", rec.Duration())
		c.setStateLocked(StateIdle, ModeNone)
		return
	}

	snap := c.deps.Settings.Snapshot()

	ctx, cancel := context.WithCancel(context.Background())
	c.cancelPipeline = cancel
	c.setStateLocked(StateProcessing, c.mode)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer cancel()
		c.runPipeline(ctx, rec, snap)
	}()
}

// setStateLocked transitions state and publishes the pill event.
func (c *Controller) setStateLocked(state State, mode Mode) {
	c.state = state
	c.mode = mode
	if state == StateIdle {
		c.viaSmart = false
		c.origin = ""
		c.cancelPipeline = nil
	}
	c.publishPillLocked()
}

func (c *Controller) publishPillLocked() {
	c.deps.Bus.Publish(events.PillState, map[string]any{
		"state": string(c.state),
		"mode":  string(c.mode),
	})
}

// finish transitions out of Processing from the pipeline goroutine.
func (c *Controller) finish(state State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	// A cancel may have reset us to Idle already; do not resurrect.
	if c.state == StateProcessing {
		c.setStateLocked(state, ModeNone)
	}
}

// reportAuthError surfaces a preflight or server auth failure.
func (c *Controller) reportAuthError(err error) {
	slog.Warn("controller: cloud auth failure", "error", err)
	c.deps.Bus.Publish(events.CloudAuthError, err.Error())
	c.deps.Bus.Publish(events.ToastShow, authToast(err))
	c.deps.Notify("warn", authToast(err))
}

// authToast maps an auth failure to its user-facing message.
func authToast(err error) string {
	var ce *cloud.Error
	if errors.As(err, &ce) {
		switch ce.Kind {
		case cloud.KindNotSubscriber:
			return "An active subscription is required. Upgrade to continue."
		case cloud.KindJwtExpired:
			return "Session expired. Please sign in again"
		case cloud.KindNoCredentials, cloud.KindJwtInvalid:
			return "Sign in to use cloud transcription."
		case cloud.KindAuthFailed:
			return "Authentication error"
		}
	}
	return "Authentication error"
}
