// Package events is the lifecycle event bus between the pipeline core and
// its observers (overlay pill, toasts, history browser). Event names are
// wire-stable: UI surfaces subscribe by string and must keep working across
// releases.
package events

import (
	"log/slog"
	"sync"
)

// Wire-stable lifecycle event names.
const (
	RecordingStart        = "recording:start"
	RecordingStop         = "recording:stop"
	RecordingComplete     = "recording:complete"
	RecordingError        = "recording:error"
	TranscriptionStart    = "transcription:start"
	TranscriptionComplete = "transcription:complete"
	TranscriptionError    = "transcription:error"
	PillState             = "pill:state"
	CloudAuthError        = "cloud:auth-error"
	DownloadProgress      = "download:progress"
	DownloadComplete      = "download:complete"
	DownloadError         = "download:error"
	ToastShow             = "toast:show"
	ToastHide             = "toast:hide"
)

// Event is a single published lifecycle event.
type Event struct {
	// Name is one of the wire-stable names above.
	Name string

	// Payload is event-specific data (a string, a map, or a typed struct).
	Payload any
}

// Bus fans published events out to all subscribers. Publishing never blocks:
// a subscriber whose buffer is full misses the event, which is acceptable
// for UI state that is re-derivable from the next event.
type Bus struct {
	mu       sync.Mutex
	subs     map[int]chan Event
	nextID   int
	warnDrop sync.Once
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber with the given channel buffer and
// returns the receive channel plus an unsubscribe function. Unsubscribing
// closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber without blocking.
func (b *Bus) Publish(name string, payload any) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs {
		select {
		case ch <- Event{Name: name, Payload: payload}:
		default:
			b.warnDrop.Do(func() {
				slog.Warn("event bus: subscriber buffer full, dropping event", "event", name)
			})
		}
	}
}
