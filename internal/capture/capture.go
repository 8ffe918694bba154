// Package capture records microphone audio through PortAudio.
//
// One Capturer owns at most one open input stream. Start opens the stream
// and accumulates interleaved i16 frames from the PortAudio callback; Stop
// tears the stream down and hands back everything buffered since Start.
// Init and Terminate bracket the PortAudio library lifetime and are called
// once from main.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/audio"
)

const framesPerBuffer = 1024

// ErrAlreadyRecording is returned by Start while a stream is open.
var ErrAlreadyRecording = errors.New("capture: already recording")

// ErrNoInputDevice is returned when no usable input device exists.
var ErrNoInputDevice = errors.New("capture: no input device available")

// Recording is the PCM captured between Start and Stop.
type Recording struct {
	// Samples is interleaved i16 PCM.
	Samples []int16

	SampleRate int
	Channels   int

	StartedAt time.Time
	EndedAt   time.Time
}

// Duration is the PCM length of the recording.
func (r Recording) Duration() time.Duration {
	if r.SampleRate <= 0 || r.Channels <= 0 {
		return 0
	}
	frames := len(r.Samples) / r.Channels
	return time.Duration(frames) * time.Second / time.Duration(r.SampleRate)
}

// Empty reports whether no samples were captured.
func (r Recording) Empty() bool { return len(r.Samples) == 0 }

// Device describes a selectable input device.
type Device struct {
	// ID is the stable identifier stored in settings; currently the
	// device name.
	ID string

	Name              string
	MaxInputChannels  int
	DefaultSampleRate float64

	// Default marks the host's default input device.
	Default bool
}

// Init initialises PortAudio. Must be called once before any capture.
func Init() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("capture: initialize portaudio: %w", err)
	}
	return nil
}

// Terminate releases PortAudio. Call once at shutdown.
func Terminate() {
	if err := portaudio.Terminate(); err != nil {
		slog.Warn("capture: terminating portaudio failed", "error", err)
	}
}

// ListDevices returns every device with input channels.
func ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("capture: list devices: %w", err)
	}
	def, _ := portaudio.DefaultInputDevice()

	var out []Device
	for _, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, Device{
			ID:                info.Name,
			Name:              info.Name,
			MaxInputChannels:  info.MaxInputChannels,
			DefaultSampleRate: info.DefaultSampleRate,
			Default:           def != nil && info.Name == def.Name,
		})
	}
	return out, nil
}

// inputStream is the subset of [portaudio.Stream] the capturer drives.
// Factored out so the teardown ordering is testable without a device.
type inputStream interface {
	Start() error
	Stop() error
	Close() error
}

// Capturer records from one input device.
type Capturer struct {
	mu       sync.Mutex
	deviceID string
	stream   inputStream

	// stopping blocks Start while a stream teardown runs outside the lock.
	stopping bool

	buf       []int16
	rate      int
	channels  int
	startedAt time.Time
}

// New creates a Capturer bound to the device with the given ID. An empty
// ID selects the host default input device.
func New(deviceID string) *Capturer {
	return &Capturer{deviceID: deviceID}
}

// SetDevice changes the device used by the next Start. No effect on a
// recording already in progress.
func (c *Capturer) SetDevice(deviceID string) {
	c.mu.Lock()
	c.deviceID = deviceID
	c.mu.Unlock()
}

// Recording reports whether a stream is currently open.
func (c *Capturer) Recording() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stream != nil
}

// Start opens the input stream and begins buffering. Fails with
// [ErrAlreadyRecording] when a stream is already open.
func (c *Capturer) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil || c.stopping {
		return ErrAlreadyRecording
	}

	dev, err := c.resolveDevice()
	if err != nil {
		return err
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = 1
	params.FramesPerBuffer = framesPerBuffer

	var stream inputStream
	stream, err = portaudio.OpenStream(params, c.callback)
	if err != nil {
		// Some hosts expose float32-only devices; convert in the callback.
		f32, ferr := portaudio.OpenStream(params, c.callbackF32)
		if ferr != nil {
			return fmt.Errorf("capture: open stream on %q: %w", dev.Name, err)
		}
		stream = f32
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("capture: start stream on %q: %w", dev.Name, err)
	}

	c.stream = stream
	c.buf = c.buf[:0]
	c.rate = int(params.SampleRate)
	c.channels = params.Input.Channels
	c.startedAt = time.Now()

	slog.Debug("capture: recording started", "device", dev.Name, "sample_rate", c.rate)
	return nil
}

// callback runs on the PortAudio audio thread.
func (c *Capturer) callback(in []int16) {
	c.mu.Lock()
	c.buf = append(c.buf, in...)
	c.mu.Unlock()
}

// callbackF32 handles devices that refuse an i16 stream. Conversion runs
// before the lock so the audio thread holds it as briefly as possible.
func (c *Capturer) callbackF32(in []float32) {
	samples := audio.F32ToI16(in)
	c.mu.Lock()
	c.buf = append(c.buf, samples...)
	c.mu.Unlock()
}

// Stop closes the stream and returns the buffered recording. Returns an
// empty Recording when no stream is open.
//
// Pa_StopStream does not return until the in-flight callback has, and the
// callback takes c.mu, so the stream must be torn down with the lock
// released.
func (c *Capturer) Stop() (Recording, error) {
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return Recording{}, nil
	}
	c.stream = nil
	c.stopping = true
	c.mu.Unlock()

	stopErr := stream.Stop()
	closeErr := stream.Close()

	c.mu.Lock()
	rec := Recording{
		Samples:    append([]int16(nil), c.buf...),
		SampleRate: c.rate,
		Channels:   c.channels,
		StartedAt:  c.startedAt,
		EndedAt:    time.Now(),
	}
	c.buf = c.buf[:0]
	c.stopping = false
	c.mu.Unlock()

	if stopErr != nil {
		return rec, fmt.Errorf("capture: stop stream: %w", stopErr)
	}
	if closeErr != nil {
		return rec, fmt.Errorf("capture: close stream: %w", closeErr)
	}
	return rec, nil
}

// Abort discards any recording in progress. Same teardown ordering as
// [Capturer.Stop]: the stream is stopped with the lock released.
func (c *Capturer) Abort() {
	c.mu.Lock()
	stream := c.stream
	if stream == nil {
		c.mu.Unlock()
		return
	}
	c.stream = nil
	c.stopping = true
	c.mu.Unlock()

	if err := stream.Stop(); err != nil {
		slog.Warn("capture: aborting stream stop failed", "error", err)
	}
	if err := stream.Close(); err != nil {
		slog.Warn("capture: aborting stream close failed", "error", err)
	}

	c.mu.Lock()
	c.buf = c.buf[:0]
	c.stopping = false
	c.mu.Unlock()
}

// resolveDevice picks the configured device by name, falling back to the
// host default. Caller holds the lock.
func (c *Capturer) resolveDevice() (*portaudio.DeviceInfo, error) {
	if c.deviceID != "" {
		infos, err := portaudio.Devices()
		if err != nil {
			return nil, fmt.Errorf("capture: list devices: %w", err)
		}
		for _, info := range infos {
			if info.MaxInputChannels > 0 && strings.EqualFold(info.Name, c.deviceID) {
				return info, nil
			}
		}
		slog.Warn("capture: configured device not found, using default", "device", c.deviceID)
	}

	dev, err := portaudio.DefaultInputDevice()
	if err != nil {
		return nil, fmt.Errorf("capture: default input device: %w: %w", ErrNoInputDevice, err)
	}
	if dev == nil || dev.MaxInputChannels <= 0 {
		return nil, ErrNoInputDevice
	}
	return dev, nil
}
