package capture

import (
	"testing"
	"time"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/audio"
)

// flushingStream stops the way PortAudio does: Stop returns only after a
// final callback, running on another goroutine, has completed.
type flushingStream struct {
	flush func()
}

func (s *flushingStream) Start() error { return nil }

func (s *flushingStream) Stop() error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.flush()
	}()
	<-done
	return nil
}

func (s *flushingStream) Close() error { return nil }

func TestStopFlushesFinalCallbackWithoutBlocking(t *testing.T) {
	t.Parallel()

	c := New("")
	c.stream = &flushingStream{flush: func() { c.callback([]int16{7, 8, 9}) }}
	c.buf = []int16{1, 2, 3}
	c.rate = 16000
	c.channels = 1
	c.startedAt = time.Now()

	type result struct {
		rec Recording
		err error
	}
	done := make(chan result, 1)
	go func() {
		rec, err := c.Stop()
		done <- result{rec, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			t.Fatalf("Stop: %v", res.err)
		}
		want := []int16{1, 2, 3, 7, 8, 9}
		if len(res.rec.Samples) != len(want) {
			t.Fatalf("samples = %v, want %v", res.rec.Samples, want)
		}
		for i := range want {
			if res.rec.Samples[i] != want[i] {
				t.Errorf("sample %d = %d, want %d", i, res.rec.Samples[i], want[i])
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked against the stream's final callback")
	}

	if c.Recording() {
		t.Error("capturer still reports recording after Stop")
	}
}

func TestAbortFlushesFinalCallbackWithoutBlocking(t *testing.T) {
	t.Parallel()

	c := New("")
	c.stream = &flushingStream{flush: func() { c.callback([]int16{4, 5}) }}
	c.buf = []int16{1, 2, 3}

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.Abort()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Abort deadlocked against the stream's final callback")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) != 0 {
		t.Errorf("buffer not discarded: %v", c.buf)
	}
	if c.stream != nil || c.stopping {
		t.Error("capturer did not settle after Abort")
	}
}

func TestStartBlockedDuringTeardown(t *testing.T) {
	t.Parallel()

	c := New("")
	c.stopping = true
	if err := c.Start(); err != ErrAlreadyRecording {
		t.Errorf("Start during teardown = %v, want ErrAlreadyRecording", err)
	}
}

func TestFloatCallbackConvertsToI16(t *testing.T) {
	t.Parallel()

	c := New("")
	c.callbackF32([]float32{0, 1, -1, 0.5})

	want := []int16{0, audio.MaxSample, -audio.MaxSample, audio.MaxSample / 2}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.buf) != len(want) {
		t.Fatalf("buf = %v, want %v", c.buf, want)
	}
	for i := range want {
		if c.buf[i] != want[i] {
			t.Errorf("sample %d = %d, want %d", i, c.buf[i], want[i])
		}
	}
}
