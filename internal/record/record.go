// Package record persists finished recordings as MP3 files and decodes
// them back to PCM for the retry path.
//
// Encoding shells out to ffmpeg with libmp3lame at a fixed CBR 192 kbps;
// raw PCM is streamed over stdin so no intermediate WAV file is written.
// Decoding uses a pure-Go MP3 decoder and needs no external binary.
package record

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/LegendarySpy/Glimpse-sub000/pkg/audio"
)

// ErrEmptyBuffer is returned when a save is attempted with no samples.
var ErrEmptyBuffer = errors.New("record: empty sample buffer")

// bitrate is the fixed MP3 encoding bitrate.
const bitrate = "192k"

// Saved describes a recording artifact on disk.
type Saved struct {
	// Path is the absolute path of the MP3 file.
	Path string

	StartedAt time.Time
	EndedAt   time.Time

	// DurationSeconds is the PCM duration, independent of wall-clock
	// start and end times.
	DurationSeconds float64
}

// Persister writes recordings under BaseDir as
// <BaseDir>/YYYY-MM-DD/HHMMSS.mp3.
type Persister struct {
	// BaseDir is the recordings root directory.
	BaseDir string

	// FFmpegPath overrides the encoder binary; empty means "ffmpeg" from
	// PATH.
	FFmpegPath string
}

// Save encodes samples to MP3 and writes the artifact. Channel handling:
// zero is treated as mono, mono and stereo pass through, anything wider is
// downmixed to mono by per-frame arithmetic mean.
func (p *Persister) Save(ctx context.Context, samples []int16, sampleRate, channels int, startedAt, endedAt time.Time) (*Saved, error) {
	if len(samples) == 0 {
		return nil, ErrEmptyBuffer
	}
	if sampleRate <= 0 {
		return nil, fmt.Errorf("record: invalid sample rate %d", sampleRate)
	}

	switch {
	case channels <= 0:
		channels = 1
	case channels > 2:
		samples = audio.DownmixMean(samples, channels)
		channels = 1
	}

	dir := filepath.Join(p.BaseDir, startedAt.Format("2006-01-02"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("record: create directory %q: %w", dir, err)
	}
	path := filepath.Join(dir, startedAt.Format("150405")+".mp3")

	if err := p.encode(ctx, path, samples, sampleRate, channels); err != nil {
		os.Remove(path)
		return nil, err
	}

	return &Saved{
		Path:            path,
		StartedAt:       startedAt,
		EndedAt:         endedAt,
		DurationSeconds: float64(len(samples)/channels) / float64(sampleRate),
	}, nil
}

// encode runs ffmpeg with PCM on stdin and the MP3 path as output.
func (p *Persister) encode(ctx context.Context, path string, samples []int16, sampleRate, channels int) error {
	bin := p.FFmpegPath
	if bin == "" {
		bin = "ffmpeg"
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", strconv.Itoa(channels),
		"-i", "pipe:0",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-compression_level", "2",
		"-y", path,
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdin = bytes.NewReader(audio.I16ToBytes(samples))
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := bytes.TrimSpace(stderr.Bytes()); len(msg) > 0 {
			return fmt.Errorf("record: ffmpeg: %s: %w", msg, err)
		}
		return fmt.Errorf("record: ffmpeg: %w", err)
	}
	return nil
}

// Decode reads an MP3 back to mono i16 PCM and reports its native sample
// rate. The decoder always emits stereo frames, which are downmixed by
// mean.
func Decode(path string) ([]int16, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("record: open %q: %w", path, err)
	}
	defer f.Close()

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, 0, fmt.Errorf("record: decode %q: %w", path, err)
	}

	raw, err := readAll(dec)
	if err != nil {
		return nil, 0, fmt.Errorf("record: read %q: %w", path, err)
	}

	stereo := audio.BytesToI16(raw)
	if len(stereo) == 0 {
		return nil, 0, fmt.Errorf("record: %q decoded to no samples", path)
	}

	return audio.DownmixMean(stereo, 2), dec.SampleRate(), nil
}

// readAll drains the decoder in page-sized chunks.
func readAll(dec *mp3.Decoder) ([]byte, error) {
	var out bytes.Buffer
	buf := make([]byte, 32*1024)
	for {
		n, err := dec.Read(buf)
		out.Write(buf[:n])
		if errors.Is(err, io.EOF) {
			return out.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}
