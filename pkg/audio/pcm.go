// Package audio provides the PCM sample-domain primitives shared by the
// capture, persistence, and transcription layers: sample format conversion
// to signed 16-bit, post-capture gain normalisation, mean channel downmix,
// and the 16 kHz preparation pass required by local speech models.
//
// All functions operate on interleaved samples and are free of I/O, which
// keeps them trivially testable and safe to call from the audio thread.
package audio

import (
	"math"
)

const (
	// MaxSample is the largest magnitude representable in signed 16-bit PCM.
	MaxSample = math.MaxInt16

	// WhisperSampleRate is the sample rate local speech models consume.
	WhisperSampleRate = 16000

	// gainTarget is the fraction of full scale the loudest sample is raised
	// (or lowered) to during normalisation.
	gainTarget = 0.92

	gainMin = 0.25
	gainMax = 20.0
)

// F32ToI16 converts float32 samples in [-1, 1] to signed 16-bit PCM.
// Out-of-range input is clamped before scaling.
func F32ToI16(src []float32) []int16 {
	out := make([]int16, len(src))
	for i, s := range src {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		out[i] = int16(s * MaxSample)
	}
	return out
}

// I16ToBytes serialises samples as little-endian 16-bit PCM, the layout
// ffmpeg and the HTTP transcription servers expect.
func I16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(s)
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}

// BytesToI16 parses little-endian 16-bit PCM. A trailing odd byte is dropped.
func BytesToI16(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := range n {
		out[i] = int16(uint16(data[i*2]) | uint16(data[i*2+1])<<8)
	}
	return out
}

// Peak returns the maximum absolute sample value in buf, or 0 when empty.
func Peak(buf []int16) int {
	peak := 0
	for _, s := range buf {
		v := int(s)
		if v < 0 {
			v = -v
		}
		if v > peak {
			peak = v
		}
	}
	return peak
}

// NormalizeGain scales buf in place so the loudest sample lands near 92% of
// full scale. The gain factor is clamped to [0.25, 20.0]; factors within 1%
// of unity are skipped. Scaled samples saturate at ±MaxSample. The applied
// gain is returned (1.0 when no scaling took place).
func NormalizeGain(buf []int16) float64 {
	peak := Peak(buf)
	if peak == 0 {
		return 1.0
	}

	gain := gainTarget * MaxSample / float64(peak)
	if gain < gainMin {
		gain = gainMin
	} else if gain > gainMax {
		gain = gainMax
	}
	if math.Abs(gain-1) < 0.01 {
		return 1.0
	}

	for i, s := range buf {
		scaled := float64(s) * gain
		switch {
		case scaled > MaxSample:
			buf[i] = MaxSample
		case scaled < -MaxSample:
			buf[i] = -MaxSample
		default:
			buf[i] = int16(scaled)
		}
	}
	return gain
}

// DownmixMean folds interleaved multi-channel PCM to mono by taking the
// arithmetic mean across channels per frame, truncated toward zero.
// channels values of 0 and 1 return the input unchanged. Trailing samples
// that do not form a complete frame are dropped.
func DownmixMean(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := range frames {
		sum := 0
		for ch := range channels {
			sum += int(samples[i*channels+ch])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
