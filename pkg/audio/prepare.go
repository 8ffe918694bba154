package audio

// ResampleLinear resamples mono float32 PCM from srcRate to dstRate using
// linear interpolation. The output length is ceil(len·dstRate/srcRate),
// clamped to at least one sample. If the rates match (or either is invalid)
// the input is returned unchanged.
func ResampleLinear(samples []float32, srcRate, dstRate int) []float32 {
	if srcRate <= 0 || dstRate <= 0 || srcRate == dstRate || len(samples) == 0 {
		return samples
	}

	n := (len(samples)*dstRate + srcRate - 1) / srcRate
	if n < 1 {
		n = 1
	}

	out := make([]float32, n)
	ratio := float64(srcRate) / float64(dstRate)
	for i := range n {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		s0 := float64(samples[idx])
		s1 := float64(samples[idx+1])
		out[i] = float32(s0*(1-frac) + s1*frac)
	}
	return out
}

// PrepareForInference converts captured PCM into the form local speech
// models consume: float32 normalised by MaxSample, resampled to 16 kHz,
// and left-padded with silence to at least one second (16 000 samples).
func PrepareForInference(samples []int16, sampleRate int) []float32 {
	f := make([]float32, len(samples))
	for i, s := range samples {
		f[i] = float32(s) / MaxSample
	}

	f = ResampleLinear(f, sampleRate, WhisperSampleRate)

	if len(f) < WhisperSampleRate {
		padded := make([]float32, WhisperSampleRate)
		copy(padded[WhisperSampleRate-len(f):], f)
		f = padded
	}
	return f
}
