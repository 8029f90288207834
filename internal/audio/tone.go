package audio

import (
	"math"
	"time"
)

// fadeDuration is the linear fade applied at both ends of the tone so the
// alarm doesn't click on start and stop.
const fadeDuration = 5 * time.Millisecond

// SynthesizeTone renders one cycle of the alarm: a mono sine tone at freqHz
// lasting dur, with short linear fades at both ends.
func SynthesizeTone(sampleRate uint32, freqHz float64, dur time.Duration) []float32 {
	n := int(float64(sampleRate) * dur.Seconds())
	if n <= 0 {
		return nil
	}

	fade := int(float64(sampleRate) * fadeDuration.Seconds())
	if fade > n/2 {
		fade = n / 2
	}

	samples := make([]float32, n)
	step := 2 * math.Pi * freqHz / float64(sampleRate)
	for i := range samples {
		v := math.Sin(step * float64(i))

		switch {
		case i < fade:
			v *= float64(i) / float64(fade)
		case i >= n-fade:
			v *= float64(n-1-i) / float64(fade)
		}
		samples[i] = float32(v * 0.8)
	}
	return samples
}
