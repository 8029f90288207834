package audio

import (
	"testing"
	"time"
)

func TestSynthesizeToneLength(t *testing.T) {
	samples := SynthesizeTone(44100, 880, 400*time.Millisecond)

	want := int(44100 * 0.4)
	if len(samples) != want {
		t.Errorf("len(samples) = %d, want %d", len(samples), want)
	}
}

func TestSynthesizeToneAmplitudeBounds(t *testing.T) {
	samples := SynthesizeTone(44100, 880, 100*time.Millisecond)

	for i, s := range samples {
		if s < -1.0 || s > 1.0 {
			t.Fatalf("sample %d = %f, out of [-1, 1]", i, s)
		}
	}
}

func TestSynthesizeToneFadesToSilence(t *testing.T) {
	samples := SynthesizeTone(44100, 880, 100*time.Millisecond)

	if samples[0] != 0 {
		t.Errorf("first sample = %f, want 0 (fade-in)", samples[0])
	}
	last := samples[len(samples)-1]
	if last > 0.01 || last < -0.01 {
		t.Errorf("last sample = %f, want near 0 (fade-out)", last)
	}
}

func TestSynthesizeToneZeroDuration(t *testing.T) {
	if samples := SynthesizeTone(44100, 880, 0); samples != nil {
		t.Errorf("zero duration produced %d samples, want none", len(samples))
	}
}

func TestSynthesizeToneHasSignal(t *testing.T) {
	samples := SynthesizeTone(44100, 880, 100*time.Millisecond)

	var peak float32
	for _, s := range samples {
		if s > peak {
			peak = s
		}
	}
	if peak < 0.5 {
		t.Errorf("peak amplitude = %f, want an audible tone", peak)
	}
}
