package audio

import (
	"os"
	"path/filepath"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// writeTestWAV writes a small 16-bit PCM file and returns its path.
func writeTestWAV(t *testing.T, channels int, data []int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "alarm.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("creating wav: %v", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 8000, 16, channels, 1)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: channels, SampleRate: 8000},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("writing wav: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("closing wav: %v", err)
	}
	return path
}

func TestLoadWAVMono(t *testing.T) {
	path := writeTestWAV(t, 1, []int{0, 16384, -16384, 32767})

	samples, rate, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV() error = %v", err)
	}
	if rate != 8000 {
		t.Errorf("rate = %d, want 8000", rate)
	}
	if len(samples) != 4 {
		t.Fatalf("len(samples) = %d, want 4", len(samples))
	}
	if samples[0] != 0 {
		t.Errorf("samples[0] = %f, want 0", samples[0])
	}
	if samples[1] < 0.49 || samples[1] > 0.51 {
		t.Errorf("samples[1] = %f, want ~0.5", samples[1])
	}
	if samples[2] > -0.49 || samples[2] < -0.51 {
		t.Errorf("samples[2] = %f, want ~-0.5", samples[2])
	}
}

func TestLoadWAVStereoAveragesChannels(t *testing.T) {
	// Interleaved L/R frames: (16384, -16384) averages to 0.
	path := writeTestWAV(t, 2, []int{16384, -16384, 16384, 16384})

	samples, _, err := LoadWAV(path)
	if err != nil {
		t.Fatalf("LoadWAV() error = %v", err)
	}
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2 (stereo folded to mono)", len(samples))
	}
	if samples[0] < -0.01 || samples[0] > 0.01 {
		t.Errorf("samples[0] = %f, want ~0 (L and R cancel)", samples[0])
	}
	if samples[1] < 0.49 || samples[1] > 0.51 {
		t.Errorf("samples[1] = %f, want ~0.5", samples[1])
	}
}

func TestLoadWAVMissingFile(t *testing.T) {
	if _, _, err := LoadWAV(filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Error("LoadWAV() on missing file should fail")
	}
}
