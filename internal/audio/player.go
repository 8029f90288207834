// Package audio renders the alarm sound through the default output device.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
)

// Player plays the alarm sample once or in a loop. Stop is idempotent and
// safe to call when nothing is playing.
type Player struct {
	ctx        *malgo.AllocatedContext
	sampleRate uint32
	samples    []float32 // one alarm cycle, mono

	mu      sync.Mutex
	device  *malgo.Device
	pos     int
	loop    bool
	playing bool
	gen     int // invalidates stale auto-stop watchers
}

// NewPlayer creates a player with a synthesized sine alarm tone.
// Call Close() when done.
func NewPlayer(sampleRate uint32, toneHz float64, toneDur time.Duration) (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}
	return &Player{
		ctx:        ctx,
		sampleRate: sampleRate,
		samples:    SynthesizeTone(sampleRate, toneHz, toneDur),
	}, nil
}

// NewPlayerFromWAV creates a player whose alarm cycle is loaded from a PCM
// WAV file instead of the synthesized tone.
func NewPlayerFromWAV(path string) (*Player, error) {
	samples, rate, err := LoadWAV(path)
	if err != nil {
		return nil, err
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}
	return &Player{
		ctx:        ctx,
		sampleRate: rate,
		samples:    samples,
	}, nil
}

// PlayOnce plays one alarm cycle, stopping automatically at the end.
// A play already in progress is restarted.
func (p *Player) PlayOnce() error {
	return p.start(false)
}

// PlayLoop plays the alarm cycle repeatedly until Stop is called.
func (p *Player) PlayLoop() error {
	return p.start(true)
}

func (p *Player) start(loop bool) error {
	p.mu.Lock()
	old := p.detachLocked()
	p.pos = 0
	p.loop = loop
	p.gen++
	gen := p.gen
	p.mu.Unlock()
	uninit(old)

	var doneOnce sync.Once
	done := make(chan struct{})
	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, _ []byte, frameCount uint32) {
			if p.render(pOutput, frameCount) {
				doneOnce.Do(func() { close(done) })
			}
		},
	}

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceCfg.Playback.Format = malgo.FormatF32
	deviceCfg.Playback.Channels = 1
	deviceCfg.SampleRate = p.sampleRate

	device, err := malgo.InitDevice(p.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		return fmt.Errorf("audio: initializing playback device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("audio: starting playback device: %w", err)
	}

	p.mu.Lock()
	p.device = device
	p.playing = true
	p.mu.Unlock()

	if !loop {
		go func() {
			<-done
			p.stopGen(gen)
		}()
	}
	return nil
}

// Stop halts playback. Calling it when already stopped is a no-op.
func (p *Player) Stop() error {
	p.mu.Lock()
	p.gen++
	d := p.detachLocked()
	p.mu.Unlock()
	uninit(d)
	return nil
}

// IsPlaying reports whether the alarm is currently audible.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Close releases all audio resources.
func (p *Player) Close() error {
	p.mu.Lock()
	p.gen++
	d := p.detachLocked()
	p.mu.Unlock()
	uninit(d)

	if p.ctx != nil {
		if err := p.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		p.ctx.Free()
		p.ctx = nil
	}
	return nil
}

// stopGen stops playback only if gen still identifies the current play,
// so a stale auto-stop never kills a newer play.
func (p *Player) stopGen(gen int) {
	p.mu.Lock()
	if p.gen != gen {
		p.mu.Unlock()
		return
	}
	d := p.detachLocked()
	p.mu.Unlock()
	uninit(d)
}

// detachLocked clears the current device (caller must hold mu). The device
// must be uninitialized outside the lock: the data callback takes mu, and
// Uninit waits for the callback to return.
func (p *Player) detachLocked() *malgo.Device {
	d := p.device
	p.device = nil
	p.playing = false
	return d
}

func uninit(d *malgo.Device) {
	if d != nil {
		d.Uninit()
	}
}

// render fills the output buffer with the next frames of the alarm cycle.
// Returns true once a non-looping play has drained its samples.
func (p *Player) render(out []byte, frameCount uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i := uint32(0); i < frameCount; i++ {
		var s float32
		if p.pos >= len(p.samples) && p.loop {
			p.pos = 0
		}
		if p.pos < len(p.samples) {
			s = p.samples[p.pos]
			p.pos++
		}
		offset := i * 4
		if int(offset)+4 > len(out) {
			break
		}
		binary.LittleEndian.PutUint32(out[offset:offset+4], math.Float32bits(s))
	}
	return !p.loop && p.pos >= len(p.samples)
}
