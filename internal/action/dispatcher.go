package action

import (
	"log/slog"
	"sync"
)

// Player is the audio capability the dispatcher drives. Stop must be
// idempotent.
type Player interface {
	PlayOnce() error
	PlayLoop() error
	Stop() error
}

// Command is the dispatcher's last handled action, observable by UI layers.
type Command string

const (
	CommandNone    Command = "none"
	CommandPlay    Command = "play"
	CommandLoop    Command = "loop"
	CommandStop    Command = "stop"
	CommandUnknown Command = "unknown"
)

// Dispatcher turns payloads into audio operations. Audio failures and
// unrecognized codes are reported, never propagated: a malformed signal must
// not take down an otherwise healthy connection.
type Dispatcher struct {
	player Player

	mu      sync.Mutex
	current Command
	updates chan Command
}

func NewDispatcher(p Player) *Dispatcher {
	return &Dispatcher{
		player:  p,
		current: CommandNone,
		updates: make(chan Command, 8),
	}
}

// Dispatch handles one payload. Empty payloads are ignored without a report
// and without touching the published command.
func (d *Dispatcher) Dispatch(payload []byte) {
	code, ok := Decode(payload)
	if !ok {
		return
	}

	var cmd Command
	var err error
	switch code {
	case CodePlay:
		cmd, err = CommandPlay, d.player.PlayOnce()
	case CodeLoop:
		cmd, err = CommandLoop, d.player.PlayLoop()
	case CodeStop:
		cmd, err = CommandStop, d.player.Stop()
	default:
		slog.Warn("[ACTION] unrecognized action code", "code", uint8(code))
		cmd = CommandUnknown
	}

	if err != nil {
		slog.Error("[ACTION] audio operation failed", "command", cmd, "error", err)
	}
	d.publish(cmd)
}

// Current returns the last published command.
func (d *Dispatcher) Current() Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.current
}

// Updates delivers published commands. When the consumer lags the newest
// value is dropped rather than blocking dispatch.
func (d *Dispatcher) Updates() <-chan Command {
	return d.updates
}

func (d *Dispatcher) publish(cmd Command) {
	d.mu.Lock()
	d.current = cmd
	d.mu.Unlock()
	select {
	case d.updates <- cmd:
	default:
	}
}
