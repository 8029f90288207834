// Package hub exposes the device-facing capability surface consumed by UI
// collaborators: adapter readiness, scan, connect-and-subscribe, alarm
// playback, and teardown. It owns the side effects of a connection: the
// background indicator starts when a device connects, the characteristic
// subscription feeds the action dispatcher, and both are released on every
// teardown path.
package hub

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/action"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/connection"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/notify"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/subscription"
	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
)

// Options configures the hub's peripheral endpoint.
type Options struct {
	ServiceUUID        string
	CharacteristicUUID string
	ConnectTimeout     time.Duration
}

// Hub wires the transport, connection manager, subscriber and dispatcher
// together behind the surface the UI layer consumes.
type Hub struct {
	transport  transport.Transport
	manager    *connection.Manager
	subscriber *subscription.Subscriber
	dispatcher *action.Dispatcher
	player     action.Player
	task       notify.Task
	opts       Options

	mu            sync.Mutex
	status        transport.RadioState
	connectedID   string
	currentDevice string
	cancelConn    context.CancelFunc
	watchDone     chan struct{}

	events       chan transport.ConnectionEvent
	statusEvents chan transport.RadioState
}

// New builds a hub over the given transport and capabilities.
func New(t transport.Transport, player action.Player, task notify.Task, opts Options) *Hub {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	return &Hub{
		transport:    t,
		manager:      connection.NewManager(t, opts.ConnectTimeout),
		subscriber:   subscription.NewSubscriber(t),
		dispatcher:   action.NewDispatcher(player),
		player:       player,
		task:         task,
		opts:         opts,
		status:       transport.RadioUnknown,
		events:       make(chan transport.ConnectionEvent, 16),
		statusEvents: make(chan transport.RadioState, 4),
	}
}

// Start begins tracking adapter readiness. It returns immediately; the hub
// runs until ctx is cancelled.
func (h *Hub) Start(ctx context.Context) {
	go func() {
		for s := range h.transport.StatusSeq(ctx) {
			h.mu.Lock()
			changed := h.status != s
			h.status = s
			h.mu.Unlock()
			if changed {
				slog.Info("[HUB] radio status", "status", s.String())
				select {
				case h.statusEvents <- s:
				default:
				}
			}
		}
	}()
}

// Status returns the adapter's current readiness.
func (h *Hub) Status() transport.RadioState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// StatusUpdates streams adapter readiness changes. Only changes are
// delivered; the current value is available from Status.
func (h *Hub) StatusUpdates() <-chan transport.RadioState {
	return h.statusEvents
}

// ConnectedDeviceID returns the connected device's ID, or "" when no device
// is connected. The empty value is the visible "nothing connected" state.
func (h *Hub) ConnectedDeviceID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.connectedID
}

// CurrentCommand returns the dispatcher's last published command.
func (h *Hub) CurrentCommand() action.Command {
	return h.dispatcher.Current()
}

// CommandUpdates streams dispatched commands for UI consumers.
func (h *Hub) CommandUpdates() <-chan action.Command {
	return h.dispatcher.Updates()
}

// Events streams connection state transitions for UI consumers. When the
// consumer lags, the newest event is dropped rather than blocking the
// pipeline.
func (h *Hub) Events() <-chan transport.ConnectionEvent {
	return h.events
}

// Scan streams discovered peripherals advertising the configured service.
// Refused while the adapter is not ready.
func (h *Hub) Scan(ctx context.Context) (<-chan transport.DeviceHandle, error) {
	if h.Status() != transport.RadioReady {
		return nil, transport.ErrAdapterUnavailable
	}
	return h.transport.Scan(ctx, []string{h.opts.ServiceUUID})
}

// PlayAlarmSound plays the alarm once.
func (h *Hub) PlayAlarmSound() error { return h.player.PlayOnce() }

// PlayAlarmSoundLoop plays the alarm until stopped.
func (h *Hub) PlayAlarmSoundLoop() error { return h.player.PlayLoop() }

// StopAlarmSound stops the alarm. Idempotent.
func (h *Hub) StopAlarmSound() error { return h.player.Stop() }

// ConnectAndSubscribe connects to the device and, once connected, starts the
// background indicator and opens the characteristic subscription. Any prior
// connection is torn down first, so at most one subscription is ever active.
func (h *Hub) ConnectAndSubscribe(ctx context.Context, dev transport.DeviceHandle) error {
	if h.Status() != transport.RadioReady {
		return transport.ErrAdapterUnavailable
	}

	h.DisconnectAndTeardown()

	cctx, cancel := context.WithCancel(ctx)
	events, err := h.manager.Connect(cctx, dev.ID)
	if err != nil {
		cancel()
		return err
	}

	done := make(chan struct{})
	h.mu.Lock()
	h.currentDevice = dev.ID
	h.cancelConn = cancel
	h.watchDone = done
	h.mu.Unlock()

	slog.Info("[HUB] connecting", "device", dev.ID, "name", dev.Name)
	go h.watch(cctx, dev.ID, events, done)
	return nil
}

// DisconnectAndTeardown releases the current connection, closing the
// subscription, stopping the background indicator and silencing the alarm.
// Safe to call when nothing is connected.
func (h *Hub) DisconnectAndTeardown() {
	h.mu.Lock()
	dev := h.currentDevice
	cancel := h.cancelConn
	done := h.watchDone
	h.currentDevice = ""
	h.cancelConn = nil
	h.watchDone = nil
	h.mu.Unlock()

	if dev == "" {
		return
	}

	h.manager.Disconnect(dev)
	cancel()
	<-done
	if err := h.player.Stop(); err != nil {
		slog.Warn("[HUB] stopping alarm on teardown", "error", err)
	}
	slog.Info("[HUB] teardown complete", "device", dev)
}

// Close tears everything down.
func (h *Hub) Close() {
	h.DisconnectAndTeardown()
}

// watch consumes one attempt's connection events and drives the connected
// side effects.
func (h *Hub) watch(ctx context.Context, deviceID string, events <-chan transport.ConnectionEvent, done chan struct{}) {
	defer close(done)

	for ev := range events {
		switch ev.State {
		case transport.StateConnected:
			h.mu.Lock()
			h.connectedID = deviceID
			h.mu.Unlock()
			h.onConnected(ctx, deviceID)
		case transport.StateDisconnected:
			// The subscription must be gone before the transition is
			// surfaced. Close blocks until delivery has halted.
			h.subscriber.Close(deviceID)
			if err := h.task.Stop(); err != nil {
				slog.Warn("[HUB] stopping background task", "error", err)
			}
			h.mu.Lock()
			if h.connectedID == deviceID {
				h.connectedID = ""
			}
			h.mu.Unlock()
			slog.Info("[HUB] disconnected", "device", deviceID, "reason", ev.Reason)
		}
		h.publish(ev)
	}
}

func (h *Hub) onConnected(ctx context.Context, deviceID string) {
	if err := h.task.Start(); err != nil {
		slog.Warn("[HUB] starting background task", "error", err)
	}

	char := transport.QualifiedCharacteristic{
		ServiceUUID:        h.opts.ServiceUUID,
		CharacteristicUUID: h.opts.CharacteristicUUID,
		DeviceID:           deviceID,
	}
	payloads, err := h.subscriber.Open(ctx, char)
	if err != nil {
		slog.Error("[HUB] opening subscription", "characteristic", char.String(), "error", err)
		go h.manager.Disconnect(deviceID)
		return
	}

	slog.Info("[HUB] connected and subscribed", "device", deviceID)
	go func() {
		for payload := range payloads {
			h.dispatcher.Dispatch(payload)
		}
	}()
}

func (h *Hub) publish(ev transport.ConnectionEvent) {
	select {
	case h.events <- ev:
	default:
	}
}
