// Package live implements transport.Transport on top of tinygo.org/x/bluetooth.
// Each operation delegates one-to-one to the platform BLE stack; all pipeline
// logic (timeouts, retries, subscription ownership) lives above this layer.
package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
)

// Transport wraps the default BLE adapter.
type Transport struct {
	adapter *bluetooth.Adapter

	mu       sync.Mutex
	state    transport.RadioState
	watchers map[chan transport.RadioState]struct{}
	links    map[string]*link // keyed by device address, one per connected device
}

// New returns a live transport over the platform's default adapter.
// Call Enable before any other operation.
func New() *Transport {
	return &Transport{
		adapter:  bluetooth.DefaultAdapter,
		state:    transport.RadioUnknown,
		watchers: make(map[chan transport.RadioState]struct{}),
		links:    make(map[string]*link),
	}
}

// Enable powers on the adapter and registers the adapter-level disconnect
// handler. The resulting readiness is published on StatusSeq streams.
func (t *Transport) Enable() error {
	if err := t.adapter.Enable(); err != nil {
		t.setState(transport.RadioPoweredOff)
		return fmt.Errorf("live: enable adapter: %w", err)
	}

	// The stack fires this with connected=false when a peripheral drops.
	t.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		if connected {
			return
		}
		id := device.Address.String()
		t.mu.Lock()
		l, ok := t.links[id]
		delete(t.links, id)
		t.mu.Unlock()
		if ok {
			slog.Warn("[BLE] link lost", "device", id)
			l.terminate(transport.ConnectionEvent{
				DeviceID: id,
				State:    transport.StateDisconnected,
				Reason:   "link lost",
			})
		}
	})

	t.setState(transport.RadioReady)
	return nil
}

func (t *Transport) StatusSeq(ctx context.Context) <-chan transport.RadioState {
	ch := make(chan transport.RadioState, 4)
	t.mu.Lock()
	ch <- t.state
	t.watchers[ch] = struct{}{}
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		t.mu.Lock()
		delete(t.watchers, ch)
		t.mu.Unlock()
		close(ch)
	}()
	return ch
}

func (t *Transport) setState(s transport.RadioState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = s
	for ch := range t.watchers {
		select {
		case ch <- s:
		default:
		}
	}
}

func (t *Transport) Scan(ctx context.Context, serviceUUIDs []string) (<-chan transport.DeviceHandle, error) {
	if t.currentState() != transport.RadioReady {
		return nil, transport.ErrAdapterUnavailable
	}

	filters := make([]bluetooth.UUID, 0, len(serviceUUIDs))
	for _, s := range serviceUUIDs {
		uuid, err := bluetooth.ParseUUID(s)
		if err != nil {
			return nil, fmt.Errorf("live: parse service UUID %q: %w", s, err)
		}
		filters = append(filters, uuid)
	}

	ch := make(chan transport.DeviceHandle, 8)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			if err := t.adapter.StopScan(); err != nil {
				slog.Warn("[BLE] stop scan", "error", err)
			}
		case <-done:
		}
	}()

	go func() {
		defer close(ch)
		err := t.adapter.Scan(func(_ *bluetooth.Adapter, result bluetooth.ScanResult) {
			if !matchesAny(result, filters) {
				return
			}
			dev := transport.DeviceHandle{
				ID:   result.Address.String(),
				Name: result.LocalName(),
				RSSI: int(result.RSSI),
			}
			select {
			case ch <- dev:
			default:
				// A slow consumer loses scan results, never blocks the stack.
			}
		})
		close(done)
		if err != nil && ctx.Err() == nil {
			slog.Error("[BLE] scan failed", "error", err)
		}
	}()
	return ch, nil
}

func matchesAny(result bluetooth.ScanResult, filters []bluetooth.UUID) bool {
	if len(filters) == 0 {
		return true
	}
	for _, uuid := range filters {
		if result.HasServiceUUID(uuid) {
			return true
		}
	}
	return false
}

func (t *Transport) Connect(ctx context.Context, deviceID string, timeout time.Duration) (<-chan transport.ConnectionEvent, error) {
	if t.currentState() != transport.RadioReady {
		return nil, transport.ErrAdapterUnavailable
	}

	l := &link{events: make(chan transport.ConnectionEvent, 4)}
	l.events <- transport.ConnectionEvent{DeviceID: deviceID, State: transport.StateConnecting}

	go func() {
		var addr bluetooth.Address
		addr.Set(deviceID)

		params := bluetooth.ConnectionParams{}
		if timeout > 0 {
			params.ConnectionTimeout = bluetooth.NewDuration(timeout)
		}

		// The stack's Connect blocks with its own timeout; run it aside so
		// ctx cancellation returns promptly.
		type connectResult struct {
			device bluetooth.Device
			err    error
		}
		res := make(chan connectResult, 1)
		go func() {
			device, err := t.adapter.Connect(addr, params)
			res <- connectResult{device, err}
		}()

		select {
		case <-ctx.Done():
			// Release the link if the in-flight connect still lands.
			go func() {
				if r := <-res; r.err == nil {
					r.device.Disconnect()
				}
			}()
			l.terminate(transport.ConnectionEvent{})
			return
		case r := <-res:
			if r.err != nil {
				l.terminate(transport.ConnectionEvent{
					DeviceID: deviceID,
					State:    transport.StateDisconnected,
					Reason:   r.err.Error(),
				})
				return
			}

			l.device = r.device
			t.mu.Lock()
			t.links[deviceID] = l
			t.mu.Unlock()

			l.deliver(transport.ConnectionEvent{DeviceID: deviceID, State: transport.StateConnected})
			slog.Info("[BLE] connected", "device", deviceID)

			<-ctx.Done()
			t.mu.Lock()
			_, stillUp := t.links[deviceID]
			delete(t.links, deviceID)
			t.mu.Unlock()
			if stillUp {
				r.device.Disconnect()
			}
			l.terminate(transport.ConnectionEvent{})
		}
	}()
	return l.events, nil
}

func (t *Transport) Subscribe(ctx context.Context, char transport.QualifiedCharacteristic) (<-chan []byte, error) {
	if err := char.Validate(); err != nil {
		return nil, err
	}

	t.mu.Lock()
	l, ok := t.links[char.DeviceID]
	t.mu.Unlock()
	if !ok {
		return nil, transport.ErrNotConnected
	}

	svcUUID, err := bluetooth.ParseUUID(char.ServiceUUID)
	if err != nil {
		return nil, fmt.Errorf("live: parse service UUID: %w", err)
	}
	charUUID, err := bluetooth.ParseUUID(char.CharacteristicUUID)
	if err != nil {
		return nil, fmt.Errorf("live: parse characteristic UUID: %w", err)
	}

	svcs, err := l.device.DiscoverServices([]bluetooth.UUID{svcUUID})
	if err != nil {
		return nil, fmt.Errorf("live: discover services: %w", err)
	}
	if len(svcs) == 0 {
		return nil, fmt.Errorf("live: service %s not found", char.ServiceUUID)
	}
	chars, err := svcs[0].DiscoverCharacteristics([]bluetooth.UUID{charUUID})
	if err != nil {
		return nil, fmt.Errorf("live: discover characteristics: %w", err)
	}
	if len(chars) == 0 {
		return nil, fmt.Errorf("live: characteristic %s not found", char.CharacteristicUUID)
	}

	sub := &notifyStream{ch: make(chan []byte, 16)}
	if err := chars[0].EnableNotifications(sub.push); err != nil {
		return nil, fmt.Errorf("live: enable notifications: %w", err)
	}

	go func() {
		<-ctx.Done()
		if err := chars[0].EnableNotifications(nil); err != nil {
			slog.Warn("[BLE] disable notifications", "error", err)
		}
		sub.close()
	}()
	return sub.ch, nil
}

func (t *Transport) currentState() transport.RadioState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// link is one device connection and the event stream of its attempt.
type link struct {
	device bluetooth.Device
	events chan transport.ConnectionEvent
	once   sync.Once
}

func (l *link) deliver(ev transport.ConnectionEvent) {
	select {
	case l.events <- ev:
	default:
	}
}

// terminate delivers a final event (when it names a device) and closes the
// stream exactly once.
func (l *link) terminate(ev transport.ConnectionEvent) {
	l.once.Do(func() {
		if ev.DeviceID != "" {
			l.deliver(ev)
		}
		close(l.events)
	})
}

// notifyStream bridges the stack's notification callback onto a channel.
type notifyStream struct {
	mu     sync.Mutex
	ch     chan []byte
	closed bool
}

func (s *notifyStream) push(buf []byte) {
	data := make([]byte, len(buf))
	copy(data, buf)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	select {
	case s.ch <- data:
	default:
		slog.Warn("[BLE] notification dropped, consumer lagging")
	}
}

func (s *notifyStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

// Compile-time check that Transport implements the capability interface.
var _ transport.Transport = (*Transport)(nil)
