package transport

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Simulated is a Transport that produces deterministic synthetic data with
// no hardware attached. Scan yields two canned devices after a short delay,
// Connect always succeeds after a fixed delay, and Subscribe ticks through
// the action codes 1, 2, 3 in order, repeating, until its context is
// cancelled.
type Simulated struct {
	ScanDelay    time.Duration
	ConnectDelay time.Duration
	NotifyPeriod time.Duration

	mu        sync.Mutex
	connected map[string]bool
}

// NewSimulated returns a simulated transport with the default timings:
// 200ms scan delay, 300ms connect delay, 1s notification period.
func NewSimulated() *Simulated {
	return &Simulated{
		ScanDelay:    200 * time.Millisecond,
		ConnectDelay: 300 * time.Millisecond,
		NotifyPeriod: time.Second,
		connected:    make(map[string]bool),
	}
}

func (s *Simulated) StatusSeq(ctx context.Context) <-chan RadioState {
	ch := make(chan RadioState, 1)
	ch <- RadioReady
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch
}

func (s *Simulated) Scan(ctx context.Context, serviceUUIDs []string) (<-chan DeviceHandle, error) {
	ch := make(chan DeviceHandle, 2)
	go func() {
		defer close(ch)
		select {
		case <-time.After(s.ScanDelay):
		case <-ctx.Done():
			return
		}
		for _, dev := range []DeviceHandle{
			{ID: "SIM-01", Name: "Simulated Peripheral A", RSSI: -42},
			{ID: "SIM-02", Name: "Simulated Peripheral B", RSSI: -67},
		} {
			select {
			case ch <- dev:
			case <-ctx.Done():
				return
			}
		}
		// A real scan keeps running until the caller cancels; so do we.
		<-ctx.Done()
	}()
	return ch, nil
}

// Connect emits connecting immediately and connected after ConnectDelay.
// The simulation never fails a connection, so tests stay deterministic;
// the timeout parameter is ignored here and enforced by the caller.
func (s *Simulated) Connect(ctx context.Context, deviceID string, _ time.Duration) (<-chan ConnectionEvent, error) {
	ch := make(chan ConnectionEvent, 2)
	ch <- ConnectionEvent{DeviceID: deviceID, State: StateConnecting}
	go func() {
		defer close(ch)
		select {
		case <-time.After(s.ConnectDelay):
		case <-ctx.Done():
			s.setConnected(deviceID, false)
			return
		}
		s.setConnected(deviceID, true)
		select {
		case ch <- ConnectionEvent{DeviceID: deviceID, State: StateConnected}:
		case <-ctx.Done():
			s.setConnected(deviceID, false)
			return
		}
		// Hold the link until the caller releases it.
		<-ctx.Done()
		s.setConnected(deviceID, false)
	}()
	return ch, nil
}

// Subscribe cycles the payloads [1], [2], [3] at NotifyPeriod. The ticker is
// stopped synchronously when ctx is cancelled; no timer outlives the stream.
func (s *Simulated) Subscribe(ctx context.Context, char QualifiedCharacteristic) (<-chan []byte, error) {
	if err := char.Validate(); err != nil {
		return nil, err
	}
	if !s.isConnected(char.DeviceID) {
		return nil, ErrNotConnected
	}

	ch := make(chan []byte)
	go func() {
		ticker := time.NewTicker(s.NotifyPeriod)
		defer ticker.Stop()
		defer close(ch)

		codes := []byte{1, 2, 3}
		next := 0
		for {
			select {
			case <-ticker.C:
				if !s.isConnected(char.DeviceID) {
					slog.Debug("[SIM] device gone, ending stream", "device", char.DeviceID)
					return
				}
				select {
				case ch <- []byte{codes[next]}:
					next = (next + 1) % len(codes)
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (s *Simulated) setConnected(deviceID string, up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if up {
		s.connected[deviceID] = true
	} else {
		delete(s.connected, deviceID)
	}
}

func (s *Simulated) isConnected(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected[deviceID]
}

// Compile-time check that Simulated implements Transport.
var _ Transport = (*Simulated)(nil)
