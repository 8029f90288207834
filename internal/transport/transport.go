// Package transport abstracts the BLE stack behind a small capability
// interface so the connection and subscription pipeline behaves identically
// whether it is driven by real hardware or by the deterministic simulation.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RadioState is the adapter's readiness. There is one current value per
// process; updates overwrite it, no history is kept.
type RadioState int

const (
	RadioUnknown RadioState = iota
	RadioReady
	RadioUnsupported
	RadioPoweredOff
	RadioUnauthorized
)

func (s RadioState) String() string {
	switch s {
	case RadioReady:
		return "ready"
	case RadioUnsupported:
		return "unsupported"
	case RadioPoweredOff:
		return "powered_off"
	case RadioUnauthorized:
		return "unauthorized"
	default:
		return "unknown"
	}
}

// ConnState is one stage of a connection attempt.
type ConnState int

const (
	StateIdle ConnState = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "idle"
	}
}

// DeviceHandle is one discovered peripheral. Identity is ID; Name and RSSI
// are advisory and may change between scan results.
type DeviceHandle struct {
	ID   string
	Name string
	RSSI int
}

// ConnectionEvent is one state transition of a connection attempt. Events
// for a given device are ordered connecting, connected, disconnected
// (connected may be skipped on failure), and disconnected is terminal.
// Reason is set on failure-driven disconnects.
type ConnectionEvent struct {
	DeviceID string
	State    ConnState
	Reason   string
}

// QualifiedCharacteristic names exactly one subscribable endpoint on exactly
// one connected device.
type QualifiedCharacteristic struct {
	ServiceUUID        string
	CharacteristicUUID string
	DeviceID           string
}

// Validate rejects a characteristic with any empty field.
func (q QualifiedCharacteristic) Validate() error {
	if q.ServiceUUID == "" {
		return errors.New("transport: empty service UUID")
	}
	if q.CharacteristicUUID == "" {
		return errors.New("transport: empty characteristic UUID")
	}
	if q.DeviceID == "" {
		return errors.New("transport: empty device id")
	}
	return nil
}

func (q QualifiedCharacteristic) String() string {
	return fmt.Sprintf("%s/%s@%s", q.ServiceUUID, q.CharacteristicUUID, q.DeviceID)
}

var (
	// ErrNotConnected is returned by Subscribe when the named device has no
	// active connection. Subscribing must fail fast, never hang.
	ErrNotConnected = errors.New("transport: device not connected")

	// ErrAdapterUnavailable is returned when the radio is off, unsupported
	// or unauthorized and an operation requiring it is attempted.
	ErrAdapterUnavailable = errors.New("transport: adapter unavailable")
)

// Transport is the boundary between the connection pipeline and the radio
// stack. Every sequence is a receive-only channel consumed by exactly one
// subscriber; cancelling the supplied context stops the underlying hardware
// operation and closes the channel.
type Transport interface {
	// StatusSeq streams adapter readiness updates. The first value observed
	// is the current state, not necessarily RadioReady. The channel never
	// closes until ctx is cancelled.
	StatusSeq(ctx context.Context) <-chan RadioState

	// Scan streams devices advertising any of the given service UUIDs until
	// ctx is cancelled. The same device ID may repeat with updated RSSI.
	Scan(ctx context.Context, serviceUUIDs []string) (<-chan DeviceHandle, error)

	// Connect drives one connection attempt for the device. The channel
	// delivers ordered ConnectionEvents and is closed after a terminal
	// disconnected event or when ctx is cancelled, whichever comes first.
	// timeout bounds the wait for a connected event where the backend
	// supports it; callers that need a hard guarantee arm their own timer.
	Connect(ctx context.Context, deviceID string, timeout time.Duration) (<-chan ConnectionEvent, error)

	// Subscribe opens notifications on the characteristic and streams raw
	// payloads in FIFO order. Returns ErrNotConnected immediately if the
	// named device is not connected through this transport.
	Subscribe(ctx context.Context, char QualifiedCharacteristic) (<-chan []byte, error)
}
