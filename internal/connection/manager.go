// Package connection drives a single device through the
// connect/connected/disconnected lifecycle on top of a transport.
package connection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
)

// Disconnect reasons surfaced in the terminal ConnectionEvent.
const (
	ReasonTimeout  = "connection timeout"
	ReasonTeardown = "local teardown"
)

// Manager owns one connection attempt per device ID. It arms the connect
// timeout itself, so a transport that never reports connected still yields
// exactly one terminal disconnected event. A fresh Connect for a device that
// is already connecting or connected cancels the prior attempt first, which
// tears down anything (subscriptions included) scoped to that attempt's
// context.
type Manager struct {
	transport transport.Transport
	timeout   time.Duration

	mu       sync.Mutex
	attempts map[string]*attempt
}

type attempt struct {
	cancel context.CancelFunc
	state  transport.ConnState
	done   chan struct{}
}

// NewManager returns a manager using timeout as the window in which a
// connect attempt must reach connected. A zero timeout expires immediately.
func NewManager(t transport.Transport, timeout time.Duration) *Manager {
	return &Manager{
		transport: t,
		timeout:   timeout,
		attempts:  make(map[string]*attempt),
	}
}

// State reports the current state of the device's attempt, StateIdle when
// there is none.
func (m *Manager) State(deviceID string) transport.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a, ok := m.attempts[deviceID]; ok {
		return a.state
	}
	return transport.StateIdle
}

// Connect starts a fresh attempt for the device and returns its ordered
// event stream. The stream closes after the terminal disconnected event.
// The attempt is additionally scoped to ctx: cancelling it tears the
// connection down.
func (m *Manager) Connect(ctx context.Context, deviceID string) (<-chan transport.ConnectionEvent, error) {
	m.mu.Lock()
	if prev, ok := m.attempts[deviceID]; ok {
		m.mu.Unlock()
		slog.Info("[CONN] replacing active attempt", "device", deviceID)
		prev.cancel()
		<-prev.done // prior subscription must be gone before the new attempt
		m.mu.Lock()
	}

	actx, cancel := context.WithCancel(ctx)
	a := &attempt{cancel: cancel, state: transport.StateConnecting, done: make(chan struct{})}
	m.attempts[deviceID] = a
	m.mu.Unlock()

	src, err := m.transport.Connect(actx, deviceID, m.timeout)
	if err != nil {
		cancel()
		m.finish(deviceID, a)
		close(a.done)
		return nil, err
	}

	out := make(chan transport.ConnectionEvent, 4)
	go m.run(actx, deviceID, a, src, out)
	return out, nil
}

// Disconnect tears down the device's attempt, if any. The attempt's stream
// receives a terminal disconnected event with ReasonTeardown. Safe to call
// when nothing is connected.
func (m *Manager) Disconnect(deviceID string) {
	m.mu.Lock()
	a, ok := m.attempts[deviceID]
	m.mu.Unlock()
	if !ok {
		return
	}
	a.cancel()
	<-a.done
}

// Close tears down every active attempt.
func (m *Manager) Close() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.attempts))
	for id := range m.attempts {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Disconnect(id)
	}
}

// run applies the state machine to the transport's events and forwards them.
// Exactly one terminal disconnected event is emitted per attempt.
func (m *Manager) run(ctx context.Context, deviceID string, a *attempt, src <-chan transport.ConnectionEvent, out chan<- transport.ConnectionEvent) {
	defer close(out)
	defer close(a.done)
	defer m.finish(deviceID, a)

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	terminal := func(reason string) {
		m.setState(a, transport.StateDisconnected)
		a.cancel()
		out <- transport.ConnectionEvent{
			DeviceID: deviceID,
			State:    transport.StateDisconnected,
			Reason:   reason,
		}
	}

	for {
		select {
		case ev, ok := <-src:
			if !ok {
				// Transport stream ended without a terminal event; the
				// attempt context was cancelled out from under us.
				terminal(ReasonTeardown)
				return
			}
			switch ev.State {
			case transport.StateConnecting:
				m.setState(a, transport.StateConnecting)
				out <- ev
			case transport.StateConnected:
				if a.currentState(m) == transport.StateConnected {
					// Connected never repeats without a disconnect between.
					continue
				}
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				m.setState(a, transport.StateConnected)
				out <- ev
			case transport.StateDisconnected:
				terminal(ev.Reason)
				return
			}
		case <-timer.C:
			if a.currentState(m) != transport.StateConnected {
				slog.Warn("[CONN] connect timed out", "device", deviceID, "timeout", m.timeout)
				terminal(ReasonTimeout)
				return
			}
		case <-ctx.Done():
			terminal(ReasonTeardown)
			return
		}
	}
}

func (m *Manager) setState(a *attempt, s transport.ConnState) {
	m.mu.Lock()
	a.state = s
	m.mu.Unlock()
}

func (a *attempt) currentState(m *Manager) transport.ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return a.state
}

// finish removes the attempt from the table unless a newer one replaced it.
func (m *Manager) finish(deviceID string, a *attempt) {
	m.mu.Lock()
	if m.attempts[deviceID] == a {
		delete(m.attempts, deviceID)
	}
	m.mu.Unlock()
}
