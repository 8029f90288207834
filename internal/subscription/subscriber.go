// Package subscription owns the notification payload stream of a connected
// device: at most one stream per device, torn down synchronously on close.
package subscription

import (
	"context"
	"log/slog"
	"sync"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
)

// Subscriber opens and tracks characteristic subscriptions. Policy for a
// second Open on a device with an active stream: the prior stream is
// implicitly closed before the new one starts, mirroring how a re-entrant
// connect replaces its predecessor.
type Subscriber struct {
	transport transport.Transport

	mu     sync.Mutex
	active map[string]*stream // keyed by device ID
}

type stream struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSubscriber(t transport.Transport) *Subscriber {
	return &Subscriber{
		transport: t,
		active:    make(map[string]*stream),
	}
}

// Open establishes the subscription and returns its payload channel. The
// channel closes when the stream is closed, the owning ctx is cancelled, or
// the transport ends the stream; after Close returns, no further payload is
// delivered.
func (s *Subscriber) Open(ctx context.Context, char transport.QualifiedCharacteristic) (<-chan []byte, error) {
	if err := char.Validate(); err != nil {
		return nil, err
	}

	// Implicit-replace policy.
	s.Close(char.DeviceID)

	sctx, cancel := context.WithCancel(ctx)
	src, err := s.transport.Subscribe(sctx, char)
	if err != nil {
		cancel()
		return nil, err
	}

	st := &stream{cancel: cancel, done: make(chan struct{})}
	s.mu.Lock()
	s.active[char.DeviceID] = st
	s.mu.Unlock()

	out := make(chan []byte)
	go func() {
		defer func() {
			cancel()
			s.mu.Lock()
			if s.active[char.DeviceID] == st {
				delete(s.active, char.DeviceID)
			}
			s.mu.Unlock()
			close(out)
			close(st.done)
		}()

		for {
			select {
			case payload, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- payload:
				case <-sctx.Done():
					return
				}
			case <-sctx.Done():
				return
			}
		}
	}()

	slog.Info("[SUB] subscription opened", "characteristic", char.String())
	return out, nil
}

// Active reports whether the device currently has a stream.
func (s *Subscriber) Active(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[deviceID]
	return ok
}

// Close tears down the device's stream. Idempotent; safe when never opened.
// It blocks until delivery has halted, so no payload arrives after it
// returns.
func (s *Subscriber) Close(deviceID string) {
	s.mu.Lock()
	st, ok := s.active[deviceID]
	if ok {
		delete(s.active, deviceID)
	}
	s.mu.Unlock()
	if !ok {
		return
	}
	st.cancel()
	<-st.done
	slog.Info("[SUB] subscription closed", "device", deviceID)
}

// CloseAll tears down every active stream.
func (s *Subscriber) CloseAll() {
	s.mu.Lock()
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	for _, id := range ids {
		s.Close(id)
	}
}
