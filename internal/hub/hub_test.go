package hub

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/2025-IA-x-AI-Hackathon/Hack-NaSa/internal/transport"
)

// countingTransport wraps a Simulated transport and tracks how many
// subscription streams are live at once.
type countingTransport struct {
	*transport.Simulated
	open    atomic.Int32
	maxOpen atomic.Int32
}

func (c *countingTransport) Subscribe(ctx context.Context, char transport.QualifiedCharacteristic) (<-chan []byte, error) {
	src, err := c.Simulated.Subscribe(ctx, char)
	if err != nil {
		return nil, err
	}
	n := c.open.Add(1)
	for {
		max := c.maxOpen.Load()
		if n <= max || c.maxOpen.CompareAndSwap(max, n) {
			break
		}
	}
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer c.open.Add(-1)
		for p := range src {
			select {
			case out <- p:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

type fakePlayer struct {
	mu    sync.Mutex
	once  int
	loop  int
	stops int
}

func (f *fakePlayer) PlayOnce() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.once++
	return nil
}

func (f *fakePlayer) PlayLoop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loop++
	return nil
}

func (f *fakePlayer) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakePlayer) counts() (once, loop, stops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.once, f.loop, f.stops
}

type fakeTask struct {
	starts atomic.Int32
	stops  atomic.Int32
}

func (f *fakeTask) Start() error { f.starts.Add(1); return nil }
func (f *fakeTask) Stop() error  { f.stops.Add(1); return nil }

func fastSim() *transport.Simulated {
	sim := transport.NewSimulated()
	sim.ScanDelay = 5 * time.Millisecond
	sim.ConnectDelay = 5 * time.Millisecond
	sim.NotifyPeriod = 10 * time.Millisecond
	return sim
}

func newTestHub(t *testing.T, tr transport.Transport) (*Hub, *fakePlayer, *fakeTask, context.CancelFunc) {
	t.Helper()
	player := &fakePlayer{}
	task := &fakeTask{}
	h := New(tr, player, task, Options{
		ServiceUUID:        "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
		CharacteristicUUID: "beb5483e-36e1-4688-b7f5-ea07361b26a8",
		ConnectTimeout:     time.Second,
	})
	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	waitFor(t, func() bool { return h.Status() == transport.RadioReady }, "radio never became ready")
	return h, player, task, cancel
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestScanRefusedWhileAdapterUnknown(t *testing.T) {
	h := New(fastSim(), &fakePlayer{}, &fakeTask{}, Options{
		ServiceUUID:        "4fafc201-1fb5-459e-8fcc-c5c9c331914b",
		CharacteristicUUID: "beb5483e-36e1-4688-b7f5-ea07361b26a8",
	})

	if _, err := h.Scan(context.Background()); err != transport.ErrAdapterUnavailable {
		t.Fatalf("Scan before readiness: got %v, want ErrAdapterUnavailable", err)
	}
}

func TestConnectAndSubscribeDrivesSideEffects(t *testing.T) {
	h, player, task, cancel := newTestHub(t, fastSim())
	defer cancel()
	defer h.Close()

	dev := transport.DeviceHandle{ID: "SIM-01", Name: "sim radio"}
	if err := h.ConnectAndSubscribe(context.Background(), dev); err != nil {
		t.Fatalf("ConnectAndSubscribe: %v", err)
	}

	waitFor(t, func() bool { return h.ConnectedDeviceID() == "SIM-01" }, "never connected")
	waitFor(t, func() bool {
		once, _, _ := player.counts()
		return once > 0
	}, "no payload reached the player")

	if got := task.starts.Load(); got != 1 {
		t.Fatalf("task starts = %d, want 1", got)
	}
}

func TestConnectTwiceKeepsOneSubscription(t *testing.T) {
	ct := &countingTransport{Simulated: fastSim()}
	h, _, task, cancel := newTestHub(t, ct)
	defer cancel()
	defer h.Close()

	dev := transport.DeviceHandle{ID: "SIM-01", Name: "sim radio"}
	for i := 0; i < 2; i++ {
		if err := h.ConnectAndSubscribe(context.Background(), dev); err != nil {
			t.Fatalf("ConnectAndSubscribe #%d: %v", i+1, err)
		}
		waitFor(t, func() bool { return h.ConnectedDeviceID() == "SIM-01" }, "never connected")
	}

	if got := ct.maxOpen.Load(); got != 1 {
		t.Fatalf("max concurrent subscriptions = %d, want 1", got)
	}
	if got := task.starts.Load(); got != 2 {
		t.Fatalf("task starts = %d, want 2", got)
	}
	if got := task.stops.Load(); got != 1 {
		t.Fatalf("task stops = %d, want 1", got)
	}
}

func TestDisconnectAndTeardownReleasesEverything(t *testing.T) {
	ct := &countingTransport{Simulated: fastSim()}
	h, player, task, cancel := newTestHub(t, ct)
	defer cancel()

	dev := transport.DeviceHandle{ID: "SIM-02", Name: "sim beacon"}
	if err := h.ConnectAndSubscribe(context.Background(), dev); err != nil {
		t.Fatalf("ConnectAndSubscribe: %v", err)
	}
	waitFor(t, func() bool { return h.ConnectedDeviceID() == "SIM-02" }, "never connected")

	h.DisconnectAndTeardown()

	if got := h.ConnectedDeviceID(); got != "" {
		t.Fatalf("ConnectedDeviceID after teardown = %q, want empty", got)
	}
	if got := task.stops.Load(); got != 1 {
		t.Fatalf("task stops = %d, want 1", got)
	}
	if _, _, stops := player.counts(); stops == 0 {
		t.Fatal("alarm was not silenced on teardown")
	}
	waitFor(t, func() bool { return ct.open.Load() == 0 }, "subscription stream still open")

	// No new payloads once torn down.
	before, _, _ := player.counts()
	time.Sleep(40 * time.Millisecond)
	after, _, _ := player.counts()
	if after != before {
		t.Fatalf("player invoked after teardown: %d -> %d", before, after)
	}

	// Teardown with nothing connected is a no-op.
	h.DisconnectAndTeardown()
}

func TestDisconnectedEventSurfacedAfterSubscriptionClosed(t *testing.T) {
	ct := &countingTransport{Simulated: fastSim()}
	h, _, _, cancel := newTestHub(t, ct)
	defer cancel()

	dev := transport.DeviceHandle{ID: "SIM-01", Name: "sim radio"}
	if err := h.ConnectAndSubscribe(context.Background(), dev); err != nil {
		t.Fatalf("ConnectAndSubscribe: %v", err)
	}

	var sawDisconnected bool
	deadline := time.After(2 * time.Second)
	done := make(chan struct{})
	go func() {
		time.Sleep(30 * time.Millisecond)
		h.DisconnectAndTeardown()
		close(done)
	}()
	for !sawDisconnected {
		select {
		case ev := <-h.Events():
			if ev.State == transport.StateDisconnected {
				if h.subscriber.Active(dev.ID) {
					t.Error("disconnected surfaced while subscription still active")
				}
				sawDisconnected = true
			}
		case <-deadline:
			t.Fatal("no disconnected event observed")
		}
	}
	<-done
}

func TestStatusUpdatesDeliverReadinessChange(t *testing.T) {
	h, _, _, cancel := newTestHub(t, fastSim())
	defer cancel()

	select {
	case s := <-h.StatusUpdates():
		if s != transport.RadioReady {
			t.Fatalf("status update = %v, want ready", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no status update observed")
	}
}

func TestAlarmControls(t *testing.T) {
	h, player, _, cancel := newTestHub(t, fastSim())
	defer cancel()

	if err := h.PlayAlarmSound(); err != nil {
		t.Fatalf("PlayAlarmSound: %v", err)
	}
	if err := h.PlayAlarmSoundLoop(); err != nil {
		t.Fatalf("PlayAlarmSoundLoop: %v", err)
	}
	if err := h.StopAlarmSound(); err != nil {
		t.Fatalf("StopAlarmSound: %v", err)
	}
	once, loop, stops := player.counts()
	if once != 1 || loop != 1 || stops != 1 {
		t.Fatalf("player counts = (%d, %d, %d), want (1, 1, 1)", once, loop, stops)
	}
}
