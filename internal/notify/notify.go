// Package notify owns the persistent background indicator shown while a
// peripheral connection is active.
package notify

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Task is the background indicator capability. Start and Stop are idempotent
// and Stop must run on every teardown path.
type Task interface {
	Start() error
	Stop() error
}

const (
	notifyService = "org.freedesktop.Notifications"
	notifyPath    = dbus.ObjectPath("/org/freedesktop/Notifications")
)

// DesktopTask posts a resident desktop notification over the session bus and
// withdraws it on Stop.
type DesktopTask struct {
	appName string
	summary string
	body    string

	mu      sync.Mutex
	conn    *dbus.Conn
	id      uint32
	running bool
}

// NewDesktopTask returns a task that shows the given notification while
// running. The session bus connection is opened lazily on first Start.
func NewDesktopTask(appName, summary, body string) *DesktopTask {
	return &DesktopTask{appName: appName, summary: summary, body: body}
}

func (t *DesktopTask) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return nil
	}

	if t.conn == nil {
		conn, err := dbus.SessionBus()
		if err != nil {
			return fmt.Errorf("notify: session bus: %w", err)
		}
		t.conn = conn
	}

	hints := map[string]dbus.Variant{
		"resident": dbus.MakeVariant(true),
		"urgency":  dbus.MakeVariant(byte(1)),
	}
	obj := t.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyService+".Notify", 0,
		t.appName, uint32(0), "", t.summary, t.body,
		[]string{}, hints, int32(0))
	if call.Err != nil {
		return fmt.Errorf("notify: post notification: %w", call.Err)
	}
	if err := call.Store(&t.id); err != nil {
		return fmt.Errorf("notify: read notification id: %w", err)
	}

	t.running = true
	slog.Info("[NOTIFY] background indicator started", "id", t.id)
	return nil
}

func (t *DesktopTask) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.running {
		return nil
	}

	obj := t.conn.Object(notifyService, notifyPath)
	call := obj.Call(notifyService+".CloseNotification", 0, t.id)
	if call.Err != nil {
		return fmt.Errorf("notify: close notification: %w", call.Err)
	}

	t.running = false
	slog.Info("[NOTIFY] background indicator stopped", "id", t.id)
	return nil
}

// Nop is a Task that does nothing, for headless and simulated runs.
type Nop struct{}

func (Nop) Start() error { return nil }
func (Nop) Stop() error  { return nil }

var (
	_ Task = (*DesktopTask)(nil)
	_ Task = Nop{}
)
