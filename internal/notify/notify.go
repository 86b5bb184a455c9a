// Package notify reports finished capture jobs as desktop notifications.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/TileShot/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = notificationsService + ".Notify"

	appName = "TileShot"

	// DefaultTimeout is how long a notification stays up, in milliseconds
	DefaultTimeout int32 = 5000
)

// Urgency levels of org.freedesktop.Notifications
const (
	UrgencyLow      byte = 0
	UrgencyNormal   byte = 1
	UrgencyCritical byte = 2
)

// Notification is one message to show
type Notification struct {
	Summary string
	Body    string
	Icon    string
	Urgency byte
}

// Notifier shows notifications
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
	Close() error
}

// Nop discards notifications
type Nop struct{}

func (Nop) Notify(context.Context, Notification) error { return nil }
func (Nop) Close() error                               { return nil }

// DBusNotifier talks to the freedesktop notification daemon on the session bus
type DBusNotifier struct {
	conn *dbus.Conn
	obj  dbus.BusObject

	mu   sync.Mutex
	last uint32
}

// NewDBusNotifier connects to the session bus
func NewDBusNotifier() (*DBusNotifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &DBusNotifier{
		conn: conn,
		obj:  conn.Object(notificationsService, dbus.ObjectPath(notificationsPath)),
	}, nil
}

// New returns a D-Bus notifier when enabled and the session bus is
// reachable, and Nop otherwise
func New(enabled bool) Notifier {
	if !enabled {
		return Nop{}
	}
	n, err := NewDBusNotifier()
	if err != nil {
		logger.WithComponent("notify").Warn().Err(err).Msg("Desktop notifications unavailable")
		return Nop{}
	}
	return n
}

// notifyArgs builds the Notify call arguments. Each job replaces the previous
// job's notification.
func notifyArgs(n Notification, replaces uint32) []interface{} {
	icon := n.Icon
	if icon == "" {
		icon = "camera-photo"
	}
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(n.Urgency),
		"category": dbus.MakeVariant("transfer.complete"),
	}
	if n.Urgency == UrgencyCritical {
		hints["category"] = dbus.MakeVariant("transfer.error")
	}
	return []interface{}{
		appName,
		replaces,
		icon,
		n.Summary,
		n.Body,
		[]string{},
		hints,
		DefaultTimeout,
	}
}

// Notify shows n, replacing the previous notification from this notifier
func (d *DBusNotifier) Notify(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	call := d.obj.CallWithContext(ctx, notifyMethod, 0, notifyArgs(n, d.last)...)
	if call.Err != nil {
		return fmt.Errorf("notify: %w", call.Err)
	}
	var id uint32
	if err := call.Store(&id); err != nil {
		return fmt.Errorf("notify: %w", err)
	}
	d.last = id

	logger.WithComponent("notify").Debug().Uint32("id", id).Str("summary", n.Summary).Msg("Notification sent")
	return nil
}

// Close closes the bus connection
func (d *DBusNotifier) Close() error {
	return d.conn.Close()
}
