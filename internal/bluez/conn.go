// Package bluez connects the pairing agent to BlueZ over the system bus.
package bluez

import (
	"context"
	"errors"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// BlueZ bus names.
const (
	Service               = "org.bluez"
	AgentInterface        = "org.bluez.Agent1"
	AgentManagerInterface = "org.bluez.AgentManager1"
	DeviceInterface       = "org.bluez.Device1"
	AgentManagerPath      = dbus.ObjectPath("/org/bluez")

	propertiesGet = "org.freedesktop.DBus.Properties.Get"
)

// ErrDisconnected is the cause recorded when the system bus connection drops.
var ErrDisconnected = errors.New("system bus connection lost")

// Caller invokes a method on a BlueZ object.
type Caller interface {
	Call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) ([]any, error)
}

// Exporter publishes Go values as bus objects. *dbus.Conn satisfies it.
type Exporter interface {
	Export(v any, path dbus.ObjectPath, iface string) error
}

// Conn is a system bus connection.
type Conn struct {
	bus *dbus.Conn
}

// ConnectSystem opens a private connection to the system bus.
func ConnectSystem() (*Conn, error) {
	bus, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("connect system bus: %w", err)
	}
	return &Conn{bus: bus}, nil
}

// Call implements Caller against the org.bluez service.
func (c *Conn) Call(ctx context.Context, path dbus.ObjectPath, method string, args ...any) ([]any, error) {
	call := c.bus.Object(Service, path).CallWithContext(ctx, method, 0, args...)
	if call.Err != nil {
		return nil, call.Err
	}
	return call.Body, nil
}

// Export implements Exporter.
func (c *Conn) Export(v any, path dbus.ObjectPath, iface string) error {
	return c.bus.Export(v, path, iface)
}

// Done is closed when the connection is closed or lost.
func (c *Conn) Done() <-chan struct{} {
	return c.bus.Context().Done()
}

// Close closes the connection.
func (c *Conn) Close() error {
	return c.bus.Close()
}
