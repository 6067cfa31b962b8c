package bluez

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/iambrandonn/pairagent/internal/protocol"
)

// AgentManager calls org.bluez.AgentManager1.
type AgentManager struct {
	caller Caller
}

// NewAgentManager creates an AgentManager proxy.
func NewAgentManager(caller Caller) *AgentManager {
	return &AgentManager{caller: caller}
}

// RegisterAgent registers the agent at path with the given IO capability.
func (m *AgentManager) RegisterAgent(ctx context.Context, path, capability string) error {
	return m.call(ctx, "RegisterAgent", dbus.ObjectPath(path), capability)
}

// RequestDefaultAgent makes the agent at path the default agent.
func (m *AgentManager) RequestDefaultAgent(ctx context.Context, path string) error {
	return m.call(ctx, "RequestDefaultAgent", dbus.ObjectPath(path))
}

// UnregisterAgent drops the agent at path.
func (m *AgentManager) UnregisterAgent(ctx context.Context, path string) error {
	return m.call(ctx, "UnregisterAgent", dbus.ObjectPath(path))
}

func (m *AgentManager) call(ctx context.Context, method string, args ...any) error {
	if _, err := m.caller.Call(ctx, AgentManagerPath, AgentManagerInterface+"."+method, args...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// Devices resolves device object paths to display names.
type Devices struct {
	caller Caller
}

// NewDevices creates a device name resolver.
func NewDevices(caller Caller) *Devices {
	return &Devices{caller: caller}
}

// DeviceName returns the device alias, or its remote name when the alias
// cannot be read.
func (d *Devices) DeviceName(ctx context.Context, device protocol.DevicePath) (string, error) {
	name, err := d.property(ctx, device, "Alias")
	if err == nil && name != "" {
		return name, nil
	}
	name, nameErr := d.property(ctx, device, "Name")
	if nameErr != nil {
		if err != nil {
			return "", err
		}
		return "", nameErr
	}
	return name, nil
}

func (d *Devices) property(ctx context.Context, device protocol.DevicePath, property string) (string, error) {
	body, err := d.caller.Call(ctx, dbus.ObjectPath(device), propertiesGet, DeviceInterface, property)
	if err != nil {
		return "", fmt.Errorf("get %s of %s: %w", property, device, err)
	}
	if len(body) != 1 {
		return "", fmt.Errorf("get %s of %s: unexpected reply of %d values", property, device, len(body))
	}

	value := body[0]
	if variant, ok := value.(dbus.Variant); ok {
		value = variant.Value()
	}
	s, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("get %s of %s: got %T, want string", property, device, value)
	}
	return s, nil
}
