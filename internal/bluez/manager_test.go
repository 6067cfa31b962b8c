package bluez

import (
	"context"
	"errors"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	path   dbus.ObjectPath
	method string
	args   []any
}

type fakeCaller struct {
	calls   []call
	replies map[string][]any
	errs    map[string]error
}

func (f *fakeCaller) Call(_ context.Context, path dbus.ObjectPath, method string, args ...any) ([]any, error) {
	f.calls = append(f.calls, call{path: path, method: method, args: args})

	key := method
	if method == propertiesGet && len(args) == 2 {
		key = string(path) + " " + args[1].(string)
	}
	if err := f.errs[key]; err != nil {
		return nil, err
	}
	return f.replies[key], nil
}

func TestAgentManagerCalls(t *testing.T) {
	caller := &fakeCaller{}
	m := NewAgentManager(caller)
	ctx := context.Background()
	const path = "/org/bluez/agent/pairagent"

	require.NoError(t, m.RegisterAgent(ctx, path, "DisplayYesNo"))
	require.NoError(t, m.RequestDefaultAgent(ctx, path))
	require.NoError(t, m.UnregisterAgent(ctx, path))

	assert.Equal(t, []call{
		{AgentManagerPath, "org.bluez.AgentManager1.RegisterAgent", []any{dbus.ObjectPath(path), "DisplayYesNo"}},
		{AgentManagerPath, "org.bluez.AgentManager1.RequestDefaultAgent", []any{dbus.ObjectPath(path)}},
		{AgentManagerPath, "org.bluez.AgentManager1.UnregisterAgent", []any{dbus.ObjectPath(path)}},
	}, caller.calls)
}

func TestAgentManagerWrapsErrors(t *testing.T) {
	busErr := dbus.NewError("org.bluez.Error.AlreadyExists", []any{"Already Exists"})
	caller := &fakeCaller{errs: map[string]error{"org.bluez.AgentManager1.RegisterAgent": busErr}}

	err := NewAgentManager(caller).RegisterAgent(context.Background(), "/agent", "DisplayYesNo")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RegisterAgent")

	var dbusErr *dbus.Error
	require.ErrorAs(t, err, &dbusErr)
	assert.Equal(t, "org.bluez.Error.AlreadyExists", dbusErr.Name)
}

func TestDeviceNamePrefersAlias(t *testing.T) {
	caller := &fakeCaller{replies: map[string][]any{
		string(device) + " Alias": {dbus.MakeVariant("Pixel Buds")},
		string(device) + " Name":  {dbus.MakeVariant("Google Pixel Buds A")},
	}}

	name, err := NewDevices(caller).DeviceName(context.Background(), protocol.DevicePath(device))
	require.NoError(t, err)
	assert.Equal(t, "Pixel Buds", name)

	require.Len(t, caller.calls, 1)
	assert.Equal(t, device, caller.calls[0].path)
	assert.Equal(t, []any{DeviceInterface, "Alias"}, caller.calls[0].args)
}

func TestDeviceNameFallsBackToName(t *testing.T) {
	caller := &fakeCaller{
		replies: map[string][]any{string(device) + " Name": {dbus.MakeVariant("Pixel Buds")}},
		errs:    map[string]error{string(device) + " Alias": errors.New("no such property")},
	}

	name, err := NewDevices(caller).DeviceName(context.Background(), protocol.DevicePath(device))
	require.NoError(t, err)
	assert.Equal(t, "Pixel Buds", name)
}

func TestDeviceNameVanishedDevice(t *testing.T) {
	gone := dbus.NewError("org.freedesktop.DBus.Error.UnknownObject", []any{"Method \"Get\" doesn't exist"})
	caller := &fakeCaller{errs: map[string]error{
		string(device) + " Alias": gone,
		string(device) + " Name":  gone,
	}}

	_, err := NewDevices(caller).DeviceName(context.Background(), protocol.DevicePath(device))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Alias")
}

func TestDeviceNameRejectsNonString(t *testing.T) {
	caller := &fakeCaller{replies: map[string][]any{
		string(device) + " Alias": {dbus.MakeVariant(uint32(7))},
		string(device) + " Name":  {dbus.MakeVariant(uint32(7))},
	}}

	_, err := NewDevices(caller).DeviceName(context.Background(), protocol.DevicePath(device))
	require.Error(t, err)
}
