package bluez

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
)

// Error names returned to BlueZ.
const (
	ErrorRejected = "org.bluez.Error.Rejected"
	ErrorCanceled = "org.bluez.Error.Canceled"
)

var (
	// ErrRejected is the reply for a declined request.
	ErrRejected = dbus.NewError(ErrorRejected, []any{"rejected"})
	// ErrCanceled is the reply for a request still pending when the agent
	// stopped.
	ErrCanceled = dbus.NewError(ErrorCanceled, []any{"agent stopped"})
)

// Agent is the org.bluez.Agent1 object. Every method call becomes a
// protocol.Request on Requests; methods with an answer block until the
// request's reply slot is settled.
type Agent struct {
	exporter Exporter
	logger   *slog.Logger

	requests chan protocol.Request
	stop     chan struct{}
	stopOnce sync.Once
}

// NewAgent creates an agent that is not yet exported.
func NewAgent(exporter Exporter, logger *slog.Logger) *Agent {
	return &Agent{
		exporter: exporter,
		logger:   logger,
		requests: make(chan protocol.Request),
		stop:     make(chan struct{}),
	}
}

// Requests delivers pairing requests in the order the bus handed them over.
func (a *Agent) Requests() <-chan protocol.Request {
	return a.requests
}

// Stop makes pending and future method calls fail with ErrCanceled.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() { close(a.stop) })
}

// Export publishes the agent and its introspection data at path.
func (a *Agent) Export(path string) error {
	objectPath := dbus.ObjectPath(path)
	methods := &agent1{a}

	if err := a.exporter.Export(methods, objectPath, AgentInterface); err != nil {
		return fmt.Errorf("export %s: %w", AgentInterface, err)
	}

	node := &introspect.Node{
		Name: path,
		Interfaces: []introspect.Interface{
			introspect.IntrospectData,
			{Name: AgentInterface, Methods: introspect.Methods(methods)},
		},
	}
	if err := a.exporter.Export(introspect.NewIntrospectable(node), objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		_ = a.exporter.Export(nil, objectPath, AgentInterface)
		return fmt.Errorf("export introspection: %w", err)
	}
	return nil
}

// Unexport withdraws the agent from the bus.
func (a *Agent) Unexport(path string) error {
	objectPath := dbus.ObjectPath(path)
	if err := a.exporter.Export(nil, objectPath, AgentInterface); err != nil {
		return fmt.Errorf("unexport %s: %w", AgentInterface, err)
	}
	if err := a.exporter.Export(nil, objectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("unexport introspection: %w", err)
	}
	return nil
}

func (a *Agent) submit(req protocol.Request) *dbus.Error {
	a.logger.Debug("bus request", "request_id", req.RequestID(), "kind", req.Kind())
	select {
	case a.requests <- req:
		return nil
	case <-a.stop:
		req.Decline()
		return ErrCanceled
	}
}

// await blocks until slot is settled. A slot settled without a value, or
// still open when the agent stops, yields ErrCanceled.
func await[T any](a *Agent, slot *oneshot.Chan[T]) (value T, err *dbus.Error) {
	select {
	case <-slot.Done():
	case <-a.stop:
		slot.Close()
	}
	value, ok, _ := slot.TryRecv()
	if !ok {
		return value, ErrCanceled
	}
	return value, nil
}

func (a *Agent) confirm(req protocol.Request, slot *oneshot.Chan[bool]) *dbus.Error {
	if err := a.submit(req); err != nil {
		return err
	}
	accept, err := await(a, slot)
	if err != nil {
		return err
	}
	if !accept {
		return ErrRejected
	}
	return nil
}

// agent1 carries exactly the org.bluez.Agent1 method set, since godbus
// exports every exported method of the value.
type agent1 struct {
	a *Agent
}

func (m *agent1) Release() *dbus.Error {
	return m.a.submit(&protocol.Release{Header: protocol.NewHeader()})
}

func (m *agent1) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	req := &protocol.RequestPinCode{
		Header: protocol.NewHeader(),
		Device: protocol.DevicePath(device),
		Reply:  oneshot.New[*string](),
	}
	if err := m.a.submit(req); err != nil {
		return "", err
	}
	pin, err := await(m.a, req.Reply)
	if err != nil {
		return "", err
	}
	if pin == nil {
		return "", ErrRejected
	}
	return *pin, nil
}

func (m *agent1) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	return m.a.submit(&protocol.DisplayPinCode{
		Header:  protocol.NewHeader(),
		Device:  protocol.DevicePath(device),
		PinCode: pincode,
	})
}

func (m *agent1) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	req := &protocol.RequestPasskey{
		Header: protocol.NewHeader(),
		Device: protocol.DevicePath(device),
		Reply:  oneshot.New[*uint32](),
	}
	if err := m.a.submit(req); err != nil {
		return 0, err
	}
	passkey, err := await(m.a, req.Reply)
	if err != nil {
		return 0, err
	}
	if passkey == nil {
		return 0, ErrRejected
	}
	return *passkey, nil
}

func (m *agent1) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	return m.a.submit(&protocol.DisplayPasskey{
		Header:  protocol.NewHeader(),
		Device:  protocol.DevicePath(device),
		Passkey: passkey,
		Entered: entered,
	})
}

func (m *agent1) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	req := &protocol.RequestConfirmation{
		Header:  protocol.NewHeader(),
		Device:  protocol.DevicePath(device),
		Passkey: passkey,
		Reply:   oneshot.New[bool](),
	}
	return m.a.confirm(req, req.Reply)
}

func (m *agent1) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	req := &protocol.RequestAuthorization{
		Header: protocol.NewHeader(),
		Device: protocol.DevicePath(device),
		Reply:  oneshot.New[bool](),
	}
	return m.a.confirm(req, req.Reply)
}

func (m *agent1) AuthorizeService(device dbus.ObjectPath, uuid string) *dbus.Error {
	return m.a.submit(&protocol.AuthorizeService{
		Header: protocol.NewHeader(),
		Device: protocol.DevicePath(device),
		UUID:   uuid,
	})
}

func (m *agent1) Cancel() *dbus.Error {
	return m.a.submit(&protocol.Cancel{Header: protocol.NewHeader()})
}
