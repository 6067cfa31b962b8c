// Package lifecycle owns the agent registration with the agent-manager.
//
// Registration is three steps: expose the agent object, register its path
// with the agent-manager, and ask for it to become the default agent. A
// failure part way through undoes the steps already taken, so the bus never
// keeps a half-registered agent.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Capability is the IO capability declared to the agent-manager. The agent
// can show a passkey and ask a yes/no question.
const Capability = "DisplayYesNo"

// rollbackTimeout bounds the rollback calls, which run even after the
// caller's context is cancelled.
const rollbackTimeout = 5 * time.Second

// ErrAlreadyRegistered is returned by Register while a registration is held.
var ErrAlreadyRegistered = errors.New("agent is already registered")

// Object is the agent object exposed on the bus.
type Object interface {
	Export(path string) error
	Unexport(path string) error
}

// AgentManager is the platform service tracking the active pairing agent.
type AgentManager interface {
	RegisterAgent(ctx context.Context, path, capability string) error
	RequestDefaultAgent(ctx context.Context, path string) error
	UnregisterAgent(ctx context.Context, path string) error
}

type step int

const (
	stepNone step = iota
	stepExported
	stepRegistered
	stepDefault
)

// Manager holds the process-wide registration. It is safe for concurrent use.
type Manager struct {
	object  Object
	manager AgentManager
	path    string
	logger  *slog.Logger

	mu      sync.Mutex
	reached step
}

// NewManager creates a Manager for the agent at path.
func NewManager(object Object, manager AgentManager, path string, logger *slog.Logger) *Manager {
	return &Manager{
		object:  object,
		manager: manager,
		path:    path,
		logger:  logger.With("agent_path", path),
	}
}

// Path returns the agent object path.
func (m *Manager) Path() string {
	return m.path
}

// Registered reports whether the agent is currently the registered default.
func (m *Manager) Registered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reached == stepDefault
}

// Register exposes the agent and makes it the default agent. On error every
// step already taken has been rolled back.
func (m *Manager) Register(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reached != stepNone {
		return ErrAlreadyRegistered
	}

	if err := m.object.Export(m.path); err != nil {
		return fmt.Errorf("export agent object: %w", err)
	}
	m.reached = stepExported
	m.logger.Debug("agent object exported")

	if err := m.manager.RegisterAgent(ctx, m.path, Capability); err != nil {
		return m.rollback(ctx, fmt.Errorf("register agent: %w", err))
	}
	m.reached = stepRegistered
	m.logger.Debug("agent registered", "capability", Capability)

	if err := m.manager.RequestDefaultAgent(ctx, m.path); err != nil {
		return m.rollback(ctx, fmt.Errorf("request default agent: %w", err))
	}
	m.reached = stepDefault
	m.logger.Info("agent registered as default", "capability", Capability)

	return nil
}

func (m *Manager) rollback(ctx context.Context, cause error) error {
	m.logger.Warn("registration failed, rolling back", "error", cause)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := m.teardown(ctx); err != nil {
		return errors.Join(cause, fmt.Errorf("rollback: %w", err))
	}
	return cause
}

// Unregister undoes Register. Calling it again, or after a failed Register,
// is logged and ignored. Errors from the agent-manager are returned after
// the object has still been withdrawn from the bus.
func (m *Manager) Unregister(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.reached == stepNone {
		m.logger.Debug("unregister ignored, agent not registered")
		return nil
	}
	if err := m.teardown(ctx); err != nil {
		return err
	}
	m.logger.Info("agent unregistered")
	return nil
}

// teardown must be called with mu held. It always ends in stepNone.
func (m *Manager) teardown(ctx context.Context) error {
	var errs []error

	if m.reached >= stepRegistered {
		if err := m.manager.UnregisterAgent(ctx, m.path); err != nil {
			m.logger.Warn("unregister agent failed", "error", err)
			errs = append(errs, fmt.Errorf("unregister agent: %w", err))
		}
	}
	if m.reached >= stepExported {
		if err := m.object.Unexport(m.path); err != nil {
			m.logger.Warn("unexport agent object failed", "error", err)
			errs = append(errs, fmt.Errorf("unexport agent object: %w", err))
		}
	}

	m.reached = stepNone
	return errors.Join(errs...)
}
