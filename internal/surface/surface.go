// Package surface holds the operator-facing confirmation surfaces.
//
// A surface is launched once per confirmation with a Decision Channel
// producer (a *oneshot.Chan[bool]). It writes true when the operator
// accepts, false when the operator rejects or cancels, and may terminate
// without writing at all. It then waits for Close. Surfaces are never
// reused.
package surface

import (
	"context"
	"errors"

	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
)

// ErrNoTerminal is returned when a terminal surface has nowhere to draw.
var ErrNoTerminal = errors.New("no terminal available for confirmation dialog")

// Handle is one running surface instance.
type Handle interface {
	// Close asks the surface to shut down. Safe to call more than once and
	// after the surface terminated on its own.
	Close()
	// Done is closed once the surface has terminated.
	Done() <-chan struct{}
}

// Launcher starts a new surface for each confirmation.
type Launcher interface {
	Launch(ctx context.Context, req protocol.DecisionRequest, sink *oneshot.Chan[bool]) (Handle, error)
}
