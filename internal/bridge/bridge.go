// Package bridge runs one operator confirmation per pairing request.
//
// Each confirmation is a one-shot state machine:
//
//	Idle -> AwaitingInput -> Decided -> Closed
//
// The surface is launched on entry to AwaitingInput. Exactly one of operator
// accept, operator reject, surface termination, timeout or abort moves it to
// Decided. The surface is then asked to close and its Decision Channel is
// settled, so a stale surface can no longer change the outcome.
package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/iambrandonn/pairagent/internal/surface"
)

// DefaultCloseGrace is how long a surface may take to exit after close
// before its context is cancelled.
const DefaultCloseGrace = 5 * time.Second

// State is a confirmation state.
type State int

const (
	StateIdle State = iota
	StateAwaitingInput
	StateDecided
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingInput:
		return "awaiting_input"
	case StateDecided:
		return "decided"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Options configures a Bridge.
type Options struct {
	// Timeout bounds the wait for the operator. Zero waits forever.
	Timeout time.Duration
	// CloseGrace defaults to DefaultCloseGrace.
	CloseGrace time.Duration
	// OnTransition, when set, observes every state change.
	OnTransition func(requestID string, from, to State)
}

// Bridge launches a fresh surface for each confirmation and waits for its
// decision.
type Bridge struct {
	launcher surface.Launcher
	opts     Options
	logger   *slog.Logger

	surfaces sync.WaitGroup
}

// New creates a Bridge.
func New(launcher surface.Launcher, opts Options, logger *slog.Logger) *Bridge {
	if opts.CloseGrace <= 0 {
		opts.CloseGrace = DefaultCloseGrace
	}
	return &Bridge{
		launcher: launcher,
		opts:     opts,
		logger:   logger,
	}
}

type confirmation struct {
	bridge    *Bridge
	requestID string
	state     State
}

func (c *confirmation) advance(to State) {
	from := c.state
	c.state = to
	c.bridge.logger.Debug("confirmation state", "request_id", c.requestID, "from", from, "to", to)
	if c.bridge.opts.OnTransition != nil {
		c.bridge.opts.OnTransition(c.requestID, from, to)
	}
}

// Confirm asks the operator about req. It blocks only the calling goroutine
// and always returns a decision: anything other than an explicit operator
// accept is a reject. Cancelling ctx aborts the confirmation.
func (b *Bridge) Confirm(ctx context.Context, req protocol.DecisionRequest) protocol.Decision {
	c := &confirmation{bridge: b, requestID: req.RequestID, state: StateIdle}
	logger := b.logger.With("request_id", req.RequestID)

	sink := oneshot.New[bool]()

	// The surface outlives the request context by the close grace period so
	// that close can be handled gracefully.
	surfaceCtx, cancelSurface := context.WithCancel(context.WithoutCancel(ctx))

	handle, err := b.launcher.Launch(surfaceCtx, req, sink)
	if err != nil {
		cancelSurface()
		sink.Close()
		logger.Warn("failed to launch confirmation surface, rejecting", "error", err)
		c.advance(StateDecided)
		c.advance(StateClosed)
		return protocol.Decision{Accept: false, Reason: protocol.ReasonSurfaceFailed}
	}
	c.advance(StateAwaitingInput)

	var timeout <-chan time.Time
	if b.opts.Timeout > 0 {
		timer := time.NewTimer(b.opts.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var decision protocol.Decision
	select {
	case <-sink.Done():
		decision = settle(sink, protocol.ReasonSurfaceTerminated)
	case <-handle.Done():
		decision = settle(sink, protocol.ReasonSurfaceTerminated)
	case <-timeout:
		decision = settle(sink, protocol.ReasonTimedOut)
	case <-ctx.Done():
		decision = settle(sink, protocol.ReasonAborted)
	}
	c.advance(StateDecided)

	switch decision.Reason {
	case protocol.ReasonSurfaceTerminated:
		logger.Warn("confirmation surface exited without an answer, rejecting")
	case protocol.ReasonTimedOut:
		logger.Warn("operator did not answer in time, rejecting", "timeout", b.opts.Timeout)
	case protocol.ReasonAborted:
		logger.Info("confirmation aborted, rejecting")
	default:
		logger.Info("operator decided", "accept", decision.Accept)
	}

	handle.Close()
	c.advance(StateClosed)

	b.surfaces.Add(1)
	go func() {
		defer b.surfaces.Done()
		defer cancelSurface()
		select {
		case <-handle.Done():
		case <-time.After(b.opts.CloseGrace):
			logger.Warn("confirmation surface did not close in time")
		}
	}()

	return decision
}

// Wait blocks until every surface launched so far has exited or been
// cancelled.
func (b *Bridge) Wait() {
	b.surfaces.Wait()
}

// settle closes the channel so later writes are ignored. If the operator's
// answer won the race, that answer is the decision; otherwise the outcome
// is a reject for fallback.
func settle(sink *oneshot.Chan[bool], fallback protocol.Reason) protocol.Decision {
	sink.Close()

	accept, ok, _ := sink.TryRecv()
	if !ok {
		return protocol.Decision{Accept: false, Reason: fallback}
	}
	if accept {
		return protocol.Decision{Accept: true, Reason: protocol.ReasonOperatorAccepted}
	}
	return protocol.Decision{Accept: false, Reason: protocol.ReasonOperatorRejected}
}
