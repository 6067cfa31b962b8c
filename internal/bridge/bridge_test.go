package bridge

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/iambrandonn/pairagent/internal/surface"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var pixelBuds = protocol.DecisionRequest{
	RequestID:  "req-1",
	DeviceName: "Pixel Buds",
	Passkey:    "482931",
}

type transitions struct {
	mu    sync.Mutex
	steps []State
}

func (tr *transitions) record(_ string, from, to State) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if len(tr.steps) == 0 {
		tr.steps = append(tr.steps, from)
	}
	tr.steps = append(tr.steps, to)
}

func (tr *transitions) get() []State {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return append([]State(nil), tr.steps...)
}

func confirm(t *testing.T, launcher surface.Launcher, opts Options) (protocol.Decision, []State) {
	t.Helper()
	tr := &transitions{}
	opts.OnTransition = tr.record

	b := New(launcher, opts, discardLogger())
	decision := b.Confirm(context.Background(), pixelBuds)
	b.Wait()
	return decision, tr.get()
}

var fullCycle = []State{StateIdle, StateAwaitingInput, StateDecided, StateClosed}

func TestConfirmOperatorAccepts(t *testing.T) {
	script := &surface.Script{Answers: []bool{true}}

	decision, steps := confirm(t, script, Options{})

	assert.Equal(t, protocol.Decision{Accept: true, Reason: protocol.ReasonOperatorAccepted}, decision)
	assert.Equal(t, fullCycle, steps)
	assert.Equal(t, 1, script.Launches())
	assert.Equal(t, 1, script.Closes(), "surface is closed after the decision")
	assert.Equal(t, pixelBuds, script.Requests()[0])
}

func TestConfirmOperatorRejects(t *testing.T) {
	script := &surface.Script{Answers: []bool{false}}

	decision, _ := confirm(t, script, Options{})

	assert.Equal(t, protocol.Decision{Accept: false, Reason: protocol.ReasonOperatorRejected}, decision)
	assert.Equal(t, 1, script.Closes())
}

func TestConfirmFirstWriteWins(t *testing.T) {
	decision, _ := confirm(t, &surface.Script{Answers: []bool{false, true}}, Options{})
	assert.False(t, decision.Accept)

	decision, _ = confirm(t, &surface.Script{Answers: []bool{true, false}}, Options{})
	assert.True(t, decision.Accept)
}

func TestConfirmSurfaceTerminatedIsReject(t *testing.T) {
	decision, steps := confirm(t, &surface.Script{Terminate: true}, Options{})

	assert.Equal(t, protocol.Decision{Accept: false, Reason: protocol.ReasonSurfaceTerminated}, decision)
	assert.Equal(t, fullCycle, steps)
}

func TestConfirmAnswerThenExitKeepsAnswer(t *testing.T) {
	decision, _ := confirm(t, &surface.Script{Answers: []bool{true}, Terminate: true}, Options{})
	assert.True(t, decision.Accept)
}

func TestConfirmLaunchFailureIsReject(t *testing.T) {
	decision, steps := confirm(t, &surface.Script{LaunchErr: errors.New("no display")}, Options{})

	assert.Equal(t, protocol.Decision{Accept: false, Reason: protocol.ReasonSurfaceFailed}, decision)
	assert.Equal(t, []State{StateIdle, StateDecided, StateClosed}, steps)
}

func TestConfirmTimeoutIsReject(t *testing.T) {
	script := &surface.Script{}

	start := time.Now()
	decision, steps := confirm(t, script, Options{Timeout: 30 * time.Millisecond})

	assert.Equal(t, protocol.Decision{Accept: false, Reason: protocol.ReasonTimedOut}, decision)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, fullCycle, steps)
	assert.Equal(t, 1, script.Closes())
}

func TestConfirmAbortIsReject(t *testing.T) {
	script := &surface.Script{}
	b := New(script, Options{}, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	decision := b.Confirm(ctx, pixelBuds)
	b.Wait()

	assert.Equal(t, protocol.Decision{Accept: false, Reason: protocol.ReasonAborted}, decision)
	assert.Equal(t, 1, script.Closes())
}

// capturingLauncher hands the sink back to the test so it can write to it
// after the bridge has decided.
type capturingLauncher struct {
	sink *oneshot.Chan[bool]
	done chan struct{}
}

func (c *capturingLauncher) Launch(_ context.Context, _ protocol.DecisionRequest, sink *oneshot.Chan[bool]) (surface.Handle, error) {
	c.sink = sink
	c.done = make(chan struct{})
	return c, nil
}

func (c *capturingLauncher) Close() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *capturingLauncher) Done() <-chan struct{} { return c.done }

func TestStaleSurfaceWriteIgnored(t *testing.T) {
	launcher := &capturingLauncher{}

	decision, _ := confirm(t, launcher, Options{Timeout: 10 * time.Millisecond})
	require.Equal(t, protocol.ReasonTimedOut, decision.Reason)

	assert.False(t, launcher.sink.Send(true), "late accept must be dropped")
}

func TestEachConfirmationGetsFreshSurface(t *testing.T) {
	script := &surface.Script{Answers: []bool{true}}
	b := New(script, Options{}, discardLogger())

	for i := 0; i < 3; i++ {
		assert.True(t, b.Confirm(context.Background(), pixelBuds).Accept)
	}
	b.Wait()

	assert.Equal(t, 3, script.Launches())
	assert.Equal(t, 3, script.Closes())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "awaiting_input", StateAwaitingInput.String())
	assert.Equal(t, "unknown", State(42).String())
}
