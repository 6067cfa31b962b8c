package surface

import (
	"context"
	"sync"
	"time"

	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
)

// Script is a surface that answers without an operator. It backs tests and
// the prompt helper's --answer mode.
type Script struct {
	// Answers are written to the sink in order. Only the first one can
	// settle it; the rest exercise the single-use guarantee.
	Answers []bool
	// Delay postpones the answers.
	Delay time.Duration
	// Terminate makes the surface exit right after answering (or without
	// answering when Answers is empty) instead of waiting for Close.
	Terminate bool
	// LaunchErr, when set, is returned by Launch.
	LaunchErr error

	mu       sync.Mutex
	requests []protocol.DecisionRequest
	closes   int
}

// Launch implements Launcher.
func (s *Script) Launch(ctx context.Context, req protocol.DecisionRequest, sink *oneshot.Chan[bool]) (Handle, error) {
	if s.LaunchErr != nil {
		return nil, s.LaunchErr
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	h := &scriptHandle{
		script: s,
		close:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go h.run(ctx, sink)
	return h, nil
}

// Requests returns every DecisionRequest the script was launched with.
func (s *Script) Requests() []protocol.DecisionRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.DecisionRequest(nil), s.requests...)
}

// Launches returns how many surfaces were started.
func (s *Script) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Closes returns how many surfaces were asked to close.
func (s *Script) Closes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type scriptHandle struct {
	script    *Script
	closeOnce sync.Once
	close     chan struct{}
	done      chan struct{}
}

func (h *scriptHandle) run(ctx context.Context, sink *oneshot.Chan[bool]) {
	defer close(h.done)

	if h.script.Delay > 0 {
		select {
		case <-time.After(h.script.Delay):
		case <-h.close:
			return
		case <-ctx.Done():
			return
		}
	}

	for _, answer := range h.script.Answers {
		sink.Send(answer)
	}

	if h.script.Terminate {
		return
	}

	select {
	case <-h.close:
	case <-ctx.Done():
	}
}

func (h *scriptHandle) Close() {
	h.closeOnce.Do(func() {
		h.script.mu.Lock()
		h.script.closes++
		h.script.mu.Unlock()
		close(h.close)
	})
}

func (h *scriptHandle) Done() <-chan struct{} {
	return h.done
}
