package supervisor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/iambrandonn/pairagent/internal/ndjson"
	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/iambrandonn/pairagent/internal/surface"
)

// ErrNoPrompt is returned by Serve when stdin ends before a prompt arrives.
var ErrNoPrompt = errors.New("no prompt received")

// Serve is the helper side of the protocol. It reads one prompt from stdin,
// shows it on a surface from launcher, writes the operator's answer to
// stdout and returns once the agent sends close (or closes stdin) or the
// surface terminates.
func Serve(ctx context.Context, launcher surface.Launcher, stdin io.Reader, stdout io.Writer, logger *slog.Logger) error {
	encoder := ndjson.NewEncoder(stdout, logger)
	decoder := ndjson.NewDecoder(stdin, logger)

	msg, err := decoder.DecodeMessage()
	if err == io.EOF {
		return ErrNoPrompt
	}
	if err != nil {
		return fmt.Errorf("read prompt: %w", err)
	}
	prompt, ok := msg.(*protocol.Prompt)
	if !ok {
		return fmt.Errorf("expected prompt, got %T", msg)
	}

	logger = logger.With("request_id", prompt.RequestID)

	sink := oneshot.New[bool]()
	handle, err := launcher.Launch(ctx, prompt.DecisionRequest(), sink)
	if err != nil {
		return fmt.Errorf("launch surface: %w", err)
	}

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			msg, err := decoder.DecodeMessage()
			if err != nil {
				return
			}
			if _, ok := msg.(*protocol.Close); ok {
				logger.Debug("close received")
				return
			}
			logger.Warn("ignoring unexpected message", "msg_type", fmt.Sprintf("%T", msg))
		}
	}()

	finished := false
	select {
	case <-sink.Done():
	case <-handle.Done():
		finished = true
	case <-closed:
		finished = true
	case <-ctx.Done():
		finished = true
	}

	if accept, ok, settled := sink.TryRecv(); settled && ok {
		answer := &protocol.Answer{
			Kind:      protocol.MessageKindAnswer,
			RequestID: prompt.RequestID,
			Accept:    accept,
		}
		if err := encoder.Encode(answer); err != nil {
			logger.Warn("failed to write answer", "error", err)
		}
	} else {
		logger.Info("surface finished without an answer")
	}

	if !finished {
		select {
		case <-closed:
		case <-handle.Done():
		case <-ctx.Done():
		}
	}

	handle.Close()
	select {
	case <-handle.Done():
	case <-ctx.Done():
	}
	return nil
}
