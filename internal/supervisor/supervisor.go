// Package supervisor runs the confirmation surface as a helper process.
//
// The agent and the helper exchange NDJSON on the helper's stdio: the agent
// writes one prompt, the helper writes at most one answer, the agent writes
// close and then closes stdin. A helper that exits without answering counts
// as a surface that terminated without a decision.
package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/iambrandonn/pairagent/internal/ndjson"
	"github.com/iambrandonn/pairagent/internal/oneshot"
	"github.com/iambrandonn/pairagent/internal/protocol"
	"github.com/iambrandonn/pairagent/internal/surface"
)

// DefaultStopTimeout bounds how long a helper may take to exit after close.
const DefaultStopTimeout = 5 * time.Second

// Launcher starts one helper process per confirmation.
type Launcher struct {
	cmd         []string
	env         map[string]string
	logger      *slog.Logger
	stopTimeout time.Duration
}

// NewLauncher creates a launcher for the helper argv cmd.
func NewLauncher(cmd []string, env map[string]string, logger *slog.Logger) *Launcher {
	return &Launcher{
		cmd:         cmd,
		env:         env,
		logger:      logger,
		stopTimeout: DefaultStopTimeout,
	}
}

// Launch implements surface.Launcher.
func (l *Launcher) Launch(ctx context.Context, req protocol.DecisionRequest, sink *oneshot.Chan[bool]) (surface.Handle, error) {
	if len(l.cmd) == 0 {
		return nil, fmt.Errorf("surface helper command is empty")
	}

	s := &SurfaceSupervisor{
		cmd:         l.cmd,
		env:         l.env,
		logger:      l.logger.With("request_id", req.RequestID),
		stopTimeout: l.stopTimeout,
		requestID:   req.RequestID,
		sink:        sink,
		done:        make(chan struct{}),
	}

	if err := s.Start(ctx); err != nil {
		return nil, err
	}

	if err := s.send(protocol.NewPrompt(req)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to send prompt: %w", err)
	}

	return s, nil
}

// SurfaceSupervisor manages a single helper subprocess.
type SurfaceSupervisor struct {
	cmd         []string
	env         map[string]string
	logger      *slog.Logger
	stopTimeout time.Duration
	requestID   string
	sink        *oneshot.Chan[bool]

	mu      sync.Mutex
	process *exec.Cmd
	encoder *ndjson.Encoder
	stdin   io.WriteCloser
	running bool
	exitErr error

	readers   sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// Start launches the helper subprocess.
func (s *SurfaceSupervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("surface helper already running")
	}
	s.mu.Unlock()

	s.logger.Debug("starting surface helper", "cmd", s.cmd)

	proc := exec.CommandContext(ctx, s.cmd[0], s.cmd[1:]...)

	proc.Env = os.Environ()
	proc.Env = append(proc.Env, fmt.Sprintf("PAIRAGENT_REQUEST_ID=%s", s.requestID))
	for k, v := range s.env {
		proc.Env = append(proc.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdin, err := proc.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	stdout, err := proc.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	stderr, err := proc.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := proc.Start(); err != nil {
		stdin.Close()
		stdout.Close()
		stderr.Close()
		return fmt.Errorf("failed to start surface helper: %w", err)
	}

	s.mu.Lock()
	s.process = proc
	s.stdin = stdin
	s.encoder = ndjson.NewEncoder(stdin, s.logger)
	s.running = true
	s.mu.Unlock()

	s.logger.Debug("surface helper started", "pid", proc.Process.Pid)

	s.readers.Add(2)
	go s.readStdout(stdout)
	go s.readStderr(stderr)
	go s.waitForExit()

	return nil
}

// Close sends the close command and closes the helper's stdin. A helper that
// does not exit within the stop timeout is killed. Close does not block.
func (s *SurfaceSupervisor) Close() {
	s.closeOnce.Do(func() {
		go s.stop()
	})
}

// Done is closed after the helper exited and its output was drained.
func (s *SurfaceSupervisor) Done() <-chan struct{} {
	return s.done
}

// ExitErr returns the helper's exit status once Done is closed.
func (s *SurfaceSupervisor) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// IsRunning returns true while the helper process is alive.
func (s *SurfaceSupervisor) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *SurfaceSupervisor) send(msg any) error {
	s.mu.Lock()
	encoder := s.encoder
	running := s.running
	s.mu.Unlock()

	if !running || encoder == nil {
		return fmt.Errorf("surface helper not running")
	}
	return encoder.Encode(msg)
}

func (s *SurfaceSupervisor) stop() {
	s.mu.Lock()
	proc := s.process
	stdin := s.stdin
	s.mu.Unlock()

	if err := s.send(&protocol.Close{Kind: protocol.MessageKindClose, RequestID: s.requestID}); err != nil {
		s.logger.Debug("close command not delivered", "error", err)
	}
	if stdin != nil {
		stdin.Close()
	}

	select {
	case <-s.done:
	case <-time.After(s.stopTimeout):
		s.logger.Warn("surface helper did not exit after close, killing")
		if proc != nil && proc.Process != nil {
			_ = proc.Process.Kill()
		}
	}
}

func (s *SurfaceSupervisor) readStdout(stdout io.Reader) {
	defer s.readers.Done()

	decoder := ndjson.NewDecoder(stdout, s.logger)
	for {
		msg, err := decoder.DecodeMessage()
		if err == io.EOF {
			return
		}
		if err != nil {
			s.logger.Warn("failed to decode message from surface helper", "error", err)
			// A framing error leaves the stream unusable.
			_, _ = io.Copy(io.Discard, stdout)
			return
		}

		switch v := msg.(type) {
		case *protocol.Answer:
			if v.RequestID != s.requestID {
				s.logger.Warn("ignoring answer for another request", "answer_request_id", v.RequestID)
				continue
			}
			if !s.sink.Send(v.Accept) {
				s.logger.Debug("ignoring repeated answer", "accept", v.Accept)
			}
		default:
			s.logger.Warn("unexpected message from surface helper", "msg_type", fmt.Sprintf("%T", msg))
		}
	}
}

func (s *SurfaceSupervisor) readStderr(stderr io.Reader) {
	defer s.readers.Done()

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), 64*1024)
	for scanner.Scan() {
		s.logger.Debug("surface helper stderr", "line", scanner.Text())
	}
}

func (s *SurfaceSupervisor) waitForExit() {
	// Wait closes the pipes, so the readers have to drain them first.
	s.readers.Wait()

	s.mu.Lock()
	proc := s.process
	s.mu.Unlock()

	err := proc.Wait()

	s.mu.Lock()
	s.running = false
	s.exitErr = err
	s.mu.Unlock()

	if err != nil {
		s.logger.Debug("surface helper exited", "error", err)
	} else {
		s.logger.Debug("surface helper exited cleanly")
	}
	close(s.done)
}
