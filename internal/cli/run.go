package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/iambrandonn/pairagent/internal/bluez"
	"github.com/iambrandonn/pairagent/internal/bridge"
	"github.com/iambrandonn/pairagent/internal/config"
	"github.com/iambrandonn/pairagent/internal/dispatcher"
	"github.com/iambrandonn/pairagent/internal/instance"
	"github.com/iambrandonn/pairagent/internal/lifecycle"
	"github.com/iambrandonn/pairagent/internal/logging"
	"github.com/iambrandonn/pairagent/internal/supervisor"
	"github.com/iambrandonn/pairagent/internal/surface"
	"github.com/spf13/cobra"
)

// unregisterTimeout bounds teardown calls made after the run context ended.
const unregisterTimeout = 5 * time.Second

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Register as the default pairing agent and answer requests",
	Long: `Register with BlueZ as the default pairing agent and answer pairing
requests until interrupted. The agent is unregistered on every exit path.`,
	RunE: runAgent,
}

// busConn is the slice of the system bus connection the agent needs.
type busConn interface {
	bluez.Caller
	bluez.Exporter
	Done() <-chan struct{}
	Close() error
}

// Replaced in tests.
var (
	connectBus = func() (busConn, error) {
		conn, err := bluez.ConnectSystem()
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	newSurface = surfaceFromConfig
)

func runAgent(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd, logger)
	if err != nil {
		return err
	}

	lockPath := cfg.LockPath
	if lockPath == "" {
		lockPath = config.DefaultLockPath(os.Getenv)
	}
	lock, err := instance.Acquire(lockPath)
	if err != nil {
		return err
	}
	defer lock.Release()

	levelFlag, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return err
	}
	launcher, err := newSurface(cfg, levelFlag, logger)
	if err != nil {
		return err
	}

	conn, err := connectBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	watchBus(ctx, conn, cancel)

	confirmations := bridge.New(launcher, bridge.Options{Timeout: cfg.Surface.DecisionTimeout()}, logger)
	defer confirmations.Wait()

	agent := bluez.NewAgent(conn, logger)
	manager := lifecycle.NewManager(agent, bluez.NewAgentManager(conn), cfg.Agent.Path, logger)

	if err := manager.Register(ctx); err != nil {
		return fmt.Errorf("failed to register pairing agent: %w", err)
	}
	defer func() {
		agent.Stop()
		teardownCtx, cancelTeardown := context.WithTimeout(context.WithoutCancel(ctx), unregisterTimeout)
		defer cancelTeardown()
		if err := manager.Unregister(teardownCtx); err != nil {
			logger.Warn("failed to unregister pairing agent", "error", err)
		}
	}()

	d := dispatcher.New(confirmations, bluez.NewDevices(conn), dispatcher.Policy{
		Authorization: cfg.Policy.Authorization,
		Confirmation:  cfg.Policy.Confirmation,
	}, logger)

	logger.Info("pairing agent ready", "path", cfg.Agent.Path, "surface", cfg.Surface.Kind)

	err = d.Run(ctx, agent.Requests())
	if errors.Is(err, bluez.ErrDisconnected) {
		return err
	}
	logger.Info("shutting down", "cause", err)
	return nil
}

// watchBus cancels ctx with bluez.ErrDisconnected when the bus goes away.
func watchBus(ctx context.Context, conn busConn, cancel context.CancelCauseFunc) {
	go func() {
		select {
		case <-conn.Done():
			cancel(bluez.ErrDisconnected)
		case <-ctx.Done():
		}
	}()
}

// surfaceFromConfig builds the launcher for cfg.Surface. A helper started by
// the exec surface inherits the environment plus logLevel, when set.
func surfaceFromConfig(cfg *config.Config, logLevel string, logger *slog.Logger) (surface.Launcher, error) {
	switch cfg.Surface.Kind {
	case config.SurfaceExec:
		command := cfg.Surface.Command
		if len(command) == 0 {
			exe, err := os.Executable()
			if err != nil {
				return nil, fmt.Errorf("failed to locate own binary for the prompt helper: %w", err)
			}
			command = []string{exe, "prompt"}
		}
		env := map[string]string{}
		if logLevel != "" {
			env[logging.EnvVar] = logLevel
		}
		return supervisor.NewLauncher(command, env, logger), nil
	default:
		return surface.NewTUI(logger), nil
	}
}
