package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/iambrandonn/pairagent/internal/config"
	"github.com/iambrandonn/pairagent/internal/logging"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pairagent",
	Short: "Bluetooth pairing agent that asks before pairing",
	Long: `pairagent registers with BlueZ as the default pairing agent. Passkey
confirmations are shown to the operator, who confirms or cancels them;
everything else is answered from policy.

Running 'pairagent' without a subcommand is equivalent to 'pairagent run'.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(promptCmd)
	rootCmd.AddCommand(configCmd)

	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to config.jsonc (default: $XDG_CONFIG_HOME/pairagent/config.jsonc)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn or error (default: $"+logging.EnvVar+" or debug)")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func newLogger(cmd *cobra.Command) (*slog.Logger, error) {
	levelFlag, err := cmd.Flags().GetString("log-level")
	if err != nil {
		return nil, err
	}
	level, err := logging.ResolveLevel(levelFlag, os.Getenv)
	if err != nil {
		return nil, err
	}
	return logging.New(cmd.ErrOrStderr(), level), nil
}

func loadConfig(cmd *cobra.Command, logger *slog.Logger) (*config.Config, error) {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	cfg, cfgPath, err := config.Load(configPath, os.Getenv)
	if err != nil {
		return nil, err
	}
	if cfgPath == "" {
		logger.Debug("no configuration file, using defaults")
	} else {
		logger.Info("loaded configuration", "path", cfgPath)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func configPathOrDefault(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if path == "" {
		path = config.DefaultPath(os.Getenv)
	}
	if path == "" {
		return "", fmt.Errorf("cannot determine config path; pass --config")
	}
	return path, nil
}
