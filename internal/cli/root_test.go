package cli

import (
	"context"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandExposesGlobalFlags(t *testing.T) {
	configFlag := lookupFlag(rootCmd, "config")
	require.NotNil(t, configFlag, "root command should expose the --config flag")
	require.Equal(t, "c", configFlag.Shorthand, "root config flag shorthand mismatch")

	require.NotNil(t, lookupFlag(rootCmd, "log-level"), "root command should expose the --log-level flag")
}

func TestRootCommandDelegatesToRun(t *testing.T) {
	originalRunE := runCmd.RunE
	t.Cleanup(func() {
		runCmd.RunE = originalRunE
	})

	called := false
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		called = true
		path, err := cmd.Flags().GetString("config")
		require.NoError(t, err)
		require.Equal(t, "/tmp/pairagent-test.jsonc", path)
		return nil
	}

	err := execute(t, context.Background(), "--config", "/tmp/pairagent-test.jsonc")
	require.NoError(t, err)
	require.True(t, called, "root command should delegate to run command")
}

func TestExecuteUsesFreshContext(t *testing.T) {
	originalRunE := runCmd.RunE
	t.Cleanup(func() {
		runCmd.RunE = originalRunE
	})

	var seen []error
	runCmd.RunE = func(cmd *cobra.Command, args []string) error {
		seen = append(seen, cmd.Context().Err())
		return nil
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, execute(t, cancelled, "run"))
	require.NoError(t, execute(t, context.Background(), "run"))

	require.Len(t, seen, 2)
	assert.ErrorIs(t, seen[0], context.Canceled)
	assert.NoError(t, seen[1], "second run must not inherit the first context")
}

func TestInvalidLogLevelIsRejected(t *testing.T) {
	err := execute(t, context.Background(), "config", "show", "--log-level", "loud", "--config", writeConfig(t, t.TempDir()))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported log level")
}

var allCommands = []*cobra.Command{rootCmd, runCmd, promptCmd, configCmd, configInitCmd, configShowCmd}

// execute runs rootCmd with args and restores the global command state
// afterwards.
func execute(t *testing.T, ctx context.Context, args ...string) error {
	t.Helper()
	t.Cleanup(func() {
		for _, cmd := range allCommands {
			for _, name := range []string{"config", "log-level", "answer", "force"} {
				resetFlag(cmd, name)
			}
			cmd.SetContext(context.Background())
		}
		rootCmd.SetArgs(nil)
		rootCmd.SetIn(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	// cobra only hands the root context to subcommands without one, so a
	// context left over from an earlier execution would win.
	for _, cmd := range allCommands {
		cmd.SetContext(ctx)
	}
	rootCmd.SetArgs(args)
	rootCmd.SetErr(io.Discard)
	return rootCmd.ExecuteContext(ctx)
}

func resetFlag(cmd *cobra.Command, name string) {
	if flag := lookupFlag(cmd, name); flag != nil {
		_ = flag.Value.Set(flag.DefValue)
		flag.Changed = false
	}
}

func lookupFlag(cmd *cobra.Command, name string) *pflag.Flag {
	if flag := cmd.Flags().Lookup(name); flag != nil {
		return flag
	}
	return cmd.PersistentFlags().Lookup(name)
}
