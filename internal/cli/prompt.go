package cli

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/iambrandonn/pairagent/internal/supervisor"
	"github.com/iambrandonn/pairagent/internal/surface"
	"github.com/spf13/cobra"
)

var promptCmd = &cobra.Command{
	Use:   "prompt",
	Short: "Confirmation helper for the exec surface",
	Long: `Read one prompt as NDJSON from stdin, ask the operator on the
terminal and write the answer to stdout. 'pairagent run' starts this
command once per confirmation when surface.kind is "exec".`,
	Args: cobra.NoArgs,
	RunE: runPrompt,
}

func init() {
	promptCmd.Flags().String("answer", "", "Answer without asking: accept or reject")
}

func runPrompt(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	answer, err := cmd.Flags().GetString("answer")
	if err != nil {
		return err
	}
	launcher, err := promptSurface(answer, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return supervisor.Serve(ctx, launcher, cmd.InOrStdin(), cmd.OutOrStdout(), logger)
}

func promptSurface(answer string, logger *slog.Logger) (surface.Launcher, error) {
	switch answer {
	case "":
		return surface.NewTUI(logger), nil
	case "accept":
		return &surface.Script{Answers: []bool{true}}, nil
	case "reject":
		return &surface.Script{Answers: []bool{false}}, nil
	default:
		return nil, fmt.Errorf("invalid --answer %q: use accept or reject", answer)
	}
}
