package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/supervisor"
)

func NewRestartCommand() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart the test validator",
		Long: `Restart the amman test validator.

The running validator is stopped, even when it was started elsewhere, and its
ports are released before a new one is started with the current config.hcl.
Without a running validator this is the same as 'ammanctl start'.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logFile, err := os.OpenFile(core.GetValidatorLogPath(), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open validator log: %w", err)
			}
			defer logFile.Close()

			sup, journal := newSupervisor(supervisor.WithOutput(logFile, logFile))
			defer closeJournal(journal)

			if sup.Refresh(cmd.Context()) != supervisor.StateIdle && !quiet {
				slog.Info("Restarting validator", "pid", sup.Pid())
			}

			if err := sup.Restart(cmd.Context(), nil); err != nil {
				return err
			}
			if !quiet {
				slog.Info("Validator restarted", "pid", sup.Pid())
			}

			if err := pushLabels(cmd.Context(), sup.Client(), core.Config.Labels, journal); err != nil {
				slog.Warn("Failed to push address labels", "error", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Suppress output")

	return cmd
}
