package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/supervisor"
)

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the test validator",
		Long: `Start the amman test validator with the validator block of config.hcl and wait
until the relay reports it and its ports accept connections.

The validator keeps running after ammanctl exits. Its output is appended to
validator.log in the config path. If a validator is already running it is left
alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath := core.GetValidatorLogPath()
			logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open validator log: %w", err)
			}
			defer logFile.Close()

			sup, journal := newSupervisor(supervisor.WithOutput(logFile, logFile))
			defer closeJournal(journal)

			slog.Info("Starting validator", "executable", core.Config.Executable, "log", logPath)
			err = sup.Start(cmd.Context(), nil)

			var running *supervisor.AlreadyRunningError
			switch {
			case errors.As(err, &running):
				slog.Warn("Validator is already running", "pid", running.Pid)
				return nil
			case err != nil:
				return err
			}

			slog.Info("Validator started", "pid", sup.Pid())
			if err := pushLabels(cmd.Context(), sup.Client(), core.Config.Labels, journal); err != nil {
				slog.Warn("Failed to push address labels", "error", err)
			}
			return nil
		},
	}
}
