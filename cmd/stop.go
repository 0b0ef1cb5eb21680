package cmd

import (
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/supervisor"
)

func NewStopCommand() *cobra.Command {
	var keepExternal bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the test validator",
		Long: `Stop the running amman test validator and wait until its ports are released.

A validator started by another amman process is stopped through 'amman stop'
unless --keep-external is given.`,
		Aliases: []string{"kill"},
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sup, journal := newSupervisor()
			defer closeJournal(journal)

			state := sup.Refresh(cmd.Context())
			pid := sup.Pid()

			err := sup.Kill(cmd.Context(), !keepExternal)
			if errors.Is(err, supervisor.ErrNotRunning) {
				slog.Warn("Validator is not running")
				return nil
			}
			if err != nil {
				return err
			}

			if state == supervisor.StateExternallyRunning && keepExternal {
				return nil
			}
			slog.Info("Validator stopped", "pid", pid)
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepExternal, "keep-external", false, "Leave a validator started elsewhere running")

	return cmd
}
