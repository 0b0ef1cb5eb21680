package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"vawter.tech/stopper"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/supervisor"
)

// errValidatorExited ends `ammanctl run` when the validator goes away on its own
var errValidatorExited = errors.New("validator exited")

func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the test validator in the foreground",
		Long: `Run the amman test validator in the foreground with its output on this terminal.

The validator is restarted whenever config.hcl changes and stopped on Ctrl+C.
Only the validator block and the labels are reloaded; the remaining settings
apply to the next run.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			sup, journal := newSupervisor(supervisor.WithOutput(os.Stdout, os.Stderr))
			defer closeJournal(journal)

			if err := sup.Start(ctx, nil); err != nil {
				return err
			}
			slog.Info("Validator started", "pid", sup.Pid())
			if err := pushLabels(ctx, sup.Client(), core.Config.Labels, journal); err != nil {
				slog.Warn("Failed to push address labels", "error", err)
			}

			sctx := stopper.WithContext(context.Background())
			defer func() {
				sctx.Stop(time.Second)
				if err := sctx.Wait(); err != nil {
					slog.Debug("Config watcher stopped with error", "error", err)
				}
			}()

			changed := make(chan struct{}, 1)
			if err := watchConfig(sctx, core.Config.ConfigPath, core.ConfigFileName, configDebounce, changed); err != nil {
				slog.Warn("Not watching configuration file", "error", err)
			} else {
				slog.Info("Watching configuration file for changes", "file", core.GetConfigFilePath())
			}

			verbose, _ := cmd.Flags().GetCount("verbose")
			reload := func() error {
				if err := core.InitializeConfig(core.Config.ConfigPath, verbose); err != nil {
					slog.Error("Configuration reload failed, keeping the running validator", "error", err)
					return nil
				}
				slog.Info("Configuration file changed, restarting validator")
				if err := sup.Restart(ctx, core.Config.ValidatorConfig()); err != nil {
					return err
				}
				slog.Info("Validator restarted", "pid", sup.Pid())
				if err := pushLabels(ctx, sup.Client(), core.Config.Labels, journal); err != nil {
					slog.Warn("Failed to push address labels", "error", err)
				}
				return nil
			}

			err := superviseForeground(ctx, sup, changed, time.Second, reload)
			shutdownValidator(sup)
			return err
		},
	}
}

// superviseForeground blocks until ctx is cancelled or the validator exits,
// calling reload for every signal on changed.
func superviseForeground(ctx context.Context, sup *supervisor.Supervisor, changed <-chan struct{}, interval time.Duration, reload func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("Shutting down validator")
			return nil

		case <-changed:
			if err := reload(); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}

		case <-ticker.C:
			if sup.Refresh(ctx) != supervisor.StateOwnedRunning {
				if ctx.Err() != nil {
					return nil
				}
				return errValidatorExited
			}
		}
	}
}

// shutdownValidator stops an owned validator. The command context is already
// cancelled at this point so the kill gets its own deadline.
func shutdownValidator(sup *supervisor.Supervisor) {
	if sup.State() != supervisor.StateOwnedRunning {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), core.Config.Timeouts.Stop+5*time.Second)
	defer cancel()

	pid := sup.Pid()
	if err := sup.Kill(ctx, false); err != nil {
		slog.Error("Failed to stop validator", "pid", pid, "error", err)
		return
	}
	slog.Info("Validator stopped", "pid", pid)
}
