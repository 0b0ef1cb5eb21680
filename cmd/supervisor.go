package cmd

import (
	"context"
	"log/slog"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/db"
	"go.olrik.dev/amman/internal/relay"
	"go.olrik.dev/amman/internal/supervisor"
)

// newRelayClient builds a relay client from the loaded configuration
func newRelayClient() *relay.Client {
	return relay.New(core.Config.RelayURL, relay.WithTimeout(core.Config.Timeouts.Request))
}

// openJournal opens the history database. Failing to open it only costs the
// journal, so callers carry on without one.
func openJournal() *db.DB {
	journal, err := db.Open(core.GetHistoryDBPath())
	if err != nil {
		slog.Warn("Failed to open history database, events will not be recorded", "error", err)
		return nil
	}
	return journal
}

// supervisorOptions maps the loaded configuration to supervisor options
func supervisorOptions(cfg *core.Configuration) []supervisor.Option {
	return []supervisor.Option{
		supervisor.WithExecutable(cfg.Executable),
		supervisor.WithPorts(cfg.PortList()...),
		supervisor.WithStartTimeout(cfg.Timeouts.Start),
		supervisor.WithStopTimeout(cfg.Timeouts.Stop),
		supervisor.WithPollInterval(cfg.Timeouts.PollInterval),
		supervisor.WithConfig(cfg.ValidatorConfig()),
		supervisor.WithTempDir(cfg.TempDir),
	}
}

// newSupervisor builds a supervisor for one command invocation with the
// journal attached as recorder. The journal is nil when it could not be
// opened; the caller closes it otherwise.
func newSupervisor(extra ...supervisor.Option) (*supervisor.Supervisor, *db.DB) {
	opts := supervisorOptions(core.Config)

	journal := openJournal()
	if journal != nil {
		opts = append(opts, supervisor.WithRecorder(journal))
	}
	opts = append(opts, extra...)

	return supervisor.New(newRelayClient(), opts...), journal
}

func closeJournal(journal *db.DB) {
	if journal == nil {
		return
	}
	if err := journal.Close(); err != nil {
		slog.Debug("Failed to close history database", "error", err)
	}
}

// pushLabels sends address labels to the relay and journals them once the
// relay accepted the update.
func pushLabels(ctx context.Context, client *relay.Client, labels map[string]string, journal *db.DB) error {
	if len(labels) == 0 {
		return nil
	}
	if err := client.UpdateAddressLabels(ctx, labels); err != nil {
		return err
	}

	if journal != nil {
		for address, label := range labels {
			if err := journal.LogLabelChange(address, label); err != nil {
				slog.Warn("Failed to record label change", "address", address, "error", err)
			}
		}
	}
	slog.Debug("Pushed address labels to relay", "count", len(labels))
	return nil
}
