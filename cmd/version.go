package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/relay"
)

func NewVersionCommand() *cobra.Command {
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version",
		Long:  `Show version of ammanctl and of the amman relay (if running)`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(os.Stderr, "Client version: %s\n", core.FormatVersion(core.Version))

			relayVersion, err := newRelayClient().Version(cmd.Context())
			if err != nil {
				slog.Debug("Relay version request failed", "error", err)
				fmt.Fprintln(os.Stderr, "Relay: not running")
				return
			}
			fmt.Fprintf(os.Stderr, "Relay version: %s\n", relayVersion)

			if !relay.CurrentVersion.Compatible(relayVersion) {
				slog.Warn(fmt.Sprintf("Version mismatch! ammanctl speaks relay %s but the relay is %s.", relay.CurrentVersion, relayVersion))
			}
		},
	}

	return versionCmd
}
