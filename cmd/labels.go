package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
	"go.olrik.dev/amman/internal/relay"
)

func NewLabelsCommand() *cobra.Command {
	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "List the address labels known to the relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := newRelayClient().KnownAddressLabels(cmd.Context())
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				writeLabelsText(os.Stdout, labels)
			case "json":
				jsonBytes, _ := json.Marshal(labels)
				fmt.Println(string(jsonBytes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	labelsCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	labelsCmd.AddCommand(newLabelsSetCommand())

	return labelsCmd
}

func newLabelsSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <address>=<label>...",
		Short: "Label addresses in the relay",
		Long: `Label addresses in the relay.

Examples:
  ammanctl labels set 13DX32Lou1qH62xUosRyk9QnQpetbuxtEgPzbkKvQmVu=payer
  ammanctl labels set "$MINT=token mint" "$OWNER=mint authority"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			labels, err := parseLabelPairs(args)
			if err != nil {
				return err
			}

			journal := openJournal()
			defer closeJournal(journal)

			if err := pushLabels(cmd.Context(), newRelayClient(), labels, journal); err != nil {
				return err
			}
			slog.Info("Labels updated", "count", len(labels))

			if core.Config.Verbose > 0 {
				writeLabelsText(os.Stdout, labels)
			}
			return nil
		},
	}
}

// parseLabelPairs turns address=label arguments into a label map. The label
// may contain '=' and spaces, the address may not be empty.
func parseLabelPairs(args []string) (map[string]string, error) {
	labels := make(map[string]string, len(args))
	for _, arg := range args {
		address, label, ok := strings.Cut(arg, "=")
		address = strings.TrimSpace(address)
		if !ok || address == "" {
			return nil, fmt.Errorf("invalid label %q, expected <address>=<label>", arg)
		}
		labels[address] = label
	}
	return labels, nil
}

func writeLabelsText(w io.Writer, labels relay.AddressLabels) {
	if len(labels) == 0 {
		fmt.Fprintln(w, "No address labels")
		return
	}

	addresses := make([]string, 0, len(labels))
	width := 0
	for address := range labels {
		addresses = append(addresses, address)
		width = max(width, len(address))
	}
	slices.Sort(addresses)

	for _, address := range addresses {
		fmt.Fprintf(w, "%-*s  %s\n", width, address, labels[address])
	}
}
