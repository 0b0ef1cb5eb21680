package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/relay"
)

func NewAccountsCommand() *cobra.Command {
	accountsCmd := &cobra.Command{
		Use:   "accounts <address>",
		Short: "Show the state history the relay recorded for an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			states, err := newRelayClient().AccountStates(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				writeAccountStatesText(os.Stdout, states)
			case "json":
				jsonBytes, _ := json.Marshal(states)
				fmt.Println(string(jsonBytes))
			default:
				return fmt.Errorf("unknown format %q", format)
			}
			return nil
		},
	}
	accountsCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return accountsCmd
}

func writeAccountStatesText(w io.Writer, states relay.AccountStates) {
	if len(states.States) == 0 {
		fmt.Fprintf(w, "No recorded states for %s\n", states.Address)
		return
	}

	fmt.Fprintf(w, "Account %s (%d states):\n", states.Address, len(states.States))
	for _, state := range states.States {
		// the relay stamps states in milliseconds
		at := time.UnixMilli(int64(state.Timestamp)).Format(time.DateTime)
		fmt.Fprintf(w, "  - slot %d at %s\n", state.Slot, at)
		if state.Rendered != "" {
			fmt.Fprintf(w, "    %s\n", state.Rendered)
		}
	}
}
