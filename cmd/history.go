package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/db"
)

func NewHistoryCommand() *cobra.Command {
	var limit int
	var showLabels bool

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent validator lifecycle events",
		Long: `Show recent validator lifecycle events recorded by ammanctl.

Events are start, start_failed, adopt, kill, kill_skipped, stop_external,
exited and gone. Use --labels to list the address labels pushed to the relay
instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			journal := openJournal()
			if journal == nil {
				return fmt.Errorf("history database is not available")
			}
			defer closeJournal(journal)

			if showLabels {
				changes, err := journal.GetRecentLabelChanges(limit)
				if err != nil {
					return err
				}
				writeLabelChanges(os.Stdout, changes)
				return nil
			}

			events, err := journal.GetRecentValidatorEvents(limit)
			if err != nil {
				return err
			}
			writeValidatorEvents(os.Stdout, events)
			return nil
		},
	}
	historyCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries to show")
	historyCmd.Flags().BoolVar(&showLabels, "labels", false, "Show label changes instead of validator events")

	return historyCmd
}

func writeValidatorEvents(w io.Writer, events []db.ValidatorEvent) {
	if len(events) == 0 {
		fmt.Fprintln(w, "No validator events recorded")
		return
	}

	for _, e := range events {
		owner := "external"
		if e.Owned {
			owner = "owned"
		}
		fmt.Fprintf(w, "%s  %-13s pid=%-7d %s", e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Pid, owner)
		if e.Details != "" {
			fmt.Fprintf(w, "  %s", e.Details)
		}
		fmt.Fprintln(w)
	}
}

func writeLabelChanges(w io.Writer, changes []db.LabelChange) {
	if len(changes) == 0 {
		fmt.Fprintln(w, "No label changes recorded")
		return
	}

	for _, c := range changes {
		fmt.Fprintf(w, "%s  %s  %s\n", c.Timestamp.Local().Format(time.DateTime), c.Address, c.Label)
	}
}
