package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/db"
	"go.olrik.dev/amman/internal/supervisor"
)

// validatorStatus is what `ammanctl status` reports
type validatorStatus struct {
	State        string     `json:"state"`
	Pid          int        `json:"pid,omitempty"`
	Process      string     `json:"process,omitempty"`
	Cmdline      string     `json:"cmdline,omitempty"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	PidSuspect   bool       `json:"pid_suspect,omitempty"`
	RelayVersion string     `json:"relay_version,omitempty"`
	LastEvent    string     `json:"last_event,omitempty"`
	LastEventAt  *time.Time `json:"last_event_at,omitempty"`
}

func NewStatusCommand() *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show whether the test validator is running",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			sup, journal := newSupervisor()
			defer closeJournal(journal)

			ctx := cmd.Context()
			state := sup.Refresh(ctx)

			status := validatorStatus{State: state.String(), Pid: sup.Pid()}
			if status.Pid > 0 {
				describeProcess(&status)
			}
			if v, err := sup.Client().Version(ctx); err == nil {
				status.RelayVersion = v.String()
			}
			if journal != nil {
				event, err := journal.GetLastValidatorEvent()
				if err != nil {
					slog.Debug("Failed to read last validator event", "error", err)
				}
				addLastEvent(&status, event)
			}

			format, _ := cmd.Flags().GetString("format")
			switch format {
			case "text":
				writeStatusText(os.Stdout, status, time.Now())
			case "json":
				jsonBytes, _ := json.Marshal(status)
				fmt.Println(string(jsonBytes))
			default:
				slog.Error("unknown format")
				os.Exit(1)
			}
		},
	}
	statusCmd.Flags().StringP("format", "F", "text", "Format to use (text/json)")

	return statusCmd
}

func describeProcess(status *validatorStatus) {
	info, err := supervisor.Describe(status.Pid)
	if err != nil {
		slog.Debug("Failed to describe validator process", "pid", status.Pid, "error", err)
		status.PidSuspect = true
		return
	}
	status.Process = info.Name
	status.Cmdline = info.Cmdline
	if !info.CreateTime.IsZero() {
		started := info.CreateTime
		status.StartDate = &started
	}
	status.PidSuspect = !info.Running || !info.LooksLikeAmman()
}

func addLastEvent(status *validatorStatus, event *db.ValidatorEvent) {
	if event == nil {
		return
	}
	status.LastEvent = event.EventType
	at := event.Timestamp
	status.LastEventAt = &at
}

func writeStatusText(w io.Writer, status validatorStatus, now time.Time) {
	if status.Pid == 0 {
		fmt.Fprintf(w, "Validator: %s\n", status.State)
	} else {
		fmt.Fprintf(w, "Validator: %s (PID: %d", status.State, status.Pid)
		if status.StartDate != nil {
			fmt.Fprintf(w, ", Age: %s", now.Sub(*status.StartDate).Round(time.Second))
		}
		fmt.Fprintln(w, ")")
	}
	if status.Process != "" {
		fmt.Fprintf(w, "  Process: %s\n", status.Process)
	}
	if status.PidSuspect {
		fmt.Fprintln(w, "  Warning: pid does not look like an amman validator")
	}

	relayVersion := status.RelayVersion
	if relayVersion == "" {
		relayVersion = "not reachable"
	}
	fmt.Fprintf(w, "Relay: %s\n", relayVersion)

	if status.LastEvent != "" && status.LastEventAt != nil {
		fmt.Fprintf(w, "Last event: %s (%s ago)\n", status.LastEvent, now.Sub(*status.LastEventAt).Round(time.Second))
	}
}
