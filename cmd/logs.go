package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"go.olrik.dev/amman/internal/core"
)

func NewLogsCommand() *cobra.Command {
	var lines int
	var follow bool

	logsCmd := &cobra.Command{
		Use:     "logs",
		Aliases: []string{"log"},
		Short:   "Show the output of a validator started with 'ammanctl start'",
		Long: `Show the output of a validator started with 'ammanctl start'.

Examples:
  ammanctl logs            # Show the last 20 lines
  ammanctl logs -n 100     # Show the last 100 lines
  ammanctl logs -f         # Keep streaming new output, Ctrl+C to exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logPath := core.GetValidatorLogPath()
			f, err := os.Open(logPath)
			if err != nil {
				return fmt.Errorf("no validator log at %s: %w", logPath, err)
			}
			defer f.Close()

			if err := writeTail(os.Stdout, f, lines); err != nil {
				return err
			}
			if !follow {
				return nil
			}
			return followLog(cmd, f)
		},
	}
	logsCmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show")
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Stream new output")

	return logsCmd
}

// writeTail copies the last n lines of r to w and leaves r at its end
func writeTail(w io.Writer, r io.Reader, n int) error {
	if n <= 0 {
		_, err := io.Copy(io.Discard, r)
		return err
	}

	ring := make([]string, 0, n)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(ring) == n {
			ring = ring[1:]
		}
		ring = append(ring, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	for _, line := range ring {
		fmt.Fprintln(w, line)
	}
	return nil
}

func followLog(cmd *cobra.Command, f *os.File) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(f.Name()); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			return nil
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != 0 {
				if _, err := io.Copy(os.Stdout, f); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return err
		}
	}
}
