package supervisor

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ProcessInfo describes a running process.
type ProcessInfo struct {
	Pid        int
	Name       string
	Cmdline    string
	CreateTime time.Time
	Running    bool
}

// Uptime is how long the process has been running.
func (p *ProcessInfo) Uptime() time.Duration {
	if p.CreateTime.IsZero() {
		return 0
	}
	return time.Since(p.CreateTime)
}

// LooksLikeAmman reports whether the command line belongs to amman or the
// test validator it runs. A pid the relay reports may have been reused.
func (p *ProcessInfo) LooksLikeAmman() bool {
	for _, marker := range []string{"amman", "solana-test-validator"} {
		if strings.Contains(p.Cmdline, marker) || strings.Contains(p.Name, marker) {
			return true
		}
	}
	return false
}

// Describe looks up pid in the process table.
func Describe(pid int) (*ProcessInfo, error) {
	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("failed to find process %d: %w", pid, err)
	}

	info := &ProcessInfo{Pid: pid}
	if info.Running, err = proc.IsRunning(); err != nil {
		return nil, fmt.Errorf("failed to check process %d: %w", pid, err)
	}

	// the rest is best effort, another user's process hides some of it
	if name, err := proc.Name(); err == nil {
		info.Name = name
	} else {
		slog.Debug("Failed to read process name", "pid", pid, "error", err)
	}
	if cmdline, err := proc.Cmdline(); err == nil {
		info.Cmdline = cmdline
	} else {
		slog.Debug("Failed to read process command line", "pid", pid, "error", err)
	}
	if created, err := proc.CreateTime(); err == nil {
		info.CreateTime = time.UnixMilli(created)
	}

	return info, nil
}
