package core

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

// NewLogger returns a tint logger writing to w. Verbosity 0 logs at info,
// anything higher at debug. Colors are only used on a terminal.
func NewLogger(w io.Writer, verbose int) *slog.Logger {
	level := slog.LevelInfo
	if verbose > 0 {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !term.IsTerminal(int(f.Fd()))
	}

	handler := tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.DateTime,
		NoColor:    noColor,
	})
	return slog.New(handler)
}

// SetupLogging installs the stderr logger as the slog default
func SetupLogging(verbose int) {
	slog.SetDefault(NewLogger(os.Stderr, verbose))
}
