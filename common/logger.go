package common

import (
	"io"
	"log/slog"
	"os"
)

// L is the logger shared by every package in this module.
// it discards everything until InitLogger is called.
var L *slog.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

// LoggerOptions configures InitLogger
type LoggerOptions struct {
	// Enabled turns logging on. when false, output is discarded
	Enabled bool
	// Writer is where the records go. default is os.Stderr
	Writer io.Writer
	// Level is the minimum level. default is slog.LevelInfo
	Level slog.Level
	// JSON selects the json handler instead of the text handler
	JSON bool
}

// InitLogger replaces L according to opts
func InitLogger(opts LoggerOptions) {
	if !opts.Enabled {
		L = slog.New(slog.NewTextHandler(io.Discard, nil))
		return
	}
	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(w, hopts))
		return
	}
	L = slog.New(slog.NewTextHandler(w, hopts))
}
