// Package logging builds the slog logger used across poolbench.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Verbosity controls how chatty the harness is.
type Verbosity string

const (
	VerbositySilent Verbosity = "silent"
	VerbosityNormal Verbosity = "normal"
	VerbosityExtra  Verbosity = "extra"
)

// ParseVerbosity accepts silent, normal or extra (case-insensitive).
func ParseVerbosity(s string) (Verbosity, error) {
	switch v := Verbosity(strings.ToLower(strings.TrimSpace(s))); v {
	case "":
		return VerbosityNormal, nil
	case VerbositySilent, VerbosityNormal, VerbosityExtra:
		return v, nil
	default:
		return "", fmt.Errorf("invalid verbosity %q (expected silent, normal or extra)", s)
	}
}

// New returns a text logger writing to w. Silent discards everything,
// normal logs warnings and errors, extra logs everything down to debug.
func New(w io.Writer, v Verbosity) *slog.Logger {
	if w == nil || v == VerbositySilent {
		return Discard()
	}
	level := slog.LevelWarn
	if v == VerbosityExtra {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
