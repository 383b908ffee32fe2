// Package logging provides subsystem-tagged log helpers for the
// matching engine. Output goes through the standard library logger;
// debug lines are gated by the DEBUG environment variable.
package logging

import (
	"log"
	"os"
	"strings"
)

var debugEnabled = func() bool {
	v := os.Getenv("DEBUG")
	return v == "true" || v == "1"
}()

// Info logs an informational message (always shown)
func Info(subsystem, format string, args ...any) {
	log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
}

// Debug logs a debug message (only shown if DEBUG is set)
func Debug(subsystem, format string, args ...any) {
	if debugEnabled {
		log.Printf("[%s] "+format, append([]any{subsystem}, args...)...)
	}
}

// Truncate shortens document or nugget text to at most maxLen runes for
// one-line log previews, adding an ellipsis when it cuts. Truncation is
// rune-based so it never splits a multi-byte character.
func Truncate(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
