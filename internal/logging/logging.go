// Package logging builds the plain-prefix *log.Logger every deployforge
// binary uses, matching the convention of every agent in the teacher
// monorepo (log.New(os.Stdout, "<prefix> ", log.LstdFlags|log.LUTC)).
package logging

import (
	"log"
	"os"
	"strings"
)

// New returns a logger prefixed with component, writing to stdout with UTC
// timestamps.
func New(component string) *log.Logger {
	return log.New(os.Stdout, component+" ", log.LstdFlags|log.LUTC)
}

// Debugf writes a debug-level line only when LOG_LEVEL is "debug" or
// "trace". There is no leveled-logging library in play here (the teacher
// never pulls one in for its own agents); this is the same ad hoc gate
// agents/manager uses around its verbose digest prints.
func Debugf(logger *log.Logger, format string, args ...any) {
	if !debugEnabled() {
		return
	}
	logger.Printf(format, args...)
}

func debugEnabled() bool {
	lvl := strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	return lvl == "debug" || lvl == "trace"
}
