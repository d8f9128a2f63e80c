// Package debug provides an env-gated logger for tracing wire-level
// behavior during development, without paying for it in production
// builds. Enabled by setting DEBUG_RUSTIC_SERVER=1 (and optionally
// DEBUG_RUSTIC_SERVER_LOG to redirect to a file instead of stderr).
package debug

import (
	"fmt"
	"log"
	"os"
)

var opts struct {
	enabled bool
	logger  *log.Logger
}

var _ = initDebug()

func initDebug() bool {
	if os.Getenv("DEBUG_RUSTIC_SERVER") == "" {
		return false
	}

	out := os.Stderr
	if name := os.Getenv("DEBUG_RUSTIC_SERVER_LOG"); name != "" {
		f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "debug: unable to open log file %v: %v\n", name, err)
		} else {
			opts.logger = log.New(f, "", log.LstdFlags|log.Lmicroseconds)
			opts.enabled = true
			return true
		}
	}

	opts.logger = log.New(out, "", log.LstdFlags|log.Lmicroseconds)
	opts.enabled = true
	return true
}

// Log writes a debug message if debugging is enabled. It is a no-op
// otherwise, so callers may leave Log calls in hot paths.
func Log(fmtstr string, args ...interface{}) {
	if !opts.enabled {
		return
	}
	if len(args) == 0 {
		opts.logger.Output(2, fmtstr)
		return
	}
	opts.logger.Output(2, fmt.Sprintf(fmtstr, args...))
}

// Enabled reports whether debug logging is turned on.
func Enabled() bool {
	return opts.enabled
}
