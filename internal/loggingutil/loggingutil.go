// Package loggingutil carries small pslog helpers shared across the daemon.
package loggingutil

import (
	"strings"

	"pkt.systems/pslog"
)

// Ensure returns logger, or a noop logger when nil.
func Ensure(logger pslog.Logger) pslog.Logger {
	if logger != nil {
		return logger
	}
	return pslog.NoopLogger()
}

// Subsystem builds a dot-delimited subsystem path from the supplied parts,
// skipping empty fragments.
func Subsystem(parts ...string) string {
	filtered := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, ". ")
		if part == "" {
			continue
		}
		filtered = append(filtered, part)
	}
	return strings.Join(filtered, ".")
}

// WithSubsystem tags every entry from the returned logger with the given
// subsystem path.
func WithSubsystem(logger pslog.Logger, subsystem string) pslog.Logger {
	logger = Ensure(logger)
	if subsystem == "" {
		return logger
	}
	return logger.With(pslog.TrustedString("sys"), subsystem)
}
