// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"log/slog"

	"github.com/bassosimone/runtimex"
	"github.com/google/uuid"
)

// NewSpanID returns a UUIDv7 identifying a span.
//
// Each [*Transport] gets its own span ID, covering everything from the
// connection attempt to the final shutdown, and attaches it to every log
// event it emits under the spanID key.
//
// This function panics if the system random number generator fails.
func NewSpanID() string {
	return runtimex.PanicOnError1(uuid.NewV7()).String()
}

// spanSLogger is an [SLogger] adding a spanID attribute to every event.
type spanSLogger struct {
	logger SLogger
	spanID string
}

var _ SLogger = spanSLogger{}

// Debug implements [SLogger].
func (l spanSLogger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, append(args, slog.String("spanID", l.spanID))...)
}

// Info implements [SLogger].
func (l spanSLogger) Info(msg string, args ...any) {
	l.logger.Info(msg, append(args, slog.String("spanID", l.spanID))...)
}
