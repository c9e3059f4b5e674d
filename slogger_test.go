// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultSLogger(t *testing.T) {
	logger := DefaultSLogger()

	assert.Equal(t, discardSLogger{}, logger)

	// Should be able to call Debug and Info without panic (discards output)
	logger.Debug("debug message", "key", "value")
	logger.Info("info message", "key", "value")
}

func TestSlogLoggerIsSLogger(t *testing.T) {
	var _ SLogger = slog.Default()
}
