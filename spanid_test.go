// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSpanID(t *testing.T) {
	spanID := NewSpanID()

	// Should be a valid UUID string
	parsed, err := uuid.Parse(spanID)
	require.NoError(t, err)

	// Should be version 7 (time-ordered)
	assert.Equal(t, uuid.Version(7), parsed.Version())
}

func TestNewSpanIDUniqueness(t *testing.T) {
	// Generate multiple span IDs and verify they're all unique
	const count = 100
	seen := make(map[string]struct{}, count)

	for range count {
		spanID := NewSpanID()
		_, duplicate := seen[spanID]
		require.False(t, duplicate, "duplicate span ID generated: %s", spanID)
		seen[spanID] = struct{}{}
	}
}

// spanSLogger attaches the span ID to every event.
func TestSpanSLogger(t *testing.T) {
	logger, records := newCapturingLogger()
	spanLogger := spanSLogger{logger: logger, spanID: "0192-span"}

	spanLogger.Info("infoEvent", slog.Int("n", 1))
	spanLogger.Debug("debugEvent")

	require.Len(t, *records, 2)
	for _, record := range *records {
		var got string
		record.Attrs(func(attr slog.Attr) bool {
			if attr.Key == "spanID" {
				got = attr.Value.String()
			}
			return true
		})
		assert.Equal(t, "0192-span", got)
	}
}
