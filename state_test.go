// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStateString(t *testing.T) {
	assert.Equal(t, "unconnected", StateUnconnected.String())
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "connected", StateConnected.String())
	assert.Equal(t, "closing", StateClosing.String())
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "aborted", StateAborted.String())
	assert.Equal(t, "unknown", State(42).String())
}

func TestStateIsTerminal(t *testing.T) {
	assert.False(t, StateConnected.IsTerminal())
	assert.False(t, StateClosing.IsTerminal())
	assert.True(t, StateClosed.IsTerminal())
	assert.True(t, StateAborted.IsTerminal())
}
