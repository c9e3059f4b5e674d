// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"testing"
	"time"

	"github.com/bassosimone/netstub"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Closing the wrapper delegates to the underlying conn.
func TestCancelWatchFuncCall(t *testing.T) {
	closeCalled := false
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			closeCalled = true
			return nil
		},
	}

	result, err := NewCancelWatchFunc().Call(context.Background(), mockConn)
	require.NoError(t, err)

	require.NoError(t, result.Close())
	assert.True(t, closeCalled)
}

// Cancelling the context triggers Close on the underlying conn.
func TestCancelWatchFuncClosesOnCancel(t *testing.T) {
	done := make(chan struct{})
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			close(done)
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	_, err := NewCancelWatchFunc().Call(ctx, mockConn)
	require.NoError(t, err)

	select {
	case <-done:
		t.Fatal("connection should not be closed yet")
	default:
	}

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("connection not closed after cancel")
	}
}

// Closing the wrapper unregisters the watcher so that subsequent context
// cancellation does not call Close on the underlying conn a second time.
func TestCancelWatchFuncCloseUnregistersWatcher(t *testing.T) {
	closeCount := 0
	mockConn := &netstub.FuncConn{
		CloseFunc: func() error {
			closeCount++
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	result, err := NewCancelWatchFunc().Call(ctx, mockConn)
	require.NoError(t, err)

	require.NoError(t, result.Close())
	assert.Equal(t, 1, closeCount)

	cancel()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, closeCount)
}

// interruptOnDone sets a deadline in the past once the context is done.
func TestInterruptOnDone(t *testing.T) {
	got := make(chan time.Time, 1)
	mockConn := &netstub.FuncConn{
		SetReadDeadFunc: func(t time.Time) error {
			got <- t
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop := interruptOnDone(ctx, mockConn.SetReadDeadline)
	defer stop()

	cancel()

	select {
	case deadline := <-got:
		assert.True(t, deadline.Before(time.Now()))
	case <-time.After(time.Second):
		t.Fatal("deadline not set after cancel")
	}
}

// Stopping the watcher prevents the deadline from being set.
func TestInterruptOnDoneStop(t *testing.T) {
	called := false
	mockConn := &netstub.FuncConn{
		SetWriteDeaFunc: func(t time.Time) error {
			called = true
			return nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	stop := interruptOnDone(ctx, mockConn.SetWriteDeadline)

	assert.True(t, stop())
	cancel()
	time.Sleep(20 * time.Millisecond)
	assert.False(t, called)
}
