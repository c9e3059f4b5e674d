// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"errors"
	"log/slog"
	"net"
)

// coordinate supervises the pumps until both have finished.
//
// Once the first pump finishes, the survivor has [Config.CloseTimeout] to
// finish on its own. Otherwise, the connection is aborted. Then the socket
// is closed and the transport enters its terminal state.
func (t *Transport) coordinate(recvDone, sendDone <-chan error) {
	var recvErr, sendErr error
	var firstDone string
	select {
	case recvErr = <-recvDone:
		firstDone = "receivePump"
	case sendErr = <-sendDone:
		firstDone = "sendPump"
	}

	t0 := t.cfg.TimeNow()
	t.mu.Lock()
	t.setStateLocked(StateClosing)
	t.mu.Unlock()
	t.logger.Info(
		"shutdownStart",
		slog.String("firstDone", firstDone),
		slog.Time("t", t0),
	)

	switch firstDone {
	case "receivePump":
		// Unblock an application writer stuck on backpressure if we abort.
		sendErr = t.awaitSurvivor("sendPump", sendDone, t.app.Output.CancelPendingFlush)

	default:
		// The application may be waiting for data that is never going to come.
		t.app.Input.CancelPendingRead()
		recvErr = t.awaitSurvivor("receivePump", recvDone, nil)
	}

	var closeErr error
	if !t.aborted.Load() {
		closeErr = t.conn.Close()
	}
	t.cancel()

	t.mu.Lock()
	t.err = errors.Join(recvErr, sendErr)
	if t.aborted.Load() {
		t.setStateLocked(StateAborted)
	} else {
		t.setStateLocked(StateClosed)
	}
	state := t.State()
	t.mu.Unlock()

	t.logger.Info(
		"shutdownDone",
		slog.Bool("aborted", t.aborted.Load()),
		slog.Any("closeErr", closeErr),
		slog.String("state", state.String()),
		slog.Time("t0", t0),
		slog.Time("t", t.cfg.TimeNow()),
	)
	close(t.done)
}

// awaitSurvivor waits for the pump still running, aborting the connection
// and calling onAbort (when not nil) if it does not finish in time.
func (t *Transport) awaitSurvivor(name string, done <-chan error, onAbort func()) error {
	timer := t.cfg.Clock.Timer(t.cfg.CloseTimeout)
	defer timer.Stop()

	select {
	case err := <-done:
		return err

	case <-timer.C:
		t.logger.Info(
			"closeTimeout",
			slog.String("stillRunning", name),
			slog.Duration("timeout", t.cfg.CloseTimeout),
			slog.Time("t", t.cfg.TimeNow()),
		)
		t.abort("closeTimeout")
		if onAbort != nil {
			onAbort()
		}
		return <-done
	}
}

// abort forcibly terminates the connection. Only the first call has effect.
//
// The socket is closed with a zero linger when supported, so that the
// peer observes a reset, and the pump context is cancelled.
func (t *Transport) abort(reason string) {
	if !t.aborted.CompareAndSwap(false, true) {
		return
	}
	t.metrics.aborts.Inc()
	t.logger.Info(
		"abort",
		slog.String("reason", reason),
		slog.Time("t", t.cfg.TimeNow()),
	)
	t.mu.Lock()
	t.setStateLocked(StateAborted)
	conn := t.conn
	t.mu.Unlock()

	if conn != nil {
		if sl, ok := findConn[interface{ SetLinger(sec int) error }](conn); ok {
			_ = sl.SetLinger(0)
		}
		conn.Close()
	}
	t.cancel()
}

// findConn walks a chain of wrapped connections, starting from conn and
// following NetConn, until it finds one implementing T.
func findConn[T any](conn net.Conn) (T, bool) {
	for conn != nil {
		if found, ok := conn.(T); ok {
			return found, true
		}
		wrapper, ok := conn.(interface{ NetConn() net.Conn })
		if !ok {
			break
		}
		conn = wrapper.NetConn()
	}
	var zero T
	return zero, false
}
