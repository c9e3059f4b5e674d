// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"net"
	"time"
)

// NewCancelWatchFunc returns a new [*CancelWatchFunc].
func NewCancelWatchFunc() *CancelWatchFunc {
	return &CancelWatchFunc{}
}

// CancelWatchFunc arranges for the connection to be closed when the context
// is done. [*DNSResolver] uses it to bind short-lived DNS connections to the
// lookup context.
//
// Closing the returned connection unregisters the watcher and closes the
// underlying connection, so no goroutine outlives the connection.
//
// Do not use this primitive for the transport socket: the transport must
// outlive the context passed to Connect and its pumps are interrupted
// without closing the socket (see [interruptOnDone]).
type CancelWatchFunc struct{}

var _ Func[net.Conn, net.Conn] = &CancelWatchFunc{}

// Call registers a context watcher using [context.AfterFunc] that closes
// the connection when the context is done.
func (op *CancelWatchFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	return &cancelWatchedConn{Conn: conn, stop: stop}, nil
}

type cancelWatchedConn struct {
	net.Conn
	stop func() bool
}

// Close unregisters the context watcher and closes the underlying connection.
func (c *cancelWatchedConn) Close() error {
	c.stop()
	return c.Conn.Close()
}

// aLongTimeAgo is a deadline in the past that makes pending I/O fail at once.
var aLongTimeAgo = time.Unix(1, 0)

// interruptOnDone arranges for setDeadline to be called with a deadline in
// the past when ctx is done, which unblocks a pending read or write with a
// timeout error while leaving the socket open. Call the returned function
// to unregister the watcher.
func interruptOnDone(ctx context.Context, setDeadline func(time.Time) error) (stop func() bool) {
	return context.AfterFunc(ctx, func() {
		_ = setDeadline(aLongTimeAgo)
	})
}
