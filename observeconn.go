//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/ooni/probe-cli/blob/v3.20.1/internal/measurexlite/conn.go
// Adapted from: https://github.com/rbmk-project/rbmk/blob/v0.17.0/pkg/x/netcore/conn.go
//

package duplexsock

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/bassosimone/safeconn"
)

// NewObserveConnFunc returns a new [*ObserveConnFunc].
func NewObserveConnFunc(cfg *Config, logger SLogger) *ObserveConnFunc {
	return &ObserveConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		TimeNow:       cfg.TimeNow,
	}
}

// ObserveConnFunc wraps a [net.Conn] to log its I/O operations.
//
// Reads, writes, and deadline changes are logged at debug level. Close and
// CloseWrite are logged at info level. The wrapper also forwards CloseWrite
// and SetLinger when the underlying connection supports them, so that the
// pumps can half-close and abort through it.
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type ObserveConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewObserveConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewObserveConnFunc] to the user-provided logger.
	Logger SLogger

	// TimeNow is the function to get the current time.
	//
	// Set by [NewObserveConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, net.Conn] = &ObserveConnFunc{}

// Call wraps conn. It never fails.
func (op *ObserveConnFunc) Call(ctx context.Context, conn net.Conn) (net.Conn, error) {
	observed := &observedConn{
		conn:     conn,
		laddr:    safeconn.LocalAddr(conn),
		op:       op,
		protocol: safeconn.Network(conn),
		raddr:    safeconn.RemoteAddr(conn),
	}
	return observed, nil
}

type observedConn struct {
	closeonce sync.Once
	conn      net.Conn
	laddr     string
	op        *ObserveConnFunc
	protocol  string
	raddr     string
}

// connAttrs returns the attributes every event carries.
func (c *observedConn) connAttrs(t time.Time, extra ...any) []any {
	return append([]any{
		slog.String("localAddr", c.laddr),
		slog.String("protocol", c.protocol),
		slog.String("remoteAddr", c.raddr),
		slog.Time("t", t),
	}, extra...)
}

// doneAttrs returns the attributes of a *Done event.
func (c *observedConn) doneAttrs(t0 time.Time, err error, extra ...any) []any {
	return c.connAttrs(c.op.TimeNow(), append([]any{
		slog.Any("err", err),
		slog.String("errClass", c.op.ErrClassifier.Classify(err)),
		slog.Time("t0", t0),
	}, extra...)...)
}

// Close implements [net.Conn].
//
// Subsequent calls return [net.ErrClosed].
func (c *observedConn) Close() (err error) {
	err = net.ErrClosed
	c.closeonce.Do(func() {
		t0 := c.op.TimeNow()
		c.op.Logger.Info("closeStart", c.connAttrs(t0)...)
		err = c.conn.Close()
		c.op.Logger.Info("closeDone", c.doneAttrs(t0, err)...)
	})
	return
}

// CloseWrite shuts down the writing side of the underlying connection.
//
// Returns [errors.ErrUnsupported] when the underlying connection cannot half-close.
func (c *observedConn) CloseWrite() error {
	cw, ok := c.conn.(interface{ CloseWrite() error })
	if !ok {
		return errors.ErrUnsupported
	}
	t0 := c.op.TimeNow()
	c.op.Logger.Info("closeWriteStart", c.connAttrs(t0)...)
	err := cw.CloseWrite()
	c.op.Logger.Info("closeWriteDone", c.doneAttrs(t0, err)...)
	return err
}

// SetLinger forwards to the underlying connection.
//
// Returns [errors.ErrUnsupported] when the underlying connection has no linger option.
func (c *observedConn) SetLinger(sec int) error {
	sl, ok := c.conn.(interface{ SetLinger(sec int) error })
	if !ok {
		return errors.ErrUnsupported
	}
	c.op.Logger.Debug("setLinger", c.connAttrs(c.op.TimeNow(), slog.Int("linger", sec))...)
	return sl.SetLinger(sec)
}

// NetConn returns the wrapped connection.
func (c *observedConn) NetConn() net.Conn {
	return c.conn
}

// LocalAddr implements [net.Conn].
func (c *observedConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr implements [net.Conn].
func (c *observedConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// Read implements [net.Conn].
func (c *observedConn) Read(buf []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug("readStart", c.connAttrs(t0, slog.Int("ioBufferSize", len(buf)))...)
	count, err := c.conn.Read(buf)
	c.op.Logger.Debug("readDone", c.doneAttrs(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

// Write implements [net.Conn].
func (c *observedConn) Write(data []byte) (int, error) {
	t0 := c.op.TimeNow()
	c.op.Logger.Debug("writeStart", c.connAttrs(t0, slog.Int("ioBufferSize", len(data)))...)
	count, err := c.conn.Write(data)
	c.op.Logger.Debug("writeDone", c.doneAttrs(t0, err, slog.Int("ioBytesCount", count))...)
	return count, err
}

// SetDeadline implements [net.Conn].
func (c *observedConn) SetDeadline(t time.Time) error {
	c.op.Logger.Debug("setDeadline", c.connAttrs(c.op.TimeNow(), slog.Time("deadline", t))...)
	return c.conn.SetDeadline(t)
}

// SetReadDeadline implements [net.Conn].
func (c *observedConn) SetReadDeadline(t time.Time) error {
	c.op.Logger.Debug("setReadDeadline", c.connAttrs(c.op.TimeNow(), slog.Time("deadline", t))...)
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline implements [net.Conn].
func (c *observedConn) SetWriteDeadline(t time.Time) error {
	c.op.Logger.Debug("setWriteDeadline", c.connAttrs(c.op.TimeNow(), slog.Time("deadline", t))...)
	return c.conn.SetWriteDeadline(t)
}
