// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"crypto/tls"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bassosimone/duplexsock/pipe"
	"github.com/bassosimone/netstub"
	"github.com/bassosimone/slogstub"
	"github.com/bassosimone/tlsstub"
	"github.com/stretchr/testify/require"
)

// newCapturingLogger returns a logger that captures all log records into the
// returned slice. The caller can inspect the slice after exercising the code
// under test to verify which events were emitted.
//
// The records slice is not protected against concurrent appends: use
// [newSyncCapturingLogger] for code running background goroutines.
func newCapturingLogger() (*slog.Logger, *[]slog.Record) {
	var records []slog.Record
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			records = append(records, record)
			return nil
		},
	}
	return slog.New(handler), &records
}

// capturedMessages is a concurrency-safe list of log messages.
type capturedMessages struct {
	mu       sync.Mutex
	messages []string
}

// Contains returns whether message has been logged.
func (c *capturedMessages) Contains(message string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.messages {
		if m == message {
			return true
		}
	}
	return false
}

// newSyncCapturingLogger is like [newCapturingLogger] but only keeps the
// messages and may be used by concurrent goroutines.
func newSyncCapturingLogger() (*slog.Logger, *capturedMessages) {
	captured := &capturedMessages{}
	handler := &slogstub.FuncHandler{
		EnabledFunc: func(ctx context.Context, level slog.Level) bool {
			return true
		},
		HandleFunc: func(ctx context.Context, record slog.Record) error {
			captured.mu.Lock()
			captured.messages = append(captured.messages, record.Message)
			captured.mu.Unlock()
			return nil
		},
	}
	return slog.New(handler), captured
}

// newMockTLSEngine returns a [*tlsstub.FuncTLSEngine] that wraps the given
// [TLSConn]. The engine's ClientFunc returns the conn, NameFunc returns
// "mock", and ParrotFunc returns "".
func newMockTLSEngine(conn TLSConn) *tlsstub.FuncTLSEngine[TLSConn] {
	return &tlsstub.FuncTLSEngine[TLSConn]{
		ClientFunc: func(c net.Conn, config *tls.Config) TLSConn {
			return conn
		},
		NameFunc: func() string {
			return "mock"
		},
		ParrotFunc: func() string {
			return ""
		},
	}
}

// newMinimalConn returns a [*netstub.FuncConn] with only LocalAddrFunc and
// RemoteAddrFunc set. This is the minimum needed for code that calls
// [safeconn.LocalAddr], [safeconn.RemoteAddr], and [safeconn.Network]
// during construction.
func newMinimalConn() *netstub.FuncConn {
	return &netstub.FuncConn{
		LocalAddrFunc:  func() net.Addr { return &net.TCPAddr{} },
		RemoteAddrFunc: func() net.Addr { return &net.TCPAddr{} },
	}
}

// newForwardingConn returns a [*netstub.FuncConn] delegating to conn.
func newForwardingConn(conn net.Conn) *netstub.FuncConn {
	return &netstub.FuncConn{
		ReadFunc:        conn.Read,
		WriteFunc:       conn.Write,
		CloseFunc:       conn.Close,
		LocalAddrFunc:   conn.LocalAddr,
		RemoteAddrFunc:  conn.RemoteAddr,
		SetDeadlineFunc: conn.SetDeadline,
		SetReadDeadFunc: conn.SetReadDeadline,
		SetWriteDeaFunc: conn.SetWriteDeadline,
	}
}

// newPumpTransport returns a [*Transport] bound to conn without dialing,
// so that tests can run a single pump against a stub connection.
func newPumpTransport(t *testing.T, cfg *Config, conn net.Conn) *Transport {
	t.Helper()
	tx, err := NewTransport(cfg, "tcp://127.0.0.1:7878", DefaultSLogger())
	require.NoError(t, err)
	tx.conn = conn
	t.Cleanup(tx.cancel)
	return tx
}

// startListener starts a loopback TCP listener serving each accepted
// connection with handler on its own goroutine.
func startListener(t *testing.T, handler func(conn net.Conn)) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go handler(conn)
		}
	}()
	return listener
}

// echoHandler copies everything it reads back to the peer.
func echoHandler(conn net.Conn) {
	defer conn.Close()
	io.Copy(conn, conn)
}

// readAll reads from r until the writer completes and returns the bytes
// and the completion error. It re-reads after a cancelled read and keeps
// reading after the last bytes to observe the completion error.
func readAll(ctx context.Context, r *pipe.Reader) ([]byte, error) {
	var out []byte
	for {
		result, err := r.Read(ctx)
		if err != nil {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		n := result.Buffer.Len()
		out = append(out, result.Buffer.Bytes()...)
		r.AdvanceTo(n, n)
		if result.IsCompleted && n == 0 {
			return out, nil
		}
	}
}

// readAtLeast reads from r until at least n bytes are available.
func readAtLeast(ctx context.Context, r *pipe.Reader, n int) ([]byte, error) {
	var out []byte
	for len(out) < n {
		result, err := r.Read(ctx)
		if err != nil {
			return out, err
		}
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		size := result.Buffer.Len()
		out = append(out, result.Buffer.Bytes()...)
		r.AdvanceTo(size, size)
		if result.IsCompleted && len(out) < n {
			return out, io.ErrUnexpectedEOF
		}
	}
	return out, nil
}

// errMocked is the error returned by failing stubs.
var errMocked = errors.New("mocked error")

// testTimeout bounds blocking operations in tests.
const testTimeout = 5 * time.Second
