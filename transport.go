// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"sync/atomic"

	"github.com/bassosimone/duplexsock/pipe"
	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
)

// Transport bridges a stream socket to a pair of application-facing pipes.
//
// Once connected, a receive pump copies bytes from the socket into the
// pipe read through [*Transport.Input] and a send pump copies bytes written
// through [*Transport.Output] to the socket. When either pump finishes, a
// shutdown coordinator gives the other one [Config.CloseTimeout] to finish
// before aborting the connection.
//
// Construct using [NewTransport] or [Dial].
type Transport struct {
	cfg     *Config
	logger  SLogger
	metrics *transportMetrics
	spanID  string
	target  *Target

	// app is the application end and pumps is the transport end
	// of the same duplex pipe pair.
	app   pipe.Duplex
	pumps pipe.Duplex

	// ctx is shared by both pumps. Close and abort cancel it.
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	aborted atomic.Bool
	state   atomic.Int32

	// mu serializes state transitions and protects the fields below.
	mu       sync.Mutex
	conn     net.Conn
	endpoint netip.AddrPort
	err      error
}

// NewTransport validates target and returns an unconnected [*Transport].
//
// The target must be a URL using the "tcp" or "tls" scheme with an explicit
// port (e.g., "tcp://example.com:7878"). Otherwise, this function fails with
// an error wrapping [ErrInvalidTarget] without performing any I/O.
//
// The application may write into [*Transport.Output] before connecting.
func NewTransport(cfg *Config, target string, logger SLogger) (*Transport, error) {
	parsed, err := ParseTarget(target)
	if err != nil {
		return nil, err
	}

	runtimex.Assert(cfg.FrameHeaderSize >= 0 && cfg.FrameHeaderSize <= maxFrameHeaderSize)
	runtimex.Assert(cfg.ReceiveBufferSize > 0)
	runtimex.Assert(cfg.CloseTimeout > 0)
	runtimex.Assert(cfg.Metrics != nil)

	spanID := NewSpanID()
	app, pumps := pipe.NewDuplexPair(cfg.InboundPipe, cfg.OutboundPipe)
	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		cfg:     cfg,
		logger:  spanSLogger{logger: logger, spanID: spanID},
		metrics: newTransportMetrics(cfg.Metrics),
		spanID:  spanID,
		target:  parsed,
		app:     app,
		pumps:   pumps,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}, nil
}

// Dial creates a [*Transport] using [NewTransport] and connects it.
func Dial(ctx context.Context, cfg *Config, target string, logger SLogger) (*Transport, error) {
	t, err := NewTransport(cfg, target, logger)
	if err != nil {
		return nil, err
	}
	if err := t.Connect(ctx); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// Connect resolves the target, connects to the first address, and starts
// the pumps. It returns as soon as the pumps are running.
//
// The ctx bounds connection establishment only. Use [*Transport.Close] to
// stop the transport. A failed attempt leaves the transport unconnected, so
// it is possible to try again. Calling Connect on a connected transport is a
// programming error. On a closed transport, or when [*Transport.Close] interrupts
// the attempt, Connect returns [net.ErrClosed].
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	state := t.State()
	if state == StateUnconnected {
		t.setStateLocked(StateConnecting)
	}
	t.mu.Unlock()
	if state.IsTerminal() {
		return net.ErrClosed
	}
	runtimex.Assert(state == StateUnconnected)

	// Close interrupts a pending connection attempt.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.ctx, cancel)
	defer stop()

	endpoint, conn, err := t.dial(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()
	switch {
	case t.ctx.Err() != nil:
		// Close interrupted the attempt, whether or not the dial succeeded.
		if conn != nil {
			conn.Close()
		}
		t.closeUnconnectedLocked()
		return net.ErrClosed

	case err != nil:
		t.metrics.connectFailures.Inc()
		t.setStateLocked(StateUnconnected)
		return err
	}

	t.metrics.connects.Inc()
	t.conn, t.endpoint = conn, endpoint
	t.setStateLocked(StateConnected)
	t.start()
	return nil
}

// dial runs the connection pipeline for the target.
func (t *Transport) dial(ctx context.Context) (netip.AddrPort, net.Conn, error) {
	resolve := Compose2(ConstFunc(t.target), NewResolveFunc(t.cfg, t.logger))
	endpoint, err := resolve.Call(ctx, Unit{})
	if err != nil {
		return netip.AddrPort{}, nil, err
	}
	conn, err := t.connectPipeline().Call(ctx, endpoint)
	if err != nil {
		return netip.AddrPort{}, nil, err
	}
	return endpoint, conn, nil
}

// connectPipeline returns the pipeline turning an endpoint into a connection.
func (t *Transport) connectPipeline() Func[netip.AddrPort, net.Conn] {
	connect := NewConnectFunc(t.cfg, "tcp", t.logger)
	observe := NewObserveConnFunc(t.cfg, t.logger)
	if t.target.Scheme != SchemeTLS {
		return Compose2[netip.AddrPort, net.Conn, net.Conn](connect, observe)
	}
	handshake := NewTLSHandshakeFunc(t.cfg, t.target.Host, t.logger)
	return Compose3(connect, observe, tlsHandshakeStage(handshake))
}

// start launches the receive pump, then the send pump, then the coordinator.
func (t *Transport) start() {
	t.logger.Info(
		"transportStart",
		slog.String("localAddr", safeconn.LocalAddr(t.conn)),
		slog.String("protocol", safeconn.Network(t.conn)),
		slog.String("remoteAddr", safeconn.RemoteAddr(t.conn)),
		slog.String("target", t.target.String()),
		slog.Time("t", t.cfg.TimeNow()),
	)
	recvDone := make(chan error, 1)
	sendDone := make(chan error, 1)
	go func() {
		recvDone <- t.receivePump(t.ctx)
	}()
	go func() {
		sendDone <- t.sendPump(t.ctx)
	}()
	go t.coordinate(recvDone, sendDone)
}

// Input returns the reader of the bytes received from the peer.
func (t *Transport) Input() *pipe.Reader {
	return t.app.Input
}

// Output returns the writer of the bytes to send to the peer.
func (t *Transport) Output() *pipe.Writer {
	return t.app.Output
}

// Target returns the parsed target.
func (t *Transport) Target() *Target {
	return t.target
}

// Endpoint returns the address the transport connected to, or the zero
// value if it has not connected yet.
func (t *Transport) Endpoint() netip.AddrPort {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.endpoint
}

// SpanID returns the identifier attached to every log event of this transport.
func (t *Transport) SpanID() string {
	return t.spanID
}

// State returns the current [State].
func (t *Transport) State() State {
	return State(t.state.Load())
}

// Aborted returns whether the connection was forcibly closed.
func (t *Transport) Aborted() bool {
	return t.aborted.Load()
}

// Done returns a channel closed once the transport reaches a terminal state.
func (t *Transport) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the transport reaches a terminal state or ctx is done.
//
// It returns the errors of the pumps joined with [errors.Join], or nil when
// both pumps finished cleanly.
func (t *Transport) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the pumps and waits for the transport to reach a terminal state.
//
// Close is idempotent and always returns nil. Use [*Transport.Wait] to
// learn whether the pumps failed.
func (t *Transport) Close() error {
	t.cancel()
	t.mu.Lock()
	if t.State() == StateUnconnected {
		t.closeUnconnectedLocked()
	}
	t.mu.Unlock()
	<-t.done
	return nil
}

// setStateLocked changes the state. Once aborted, only Aborted is stored.
func (t *Transport) setStateLocked(state State) {
	if t.aborted.Load() {
		state = StateAborted
	}
	t.state.Store(int32(state))
}

// closeUnconnectedLocked terminates a transport that never started its pumps.
func (t *Transport) closeUnconnectedLocked() {
	t.pumps.Output.Complete(nil)
	t.pumps.Input.Complete(nil)
	t.setStateLocked(StateClosed)
	t.cancel()
	close(t.done)
}
