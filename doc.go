// SPDX-License-Identifier: GPL-3.0-or-later

// Package duplexsock bridges a stream socket to a pair of application-facing
// byte pipes, the transport layer underneath a framed request/stream protocol.
//
// # Core Abstraction
//
// A [*Transport] owns one connection and two pumps:
//
//   - the receive pump copies bytes from the socket into the pipe the
//     application reads through [*Transport.Input];
//   - the send pump copies the bytes the application writes and flushes
//     through [*Transport.Output] to the socket.
//
// The pipes come from the [github.com/bassosimone/duplexsock/pipe] package.
// They are bounded: a flush suspends while the other side lags behind. They
// support cancelling a pending read or flush and completing either side with
// an optional error, which the other side observes after draining the bytes
// already published.
//
// # Connection Lifecycle
//
// [NewTransport] validates the target URL without performing any I/O. Only
// the "tcp" and "tls" schemes are accepted and the port is mandatory. Then
// [*Transport.Connect] resolves the host, connects to the first address,
// performs the TLS handshake for "tls" targets, and starts the pumps.
// [Dial] combines both steps.
//
// The transport moves through the states [StateUnconnected],
// [StateConnecting], [StateConnected], [StateClosing], and then either
// [StateClosed] or [StateAborted]. When a pump finishes, the shutdown
// coordinator gives the other one [Config.CloseTimeout] to finish too. If it
// does not, the transport aborts: it resets the connection and cancels the
// pending application operation that would otherwise hang.
//
// A pump finishing because the peer closed its write side, or because the
// application completed its output, is not an error. In the latter case the
// send pump half-closes the socket. [*Transport.Wait] returns the pump
// failures, each wrapping [ErrTransportIO], plus the error the application
// completed its output with, if any, wrapping [ErrApplicationOutput].
//
// # Framing
//
// [Config.FrameHeaderSize] reserves between zero and four bytes in front of
// each chunk the receive pump delivers, holding the chunk length in network
// byte order. [WriteFrame] and [ReadFrame] delimit frames with the 24-bit
// length prefix used by the protocol on top of TCP.
//
// # Composable Primitives
//
// Connection establishment is a pipeline of [Func] stages chained using
// [Compose2], [Compose3], and [Compose4]: [ResolveFunc], [ConnectFunc],
// [ObserveConnFunc], and [TLSHandshakeFunc]. [DNSResolver] reuses the same
// stages, plus [CancelWatchFunc], to query a specific DNS server.
//
// # Observability
//
// All primitives log structured events via [SLogger] (compatible with
// [log/slog]). By default, logging is disabled.
//
// Span events come in *Start/*Done pairs (e.g., connectStart/connectDone,
// receivePumpStart/receivePumpDone). Completion events include t0, err, and
// errClass, the latter computed by [Config.ErrClassifier]. I/O-level events
// (read, write, deadline changes) are emitted at [slog.LevelDebug]; all
// other events use [slog.LevelInfo]. Every event emitted by a transport
// carries its spanID (see [NewSpanID] and [*Transport.SpanID]).
//
// # Timeout and Context Philosophy
//
// The context passed to [*Transport.Connect] bounds connection establishment
// only. Once connected, the transport lives until [*Transport.Close] or until
// both pumps finish. Closing the transport interrupts pending socket I/O by
// moving the deadlines into the past, so the socket is never closed under the
// feet of a pump.
package duplexsock
