// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/bassosimone/duplexsock/pipe"
	"github.com/benbjohnson/clock"
)

// DefaultCloseTimeout is the default value of [Config.CloseTimeout].
const DefaultCloseTimeout = 5 * time.Second

// DefaultReceiveBufferSize is the default value of [Config.ReceiveBufferSize].
const DefaultReceiveBufferSize = 4096

// Config holds common configuration for duplexsock operations.
//
// Pass this to constructor functions to pre-wire dependencies.
// All fields have sensible defaults set by [NewConfig].
type Config struct {
	// Dialer is used by [*ConnectFunc].
	//
	// Set by [NewConfig] to [*net.Dialer].
	Dialer Dialer

	// Resolver is used by [*ResolveFunc] to map host names to addresses.
	//
	// Set by [NewConfig] to [net.DefaultResolver].
	Resolver Resolver

	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewConfig] to [DefaultErrClassifier].
	ErrClassifier ErrClassifier

	// TimeNow returns the current time.
	//
	// Set by [NewConfig] to [time.Now].
	TimeNow func() time.Time

	// Clock provides the timers used while shutting down.
	//
	// Set by [NewConfig] to [clock.New].
	Clock clock.Clock

	// CloseTimeout bounds how long the shutdown coordinator waits for the
	// second pump after the first one has finished before aborting.
	//
	// Set by [NewConfig] to [DefaultCloseTimeout].
	CloseTimeout time.Duration

	// FrameHeaderSize is the number of bytes, between 0 and 4, the receive
	// pump reserves in front of each chunk it delivers. The reservation holds
	// the chunk length in network byte order. Zero delivers a plain byte stream.
	//
	// Set by [NewConfig] to zero.
	FrameHeaderSize int

	// ReceiveBufferSize is the maximum number of bytes read from the
	// socket in a single receive operation.
	//
	// Set by [NewConfig] to [DefaultReceiveBufferSize].
	ReceiveBufferSize int

	// InboundPipe configures the pipe flowing from the network to the application.
	//
	// Set by [NewConfig] to [pipe.DefaultOptions].
	InboundPipe pipe.Options

	// OutboundPipe configures the pipe flowing from the application to the network.
	//
	// Set by [NewConfig] to [pipe.DefaultOptions].
	OutboundPipe pipe.Options

	// TLSConfig is the TLS configuration used for the "tls" scheme. When nil,
	// an empty configuration is used. An empty ServerName defaults to the
	// target host.
	//
	// Set by [NewConfig] to nil.
	TLSConfig *tls.Config

	// TLSEngine creates the client side of TLS connections.
	//
	// Set by [NewConfig] to [TLSEngineStdlib].
	TLSEngine TLSEngine

	// Metrics is the set where transports register their counters.
	//
	// Set by [NewConfig] to a new [*metrics.Set].
	Metrics *metrics.Set
}

// NewConfig creates a [*Config] with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Dialer:            &net.Dialer{},
		Resolver:          net.DefaultResolver,
		ErrClassifier:     DefaultErrClassifier,
		TimeNow:           time.Now,
		Clock:             clock.New(),
		CloseTimeout:      DefaultCloseTimeout,
		FrameHeaderSize:   0,
		ReceiveBufferSize: DefaultReceiveBufferSize,
		InboundPipe:       pipe.DefaultOptions(),
		OutboundPipe:      pipe.DefaultOptions(),
		TLSConfig:         nil,
		TLSEngine:         TLSEngineStdlib{},
		Metrics:           metrics.NewSet(),
	}
}
