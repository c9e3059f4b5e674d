// SPDX-License-Identifier: GPL-3.0-or-later

package duplexsock

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/dnsoverstream"
	"github.com/bassosimone/minest"
	"github.com/bassosimone/runtimex"
	"github.com/bassosimone/safeconn"
	"github.com/miekg/dns"
)

// NewDNSResolver returns a [*DNSResolver] querying server over protocol,
// which must be "udp", "tcp", or "dot" (DNS over TLS).
//
// Assign the result to [Config.Resolver] to resolve transport targets
// using a specific DNS server rather than the system resolver. For "dot",
// the TLS handshake uses [Config.TLSConfig] and [Config.TLSEngine], and
// the server name defaults to the server address.
func NewDNSResolver(cfg *Config, protocol string, server netip.AddrPort, logger SLogger) *DNSResolver {
	runtimex.Assert(protocol == "udp" || protocol == "tcp" || protocol == "dot")
	return &DNSResolver{
		Config:   cfg,
		Logger:   logger,
		Protocol: protocol,
		Server:   server,
	}
}

// DNSResolver is a [Resolver] performing DNS A queries against a
// configured server. Each lookup uses a fresh connection bound to the
// lookup context, so that cancelling the context interrupts the exchange.
//
// All fields are safe to modify after construction but before first use.
type DNSResolver struct {
	// Config provides the dialer, clock, and error classifier.
	Config *Config

	// Logger is the [SLogger] to use.
	Logger SLogger

	// Protocol is "udp", "tcp", or "dot".
	Protocol string

	// Server is the DNS server endpoint.
	Server netip.AddrPort
}

// LookupNetIP implements [Resolver].
//
// Only IPv4 addresses are looked up, hence network must be "ip" or "ip4".
func (r *DNSResolver) LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error) {
	if network != "ip" && network != "ip4" {
		return nil, fmt.Errorf("dns resolver: unsupported network %q", network)
	}

	dnsConn, err := Apply(r.pipeline(), r.Server).Call(ctx, Unit{})
	if err != nil {
		return nil, err
	}
	defer dnsConn.Close()

	resp, err := dnsConn.Exchange(ctx, dnscodec.NewQuery(host, dns.TypeA))
	if err != nil {
		return nil, err
	}
	records, err := resp.RecordsA()
	if err != nil {
		return nil, err
	}

	addrs := make([]netip.Addr, 0, len(records))
	for _, record := range records {
		if addr, err := netip.ParseAddr(record); err == nil {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

// pipeline returns the pipeline turning the server endpoint into a [*DNSConn].
func (r *DNSResolver) pipeline() Func[netip.AddrPort, *DNSConn] {
	network := r.Protocol
	if network == "dot" {
		network = "tcp"
	}
	connect := NewConnectFunc(r.Config, network, r.Logger)
	observe := NewObserveConnFunc(r.Config, r.Logger)
	wrap := Func[net.Conn, *DNSConn](NewDNSConnFunc(r.Config, r.Protocol, r.Logger))
	if r.Protocol == "dot" {
		handshake := NewTLSHandshakeFunc(r.Config, r.Server.Addr().String(), r.Logger)
		wrap = Compose2(tlsHandshakeStage(handshake), wrap)
	}
	return Compose4(connect, observe, NewCancelWatchFunc(), wrap)
}

// NewDNSConnFunc returns a new [*DNSConnFunc] for the given protocol,
// which must be "udp", "tcp", or "dot".
func NewDNSConnFunc(cfg *Config, protocol string, logger SLogger) *DNSConnFunc {
	return &DNSConnFunc{
		ErrClassifier: cfg.ErrClassifier,
		Logger:        logger,
		Protocol:      protocol,
		TimeNow:       cfg.TimeNow,
	}
}

// DNSConnFunc wraps a [net.Conn] into a [*DNSConn].
//
// All fields are safe to modify after construction but before first use.
// Fields must not be mutated concurrently with calls to [Call].
type DNSConnFunc struct {
	// ErrClassifier classifies errors for structured logging.
	//
	// Set by [NewDNSConnFunc] from [Config.ErrClassifier].
	ErrClassifier ErrClassifier

	// Logger is the [SLogger] to use.
	//
	// Set by [NewDNSConnFunc] to the user-provided logger.
	Logger SLogger

	// Protocol is "udp", "tcp", or "dot".
	//
	// Set by [NewDNSConnFunc] to the user-provided value.
	Protocol string

	// TimeNow is the function to get the current time.
	//
	// Set by [NewDNSConnFunc] from [Config.TimeNow].
	TimeNow func() time.Time
}

var _ Func[net.Conn, *DNSConn] = &DNSConnFunc{}

// Call wraps conn. It never fails.
func (op *DNSConnFunc) Call(ctx context.Context, conn net.Conn) (*DNSConn, error) {
	return &DNSConn{
		conn:          conn,
		ErrClassifier: op.ErrClassifier,
		Logger:        op.Logger,
		Protocol:      op.Protocol,
		TimeNow:       op.TimeNow,
	}, nil
}

// DNSConn performs DNS exchanges over an owned connection.
//
// The caller is responsible for calling Close when done.
//
// Construct via [*DNSConnFunc].
type DNSConn struct {
	conn net.Conn

	// ErrClassifier classifies errors for structured logging.
	ErrClassifier ErrClassifier

	// Logger is the SLogger to use.
	Logger SLogger

	// Protocol is "udp", "tcp", or "dot".
	Protocol string

	// TimeNow is the function to get the current time.
	TimeNow func() time.Time
}

// Close closes the underlying connection.
func (c *DNSConn) Close() error {
	return c.conn.Close()
}

// Exchange sends the query and returns the response.
func (c *DNSConn) Exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	t0 := c.TimeNow()
	deadline, _ := ctx.Deadline()
	var rawQuery []byte
	lc := &dnsExchangeLogContext{
		ErrClassifier:  c.ErrClassifier,
		LocalAddr:      safeconn.LocalAddr(c.conn),
		Logger:         c.Logger,
		Protocol:       safeconn.Network(c.conn),
		RemoteAddr:     safeconn.RemoteAddr(c.conn),
		ServerProtocol: c.Protocol,
		TimeNow:        c.TimeNow,
	}

	// The transports below never dial: they use the connection we own.
	unspecified := netip.AddrPortFrom(netip.IPv4Unspecified(), 0)

	lc.logStart(t0, deadline)
	var (
		resp *dnscodec.Response
		err  error
	)
	switch c.Protocol {
	case "udp":
		txp := minest.NewDNSOverUDPTransport(dnsUnusedDialer{}, unspecified)
		txp.ObserveRawQuery = lc.makeQueryObserver(t0, &rawQuery)
		txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rawQuery)
		resp, err = txp.ExchangeWithConn(ctx, c.conn, query)

	case "tcp":
		txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{}), unspecified)
		txp.ObserveRawQuery = lc.makeQueryObserver(t0, &rawQuery)
		txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rawQuery)
		resp, err = txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTCPStreamOpener(c.conn), query)

	case "dot":
		tconn, ok := c.conn.(TLSConn)
		if !ok {
			err = fmt.Errorf("dns conn: %T is not a TLS connection", c.conn)
			break
		}
		txp := dnsoverstream.NewTransport(dnsoverstream.NewStreamOpenerDialerTCP(dnsUnusedDialer{}), unspecified)
		txp.ObserveRawQuery = lc.makeQueryObserver(t0, &rawQuery)
		txp.ObserveRawResponse = lc.makeResponseObserver(t0, &rawQuery)
		resp, err = txp.ExchangeWithStreamOpener(ctx, dnsoverstream.NewTLSStreamOpener(tconn), query)

	default:
		err = fmt.Errorf("dns conn: unsupported protocol %q", c.Protocol)
	}
	lc.logDone(t0, deadline, err)

	return resp, err
}

// dnsUnusedDialer is a [Dialer] that panics if DialContext is called.
type dnsUnusedDialer struct{}

var _ Dialer = dnsUnusedDialer{}

// DialContext implements [Dialer] and always panics.
func (dnsUnusedDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	panic("duplexsock: DNS transport must not dial")
}

// dnsExchangeLogContext holds the logging state of a single DNS exchange.
type dnsExchangeLogContext struct {
	ErrClassifier  ErrClassifier
	LocalAddr      string
	Logger         SLogger
	Protocol       string
	RemoteAddr     string
	ServerProtocol string
	TimeNow        func() time.Time
}

func (lc *dnsExchangeLogContext) logStart(t0 time.Time, deadline time.Time) {
	lc.Logger.Info(
		"dnsExchangeStart",
		slog.Time("deadline", deadline),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.String("serverProtocol", lc.ServerProtocol),
		slog.Time("t", t0),
	)
}

func (lc *dnsExchangeLogContext) logDone(t0 time.Time, deadline time.Time, err error) {
	lc.Logger.Info(
		"dnsExchangeDone",
		slog.Time("deadline", deadline),
		slog.Any("err", err),
		slog.String("errClass", lc.ErrClassifier.Classify(err)),
		slog.String("localAddr", lc.LocalAddr),
		slog.String("protocol", lc.Protocol),
		slog.String("remoteAddr", lc.RemoteAddr),
		slog.String("serverProtocol", lc.ServerProtocol),
		slog.Time("t0", t0),
		slog.Time("t", lc.TimeNow()),
	)
}

// makeQueryObserver returns an observer logging the raw query and saving
// it into rqr, for correlation with the response.
func (lc *dnsExchangeLogContext) makeQueryObserver(t0 time.Time, rqr *[]byte) func([]byte) {
	return func(rawQuery []byte) {
		lc.Logger.Info(
			"dnsQuery",
			slog.Any("dnsRawQuery", rawQuery),
			slog.String("localAddr", lc.LocalAddr),
			slog.String("protocol", lc.Protocol),
			slog.String("remoteAddr", lc.RemoteAddr),
			slog.String("serverProtocol", lc.ServerProtocol),
			slog.Time("t", t0),
		)
		*rqr = rawQuery
	}
}

// makeResponseObserver returns an observer logging the raw response
// together with the query saved by the query observer.
func (lc *dnsExchangeLogContext) makeResponseObserver(t0 time.Time, rqr *[]byte) func([]byte) {
	return func(rawResp []byte) {
		lc.Logger.Info(
			"dnsResponse",
			slog.Any("dnsRawQuery", *rqr),
			slog.Any("dnsRawResponse", rawResp),
			slog.String("localAddr", lc.LocalAddr),
			slog.String("protocol", lc.Protocol),
			slog.String("remoteAddr", lc.RemoteAddr),
			slog.String("serverProtocol", lc.ServerProtocol),
			slog.Time("t0", t0),
			slog.Time("t", lc.TimeNow()),
		)
	}
}
